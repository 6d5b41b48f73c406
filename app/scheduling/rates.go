package scheduling

import (
	"context"
	"log/slog"

	"github.com/feedrelay/feedrelay/app/schedules"
)

// RateResolver computes the effective refresh rate of a feed from the
// owner's subscriber tier and administrator schedule overrides.
type RateResolver struct {
	benefits           BenefitsLookup
	schedules          []schedules.Schedule
	defaultRateSeconds int
	vipRateSeconds     int
}

func NewRateResolver(benefits BenefitsLookup, overrides []schedules.Schedule,
	defaultRateSeconds, vipRateSeconds int) *RateResolver {
	return &RateResolver{
		benefits:           benefits,
		schedules:          overrides,
		defaultRateSeconds: defaultRateSeconds,
		vipRateSeconds:     vipRateSeconds,
	}
}

// EffectiveRateSeconds resolves the refresh rate for a feed. A failed
// benefits lookup falls back to the default rate so scheduling is never
// blocked. Schedule overrides take precedence over the tier-derived rate,
// even when they are slower; the first matching schedule in file order wins.
func (r *RateResolver) EffectiveRateSeconds(ctx context.Context, feedID, feedURL, ownerID string) int {
	rate := r.defaultRateSeconds

	benefits, err := r.benefits.BenefitsOfOwner(ctx, ownerID)
	if err != nil {
		slog.Warn("Benefits lookup failed, using default rate",
			"feed_id", feedID, "owner_id", ownerID, "error", err)
	} else if benefits.IsSupporter {
		rate = r.vipRateSeconds
	}

	for _, s := range r.schedules {
		if s.Matches(feedID, feedURL) {
			return s.RefreshRateMinutes * 60
		}
	}

	return rate
}

// Rates returns every rate the resolver can produce, for the scheduler to
// tick over. Order is deterministic: default, vip, then schedule rates.
func (r *RateResolver) Rates() []int {
	seen := map[int]bool{}
	rates := make([]int, 0, len(r.schedules)+2)

	for _, rate := range []int{r.defaultRateSeconds, r.vipRateSeconds} {
		if !seen[rate] {
			seen[rate] = true
			rates = append(rates, rate)
		}
	}
	for _, s := range r.schedules {
		rate := s.RefreshRateMinutes * 60
		if !seen[rate] {
			seen[rate] = true
			rates = append(rates, rate)
		}
	}

	return rates
}
