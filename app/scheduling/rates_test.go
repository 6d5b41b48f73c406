package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/feedrelay/feedrelay/app/schedules"
)

type fakeBenefitsLookup struct {
	benefits Benefits
	err      error
}

func (l *fakeBenefitsLookup) BenefitsOfOwner(_ context.Context, _ string) (Benefits, error) {
	return l.benefits, l.err
}

func TestEffectiveRateSeconds_Default(t *testing.T) {
	r := NewRateResolver(&fakeBenefitsLookup{}, nil, 600, 120)

	rate := r.EffectiveRateSeconds(context.Background(), "feed-1", "https://example.com/feed.xml", "owner-1")
	if rate != 600 {
		t.Errorf("expected default rate 600, got %d", rate)
	}
}

func TestEffectiveRateSeconds_Supporter(t *testing.T) {
	lookup := &fakeBenefitsLookup{benefits: Benefits{IsSupporter: true}}
	r := NewRateResolver(lookup, nil, 600, 120)

	rate := r.EffectiveRateSeconds(context.Background(), "feed-1", "https://example.com/feed.xml", "owner-1")
	if rate != 120 {
		t.Errorf("expected vip rate 120 for supporter, got %d", rate)
	}
}

func TestEffectiveRateSeconds_LookupFailureFallsBack(t *testing.T) {
	lookup := &fakeBenefitsLookup{err: errors.New("service unavailable")}
	r := NewRateResolver(lookup, nil, 600, 120)

	rate := r.EffectiveRateSeconds(context.Background(), "feed-1", "https://example.com/feed.xml", "owner-1")
	if rate != 600 {
		t.Errorf("expected default rate on lookup failure, got %d", rate)
	}
}

func TestEffectiveRateSeconds_ScheduleOverride(t *testing.T) {
	overrides := []schedules.Schedule{
		{Name: "news", Keywords: []string{"news.example.com"}, RefreshRateMinutes: 2},
	}
	r := NewRateResolver(&fakeBenefitsLookup{}, overrides, 600, 120)

	rate := r.EffectiveRateSeconds(context.Background(), "feed-1", "https://news.example.com/feed.xml", "owner-1")
	if rate != 120 {
		t.Errorf("expected override rate 120, got %d", rate)
	}

	rate = r.EffectiveRateSeconds(context.Background(), "feed-1", "https://other.example.com/feed.xml", "owner-1")
	if rate != 600 {
		t.Errorf("expected default rate for non-matching feed, got %d", rate)
	}
}

func TestEffectiveRateSeconds_OverrideWinsEvenWhenSlower(t *testing.T) {
	overrides := []schedules.Schedule{
		{Name: "slow", Keywords: []string{"example.com"}, RefreshRateMinutes: 60},
	}
	lookup := &fakeBenefitsLookup{benefits: Benefits{IsSupporter: true}}
	r := NewRateResolver(lookup, overrides, 600, 120)

	rate := r.EffectiveRateSeconds(context.Background(), "feed-1", "https://example.com/feed.xml", "owner-1")
	if rate != 3600 {
		t.Errorf("schedule override must win over the supporter rate, got %d", rate)
	}
}

func TestEffectiveRateSeconds_FirstMatchWins(t *testing.T) {
	overrides := []schedules.Schedule{
		{Name: "first", Keywords: []string{"example.com"}, RefreshRateMinutes: 5},
		{Name: "second", Keywords: []string{"news.example.com"}, RefreshRateMinutes: 1},
	}
	r := NewRateResolver(&fakeBenefitsLookup{}, overrides, 600, 120)

	rate := r.EffectiveRateSeconds(context.Background(), "feed-1", "https://news.example.com/feed.xml", "owner-1")
	if rate != 300 {
		t.Errorf("expected first matching schedule to win with 300, got %d", rate)
	}
}

func TestEffectiveRateSeconds_FeedIDMatch(t *testing.T) {
	overrides := []schedules.Schedule{
		{Name: "pinned", FeedIDs: []string{"feed-42"}, RefreshRateMinutes: 1},
	}
	r := NewRateResolver(&fakeBenefitsLookup{}, overrides, 600, 120)

	rate := r.EffectiveRateSeconds(context.Background(), "feed-42", "https://example.com/feed.xml", "owner-1")
	if rate != 60 {
		t.Errorf("expected feed id override rate 60, got %d", rate)
	}
}

func TestRates_Deduplicated(t *testing.T) {
	overrides := []schedules.Schedule{
		{Name: "a", Keywords: []string{"a"}, RefreshRateMinutes: 2},
		{Name: "b", Keywords: []string{"b"}, RefreshRateMinutes: 10},
		{Name: "c", Keywords: []string{"c"}, RefreshRateMinutes: 2},
	}
	r := NewRateResolver(&fakeBenefitsLookup{}, overrides, 600, 120)

	got := r.Rates()
	want := []int{600, 120}
	if len(got) != 2 {
		t.Fatalf("expected 2 distinct rates, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rates[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStaticBenefitsLookup(t *testing.T) {
	lookup := NewStaticBenefitsLookup([]string{"owner-1"})

	benefits, err := lookup.BenefitsOfOwner(context.Background(), "owner-1")
	if err != nil || !benefits.IsSupporter {
		t.Errorf("expected supporter benefits for listed owner, got %+v, %v", benefits, err)
	}

	benefits, err = lookup.BenefitsOfOwner(context.Background(), "owner-2")
	if err != nil || benefits.IsSupporter {
		t.Errorf("expected non-supporter benefits for unlisted owner, got %+v, %v", benefits, err)
	}
}
