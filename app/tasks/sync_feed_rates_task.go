package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/feedrelay/feedrelay/app/database"
	"github.com/feedrelay/feedrelay/app/scheduling"
)

// SyncFeedRatesTask re-resolves the effective refresh rate of every feed and
// rewrites the rate together with a freshly hashed slot offset when the rate
// changed. Keeping the two in one update means a feed never carries an offset
// hashed for a different interval.
type SyncFeedRatesTask struct {
	Task
	feedRepo     database.FeedRepository
	rateResolver *scheduling.RateResolver
}

func NewSyncFeedRatesTask(feedRepo database.FeedRepository, rateResolver *scheduling.RateResolver) *SyncFeedRatesTask {
	return &SyncFeedRatesTask{
		Task:         NewTask(TaskTypeSyncFeedRates, ""),
		feedRepo:     feedRepo,
		rateResolver: rateResolver,
	}
}

func (t *SyncFeedRatesTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	feeds, err := t.feedRepo.GetAllFeeds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load feeds: %w", err)
	}

	updated := 0
	for i := range feeds {
		feed := &feeds[i]

		rate := t.rateResolver.EffectiveRateSeconds(ctx, feed.ID, feed.URL, feed.OwnerID)
		if rate == feed.RefreshRateSeconds {
			continue
		}

		// A user-requested rate wins over the tier rate, so the offset must
		// be hashed for the interval the feed is actually scheduled at.
		effective := rate
		if feed.UserRefreshRateSeconds != nil {
			effective = *feed.UserRefreshRateSeconds
		}

		offset := scheduling.SlotOffsetMs(feed.URL, effective)
		if err := t.feedRepo.UpdateEffectiveRate(ctx, feed.ID, rate, offset); err != nil {
			slog.Warn("Failed to update feed rate", "feed_id", feed.ID, "error", err)
			continue
		}
		updated++
	}

	slog.Info("Task completed",
		"type", "SyncFeedRates",
		"duration", t.GetDuration(),
		"total", len(feeds),
		"updated", updated)

	return nil
}
