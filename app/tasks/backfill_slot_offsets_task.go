package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/feedrelay/feedrelay/app/database"
	"github.com/feedrelay/feedrelay/app/scheduling"
)

// BackfillSlotOffsetsTask assigns slot offsets to legacy feeds created before
// offsets existed. Until a feed is backfilled it stays eligible on every tick,
// so the task works in batches until no unassigned feeds remain.
type BackfillSlotOffsetsTask struct {
	Task
	feedRepo  database.FeedRepository
	batchSize int
}

func NewBackfillSlotOffsetsTask(feedRepo database.FeedRepository, batchSize int) *BackfillSlotOffsetsTask {
	return &BackfillSlotOffsetsTask{
		Task:      NewTask(TaskTypeBackfillSlotOffsets, ""),
		feedRepo:  feedRepo,
		batchSize: batchSize,
	}
}

func (t *BackfillSlotOffsetsTask) Execute(ctx context.Context) error {
	backfilled := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		feeds, err := t.feedRepo.GetFeedsMissingSlotOffset(ctx, t.batchSize)
		if err != nil {
			return fmt.Errorf("failed to query feeds missing slot offset: %w", err)
		}
		if len(feeds) == 0 {
			break
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(8)

		for i := range feeds {
			feed := feeds[i]
			g.Go(func() error {
				offset := scheduling.SlotOffsetMs(feed.URL, feed.EffectiveRateSeconds())
				return t.feedRepo.UpdateSlotOffset(gCtx, feed.ID, offset)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("failed to backfill slot offsets: %w", err)
		}
		backfilled += len(feeds)

		if len(feeds) < t.batchSize {
			break
		}
	}

	slog.Info("Task completed",
		"type", "BackfillSlotOffsets",
		"duration", t.GetDuration(),
		"backfilled", backfilled)

	return nil
}
