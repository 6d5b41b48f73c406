package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedrelay/feedrelay/app/database"
)

// Records older than this are safe to drop: no feed keeps items in its
// document for this long, so the keys can never match again.
const articleRecordRetention = 30 * 24 * time.Hour

// PruneArticleRecordsTask deletes dedup keys past the retention window to
// keep the records table bounded.
type PruneArticleRecordsTask struct {
	Task
	articleRepo database.ArticleRepository
}

func NewPruneArticleRecordsTask(articleRepo database.ArticleRepository) *PruneArticleRecordsTask {
	return &PruneArticleRecordsTask{
		Task:        NewTask(TaskTypePruneArticleRecords, ""),
		articleRepo: articleRepo,
	}
}

func (t *PruneArticleRecordsTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cutoff := time.Now().UTC().Add(-articleRecordRetention)
	deleted, err := t.articleRepo.DeleteRecordsOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune article records: %w", err)
	}

	slog.Info("Task completed",
		"type", "PruneArticleRecords",
		"duration", t.GetDuration(),
		"deleted", deleted)

	return nil
}
