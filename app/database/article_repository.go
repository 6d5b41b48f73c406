package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

var _ ArticleRepository = (*PostgresArticleRepository)(nil)

// PostgresArticleRepository stores the long-term dedup keys of delivered
// articles. Keys are compared against each fetch batch to decide which
// articles are new.
type PostgresArticleRepository struct {
	db *DB
}

// NewArticleRepository creates a new article record repository
func NewArticleRepository(db *DB) *PostgresArticleRepository {
	return &PostgresArticleRepository{db: db}
}

// GetRecordedKeys returns every stored dedup key for a feed
func (r *PostgresArticleRepository) GetRecordedKeys(ctx context.Context, feedID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT article_key
		FROM article_records
		WHERE feed_id = $1
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get recorded keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan article key: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article keys: %w", err)
	}

	return keys, nil
}

// HasRecords reports whether the feed has any stored keys
func (r *PostgresArticleRepository) HasRecords(ctx context.Context, feedID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM article_records WHERE feed_id = $1)
	`, feedID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check article records: %w", err)
	}
	return exists, nil
}

// RecordKeys inserts a batch of dedup keys, ignoring keys already stored
func (r *PostgresArticleRepository) RecordKeys(ctx context.Context, feedID, idType string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+2)
	args = append(args, feedID, idType)
	for i, key := range keys {
		placeholders = append(placeholders, fmt.Sprintf("($1, $2, $%d)", i+3))
		args = append(args, key)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO article_records (feed_id, id_type, article_key)
		VALUES `+strings.Join(placeholders, ", ")+`
		ON CONFLICT (feed_id, article_key) DO NOTHING
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to record article keys: %w", err)
	}

	return nil
}

// DeleteRecordsOlderThan prunes stale dedup keys
func (r *PostgresArticleRepository) DeleteRecordsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM article_records WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale article records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted article records: %w", err)
	}
	return deleted, nil
}

// GetRecordCount returns the total number of stored dedup keys
func (r *PostgresArticleRepository) GetRecordCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM article_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get article record count: %w", err)
	}
	return count, nil
}
