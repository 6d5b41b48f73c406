package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/feedrelay/feedrelay/app/scheduling"
)

var _ FeedRepository = (*PostgresFeedRepository)(nil)

// PostgresFeedRepository handles database operations for feeds
type PostgresFeedRepository struct {
	db *DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *DB) *PostgresFeedRepository {
	return &PostgresFeedRepository{db: db}
}

const feedColumns = `id, owner_id, feed_url, title, refresh_rate_seconds,
	user_refresh_rate_seconds, slot_offset_ms, COALESCE(disabled_code, ''),
	health_status, fetch_failures, last_fetched_at, created_at, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (*Feed, error) {
	var feed Feed
	err := row.Scan(
		&feed.ID, &feed.OwnerID, &feed.URL, &feed.Title, &feed.RefreshRateSeconds,
		&feed.UserRefreshRateSeconds, &feed.SlotOffsetMs, &feed.DisabledCode,
		&feed.HealthStatus, &feed.FetchFailures, &feed.LastFetchedAt,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

// GetFeed retrieves a feed by its ID
func (r *PostgresFeedRepository) GetFeed(ctx context.Context, feedID string) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE id = $1
	`, feedID)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

// GetAllFeeds retrieves every feed, enabled or not
func (r *PostgresFeedRepository) GetAllFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// GetDueFeeds selects feeds due in the given slot window. The window filter
// is pushed down to SQL so the selection stays a single indexed query; the
// wraparound case splits into two disjoint ranges, and feeds without a slot
// offset are always eligible until the backfill assigns them one.
func (r *PostgresFeedRepository) GetDueFeeds(ctx context.Context, rateSeconds int, window scheduling.SlotWindow) ([]Feed, error) {
	query := `
		SELECT ` + feedColumns + `
		FROM feeds
		WHERE disabled_code IS NULL
		  AND health_status <> '` + HealthFailed + `'
		  AND COALESCE(user_refresh_rate_seconds, refresh_rate_seconds) = $1
		  AND EXISTS (
		        SELECT 1 FROM destinations d
		        WHERE d.feed_id = feeds.id AND d.enabled
		  )`

	var args []any
	if window.WrapsAroundInterval {
		query += `
		  AND (slot_offset_ms IS NULL
		       OR (slot_offset_ms >= $2 AND slot_offset_ms < $3)
		       OR (slot_offset_ms >= 0 AND slot_offset_ms < $4))`
		args = []any{rateSeconds, window.WindowStartMs, window.RefreshRateMs,
			window.WindowEndMs - window.RefreshRateMs}
	} else {
		query += `
		  AND (slot_offset_ms IS NULL
		       OR (slot_offset_ms >= $2 AND slot_offset_ms < $3))`
		args = []any{rateSeconds, window.WindowStartMs, window.WindowEndMs}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get due feeds: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// GetEffectiveRates returns the distinct effective refresh rates in use
func (r *PostgresFeedRepository) GetEffectiveRates(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT COALESCE(user_refresh_rate_seconds, refresh_rate_seconds)
		FROM feeds
		WHERE disabled_code IS NULL
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get effective rates: %w", err)
	}
	defer rows.Close()

	var rates []int
	for rows.Next() {
		var rate int
		if err := rows.Scan(&rate); err != nil {
			return nil, fmt.Errorf("failed to scan rate row: %w", err)
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate rows: %w", err)
	}

	return rates, nil
}

// GetDestinations returns the enabled delivery destinations of a feed
func (r *PostgresFeedRepository) GetDestinations(ctx context.Context, feedID string) ([]Destination, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, feed_id, kind, endpoint, filters, enabled, created_at
		FROM destinations
		WHERE feed_id = $1 AND enabled
		ORDER BY created_at
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get destinations: %w", err)
	}
	defer rows.Close()

	var destinations []Destination
	for rows.Next() {
		var d Destination
		if err := rows.Scan(&d.ID, &d.FeedID, &d.Kind, &d.Endpoint, &d.Filters,
			&d.Enabled, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan destination row: %w", err)
		}
		destinations = append(destinations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating destination rows: %w", err)
	}

	return destinations, nil
}

// UpdateFetchSuccess records a successful fetch and resets health tracking
func (r *PostgresFeedRepository) UpdateFetchSuccess(ctx context.Context, feedID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET last_fetched_at = NOW(), fetch_failures = 0,
		    health_status = '`+HealthOK+`', updated_at = NOW()
		WHERE id = $1
	`, feedID)
	if err != nil {
		return fmt.Errorf("failed to update fetch success: %w", err)
	}
	return nil
}

// UpdateFetchFailure increments the failure counter and marks the feed
// failed once it crosses the threshold
func (r *PostgresFeedRepository) UpdateFetchFailure(ctx context.Context, feedID string, maxFailures int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET last_fetched_at = NOW(),
		    fetch_failures = fetch_failures + 1,
		    health_status = CASE WHEN fetch_failures + 1 >= $2
		                         THEN '`+HealthFailed+`' ELSE health_status END,
		    updated_at = NOW()
		WHERE id = $1
	`, feedID, maxFailures)
	if err != nil {
		return fmt.Errorf("failed to update fetch failure: %w", err)
	}
	return nil
}

// UpdateEffectiveRate rewrites the tier-derived rate together with the slot
// offset recomputed for the new interval
func (r *PostgresFeedRepository) UpdateEffectiveRate(ctx context.Context, feedID string, rateSeconds int, slotOffsetMs int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET refresh_rate_seconds = $2, slot_offset_ms = $3, updated_at = NOW()
		WHERE id = $1
	`, feedID, rateSeconds, slotOffsetMs)
	if err != nil {
		return fmt.Errorf("failed to update effective rate: %w", err)
	}
	return nil
}

// GetFeedsMissingSlotOffset returns a batch of feeds awaiting backfill
func (r *PostgresFeedRepository) GetFeedsMissingSlotOffset(ctx context.Context, limit int) ([]Feed, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE slot_offset_ms IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds missing slot offset: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// UpdateSlotOffset persists a backfilled slot offset
func (r *PostgresFeedRepository) UpdateSlotOffset(ctx context.Context, feedID string, slotOffsetMs int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET slot_offset_ms = $2, updated_at = NOW()
		WHERE id = $1
	`, feedID, slotOffsetMs)
	if err != nil {
		return fmt.Errorf("failed to update slot offset: %w", err)
	}
	return nil
}

// GetFeedCount returns the total number of feeds
func (r *PostgresFeedRepository) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

// GetActiveFeedCount returns the count of enabled, healthy feeds
func (r *PostgresFeedRepository) GetActiveFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM feeds
		WHERE disabled_code IS NULL AND health_status <> '`+HealthFailed+`'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get active feed count: %w", err)
	}
	return count, nil
}

func collectFeeds(rows *sql.Rows) ([]Feed, error) {
	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return feeds, nil
}
