package database

import (
	"context"
	"time"

	"github.com/feedrelay/feedrelay/app/scheduling"
)

type FeedRepository interface {
	GetFeed(ctx context.Context, feedID string) (*Feed, error)
	GetAllFeeds(ctx context.Context) ([]Feed, error)
	GetFeedCount(ctx context.Context) (int, error)
	GetActiveFeedCount(ctx context.Context) (int, error)

	// GetDueFeeds selects the feeds due in the current tick: enabled, healthy,
	// matching the target effective rate, with at least one enabled
	// destination, whose slot offset falls in the window (or is not yet
	// backfilled).
	GetDueFeeds(ctx context.Context, rateSeconds int, window scheduling.SlotWindow) ([]Feed, error)

	// GetEffectiveRates returns the distinct effective refresh rates of all
	// enabled feeds, so user-overridden rates get tick coverage too.
	GetEffectiveRates(ctx context.Context) ([]int, error)

	GetDestinations(ctx context.Context, feedID string) ([]Destination, error)

	UpdateFetchSuccess(ctx context.Context, feedID string) error
	UpdateFetchFailure(ctx context.Context, feedID string, maxFailures int) error

	// UpdateEffectiveRate rewrites the tier-derived rate and the slot offset
	// together, keeping the offset consistent with the interval it was hashed
	// for.
	UpdateEffectiveRate(ctx context.Context, feedID string, rateSeconds int, slotOffsetMs int64) error

	GetFeedsMissingSlotOffset(ctx context.Context, limit int) ([]Feed, error)
	UpdateSlotOffset(ctx context.Context, feedID string, slotOffsetMs int64) error
}

type ArticleRepository interface {
	// GetRecordedKeys returns every stored dedup key for a feed.
	GetRecordedKeys(ctx context.Context, feedID string) (map[string]struct{}, error)

	// HasRecords reports whether a feed has any stored keys at all. A feed
	// without records is on its first fetch: record, don't deliver.
	HasRecords(ctx context.Context, feedID string) (bool, error)

	RecordKeys(ctx context.Context, feedID, idType string, keys []string) error

	DeleteRecordsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	GetRecordCount(ctx context.Context) (int, error)
}
