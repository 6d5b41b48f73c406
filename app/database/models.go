package database

import (
	"time"
)

// Feed represents a feed record in the database
type Feed struct {
	ID                     string // Database UUID
	OwnerID                string
	URL                    string
	Title                  string
	RefreshRateSeconds     int    // Tier-derived rate, possibly overridden by an admin schedule
	UserRefreshRateSeconds *int   // User-requested slower rate, wins over RefreshRateSeconds
	SlotOffsetMs           *int64 // NULL = legacy feed, always eligible until backfilled
	DisabledCode           string
	HealthStatus           string
	FetchFailures          int
	LastFetchedAt          *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// EffectiveRateSeconds returns the refresh rate actually used for scheduling.
func (f *Feed) EffectiveRateSeconds() int {
	if f.UserRefreshRateSeconds != nil {
		return *f.UserRefreshRateSeconds
	}
	return f.RefreshRateSeconds
}

// Destination is a delivery target attached to a feed. Filters holds a
// JSON-encoded filter expression tree, or nil for no filtering.
type Destination struct {
	ID        string
	FeedID    string
	Kind      string
	Endpoint  string
	Filters   []byte
	Enabled   bool
	CreatedAt time.Time
}

// Feed health states
const (
	HealthOK     = "ok"
	HealthFailed = "failed"
)
