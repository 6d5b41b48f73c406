package scheduling

import (
	"fmt"
	"hash/fnv"
	"time"
)

// SlotWindow is the portion of a refresh interval covered by one scheduler
// tick. A feed is due when its slot offset falls inside the window. When the
// window extends past the end of the interval it wraps around to the start,
// and membership splits into two disjoint ranges.
type SlotWindow struct {
	WindowStartMs       int64
	WindowEndMs         int64
	WrapsAroundInterval bool
	RefreshRateMs       int64
}

// SlotOffsetMs computes the stable slot position of a feed within its
// refresh interval. The hash depends on both the URL and the interval, so
// feeds spread uniformly and a feed keeps its slot until its effective rate
// changes.
func SlotOffsetMs(feedURL string, refreshRateSeconds int) int64 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", feedURL, refreshRateSeconds)

	intervalMs := int64(refreshRateSeconds) * 1000
	return int64(h.Sum32()) % intervalMs
}

// CurrentWindow computes the slot window for the tick happening at now,
// for feeds refreshing at the given rate.
func CurrentWindow(now time.Time, refreshRateSeconds int, tickPeriod time.Duration) SlotWindow {
	rateMs := int64(refreshRateSeconds) * 1000
	startMs := now.UnixMilli() % rateMs
	endMs := startMs + tickPeriod.Milliseconds()

	return SlotWindow{
		WindowStartMs:       startMs,
		WindowEndMs:         endMs,
		WrapsAroundInterval: endMs > rateMs,
		RefreshRateMs:       rateMs,
	}
}

// Contains reports whether a slot offset falls inside the window. The
// in-memory check matches the SQL pushdown in the feed repository.
func (w SlotWindow) Contains(slotOffsetMs int64) bool {
	if w.WrapsAroundInterval {
		return (slotOffsetMs >= w.WindowStartMs && slotOffsetMs < w.RefreshRateMs) ||
			(slotOffsetMs >= 0 && slotOffsetMs < w.WindowEndMs-w.RefreshRateMs)
	}
	return slotOffsetMs >= w.WindowStartMs && slotOffsetMs < w.WindowEndMs
}
