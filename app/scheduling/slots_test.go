package scheduling

import (
	"testing"
	"time"
)

func TestSlotOffsetMs_Deterministic(t *testing.T) {
	a := SlotOffsetMs("https://example.com/feed.xml", 600)
	b := SlotOffsetMs("https://example.com/feed.xml", 600)

	if a != b {
		t.Errorf("same inputs must hash to the same offset: %d != %d", a, b)
	}
}

func TestSlotOffsetMs_InRange(t *testing.T) {
	urls := []string{
		"https://example.com/feed.xml",
		"https://news.ycombinator.com/rss",
		"https://reddit.com/r/golang/.rss",
		"",
	}
	rates := []int{60, 120, 600, 3600}

	for _, url := range urls {
		for _, rate := range rates {
			offset := SlotOffsetMs(url, rate)
			intervalMs := int64(rate) * 1000
			if offset < 0 || offset >= intervalMs {
				t.Errorf("offset %d out of [0, %d) for url=%q rate=%d", offset, intervalMs, url, rate)
			}
		}
	}
}

func TestSlotOffsetMs_DependsOnInterval(t *testing.T) {
	a := SlotOffsetMs("https://example.com/feed.xml", 600)
	b := SlotOffsetMs("https://example.com/feed.xml", 1200)

	// Not guaranteed in general, but these inputs differ; a change of
	// interval must be able to move the slot.
	if a == b {
		t.Logf("offsets coincide for different intervals (allowed but rare): %d", a)
	}
}

func TestCurrentWindow_NoWrap(t *testing.T) {
	// 600s interval, tick at 100s into the cycle, 60s window.
	now := time.UnixMilli(100_000)
	w := CurrentWindow(now, 600, time.Minute)

	if w.WindowStartMs != 100_000 || w.WindowEndMs != 160_000 {
		t.Errorf("unexpected window [%d, %d)", w.WindowStartMs, w.WindowEndMs)
	}
	if w.WrapsAroundInterval {
		t.Error("window entirely inside the interval must not wrap")
	}
	if !w.Contains(100_000) || !w.Contains(159_999) {
		t.Error("boundary offsets inside the window must be contained")
	}
	if w.Contains(99_999) || w.Contains(160_000) {
		t.Error("offsets outside the window must not be contained")
	}
}

func TestCurrentWindow_Wraparound(t *testing.T) {
	// 120s interval, tick at 90s into the cycle, 60s window: wraps into
	// the [0, 30s) range of the next cycle.
	now := time.UnixMilli(120_000*4 + 90_000)
	w := CurrentWindow(now, 120, time.Minute)

	if !w.WrapsAroundInterval {
		t.Fatal("window extending past the interval end must wrap")
	}
	if !w.Contains(90_000) || !w.Contains(119_999) {
		t.Error("tail of the interval must be contained")
	}
	if !w.Contains(0) || !w.Contains(29_999) {
		t.Error("wrapped head of the interval must be contained")
	}
	if w.Contains(30_000) || w.Contains(89_999) {
		t.Error("offsets between the ranges must not be contained")
	}
}

// Over one full interval's worth of ticks, every slot offset is selected in
// exactly one tick: no gaps, no double selection at boundaries.
func TestWindow_PartitionsInterval(t *testing.T) {
	const rateSeconds = 600
	tick := time.Minute
	ticks := rateSeconds * 1000 / int(tick.Milliseconds())

	offsets := []int64{
		0, 1, 59_999, 60_000, 123_456,
		SlotOffsetMs("https://example.com/a.xml", rateSeconds),
		SlotOffsetMs("https://example.com/b.xml", rateSeconds),
		599_999,
	}

	for _, offset := range offsets {
		selected := 0
		for i := 0; i < ticks; i++ {
			now := time.UnixMilli(int64(i) * tick.Milliseconds())
			w := CurrentWindow(now, rateSeconds, tick)
			if w.Contains(offset) {
				selected++
			}
		}
		if selected != 1 {
			t.Errorf("offset %d selected %d times over one cycle, want exactly 1", offset, selected)
		}
	}
}

// Same property with misaligned tick start times, where windows wrap.
func TestWindow_PartitionsIntervalWithWrap(t *testing.T) {
	const rateSeconds = 150 // not a multiple of the tick period
	tick := time.Minute

	offsets := []int64{0, 1, 74_999, 75_000, 149_999}

	// 5 consecutive ticks cover exactly two 150s cycles.
	for _, offset := range offsets {
		selected := 0
		for i := 0; i < 5; i++ {
			now := time.UnixMilli(int64(i) * tick.Milliseconds())
			w := CurrentWindow(now, rateSeconds, tick)
			if w.Contains(offset) {
				selected++
			}
		}
		if selected != 2 {
			t.Errorf("offset %d selected %d times over two cycles, want exactly 2", offset, selected)
		}
	}
}
