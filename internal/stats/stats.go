package stats

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Counts holds the raw aggregate counters read from the store. Values come
// from five independent count queries, so they are not a transactional view
// of the table.
type Counts struct {
	V1Remaining int64
	V2Done      int64
	Queued      int64
	Processing  int64
	Errors      int64
}

// HasNegative reports whether any counter is negative. A count query can
// never legitimately return a negative value, so a negative counter means
// the store violated an invariant and the sample should be treated as
// suspect.
func (c Counts) HasNegative() bool {
	return c.V1Remaining < 0 || c.V2Done < 0 || c.Queued < 0 ||
		c.Processing < 0 || c.Errors < 0
}

// Clamped returns a copy with every counter floored at zero.
func (c Counts) Clamped() Counts {
	return Counts{
		V1Remaining: clamp(c.V1Remaining),
		V2Done:      clamp(c.V2Done),
		Queued:      clamp(c.Queued),
		Processing:  clamp(c.Processing),
		Errors:      clamp(c.Errors),
	}
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// Snapshot is one point-in-time read of the migration counters. Immutable
// after creation.
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	V1Remaining     int64     `json:"v1_remaining"`
	V2Done          int64     `json:"v2_done"`
	Queued          int64     `json:"queued"`
	Processing      int64     `json:"processing"`
	Errors          int64     `json:"errors"`
	ProgressPercent float64   `json:"progress_percent"`
}

// New builds a Snapshot from clamped counters and computes the progress
// percentage. Callers that need to detect negative raw counts must check
// Counts.HasNegative before calling.
func New(ts time.Time, c Counts) Snapshot {
	c = c.Clamped()
	return Snapshot{
		Timestamp:       ts,
		V1Remaining:     c.V1Remaining,
		V2Done:          c.V2Done,
		Queued:          c.Queued,
		Processing:      c.Processing,
		Errors:          c.Errors,
		ProgressPercent: Progress(c.V1Remaining, c.V2Done),
	}
}

// Progress returns the migration completion percentage in [0,100]. A zero
// total means there is nothing left to migrate, so progress is vacuously
// complete.
func Progress(v1Remaining, v2Done int64) float64 {
	total := v1Remaining + v2Done
	if total == 0 {
		return 100.0
	}
	return float64(v2Done) / float64(total) * 100.0
}

// FormatCount renders a counter for display with thousands separators.
func FormatCount(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Comma(n)
}
