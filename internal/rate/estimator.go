// Package rate turns a series of remaining-work readings into a smoothed
// throughput and an estimated completion time. The estimator is a two-point
// linear fit over a sliding window: deliberately simple, so it stays
// predictable under a constantly-moving window and noisy count reads.
package rate

import (
	"fmt"
	"time"
)

// Retention bounds the history window. Samples older than this relative to
// the newest sample never influence the estimate.
const Retention = 6 * time.Hour

// Result is the derived throughput and ETA for one sample. Recomputed on
// every observation, never persisted.
type Result struct {
	// PerHour is the rate of decrease of remaining work, in records/hour.
	// Zero when the rate is unknown, stalled, or regressing.
	PerHour float64 `json:"per_hour"`
	// ETA is the estimated time until remaining work reaches zero. Only
	// meaningful when Known is true.
	ETA   time.Duration `json:"eta_seconds"`
	Known bool          `json:"known"`
}

// String renders the throughput for display, "n/a" when unknown.
func (r Result) String() string {
	if !r.Known || r.PerHour <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f/hour", r.PerHour)
}

// ETAString renders the ETA as a coarse duration, "unknown" when no
// meaningful estimate exists.
func (r Result) ETAString() string {
	if !r.Known {
		return "unknown"
	}
	return FormatDuration(r.ETA)
}

type point struct {
	ts        time.Time
	remaining int64
}

// Estimator maintains a bounded time-windowed history of remaining-work
// readings. Not safe for concurrent use: it is owned by the single poll
// worker goroutine.
type Estimator struct {
	history []point
	last    Result
}

// NewEstimator returns an estimator with an empty history.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Reset clears all history. Called at the start of every session.
func (e *Estimator) Reset() {
	e.history = nil
	e.last = Result{}
}

// Len returns the number of retained samples.
func (e *Estimator) Len() int {
	return len(e.history)
}

// Current returns the most recently computed result without observing a new
// sample.
func (e *Estimator) Current() Result {
	return e.last
}

// Observe appends a sample and recomputes throughput and ETA over the
// retained window. Samples whose timestamp does not advance past the newest
// retained entry are ignored rather than appended, so history stays ordered
// and unique even across a clock step backwards.
func (e *Estimator) Observe(ts time.Time, remaining int64) Result {
	if n := len(e.history); n > 0 && !ts.After(e.history[n-1].ts) {
		e.last = e.compute(remaining)
		return e.last
	}
	e.history = append(e.history, point{ts: ts, remaining: remaining})
	e.evict(ts)
	e.last = e.compute(remaining)
	return e.last
}

// evict drops entries older than Retention relative to the newest sample.
func (e *Estimator) evict(newest time.Time) {
	cutoff := newest.Add(-Retention)
	i := 0
	for i < len(e.history) && e.history[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		e.history = append(e.history[:0], e.history[i:]...)
	}
}

func (e *Estimator) compute(remaining int64) Result {
	if len(e.history) < 2 {
		return Result{}
	}

	oldest := e.history[0]
	newest := e.history[len(e.history)-1]

	deltaWork := oldest.remaining - newest.remaining
	deltaTime := newest.ts.Sub(oldest.ts)
	if deltaWork <= 0 || deltaTime <= 0 {
		// Work increased, stalled, or the clock misbehaved. Never report a
		// negative or infinite rate.
		return Result{}
	}

	perHour := float64(deltaWork) * 3600.0 / deltaTime.Seconds()
	if perHour <= 0 {
		return Result{}
	}

	etaSeconds := float64(remaining) / perHour * 3600.0
	return Result{
		PerHour: perHour,
		ETA:     time.Duration(etaSeconds * float64(time.Second)),
		Known:   true,
	}
}

// FormatDuration renders a duration as the largest two non-zero units of
// days, hours, and minutes ("2d 4h", "3h 12m", "5m"). Sub-minute precision
// is never shown; estimates at that timescale are not meaningful.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int64(d.Seconds())
	days := sec / 86400
	hours := (sec % 86400) / 3600
	minutes := (sec % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
