package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	t.Run("zero total is vacuously complete", func(t *testing.T) {
		assert.Equal(t, 100.0, Progress(0, 0))
	})

	t.Run("all work remaining is zero percent", func(t *testing.T) {
		assert.Equal(t, 0.0, Progress(1000, 0))
	})

	t.Run("all work done is one hundred percent", func(t *testing.T) {
		assert.Equal(t, 100.0, Progress(0, 1000))
	})

	t.Run("halfway", func(t *testing.T) {
		assert.InDelta(t, 50.0, Progress(500, 500), 0.0001)
	})

	t.Run("stays within bounds", func(t *testing.T) {
		cases := []struct{ v1, v2 int64 }{
			{0, 0}, {1, 0}, {0, 1}, {1, 1},
			{123456789, 987654321}, {1, 999999999},
		}
		for _, c := range cases {
			p := Progress(c.v1, c.v2)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 100.0)
			if c.v1 == 0 && c.v2 == 0 {
				assert.Equal(t, 100.0, p)
			} else {
				assert.Equal(t, p == 100.0, c.v1 == 0)
			}
		}
	})
}

func TestCounts_HasNegative(t *testing.T) {
	t.Run("all non-negative", func(t *testing.T) {
		c := Counts{V1Remaining: 1, V2Done: 2, Queued: 0}
		assert.False(t, c.HasNegative())
	})

	t.Run("detects any negative field", func(t *testing.T) {
		assert.True(t, Counts{V1Remaining: -1}.HasNegative())
		assert.True(t, Counts{Errors: -5}.HasNegative())
	})
}

func TestCounts_Clamped(t *testing.T) {
	c := Counts{V1Remaining: -3, V2Done: 7, Queued: -1, Processing: 2, Errors: -9}
	got := c.Clamped()
	assert.Equal(t, Counts{V1Remaining: 0, V2Done: 7, Queued: 0, Processing: 2, Errors: 0}, got)
}

func TestNew(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("computes progress", func(t *testing.T) {
		snap := New(ts, Counts{V1Remaining: 250, V2Done: 750})
		assert.Equal(t, ts, snap.Timestamp)
		assert.InDelta(t, 75.0, snap.ProgressPercent, 0.0001)
	})

	t.Run("clamps negative counters", func(t *testing.T) {
		snap := New(ts, Counts{V1Remaining: -10, V2Done: 100})
		assert.Equal(t, int64(0), snap.V1Remaining)
		assert.Equal(t, 100.0, snap.ProgressPercent)
	})
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "1,234,567", FormatCount(1234567))
	assert.Equal(t, "0", FormatCount(-42))
}
