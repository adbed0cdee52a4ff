package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/migwatch/internal/poll"
	"github.com/FairForge/migwatch/internal/rate"
	"github.com/FairForge/migwatch/internal/stats"
)

type stubProber struct{}

func (stubProber) Counts(context.Context) (stats.Counts, error) {
	return stats.Counts{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	loop, err := poll.NewLoop(poll.Config{Interval: time.Hour}, stubProber{}, nil, zap.NewNop())
	require.NoError(t, err)
	return NewServer(":0", loop, nil, zap.NewNop())
}

func getStatus(t *testing.T, s *Server) StatusResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServer_Status(t *testing.T) {
	t.Run("before any sample", func(t *testing.T) {
		s := newTestServer(t)
		resp := getStatus(t, s)
		assert.Equal(t, StatusStopped, resp.Status)
		assert.False(t, resp.HasSample)
		assert.Equal(t, "unknown", resp.ETA)
		assert.Equal(t, "n/a", resp.Rate)
	})

	t.Run("after a sample", func(t *testing.T) {
		s := newTestServer(t)
		at := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
		s.apply(poll.Event{
			Type:     poll.EventSample,
			Snapshot: stats.New(at, stats.Counts{V1Remaining: 1200, V2Done: 8800, Queued: 3}),
			Rate:     rate.Result{PerHour: 150, ETA: 8 * time.Hour, Known: true},
			At:       at,
		})

		resp := getStatus(t, s)
		assert.True(t, resp.HasSample)
		assert.Equal(t, int64(1200), resp.V1Remaining)
		assert.Equal(t, "1,200", resp.V1Display)
		assert.InDelta(t, 88.0, resp.Progress, 0.0001)
		assert.Equal(t, "88.00%", resp.ProgressDisplay)
		assert.Equal(t, "150.00/hour", resp.Rate)
		assert.Equal(t, "8h 0m", resp.ETA)
		assert.Equal(t, "2026-08-01T09:30:00Z", resp.LastUpdate)
		assert.Empty(t, resp.LastError)
	})

	t.Run("error keeps last known good sample", func(t *testing.T) {
		s := newTestServer(t)
		at := time.Now()
		s.apply(poll.Event{
			Type:     poll.EventSample,
			Snapshot: stats.New(at, stats.Counts{V1Remaining: 500, V2Done: 500}),
			At:       at,
		})
		s.apply(poll.Event{Type: poll.EventError, Message: "probe: timeout: dial tcp", At: at})

		resp := getStatus(t, s)
		assert.Equal(t, int64(500), resp.V1Remaining)
		assert.Equal(t, "probe: timeout: dial tcp", resp.LastError)
		assert.NotEmpty(t, resp.LastErrorAt)
	})

	t.Run("next good sample clears the error indicator", func(t *testing.T) {
		s := newTestServer(t)
		at := time.Now()
		s.apply(poll.Event{Type: poll.EventError, Message: "boom", At: at})
		s.apply(poll.Event{
			Type:     poll.EventSample,
			Snapshot: stats.New(at, stats.Counts{V2Done: 10}),
			At:       at,
		})
		resp := getStatus(t, s)
		assert.Empty(t, resp.LastError)
	})

	t.Run("reflects running session", func(t *testing.T) {
		loop, err := poll.NewLoop(poll.Config{Interval: time.Hour}, stubProber{}, nil, zap.NewNop())
		require.NoError(t, err)
		s := NewServer(":0", loop, nil, zap.NewNop())

		require.NoError(t, loop.Start())
		defer loop.Stop()

		resp := getStatus(t, s)
		assert.Equal(t, StatusRunning, resp.Status)
		assert.True(t, resp.SessionRunning)
	})
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServer_Consume(t *testing.T) {
	s := newTestServer(t)
	events := make(chan poll.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Consume(ctx, events)
		close(done)
	}()

	at := time.Now()
	events <- poll.Event{
		Type:     poll.EventSample,
		Snapshot: stats.New(at, stats.Counts{V1Remaining: 42}),
		At:       at,
	}

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.snapshot.V1Remaining == 42
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consume did not exit on cancel")
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "0.00%", formatPercent(-5))
	assert.Equal(t, "42.50%", formatPercent(42.5))
	assert.Equal(t, "100.00%", formatPercent(120))
}
