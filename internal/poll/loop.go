// Package poll runs the sampling session: one worker goroutine probes the
// store on a fixed cadence, runs each reading through the rate estimator,
// and publishes the result on a bounded event channel. The consumer drains
// that channel on its own cadence and can never block the worker.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/migwatch/internal/probe"
	"github.com/FairForge/migwatch/internal/rate"
	"github.com/FairForge/migwatch/internal/stats"
)

// State of the poll loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Event types.
const (
	EventSample = "sample"
	EventError  = "error"
)

// Event is one item published to the consumer: either a successful sample
// with its derived rate, or a probe failure.
type Event struct {
	Type     string
	Snapshot stats.Snapshot
	Rate     rate.Result
	Message  string
	At       time.Time
}

// ErrAlreadyRunning is returned when Start is called on an active session.
var ErrAlreadyRunning = errors.New("poll: session already running")

// Recorder receives per-poll observations. Implemented by the metrics
// collector; a nil Recorder disables recording.
type Recorder interface {
	ObserveSample(stats.Snapshot, rate.Result)
	ObserveProbeError(kind string)
	ObserveDroppedEvent()
}

// Config configures a Loop.
type Config struct {
	Interval    time.Duration
	EventBuffer int
}

// Validate checks configuration.
func (c *Config) Validate() error {
	if c.Interval < time.Second {
		return errors.New("poll: interval must be at least one second")
	}
	return nil
}

// ApplyDefaults fills in default values.
func (c *Config) ApplyDefaults() {
	if c.EventBuffer == 0 {
		c.EventBuffer = 64
	}
}

// Loop owns one polling session at a time. History, estimator state, and
// in-flight probe state live exclusively on the worker goroutine; the only
// thing that crosses to the consumer is the event channel.
type Loop struct {
	config   Config
	prober   probe.Prober
	est      *rate.Estimator
	logger   *zap.Logger
	recorder Recorder

	events chan Event

	mu        sync.Mutex
	state     State
	sessionID uuid.UUID
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewLoop creates a loop. The event channel is created once and survives
// across sessions, so a consumer can keep ranging over Events() through
// stop/start cycles.
func NewLoop(cfg Config, prober probe.Prober, recorder Recorder, logger *zap.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	return &Loop{
		config:   cfg,
		prober:   prober,
		est:      rate.NewEstimator(),
		logger:   logger,
		recorder: recorder,
		events:   make(chan Event, cfg.EventBuffer),
		state:    StateIdle,
	}, nil
}

// Events returns the channel the consumer drains. Events are dropped, not
// blocked on, when the consumer falls behind.
func (l *Loop) Events() <-chan Event {
	return l.events
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start begins a session: resets history and spawns the worker. Starting
// while a session is active is rejected with ErrAlreadyRunning so two
// workers can never poll concurrently.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateIdle {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.state = StateRunning
	l.sessionID = uuid.New()
	l.cancel = cancel
	l.done = make(chan struct{})
	l.est.Reset()

	l.logger.Info("poll session started",
		zap.String("session", l.sessionID.String()),
		zap.Duration("interval", l.config.Interval))

	go l.run(ctx, l.done)
	return nil
}

// Stop ends the session. It cancels any in-flight probe and the pending
// inter-poll wait, then blocks until the worker has exited. Calling Stop on
// an idle loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return
	}
	l.state = StateStopping
	cancel, done, session := l.cancel, l.done, l.sessionID
	l.mu.Unlock()

	cancel()
	<-done

	l.mu.Lock()
	l.state = StateIdle
	l.mu.Unlock()

	l.logger.Info("poll session stopped", zap.String("session", session.String()))
}

// run is the worker body: probe, estimate, publish, wait. It exits only
// when the session context is cancelled.
func (l *Loop) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		l.pollOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.config.Interval):
		}
	}
}

func (l *Loop) pollOnce(ctx context.Context) {
	counts, err := l.prober.Counts(ctx)
	now := time.Now()

	if err != nil {
		if ctx.Err() != nil {
			// Session is shutting down; the cancellation is not a probe
			// failure worth reporting.
			return
		}
		kind := probe.KindQuery
		var perr *probe.Error
		if errors.As(err, &perr) {
			kind = perr.Kind
		}
		l.logger.Warn("probe failed",
			zap.String("session", l.sessionID.String()),
			zap.String("kind", kind),
			zap.Error(err))
		if l.recorder != nil {
			l.recorder.ObserveProbeError(kind)
		}
		l.emit(Event{Type: EventError, Message: err.Error(), At: now})
		return
	}

	snap := stats.New(now, counts)

	var res rate.Result
	if counts.HasNegative() {
		// A count query can never be negative; the store broke an
		// invariant. Display the clamped values but keep the sample out of
		// the rate history.
		l.logger.Warn("negative counter from store, sample excluded from rate history",
			zap.String("session", l.sessionID.String()),
			zap.Int64("v1_remaining", counts.V1Remaining),
			zap.Int64("v2_done", counts.V2Done))
		res = l.est.Current()
	} else {
		res = l.est.Observe(snap.Timestamp, snap.V1Remaining)
	}

	if l.recorder != nil {
		l.recorder.ObserveSample(snap, res)
	}
	l.emit(Event{Type: EventSample, Snapshot: snap, Rate: res, At: now})
}

// emit publishes without ever blocking the worker. A full channel means the
// consumer fell behind; the event is dropped and counted.
func (l *Loop) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
		if l.recorder != nil {
			l.recorder.ObserveDroppedEvent()
		}
		l.logger.Debug("event dropped, consumer behind",
			zap.String("type", ev.Type))
	}
}
