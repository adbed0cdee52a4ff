// Package probe reads the migration's aggregate counters from the record
// store. A probe is a single shot: it either produces a full set of counters
// or a classified error, and it never retries internally. Continuation
// policy belongs to the poll loop.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/FairForge/migwatch/internal/stats"
)

// Error kinds.
const (
	KindConnectivity = "connectivity"
	KindTimeout      = "timeout"
	KindQuery        = "query"
)

// Error is a classified probe failure. The poll loop reports it on the event
// channel and keeps polling.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify wraps an underlying failure with a probe error kind.
func Classify(err error) *Error {
	kind := KindQuery
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.As(err, &netErr):
		kind = KindConnectivity
	}
	return &Error{Kind: kind, Err: err}
}

// Prober reads one set of migration counters from the store.
type Prober interface {
	Counts(ctx context.Context) (stats.Counts, error)
}
