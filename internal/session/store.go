package session

import (
	"context"
	"time"
)

// StateStore tracks issued flow states server-side so they are single-use:
// a state consumed once cannot authorize a second completion, even inside
// its cookie lifetime.
type StateStore interface {
	Put(ctx context.Context, state string, ttl time.Duration) error

	// Consume atomically removes the state & reports whether it was present.
	Consume(ctx context.Context, state string) (bool, error)
}
