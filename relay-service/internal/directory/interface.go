package directory

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/domain"
)

var (
	// ErrUserNotFound is returned by Get for unknown ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUser is returned by Upsert for an empty id.
	ErrInvalidUser = errors.New("invalid user")
)

// Directory is the presence store the relay consults on announce.
// Implementations must be safe for concurrent use.
type Directory interface {
	// Upsert creates the record or refreshes its display name and LastSeenAt.
	Upsert(ctx context.Context, id, displayName string) (*domain.UserRecord, error)

	// Get returns a single record, or ErrUserNotFound.
	Get(ctx context.Context, id string) (*domain.UserRecord, error)

	// ActiveSince returns every user seen within window of now.
	ActiveSince(ctx context.Context, window time.Duration) ([]*domain.UserRecord, error)

	// Close releases backing resources.
	Close() error
}

// Option configures a directory backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
