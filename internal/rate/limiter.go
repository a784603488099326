package rate

import (
	"context"
	"errors"
	"time"

	"github.com/TSavo/authcore/internal/kv"
)

// ErrLimited is returned alongside a disallowed Result so callers can use
// errors.Is at HTTP boundaries.
var ErrLimited = errors.New("rate limited")

// Profile is a tunable limit for one operation.
type Profile struct {
	Limit  int
	Window time.Duration
}

// Result carries what a caller needs to build standard rate-limit response
// headers.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time

	// FailedOpen is set when the store was unreachable and the request was
	// allowed by policy rather than by count.
	FailedOpen bool
}

// Limiter counts requests in fixed windows. Safe for concurrent use.
type Limiter struct {
	store *kv.Store
}

func New(store *kv.Store) *Limiter {
	return &Limiter{store: store}
}

// Check atomically increments the counter for (operation, clientID) and
// compares it to the profile. The increment-and-compare is a single store
// operation, never a read-then-write pair.
//
// A store failure returns an allowed Result with FailedOpen set, together
// with the wrapped error so the caller can log it.
func (l *Limiter) Check(ctx context.Context, operation, clientID string, profile Profile) (Result, error) {
	key := l.store.Key("rate", operation, clientID)

	count, err := l.store.IncrWindow(ctx, key, profile.Window)
	if err != nil {
		return Result{
			Allowed:    true,
			Limit:      profile.Limit,
			Remaining:  0,
			FailedOpen: true,
		}, err
	}

	ttl, err := l.store.TTL(ctx, key)
	if err != nil {
		// The count went through; only the header data is degraded.
		ttl = profile.Window
	}

	remaining := profile.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:   count <= int64(profile.Limit),
		Limit:     profile.Limit,
		Remaining: remaining,
		Reset:     time.Now().Add(ttl),
	}
	if !result.Allowed {
		result.RetryAfter = ttl
	}

	return result, nil
}

// Reset clears the window for (operation, clientID). Used by tests and
// administrative unblocks; normal operation lets windows expire.
func (l *Limiter) Reset(ctx context.Context, operation, clientID string) error {
	return l.store.Del(ctx, l.store.Key("rate", operation, clientID))
}
