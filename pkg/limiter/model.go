package limiter

import (
	"time"
)

type Namespace string

// Identity is a structured rate limit key: a logical grouping plus the
// identifier within it. DefaultKeyStrategy renders it as "namespace:key".
type Identity struct {
	Namespace Namespace
	Key       string
}

func (id Identity) String() string {
	return string(id.Namespace) + ":" + id.Key
}

// Decision is the outcome of a single TryConsume call.
type Decision struct {
	Allowed bool
	// Remaining is the quota left in the current window after this call.
	// It is always 0 when the call was blocked.
	Remaining int
	// RetryAt is the end of the window the caller is blocked in. Zero when allowed.
	RetryAt     time.Time
	Limit       int
	WindowStart time.Time
}

// RetryAfter returns how long a blocked caller should wait, measured from now.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.RetryAt.IsZero() {
		return 0
	}
	wait := d.RetryAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

type RateLimiter interface {
	TryConsume(key string) (Decision, error)
}
