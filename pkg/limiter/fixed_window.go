package limiter

import (
	"context"
	"log/slog"
	"time"
)

// Limiter is an in-process fixed-window rate limiter.
//
// Windows are aligned to the Unix epoch, so every key shares the same window
// boundaries at any instant. It is safe for concurrent use by multiple
// goroutines; calls for the same key are serialized on that key's lock and
// calls for different keys never wait on each other's lock. State is local to
// the process and is never evicted.
type Limiter struct {
	cfg      Config
	store    *windowStore
	recorder MetricsRecorder
	logger   *slog.Logger
	shards   int
}

var _ RateLimiter = (*Limiter)(nil)

// New constructs a Limiter for cfg. cfg must come from NewConfig.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if cfg.isZero() {
		return nil, ErrNilConfig
	}

	l := &Limiter{
		cfg:      cfg,
		recorder: &NoOpMetricsRecorder{},
		logger:   discardLogger(),
		shards:   defaultShards,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.store = newWindowStore(l.shards)

	l.logger.Debug("fixed window limiter created",
		slog.Int("max_requests", cfg.maxRequests),
		slog.Duration("window", cfg.window),
		slog.Int("shards", len(l.store.shards)),
	)
	return l, nil
}

// TryConsume consumes one unit of quota for key in the current window.
// A blocked request is reported through Decision, not as an error; the only
// error is ErrInvalidKey for an empty key, in which case no state is touched.
func (l *Limiter) TryConsume(key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrInvalidKey
	}
	start := time.Now()

	windowMs := l.cfg.windowMillis()
	now := l.cfg.clock.Now().UnixMilli()
	current := alignWindow(now, windowMs)

	st := l.store.getOrCreate(key, current)

	st.mu.Lock()
	if st.windowStart != current {
		st.windowStart = current
		st.count = 0
	}

	var dec Decision
	if st.count < l.cfg.maxRequests {
		st.count++
		dec = Decision{
			Allowed:     true,
			Remaining:   l.cfg.maxRequests - st.count,
			Limit:       l.cfg.maxRequests,
			WindowStart: time.UnixMilli(st.windowStart).UTC(),
		}
	} else {
		dec = Decision{
			Allowed:     false,
			Remaining:   0,
			RetryAt:     time.UnixMilli(st.windowStart + windowMs).UTC(),
			Limit:       l.cfg.maxRequests,
			WindowStart: time.UnixMilli(st.windowStart).UTC(),
		}
	}
	st.mu.Unlock()

	l.record(key, dec, time.Since(start))
	return dec, nil
}

// TrackedKeys reports how many distinct keys currently hold window state.
func (l *Limiter) TrackedKeys() int {
	return l.store.len()
}

// Config returns the policy the limiter was built with.
func (l *Limiter) Config() Config {
	return l.cfg
}

func (l *Limiter) record(key string, dec Decision, elapsed time.Duration) {
	if dec.Allowed {
		l.recorder.Add(MetricCall, 1, allowedTags)
	} else {
		l.recorder.Add(MetricCall, 1, blockedTags)
		if l.logger.Enabled(context.Background(), slog.LevelDebug) {
			l.logger.Debug("rate limit exceeded",
				slog.String("key", key),
				slog.Time("retry_at", dec.RetryAt),
			)
		}
	}
	l.recorder.Observe(MetricLatency, elapsed.Seconds(), nil)
}

// alignWindow floors now to the start of its window. Go's % keeps the sign of
// the dividend, so instants before the epoch are shifted down one window.
func alignWindow(now, windowMs int64) int64 {
	rem := now % windowMs
	if rem < 0 {
		rem += windowMs
	}
	return now - rem
}
