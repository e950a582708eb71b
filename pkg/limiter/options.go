package limiter

import (
	"io"
	"log/slog"
	"math"
)

// Option configures a Limiter built by New.
type Option func(*Limiter)

// WithRecorder injects a metrics backend. A nil recorder is ignored.
func WithRecorder(r MetricsRecorder) Option {
	return func(l *Limiter) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithLogger sets the logger used for debug output. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithShards sets the number of Window Store shards, rounded up to a power
// of two. Values below 1 keep the default.
func WithShards(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.shards = n
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}
