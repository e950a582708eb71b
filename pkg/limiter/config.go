package limiter

import (
	"time"
)

// Config is the immutable policy shared by every key of a Limiter.
// Build it with NewConfig; the zero value is not usable.
type Config struct {
	maxRequests int
	window      time.Duration
	clock       Clock
}

// ConfigOption customizes a Config built by NewConfig.
type ConfigOption func(*Config) error

// WithClock overrides the time source (default: SystemClock).
func WithClock(c Clock) ConfigOption {
	return func(cfg *Config) error {
		if c == nil {
			return &ConfigError{Field: "clock", Message: "must not be nil"}
		}
		cfg.clock = c
		return nil
	}
}

// NewConfig validates and returns a Config allowing maxRequests units per
// window. Windows are tracked at millisecond resolution, so window must be a
// positive whole number of milliseconds.
func NewConfig(maxRequests int, window time.Duration, opts ...ConfigOption) (Config, error) {
	if maxRequests <= 0 {
		return Config{}, &ConfigError{Field: "maxRequests", Message: "must be > 0"}
	}
	if window <= 0 {
		return Config{}, &ConfigError{Field: "window", Message: "must be positive"}
	}
	if window%time.Millisecond != 0 {
		return Config{}, &ConfigError{Field: "window", Message: "must be a whole number of milliseconds"}
	}

	cfg := Config{
		maxRequests: maxRequests,
		window:      window,
		clock:       SystemClock(),
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// MaxRequests returns the number of units allowed per window.
func (c Config) MaxRequests() int { return c.maxRequests }

// Window returns the window length.
func (c Config) Window() time.Duration { return c.window }

// Clock returns the time source.
func (c Config) Clock() Clock { return c.clock }

func (c Config) isZero() bool { return c.clock == nil }

func (c Config) windowMillis() int64 { return c.window.Milliseconds() }
