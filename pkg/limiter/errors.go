package limiter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid rate limit config")
	// ErrNilConfig is returned by New when given a Config that was not built by NewConfig.
	ErrNilConfig = errors.New("rate limit config is required")
	// ErrInvalidKey is returned when a rate limit key is empty or cannot be derived.
	ErrInvalidKey = errors.New("invalid rate limit key")
)

// ConfigError describes a rejected configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
