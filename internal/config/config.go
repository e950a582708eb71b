// Package config loads the example server's settings from a .env file,
// environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/manenim/window-limiter/pkg/httplimit"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RateLimiterConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	// KeyHeader, when set, keys requests by this header before falling back
	// to the client IP.
	KeyHeader string `yaml:"key_header"`
	// TrustedProxies lists the CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means key on the peer address.
	TrustedProxies []string `yaml:"trusted_proxies"`
	Shards         int      `yaml:"shards"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Backend is "prometheus", "otel" or "none".
	Backend   string `yaml:"backend"`
	Namespace string `yaml:"namespace"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			MaxRequests: 10,
			Window:      time.Second,
			Shards:      64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Backend:   "prometheus",
			Namespace: "window_limiter",
		},
	}
}

// Load builds the configuration in three layers: defaults, then the YAML file
// named by RATE_LIMIT_CONFIG_FILE (if any), then environment variables. A
// .env file in the working directory is loaded into the environment first.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path := getEnv("RATE_LIMIT_CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.RateLimiter.KeyHeader = getEnv("RATE_LIMIT_KEY_HEADER", cfg.RateLimiter.KeyHeader)
	if v := getEnv("RATE_LIMIT_TRUSTED_PROXIES", ""); v != "" {
		cfg.RateLimiter.TrustedProxies = strings.Split(v, ",")
	}
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Backend = getEnv("METRICS_BACKEND", cfg.Metrics.Backend)
	cfg.Metrics.Namespace = getEnv("METRICS_NAMESPACE", cfg.Metrics.Namespace)

	if v := getEnv("RATE_LIMIT_MAX_REQUESTS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_MAX_REQUESTS: %w", err)
		}
		cfg.RateLimiter.MaxRequests = n
	}
	if v := getEnv("RATE_LIMIT_WINDOW", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
		}
		cfg.RateLimiter.Window = d
	}
	if v := getEnv("RATE_LIMIT_SHARDS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_SHARDS: %w", err)
		}
		cfg.RateLimiter.Shards = n
	}
	if v := getEnv("SERVER_SHUTDOWN_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}
	return nil
}

// Validate checks the fields the server cannot start without. Limiter bounds
// are checked again by limiter.NewConfig.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.RateLimiter.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate limiter max_requests must be > 0, got %d", c.RateLimiter.MaxRequests))
	}
	if c.RateLimiter.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate limiter window must be positive, got %s", c.RateLimiter.Window))
	}
	if _, err := httplimit.ParsePrefixes(c.RateLimiter.TrustedProxies); err != nil {
		errs = append(errs, err)
	}
	switch c.Metrics.Backend {
	case "prometheus", "otel", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported metrics backend: %q", c.Metrics.Backend))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", levelStr)
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
