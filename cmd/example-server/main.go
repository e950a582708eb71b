package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/manenim/window-limiter/internal/config"
	"github.com/manenim/window-limiter/pkg/httplimit"
	"github.com/manenim/window-limiter/pkg/limiter"
	"github.com/manenim/window-limiter/pkg/metrics/otelrecorder"
	"github.com/manenim/window-limiter/pkg/metrics/promrecorder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	recorder, closeFn, err := initRecorder(cfg.Metrics, registry, logger)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer closeFn()

	limitCfg, err := limiter.NewConfig(cfg.RateLimiter.MaxRequests, cfg.RateLimiter.Window)
	if err != nil {
		return err
	}
	l, err := limiter.New(limitCfg,
		limiter.WithRecorder(recorder),
		limiter.WithLogger(logger),
		limiter.WithShards(cfg.RateLimiter.Shards),
	)
	if err != nil {
		return err
	}
	registry.MustRegister(promrecorder.NewTrackedKeysGauge(cfg.Metrics.Namespace, l))

	trusted, err := httplimit.ParsePrefixes(cfg.RateLimiter.TrustedProxies)
	if err != nil {
		return err
	}
	keyFn := httplimit.TrustedClientIP(trusted...)
	if cfg.RateLimiter.KeyHeader != "" {
		keyFn = httplimit.HeaderKey(cfg.RateLimiter.KeyHeader, keyFn)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Group(func(r chi.Router) {
		r.Use(httplimit.New(l,
			httplimit.WithKeyFunc(keyFn),
			httplimit.WithLogger(logger),
			httplimit.WithClock(limitCfg.Clock()),
		))
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("Pong!\n"))
		})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.String("addr", srv.Addr),
			slog.Int("max_requests", limitCfg.MaxRequests()),
			slog.Duration("window", limitCfg.Window()),
			slog.String("metrics_backend", cfg.Metrics.Backend),
		)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

func initRecorder(cfg config.MetricsConfig, registry *prometheus.Registry, logger *slog.Logger) (limiter.MetricsRecorder, func(), error) {
	switch cfg.Backend {
	case "prometheus":
		rec := promrecorder.NewRecorder(registry,
			promrecorder.WithNamespace(cfg.Namespace),
			promrecorder.WithLogger(logger),
		)
		return rec, func() {}, nil
	case "otel":
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry), otelprom.WithNamespace(cfg.Namespace))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		rec, err := otelrecorder.NewRecorder(provider.Meter("github.com/manenim/window-limiter"))
		if err != nil {
			return nil, nil, err
		}
		return rec, func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Warn("failed to shut down meter provider", slog.Any("error", err))
			}
		}, nil
	default:
		return &limiter.NoOpMetricsRecorder{}, func() {}, nil
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
