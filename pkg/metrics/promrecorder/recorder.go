package promrecorder

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/manenim/window-limiter/pkg/limiter"
)

var help = map[string]string{
	limiter.MetricCall:    "Total number of rate limit decisions, by result.",
	limiter.MetricLatency: "Time spent deciding a single rate limit call.",
}

// Recorder is a limiter.MetricsRecorder backed by Prometheus collectors.
type Recorder struct {
	reg       prometheus.Registerer
	namespace string
	buckets   []float64
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

var _ limiter.MetricsRecorder = (*Recorder)(nil)

type Option func(*Recorder)

func WithNamespace(ns string) Option {
	return func(r *Recorder) { r.namespace = ns }
}

// WithBuckets overrides the histogram buckets (default: 1µs to ~16ms).
func WithBuckets(b []float64) Option {
	return func(r *Recorder) {
		if len(b) > 0 {
			r.buckets = b
		}
	}
}

// WithLogger sets where registration and label errors are reported.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder returns a Recorder registering on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewRecorder(reg prometheus.Registerer, opts ...Option) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		reg:        reg,
		namespace:  "window_limiter",
		buckets:    prometheus.ExponentialBuckets(0.000001, 2, 15),
		logger:     slog.Default(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Add(name string, value float64, tags map[string]string) {
	vec, err := r.counter(name, labelNames(tags))
	if err != nil {
		r.logger.Error("prometheus counter unavailable", slog.String("metric", name), slog.Any("error", err))
		return
	}
	c, err := vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		r.logger.Error("prometheus counter labels rejected", slog.String("metric", name), slog.Any("error", err))
		return
	}
	c.Add(value)
}

func (r *Recorder) Observe(name string, value float64, tags map[string]string) {
	vec, err := r.histogram(name, labelNames(tags))
	if err != nil {
		r.logger.Error("prometheus histogram unavailable", slog.String("metric", name), slog.Any("error", err))
		return
	}
	h, err := vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		r.logger.Error("prometheus histogram labels rejected", slog.String("metric", name), slog.Any("error", err))
		return
	}
	h.Observe(value)
}

func (r *Recorder) counter(name string, labels []string) (*prometheus.CounterVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.counters[name]; ok {
		return vec, nil
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      sanitize(name) + "_total",
		Help:      helpFor(name),
	}, labels)
	if err := r.reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.counters[name] = vec
	return vec, nil
}

func (r *Recorder) histogram(name string, labels []string) (*prometheus.HistogramVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.histograms[name]; ok {
		return vec, nil
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      sanitize(name) + "_seconds",
		Help:      helpFor(name),
		Buckets:   r.buckets,
	}, labels)
	if err := r.reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.histograms[name] = vec
	return vec, nil
}

func labelNames(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return "Rate limiter metric " + name + "."
}
