// Package otelrecorder adapts limiter.MetricsRecorder to an OpenTelemetry
// metric.Meter. Counters map to Float64Counter and observations to
// Float64Histogram with unit "s"; tags become attributes.
package otelrecorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/manenim/window-limiter/pkg/limiter"
)

var ErrNilMeter = errors.New("nil meter")

type Recorder struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	lastErr    error
}

var _ limiter.MetricsRecorder = (*Recorder)(nil)

func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	return &Recorder{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

func (r *Recorder) Add(name string, value float64, tags map[string]string) {
	c, err := r.counter(name)
	if err != nil {
		r.setErr(err)
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(attributes(tags)...))
}

func (r *Recorder) Observe(name string, value float64, tags map[string]string) {
	h, err := r.histogram(name)
	if err != nil {
		r.setErr(err)
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(attributes(tags)...))
}

// Err returns the last instrument creation error, if any. Add and Observe
// cannot return errors, so failures are kept here for inspection.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Recorder) counter(name string) (metric.Float64Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[name]; ok {
		return c, nil
	}
	c, err := r.meter.Float64Counter(name, metric.WithDescription("Rate limiter counter "+name+"."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", name, err)
	}
	r.counters[name] = c
	return c, nil
}

func (r *Recorder) histogram(name string) (metric.Float64Histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.histograms[name]; ok {
		return h, nil
	}
	h, err := r.meter.Float64Histogram(name,
		metric.WithDescription("Rate limiter timing "+name+"."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", name, err)
	}
	r.histograms[name] = h
	return h, nil
}

func (r *Recorder) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

func attributes(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, tags[k]))
	}
	return attrs
}
