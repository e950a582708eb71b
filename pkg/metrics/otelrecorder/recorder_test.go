package otelrecorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/manenim/window-limiter/pkg/limiter"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecorder_ExportsLimiterMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	rec, err := NewRecorder(provider.Meter("window-limiter"))
	require.NoError(t, err)

	clk := limiter.NewManualClock(time.UnixMilli(1_700_000_000_000))
	cfg, err := limiter.NewConfig(1, time.Second, limiter.WithClock(clk))
	require.NoError(t, err)
	l, err := limiter.New(cfg, limiter.WithRecorder(rec))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.TryConsume("user_1")
		require.NoError(t, err)
	}
	require.NoError(t, rec.Err())

	metrics := collect(t, reader)

	calls, ok := metrics[limiter.MetricCall].Data.(metricdata.Sum[float64])
	require.True(t, ok, "expected %s to be a float64 sum", limiter.MetricCall)

	byResult := make(map[string]float64)
	for _, dp := range calls.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("result"))
		byResult[v.AsString()] = dp.Value
	}
	assert.Equal(t, 1.0, byResult["allowed"])
	assert.Equal(t, 2.0, byResult["blocked"])

	latency, ok := metrics[limiter.MetricLatency].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected %s to be a float64 histogram", limiter.MetricLatency)
	require.Len(t, latency.DataPoints, 1)
	assert.Equal(t, uint64(3), latency.DataPoints[0].Count)
	assert.Equal(t, "s", metrics[limiter.MetricLatency].Unit)
}

func TestNewRecorder_NilMeter(t *testing.T) {
	_, err := NewRecorder(nil)
	assert.True(t, errors.Is(err, ErrNilMeter))
}
