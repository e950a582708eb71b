package promrecorder

import (
	"github.com/prometheus/client_golang/prometheus"
)

// KeySource reports how many keys a limiter is tracking.
type KeySource interface {
	TrackedKeys() int
}

// NewTrackedKeysGauge returns a gauge that samples src on every scrape.
// Tracked keys are never evicted, so this is the number to alert on.
func NewTrackedKeysGauge(namespace string, src KeySource) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_keys",
		Help:      "Number of distinct keys holding window state.",
	}, func() float64 {
		return float64(src.TrackedKeys())
	})
}
