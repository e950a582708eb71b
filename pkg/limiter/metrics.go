package limiter

// Metric names emitted by Limiter.
const (
	MetricCall    = "ratelimit.call"
	MetricLatency = "ratelimit.latency"
)

// MetricsRecorder receives counters and observations from a Limiter.
// Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if l.recorder != nil' in our hot path.
type NoOpMetricsRecorder struct{}

func (n *NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

var (
	allowedTags = map[string]string{"result": "allowed"}
	blockedTags = map[string]string{"result": "blocked"}
)
