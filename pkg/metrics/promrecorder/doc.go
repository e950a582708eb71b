// Package promrecorder adapts limiter.MetricsRecorder to Prometheus.
//
// Every counter name passed to Add becomes a CounterVec and every name passed
// to Observe becomes a HistogramVec, created on first use and registered on the
// Registerer supplied to NewRecorder. Dots in names are replaced with
// underscores; counters get a "_total" suffix and histograms a "_seconds"
// suffix, since the limiter reports latencies in seconds. Tag keys become
// label names and must stay the same for a given metric name.
package promrecorder
