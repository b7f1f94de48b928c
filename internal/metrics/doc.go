// Package metrics exports timetabled's Prometheus metrics.
//
// PrometheusRecorder is fed by the timetable MetricsSink and by the
// notification dispatcher (dropped updates). Handler serves the registry
// at /api/v1/metrics.
package metrics
