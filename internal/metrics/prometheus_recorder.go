package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "timetabled"

// PrometheusRecorder exports timetable state as Prometheus metrics.
//
// It implements timetable.MetricsRecorder and timetable.DropRecorder. A nil
// *PrometheusRecorder is valid and records nothing.
type PrometheusRecorder struct {
	registry       *prom.Registry
	state          *prom.GaugeVec
	events         *prom.GaugeVec
	nextTransition *prom.GaugeVec
	updates        *prom.CounterVec
	changes        *prom.CounterVec
	dropped        *prom.CounterVec
}

// NewPrometheusRecorder creates the metrics and registers them, plus the Go
// and process collectors, on reg. A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		state: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "timetable_state",
			Help:      "Current timetable state (1 on, 0 off)",
		}, []string{"timetable"}),
		events: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "timetable_events",
			Help:      "Number of transition events in the timetable",
		}, []string{"timetable"}),
		nextTransition: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "timetable_next_transition_timestamp_seconds",
			Help:      "Unix time of the next scheduled transition",
		}, []string{"timetable"}),
		updates: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_updates_total",
			Help:      "State updates published, by cause",
		}, []string{"cause"}),
		changes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "State updates that changed the state, by timetable",
		}, []string{"timetable"}),
		dropped: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_updates_dropped_total",
			Help:      "State updates dropped because the notify queue was full",
		}, []string{"timetable"}),
	}
	reg.MustRegister(pr.state, pr.events, pr.nextTransition, pr.updates, pr.changes, pr.dropped)
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) SetState(id string, on bool, events int) {
	if p == nil {
		return
	}
	v := 0.0
	if on {
		v = 1
	}
	p.state.WithLabelValues(id).Set(v)
	p.events.WithLabelValues(id).Set(float64(events))
}

// SetNextTransition records the next transition; nil means none is armed.
func (p *PrometheusRecorder) SetNextTransition(id string, next *time.Time) {
	if p == nil {
		return
	}
	if next == nil {
		p.nextTransition.DeleteLabelValues(id)
		return
	}
	p.nextTransition.WithLabelValues(id).Set(float64(next.Unix()))
}

func (p *PrometheusRecorder) RecordUpdate(id, cause string, changed bool) {
	if p == nil {
		return
	}
	p.updates.WithLabelValues(cause).Inc()
	if changed {
		p.changes.WithLabelValues(id).Inc()
	}
}

func (p *PrometheusRecorder) RecordDropped(id string) {
	if p == nil {
		return
	}
	p.dropped.WithLabelValues(id).Inc()
}

// Forget removes the per-timetable series of a deleted timetable.
func (p *PrometheusRecorder) Forget(id string) {
	if p == nil {
		return
	}
	p.state.DeleteLabelValues(id)
	p.events.DeleteLabelValues(id)
	p.nextTransition.DeleteLabelValues(id)
	p.changes.DeleteLabelValues(id)
	p.dropped.DeleteLabelValues(id)
}
