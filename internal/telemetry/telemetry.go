// Package telemetry exposes the Prometheus series emitted by the capture
// pipeline. Every method is safe on a nil *Metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lifeos"

// Metrics holds the pipeline collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	CapturesIngested  prometheus.Counter
	CapturesTerminal  *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	StageFailures     *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	InferenceAttempts *prometheus.CounterVec
	Actions           *prometheus.CounterVec
	Enrichment        *prometheus.CounterVec
	StreamMessages    *prometheus.CounterVec
	StreamPending     *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegisterer(reg, reg)
}

// NewWithRegisterer registers the collectors on reg; g backs Handler.
func NewWithRegisterer(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: g,
		CapturesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "captures_ingested_total",
			Help: "Captures accepted at the ingestion boundary.",
		}),
		CapturesTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "captures_terminal_total",
			Help: "Captures reaching a terminal status.",
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stage_failures_total",
			Help: "Stage-fatal failures.",
		}, []string{"stage"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lookups_total",
			Help: "Fingerprint cache lookups by result.",
		}, []string{"result"}),
		InferenceAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "inference_attempts_total",
			Help: "Inference service attempts by outcome.",
		}, []string{"outcome"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "actions_total",
			Help: "Routed actions by type and status.",
		}, []string{"action", "status"}),
		Enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "enrichment_total",
			Help: "Enrichment agent runs by outcome.",
		}, []string{"agent", "outcome"}),
		StreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stream_messages_total",
			Help: "Stream messages by direction and event type.",
		}, []string{"direction", "event_type"}),
		StreamPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stream_pending_messages",
			Help: "Pending entries for a consumer group.",
		}, []string{"stream", "group"}),
	}
	reg.MustRegister(m.CapturesIngested, m.CapturesTerminal, m.StageDuration, m.StageFailures,
		m.CacheLookups, m.InferenceAttempts, m.Actions, m.Enrichment, m.StreamMessages, m.StreamPending)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Ingested() {
	if m == nil {
		return
	}
	m.CapturesIngested.Inc()
}

func (m *Metrics) Terminal(status string) {
	if m == nil {
		return
	}
	m.CapturesTerminal.WithLabelValues(status).Inc()
}

// ObserveStage records a stage duration and, when failed, a failure.
func (m *Metrics) ObserveStage(stage string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if failed {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// InferenceAttempt counts one attempt: ok, rate_limited or error.
func (m *Metrics) InferenceAttempt(outcome string) {
	if m == nil {
		return
	}
	m.InferenceAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Action(action, status string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(action, status).Inc()
}

// EnrichmentRun counts an agent run: ok, skipped or error.
func (m *Metrics) EnrichmentRun(agent, outcome string) {
	if m == nil {
		return
	}
	m.Enrichment.WithLabelValues(agent, outcome).Inc()
}

// StreamMessage counts a published or consumed envelope.
func (m *Metrics) StreamMessage(direction, eventType string) {
	if m == nil {
		return
	}
	m.StreamMessages.WithLabelValues(direction, eventType).Inc()
}

// Pending sets the pending-entry gauge for a consumer group.
func (m *Metrics) Pending(stream, group string, n int64) {
	if m == nil {
		return
	}
	m.StreamPending.WithLabelValues(stream, group).Set(float64(n))
}
