package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics records saga lifecycle and transport outcomes.
type SagaMetrics struct {
	started      *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	invocations  *prometheus.CounterVec
	outboxSent   *prometheus.CounterVec
	outboxFailed *prometheus.CounterVec
}

// NewSagaMetrics registers the saga metrics on the provided registerer.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		return &SagaMetrics{}
	}
	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_started_total",
		Help: "Sagas created by the coordinator.",
	}, []string{"flow"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_transitions_total",
		Help: "Saga status transitions.",
	}, []string{"flow", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_duration_seconds",
		Help:    "Time from saga creation to a terminal status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"flow", "status"})
	invocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_invocations_total",
		Help: "Participant invocation attempts by transport and outcome.",
	}, []string{"participant", "transport", "outcome"})
	outboxSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox messages relayed to the broker.",
	}, []string{"topic"})
	outboxFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed.",
	}, []string{"topic"})
	reg.MustRegister(started, transitions, duration, invocations, outboxSent, outboxFailed)
	return &SagaMetrics{
		started:      started,
		transitions:  transitions,
		duration:     duration,
		invocations:  invocations,
		outboxSent:   outboxSent,
		outboxFailed: outboxFailed,
	}
}

func (m *SagaMetrics) IncStarted(flow string) {
	if m == nil || m.started == nil {
		return
	}
	m.started.WithLabelValues(normalizeLabel(flow)).Inc()
}

// ObserveTransition counts a status change and, for terminal statuses, the
// elapsed saga lifetime.
func (m *SagaMetrics) ObserveTransition(flow, status string, terminal bool, elapsed time.Duration) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(flow), normalizeLabel(status)).Inc()
	if terminal && m.duration != nil {
		m.duration.WithLabelValues(normalizeLabel(flow), normalizeLabel(status)).Observe(elapsed.Seconds())
	}
}

func (m *SagaMetrics) IncInvocation(participant, transport, outcome string) {
	if m == nil || m.invocations == nil {
		return
	}
	m.invocations.WithLabelValues(normalizeLabel(participant), normalizeLabel(transport), normalizeLabel(outcome)).Inc()
}

func (m *SagaMetrics) IncOutboxPublished(topic string) {
	if m == nil || m.outboxSent == nil {
		return
	}
	m.outboxSent.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *SagaMetrics) IncOutboxFailed(topic string) {
	if m == nil || m.outboxFailed == nil {
		return
	}
	m.outboxFailed.WithLabelValues(normalizeLabel(topic)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
