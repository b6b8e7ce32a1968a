package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the gateway's operational counters. All metrics register
// with the default Prometheus registry; create at most one instance per
// process. A nil *Metrics is a valid no-op receiver so components can run
// without metrics in tests.
type Metrics struct {
	// MessageCounter counts inbound messages by kind (text|voice|photo|command).
	MessageCounter *prometheus.CounterVec

	// RunCounter counts agent runs by outcome (success|aborted|error).
	RunCounter *prometheus.CounterVec

	// RunDuration measures run wall time in seconds.
	RunDuration prometheus.Histogram

	// ActiveRuns tracks currently streaming runs.
	ActiveRuns prometheus.Gauge

	// GatekeeperDecisions counts capability decisions by tool class and outcome.
	// Labels: class (unrestricted|integration|read|write|shell|unknown),
	// outcome (allow|deny)
	GatekeeperDecisions *prometheus.CounterVec

	// TranscriptionCounter counts voice transcriptions by status (success|error).
	TranscriptionCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all gateway metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		MessageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltbook_messages_total",
				Help: "Inbound messages by kind",
			},
			[]string{"kind"},
		),
		RunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltbook_runs_total",
				Help: "Agent runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moltbook_run_duration_seconds",
				Help:    "Agent run wall time in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "moltbook_active_runs",
				Help: "Number of runs currently streaming",
			},
		),
		GatekeeperDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltbook_gatekeeper_decisions_total",
				Help: "Capability decisions by tool class and outcome",
			},
			[]string{"class", "outcome"},
		),
		TranscriptionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltbook_transcriptions_total",
				Help: "Voice transcriptions by status",
			},
			[]string{"status"},
		),
	}
}

// RecordMessage increments the inbound message counter.
func (m *Metrics) RecordMessage(kind string) {
	if m == nil {
		return
	}
	m.MessageCounter.WithLabelValues(kind).Inc()
}

// RecordRun records a finished run with its outcome and duration in seconds.
func (m *Metrics) RecordRun(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RunCounter.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(seconds)
}

// RunStarted increments the active-run gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunEnded decrements the active-run gauge.
func (m *Metrics) RunEnded() {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
}

// RecordDecision counts one gatekeeper decision.
func (m *Metrics) RecordDecision(class string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.GatekeeperDecisions.WithLabelValues(class, outcome).Inc()
}

// RecordTranscription counts one transcription attempt.
func (m *Metrics) RecordTranscription(ok bool) {
	if m == nil {
		return
	}
	status := "error"
	if ok {
		status = "success"
	}
	m.TranscriptionCounter.WithLabelValues(status).Inc()
}
