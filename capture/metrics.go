package capture

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the capture session.
type Metrics struct {
	Registry               *prometheus.Registry
	SnapshotsTotal         prometheus.Counter
	DuplicateInsertsTotal  prometheus.Counter
	ScrollStepsTotal       *prometheus.CounterVec
	ReadinessTimeoutsTotal prometheus.Counter
	AdvanceAttemptsTotal   prometheus.Counter
	PagesTotal             *prometheus.CounterVec
	InterventionsTotal     prometheus.Counter
	StalledSnapshotsTotal  prometheus.Counter
	ErrorsTotal            *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	snapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_snapshots_total",
		Help: "Total snapshots persisted by the session.",
	})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_duplicate_inserts_total",
		Help: "Total snapshot inserts ignored because the key already existed.",
	})
	scrollSteps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_scroll_steps_total",
			Help: "Total scroll steps issued, by strategy mode.",
		},
		[]string{"mode"},
	)
	readinessTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_readiness_timeouts_total",
		Help: "Total readiness checks that timed out (soft signal).",
	})
	advanceAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_advance_attempts_total",
		Help: "Total page-advance attempts including retries.",
	})
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_pages_total",
			Help: "Total pages processed, by phase.",
		},
		[]string{"phase"},
	)
	interventions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_interventions_total",
		Help: "Total manual interventions requested from the operator.",
	})
	stalled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_stalled_snapshots_total",
		Help: "Total snapshots whose markup repeated a recent scroll window.",
	})
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_errors_total",
			Help: "Total capture errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(snapshots, duplicates, scrollSteps, readinessTimeouts,
		advanceAttempts, pages, interventions, stalled, errorsTotal)

	return &Metrics{
		Registry:               registry,
		SnapshotsTotal:         snapshots,
		DuplicateInsertsTotal:  duplicates,
		ScrollStepsTotal:       scrollSteps,
		ReadinessTimeoutsTotal: readinessTimeouts,
		AdvanceAttemptsTotal:   advanceAttempts,
		PagesTotal:             pages,
		InterventionsTotal:     interventions,
		StalledSnapshotsTotal:  stalled,
		ErrorsTotal:            errorsTotal,
	}
}

// IncSnapshot increments the persisted snapshot counter.
func (m *Metrics) IncSnapshot() {
	if m == nil {
		return
	}
	m.SnapshotsTotal.Inc()
}

// IncDuplicate increments the ignored duplicate insert counter.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicateInsertsTotal.Inc()
}

// IncScrollStep increments the scroll step counter for a strategy mode.
func (m *Metrics) IncScrollStep(mode string) {
	if m == nil {
		return
	}
	m.ScrollStepsTotal.WithLabelValues(mode).Inc()
}

// IncReadinessTimeout increments the readiness timeout counter.
func (m *Metrics) IncReadinessTimeout() {
	if m == nil {
		return
	}
	m.ReadinessTimeoutsTotal.Inc()
}

// IncAdvanceAttempt increments the page-advance attempt counter.
func (m *Metrics) IncAdvanceAttempt() {
	if m == nil {
		return
	}
	m.AdvanceAttemptsTotal.Inc()
}

// IncPage increments the page counter for a phase label.
func (m *Metrics) IncPage(phase string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(phase).Inc()
}

// IncIntervention increments the manual intervention counter.
func (m *Metrics) IncIntervention() {
	if m == nil {
		return
	}
	m.InterventionsTotal.Inc()
}

// IncStalled increments the repeated-markup counter.
func (m *Metrics) IncStalled() {
	if m == nil {
		return
	}
	m.StalledSnapshotsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
