package telemetry

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Maestro/internal/domain"
)

// Metrics — Prometheus метрики исполнения runs.
type Metrics struct {
	runTransitions *prometheus.CounterVec
	stepOutcomes   *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	successRate    *prometheus.GaugeVec

	tracker *SuccessTracker
}

// NewMetrics создаёт и регистрирует метрики.
// При nil reg используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		runTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "run_transitions_total",
			Help:      "Run status transitions by workflow and target status.",
		}, []string{"workflow_id", "to"}),
		stepOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "step_outcomes_total",
			Help:      "Step outcomes by workflow and outcome.",
		}, []string{"workflow_id", "outcome"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maestro",
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow_id"}),
		successRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "maestro",
			Name:      "run_success_rate",
			Help:      "Share of terminal runs that succeeded, per workflow.",
		}, []string{"workflow_id"}),
		tracker: NewSuccessTracker(),
	}
}

// Tracker возвращает success-rate агрегат.
func (m *Metrics) Tracker() *SuccessTracker {
	return m.tracker
}

// MetricsSink обновляет метрики по событиям переходов.
type MetricsSink struct {
	metrics *Metrics

	// Run, уходящий в rollback, проходит два терминальных статуса
	// (FAILED, затем ROLLED_BACK); в success-rate он учитывается
	// один раз.
	mu      sync.Mutex
	counted map[uuid.UUID]struct{}
}

// NewMetricsSink создаёт MetricsSink.
func NewMetricsSink(metrics *Metrics) *MetricsSink {
	return &MetricsSink{
		metrics: metrics,
		counted: make(map[uuid.UUID]struct{}),
	}
}

// Emit реализует Sink.
func (s *MetricsSink) Emit(_ context.Context, ev Event) {
	m := s.metrics

	if ev.IsStepEvent() {
		m.stepOutcomes.WithLabelValues(ev.WorkflowID, ev.To).Inc()
		return
	}

	m.runTransitions.WithLabelValues(ev.WorkflowID, ev.To).Inc()

	status := domain.RunStatus(ev.To)
	if !status.IsTerminal() {
		return
	}

	s.mu.Lock()
	_, seen := s.counted[ev.RunID]
	if !seen {
		s.counted[ev.RunID] = struct{}{}
	}
	s.mu.Unlock()
	if seen {
		return
	}

	m.tracker.Record(ev.WorkflowID, status)
	m.successRate.WithLabelValues(ev.WorkflowID).Set(m.tracker.Rate(ev.WorkflowID))
}

// ObserveStepDuration записывает длительность шага.
func (s *MetricsSink) ObserveStepDuration(workflowID string, seconds float64) {
	s.metrics.stepDuration.WithLabelValues(workflowID).Observe(seconds)
}

// SuccessTracker считает скользящий success-rate по workflow.
//
// Rate = доля SUCCEEDED среди всех терминальных исходов.
type SuccessTracker struct {
	mu       sync.RWMutex
	terminal map[string]int
	succeed  map[string]int
}

// NewSuccessTracker создаёт SuccessTracker.
func NewSuccessTracker() *SuccessTracker {
	return &SuccessTracker{
		terminal: make(map[string]int),
		succeed:  make(map[string]int),
	}
}

// Record учитывает терминальный исход run.
// Нетерминальные статусы игнорируются.
func (t *SuccessTracker) Record(workflowID string, status domain.RunStatus) {
	if !status.IsTerminal() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.terminal[workflowID]++
	if status == domain.RunStatusSucceeded {
		t.succeed[workflowID]++
	}
}

// Rate возвращает success-rate workflow в диапазоне [0, 1].
// Для workflow без терминальных runs возвращается 0.
func (t *SuccessTracker) Rate(workflowID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := t.terminal[workflowID]
	if total == 0 {
		return 0
	}
	return float64(t.succeed[workflowID]) / float64(total)
}

// Totals возвращает (терминальных, успешных) runs workflow.
func (t *SuccessTracker) Totals(workflowID string) (terminal, succeeded int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.terminal[workflowID], t.succeed[workflowID]
}
