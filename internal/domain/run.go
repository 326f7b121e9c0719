package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition — попытка перехода по несуществующему ребру
// конечного автомата run.
var ErrInvalidTransition = errors.New("invalid run status transition")

// Run — экземпляр выполнения workflow.
//
// Run создаётся триггером (cron, событие, ручной запуск), мутируется
// исключительно движком через checkpoint-переходы и, достигнув
// терминального статуса, хранится для аудита навсегда.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// WorkflowID — идентификатор definition.
	WorkflowID string `json:"workflow_id"`

	// WorkflowVersion — версия definition, которая выполняется.
	WorkflowVersion int `json:"workflow_version"`

	// InstanceKey — логический ключ экземпляра. Не более одного активного
	// run на пару (WorkflowID, InstanceKey).
	InstanceKey string `json:"instance_key,omitempty"`

	// Priority — приоритет в очереди запуска (больше — раньше).
	Priority int `json:"priority,omitempty"`

	// Status — текущий статус.
	Status RunStatus `json:"status"`

	// Context — накопленный контекст выполнения (общий, после merge).
	Context map[string]any `json:"context,omitempty"`

	// CompletedStepIDs — упорядоченный список завершённых шагов
	// (включая SKIPPED). Append-only при прямом проходе; при rollback
	// потребляется в строго обратном порядке.
	CompletedStepIDs []string `json:"completed_step_ids,omitempty"`

	// StepResults — неизменяемая история результатов шагов.
	StepResults []StepResult `json:"step_results,omitempty"`

	// Error — текст терминальной ошибки run.
	Error string `json:"error,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время достижения терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего checkpoint.
	UpdatedAt time.Time `json:"updated_at"`

	// StoreVersion — номер версии для optimistic locking.
	// Присваивается state store; 0 — ещё не сохранён.
	StoreVersion int64 `json:"-"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(workflowID string, version int) *Run {
	now := time.Now()
	return &Run{
		ID:              uuid.New(),
		WorkflowID:      workflowID,
		WorkflowVersion: version,
		Status:          RunStatusPending,
		Context:         make(map[string]any),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Transition переводит run в статус next, проверяя допустимость ребра.
func (r *Run) Transition(next RunStatus) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}

	now := time.Now()
	r.Status = next
	r.UpdatedAt = now

	switch next {
	case RunStatusRunning:
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
	case RunStatusSucceeded, RunStatusFailed, RunStatusRolledBack, RunStatusCancelled:
		r.FinishedAt = &now
	}
	return nil
}

// AppendCompleted добавляет шаг в список завершённых и записывает результат.
func (r *Run) AppendCompleted(result StepResult) {
	r.CompletedStepIDs = append(r.CompletedStepIDs, result.StepID)
	r.StepResults = append(r.StepResults, result)
	r.UpdatedAt = time.Now()
}

// RecordResult записывает результат шага без добавления в завершённые
// (для FAILED шагов: они не завершены и не компенсируются).
func (r *Run) RecordResult(result StepResult) {
	r.StepResults = append(r.StepResults, result)
	r.UpdatedAt = time.Now()
}

// IsCompleted проверяет, завершён ли шаг (успешно или пропуском).
func (r *Run) IsCompleted(stepID string) bool {
	for _, id := range r.CompletedStepIDs {
		if id == stepID {
			return true
		}
	}
	return false
}

// ResultFor возвращает последний результат шага или nil.
func (r *Run) ResultFor(stepID string) *StepResult {
	for i := len(r.StepResults) - 1; i >= 0; i-- {
		if r.StepResults[i].StepID == stepID {
			return &r.StepResults[i]
		}
	}
	return nil
}

// IsFinished возвращает true, если run в терминальном статусе.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// Clone возвращает глубокую копию run.
// Используется state store, чтобы вызывающие не делили память.
func (r *Run) Clone() *Run {
	cp := *r

	if r.Context != nil {
		cp.Context = make(map[string]any, len(r.Context))
		for k, v := range r.Context {
			cp.Context[k] = v
		}
	}

	if r.CompletedStepIDs != nil {
		cp.CompletedStepIDs = make([]string, len(r.CompletedStepIDs))
		copy(cp.CompletedStepIDs, r.CompletedStepIDs)
	}

	if r.StepResults != nil {
		cp.StepResults = make([]StepResult, len(r.StepResults))
		copy(cp.StepResults, r.StepResults)
		for i := range cp.StepResults {
			if delta := r.StepResults[i].Delta; delta != nil {
				d := make(map[string]any, len(delta))
				for k, v := range delta {
					d[k] = v
				}
				cp.StepResults[i].Delta = d
			}
		}
	}

	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}

	return &cp
}
