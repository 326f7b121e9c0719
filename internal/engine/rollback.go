package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Maestro/internal/action"
	"github.com/shaiso/Maestro/internal/domain"
)

// RollbackOutcome — итог компенсационного прохода.
type RollbackOutcome string

const (
	// RollbackFull — все компенсации выполнены успешно.
	RollbackFull RollbackOutcome = "FULL"
	// RollbackPartial — часть компенсаций провалилась.
	RollbackPartial RollbackOutcome = "PARTIAL"
	// RollbackNone — компенсировать было нечего.
	RollbackNone RollbackOutcome = "NONE"
)

// CompensationFailure — провал одной компенсации.
type CompensationFailure struct {
	StepID string `json:"step_id"`
	Error  string `json:"error"`
}

// RollbackReport — отчёт о компенсационном проходе.
type RollbackReport struct {
	Outcome     RollbackOutcome       `json:"outcome"`
	Compensated []string              `json:"compensated,omitempty"`
	Failed      []CompensationFailure `json:"failed,omitempty"`
	DurationMs  int64                 `json:"duration_ms"`
}

// RollbackCoordinator откатывает завершённые шаги run.
//
// Шаги компенсируются строго в порядке, обратном порядку их
// завершения. Провал одной компенсации не останавливает проход:
// остальные шаги всё равно компенсируются (best-effort).
type RollbackCoordinator struct {
	registry *action.Registry
	logger   *slog.Logger
}

// NewRollbackCoordinator создаёт RollbackCoordinator.
func NewRollbackCoordinator(registry *action.Registry, logger *slog.Logger) *RollbackCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RollbackCoordinator{registry: registry, logger: logger}
}

// Rollback компенсирует завершённые шаги run в обратном порядке.
//
// Пропущенные guard-ом шаги и шаги без компенсации не участвуют.
// Каждая компенсация получает view контекста, каким он был на момент
// запуска отката.
func (c *RollbackCoordinator) Rollback(ctx context.Context, def *domain.WorkflowDefinition, run *domain.Run) RollbackReport {
	start := time.Now()
	report := RollbackReport{Outcome: RollbackNone}
	view := NewScope(run.Context).View()

	for i := len(run.CompletedStepIDs) - 1; i >= 0; i-- {
		stepID := run.CompletedStepIDs[i]

		result := run.ResultFor(stepID)
		if result != nil && result.Outcome == domain.StepSkipped {
			continue
		}

		step := def.FindStep(stepID)
		if step == nil || step.Compensation == "" {
			continue
		}

		if err := c.compensate(ctx, step, view); err != nil {
			c.logger.Error("compensation failed",
				"run_id", run.ID,
				"step_id", stepID,
				"compensation", step.Compensation,
				"error", err,
			)
			report.Failed = append(report.Failed, CompensationFailure{
				StepID: stepID,
				Error:  err.Error(),
			})
			continue
		}

		c.logger.Info("step compensated",
			"run_id", run.ID,
			"step_id", stepID,
			"compensation", step.Compensation,
		)
		report.Compensated = append(report.Compensated, stepID)
	}

	switch {
	case len(report.Failed) > 0:
		report.Outcome = RollbackPartial
	case len(report.Compensated) > 0:
		report.Outcome = RollbackFull
	}
	report.DurationMs = time.Since(start).Milliseconds()
	return report
}

// compensate выполняет одну компенсацию.
func (c *RollbackCoordinator) compensate(ctx context.Context, step *domain.StepDescriptor, view map[string]any) error {
	act, err := c.registry.Resolve(step.Compensation)
	if err != nil {
		return err
	}

	if comp, ok := act.(action.Compensator); ok {
		return comp.Compensate(ctx, view)
	}
	// Обычный action в роли компенсации: исполняем, дельту игнорируем.
	_, err = act.Execute(ctx, view)
	return err
}
