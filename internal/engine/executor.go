package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Maestro/internal/action"
	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/guard"
)

// StepExecutor исполняет один листовой шаг: guard, попытки, таймауты.
type StepExecutor struct {
	registry *action.Registry
	guards   *guard.Evaluator
	logger   *slog.Logger

	// sleep подменяется в тестах, чтобы не ждать реальные backoff-паузы.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewStepExecutor создаёт StepExecutor.
func NewStepExecutor(registry *action.Registry, guards *guard.Evaluator, logger *slog.Logger) *StepExecutor {
	if guards == nil {
		guards = guard.NewEvaluator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StepExecutor{
		registry: registry,
		guards:   guards,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Execute исполняет шаг против текущего scope и возвращает результат.
//
// Возможные исходы:
//   - guard вернул false → StepSkipped, дельта пустая
//   - action завершился успешно (возможно не с первой попытки) → StepSucceeded
//   - все попытки исчерпаны либо ошибка невосстановимая → StepFailed
//
// Ошибка возвращается только при отмене контекста: провал шага —
// штатный исход, он закодирован в StepResult.
func (e *StepExecutor) Execute(ctx context.Context, step *domain.StepDescriptor, scope *Scope) (domain.StepResult, error) {
	start := time.Now()
	result := domain.StepResult{StepID: step.ID}

	// Guard проверяется один раз, до первой попытки.
	if step.Guard != "" {
		pass, err := e.guards.Evaluate(step.Guard, scope.View())
		if err != nil {
			// Ошибка вычисления guard не ретраится: предикат
			// детерминирован относительно контекста.
			result.Outcome = domain.StepFailed
			result.Error = fmt.Sprintf("guard evaluation failed: %v", err)
			result.DurationMs = time.Since(start).Milliseconds()
			return result, nil
		}
		if !pass {
			e.logger.Debug("step skipped by guard", "step_id", step.ID)
			result.Outcome = domain.StepSkipped
			result.DurationMs = time.Since(start).Milliseconds()
			return result, nil
		}
	}

	act, err := e.registry.Resolve(step.ActionRef)
	if err != nil {
		result.Outcome = domain.StepFailed
		result.Error = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	maxAttempts := step.Retry.Attempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		delta, attemptErr := e.runAttempt(ctx, act, step, scope.View())
		if attemptErr == nil {
			result.Outcome = domain.StepSucceeded
			result.Delta = delta
			result.DurationMs = time.Since(start).Milliseconds()
			return result, nil
		}
		lastErr = attemptErr

		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		e.logger.Warn("step attempt failed",
			"step_id", step.ID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", attemptErr,
		)

		if attempt < maxAttempts {
			if err := e.sleep(ctx, step.Retry.Delay(attempt)); err != nil {
				return result, err
			}
		}
	}

	result.Outcome = domain.StepFailed
	result.Error = lastErr.Error()
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// runAttempt выполняет одну попытку action с таймаутом, если он задан.
func (e *StepExecutor) runAttempt(ctx context.Context, act action.Action, step *domain.StepDescriptor, view map[string]any) (map[string]any, error) {
	if step.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	delta, err := act.Execute(ctx, view)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %dms: %v", ErrStepTimeout, step.TimeoutMs, err)
		}
		return nil, err
	}
	return delta, nil
}

// sleepCtx ждёт d либо отмену контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
