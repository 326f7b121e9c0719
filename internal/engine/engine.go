package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Maestro/internal/action"
	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/guard"
	"github.com/shaiso/Maestro/internal/store"
	"github.com/shaiso/Maestro/internal/telemetry"
)

// Default configuration values.
const (
	defaultConflictRetries = 3
)

// Engine исполняет workflow runs.
type Engine struct {
	runs        store.RunStore
	definitions store.DefinitionStore

	registry *action.Registry
	guards   *guard.Evaluator

	executor  *StepExecutor
	rollbacks *RollbackCoordinator
	validator *Validator

	sink   telemetry.Sink
	logger *slog.Logger

	// Active runs — исполняемые в этом процессе runs (runID → cancel)
	active map[uuid.UUID]context.CancelFunc
	mu     sync.RWMutex

	conflictRetries   int
	continueOnFailure bool
}

// Config — конфигурация Engine.
type Config struct {
	Runs        store.RunStore
	Definitions store.DefinitionStore
	Registry    *action.Registry

	// Guards — опциональный общий evaluator (default: новый).
	Guards *guard.Evaluator

	// Sink получает события переходов (default: NopSink).
	Sink telemetry.Sink

	// ConflictRetries — число повторов Save при конфликте версий (default: 3).
	ConflictRetries int

	// ContinueOnFailure — исполнять оставшиеся шаги последовательной
	// композиции после провала (default: false, остановка на первом).
	ContinueOnFailure bool

	Logger *slog.Logger
}

// New создаёт Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	guards := cfg.Guards
	if guards == nil {
		guards = guard.NewEvaluator()
	}

	sink := cfg.Sink
	if sink == nil {
		sink = telemetry.NopSink{}
	}

	conflictRetries := cfg.ConflictRetries
	if conflictRetries <= 0 {
		conflictRetries = defaultConflictRetries
	}

	return &Engine{
		runs:              cfg.Runs,
		definitions:       cfg.Definitions,
		registry:          cfg.Registry,
		guards:            guards,
		executor:          NewStepExecutor(cfg.Registry, guards, logger),
		rollbacks:         NewRollbackCoordinator(cfg.Registry, logger),
		validator:         NewValidator(cfg.Registry, guards),
		sink:              sink,
		logger:            logger,
		active:            make(map[uuid.UUID]context.CancelFunc),
		conflictRetries:   conflictRetries,
		continueOnFailure: cfg.ContinueOnFailure,
	}
}

// PublishDefinition валидирует и публикует определение workflow.
// Версии неизменяемы: повторная публикация той же версии — ошибка.
func (e *Engine) PublishDefinition(ctx context.Context, def *domain.WorkflowDefinition) error {
	if err := e.validator.Validate(def); err != nil {
		return err
	}
	if err := e.definitions.Put(ctx, def); err != nil {
		return fmt.Errorf("put definition: %w", err)
	}
	e.logger.Info("workflow definition published", "workflow_id", def.ID, "version", def.Version)
	return nil
}

// CreateRunParams — параметры создания run.
type CreateRunParams struct {
	WorkflowID string
	// Version — версия определения (0 = последняя опубликованная).
	Version     int
	InstanceKey string
	Priority    int
	Inputs      map[string]any
}

// CreateRun создаёт run в статусе PENDING.
//
// Run привязывается к конкретной версии определения в момент создания:
// последующие публикации workflow его не затрагивают. При непустом
// InstanceKey и уже активном run для той же пары возвращается
// ErrRunAlreadyActive.
func (e *Engine) CreateRun(ctx context.Context, params CreateRunParams) (*domain.Run, error) {
	var def *domain.WorkflowDefinition
	var err error
	if params.Version > 0 {
		def, err = e.definitions.Get(ctx, params.WorkflowID, params.Version)
	} else {
		def, err = e.definitions.Latest(ctx, params.WorkflowID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("load definition: %w", err)
	}

	if params.InstanceKey != "" {
		existing, err := e.runs.ActiveRun(ctx, params.WorkflowID, params.InstanceKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check active run: %w", err)
		}
		if existing != nil {
			return nil, ErrRunAlreadyActive
		}
	}

	run := domain.NewRun(def.ID, def.Version)
	run.InstanceKey = params.InstanceKey
	run.Priority = params.Priority
	if params.Inputs != nil {
		run.Context = NewScope(params.Inputs).Snapshot()
	}

	if err := e.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	e.emit(ctx, run, "", "", string(domain.RunStatusPending), "run created")
	e.logger.Info("run created",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"workflow_version", run.WorkflowVersion,
		"priority", run.Priority,
	)
	return run, nil
}

// ExecuteRun исполняет run до терминального статуса.
//
// Допустимы runs в статусе PENDING (первый запуск) и RUNNING
// (возобновление после рестарта): уже завершённые шаги пропускаются,
// их дельты применяются к контексту повторно в детерминированном
// порядке.
func (e *Engine) ExecuteRun(ctx context.Context, runID uuid.UUID) error {
	run, err := e.runs.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRunNotFound
		}
		return fmt.Errorf("load run: %w", err)
	}
	if run.IsFinished() {
		return ErrRunFinished
	}

	def, err := e.definitions.Get(ctx, run.WorkflowID, run.WorkflowVersion)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDefinitionNotFound
		}
		return fmt.Errorf("load definition: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := e.addActive(run.ID, cancel); err != nil {
		return err
	}
	defer e.removeActive(run.ID)

	st := &execState{run: run, def: def}

	if run.Status == domain.RunStatusPending {
		if err := e.transition(runCtx, st, domain.RunStatusRunning, ""); err != nil {
			return err
		}
	} else {
		e.logger.Info("resuming run",
			"run_id", run.ID,
			"completed_steps", len(run.CompletedStepIDs),
		)
	}

	scope := NewScope(run.Context)
	execErr := e.runSequence(runCtx, st, def.Steps, scope)

	if execErr == nil {
		st.mu.Lock()
		st.run.Context = scope.Snapshot()
		st.mu.Unlock()
		if err := e.transition(context.WithoutCancel(ctx), st, domain.RunStatusSucceeded, ""); err != nil {
			return err
		}
		e.logger.Info("run succeeded", "run_id", run.ID, "duration", run.Duration())
		return nil
	}

	var sf *stepFailure
	if errors.As(execErr, &sf) {
		return e.finalizeFailed(context.WithoutCancel(ctx), st, sf.result)
	}

	if errors.Is(execErr, context.Canceled) && ctx.Err() == nil {
		// Отменили сам run через CancelRun, а не внешний контекст.
		return e.finalizeCancelled(context.WithoutCancel(ctx), st)
	}

	if errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded) {
		// Остановка процесса: run остаётся RUNNING, его подхватит
		// recovery-свип после рестарта.
		e.logger.Warn("run execution interrupted by shutdown", "run_id", run.ID)
		return execErr
	}

	// Инфраструктурная ошибка (конфликт версий, недоступный store):
	// run остаётся RUNNING и будет подхвачен recovery-свипом.
	e.logger.Error("run execution aborted", "run_id", run.ID, "error", execErr)
	return execErr
}

// CancelRun отменяет run.
//
// Для run, исполняемого в этом процессе, отменяется его контекст и
// терминальный статус проставляет исполняющая горутина. Для неактивного
// run статус переводится в CANCELLED напрямую.
func (e *Engine) CancelRun(ctx context.Context, runID uuid.UUID) error {
	e.mu.RLock()
	cancel, isActive := e.active[runID]
	e.mu.RUnlock()

	if isActive {
		cancel()
		e.logger.Info("run cancellation requested", "run_id", runID)
		return nil
	}

	run, err := e.runs.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRunNotFound
		}
		return fmt.Errorf("load run: %w", err)
	}
	if run.IsFinished() {
		return ErrRunFinished
	}

	from := run.Status
	if err := run.Transition(domain.RunStatusCancelled); err != nil {
		return err
	}
	if err := e.runs.Save(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	e.emit(ctx, run, "", string(from), string(domain.RunStatusCancelled), "cancelled while not executing")
	return nil
}

// GetRun возвращает run по ID.
func (e *Engine) GetRun(ctx context.Context, runID uuid.UUID) (*domain.Run, error) {
	run, err := e.runs.Load(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns возвращает runs по фильтру.
func (e *Engine) ListRuns(ctx context.Context, filter store.RunFilter) ([]domain.Run, error) {
	return e.runs.List(ctx, filter)
}

// ActiveRunsCount возвращает количество исполняемых в процессе runs.
func (e *Engine) ActiveRunsCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.active)
}

// execState — изменяемое состояние одного исполнения.
// mu сериализует мутации run из параллельных веток.
type execState struct {
	run *domain.Run
	def *domain.WorkflowDefinition
	mu  sync.Mutex
}

// stepFailure — провал шага, прерывающий исполнение.
type stepFailure struct {
	result domain.StepResult
}

func (f *stepFailure) Error() string {
	return fmt.Sprintf("step %q failed: %s", f.result.StepID, f.result.Error)
}

// runSequence исполняет список узлов последовательно.
func (e *Engine) runSequence(ctx context.Context, st *execState, nodes []domain.StepNode, scope *Scope) error {
	var firstFailure error
	for i := range nodes {
		if err := e.runNode(ctx, st, &nodes[i], scope); err != nil {
			if e.continueOnFailure && errors.As(err, new(*stepFailure)) && firstFailure == nil {
				firstFailure = err
				continue
			}
			if firstFailure != nil {
				return firstFailure
			}
			return err
		}
	}
	return firstFailure
}

// runNode исполняет один узел дерева шагов.
func (e *Engine) runNode(ctx context.Context, st *execState, node *domain.StepNode, scope *Scope) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch node.Kind {
	case domain.NodeLeaf:
		return e.runLeaf(ctx, st, node.Step, scope)
	case domain.NodeSequential:
		return e.runSequence(ctx, st, node.Children, scope)
	case domain.NodeParallel:
		return e.runParallel(ctx, st, node, scope)
	default:
		return fmt.Errorf("unknown node kind %q", node.Kind)
	}
}

// runLeaf исполняет листовой шаг с checkpoint-ом результата.
func (e *Engine) runLeaf(ctx context.Context, st *execState, step *domain.StepDescriptor, scope *Scope) error {
	// Возобновление: завершённый шаг не исполняется повторно,
	// его записанная дельта применяется к scope заново.
	st.mu.Lock()
	if st.run.IsCompleted(step.ID) {
		if prev := st.run.ResultFor(step.ID); prev != nil && prev.Delta != nil {
			scope.Apply(prev.Delta)
		}
		st.mu.Unlock()
		return nil
	}
	st.mu.Unlock()

	result, err := e.executor.Execute(ctx, step, scope)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	switch result.Outcome {
	case domain.StepSucceeded:
		scope.Apply(result.Delta)
		st.run.AppendCompleted(result)
		// Внутри параллельной ветки run.Context не трогается:
		// дельта шага уже записана в результат, общий контекст
		// обновится в точке слияния.
		if !scope.IsBranch() {
			st.run.Context = scope.Snapshot()
		}
		e.emit(ctx, st.run, step.ID, "", string(result.Outcome),
			fmt.Sprintf("attempts=%d duration_ms=%d", result.Attempts, result.DurationMs))
	case domain.StepSkipped:
		st.run.AppendCompleted(result)
		e.emit(ctx, st.run, step.ID, "", string(result.Outcome), "guard returned false")
	case domain.StepFailed:
		st.run.RecordResult(result)
		e.emit(ctx, st.run, step.ID, "", string(result.Outcome), result.Error)
	}

	if err := e.persist(ctx, st.run); err != nil {
		return err
	}

	if result.Outcome == domain.StepFailed {
		return &stepFailure{result: result}
	}
	return nil
}

// runParallel исполняет детей узла параллельно с изолированными scope.
//
// Провал любой ветки отменяет остальные через errgroup. После
// завершения всех веток дельты завершённых листьев применяются к
// родительскому scope в порядке перечисления детей: при коллизии
// ключей побеждает более поздний ребёнок.
func (e *Engine) runParallel(ctx context.Context, st *execState, node *domain.StepNode, scope *Scope) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range node.Children {
		child := &node.Children[i]
		branch := scope.Branch()
		g.Go(func() error {
			return e.runNode(gctx, st, child, branch)
		})
	}

	waitErr := g.Wait()

	// Слияние детерминировано и не зависит от порядка завершения веток:
	// дельты берутся из записанных результатов, обход — в порядке
	// перечисления. То же повторяется при возобновлении.
	st.mu.Lock()
	for i := range node.Children {
		node.Children[i].Walk(func(n *domain.StepNode) bool {
			if n.Kind == domain.NodeLeaf && n.Step != nil {
				if res := st.run.ResultFor(n.Step.ID); res != nil && res.Outcome == domain.StepSucceeded {
					scope.Apply(res.Delta)
				}
			}
			return true
		})
	}
	if !scope.IsBranch() {
		st.run.Context = scope.Snapshot()
	}
	st.mu.Unlock()

	return waitErr
}

// finalizeFailed завершает проваленный run, при необходимости с откатом.
func (e *Engine) finalizeFailed(ctx context.Context, st *execState, failed domain.StepResult) error {
	st.mu.Lock()
	st.run.Error = failed.Error
	st.mu.Unlock()

	if err := e.transition(ctx, st, domain.RunStatusFailed, failed.Error); err != nil {
		return err
	}
	e.logger.Error("run failed",
		"run_id", st.run.ID,
		"step_id", failed.StepID,
		"attempts", failed.Attempts,
		"error", failed.Error,
	)

	if !e.hasCompensableSteps(st) {
		return nil
	}

	if err := e.transition(ctx, st, domain.RunStatusRollingBack, ""); err != nil {
		return err
	}

	report := e.rollbacks.Rollback(ctx, st.def, st.run)
	detail := fmt.Sprintf("outcome=%s compensated=%d failed=%d",
		report.Outcome, len(report.Compensated), len(report.Failed))

	if err := e.transition(ctx, st, domain.RunStatusRolledBack, detail); err != nil {
		return err
	}
	e.logger.Info("run rolled back", "run_id", st.run.ID, "outcome", report.Outcome)
	return nil
}

// finalizeCancelled завершает отменённый run.
//
// Без завершённых компенсируемых шагов run переходит в CANCELLED
// напрямую. Иначе он проходит FAILED → ROLLING_BACK → ROLLED_BACK с
// пометкой отмены в Error; отмена контекста на откат не
// распространяется.
func (e *Engine) finalizeCancelled(ctx context.Context, st *execState) error {
	if !e.hasCompensableSteps(st) {
		if err := e.transition(ctx, st, domain.RunStatusCancelled, "run cancelled"); err != nil {
			return err
		}
		e.logger.Info("run cancelled", "run_id", st.run.ID)
		return ErrRunCancelled
	}

	st.mu.Lock()
	st.run.Error = "run cancelled"
	st.mu.Unlock()

	if err := e.transition(ctx, st, domain.RunStatusFailed, "run cancelled"); err != nil {
		return err
	}
	if err := e.transition(ctx, st, domain.RunStatusRollingBack, "run cancelled"); err != nil {
		return err
	}

	report := e.rollbacks.Rollback(ctx, st.def, st.run)
	detail := fmt.Sprintf("cancelled outcome=%s compensated=%d failed=%d",
		report.Outcome, len(report.Compensated), len(report.Failed))

	if err := e.transition(ctx, st, domain.RunStatusRolledBack, detail); err != nil {
		return err
	}
	e.logger.Info("cancelled run rolled back", "run_id", st.run.ID, "outcome", report.Outcome)
	return ErrRunCancelled
}

// hasCompensableSteps проверяет, есть ли что откатывать.
func (e *Engine) hasCompensableSteps(st *execState) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, stepID := range st.run.CompletedStepIDs {
		if res := st.run.ResultFor(stepID); res != nil && res.Outcome == domain.StepSkipped {
			continue
		}
		if step := st.def.FindStep(stepID); step != nil && step.Compensation != "" {
			return true
		}
	}
	return false
}

// transition переводит run в следующий статус и сохраняет checkpoint.
func (e *Engine) transition(ctx context.Context, st *execState, next domain.RunStatus, detail string) error {
	st.mu.Lock()
	from := st.run.Status
	if err := st.run.Transition(next); err != nil {
		st.mu.Unlock()
		return err
	}
	st.mu.Unlock()

	if err := e.persist(ctx, st.run); err != nil {
		return err
	}
	e.emit(ctx, st.run, "", string(from), string(next), detail)
	return nil
}

// persist сохраняет run с ограниченным числом повторов при конфликте.
//
// Конфликт версий означает конкурирующую запись (другой узел либо
// прямое обновление в store). Если свежая версия совместима —
// статус тот же, run не финализирован и исполнение в store не ушло
// дальше локального — версия принимается и запись повторяется;
// иначе исполнение прерывается.
func (e *Engine) persist(ctx context.Context, run *domain.Run) error {
	var lastErr error
	for attempt := 0; attempt < e.conflictRetries; attempt++ {
		err := e.runs.Save(ctx, run)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("save run: %w", err)
		}
		lastErr = err

		fresh, loadErr := e.runs.Load(ctx, run.ID)
		if loadErr != nil {
			return fmt.Errorf("reload after conflict: %w", loadErr)
		}
		if fresh.Status == domain.RunStatusCancelled {
			return ErrRunCancelled
		}
		if fresh.IsFinished() || fresh.Status != run.Status || !progressSubsumes(run, fresh) {
			e.logger.Error("incompatible concurrent update",
				"run_id", run.ID,
				"local_status", run.Status,
				"store_status", fresh.Status,
				"local_completed", len(run.CompletedStepIDs),
				"store_completed", len(fresh.CompletedStepIDs),
			)
			return ErrPersistenceConflict
		}
		run.StoreVersion = fresh.StoreVersion
	}
	return fmt.Errorf("%w: %v", ErrPersistenceConflict, lastErr)
}

// progressSubsumes проверяет, что прогресс исполнения в store не
// обгоняет локальный: завершённые шаги свежей копии — префикс
// локальных. Шаг, завершённый кем-то другим, означает второй
// исполнитель того же run (например, два recovery-свипа), и
// перезаписывать его результаты нельзя.
func progressSubsumes(local, fresh *domain.Run) bool {
	if len(fresh.CompletedStepIDs) > len(local.CompletedStepIDs) {
		return false
	}
	for i, stepID := range fresh.CompletedStepIDs {
		if local.CompletedStepIDs[i] != stepID {
			return false
		}
	}
	return true
}

// addActive регистрирует исполняемый run.
func (e *Engine) addActive(runID uuid.UUID, cancel context.CancelFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.active[runID]; exists {
		return ErrRunAlreadyActive
	}
	e.active[runID] = cancel
	return nil
}

// removeActive снимает run с учёта.
func (e *Engine) removeActive(runID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, runID)
}

// emit отправляет событие перехода в sink.
func (e *Engine) emit(ctx context.Context, run *domain.Run, stepID, from, to, detail string) {
	e.sink.Emit(ctx, telemetry.Event{
		Time:       time.Now(),
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		StepID:     stepID,
		From:       from,
		To:         to,
		Detail:     detail,
	})
}
