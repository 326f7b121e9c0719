package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
	"github.com/shaiso/Maestro/internal/mq"
	"github.com/shaiso/Maestro/internal/store"
)

// Default configuration values.
const (
	defaultTickInterval = time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultRequeueDelay = time.Second
	defaultWorkers      = 4
	defaultBatchSize    = 100
)

// Scheduler запускает runs по cron, событиям и вручную.
type Scheduler struct {
	engine    *engine.Engine
	schedules store.ScheduleStore
	runs      store.RunStore

	// MQ (опционально)
	conn     *mq.Connection
	consumer *mq.Consumer

	queue  *Queue
	notify chan struct{}

	tickInterval time.Duration
	requeueDelay time.Duration
	workers      int
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	Engine    *engine.Engine
	Schedules store.ScheduleStore
	Runs      store.RunStore

	// Conn — соединение с RabbitMQ для trigger-событий (опционально:
	// без него работают только cron и ручной запуск).
	Conn *mq.Connection

	// TickInterval — период проверки due cron-schedules (default: 1s).
	TickInterval time.Duration

	// RequeueDelay — пауза перед возвратом конфликтующего run в очередь (default: 1s).
	RequeueDelay time.Duration

	// Workers — размер пула воркеров (default: 4).
	Workers int

	// BatchSize — количество schedules за один тик (default: 100).
	BatchSize int

	Logger *slog.Logger
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	requeueDelay := cfg.RequeueDelay
	if requeueDelay <= 0 {
		requeueDelay = defaultRequeueDelay
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		engine:       cfg.Engine,
		schedules:    cfg.Schedules,
		runs:         cfg.Runs,
		conn:         cfg.Conn,
		queue:        NewQueue(),
		notify:       make(chan struct{}, 1),
		tickInterval: tickInterval,
		requeueDelay: requeueDelay,
		workers:      workers,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Scheduler.
//
// Запускает:
//   - Recovery-свип незавершённых runs
//   - Tick-цикл для cron-schedules
//   - Пул воркеров, разбирающих очередь
//   - Consumer trigger-событий (если настроен Conn)
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting scheduler",
		"tick_interval", s.tickInterval,
		"workers", s.workers,
	)

	if err := s.RecoverPending(ctx); err != nil {
		s.logger.Error("recovery sweep failed", "error", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tickLoop(ctx)
	}()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.workerLoop(ctx, id)
		}(i)
	}

	if s.conn != nil {
		s.consumer = mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueTriggerEvents),
			Handler:  s.handleTriggerMessage,
			Prefetch: 10,
		})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("trigger consumer error", "error", err)
			}
		}()
	}

	s.logger.Info("scheduler started")
	return nil
}

// Stop останавливает Scheduler и ждёт завершения воркеров.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.wg.Wait()

	s.logger.Info("scheduler stopped", "queued", s.queue.Len())
}

// RegisterSchedule валидирует и сохраняет schedule.
// Для cron-schedules вычисляется первое время срабатывания.
func (s *Scheduler) RegisterSchedule(ctx context.Context, sched *domain.Schedule) error {
	switch sched.Kind {
	case domain.TriggerCron:
		if err := ValidateCronExpr(sched.CronExpr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		next, err := NextFire(sched.CronExpr, time.Now())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		sched.NextDueAt = &next
	case domain.TriggerEvent:
		if sched.EventTopic == "" {
			return fmt.Errorf("%w: event schedule requires topic", ErrInvalidSchedule)
		}
	case domain.TriggerManual:
		// Ручные schedules хранят только defaults для запуска.
	default:
		return fmt.Errorf("%w: unknown trigger kind %q", ErrInvalidSchedule, sched.Kind)
	}

	if err := s.schedules.Put(ctx, sched); err != nil {
		return fmt.Errorf("put schedule: %w", err)
	}

	s.logger.Info("schedule registered",
		"schedule_id", sched.ID,
		"workflow_id", sched.WorkflowID,
		"kind", sched.Kind,
	)
	return nil
}

// PauseSchedule выключает schedule. Выключенные schedules не
// срабатывают ни по cron, ни по событиям.
func (s *Scheduler) PauseSchedule(ctx context.Context, id uuid.UUID) error {
	return s.setEnabled(ctx, id, false)
}

// ResumeSchedule включает schedule обратно. Для cron пересчитывается
// время следующего срабатывания, чтобы не отыгрывать пропущенные.
func (s *Scheduler) ResumeSchedule(ctx context.Context, id uuid.UUID) error {
	return s.setEnabled(ctx, id, true)
}

func (s *Scheduler) setEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	sched, err := s.schedules.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrScheduleNotFound
		}
		return fmt.Errorf("get schedule: %w", err)
	}

	sched.Enabled = enabled
	if enabled && sched.Kind == domain.TriggerCron {
		next, err := NextFire(sched.CronExpr, time.Now())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		sched.NextDueAt = &next
	}
	sched.UpdatedAt = time.Now()

	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	s.logger.Info("schedule toggled", "schedule_id", id, "enabled", enabled)
	return nil
}

// Tick выполняет один тик: создаёт runs для due cron-schedules.
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var created int
	for i := range schedules {
		sched := &schedules[i]
		if err := s.fireSchedule(ctx, sched, now); err != nil {
			s.logger.Error("failed to fire schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}
		created++
	}

	s.logger.Info("scheduler tick completed", "due", len(schedules), "runs_created", created)
	return nil
}

// EnqueueManual создаёт run вручную и ставит его в очередь.
func (s *Scheduler) EnqueueManual(ctx context.Context, params engine.CreateRunParams) (*domain.Run, error) {
	run, err := s.engine.CreateRun(ctx, params)
	if err != nil {
		return nil, err
	}
	s.enqueue(run.ID, run.Priority)
	return run, nil
}

// HandleEvent создаёт runs для всех event-schedules топика.
//
// Данные события сливаются поверх Inputs schedule-а и попадают во
// входной контекст run. Schedule с уже активным run пропускается.
func (s *Scheduler) HandleEvent(ctx context.Context, topic string, data map[string]any) error {
	schedules, err := s.schedules.ListByTopic(ctx, topic)
	if err != nil {
		return fmt.Errorf("list schedules for topic %q: %w", topic, err)
	}
	if len(schedules) == 0 {
		s.logger.Debug("no schedules for topic", "topic", topic)
		return nil
	}

	for i := range schedules {
		sched := &schedules[i]

		inputs := make(map[string]any, len(sched.Inputs)+len(data))
		maps.Copy(inputs, sched.Inputs)
		maps.Copy(inputs, data)

		run, err := s.engine.CreateRun(ctx, engine.CreateRunParams{
			WorkflowID:  sched.WorkflowID,
			InstanceKey: sched.InstanceKey,
			Priority:    sched.Priority,
			Inputs:      inputs,
		})
		if err != nil {
			if errors.Is(err, engine.ErrRunAlreadyActive) {
				s.logger.Warn("event skipped, run already active",
					"schedule_id", sched.ID,
					"topic", topic,
				)
				continue
			}
			s.logger.Error("failed to create run from event",
				"schedule_id", sched.ID,
				"topic", topic,
				"error", err,
			)
			continue
		}

		sched.RecordRun(run.ID, nil)
		if err := s.schedules.Update(ctx, sched); err != nil {
			s.logger.Warn("failed to update schedule bookkeeping",
				"schedule_id", sched.ID,
				"error", err,
			)
		}

		s.enqueue(run.ID, run.Priority)
		s.logger.Info("run created from event",
			"run_id", run.ID,
			"schedule_id", sched.ID,
			"topic", topic,
		)
	}
	return nil
}

// RecoverPending ставит в очередь незавершённые runs из store.
//
// Вызывается при старте: PENDING runs ещё не исполнялись, RUNNING —
// были прерваны рестартом и возобновляются с первого незавершённого
// шага.
func (s *Scheduler) RecoverPending(ctx context.Context) error {
	for _, status := range []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusPending} {
		runs, err := s.runs.List(ctx, store.RunFilter{Status: status, Limit: s.batchSize})
		if err != nil {
			return fmt.Errorf("list %s runs: %w", status, err)
		}
		for i := range runs {
			s.enqueue(runs[i].ID, runs[i].Priority)
		}
		if len(runs) > 0 {
			s.logger.Info("recovered runs", "status", status, "count", len(runs))
		}
	}
	return nil
}

// QueueLen возвращает размер очереди диспетчеризации.
func (s *Scheduler) QueueLen() int {
	return s.queue.Len()
}

// fireSchedule создаёт run для одного due cron-schedule.
func (s *Scheduler) fireSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	run, err := s.engine.CreateRun(ctx, engine.CreateRunParams{
		WorkflowID:  sched.WorkflowID,
		InstanceKey: sched.InstanceKey,
		Priority:    sched.Priority,
		Inputs:      sched.Inputs,
	})
	if err != nil && !errors.Is(err, engine.ErrRunAlreadyActive) {
		return fmt.Errorf("create run: %w", err)
	}

	// next_due_at двигается вперёд и при пропуске из-за активного run,
	// иначе schedule останется due навсегда.
	var nextDue *time.Time
	next, nextErr := NextFire(sched.CronExpr, now)
	if nextErr != nil {
		s.logger.Error("failed to calculate next due, disabling schedule",
			"schedule_id", sched.ID,
			"error", nextErr,
		)
		sched.Enabled = false
	} else {
		nextDue = &next
	}

	if err != nil {
		s.logger.Warn("cron fire skipped, run already active",
			"schedule_id", sched.ID,
			"workflow_id", sched.WorkflowID,
		)
		if nextDue != nil {
			sched.NextDueAt = nextDue
		}
		sched.UpdatedAt = now
	} else {
		sched.RecordRun(run.ID, nextDue)
		s.enqueue(run.ID, run.Priority)
		s.logger.Info("run created from cron schedule",
			"run_id", run.ID,
			"schedule_id", sched.ID,
			"workflow_id", sched.WorkflowID,
		)
	}

	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// enqueue ставит run в очередь и будит воркеров.
func (s *Scheduler) enqueue(runID uuid.UUID, priority int) {
	s.queue.Push(runID, priority)
	s.signal()
}

// signal будит один ждущий воркер.
func (s *Scheduler) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// tickLoop — цикл обработки cron-schedules.
func (s *Scheduler) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// workerLoop — цикл одного воркера, разбирающего очередь.
func (s *Scheduler) workerLoop(ctx context.Context, id int) {
	// Poll fallback: очередь может пополниться без сигнала
	// (requeue по таймеру).
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		item := s.queue.Pop()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.notify:
			case <-ticker.C:
			}
			continue
		}

		s.dispatch(ctx, id, item)
	}
}

// dispatch исполняет один run из очереди.
//
// Если для пары (workflowID, instanceKey) уже исполняется другой run,
// элемент возвращается в очередь с паузой и исходным seq: его место
// среди равных по приоритету сохраняется.
func (s *Scheduler) dispatch(ctx context.Context, workerID int, item *Item) {
	run, err := s.runs.Load(ctx, item.RunID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("queued run disappeared", "run_id", item.RunID)
			return
		}
		s.logger.Error("failed to load queued run", "run_id", item.RunID, "error", err)
		s.requeueLater(ctx, item)
		return
	}

	if run.IsFinished() {
		return
	}

	if run.InstanceKey != "" {
		active, err := s.runs.ActiveRun(ctx, run.WorkflowID, run.InstanceKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to check active run", "run_id", item.RunID, "error", err)
			s.requeueLater(ctx, item)
			return
		}
		if active != nil && active.ID != run.ID {
			s.logger.Debug("instance busy, run requeued",
				"run_id", run.ID,
				"active_run_id", active.ID,
				"instance_key", run.InstanceKey,
			)
			s.requeueLater(ctx, item)
			return
		}
	}

	s.logger.Debug("worker picked run",
		"worker", workerID,
		"run_id", run.ID,
		"priority", item.Priority,
	)

	if err := s.engine.ExecuteRun(ctx, run.ID); err != nil {
		switch {
		case errors.Is(err, engine.ErrRunCancelled), errors.Is(err, engine.ErrRunFinished):
			// Терминальный исход, делать нечего.
		case errors.Is(err, engine.ErrRunAlreadyActive):
			s.requeueLater(ctx, item)
		case errors.Is(err, context.Canceled):
			// Остановка процесса: run подберёт recovery после рестарта.
		default:
			s.logger.Error("run execution failed",
				"worker", workerID,
				"run_id", run.ID,
				"error", err,
			)
		}
	}
}

// requeueLater возвращает элемент в очередь после паузы.
func (s *Scheduler) requeueLater(ctx context.Context, item *Item) {
	time.AfterFunc(s.requeueDelay, func() {
		if ctx.Err() != nil {
			return
		}
		s.queue.Requeue(item)
		s.signal()
	})
}

// handleTriggerMessage обрабатывает trigger-событие из RabbitMQ.
func (s *Scheduler) handleTriggerMessage(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TriggerEventPayload](&msg.Message)
	if err != nil {
		return fmt.Errorf("parse trigger payload: %w", err)
	}
	if payload.Topic == "" {
		payload.Topic = msg.Raw.RoutingKey
	}
	return s.HandleEvent(ctx, payload.Topic, payload.Data)
}
