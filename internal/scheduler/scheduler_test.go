package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/action"
	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
	"github.com/shaiso/Maestro/internal/store"
)

// schedulerFixture bundles the scheduler with its engine and stores.
type schedulerFixture struct {
	sched     *Scheduler
	eng       *engine.Engine
	runs      *store.MemoryRunStore
	schedules *store.MemoryScheduleStore
	registry  *action.Registry
}

func newTestScheduler(t *testing.T) *schedulerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &schedulerFixture{
		runs:      store.NewMemoryRunStore(),
		schedules: store.NewMemoryScheduleStore(),
		registry:  action.NewRegistry(),
	}
	defs := store.NewMemoryDefinitionStore()
	f.eng = engine.New(engine.Config{
		Runs:        f.runs,
		Definitions: defs,
		Registry:    f.registry,
		Logger:      logger,
	})
	f.registry.Register("noop", action.Func(func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, nil
	}))
	def := &domain.WorkflowDefinition{
		ID: "nightly", Version: 1,
		Steps: []domain.StepNode{
			domain.Leaf(domain.StepDescriptor{ID: "step", ActionRef: "noop"}),
		},
	}
	if err := f.eng.PublishDefinition(context.Background(), def); err != nil {
		t.Fatalf("publish definition: %v", err)
	}
	f.sched = New(Config{
		Engine:    f.eng,
		Schedules: f.schedules,
		Runs:      f.runs,
		Logger:    logger,
	})
	return f
}

// --- RegisterSchedule Tests ---

func TestRegisterSchedule_CronComputesNextDue(t *testing.T) {
	f := newTestScheduler(t)
	sched := &domain.Schedule{
		ID:         uuid.New(),
		WorkflowID: "nightly",
		Kind:       domain.TriggerCron,
		CronExpr:   "0 3 * * *",
		Enabled:    true,
	}
	if err := f.sched.RegisterSchedule(context.Background(), sched); err != nil {
		t.Fatalf("register: %v", err)
	}
	if sched.NextDueAt == nil {
		t.Fatal("cron schedule should get a next due time")
	}
	if !sched.NextDueAt.After(time.Now()) {
		t.Errorf("next due should be in the future, got %s", sched.NextDueAt)
	}
	if _, err := f.schedules.Get(context.Background(), sched.ID); err != nil {
		t.Errorf("schedule should be persisted: %v", err)
	}
}

func TestRegisterSchedule_Validation(t *testing.T) {
	f := newTestScheduler(t)

	tests := []struct {
		name  string
		sched *domain.Schedule
	}{
		{"bad cron expression", &domain.Schedule{
			ID: uuid.New(), WorkflowID: "nightly", Kind: domain.TriggerCron, CronExpr: "nope", Enabled: true,
		}},
		{"event without topic", &domain.Schedule{
			ID: uuid.New(), WorkflowID: "nightly", Kind: domain.TriggerEvent, Enabled: true,
		}},
		{"unknown trigger kind", &domain.Schedule{
			ID: uuid.New(), WorkflowID: "nightly", Kind: "WEBHOOK", Enabled: true,
		}},
	}
	for _, tt := range tests {
		err := f.sched.RegisterSchedule(context.Background(), tt.sched)
		if !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("%s: expected ErrInvalidSchedule, got %v", tt.name, err)
		}
	}
}

func TestRegisterSchedule_Manual(t *testing.T) {
	f := newTestScheduler(t)
	sched := &domain.Schedule{
		ID:         uuid.New(),
		WorkflowID: "nightly",
		Kind:       domain.TriggerManual,
		Enabled:    true,
		Inputs:     map[string]any{"reason": "on demand"},
	}
	if err := f.sched.RegisterSchedule(context.Background(), sched); err != nil {
		t.Fatalf("manual schedule should register: %v", err)
	}
}

func TestPauseAndResumeSchedule(t *testing.T) {
	f := newTestScheduler(t)
	sched := &domain.Schedule{
		ID:         uuid.New(),
		WorkflowID: "nightly",
		Kind:       domain.TriggerCron,
		CronExpr:   "0 3 * * *",
		Enabled:    true,
	}
	if err := f.sched.RegisterSchedule(context.Background(), sched); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := f.sched.PauseSchedule(context.Background(), sched.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	paused, _ := f.schedules.Get(context.Background(), sched.ID)
	if paused.Enabled {
		t.Error("paused schedule should be disabled")
	}

	if err := f.sched.ResumeSchedule(context.Background(), sched.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	resumed, _ := f.schedules.Get(context.Background(), sched.ID)
	if !resumed.Enabled {
		t.Error("resumed schedule should be enabled")
	}
	// Resume recomputes the fire time instead of replaying missed ones
	if resumed.NextDueAt == nil || !resumed.NextDueAt.After(time.Now()) {
		t.Errorf("resume should recompute next due, got %v", resumed.NextDueAt)
	}

	if err := f.sched.PauseSchedule(context.Background(), uuid.New()); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
}

// --- Tick Tests ---

// registerDueCron stores a cron schedule whose next fire is in the past.
func registerDueCron(t *testing.T, f *schedulerFixture, instanceKey string) *domain.Schedule {
	t.Helper()
	sched := &domain.Schedule{
		ID:          uuid.New(),
		WorkflowID:  "nightly",
		Kind:        domain.TriggerCron,
		CronExpr:    "*/5 * * * *",
		Enabled:     true,
		Priority:    2,
		InstanceKey: instanceKey,
		Inputs:      map[string]any{"source": "cron"},
	}
	if err := f.sched.RegisterSchedule(context.Background(), sched); err != nil {
		t.Fatalf("register: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	sched.NextDueAt = &past
	if err := f.schedules.Update(context.Background(), sched); err != nil {
		t.Fatalf("backdate schedule: %v", err)
	}
	return sched
}

func TestTick_FiresDueSchedule(t *testing.T) {
	f := newTestScheduler(t)
	sched := registerDueCron(t, f, "")

	if err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	runs, err := f.runs.List(context.Background(), store.RunFilter{WorkflowID: "nightly"})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run created, got %d", len(runs))
	}
	if runs[0].Priority != 2 {
		t.Errorf("run should inherit schedule priority, got %d", runs[0].Priority)
	}
	if runs[0].Context["source"] != "cron" {
		t.Errorf("run should carry schedule inputs, got %v", runs[0].Context)
	}
	if f.sched.QueueLen() != 1 {
		t.Errorf("created run should be queued, queue len %d", f.sched.QueueLen())
	}

	updated, _ := f.schedules.Get(context.Background(), sched.ID)
	if updated.NextDueAt == nil || !updated.NextDueAt.After(time.Now()) {
		t.Errorf("next due must advance into the future, got %v", updated.NextDueAt)
	}
	if updated.LastRunID == nil || *updated.LastRunID != runs[0].ID {
		t.Errorf("schedule should record the created run, got %v", updated.LastRunID)
	}
}

func TestTick_SkipsBusyInstanceButAdvances(t *testing.T) {
	f := newTestScheduler(t)
	sched := registerDueCron(t, f, "prod")

	// An active run occupies the instance
	busy, err := f.eng.CreateRun(context.Background(), engine.CreateRunParams{
		WorkflowID: "nightly", InstanceKey: "prod",
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	stored, _ := f.runs.Load(context.Background(), busy.ID)
	if err := stored.Transition(domain.RunStatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := f.runs.Save(context.Background(), stored); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	runs, _ := f.runs.List(context.Background(), store.RunFilter{WorkflowID: "nightly"})
	if len(runs) != 1 {
		t.Errorf("no new run should be created while instance is busy, got %d", len(runs))
	}
	// The schedule still advances, otherwise it stays due forever
	updated, _ := f.schedules.Get(context.Background(), sched.ID)
	if updated.NextDueAt == nil || !updated.NextDueAt.After(time.Now()) {
		t.Errorf("next due must advance even when skipped, got %v", updated.NextDueAt)
	}
}

func TestTick_NoDueSchedules(t *testing.T) {
	f := newTestScheduler(t)
	if err := f.sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick with no schedules should be a no-op: %v", err)
	}
	if f.sched.QueueLen() != 0 {
		t.Errorf("queue should stay empty, got %d", f.sched.QueueLen())
	}
}

// --- HandleEvent Tests ---

func TestHandleEvent_CreatesRunWithMergedInputs(t *testing.T) {
	f := newTestScheduler(t)
	sched := &domain.Schedule{
		ID:         uuid.New(),
		WorkflowID: "nightly",
		Kind:       domain.TriggerEvent,
		EventTopic: "orders.created",
		Enabled:    true,
		Inputs:     map[string]any{"region": "eu", "env": "staging"},
	}
	if err := f.sched.RegisterSchedule(context.Background(), sched); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := f.sched.HandleEvent(context.Background(), "orders.created", map[string]any{"env": "prod", "order_id": "42"})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	runs, _ := f.runs.List(context.Background(), store.RunFilter{WorkflowID: "nightly"})
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	// Event data overrides schedule defaults on collision
	ctx := runs[0].Context
	if ctx["env"] != "prod" || ctx["region"] != "eu" || ctx["order_id"] != "42" {
		t.Errorf("unexpected merged inputs: %v", ctx)
	}
	if f.sched.QueueLen() != 1 {
		t.Errorf("run should be queued, queue len %d", f.sched.QueueLen())
	}

	updated, _ := f.schedules.Get(context.Background(), sched.ID)
	if updated.LastRunID == nil {
		t.Error("schedule should record the run it created")
	}
}

func TestHandleEvent_UnknownTopic(t *testing.T) {
	f := newTestScheduler(t)
	if err := f.sched.HandleEvent(context.Background(), "nobody.listens", nil); err != nil {
		t.Fatalf("unknown topic should be a no-op: %v", err)
	}
	if f.sched.QueueLen() != 0 {
		t.Errorf("queue should stay empty, got %d", f.sched.QueueLen())
	}
}

// --- Manual and Recovery Tests ---

func TestEnqueueManual(t *testing.T) {
	f := newTestScheduler(t)
	run, err := f.sched.EnqueueManual(context.Background(), engine.CreateRunParams{
		WorkflowID: "nightly",
		Priority:   7,
		Inputs:     map[string]any{"requested_by": "ops"},
	})
	if err != nil {
		t.Fatalf("enqueue manual: %v", err)
	}
	if run.Status != domain.RunStatusPending {
		t.Errorf("expected PENDING, got %s", run.Status)
	}
	if f.sched.QueueLen() != 1 {
		t.Errorf("run should be queued, queue len %d", f.sched.QueueLen())
	}
}

func TestRecoverPending(t *testing.T) {
	f := newTestScheduler(t)

	// One interrupted run, one never-started run, one already finished
	interrupted, _ := f.eng.CreateRun(context.Background(), engine.CreateRunParams{WorkflowID: "nightly"})
	stored, _ := f.runs.Load(context.Background(), interrupted.ID)
	if err := stored.Transition(domain.RunStatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := f.runs.Save(context.Background(), stored); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := f.eng.CreateRun(context.Background(), engine.CreateRunParams{WorkflowID: "nightly"}); err != nil {
		t.Fatalf("create pending run: %v", err)
	}

	finished, _ := f.eng.CreateRun(context.Background(), engine.CreateRunParams{WorkflowID: "nightly"})
	if err := f.eng.ExecuteRun(context.Background(), finished.ID); err != nil {
		t.Fatalf("execute run: %v", err)
	}

	if err := f.sched.RecoverPending(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := f.sched.QueueLen(); got != 2 {
		t.Errorf("expected 2 recovered runs queued, got %d", got)
	}
}
