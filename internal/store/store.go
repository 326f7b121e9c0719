package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Maestro/internal/domain"
)

// RunStore — долговечный checkpoint прогресса runs.
type RunStore interface {
	// Load возвращает run по ID. ErrNotFound, если run не существует.
	Load(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// Save сохраняет run через compare-and-swap по StoreVersion.
	//
	// StoreVersion == 0 означает создание: ErrAlreadyExists, если run
	// с таким ID уже есть. Иначе — обновление: ErrConflict, если
	// StoreVersion не совпадает с текущей версией в store.
	// При успехе StoreVersion увеличивается ровно на 1.
	Save(ctx context.Context, run *domain.Run) error

	// List возвращает runs по фильтру, новые первыми.
	List(ctx context.Context, filter RunFilter) ([]domain.Run, error)

	// ActiveRun возвращает run в статусе RUNNING или ROLLING_BACK
	// для пары (workflowID, instanceKey). ErrNotFound, если такого нет.
	ActiveRun(ctx context.Context, workflowID, instanceKey string) (*domain.Run, error)
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	WorkflowID string
	Status     domain.RunStatus
	Limit      int
	Offset     int
}

// DefinitionStore — хранилище опубликованных workflow definitions.
// Definitions неизменяемы: новая версия — новая запись.
type DefinitionStore interface {
	// Put публикует definition. ErrAlreadyExists для уже
	// существующей пары (id, version) — мутация запрещена.
	Put(ctx context.Context, def *domain.WorkflowDefinition) error

	// Get возвращает definition по (id, version).
	Get(ctx context.Context, id string, version int) (*domain.WorkflowDefinition, error)

	// Latest возвращает definition с максимальной версией.
	Latest(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
}

// ScheduleStore — хранилище schedules.
type ScheduleStore interface {
	// Put создаёт schedule.
	Put(ctx context.Context, sched *domain.Schedule) error

	// Update обновляет schedule (next_due_at, last_run и т.д.).
	Update(ctx context.Context, sched *domain.Schedule) error

	// Get возвращает schedule по ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)

	// ListDue возвращает включённые cron-schedules с next_due_at <= now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)

	// ListByTopic возвращает включённые event-schedules для топика.
	ListByTopic(ctx context.Context, topic string) ([]domain.Schedule, error)
}
