package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Maestro/internal/domain"
)

// MemoryRunStore — in-memory реализация RunStore.
// Используется в тестах и при работе без БД.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*domain.Run
}

// NewMemoryRunStore создаёт пустой MemoryRunStore.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[uuid.UUID]*domain.Run)}
}

// Load возвращает глубокую копию run.
func (s *MemoryRunStore) Load(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

// Save сохраняет run через CAS по StoreVersion.
func (s *MemoryRunStore) Save(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.runs[run.ID]

	if run.StoreVersion == 0 {
		if exists {
			return ErrAlreadyExists
		}
		stored := run.Clone()
		stored.StoreVersion = 1
		s.runs[run.ID] = stored
		run.StoreVersion = 1
		return nil
	}

	if !exists {
		return ErrNotFound
	}
	if current.StoreVersion != run.StoreVersion {
		return ErrConflict
	}

	stored := run.Clone()
	stored.StoreVersion = current.StoreVersion + 1
	s.runs[run.ID] = stored
	run.StoreVersion = stored.StoreVersion
	return nil
}

// List возвращает runs по фильтру, новые первыми.
func (s *MemoryRunStore) List(_ context.Context, filter RunFilter) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []domain.Run
	for _, run := range s.runs {
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, *run.Clone())
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[filter.Offset:]
	}
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// ActiveRun возвращает активный run для пары (workflowID, instanceKey).
func (s *MemoryRunStore) ActiveRun(_ context.Context, workflowID, instanceKey string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, run := range s.runs {
		if run.WorkflowID == workflowID && run.InstanceKey == instanceKey && run.Status.IsActive() {
			return run.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// MemoryDefinitionStore — in-memory реализация DefinitionStore.
type MemoryDefinitionStore struct {
	mu   sync.RWMutex
	defs map[string]map[int]*domain.WorkflowDefinition
}

// NewMemoryDefinitionStore создаёт пустой MemoryDefinitionStore.
func NewMemoryDefinitionStore() *MemoryDefinitionStore {
	return &MemoryDefinitionStore{defs: make(map[string]map[int]*domain.WorkflowDefinition)}
}

// Put публикует definition.
func (s *MemoryDefinitionStore) Put(_ context.Context, def *domain.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.defs[def.ID]
	if !ok {
		versions = make(map[int]*domain.WorkflowDefinition)
		s.defs[def.ID] = versions
	}
	if _, exists := versions[def.Version]; exists {
		return ErrAlreadyExists
	}
	versions[def.Version] = def
	return nil
}

// Get возвращает definition по (id, version).
func (s *MemoryDefinitionStore) Get(_ context.Context, id string, version int) (*domain.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.defs[id][version]
	if !ok {
		return nil, ErrNotFound
	}
	return def, nil
}

// Latest возвращает definition с максимальной версией.
func (s *MemoryDefinitionStore) Latest(_ context.Context, id string) (*domain.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.defs[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound
	}

	best := 0
	for v := range versions {
		if v > best {
			best = v
		}
	}
	return versions[best], nil
}

// MemoryScheduleStore — in-memory реализация ScheduleStore.
type MemoryScheduleStore struct {
	mu        sync.RWMutex
	schedules map[uuid.UUID]*domain.Schedule
}

// NewMemoryScheduleStore создаёт пустой MemoryScheduleStore.
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{schedules: make(map[uuid.UUID]*domain.Schedule)}
}

// Put создаёт schedule.
func (s *MemoryScheduleStore) Put(_ context.Context, sched *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; exists {
		return ErrAlreadyExists
	}
	cp := *sched
	s.schedules[sched.ID] = &cp
	return nil
}

// Update обновляет schedule.
func (s *MemoryScheduleStore) Update(_ context.Context, sched *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; !exists {
		return ErrNotFound
	}
	cp := *sched
	s.schedules[sched.ID] = &cp
	return nil
}

// Get возвращает schedule по ID.
func (s *MemoryScheduleStore) Get(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sched
	return &cp, nil
}

// ListDue возвращает cron-schedules, которым пора срабатывать.
func (s *MemoryScheduleStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []domain.Schedule
	for _, sched := range s.schedules {
		if sched.IsDue(now) {
			due = append(due, *sched)
		}
		if limit > 0 && len(due) >= limit {
			break
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(*due[j].NextDueAt)
	})
	return due, nil
}

// ListByTopic возвращает включённые event-schedules для топика.
func (s *MemoryScheduleStore) ListByTopic(_ context.Context, topic string) ([]domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Schedule
	for _, sched := range s.schedules {
		if sched.Enabled && sched.Kind == domain.TriggerEvent && sched.EventTopic == topic {
			matched = append(matched, *sched)
		}
	}
	return matched, nil
}
