package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind — вид внешнего стимула, создающего runs.
type TriggerKind string

const (
	// TriggerCron — запуск по cron-выражению (стандартные 5 полей).
	TriggerCron TriggerKind = "CRON"

	// TriggerEvent — запуск по входящему событию на именованном топике.
	TriggerEvent TriggerKind = "EVENT"

	// TriggerManual — прямой ручной запуск.
	TriggerManual TriggerKind = "MANUAL"
)

// Schedule — правило автоматического создания runs для workflow.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// WorkflowID — идентификатор workflow для запуска.
	WorkflowID string `json:"workflow_id"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// Kind — вид триггера: CRON, EVENT или MANUAL.
	Kind TriggerKind `json:"kind"`

	// CronExpr — cron-выражение (только для CRON).
	// Формат: "минуты часы дни месяцы дни_недели".
	CronExpr string `json:"cron_expr,omitempty"`

	// EventTopic — имя топика (только для EVENT).
	EventTopic string `json:"event_topic,omitempty"`

	// Enabled — флаг активности. Выключенные schedules игнорируются.
	Enabled bool `json:"enabled"`

	// Priority — приоритет создаваемых runs в очереди.
	Priority int `json:"priority,omitempty"`

	// InstanceKey — ключ логического экземпляра для создаваемых runs.
	InstanceKey string `json:"instance_key,omitempty"`

	// Inputs — начальный контекст для создаваемых runs.
	Inputs map[string]any `json:"inputs,omitempty"`

	// NextDueAt — время следующего срабатывания (только для CRON).
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего срабатывания.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — ID последнего созданного run.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue проверяет, пора ли срабатывать cron-расписанию.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.Kind != TriggerCron || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает факт срабатывания и следующее время запуска.
// Для event-schedules nextDue передаётся nil — NextDueAt не трогается.
func (s *Schedule) RecordRun(runID uuid.UUID, nextDue *time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastRunID = &runID
	if nextDue != nil {
		s.NextDueAt = nextDue
	}
	s.UpdatedAt = now
}
