package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event — одно событие перехода.
//
// Для переходов статуса run поле StepID пустое; для событий шага
// From пустое, а To содержит исход шага.
type Event struct {
	Time       time.Time `json:"time"`
	RunID      uuid.UUID `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	StepID     string    `json:"step_id,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Detail     string    `json:"detail,omitempty"`
}

// IsStepEvent проверяет, относится ли событие к шагу.
func (e Event) IsStepEvent() bool {
	return e.StepID != ""
}

// Sink получает события переходов.
//
// Реализации не должны блокировать исполнение надолго: Emit
// вызывается синхронно на пути исполнения run.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// NopSink отбрасывает события.
type NopSink struct{}

// Emit реализует Sink.
func (NopSink) Emit(context.Context, Event) {}

// SlogSink пишет события в structured log.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink создаёт SlogSink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Emit реализует Sink.
func (s *SlogSink) Emit(ctx context.Context, ev Event) {
	attrs := []any{
		"run_id", ev.RunID,
		"workflow_id", ev.WorkflowID,
		"to", ev.To,
	}
	if ev.StepID != "" {
		attrs = append(attrs, "step_id", ev.StepID)
	}
	if ev.From != "" {
		attrs = append(attrs, "from", ev.From)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}

	if ev.IsStepEvent() {
		s.logger.InfoContext(ctx, "step transition", attrs...)
	} else {
		s.logger.InfoContext(ctx, "run transition", attrs...)
	}
}

// MultiSink транслирует события в несколько sink-ов.
type MultiSink []Sink

// Emit реализует Sink.
func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
