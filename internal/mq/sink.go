package mq

import (
	"context"
	"log/slog"

	"github.com/shaiso/Maestro/internal/telemetry"
)

// EventSink публикует события переходов в exchange maestro.events.
//
// Реализует telemetry.Sink. Ошибки публикации логируются и не
// прерывают исполнение run: лента событий — best-effort.
type EventSink struct {
	publisher *Publisher
	logger    *slog.Logger
}

// NewEventSink создаёт EventSink.
func NewEventSink(publisher *Publisher, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{publisher: publisher, logger: logger}
}

// Emit реализует telemetry.Sink.
func (s *EventSink) Emit(ctx context.Context, ev telemetry.Event) {
	if err := s.publisher.PublishRunEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to publish run event",
			"run_id", ev.RunID,
			"to", ev.To,
			"error", err,
		)
	}
}
