package telemetry

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

// captureSink records every event it receives.
type captureSink struct {
	events []Event
}

func (c *captureSink) Emit(_ context.Context, ev Event) {
	c.events = append(c.events, ev)
}

// --- Sink Tests ---

func TestEvent_IsStepEvent(t *testing.T) {
	if (Event{To: "RUNNING"}).IsStepEvent() {
		t.Error("run event misclassified as step event")
	}
	if !(Event{StepID: "extract", To: "SUCCEEDED"}).IsStepEvent() {
		t.Error("step event misclassified as run event")
	}
}

func TestMultiSink_FansOut(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	multi := MultiSink{first, second}

	ev := Event{RunID: uuid.New(), WorkflowID: "etl", To: "RUNNING"}
	multi.Emit(context.Background(), ev)

	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("every sink should receive the event: %d/%d", len(first.events), len(second.events))
	}
	if first.events[0].RunID != ev.RunID {
		t.Errorf("event payload mangled: %+v", first.events[0])
	}
}

func TestNopSink_Discards(t *testing.T) {
	// Must simply not panic
	NopSink{}.Emit(context.Background(), Event{To: "RUNNING"})
}
