package scheduler

import (
	"testing"

	"github.com/google/uuid"
)

// --- Queue Tests ---

func TestQueue_PriorityOrder(t *testing.T) {
	q := NewQueue()
	low := uuid.New()
	high := uuid.New()
	mid := uuid.New()
	q.Push(low, 1)
	q.Push(high, 5)
	q.Push(mid, 3)

	want := []uuid.UUID{high, mid, low}
	for i, id := range want {
		item := q.Pop()
		if item == nil {
			t.Fatalf("pop %d: queue unexpectedly empty", i)
		}
		if item.RunID != id {
			t.Errorf("pop %d: expected %s, got %s", i, id, item.RunID)
		}
	}
	if q.Pop() != nil {
		t.Error("drained queue should return nil")
	}
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	q := NewQueue()
	first := uuid.New()
	second := uuid.New()
	third := uuid.New()
	q.Push(first, 2)
	q.Push(second, 2)
	q.Push(third, 2)

	for i, id := range []uuid.UUID{first, second, third} {
		if item := q.Pop(); item.RunID != id {
			t.Errorf("pop %d: equal priorities should pop in push order, got %s", i, item.RunID)
		}
	}
}

func TestQueue_RequeueKeepsPosition(t *testing.T) {
	q := NewQueue()
	a := uuid.New()
	b := uuid.New()
	q.Push(a, 1)
	q.Push(b, 1)

	item := q.Pop()
	if item.RunID != a {
		t.Fatalf("expected a first, got %s", item.RunID)
	}

	// Requeue keeps the original sequence number, so the returned item
	// is still ahead of b despite being re-inserted later.
	q.Requeue(item)
	if next := q.Pop(); next.RunID != a {
		t.Errorf("requeued item should keep its place, got %s", next.RunID)
	}
	if next := q.Pop(); next.RunID != b {
		t.Errorf("expected b last, got %s", next.RunID)
	}
}

func TestQueue_Len(t *testing.T) {
	q := NewQueue()
	if q.Len() != 0 {
		t.Errorf("new queue should be empty, got %d", q.Len())
	}
	q.Push(uuid.New(), 0)
	q.Push(uuid.New(), 0)
	if q.Len() != 2 {
		t.Errorf("expected len 2, got %d", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Errorf("expected len 1 after pop, got %d", q.Len())
	}
}
