package scheduler

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"
)

// Item — элемент очереди диспетчеризации.
type Item struct {
	RunID    uuid.UUID
	Priority int

	// seq фиксирует порядок постановки: при равном приоритете
	// очередь ведёт себя как FIFO.
	seq uint64
}

// runHeap реализует heap.Interface.
type runHeap []*Item

func (h runHeap) Len() int { return len(h) }

func (h runHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *runHeap) Push(x any) { *h = append(*h, x.(*Item)) }

func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue — потокобезопасная priority queue диспетчеризации runs.
// Больший приоритет извлекается раньше; при равном приоритете —
// порядок постановки (FIFO).
type Queue struct {
	mu    sync.Mutex
	items runHeap
	seq   uint64
}

// NewQueue создаёт пустую очередь.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.items)
	return q
}

// Push ставит run в очередь.
func (q *Queue) Push(runID uuid.UUID, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.items, &Item{RunID: runID, Priority: priority, seq: q.seq})
}

// Requeue возвращает элемент в очередь с исходным seq:
// его место среди равных по приоритету сохраняется.
func (q *Queue) Requeue(item *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.items, item)
}

// Pop извлекает элемент с наивысшим приоритетом.
// Возвращает nil, если очередь пуста.
func (q *Queue) Pop() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*Item)
}

// Len возвращает размер очереди.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
