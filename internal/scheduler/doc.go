// Package scheduler реализует триггеры и диспетчеризацию runs.
//
// Scheduler объединяет три источника запуска:
//   - cron-schedules (Tick проверяет schedules с истекшим next_due_at)
//   - внешние события из RabbitMQ (топик события → event-schedules)
//   - ручной запуск (EnqueueManual)
//
// Созданные runs попадают в priority queue (больший приоритет —
// раньше, при равном приоритете FIFO) и разбираются ограниченным
// пулом воркеров. Инвариант единственного активного run на пару
// (workflowID, instanceKey) проверяется при диспетчеризации:
// конфликтующий run возвращается в очередь.
//
// Структура:
//   - scheduler.go — Scheduler (Tick, HandleEvent, worker pool, recovery)
//   - queue.go     — priority queue на container/heap
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
package scheduler
