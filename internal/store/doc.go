// Package store предоставляет долговечное состояние для runs,
// definitions и schedules.
//
// Интерфейсы спроектированы под два бэкенда за одним контрактом:
//   - memory.go   — in-memory реализация для тестов и разработки
//   - postgres.go — Postgres (pgx) для production
//
// Ключевой контракт — optimistic versioning у RunStore.Save:
// монотонно растущий номер версии сравнивается при сохранении
// (compare-and-swap). Несовпадение означает конкурентного писателя
// и возвращается как ErrConflict — это единственный механизм
// межпроцессного взаимного исключения: движок обязан прервать
// текущую итерацию цикла, а не перезаписать чужое состояние.
package store
