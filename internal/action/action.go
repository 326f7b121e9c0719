package action

import "context"

// Action — одна непрозрачная единица работы.
//
// Execute получает read-копию контекста run и возвращает delta —
// изменения, которые движок применит к контексту после успеха.
// Действие не должно мутировать view; delta — единственный канал записи.
//
// Действие обязано уважать отмену ctx: при cancel оно должно завершиться
// на ближайшей контрольной точке, а не продолжать работу.
type Action interface {
	Execute(ctx context.Context, view map[string]any) (map[string]any, error)
}

// Compensator — необязательная обратная операция действия.
// Вызывается координатором rollback для уже завершённых шагов.
type Compensator interface {
	Compensate(ctx context.Context, view map[string]any) error
}

// Func адаптирует функцию к интерфейсу Action.
type Func func(ctx context.Context, view map[string]any) (map[string]any, error)

// Execute реализует Action.
func (f Func) Execute(ctx context.Context, view map[string]any) (map[string]any, error) {
	return f(ctx, view)
}

// CompensateFunc адаптирует функцию к интерфейсам Action и Compensator
// одновременно: Execute выполняет компенсацию, delta всегда пустая.
type CompensateFunc func(ctx context.Context, view map[string]any) error

// Execute реализует Action: компенсации не производят delta.
func (f CompensateFunc) Execute(ctx context.Context, view map[string]any) (map[string]any, error) {
	return nil, f(ctx, view)
}

// Compensate реализует Compensator.
func (f CompensateFunc) Compensate(ctx context.Context, view map[string]any) error {
	return f(ctx, view)
}
