package engine

import "maps"

// Scope — изменяемое представление контекста run во время исполнения.
//
// Каждая параллельная ветка работает с собственной копией scope:
// записи веток не видны друг другу до точки слияния. В точке
// слияния дельты применяются к родительскому scope в порядке
// перечисления детей, поэтому при коллизии ключей побеждает
// более поздний ребёнок.
type Scope struct {
	data map[string]any

	// branch — scope принадлежит параллельной ветке. Записи веток
	// не попадают в run.Context до точки слияния: иначе после
	// рестарта ещё не исполнявшаяся соседняя ветка увидела бы их
	// в восстановленном контексте.
	branch bool
}

// NewScope создаёт scope поверх копии исходных данных.
func NewScope(initial map[string]any) *Scope {
	data := make(map[string]any, len(initial))
	maps.Copy(data, initial)
	return &Scope{data: data}
}

// View возвращает read-only снимок данных для передачи в action и guard.
func (s *Scope) View() map[string]any {
	view := make(map[string]any, len(s.data))
	maps.Copy(view, s.data)
	return view
}

// Apply применяет дельту шага к scope.
func (s *Scope) Apply(delta map[string]any) {
	maps.Copy(s.data, delta)
}

// Branch создаёт изолированную копию scope для параллельной ветки.
func (s *Scope) Branch() *Scope {
	b := NewScope(s.data)
	b.branch = true
	return b
}

// IsBranch возвращает true для scope параллельной ветки.
func (s *Scope) IsBranch() bool {
	return s.branch
}

// Snapshot возвращает копию данных для записи в run.Context.
func (s *Scope) Snapshot() map[string]any {
	return s.View()
}
