package action

import (
	"fmt"
	"sync"
)

// Registry — реестр действий по ActionRef.
//
// Потокобезопасен: регистрация обычно происходит при старте процесса,
// но движок резолвит действия из многих run-горутин одновременно.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register добавляет действие под ссылкой ref.
// Повторная регистрация той же ссылки заменяет реализацию.
func (r *Registry) Register(ref string, a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[ref] = a
}

// Resolve возвращает действие по ссылке.
func (r *Registry) Resolve(ref string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, ref)
	}
	return a, nil
}

// Has проверяет, зарегистрирована ли ссылка.
// Используется валидацией definitions для проверки резолвимости.
func (r *Registry) Has(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.actions[ref]
	return ok
}

// Refs возвращает все зарегистрированные ссылки.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.actions))
	for ref := range r.actions {
		refs = append(refs, ref)
	}
	return refs
}
