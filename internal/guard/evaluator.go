package guard

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator компилирует и вычисляет guard-предикаты.
//
// Потокобезопасен: кэш скомпилированных программ разделяется
// всеми run-горутинами.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewEvaluator создаёт Evaluator с пустым кэшем.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate вычисляет предикат над контекстом.
// Пустой предикат считается истинным.
func (e *Evaluator) Evaluate(predicate string, view map[string]any) (bool, error) {
	if predicate == "" {
		return true, nil
	}

	program, err := e.compile(predicate)
	if err != nil {
		return false, err
	}

	if view == nil {
		view = map[string]any{}
	}

	out, err := expr.Run(program, view)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrEvaluation, predicate, err)
	}

	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q yielded %T", ErrNotBoolean, predicate, out)
	}
	return b, nil
}

// CheckSyntax проверяет, что предикат компилируется.
// Используется валидацией definitions до принятия к планированию.
func (e *Evaluator) CheckSyntax(predicate string) error {
	if predicate == "" {
		return nil
	}
	_, err := e.compile(predicate)
	return err
}

// compile возвращает скомпилированную программу из кэша или компилирует новую.
func (e *Evaluator) compile(predicate string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[predicate]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(predicate, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCompile, predicate, err)
	}

	e.mu.Lock()
	e.cache[predicate] = program
	e.mu.Unlock()

	return program, nil
}
