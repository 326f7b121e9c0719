package guard

import "errors"

// Ошибки вычисления guard-предикатов.
var (
	// ErrCompile — предикат не компилируется.
	ErrCompile = errors.New("guard compile failed")

	// ErrEvaluation — предикат упал при вычислении.
	ErrEvaluation = errors.New("guard evaluation failed")

	// ErrNotBoolean — предикат вернул не bool.
	ErrNotBoolean = errors.New("guard is not a boolean expression")
)
