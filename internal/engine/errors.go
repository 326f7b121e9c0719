package engine

import "errors"

// Ошибки пакета engine.
var (
	// ErrDefinitionNotFound — определение workflow не найдено.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrRunNotFound — run не найден.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyActive — run с таким instance key уже исполняется.
	ErrRunAlreadyActive = errors.New("run already active for instance key")

	// ErrRunFinished — run уже в терминальном статусе.
	ErrRunFinished = errors.New("run already finished")

	// ErrPersistenceConflict — конфликт версий не разрешился после повторов.
	ErrPersistenceConflict = errors.New("persistence conflict: run was modified concurrently")

	// ErrRunCancelled — исполнение прервано отменой run.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrStepTimeout — шаг превысил таймаут попытки.
	ErrStepTimeout = errors.New("step attempt timed out")
)
