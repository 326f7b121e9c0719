package scheduler

import "errors"

// Ошибки пакета scheduler.
var (
	// ErrScheduleNotFound — schedule не найден.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInvalidSchedule — schedule сконфигурирован некорректно.
	ErrInvalidSchedule = errors.New("invalid schedule")
)
