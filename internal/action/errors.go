package action

import "errors"

// Ошибки пакета action.
var (
	// ErrUnknownAction — ссылка не зарегистрирована в реестре.
	ErrUnknownAction = errors.New("unknown action ref")

	// ErrInvalidConfig — действие получило некорректную конфигурацию из контекста.
	ErrInvalidConfig = errors.New("invalid action config")
)
