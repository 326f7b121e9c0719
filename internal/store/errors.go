package store

import "errors"

// Общие ошибки хранилищ.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict — несовпадение версии при compare-and-swap:
	// run был изменён конкурентным писателем.
	ErrConflict = errors.New("version conflict")
)
