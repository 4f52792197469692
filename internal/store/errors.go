package store

import "errors"

// Ошибки хранилища.
var (
	// ErrNotFound — батч или запись не найдены.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState — операция невозможна в текущем состоянии записи.
	ErrInvalidState = errors.New("invalid state")

	// ErrBatchClosed — батч закрыт, фоновое выполнение запустить нельзя.
	ErrBatchClosed = errors.New("batch is closed")

	// ErrInvariantViolation — нарушен инвариант хранилища
	// (например, остановлено больше одного фонового запуска).
	// Ошибка фатальна, продолжать работу нельзя.
	ErrInvariantViolation = errors.New("store invariant violation")
)
