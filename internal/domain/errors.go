package domain

import "errors"

// Ошибки валидации страниц и действий.
var (
	// ErrEmptyTitle — у страницы пустое название.
	ErrEmptyTitle = errors.New("page title is empty")

	// ErrTitleChars — название содержит символ, недопустимый в названиях MediaWiki.
	ErrTitleChars = errors.New("page title must not contain any of | [ ] { } < >")

	// ErrTitleSentinel — название начинается с маркера "не разрешать перенаправления".
	ErrTitleSentinel = errors.New("page title starts with the no-redirect marker")

	// ErrEmptyCategory — у действия пустое название категории.
	ErrEmptyCategory = errors.New("category is empty")

	// ErrCategoryWikilink — категория записана как викиссылка.
	ErrCategoryWikilink = errors.New("category must not be a wikilink")

	// ErrCategoryNamespace — категория содержит префикс пространства имён.
	ErrCategoryNamespace = errors.New("category must not include a namespace prefix")

	// ErrEmptySortKey — вариант действия требует непустой ключ сортировки.
	ErrEmptySortKey = errors.New("sort key is empty")

	// ErrInvalidSortKey — ключ сортировки сломает ссылку.
	ErrInvalidSortKey = errors.New("sort key must not contain brackets or line breaks")

	// ErrUnknownAction — неизвестный тип действия при декодировании.
	ErrUnknownAction = errors.New("unknown action type")

	// ErrNoActions — команда без действий.
	ErrNoActions = errors.New("command has no actions")

	// ErrEmptyBatch — батч без команд.
	ErrEmptyBatch = errors.New("batch has no commands")

	// ErrRevisionOrder — у правки base_revision не меньше revision.
	ErrRevisionOrder = errors.New("base revision must be lower than new revision")

	// ErrUnknownStatus — неизвестный статус записи при декодировании.
	ErrUnknownStatus = errors.New("unknown command status")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Index   int    // номер команды в батче (с нуля), -1 если неприменимо
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return "command " + itoa(e.Index) + ": " + e.Field + ": " + e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{
		Index:   -1,
		Field:   field,
		Message: err.Error(),
		Err:     err,
	}
}

// ValidationErrors — все ошибки валидации батча.
// Батч принимается только целиком, поэтому ошибки собираются, а не
// возвращаются по первой.
type ValidationErrors []*ValidationError

// Error реализует интерфейс error.
func (errs ValidationErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msg := itoa(len(errs)) + " validation errors"
	for _, e := range errs {
		msg += "; " + e.Error()
	}
	return msg
}

// Unwrap позволяет errors.Is/As видеть отдельные ошибки.
func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
