package domain

// StatusKind — статус записи команды в батче.
//
// Жизненный цикл:
//
//	PLAN → PENDING → EDIT | NOOP | FAILURE
//	          ↘ PLAN (откат захвата)
//
// FAILURE с политикой "повторить позже" порождает новую запись PLAN
// с новым ID и той же командой.
type StatusKind string

const (
	// StatusPlan — запись в очереди, ещё не захвачена.
	StatusPlan StatusKind = "PLAN"

	// StatusPending — запись захвачена для выполнения. Выполнение может
	// идти прямо сейчас или быть брошено (падение процесса).
	StatusPending StatusKind = "PENDING"

	// StatusEdit — правка сохранена.
	StatusEdit StatusKind = "EDIT"

	// StatusNoop — текст не изменился, правка не нужна.
	StatusNoop StatusKind = "NOOP"

	// StatusFailure — классифицированная ошибка.
	StatusFailure StatusKind = "FAILURE"
)

// IsTerminal возвращает true для финальных статусов.
func (k StatusKind) IsTerminal() bool {
	switch k {
	case StatusEdit, StatusNoop, StatusFailure:
		return true
	default:
		return false
	}
}

// ParseStatusKind парсит строку в StatusKind.
func ParseStatusKind(s string) (StatusKind, error) {
	switch k := StatusKind(s); k {
	case StatusPlan, StatusPending, StatusEdit, StatusNoop, StatusFailure:
		return k, nil
	default:
		return "", ErrUnknownStatus
	}
}

// Status — состояние записи. Набор реализаций закрыт:
// Plan, Pending, Edit, Noop, Failure.
type Status interface {
	Kind() StatusKind
	status()
}

// Finish — финальное состояние записи: Edit, Noop или Failure.
type Finish interface {
	Status
	finish()
}

// Plan — запись ожидает выполнения.
type Plan struct{}

// Pending — запись захвачена.
type Pending struct{}

// Edit — успешная правка.
type Edit struct {
	// BaseRevision — ревизия, на которой основана правка.
	BaseRevision int64 `json:"base_revision"`

	// Revision — новая ревизия. Всегда больше BaseRevision.
	Revision int64 `json:"revision"`
}

// NewEdit создаёт Edit, проверяя порядок ревизий.
func NewEdit(baseRevision, revision int64) (Edit, error) {
	if baseRevision >= revision {
		return Edit{}, ErrRevisionOrder
	}
	return Edit{BaseRevision: baseRevision, Revision: revision}, nil
}

// Noop — команда ничего не изменила.
type Noop struct {
	// Revision — текущая ревизия страницы.
	Revision int64 `json:"revision"`
}

func (Plan) Kind() StatusKind    { return StatusPlan }
func (Pending) Kind() StatusKind { return StatusPending }
func (Edit) Kind() StatusKind    { return StatusEdit }
func (Noop) Kind() StatusKind    { return StatusNoop }

func (Plan) status()    {}
func (Pending) status() {}
func (Edit) status()    {}
func (Noop) status()    {}

func (Edit) finish() {}
func (Noop) finish() {}
