package domain

import "time"

// FailureKind — вид классифицированной ошибки выполнения команды.
type FailureKind string

const (
	// FailurePageMissing — страница не существует.
	FailurePageMissing FailureKind = "page_missing"

	// FailureTitleInvalid — название страницы недопустимо.
	FailureTitleInvalid FailureKind = "title_invalid"

	// FailurePageProtected — страница защищена от правок.
	FailurePageProtected FailureKind = "page_protected"

	// FailureEditConflict — страницу изменили между чтением и правкой.
	FailureEditConflict FailureKind = "edit_conflict"

	// FailureMaxlag — задержка репликации вики превысила порог.
	FailureMaxlag FailureKind = "maxlag_exceeded"

	// FailureBlocked — пользователь заблокирован.
	FailureBlocked FailureKind = "blocked"

	// FailureWikiReadOnly — вики в режиме только для чтения.
	FailureWikiReadOnly FailureKind = "wiki_read_only"
)

// ContinuationKind — что делать с фоновым выполнением батча после ошибки.
type ContinuationKind string

const (
	// ContinueBatch — продолжать выполнение.
	ContinueBatch ContinuationKind = "continue"

	// SuspendBatch — приостановить до Continuation.Until.
	SuspendBatch ContinuationKind = "suspend"

	// StopBatch — остановить фоновое выполнение, нужен ручной перезапуск.
	StopBatch ContinuationKind = "stop"
)

// Continuation — решение о продолжении фонового выполнения.
type Continuation struct {
	Kind  ContinuationKind
	Until time.Time // только для SuspendBatch
}

// continuationRule — правило вычисления Continuation по данным ошибки.
type continuationRule int

const (
	ruleContinue continuationRule = iota
	ruleStop
	// ruleUntilRetryAfter — приостановить до RetryAfter, без него продолжать.
	ruleUntilRetryAfter
	// ruleUntilRetryAfterOrStop — приостановить до RetryAfter, без него остановить.
	ruleUntilRetryAfterOrStop
)

type failurePolicy struct {
	retryImmediately bool
	retryLater       bool
	continuation     continuationRule
}

// failurePolicies — таблица политик повтора для всех видов ошибок.
var failurePolicies = map[FailureKind]failurePolicy{
	FailurePageMissing:   {false, false, ruleContinue},
	FailureTitleInvalid:  {false, false, ruleContinue},
	FailurePageProtected: {false, false, ruleContinue},
	FailureEditConflict:  {true, true, ruleContinue},
	FailureMaxlag:        {false, true, ruleUntilRetryAfter},
	FailureBlocked:       {false, true, ruleStop},
	FailureWikiReadOnly:  {false, true, ruleUntilRetryAfterOrStop},
}

// BlockInfo — сведения о блокировке пользователя.
type BlockInfo struct {
	ID      int64  `json:"id,omitempty"`
	By      string `json:"by,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Expiry  string `json:"expiry,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

// Failure — классифицированная ошибка. Неизменяемые данные плюс политика,
// которая определяется только видом ошибки.
type Failure struct {
	// Type — вид ошибки.
	Type FailureKind `json:"type"`

	// RetryAfter — когда имеет смысл повторить (maxlag, read-only).
	RetryAfter *time.Time `json:"retry_after,omitempty"`

	// Reason — пояснение от вики (например, причина read-only).
	Reason string `json:"reason,omitempty"`

	// Block — сведения о блокировке для FailureBlocked.
	Block *BlockInfo `json:"block,omitempty"`
}

// NewFailure создаёт ошибку без дополнительных данных.
func NewFailure(kind FailureKind) Failure {
	return Failure{Type: kind}
}

// NewMaxlagFailure создаёт ошибку maxlag с моментом повтора.
func NewMaxlagFailure(retryAfter time.Time) Failure {
	return Failure{Type: FailureMaxlag, RetryAfter: &retryAfter}
}

// NewBlockedFailure создаёт ошибку блокировки.
func NewBlockedFailure(block BlockInfo) Failure {
	return Failure{Type: FailureBlocked, Block: &block}
}

// NewReadOnlyFailure создаёт ошибку read-only. retryAfter может быть nil.
func NewReadOnlyFailure(reason string, retryAfter *time.Time) Failure {
	return Failure{Type: FailureWikiReadOnly, Reason: reason, RetryAfter: retryAfter}
}

// Known возвращает true, если вид ошибки есть в таблице политик.
func (f Failure) Known() bool {
	_, ok := failurePolicies[f.Type]
	return ok
}

// RetryImmediately — стоит ли сразу повторить попытку в том же процессе.
func (f Failure) RetryImmediately() bool {
	return failurePolicies[f.Type].retryImmediately
}

// RetryLater — нужно ли поставить команду в очередь заново.
func (f Failure) RetryLater() bool {
	return failurePolicies[f.Type].retryLater
}

// Continuation возвращает решение о продолжении фонового выполнения.
func (f Failure) Continuation() Continuation {
	switch failurePolicies[f.Type].continuation {
	case ruleStop:
		return Continuation{Kind: StopBatch}
	case ruleUntilRetryAfter:
		if f.RetryAfter != nil {
			return Continuation{Kind: SuspendBatch, Until: *f.RetryAfter}
		}
		return Continuation{Kind: ContinueBatch}
	case ruleUntilRetryAfterOrStop:
		if f.RetryAfter != nil {
			return Continuation{Kind: SuspendBatch, Until: *f.RetryAfter}
		}
		return Continuation{Kind: StopBatch}
	default:
		return Continuation{Kind: ContinueBatch}
	}
}

// String возвращает вид ошибки и пояснение для логов.
func (f Failure) String() string {
	if f.Reason != "" {
		return string(f.Type) + ": " + f.Reason
	}
	return string(f.Type)
}

// Kind реализует Status.
func (Failure) Kind() StatusKind { return StatusFailure }

func (Failure) status() {}
func (Failure) finish() {}
