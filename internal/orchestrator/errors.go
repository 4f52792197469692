package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrForbidden — операцию над батчем может выполнять только владелец.
	ErrForbidden = errors.New("only the batch owner may do this")

	// ErrUnclassified — ошибка вики, не попадающая в таксономию domain.Failure.
	ErrUnclassified = errors.New("unclassified wiki failure")

	// ErrInvalidWindow — отрицательные offset или limit.
	ErrInvalidWindow = errors.New("invalid offset or limit")

	// ErrNoCredentials — для фонового выполнения нужен токен пользователя.
	ErrNoCredentials = errors.New("credentials required")
)
