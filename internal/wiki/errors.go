package wiki

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotAuthenticated — токен не принадлежит зарегистрированному пользователю.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrBadResponse — ответ вики не удалось разобрать.
	ErrBadResponse = errors.New("bad wiki response")
)

// Error — ошибка, возвращённая MediaWiki API.
type Error struct {
	// Code — код ошибки MediaWiki ("maxlag", "editconflict", "blocked", ...).
	Code string

	// Info — человекочитаемое описание.
	Info string

	// RetryAfter — значение заголовка Retry-After (0, если его нет).
	RetryAfter time.Duration

	// ReadOnlyReason — причина режима только для чтения.
	ReadOnlyReason string

	// Block — сведения о блокировке для кодов blocked/autoblocked/partialblocked.
	Block *BlockDetails
}

// BlockDetails — поле blockinfo ответа MediaWiki.
type BlockDetails struct {
	ID      int64  `json:"blockid"`
	By      string `json:"blockedby"`
	Reason  string `json:"blockreason"`
	Expiry  string `json:"blockexpiry"`
	Partial bool   `json:"blockpartial"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("wiki error %s: %s", e.Code, e.Info)
}

// HasRetryAfter возвращает true, если вики указала время повтора.
func (e *Error) HasRetryAfter() bool {
	return e.RetryAfter > 0
}

// AsError извлекает *Error из цепочки ошибок.
func AsError(err error) (*Error, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
