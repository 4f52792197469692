package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// LocalUser — пользователь конкретной вики.
//
// Идентичность определяется тройкой (Domain, LocalUserID, GlobalUserID).
// UserName только для отображения и может меняться при переименовании.
type LocalUser struct {
	// Domain — домен вики, например "en.wikipedia.org".
	Domain string `json:"domain"`

	// LocalUserID — ID пользователя в этой вики.
	LocalUserID int64 `json:"local_user_id"`

	// GlobalUserID — ID глобальной учётной записи (0, если нет).
	GlobalUserID int64 `json:"global_user_id"`

	// UserName — текущее имя пользователя.
	UserName string `json:"user_name"`
}

// Equal сравнивает пользователей без учёта UserName.
func (u LocalUser) Equal(other LocalUser) bool {
	return u.Domain == other.Domain &&
		u.LocalUserID == other.LocalUserID &&
		u.GlobalUserID == other.GlobalUserID
}

// Credentials — учётные данные для выполнения правок от имени пользователя.
// Сохраняются при запуске фонового выполнения.
type Credentials struct {
	AccessToken string `json:"access_token"`
}

// IsZero возвращает true, если токена нет.
func (c Credentials) IsZero() bool {
	return c.AccessToken == ""
}

// NewBatch — батч, отправленный пользователем, ещё без ID.
type NewBatch struct {
	// Title — необязательное название батча.
	Title string `json:"title,omitempty"`

	// Commands — команды в порядке выполнения.
	Commands []Command `json:"commands"`
}

// Validate проверяет все команды и возвращает все найденные ошибки.
// Батч принимается только целиком.
func (nb NewBatch) Validate() error {
	if len(nb.Commands) == 0 {
		return NewValidationError("commands", ErrEmptyBatch)
	}

	var errs ValidationErrors
	for i, cmd := range nb.Commands {
		err := cmd.Validate()
		if err == nil {
			continue
		}
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Index = i
			errs = append(errs, ve)
			continue
		}
		errs = append(errs, &ValidationError{Index: i, Field: "command", Message: err.Error(), Err: err})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// BatchStatus — производный статус батча.
//
//	OPEN → CLOSED (необратимо)
type BatchStatus string

const (
	// BatchStatusOpen — есть хотя бы одна запись PLAN или PENDING.
	BatchStatusOpen BatchStatus = "OPEN"

	// BatchStatusClosed — все записи финальные.
	BatchStatusClosed BatchStatus = "CLOSED"
)

// StoredBatch — сохранённый батч.
//
// Записи команд и история фоновых запусков читаются отдельно через хранилище.
type StoredBatch struct {
	// ID — уникальный идентификатор батча.
	ID int64 `json:"id"`

	// Owner — пользователь, создавший батч.
	Owner LocalUser `json:"owner"`

	// Domain — домен вики.
	Domain string `json:"domain"`

	// Title — необязательное название.
	Title string `json:"title,omitempty"`

	// Status — вычисляется хранилищем по статусам записей, никогда не задаётся вызывающим.
	Status BatchStatus `json:"status"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// LastUpdatedAt — время последнего изменения записей.
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// IsClosed возвращает true, если все записи батча финальные.
func (b *StoredBatch) IsClosed() bool {
	return b.Status == BatchStatusClosed
}

// CommandRecord — команда в батче со статусом.
type CommandRecord struct {
	// ID — уникальный во всём хранилище, монотонно растущий.
	ID int64 `json:"id"`

	// Command — сама команда.
	Command Command `json:"command"`

	// Status — текущее состояние.
	Status Status `json:"-"`
}

// IsFinished возвращает true для записей с финальным статусом.
func (r CommandRecord) IsFinished() bool {
	return r.Status != nil && r.Status.Kind().IsTerminal()
}

// CommandFinish — результат выполнения захваченной записи.
type CommandFinish struct {
	// ID — ID записи в статусе PENDING.
	ID int64

	// Command — команда записи. Используется для повторной постановки в очередь.
	Command Command

	// Finish — результат.
	Finish Finish
}

// BackgroundRun — период фонового выполнения батча.
type BackgroundRun struct {
	// ID — уникальный идентификатор запуска.
	ID uuid.UUID `json:"id"`

	// BatchID — батч, к которому относится запуск.
	BatchID int64 `json:"batch_id"`

	// StartedAt — время запуска.
	StartedAt time.Time `json:"started_at"`

	// StartedBy — кто запустил.
	StartedBy LocalUser `json:"started_by"`

	// StoppedAt — время остановки, nil пока запуск активен.
	StoppedAt *time.Time `json:"stopped_at,omitempty"`

	// StoppedBy — кто остановил. Nil, если запуск остановлен системой
	// (например, при закрытии батча).
	StoppedBy *LocalUser `json:"stopped_by,omitempty"`

	// SuspendedUntil — до какого момента выполнение приостановлено.
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
}

// IsActive возвращает true, если запуск ещё не остановлен.
func (r BackgroundRun) IsActive() bool {
	return r.StoppedAt == nil
}

// IsSuspended возвращает true, если на момент now запуск приостановлен.
func (r BackgroundRun) IsSuspended(now time.Time) bool {
	return r.SuspendedUntil != nil && r.SuspendedUntil.After(now)
}
