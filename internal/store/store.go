package store

import (
	"context"
	"time"

	"github.com/shaiso/quickcategories/internal/domain"
)

const (
	// DefaultLatestLimit — сколько батчей возвращает GetLatestBatches по умолчанию.
	DefaultLatestLimit = 10

	// MaxLatestLimit — верхняя граница limit для GetLatestBatches.
	MaxLatestLimit = 100
)

// Store — контракт хранилища батчей.
type Store interface {
	// StoreBatch сохраняет батч: одна запись PLAN на каждую команду.
	// ID батча и записей выдаются последовательно во всём хранилище.
	StoreBatch(ctx context.Context, nb domain.NewBatch, owner domain.LocalUser) (*domain.StoredBatch, error)

	// GetBatch возвращает батч или ErrNotFound.
	GetBatch(ctx context.Context, id int64) (*domain.StoredBatch, error)

	// GetLatestBatches возвращает последние батчи, от новых к старым.
	GetLatestBatches(ctx context.Context, limit int) ([]domain.StoredBatch, error)

	// Slice возвращает записи батча [offset, offset+limit) по возрастанию ID.
	Slice(ctx context.Context, batchID int64, offset, limit int) ([]domain.CommandRecord, error)

	// CountByStatus возвращает число записей батча по статусам.
	CountByStatus(ctx context.Context, batchID int64) (map[domain.StatusKind]int, error)

	// BackgroundRuns возвращает историю фоновых запусков, от старых к новым.
	BackgroundRuns(ctx context.Context, batchID int64) ([]domain.BackgroundRun, error)

	// MakePlansPending захватывает записи PLAN в окне [offset, offset+limit)
	// и возвращает их в статусе PENDING. Окно то же, что у Slice.
	MakePlansPending(ctx context.Context, batchID int64, offset, limit int) ([]domain.CommandRecord, error)

	// MakePendingsPlanned возвращает захваченные записи в PLAN.
	// ID записей не в статусе PENDING пропускаются.
	MakePendingsPlanned(ctx context.Context, batchID int64, ids []int64) error

	// StoreFinish сохраняет результат записи в статусе PENDING.
	// Если политика ошибки требует повтора позже, в конец батча добавляется
	// новая запись PLAN с той же командой. Если после этого не осталось
	// PLAN и PENDING, батч закрывается, а активный фоновый запуск останавливается.
	StoreFinish(ctx context.Context, batchID int64, finish domain.CommandFinish) error

	// StartBackground запускает фоновое выполнение. Повторный вызов при
	// активном запуске ничего не делает.
	StartBackground(ctx context.Context, batchID int64, user domain.LocalUser, creds domain.Credentials) error

	// StopBackground останавливает активный запуск, если он есть, и снимает
	// приостановку. user == nil означает остановку системой.
	StopBackground(ctx context.Context, batchID int64, user *domain.LocalUser) error

	// SuspendBackground приостанавливает активный запуск до until.
	// Без активного запуска ничего не делает.
	SuspendBackground(ctx context.Context, batchID int64, until time.Time) error

	// ClaimNextGlobalPlan захватывает следующую запись среди всех открытых
	// батчей с активным и не приостановленным запуском: батч с наименьшим
	// LastUpdatedAt, при равенстве — с наименьшим ID записи PLAN.
	// Возвращает nil, nil если работы нет.
	ClaimNextGlobalPlan(ctx context.Context) (*Claim, error)

	// StalePendings возвращает записи, захваченные раньше olderThan.
	StalePendings(ctx context.Context, olderThan time.Time, limit int) ([]PendingRef, error)
}

// Claim — захваченная фоновым выполнением запись.
type Claim struct {
	Batch       domain.StoredBatch
	Record      domain.CommandRecord
	Credentials domain.Credentials
}

// PendingRef — ссылка на захваченную запись.
type PendingRef struct {
	BatchID   int64
	CommandID int64
	Since     time.Time
}

// ClampLatestLimit приводит limit к диапазону [1, MaxLatestLimit].
func ClampLatestLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLatestLimit
	case limit > MaxLatestLimit:
		return MaxLatestLimit
	default:
		return limit
	}
}
