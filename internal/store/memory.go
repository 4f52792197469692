package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/quickcategories/internal/domain"
)

// MemoryConfig — настройки хранилища в памяти.
type MemoryConfig struct {
	// Now — источник времени (по умолчанию time.Now).
	Now func() time.Time
}

// Memory — хранилище в памяти процесса.
// Все операции выполняются под одним мьютексом.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time

	nextBatchID   int64
	nextCommandID int64
	batches       map[int64]*memBatch
}

type memBatch struct {
	batch   domain.StoredBatch
	records []*memRecord
	runs    []*memRun
}

type memRecord struct {
	record       domain.CommandRecord
	pendingSince time.Time
}

type memRun struct {
	run   domain.BackgroundRun
	creds domain.Credentials
}

// NewMemory создаёт пустое хранилище.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Memory{
		now:     cfg.Now,
		batches: make(map[int64]*memBatch),
	}
}

var _ Store = (*Memory)(nil)

// StoreBatch сохраняет новый батч.
func (m *Memory) StoreBatch(_ context.Context, nb domain.NewBatch, owner domain.LocalUser) (*domain.StoredBatch, error) {
	if len(nb.Commands) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.nextBatchID++
	b := &memBatch{
		batch: domain.StoredBatch{
			ID:            m.nextBatchID,
			Owner:         owner,
			Domain:        owner.Domain,
			Title:         nb.Title,
			Status:        domain.BatchStatusOpen,
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
		records: make([]*memRecord, 0, len(nb.Commands)),
	}
	for _, cmd := range nb.Commands {
		b.records = append(b.records, m.newPlan(cmd))
	}
	m.batches[b.batch.ID] = b

	batch := b.batch
	return &batch, nil
}

func (m *Memory) newPlan(cmd domain.Command) *memRecord {
	m.nextCommandID++
	return &memRecord{record: domain.CommandRecord{
		ID:      m.nextCommandID,
		Command: cloneCommand(cmd),
		Status:  domain.Plan{},
	}}
}

// GetBatch возвращает батч по ID.
func (m *Memory) GetBatch(_ context.Context, id int64) (*domain.StoredBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	batch := b.batch
	return &batch, nil
}

// GetLatestBatches возвращает последние батчи.
func (m *Memory) GetLatestBatches(_ context.Context, limit int) ([]domain.StoredBatch, error) {
	limit = ClampLatestLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.StoredBatch, 0, limit)
	for id := m.nextBatchID; id > 0 && len(out) < limit; id-- {
		if b, ok := m.batches[id]; ok {
			out = append(out, b.batch)
		}
	}
	return out, nil
}

// Slice возвращает окно записей батча.
func (m *Memory) Slice(_ context.Context, batchID int64, offset, limit int) ([]domain.CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}

	var out []domain.CommandRecord
	for _, r := range window(b.records, offset, limit) {
		out = append(out, copyRecord(r.record))
	}
	return out, nil
}

// CountByStatus возвращает число записей по статусам.
func (m *Memory) CountByStatus(_ context.Context, batchID int64) (map[domain.StatusKind]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}

	counts := make(map[domain.StatusKind]int)
	for _, r := range b.records {
		counts[r.record.Status.Kind()]++
	}
	return counts, nil
}

// BackgroundRuns возвращает историю фоновых запусков.
func (m *Memory) BackgroundRuns(_ context.Context, batchID int64) ([]domain.BackgroundRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]domain.BackgroundRun, 0, len(b.runs))
	for _, r := range b.runs {
		out = append(out, r.run)
	}
	return out, nil
}

// MakePlansPending захватывает записи PLAN в окне.
func (m *Memory) MakePlansPending(_ context.Context, batchID int64, offset, limit int) ([]domain.CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}

	now := m.now()
	var claimed []domain.CommandRecord
	for _, r := range window(b.records, offset, limit) {
		if r.record.Status.Kind() != domain.StatusPlan {
			continue
		}
		r.record.Status = domain.Pending{}
		r.pendingSince = now
		claimed = append(claimed, copyRecord(r.record))
	}
	return claimed, nil
}

// MakePendingsPlanned откатывает захват записей.
func (m *Memory) MakePendingsPlanned(_ context.Context, batchID int64, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return ErrNotFound
	}

	for _, r := range b.records {
		if r.record.Status.Kind() == domain.StatusPending && slices.Contains(ids, r.record.ID) {
			r.record.Status = domain.Plan{}
			r.pendingSince = time.Time{}
		}
	}
	return nil
}

// StoreFinish сохраняет результат выполнения записи.
func (m *Memory) StoreFinish(_ context.Context, batchID int64, finish domain.CommandFinish) error {
	if finish.Finish == nil {
		return fmt.Errorf("%w: empty finish", ErrInvalidState)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return ErrNotFound
	}

	idx := slices.IndexFunc(b.records, func(r *memRecord) bool { return r.record.ID == finish.ID })
	if idx < 0 {
		return ErrNotFound
	}
	rec := b.records[idx]
	if rec.record.Status.Kind() != domain.StatusPending {
		return fmt.Errorf("%w: command %d is %s", ErrInvalidState, finish.ID, rec.record.Status.Kind())
	}

	f, failed := finish.Finish.(domain.Failure)
	retry := failed && f.RetryLater()
	closes := !retry && !slices.ContainsFunc(b.records, func(r *memRecord) bool {
		return r != rec && !r.record.Status.Kind().IsTerminal()
	})
	if closes {
		if _, err := b.activeRuns(); err != nil {
			return err
		}
	}

	now := m.now()
	rec.record.Status = finish.Finish
	rec.pendingSince = time.Time{}

	if retry {
		b.records = append(b.records, m.newPlan(rec.record.Command))
	}
	b.batch.LastUpdatedAt = now

	if closes {
		b.batch.Status = domain.BatchStatusClosed
		if _, err := b.stopRuns(now, nil); err != nil {
			return err
		}
	}
	return nil
}

// StartBackground запускает фоновое выполнение батча.
func (m *Memory) StartBackground(_ context.Context, batchID int64, user domain.LocalUser, creds domain.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return ErrNotFound
	}
	if b.batch.IsClosed() {
		return ErrBatchClosed
	}
	if b.activeRun() != nil {
		return nil
	}

	b.runs = append(b.runs, &memRun{
		run: domain.BackgroundRun{
			ID:        uuid.New(),
			BatchID:   batchID,
			StartedAt: m.now(),
			StartedBy: user,
		},
		creds: creds,
	})
	return nil
}

// StopBackground останавливает фоновое выполнение батча.
func (m *Memory) StopBackground(_ context.Context, batchID int64, user *domain.LocalUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return ErrNotFound
	}
	_, err := b.stopRuns(m.now(), user)
	return err
}

// SuspendBackground приостанавливает активный запуск.
func (m *Memory) SuspendBackground(_ context.Context, batchID int64, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return ErrNotFound
	}
	if run := b.activeRun(); run != nil {
		run.run.SuspendedUntil = &until
	}
	return nil
}

// ClaimNextGlobalPlan захватывает следующую запись для фонового выполнения.
func (m *Memory) ClaimNextGlobalPlan(_ context.Context) (*Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	var (
		best    *memBatch
		bestRec *memRecord
		bestRun *memRun
	)
	for _, b := range m.batches {
		if b.batch.IsClosed() {
			continue
		}
		run := b.activeRun()
		if run == nil || run.run.IsSuspended(now) {
			continue
		}
		idx := slices.IndexFunc(b.records, func(r *memRecord) bool {
			return r.record.Status.Kind() == domain.StatusPlan
		})
		if idx < 0 {
			continue
		}
		rec := b.records[idx]

		if best == nil ||
			b.batch.LastUpdatedAt.Before(best.batch.LastUpdatedAt) ||
			(b.batch.LastUpdatedAt.Equal(best.batch.LastUpdatedAt) && rec.record.ID < bestRec.record.ID) {
			best, bestRec, bestRun = b, rec, run
		}
	}
	if best == nil {
		return nil, nil
	}

	bestRec.record.Status = domain.Pending{}
	bestRec.pendingSince = now

	return &Claim{
		Batch:       best.batch,
		Record:      copyRecord(bestRec.record),
		Credentials: bestRun.creds,
	}, nil
}

// StalePendings возвращает давно захваченные записи.
func (m *Memory) StalePendings(_ context.Context, olderThan time.Time, limit int) ([]PendingRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var refs []PendingRef
	for _, b := range m.batches {
		for _, r := range b.records {
			if r.record.Status.Kind() == domain.StatusPending && r.pendingSince.Before(olderThan) {
				refs = append(refs, PendingRef{BatchID: b.batch.ID, CommandID: r.record.ID, Since: r.pendingSince})
			}
		}
	}

	slices.SortFunc(refs, func(a, b PendingRef) int {
		return a.Since.Compare(b.Since)
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// --- Helpers ---

func (b *memBatch) activeRun() *memRun {
	for _, r := range b.runs {
		if r.run.IsActive() {
			return r
		}
	}
	return nil
}

// activeRuns возвращает активные запуски. Больше одного — нарушение инварианта.
func (b *memBatch) activeRuns() ([]*memRun, error) {
	var active []*memRun
	for _, r := range b.runs {
		if r.run.IsActive() {
			active = append(active, r)
		}
	}
	if len(active) > 1 {
		return nil, fmt.Errorf("%w: batch %d has %d active background runs", ErrInvariantViolation, b.batch.ID, len(active))
	}
	return active, nil
}

// stopRuns останавливает активные запуски. При нарушении инварианта
// ничего не меняется.
func (b *memBatch) stopRuns(now time.Time, user *domain.LocalUser) (int, error) {
	active, err := b.activeRuns()
	if err != nil {
		return 0, err
	}

	for _, r := range active {
		stoppedAt := now
		r.run.StoppedAt = &stoppedAt
		if user != nil {
			u := *user
			r.run.StoppedBy = &u
		}
		r.run.SuspendedUntil = nil
	}
	return len(active), nil
}

func window(records []*memRecord, offset, limit int) []*memRecord {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= len(records) {
		return nil
	}
	end := min(offset+limit, len(records))
	return records[offset:end]
}

func cloneCommand(cmd domain.Command) domain.Command {
	return domain.Command{Page: cmd.Page, Actions: slices.Clone(cmd.Actions)}
}

func copyRecord(r domain.CommandRecord) domain.CommandRecord {
	r.Command = cloneCommand(r.Command)
	return r
}
