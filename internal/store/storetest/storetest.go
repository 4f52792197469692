// Package storetest содержит общий набор тестов контракта store.Store.
//
// Каждая реализация хранилища вызывает Run из своего _test.go:
//
//	storetest.Run(t, func(t *testing.T, clock *storetest.Clock) store.Store {
//		return store.NewMemory(store.MemoryConfig{Now: clock.Now})
//	})
package storetest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/store"
)

// Clock — управляемые часы для тестов.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock создаёт часы, стоящие на start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now возвращает текущее время часов.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперёд.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory создаёт пустое хранилище, использующее clock как источник времени.
type Factory func(t *testing.T, clock *Clock) store.Store

// Run запускает все тесты контракта.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store, clock *Clock)
	}{
		{"StoreBatch", testStoreBatch},
		{"GetBatchNotFound", testGetBatchNotFound},
		{"GetLatestBatches", testGetLatestBatches},
		{"MakePlansPending", testMakePlansPending},
		{"MakePendingsPlanned", testMakePendingsPlanned},
		{"StoreFinish", testStoreFinish},
		{"StoreFinishRequiresPending", testStoreFinishRequiresPending},
		{"RetryLaterAppendsPlan", testRetryLaterAppendsPlan},
		{"Closure", testClosure},
		{"StartBackgroundIdempotent", testStartBackgroundIdempotent},
		{"StopBackground", testStopBackground},
		{"ClaimNextGlobalPlan", testClaimNextGlobalPlan},
		{"ClaimFairness", testClaimFairness},
		{"ClaimSkipsSuspended", testClaimSkipsSuspended},
		{"ConcurrentMakePlansPending", testConcurrentMakePlansPending},
		{"ConcurrentClaimNextGlobalPlan", testConcurrentClaimNextGlobalPlan},
		{"StalePendings", testStalePendings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
			tt.fn(t, newStore(t, clock), clock)
		})
	}
}

// --- Fixtures ---

var (
	owner = domain.LocalUser{Domain: "test.wikipedia.org", LocalUserID: 1, GlobalUserID: 100, UserName: "Owner"}
	other = domain.LocalUser{Domain: "test.wikipedia.org", LocalUserID: 2, GlobalUserID: 200, UserName: "Other"}
	creds = domain.Credentials{AccessToken: "token-1"}
)

func newBatch(title string, n int) domain.NewBatch {
	nb := domain.NewBatch{Title: title}
	for i := range n {
		nb.Commands = append(nb.Commands, domain.Command{
			Page: domain.Page{Title: "Page " + string(rune('A'+i%26)) + title},
			Actions: []domain.Action{
				domain.AddCategory{Category: "Cat"},
				domain.RemoveCategoryWithSortKey{Category: "Old", SortKey: "k"},
			},
		})
	}
	return nb
}

func mustStore(t *testing.T, s store.Store, nb domain.NewBatch) *domain.StoredBatch {
	t.Helper()
	b, err := s.StoreBatch(context.Background(), nb, owner)
	if err != nil {
		t.Fatalf("StoreBatch: %v", err)
	}
	return b
}

func mustSlice(t *testing.T, s store.Store, batchID int64) []domain.CommandRecord {
	t.Helper()
	records, err := s.Slice(context.Background(), batchID, 0, 1000)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	return records
}

func mustClaimAll(t *testing.T, s store.Store, batchID int64) []domain.CommandRecord {
	t.Helper()
	pendings, err := s.MakePlansPending(context.Background(), batchID, 0, 1000)
	if err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	return pendings
}

func mustFinish(t *testing.T, s store.Store, batchID int64, rec domain.CommandRecord, finish domain.Finish) {
	t.Helper()
	err := s.StoreFinish(context.Background(), batchID, domain.CommandFinish{ID: rec.ID, Command: rec.Command, Finish: finish})
	if err != nil {
		t.Fatalf("StoreFinish(%d): %v", rec.ID, err)
	}
}

func ids(records []domain.CommandRecord) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// --- Tests ---

func testStoreBatch(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	nb := newBatch("first", 3)

	b := mustStore(t, s, nb)
	if b.Status != domain.BatchStatusOpen {
		t.Errorf("Status = %s, want OPEN", b.Status)
	}
	if b.Title != "first" || b.Domain != owner.Domain || !b.Owner.Equal(owner) {
		t.Errorf("unexpected batch: %+v", b)
	}
	if !b.CreatedAt.Equal(clock.Now()) || !b.LastUpdatedAt.Equal(clock.Now()) {
		t.Errorf("timestamps = %v / %v, want %v", b.CreatedAt, b.LastUpdatedAt, clock.Now())
	}

	got, err := s.GetBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.ID != b.ID || got.Owner.UserName != owner.UserName {
		t.Errorf("GetBatch = %+v", got)
	}

	records := mustSlice(t, s, b.ID)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.Status.Kind() != domain.StatusPlan {
			t.Errorf("records[%d] status = %s, want PLAN", i, r.Status.Kind())
		}
		if r.Command.Page.Title != nb.Commands[i].Page.Title {
			t.Errorf("records[%d] page = %q, want %q", i, r.Command.Page.Title, nb.Commands[i].Page.Title)
		}
		if len(r.Command.Actions) != 2 || r.Command.Actions[1] != nb.Commands[i].Actions[1] {
			t.Errorf("records[%d] actions = %v", i, r.Command.Actions)
		}
		if i > 0 && r.ID <= records[i-1].ID {
			t.Errorf("record ids not increasing: %v", ids(records))
		}
	}

	second := mustStore(t, s, newBatch("second", 1))
	if second.ID <= b.ID {
		t.Errorf("batch ids not increasing: %d then %d", b.ID, second.ID)
	}
	if next := mustSlice(t, s, second.ID); next[0].ID <= records[2].ID {
		t.Errorf("command ids must be store-wide: %d after %d", next[0].ID, records[2].ID)
	}

	counts, err := s.CountByStatus(ctx, b.ID)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[domain.StatusPlan] != 3 {
		t.Errorf("CountByStatus = %v", counts)
	}
}

func testGetBatchNotFound(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	if _, err := s.GetBatch(ctx, 999999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetBatch error = %v, want ErrNotFound", err)
	}
	if err := s.StartBackground(ctx, 999999, owner, creds); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("StartBackground error = %v, want ErrNotFound", err)
	}
}

func testGetLatestBatches(t *testing.T, s store.Store, _ *Clock) {
	var stored []int64
	for range 3 {
		stored = append(stored, mustStore(t, s, newBatch("b", 1)).ID)
	}

	latest, err := s.GetLatestBatches(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetLatestBatches: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(latest))
	}
	if latest[0].ID != stored[2] || latest[1].ID != stored[1] {
		t.Errorf("latest = %d, %d; want %d, %d", latest[0].ID, latest[1].ID, stored[2], stored[1])
	}
}

func testMakePlansPending(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("w", 5))
	records := mustSlice(t, s, b.ID)

	claimed, err := s.MakePlansPending(ctx, b.ID, 1, 2)
	if err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	if !slices.Equal(ids(claimed), ids(records[1:3])) {
		t.Errorf("claimed %v, want %v", ids(claimed), ids(records[1:3]))
	}
	for _, r := range claimed {
		if r.Status.Kind() != domain.StatusPending {
			t.Errorf("claimed record %d status = %s", r.ID, r.Status.Kind())
		}
	}

	// окно пересекается с уже захваченными записями
	again, err := s.MakePlansPending(ctx, b.ID, 0, 3)
	if err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	if !slices.Equal(ids(again), []int64{records[0].ID}) {
		t.Errorf("second claim %v, want [%d]", ids(again), records[0].ID)
	}

	if empty, _ := s.MakePlansPending(ctx, b.ID, 10, 5); len(empty) != 0 {
		t.Errorf("window past the end claimed %v", ids(empty))
	}
}

func testMakePendingsPlanned(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("r", 3))
	claimed := mustClaimAll(t, s, b.ID)

	mustFinish(t, s, b.ID, claimed[0], domain.Noop{Revision: 1})

	if err := s.MakePendingsPlanned(ctx, b.ID, ids(claimed)); err != nil {
		t.Fatalf("MakePendingsPlanned: %v", err)
	}

	records := mustSlice(t, s, b.ID)
	want := []domain.StatusKind{domain.StatusNoop, domain.StatusPlan, domain.StatusPlan}
	for i, r := range records {
		if r.Status.Kind() != want[i] {
			t.Errorf("records[%d] = %s, want %s", i, r.Status.Kind(), want[i])
		}
	}
}

func testStoreFinish(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("f", 2))
	claimed := mustClaimAll(t, s, b.ID)

	clock.Advance(time.Minute)
	mustFinish(t, s, b.ID, claimed[0], domain.Edit{BaseRevision: 10, Revision: 11})

	records := mustSlice(t, s, b.ID)
	edit, ok := records[0].Status.(domain.Edit)
	if !ok || edit.BaseRevision != 10 || edit.Revision != 11 {
		t.Errorf("records[0].Status = %#v", records[0].Status)
	}

	got, _ := s.GetBatch(ctx, b.ID)
	if !got.LastUpdatedAt.Equal(clock.Now()) {
		t.Errorf("LastUpdatedAt = %v, want %v", got.LastUpdatedAt, clock.Now())
	}
	if got.IsClosed() {
		t.Error("batch with a pending record must stay open")
	}
}

func testStoreFinishRequiresPending(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("p", 1))
	rec := mustSlice(t, s, b.ID)[0]

	err := s.StoreFinish(ctx, b.ID, domain.CommandFinish{ID: rec.ID, Command: rec.Command, Finish: domain.Noop{Revision: 1}})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("StoreFinish on PLAN error = %v, want ErrInvalidState", err)
	}
}

func testRetryLaterAppendsPlan(t *testing.T, s store.Store, _ *Clock) {
	b := mustStore(t, s, newBatch("retry", 2))
	claimed := mustClaimAll(t, s, b.ID)

	failures := []domain.Failure{
		domain.NewFailure(domain.FailureEditConflict),
		domain.NewFailure(domain.FailurePageMissing),
	}

	before := mustSlice(t, s, b.ID)
	mustFinish(t, s, b.ID, claimed[0], failures[0])
	after := mustSlice(t, s, b.ID)

	if len(after) != len(before)+1 {
		t.Fatalf("record count %d -> %d, want +1", len(before), len(after))
	}
	fresh := after[len(after)-1]
	if fresh.Status.Kind() != domain.StatusPlan {
		t.Errorf("new record status = %s, want PLAN", fresh.Status.Kind())
	}
	for _, r := range before {
		if fresh.ID <= r.ID {
			t.Errorf("new record id %d is not fresh (existing %d)", fresh.ID, r.ID)
		}
	}
	if fresh.Command.Page != claimed[0].Command.Page || !slices.Equal(fresh.Command.Actions, claimed[0].Command.Actions) {
		t.Errorf("new record command = %v, want %v", fresh.Command, claimed[0].Command)
	}
	if f, ok := after[0].Status.(domain.Failure); !ok || f.Type != domain.FailureEditConflict {
		t.Errorf("finished record status = %#v", after[0].Status)
	}

	// без повтора позже запись не добавляется
	mustFinish(t, s, b.ID, claimed[1], failures[1])
	if final := mustSlice(t, s, b.ID); len(final) != len(after) {
		t.Errorf("record count %d -> %d, want unchanged", len(after), len(final))
	}
}

func testClosure(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("close", 2))

	if err := s.StartBackground(ctx, b.ID, owner, creds); err != nil {
		t.Fatalf("StartBackground: %v", err)
	}

	claimed := mustClaimAll(t, s, b.ID)
	mustFinish(t, s, b.ID, claimed[0], domain.Noop{Revision: 1})

	if got, _ := s.GetBatch(ctx, b.ID); got.IsClosed() {
		t.Fatal("batch closed while a record is pending")
	}

	mustFinish(t, s, b.ID, claimed[1], domain.NewFailure(domain.FailureTitleInvalid))

	got, err := s.GetBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !got.IsClosed() {
		t.Error("batch with only finished records must be closed")
	}
	for _, r := range mustSlice(t, s, b.ID) {
		if !r.IsFinished() {
			t.Errorf("record %d is %s in a closed batch", r.ID, r.Status.Kind())
		}
	}

	runs, _ := s.BackgroundRuns(ctx, b.ID)
	if len(runs) != 1 || runs[0].IsActive() {
		t.Errorf("closing must stop the active run: %+v", runs)
	}
	if runs[0].StoppedBy != nil {
		t.Errorf("StoppedBy = %+v, want nil for system stop", runs[0].StoppedBy)
	}

	if err := s.StartBackground(ctx, b.ID, owner, creds); !errors.Is(err, store.ErrBatchClosed) {
		t.Errorf("StartBackground on closed batch error = %v, want ErrBatchClosed", err)
	}
	if err := s.MakePendingsPlanned(ctx, b.ID, ids(claimed)); err != nil {
		t.Fatalf("MakePendingsPlanned: %v", err)
	}
	if got, _ := s.GetBatch(ctx, b.ID); !got.IsClosed() {
		t.Error("closed batch reopened")
	}
}

func testStartBackgroundIdempotent(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("bg", 1))

	for range 3 {
		if err := s.StartBackground(ctx, b.ID, owner, creds); err != nil {
			t.Fatalf("StartBackground: %v", err)
		}
	}

	runs, err := s.BackgroundRuns(ctx, b.ID)
	if err != nil {
		t.Fatalf("BackgroundRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if !runs[0].IsActive() || !runs[0].StartedBy.Equal(owner) {
		t.Errorf("run = %+v", runs[0])
	}
}

func testStopBackground(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("stop", 1))

	// остановка без активного запуска ничего не делает
	if err := s.StopBackground(ctx, b.ID, &other); err != nil {
		t.Fatalf("StopBackground without run: %v", err)
	}
	if err := s.SuspendBackground(ctx, b.ID, clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SuspendBackground without run: %v", err)
	}

	if err := s.StartBackground(ctx, b.ID, owner, creds); err != nil {
		t.Fatalf("StartBackground: %v", err)
	}
	if err := s.SuspendBackground(ctx, b.ID, clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SuspendBackground: %v", err)
	}
	clock.Advance(time.Second)
	if err := s.StopBackground(ctx, b.ID, &other); err != nil {
		t.Fatalf("StopBackground: %v", err)
	}

	runs, _ := s.BackgroundRuns(ctx, b.ID)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.IsActive() || !run.StoppedAt.Equal(clock.Now()) {
		t.Errorf("StoppedAt = %v, want %v", run.StoppedAt, clock.Now())
	}
	if run.StoppedBy == nil || !run.StoppedBy.Equal(other) {
		t.Errorf("StoppedBy = %+v, want %+v", run.StoppedBy, other)
	}
	if run.SuspendedUntil != nil {
		t.Errorf("stop must clear suspension, got %v", run.SuspendedUntil)
	}

	// после остановки можно запустить заново
	if err := s.StartBackground(ctx, b.ID, owner, creds); err != nil {
		t.Fatalf("StartBackground again: %v", err)
	}
	if runs, _ := s.BackgroundRuns(ctx, b.ID); len(runs) != 2 || !runs[1].IsActive() {
		t.Errorf("runs after restart = %+v", runs)
	}
}

func testClaimNextGlobalPlan(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()

	if claim, err := s.ClaimNextGlobalPlan(ctx); err != nil || claim != nil {
		t.Fatalf("empty store claim = %+v, %v", claim, err)
	}

	b := mustStore(t, s, newBatch("g", 2))
	if claim, _ := s.ClaimNextGlobalPlan(ctx); claim != nil {
		t.Fatalf("claimed from a batch without background run: %+v", claim)
	}

	if err := s.StartBackground(ctx, b.ID, owner, creds); err != nil {
		t.Fatalf("StartBackground: %v", err)
	}
	records := mustSlice(t, s, b.ID)

	claim, err := s.ClaimNextGlobalPlan(ctx)
	if err != nil {
		t.Fatalf("ClaimNextGlobalPlan: %v", err)
	}
	if claim == nil {
		t.Fatal("expected a claim")
	}
	if claim.Batch.ID != b.ID || claim.Record.ID != records[0].ID {
		t.Errorf("claim = batch %d record %d, want %d/%d", claim.Batch.ID, claim.Record.ID, b.ID, records[0].ID)
	}
	if claim.Credentials != creds {
		t.Errorf("Credentials = %+v, want %+v", claim.Credentials, creds)
	}
	if claim.Record.Status.Kind() != domain.StatusPending {
		t.Errorf("claimed status = %s", claim.Record.Status.Kind())
	}
	if claim.Record.Command.Page.Title != records[0].Command.Page.Title {
		t.Errorf("claimed command = %v", claim.Record.Command)
	}

	if err := s.StopBackground(ctx, b.ID, &owner); err != nil {
		t.Fatalf("StopBackground: %v", err)
	}
	if claim, _ := s.ClaimNextGlobalPlan(ctx); claim != nil {
		t.Errorf("claimed after stop: %+v", claim)
	}
}

func testClaimFairness(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()

	first := mustStore(t, s, newBatch("first", 3))
	clock.Advance(time.Second)
	second := mustStore(t, s, newBatch("second", 3))

	for _, id := range []int64{first.ID, second.ID} {
		if err := s.StartBackground(ctx, id, owner, creds); err != nil {
			t.Fatalf("StartBackground: %v", err)
		}
	}

	// первый батч обновлён раньше
	claim := claimOrFail(t, s)
	if claim.Batch.ID != first.ID {
		t.Fatalf("first claim from batch %d, want %d", claim.Batch.ID, first.ID)
	}

	clock.Advance(time.Second)
	mustFinish(t, s, first.ID, claim.Record, domain.Noop{Revision: 1})

	// теперь второй батч обновлён раньше
	claim = claimOrFail(t, s)
	if claim.Batch.ID != second.ID {
		t.Fatalf("second claim from batch %d, want %d", claim.Batch.ID, second.ID)
	}
	if want := mustSlice(t, s, second.ID)[0].ID; claim.Record.ID != want {
		t.Errorf("claimed record %d, want smallest plan %d", claim.Record.ID, want)
	}
}

func testClaimSkipsSuspended(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()

	older := mustStore(t, s, newBatch("older", 1))
	clock.Advance(time.Second)
	newer := mustStore(t, s, newBatch("newer", 1))

	for _, id := range []int64{older.ID, newer.ID} {
		if err := s.StartBackground(ctx, id, owner, creds); err != nil {
			t.Fatalf("StartBackground: %v", err)
		}
	}
	if err := s.SuspendBackground(ctx, older.ID, clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SuspendBackground: %v", err)
	}

	claim := claimOrFail(t, s)
	if claim.Batch.ID != newer.ID {
		t.Fatalf("claim from batch %d, want not suspended %d", claim.Batch.ID, newer.ID)
	}
	if claim, _ := s.ClaimNextGlobalPlan(ctx); claim != nil {
		t.Fatalf("claimed from suspended batch: %+v", claim)
	}

	clock.Advance(time.Minute)
	claim = claimOrFail(t, s)
	if claim.Batch.ID != older.ID {
		t.Errorf("claim after suspension from batch %d, want %d", claim.Batch.ID, older.ID)
	}
}

func claimOrFail(t *testing.T, s store.Store) *store.Claim {
	t.Helper()
	claim, err := s.ClaimNextGlobalPlan(context.Background())
	if err != nil {
		t.Fatalf("ClaimNextGlobalPlan: %v", err)
	}
	if claim == nil {
		t.Fatal("expected a claim")
	}
	return claim
}

func testConcurrentMakePlansPending(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("c", 20))
	records := mustSlice(t, s, b.ID)

	const workers = 8
	results := make([][]domain.CommandRecord, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error {
			claimed, err := s.MakePlansPending(gctx, b.ID, i*2, 8)
			results[i] = claimed
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}

	seen := make(map[int64]bool)
	for _, claimed := range results {
		for _, r := range claimed {
			if seen[r.ID] {
				t.Errorf("record %d claimed twice", r.ID)
			}
			seen[r.ID] = true
		}
	}
	if len(seen) != len(records) {
		t.Errorf("claimed %d records, want %d", len(seen), len(records))
	}
}

func testConcurrentClaimNextGlobalPlan(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()

	var total int
	for _, n := range []int{3, 4, 5} {
		b := mustStore(t, s, newBatch("cc", n))
		if err := s.StartBackground(ctx, b.ID, owner, creds); err != nil {
			t.Fatalf("StartBackground: %v", err)
		}
		total += n
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	g, gctx := errgroup.WithContext(ctx)
	for range 6 {
		g.Go(func() error {
			for {
				claim, err := s.ClaimNextGlobalPlan(gctx)
				if err != nil || claim == nil {
					return err
				}
				mu.Lock()
				if seen[claim.Record.ID] {
					mu.Unlock()
					return errors.New("record claimed twice")
				}
				seen[claim.Record.ID] = true
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ClaimNextGlobalPlan: %v", err)
	}
	if len(seen) != total {
		t.Errorf("claimed %d records, want %d", len(seen), total)
	}
}

func testStalePendings(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	b := mustStore(t, s, newBatch("stale", 2))

	old, err := s.MakePlansPending(ctx, b.ID, 0, 1)
	if err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := s.MakePlansPending(ctx, b.ID, 1, 1); err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}

	refs, err := s.StalePendings(ctx, clock.Now().Add(-30*time.Minute), 10)
	if err != nil {
		t.Fatalf("StalePendings: %v", err)
	}
	if len(refs) != 1 || refs[0].CommandID != old[0].ID || refs[0].BatchID != b.ID {
		t.Errorf("StalePendings = %+v, want only %d", refs, old[0].ID)
	}
}
