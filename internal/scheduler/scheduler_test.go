package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/store"
	"github.com/shaiso/quickcategories/internal/store/storetest"
)

var (
	owner = domain.LocalUser{Domain: "en.wikipedia.org", LocalUserID: 1, UserName: "Owner"}
	start = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

type fakeLeader struct {
	leader   bool
	err      error
	released int
}

func (l *fakeLeader) TryAcquire(context.Context) (bool, error) { return l.leader, l.err }

func (l *fakeLeader) Release(context.Context) error {
	l.released++
	return nil
}

func newSweeper(t *testing.T, st store.Store, clock *storetest.Clock, leader Leader) *Sweeper {
	t.Helper()
	cfg := Config{
		Store:      st,
		StaleAfter: time.Hour,
		Schedule:   "@every 1h",
		Now:        clock.Now,
		Logger:     slog.New(slog.DiscardHandler),
	}
	if leader != nil {
		cfg.Leader = leader
	}
	sw, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sw
}

func storeBatch(t *testing.T, st store.Store, titles ...string) *domain.StoredBatch {
	t.Helper()
	nb := domain.NewBatch{}
	for _, title := range titles {
		nb.Commands = append(nb.Commands, domain.Command{
			Page:    domain.Page{Title: title},
			Actions: []domain.Action{domain.AddCategory{Category: "X"}},
		})
	}
	b, err := st.StoreBatch(context.Background(), nb, owner)
	if err != nil {
		t.Fatalf("StoreBatch: %v", err)
	}
	return b
}

func statuses(t *testing.T, st store.Store, batchID int64) []domain.StatusKind {
	t.Helper()
	records, err := st.Slice(context.Background(), batchID, 0, 100)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	kinds := make([]domain.StatusKind, len(records))
	for i, r := range records {
		kinds[i] = r.Status.Kind()
	}
	return kinds
}

// --- Tick Tests ---

func TestTick_RecoversStalePendings(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	st := store.NewMemory(store.MemoryConfig{Now: clock.Now})
	sw := newSweeper(t, st, clock, nil)

	first := storeBatch(t, st, "A", "B", "C")
	second := storeBatch(t, st, "D")

	if _, err := st.MakePlansPending(ctx, first.ID, 0, 2); err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	if _, err := st.MakePlansPending(ctx, second.ID, 0, 1); err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	clock.Advance(30 * time.Minute)
	if _, err := st.MakePlansPending(ctx, first.ID, 2, 1); err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	clock.Advance(45 * time.Minute)

	recovered, err := sw.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if recovered != 3 {
		t.Errorf("recovered = %d, want 3", recovered)
	}

	want := []domain.StatusKind{domain.StatusPlan, domain.StatusPlan, domain.StatusPending}
	if diff := cmp.Diff(want, statuses(t, st, first.ID)); diff != "" {
		t.Errorf("first batch statuses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]domain.StatusKind{domain.StatusPlan}, statuses(t, st, second.ID)); diff != "" {
		t.Errorf("second batch statuses (-want +got):\n%s", diff)
	}
}

func TestTick_NothingStale(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	st := store.NewMemory(store.MemoryConfig{Now: clock.Now})
	sw := newSweeper(t, st, clock, nil)

	b := storeBatch(t, st, "A")
	if _, err := st.MakePlansPending(ctx, b.ID, 0, 1); err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	clock.Advance(time.Minute)

	recovered, err := sw.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if recovered != 0 {
		t.Errorf("recovered = %d, want 0", recovered)
	}
	if got := statuses(t, st, b.ID)[0]; got != domain.StatusPending {
		t.Errorf("status = %v, want PENDING", got)
	}
}

func TestTick_NotLeader(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock(start)
	st := store.NewMemory(store.MemoryConfig{Now: clock.Now})
	leader := &fakeLeader{}
	sw := newSweeper(t, st, clock, leader)

	b := storeBatch(t, st, "A")
	if _, err := st.MakePlansPending(ctx, b.ID, 0, 1); err != nil {
		t.Fatalf("MakePlansPending: %v", err)
	}
	clock.Advance(2 * time.Hour)

	recovered, err := sw.Tick(ctx)
	if err != nil || recovered != 0 {
		t.Fatalf("Tick = %d, %v, want 0, nil", recovered, err)
	}
	if got := statuses(t, st, b.ID)[0]; got != domain.StatusPending {
		t.Errorf("status = %v, want PENDING", got)
	}

	leader.leader = true
	recovered, err = sw.Tick(ctx)
	if err != nil || recovered != 1 {
		t.Fatalf("Tick as leader = %d, %v, want 1, nil", recovered, err)
	}
}

func TestTick_LeaderError(t *testing.T) {
	clock := storetest.NewClock(start)
	st := store.NewMemory(store.MemoryConfig{Now: clock.Now})
	boom := errors.New("connection refused")
	sw := newSweeper(t, st, clock, &fakeLeader{err: boom})

	if _, err := sw.Tick(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Tick error = %v, want %v", err, boom)
	}
}

// --- Lifecycle Tests ---

func TestStartStop_ReleasesLeadership(t *testing.T) {
	clock := storetest.NewClock(start)
	st := store.NewMemory(store.MemoryConfig{Now: clock.Now})
	leader := &fakeLeader{leader: true}
	sw := newSweeper(t, st, clock, leader)

	sw.Start(context.Background())
	sw.Stop()

	if leader.released != 1 {
		t.Errorf("released = %d, want 1", leader.released)
	}
}

// --- Schedule Tests ---

func TestParseSchedule(t *testing.T) {
	from := time.Date(2024, 3, 1, 10, 2, 0, 0, time.UTC)
	tests := []struct {
		expr string
		next time.Time
	}{
		{"@every 5m", from.Add(5 * time.Minute)},
		{"*/15 * * * *", time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)},
		{"@hourly", time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := ParseSchedule(tt.expr)
			if err != nil {
				t.Fatalf("ParseSchedule: %v", err)
			}
			if got := sched.Next(from); !got.Equal(tt.next) {
				t.Errorf("Next = %v, want %v", got, tt.next)
			}
		})
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * *", "@every nope", "61 * * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q): expected error", expr)
		}
	}
	if _, err := New(Config{Schedule: "bogus"}); err == nil {
		t.Error("New with invalid schedule: expected error")
	}
}
