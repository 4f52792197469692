package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/quickcategories/internal/store"
	"github.com/shaiso/quickcategories/internal/telemetry"
)

// LockKey — ключ advisory lock лидера прохода.
const LockKey int64 = 424242

// Leader — выбор лидера среди экземпляров.
type Leader interface {
	// TryAcquire захватывает лидерство или подтверждает, что оно ещё за нами.
	TryAcquire(ctx context.Context) (bool, error)
	// Release отдаёт лидерство.
	Release(ctx context.Context) error
}

// Config — конфигурация Sweeper.
type Config struct {
	Store      store.Store
	StaleAfter time.Duration // возраст захвата, после которого он считается брошенным (default: 1h)
	Schedule   string        // расписание прохода (default: "@every 5m")
	BatchSize  int           // записей за один тик (default: 500)
	Leader     Leader        // опционально
	Now        func() time.Time
	Logger     *slog.Logger
}

// Sweeper периодически возвращает зависшие PENDING в PLAN.
type Sweeper struct {
	store      store.Store
	staleAfter time.Duration
	batchSize  int
	leader     Leader
	now        func() time.Time
	logger     *slog.Logger

	cron *cron.Cron
	ctx  context.Context
}

// New создаёт Sweeper. Ошибка возвращается только для некорректного расписания.
func New(cfg Config) (*Sweeper, error) {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	s := &Sweeper{
		store:      cfg.Store,
		staleAfter: cfg.StaleAfter,
		batchSize:  cfg.BatchSize,
		leader:     cfg.Leader,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}

	clog := cronLogger{logger: cfg.Logger}
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	s.cron.Schedule(sched, cron.FuncJob(s.run))
	return s, nil
}

// Start запускает проход по расписанию. Тики используют ctx, заданный здесь.
func (s *Sweeper) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("sweeper started", "stale_after", s.staleAfter)
}

// Stop останавливает расписание, дожидается текущего тика и отдаёт лидерство.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	if s.leader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.leader.Release(ctx); err != nil {
			s.logger.Warn("failed to release leadership", "error", err)
		}
	}
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run() {
	if _, err := s.Tick(s.ctx); err != nil {
		s.logger.Error("sweep tick failed", "error", err)
	}
}

// Tick выполняет один проход и возвращает число откатанных записей.
//
// 1. Проверяет лидерство (без Leader — всегда лидер)
// 2. Находит PENDING старше StaleAfter
// 3. Возвращает их в PLAN, группируя по батчам
//
// Ошибка одного батча не блокирует остальные.
func (s *Sweeper) Tick(ctx context.Context) (int, error) {
	if s.leader != nil {
		leader, err := s.leader.TryAcquire(ctx)
		if err != nil {
			return 0, fmt.Errorf("leader election: %w", err)
		}
		if !leader {
			s.logger.Debug("not a leader, skipping sweep")
			return 0, nil
		}
	}

	refs, err := s.store.StalePendings(ctx, s.now().Add(-s.staleAfter), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale pendings: %w", err)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	var order []int64
	byBatch := make(map[int64][]int64)
	for _, ref := range refs {
		if _, ok := byBatch[ref.BatchID]; !ok {
			order = append(order, ref.BatchID)
		}
		byBatch[ref.BatchID] = append(byBatch[ref.BatchID], ref.CommandID)
	}

	var recovered int
	for _, batchID := range order {
		ids := byBatch[batchID]
		if err := s.store.MakePendingsPlanned(ctx, batchID, ids); err != nil {
			s.logger.Error("failed to recover stale pendings",
				"batch_id", batchID,
				"count", len(ids),
				"error", err,
			)
			continue
		}
		recovered += len(ids)
		s.logger.Warn("recovered stale pendings",
			"batch_id", batchID,
			"command_ids", ids,
		)
	}

	telemetry.StalePendingsRecovered(recovered)
	s.logger.Info("sweep tick completed",
		"stale", len(refs),
		"recovered", recovered,
	)
	return recovered, nil
}
