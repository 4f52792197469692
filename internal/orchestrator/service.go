package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/engine"
	"github.com/shaiso/quickcategories/internal/store"
	"github.com/shaiso/quickcategories/internal/telemetry"
	"github.com/shaiso/quickcategories/internal/wiki"
)

// Notifier сообщает фоновому выполнению о появившейся работе.
type Notifier interface {
	PublishBackgroundStarted(ctx context.Context, batchID int64) error
}

// Config — зависимости Service.
type Config struct {
	Store    store.Store
	Wiki     wiki.Client
	Executor *Executor

	// Notifier — необязателен, без него worker найдёт работу опросом.
	Notifier Notifier

	Logger *slog.Logger
}

// Service — операции над батчами, доступные API.
type Service struct {
	store    store.Store
	wiki     wiki.Client
	exec     *Executor
	notifier Notifier
	logger   *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exec := cfg.Executor
	if exec == nil {
		exec = NewExecutor(ExecutorConfig{ResolveRedirects: true})
	}
	return &Service{
		store:    cfg.Store,
		wiki:     cfg.Wiki,
		exec:     exec,
		notifier: cfg.Notifier,
		logger:   logger,
	}
}

// Overview — батч со сводкой по статусам и историей фоновых запусков.
type Overview struct {
	Batch  domain.StoredBatch
	Counts map[domain.StatusKind]int
	Runs   []domain.BackgroundRun
}

// ActiveRun возвращает активный фоновый запуск или nil.
func (o *Overview) ActiveRun() *domain.BackgroundRun {
	for i := range o.Runs {
		if o.Runs[i].IsActive() {
			return &o.Runs[i]
		}
	}
	return nil
}

// SubmitBatch проверяет и сохраняет батч. Батч с ошибками не сохраняется
// целиком, ошибка — domain.ValidationErrors.
func (s *Service) SubmitBatch(ctx context.Context, nb domain.NewBatch, owner domain.LocalUser) (*domain.StoredBatch, error) {
	if err := nb.Validate(); err != nil {
		return nil, err
	}
	batch, err := s.store.StoreBatch(ctx, nb, owner)
	if err != nil {
		return nil, fmt.Errorf("store batch: %w", err)
	}

	telemetry.WithUser(telemetry.WithBatchID(s.logger, batch.ID), owner.Domain, owner.LocalUserID).
		Info("batch submitted", "commands", len(nb.Commands))
	return batch, nil
}

// GetBatch возвращает батч.
func (s *Service) GetBatch(ctx context.Context, id int64) (*domain.StoredBatch, error) {
	return s.store.GetBatch(ctx, id)
}

// Overview возвращает батч со сводкой.
func (s *Service) Overview(ctx context.Context, id int64) (*Overview, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountByStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count commands: %w", err)
	}
	runs, err := s.store.BackgroundRuns(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("background runs: %w", err)
	}
	return &Overview{Batch: *batch, Counts: counts, Runs: runs}, nil
}

// LatestBatches возвращает последние батчи.
func (s *Service) LatestBatches(ctx context.Context, limit int) ([]domain.StoredBatch, error) {
	return s.store.GetLatestBatches(ctx, store.ClampLatestLimit(limit))
}

// Commands возвращает записи батча в окне [offset, offset+limit).
func (s *Service) Commands(ctx context.Context, batchID int64, offset, limit int) ([]domain.CommandRecord, error) {
	if offset < 0 || limit < 0 {
		return nil, ErrInvalidWindow
	}
	if _, err := s.store.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.store.Slice(ctx, batchID, offset, limit)
}

func (s *Service) ownedBatch(ctx context.Context, batchID int64, user domain.LocalUser) (*domain.StoredBatch, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Owner.Equal(user) {
		return nil, ErrForbidden
	}
	return batch, nil
}

// RunSlice синхронно выполняет записи PLAN в окне [offset, offset+limit).
//
// Каждая команда выполняется один раз, результат сохраняется сразу.
// При неклассифицированной ошибке текущая и оставшиеся захваченные записи
// возвращаются в PLAN, активный фоновый запуск батча останавливается,
// а ошибка возвращается вызывающему вместе с уже сохранёнными результатами.
func (s *Service) RunSlice(ctx context.Context, batchID int64, offset, limit int, user domain.LocalUser, creds domain.Credentials) ([]domain.CommandFinish, error) {
	if offset < 0 || limit < 0 {
		return nil, ErrInvalidWindow
	}
	batch, err := s.ownedBatch(ctx, batchID, user)
	if err != nil {
		return nil, err
	}
	logger := telemetry.WithBatchID(s.logger, batchID)

	pendings, err := s.store.MakePlansPending(ctx, batchID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("claim plans: %w", err)
	}
	if len(pendings) == 0 {
		return nil, nil
	}
	telemetry.CommandsClaimed(telemetry.PathSync, len(pendings))
	logger.Debug("slice claimed", "offset", offset, "limit", limit, "claimed", len(pendings))

	sess := s.wiki.Session(batch.Domain, creds)
	info, err := sess.CategoryInfo(ctx)
	if err != nil {
		return nil, s.revert(ctx, batchID, pendings, fmt.Errorf("category info: %w", err))
	}

	pages := newPageCache(sess, s.exec)
	finishes := make([]domain.CommandFinish, 0, len(pendings))
	for i, rec := range pendings {
		finish, err := s.runCached(ctx, sess, pages, info, *batch, pendings, i)
		if err != nil {
			telemetry.WithCommandID(logger, rec.ID).Error("command failed", "error", err)
			return finishes, s.revert(ctx, batchID, pendings[i:], err)
		}

		cf := domain.CommandFinish{ID: rec.ID, Command: rec.Command, Finish: finish}
		if err := s.store.StoreFinish(ctx, batchID, cf); err != nil {
			return finishes, s.revert(ctx, batchID, pendings[i:], fmt.Errorf("store finish %d: %w", rec.ID, err))
		}
		telemetry.CommandFinished(OutcomeLabel(finish))
		telemetry.WithCommandID(logger, rec.ID).Debug("command finished", "outcome", OutcomeLabel(finish))
		finishes = append(finishes, cf)
	}
	return finishes, nil
}

func (s *Service) runCached(ctx context.Context, sess wiki.Session, pages *pageCache, info engine.CategoryInfo, batch domain.StoredBatch, pendings []domain.CommandRecord, i int) (domain.Finish, error) {
	cmd := pendings[i].Command
	defer pages.forget(cmd)

	page, err := pages.get(ctx, pendings, i)
	if err != nil {
		return s.exec.classify(err)
	}
	return s.exec.Execute(ctx, sess, info, batch, cmd, page)
}

// revert возвращает захваченные записи в PLAN и возвращает cause.
// Если cause — ErrUnclassified, фоновый запуск батча останавливается.
func (s *Service) revert(ctx context.Context, batchID int64, records []domain.CommandRecord, cause error) error {
	bg := context.WithoutCancel(ctx)
	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := s.store.MakePendingsPlanned(bg, batchID, ids); err != nil {
		return errors.Join(cause, fmt.Errorf("revert pendings: %w", err))
	}
	if !errors.Is(cause, ErrUnclassified) {
		return cause
	}
	if err := s.store.StopBackground(bg, batchID, nil); err != nil {
		return errors.Join(cause, fmt.Errorf("stop background: %w", err))
	}
	telemetry.BackgroundStopped("unclassified")
	telemetry.WithBatchID(s.logger, batchID).Warn("background stopped", "reason", "unclassified")
	return cause
}

// StartBackground запускает фоновое выполнение батча от имени владельца.
func (s *Service) StartBackground(ctx context.Context, batchID int64, user domain.LocalUser, creds domain.Credentials) error {
	if creds.IsZero() {
		return ErrNoCredentials
	}
	if _, err := s.ownedBatch(ctx, batchID, user); err != nil {
		return err
	}
	if err := s.store.StartBackground(ctx, batchID, user, creds); err != nil {
		return fmt.Errorf("start background: %w", err)
	}

	logger := telemetry.WithBatchID(s.logger, batchID)
	logger.Info("background started", "user", user.UserName)
	if s.notifier != nil {
		if err := s.notifier.PublishBackgroundStarted(ctx, batchID); err != nil {
			logger.Warn("failed to notify worker", "error", err)
		}
	}
	return nil
}

// StopBackground останавливает фоновое выполнение батча.
func (s *Service) StopBackground(ctx context.Context, batchID int64, user domain.LocalUser) error {
	if _, err := s.ownedBatch(ctx, batchID, user); err != nil {
		return err
	}
	if err := s.store.StopBackground(ctx, batchID, &user); err != nil {
		return fmt.Errorf("stop background: %w", err)
	}
	telemetry.BackgroundStopped("user")
	telemetry.WithBatchID(s.logger, batchID).Info("background stopped", "user", user.UserName)
	return nil
}

// SuspendBackground приостанавливает фоновое выполнение до until.
func (s *Service) SuspendBackground(ctx context.Context, batchID int64, user domain.LocalUser, until time.Time) error {
	if _, err := s.ownedBatch(ctx, batchID, user); err != nil {
		return err
	}
	if err := s.store.SuspendBackground(ctx, batchID, until); err != nil {
		return fmt.Errorf("suspend background: %w", err)
	}
	telemetry.WithBatchID(s.logger, batchID).Info("background suspended", "until", until)
	return nil
}
