package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/mq"
	"github.com/shaiso/quickcategories/internal/orchestrator"
	"github.com/shaiso/quickcategories/internal/store"
	"github.com/shaiso/quickcategories/internal/telemetry"
	"github.com/shaiso/quickcategories/internal/wiki"
)

// Default configuration values.
const (
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 5
)

// Config — конфигурация Worker.
type Config struct {
	Store    store.Store
	Wiki     wiki.Client
	Executor *orchestrator.Executor

	// Conn — необязательное соединение с RabbitMQ для пробуждений.
	Conn *mq.Connection

	PollInterval time.Duration // default: 5s
	MaxAttempts  int           // default: 5

	Logger *slog.Logger
}

// Worker выполняет команды фоновых запусков по одной.
type Worker struct {
	store store.Store
	wiki  wiki.Client
	exec  *orchestrator.Executor
	conn  *mq.Connection

	pollInterval time.Duration
	maxAttempts  int

	logger *slog.Logger
	wake   chan struct{}

	mu      sync.Mutex
	running bool
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exec := cfg.Executor
	if exec == nil {
		exec = orchestrator.NewExecutor(orchestrator.ExecutorConfig{ResolveRedirects: true})
	}

	return &Worker{
		store:        cfg.Store,
		wiki:         cfg.Wiki,
		exec:         exec,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		logger:       logger,
		wake:         make(chan struct{}, 1),
	}
}

// Wake будит цикл, если он ждёт работы.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run выполняет команды до отмены ctx. Возвращает nil после отмены
// и ошибку при нарушении инварианта хранилища.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	if w.conn != nil {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:   mq.QueueBackgroundWakeup,
			Handler: w.handleWakeup,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("wakeup consumer error", "error", err)
			}
		}()
	}

	w.logger.Info("worker started", "poll_interval", w.pollInterval, "max_attempts", w.maxAttempts)
	err := w.loop(ctx)

	cancel()
	wg.Wait()
	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) handleWakeup(_ context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.BackgroundStartedPayload](msg)
	if err != nil {
		return err
	}
	w.logger.Debug("wakeup received", "batch_id", payload.BatchID)
	w.Wake()
	return nil
}

func (w *Worker) loop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		worked, err := w.step(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, store.ErrInvariantViolation):
			w.logger.Error("store invariant violated, stopping worker", "error", err)
			return err
		case err != nil:
			w.logger.Error("background step failed", "error", err)
		case worked:
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// step захватывает и выполняет одну команду. worked == false — работы нет.
func (w *Worker) step(ctx context.Context) (worked bool, err error) {
	claim, err := w.store.ClaimNextGlobalPlan(ctx)
	if err != nil {
		return false, fmt.Errorf("claim next plan: %w", err)
	}
	if claim == nil {
		return false, nil
	}
	telemetry.CommandsClaimed(telemetry.PathBackground, 1)
	return true, w.process(ctx, claim)
}

func (w *Worker) process(ctx context.Context, claim *store.Claim) error {
	batch, rec := claim.Batch, claim.Record
	logger := telemetry.WithCommandID(telemetry.WithBatchID(w.logger, batch.ID), rec.ID)
	sess := w.wiki.Session(batch.Domain, claim.Credentials)

	var finish domain.Finish
	for attempt := 1; ; attempt++ {
		f, err := w.exec.ExecuteCommand(ctx, sess, batch, rec.Command)
		if err != nil {
			return w.abandon(ctx, logger, claim, err)
		}
		finish = f

		failure, ok := f.(domain.Failure)
		if !ok || !failure.RetryImmediately() || attempt >= w.maxAttempts {
			break
		}
		logger.Debug("retrying command", "attempt", attempt, "failure", failure.Type)
	}

	cf := domain.CommandFinish{ID: rec.ID, Command: rec.Command, Finish: finish}
	if err := w.store.StoreFinish(ctx, batch.ID, cf); err != nil {
		return fmt.Errorf("store finish %d: %w", rec.ID, err)
	}
	telemetry.CommandFinished(orchestrator.OutcomeLabel(finish))
	logger.Info("command finished", "outcome", orchestrator.OutcomeLabel(finish))

	failure, ok := finish.(domain.Failure)
	if !ok {
		return nil
	}
	switch c := failure.Continuation(); c.Kind {
	case domain.StopBatch:
		if err := w.store.StopBackground(ctx, batch.ID, nil); err != nil {
			return fmt.Errorf("stop background: %w", err)
		}
		telemetry.BackgroundStopped(string(failure.Type))
		logger.Warn("background stopped", "reason", failure.String())
	case domain.SuspendBatch:
		if err := w.store.SuspendBackground(ctx, batch.ID, c.Until); err != nil {
			return fmt.Errorf("suspend background: %w", err)
		}
		logger.Info("background suspended", "until", c.Until, "reason", failure.String())
	}
	return nil
}

// abandon обрабатывает неклассифицированную ошибку: запись возвращается
// в PLAN, фоновое выполнение батча останавливается. При отмене ctx
// запись только возвращается в PLAN.
func (w *Worker) abandon(ctx context.Context, logger *slog.Logger, claim *store.Claim, cause error) error {
	batchID := claim.Batch.ID
	bg := context.WithoutCancel(ctx)

	if err := w.store.MakePendingsPlanned(bg, batchID, []int64{claim.Record.ID}); err != nil {
		return errors.Join(cause, fmt.Errorf("revert pending: %w", err))
	}
	if ctx.Err() != nil {
		return nil
	}

	logger.Error("unclassified failure, stopping background run", "error", cause)
	if err := w.store.StopBackground(bg, batchID, nil); err != nil {
		return fmt.Errorf("stop background: %w", err)
	}
	telemetry.BackgroundStopped("unclassified")
	return nil
}
