// QuickCategories Scheduler — возврат брошенных захватов в очередь.
//
// Запись остаётся PENDING, если процесс упал до сохранения результата.
// Scheduler по расписанию SWEEP_SCHEDULE возвращает такие записи в PLAN.
// Из нескольких экземпляров работает только держатель pg_advisory_lock.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/quickcategories/internal/config"
	"github.com/shaiso/quickcategories/internal/repo"
	"github.com/shaiso/quickcategories/internal/scheduler"
	"github.com/shaiso/quickcategories/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting quickcategories-scheduler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.DBURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	sweeper, err := scheduler.New(scheduler.Config{
		Store:      repo.NewBatchRepo(repo.BatchRepoConfig{Pool: pool}),
		StaleAfter: cfg.StalePendingAfter,
		Schedule:   cfg.SweepSchedule,
		Leader:     repo.NewAdvisoryLock(pool, scheduler.LockKey),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.SchedPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop дожидается текущего прохода и отдаёт лидерство до закрытия пула
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("quickcategories-scheduler stopped")
}
