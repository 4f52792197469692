// QuickCategories Worker — фоновое выполнение батчей.
//
// Worker:
//   - Забирает команды батчей с активным фоновым запуском, по одной
//   - Повторяет команду при конфликте правок
//   - Приостанавливает или останавливает запуск по политике ошибки
//   - Просыпается по сообщению background.started или по таймеру
//
// Workers масштабируются горизонтально: захват записи атомарен.
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
	"github.com/shaiso/quickcategories/internal/mq"
	"github.com/shaiso/quickcategories/internal/orchestrator"
	"github.com/shaiso/quickcategories/internal/repo"
	"github.com/shaiso/quickcategories/internal/telemetry"
	"github.com/shaiso/quickcategories/internal/wiki"
	"github.com/shaiso/quickcategories/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting quickcategories-worker")

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

	wcfg := worker.Config{
		Store: repo.NewBatchRepo(repo.BatchRepoConfig{Pool: pool}),
		Wiki: wiki.New(wiki.Config{
			UserAgent:   cfg.WikiUserAgent,
			Maxlag:      cfg.WikiMaxlag,
			Scheme:      cfg.WikiScheme,
			SiteInfoTTL: cfg.SiteInfoTTL,
		}),
		Executor: orchestrator.NewExecutor(orchestrator.ExecutorConfig{
			ResolveRedirects: cfg.ResolveRedirects,
			SummarySuffix:    cfg.SummarySuffix,
		}),
		PollInterval: cfg.WorkerPollInterval,
		Logger:       logger,
	}

	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, "quickcategories-worker", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		wcfg.Conn = mqConn
	}

	w := worker.New(wcfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.WorkerPort,
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

	// Run блокируется до отмены ctx или фатальной ошибки хранилища
	runErr := w.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	if runErr != nil {
		logger.Error("worker failed", "error", runErr)
		os.Exit(1)
	}
	logger.Info("quickcategories-worker stopped")
}
