// QuickCategories API — HTTP API для создания батчей и управления их выполнением.
//
// API:
//   - Принимает батчи команд над категориями
//   - Синхронно выполняет окна команд от имени пользователя
//   - Запускает, приостанавливает и останавливает фоновое выполнение
//   - Будит worker через RabbitMQ (если доступен)
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

	"github.com/shaiso/quickcategories/internal/api"
	"github.com/shaiso/quickcategories/internal/config"
	"github.com/shaiso/quickcategories/internal/mq"
	"github.com/shaiso/quickcategories/internal/orchestrator"
	"github.com/shaiso/quickcategories/internal/repo"
	"github.com/shaiso/quickcategories/internal/telemetry"
	"github.com/shaiso/quickcategories/internal/wiki"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting quickcategories-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
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
	logger.Info("connected to database")

	wikiClient := wiki.New(wiki.Config{
		UserAgent:   cfg.WikiUserAgent,
		Maxlag:      cfg.WikiMaxlag,
		Scheme:      cfg.WikiScheme,
		SiteInfoTTL: cfg.SiteInfoTTL,
	})

	svcCfg := orchestrator.Config{
		Store: repo.NewBatchRepo(repo.BatchRepoConfig{Pool: pool}),
		Wiki:  wikiClient,
		Executor: orchestrator.NewExecutor(orchestrator.ExecutorConfig{
			ResolveRedirects: cfg.ResolveRedirects,
			SummarySuffix:    cfg.SummarySuffix,
		}),
		Logger: logger,
	}

	// RabbitMQ — необязателен: без него worker находит работу опросом
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, "quickcategories-api", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, worker wake-ups disabled", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		svcCfg.Notifier = mq.NewPublisher(mqConn, logger)
	}

	handler := api.NewHandler(api.Config{
		Service: orchestrator.New(svcCfg),
		Wiki:    wikiClient,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.APIPort
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
