// Command server starts the curated query service HTTP server and its
// background job processor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/TranslatorSRI/cqs/internal/adapter/callback"
	"github.com/TranslatorSRI/cqs/internal/adapter/httpserver"
	"github.com/TranslatorSRI/cqs/internal/adapter/repo/postgres"
	"github.com/TranslatorSRI/cqs/internal/adapter/workflowrunner"
	"github.com/TranslatorSRI/cqs/internal/app"
	"github.com/TranslatorSRI/cqs/internal/config"
	"github.com/TranslatorSRI/cqs/internal/observability"
	"github.com/TranslatorSRI/cqs/internal/template"
	"github.com/TranslatorSRI/cqs/internal/usecase"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepo(pool)

	// Jobs left Running by a previous process are orphans; put them back in
	// the queue before the worker starts.
	if n, err := jobRepo.RequeueOrphans(ctx); err != nil {
		slog.Error("requeue orphans failed", slog.Any("error", err))
	} else if n > 0 {
		slog.Info("requeued orphaned jobs", slog.Int64("count", n))
	}

	registry, err := template.Load(cfg.TemplateDir)
	if err != nil {
		slog.Error("template load failed", slog.String("dir", cfg.TemplateDir), slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("templates loaded", slog.Int("count", registry.Len()))

	runner := workflowrunner.New(cfg.WorkflowRunnerURL)
	snaps := usecase.NewSnapshotWriter(cfg.WFROutputDir)
	querySvc := usecase.NewQueryService(cfg, registry, runner, snaps)

	proc := app.NewProcessor(cfg, jobRepo, querySvc, callback.New())
	sched, err := proc.StartScheduler()
	if err != nil {
		slog.Error("scheduler start failed", slog.Any("error", err))
		os.Exit(1)
	}

	dbCheck := func(ctx context.Context) error { return pool.Ping(ctx) }
	srv := httpserver.NewServer(cfg, querySvc, jobRepo, dbCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	if err := sched.Shutdown(); err != nil {
		slog.Error("scheduler shutdown failed", slog.Any("error", err))
	}
}
