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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	redis_adapter "github.com/user/doorplate-crawler/internal/adapter/redis"
	"github.com/user/doorplate-crawler/internal/catalog"
	"github.com/user/doorplate-crawler/internal/delivery/http/handler"
	"github.com/user/doorplate-crawler/internal/delivery/http/router"
	"github.com/user/doorplate-crawler/internal/scheduler"
	"github.com/user/doorplate-crawler/internal/usecase"
	"github.com/user/doorplate-crawler/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scheduler and the job worker",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	slog.Info("Metrics initialized")

	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	runner, err := newRunner(cfg, m, nil)
	if err != nil {
		return err
	}

	// --- Repositories ---
	cat := catalog.Default()
	queue := redis_adapter.NewQueueRepo(rdb)
	deps := usecase.CrawlDeps{
		Catalog: cat,
		Runner:  runner,
		Locks:   newRunLocks(rdb),
		Metrics: m,
		LockTTL: cfg.RunLockTTL,
	}
	addPostgres(&deps, pool, cfg)

	// --- Use Cases ---
	crawlUC := usecase.NewCrawlUseCase(deps)
	jobs := usecase.NewJobManager(cat, queue, queue, crawlUC, m)

	var schedStatus handler.SchedulerStatus
	sched, err := scheduler.New(schedulerConfig(cfg), crawlUC)
	switch {
	case err != nil && cfg.EnableScheduler:
		return fmt.Errorf("failed to build scheduler: %w", err)
	case err != nil:
		slog.Warn("Scheduler disabled with an invalid schedule", "error", err)
	default:
		schedStatus = sched
		if cfg.EnableScheduler {
			sched.Start()
		}
	}

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(handler.Deps{
		Catalog:   cat,
		Crawler:   crawlUC,
		Jobs:      jobs,
		Records:   deps.Records,
		Batches:   deps.Batches,
		Scheduler: schedStatus,
		Checks: map[string]handler.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Version: version,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, m, prometheus.DefaultGatherer),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 16 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on port %s: %w", cfg.ServerPort, err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("Job worker started", "poll_interval", cfg.JobPollEvery)
		return jobs.Run(gctx, cfg.JobPollEvery)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if sched != nil && cfg.EnableScheduler {
			sched.Stop(shutdownCtx)
		}
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
