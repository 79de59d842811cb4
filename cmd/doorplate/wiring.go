package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/user/doorplate-crawler/internal/adapter/chromedp_warmup"
	"github.com/user/doorplate-crawler/internal/adapter/ocr"
	"github.com/user/doorplate-crawler/internal/adapter/postgres"
	redis_adapter "github.com/user/doorplate-crawler/internal/adapter/redis"
	"github.com/user/doorplate-crawler/internal/adapter/smtp"
	"github.com/user/doorplate-crawler/internal/crawler"
	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/proxy"
	"github.com/user/doorplate-crawler/internal/scheduler"
	"github.com/user/doorplate-crawler/internal/usecase"
	"github.com/user/doorplate-crawler/pkg/config"
	"github.com/user/doorplate-crawler/pkg/metrics"
)

// crawlerConfig overlays the service settings on the engine defaults.
func crawlerConfig(c *config.Config) crawler.Config {
	cc := crawler.DefaultConfig()
	if c.PortalBaseURL != "" {
		cc.BaseURL = c.PortalBaseURL
	}
	cc.MaxCaptchaAttempts = c.OCRMaxAttempts
	cc.PageDelay = c.PageDelay
	cc.DistrictDelay = c.DistrictDelay
	cc.NegotiateTimeout = c.NegotiateTimeout
	cc.QueryTimeout = c.QueryTimeout
	cc.CaptchaTimeout = c.CaptchaTimeout
	return cc
}

func schedulerConfig(c *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:       c.EnableScheduler,
		Mode:          c.ScheduleMode,
		Hour:          c.ScheduleHour,
		Minute:        c.ScheduleMinute,
		IntervalHours: c.ScheduleIntervalHours,
		Timezone:      c.ScheduleTimezone,
		CityCode:      c.CityCode,
		Range:         entity.DateRange{Start: c.ScheduleStartDate, End: c.ScheduleEndDate},
		EditKind:      c.ScheduleRegisterKind,
	}
}

func smtpConfig(c *config.Config) smtp.Config {
	return smtp.Config{
		Enabled:  c.NotificationEnabled,
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		User:     c.SMTPUser,
		Password: c.SMTPPassword,
	}
}

func newRunner(c *config.Config, m *metrics.Metrics, solver crawler.ManualSolver) (*usecase.PortalRunner, error) {
	identities, err := proxy.NewManager(c.PortalProxies, c.PortalUserAgents)
	if err != nil {
		return nil, err
	}

	deps := usecase.RunnerDeps{
		Config:     crawlerConfig(c),
		Recognizer: ocr.NewHTTPRecognizer(c.OCREndpoint, c.OCRTimeout),
		Solver:     solver,
		Identities: identities,
		Metrics:    m,
	}
	if c.BrowserWarmup {
		deps.Warmer = chromedp_warmup.NewChromedpWarmer(c.BrowserTimeout)
	}
	slog.Info("Portal runner ready", "portal", deps.Config.BaseURL, "proxies", identities.Size(), "warmup", c.BrowserWarmup)
	return usecase.NewPortalRunner(deps), nil
}

// addPostgres fills the stores backed by PostgreSQL and the mail notifier.
func addPostgres(deps *usecase.CrawlDeps, pool *pgxpool.Pool, c *config.Config) {
	deps.Batches = postgres.NewBatchRepo(pool)
	deps.Records = postgres.NewRecordRepo(pool)
	deps.Recipients = postgres.NewRecipientRepo(pool)

	if n := smtp.NewNotifier(smtpConfig(c)); n.Configured() {
		deps.Notifier = n
	} else {
		slog.Info("Email notifications disabled")
	}
}

func connectPostgres(ctx context.Context, c *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, c.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	slog.Info("PostgreSQL connection pool established", "host", c.PostgresHost, "db", c.PostgresDB)
	return pool, nil
}

func connectRedis(ctx context.Context, c *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	slog.Info("Redis connection established", "addr", c.RedisAddr)
	return rdb, nil
}

func newRunLocks(rdb *redis.Client) *redis_adapter.RunLockRepoImpl {
	return redis_adapter.NewRunLockRepo(rdb, uuid.NewString())
}
