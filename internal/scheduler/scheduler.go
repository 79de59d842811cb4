// Package scheduler triggers unattended crawls on a cron or fixed-interval timetable.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/usecase"
)

const (
	ModeCron     = "cron"
	ModeInterval = "interval"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// Config describes when to crawl and what.
type Config struct {
	Enabled       bool
	Mode          string
	Hour          string // "*" runs every hour
	Minute        string
	IntervalHours int
	Timezone      string

	CityCode string
	Range    entity.DateRange
	EditKind string
}

// Entry is one scheduled job as shown by Status.
type Entry struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run_time"`
	PrevRun time.Time `json:"prev_run_time,omitzero"`
}

// Status is a snapshot of the scheduler.
type Status struct {
	Enabled      bool             `json:"enabled"`
	Running      bool             `json:"running"`
	Spec         string           `json:"schedule"`
	Timezone     string           `json:"timezone"`
	Jobs         []Entry          `json:"jobs"`
	Range        entity.DateRange `json:"range"`
	RegisterKind string           `json:"register_kind"`
	LastRun      *time.Time       `json:"last_run,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
}

// Scheduler runs the crawl use case on its timetable. Overlapping runs are skipped.
type Scheduler struct {
	cfg     Config
	spec    string
	name    string
	cron    *cron.Cron
	crawler usecase.Crawler

	mu      sync.Mutex
	started bool
	lastRun *time.Time
	lastErr string
}

// New builds a scheduler. It does not start it.
func New(cfg Config, crawler usecase.Crawler) (*Scheduler, error) {
	spec, name, err := Spec(cfg)
	if err != nil {
		return nil, err
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Taipei"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, tz, err)
	}
	cfg.Timezone = tz

	logger := cronLogger{}
	s := &Scheduler{
		cfg:     cfg,
		spec:    spec,
		name:    name,
		crawler: crawler,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return s, nil
}

// Spec translates the configuration into a cron expression and a display name.
func Spec(cfg Config) (string, string, error) {
	switch cfg.Mode {
	case ModeInterval:
		if cfg.IntervalHours <= 0 {
			return "", "", fmt.Errorf("%w: interval hours must be positive", ErrInvalidSchedule)
		}
		return fmt.Sprintf("@every %dh", cfg.IntervalHours), fmt.Sprintf("crawl every %d hours", cfg.IntervalHours), nil
	case ModeCron, "":
		minute, err := strconv.Atoi(cfg.Minute)
		if err != nil || minute < 0 || minute > 59 {
			return "", "", fmt.Errorf("%w: minute %q", ErrInvalidSchedule, cfg.Minute)
		}
		if cfg.Hour == "*" {
			return fmt.Sprintf("%d * * * *", minute), fmt.Sprintf("crawl hourly at :%02d", minute), nil
		}
		hour, err := strconv.Atoi(cfg.Hour)
		if err != nil || hour < 0 || hour > 23 {
			return "", "", fmt.Errorf("%w: hour %q", ErrInvalidSchedule, cfg.Hour)
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), fmt.Sprintf("crawl daily at %02d:%02d", hour, minute), nil
	default:
		return "", "", fmt.Errorf("%w: mode %q", ErrInvalidSchedule, cfg.Mode)
	}
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
	s.started = true
	slog.Info("Scheduler started", "schedule", s.spec, "timezone", s.cfg.Timezone)
}

// Stop halts the timetable and waits for a running crawl to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("Scheduler stopped")
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out with a crawl still running")
	}
}

// RunOnce performs one scheduled crawl over every district of the configured city.
func (s *Scheduler) RunOnce(ctx context.Context) {
	slog.Info("Scheduled crawl started", "city_code", s.cfg.CityCode, "start_date", s.cfg.Range.Start, "end_date", s.cfg.Range.End)

	report, err := s.crawler.Crawl(ctx, usecase.CrawlRequest{
		CityCode: s.cfg.CityCode,
		Range:    s.cfg.Range,
		EditKind: s.cfg.EditKind,
		SaveToDB: true,
		Trigger:  "scheduler",
	})

	now := time.Now()
	msg := ""
	switch {
	case err != nil:
		msg = err.Error()
		slog.Error("Scheduled crawl failed", "error", err)
	case !report.Outcome.Success:
		msg = report.Outcome.ErrorMessage
		slog.Error("Scheduled crawl aborted", "batch_id", report.BatchID, "error", msg)
	default:
		slog.Info("Scheduled crawl completed", "batch_id", report.BatchID, "records", report.Outcome.TotalCount())
	}

	s.mu.Lock()
	s.lastRun = &now
	s.lastErr = msg
	s.mu.Unlock()
}

// Status reports the timetable and the next run times.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:      s.cfg.Enabled,
		Running:      s.started,
		Spec:         s.spec,
		Timezone:     s.cfg.Timezone,
		Jobs:         []Entry{},
		Range:        s.cfg.Range,
		RegisterKind: s.cfg.EditKind,
		LastRun:      s.lastRun,
		LastError:    s.lastErr,
	}
	if s.started {
		for _, e := range s.cron.Entries() {
			st.Jobs = append(st.Jobs, Entry{ID: int(e.ID), Name: s.name, NextRun: e.Next, PrevRun: e.Prev})
		}
	}
	return st
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
