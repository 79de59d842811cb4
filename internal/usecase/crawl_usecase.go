package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/user/doorplate-crawler/internal/catalog"
	"github.com/user/doorplate-crawler/internal/crawler"
	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/repository"
	"github.com/user/doorplate-crawler/pkg/metrics"
)

var (
	ErrCrawlInProgress = errors.New("a crawl for this city is already running")
	ErrInvalidRequest  = errors.New("invalid crawl request")
)

const defaultLockTTL = 2 * time.Hour

var eraDate = regexp.MustCompile(`^\d{2,3}-\d{2}-\d{2}$`)

// CrawlRequest describes one batch crawl.
type CrawlRequest struct {
	CityCode  string
	Range     entity.DateRange
	EditKind  string
	Districts []string // empty means every district of the city
	SaveToDB  bool
	Trigger   string
}

// CrawlReport is what a finished crawl hands back to its caller.
type CrawlReport struct {
	BatchID  int64
	City     catalog.City
	Outcome  crawler.BatchOutcome
	Duration time.Duration
}

// Crawler defines the interface for running one crawl batch.
type Crawler interface {
	Crawl(ctx context.Context, req CrawlRequest) (*CrawlReport, error)
}

// Notifier sends alerts about batches that need attention.
type Notifier interface {
	NotifyCrawlerError(ctx context.Context, to []string, message string, batchID int64) (bool, error)
	NotifyEmptyData(ctx context.Context, to []string, queryInfo string, batchID int64) (bool, error)
}

// CrawlDeps wires the crawl use case. Everything except Catalog and Runner
// is optional.
type CrawlDeps struct {
	Catalog    *catalog.Catalog
	Runner     BatchRunner
	Locks      repository.RunLockRepository
	Batches    repository.BatchRepository
	Records    repository.RecordRepository
	Recipients repository.RecipientRepository
	Notifier   Notifier
	Metrics    *metrics.Metrics
	LockTTL    time.Duration
}

type crawlUseCase struct {
	deps CrawlDeps
	now  func() time.Time
}

// NewCrawlUseCase creates a new instance of the crawl use case.
func NewCrawlUseCase(deps CrawlDeps) Crawler {
	if deps.LockTTL <= 0 {
		deps.LockTTL = defaultLockTTL
	}
	return &crawlUseCase{deps: deps, now: time.Now}
}

// ValidateRequest resolves the city and districts of req and checks its dates.
func ValidateRequest(cat *catalog.Catalog, req CrawlRequest) (catalog.City, []entity.District, error) {
	if !eraDate.MatchString(req.Range.Start) || !eraDate.MatchString(req.Range.End) {
		return catalog.City{}, nil, fmt.Errorf("%w: dates must look like YYY-MM-DD, got %q ~ %q", ErrInvalidRequest, req.Range.Start, req.Range.End)
	}
	if req.Range.Start > req.Range.End && len(req.Range.Start) == len(req.Range.End) {
		return catalog.City{}, nil, fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidRequest, req.Range.Start, req.Range.End)
	}
	if req.EditKind != "" && !entity.ValidEditKind(req.EditKind) {
		return catalog.City{}, nil, fmt.Errorf("%w: unknown register kind %q", ErrInvalidRequest, req.EditKind)
	}
	return cat.Select(req.CityCode, req.Districts)
}

// Crawl runs one batch end to end: lock, batch log, portal run, alerts.
// A batch that fails inside the portal is not an error here; it is reported
// through the outcome and the batch log.
func (uc *crawlUseCase) Crawl(ctx context.Context, req CrawlRequest) (*CrawlReport, error) {
	city, districts, err := ValidateRequest(uc.deps.Catalog, req)
	if err != nil {
		return nil, err
	}

	release, err := uc.lock(ctx, city.Code)
	if err != nil {
		return nil, err
	}
	defer release()

	start := uc.now()
	batchID := uc.startBatch(ctx, req)

	var sink crawler.Sink
	if req.SaveToDB && uc.deps.Records != nil {
		sink = recordSink{records: uc.deps.Records}
	}

	slog.Info("Crawl started", "batch_id", batchID, "city", city.Name, "districts", len(districts), "start_date", req.Range.Start, "end_date", req.Range.End, "trigger", req.Trigger)

	outcome, err := uc.deps.Runner.RunBatch(ctx, city.Code, crawler.BatchRequest{
		BatchID:   batchID,
		CityName:  city.Name,
		Districts: districts,
		Range:     req.Range,
		EditKind:  req.EditKind,
	}, sink)
	if err != nil {
		outcome = crawler.BatchOutcome{
			PerDistrict:  map[string]int{},
			Err:          err,
			ErrorMessage: err.Error(),
		}
	}

	duration := uc.now().Sub(start)
	status := entity.BatchStatusCompleted
	if !outcome.Success {
		status = entity.BatchStatusFailed
	}
	uc.deps.Metrics.ObserveBatch(string(status), duration.Seconds())

	uc.notify(ctx, batchID, city, districts, req, outcome)
	uc.finishBatch(ctx, batchID, status, outcome)

	slog.Info("Crawl finished", "batch_id", batchID, "status", status, "records", outcome.TotalCount(), "failed_districts", len(outcome.FailedDistricts()), "duration_ms", duration.Milliseconds())
	return &CrawlReport{BatchID: batchID, City: city, Outcome: outcome, Duration: duration}, nil
}

func (uc *crawlUseCase) lock(ctx context.Context, cityCode string) (func(), error) {
	if uc.deps.Locks == nil {
		return func() {}, nil
	}

	key := "crawl:" + cityCode
	ok, err := uc.deps.Locks.Acquire(ctx, key, uc.deps.LockTTL)
	if err != nil {
		slog.Warn("Run lock unavailable, continuing without it", "key", key, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCrawlInProgress, cityCode)
	}
	return func() {
		if err := uc.deps.Locks.Release(context.WithoutCancel(ctx), key); err != nil {
			slog.Warn("Failed to release run lock", "key", key, "error", err)
		}
	}, nil
}

func (uc *crawlUseCase) startBatch(ctx context.Context, req CrawlRequest) int64 {
	if !req.SaveToDB || uc.deps.Batches == nil {
		return 0
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "manual"
	}
	id, err := uc.deps.Batches.Start(ctx, trigger)
	if err != nil {
		slog.Error("Failed to open batch log", "trigger", trigger, "error", err)
		return 0
	}
	return id
}

func (uc *crawlUseCase) finishBatch(ctx context.Context, id int64, status entity.BatchStatus, outcome crawler.BatchOutcome) {
	if id == 0 || uc.deps.Batches == nil {
		return
	}
	if err := uc.deps.Batches.Finish(context.WithoutCancel(ctx), id, status, outcome.TotalCount(), outcome.ErrorMessage); err != nil {
		slog.Error("Failed to close batch log", "batch_id", id, "error", err)
	}
}

func (uc *crawlUseCase) notify(ctx context.Context, batchID int64, city catalog.City, districts []entity.District, req CrawlRequest, outcome crawler.BatchOutcome) {
	if uc.deps.Notifier == nil {
		return
	}
	if outcome.Success && outcome.TotalCount() > 0 {
		return
	}

	to := uc.recipients(ctx)
	ctx = context.WithoutCancel(ctx)

	var err error
	if !outcome.Success {
		_, err = uc.deps.Notifier.NotifyCrawlerError(ctx, to, outcome.ErrorMessage, batchID)
	} else {
		_, err = uc.deps.Notifier.NotifyEmptyData(ctx, to, queryInfo(city, districts, req), batchID)
	}
	if err != nil {
		slog.Error("Failed to send crawl alert", "batch_id", batchID, "error", err)
	}
}

func (uc *crawlUseCase) recipients(ctx context.Context) []string {
	if uc.deps.Recipients == nil {
		return nil
	}
	list, err := uc.deps.Recipients.ListActive(ctx)
	if err != nil {
		slog.Error("Failed to load notification recipients", "error", err)
		return nil
	}
	to := make([]string, 0, len(list))
	for _, r := range list {
		to = append(to, r.Email)
	}
	return to
}

func queryInfo(city catalog.City, districts []entity.District, req CrawlRequest) string {
	names := make([]string, len(districts))
	for i, d := range districts {
		names[i] = d.Name
	}
	return fmt.Sprintf("城市: %s\n日期範圍: %s ~ %s\n編釘類別: %s (%s)\n行政區: %s",
		city.Name, req.Range.Start, req.Range.End, req.EditKind, entity.EditTypeName(req.EditKind), strings.Join(names, "、"))
}
