package crawler

import (
	"context"
	"strings"
	"time"

	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/pkg/metrics"
)

// Portal paths, relative to Config.BaseURL.
const (
	pathMain       = "/info-doorplate/app/doorplate/main"
	pathMap        = "/info-doorplate/app/doorplate/map"
	pathQuery      = "/info-doorplate/app/doorplate/query"
	pathInquiry    = "/info-doorplate/app/doorplate/inquiry/date"
	pathCaptchaImg = "/info-doorplate/captcha/image"
)

// Config holds the engine's tunables.
type Config struct {
	BaseURL string

	// MaxCaptchaAttempts bounds both the image/recognizer loop and the number
	// of rejected answers tolerated for one district.
	MaxCaptchaAttempts int
	CaptchaLength      int
	MinImageBytes      int
	RejectMarker       string
	RowsPerPage        int

	PageDelay     time.Duration
	DistrictDelay time.Duration

	NegotiateTimeout time.Duration
	QueryTimeout     time.Duration
	CaptchaTimeout   time.Duration

	FetchRetryDelay time.Duration
	GuessRetryDelay time.Duration
}

// DefaultConfig returns the settings the portal is known to tolerate.
func DefaultConfig() Config {
	return Config{
		BaseURL:            "https://www.ris.gov.tw",
		MaxCaptchaAttempts: 10,
		CaptchaLength:      5,
		MinImageBytes:      100,
		RejectMarker:       "驗證碼",
		RowsPerPage:        50,
		PageDelay:          300 * time.Millisecond,
		DistrictDelay:      500 * time.Millisecond,
		NegotiateTimeout:   15 * time.Second,
		QueryTimeout:       30 * time.Second,
		CaptchaTimeout:     15 * time.Second,
		FetchRetryDelay:    500 * time.Millisecond,
		GuessRetryDelay:    300 * time.Millisecond,
	}
}

// Recognizer turns a captcha image into a best-effort guess.
type Recognizer interface {
	Classify(ctx context.Context, image []byte) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, image []byte) (string, error)

func (f RecognizerFunc) Classify(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// ManualSolver is asked for an answer once automated recognition is exhausted.
type ManualSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// Sink is the optional persistence collaborator. Errors are logged and never
// interrupt a crawl.
type Sink interface {
	SaveRecords(ctx context.Context, batchID int64, city, district string, records []entity.RawRecord) error
	SaveDistrictResult(ctx context.Context, result entity.DistrictResult) error
}

// Engine runs the negotiation, captcha and query protocol against the portal.
type Engine struct {
	transport  Transport
	recognizer Recognizer
	solver     ManualSolver
	sink       Sink
	metrics    *metrics.Metrics
	cfg        Config
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the engine configuration. Zero limits, timeouts and
// strings keep their defaults; delays are taken as given, zero disabling them.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = mergeConfig(e.cfg, cfg)
	}
}

// WithManualSolver sets the fallback used after automated recognition fails.
func WithManualSolver(s ManualSolver) Option {
	return func(e *Engine) {
		e.solver = s
	}
}

// WithSink sets the persistence collaborator.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSleep replaces the delay function used between requests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithClock replaces the clock used for cache-busting timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine over one transport session.
func NewEngine(t Transport, r Recognizer, opts ...Option) *Engine {
	e := &Engine{
		transport:  t,
		recognizer: r,
		cfg:        DefaultConfig(),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MainURL is the portal landing page, the first page a browser would load.
func (e *Engine) MainURL() string {
	return e.url(pathMain)
}

func (e *Engine) url(path string) string {
	return strings.TrimRight(e.cfg.BaseURL, "/") + path
}

// observe records one portal call.
func (e *Engine) observe(step string, start time.Time, err error) {
	e.metrics.ObservePortalRequest(step, time.Since(start).Seconds(), err)
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func mergeConfig(base, over Config) Config {
	if over.BaseURL != "" {
		base.BaseURL = over.BaseURL
	}
	if over.MaxCaptchaAttempts > 0 {
		base.MaxCaptchaAttempts = over.MaxCaptchaAttempts
	}
	if over.CaptchaLength > 0 {
		base.CaptchaLength = over.CaptchaLength
	}
	if over.MinImageBytes > 0 {
		base.MinImageBytes = over.MinImageBytes
	}
	if over.RejectMarker != "" {
		base.RejectMarker = over.RejectMarker
	}
	if over.RowsPerPage > 0 {
		base.RowsPerPage = over.RowsPerPage
	}
	base.PageDelay = over.PageDelay
	base.DistrictDelay = over.DistrictDelay
	if over.NegotiateTimeout > 0 {
		base.NegotiateTimeout = over.NegotiateTimeout
	}
	if over.QueryTimeout > 0 {
		base.QueryTimeout = over.QueryTimeout
	}
	if over.CaptchaTimeout > 0 {
		base.CaptchaTimeout = over.CaptchaTimeout
	}
	base.FetchRetryDelay = over.FetchRetryDelay
	base.GuessRetryDelay = over.GuessRetryDelay
	return base
}
