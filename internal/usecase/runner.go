package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/user/doorplate-crawler/internal/crawler"
	"github.com/user/doorplate-crawler/pkg/metrics"
)

// BatchRunner negotiates a fresh portal session for a city and runs one batch on it.
type BatchRunner interface {
	RunBatch(ctx context.Context, cityCode string, req crawler.BatchRequest, sink crawler.Sink) (crawler.BatchOutcome, error)
}

// Warmer seeds a cookie jar before the first portal request. The browser
// visit goes out through the same proxy and user agent as the session.
type Warmer interface {
	Warm(ctx context.Context, pageURL string, jar http.CookieJar, proxy *url.URL, ua string) (int, error)
}

// Identities hands out the proxy and user agent for each new portal session.
type Identities interface {
	Next() (*url.URL, string)
}

// RunnerDeps wires a PortalRunner. Everything but Config and Recognizer is optional.
type RunnerDeps struct {
	Config     crawler.Config
	Recognizer crawler.Recognizer
	Solver     crawler.ManualSolver
	Warmer     Warmer
	Identities Identities
	Metrics    *metrics.Metrics
}

// PortalRunner builds a new transport and engine for every batch, so no
// cookie or token state leaks between runs.
type PortalRunner struct {
	deps RunnerDeps
}

func NewPortalRunner(deps RunnerDeps) *PortalRunner {
	return &PortalRunner{deps: deps}
}

// RunBatch returns an error only when no session could be negotiated; every
// later failure is reported inside the outcome.
func (r *PortalRunner) RunBatch(ctx context.Context, cityCode string, req crawler.BatchRequest, sink crawler.Sink) (crawler.BatchOutcome, error) {
	var (
		trOpts []crawler.TransportOption
		proxy  *url.URL
	)
	if r.deps.Identities != nil {
		var ua string
		proxy, ua = r.deps.Identities.Next()
		trOpts = append(trOpts, crawler.WithProxy(proxy), crawler.WithUserAgent(ua))
		if proxy != nil {
			slog.Debug("Portal session uses proxy", "proxy", proxy.Redacted())
		}
	}
	tr, err := crawler.NewHTTPTransport(trOpts...)
	if err != nil {
		return crawler.BatchOutcome{}, err
	}
	defer tr.CloseIdleConnections()

	opts := []crawler.Option{crawler.WithConfig(r.deps.Config), crawler.WithMetrics(r.deps.Metrics)}
	if r.deps.Solver != nil {
		opts = append(opts, crawler.WithManualSolver(r.deps.Solver))
	}
	if sink != nil {
		opts = append(opts, crawler.WithSink(sink))
	}
	engine := crawler.NewEngine(tr, r.deps.Recognizer, opts...)

	if r.deps.Warmer != nil {
		if n, err := r.deps.Warmer.Warm(ctx, engine.MainURL(), tr.Jar(), proxy, tr.UserAgent()); err != nil {
			slog.Warn("Browser warm-up failed, continuing without it", "error", err)
		} else {
			slog.Debug("Cookie jar seeded", "cookies", n)
		}
	}

	sess, err := engine.Negotiate(ctx, cityCode)
	if err != nil {
		return crawler.BatchOutcome{}, fmt.Errorf("failed to negotiate session for %s: %w", cityCode, err)
	}
	return engine.RunBatch(ctx, sess, req), nil
}
