// Package chromedp_warmup loads the portal in headless Chrome so the HTTP
// session starts with the cookies a real browser would have been given.
package chromedp_warmup

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36`

// ChromedpWarmer seeds a cookie jar from a headless browser visit.
type ChromedpWarmer struct {
	timeout time.Duration
}

// NewChromedpWarmer creates a warmer whose browser visit is bounded by timeout.
func NewChromedpWarmer(timeout time.Duration) *ChromedpWarmer {
	return &ChromedpWarmer{timeout: timeout}
}

// Warm navigates to pageURL through proxy with the given user agent, copies
// the browser's cookies for it into jar and returns how many were copied. A
// nil proxy connects directly and an empty ua falls back to a desktop Chrome.
func (w *ChromedpWarmer) Warm(ctx context.Context, pageURL string, jar http.CookieJar, proxy *url.URL, ua string) (int, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return 0, fmt.Errorf("invalid warm-up url: %w", err)
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	for name, value := range browserFlags(proxy, ua) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	}))
	defer cancel()

	taskCtx, cancel = context.WithTimeout(taskCtx, w.timeout)
	defer cancel()

	var cookies []*network.Cookie
	start := time.Now()
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs([]string{pageURL}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		slog.Error("Browser warm-up failed", "url", pageURL, "error", err)
		return 0, err
	}

	converted := toHTTPCookies(cookies, u.Hostname())
	jar.SetCookies(u, converted)
	slog.Info("Browser warm-up completed", "url", pageURL, "cookies", len(converted), "duration_ms", time.Since(start).Milliseconds())
	return len(converted), nil
}

// browserFlags are the Chrome command-line flags for one warm-up. The proxy
// and user agent match the HTTP session the cookies are handed to.
func browserFlags(proxy *url.URL, ua string) map[string]any {
	if ua == "" {
		ua = userAgent
	}
	flags := map[string]any{
		"headless":              true,
		"disable-gpu":           true,
		"no-sandbox":            true,
		"disable-dev-shm-usage": true,
		"user-agent":            ua,
	}
	if proxy != nil {
		flags["proxy-server"] = proxy.String()
	}
	return flags
}

// toHTTPCookies converts browser cookies for host. Host-only cookies keep an
// empty Domain so the jar does not widen them to sibling hosts.
func toHTTPCookies(in []*network.Cookie, host string) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil || c.Name == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if strings.HasPrefix(c.Domain, ".") || (c.Domain != "" && !strings.EqualFold(c.Domain, host)) {
			hc.Domain = strings.TrimPrefix(c.Domain, ".")
		}
		if !c.Session && c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			hc.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}
		switch c.SameSite {
		case network.CookieSameSiteStrict:
			hc.SameSite = http.SameSiteStrictMode
		case network.CookieSameSiteLax:
			hc.SameSite = http.SameSiteLaxMode
		case network.CookieSameSiteNone:
			hc.SameSite = http.SameSiteNoneMode
		}
		out = append(out, hc)
	}
	return out
}
