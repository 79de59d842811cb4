package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
	maxBodySize      = 10 * 1024 * 1024
)

// Transport performs cookie-persisting HTTP calls against the portal.
// Every call made through one Transport must share the same server session.
type Transport interface {
	Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error)
	PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) ([]byte, error)
}

// HTTPTransport is the net/http backed Transport.
type HTTPTransport struct {
	client    *http.Client
	jar       http.CookieJar
	userAgent string
}

// TransportOption customizes an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithProxy routes every call through the given proxy. A nil URL is ignored.
func WithProxy(proxy *url.URL) TransportOption {
	return func(t *HTTPTransport) {
		if proxy == nil {
			return
		}
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.Proxy = http.ProxyURL(proxy)
		t.client.Transport = base
	}
}

// WithUserAgent overrides the browser user agent sent with every call.
func WithUserAgent(ua string) TransportOption {
	return func(t *HTTPTransport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// NewHTTPTransport creates a transport with its own cookie jar.
// Deadlines come from the context of each call.
func NewHTTPTransport(opts ...TransportOption) (*HTTPTransport, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	t := &HTTPTransport{
		client:    &http.Client{Jar: jar},
		jar:       jar,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// UserAgent is the user agent this transport presents.
func (t *HTTPTransport) UserAgent() string { return t.userAgent }

// Jar exposes the session cookie jar, e.g. for browser warm-up.
func (t *HTTPTransport) Jar() http.CookieJar { return t.jar }

// CloseIdleConnections releases pooled connections once a run is over.
func (t *HTTPTransport) CloseIdleConnections() { t.client.CloseIdleConnections() }

func (t *HTTPTransport) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return t.do(req, header)
}

func (t *HTTPTransport) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return t.do(req, header)
}

func (t *HTTPTransport) do(req *http.Request, header http.Header) ([]byte, error) {
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return body, nil
}
