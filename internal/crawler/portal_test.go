package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/doorplate-crawler/internal/entity"
)

const testCity = "63000000"

// inquiryReply scripts one inquiry response of the fake portal.
type inquiryReply struct {
	status  int
	records int
	total   int
	rows    [][3]string
	side    *sideChannel
	rawSide string
}

func (r inquiryReply) body() []byte {
	rows := make([]map[string]string, 0, len(r.rows))
	for _, row := range r.rows {
		rows = append(rows, map[string]string{"v1": row[0], "v2": row[1], "v3": row[2]})
	}
	m := map[string]any{"records": r.records, "total": r.total, "page": 1, "rows": rows}
	switch {
	case r.rawSide != "":
		m["errorMsg"] = r.rawSide
	case r.side != nil:
		b, _ := json.Marshal(r.side)
		m["errorMsg"] = string(b)
	}
	b, _ := json.Marshal(m)
	return b
}

// fakePortal is an httptest stand-in for the door-plate portal. It records
// every captcha fetch and inquiry form it receives.
type fakePortal struct {
	srv *httptest.Server

	mu           sync.Mutex
	queryPage    string
	reply        func(form url.Values) inquiryReply
	captchaKeys  []string
	imageSizes   []int
	inquiries    []url.Values
	inquiryCSRF  []string
	negotiations []url.Values
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()

	p := &fakePortal{
		queryPage: page("c3", `<input type="hidden" id="captchaKey_captchaKey" name="captchaKey" value="k1">`),
		reply: func(url.Values) inquiryReply {
			return inquiryReply{side: &sideChannel{Title: noDataTitle}}
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /info-doorplate/app/doorplate/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("c1", ""))
	})
	mux.HandleFunc("POST /info-doorplate/app/doorplate/map", func(w http.ResponseWriter, r *http.Request) {
		p.recordNegotiation(r)
		fmt.Fprint(w, page("c2", ""))
	})
	mux.HandleFunc("POST /info-doorplate/app/doorplate/query", func(w http.ResponseWriter, r *http.Request) {
		p.recordNegotiation(r)
		p.mu.Lock()
		body := p.queryPage
		p.mu.Unlock()
		fmt.Fprint(w, body)
	})
	mux.HandleFunc("GET /info-doorplate/captcha/image", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.captchaKeys = append(p.captchaKeys, r.URL.Query().Get("CAPTCHA_KEY"))
		size := 256
		if len(p.imageSizes) > 0 {
			size, p.imageSizes = p.imageSizes[0], p.imageSizes[1:]
		}
		p.mu.Unlock()
		if size < 0 {
			http.Error(w, "captcha unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, size))
	})
	mux.HandleFunc("POST /info-doorplate/app/doorplate/inquiry/date", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.inquiries = append(p.inquiries, r.PostForm)
		p.inquiryCSRF = append(p.inquiryCSRF, r.Header.Get("X-CSRF-TOKEN"))
		reply := p.reply
		p.mu.Unlock()

		out := reply(r.PostForm)
		if out.status != 0 {
			w.WriteHeader(out.status)
			return
		}
		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		_, _ = w.Write(out.body())
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func page(csrf, extra string) string {
	return `<html><body><form><input type="hidden" name="_csrf" value="` + csrf + `">` + extra + `</form></body></html>`
}

func (p *fakePortal) recordNegotiation(r *http.Request) {
	_ = r.ParseForm()
	p.mu.Lock()
	p.negotiations = append(p.negotiations, r.PostForm)
	p.mu.Unlock()
}

func (p *fakePortal) setQueryPage(body string) {
	p.mu.Lock()
	p.queryPage = body
	p.mu.Unlock()
}

func (p *fakePortal) sentNegotiations() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.negotiations...)
}

func (p *fakePortal) sentCSRFHeaders() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.inquiryCSRF...)
}

func (p *fakePortal) setReply(f func(form url.Values) inquiryReply) {
	p.mu.Lock()
	p.reply = f
	p.mu.Unlock()
}

func (p *fakePortal) sentInquiries() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.inquiries...)
}

// scriptImages sets the body sizes of the next captcha images. A negative
// size answers with a server error. Later fetches get a 256-byte image.
func (p *fakePortal) scriptImages(sizes ...int) {
	p.mu.Lock()
	p.imageSizes = append([]int(nil), sizes...)
	p.mu.Unlock()
}

func (p *fakePortal) fetchedCaptchaKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.captchaKeys...)
}

// sleepRecorder replaces real delays in tests.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == d {
			n++
		}
	}
	return n
}

const (
	testPageDelay     = 3 * time.Second
	testDistrictDelay = 7 * time.Second
)

func newTestEngine(t *testing.T, p *fakePortal, r Recognizer, opts ...Option) (*Engine, *sleepRecorder) {
	t.Helper()

	tr, err := NewHTTPTransport()
	require.NoError(t, err)
	t.Cleanup(tr.CloseIdleConnections)

	cfg := DefaultConfig()
	cfg.BaseURL = p.srv.URL
	cfg.PageDelay = testPageDelay
	cfg.DistrictDelay = testDistrictDelay

	sleeps := &sleepRecorder{}
	all := append([]Option{
		WithConfig(cfg),
		WithSleep(sleeps.sleep),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	}, opts...)
	return NewEngine(tr, r, all...), sleeps
}

func fixedGuess(guess string) Recognizer {
	return RecognizerFunc(func(context.Context, []byte) (string, error) {
		return guess, nil
	})
}

func testSession() *Session {
	return &Session{CSRFToken: "c3", CaptchaKey: "k1", CityCode: testCity}
}

func rowsFor(prefix string, n int) [][3]string {
	rows := make([][3]string, n)
	for i := range rows {
		rows[i] = [3]string{fmt.Sprintf("臺北市%s路%d號", prefix, i+1), "114-01-02", "1"}
	}
	return rows
}

func recordsFor(district, prefix string, n int) []entity.RawRecord {
	var out []entity.RawRecord
	for _, row := range rowsFor(prefix, n) {
		out = append(out, entity.RawRecord{District: district, Address: row[0], Date: row[1], EditTypeCode: row[2]})
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	saved   map[string][]entity.RawRecord
	results []entity.DistrictResult
	err     error
}

func (s *recordingSink) SaveRecords(_ context.Context, _ int64, _, district string, records []entity.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]entity.RawRecord)
	}
	s.saved[district] = append(s.saved[district], records...)
	return s.err
}

func (s *recordingSink) SaveDistrictResult(_ context.Context, r entity.DistrictResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func formSummary(f url.Values) string {
	parts := []string{"area=" + f.Get("areaCode"), "page=" + f.Get("page")}
	if v := f.Get("captchaInput"); v != "" {
		parts = append(parts, "captcha="+v)
	}
	if v := f.Get("token"); v != "" {
		parts = append(parts, "token="+v)
	}
	return strings.Join(parts, " ")
}
