package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/doorplate-crawler/internal/entity"
)

// noDataTitle is the side-channel title the portal uses for an empty result.
const noDataTitle = "查無資料"

// OutcomeKind tags how a query response was resolved.
type OutcomeKind int

const (
	OutcomeFailure OutcomeKind = iota
	OutcomeRecords
	OutcomeEmpty
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRecords:
		return "records"
	case OutcomeEmpty:
		return "empty"
	default:
		return "failure"
	}
}

// QueryOutcome is the resolved result of one page query, or of a whole
// district when returned by QueryAllPages. Token and CaptchaKey are empty when
// the portal did not renew them.
type QueryOutcome struct {
	Kind        OutcomeKind
	Records     []entity.RawRecord
	RecordCount int
	TotalPages  int
	Token       string
	CaptchaKey  string
	Err         error
}

func (o QueryOutcome) Succeeded() bool { return o.Kind != OutcomeFailure }

func (o QueryOutcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Credential authorises a query: a captcha answer on first use, a
// continuation token afterwards. A token always wins over an answer.
type Credential struct {
	Answer string
	Token  string
}

// Query describes one page request against one district.
type Query struct {
	DistrictCode string
	Range        entity.DateRange
	EditKind     string
	Page         int
	Credential   Credential
}

type inquiryResponse struct {
	Records  flexInt      `json:"records"`
	Total    flexInt      `json:"total"`
	Rows     []inquiryRow `json:"rows"`
	ErrorMsg string       `json:"errorMsg"`
}

type inquiryRow struct {
	Address  string `json:"v1"`
	Date     string `json:"v2"`
	EditType string `json:"v3"`
}

// sideChannel is the JSON blob the portal embeds in errorMsg on every reply.
type sideChannel struct {
	Token   string `json:"token"`
	Captcha string `json:"captcha"`
	Error   any    `json:"error"`
	Title   string `json:"title"`
}

// Query issues one page request and resolves the response, in order: records
// present, explicit error flag, otherwise an empty but valid result. The HTTP
// status carries no meaning; only body fields do. A renewed captcha key is
// written back to sess.
func (e *Engine) Query(ctx context.Context, sess *Session, q Query) QueryOutcome {
	body, err := e.postInquiry(ctx, sess, q)
	if err != nil {
		return QueryOutcome{Kind: OutcomeFailure, Err: err}
	}

	var resp inquiryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return QueryOutcome{Kind: OutcomeFailure, Err: &TransportError{Op: "decode inquiry response", Err: err}}
	}

	var side sideChannel
	if resp.ErrorMsg != "" {
		if err := json.Unmarshal([]byte(resp.ErrorMsg), &side); err != nil {
			slog.Warn("Failed to parse side-channel blob", "district", q.DistrictCode, "page", q.Page, "error", err, "error_msg", truncate(resp.ErrorMsg, 100))
			side = sideChannel{}
		}
	} else {
		slog.Warn("Inquiry response has no side-channel blob", "district", q.DistrictCode, "page", q.Page, "records", int(resp.Records))
	}

	if side.Captcha != "" {
		sess.CaptchaKey = side.Captcha
	}

	out := QueryOutcome{Token: side.Token, CaptchaKey: side.Captcha}

	switch {
	case resp.Records > 0 || len(resp.Rows) > 0:
		out.Kind = OutcomeRecords
		out.Records = make([]entity.RawRecord, 0, len(resp.Rows))
		for _, r := range resp.Rows {
			out.Records = append(out.Records, entity.RawRecord{
				Address:      r.Address,
				Date:         r.Date,
				EditTypeCode: r.EditType,
			})
		}
		out.RecordCount = int(resp.Records)
		out.TotalPages = max(int(resp.Total), 1)
	case truthy(side.Error):
		out.Kind = OutcomeFailure
		title := side.Title
		if title == "" {
			title = "查詢失敗"
		}
		if e.cfg.RejectMarker != "" && strings.Contains(title, e.cfg.RejectMarker) {
			out.Err = &CaptchaRejectedError{Message: title}
		} else {
			out.Err = &ServerLogicError{Message: title}
		}
	default:
		// Covers the explicit no-data title as well as a bare empty reply.
		out.Kind = OutcomeEmpty
		out.TotalPages = 1
		if side.Title != "" && side.Title != noDataTitle {
			slog.Debug("Empty result with unexpected title", "district", q.DistrictCode, "title", side.Title)
		}
	}
	return out
}

func (e *Engine) postInquiry(ctx context.Context, sess *Session, q Query) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	page := q.Page
	if page < 1 {
		page = 1
	}

	form := url.Values{
		"searchType":     {"date"},
		"cityCode":       {sess.CityCode},
		"tkt":            {"-1"},
		"areaCode":       {q.DistrictCode},
		"village":        {""},
		"neighbor":       {""},
		"sDate":          {q.Range.Start},
		"eDate":          {q.Range.End},
		"_includeNoDate": {"on"},
		"registerKind":   {q.EditKind},
		"captchaInput":   {q.Credential.Answer},
		"captchaKey":     {sess.CaptchaKey},
		"_csrf":          {sess.CSRFToken},
		"floor":          {""},
		"lane":           {""},
		"alley":          {""},
		"number":         {""},
		"number1":        {""},
		"ext":            {""},
		"_search":        {"false"},
		"nd":             {strconv.FormatInt(e.now().UnixMilli(), 10)},
		"rows":           {strconv.Itoa(e.cfg.RowsPerPage)},
		"page":           {strconv.Itoa(page)},
		"sidx":           {""},
		"sord":           {"asc"},
	}
	if q.Credential.Token != "" {
		form.Set("token", q.Credential.Token)
		form.Set("captchaInput", "")
	}

	header := http.Header{}
	header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set("X-CSRF-TOKEN", sess.CSRFToken)
	header.Set("Referer", e.url(pathQuery))

	start := time.Now()
	body, err := e.transport.PostForm(ctx, e.url(pathInquiry), form, header)
	e.observe("inquiry", start, err)
	if err != nil {
		return nil, &TransportError{Op: fmt.Sprintf("query %s page %d", q.DistrictCode, page), Err: err}
	}
	return body, nil
}

// flexInt accepts both JSON numbers and numeric strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && !strings.EqualFold(t, "false") && t != "0"
	case float64:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
