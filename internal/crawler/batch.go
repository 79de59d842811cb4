package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/doorplate-crawler/internal/entity"
)

// BatchRequest names the districts of one city to crawl, in visiting order.
type BatchRequest struct {
	BatchID   int64
	CityName  string
	Districts []entity.District
	Range     entity.DateRange
	EditKind  string
}

// BatchOutcome aggregates a batch. PerDistrict maps district name to its
// record count, or entity.DistrictFailed. Success is false only when no
// continuation token could ever be obtained.
type BatchOutcome struct {
	Success      bool
	Records      []entity.RawRecord
	PerDistrict  map[string]int
	Results      []entity.DistrictResult
	ErrorMessage string
	Err          error
}

// TotalCount sums the record counts of successful districts.
func (o BatchOutcome) TotalCount() int {
	total := 0
	for _, n := range o.PerDistrict {
		if n > 0 {
			total += n
		}
	}
	return total
}

// FailedDistricts returns the names of districts marked failed, in visiting order.
func (o BatchOutcome) FailedDistricts() []string {
	var names []string
	for _, r := range o.Results {
		if r.Status == entity.DistrictStatusFailed {
			names = append(names, r.DistrictName)
		}
	}
	return names
}

type batchState int

const (
	stateNeedCaptcha batchState = iota
	stateHaveToken
	stateDone
	stateFatal
)

func (s batchState) String() string {
	switch s {
	case stateNeedCaptcha:
		return "need_captcha"
	case stateHaveToken:
		return "have_token"
	case stateDone:
		return "done"
	default:
		return "fatal"
	}
}

// RunBatch visits every district once, in order. The first district is
// queried with a captcha answer; once the portal hands out a continuation
// token, later districts reuse it until a response stops renewing it, after
// which the next district goes back to solving a captcha. Failing to obtain
// the very first token aborts the batch; every later failure only marks that
// district as failed.
func (e *Engine) RunBatch(ctx context.Context, sess *Session, req BatchRequest) BatchOutcome {
	out := BatchOutcome{PerDistrict: make(map[string]int, len(req.Districts))}

	state := stateNeedCaptcha
	token := ""
	tokenSeen := false

	for i, d := range req.Districts {
		if i > 0 {
			e.sleep(ctx, e.cfg.DistrictDelay)
		}

		q := Query{DistrictCode: d.Code, Range: req.Range, EditKind: req.EditKind}
		var (
			res  QueryOutcome
			mode string
		)

		switch state {
		case stateNeedCaptcha:
			mode = "captcha"
			res = e.queryWithCaptcha(ctx, sess, q)
			if !res.Succeeded() && !tokenSeen {
				state = stateFatal
				e.metrics.IncDistrictQuery(mode, "failed", ErrorType(res.Err))
				e.saveResult(ctx, e.districtResult(req, d, res))
				out.Success = false
				out.Err = fmt.Errorf("district %s: %w", d.Name, res.Err)
				out.ErrorMessage = out.Err.Error()
				slog.Error("Batch aborted before a token was obtained", "district", d.Name, "state", state.String(), "error", res.Err)
				return out
			}
			if res.Succeeded() && res.Token != "" {
				token = res.Token
				tokenSeen = true
				state = stateHaveToken
			}
		case stateHaveToken:
			mode = "token"
			q.Credential = Credential{Token: token}
			res = e.QueryAllPages(ctx, sess, q)
			if res.Succeeded() {
				if res.Token != "" {
					token = res.Token
				} else {
					slog.Info("Continuation token exhausted, next district needs a captcha", "district", d.Name)
					e.metrics.IncTokenExhaustion()
					token = ""
					state = stateNeedCaptcha
				}
			}
		}

		e.record(ctx, req, d, res, mode, &out)
	}

	state = stateDone
	out.Success = true
	slog.Info("Batch finished", "state", state.String(), "districts", len(req.Districts), "records", out.TotalCount(), "failed", len(out.FailedDistricts()))
	return out
}

// queryWithCaptcha solves a captcha and queries the district, solving again
// while the portal rejects the answer, at most MaxCaptchaAttempts times.
func (e *Engine) queryWithCaptcha(ctx context.Context, sess *Session, q Query) QueryOutcome {
	rounds := max(e.cfg.MaxCaptchaAttempts, 1)

	var last QueryOutcome
	for round := 1; round <= rounds; round++ {
		answer, automated, err := e.AcquireCaptcha(ctx, sess)
		if err != nil {
			return QueryOutcome{Kind: OutcomeFailure, Err: err}
		}

		q.Credential = Credential{Answer: answer}
		last = e.QueryAllPages(ctx, sess, q)
		if last.Succeeded() || !errors.Is(last.Err, ErrCaptchaRejected) {
			return last
		}

		e.metrics.IncCaptchaAttempt("rejected_by_portal")
		slog.Warn("Portal rejected captcha answer", "district", q.DistrictCode, "round", round, "max", rounds, "automated", automated)
	}
	return last
}

func (e *Engine) record(ctx context.Context, req BatchRequest, d entity.District, res QueryOutcome, mode string, out *BatchOutcome) {
	result := e.districtResult(req, d, res)

	if res.Succeeded() {
		records := make([]entity.RawRecord, len(res.Records))
		for i, r := range res.Records {
			r.District = d.Name
			records[i] = r
		}
		out.Records = append(out.Records, records...)
		out.PerDistrict[d.Name] = len(records)
		e.metrics.AddRecords(len(records))

		if e.sink != nil && len(records) > 0 {
			if err := e.sink.SaveRecords(ctx, req.BatchID, req.CityName, d.Name, records); err != nil {
				slog.Error("Failed to save district records", "district", d.Name, "records", len(records), "error", err)
			}
		}
		slog.Info("District completed", "district", d.Name, "mode", mode, "records", len(records))
	} else {
		out.PerDistrict[d.Name] = entity.DistrictFailed
		slog.Warn("District failed", "district", d.Name, "mode", mode, "error", res.Err)
	}

	out.Results = append(out.Results, result)
	e.saveResult(ctx, result)
	e.metrics.IncDistrictQuery(mode, string(result.Status), ErrorType(res.Err))
}

func (e *Engine) districtResult(req BatchRequest, d entity.District, res QueryOutcome) entity.DistrictResult {
	result := entity.DistrictResult{
		BatchID:      req.BatchID,
		CityName:     req.CityName,
		DistrictCode: d.Code,
		DistrictName: d.Name,
	}
	switch {
	case !res.Succeeded():
		result.Status = entity.DistrictStatusFailed
		result.ErrorMessage = res.ErrorMessage()
	case len(res.Records) == 0:
		result.Status = entity.DistrictStatusNoData
	default:
		result.RecordCount = len(res.Records)
		result.Status = entity.DistrictStatusSuccess
	}
	return result
}

func (e *Engine) saveResult(ctx context.Context, result entity.DistrictResult) {
	if e.sink == nil {
		return
	}
	if err := e.sink.SaveDistrictResult(ctx, result); err != nil {
		slog.Error("Failed to save district result", "district", result.DistrictName, "error", err)
	}
}
