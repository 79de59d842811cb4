package crawler

import (
	"context"
	"log/slog"
)

// QueryAllPages fetches every page of one district's result set. Page 1 uses
// q.Credential; later pages use the last non-empty token seen so far (seeded
// with q.Credential.Token) and no captcha answer. A failed later page is
// skipped. The aggregate's Token and CaptchaKey are the last non-empty values
// returned for this district, so an empty Token means none was renewed.
func (e *Engine) QueryAllPages(ctx context.Context, sess *Session, q Query) QueryOutcome {
	q.Page = 1
	first := e.Query(ctx, sess, q)
	if !first.Succeeded() {
		e.metrics.IncPage("failed")
		return first
	}
	e.metrics.IncPage("ok")

	agg := QueryOutcome{
		Kind:       first.Kind,
		Records:    first.Records,
		TotalPages: first.TotalPages,
		Token:      first.Token,
		CaptchaKey: first.CaptchaKey,
	}

	carry := q.Credential.Token
	if first.Token != "" {
		carry = first.Token
	}

	for page := 2; page <= first.TotalPages; page++ {
		if err := ctx.Err(); err != nil {
			slog.Warn("Pagination interrupted", "district", q.DistrictCode, "page", page, "error", err)
			break
		}
		e.sleep(ctx, e.cfg.PageDelay)

		next := q
		next.Page = page
		next.Credential = Credential{Token: carry}

		out := e.Query(ctx, sess, next)
		if !out.Succeeded() {
			e.metrics.IncPage("failed")
			slog.Warn("Page query failed, skipping", "district", q.DistrictCode, "page", page, "total_pages", first.TotalPages, "error", out.Err)
			continue
		}
		e.metrics.IncPage("ok")

		agg.Records = append(agg.Records, out.Records...)
		if out.Token != "" {
			carry = out.Token
			agg.Token = out.Token
		}
		if out.CaptchaKey != "" {
			agg.CaptchaKey = out.CaptchaKey
		}
		slog.Debug("Page fetched", "district", q.DistrictCode, "page", page, "total_pages", first.TotalPages, "records", len(out.Records))
	}

	agg.RecordCount = len(agg.Records)
	if agg.RecordCount > 0 {
		agg.Kind = OutcomeRecords
	}
	return agg
}
