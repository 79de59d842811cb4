package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// AcquireCaptcha fetches captcha images for sess.CaptchaKey and asks the
// recognizer for a guess until one has the portal's captcha shape. It makes at
// most MaxCaptchaAttempts attempts. When they are exhausted it fetches one more
// image and either hands it to the manual solver (automated=false) or returns
// a *CaptchaExhaustedError carrying that image.
func (e *Engine) AcquireCaptcha(ctx context.Context, sess *Session) (answer string, automated bool, err error) {
	attempts := e.cfg.MaxCaptchaAttempts
	if e.recognizer == nil {
		attempts = 0
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		image, err := e.fetchCaptcha(ctx, sess)
		if err != nil {
			slog.Warn("Captcha image fetch failed", "attempt", attempt, "max", attempts, "error", err)
			e.metrics.IncCaptchaAttempt("fetch_failed")
			e.sleep(ctx, e.cfg.FetchRetryDelay)
			continue
		}

		guess, err := e.recognizer.Classify(ctx, image)
		if err != nil {
			slog.Warn("Captcha recognizer failed", "attempt", attempt, "max", attempts, "error", err)
			e.metrics.IncCaptchaAttempt("recognizer_error")
			e.sleep(ctx, e.cfg.GuessRetryDelay)
			continue
		}

		answer, ok := normalizeGuess(guess, e.cfg.CaptchaLength)
		if !ok {
			slog.Warn("Captcha guess has wrong length", "attempt", attempt, "length", utf8.RuneCountInString(guess), "want", e.cfg.CaptchaLength)
			e.metrics.IncCaptchaAttempt("rejected_shape")
			e.sleep(ctx, e.cfg.GuessRetryDelay)
			continue
		}

		e.metrics.IncCaptchaAttempt("accepted")
		slog.Info("Captcha recognized", "attempt", attempt, "answer", answer)
		return answer, true, nil
	}

	image, fetchErr := e.fetchCaptcha(ctx, sess)
	if fetchErr != nil {
		slog.Warn("Final captcha image fetch failed", "error", fetchErr)
	}

	if e.solver != nil && fetchErr == nil {
		manual, err := e.solver.Solve(ctx, image)
		manual = strings.ToLower(strings.TrimSpace(manual))
		if err == nil && manual != "" {
			e.metrics.IncCaptchaAttempt("manual")
			slog.Info("Captcha supplied by manual solver")
			return manual, false, nil
		}
		slog.Warn("Manual captcha solver gave no answer", "error", err)
	}

	slog.Error("Captcha recognition exhausted", "attempts", attempts)
	return "", false, &CaptchaExhaustedError{Attempts: attempts, Image: image}
}

func (e *Engine) fetchCaptcha(ctx context.Context, sess *Session) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CaptchaTimeout)
	defer cancel()

	q := url.Values{
		"CAPTCHA_KEY": {sess.CaptchaKey},
		"time":        {strconv.FormatInt(e.now().UnixMilli(), 10)},
	}

	start := time.Now()
	body, err := e.transport.Get(ctx, e.url(pathCaptchaImg)+"?"+q.Encode(), nil)
	e.observe("captcha", start, err)
	if err != nil {
		return nil, &TransportError{Op: "fetch captcha", Err: err}
	}
	if len(body) <= e.cfg.MinImageBytes {
		return nil, &TransportError{Op: "fetch captcha", Err: fmt.Errorf("image too small: %d bytes", len(body))}
	}
	return body, nil
}

// normalizeGuess trims the guess and folds full-width characters and case,
// since the portal compares answers case-insensitively. Guesses of the wrong
// length are refused.
func normalizeGuess(guess string, length int) (string, bool) {
	guess = strings.TrimSpace(guess)
	if utf8.RuneCountInString(guess) != length {
		return "", false
	}
	return strings.ToLower(width.Narrow.String(guess)), true
}
