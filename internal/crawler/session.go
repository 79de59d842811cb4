package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"time"
)

// Session is the portal state a run threads through every request.
// CSRFToken and CaptchaKey always hold the most recently observed values;
// CityCode is fixed once negotiated.
type Session struct {
	CSRFToken  string
	CaptchaKey string
	CityCode   string
}

type negotiationStep struct {
	name string
	path string
	form url.Values // nil means GET
}

// Negotiate performs the three-step handshake that scopes a session to one
// city: load the main page, choose date search, then choose the city. Each
// step consumes the CSRF token of the previous response. A missing marker is
// fatal and not retried here.
func (e *Engine) Negotiate(ctx context.Context, cityCode string) (*Session, error) {
	sess := &Session{}

	steps := []negotiationStep{
		{name: "main", path: pathMain},
		{name: "map", path: pathMap, form: url.Values{"searchType": {"date"}}},
		{name: "query", path: pathQuery, form: url.Values{"searchType": {"date"}, "cityCode": {cityCode}}},
	}

	var body []byte
	for _, step := range steps {
		var err error
		body, err = e.negotiationRequest(ctx, sess, step)
		if err != nil {
			return nil, &NegotiationError{Step: step.name, Err: err}
		}

		csrf, err := extractValue(body, csrfSelector)
		if err != nil {
			return nil, &NegotiationError{Step: step.name, Err: err}
		}
		if csrf == "" {
			return nil, &NegotiationError{Step: step.name, Marker: "_csrf"}
		}
		sess.CSRFToken = csrf
		slog.Info("Negotiation step completed", "step", step.name, "csrf", csrf)
	}

	key, err := extractValue(body, captchaKeySelector)
	if err != nil {
		return nil, &NegotiationError{Step: "query", Err: err}
	}
	if key == "" {
		return nil, &NegotiationError{Step: "query", Marker: "captchaKey"}
	}
	sess.CaptchaKey = key
	sess.CityCode = cityCode

	slog.Info("Session negotiated", "city_code", cityCode, "captcha_key", key)
	return sess, nil
}

func (e *Engine) negotiationRequest(ctx context.Context, sess *Session, step negotiationStep) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.NegotiateTimeout)
	defer cancel()

	start := time.Now()
	var (
		body []byte
		err  error
	)
	if step.form == nil {
		body, err = e.transport.Get(ctx, e.url(step.path), nil)
	} else {
		form := url.Values{"_csrf": {sess.CSRFToken}}
		for k, v := range step.form {
			form[k] = v
		}
		body, err = e.transport.PostForm(ctx, e.url(step.path), form, nil)
	}
	e.observe("negotiate_"+step.name, start, err)
	if err != nil {
		return nil, &TransportError{Op: "negotiate " + step.name, Err: err}
	}
	return body, nil
}
