// Package ocr talks to an OCR sidecar that reads captcha images.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseSize = 64 * 1024

var ErrEmptyResult = errors.New("ocr returned no text")

// HTTPRecognizer posts captcha images to an OCR service. The service answers
// either with JSON {"text": "..."} or with the plain text itself.
type HTTPRecognizer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRecognizer creates a recognizer for endpoint with a per-call timeout.
func NewHTTPRecognizer(endpoint string, timeout time.Duration) *HTTPRecognizer {
	return &HTTPRecognizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Classify returns the service's raw guess; shape checks are left to the caller.
func (r *HTTPRecognizer) Classify(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service returned status %d", resp.StatusCode)
	}

	text := parseResult(resp.Header.Get("Content-Type"), body)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

func parseResult(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if strings.HasPrefix(contentType, "application/json") || bytes.HasPrefix(trimmed, []byte("{")) {
		var payload struct {
			Text   string `json:"text"`
			Result string `json:"result"`
		}
		if err := json.Unmarshal(trimmed, &payload); err == nil {
			if payload.Text != "" {
				return strings.TrimSpace(payload.Text)
			}
			return strings.TrimSpace(payload.Result)
		}
	}
	return string(trimmed)
}
