package crawler

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	csrfSelector       = `input[name="_csrf"]`
	captchaKeySelector = `#captchaKey_captchaKey`
)

// extractValue returns the value attribute of the first element matching
// selector, or "" when the element or attribute is missing.
func extractValue(body []byte, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	v, _ := doc.Find(selector).First().Attr("value")
	return strings.TrimSpace(v), nil
}
