package fetch

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/redact"
)

// HTTPError is a sanitized summary of a non-2xx page response.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string

	// Snippet is a redacted, truncated hint of the response body.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "fetch http error"
	}
	parts := []string{
		fmt.Sprintf("fetch %s: status=%s", strings.TrimSpace(e.URL), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(url string, resp *http.Response, body []byte) error {
	h := &HTTPError{URL: url}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}
	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
