package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/core"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/worker"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantLimited   bool
	}{
		{name: "rate limited", err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, wantLimited: true},
		{name: "unavailable", err: genai.APIError{Code: 503}, wantTransient: true},
		{name: "bad request", err: genai.APIError{Code: 400}},
		{name: "net timeout", err: timeoutErr{}, wantTransient: true},
		{name: "other", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.err)
			var te *core.TransientError
			assert.Equal(t, tt.wantTransient, errors.As(got, &te))
			var lte *core.LimitedTransientError
			assert.Equal(t, tt.wantLimited, errors.As(got, &lte))
			assert.Equal(t, tt.wantTransient || tt.wantLimited, worker.IsTransient(got))
			assert.Equal(t, tt.err.Error(), got.Error())
		})
	}
}

func TestRateLimitedRetriesAreCapped(t *testing.T) {
	calls := 0
	classifyBatch := core.ProcessFunc[[]string, string](func(context.Context, []string) (string, error) {
		calls++
		return "", classifyErr(genai.APIError{Code: 429, Message: "quota exceeded", Status: "RESOURCE_EXHAUSTED"})
	})

	out, err := worker.ProcessAll(context.Background(), [][]string{{"Acme Corp"}}, classifyBatch, worker.Options{
		MaxRetries:     5,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Error(t, out[0].Err)
	assert.Equal(t, 1+quotaRetries, calls)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), Config{})
	require.Error(t, err)
}

func fakeGemini(t *testing.T, status int, body string, gotReq *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		if gotReq != nil {
			_ = json.NewDecoder(r.Body).Decode(gotReq)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiClientGenerateJSON(t *testing.T) {
	var req map[string]any
	srv := fakeGemini(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"plan\":[]}"}]}}]}`, &req)

	c, err := NewGeminiClient(context.Background(), Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())

	got, err := c.WithTemperature(0.2).GenerateJSON(context.Background(), "plan it", &genai.Schema{Type: genai.TypeObject})
	require.NoError(t, err)
	assert.Equal(t, `{"plan":[]}`, got)

	gen, ok := req["generationConfig"].(map[string]any)
	require.True(t, ok, "request: %v", req)
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.InDelta(t, 0.2, gen["temperature"], 1e-6)
}

func TestGeminiClientServerErrorIsTransient(t *testing.T) {
	srv := fakeGemini(t, http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, nil)

	c, err := NewGeminiClient(context.Background(), Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.GenerateJSON(context.Background(), "classify", nil)
	var te *core.TransientError
	require.ErrorAs(t, err, &te)
}
