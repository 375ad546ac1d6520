// Package oracle holds the plumbing shared by the LLM-backed planner and
// classifier: a structured-JSON generation client and tolerant decoding of
// what the model sends back.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/core"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// Generator produces a JSON document for prompt, constrained by schema when
// the backend supports it.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// Temperature is passed through when non-nil.
	Temperature *float32
}

// GeminiClient generates structured JSON with the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature *float32
}

func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &GeminiClient{client: client, model: model, temperature: cfg.Temperature}, nil
}

// Model reports the model name requests are sent to.
func (c *GeminiClient) Model() string { return c.model }

// WithTemperature returns a client sharing the same connection but sampling
// at t.
func (c *GeminiClient) WithTemperature(t float32) *GeminiClient {
	cp := *c
	cp.temperature = genai.Ptr(t)
	return &cp
}

func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	cfg := &genai.GenerateContentConfig{
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		Temperature:      c.temperature,
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyErr(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

// quotaRetries caps retries of a 429. A spent quota does not refill within
// the worker's backoff window, so one retry only covers a short burst.
const quotaRetries = 1

func classifyErr(err error) error {
	// Wrap transient failures so the worker will retry with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &core.LimitedTransientError{Err: err, ExtraRetries: quotaRetries}
		case apiErr.Code/100 == 5:
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &core.TransientError{Err: err}
	}
	return err
}
