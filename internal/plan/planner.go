package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
	"gopkg.in/yaml.v3"

	"github.com/shpitdev/conference-icp-scout/internal/logging"
	"github.com/shpitdev/conference-icp-scout/internal/oracle"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/redact"
)

// DefaultHint steers the planner towards logo and sponsor extraction.
const DefaultHint = "This is a conference site. Prefer logo and sponsor page extraction."

// Temperature is the sampling temperature used for planning.
const Temperature float32 = 0.2

// Request is what a planner plans for.
type Request struct {
	URL            string `json:"url"`
	OutputFilename string `json:"out_csv"`
	Hint           string `json:"hint,omitempty"`
}

// Planner produces a plan. The result is validated by the caller.
type Planner interface {
	Plan(ctx context.Context, req Request) (Plan, error)
}

const plannerInstructions = `
You plan the steps of a data pipeline.

Given the URL of a conference website, plan how to:
1) build a list of companies attending before the event, using logo and sponsor sources;
2) classify each company for ideal customer profile fit.

Rules:
- Every step's "tool" must be exactly one of: scrape_homepage, crawl_sponsor_pages, validate_icp, export_csv.
- Always include validate_icp and export_csv, with export_csv last.
- Include crawl_sponsor_pages when the site likely links to sponsor pages or coverage matters.
- Keep params minimal: scrape steps take "url" (and crawl_sponsor_pages an optional "cap"), validate_icp takes "batch_size", export_csv takes "out_csv".
- "why" is a few words.

Return only JSON of the form:
{"plan": [{"tool": "scrape_homepage", "params": {"url": "..."}, "why": "short"}, ...]}
`

var planSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"plan": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"tool": {Type: genai.TypeString, Enum: toolNames()},
					"params": {
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							ParamURL:       {Type: genai.TypeString},
							ParamCap:       {Type: genai.TypeInteger},
							ParamBatchSize: {Type: genai.TypeInteger},
							ParamOutCSV:    {Type: genai.TypeString},
						},
					},
					"why": {Type: genai.TypeString},
				},
				Required: []string{"tool", "why"},
			},
		},
	},
	Required: []string{"plan"},
}

func toolNames() []string {
	tools := Tools()
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = string(t)
	}
	return out
}

// GeminiPlanner asks a JSON-generating model for a plan.
type GeminiPlanner struct {
	Generator oracle.Generator
}

var _ Planner = (*GeminiPlanner)(nil)

type planPayload struct {
	Plan Plan `json:"plan" yaml:"plan"`
}

func (p *GeminiPlanner) Plan(ctx context.Context, req Request) (Plan, error) {
	if req.Hint == "" {
		req.Hint = DefaultHint
	}
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode planner input: %w", err)
	}
	prompt := strings.TrimSpace(plannerInstructions) + "\n\nInput:\n" + string(input) + "\n"

	text, err := p.Generator.GenerateJSON(ctx, prompt, planSchema)
	if err != nil {
		return nil, err
	}
	payload, err := oracle.DecodeJSON[planPayload](text)
	if err != nil {
		return nil, err
	}
	if len(payload.Plan) == 0 {
		return nil, ErrEmptyPlan
	}
	return payload.Plan, nil
}

// FilePlanner reads a plan from a YAML or JSON file, either as
// {"plan": [...]} or as a bare list of steps.
type FilePlanner struct {
	Path string
}

var _ Planner = FilePlanner{}

func (f FilePlanner) Plan(ctx context.Context, _ Request) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var payload planPayload
	if err := yaml.Unmarshal(b, &payload); err != nil {
		var steps Plan
		if listErr := yaml.Unmarshal(b, &steps); listErr != nil {
			return nil, fmt.Errorf("parse plan file %s: %w", f.Path, err)
		}
		payload.Plan = steps
	}
	if len(payload.Plan) == 0 {
		return nil, ErrEmptyPlan
	}
	return payload.Plan, nil
}

// Source says where a resolved plan came from.
type Source string

const (
	SourcePlanner Source = "planner"
	SourceDefault Source = "default"
)

// Resolution is the plan a run will execute.
type Resolution struct {
	Plan   Plan
	Source Source
	// Err is the planning or validation error that forced the default plan.
	Err error
}

// Proposal is a planner's answer before validation.
type Proposal struct {
	Plan Plan
	Err  error
	none bool
}

// Propose asks planner for a plan without validating it. A nil planner
// proposes nothing.
func Propose(ctx context.Context, planner Planner, req Request) Proposal {
	if planner == nil {
		return Proposal{none: true}
	}
	p, err := planner.Plan(ctx, req)
	if err != nil {
		return Proposal{Err: fmt.Errorf("plan: %w", err)}
	}
	return Proposal{Plan: p}
}

// Settle validates the proposal. An empty proposal, a planner error or an
// invalid plan all resolve to Default.
func (pr Proposal) Settle(req Request, logger *zap.Logger) Resolution {
	log := logging.OrNop(logger)
	fallback := func(err error) Resolution {
		log.Warn("planning failed, using default plan", zap.String("error", redact.Secrets(err.Error())))
		return Resolution{Plan: Default(req.URL, req.OutputFilename), Source: SourceDefault, Err: err}
	}

	if pr.none {
		return Resolution{Plan: Default(req.URL, req.OutputFilename), Source: SourceDefault}
	}
	if pr.Err != nil {
		return fallback(pr.Err)
	}
	if err := Validate(pr.Plan); err != nil {
		return fallback(fmt.Errorf("validate plan: %w", err))
	}
	return Resolution{Plan: pr.Plan, Source: SourcePlanner}
}

// Resolve proposes and settles a plan in one go; planning never fails a run.
func Resolve(ctx context.Context, planner Planner, req Request, logger *zap.Logger) Resolution {
	return Propose(ctx, planner, req).Settle(req, logger)
}
