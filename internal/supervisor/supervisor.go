// Package supervisor runs one scrape-classify-export job: it resolves a plan,
// executes its steps in order against shared state and stops at the export.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/conference-icp-scout/internal/classify"
	"github.com/shpitdev/conference-icp-scout/internal/extract"
	"github.com/shpitdev/conference-icp-scout/internal/logging"
	"github.com/shpitdev/conference-icp-scout/internal/metrics"
	"github.com/shpitdev/conference-icp-scout/internal/pipeline"
	"github.com/shpitdev/conference-icp-scout/internal/plan"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/redact"
)

// State is a run's position in the plan/execute lifecycle.
type State string

const (
	StatePlanning   State = "planning"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateExported   State = "exported"
	StateFailed     State = "failed"
)

const (
	notesExported     = "Plan executed successfully."
	notesMissingStep  = "Plan did not include export step."
	defaultBatchSize  = classify.DefaultBatchSize
	defaultSponsorCap = extract.DefaultSponsorLinkCap
)

// Scraper extracts companies from a site.
type Scraper interface {
	ScrapeCompanies(ctx context.Context, url string, sponsorLinkCap int) ([]extract.Company, error)
}

// Validator classifies company names, one row per name.
type Validator interface {
	Validate(ctx context.Context, names []string, batchSize int) ([]classify.Row, error)
}

// Exporter writes the final table to dest.
type Exporter interface {
	Export(ctx context.Context, dest string, rows []pipeline.Row) error
}

// RunResult summarizes a finished run.
type RunResult struct {
	OK        bool
	OutputCSV string
	Rows      int
	Notes     string

	State      State
	Plan       plan.Plan
	PlanSource plan.Source
}

// Supervisor wires the collaborators of a run. Planner may be nil, in which
// case the default plan runs.
type Supervisor struct {
	Planner   plan.Planner
	Scraper   Scraper
	Validator Validator
	Exporter  Exporter
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Run plans and executes a job for url, exporting to out unless the plan
// names another destination. Planning problems never fail a run. A failing
// step ends the run in StateFailed and its error is returned alongside the
// result.
func (s *Supervisor) Run(ctx context.Context, url, out string) (RunResult, error) {
	log := logging.OrNop(s.Logger)
	start := time.Now()

	req := plan.Request{URL: url, OutputFilename: out, Hint: plan.DefaultHint}
	log.Info("state", zap.String("state", string(StatePlanning)))
	proposal := plan.Propose(ctx, s.Planner, req)
	log.Info("state", zap.String("state", string(StateValidating)), zap.Int("steps", len(proposal.Plan)))
	res := proposal.Settle(req, log)
	if res.Source == plan.SourceDefault {
		s.Metrics.PlanFallback()
	}
	log.Info("plan resolved", zap.String("plan_source", string(res.Source)), zap.Int("steps", len(res.Plan)))
	for i, step := range res.Plan {
		log.Info("plan step", zap.Int("index", i+1), zap.String("step", step.Describe()))
	}

	result, err := s.Execute(ctx, res.Plan, url, out)
	result.Plan = res.Plan
	result.PlanSource = res.Source
	log.Info("run finished",
		zap.String("state", string(result.State)),
		zap.Bool("ok", result.OK),
		zap.Int("rows", result.Rows),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return result, err
}

// Execute runs the steps of p in order without validating it. The first
// export step ends the run; steps after it are ignored.
func (s *Supervisor) Execute(ctx context.Context, p plan.Plan, url, out string) (RunResult, error) {
	log := logging.OrNop(s.Logger)
	log.Info("state", zap.String("state", string(StateExecuting)))

	var (
		companies []extract.Company
		validated []classify.Row
	)
	for i, step := range p {
		if err := ctx.Err(); err != nil {
			return failed(out, err), err
		}
		stepLog := log.With(zap.Int("step", i+1), zap.String("tool", string(step.Tool)))

		var err error
		switch step.Tool {
		case plan.ToolScrapeHomepage:
			companies, err = s.Scraper.ScrapeCompanies(ctx, stepURL(step, url), 0)
			if err == nil {
				stepLog.Info("extracted companies", zap.Int("companies", len(companies)))
			}

		case plan.ToolCrawlSponsorPages:
			limit, ok := step.IntParam(plan.ParamCap)
			if !ok {
				limit = defaultSponsorCap
			}
			companies, err = s.Scraper.ScrapeCompanies(ctx, stepURL(step, url), limit)
			if err == nil {
				stepLog.Info("extracted companies after sponsor crawl", zap.Int("companies", len(companies)), zap.Int("cap", limit))
			}

		case plan.ToolValidateICP:
			size, ok := step.IntParam(plan.ParamBatchSize)
			if !ok || size <= 0 {
				size = defaultBatchSize
			}
			validated, err = s.Validator.Validate(ctx, extract.Names(companies), size)
			if err == nil {
				stepLog.Info("validated companies", zap.Int("companies", len(validated)), zap.Int("batch_size", size))
			}

		case plan.ToolExportCSV:
			dest := out
			if v, ok := step.StringParam(plan.ParamOutCSV); ok {
				dest = v
			}
			rows := pipeline.Merge(companies, validated)
			pipeline.Rank(rows)
			if err := s.Exporter.Export(ctx, dest, rows); err != nil {
				err = fmt.Errorf("step %d %s: %w", i+1, step.Tool, err)
				return failed(dest, err), err
			}
			stepLog.Info("exported", zap.String("dest", dest), zap.Int("rows", len(rows)))
			log.Info("state", zap.String("state", string(StateExported)))
			return RunResult{OK: true, OutputCSV: dest, Rows: len(rows), Notes: notesExported, State: StateExported}, nil

		default:
			err = fmt.Errorf("%w %q", plan.ErrInvalidTool, step.Tool)
		}
		if err != nil {
			err = fmt.Errorf("step %d %s: %w", i+1, step.Tool, err)
			log.Error("step failed", zap.String("error", redact.Secrets(err.Error())))
			return failed(out, err), err
		}
	}

	log.Warn("plan finished without export", zap.String("state", string(StateFailed)))
	return RunResult{OK: false, OutputCSV: out, Rows: 0, Notes: notesMissingStep, State: StateFailed}, nil
}

func failed(out string, err error) RunResult {
	return RunResult{OK: false, OutputCSV: out, Notes: redact.Secrets(err.Error()), State: StateFailed}
}

// stepURL is the step's url parameter, or the run URL when it has none.
func stepURL(step plan.Step, runURL string) string {
	if v, ok := step.StringParam(plan.ParamURL); ok {
		return v
	}
	return runURL
}
