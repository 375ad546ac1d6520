package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shpitdev/conference-icp-scout/internal/classify"
	"github.com/shpitdev/conference-icp-scout/internal/extract"
	"github.com/shpitdev/conference-icp-scout/internal/fetch"
	"github.com/shpitdev/conference-icp-scout/internal/logging"
	"github.com/shpitdev/conference-icp-scout/internal/oracle"
	"github.com/shpitdev/conference-icp-scout/internal/pipeline"
	"github.com/shpitdev/conference-icp-scout/internal/plan"
	"github.com/shpitdev/conference-icp-scout/internal/supervisor"
	"github.com/shpitdev/conference-icp-scout/internal/version"
)

var errNoOracle = errors.New("classification oracle is not configured")

// Components are the collaborators a run is assembled from. Renderer and
// Planner may be nil: the rendered pass is then skipped and the default plan
// runs.
type Components struct {
	Fetcher  extract.Fetcher
	Renderer extract.Renderer
	Planner  plan.Planner
	Oracle   classify.Oracle
	Exporter *Exporter
}

// NewComponents builds the production collaborators for cfg. The Gemini
// client is only created when withOracle is set, so scrape-only runs need no
// API key.
func NewComponents(ctx context.Context, cfg Config, withOracle bool) (Components, error) {
	static, err := fetch.NewStaticClient(fetch.StaticConfig{Timeout: cfg.FetchTimeout})
	if err != nil {
		return Components{}, fmt.Errorf("create fetcher: %w", err)
	}
	c := Components{Fetcher: static, Exporter: &Exporter{S3: cfg.S3}}
	if !cfg.RenderDisabled {
		c.Renderer = fetch.NewChromeRenderer(fetch.RenderConfig{Timeout: cfg.RenderTimeout, ExecPath: cfg.ChromePath})
	}
	if cfg.PlanFile != "" {
		c.Planner = plan.FilePlanner{Path: cfg.PlanFile}
	}
	if !withOracle {
		return c, nil
	}

	client, err := oracle.NewGeminiClient(ctx, cfg.Gemini)
	if err != nil {
		return Components{}, fmt.Errorf("create gemini client: %w", err)
	}
	if c.Planner == nil {
		c.Planner = &plan.GeminiPlanner{Generator: client.WithTemperature(plan.Temperature)}
	}
	c.Oracle = &classify.GeminiOracle{Generator: client.WithTemperature(classify.Temperature)}
	return c, nil
}

// Run plans and executes a full scrape-classify-export job for url.
func Run(ctx context.Context, cfg Config, url, out string) (supervisor.RunResult, error) {
	c, err := NewComponents(ctx, cfg, true)
	if err != nil {
		return supervisor.RunResult{}, err
	}
	return c.Run(ctx, cfg, url, out)
}

// Scrape writes the companies found on url and its sponsor pages to out,
// sorted by name. It returns the number of companies written.
func Scrape(ctx context.Context, cfg Config, url, out string, sponsorLinkCap int) (int, error) {
	c, err := NewComponents(ctx, cfg, false)
	if err != nil {
		return 0, err
	}
	return c.Scrape(ctx, cfg, url, out, sponsorLinkCap)
}

// Validate classifies the raw company CSV at in and writes the ranked table
// to out. It returns the number of rows written.
func Validate(ctx context.Context, cfg Config, in, out string, batchSize int) (int, error) {
	c, err := NewComponents(ctx, cfg, true)
	if err != nil {
		return 0, err
	}
	return c.Validate(ctx, cfg, in, out, batchSize)
}

func (c Components) Run(ctx context.Context, cfg Config, url, out string) (supervisor.RunResult, error) {
	if c.Oracle == nil {
		return supervisor.RunResult{}, errNoOracle
	}
	log := runLogger(cfg, "run")
	log.Info("run started", zap.String("url", url), zap.String("out", out), zap.String("version", version.Current))

	s := &supervisor.Supervisor{
		Planner:   c.Planner,
		Scraper:   c.scraper(cfg, log),
		Validator: c.batcher(cfg, log),
		Exporter:  c.exporter(cfg),
		Logger:    log,
		Metrics:   cfg.Metrics,
	}
	return s.Run(ctx, url, out)
}

func (c Components) Scrape(ctx context.Context, cfg Config, url, out string, sponsorLinkCap int) (int, error) {
	log := runLogger(cfg, "scrape")
	log.Info("scrape started", zap.String("url", url), zap.Int("cap", sponsorLinkCap))

	companies, err := c.scraper(cfg, log).ScrapeCompanies(ctx, url, sponsorLinkCap)
	if err != nil {
		return 0, err
	}
	pipeline.SortCompaniesByName(companies)
	if err := c.exporter(cfg).ExportCompanies(ctx, out, companies); err != nil {
		return 0, fmt.Errorf("export %s: %w", out, err)
	}
	log.Info("exported", zap.String("dest", out), zap.Int("companies", len(companies)))
	return len(companies), nil
}

func (c Components) Validate(ctx context.Context, cfg Config, in, out string, batchSize int) (int, error) {
	if c.Oracle == nil {
		return 0, errNoOracle
	}
	log := runLogger(cfg, "validate")
	log.Info("validate started", zap.String("in", in), zap.Int("batch_size", batchSize))

	companies, err := pipeline.CompaniesInput(in).Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", in, err)
	}
	companies = extract.Dedupe(companies)

	validated, err := c.batcher(cfg, log).Validate(ctx, extract.Names(companies), batchSize)
	if err != nil {
		return 0, err
	}
	log.Info("validated companies", zap.Int("companies", len(validated)))

	rows := pipeline.Merge(companies, validated)
	pipeline.Rank(rows)
	if err := c.exporter(cfg).Export(ctx, out, rows); err != nil {
		return 0, fmt.Errorf("export %s: %w", out, err)
	}
	log.Info("exported", zap.String("dest", out), zap.Int("rows", len(rows)))
	return len(rows), nil
}

func (c Components) scraper(cfg Config, log *zap.Logger) *extract.Scraper {
	return &extract.Scraper{
		Fetcher:  c.Fetcher,
		Renderer: c.Renderer,
		Logger:   log,
		Metrics:  cfg.Metrics,
		Options: extract.ScrapeOptions{
			SponsorPageTimeout: cfg.FetchTimeout,
			RateLimitRPS:       cfg.RateLimitRPS,
		},
	}
}

func (c Components) batcher(cfg Config, log *zap.Logger) *classify.Batcher {
	return &classify.Batcher{
		Oracle:  c.Oracle,
		Logger:  log,
		Metrics: cfg.Metrics,
		Options: classify.Options{
			MaxRetries:     cfg.MaxRetries,
			RequestTimeout: cfg.RequestTimeout,
			RateLimitRPS:   cfg.RateLimitRPS,
		},
	}
}

func (c Components) exporter(cfg Config) *Exporter {
	if c.Exporter != nil {
		return c.Exporter
	}
	return &Exporter{S3: cfg.S3}
}

// runLogger tags every line of one invocation with a fresh run id.
func runLogger(cfg Config, stage string) *zap.Logger {
	return logging.OrNop(cfg.Logger).With(zap.String("run", uuid.NewString()), zap.String("stage", stage))
}
