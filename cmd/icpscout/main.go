// Command icpscout scrapes the companies listed on a conference site,
// classifies them against the ideal customer profile and writes a ranked CSV.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shpitdev/conference-icp-scout/internal/app"
	"github.com/shpitdev/conference-icp-scout/internal/logging"
	"github.com/shpitdev/conference-icp-scout/internal/metrics"
	"github.com/shpitdev/conference-icp-scout/internal/oracle"
	"github.com/shpitdev/conference-icp-scout/internal/supervisor"
	"github.com/shpitdev/conference-icp-scout/internal/version"
	s3io "github.com/shpitdev/conference-icp-scout/pkg/pipeline/io/s3"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/redact"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	root, err := newRootCmd(os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %s\n", redact.Secrets(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) (*cobra.Command, error) {
	d, err := loadEnvDefaults()
	if err != nil {
		return nil, err
	}

	var url, out, planFile string
	root := &cobra.Command{
		Use:   "icpscout",
		Short: "Scrape conference sponsors and rank them against the ICP",
		Long: `icpscout extracts company names from a conference website (homepage logos,
sponsor headings, sponsor sub-pages and a rendered copy of the page), classifies
each company against the ideal customer profile with Gemini and writes a ranked CSV.

Examples:
  # Full run: plan, scrape, classify, export
  icpscout --url https://expo.example.com --out leads.csv

  # Use a fixed plan instead of asking the model
  icpscout --url https://expo.example.com --plan plan.yaml

  # Stage by stage
  icpscout scrape --url https://expo.example.com
  icpscout validate --in companies_raw.csv --out companies_validated.csv`,
		Version:       version.Current,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), &d, func(ctx context.Context, cfg app.Config) error {
				cfg.PlanFile = planFile
				res, err := app.Run(ctx, cfg, url, out)
				if res.State != "" {
					printResult(stdout, res)
				}
				return err
			})
		},
	}

	root.Flags().StringVar(&url, "url", "", "Conference URL to scrape")
	root.Flags().StringVar(&out, "out", "companies_validated.csv", "Output CSV path or s3://bucket/key")
	root.Flags().StringVar(&planFile, "plan", "", "YAML/JSON plan file used instead of the LLM planner")
	_ = root.MarkFlagRequired("url")

	pf := root.PersistentFlags()
	pf.StringVar(&d.Model, "model", d.Model, "Gemini model name (env: GEMINI_MODEL)")
	pf.StringVar(&d.BaseURL, "gemini-base-url", d.BaseURL, "Gemini API base URL override (env: GEMINI_BASE_URL)")
	pf.BoolVar(&d.RenderDisabled, "no-render", d.RenderDisabled, "Skip the headless browser pass (env: RENDER_DISABLED)")
	pf.StringVar(&d.ChromePath, "chrome-path", d.ChromePath, "Chrome/Chromium binary for the rendered pass (env: CHROME_PATH)")
	pf.DurationVar(&d.FetchTimeout, "fetch-timeout", d.FetchTimeout, "Per-page static fetch timeout (env: FETCH_TIMEOUT)")
	pf.DurationVar(&d.RenderTimeout, "render-timeout", d.RenderTimeout, "Rendered pass timeout (env: RENDER_TIMEOUT)")
	pf.IntVar(&d.MaxRetries, "max-retries", d.MaxRetries, "Max retries per classification batch for transient failures (env: MAX_RETRIES)")
	pf.DurationVar(&d.RequestTimeout, "request-timeout", d.RequestTimeout, "Per-batch oracle request timeout (env: REQUEST_TIMEOUT)")
	pf.Float64Var(&d.RateLimitRPS, "rate-limit-rps", d.RateLimitRPS, "Request rate limit (RPS) for oracle batches and sponsor pages, 0 disables (env: RATE_LIMIT_RPS)")
	pf.StringVar(&d.LogLevel, "log-level", d.LogLevel, "debug, info, warn or error (env: LOG_LEVEL)")
	pf.StringVar(&d.LogFormat, "log-format", d.LogFormat, "console or json (env: LOG_FORMAT)")
	pf.StringVar(&d.MetricsFile, "metrics-file", d.MetricsFile, "Write Prometheus counters to this file when done (env: METRICS_FILE)")
	pf.StringVar(&d.S3Region, "s3-region", d.S3Region, "AWS region for s3:// outputs (env: S3_REGION)")
	pf.StringVar(&d.S3Profile, "s3-profile", d.S3Profile, "AWS shared config profile for s3:// outputs (env: S3_PROFILE)")
	pf.BoolVar(&d.S3PathStyle, "s3-path-style", d.S3PathStyle, "Use path-style S3 addressing (env: S3_USE_PATH_STYLE)")

	root.AddCommand(newScrapeCmd(stdout, &d), newValidateCmd(stdout, &d))
	return root, nil
}

func newScrapeCmd(stdout io.Writer, d *envDefaults) *cobra.Command {
	var url, out string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Extract companies from a conference site into a raw CSV",
		Long: `Extract companies from the homepage, its sponsor sub-pages and a rendered copy
of the page, and write them sorted by name. No API key is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), d, func(ctx context.Context, cfg app.Config) error {
				n, err := app.Scrape(ctx, cfg, url, out, d.SponsorLinkCap)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(stdout, "Companies=%d\nOutput=%s\n", n, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Conference URL to scrape")
	cmd.Flags().StringVar(&out, "out", "companies_raw.csv", "Output CSV path or s3://bucket/key")
	cmd.Flags().IntVar(&d.SponsorLinkCap, "cap", d.SponsorLinkCap, "Max sponsor pages to visit, 0 skips them (env: SPONSOR_LINK_CAP)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newValidateCmd(stdout io.Writer, d *envDefaults) *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Classify a raw company CSV and write the ranked table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), d, func(ctx context.Context, cfg app.Config) error {
				n, err := app.Validate(ctx, cfg, in, out, d.BatchSize)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(stdout, "Rows=%d\nOutput=%s\n", n, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "companies_raw.csv", "Raw company CSV (needs a company column)")
	cmd.Flags().StringVar(&out, "out", "companies_validated.csv", "Output CSV path or s3://bucket/key")
	cmd.Flags().IntVar(&d.BatchSize, "batch-size", d.BatchSize, "Companies per classification request (env: BATCH_SIZE)")
	return cmd
}

// withRuntime builds the logger, metrics and app config for one command,
// runs fn and persists the counters afterwards, even when fn fails.
func withRuntime(ctx context.Context, d *envDefaults, fn func(context.Context, app.Config) error) error {
	logger, err := logging.New(logging.Config{Level: d.LogLevel, Format: d.LogFormat})
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	m := metrics.New()
	runErr := fn(ctx, configFrom(d, logger, m))
	if err := m.WriteTextfile(d.MetricsFile); err != nil {
		logger.Warn("write metrics file failed", zap.String("path", d.MetricsFile), zap.Error(err))
	}
	return runErr
}

func configFrom(d *envDefaults, logger *zap.Logger, m *metrics.Metrics) app.Config {
	return app.Config{
		Gemini: oracle.Config{
			APIKey:  d.APIKey,
			Model:   d.Model,
			BaseURL: d.BaseURL,
		},
		FetchTimeout:   d.FetchTimeout,
		RenderTimeout:  d.RenderTimeout,
		RenderDisabled: d.RenderDisabled,
		ChromePath:     d.ChromePath,
		MaxRetries:     d.MaxRetries,
		RequestTimeout: d.RequestTimeout,
		RateLimitRPS:   d.RateLimitRPS,
		S3: s3io.Config{
			Region:       d.S3Region,
			Profile:      d.S3Profile,
			UsePathStyle: d.S3PathStyle,
		},
		Logger:  logger,
		Metrics: m,
	}
}

func printResult(w io.Writer, res supervisor.RunResult) {
	if len(res.Plan) > 0 {
		_, _ = fmt.Fprintf(w, "Plan (%s):\n", res.PlanSource)
		for i, step := range res.Plan {
			_, _ = fmt.Fprintf(w, "  %d. %s\n", i+1, step.Describe())
		}
	}
	_, _ = fmt.Fprintf(w, "OK=%t\nOutput=%s\nRows=%d\n%s\n", res.OK, res.OutputCSV, res.Rows, res.Notes)
}
