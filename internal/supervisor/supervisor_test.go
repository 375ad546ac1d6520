package supervisor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shpitdev/conference-icp-scout/internal/classify"
	"github.com/shpitdev/conference-icp-scout/internal/extract"
	"github.com/shpitdev/conference-icp-scout/internal/metrics"
	"github.com/shpitdev/conference-icp-scout/internal/pipeline"
	"github.com/shpitdev/conference-icp-scout/internal/plan"
	"github.com/shpitdev/conference-icp-scout/internal/supervisor"
)

const site = "https://expo.example.com/"

type scrapeCall struct {
	url string
	cap int
}

type fakeScraper struct {
	calls []scrapeCall
	err   error
}

func (f *fakeScraper) ScrapeCompanies(_ context.Context, url string, cap int) ([]extract.Company, error) {
	f.calls = append(f.calls, scrapeCall{url: url, cap: cap})
	if f.err != nil {
		return nil, f.err
	}
	out := []extract.Company{
		{Name: "Acme Corp", SourceURL: url, SourceHint: "img alt"},
		{Name: "Initech", SourceURL: url, SourceHint: "img alt"},
	}
	if cap > 0 {
		out = append(out, extract.Company{Name: "Globex Systems", SourceURL: url + "sponsors/g", SourceHint: "sponsor page h1"})
	}
	return out, nil
}

type fakeValidator struct {
	names     []string
	batchSize int
}

func (f *fakeValidator) Validate(_ context.Context, names []string, batchSize int) ([]classify.Row, error) {
	f.names = names
	f.batchSize = batchSize
	conf := 70
	rows := make([]classify.Row, 0, len(names))
	for _, n := range names {
		if n == "Initech" {
			continue
		}
		rows = append(rows, classify.Row{Company: n, Category: classify.CategoryFSM, ICPFit: classify.FitYes, Confidence: &conf})
	}
	return rows, nil
}

type fakeExporter struct {
	dest string
	rows []pipeline.Row
	err  error
}

func (f *fakeExporter) Export(_ context.Context, dest string, rows []pipeline.Row) error {
	f.dest = dest
	f.rows = rows
	return f.err
}

type stubPlanner struct {
	p   plan.Plan
	err error
}

func (s stubPlanner) Plan(context.Context, plan.Request) (plan.Plan, error) { return s.p, s.err }

func newSupervisor(p plan.Planner) (*supervisor.Supervisor, *fakeScraper, *fakeValidator, *fakeExporter) {
	sc, v, ex := &fakeScraper{}, &fakeValidator{}, &fakeExporter{}
	return &supervisor.Supervisor{Planner: p, Scraper: sc, Validator: v, Exporter: ex}, sc, v, ex
}

func TestRunDefaultPlanOnPlannerError(t *testing.T) {
	m := metrics.New()
	s, sc, v, ex := newSupervisor(stubPlanner{err: errors.New("model unavailable")})
	s.Metrics = m

	res, err := s.Run(context.Background(), site, "out.csv")
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, supervisor.StateExported, res.State)
	assert.Equal(t, plan.SourceDefault, res.PlanSource)
	assert.Equal(t, "out.csv", res.OutputCSV)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, "Plan executed successfully.", res.Notes)

	assert.Equal(t, []scrapeCall{{url: site, cap: 0}, {url: site, cap: 250}}, sc.calls)
	assert.Equal(t, 10, v.batchSize)
	assert.Equal(t, []string{"Acme Corp", "Initech", "Globex Systems"}, v.names)

	assert.Equal(t, "out.csv", ex.dest)
	require.Len(t, ex.rows, 3)
	assert.Equal(t, "Acme Corp", ex.rows[0].Company)
	assert.Equal(t, "Globex Systems", ex.rows[1].Company)
	assert.Equal(t, "Initech", ex.rows[2].Company)
	assert.Empty(t, ex.rows[2].ICPFit)

	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP icpscout_plan_fallbacks_total Runs that fell back to the default plan.
# TYPE icpscout_plan_fallbacks_total counter
icpscout_plan_fallbacks_total 1
`), "icpscout_plan_fallbacks_total"))
}

func TestRunInvalidPlanFallsBack(t *testing.T) {
	s, sc, _, _ := newSupervisor(stubPlanner{p: plan.Plan{{Tool: "summarize"}, {Tool: plan.ToolExportCSV}}})

	res, err := s.Run(context.Background(), site, "out.csv")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, plan.SourceDefault, res.PlanSource)
	assert.Len(t, sc.calls, 2)
}

func TestRunLogsStatesInOrder(t *testing.T) {
	obs, logs := observer.New(zap.InfoLevel)
	s, _, _, _ := newSupervisor(stubPlanner{p: plan.Plan{{Tool: "summarize"}, {Tool: plan.ToolExportCSV}}})
	s.Logger = zap.New(obs)

	_, err := s.Run(context.Background(), site, "out.csv")
	require.NoError(t, err)

	var seq []string
	for _, e := range logs.All() {
		switch {
		case e.Message == "state":
			seq = append(seq, e.ContextMap()["state"].(string))
		case strings.HasPrefix(e.Message, "planning failed"):
			seq = append(seq, "fallback")
		}
	}
	assert.Equal(t, []string{"planning", "validating", "fallback", "executing", "exported"}, seq)
}

func TestRunPlannerPlan(t *testing.T) {
	p := plan.Plan{
		{Tool: plan.ToolCrawlSponsorPages, Params: map[string]any{"url": "https://other.example.com/", "cap": float64(5)}},
		{Tool: plan.ToolValidateICP, Params: map[string]any{"batch_size": float64(3)}},
		{Tool: plan.ToolExportCSV, Params: map[string]any{"out_csv": "planned.csv"}},
		{Tool: plan.ToolScrapeHomepage},
	}
	s, sc, v, ex := newSupervisor(stubPlanner{p: p})

	res, err := s.Run(context.Background(), site, "out.csv")
	require.NoError(t, err)
	assert.Equal(t, plan.SourcePlanner, res.PlanSource)
	assert.Equal(t, "planned.csv", res.OutputCSV)
	assert.Equal(t, "planned.csv", ex.dest)
	assert.Equal(t, 3, v.batchSize)
	// Export is terminal: the trailing scrape step never runs.
	assert.Equal(t, []scrapeCall{{url: "https://other.example.com/", cap: 5}}, sc.calls)
}

func TestRunValidateOnlyPlan(t *testing.T) {
	s, sc, v, ex := newSupervisor(stubPlanner{p: plan.Plan{{Tool: plan.ToolValidateICP}, {Tool: plan.ToolExportCSV}}})

	res, err := s.Run(context.Background(), site, "out.csv")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 0, res.Rows)
	assert.Empty(t, sc.calls)
	assert.Empty(t, v.names)
	assert.Empty(t, ex.rows)
}

func TestExecuteWithoutExport(t *testing.T) {
	s, _, _, ex := newSupervisor(nil)

	res, err := s.Execute(context.Background(), plan.Plan{{Tool: plan.ToolScrapeHomepage}, {Tool: plan.ToolValidateICP}}, site, "out.csv")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 0, res.Rows)
	assert.Equal(t, "out.csv", res.OutputCSV)
	assert.Equal(t, "Plan did not include export step.", res.Notes)
	assert.Equal(t, supervisor.StateFailed, res.State)
	assert.Empty(t, ex.dest)
}

func TestExecuteStepFailure(t *testing.T) {
	t.Run("scrape", func(t *testing.T) {
		s, sc, _, ex := newSupervisor(nil)
		sc.err = errors.New("fetch https://expo.example.com/?key=secret: 503")

		res, err := s.Execute(context.Background(), plan.Default(site, "out.csv"), site, "out.csv")
		require.Error(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, supervisor.StateFailed, res.State)
		assert.Contains(t, res.Notes, "step 1 scrape_homepage")
		assert.NotContains(t, res.Notes, "secret")
		assert.Empty(t, ex.dest)
	})

	t.Run("export", func(t *testing.T) {
		s, _, _, ex := newSupervisor(nil)
		ex.err = errors.New("disk full")

		res, err := s.Execute(context.Background(), plan.Default(site, "out.csv"), site, "out.csv")
		require.Error(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Notes, "disk full")
	})

	t.Run("unknown tool", func(t *testing.T) {
		s, _, _, _ := newSupervisor(nil)
		_, err := s.Execute(context.Background(), plan.Plan{{Tool: "nope"}}, site, "out.csv")
		require.ErrorIs(t, err, plan.ErrInvalidTool)
	})
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, sc, _, _ := newSupervisor(nil)
	res, err := s.Run(ctx, site, "out.csv")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, supervisor.StateFailed, res.State)
	assert.Empty(t, sc.calls)
}
