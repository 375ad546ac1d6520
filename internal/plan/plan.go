// Package plan defines the step list a run executes, how it is validated,
// and where it comes from: a model, a file, or the built-in default.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tool names one kind of step. The set is closed.
type Tool string

const (
	ToolScrapeHomepage    Tool = "scrape_homepage"
	ToolCrawlSponsorPages Tool = "crawl_sponsor_pages"
	ToolValidateICP       Tool = "validate_icp"
	ToolExportCSV         Tool = "export_csv"
)

// Tools lists the allowed tools in pipeline order.
func Tools() []Tool {
	return []Tool{ToolScrapeHomepage, ToolCrawlSponsorPages, ToolValidateICP, ToolExportCSV}
}

// Valid reports whether t is one of the allowed tools.
func (t Tool) Valid() bool {
	switch t {
	case ToolScrapeHomepage, ToolCrawlSponsorPages, ToolValidateICP, ToolExportCSV:
		return true
	}
	return false
}

// Parameter names understood by the tools.
const (
	ParamURL       = "url"
	ParamCap       = "cap"
	ParamBatchSize = "batch_size"
	ParamOutCSV    = "out_csv"
)

var (
	ErrInvalidTool         = errors.New("invalid tool")
	ErrMissingRequiredTool = errors.New("missing required tool")
	ErrEmptyPlan           = errors.New("empty plan")
)

// Step is one planned tool invocation.
type Step struct {
	Tool   Tool           `json:"tool" yaml:"tool"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Why    string         `json:"why,omitempty" yaml:"why,omitempty"`
}

// Plan is an ordered list of steps.
type Plan []Step

// Validate checks that every tool is allowed and that the plan classifies and
// exports. Scrape steps are optional.
func Validate(p Plan) error {
	present := make(map[Tool]bool, len(p))
	for i, s := range p {
		if !s.Tool.Valid() {
			return fmt.Errorf("step %d: %w %q", i, ErrInvalidTool, s.Tool)
		}
		present[s.Tool] = true
	}
	for _, required := range []Tool{ToolValidateICP, ToolExportCSV} {
		if !present[required] {
			return fmt.Errorf("%w: %s", ErrMissingRequiredTool, required)
		}
	}
	return nil
}

// Default is the plan used whenever planning fails.
func Default(url, outCSV string) Plan {
	return Plan{
		{Tool: ToolScrapeHomepage, Params: map[string]any{ParamURL: url}, Why: "Get logo companies from homepage"},
		{Tool: ToolCrawlSponsorPages, Params: map[string]any{ParamURL: url, ParamCap: 250}, Why: "Expand to all sponsors"},
		{Tool: ToolValidateICP, Params: map[string]any{ParamBatchSize: 10}, Why: "Classify ICP fit"},
		{Tool: ToolExportCSV, Params: map[string]any{ParamOutCSV: outCSV}, Why: "Write deliverable CSV"},
	}
}

// StringParam returns a non-empty string parameter.
func (s Step) StringParam(key string) (string, bool) {
	v, ok := s.Params[key]
	if !ok || v == nil {
		return "", false
	}
	var str string
	switch t := v.(type) {
	case string:
		str = t
	case fmt.Stringer:
		str = t.String()
	default:
		return "", false
	}
	str = strings.TrimSpace(str)
	return str, str != ""
}

// IntParam returns an integer parameter. JSON numbers, YAML ints and numeric
// strings are accepted; fractional values are not.
func (s Step) IntParam(key string) (int, bool) {
	v, ok := s.Params[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

// Describe renders the step for logs and CLI output.
func (s Step) Describe() string {
	params, _ := json.Marshal(s.Params)
	if s.Params == nil {
		params = []byte("{}")
	}
	if s.Why == "" {
		return fmt.Sprintf("%s %s", s.Tool, params)
	}
	return fmt.Sprintf("%s %s (%s)", s.Tool, params, s.Why)
}
