// Package pipeline holds the deliverable row schema: merging scraped
// companies with their classifications, ranking, and the CSV encodings of
// both the raw company list and the validated table.
package pipeline

import (
	"slices"
	"strconv"
	"strings"

	"github.com/shpitdev/conference-icp-scout/internal/classify"
	"github.com/shpitdev/conference-icp-scout/internal/extract"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/schema"
)

// Row is the stable output schema contract. Classification fields are empty
// for companies that were never classified.
type Row struct {
	Company    string
	SourceURL  string
	SourceHint string
	Category   string
	ICPFit     string
	Confidence string
	Evidence   string
	Reason     string
}

// ExportContract describes the validated CSV.
var ExportContract = schema.Contract{Fields: []schema.Field{
	{Name: "company", Type: "string"},
	{Name: "source_url", Type: "string", Nullable: true},
	{Name: "source_hint", Type: "string", Nullable: true},
	{Name: "category", Type: "string", Nullable: true},
	{Name: "icp_fit", Type: "string", Nullable: true},
	{Name: "confidence", Type: "integer", Nullable: true},
	{Name: "evidence", Type: "string", Nullable: true},
	{Name: "reason", Type: "string", Nullable: true},
}}

// CompaniesContract describes the raw scraped company CSV.
var CompaniesContract = schema.Contract{Fields: []schema.Field{
	{Name: "company", Type: "string"},
	{Name: "source_url", Type: "string", Nullable: true},
	{Name: "source_hint", Type: "string", Nullable: true},
}}

// Header returns the stable CSV header for Row.
func Header() []string {
	return ExportContract.Names()
}

func (r Row) values() []string {
	return []string{r.Company, r.SourceURL, r.SourceHint, r.Category, r.ICPFit, r.Confidence, r.Evidence, r.Reason}
}

// FitRank orders ICP fits: Yes, Maybe, No, then anything else.
func FitRank(fit string) int {
	switch classify.Fit(fit) {
	case classify.FitYes:
		return 0
	case classify.FitMaybe:
		return 1
	case classify.FitNo:
		return 2
	default:
		return 9
	}
}

// Merge left-joins companies with their classification rows by
// case-insensitive name. Every company yields exactly one row in company
// order, carrying the company's own spelling.
func Merge(companies []extract.Company, validated []classify.Row) []Row {
	byName := make(map[string]classify.Row, len(validated))
	for _, v := range validated {
		k := strings.ToLower(v.Company)
		if _, dup := byName[k]; !dup {
			byName[k] = v
		}
	}

	rows := make([]Row, 0, len(companies))
	for _, c := range companies {
		row := Row{Company: c.Name, SourceURL: c.SourceURL, SourceHint: c.SourceHint}
		if v, ok := byName[c.Key()]; ok {
			row.Category = string(v.Category)
			row.ICPFit = string(v.ICPFit)
			if v.Confidence != nil {
				row.Confidence = strconv.Itoa(*v.Confidence)
			}
			row.Evidence = v.Evidence
			row.Reason = v.Reason
		}
		rows = append(rows, row)
	}
	return rows
}

// Rank sorts rows in place by fit rank, then confidence descending. Rows
// without a numeric confidence follow those with one; ties keep their order.
func Rank(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		if d := FitRank(a.ICPFit) - FitRank(b.ICPFit); d != 0 {
			return d
		}
		ca, okA := confidenceOf(a)
		cb, okB := confidenceOf(b)
		switch {
		case okA && okB:
			return cb - ca
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
}

func confidenceOf(r Row) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(r.Confidence))
	return v, err == nil
}

// SortCompaniesByName orders companies by name, as the raw CSV lists them.
func SortCompaniesByName(companies []extract.Company) {
	slices.SortStableFunc(companies, func(a, b extract.Company) int {
		return strings.Compare(a.Name, b.Name)
	})
}
