// Package classify rates company names against the ideal customer profile
// (ICP) with an external oracle, a batch at a time, and fills in rows the
// oracle skipped or failed on.
package classify

import (
	"context"
	"strings"
)

type Category string

const (
	CategoryFSM          Category = "FSM"
	CategoryAIService    Category = "AI Service"
	CategoryRemoteAssist Category = "Remote Assist"
	CategoryTelematics   Category = "Telematics/IoT"
	CategoryERPCRM       Category = "ERP/CRM"
	CategoryConsulting   Category = "Consulting"
	CategoryOther        Category = "Other"
)

// Categories lists every category in prompt order.
func Categories() []Category {
	return []Category{
		CategoryFSM, CategoryAIService, CategoryRemoteAssist, CategoryTelematics,
		CategoryERPCRM, CategoryConsulting, CategoryOther,
	}
}

// ParseCategory matches s case-insensitively. Anything unrecognized is Other.
func ParseCategory(s string) Category {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryOther
}

type Fit string

const (
	FitYes   Fit = "Yes"
	FitMaybe Fit = "Maybe"
	FitNo    Fit = "No"
	// FitUnknown is an absent or unrecognized fit. It ranks last.
	FitUnknown Fit = ""
)

// ParseFit matches s case-insensitively; anything else is FitUnknown.
func ParseFit(s string) Fit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return FitYes
	case "maybe":
		return FitMaybe
	case "no":
		return FitNo
	default:
		return FitUnknown
	}
}

// Row is the classification of one company name.
type Row struct {
	Company  string
	Category Category
	ICPFit   Fit
	// Confidence is 0-100, nil when the oracle gave none.
	Confidence *int
	Evidence   string
	Reason     string
}

// Oracle classifies a batch of company names. It may return fewer, more or
// reordered rows than names; the Batcher reconciles them.
type Oracle interface {
	Classify(ctx context.Context, names []string) ([]Row, error)
}

const (
	missingConfidence = 45
	missingReason     = "Insufficient info from name alone; likely needs quick lookup."

	errorConfidence = 40
	errorReason     = "Validator error; mark as Maybe pending manual review."
)

// MissingRow is the row used for a name the oracle did not return.
func MissingRow(name string) Row {
	return fallbackRow(name, missingConfidence, missingReason)
}

// ErrorRow is the row used for every name of a batch the oracle failed on.
func ErrorRow(name string) Row {
	return fallbackRow(name, errorConfidence, errorReason)
}

func fallbackRow(name string, confidence int, reason string) Row {
	return Row{
		Company:    name,
		Category:   CategoryOther,
		ICPFit:     FitMaybe,
		Confidence: &confidence,
		Reason:     reason,
	}
}

// ClampConfidence bounds v to 0-100.
func ClampConfidence(v int) int {
	return min(max(v, 0), 100)
}
