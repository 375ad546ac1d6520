package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/conference-icp-scout/internal/oracle"
)

// Temperature is the sampling temperature used for classification.
const Temperature float32 = 0.1

const icpRubric = `
You sort companies by how well they fit an ideal customer profile (ICP) for AI solutions aimed at field service and service operations.

Yes, strong fit:
- Field service management (FSM): dispatch, scheduling, service workflow automation
- Predictive maintenance, AI diagnostics, service knowledge automation
- Remote assistance and AR tooling for technicians
- IoT, telematics, fleet or asset monitoring used to run service operations
- ERP, CRM or ITSM platforms with a core service operations module
- Consultancies and integrators delivering service transformation in asset-heavy industries

Maybe:
- General enterprise software or consulting whose relevance hinges on a service focus
- Hardware makers that run field service without it being their main offering

No:
- Consumer brands, media and content outlets, event names, names of people
- Companies whose relevance cannot be judged from the name
`

const confidenceGuide = `
Confidence:
- 90 to 100 only for well-known, clearly in-profile companies (for example ServiceNow, Salesforce, SAP, Oracle, Geotab).
- 70 to 89 when the fit is likely but the name alone leaves doubt.
- 35 to 69 when unsure and a lookup is needed.
- 0 to 34 when the company is out of profile.
`

// resultsSchema constrains the oracle to {"results": [...]}.
var resultsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"results": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"company":    {Type: genai.TypeString},
					"category":   {Type: genai.TypeString, Enum: categoryNames()},
					"icp_fit":    {Type: genai.TypeString, Enum: []string{"Yes", "Maybe", "No"}},
					"confidence": {Type: genai.TypeInteger},
					"evidence":   {Type: genai.TypeString},
					"reason":     {Type: genai.TypeString},
				},
				Required: []string{"company", "category", "icp_fit", "confidence", "evidence", "reason"},
			},
		},
	},
	Required: []string{"results"},
}

func categoryNames() []string {
	cats := Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

// GeminiOracle classifies names with a JSON-generating model.
type GeminiOracle struct {
	Generator oracle.Generator
}

var _ Oracle = (*GeminiOracle)(nil)

func (o *GeminiOracle) Classify(ctx context.Context, names []string) ([]Row, error) {
	prompt, err := BuildPrompt(names)
	if err != nil {
		return nil, err
	}
	text, err := o.Generator.GenerateJSON(ctx, prompt, resultsSchema)
	if err != nil {
		return nil, err
	}
	return ParseResults(text)
}

// BuildPrompt renders the rubric, output schema and the batch of names.
func BuildPrompt(names []string) (string, error) {
	list, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("encode names: %w", err)
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(icpRubric))
	b.WriteString("\n\nReturn ONLY a JSON object of this shape:\n")
	b.WriteString(`{"results": [{"company": "string", "category": "` + strings.Join(categoryNames(), "|") + `", `)
	b.WriteString(`"icp_fit": "Yes|Maybe|No", "confidence": 0-100, "evidence": "at most 8 words", "reason": "at most 20 words"}]}`)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(confidenceGuide))
	b.WriteString("\n\nUse each company name exactly as given.\n\nCompanies:\n")
	b.Write(list)
	b.WriteString("\n")
	return b.String(), nil
}

type resultsPayload struct {
	Results []json.RawMessage `json:"results"`
}

type resultItem struct {
	Company    string     `json:"company"`
	Category   string     `json:"category"`
	ICPFit     string     `json:"icp_fit"`
	Confidence confidence `json:"confidence"`
	Evidence   string     `json:"evidence"`
	Reason     string     `json:"reason"`
}

// ParseResults decodes a {"results": [...]} response. Items that are not
// objects, or that carry no company, are dropped.
func ParseResults(text string) ([]Row, error) {
	payload, err := oracle.DecodeJSON[resultsPayload](text)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(payload.Results))
	for _, raw := range payload.Results {
		var item resultItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		if strings.TrimSpace(item.Company) == "" {
			continue
		}
		rows = append(rows, Row{
			Company:    strings.TrimSpace(item.Company),
			Category:   ParseCategory(item.Category),
			ICPFit:     ParseFit(item.ICPFit),
			Confidence: item.Confidence.value,
			Evidence:   strings.TrimSpace(item.Evidence),
			Reason:     strings.TrimSpace(item.Reason),
		})
	}
	return rows, nil
}

// confidence accepts a number, a numeric string or null. Anything else
// decodes as no confidence rather than failing the whole item.
type confidence struct {
	value *int
}

func (c *confidence) UnmarshalJSON(b []byte) error {
	c.value = nil
	raw := string(bytes.TrimSpace(b))
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		raw = strings.TrimSuffix(strings.TrimSpace(s), "%")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	v := ClampConfidence(int(math.Round(math.Min(math.Max(f, -1), 101))))
	c.value = &v
	return nil
}
