package analysis

import (
	"time"

	"github.com/kalambet/kian/internal/lmstudio"
)

// Record is one finished analysis run: the structured fields lifted out of
// the model response plus the metadata needed to judge and reproduce it.
// The German keys of the parsed payload map onto the exported fields
// (zusammenfassung → Summary, handlungsschritte → ImplementationSteps and
// so on); Data keeps the full parsed map so nothing the model returned is
// lost to the mapping.
type Record struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Template     string    `json:"template"`
	ProfileID    string    `json:"profile_id,omitempty"`
	UseCaseID    string    `json:"use_case_id,omitempty"`
	CompanyName  string    `json:"company_name"`
	UseCaseTitle string    `json:"use_case_title"`
	Status       string    `json:"status"`

	Summary             string           `json:"analysis_summary"`
	ImplementationSteps []map[string]any `json:"implementation_steps"`
	TechnicalSolutions  []map[string]any `json:"technical_solutions"`
	Risks               []map[string]any `json:"risks"`
	Opportunities       []map[string]any `json:"opportunities"`
	SuccessMetrics      []map[string]any `json:"success_metrics"`
	NextSteps           []string         `json:"next_steps"`
	Recommendations     []string         `json:"recommendations"`

	Confidence  float64            `json:"confidence_score"`
	Strategy    string             `json:"parse_strategy"`
	Data        map[string]any     `json:"data,omitempty"`
	RawResponse string             `json:"raw_response,omitempty"`
	Messages    []lmstudio.Message `json:"prompt_messages,omitempty"`
	Usage       lmstudio.Usage     `json:"token_usage"`
	DurationMS  int64              `json:"processing_time_ms"`
}

// populate lifts the well-known German keys out of the parsed payload into
// the record's typed fields. Unknown keys stay reachable through Data.
func (r *Record) populate(data map[string]any) {
	r.Summary = stringValue(data["zusammenfassung"])
	r.ImplementationSteps = mapList(data["handlungsschritte"])
	r.TechnicalSolutions = mapList(data["technische_loesungen"])
	r.Risks = mapList(data["risiken"])
	r.Opportunities = mapList(data["chancen"])
	r.SuccessMetrics = mapList(data["erfolgsmessung"])
	r.NextSteps = stringList(data["naechste_schritte"])
	r.Recommendations = stringList(data["empfehlungen"])
}

// requiredByTemplate lists the fields a complete response must carry per
// built-in template. Custom templates contribute no completeness factor.
var requiredByTemplate = map[string][]string{
	"use_case_analysis":   {"zusammenfassung", "handlungsschritte", "technische_loesungen"},
	"quick_feasibility":   {"machbarkeit", "aufwand", "empfehlung"},
	"roi_analysis":        {"investition", "einsparungen", "roi"},
	"implementation_plan": {"projektphasen", "timeline"},
}

// confidenceScore rates a parsed response between 0 and 1 as the mean of
// up to four factors: completeness of the template's required fields,
// raw response length, whether structured data came back at all, and the
// number of concrete recommendations.
func confidenceScore(template, raw string, data map[string]any) float64 {
	var factors []float64

	if required, ok := requiredByTemplate[template]; ok {
		present := 0
		for _, field := range required {
			if _, ok := data[field]; ok {
				present++
			}
		}
		factors = append(factors, float64(present)/float64(len(required)))
	}

	switch n := len(raw); {
	case n > 2000:
		factors = append(factors, 1.0)
	case n > 1000:
		factors = append(factors, 0.8)
	case n > 500:
		factors = append(factors, 0.6)
	default:
		factors = append(factors, 0.4)
	}

	if len(data) > 0 {
		factors = append(factors, 1.0)
	} else {
		factors = append(factors, 0.3)
	}

	recommendations := 0
	for _, field := range []string{"handlungsschritte", "technische_loesungen", "naechste_schritte"} {
		recommendations += listLen(data[field])
	}
	switch {
	case recommendations >= 5:
		factors = append(factors, 1.0)
	case recommendations >= 3:
		factors = append(factors, 0.8)
	case recommendations >= 1:
		factors = append(factors, 0.6)
	default:
		factors = append(factors, 0.2)
	}

	if len(factors) == 0 {
		return 0.5
	}
	var sum float64
	for _, f := range factors {
		sum += f
	}
	return sum / float64(len(factors))
}

// mapList coerces a parsed list into object items. Bare strings become
// {"beschreibung": s} so prose-style model output survives; anything else
// is dropped.
func mapList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case map[string]any:
			out = append(out, t)
		case string:
			out = append(out, map[string]any{"beschreibung": t})
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// stringList coerces a parsed list into strings. Object items collapse to
// their titel/beschreibung/name value when one is set.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, t)
		case map[string]any:
			for _, key := range []string{"titel", "beschreibung", "name"} {
				if s := stringValue(t[key]); s != "" {
					out = append(out, s)
					break
				}
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func listLen(v any) int {
	if items, ok := v.([]any); ok {
		return len(items)
	}
	return 0
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringOr(v any, fallback string) string {
	if s := stringValue(v); s != "" {
		return s
	}
	return fallback
}

func mapValue(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
