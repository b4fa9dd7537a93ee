package response

import (
	"fmt"
	"strings"
)

// Format names the JSON schema a model response is expected to follow.
// Templates declare their format; "auto" lets the parser guess from
// content markers.
type Format string

const (
	FormatAuto       Format = "auto"
	FormatStructured Format = "structured_json"
	FormatQuick      Format = "quick_json"
	FormatROI        Format = "roi_json"
	FormatPlan       Format = "implementation_json"
	FormatText       Format = "text"
)

// ParseFormat maps wire and template names onto a Format. Template
// identifiers (use_case_analysis etc.) are accepted as aliases so API
// callers can pass either vocabulary. Unknown names degrade to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto
	case "structured_json", "full_analysis", "use_case_analysis":
		return FormatStructured
	case "quick_json", "quick_feasibility":
		return FormatQuick
	case "roi_json", "roi_analysis":
		return FormatROI
	case "implementation_json", "implementation_plan":
		return FormatPlan
	default:
		return FormatText
	}
}

// DetectFormat guesses the schema from content markers. Responses with
// any JSON punctuation are matched against the distinctive field of each
// schema; everything else is plain text.
func DetectFormat(raw string) Format {
	if !strings.ContainsAny(raw, "{}[]") {
		return FormatText
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "projektphasen"):
		return FormatPlan
	case strings.Contains(lower, "machbarkeit"):
		return FormatQuick
	case strings.Contains(lower, "investition") || strings.Contains(lower, "roi"):
		return FormatROI
	default:
		return FormatStructured
	}
}

func (f Format) requiredFields() []string {
	switch f {
	case FormatStructured:
		return []string{
			"zusammenfassung", "handlungsschritte", "technische_loesungen",
			"risiken", "chancen", "erfolgsmessung", "naechste_schritte",
		}
	case FormatQuick:
		return []string{"machbarkeit", "aufwand", "kosten", "zeitrahmen", "empfehlung"}
	case FormatROI:
		return []string{"investition", "einsparungen", "roi", "empfehlung"}
	case FormatPlan:
		return []string{"projektphasen", "ressourcen", "timeline", "erfolgskriterien"}
	default:
		return nil
	}
}

// evaluate scores parsed JSON against the fields its format requires.
// Confidence is the fraction of required fields present, multiplied by a
// format-specific quality factor. Formats without required fields score a
// flat 0.7 for any non-empty object.
func evaluate(v any, format Format) (data map[string]any, confidence float64, errs, warnings []string) {
	data, ok := v.(map[string]any)
	if !ok {
		return nil, 0, []string{"Antwort ist kein JSON-Objekt"}, nil
	}

	required := format.requiredFields()
	if len(required) == 0 {
		if len(data) > 0 {
			return data, 0.7, nil, nil
		}
		return data, 0, nil, nil
	}

	var missing []string
	present := 0
	for _, field := range required {
		if _, ok := data[field]; ok {
			present++
		} else {
			missing = append(missing, field)
		}
	}

	confidence = float64(present) / float64(len(required))

	if len(missing) == len(required) {
		errs = append(errs, "Keine erwarteten Felder gefunden: "+strings.Join(missing, ", "))
	} else if len(missing) > 0 {
		warnings = append(warnings, "Fehlende Felder: "+strings.Join(missing, ", "))
	}

	switch format {
	case FormatStructured:
		confidence *= structuredQuality(data)
	case FormatQuick:
		confidence *= quickQuality(data)
	}

	return data, confidence, errs, warnings
}

// structuredQuality penalizes malformed action steps and rewards concrete
// technical solutions. The factor never exceeds 1.
func structuredQuality(data map[string]any) float64 {
	quality := 1.0

	if steps, ok := data["handlungsschritte"].([]any); ok {
		stepFields := []string{"titel", "beschreibung", "prioritaet"}
		for _, s := range steps {
			step, ok := s.(map[string]any)
			if !ok {
				quality *= 0.8
				continue
			}
			present := 0
			for _, f := range stepFields {
				if _, ok := step[f]; ok {
					present++
				}
			}
			quality *= float64(present) / float64(len(stepFields))
		}
	}

	if solutions, ok := data["technische_loesungen"].([]any); ok && len(solutions) > 0 {
		quality *= 1.1
	}

	if quality > 1 {
		return 1
	}
	return quality
}

// quickQuality penalizes assessments whose verdict fields fall outside
// the vocabulary the templates prescribe.
func quickQuality(data map[string]any) float64 {
	quality := 1.0

	feasibility := strings.ToLower(stringValue(data["machbarkeit"]))
	switch feasibility {
	case "sehr gut", "gut", "mittel", "schwierig", "unrealistisch":
	default:
		quality *= 0.7
	}

	recommendation := strings.ToLower(stringValue(data["empfehlung"]))
	switch recommendation {
	case "go", "no-go", "überdenken":
	default:
		quality *= 0.8
	}

	return quality
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
