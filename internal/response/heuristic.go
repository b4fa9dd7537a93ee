package response

import (
	"errors"
	"regexp"
	"strings"
)

// parseHeuristic mines plain text when no JSON survived. Quick
// assessments come from keyword scanning, structured analyses from
// markdown headings and list items. Confidence stays capped at 0.4: a
// model that answered in prose did not follow the schema, no matter how
// complete the text looks.
func parseHeuristic(raw string, format Format) (*Result, error) {
	var (
		data       map[string]any
		confidence float64
	)

	switch format {
	case FormatQuick:
		data = quickFromText(raw)
		confidence = 0.3
	case FormatStructured:
		data, confidence = structuredFromText(raw)
		if len(data) == 0 {
			data = analysisFromText(raw)
			confidence = 0.3
		}
	default:
		data = map[string]any{
			"zusammenfassung": summarize(raw),
			"empfehlungen":    recommendationLines(raw),
		}
		confidence = 0.3
	}

	if len(data) == 0 {
		return nil, errors.New("no usable text content")
	}

	return &Result{
		Data:       data,
		Format:     format,
		Strategy:   StrategyHeuristic,
		Confidence: confidence,
		Warnings:   []string{"Text-Extraktion verwendet - Struktur möglicherweise unvollständig"},
		Raw:        raw,
	}, nil
}

// structuredFromText maps markdown sections onto analysis fields and
// turns list items into action steps. Confidence grows with each mapped
// section but never exceeds 0.4.
func structuredFromText(raw string) (map[string]any, float64) {
	data := make(map[string]any)
	confidence := 0.25

	for _, sec := range findSections(raw) {
		field := mapSectionField(sec.title, FormatStructured)
		if field == "" {
			continue
		}
		if _, exists := data[field]; exists {
			continue
		}
		data[field] = strings.TrimSpace(sec.content)
		confidence += 0.05
	}

	lists := extractLists(raw)
	if len(lists.schritte)+len(lists.empfehlungen)+len(lists.allgemein) > 0 {
		confidence += 0.1
		if _, ok := data["handlungsschritte"]; !ok && len(lists.schritte) > 0 {
			data["handlungsschritte"] = stepItems(lists.schritte)
		}
		if _, ok := data["naechste_schritte"]; !ok {
			next := lists.empfehlungen
			if len(next) == 0 {
				next = lists.allgemein
			}
			if len(next) > 0 {
				data["naechste_schritte"] = anyStrings(next)
			}
		}
	}

	if len(data) == 0 {
		return nil, 0
	}
	if confidence > 0.4 {
		confidence = 0.4
	}
	return data, confidence
}

// analysisFromText is the crudest structured extraction: first paragraph
// as summary plus whatever list items the text offers.
func analysisFromText(raw string) map[string]any {
	data := map[string]any{
		"zusammenfassung": summarize(raw),
	}

	lists := extractLists(raw)
	if len(lists.schritte) > 0 {
		data["handlungsschritte"] = stepItems(lists.schritte)
	}
	next := lists.empfehlungen
	if len(next) == 0 {
		next = lists.allgemein
	}
	if len(next) > 0 {
		data["naechste_schritte"] = anyStrings(next)
	}

	return data
}

// quickFromText scans for German/English feasibility vocabulary. Every
// field has a neutral default, so a quick assessment always comes back
// populated, just marked as extracted from free text.
func quickFromText(raw string) map[string]any {
	lower := strings.ToLower(raw)

	feasibility := "mittel"
	switch {
	case containsAny(lower, "sehr gut", "excellent", "einfach"):
		feasibility = "sehr gut"
	case containsAny(lower, "gut", "machbar", "realistisch"):
		feasibility = "gut"
	case containsAny(lower, "schwierig", "herausfordernd", "komplex"):
		feasibility = "schwierig"
	case containsAny(lower, "unrealistisch", "unmöglich", "nicht machbar"):
		feasibility = "unrealistisch"
	}

	effort := "mittel"
	switch {
	case containsAny(lower, "geringer aufwand", "wenig aufwand", "einfach"):
		effort = "gering"
	case containsAny(lower, "hoher aufwand", "sehr aufwendig", "kompliziert"):
		effort = "hoch"
	}

	recommendation := "überdenken"
	switch {
	case strings.Contains(lower, "empfehlung") && strings.Contains(lower, "ja"):
		recommendation = "go"
	case containsAny(lower, "nicht empfohlen", "nein", "stoppen"):
		recommendation = "no-go"
	case (feasibility == "sehr gut" || feasibility == "gut") && (effort == "gering" || effort == "mittel"):
		recommendation = "go"
	}

	return map[string]any{
		"machbarkeit": feasibility,
		"aufwand":     effort,
		"empfehlung":  recommendation,
		"begruendung": "Aus Freitext extrahiert",
	}
}

type section struct {
	title   string
	content string
}

var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\*\*([^*]+)\*\*:?\s*$`),
	regexp.MustCompile(`^#+\s*([^#\n]+)$`),
	regexp.MustCompile(`^([A-ZÄÖÜ][^:\n]*):$`),
}

// findSections splits text into heading/content pairs. Recognized heading
// shapes: **Bold**, markdown #-headings, and "Capitalized line:".
func findSections(raw string) []section {
	var (
		sections []section
		title    string
		content  []string
	)

	flush := func() {
		if title != "" && len(content) > 0 {
			sections = append(sections, section{title: title, content: strings.Join(content, "\n")})
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		heading := ""
		for _, p := range headingPatterns {
			if m := p.FindStringSubmatch(line); m != nil {
				heading = strings.TrimSpace(m[1])
				break
			}
		}

		if heading != "" {
			flush()
			title = heading
			content = nil
			continue
		}
		if title != "" {
			content = append(content, line)
		}
	}
	flush()

	return sections
}

// mapSectionField matches a section title against the vocabulary of a
// format's fields. Returns "" when the title maps to nothing.
func mapSectionField(title string, format Format) string {
	type mapping struct {
		field    string
		keywords []string
	}

	var mappings []mapping
	switch format {
	case FormatStructured:
		mappings = []mapping{
			{"zusammenfassung", []string{"zusammenfassung", "summary", "einschätzung"}},
			{"handlungsschritte", []string{"handlungsschritte", "schritte", "maßnahmen", "actions"}},
			{"technische_loesungen", []string{"technische", "lösungen", "solutions", "tools"}},
			{"risiken", []string{"risiken", "risks", "gefahren"}},
			{"chancen", []string{"chancen", "opportunities", "vorteile"}},
			{"naechste_schritte", []string{"nächste", "next steps", "empfehlungen"}},
		}
	case FormatQuick:
		mappings = []mapping{
			{"machbarkeit", []string{"machbarkeit", "feasibility"}},
			{"aufwand", []string{"aufwand", "effort"}},
			{"empfehlung", []string{"empfehlung", "recommendation"}},
		}
	default:
		return ""
	}

	lower := strings.ToLower(title)
	for _, m := range mappings {
		if containsAny(lower, m.keywords...) {
			return m.field
		}
	}
	return ""
}

type textLists struct {
	schritte     []string
	empfehlungen []string
	allgemein    []string
}

var listPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*[-*•]\s*(.+)$`),
	regexp.MustCompile(`^\s*\d+\.\s*(.+)$`),
	regexp.MustCompile(`^\s*[a-z]\)\s*(.+)$`),
}

// extractLists collects bullet, numbered and lettered list items and
// buckets them by keyword into steps, recommendations and the rest.
func extractLists(raw string) textLists {
	var lists textLists

	for _, line := range strings.Split(raw, "\n") {
		for _, p := range listPatterns {
			m := p.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			item := strings.TrimSpace(m[1])
			lower := strings.ToLower(item)
			switch {
			case containsAny(lower, "schritt", "maßnahme", "aktion"):
				lists.schritte = append(lists.schritte, item)
			case containsAny(lower, "empfehlung", "sollte", "muss"):
				lists.empfehlungen = append(lists.empfehlungen, item)
			default:
				lists.allgemein = append(lists.allgemein, item)
			}
			break
		}
	}

	return lists
}

// summarize takes the first paragraph, shortened to roughly 300 chars.
func summarize(raw string) string {
	for _, p := range strings.Split(raw, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		runes := []rune(p)
		if len(runes) > 300 {
			return string(runes[:297]) + "..."
		}
		return p
	}
	return "Keine Zusammenfassung verfügbar"
}

// recommendationLines returns lines that sound like recommendations.
func recommendationLines(raw string) []any {
	markers := []string{"empfehlung", "sollte", "muss", "wichtig", "nächster schritt"}

	var recs []any
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if containsAny(strings.ToLower(line), markers...) {
			recs = append(recs, line)
		}
	}
	return recs
}

func stepItems(items []string) []any {
	steps := make([]any, len(items))
	for i, item := range items {
		steps[i] = map[string]any{"titel": item, "beschreibung": item}
	}
	return steps
}

func anyStrings(items []string) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
