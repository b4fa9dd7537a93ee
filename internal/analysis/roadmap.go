package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/kian/internal/profile"
)

// Roadmap is a phased implementation plan for one use case.
type Roadmap struct {
	AnalysisID      string           `json:"analysis_id"`
	Phases          []map[string]any `json:"project_phases"`
	Resources       map[string]any   `json:"resources,omitempty"`
	Timeline        map[string]any   `json:"timeline,omitempty"`
	SuccessCriteria []string         `json:"success_criteria,omitempty"`
	TotalWeeks      int              `json:"total_duration_weeks"`
	Confidence      float64          `json:"confidence"`
	Full            *Record          `json:"full_analysis,omitempty"`
}

// BuildRoadmap runs the implementation_plan template and lifts the phased
// plan out of the result.
func (e *Engine) BuildRoadmap(ctx context.Context, company profile.Company, uc profile.UseCase) (*Roadmap, error) {
	rec, err := e.Analyze(ctx, "implementation_plan", company, uc, nil)
	if err != nil {
		return nil, fmt.Errorf("building roadmap: %w", err)
	}

	phases := mapList(rec.Data["projektphasen"])
	return &Roadmap{
		AnalysisID:      rec.ID,
		Phases:          phases,
		Resources:       mapValue(rec.Data["ressourcen"]),
		Timeline:        mapValue(rec.Data["timeline"]),
		SuccessCriteria: stringList(rec.Data["erfolgskriterien"]),
		TotalWeeks:      totalWeeks(phases),
		Confidence:      rec.Confidence,
		Full:            rec,
	}, nil
}

// totalWeeks sums each phase's dauer_wochen. Models return the duration as
// a number or a numeric string about equally often; anything unparsable is
// skipped rather than failing the whole roadmap.
func totalWeeks(phases []map[string]any) int {
	var total float64
	for _, phase := range phases {
		switch w := phase["dauer_wochen"].(type) {
		case float64:
			total += w
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(w), 64); err == nil {
				total += parsed
			}
		}
	}
	return int(total)
}
