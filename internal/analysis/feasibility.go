package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/kian/internal/profile"
)

// ErrNotEnoughUseCases is returned by Compare for fewer than two cases.
var ErrNotEnoughUseCases = errors.New("mindestens 2 Use Cases für Vergleich erforderlich")

// Feasibility is the condensed go/no-go verdict of a quick check.
type Feasibility struct {
	AnalysisID    string   `json:"analysis_id,omitempty"`
	Feasible      bool     `json:"feasible"`
	Level         string   `json:"feasibility_level,omitempty"`
	Effort        string   `json:"effort,omitempty"`
	CostEstimate  string   `json:"cost_estimate,omitempty"`
	Timeframe     string   `json:"timeframe,omitempty"`
	MainObstacles []string `json:"main_obstacles,omitempty"`
	Confidence    float64  `json:"confidence"`
	Error         string   `json:"error,omitempty"`
	Full          *Record  `json:"full_analysis,omitempty"`
}

// QuickFeasibility runs the quick_feasibility template and condenses the
// result. It never fails out-of-band: any error comes back inside the
// verdict as {Feasible: false, Confidence: 0, Error: ...}.
func (e *Engine) QuickFeasibility(ctx context.Context, company profile.Company, uc profile.UseCase) Feasibility {
	rec, err := e.Analyze(ctx, "quick_feasibility", company, uc, nil)
	if err != nil {
		e.logger.Error("quick feasibility check failed", "error", err)
		return Feasibility{Error: err.Error()}
	}

	data := rec.Data
	return Feasibility{
		AnalysisID:    rec.ID,
		Feasible:      stringValue(data["empfehlung"]) == "go",
		Level:         stringOr(data["machbarkeit"], "mittel"),
		Effort:        stringOr(data["aufwand"], "mittel"),
		CostEstimate:  stringOr(data["kosten"], "unbekannt"),
		Timeframe:     stringOr(data["zeitrahmen"], "unbekannt"),
		MainObstacles: stringList(data["haupthindernisse"]),
		Confidence:    rec.Confidence,
		Full:          rec,
	}
}

// RankEntry is one use case's position in a comparison.
type RankEntry struct {
	Index int    `json:"use_case_index"`
	Title string `json:"use_case_title"`
	Feasibility
}

// Comparison ranks several use cases for the same company.
type Comparison struct {
	TotalUseCases  int         `json:"total_use_cases"`
	FeasibleCount  int         `json:"feasible_count"`
	Ranking        []RankEntry `json:"ranking"`
	Recommendation *RankEntry  `json:"recommendation,omitempty"`
	Summary        string      `json:"comparison_summary"`
}

// Compare runs a quick feasibility check per use case and ranks the
// results: feasible cases first, then by confidence, then by how little
// effort they need. Requires at least two use cases.
func (e *Engine) Compare(ctx context.Context, company profile.Company, usecases []profile.UseCase) (*Comparison, error) {
	if len(usecases) < 2 {
		return nil, ErrNotEnoughUseCases
	}

	entries := make([]RankEntry, 0, len(usecases))
	for i, uc := range usecases {
		e.logger.Info("checking feasibility", "index", i+1, "total", len(usecases))

		title := uc.Title(50)
		if title == "" {
			title = fmt.Sprintf("Use Case %d", i+1)
		}
		entries = append(entries, RankEntry{
			Index:       i,
			Title:       title,
			Feasibility: e.QuickFeasibility(ctx, company, uc),
		})
	}

	feasible := 0
	for _, entry := range entries {
		if entry.Feasible {
			feasible++
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Feasible != b.Feasible {
			return a.Feasible
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return effortScore(a.Effort) > effortScore(b.Effort)
	})

	cmp := &Comparison{
		TotalUseCases: len(usecases),
		FeasibleCount: feasible,
		Ranking:       entries,
		Summary:       comparisonSummary(entries, feasible),
	}
	if len(entries) > 0 {
		cmp.Recommendation = &entries[0]
	}
	return cmp, nil
}

// effortScore turns the German effort rating into a sortable score where
// less effort ranks higher. Unknown ratings land between mittel and hoch.
func effortScore(effort string) float64 {
	switch strings.ToLower(effort) {
	case "gering":
		return 4.0
	case "mittel":
		return 3.0
	case "hoch":
		return 2.0
	case "sehr hoch":
		return 1.0
	default:
		return 2.5
	}
}

func comparisonSummary(ranked []RankEntry, feasible int) string {
	if len(ranked) == 0 {
		return "Keine Use Cases zum Vergleichen verfügbar."
	}

	summary := fmt.Sprintf("Von %d analysierten Use Cases sind %d als machbar eingestuft. ", len(ranked), feasible)
	if feasible == 0 {
		return summary + "Alle Use Cases erfordern weitere Überlegungen vor der Umsetzung."
	}

	best := ranked[0]
	return summary + fmt.Sprintf("Der vielversprechendste Use Case ist '%s' mit einem Aufwand von '%s' und einer Confidence von %.1f%%.",
		best.Title, best.Effort, best.Confidence*100)
}
