package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/kian/internal/storage"
)

// Prerequisites reports whether the engine is able to run analyses.
// Messages are user-facing and in German, like the analysis output.
type Prerequisites struct {
	Ready          bool     `json:"ready"`
	Connection     bool     `json:"lm_studio_connection"`
	ModelAvailable bool     `json:"model_available"`
	ConfigValid    bool     `json:"config_valid"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
}

// CheckPrerequisites verifies the engine's own wiring and the model server:
// templates registered, a model configured, the server reachable, and the
// configured model actually loaded. A missing model that falls back to
// another loaded one is a warning, not an error.
func (e *Engine) CheckPrerequisites(ctx context.Context) *Prerequisites {
	status := &Prerequisites{
		Ready:       true,
		ConfigValid: true,
		Errors:      []string{},
		Warnings:    []string{},
	}

	if len(e.registry.Keys()) == 0 {
		status.ConfigValid = false
		status.Ready = false
		status.Errors = append(status.Errors, "Keine Analyse-Templates registriert")
	}
	configured := e.client.Model()
	if configured == "" {
		status.ConfigValid = false
		status.Ready = false
		status.Errors = append(status.Errors, "Kein Modell konfiguriert")
	}

	check, err := e.client.CheckConnection(ctx)
	if err != nil {
		status.Ready = false
		status.Errors = append(status.Errors, fmt.Sprintf("LM Studio ist nicht erreichbar: %v", err))
		e.logger.Error("model server unreachable", "error", err)
		return status
	}

	status.Connection = true
	status.ModelAvailable = len(check.Models) > 0
	if !status.ModelAvailable {
		status.Ready = false
		status.Errors = append(status.Errors, "LM Studio hat kein Modell geladen")
		return status
	}

	if configured != "" && !strings.Contains(strings.ToLower(check.ResolvedModel), strings.ToLower(configured)) {
		status.Warnings = append(status.Warnings,
			fmt.Sprintf("Modell %q ist nicht geladen, Anfragen verwenden %q", configured, check.ResolvedModel))
	}
	return status
}

// Stats summarizes stored analysis runs. Success means a confidence score
// above 0.6.
type Stats struct {
	Total            int            `json:"total_analyses"`
	AvgConfidence    float64        `json:"average_confidence"`
	SuccessRate      float64        `json:"success_rate"`
	HighConfidence   int            `json:"high_confidence_count"`
	MediumConfidence int            `json:"medium_confidence_count"`
	LowConfidence    int            `json:"low_confidence_count"`
	ByTemplate       map[string]int `json:"templates_used"`
}

// Statistics aggregates stored rows into confidence bands (high ≥ 0.8,
// medium ≥ 0.6, low below) and per-template counts.
func Statistics(records []storage.Analysis) Stats {
	stats := Stats{
		Total:      len(records),
		ByTemplate: map[string]int{},
	}
	if stats.Total == 0 {
		return stats
	}

	var sum float64
	successful := 0
	for _, rec := range records {
		sum += rec.Confidence

		template := rec.Template
		if template == "" {
			template = "unknown"
		}
		stats.ByTemplate[template]++

		if rec.Confidence > 0.6 {
			successful++
		}
		switch {
		case rec.Confidence >= 0.8:
			stats.HighConfidence++
		case rec.Confidence >= 0.6:
			stats.MediumConfidence++
		default:
			stats.LowConfidence++
		}
	}

	stats.AvgConfidence = sum / float64(stats.Total)
	stats.SuccessRate = float64(successful) / float64(stats.Total)
	return stats
}
