package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/kian/internal/lmstudio"
	"github.com/kalambet/kian/internal/storage"
)

func TestCheckPrerequisites_Ready(t *testing.T) {
	gen := &mockGenerator{
		model: "qwen2.5-7b-instruct",
		checkFn: func(ctx context.Context) (*lmstudio.ConnectionCheck, error) {
			return &lmstudio.ConnectionCheck{
				OK:            true,
				ResolvedModel: "qwen2.5-7b-instruct",
				Models:        []lmstudio.ModelInfo{{ID: "qwen2.5-7b-instruct"}},
			}, nil
		},
	}
	eng := newTestEngine(gen, &mockRecorder{})

	got := eng.CheckPrerequisites(context.Background())
	if !got.Ready || !got.Connection || !got.ModelAvailable || !got.ConfigValid {
		t.Errorf("got %+v, want everything ready", got)
	}
	if len(got.Errors) != 0 || len(got.Warnings) != 0 {
		t.Errorf("got errors=%v warnings=%v, want none", got.Errors, got.Warnings)
	}
}

func TestCheckPrerequisites_ModelFallback(t *testing.T) {
	gen := &mockGenerator{
		model: "qwen2.5-7b-instruct",
		checkFn: func(ctx context.Context) (*lmstudio.ConnectionCheck, error) {
			return &lmstudio.ConnectionCheck{
				OK:            true,
				ResolvedModel: "llama-3.2-3b-instruct",
				Models:        []lmstudio.ModelInfo{{ID: "llama-3.2-3b-instruct"}},
			}, nil
		},
	}
	eng := newTestEngine(gen, &mockRecorder{})

	got := eng.CheckPrerequisites(context.Background())
	if !got.Ready {
		t.Error("a fallback model must not block readiness")
	}
	if len(got.Warnings) != 1 {
		t.Fatalf("got warnings %v, want one", got.Warnings)
	}
	if !strings.Contains(got.Warnings[0], "qwen2.5-7b-instruct") || !strings.Contains(got.Warnings[0], "llama-3.2-3b-instruct") {
		t.Errorf("got warning %q, want both model names", got.Warnings[0])
	}
}

func TestCheckPrerequisites_ServerDown(t *testing.T) {
	gen := &mockGenerator{
		model: "qwen2.5-7b-instruct",
		checkFn: func(ctx context.Context) (*lmstudio.ConnectionCheck, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	eng := newTestEngine(gen, &mockRecorder{})

	got := eng.CheckPrerequisites(context.Background())
	if got.Ready || got.Connection {
		t.Errorf("got %+v, want not ready", got)
	}
	if len(got.Errors) != 1 || !strings.Contains(got.Errors[0], "LM Studio ist nicht erreichbar") {
		t.Errorf("got errors %v", got.Errors)
	}
}

func TestCheckPrerequisites_NoModelsLoaded(t *testing.T) {
	gen := &mockGenerator{
		model: "qwen2.5-7b-instruct",
		checkFn: func(ctx context.Context) (*lmstudio.ConnectionCheck, error) {
			return &lmstudio.ConnectionCheck{OK: true, ResolvedModel: "qwen2.5-7b-instruct"}, nil
		},
	}
	eng := newTestEngine(gen, &mockRecorder{})

	got := eng.CheckPrerequisites(context.Background())
	if got.Ready || got.ModelAvailable {
		t.Errorf("got %+v, want not ready", got)
	}
	if !got.Connection {
		t.Error("connection itself succeeded")
	}
	if len(got.Errors) != 1 || !strings.Contains(got.Errors[0], "kein Modell geladen") {
		t.Errorf("got errors %v", got.Errors)
	}
}

func TestCheckPrerequisites_NoModelConfigured(t *testing.T) {
	gen := &mockGenerator{
		checkFn: func(ctx context.Context) (*lmstudio.ConnectionCheck, error) {
			return &lmstudio.ConnectionCheck{
				OK:            true,
				ResolvedModel: "llama-3.2-3b-instruct",
				Models:        []lmstudio.ModelInfo{{ID: "llama-3.2-3b-instruct"}},
			}, nil
		},
	}
	eng := newTestEngine(gen, &mockRecorder{})

	got := eng.CheckPrerequisites(context.Background())
	if got.Ready || got.ConfigValid {
		t.Errorf("got %+v, want invalid config", got)
	}
	if len(got.Errors) != 1 || !strings.Contains(got.Errors[0], "Kein Modell konfiguriert") {
		t.Errorf("got errors %v", got.Errors)
	}
}

func TestStatistics(t *testing.T) {
	records := []storage.Analysis{
		{Template: "use_case_analysis", Confidence: 0.9},
		{Template: "use_case_analysis", Confidence: 0.8},
		{Template: "quick_feasibility", Confidence: 0.7},
		{Template: "use_case_analysis", Confidence: 0.6},
		{Template: "", Confidence: 0.3},
	}

	got := Statistics(records)
	if got.Total != 5 {
		t.Errorf("got total %d, want 5", got.Total)
	}
	if !closeTo(got.AvgConfidence, 0.66) {
		t.Errorf("got avg %v, want 0.66", got.AvgConfidence)
	}
	// Success needs confidence strictly above 0.6, so the 0.6 row is out.
	if !closeTo(got.SuccessRate, 0.6) {
		t.Errorf("got success rate %v, want 0.6", got.SuccessRate)
	}
	if got.HighConfidence != 2 || got.MediumConfidence != 2 || got.LowConfidence != 1 {
		t.Errorf("got bands %d/%d/%d, want 2/2/1", got.HighConfidence, got.MediumConfidence, got.LowConfidence)
	}
	if got.ByTemplate["use_case_analysis"] != 3 || got.ByTemplate["quick_feasibility"] != 1 || got.ByTemplate["unknown"] != 1 {
		t.Errorf("got templates %v", got.ByTemplate)
	}
}

func TestStatistics_Empty(t *testing.T) {
	got := Statistics(nil)
	if got.Total != 0 || got.AvgConfidence != 0 || got.SuccessRate != 0 {
		t.Errorf("got %+v, want zero stats", got)
	}
	if got.ByTemplate == nil || len(got.ByTemplate) != 0 {
		t.Errorf("got templates %v, want an empty map", got.ByTemplate)
	}
}
