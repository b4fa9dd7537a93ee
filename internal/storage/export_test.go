package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExport(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveProfile(Profile{
		ID:   "p-1",
		Name: "Muster Handwerk GmbH",
		Data: `{"unternehmensname": "Muster Handwerk GmbH"}`,
	}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if err := s.SaveUseCase(UseCase{
		ID:    "u-1",
		Title: "Angebotserstellung",
		Data:  `{"beschreibung": "Angebotserstellung"}`,
	}); err != nil {
		t.Fatalf("SaveUseCase: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	for _, id := range []string{"a-1", "a-2"} {
		if err := s.SaveAnalysis(sampleAnalysis(id, "use_case_analysis", now)); err != nil {
			t.Fatalf("SaveAnalysis: %v", err)
		}
	}

	dir := filepath.Join(t.TempDir(), "export")
	manifest, err := s.Export(context.Background(), dir)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if manifest.Profiles != 1 || manifest.UseCases != 1 || manifest.Analyses != 2 {
		t.Errorf("manifest counts = %d/%d/%d, want 1/1/2", manifest.Profiles, manifest.UseCases, manifest.Analyses)
	}

	for _, name := range []string{"profiles.json", "use_cases.json", "analyses.json", "manifest.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing export file %s: %v", name, err)
		}
	}

	// Stored JSON columns come out as nested objects, not re-encoded strings.
	raw, err := os.ReadFile(filepath.Join(dir, "profiles.json"))
	if err != nil {
		t.Fatalf("reading profiles.json: %v", err)
	}
	var profiles []struct {
		ID   string         `json:"id"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &profiles); err != nil {
		t.Fatalf("profiles.json is not valid JSON: %v", err)
	}
	if len(profiles) != 1 || profiles[0].Data["unternehmensname"] != "Muster Handwerk GmbH" {
		t.Errorf("exported profile = %+v", profiles)
	}

	raw, err = os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("reading manifest.json: %v", err)
	}
	var m ExportManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("manifest.json is not valid JSON: %v", err)
	}
	if m.Analyses != 2 {
		t.Errorf("manifest.json analyses = %d, want 2", m.Analyses)
	}
}
