package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// ExportManifest summarizes an Export run.
type ExportManifest struct {
	Dir       string `json:"dir"`
	CreatedAt string `json:"created_at"`
	Profiles  int    `json:"profiles"`
	UseCases  int    `json:"use_cases"`
	Analyses  int    `json:"analyses"`
}

type exportedProfile struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type exportedUseCase struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type exportedAnalysis struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Template     string          `json:"template"`
	ProfileID    string          `json:"profile_id,omitempty"`
	UseCaseID    string          `json:"use_case_id,omitempty"`
	CompanyName  string          `json:"company_name"`
	UseCaseTitle string          `json:"use_case_title"`
	Status       string          `json:"status"`
	Confidence   float64         `json:"confidence"`
	Strategy     string          `json:"strategy"`
	Summary      string          `json:"summary"`
	Result       json.RawMessage `json:"result,omitempty"`
	RawResponse  string          `json:"raw_response,omitempty"`
	Usage        json.RawMessage `json:"usage,omitempty"`
}

// Export writes profiles.json, use_cases.json, analyses.json and a
// manifest.json into dir. Stored JSON columns are embedded as real JSON
// rather than re-encoded strings.
func (s *Store) Export(ctx context.Context, dir string) (*ExportManifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	manifest := &ExportManifest{
		Dir:       dir,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(2) // Reads serialize on the single connection; this bounds the file writes.

	g.Go(func() error {
		if err := gCtx.Err(); err != nil {
			return err
		}
		profiles, err := s.ListProfiles()
		if err != nil {
			return fmt.Errorf("listing profiles: %w", err)
		}
		out := make([]exportedProfile, len(profiles))
		for i, p := range profiles {
			out[i] = exportedProfile{
				ID: p.ID, Name: p.Name, Data: rawJSON(p.Data),
				CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
			}
		}
		manifest.Profiles = len(out)
		return writeJSON(filepath.Join(dir, "profiles.json"), out)
	})

	g.Go(func() error {
		if err := gCtx.Err(); err != nil {
			return err
		}
		useCases, err := s.ListUseCases()
		if err != nil {
			return fmt.Errorf("listing use cases: %w", err)
		}
		out := make([]exportedUseCase, len(useCases))
		for i, u := range useCases {
			out[i] = exportedUseCase{
				ID: u.ID, Title: u.Title, Data: rawJSON(u.Data),
				CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
			}
		}
		manifest.UseCases = len(out)
		return writeJSON(filepath.Join(dir, "use_cases.json"), out)
	})

	g.Go(func() error {
		if err := gCtx.Err(); err != nil {
			return err
		}
		analyses, err := s.ListAnalyses(0, "")
		if err != nil {
			return fmt.Errorf("listing analyses: %w", err)
		}
		out := make([]exportedAnalysis, len(analyses))
		for i, a := range analyses {
			out[i] = exportedAnalysis{
				ID: a.ID, CreatedAt: a.CreatedAt, Template: a.Template,
				ProfileID: a.ProfileID, UseCaseID: a.UseCaseID,
				CompanyName: a.CompanyName, UseCaseTitle: a.UseCaseTitle,
				Status: a.Status, Confidence: a.Confidence, Strategy: a.Strategy,
				Summary: a.Summary, Result: rawJSON(a.ResultJSON),
				RawResponse: a.RawResponse, Usage: rawJSON(a.UsageJSON),
			}
		}
		manifest.Analyses = len(out)
		return writeJSON(filepath.Join(dir, "analyses.json"), out)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeJSON(filepath.Join(dir, "manifest.json"), manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// rawJSON passes stored JSON through unchanged, guarding against rows
// whose column does not hold valid JSON.
func rawJSON(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
