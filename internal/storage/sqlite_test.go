package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the analyses indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_analyses_created", "idx_analyses_template"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)

	p := Profile{
		ID:   "p-1",
		Name: "Muster Handwerk GmbH",
		Data: `{"unternehmensname": "Muster Handwerk GmbH", "branche": "Elektroinstallation"}`,
	}
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	got, err := s.GetProfile("p-1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Name != p.Name || got.Data != p.Data {
		t.Errorf("got %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on save")
	}

	// Saving the same id again updates in place.
	p.Name = "Muster Handwerk AG"
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile update: %v", err)
	}
	got, err = s.GetProfile("p-1")
	if err != nil {
		t.Fatalf("GetProfile after update: %v", err)
	}
	if got.Name != "Muster Handwerk AG" {
		t.Errorf("name = %q after update", got.Name)
	}

	list, err := s.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d profiles, want 1", len(list))
	}

	if err := s.DeleteProfile("p-1"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if _, err := s.GetProfile("p-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfile after delete: %v, want ErrNotFound", err)
	}
	if err := s.DeleteProfile("p-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v, want ErrNotFound", err)
	}
}

func TestUseCaseRoundTrip(t *testing.T) {
	s := openTestStore(t)

	u := UseCase{
		ID:    "u-1",
		Title: "KI-gestützte Angebotserstellung",
		Data:  `{"beschreibung": "KI-gestützte Angebotserstellung"}`,
	}
	if err := s.SaveUseCase(u); err != nil {
		t.Fatalf("SaveUseCase: %v", err)
	}

	got, err := s.GetUseCase("u-1")
	if err != nil {
		t.Fatalf("GetUseCase: %v", err)
	}
	if got.Title != u.Title || got.Data != u.Data {
		t.Errorf("got %+v", got)
	}

	if _, err := s.GetUseCase("fehlt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing use case: %v, want ErrNotFound", err)
	}

	if err := s.DeleteUseCase("u-1"); err != nil {
		t.Fatalf("DeleteUseCase: %v", err)
	}
}

func sampleAnalysis(id, template string, createdAt time.Time) Analysis {
	return Analysis{
		ID:           id,
		CreatedAt:    createdAt,
		Template:     template,
		ProfileID:    "p-1",
		UseCaseID:    "u-1",
		CompanyName:  "Muster Handwerk GmbH",
		UseCaseTitle: "Angebotserstellung",
		Confidence:   0.85,
		Strategy:     "direct",
		Summary:      "Gute Ausgangslage für Automatisierung",
		ResultJSON:   `{"zusammenfassung": "ok"}`,
		RawResponse:  `{"zusammenfassung": "ok"}`,
		UsageJSON:    `{"total_tokens": 100}`,
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	a := sampleAnalysis("a-1", "use_case_analysis", now)
	if err := s.SaveAnalysis(a); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	got, err := s.GetAnalysis("a-1")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("status = %q, want default completed", got.Status)
	}
	if got.Confidence != 0.85 || got.Strategy != "direct" {
		t.Errorf("got confidence %v strategy %q", got.Confidence, got.Strategy)
	}
	if got.ResultJSON != a.ResultJSON || got.UsageJSON != a.UsageJSON {
		t.Errorf("JSON columns mangled: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}

	if _, err := s.GetAnalysis("fehlt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing analysis: %v, want ErrNotFound", err)
	}
}

func TestListAnalysesFilterAndLimit(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	for i := 0; i < 3; i++ {
		template := "use_case_analysis"
		if i == 1 {
			template = "quick_feasibility"
		}
		a := sampleAnalysis(fmt.Sprintf("a-%d", i), template, base.Add(time.Duration(i)*time.Minute))
		if err := s.SaveAnalysis(a); err != nil {
			t.Fatalf("SaveAnalysis %d: %v", i, err)
		}
	}

	all, err := s.ListAnalyses(0, "")
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d analyses, want 3", len(all))
	}
	if all[0].ID != "a-2" || all[2].ID != "a-0" {
		t.Errorf("order = %s, %s, %s; want newest first", all[0].ID, all[1].ID, all[2].ID)
	}

	limited, err := s.ListAnalyses(2, "")
	if err != nil {
		t.Fatalf("ListAnalyses(2): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d analyses, want 2", len(limited))
	}

	quick, err := s.ListAnalyses(0, "quick_feasibility")
	if err != nil {
		t.Fatalf("ListAnalyses(quick): %v", err)
	}
	if len(quick) != 1 || quick[0].ID != "a-1" {
		t.Errorf("template filter returned %+v", quick)
	}
}

func TestSearchAnalyses(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	a := sampleAnalysis("a-1", "use_case_analysis", now)
	b := sampleAnalysis("a-2", "use_case_analysis", now.Add(time.Minute))
	b.CompanyName = "Schmidt Sanitär"
	b.Summary = "Terminplanung automatisieren"
	for _, x := range []Analysis{a, b} {
		if err := s.SaveAnalysis(x); err != nil {
			t.Fatalf("SaveAnalysis: %v", err)
		}
	}

	hits, err := s.SearchAnalyses("SANITÄR", 0)
	if err != nil {
		t.Fatalf("SearchAnalyses: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "a-2" {
		t.Errorf("company search returned %+v", hits)
	}

	hits, err = s.SearchAnalyses("automatisier", 0)
	if err != nil {
		t.Fatalf("SearchAnalyses: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("summary search returned %d hits, want 2", len(hits))
	}

	hits, err = s.SearchAnalyses("nichts davon", 0)
	if err != nil {
		t.Fatalf("SearchAnalyses: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits for non-matching query", len(hits))
	}
}

func TestDeleteAnalysis(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveAnalysis(sampleAnalysis("a-1", "use_case_analysis", time.Now())); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	if err := s.DeleteAnalysis("a-1"); err != nil {
		t.Fatalf("DeleteAnalysis: %v", err)
	}
	if err := s.DeleteAnalysis("a-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v, want ErrNotFound", err)
	}
}
