package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kalambet/kian/internal/lmstudio"
	"github.com/kalambet/kian/internal/profile"
	"github.com/kalambet/kian/internal/prompt"
	"github.com/kalambet/kian/internal/storage"
)

// --- mocks ---

type mockGenerator struct {
	generateFn func(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error)
	checkFn    func(ctx context.Context) (*lmstudio.ConnectionCheck, error)
	model      string
	calls      int
}

func (m *mockGenerator) Generate(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, messages, opts)
	}
	return &lmstudio.Result{Content: "{}"}, nil
}

func (m *mockGenerator) CheckConnection(ctx context.Context) (*lmstudio.ConnectionCheck, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx)
	}
	return &lmstudio.ConnectionCheck{OK: true}, nil
}

func (m *mockGenerator) Model() string { return m.model }

type mockRecorder struct {
	saveFn func(a storage.Analysis) error
	saved  []storage.Analysis
}

func (m *mockRecorder) SaveAnalysis(a storage.Analysis) error {
	m.saved = append(m.saved, a)
	if m.saveFn != nil {
		return m.saveFn(a)
	}
	return nil
}

func newTestEngine(gen *mockGenerator, rec *mockRecorder) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(gen, rec, prompt.NewRegistry(), logger)
}

// --- fixtures ---

func testCompany() profile.Company {
	return profile.Company{
		ID:               "prof-1",
		Unternehmensname: "Muster Handwerk GmbH",
		Branche:          "Elektroinstallation",
		Mitarbeiter:      "15",
	}
}

func testUseCase() profile.UseCase {
	return profile.UseCase{
		ID:           "uc-1",
		Beschreibung: "KI-Angebotserstellung im Elektrohandwerk",
	}
}

// 905 bytes, so the length factor of the confidence score lands at 0.6.
const structuredResponse = `{
  "zusammenfassung": "Die Angebotserstellung lässt sich mit einem lokalen Sprachmodell deutlich beschleunigen und vereinheitlichen.",
  "handlungsschritte": [
    {"titel": "Datenbasis aufbauen", "beschreibung": "Abgeschlossene Angebote sammeln und strukturieren", "prioritaet": "hoch"},
    {"titel": "Pilotphase starten", "beschreibung": "Testlauf mit einem Gewerk durchführen", "prioritaet": "mittel"}
  ],
  "technische_loesungen": [
    {"kategorie": "Textgenerierung", "beschreibung": "Lokales Sprachmodell mit Angebotsvorlagen"}
  ],
  "risiken": [
    {"risiko": "Datenqualität der Altangebote", "wahrscheinlichkeit": "mittel"}
  ],
  "chancen": [
    {"chance": "Schnellere Reaktion auf Anfragen"}
  ],
  "erfolgsmessung": [
    {"kennzahl": "Durchlaufzeit pro Angebot"}
  ],
  "naechste_schritte": ["Kick-off mit der Geschäftsführung planen", "Angebotsdaten aus der Ablage exportieren"]
}`

func closeTo(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

// --- Analyze ---

func TestAnalyze_Success(t *testing.T) {
	var gotOpts *lmstudio.Options
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error) {
			gotOpts = opts
			return &lmstudio.Result{
				Content: structuredResponse,
				Model:   "qwen2.5-7b-instruct",
				Usage:   lmstudio.Usage{PromptTokens: 812, CompletionTokens: 344, TotalTokens: 1156},
			}, nil
		},
	}
	rec := &mockRecorder{}
	eng := newTestEngine(gen, rec)

	got, err := eng.Analyze(context.Background(), "use_case_analysis", testCompany(), testUseCase(), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if gotOpts == nil || gotOpts.Temperature == nil || gotOpts.MaxTokens == nil {
		t.Fatal("expected template parameters passed to generator")
	}
	if *gotOpts.Temperature != 0.7 || *gotOpts.MaxTokens != 3000 {
		t.Errorf("got temperature=%v maxTokens=%d, want 0.7/3000", *gotOpts.Temperature, *gotOpts.MaxTokens)
	}

	if got.ID == "" {
		t.Error("expected a record ID")
	}
	if got.Status != "completed" {
		t.Errorf("got status %q, want completed", got.Status)
	}
	if got.Template != "use_case_analysis" {
		t.Errorf("got template %q", got.Template)
	}
	if got.ProfileID != "prof-1" || got.UseCaseID != "uc-1" {
		t.Errorf("got linkage %q/%q, want prof-1/uc-1", got.ProfileID, got.UseCaseID)
	}
	if got.CompanyName != "Muster Handwerk GmbH" {
		t.Errorf("got company %q", got.CompanyName)
	}
	if got.UseCaseTitle != "KI-Angebotserstellung im Elektrohandwerk" {
		t.Errorf("got title %q", got.UseCaseTitle)
	}
	if got.Strategy != "direct" {
		t.Errorf("got strategy %q, want direct", got.Strategy)
	}

	if !strings.HasPrefix(got.Summary, "Die Angebotserstellung") {
		t.Errorf("got summary %q", got.Summary)
	}
	if len(got.ImplementationSteps) != 2 {
		t.Fatalf("got %d steps, want 2", len(got.ImplementationSteps))
	}
	if got.ImplementationSteps[0]["titel"] != "Datenbasis aufbauen" {
		t.Errorf("got first step %v", got.ImplementationSteps[0])
	}
	if len(got.TechnicalSolutions) != 1 || len(got.Risks) != 1 || len(got.Opportunities) != 1 || len(got.SuccessMetrics) != 1 {
		t.Errorf("got solutions=%d risks=%d opportunities=%d metrics=%d, want 1 each",
			len(got.TechnicalSolutions), len(got.Risks), len(got.Opportunities), len(got.SuccessMetrics))
	}
	if len(got.NextSteps) != 2 || got.NextSteps[0] != "Kick-off mit der Geschäftsführung planen" {
		t.Errorf("got next steps %v", got.NextSteps)
	}

	// All required fields present (1.0), 905 bytes (0.6), structured (1.0),
	// five recommendations (1.0): mean 0.9.
	if !closeTo(got.Confidence, 0.9) {
		t.Errorf("got confidence %v, want 0.9", got.Confidence)
	}
	if got.Usage.TotalTokens != 1156 {
		t.Errorf("got usage %+v", got.Usage)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("got messages %+v", got.Messages)
	}

	if len(rec.saved) != 1 {
		t.Fatalf("got %d saved rows, want 1", len(rec.saved))
	}
	row := rec.saved[0]
	if row.ID != got.ID || row.Status != "completed" || row.Template != "use_case_analysis" {
		t.Errorf("got row %+v", row)
	}
	if row.ProfileID != "prof-1" || row.UseCaseID != "uc-1" {
		t.Errorf("got row linkage %q/%q", row.ProfileID, row.UseCaseID)
	}
	if !closeTo(row.Confidence, 0.9) {
		t.Errorf("got row confidence %v", row.Confidence)
	}

	var stored Record
	if err := json.Unmarshal([]byte(row.ResultJSON), &stored); err != nil {
		t.Fatalf("result JSON does not round-trip: %v", err)
	}
	if stored.ID != got.ID || stored.Summary != got.Summary {
		t.Errorf("stored record diverges: %+v", stored)
	}
	if !strings.Contains(row.UsageJSON, "1156") {
		t.Errorf("got usage JSON %q", row.UsageJSON)
	}
}

func TestAnalyze_UnknownTemplate(t *testing.T) {
	gen := &mockGenerator{}
	eng := newTestEngine(gen, &mockRecorder{})

	_, err := eng.Analyze(context.Background(), "nope", testCompany(), testUseCase(), nil)
	if !errors.Is(err, prompt.ErrTemplateNotFound) {
		t.Fatalf("got %v, want ErrTemplateNotFound", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times for unknown template", gen.calls)
	}
}

func TestAnalyze_ValidationError(t *testing.T) {
	gen := &mockGenerator{}
	rec := &mockRecorder{}
	eng := newTestEngine(gen, rec)

	company := testCompany()
	company.Branche = ""

	_, err := eng.Analyze(context.Background(), "use_case_analysis", company, testUseCase(), nil)
	var verr *prompt.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want *prompt.ValidationError", err)
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != "Unternehmen.branche" {
		t.Errorf("got missing %v", verr.Missing)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times despite invalid input", gen.calls)
	}
	if len(rec.saved) != 0 {
		t.Errorf("got %d saved rows, want none for validation failures", len(rec.saved))
	}
}

func TestAnalyze_GenerateErrorKeepsFailedRecord(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error) {
			return nil, errors.New("connection refused")
		},
	}
	rec := &mockRecorder{}
	eng := newTestEngine(gen, rec)

	_, err := eng.Analyze(context.Background(), "use_case_analysis", testCompany(), testUseCase(), nil)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("got %v, want wrapped generation error", err)
	}

	if len(rec.saved) != 1 {
		t.Fatalf("got %d saved rows, want 1 failed record", len(rec.saved))
	}
	row := rec.saved[0]
	if row.Status != "failed" {
		t.Errorf("got status %q, want failed", row.Status)
	}
	if !strings.Contains(row.Summary, "connection refused") {
		t.Errorf("got summary %q, want the failure cause", row.Summary)
	}
	if row.Confidence != 0 {
		t.Errorf("got confidence %v, want 0", row.Confidence)
	}
}

func TestAnalyze_SaveErrorSurfaces(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error) {
			return &lmstudio.Result{Content: structuredResponse}, nil
		},
	}
	rec := &mockRecorder{
		saveFn: func(a storage.Analysis) error { return errors.New("disk full") },
	}
	eng := newTestEngine(gen, rec)

	_, err := eng.Analyze(context.Background(), "use_case_analysis", testCompany(), testUseCase(), nil)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("got %v, want wrapped save error", err)
	}
}

func TestAnalyze_ProseResponseDegrades(t *testing.T) {
	prose := "Die Analyse zeigt gute Chancen für dieses Vorhaben im Handwerksbetrieb.\n\n" +
		"- Erster Schritt: Datenbestand sichten\n" +
		"- Zweiter Schritt: Pilotprojekt aufsetzen\n" +
		"- Die Geschäftsführung sollte ein Budget festlegen"

	gen := &mockGenerator{
		generateFn: func(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error) {
			return &lmstudio.Result{Content: prose}, nil
		},
	}
	rec := &mockRecorder{}
	eng := newTestEngine(gen, rec)

	got, err := eng.Analyze(context.Background(), "use_case_analysis", testCompany(), testUseCase(), nil)
	if err != nil {
		t.Fatalf("prose response must not fail the analysis: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("got status %q, want completed", got.Status)
	}
	if got.Strategy != "heuristic" {
		t.Errorf("got strategy %q, want heuristic", got.Strategy)
	}
	if len(got.ImplementationSteps) != 2 {
		t.Errorf("got %d steps, want 2 mined from the list items", len(got.ImplementationSteps))
	}
	if len(got.NextSteps) != 1 {
		t.Errorf("got next steps %v, want one recommendation line", got.NextSteps)
	}

	// Steps present but no summary and no solutions (1/3), 207 bytes (0.4),
	// structured data mined (1.0), three recommendations (0.8).
	want := (1.0/3.0 + 0.4 + 1.0 + 0.8) / 4
	if !closeTo(got.Confidence, want) {
		t.Errorf("got confidence %v, want %v", got.Confidence, want)
	}
}

func TestAnalyze_ExtraVariables(t *testing.T) {
	var userPrompt string
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error) {
			userPrompt = messages[1].Content
			return &lmstudio.Result{Content: quickResponse}, nil
		},
	}
	eng := newTestEngine(gen, &mockRecorder{})

	extra := map[string]string{"company_name": "Override AG"}
	if _, err := eng.Analyze(context.Background(), "quick_feasibility", testCompany(), testUseCase(), extra); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !strings.Contains(userPrompt, "Override AG") {
		t.Errorf("extra variable not applied to prompt:\n%s", userPrompt)
	}
}

// --- AnalyzeMultiple ---

func TestAnalyzeMultiple_ContinuesPastFailures(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error) {
			if strings.Contains(messages[1].Content, "Lagerroboter") {
				return nil, errors.New("model overloaded")
			}
			return &lmstudio.Result{Content: structuredResponse}, nil
		},
	}
	rec := &mockRecorder{}
	eng := newTestEngine(gen, rec)

	usecases := []profile.UseCase{
		{Beschreibung: "KI-Angebotserstellung im Elektrohandwerk"},
		{Beschreibung: "Lagerroboter für das Zentrallager"},
		{Beschreibung: "Automatische Terminplanung für Monteure"},
	}

	outcomes, err := eng.AnalyzeMultiple(context.Background(), "use_case_analysis", testCompany(), usecases)
	if err != nil {
		t.Fatalf("AnalyzeMultiple failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}

	for i, o := range outcomes {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
	}
	if outcomes[0].Record == nil || outcomes[0].Error != "" {
		t.Errorf("outcome 0 = %+v, want a record", outcomes[0])
	}
	if outcomes[1].Record != nil || !strings.Contains(outcomes[1].Error, "model overloaded") {
		t.Errorf("outcome 1 = %+v, want the failure", outcomes[1])
	}
	if outcomes[2].Record == nil {
		t.Errorf("outcome 2 = %+v, want a record", outcomes[2])
	}
	if outcomes[2].Record.UseCaseTitle != "Automatische Terminplanung für Monteure" {
		t.Errorf("got title %q", outcomes[2].Record.UseCaseTitle)
	}

	// Two completed records plus one failed audit row.
	if len(rec.saved) != 3 {
		t.Errorf("got %d saved rows, want 3", len(rec.saved))
	}
}

func TestAnalyzeMultiple_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := newTestEngine(&mockGenerator{}, &mockRecorder{})
	outcomes, err := eng.AnalyzeMultiple(ctx, "use_case_analysis", testCompany(), []profile.UseCase{testUseCase()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes, want none", len(outcomes))
	}
}
