// Package analysis orchestrates a full use-case analysis: prompt assembly,
// model generation, response parsing, confidence scoring, and persistence.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/kian/internal/lmstudio"
	"github.com/kalambet/kian/internal/profile"
	"github.com/kalambet/kian/internal/prompt"
	"github.com/kalambet/kian/internal/response"
	"github.com/kalambet/kian/internal/storage"
)

// Generator is the model client surface the engine depends on.
type Generator interface {
	Generate(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error)
	CheckConnection(ctx context.Context) (*lmstudio.ConnectionCheck, error)
	Model() string
}

// Recorder persists finished analysis runs.
type Recorder interface {
	SaveAnalysis(a storage.Analysis) error
}

// Engine runs analyses against a local model and records the results.
type Engine struct {
	client   Generator
	store    Recorder
	registry *prompt.Registry
	logger   *slog.Logger
}

// New wires an Engine. A nil logger falls back to slog.Default.
func New(client Generator, store Recorder, registry *prompt.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:   client,
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Analyze runs one use case through the named template:
//
//  1. Build the prompt (missing required fields abort with a
//     *prompt.ValidationError)
//  2. Generate with the template's temperature and token budget
//  3. Parse the response with the template's expected format
//  4. Score confidence and map the German payload keys onto the record
//  5. Persist the record
//
// Parser degradation is not an error: a prose-only response still yields a
// completed record, just with a low confidence score. Generation failures
// leave a failed record behind so the run shows up in the history.
func (e *Engine) Analyze(ctx context.Context, template string, company profile.Company, uc profile.UseCase, extra map[string]string) (*Record, error) {
	start := time.Now()

	tmpl, err := e.registry.Get(template)
	if err != nil {
		return nil, err
	}

	messages, err := e.registry.Build(template, company, uc, extra)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:           profile.NewID(),
		CreatedAt:    start.UTC(),
		Template:     template,
		ProfileID:    company.ID,
		UseCaseID:    uc.ID,
		CompanyName:  company.Unternehmensname,
		UseCaseTitle: uc.Title(100),
		Messages:     messages,
	}

	e.logger.Info("starting analysis", "id", rec.ID, "template", template)

	opts := &lmstudio.Options{
		Temperature: &tmpl.Temperature,
		MaxTokens:   &tmpl.MaxTokens,
	}
	res, err := e.client.Generate(ctx, messages, opts)
	if err != nil {
		e.recordFailure(rec, err)
		return nil, fmt.Errorf("generating analysis: %w", err)
	}

	parsed, err := response.Parse(res.Content, tmpl.Format)
	if err != nil {
		e.recordFailure(rec, err)
		return nil, fmt.Errorf("parsing analysis: %w", err)
	}

	rec.Status = "completed"
	rec.Strategy = string(parsed.Strategy)
	rec.Data = parsed.Data
	rec.RawResponse = res.Content
	rec.Usage = res.Usage
	rec.DurationMS = time.Since(start).Milliseconds()
	rec.populate(parsed.Data)
	rec.Confidence = confidenceScore(template, res.Content, parsed.Data)

	if err := e.persist(rec); err != nil {
		return nil, fmt.Errorf("saving analysis: %w", err)
	}

	e.logger.Info("analysis complete",
		"id", rec.ID,
		"template", template,
		"strategy", rec.Strategy,
		"confidence", rec.Confidence,
		"duration_ms", rec.DurationMS,
	)
	return rec, nil
}

// Outcome is one item of a batch run. Either Record or Error is set.
type Outcome struct {
	Index  int     `json:"index"`
	Record *Record `json:"record,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// AnalyzeMultiple runs the template over several use cases sequentially,
// in input order. A failed item records its error and the run continues;
// only context cancellation stops the loop, returning the outcomes
// collected so far alongside the context error.
func (e *Engine) AnalyzeMultiple(ctx context.Context, template string, company profile.Company, usecases []profile.UseCase) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(usecases))
	for i, uc := range usecases {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		e.logger.Info("analyzing use case", "index", i+1, "total", len(usecases))

		rec, err := e.Analyze(ctx, template, company, uc, nil)
		if err != nil {
			e.logger.Error("use case analysis failed", "index", i+1, "error", err)
			outcomes = append(outcomes, Outcome{Index: i, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, Outcome{Index: i, Record: rec})
	}
	return outcomes, nil
}

// recordFailure keeps an audit row for a run that never produced a result.
// Best effort: a storage error here must not mask the original failure.
func (e *Engine) recordFailure(rec *Record, cause error) {
	rec.Status = "failed"
	rec.Summary = cause.Error()
	rec.DurationMS = time.Since(rec.CreatedAt).Milliseconds()
	if err := e.persist(rec); err != nil {
		e.logger.Warn("saving failed analysis record", "id", rec.ID, "error", err)
	}
}

func (e *Engine) persist(rec *Record) error {
	resultJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	usageJSON, err := json.Marshal(rec.Usage)
	if err != nil {
		return fmt.Errorf("encoding usage: %w", err)
	}
	return e.store.SaveAnalysis(storage.Analysis{
		ID:           rec.ID,
		CreatedAt:    rec.CreatedAt,
		Template:     rec.Template,
		ProfileID:    rec.ProfileID,
		UseCaseID:    rec.UseCaseID,
		CompanyName:  rec.CompanyName,
		UseCaseTitle: rec.UseCaseTitle,
		Status:       rec.Status,
		Confidence:   rec.Confidence,
		Strategy:     rec.Strategy,
		Summary:      rec.Summary,
		ResultJSON:   string(resultJSON),
		RawResponse:  rec.RawResponse,
		UsageJSON:    string(usageJSON),
	})
}
