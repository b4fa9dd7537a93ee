package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/kian/internal/analysis"
	"github.com/kalambet/kian/internal/profile"
	"github.com/kalambet/kian/internal/prompt"
	"github.com/kalambet/kian/internal/storage"
)

const defaultTemplate = "use_case_analysis"

// analysisRequest is the shared body of the analysis endpoints. The
// company and use case come either inline or as references to stored
// records; references win when both are present.
type analysisRequest struct {
	Template  string            `json:"template"`
	Company   *profile.Company  `json:"company"`
	UseCase   *profile.UseCase  `json:"use_case"`
	ProfileID string            `json:"profile_id"`
	UseCaseID string            `json:"use_case_id"`
	Variables map[string]string `json:"variables"`

	// Batch and compare operate on several cases at once.
	UseCases   []profile.UseCase `json:"use_cases"`
	UseCaseIDs []string          `json:"use_case_ids"`
}

func (req analysisRequest) template() string {
	if req.Template == "" {
		return defaultTemplate
	}
	return req.Template
}

func resolveCompany(deps Deps, req analysisRequest) (profile.Company, error) {
	if req.ProfileID != "" {
		row, err := deps.Store.GetProfile(req.ProfileID)
		if err != nil {
			return profile.Company{}, fmt.Errorf("profile %q: %w", req.ProfileID, err)
		}
		var c profile.Company
		if err := json.Unmarshal([]byte(row.Data), &c); err != nil {
			return profile.Company{}, fmt.Errorf("decoding profile %q: %w", req.ProfileID, err)
		}
		c.ID = row.ID
		return c, nil
	}
	if req.Company != nil {
		return *req.Company, nil
	}
	return profile.Company{}, nil
}

func resolveUseCase(deps Deps, req analysisRequest) (profile.UseCase, error) {
	if req.UseCaseID != "" {
		return loadUseCase(deps, req.UseCaseID)
	}
	if req.UseCase != nil {
		return *req.UseCase, nil
	}
	return profile.UseCase{}, nil
}

func resolveUseCases(deps Deps, req analysisRequest) ([]profile.UseCase, error) {
	if len(req.UseCaseIDs) > 0 {
		cases := make([]profile.UseCase, 0, len(req.UseCaseIDs))
		for _, id := range req.UseCaseIDs {
			uc, err := loadUseCase(deps, id)
			if err != nil {
				return nil, err
			}
			cases = append(cases, uc)
		}
		return cases, nil
	}
	return req.UseCases, nil
}

func loadUseCase(deps Deps, id string) (profile.UseCase, error) {
	row, err := deps.Store.GetUseCase(id)
	if err != nil {
		return profile.UseCase{}, fmt.Errorf("use case %q: %w", id, err)
	}
	var uc profile.UseCase
	if err := json.Unmarshal([]byte(row.Data), &uc); err != nil {
		return profile.UseCase{}, fmt.Errorf("decoding use case %q: %w", id, err)
	}
	uc.ID = row.ID
	return uc, nil
}

// writeLookupError reports a failed record resolution: a dangling
// reference is a 404, anything else a storage failure.
func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
}

// writeAnalysisError maps engine failures onto statuses: incomplete
// intake data is the caller's fault, an unknown template is a 404, and
// everything else counts as an upstream failure.
func writeAnalysisError(w http.ResponseWriter, err error) {
	var verr *prompt.ValidationError
	switch {
	case errors.As(err, &verr):
		httpError(w, http.StatusUnprocessableEntity, "validation_error", "%v", verr)
	case errors.Is(err, prompt.ErrTemplateNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	}
}

func handleCreateAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analysisRequest
		if !decodeBody(w, r, &req) {
			return
		}

		company, err := resolveCompany(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		uc, err := resolveUseCase(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}

		rec, err := deps.Engine.Analyze(r.Context(), req.template(), company, uc, req.Variables)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}
		writeJSON(w, rec)
	}
}

func handleBatchAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analysisRequest
		if !decodeBody(w, r, &req) {
			return
		}

		company, err := resolveCompany(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		cases, err := resolveUseCases(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		if len(cases) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "use_cases or use_case_ids is required")
			return
		}

		outcomes, err := deps.Engine.AnalyzeMultiple(r.Context(), req.template(), company, cases)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}
		writeJSON(w, outcomes)
	}
}

// analysisSummary is the listing shape: the denormalized columns
// without the full result payload.
type analysisSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Template     string    `json:"template"`
	CompanyName  string    `json:"company_name"`
	UseCaseTitle string    `json:"use_case_title"`
	Status       string    `json:"status"`
	Confidence   float64   `json:"confidence_score"`
	Strategy     string    `json:"parse_strategy"`
	Summary      string    `json:"analysis_summary"`
}

func summarizeRow(a storage.Analysis) analysisSummary {
	return analysisSummary{
		ID:           a.ID,
		CreatedAt:    a.CreatedAt,
		Template:     a.Template,
		CompanyName:  a.CompanyName,
		UseCaseTitle: a.UseCaseTitle,
		Status:       a.Status,
		Confidence:   a.Confidence,
		Strategy:     a.Strategy,
		Summary:      a.Summary,
	}
}

func summarize(rows []storage.Analysis) []analysisSummary {
	out := make([]analysisSummary, len(rows))
	for i, a := range rows {
		out[i] = summarizeRow(a)
	}
	return out
}

func handleListAnalyses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)
		template := r.URL.Query().Get("template")

		rows, err := deps.Store.ListAnalyses(limit, template)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list analyses: %v", err)
			return
		}
		writeJSON(w, summarize(rows))
	}
}

func handleGetAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.Store.GetAnalysis(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get analysis: %v", err)
			return
		}

		// The stored result is already the full record as JSON.
		w.Header().Set("Content-Type", "application/json")
		if a.ResultJSON != "" {
			w.Write([]byte(a.ResultJSON))
			return
		}
		json.NewEncoder(w).Encode(summarizeRow(a))
	}
}

func handleDeleteAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteAnalysis(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete analysis: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleAnalysisStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Store.ListAnalyses(0, "")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load analyses: %v", err)
			return
		}
		writeJSON(w, analysis.Statistics(rows))
	}
}

func handleSearchAnalyses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 20, 200)

		rows, err := deps.Store.SearchAnalyses(q, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		writeJSON(w, summarize(rows))
	}
}

// handleFeasibility always answers 200; engine failures travel inside
// the payload so a flaky model server does not break intake tooling.
func handleFeasibility(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analysisRequest
		if !decodeBody(w, r, &req) {
			return
		}

		company, err := resolveCompany(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		uc, err := resolveUseCase(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}

		writeJSON(w, deps.Engine.QuickFeasibility(r.Context(), company, uc))
	}
}

func handleCompare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analysisRequest
		if !decodeBody(w, r, &req) {
			return
		}

		company, err := resolveCompany(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		cases, err := resolveUseCases(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}

		cmp, err := deps.Engine.Compare(r.Context(), company, cases)
		if errors.Is(err, analysis.ErrNotEnoughUseCases) {
			httpError(w, http.StatusUnprocessableEntity, "validation_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "%v", err)
			return
		}
		writeJSON(w, cmp)
	}
}

func handleRoadmap(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analysisRequest
		if !decodeBody(w, r, &req) {
			return
		}

		company, err := resolveCompany(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		uc, err := resolveUseCase(deps, req)
		if err != nil {
			writeLookupError(w, err)
			return
		}

		road, err := deps.Engine.BuildRoadmap(r.Context(), company, uc)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}
		writeJSON(w, road)
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Dir string `json:"dir"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Dir) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "dir is required")
			return
		}

		manifest, err := deps.Store.Export(r.Context(), req.Dir)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "export failed: %v", err)
			return
		}
		writeJSON(w, manifest)
	}
}
