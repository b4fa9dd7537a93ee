package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/kian/internal/analysis"
	"github.com/kalambet/kian/internal/lmstudio"
	"github.com/kalambet/kian/internal/profile"
	"github.com/kalambet/kian/internal/prompt"
	"github.com/kalambet/kian/internal/response"
	"github.com/kalambet/kian/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Analyzer abstracts the analysis engine for the HTTP and MCP layers.
type Analyzer interface {
	Analyze(ctx context.Context, template string, company profile.Company, uc profile.UseCase, extra map[string]string) (*analysis.Record, error)
	AnalyzeMultiple(ctx context.Context, template string, company profile.Company, usecases []profile.UseCase) ([]analysis.Outcome, error)
	QuickFeasibility(ctx context.Context, company profile.Company, uc profile.UseCase) analysis.Feasibility
	Compare(ctx context.Context, company profile.Company, usecases []profile.UseCase) (*analysis.Comparison, error)
	BuildRoadmap(ctx context.Context, company profile.Company, uc profile.UseCase) (*analysis.Roadmap, error)
	CheckPrerequisites(ctx context.Context) *analysis.Prerequisites
}

// Chatter abstracts the model server for the passthrough endpoints.
type Chatter interface {
	Generate(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options) (*lmstudio.Result, error)
	GenerateStream(ctx context.Context, messages []lmstudio.Message, opts *lmstudio.Options, fn func(chunk string) error) (*lmstudio.Result, error)
	Models(ctx context.Context) ([]lmstudio.ModelInfo, error)
}

// Deps holds everything the HTTP API needs.
type Deps struct {
	Engine   Analyzer
	Store    *storage.Store
	Client   Chatter
	Registry *prompt.Registry
	Token    string // empty disables bearer auth
	Logger   *slog.Logger
}

// NewHandler returns the daemon's HTTP API. /healthz is always open;
// everything under /v1 requires the bearer token when one is configured.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/healthz", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(bearerAuth(deps.Token))
		}

		r.Get("/status", handleStatus(deps))
		r.Get("/models", handleModels(deps))

		r.Get("/templates", handleListTemplates(deps))
		r.Post("/templates", handleRegisterTemplate(deps))
		r.Get("/templates/{name}", handleGetTemplate(deps))

		r.Post("/analyses", handleCreateAnalysis(deps))
		r.Post("/analyses/batch", handleBatchAnalysis(deps))
		r.Get("/analyses", handleListAnalyses(deps))
		r.Get("/analyses/stats", handleAnalysisStats(deps))
		r.Get("/analyses/search", handleSearchAnalyses(deps))
		r.Get("/analyses/{id}", handleGetAnalysis(deps))
		r.Delete("/analyses/{id}", handleDeleteAnalysis(deps))

		r.Post("/feasibility", handleFeasibility(deps))
		r.Post("/compare", handleCompare(deps))
		r.Post("/roadmap", handleRoadmap(deps))
		r.Post("/export", handleExport(deps))

		r.Post("/profiles", handleSaveProfile(deps))
		r.Get("/profiles", handleListProfiles(deps))
		r.Get("/profiles/{id}", handleGetProfile(deps))
		r.Put("/profiles/{id}", handleUpdateProfile(deps))
		r.Delete("/profiles/{id}", handleDeleteProfile(deps))

		r.Post("/usecases", handleSaveUseCase(deps))
		r.Get("/usecases", handleListUseCases(deps))
		r.Get("/usecases/{id}", handleGetUseCase(deps))
		r.Put("/usecases/{id}", handleUpdateUseCase(deps))
		r.Delete("/usecases/{id}", handleDeleteUseCase(deps))

		r.Post("/generate", handleGenerate(deps))
	})

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Engine.CheckPrerequisites(r.Context()))
	}
}

func handleModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := deps.Client.Models(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}
		if models == nil {
			models = []lmstudio.ModelInfo{}
		}
		writeJSON(w, map[string]any{"object": "list", "data": models})
	}
}

// templateInfo is the wire shape of a prompt template: the recipe
// parameters without the prompt bodies.
type templateInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Format      string   `json:"format"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Variables   []string `json:"variables"`
}

func templateToInfo(t prompt.Template) templateInfo {
	vars := t.Variables()
	if vars == nil {
		vars = []string{}
	}
	return templateInfo{
		Name:        t.Key,
		Description: t.Name,
		Format:      string(t.Format),
		Temperature: t.Temperature,
		MaxTokens:   t.MaxTokens,
		Variables:   vars,
	}
}

func handleListTemplates(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := deps.Registry.List()
		infos := make([]templateInfo, len(list))
		for i, t := range list {
			infos[i] = templateToInfo(t)
		}
		writeJSON(w, infos)
	}
}

func handleGetTemplate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Registry.Get(chi.URLParam(r, "name"))
		if errors.Is(err, prompt.ErrTemplateNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get template: %v", err)
			return
		}
		writeJSON(w, templateToInfo(t))
	}
}

type registerTemplateRequest struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	SystemPrompt string  `json:"system_prompt"`
	UserTemplate string  `json:"user_template"`
	Format       string  `json:"format"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

func handleRegisterTemplate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerTemplateRequest
		if !decodeBody(w, r, &req) {
			return
		}

		err := deps.Registry.Register(prompt.Template{
			Key:          req.Name,
			Name:         req.Description,
			SystemPrompt: req.SystemPrompt,
			UserTemplate: req.UserTemplate,
			Format:       response.Format(req.Format),
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
		})
		if errors.Is(err, prompt.ErrTemplateExists) {
			httpError(w, http.StatusConflict, "conflict", "template %q already registered", req.Name)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, map[string]string{"name": req.Name, "status": "registered"})
	}
}

// decodeBody caps the request body at 1MB and decodes it into v. On
// failure it writes the 400 itself and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
