package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/kian/internal/profile"
	"github.com/kalambet/kian/internal/storage"
)

// --- Profiles ---

type profileSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func saveCompany(deps Deps, c profile.Company) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return deps.Store.SaveProfile(storage.Profile{
		ID:   c.ID,
		Name: c.Unternehmensname,
		Data: string(data),
	})
}

func handleSaveProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c profile.Company
		if !decodeBody(w, r, &c) {
			return
		}
		if strings.TrimSpace(c.Unternehmensname) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unternehmensname is required")
			return
		}
		if c.ID == "" {
			c.ID = profile.NewID()
		}

		if err := saveCompany(deps, c); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save profile: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": c.ID, "status": "saved"})
	}
}

func handleListProfiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Store.ListProfiles()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list profiles: %v", err)
			return
		}

		summaries := make([]profileSummary, len(rows))
		for i, p := range rows {
			summaries[i] = profileSummary{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
		}
		writeJSON(w, summaries)
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row, err := deps.Store.GetProfile(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		// Stored data is the full company record as JSON.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(row.Data))
	}
}

func handleUpdateProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetProfile(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "profile not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		var c profile.Company
		if !decodeBody(w, r, &c) {
			return
		}
		if strings.TrimSpace(c.Unternehmensname) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unternehmensname is required")
			return
		}
		c.ID = id

		if err := saveCompany(deps, c); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save profile: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": id, "status": "updated"})
	}
}

func handleDeleteProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteProfile(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete profile: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- Use cases ---

type useCaseSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func saveUseCaseRecord(deps Deps, uc profile.UseCase) error {
	data, err := json.Marshal(uc)
	if err != nil {
		return err
	}
	return deps.Store.SaveUseCase(storage.UseCase{
		ID:    uc.ID,
		Title: uc.Title(100),
		Data:  string(data),
	})
}

func handleSaveUseCase(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var uc profile.UseCase
		if !decodeBody(w, r, &uc) {
			return
		}
		if strings.TrimSpace(uc.Beschreibung) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "beschreibung is required")
			return
		}
		if uc.ID == "" {
			uc.ID = profile.NewID()
		}

		if err := saveUseCaseRecord(deps, uc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save use case: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": uc.ID, "status": "saved"})
	}
}

func handleListUseCases(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Store.ListUseCases()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list use cases: %v", err)
			return
		}

		summaries := make([]useCaseSummary, len(rows))
		for i, u := range rows {
			summaries[i] = useCaseSummary{ID: u.ID, Title: u.Title, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
		}
		writeJSON(w, summaries)
	}
}

func handleGetUseCase(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row, err := deps.Store.GetUseCase(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "use case not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get use case: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(row.Data))
	}
}

func handleUpdateUseCase(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetUseCase(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "use case not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get use case: %v", err)
			return
		}

		var uc profile.UseCase
		if !decodeBody(w, r, &uc) {
			return
		}
		if strings.TrimSpace(uc.Beschreibung) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "beschreibung is required")
			return
		}
		uc.ID = id

		if err := saveUseCaseRecord(deps, uc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save use case: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": id, "status": "updated"})
	}
}

func handleDeleteUseCase(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteUseCase(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "use case not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete use case: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
