// internal/share/handler.go
package share

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Post("/cleanup", h.handleCleanup)
	r.Get("/{token}", h.handleResolve)
	r.Delete("/{token}", h.handleRevoke)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID        string   `json:"book_id"`
		ExpiresInDays *float64 `json:"expires_in_days,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.BookID == "" {
		http.Error(w, "book_id is required", http.StatusBadRequest)
		return
	}

	token, err := h.service.CreateShareToken(r.Context(), req.BookID, req.ExpiresInDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(token)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.GetShareToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(token)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	revoked, err := h.service.RevokeShareToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !revoked {
		http.Error(w, "share token not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.CleanupExpiredTokens(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

// HandleRevokeForBook is mounted under the books routes.
func (h *Handler) HandleRevokeForBook(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.RevokeShareTokensForBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}
