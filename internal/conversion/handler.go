// internal/conversion/handler.go
package conversion

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookvault/internal/metadata"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleConvert)
	r.Get("/", h.handleListJobs)
	r.Delete("/completed", h.handleClearCompleted)
	r.Get("/{id}", h.handleGetJob)
	return r
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID       string `json:"book_id"`
		SourceFormat string `json:"source_format"`
		TargetFormat string `json:"target_format"`
		SourcePath   string `json:"source_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	source, ok := metadata.ParseFormat(req.SourceFormat)
	if !ok {
		http.Error(w, "unknown source format", http.StatusBadRequest)
		return
	}
	target, ok := metadata.ParseFormat(req.TargetFormat)
	if !ok {
		http.Error(w, "unknown target format", http.StatusBadRequest)
		return
	}

	job, err := h.service.ConvertBook(r.Context(), req.BookID, source, target, req.SourcePath)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(job)
	case errors.Is(err, ErrUnsupportedConversion):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrConverterUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, metadata.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(job)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.service.GetAllJobs(r.Context()))
}

func (h *Handler) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	removed := h.service.ClearCompletedJobs(r.Context())
	json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

// HandleJobsForBook is mounted under the books routes.
func (h *Handler) HandleJobsForBook(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.service.GetJobsForBook(r.Context(), chi.URLParam(r, "id")))
}
