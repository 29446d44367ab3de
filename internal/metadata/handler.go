// internal/metadata/handler.go
package metadata

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListBooks)
	r.Post("/", h.handleUpsertBook)
	r.Get("/search", h.handleSearch)
	r.Get("/filter", h.handleFilter)
	r.Get("/{id}", h.handleGetBook)
	r.Put("/{id}", h.handleUpsertBook)
	r.Delete("/{id}", h.handleRemoveBook)
	r.Delete("/{id}/formats/{format}", h.handleRemoveFormat)
	return r
}

// ownerID carries the externally-authenticated owner; authentication itself
// happens upstream of this core.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-Owner-ID")
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.GetBooks(r.Context(), ownerID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(books)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(book)
}

func (h *Handler) handleUpsertBook(w http.ResponseWriter, r *http.Request) {
	var book Book
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		book.ID = id
	}
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.OwnerID == "" {
		book.OwnerID = ownerID(r)
	}

	if err := h.service.UpsertBook(r.Context(), &book); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(book)
}

func (h *Handler) handleRemoveBook(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.RemoveBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveFormat(w http.ResponseWriter, r *http.Request) {
	format, ok := ParseFormat(chi.URLParam(r, "format"))
	if !ok {
		http.Error(w, "unknown format", http.StatusBadRequest)
		return
	}

	err := h.service.RemoveFormat(r.Context(), chi.URLParam(r, "id"), format)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrLastFormat):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing search query", http.StatusBadRequest)
		return
	}

	books, err := h.service.SearchBooks(r.Context(), ownerID(r), query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(books)
}

func (h *Handler) handleFilter(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	if tags := r.URL.Query().Get("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	if formats := r.URL.Query().Get("formats"); formats != "" {
		for _, name := range strings.Split(formats, ",") {
			format, ok := ParseFormat(name)
			if !ok {
				http.Error(w, "unknown format: "+name, http.StatusBadRequest)
				return
			}
			filter.Formats = append(filter.Formats, format)
		}
	}
	filter.Author = r.URL.Query().Get("author")

	books, err := h.service.FilterBooks(r.Context(), ownerID(r), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(books)
}

// HandleTags and HandleAuthors are mounted at the top level of the API.
func (h *Handler) HandleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.GetAllTags(r.Context(), ownerID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(tags)
}

func (h *Handler) HandleAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.GetAllAuthors(r.Context(), ownerID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(authors)
}
