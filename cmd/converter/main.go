// cmd/converter/main.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"bookvault/internal/converter"
)

// The conversion service wraps the ebook-convert tool behind a small HTTP
// API, so the library server can run without the tool installed locally.
func main() {
	godotenv.Load()

	srv := &server{
		booksBase: getEnv("CONVERTER_LIBRARY_PATH", "/books"),
		conv:      converter.NewLocal(os.Getenv("CONVERTER_BINARY")),
		limiter:   rate.NewLimiter(rate.Limit(1), 4),
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Get("/health", srv.handleHealth)
	router.Get("/version", srv.handleVersion)
	router.Get("/formats", srv.handleFormats)
	router.Post("/convert", srv.handleConvert)

	port := getEnv("PORT", "8081")
	log.Printf("conversion service listening on port %s, books base %s", port, srv.booksBase)
	log.Fatal(http.ListenAndServe(":"+port, router))
}

type server struct {
	booksBase string
	conv      *converter.Local
	limiter   *rate.Limiter
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.conv.Version(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "healthy",
		"calibre_version": version,
	})
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.conv.Version(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *server) handleFormats(w http.ResponseWriter, r *http.Request) {
	inputs, outputs, err := s.conv.Formats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"input_formats":  inputs,
		"output_formats": outputs,
	})
}

func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "too many conversion requests",
		})
		return
	}

	var req struct {
		SourcePath string         `json:"source_path"`
		TargetPath string         `json:"target_path"`
		Options    map[string]any `json:"options,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.SourcePath == "" || req.TargetPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "source_path and target_path are required",
		})
		return
	}

	source := s.resolve(req.SourcePath)
	target := s.resolve(req.TargetPath)

	if _, err := os.Stat(source); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Source file not found: %s", req.SourcePath),
		})
		return
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := s.conv.ConvertWithArgs(r.Context(), source, target, optionArgs(req.Options)); err != nil {
		if errors.Is(err, converter.ErrTimeout) {
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{
				"error": "Conversion timed out (max 5 minutes)",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Conversion failed",
			"details": err.Error(),
		})
		return
	}

	info, err := os.Stat(target)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Conversion completed but output file not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"source_path": req.SourcePath,
		"target_path": req.TargetPath,
		"file_size":   info.Size(),
		"message":     "Conversion completed successfully",
	})
}

// resolve joins relative paths to the books base; absolute paths pass
// through for deployments sharing one mount with the library server.
func (s *server) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.booksBase, filepath.FromSlash(p))
}

// optionArgs renders caller options as tool flags; a true value becomes a
// bare flag, anything else carries its value.
func optionArgs(options map[string]any) []string {
	var args []string
	for key, value := range options {
		args = append(args, "--"+key)
		if value != true {
			args = append(args, fmt.Sprint(value))
		}
	}
	return args
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
