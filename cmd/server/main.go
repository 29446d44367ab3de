// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"bookvault/internal/conversion"
	"bookvault/internal/converter"
	"bookvault/internal/metadata"
	"bookvault/internal/scanner"
	"bookvault/internal/share"
)

func main() {
	godotenv.Load()

	booksPath := getEnv("BOOKS_PATH", "/books")
	coversPath := getEnv("COVERS_PATH", filepath.Join(filepath.Dir(booksPath), "covers"))
	dataPath := getEnv("DATA_PATH", "/data")

	shutdownTracing := setupTracing(context.Background())
	defer shutdownTracing()

	books := metadata.NewService(filepath.Join(dataPath, "metadata.json"))
	shares := share.NewService(filepath.Join(dataPath, "shares.json"))

	var conv converter.Converter
	if url := os.Getenv("CONVERTER_URL"); url != "" {
		conv = converter.NewRemote(url)
		log.Printf("using remote converter at %s", url)
	} else {
		conv = converter.NewLocal(os.Getenv("CONVERTER_BINARY"))
		log.Printf("using local converter")
	}

	registry := conversion.NewRegistry()
	orchestrator := conversion.NewService(books, conv, registry, booksPath)
	scan := scanner.New(books, booksPath, coversPath, getEnv("SCAN_OWNER_ID", ""))

	go cleanupLoop(shares)

	booksHandler := metadata.NewHandler(books)
	sharesHandler := share.NewHandler(shares)
	conversionsHandler := conversion.NewHandler(orchestrator)

	booksRouter := booksHandler.Routes()
	booksRouter.Get("/{id}/conversions", conversionsHandler.HandleJobsForBook)
	booksRouter.Delete("/{id}/shares", sharesHandler.HandleRevokeForBook)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Mount("/books", booksRouter)
	router.Mount("/shares", sharesHandler.Routes())
	router.Mount("/conversions", conversionsHandler.Routes())
	router.Get("/tags", booksHandler.HandleTags)
	router.Get("/authors", booksHandler.HandleAuthors)
	router.Post("/scan", func(w http.ResponseWriter, r *http.Request) {
		scanned, err := scan.Scan(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"scanned": scanned})
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	port := getEnv("PORT", "8080")
	log.Printf("bookvault server listening on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, router))
}

// cleanupLoop periodically drops expired share tokens; the stores never do
// this on their own lookup path.
func cleanupLoop(shares share.Service) {
	for range time.Tick(time.Hour) {
		removed, err := shares.CleanupExpiredTokens(context.Background())
		if err != nil {
			log.Printf("WARN share cleanup: %v", err)
			continue
		}
		if removed > 0 {
			log.Printf("share cleanup: removed %d expired tokens", removed)
		}
	}
}

// setupTracing installs an OTLP trace exporter when an endpoint is
// configured; otherwise spans stay no-ops.
func setupTracing(ctx context.Context) func() {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		log.Printf("WARN tracing disabled: %v", err)
		return func() {}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "bookvault"),
		)),
	)
	otel.SetTracerProvider(provider)

	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			log.Printf("WARN tracing shutdown: %v", err)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
