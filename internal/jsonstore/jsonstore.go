// internal/jsonstore/jsonstore.go
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrStorage = errors.New("storage document unreadable or unwritable")

// Store persists a single JSON document of type D at a fixed path.
// Date-typed fields are declared as time.Time in the document schema, so they
// round-trip as RFC 3339 text without any name-based sniffing on decode.
//
// The store does not coordinate concurrent writers; callers own that
// discipline (the metadata and share stores each hold an in-process mutex).
type Store[D any] struct {
	path   string
	empty  func() D
	tracer trace.Tracer
}

// New creates a store for the document at path. empty produces the initial
// document persisted on first load when no file exists yet.
func New[D any](path string, empty func() D) *Store[D] {
	return &Store[D]{
		path:   path,
		empty:  empty,
		tracer: otel.Tracer("bookvault/jsonstore"),
	}
}

// Path returns the backing file's location.
func (s *Store[D]) Path() string {
	return s.path
}

// Load reads the backing document. If the file does not exist, an empty
// document is created, persisted and returned. Any other I/O failure is
// reported as ErrStorage.
func (s *Store[D]) Load(ctx context.Context) (D, error) {
	ctx, span := s.tracer.Start(ctx, "jsonstore.load",
		trace.WithAttributes(attribute.String("document.path", s.path)),
	)
	defer span.End()

	var doc D
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return doc, fmt.Errorf("%w: read %s: %v", ErrStorage, s.path, err)
		}
		span.SetAttributes(attribute.Bool("document.created", true))
		doc = s.empty()
		if err := s.Save(ctx, doc); err != nil {
			return doc, err
		}
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: decode %s: %v", ErrStorage, s.path, err)
	}

	span.SetAttributes(attribute.Int("document.bytes", len(data)))
	return doc, nil
}

// Save serializes doc to disk, creating parent directories as needed. The
// document is written to a temporary file and renamed into place so a crash
// mid-write never leaves a truncated document behind.
func (s *Store[D]) Save(ctx context.Context, doc D) error {
	_, span := s.tracer.Start(ctx, "jsonstore.save",
		trace.WithAttributes(attribute.String("document.path", s.path)),
	)
	defer span.End()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStorage, s.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: create directory for %s: %v", ErrStorage, s.path, err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, tempPath, err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrStorage, s.path, err)
	}

	span.SetAttributes(attribute.Int("document.bytes", len(data)))
	return nil
}
