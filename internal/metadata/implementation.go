// internal/metadata/implementation.go
package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookvault/internal/jsonstore"
)

var (
	ErrNotFound   = errors.New("book not found")
	ErrLastFormat = errors.New("cannot remove the last format variant")
)

const documentVersion = "1.0"

// document is the on-disk schema of the metadata store.
type document struct {
	Version  string     `json:"version"`
	LastScan *time.Time `json:"last_scan,omitempty"`
	Books    []Book     `json:"books"`
}

// service implements the Service interface over one JSON document. The cache
// loads lazily on first access and refreshes only through Reload; all
// operations serialize behind the mutex.
type service struct {
	store  *jsonstore.Store[document]
	tracer trace.Tracer

	mu     sync.Mutex
	doc    *document
	loaded bool
}

// NewService creates a metadata store backed by the JSON document at path.
func NewService(path string) Service {
	return &service{
		store: jsonstore.New(path, func() document {
			return document{Version: documentVersion, Books: []Book{}}
		}),
		tracer: otel.Tracer("bookvault/metadata"),
	}
}

func (s *service) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	doc, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	s.doc = &doc
	s.loaded = true
	return nil
}

func (s *service) persist(ctx context.Context) error {
	return s.store.Save(ctx, *s.doc)
}

func (s *service) GetBooks(ctx context.Context, ownerID string) ([]Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return s.filterOwner(ownerID), nil
}

func (s *service) GetBook(ctx context.Context, id string) (*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	for i := range s.doc.Books {
		if s.doc.Books[i].ID == id {
			book := copyBook(&s.doc.Books[i])
			return &book, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// UpsertBook inserts or replaces the book and persists synchronously. On
// insert both dates are set; on replace the stored AddedDate is kept and
// UpdatedDate is bumped. The passed book is updated with the final dates.
func (s *service) UpsertBook(ctx context.Context, book *Book) error {
	ctx, span := s.tracer.Start(ctx, "metadata.upsert",
		trace.WithAttributes(attribute.String("book.id", book.ID)),
	)
	defer span.End()

	if len(book.Formats) == 0 {
		return fmt.Errorf("book %s must have at least one format variant", book.ID)
	}
	seen := make(map[Format]bool, len(book.Formats))
	originals := 0
	for _, v := range book.Formats {
		if seen[v.Format] {
			return fmt.Errorf("book %s has duplicate format variant %q", book.ID, v.Format)
		}
		seen[v.Format] = true
		if v.IsOriginal {
			originals++
		}
	}
	if originals != 1 {
		return fmt.Errorf("book %s must have exactly one original format variant, has %d", book.ID, originals)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	book.UpdatedDate = now
	for i := range s.doc.Books {
		if s.doc.Books[i].ID == book.ID {
			book.AddedDate = s.doc.Books[i].AddedDate
			s.doc.Books[i] = *book
			return s.persist(ctx)
		}
	}
	book.AddedDate = now
	s.doc.Books = append(s.doc.Books, *book)
	span.SetAttributes(attribute.Bool("book.inserted", true))
	return s.persist(ctx)
}

func (s *service) RemoveBook(ctx context.Context, id string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "metadata.remove",
		trace.WithAttributes(attribute.String("book.id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}
	for i := range s.doc.Books {
		if s.doc.Books[i].ID == id {
			s.doc.Books = append(s.doc.Books[:i], s.doc.Books[i+1:]...)
			return true, s.persist(ctx)
		}
	}
	return false, nil
}

// RemoveFormat drops one variant from a book. Removing the sole remaining
// variant is rejected; delete the book instead.
func (s *service) RemoveFormat(ctx context.Context, id string, format Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	for i := range s.doc.Books {
		if s.doc.Books[i].ID != id {
			continue
		}
		book := &s.doc.Books[i]
		for j := range book.Formats {
			if book.Formats[j].Format != format {
				continue
			}
			if len(book.Formats) == 1 {
				return fmt.Errorf("%w: book %s only has %q", ErrLastFormat, id, format)
			}
			book.Formats = append(book.Formats[:j], book.Formats[j+1:]...)
			book.UpdatedDate = time.Now().UTC()
			return s.persist(ctx)
		}
		return fmt.Errorf("%w: book %s has no %q variant", ErrNotFound, id, format)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// SearchBooks matches the query case-insensitively against title, author,
// tags and description, preserving collection order.
func (s *service) SearchBooks(ctx context.Context, ownerID, query string) ([]Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var matches []Book
	for _, book := range s.filterOwner(ownerID) {
		if matchesQuery(&book, q) {
			matches = append(matches, book)
		}
	}
	return matches, nil
}

func matchesQuery(book *Book, q string) bool {
	if strings.Contains(strings.ToLower(book.Title), q) ||
		strings.Contains(strings.ToLower(book.Author), q) ||
		strings.Contains(strings.ToLower(book.Description), q) {
		return true
	}
	for _, tag := range book.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (s *service) FilterBooks(ctx context.Context, ownerID string, filter Filter) ([]Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	var matches []Book
	for _, book := range s.filterOwner(ownerID) {
		if matchesFilter(&book, filter) {
			matches = append(matches, book)
		}
	}
	return matches, nil
}

func matchesFilter(book *Book, filter Filter) bool {
	for _, tag := range filter.Tags {
		if !book.HasTag(tag) {
			return false
		}
	}
	if len(filter.Formats) > 0 {
		any := false
		for _, f := range filter.Formats {
			if book.Variant(f) != nil {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if filter.Author != "" &&
		!strings.Contains(strings.ToLower(book.Author), strings.ToLower(filter.Author)) {
		return false
	}
	return true
}

func (s *service) GetAllTags(ctx context.Context, ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	for _, book := range s.filterOwner(ownerID) {
		for _, tag := range book.Tags {
			set[tag] = true
		}
	}
	return sortedKeys(set), nil
}

func (s *service) GetAllAuthors(ctx context.Context, ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	for _, book := range s.filterOwner(ownerID) {
		if book.Author != "" {
			set[book.Author] = true
		}
	}
	return sortedKeys(set), nil
}

func (s *service) LastScan(ctx context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return s.doc.LastScan, nil
}

func (s *service) SetLastScan(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.doc.LastScan = &at
	return s.persist(ctx)
}

// Clear resets the collection to empty and persists. The last-scan timestamp
// is kept; a rescan overwrites it when it finishes.
func (s *service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.doc.Books = []Book{}
	return s.persist(ctx)
}

// Reload discards the cache and rereads the document from disk.
func (s *service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.doc = nil
	return s.ensureLoaded(ctx)
}

func (s *service) filterOwner(ownerID string) []Book {
	books := make([]Book, 0, len(s.doc.Books))
	for i := range s.doc.Books {
		if ownerID != "" && s.doc.Books[i].OwnerID != ownerID {
			continue
		}
		books = append(books, copyBook(&s.doc.Books[i]))
	}
	return books
}

// copyBook detaches a book from the cache. Formats and Tags are slice-backed,
// so a shallow struct copy would still alias the stored collection and let
// callers mutate it without an upsert.
func copyBook(b *Book) Book {
	out := *b
	out.Formats = append([]FormatVariant(nil), b.Formats...)
	if b.Tags != nil {
		out.Tags = append([]string(nil), b.Tags...)
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
