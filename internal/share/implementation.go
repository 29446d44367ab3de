// internal/share/implementation.go
package share

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookvault/internal/jsonstore"
)

var ErrNotFound = errors.New("share token not found")

const documentVersion = "1.0"

// document is the on-disk schema of the share store.
type document struct {
	Version string       `json:"version"`
	Tokens  []ShareToken `json:"tokens"`
}

// service implements the Service interface over one JSON document,
// independent of the metadata store's document. Unlike the metadata store it
// rereads from disk on every operation: share links are created and resolved
// across processes and must reflect concurrent writers.
type service struct {
	store  *jsonstore.Store[document]
	tracer trace.Tracer
	mu     sync.Mutex
}

// NewService creates a share store backed by the JSON document at path.
func NewService(path string) Service {
	return &service{
		store: jsonstore.New(path, func() document {
			return document{Version: documentVersion, Tokens: []ShareToken{}}
		}),
		tracer: otel.Tracer("bookvault/share"),
	}
}

// CreateShareToken returns the book's existing valid token if one exists,
// otherwise mints a new one and persists it.
func (s *service) CreateShareToken(ctx context.Context, bookID string, expiresInDays *float64) (*ShareToken, error) {
	ctx, span := s.tracer.Start(ctx, "share.create",
		trace.WithAttributes(attribute.String("book.id", bookID)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range doc.Tokens {
		if doc.Tokens[i].BookID == bookID && doc.Tokens[i].ValidAt(now) {
			span.SetAttributes(attribute.Bool("token.reused", true))
			token := doc.Tokens[i]
			return &token, nil
		}
	}

	value, err := newTokenValue()
	if err != nil {
		return nil, fmt.Errorf("mint share token: %w", err)
	}
	token := ShareToken{
		Token:     value,
		BookID:    bookID,
		CreatedAt: now,
	}
	if expiresInDays != nil {
		expiresAt := now.Add(time.Duration(*expiresInDays * float64(24*time.Hour)))
		token.ExpiresAt = &expiresAt
	}

	doc.Tokens = append(doc.Tokens, token)
	if err := s.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return &token, nil
}

// GetShareToken resolves a token. Expired tokens are reported as not found
// but stay in the document until cleaned up.
func (s *service) GetShareToken(ctx context.Context, token string) (*ShareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range doc.Tokens {
		if doc.Tokens[i].Token == token && doc.Tokens[i].ValidAt(now) {
			found := doc.Tokens[i]
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *service) GetShareTokenForBook(ctx context.Context, bookID string) (*ShareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range doc.Tokens {
		if doc.Tokens[i].BookID == bookID && doc.Tokens[i].ValidAt(now) {
			found := doc.Tokens[i]
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: no valid token for book %s", ErrNotFound, bookID)
}

func (s *service) RevokeShareToken(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return false, err
	}

	for i := range doc.Tokens {
		if doc.Tokens[i].Token == token {
			doc.Tokens = append(doc.Tokens[:i], doc.Tokens[i+1:]...)
			return true, s.store.Save(ctx, doc)
		}
	}
	return false, nil
}

// RevokeShareTokensForBook removes every token for the book, valid or
// expired, and returns how many were dropped.
func (s *service) RevokeShareTokensForBook(ctx context.Context, bookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	kept := doc.Tokens[:0]
	removed := 0
	for _, token := range doc.Tokens {
		if token.BookID == bookID {
			removed++
			continue
		}
		kept = append(kept, token)
	}
	if removed == 0 {
		return 0, nil
	}
	doc.Tokens = kept
	return removed, s.store.Save(ctx, doc)
}

// CleanupExpiredTokens drops all expired tokens. Intended to run on a
// periodic schedule owned by the caller.
func (s *service) CleanupExpiredTokens(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "share.cleanup")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	kept := doc.Tokens[:0]
	removed := 0
	for _, token := range doc.Tokens {
		if !token.ValidAt(now) {
			removed++
			continue
		}
		kept = append(kept, token)
	}
	span.SetAttributes(attribute.Int("tokens.removed", removed))
	if removed == 0 {
		return 0, nil
	}
	doc.Tokens = kept
	return removed, s.store.Save(ctx, doc)
}

// newTokenValue returns 32 bytes of cryptographic randomness in unpadded
// URL-safe base64, suitable for use in a public link.
func newTokenValue() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
