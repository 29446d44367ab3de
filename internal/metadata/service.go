// internal/metadata/service.go
package metadata

import (
	"context"
	"time"
)

// Service defines the interface for the metadata store, the single source of
// truth for all book records. Owner-scoped queries take an owner id; the
// empty owner means unscoped and is reserved for the scanner and
// administrative callers.
type Service interface {
	GetBooks(ctx context.Context, ownerID string) ([]Book, error)
	GetBook(ctx context.Context, id string) (*Book, error)
	UpsertBook(ctx context.Context, book *Book) error
	RemoveBook(ctx context.Context, id string) (bool, error)
	RemoveFormat(ctx context.Context, id string, format Format) error
	SearchBooks(ctx context.Context, ownerID, query string) ([]Book, error)
	FilterBooks(ctx context.Context, ownerID string, filter Filter) ([]Book, error)
	GetAllTags(ctx context.Context, ownerID string) ([]string, error)
	GetAllAuthors(ctx context.Context, ownerID string) ([]string, error)
	LastScan(ctx context.Context) (*time.Time, error)
	SetLastScan(ctx context.Context, at time.Time) error
	Clear(ctx context.Context) error
	Reload(ctx context.Context) error
}
