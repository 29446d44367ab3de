// internal/share/service.go
package share

import "context"

// Service defines the interface for the share-token store. Lookups and
// creates reload the backing document first so tokens written by concurrent
// processes are visible.
type Service interface {
	CreateShareToken(ctx context.Context, bookID string, expiresInDays *float64) (*ShareToken, error)
	GetShareToken(ctx context.Context, token string) (*ShareToken, error)
	GetShareTokenForBook(ctx context.Context, bookID string) (*ShareToken, error)
	RevokeShareToken(ctx context.Context, token string) (bool, error)
	RevokeShareTokensForBook(ctx context.Context, bookID string) (int, error)
	CleanupExpiredTokens(ctx context.Context) (int, error)
}
