// internal/share/domain.go
package share

import "time"

// ShareToken grants unauthenticated, time-bounded access to a single book.
type ShareToken struct {
	Token     string     `json:"token"`
	BookID    string     `json:"book_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ValidAt reports whether the token is usable at the given instant. A nil
// ExpiresAt means the token never expires.
func (t *ShareToken) ValidAt(now time.Time) bool {
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}
