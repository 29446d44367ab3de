// internal/converter/converter.go
package converter

import (
	"context"
	"errors"
)

// ErrTimeout marks a conversion that hit the hard time ceiling.
var ErrTimeout = errors.New("conversion timed out")

// Converter is the external collaborator that performs the actual byte
// transformation between ebook formats. Two implementations exist: a local
// ebook-convert process and a remote HTTP conversion service, selected by
// configuration at process start.
type Converter interface {
	// HealthCheck reports whether the collaborator can accept work.
	HealthCheck(ctx context.Context) error
	// Convert transforms the file at sourcePath into targetPath. Both paths
	// are absolute. A nil return only means the tool reported success; the
	// caller still verifies the output exists.
	Convert(ctx context.Context, sourcePath, targetPath string) error
}
