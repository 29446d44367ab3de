// internal/conversion/service.go
package conversion

import (
	"context"

	"bookvault/internal/metadata"
)

// Service defines the interface for the conversion orchestrator. Validation
// failures surface synchronously from ConvertBook; once a job is registered
// every further failure lands in terminal job state only, observed by
// polling GetJob.
type Service interface {
	CanConvert(source, target metadata.Format) bool
	ConvertBook(ctx context.Context, bookID string, source, target metadata.Format, sourcePath string) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	GetAllJobs(ctx context.Context) []Job
	GetJobsForBook(ctx context.Context, bookID string) []Job
	ClearCompletedJobs(ctx context.Context) int
}
