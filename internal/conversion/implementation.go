// internal/conversion/implementation.go
package conversion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"bookvault/internal/converter"
	"bookvault/internal/metadata"
)

var (
	ErrConverterUnavailable  = errors.New("converter is unavailable")
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	ErrJobNotFound           = errors.New("conversion job not found")
	ErrRateLimited           = errors.New("conversion rate limit exceeded")
)

const (
	healthProbeTimeout = 5 * time.Second

	// Window for inferring that a polled-but-unknown job finished before a
	// restart wiped the registry.
	recoveryWindow = 5 * time.Minute
)

// service implements the Service interface.
type service struct {
	books     metadata.Service
	conv      converter.Converter
	registry  *Registry
	booksRoot string
	limiter   *rate.Limiter
	tracer    trace.Tracer

	jobsStarted   metric.Int64Counter
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
}

// NewService creates a conversion orchestrator. The registry holds all job
// state and is injected so its lifetime is explicit.
func NewService(books metadata.Service, conv converter.Converter, registry *Registry, booksRoot string) Service {
	meter := otel.Meter("bookvault/conversion")
	jobsStarted, _ := meter.Int64Counter("conversion.jobs.started")
	jobsCompleted, _ := meter.Int64Counter("conversion.jobs.completed")
	jobsFailed, _ := meter.Int64Counter("conversion.jobs.failed")

	return &service{
		books:         books,
		conv:          conv,
		registry:      registry,
		booksRoot:     booksRoot,
		limiter:       rate.NewLimiter(rate.Every(time.Second), 10),
		tracer:        otel.Tracer("bookvault/conversion"),
		jobsStarted:   jobsStarted,
		jobsCompleted: jobsCompleted,
		jobsFailed:    jobsFailed,
	}
}

func (s *service) CanConvert(source, target metadata.Format) bool {
	return CanConvert(source, target)
}

// ConvertBook validates the request, registers a pending job and returns
// immediately; the conversion itself runs in a background goroutine.
func (s *service) ConvertBook(ctx context.Context, bookID string, source, target metadata.Format, sourcePath string) (*Job, error) {
	ctx, span := s.tracer.Start(ctx, "conversion.convert",
		trace.WithAttributes(
			attribute.String("book.id", bookID),
			attribute.String("format.source", string(source)),
			attribute.String("format.target", string(target)),
		),
	)
	defer span.End()

	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	if err := s.conv.HealthCheck(probeCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConverterUnavailable, err)
	}

	if !CanConvert(source, target) {
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, source, target)
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("look up book: %w", err)
	}

	job := Job{
		ID:           uuid.NewString(),
		BookID:       book.ID,
		BookTitle:    book.Title,
		SourceFormat: source,
		TargetFormat: target,
		SourcePath:   sourcePath,
		TargetPath:   targetPath(sourcePath, target),
		Status:       StatusPending,
	}
	s.registry.Add(job)
	s.jobsStarted.Add(ctx, 1)
	span.SetAttributes(attribute.String("job.id", job.ID))

	go s.run(job)

	return &job, nil
}

// targetPath swaps the source file's extension for the target format's
// canonical one, keeping the same directory. Relative paths inside the
// library always use forward slashes, whatever the host separator is.
func targetPath(sourcePath string, target metadata.Format) string {
	normalized := strings.ReplaceAll(sourcePath, "\\", "/")
	base := path.Base(normalized)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return path.Join(path.Dir(normalized), stem+target.Extension())
}

// run drives a registered job to a terminal state. Errors here never reach
// the request that created the job; they are recorded on the job record.
func (s *service) run(job Job) {
	ctx := context.Background()
	ctx, span := s.tracer.Start(ctx, "conversion.run",
		trace.WithAttributes(attribute.String("job.id", job.ID)),
	)
	defer span.End()

	s.registry.Update(job.ID, func(j *Job) {
		now := time.Now().UTC()
		j.Status = StatusProcessing
		j.StartedAt = &now
	})

	absSource := filepath.Join(s.booksRoot, filepath.FromSlash(job.SourcePath))
	absTarget := filepath.Join(s.booksRoot, filepath.FromSlash(job.TargetPath))

	if _, err := os.Stat(absSource); err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("source file not found: %s", job.SourcePath))
		return
	}

	if err := s.conv.Convert(ctx, absSource, absTarget); err != nil {
		s.fail(ctx, job.ID, err.Error())
		return
	}

	info, err := os.Stat(absTarget)
	if err != nil {
		// The tool reported success but produced nothing; distinct from a
		// tool error so operators can tell the two apart.
		s.fail(ctx, job.ID, fmt.Sprintf("converter reported success but produced no output: %s", job.TargetPath))
		return
	}

	if err := s.appendVariant(ctx, &job, info.Size()); err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("record converted format: %v", err))
		return
	}

	s.registry.Update(job.ID, func(j *Job) {
		now := time.Now().UTC()
		j.Status = StatusCompleted
		j.Progress = 100
		j.CompletedAt = &now
	})
	s.jobsCompleted.Add(ctx, 1)
	log.Printf("conversion %s completed: %s %s -> %s", job.ID, job.BookID, job.SourceFormat, job.TargetFormat)
}

// appendVariant records the converted file on the book through the metadata
// store. An existing variant for the target format is replaced so formats
// stay unique per book.
func (s *service) appendVariant(ctx context.Context, job *Job, size int64) error {
	book, err := s.books.GetBook(ctx, job.BookID)
	if err != nil {
		return err
	}

	variant := metadata.FormatVariant{
		Format:     job.TargetFormat,
		FilePath:   job.TargetPath,
		FileName:   path.Base(job.TargetPath),
		FileSize:   size,
		IsOriginal: false,
		AddedDate:  time.Now().UTC(),
	}

	replaced := false
	for i := range book.Formats {
		if book.Formats[i].Format == job.TargetFormat {
			// Keep the stored flag: replacing the variant that holds the
			// original slot must not leave the book without one.
			variant.IsOriginal = book.Formats[i].IsOriginal
			book.Formats[i] = variant
			replaced = true
			break
		}
	}
	if !replaced {
		book.Formats = append(book.Formats, variant)
	}

	return s.books.UpsertBook(ctx, book)
}

func (s *service) fail(ctx context.Context, jobID, msg string) {
	s.registry.Update(jobID, func(j *Job) {
		now := time.Now().UTC()
		j.Status = StatusFailed
		j.Error = msg
		j.CompletedAt = &now
	})
	s.jobsFailed.Add(ctx, 1)
	log.Printf("conversion %s failed: %s", jobID, msg)
}

// GetJob looks up a job. An unknown id cannot be distinguished from a record
// lost to a restart, so before reporting not-found the orchestrator checks
// whether any book gained a non-original format within the recovery window
// and, if so, reports a synthesized completed job marked Recovered. This is
// a best-effort inference, not a guarantee.
func (s *service) GetJob(ctx context.Context, id string) (*Job, error) {
	if job, ok := s.registry.Get(id); ok {
		return &job, nil
	}

	if job := s.recoverLostJob(ctx, id); job != nil {
		return job, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

func (s *service) recoverLostJob(ctx context.Context, id string) *Job {
	books, err := s.books.GetBooks(ctx, "")
	if err != nil {
		return nil
	}

	cutoff := time.Now().UTC().Add(-recoveryWindow)
	for i := range books {
		for _, variant := range books[i].Formats {
			if variant.IsOriginal || variant.AddedDate.Before(cutoff) {
				continue
			}
			added := variant.AddedDate
			return &Job{
				ID:           id,
				BookID:       books[i].ID,
				BookTitle:    books[i].Title,
				TargetFormat: variant.Format,
				TargetPath:   variant.FilePath,
				Status:       StatusCompleted,
				Progress:     100,
				Recovered:    true,
				CompletedAt:  &added,
			}
		}
	}
	return nil
}

func (s *service) GetAllJobs(ctx context.Context) []Job {
	return s.registry.All()
}

func (s *service) GetJobsForBook(ctx context.Context, bookID string) []Job {
	return s.registry.ForBook(bookID)
}

func (s *service) ClearCompletedJobs(ctx context.Context) int {
	return s.registry.ClearCompleted()
}
