// internal/conversion/domain.go
package conversion

import (
	"time"

	"bookvault/internal/metadata"
)

// Status is a conversion job's lifecycle state. Completed and failed are
// terminal; there are no retries.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks one asynchronous conversion request. Jobs live only in process
// memory; a restart loses every record even when the underlying conversion
// finished, which callers must tolerate.
type Job struct {
	ID           string          `json:"id"`
	BookID       string          `json:"book_id"`
	BookTitle    string          `json:"book_title"`
	SourceFormat metadata.Format `json:"source_format"`
	TargetFormat metadata.Format `json:"target_format"`
	SourcePath   string          `json:"source_path"`
	TargetPath   string          `json:"target_path"`
	Status       Status          `json:"status"`
	Progress     int             `json:"progress"`
	Error        string          `json:"error,omitempty"`
	Recovered    bool            `json:"recovered,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// conversionMatrix lists the target formats reachable from each source.
// The table is asymmetric and not transitively closed: pdf reaches epub but
// not mobi, and nothing converts into azw.
var conversionMatrix = map[metadata.Format][]metadata.Format{
	metadata.FormatEPUB: {metadata.FormatPDF, metadata.FormatMOBI, metadata.FormatAZW3, metadata.FormatTXT},
	metadata.FormatPDF:  {metadata.FormatEPUB, metadata.FormatTXT},
	metadata.FormatMOBI: {metadata.FormatEPUB, metadata.FormatPDF, metadata.FormatAZW3},
	metadata.FormatAZW3: {metadata.FormatEPUB, metadata.FormatMOBI, metadata.FormatPDF},
	metadata.FormatAZW:  {metadata.FormatEPUB, metadata.FormatMOBI, metadata.FormatPDF},
	metadata.FormatFB2:  {metadata.FormatEPUB, metadata.FormatMOBI, metadata.FormatPDF, metadata.FormatTXT},
	metadata.FormatTXT:  {metadata.FormatEPUB, metadata.FormatPDF, metadata.FormatMOBI},
}

// CanConvert reports whether target appears in source's matrix entry.
func CanConvert(source, target metadata.Format) bool {
	for _, t := range conversionMatrix[source] {
		if t == target {
			return true
		}
	}
	return false
}
