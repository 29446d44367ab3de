// internal/metadata/domain.go
package metadata

import (
	"strings"
	"time"
)

// Format identifies one of the supported ebook formats.
type Format string

const (
	FormatEPUB Format = "epub"
	FormatPDF  Format = "pdf"
	FormatMOBI Format = "mobi"
	FormatAZW3 Format = "azw3"
	FormatAZW  Format = "azw"
	FormatFB2  Format = "fb2"
	FormatTXT  Format = "txt"
)

var supportedFormats = []Format{
	FormatEPUB, FormatPDF, FormatMOBI, FormatAZW3, FormatAZW, FormatFB2, FormatTXT,
}

// ParseFormat maps a format name or file extension (with or without the
// leading dot) to a Format.
func ParseFormat(s string) (Format, bool) {
	name := strings.ToLower(strings.TrimPrefix(s, "."))
	for _, f := range supportedFormats {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// Extension returns the canonical file extension, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// FormatVariant is one concrete file representing a book in a specific format.
type FormatVariant struct {
	Format     Format    `json:"format"`
	FilePath   string    `json:"file_path"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	IsOriginal bool      `json:"is_original"`
	AddedDate  time.Time `json:"added_date"`
}

// Book is one catalog entry. Formats are unique by format value and a book
// always keeps at least one variant; AddedDate is immutable after creation.
type Book struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	Tags          []string        `json:"tags,omitempty"`
	Formats       []FormatVariant `json:"formats"`
	CoverPath     string          `json:"cover_path,omitempty"`
	Description   string          `json:"description,omitempty"`
	ISBN          string          `json:"isbn,omitempty"`
	Publisher     string          `json:"publisher,omitempty"`
	PublishedDate string          `json:"published_date,omitempty"`
	Language      string          `json:"language,omitempty"`
	AddedDate     time.Time       `json:"added_date"`
	UpdatedDate   time.Time       `json:"updated_date"`
	OwnerID       string          `json:"owner_id,omitempty"`
}

// Variant returns the book's variant for the given format, or nil.
func (b *Book) Variant(f Format) *FormatVariant {
	for i := range b.Formats {
		if b.Formats[i].Format == f {
			return &b.Formats[i]
		}
	}
	return nil
}

// HasTag reports whether the book carries the tag (case-insensitive).
func (b *Book) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Filter selects books by tags (all must match), formats (any must match)
// and author substring; the three groups combine with AND.
type Filter struct {
	Tags    []string
	Formats []Format
	Author  string
}
