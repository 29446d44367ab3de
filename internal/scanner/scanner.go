// internal/scanner/scanner.go
package scanner

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/blake2b"

	"bookvault/internal/metadata"
)

// unknownAuthor is the sentinel used when a folder name carries no separator.
const unknownAuthor = "Unknown Author"

// titleAuthorSeparators are tried against the folder name; the one occurring
// earliest splits it into title and author halves.
var titleAuthorSeparators = []string{" - ", "_-_", "--"}

var coverExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// Scanner reconciles a directory tree of book folders into metadata store
// records. A scan is authoritative and destructive: books absent from the
// tree are gone afterwards.
type Scanner struct {
	books     metadata.Service
	booksRoot string
	coversDir string
	ownerID   string
}

func New(books metadata.Service, booksRoot, coversDir, ownerID string) *Scanner {
	return &Scanner{
		books:     books,
		booksRoot: booksRoot,
		coversDir: coversDir,
		ownerID:   ownerID,
	}
}

// Scan clears the store, walks the books root and upserts one book per
// folder with supported files. A single folder failing is logged and
// skipped, not fatal. Returns the number of books recorded.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	if err := s.books.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear metadata store: %w", err)
	}

	entries, err := os.ReadDir(s.booksRoot)
	if err != nil {
		return 0, fmt.Errorf("read books root %s: %w", s.booksRoot, err)
	}

	scanned := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		book, err := s.scanFolder(entry.Name())
		if err != nil {
			log.Printf("WARN scanner: skipping folder %s: %v", entry.Name(), err)
			continue
		}
		if book == nil {
			continue
		}
		if err := s.books.UpsertBook(ctx, book); err != nil {
			log.Printf("WARN scanner: skipping folder %s: %v", entry.Name(), err)
			continue
		}
		scanned++
	}

	if err := s.books.SetLastScan(ctx, time.Now().UTC()); err != nil {
		return scanned, fmt.Errorf("record scan time: %w", err)
	}
	return scanned, nil
}

// scanFolder builds a book from one folder, or returns nil when the folder
// holds no supported files.
func (s *Scanner) scanFolder(folder string) (*metadata.Book, error) {
	files, err := os.ReadDir(filepath.Join(s.booksRoot, folder))
	if err != nil {
		return nil, err
	}

	var variants []metadata.FormatVariant
	earliest := -1
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		format, ok := metadata.ParseFormat(filepath.Ext(file.Name()))
		if !ok {
			continue
		}
		info, err := file.Info()
		if err != nil {
			return nil, err
		}
		variants = append(variants, metadata.FormatVariant{
			Format:    format,
			FilePath:  path.Join(folder, file.Name()),
			FileName:  file.Name(),
			FileSize:  info.Size(),
			AddedDate: info.ModTime().UTC(),
		})
		if earliest < 0 || info.ModTime().Before(variants[earliest].AddedDate) {
			earliest = len(variants) - 1
		}
	}

	if len(variants) == 0 {
		log.Printf("WARN scanner: folder %s has no supported ebook files", folder)
		return nil, nil
	}
	variants[earliest].IsOriginal = true

	title, author := splitTitleAuthor(folder)
	return &metadata.Book{
		ID:        folderID(folder),
		Title:     title,
		Author:    author,
		Formats:   variants,
		CoverPath: s.findCover(folder),
		OwnerID:   s.ownerID,
	}, nil
}

// folderID derives a stable id from the folder name, so rescans keep ids
// across runs.
func folderID(folder string) string {
	sum := blake2b.Sum256([]byte(folder))
	return hex.EncodeToString(sum[:16])
}

// splitTitleAuthor derives title and author from the folder name. The name
// splits on the earliest-occurring separator; without one the whole name is
// the title and the author falls back to the sentinel.
func splitTitleAuthor(folder string) (title, author string) {
	splitAt, sepLen := -1, 0
	for _, sep := range titleAuthorSeparators {
		if idx := strings.Index(folder, sep); idx >= 0 && (splitAt < 0 || idx < splitAt) {
			splitAt, sepLen = idx, len(sep)
		}
	}
	if splitAt < 0 {
		return titleCase(folder), unknownAuthor
	}
	return titleCase(folder[:splitAt]), titleCase(folder[splitAt+sepLen:])
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// findCover looks for an image named after the folder in the covers
// directory; first candidate extension wins.
func (s *Scanner) findCover(folder string) string {
	for _, ext := range coverExtensions {
		name := folder + ext
		if _, err := os.Stat(filepath.Join(s.coversDir, name)); err == nil {
			return path.Join(filepath.Base(s.coversDir), name)
		}
	}
	return ""
}
