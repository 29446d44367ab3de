package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	return NewService(filepath.Join(t.TempDir(), "metadata.json"))
}

func epubVariant(size int64, original bool) FormatVariant {
	return FormatVariant{
		Format:     FormatEPUB,
		FilePath:   "test-book/test.epub",
		FileName:   "test.epub",
		FileSize:   size,
		IsOriginal: original,
		AddedDate:  time.Now().UTC(),
	}
}

func TestUpsertAndGetBook(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	book := &Book{
		ID:      "b1",
		Title:   "Test Book",
		Author:  "Jane Doe",
		Formats: []FormatVariant{epubVariant(1000, true)},
	}
	require.NoError(t, svc.UpsertBook(ctx, book))

	got, err := svc.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Test Book", got.Title)
	assert.Equal(t, "Jane Doe", got.Author)
	require.Len(t, got.Formats, 1)
	assert.Equal(t, FormatEPUB, got.Formats[0].Format)
	assert.True(t, got.Formats[0].IsOriginal)
	assert.Equal(t, int64(1000), got.Formats[0].FileSize)
	assert.False(t, got.AddedDate.IsZero())
	assert.False(t, got.UpdatedDate.IsZero())
}

func TestUpsertPreservesAddedDate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	book := &Book{ID: "b1", Title: "First", Formats: []FormatVariant{epubVariant(10, true)}}
	require.NoError(t, svc.UpsertBook(ctx, book))
	added := book.AddedDate

	time.Sleep(5 * time.Millisecond)
	book.Title = "Second"
	require.NoError(t, svc.UpsertBook(ctx, book))

	got, err := svc.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Title)
	assert.True(t, added.Equal(got.AddedDate), "AddedDate must be immutable")
	assert.True(t, got.UpdatedDate.After(added), "UpdatedDate must be bumped")
}

func TestUpsertRejectsInvalidFormats(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	err := svc.UpsertBook(ctx, &Book{ID: "b1", Title: "No Formats"})
	require.Error(t, err)

	dup := &Book{ID: "b2", Title: "Dup", Formats: []FormatVariant{
		epubVariant(1, true), epubVariant(2, false),
	}}
	require.Error(t, svc.UpsertBook(ctx, dup))
}

func TestUpsertRequiresExactlyOneOriginal(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	pdf := FormatVariant{Format: FormatPDF, FilePath: "b/b.pdf", FileName: "b.pdf"}

	none := &Book{ID: "b1", Title: "No Original", Formats: []FormatVariant{epubVariant(1, false), pdf}}
	require.Error(t, svc.UpsertBook(ctx, none))

	pdf.IsOriginal = true
	two := &Book{ID: "b2", Title: "Two Originals", Formats: []FormatVariant{epubVariant(1, true), pdf}}
	require.Error(t, svc.UpsertBook(ctx, two))

	_, err := svc.GetBook(ctx, "b1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetBook(ctx, "b2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReturnedBooksAreDetachedFromCache(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	book := &Book{
		ID: "b1", Title: "Stable", Tags: []string{"keep"},
		Formats: []FormatVariant{epubVariant(1000, true)},
	}
	require.NoError(t, svc.UpsertBook(ctx, book))

	// Scribbling on a returned book without upserting it must not leak
	// into the stored collection.
	got, err := svc.GetBook(ctx, "b1")
	require.NoError(t, err)
	got.Formats[0].FileSize = 999999
	got.Tags[0] = "mangled"

	again, err := svc.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), again.Formats[0].FileSize)
	assert.Equal(t, []string{"keep"}, again.Tags)

	listed, err := svc.GetBooks(ctx, "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Formats[0].IsOriginal = false
	listed[0].Formats[0].FileSize = 123

	again, err = svc.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, again.Formats[0].IsOriginal)
	assert.Equal(t, int64(1000), again.Formats[0].FileSize)
}

func TestGetBookNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetBook(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveBookTwice(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	book := &Book{ID: "b1", Title: "Gone Soon", Formats: []FormatVariant{epubVariant(1, true)}}
	require.NoError(t, svc.UpsertBook(ctx, book))

	removed, err := svc.RemoveBook(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.RemoveBook(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveFormatProtectsLastVariant(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	pdf := FormatVariant{Format: FormatPDF, FilePath: "test-book/test.pdf", FileName: "test.pdf", FileSize: 5}
	book := &Book{ID: "b1", Title: "Two Formats", Formats: []FormatVariant{epubVariant(1, true), pdf}}
	require.NoError(t, svc.UpsertBook(ctx, book))

	require.NoError(t, svc.RemoveFormat(ctx, "b1", FormatPDF))
	got, err := svc.GetBook(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got.Formats, 1)
	assert.Equal(t, FormatEPUB, got.Formats[0].Format)
	assert.True(t, got.Formats[0].IsOriginal)

	err = svc.RemoveFormat(ctx, "b1", FormatEPUB)
	require.ErrorIs(t, err, ErrLastFormat)

	err = svc.RemoveFormat(ctx, "b1", FormatMOBI)
	require.ErrorIs(t, err, ErrNotFound)
}

func seedCatalog(t *testing.T, svc Service) {
	t.Helper()
	ctx := context.Background()
	books := []*Book{
		{ID: "b1", Title: "Dune", Author: "Frank Herbert", Tags: []string{"scifi", "classic"},
			Formats: []FormatVariant{epubVariant(1, true)}, OwnerID: "alice"},
		{ID: "b2", Title: "Dune Messiah", Author: "Frank Herbert", Tags: []string{"scifi"},
			Formats: []FormatVariant{{Format: FormatPDF, FilePath: "b2/b.pdf", FileName: "b.pdf", IsOriginal: true}}, OwnerID: "alice"},
		{ID: "b3", Title: "Emma", Author: "Jane Austen", Tags: []string{"classic"},
			Description: "a novel about youthful hubris",
			Formats:     []FormatVariant{{Format: FormatMOBI, FilePath: "b3/c.mobi", FileName: "c.mobi", IsOriginal: true}}, OwnerID: "bob"},
	}
	for _, b := range books {
		require.NoError(t, svc.UpsertBook(ctx, b))
	}
}

func TestSearchBooks(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedCatalog(t, svc)

	byTitle, err := svc.SearchBooks(ctx, "", "dune")
	require.NoError(t, err)
	require.Len(t, byTitle, 2)
	assert.Equal(t, "Dune", byTitle[0].Title)

	byAuthor, err := svc.SearchBooks(ctx, "", "AUSTEN")
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)

	byTag, err := svc.SearchBooks(ctx, "", "scifi")
	require.NoError(t, err)
	assert.Len(t, byTag, 2)

	byDescription, err := svc.SearchBooks(ctx, "", "hubris")
	require.NoError(t, err)
	assert.Len(t, byDescription, 1)

	scoped, err := svc.SearchBooks(ctx, "bob", "classic")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "b3", scoped[0].ID)
}

func TestFilterBooks(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedCatalog(t, svc)

	// Tags combine with AND.
	both, err := svc.FilterBooks(ctx, "", Filter{Tags: []string{"scifi", "classic"}})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "b1", both[0].ID)

	// Formats combine with OR.
	formats, err := svc.FilterBooks(ctx, "", Filter{Formats: []Format{FormatPDF, FormatMOBI}})
	require.NoError(t, err)
	assert.Len(t, formats, 2)

	author, err := svc.FilterBooks(ctx, "", Filter{Author: "herbert"})
	require.NoError(t, err)
	assert.Len(t, author, 2)

	// Criteria groups combine with AND.
	combined, err := svc.FilterBooks(ctx, "", Filter{Tags: []string{"scifi"}, Formats: []Format{FormatPDF}})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "b2", combined[0].ID)
}

func TestGetAllTagsAndAuthors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedCatalog(t, svc)

	tags, err := svc.GetAllTags(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"classic", "scifi"}, tags)

	authors, err := svc.GetAllAuthors(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Frank Herbert", "Jane Austen"}, authors)

	aliceTags, err := svc.GetAllTags(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"classic", "scifi"}, aliceTags)

	bobAuthors, err := svc.GetAllAuthors(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane Austen"}, bobAuthors)
}

func TestOwnerScoping(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedCatalog(t, svc)

	all, err := svc.GetBooks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alice, err := svc.GetBooks(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 2)

	nobody, err := svc.GetBooks(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, nobody)
}

func TestClearAndLastScan(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedCatalog(t, svc)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, svc.SetLastScan(ctx, at))
	require.NoError(t, svc.Clear(ctx))

	books, err := svc.GetBooks(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, books)

	scan, err := svc.LastScan(ctx)
	require.NoError(t, err)
	require.NotNil(t, scan)
	assert.True(t, at.Equal(*scan))
}

func TestReloadSeesExternalWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metadata.json")
	first := NewService(path)
	second := NewService(path)

	_, err := first.GetBooks(ctx, "")
	require.NoError(t, err)

	book := &Book{ID: "b1", Title: "Late Arrival", Formats: []FormatVariant{epubVariant(1, true)}}
	require.NoError(t, second.UpsertBook(ctx, book))

	// The cache does not auto-refresh; an explicit reload picks up the write.
	stale, err := first.GetBooks(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, stale)

	require.NoError(t, first.Reload(ctx))
	fresh, err := first.GetBooks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, fresh, 1)
}

// TestBookRoundTrip exercises persistence with arbitrary field values: an
// upserted book read back through a fresh store on the same document must be
// identical, including every date field.
func TestBookRoundTrip(t *testing.T) {
	dir := t.TempDir()
	counter := 0

	timeGen := rapid.Custom(func(t *rapid.T) time.Time {
		sec := rapid.Int64Range(0, 4_000_000_000).Draw(t, "sec")
		ns := rapid.Int64Range(0, 999_999_999).Draw(t, "ns")
		return time.Unix(sec, ns).UTC()
	})

	rapid.Check(t, func(rt *rapid.T) {
		counter++
		path := filepath.Join(dir, fmt.Sprintf("metadata-%d.json", counter))
		ctx := context.Background()

		formats := rapid.SliceOfNDistinct(
			rapid.SampledFrom(supportedFormats), 1, len(supportedFormats),
			func(f Format) Format { return f },
		).Draw(rt, "formats")

		variants := make([]FormatVariant, len(formats))
		for i, f := range formats {
			variants[i] = FormatVariant{
				Format:     f,
				FilePath:   rapid.StringMatching(`[a-z0-9/_.-]{1,40}`).Draw(rt, "file_path"),
				FileName:   rapid.StringMatching(`[a-z0-9_.-]{1,30}`).Draw(rt, "file_name"),
				FileSize:   rapid.Int64Range(0, 1<<40).Draw(rt, "file_size"),
				IsOriginal: i == 0,
				AddedDate:  timeGen.Draw(rt, "variant_added"),
			}
		}

		tags := rapid.SliceOfN(rapid.StringMatching(`[\p{L}0-9 ]{1,20}`), 0, 4).Draw(rt, "tags")
		if len(tags) == 0 {
			tags = nil
		}

		book := &Book{
			ID:          rapid.StringMatching(`[a-f0-9]{8,32}`).Draw(rt, "id"),
			Title:       rapid.String().Draw(rt, "title"),
			Author:      rapid.String().Draw(rt, "author"),
			Tags:        tags,
			Formats:     variants,
			Description: rapid.String().Draw(rt, "description"),
			ISBN:        rapid.StringMatching(`[0-9X-]{0,17}`).Draw(rt, "isbn"),
			Language:    rapid.StringMatching(`[a-z]{0,5}`).Draw(rt, "language"),
			OwnerID:     rapid.StringMatching(`[a-z]{0,10}`).Draw(rt, "owner"),
		}

		writer := NewService(path)
		require.NoError(rt, writer.UpsertBook(ctx, book))

		reader := NewService(path)
		got, err := reader.GetBook(ctx, book.ID)
		require.NoError(rt, err)

		want, _ := json.Marshal(book)
		have, _ := json.Marshal(got)
		require.JSONEq(rt, string(want), string(have))

		require.True(rt, got.AddedDate.Equal(book.AddedDate))
		require.True(rt, got.UpdatedDate.Equal(book.UpdatedDate))
		for i := range got.Formats {
			require.True(rt, got.Formats[i].AddedDate.Equal(book.Formats[i].AddedDate))
		}
	})
}
