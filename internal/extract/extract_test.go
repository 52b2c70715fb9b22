package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"comic2kindle/internal/pages"
	"comic2kindle/internal/services"
)

func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := writer.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractCBZNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "chapter.cbz")
	writeZip(t, archive, map[string][]byte{
		"page10.jpg":         []byte("j"),
		"page2.jpg":          []byte("i"),
		"page1.jpg":          []byte("h"),
		"__MACOSX/page1.jpg": []byte("x"),
		"cover/.hidden.jpg":  []byte("x"),
		"notes.txt":          []byte("x"),
	})

	doc, err := Extract(context.Background(), archive, "doc-1", pages.DirectionLeftToRight)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	names := []string{doc.Pages[0].Name, doc.Pages[1].Name, doc.Pages[2].Name}
	want := []string{"page1.jpg", "page2.jpg", "page10.jpg"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("page order %v, want %v", names, want)
		}
	}
	if doc.Pages[1].Index != 1 {
		t.Fatalf("indices must follow sorted order, got %d", doc.Pages[1].Index)
	}
}

func TestExtractEmptyArchiveFails(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "empty.cbz")
	writeZip(t, archive, map[string][]byte{"readme.txt": []byte("x")})

	_, err := Extract(context.Background(), archive, "doc-1", pages.DirectionLeftToRight)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "book.pdf")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Extract(context.Background(), file, "doc-1", pages.DirectionLeftToRight)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExtractMissingFile(t *testing.T) {
	_, err := Extract(context.Background(), filepath.Join(t.TempDir(), "gone.cbz"), "doc-1", pages.DirectionLeftToRight)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestExtractImageDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "loose")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"003.png", "001.png", "002.png", ".DS_Store"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	doc, err := Extract(context.Background(), src, "doc-2", pages.DirectionRightToLeft)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	if doc.Pages[0].Name != "001.png" || doc.Pages[2].Name != "003.png" {
		t.Fatalf("unexpected order: %s .. %s", doc.Pages[0].Name, doc.Pages[2].Name)
	}
	if doc.Direction != pages.DirectionRightToLeft {
		t.Fatalf("direction not preserved: %s", doc.Direction)
	}
}

func TestCountPages(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "chapter.cbz")
	writeZip(t, archive, map[string][]byte{
		"a.jpg":              []byte("x"),
		"b.webp":             []byte("x"),
		"__MACOSX/a.jpg":     []byte("x"),
		"ComicInfo.xml":      []byte("x"),
		"scans/c.png":        []byte("x"),
	})
	count, err := CountPages(archive)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 pages, got %d", count)
	}
}

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"page2.jpg", "page10.jpg", true},
		{"page10.jpg", "page2.jpg", false},
		{"001.png", "2.png", true},
		{"ch1p5.jpg", "ch1p40.jpg", true},
		{"a.jpg", "b.jpg", true},
		{"Page3.jpg", "page12.jpg", true},
	}
	for _, tc := range cases {
		if got := naturalLess(tc.a, tc.b); got != tc.want {
			t.Errorf("naturalLess(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSupportedArchive(t *testing.T) {
	for _, name := range []string{"a.cbz", "b.CBR", "c.zip", "d.rar", "e.epub"} {
		if !SupportedArchive(name) {
			t.Errorf("%s should be supported", name)
		}
	}
	for _, name := range []string{"a.pdf", "b.mobi", "c"} {
		if SupportedArchive(name) {
			t.Errorf("%s should not be supported", name)
		}
	}
}
