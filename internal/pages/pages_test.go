package pages

import (
	"errors"
	"testing"
)

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want ReadingDirection
	}{
		{"rtl", DirectionRightToLeft},
		{" Right-To-Left ", DirectionRightToLeft},
		{"ltr", DirectionLeftToRight},
		{"", DirectionLeftToRight},
		{"boustrophedon", DirectionLeftToRight},
	}
	for _, tc := range tests {
		if got := ParseDirection(tc.in); got != tc.want {
			t.Errorf("ParseDirection(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestDocumentEstimatedSizeSkipsFailedPages(t *testing.T) {
	doc := &SourceDocument{
		ID:   "doc-1",
		Name: "vol1.cbz",
		Pages: []*Page{
			{Index: 0, Data: []byte("abc"), EstimatedSize: 100},
			{Index: 1, EstimatedSize: 200, Err: errors.New("decode failed")},
			{Index: 2, EstimatedSize: 300},
		},
	}

	if doc.PageCount() != 3 {
		t.Fatalf("PageCount = %d", doc.PageCount())
	}
	if got := doc.EstimatedSize(); got != 400 {
		t.Fatalf("EstimatedSize = %d, failed pages must not count", got)
	}
	if doc.Pages[0].Size() != 3 {
		t.Fatalf("Size = %d", doc.Pages[0].Size())
	}
	if !doc.Pages[1].Failed() || doc.Pages[0].Failed() {
		t.Fatal("Failed must reflect the per-page error")
	}
}

func TestNilDocumentAccessors(t *testing.T) {
	var doc *SourceDocument
	if doc.PageCount() != 0 || doc.EstimatedSize() != 0 {
		t.Fatal("nil document must report zero pages and size")
	}
}
