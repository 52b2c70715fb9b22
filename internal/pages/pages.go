// Package pages defines the page and source document model shared by the
// extraction, transform, planning, and assembly stages.
package pages

import "strings"

// ReadingDirection is the page/spread traversal order of a document.
type ReadingDirection string

const (
	DirectionLeftToRight ReadingDirection = "ltr"
	DirectionRightToLeft ReadingDirection = "rtl"
)

// ParseDirection converts a string into a known ReadingDirection.
// Unknown values default to left-to-right.
func ParseDirection(value string) ReadingDirection {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "rtl", "right-to-left":
		return DirectionRightToLeft
	default:
		return DirectionLeftToRight
	}
}

// SpreadHalf identifies which half of a split spread a page came from.
type SpreadHalf string

const (
	SpreadNone  SpreadHalf = ""
	SpreadLeft  SpreadHalf = "left"
	SpreadRight SpreadHalf = "right"
)

// Page is one logical page image. A page is owned by the transform stage
// until it is consumed by the planner and is immutable once transformed.
type Page struct {
	// DocumentID identifies the owning source document.
	DocumentID string
	// Index is the page's position in the original document ordering.
	// Spread halves share the index of the page they were split from.
	Index int
	// Name is the original entry name, for diagnostics.
	Name string
	// Width and Height are pixel dimensions after transform.
	Width  int
	Height int
	// Data holds the encoded image bytes.
	Data []byte
	// IsSpread marks pages detected as double-page spreads.
	IsSpread bool
	// SpreadHalf is set on the two pages produced by a spread split.
	SpreadHalf SpreadHalf
	// EstimatedSize is the page's contribution to a volume's byte budget.
	EstimatedSize int64
	// Err records an isolated per-page transform failure.
	Err error
}

// Size returns the encoded byte length of the page.
func (p *Page) Size() int64 {
	return int64(len(p.Data))
}

// Failed reports whether the page could not be transformed.
func (p *Page) Failed() bool {
	return p.Err != nil
}

// SourceDocument is an ordered list of pages plus a declared reading
// direction and a stable identifier. Supplied externally; read-only to the
// conversion core.
type SourceDocument struct {
	ID        string
	Name      string
	Direction ReadingDirection
	Pages     []*Page
}

// PageCount returns the number of pages in the document.
func (d *SourceDocument) PageCount() int {
	if d == nil {
		return 0
	}
	return len(d.Pages)
}

// EstimatedSize sums the size estimates of all non-failed pages.
func (d *SourceDocument) EstimatedSize() int64 {
	if d == nil {
		return 0
	}
	var total int64
	for _, page := range d.Pages {
		if page.Failed() {
			continue
		}
		total += page.EstimatedSize
	}
	return total
}
