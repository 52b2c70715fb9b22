// Package planner turns transformed source documents into an ordered list
// of output volumes that respect the byte-size budget.
package planner

import (
	"fmt"

	"comic2kindle/internal/pages"
)

// VolumeOverhead is the fixed packaging overhead budgeted per volume for
// container structure, metadata, and per-page markup.
const VolumeOverhead = 50 * 1024

// Volume is one planned output artifact.
type Volume struct {
	// Index is 1-based and stable across the plan.
	Index int
	Pages []*pages.Page
	// EstimatedSize includes VolumeOverhead.
	EstimatedSize int64
	// Oversized marks a volume that exceeds the budget but cannot be
	// split further (a single page larger than the budget).
	Oversized bool
	// Direction is inherited from the first contributing document.
	Direction pages.ReadingDirection
	// DocumentIDs lists the source documents contributing pages, in order.
	DocumentIDs []string
}

// Plan is the planner's output: the ordered volumes plus non-fatal notes.
type Plan struct {
	Volumes  []*Volume
	Warnings []string
}

// Build produces the volume plan. Documents arrive already transformed and
// in the caller-chosen order. With merge disabled every document maps to
// its own volume run; with merge enabled documents are concatenated and
// volumes close at document boundaries unless a single document alone
// exceeds the budget.
func Build(docs []*pages.SourceDocument, merge bool, budget int64) (*Plan, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("volume size budget must be positive, got %d", budget)
	}

	plan := &Plan{}
	live := make([]*pages.SourceDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.PageCount() == 0 {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("%s contributed no pages and was skipped", doc.Name))
			continue
		}
		live = append(live, doc)
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("no documents with pages to plan")
	}

	if !merge {
		for _, doc := range live {
			appendRun(plan, runFromDocs([]*pages.SourceDocument{doc}), budget)
		}
		renumber(plan)
		return plan, nil
	}

	// Merge: accumulate whole documents while they fit, closing at the
	// document boundary that precedes an overflow.
	var current []*pages.SourceDocument
	var currentSize int64 = VolumeOverhead
	flush := func() {
		if len(current) == 0 {
			return
		}
		appendRun(plan, runFromDocs(current), budget)
		current = nil
		currentSize = VolumeOverhead
	}
	for _, doc := range live {
		docSize := doc.EstimatedSize()
		if len(current) > 0 && currentSize+docSize > budget {
			flush()
		}
		if docSize+VolumeOverhead > budget {
			// The document cannot share a volume with anything; it
			// gets its own run and is split internally.
			flush()
			appendRun(plan, runFromDocs([]*pages.SourceDocument{doc}), budget)
			continue
		}
		current = append(current, doc)
		currentSize += docSize
	}
	flush()
	renumber(plan)
	return plan, nil
}

// run is a contiguous page sequence with its contributing document IDs.
type run struct {
	pages     []*pages.Page
	direction pages.ReadingDirection
}

func runFromDocs(docs []*pages.SourceDocument) run {
	r := run{direction: docs[0].Direction}
	for _, doc := range docs {
		for _, page := range doc.Pages {
			if page.Failed() {
				continue
			}
			r.pages = append(r.pages, page)
		}
	}
	return r
}

// appendRun emits the run as one volume when it fits, otherwise splits it
// recursively at the page boundary nearest the byte midpoint.
func appendRun(plan *Plan, r run, budget int64) {
	total := pagesSize(r.pages) + VolumeOverhead
	if total <= budget || len(r.pages) == 1 {
		plan.Volumes = append(plan.Volumes, &Volume{
			Pages:         r.pages,
			EstimatedSize: total,
			Oversized:     total > budget,
			Direction:     r.direction,
			DocumentIDs:   documentIDs(r.pages),
		})
		return
	}

	split := midpointBoundary(r.pages)
	appendRun(plan, run{pages: r.pages[:split], direction: r.direction}, budget)
	appendRun(plan, run{pages: r.pages[split:], direction: r.direction}, budget)
}

// midpointBoundary picks the page boundary whose byte prefix is nearest to
// half the run's total size. Always returns a boundary in [1, len-1].
func midpointBoundary(run []*pages.Page) int {
	total := pagesSize(run)
	half := total / 2
	best := 1
	bestDist := total
	var prefix int64
	for i := 0; i < len(run)-1; i++ {
		prefix += run[i].EstimatedSize
		dist := prefix - half
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			best = i + 1
		}
	}
	return best
}

func pagesSize(run []*pages.Page) int64 {
	var total int64
	for _, page := range run {
		total += page.EstimatedSize
	}
	return total
}

func documentIDs(run []*pages.Page) []string {
	var ids []string
	for _, page := range run {
		if len(ids) == 0 || ids[len(ids)-1] != page.DocumentID {
			ids = append(ids, page.DocumentID)
		}
	}
	return ids
}

func renumber(plan *Plan) {
	for i, volume := range plan.Volumes {
		volume.Index = i + 1
	}
}
