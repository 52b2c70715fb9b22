package imaging

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"comic2kindle/internal/logging"
	"comic2kindle/internal/pages"
	"comic2kindle/internal/services"
)

// Result is the outcome of transforming one document.
type Result struct {
	Document *pages.SourceDocument
	Warnings []string
	Failed   int
}

// ProcessDocument transforms every page of doc through a bounded worker
// pool and returns a new document with finished pages in original order.
// Individual page failures are isolated; the document fails only when the
// failure ratio exceeds maxFailureRatio or no pages survive.
func (t *Transformer) ProcessDocument(ctx context.Context, doc *pages.SourceDocument, workers int, maxFailureRatio float64, progress func(done, total int)) (*Result, error) {
	total := doc.PageCount()
	if total == 0 {
		return nil, services.Wrap(services.ErrValidation, "processing", "transform",
			fmt.Sprintf("document %s has no pages", doc.Name), nil)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > total {
		workers = total
	}

	// Results are gathered by original page index so spread splits keep
	// their place in the reading order.
	type slot struct {
		pages   []*pages.Page
		warning string
		err     error
	}
	slots := make([]slot, total)

	indexes := make(chan int)
	var wg sync.WaitGroup
	var done int
	var doneMu sync.Mutex

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if ctx.Err() != nil {
					slots[i].err = ctx.Err()
					continue
				}
				out, warning, err := t.Transform(ctx, doc.Pages[i])
				slots[i] = slot{pages: out, warning: warning, err: err}

				doneMu.Lock()
				done++
				current := done
				doneMu.Unlock()
				if progress != nil {
					progress(current, total)
				}
			}
		}()
	}

	for i := 0; i < total; i++ {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Document: &pages.SourceDocument{
			ID:        doc.ID,
			Name:      doc.Name,
			Direction: doc.Direction,
		},
	}
	warningSeen := map[string]bool{}
	for i, s := range slots {
		if s.err != nil {
			result.Failed++
			t.logger.Warn("page transform failed",
				logging.String(logging.FieldDocument, doc.Name),
				logging.Int("page", i),
				logging.Error(s.err))
			continue
		}
		if s.warning != "" && !warningSeen[s.warning] {
			warningSeen[s.warning] = true
			result.Warnings = append(result.Warnings, s.warning)
		}
		result.Document.Pages = append(result.Document.Pages, s.pages...)
	}

	if len(result.Document.Pages) == 0 {
		return nil, services.Wrap(services.ErrValidation, "processing", "transform",
			fmt.Sprintf("no pages of %s could be processed", doc.Name), nil)
	}
	ratio := float64(result.Failed) / float64(total)
	if maxFailureRatio > 0 && ratio > maxFailureRatio {
		return nil, services.Wrap(services.ErrValidation, "processing", "transform",
			fmt.Sprintf("%d of %d pages of %s failed to process", result.Failed, total, doc.Name), nil)
	}
	if result.Failed > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d of %d pages of %s were skipped after decode failures", result.Failed, total, doc.Name))
	}
	return result, nil
}
