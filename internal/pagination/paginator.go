// Package pagination computes where a rendered screenplay must break into
// fixed-height pages. The unit of breaking is a whole element; elements are
// never split.
package pagination

import (
	"sync"
	"sync/atomic"

	"github.com/Corphon/ScreenplayStudio/internal/models"
)

// ComputePageBreaks walks elements in order and returns the indices at which
// a new page begins. An element that would overflow the current page starts
// the next one; an element taller than the budget sits alone on its page.
// The first element always starts page 1, so index 0 is never a break.
func ComputePageBreaks(elements []models.RenderedElement, budget float64) models.PageBreakSet {
	breaks := models.PageBreakSet{}
	var running float64

	for i, el := range elements {
		h := el.Height
		if h < 0 {
			h = 0
		}
		if i > 0 && running+h > budget {
			breaks = append(breaks, i)
			running = h
			continue
		}
		running += h
	}
	return breaks
}

// PageCount is the number of pages a break set describes.
func PageCount(breaks models.PageBreakSet) int {
	return len(breaks) + 1
}

// PageNumberAt returns the 1-based page holding the element at index.
func PageNumberAt(breaks models.PageBreakSet, index int) int {
	page := 1
	for _, b := range breaks {
		if index < b {
			break
		}
		page++
	}
	return page
}

// StartingPage reports the page number that starts at element index, if any.
// The page beginning at breaks[k] is page k+2.
func StartingPage(breaks models.PageBreakSet, index int) (int, bool) {
	for k, b := range breaks {
		if b == index {
			return k + 2, true
		}
	}
	return 0, false
}

// Split groups elements into pages according to breaks.
func Split(elements []models.RenderedElement, breaks models.PageBreakSet) [][]models.RenderedElement {
	if len(elements) == 0 {
		return nil
	}
	pages := make([][]models.RenderedElement, 0, PageCount(breaks))
	start := 0
	for _, b := range breaks {
		if b <= start || b > len(elements) {
			continue
		}
		pages = append(pages, elements[start:b])
		start = b
	}
	return append(pages, elements[start:])
}

// Result is one full pagination pass.
type Result struct {
	Generation uint64              `json:"generation"`
	Budget     float64             `json:"budget"`
	Breaks     models.PageBreakSet `json:"breaks"`
	PageCount  int                 `json:"page_count"`
	Elements   int                 `json:"elements"`
}

// Paginator keeps the latest pagination of one document. Every Recompute
// starts from scratch; when calls overlap the highest generation wins.
type Paginator struct {
	generation atomic.Uint64
	mu         sync.Mutex
	latest     *Result
}

// NewPaginator returns a paginator with an empty, single-page result.
func NewPaginator() *Paginator {
	return &Paginator{latest: &Result{Breaks: models.PageBreakSet{}, PageCount: 1}}
}

// Recompute paginates elements against layout and publishes the result
// unless a newer recompute already published.
func (p *Paginator) Recompute(elements []models.RenderedElement, layout models.PageLayout) Result {
	gen := p.generation.Add(1)
	budget := layout.HeightBudget()
	breaks := ComputePageBreaks(elements, budget)

	res := &Result{
		Generation: gen,
		Budget:     budget,
		Breaks:     breaks,
		PageCount:  PageCount(breaks),
		Elements:   len(elements),
	}

	p.mu.Lock()
	if p.latest == nil || p.latest.Generation < gen {
		p.latest = res
	}
	p.mu.Unlock()

	return *res
}

// Latest returns the most recently published result.
func (p *Paginator) Latest() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := *p.latest
	res.Breaks = append(models.PageBreakSet{}, p.latest.Breaks...)
	return res
}
