// Package pagination decides, page by page, whether a run continues and
// where it goes next. Every strategy is bounded by hard page/scroll
// ceilings and a visited-URL cycle guard.
package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mfairouz/ariadne/internal/config"
	"github.com/mfairouz/ariadne/internal/document"
	"github.com/mfairouz/ariadne/internal/selector"
)

// ActionKind discriminates the controller's verdicts.
type ActionKind int

const (
	// ActionContinue means fetch Action.URL next.
	ActionContinue ActionKind = iota
	// ActionScroll means scroll the live page and re-extract.
	ActionScroll
	// ActionStop ends the run with Action.Reason.
	ActionStop
)

// Action is the controller's verdict after one page.
type Action struct {
	Kind   ActionKind
	URL    string
	Reason string
}

// Stop reasons. These are normal, named termination outcomes recorded in
// the run result, not errors.
const (
	StopSinglePage        = "single-page"
	StopNoNextLink        = "no-next-link"
	StopCycleDetected     = "cycle-detected"
	StopEmptyPage         = "empty-page"
	StopMaxPagesReached   = "max-pages-reached"
	StopMaxItemsReached   = "max-items-reached"
	StopNoNewItems        = "no-new-items"
	StopMaxScrollsReached = "max-scrolls-reached"
)

func stop(reason string) Action  { return Action{Kind: ActionStop, Reason: reason} }
func continueTo(u string) Action { return Action{Kind: ActionContinue, URL: u} }

// Controller is the pagination state machine for one run.
type Controller struct {
	cfg      config.PaginationConfig
	startURL string
	maxPages int
	maxItems int
	logger   *zap.Logger

	nextSel *selector.Selector // compiled next-button selector, when applicable

	visited   map[string]bool
	page      int
	scrolls   int
	lastCount int
	scrolled  bool
}

// New compiles the strategy's selector (a malformed one is a ConfigError)
// and seeds the cycle guard with the start URL.
func New(job *config.JobConfig, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cfg:      job.Pagination,
		startURL: job.StartURL,
		maxPages: job.MaxPages,
		maxItems: job.MaxItems,
		logger:   logger,
		visited:  map[string]bool{job.StartURL: true},
		page:     1,
	}

	if job.Pagination.Type == config.PaginationNextButton {
		sel, err := selector.Compile(job.Pagination.NextButtonSelector, config.SelectorCSS)
		if err != nil {
			return nil, &config.ConfigError{Field: "pagination.next_button_selector", Reason: err.Error()}
		}
		c.nextSel = sel
	}
	return c, nil
}

// Page returns the 1-based index of the page currently being processed.
func (c *Controller) Page() int { return c.page }

// Next inspects the just-extracted document and decides the run's next
// move. itemsOnPage is the record count extracted from doc; totalItems is
// the cumulative count across the run.
func (c *Controller) Next(doc *document.Document, itemsOnPage, totalItems int) Action {
	if c.maxItems > 0 && totalItems >= c.maxItems {
		return stop(StopMaxItemsReached)
	}

	switch c.cfg.Type {
	case config.PaginationNone:
		return stop(StopSinglePage)
	case config.PaginationNextButton:
		return c.nextButton(doc)
	case config.PaginationURLPattern:
		return c.urlPattern(itemsOnPage)
	case config.PaginationInfiniteScroll:
		return c.infiniteScroll(itemsOnPage)
	}
	return stop(StopSinglePage)
}

// nextButton follows the link resolved by the next-button selector,
// stopping when it disappears or points back at a visited page.
func (c *Controller) nextButton(doc *document.Document) Action {
	if c.page >= c.maxPages {
		return stop(StopMaxPagesReached)
	}

	root, err := doc.Root()
	if err != nil {
		return stop(StopNoNextLink)
	}
	node := c.nextSel.MatchFirst(root)
	if node == nil {
		return stop(StopNoNextLink)
	}

	href := selector.Value(node, config.AttributeHref, "")
	if href == "" {
		// The selector may have matched a wrapper around the anchor.
		if anchor := selector.MustCompile("a[href]", config.SelectorCSS).MatchFirst(node); anchor != nil {
			href = selector.Value(anchor, config.AttributeHref, "")
		}
	}
	if href == "" {
		return stop(StopNoNextLink)
	}

	next := resolveURL(doc.URL, href)
	if c.visited[next] {
		c.logger.Warn("pagination cycle detected", zap.String("url", next))
		return stop(StopCycleDetected)
	}
	c.visited[next] = true
	c.page++
	return continueTo(next)
}

// urlPattern substitutes the next page index into the configured template.
// A page that yielded nothing ends the walk: patterns can generate URLs far
// past the real last page.
func (c *Controller) urlPattern(itemsOnPage int) Action {
	if itemsOnPage == 0 {
		return stop(StopEmptyPage)
	}
	if c.page >= c.maxPages {
		return stop(StopMaxPagesReached)
	}

	c.page++
	part := strings.ReplaceAll(c.cfg.URLPattern, config.PagePlaceholder, strconv.Itoa(c.page))

	var next string
	if strings.Contains(part, "://") {
		next = part
	} else {
		base := c.startURL
		if i := strings.IndexByte(base, '?'); i >= 0 {
			base = base[:i]
		}
		next = base + part
	}

	if c.visited[next] {
		return stop(StopCycleDetected)
	}
	c.visited[next] = true
	return continueTo(next)
}

// infiniteScroll keeps scrolling while each round surfaces new items.
// itemsOnPage here is the full re-extracted count of the rendered page.
func (c *Controller) infiniteScroll(itemsOnPage int) Action {
	if c.scrolled && itemsOnPage <= c.lastCount {
		return stop(StopNoNewItems)
	}
	if c.scrolls >= c.cfg.MaxScrolls {
		return stop(StopMaxScrollsReached)
	}
	c.lastCount = itemsOnPage
	c.scrolls++
	c.scrolled = true
	return Action{Kind: ActionScroll}
}

// resolveURL makes href absolute against the page that contained it.
func resolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
