package fetcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mfairouz/ariadne/internal/document"
)

// shellThreshold is the markup size below which a response is assumed to be
// a script-rendered application shell.
const shellThreshold = 500

// Auto tries the static fetcher first and falls back to the dynamic one
// when the page looks script-rendered. The fallback decision is sticky: one
// shell page is enough evidence that the whole site needs rendering, so the
// rest of the run goes straight to the browser.
type Auto struct {
	static  Fetcher
	dynamic Fetcher
	logger  *zap.Logger

	mu         sync.Mutex
	useDynamic bool
}

// NewAuto composes the two strategies. Passing scriptHint true skips the
// static attempt entirely, for jobs known to target script-heavy sites.
func NewAuto(static, dynamic Fetcher, scriptHint bool, logger *zap.Logger) *Auto {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auto{
		static:     static,
		dynamic:    dynamic,
		logger:     logger,
		useDynamic: scriptHint,
	}
}

// Fetch delegates to the chosen strategy.
func (a *Auto) Fetch(ctx context.Context, url string) (*document.Document, error) {
	a.mu.Lock()
	dynamic := a.useDynamic
	a.mu.Unlock()

	if dynamic {
		return a.dynamic.Fetch(ctx, url)
	}

	doc, err := a.static.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if !needsRendering(doc) {
		return doc, nil
	}

	a.logger.Info("page appears script-rendered, switching to browser fetching for the rest of the run",
		zap.String("url", url), zap.Int("bytes", doc.Len()))
	a.mu.Lock()
	a.useDynamic = true
	a.mu.Unlock()
	return a.dynamic.Fetch(ctx, url)
}

var errNoScroll = errors.New("dynamic delegate does not support scrolling")

// Scroll is forwarded to the dynamic delegate when it supports scrolling.
func (a *Auto) Scroll(ctx context.Context, wait time.Duration) (*document.Document, error) {
	if s, ok := a.dynamic.(Scroller); ok {
		return s.Scroll(ctx, wait)
	}
	return nil, errNoScroll
}

// Close releases both delegates. The first error wins; both always run.
func (a *Auto) Close() error {
	errStatic := a.static.Close()
	errDynamic := a.dynamic.Close()
	if errStatic != nil {
		return errStatic
	}
	return errDynamic
}

func (a *Auto) Type() string { return "auto" }

// needsRendering decides whether a statically fetched document is an SPA
// shell that requires script execution to show its content. Heuristics
// follow what SPA frameworks actually emit: a near-empty body or a bare
// root mount element.
func needsRendering(doc *document.Document) bool {
	if doc.Len() < shellThreshold {
		return true
	}
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		return false
	}
	for _, sel := range []string{"#root", "#app", "[data-reactroot]", "#__next", "#__nuxt"} {
		mount := gq.Find(sel).First()
		if mount.Length() > 0 && strings.TrimSpace(mount.Text()) == "" {
			return true
		}
	}
	return false
}
