package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mfairouz/ariadne/internal/config"
	"github.com/mfairouz/ariadne/internal/document"
)

// networkIdleSettle approximates the network-idle readiness condition: one
// settle pause after the load event, long enough for XHR-driven rendering
// on typical pages.
const networkIdleSettle = 2 * time.Second

// Dynamic drives a headless browser and returns the rendered markup. It is
// the slow strategy, required for script-rendered content.
type Dynamic struct {
	userAgent string
	timeout   time.Duration
	waitCond  config.WaitCondition
	keepPage  bool
	logger    *zap.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	// live tab, only retained when keepPage is set (infinite scroll)
	pageCtx    context.Context
	pageCancel context.CancelFunc
	pageURL    string

	closed bool
}

// DynamicOption configures a Dynamic fetcher.
type DynamicOption func(*Dynamic)

// WithKeepPage keeps the last fetched tab open so Scroll can re-render it.
// The previous tab is always closed first, so at most one tab is ever live.
func WithKeepPage() DynamicOption {
	return func(d *Dynamic) { d.keepPage = true }
}

// NewDynamic creates a browser-backed fetcher. The browser process starts
// lazily on the first fetch.
func NewDynamic(userAgent string, timeout time.Duration, waitCond config.WaitCondition, logger *zap.Logger, opts ...DynamicOption) *Dynamic {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dynamic{
		userAgent: userAgent,
		timeout:   timeout,
		waitCond:  waitCond,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ensureBrowser starts the shared allocator and browser context once.
// Callers must hold d.mu.
func (d *Dynamic) ensureBrowser() error {
	if d.closed {
		return errors.New("fetcher is closed")
	}
	if d.browserCtx != nil {
		return nil
	}

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(d.userAgent),
	)
	d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
	d.browserCtx, d.browserStop = chromedp.NewContext(d.allocCtx)

	// First Run starts the browser process; doing it here keeps startup
	// failures out of per-page error handling.
	if err := chromedp.Run(d.browserCtx); err != nil {
		d.browserStop()
		d.allocCancel()
		d.browserCtx, d.allocCtx = nil, nil
		return fmt.Errorf("browser startup failed: %w", err)
	}
	return nil
}

// Fetch navigates a fresh tab to the URL, waits for the configured
// readiness condition and returns the rendered markup. Unless the fetcher
// keeps pages for scrolling, the tab is closed before returning so memory
// stays bounded across a long run.
func (d *Dynamic) Fetch(ctx context.Context, url string) (*document.Document, error) {
	d.mu.Lock()
	if err := d.ensureBrowser(); err != nil {
		d.mu.Unlock()
		return nil, &FetchError{Kind: KindConnection, URL: url, Err: err}
	}
	d.closeTabLocked()
	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx)
	d.mu.Unlock()

	keep := false
	defer func() {
		if !keep {
			tabCancel()
		}
	}()

	runCtx, cancel := context.WithTimeout(tabCtx, d.timeout)
	defer cancel()

	html, err := d.render(runCtx, url)
	if err != nil {
		return nil, d.classify(ctx, url, err)
	}

	if d.keepPage {
		d.mu.Lock()
		if !d.closed {
			d.pageCtx, d.pageCancel, d.pageURL = tabCtx, tabCancel, url
			keep = true
		}
		d.mu.Unlock()
	}
	return document.New(url, html, 200), nil
}

// render performs navigation and readiness waiting inside one tab.
func (d *Dynamic) render(ctx context.Context, url string) (string, error) {
	// Raw CDP navigation, so the only deadline in play is our own; the
	// chromedp.Navigate helper carries an internal page-load timeout.
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("navigation error: %s", errorText)
		}
		return nil
	}))
	if err != nil {
		return "", err
	}

	switch d.waitCond {
	case config.WaitLoad:
		// page.Navigate resolves on commit; the markup read below is
		// whatever has loaded by then.
	case config.WaitDOMReady:
		if err := chromedp.Run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
			return "", err
		}
	case config.WaitNetworkIdle:
		if err := chromedp.Run(ctx,
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(networkIdleSettle),
		); err != nil {
			return "", err
		}
	}

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	return html, nil
}

// Scroll scrolls the retained page to the bottom, waits for new content and
// returns the re-rendered markup. Only available after a Fetch on a fetcher
// constructed with WithKeepPage.
func (d *Dynamic) Scroll(ctx context.Context, wait time.Duration) (*document.Document, error) {
	d.mu.Lock()
	pageCtx, url := d.pageCtx, d.pageURL
	d.mu.Unlock()
	if pageCtx == nil {
		return nil, errors.New("no live page to scroll; fetch a page first")
	}

	runCtx, cancel := context.WithTimeout(pageCtx, d.timeout)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil),
		chromedp.Sleep(wait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, d.classify(ctx, url, err)
	}
	return document.New(url, html, 200), nil
}

// classify wraps browser errors as FetchErrors. Deadline hits are timeouts;
// a cancelled parent context passes through so the engine can distinguish
// cancellation from failure.
func (d *Dynamic) classify(parent context.Context, url string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindConnection, URL: url, Err: err}
}

// closeTabLocked closes the retained tab, if any. Callers must hold d.mu.
func (d *Dynamic) closeTabLocked() {
	if d.pageCancel != nil {
		d.pageCancel()
		d.pageCtx, d.pageCancel, d.pageURL = nil, nil, ""
	}
}

// Close shuts the browser down. Idempotent, and also the interruption path
// for stuck navigations: cancelling the browser context aborts any
// in-flight CDP call.
func (d *Dynamic) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.closeTabLocked()
	if d.browserStop != nil {
		d.browserStop()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}

func (d *Dynamic) Type() string { return "dynamic" }
