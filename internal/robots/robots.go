// Package robots gates fetches on the target site's robots.txt.
package robots

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const fetchTimeout = 10 * time.Second

// Gate checks URLs against cached per-domain robots.txt rules. The cache is
// populated once per domain and read concurrently afterwards. When the
// robots.txt fetch itself fails, the gate fails open: availability of the
// target is prioritized over completeness of compliance.
type Gate struct {
	client *http.Client
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData // keyed by scheme://host; nil = unavailable, allow all
}

// NewGate creates a gate with its own bounded-timeout HTTP client.
func NewGate(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch rawURL. Unparseable URLs are
// allowed; their failure surfaces later, in the fetcher.
func (g *Gate) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}
	data := g.robotsFor(ctx, parsed.Scheme+"://"+parsed.Host)
	if data == nil {
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.FindGroup(userAgent).Test(path)
}

// CrawlDelay returns the crawl-delay hint for the domain's cached ruleset,
// or zero when none was advertised or the domain has not been checked yet.
func (g *Gate) CrawlDelay(rawURL, userAgent string) time.Duration {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return 0
	}
	g.mu.RLock()
	data := g.cache[parsed.Scheme+"://"+parsed.Host]
	g.mu.RUnlock()
	if data == nil {
		return 0
	}
	return data.FindGroup(userAgent).CrawlDelay
}

// robotsFor returns the cached ruleset for a domain, fetching it on first
// use. A nil entry means robots.txt was unavailable and everything is
// allowed.
func (g *Gate) robotsFor(ctx context.Context, domain string) *robotstxt.RobotsData {
	g.mu.RLock()
	data, ok := g.cache[domain]
	g.mu.RUnlock()
	if ok {
		return data
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if data, ok := g.cache[domain]; ok {
		return data
	}

	data = g.fetch(ctx, domain)
	g.cache[domain] = data
	return data
}

func (g *Gate) fetch(ctx context.Context, domain string) *robotstxt.RobotsData {
	robotsURL := domain + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		g.logger.Warn("robots.txt request could not be built, failing open",
			zap.String("url", robotsURL), zap.Error(err))
		return nil
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("robots.txt fetch failed, failing open",
			zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	// robotstxt treats 5xx as disallow-all; a broken robots endpoint
	// should not block the run.
	if resp.StatusCode >= 500 {
		g.logger.Warn("robots.txt returned a server error, failing open",
			zap.String("url", robotsURL), zap.Int("status", resp.StatusCode))
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		g.logger.Warn("robots.txt parse failed, failing open",
			zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	return data
}
