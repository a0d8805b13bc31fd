package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mfairouz/ariadne/internal/document"
)

const maxBodyBytes = 10 << 20 // 10 MiB guard against runaway responses

// Static fetches pages with a plain HTTP GET. It is the fastest strategy
// but cannot execute page scripts.
type Static struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewStatic creates a static fetcher with a pooled transport. The user
// agent is sent as-is; the fetcher never impersonates a browser.
func NewStatic(userAgent string, timeout time.Duration, logger *zap.Logger) *Static {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Static{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch issues the GET and wraps failures in FetchError kinds so the retry
// policy can classify them.
func (s *Static) Fetch(ctx context.Context, url string) (*document.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindConnection, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) // drain for connection reuse
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			return nil, &FetchError{Kind: KindBlocked, URL: url, StatusCode: resp.StatusCode}
		}
		return nil, &FetchError{Kind: KindHTTPStatus, URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransportError(url, err)
	}

	s.logger.Debug("static fetch completed",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return document.New(finalURL, string(body), resp.StatusCode), nil
}

// Close releases idle pooled connections. Safe to call more than once.
func (s *Static) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Static) Type() string { return "static" }

// classifyTransportError maps transport failures onto FetchError kinds.
// Timeouts and context deadlines are retryable as KindTimeout; everything
// else at this layer is a connection-level failure.
func classifyTransportError(url string, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindConnection, URL: url, Err: err}
}
