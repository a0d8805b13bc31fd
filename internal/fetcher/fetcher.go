// Package fetcher retrieves pages through pluggable strategies: plain HTTP,
// a rendered headless browser, or an auto-detecting combination of the two.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mfairouz/ariadne/internal/document"
)

// Fetcher is the capability every fetch strategy provides. Close releases
// held resources (connection pool or browser context) and is safe to call
// on any termination path, including cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*document.Document, error)
	Close() error
	Type() string
}

// Scroller is implemented by fetchers that can scroll the live page and
// return the re-rendered markup. Required for infinite-scroll pagination.
type Scroller interface {
	Scroll(ctx context.Context, wait time.Duration) (*document.Document, error)
}

// ErrorKind classifies fetch failures for retry decisions.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindHTTPStatus
	KindConnection
	KindBlocked
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindConnection:
		return "connection"
	case KindBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// FetchError describes a failed page fetch.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int // set when Kind is KindHTTPStatus
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the fetch can plausibly succeed:
// timeouts, connection resets, 5xx responses and 429 rate limiting. Client
// errors, blocks and DNS failures propagate immediately.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindConnection:
		var dnsErr *net.DNSError
		return !errors.As(e.Err, &dnsErr)
	case KindHTTPStatus:
		return e.StatusCode >= 500 || e.StatusCode == 429
	default:
		return false
	}
}
