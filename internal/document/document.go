// Package document wraps a fetched page so its parse tree is built at most
// once and shared between extraction and pagination.
package document

import (
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is one fetched page: the owning URL, the raw markup and a
// lazily-built parse tree.
type Document struct {
	URL        string
	HTML       string
	StatusCode int
	FetchedAt  time.Time

	once sync.Once
	root *html.Node
	err  error
}

// New creates a document around raw markup.
func New(url, rawHTML string, statusCode int) *Document {
	return &Document{
		URL:        url,
		HTML:       rawHTML,
		StatusCode: statusCode,
		FetchedAt:  time.Now(),
	}
}

// Root returns the parsed document root, building it on first use. The
// html package's parser is error-tolerant, so parse failures only occur on
// pathological input.
func (d *Document) Root() (*html.Node, error) {
	d.once.Do(func() {
		d.root, d.err = htmlquery.Parse(strings.NewReader(d.HTML))
	})
	return d.root, d.err
}

// Len reports the raw markup size in bytes.
func (d *Document) Len() int {
	return len(d.HTML)
}
