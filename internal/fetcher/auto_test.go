package fetcher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfairouz/ariadne/internal/document"
)

type fakeFetcher struct {
	kind   string
	html   string
	err    error
	calls  int
	closed bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*document.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return document.New(url, f.html, 200), nil
}

func (f *fakeFetcher) Close() error { f.closed = true; return nil }
func (f *fakeFetcher) Type() string { return f.kind }

// fullPage is large enough that the shell heuristic does not fire.
var fullPage = "<html><body>" + strings.Repeat("<p>real server-rendered content</p>", 30) + "</body></html>"

const shellPage = `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`

func TestAutoStaysStaticForRenderedPages(t *testing.T) {
	static := &fakeFetcher{kind: "static", html: fullPage}
	dynamic := &fakeFetcher{kind: "dynamic", html: fullPage}
	a := NewAuto(static, dynamic, false, nil)

	_, err := a.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, static.calls)
	assert.Equal(t, 0, dynamic.calls)
}

func TestAutoFallsBackOnShellPageAndSticks(t *testing.T) {
	static := &fakeFetcher{kind: "static", html: shellPage}
	dynamic := &fakeFetcher{kind: "dynamic", html: fullPage}
	a := NewAuto(static, dynamic, false, nil)

	doc, err := a.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, fullPage, doc.HTML)
	assert.Equal(t, 1, static.calls)
	assert.Equal(t, 1, dynamic.calls)

	// The decision is sticky: subsequent fetches skip the static attempt.
	_, err = a.Fetch(context.Background(), "https://example.com/page/2")
	require.NoError(t, err)
	assert.Equal(t, 1, static.calls)
	assert.Equal(t, 2, dynamic.calls)
}

func TestAutoScriptHintSkipsStaticEntirely(t *testing.T) {
	static := &fakeFetcher{kind: "static", html: fullPage}
	dynamic := &fakeFetcher{kind: "dynamic", html: fullPage}
	a := NewAuto(static, dynamic, true, nil)

	_, err := a.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, static.calls)
	assert.Equal(t, 1, dynamic.calls)
}

func TestAutoPropagatesStaticErrors(t *testing.T) {
	static := &fakeFetcher{kind: "static", err: &FetchError{Kind: KindHTTPStatus, StatusCode: 500}}
	dynamic := &fakeFetcher{kind: "dynamic", html: fullPage}
	a := NewAuto(static, dynamic, false, nil)

	_, err := a.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Equal(t, 0, dynamic.calls, "transport errors must not trigger the rendering fallback")
}

func TestAutoCloseClosesBothDelegates(t *testing.T) {
	static := &fakeFetcher{kind: "static", html: fullPage}
	dynamic := &fakeFetcher{kind: "dynamic", html: fullPage}
	a := NewAuto(static, dynamic, false, nil)

	require.NoError(t, a.Close())
	assert.True(t, static.closed)
	assert.True(t, dynamic.closed)
}

func TestAutoScrollWithoutScrollerDelegate(t *testing.T) {
	a := NewAuto(&fakeFetcher{kind: "static"}, &fakeFetcher{kind: "dynamic"}, false, nil)
	_, err := a.Scroll(context.Background(), 10*time.Millisecond)
	assert.Error(t, err)
}

func TestNeedsRendering(t *testing.T) {
	assert.True(t, needsRendering(document.New("u", "<html></html>", 200)))
	assert.True(t, needsRendering(document.New("u", shellPage+strings.Repeat(" ", 600), 200)))
	assert.False(t, needsRendering(document.New("u", fullPage, 200)))
}
