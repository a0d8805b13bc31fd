// Package selector evaluates CSS and XPath expressions against parsed HTML
// nodes behind a single match/resolve contract.
package selector

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/mfairouz/ariadne/internal/config"
)

// Selector is a compiled selector expression. Compilation happens once, at
// job validation time; a compiled selector never fails to evaluate.
type Selector struct {
	Kind config.SelectorType
	Expr string

	css cascadia.SelectorGroup
	xp  *xpath.Expr
}

// Compile parses the expression for the given selector grammar. A malformed
// expression is a configuration error, not a runtime one.
func Compile(expr string, kind config.SelectorType) (*Selector, error) {
	s := &Selector{Kind: kind, Expr: expr}
	switch kind {
	case config.SelectorCSS:
		group, err := cascadia.ParseGroup(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid css selector %q: %w", expr, err)
		}
		s.css = group
	case config.SelectorXPath:
		compiled, err := xpath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath expression %q: %w", expr, err)
		}
		s.xp = compiled
	default:
		return nil, fmt.Errorf("unknown selector type %q", kind)
	}
	return s, nil
}

// MustCompile is a test helper; it panics on a malformed expression.
func MustCompile(expr string, kind config.SelectorType) *Selector {
	s, err := Compile(expr, kind)
	if err != nil {
		panic(err)
	}
	return s
}

// Match returns every node under root matched by the selector, in document
// order. The result is empty when nothing matches.
func (s *Selector) Match(root *html.Node) []*html.Node {
	if root == nil {
		return nil
	}
	switch s.Kind {
	case config.SelectorCSS:
		return cascadia.QueryAll(root, s.css)
	case config.SelectorXPath:
		return htmlquery.QuerySelectorAll(root, s.xp)
	}
	return nil
}

// MatchFirst returns the first matched node in document order, or nil.
func (s *Selector) MatchFirst(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	switch s.Kind {
	case config.SelectorCSS:
		return cascadia.Query(root, s.css)
	case config.SelectorXPath:
		return htmlquery.QuerySelector(root, s.xp)
	}
	return nil
}

// Value resolves an attribute rule against a matched node. Text yields the
// trimmed visible text, HTML the serialized inner markup; href, src and
// value read the respective node attributes and custom reads customAttr
// verbatim.
func Value(n *html.Node, attr config.AttributeType, customAttr string) string {
	if n == nil {
		return ""
	}
	switch attr {
	case config.AttributeText:
		return strings.TrimSpace(htmlquery.InnerText(n))
	case config.AttributeHTML:
		return innerHTML(n)
	case config.AttributeHref:
		return htmlquery.SelectAttr(n, "href")
	case config.AttributeSrc:
		return htmlquery.SelectAttr(n, "src")
	case config.AttributeValue:
		return formValue(n)
	case config.AttributeCustom:
		if customAttr == "" {
			return ""
		}
		return htmlquery.SelectAttr(n, customAttr)
	}
	return ""
}

// innerHTML serializes the children of n, mirroring the DOM innerHTML
// property.
func innerHTML(n *html.Node) string {
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		// Render only fails on unrenderable node types, which cannot
		// appear in a parsed document.
		_ = html.Render(&sb, child)
	}
	return sb.String()
}

// formValue reads a node's value with form semantics: textareas carry their
// value as text content, options fall back to their label text.
func formValue(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "textarea" {
		return htmlquery.InnerText(n)
	}
	for _, a := range n.Attr {
		if a.Key == "value" {
			return a.Val
		}
	}
	if n.Type == html.ElementNode && n.Data == "option" {
		return strings.TrimSpace(htmlquery.InnerText(n))
	}
	return ""
}
