// Package extractor applies item and field selectors to fetched documents,
// producing structured records plus warnings for dropped items.
package extractor

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/mfairouz/ariadne/internal/config"
	"github.com/mfairouz/ariadne/internal/document"
	"github.com/mfairouz/ariadne/internal/selector"
)

type compiledField struct {
	cfg config.FieldConfig
	sel *selector.Selector
}

// Extractor holds the compiled selectors for one job. All selector
// compilation happens here, before any network activity, so a malformed
// expression is a ConfigError rather than a mid-run failure.
type Extractor struct {
	item   *selector.Selector
	fields []compiledField
	logger *zap.Logger
}

// New compiles the job's selectors.
func New(job *config.JobConfig, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	item, err := selector.Compile(job.ItemSelector, job.ItemSelectorType)
	if err != nil {
		return nil, &config.ConfigError{Field: "item_selector", Reason: err.Error()}
	}

	fields := make([]compiledField, 0, len(job.Fields))
	for _, f := range job.Fields {
		sel, err := selector.Compile(f.Selector, f.SelectorType)
		if err != nil {
			return nil, &config.ConfigError{Field: "fields." + f.Name, Reason: err.Error()}
		}
		fields = append(fields, compiledField{cfg: f, sel: sel})
	}

	return &Extractor{item: item, fields: fields, logger: logger}, nil
}

// Extract pulls every record out of the document. It never fails for
// missing data: items missing a required field are dropped with a warning,
// optional fields fall back to their default value or an empty value. The
// empty value keeps its key in the record (documented behavior; the key is
// never omitted).
func (e *Extractor) Extract(doc *document.Document) ([]*Record, []string) {
	var warnings []string

	root, err := doc.Root()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("failed to parse page %s: %v", doc.URL, err))
		return nil, warnings
	}

	items := e.item.Match(root)
	if len(items) == 0 {
		e.logger.Debug("item selector matched nothing",
			zap.String("url", doc.URL), zap.String("selector", e.item.Expr))
		return nil, warnings
	}

	records := make([]*Record, 0, len(items))
	for i, item := range items {
		record, missing := e.extractItem(item)
		if missing != "" {
			warnings = append(warnings, fmt.Sprintf(
				"item %d dropped: required field %q not found", i, missing))
			continue
		}
		records = append(records, record)
	}
	return records, warnings
}

// extractItem builds one record from one item node. The second return value
// names the first required field with no value, which drops the record.
func (e *Extractor) extractItem(item *html.Node) (*Record, string) {
	record := NewRecord()
	for _, f := range e.fields {
		if f.cfg.Multiple {
			values := e.fieldValues(item, f)
			if len(values) == 0 {
				if f.cfg.Required {
					return nil, f.cfg.Name
				}
				if f.cfg.DefaultValue != "" {
					values = []string{f.cfg.DefaultValue}
				} else {
					values = []string{}
				}
			}
			record.Set(f.cfg.Name, values)
			continue
		}

		value, ok := e.fieldValue(item, f)
		if !ok {
			if f.cfg.Required {
				return nil, f.cfg.Name
			}
			value = f.cfg.DefaultValue
		}
		record.Set(f.cfg.Name, value)
	}
	return record, ""
}

// fieldValue resolves a single-valued field against the item node. A match
// that resolves to an empty string counts as missing, matching how an empty
// text node carries no datum.
func (e *Extractor) fieldValue(item *html.Node, f compiledField) (string, bool) {
	node := f.sel.MatchFirst(item)
	if node == nil {
		return "", false
	}
	value := selector.Value(node, f.cfg.Attribute, f.cfg.CustomAttribute)
	if value == "" {
		return "", false
	}
	return value, true
}

// fieldValues resolves a multi-valued field, in document order, skipping
// matches that resolve to nothing.
func (e *Extractor) fieldValues(item *html.Node, f compiledField) []string {
	nodes := f.sel.Match(item)
	values := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if v := selector.Value(node, f.cfg.Attribute, f.cfg.CustomAttribute); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// FieldPreview reports whether a field selector matched on a sample item.
type FieldPreview struct {
	Found  bool   `json:"found"`
	Sample string `json:"sample_value,omitempty"`
}

// Preview summarizes what the configured selectors would extract from a
// sample document, for dry-run job validation.
type Preview struct {
	ItemsFound int                     `json:"items_found"`
	Fields     map[string]FieldPreview `json:"fields"`
}

// Preview runs the item selector and each field selector against the first
// matched item without building full records.
func (e *Extractor) Preview(doc *document.Document) (*Preview, error) {
	root, err := doc.Root()
	if err != nil {
		return nil, err
	}

	items := e.item.Match(root)
	p := &Preview{ItemsFound: len(items), Fields: make(map[string]FieldPreview, len(e.fields))}
	if len(items) == 0 {
		return p, nil
	}

	first := items[0]
	for _, f := range e.fields {
		value, ok := e.fieldValue(first, f)
		p.Fields[f.cfg.Name] = FieldPreview{Found: ok, Sample: value}
	}
	return p, nil
}
