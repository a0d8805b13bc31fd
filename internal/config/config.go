package config

import (
	"fmt"
	"strings"
	"time"
)

// SelectorType identifies the selector grammar used by an expression.
type SelectorType string

const (
	SelectorCSS   SelectorType = "css"
	SelectorXPath SelectorType = "xpath"
)

// AttributeType identifies which value to pull from a matched element.
type AttributeType string

const (
	AttributeText   AttributeType = "text"
	AttributeHTML   AttributeType = "html"
	AttributeHref   AttributeType = "href"
	AttributeSrc    AttributeType = "src"
	AttributeValue  AttributeType = "value"
	AttributeCustom AttributeType = "custom"
)

// PaginationType selects the strategy used to move between pages.
type PaginationType string

const (
	PaginationNone           PaginationType = "none"
	PaginationNextButton     PaginationType = "next_button"
	PaginationURLPattern     PaginationType = "url_pattern"
	PaginationInfiniteScroll PaginationType = "infinite_scroll"
)

// FetcherType selects which fetch strategy the job uses.
type FetcherType string

const (
	FetcherAuto    FetcherType = "auto"
	FetcherStatic  FetcherType = "static"
	FetcherDynamic FetcherType = "dynamic"
)

// WaitCondition controls how long the dynamic fetcher waits before reading
// the rendered markup.
type WaitCondition string

const (
	WaitLoad        WaitCondition = "load"
	WaitDOMReady    WaitCondition = "domready"
	WaitNetworkIdle WaitCondition = "networkidle"
)

// PagePlaceholder is the token substituted with the page index in
// URL-pattern pagination templates.
const PagePlaceholder = "{page}"

// ConfigError reports an invalid job configuration. It is always raised
// before any network activity.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid job config: " + e.Reason
	}
	return fmt.Sprintf("invalid job config: %s: %s", e.Field, e.Reason)
}

// FieldConfig describes one named datum extracted from each item node.
type FieldConfig struct {
	Name            string        `json:"name" yaml:"name" mapstructure:"name"`
	Selector        string        `json:"selector" yaml:"selector" mapstructure:"selector"`
	SelectorType    SelectorType  `json:"selector_type,omitempty" yaml:"selector_type,omitempty" mapstructure:"selector_type"`
	Attribute       AttributeType `json:"attribute,omitempty" yaml:"attribute,omitempty" mapstructure:"attribute"`
	CustomAttribute string        `json:"custom_attribute,omitempty" yaml:"custom_attribute,omitempty" mapstructure:"custom_attribute"`
	Multiple        bool          `json:"multiple,omitempty" yaml:"multiple,omitempty" mapstructure:"multiple"`
	Required        bool          `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	DefaultValue    string        `json:"default_value,omitempty" yaml:"default_value,omitempty" mapstructure:"default_value"`
}

// PaginationConfig describes how the job walks from page to page.
type PaginationConfig struct {
	Type               PaginationType `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	NextButtonSelector string         `json:"next_button_selector,omitempty" yaml:"next_button_selector,omitempty" mapstructure:"next_button_selector"`
	URLPattern         string         `json:"url_pattern,omitempty" yaml:"url_pattern,omitempty" mapstructure:"url_pattern"`
	MaxScrolls         int            `json:"max_scrolls,omitempty" yaml:"max_scrolls,omitempty" mapstructure:"max_scrolls"`
	ScrollWait         time.Duration  `json:"scroll_wait,omitempty" yaml:"scroll_wait,omitempty" mapstructure:"scroll_wait"`
}

// JobConfig is the complete, externally supplied configuration for one
// scrape run. It is read-only for the run's duration.
type JobConfig struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	StartURL string `json:"start_url" yaml:"start_url" mapstructure:"start_url"`

	ItemSelector     string        `json:"item_selector" yaml:"item_selector" mapstructure:"item_selector"`
	ItemSelectorType SelectorType  `json:"item_selector_type,omitempty" yaml:"item_selector_type,omitempty" mapstructure:"item_selector_type"`
	Fields           []FieldConfig `json:"fields" yaml:"fields" mapstructure:"fields"`

	Pagination PaginationConfig `json:"pagination,omitempty" yaml:"pagination,omitempty" mapstructure:"pagination"`

	MaxPages int `json:"max_pages,omitempty" yaml:"max_pages,omitempty" mapstructure:"max_pages"`
	MaxItems int `json:"max_items,omitempty" yaml:"max_items,omitempty" mapstructure:"max_items"`

	FetcherType   FetcherType   `json:"fetcher_type,omitempty" yaml:"fetcher_type,omitempty" mapstructure:"fetcher_type"`
	WaitCondition WaitCondition `json:"wait_condition,omitempty" yaml:"wait_condition,omitempty" mapstructure:"wait_condition"`
	UserAgent     string        `json:"user_agent,omitempty" yaml:"user_agent,omitempty" mapstructure:"user_agent"`
	Timeout       time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	RetryAttempts int           `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty" mapstructure:"retry_attempts"`

	MinDelay           time.Duration `json:"min_delay,omitempty" yaml:"min_delay,omitempty" mapstructure:"min_delay"`
	MaxDelay           time.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty" mapstructure:"max_delay"`
	ConcurrentRequests int           `json:"concurrent_requests,omitempty" yaml:"concurrent_requests,omitempty" mapstructure:"concurrent_requests"`
	RespectRobotsTxt   bool          `json:"respect_robots_txt,omitempty" yaml:"respect_robots_txt,omitempty" mapstructure:"respect_robots_txt"`
}

// DefaultUserAgent identifies the scraper honestly instead of impersonating
// a browser.
const DefaultUserAgent = "ariadne/1.0 (+https://github.com/mfairouz/ariadne)"

// ApplyDefaults fills in zero values with sensible defaults. Validate
// assumes defaults have been applied.
func (c *JobConfig) ApplyDefaults() {
	if c.ItemSelectorType == "" {
		c.ItemSelectorType = SelectorCSS
	}
	for i := range c.Fields {
		if c.Fields[i].SelectorType == "" {
			c.Fields[i].SelectorType = SelectorCSS
		}
		if c.Fields[i].Attribute == "" {
			c.Fields[i].Attribute = AttributeText
		}
	}
	if c.Pagination.Type == "" {
		c.Pagination.Type = PaginationNone
	}
	if c.Pagination.MaxScrolls == 0 {
		c.Pagination.MaxScrolls = 10
	}
	if c.Pagination.ScrollWait == 0 {
		c.Pagination.ScrollWait = time.Second
	}
	if c.MaxPages == 0 {
		c.MaxPages = 1
	}
	if c.FetcherType == "" {
		c.FetcherType = FetcherAuto
	}
	if c.WaitCondition == "" {
		c.WaitCondition = WaitDOMReady
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.MinDelay == 0 {
		c.MinDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 3 * time.Second
	}
	if c.ConcurrentRequests == 0 {
		c.ConcurrentRequests = 1
	}
}

// Validate checks the structural invariants of the job. Selector syntax is
// checked separately by the engine's pre-run validation pass, which compiles
// every expression.
func (c *JobConfig) Validate() error {
	if !strings.HasPrefix(c.StartURL, "http://") && !strings.HasPrefix(c.StartURL, "https://") {
		return &ConfigError{Field: "start_url", Reason: "must start with http:// or https://"}
	}
	if c.ItemSelector == "" {
		return &ConfigError{Field: "item_selector", Reason: "must not be empty"}
	}
	if len(c.Fields) == 0 {
		return &ConfigError{Field: "fields", Reason: "at least one field is required"}
	}

	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if f.Name == "" {
			return &ConfigError{Field: "fields", Reason: "field name must not be empty"}
		}
		if seen[f.Name] {
			return &ConfigError{Field: "fields." + f.Name, Reason: "duplicate field name"}
		}
		seen[f.Name] = true
		if f.Selector == "" {
			return &ConfigError{Field: "fields." + f.Name, Reason: "selector must not be empty"}
		}
		if f.Attribute == AttributeCustom && f.CustomAttribute == "" {
			return &ConfigError{Field: "fields." + f.Name, Reason: "custom_attribute required when attribute is custom"}
		}
		if f.Attribute != AttributeCustom && f.CustomAttribute != "" {
			return &ConfigError{Field: "fields." + f.Name, Reason: "custom_attribute only valid when attribute is custom"}
		}
	}

	switch c.Pagination.Type {
	case PaginationNone:
	case PaginationNextButton:
		if c.Pagination.NextButtonSelector == "" {
			return &ConfigError{Field: "pagination.next_button_selector", Reason: "required for next_button pagination"}
		}
	case PaginationURLPattern:
		if !strings.Contains(c.Pagination.URLPattern, PagePlaceholder) {
			return &ConfigError{Field: "pagination.url_pattern", Reason: "must contain the " + PagePlaceholder + " placeholder"}
		}
	case PaginationInfiniteScroll:
		if c.FetcherType == FetcherStatic {
			return &ConfigError{Field: "pagination.type", Reason: "infinite_scroll requires a dynamic fetcher"}
		}
		if c.Pagination.MaxScrolls < 1 {
			return &ConfigError{Field: "pagination.max_scrolls", Reason: "must be >= 1"}
		}
	default:
		return &ConfigError{Field: "pagination.type", Reason: fmt.Sprintf("unknown pagination type %q", c.Pagination.Type)}
	}

	if c.MaxPages < 1 {
		return &ConfigError{Field: "max_pages", Reason: "must be >= 1"}
	}
	if c.MaxItems < 0 {
		return &ConfigError{Field: "max_items", Reason: "must be >= 0"}
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return &ConfigError{Field: "min_delay", Reason: "delays must not be negative"}
	}
	if c.MaxDelay < c.MinDelay {
		return &ConfigError{Field: "max_delay", Reason: "must be >= min_delay"}
	}
	if c.ConcurrentRequests < 1 {
		return &ConfigError{Field: "concurrent_requests", Reason: "must be >= 1"}
	}

	switch c.FetcherType {
	case FetcherAuto, FetcherStatic, FetcherDynamic:
	default:
		return &ConfigError{Field: "fetcher_type", Reason: fmt.Sprintf("unknown fetcher type %q", c.FetcherType)}
	}
	switch c.WaitCondition {
	case WaitLoad, WaitDOMReady, WaitNetworkIdle:
	default:
		return &ConfigError{Field: "wait_condition", Reason: fmt.Sprintf("unknown wait condition %q", c.WaitCondition)}
	}

	return nil
}
