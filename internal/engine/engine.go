// Package engine runs scrape jobs end to end: validate, check robots,
// then loop fetch, extract, paginate until a stop condition fires.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mfairouz/ariadne/internal/config"
	"github.com/mfairouz/ariadne/internal/document"
	"github.com/mfairouz/ariadne/internal/extractor"
	"github.com/mfairouz/ariadne/internal/fetcher"
	"github.com/mfairouz/ariadne/internal/metrics"
	"github.com/mfairouz/ariadne/internal/pagination"
	"github.com/mfairouz/ariadne/internal/ratelimit"
	"github.com/mfairouz/ariadne/internal/resilience"
	"github.com/mfairouz/ariadne/internal/robots"
	"github.com/mfairouz/ariadne/internal/sink"
)

// Circuit breaker tuning for a single run. Five consecutive failures trip
// the breaker; it probes again after the recovery window.
const (
	breakerThreshold = 5
	breakerRecovery  = 30 * time.Second
)

// Terminal reasons for runs that never reach pagination.
const (
	ReasonInvalidConfig    = "invalid-config"
	ReasonRobotsDisallowed = "robots-disallowed"
	ReasonFetchFailed      = "fetch-failed"
	ReasonCancelled        = "cancelled"
)

// Engine executes one job. It is not reusable across runs.
type Engine struct {
	job     *config.JobConfig
	logger  *zap.Logger
	metrics *metrics.Collector

	progress sink.ProgressFunc
	dispatch *sink.Async
	gate     *robots.Gate
	fetch    fetcher.Fetcher // injected for tests; built from config when nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches a Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithProgress attaches a progress event callback.
func WithProgress(fn sink.ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithFetcher overrides the config-driven fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(e *Engine) { e.fetch = f }
}

// WithRobotsGate overrides the default robots.txt gate.
func WithRobotsGate(g *robots.Gate) Option {
	return func(e *Engine) { e.gate = g }
}

// New prepares an engine for the given job. Validation happens in Run.
func New(job *config.JobConfig, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{job: job, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.gate == nil {
		e.gate = robots.NewGate(logger)
	}
	return e
}

// Run executes the job until completion, failure, or cancellation. The
// returned result is never nil and keeps partial records on early exits.
func (e *Engine) Run(ctx context.Context) *RunResult {
	result := &RunResult{
		RunID:     uuid.NewString(),
		JobName:   e.job.Name,
		Status:    StatusPending,
		Items:     []*extractor.Record{},
		StartedAt: time.Now(),
	}
	if e.progress != nil {
		e.dispatch = sink.NewAsync(e.progress, 64)
		defer e.dispatch.Close()
	}
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordRun(string(result.Status), result.Duration)
		}
	}()

	// Validation and selector compilation happen before any network I/O.
	e.job.ApplyDefaults()
	if err := e.job.Validate(); err != nil {
		return e.fail(result, ReasonInvalidConfig, err)
	}
	ex, err := extractor.New(e.job, e.logger)
	if err != nil {
		return e.fail(result, ReasonInvalidConfig, err)
	}
	pager, err := pagination.New(e.job, e.logger)
	if err != nil {
		return e.fail(result, ReasonInvalidConfig, err)
	}

	domain := hostOf(e.job.StartURL)

	if e.job.RespectRobotsTxt {
		if !e.gate.Allowed(ctx, e.job.StartURL, e.job.UserAgent) {
			return e.fail(result, ReasonRobotsDisallowed,
				fmt.Errorf("robots.txt disallows %s for %q", e.job.StartURL, e.job.UserAgent))
		}
	}

	f := e.fetch
	if f == nil {
		f = buildFetcher(e.job, e.logger)
	}
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("fetcher close failed", zap.Error(err))
		}
	}()

	limiter := ratelimit.New(e.effectiveMinDelay(), e.job.MaxDelay, e.job.ConcurrentRequests)

	breaker := resilience.NewCircuitBreaker(breakerThreshold, breakerRecovery, e.logger)
	breaker.OnStateChange(func(s resilience.State) {
		e.metrics.SetBreakerState(domain, int(s))
	})
	retry := resilience.RetryPolicy{
		MaxAttempts: e.job.RetryAttempts,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Logger:      e.logger,
	}

	result.Status = StatusRunning
	e.emit(result, sink.ProgressEvent{Type: sink.EventStarted, URL: e.job.StartURL})

	currentURL := e.job.StartURL
	var doc *document.Document

	for {
		if ctx.Err() != nil {
			return e.cancel(result)
		}

		e.emit(result, sink.ProgressEvent{
			Type: sink.EventFetching, Page: pager.Page(), URL: currentURL,
		})

		if err := limiter.Wait(ctx, domain); err != nil {
			return e.cancel(result)
		}
		fetchStart := time.Now()
		doc, err = resilience.Execute(ctx, breaker, retry, func() (*document.Document, error) {
			return f.Fetch(ctx, currentURL)
		})
		limiter.Done(domain)

		if err != nil {
			e.metrics.RecordFetchFailure(domain, errKind(err))
			if ctx.Err() != nil {
				return e.cancel(result)
			}
			if result.PagesScraped == 0 {
				return e.fail(result, ReasonFetchFailed, err)
			}
			// Mid-run failures keep what was already extracted.
			result.warn(fmt.Sprintf("page %d fetch failed: %v", pager.Page(), err))
			result.StopReason = ReasonFetchFailed
			e.emit(result, sink.ProgressEvent{Type: sink.EventCompleted})
			return result.finish(StatusCompleted)
		}
		e.metrics.RecordFetch(domain, f.Type(), doc.StatusCode, doc.Len(), time.Since(fetchStart))

		action := e.processPage(ctx, result, ex, pager, f, doc)
		switch action.Kind {
		case pagination.ActionContinue:
			currentURL = action.URL
		case pagination.ActionStop:
			result.StopReason = action.Reason
			e.emit(result, sink.ProgressEvent{Type: sink.EventCompleted})
			return result.finish(StatusCompleted)
		}
	}
}

// processPage extracts the fetched document and consults the pagination
// controller. Infinite scroll re-renders and re-extracts the same page
// until the controller stops, so extracted records replace rather than
// accumulate within the page.
func (e *Engine) processPage(ctx context.Context, result *RunResult, ex *extractor.Extractor,
	pager *pagination.Controller, f fetcher.Fetcher, doc *document.Document) pagination.Action {

	domain := hostOf(doc.URL)
	itemsBefore := len(result.Items)

	for {
		records, warnings, dropped := e.extract(ex, doc, itemsBefore)
		for _, w := range warnings {
			result.warn(w)
		}

		e.emit(result, sink.ProgressEvent{
			Type:            sink.EventExtracted,
			Page:            pager.Page(),
			URL:             doc.URL,
			ItemsOnPage:     len(records),
			CumulativeItems: itemsBefore + len(records),
		})

		action := pager.Next(doc, len(records), itemsBefore+len(records))
		if action.Kind != pagination.ActionScroll {
			result.Items = append(result.Items[:itemsBefore], records...)
			result.PagesScraped++
			e.metrics.RecordPage(domain, len(records), dropped)
			return action
		}

		scroller, ok := f.(fetcher.Scroller)
		if !ok {
			result.warn("fetcher cannot scroll, treating page as complete")
			result.Items = append(result.Items[:itemsBefore], records...)
			result.PagesScraped++
			e.metrics.RecordPage(domain, len(records), dropped)
			return pagination.Action{Kind: pagination.ActionStop, Reason: pagination.StopNoNewItems}
		}
		next, err := scroller.Scroll(ctx, e.job.Pagination.ScrollWait)
		if err != nil {
			result.warn(fmt.Sprintf("scroll failed: %v", err))
			result.Items = append(result.Items[:itemsBefore], records...)
			result.PagesScraped++
			e.metrics.RecordPage(domain, len(records), dropped)
			return pagination.Action{Kind: pagination.ActionStop, Reason: pagination.StopNoNewItems}
		}
		doc = next
	}
}

// extract runs the extractor and trims the batch so the run never exceeds
// max_items, even mid-page.
func (e *Engine) extract(ex *extractor.Extractor, doc *document.Document, itemsBefore int) ([]*extractor.Record, []string, int) {
	records, warnings := ex.Extract(doc)
	dropped := len(warnings)
	if e.job.MaxItems > 0 {
		room := e.job.MaxItems - itemsBefore
		if room < 0 {
			room = 0
		}
		if len(records) > room {
			records = records[:room]
		}
	}
	return records, warnings, dropped
}

func (e *Engine) fail(result *RunResult, reason string, err error) *RunResult {
	e.logger.Error("run failed", zap.String("reason", reason), zap.Error(err))
	result.StopReason = reason
	result.ErrorMessage = err.Error()
	e.emit(result, sink.ProgressEvent{Type: sink.EventFailed})
	return result.finish(StatusFailed)
}

func (e *Engine) cancel(result *RunResult) *RunResult {
	e.logger.Info("run cancelled", zap.Int("items", len(result.Items)))
	result.StopReason = ReasonCancelled
	e.emit(result, sink.ProgressEvent{Type: sink.EventCancelled})
	return result.finish(StatusCancelled)
}

func (e *Engine) emit(result *RunResult, ev sink.ProgressEvent) {
	if e.dispatch == nil {
		return
	}
	ev.RunID = result.RunID
	if ev.CumulativeItems == 0 {
		ev.CumulativeItems = len(result.Items)
	}
	ev.Timestamp = time.Now()
	e.dispatch.Emit(ev)
}

// effectiveMinDelay honors a robots.txt crawl-delay larger than the
// configured minimum.
func (e *Engine) effectiveMinDelay() time.Duration {
	min := e.job.MinDelay
	if !e.job.RespectRobotsTxt {
		return min
	}
	if cd := e.gate.CrawlDelay(e.job.StartURL, e.job.UserAgent); cd > min {
		e.logger.Info("raising delay to robots.txt crawl-delay", zap.Duration("crawl_delay", cd))
		return cd
	}
	return min
}

func errKind(err error) string {
	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return "unknown"
}

func buildFetcher(job *config.JobConfig, logger *zap.Logger) fetcher.Fetcher {
	keepPage := job.Pagination.Type == config.PaginationInfiniteScroll
	switch job.FetcherType {
	case config.FetcherStatic:
		return fetcher.NewStatic(job.UserAgent, job.Timeout, logger)
	case config.FetcherDynamic:
		var opts []fetcher.DynamicOption
		if keepPage {
			opts = append(opts, fetcher.WithKeepPage())
		}
		return fetcher.NewDynamic(job.UserAgent, job.Timeout, job.WaitCondition, logger, opts...)
	default:
		var opts []fetcher.DynamicOption
		if keepPage {
			opts = append(opts, fetcher.WithKeepPage())
		}
		static := fetcher.NewStatic(job.UserAgent, job.Timeout, logger)
		dynamic := fetcher.NewDynamic(job.UserAgent, job.Timeout, job.WaitCondition, logger, opts...)
		return fetcher.NewAuto(static, dynamic, keepPage, logger)
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
