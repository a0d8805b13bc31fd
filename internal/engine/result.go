package engine

import (
	"time"

	"github.com/mfairouz/ariadne/internal/extractor"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// RunResult is the complete outcome of one scrape run. A cancelled or
// partially failed run still carries whatever records were extracted
// before it stopped.
type RunResult struct {
	RunID   string `json:"run_id"`
	JobName string `json:"job_name,omitempty"`
	Status  Status `json:"status"`

	Items        []*extractor.Record `json:"items"`
	TotalItems   int                 `json:"total_items"`
	PagesScraped int                 `json:"pages_scraped"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`

	StopReason   string   `json:"stop_reason,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

func (r *RunResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *RunResult) finish(status Status) *RunResult {
	r.Status = status
	r.CompletedAt = time.Now()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
	r.TotalItems = len(r.Items)
	return r
}
