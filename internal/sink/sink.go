// Package sink defines the boundary contracts for run observers: progress
// event callbacks and result writers. The engine depends on these types
// only, never on concrete outputs.
package sink

import (
	"encoding/json"
	"os"
	"time"
)

// Progress event types emitted over the lifetime of a run.
const (
	EventStarted   = "started"
	EventFetching  = "fetching"
	EventExtracted = "extracted"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

// ProgressEvent describes one step of a running scrape.
type ProgressEvent struct {
	Type            string    `json:"type"`
	RunID           string    `json:"run_id"`
	Page            int       `json:"page,omitempty"`
	URL             string    `json:"url,omitempty"`
	ItemsOnPage     int       `json:"items_on_page,omitempty"`
	CumulativeItems int       `json:"cumulative_items"`
	Timestamp       time.Time `json:"timestamp"`
}

// ProgressFunc receives progress events.
type ProgressFunc func(ProgressEvent)

// Async decouples event delivery from the emitting loop: events go through
// a buffered channel and are dropped when the observer falls behind, so a
// slow observer can never stall a run.
type Async struct {
	ch   chan ProgressEvent
	done chan struct{}
}

// NewAsync starts a dispatcher draining into fn.
func NewAsync(fn ProgressFunc, buffer int) *Async {
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		ch:   make(chan ProgressEvent, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		for ev := range a.ch {
			fn(ev)
		}
	}()
	return a
}

// Emit queues an event, dropping it if the buffer is full.
func (a *Async) Emit(ev ProgressEvent) {
	select {
	case a.ch <- ev:
	default:
	}
}

// Close flushes buffered events and waits for the dispatcher to finish.
func (a *Async) Close() {
	close(a.ch)
	<-a.done
}

// ResultSink persists a finished run result.
type ResultSink interface {
	Write(v any) error
}

// JSONFile writes the result as indented JSON to a file path.
type JSONFile struct {
	Path string
}

func (s JSONFile) Write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, append(data, '\n'), 0o644)
}

// Stdout writes the result as indented JSON to standard output.
type Stdout struct{}

func (Stdout) Write(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
