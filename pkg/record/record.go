// Package record holds the execution record produced by a workflow run and the sinks
// that persist it.
package record

import (
	"context"
	"errors"
	"time"
)

// Status values of a run.
const (
	StatusSuccess   = "SUCCESS"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Record is the persisted summary of one workflow execution.
type Record struct {
	RunID          string            `json:"run_id"`
	Workflow       string            `json:"workflow"`
	RowID          string            `json:"row_id,omitempty"`
	Status         string            `json:"status"`
	Message        string            `json:"message,omitempty"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	StepsCompleted int               `json:"steps_completed"`
	StepsFailed    int               `json:"steps_failed"`
	Unresolved     []int             `json:"unresolved_orders,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	Steps          []Step            `json:"steps,omitempty"`
}

// Step is the outcome of one executed step.
type Step struct {
	StepID     string `json:"step_id"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Value      string `json:"value,omitempty"`
	Attempts   int    `json:"attempts"`
	Screenshot string `json:"screenshot,omitempty"`
	Snapshot   string `json:"snapshot,omitempty"`
}

// Duration returns the wall time of the run.
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Screenshots returns the failure screenshots of the run in step order.
func (r *Record) Screenshots() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Screenshot != "" {
			out = append(out, s.Screenshot)
		}
	}
	return out
}

// Sink persists execution records.
type Sink interface {
	Save(ctx context.Context, rec *Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec *Record) error

func (f SinkFunc) Save(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// Multi fans a record out to several sinks. Every sink is called; errors are joined.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, rec *Record) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Save(ctx, rec); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
