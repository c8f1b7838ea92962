package executor

import (
	"time"

	"github.com/entrhq/pilot/pkg/record"
)

// Status is the state of a run.
type Status string

const (
	StatusInit      Status = "INIT"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = record.StatusSuccess
	StatusFailed    Status = record.StatusFailed
	StatusCancelled Status = record.StatusCancelled
)

// StepResult is the outcome of one step.
type StepResult struct {
	StepID   string
	Order    int
	Success  bool
	Message  string
	// Value is the bound value, or the captured value for assert-text, allocation and
	// screenshot steps.
	Value    string
	Attempts int
	// Strategy is the strategy that resolved the step's element.
	Strategy   string
	Err        error
	Screenshot string
	Snapshot   string
}

// ExecutionResult is the outcome of one run.
type ExecutionResult struct {
	RunID          string
	Workflow       string
	RowID          string
	Category       string
	Status         Status
	Success        bool
	Message        string
	StepsCompleted int
	StepsFailed    int
	// Unresolved lists the step orders skipped because no branch matched the row's
	// condition and the slot had no default.
	Unresolved     []int
	Context        map[string]string
	Steps          []StepResult
	StartedAt      time.Time
	FinishedAt     time.Time
	Err            error
}

// Kind returns the failure kind, or "" for successful runs.
func (r *ExecutionResult) Kind() Kind {
	if r.Err == nil {
		return ""
	}
	return KindOf(r.Err)
}

func (r *ExecutionResult) fail(err error) {
	r.Status = StatusFailed
	r.Success = false
	r.Err = err
	r.Message = err.Error()
}

func (r *ExecutionResult) cancel(err error) {
	r.Status = StatusCancelled
	r.Success = false
	r.Err = err
	r.Message = err.Error()
}

// Record converts the result into an execution record.
func (r *ExecutionResult) Record() *record.Record {
	rec := &record.Record{
		RunID:          r.RunID,
		Workflow:       r.Workflow,
		RowID:          r.RowID,
		Status:         string(r.Status),
		Message:        r.Message,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		StepsCompleted: r.StepsCompleted,
		StepsFailed:    r.StepsFailed,
		Unresolved:     append([]int(nil), r.Unresolved...),
		Context:        r.Context,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	for _, s := range r.Steps {
		rec.Steps = append(rec.Steps, record.Step{
			StepID:     s.StepID,
			Success:    s.Success,
			Message:    s.Message,
			Value:      s.Value,
			Attempts:   s.Attempts,
			Screenshot: s.Screenshot,
			Snapshot:   s.Snapshot,
		})
	}
	return rec
}

// BatchResult aggregates a batch.
type BatchResult struct {
	Total        int
	SuccessCount int
	FailureCount int
	// Cancelled is set when the batch stopped before its last row.
	Cancelled bool
	Results   []*ExecutionResult
}

// Attempted returns the number of rows that ran.
func (b *BatchResult) Attempted() int {
	return len(b.Results)
}
