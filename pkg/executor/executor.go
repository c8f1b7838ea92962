package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/counter"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/record"
	"github.com/entrhq/pilot/pkg/tracing"
	"github.com/entrhq/pilot/pkg/workflow"
)

const (
	// DefaultRetryDelay is the base backoff between attempts; attempt n waits n times it.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultActionTimeout bounds one element action when the step sets no timeout.
	DefaultActionTimeout = 10 * time.Second
	// DefaultAllocationSettle is the wait between filling a candidate and probing for
	// the rejection banner.
	DefaultAllocationSettle = 500 * time.Millisecond
	// snapshotLimit bounds the cleaned page snapshot kept for a failed step.
	snapshotLimit = 50000
)

// RecordSink persists the execution record of every finished run.
type RecordSink = record.Sink

// Executor runs workflows against one page.
type Executor struct {
	page     browser.Page
	locators locator.Set
	resolver *locator.Resolver
	counters counter.Store
	records  RecordSink
	logger   *logging.Logger
	tracer   trace.Tracer

	screenshotDir string
	retryDelay    time.Duration
	settle        time.Duration
	sleep         func(time.Duration)
	now           func() time.Time
	newID         func() string

	cancelled atomic.Bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithResolver sets the locator resolver.
func WithResolver(r *locator.Resolver) Option {
	return func(e *Executor) { e.resolver = r }
}

// WithCounters sets the counter store used by identifier allocation.
func WithCounters(store counter.Store) Option {
	return func(e *Executor) { e.counters = store }
}

// WithRecordSink persists an execution record after every run.
func WithRecordSink(sink RecordSink) Option {
	return func(e *Executor) { e.records = sink }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithTracer sets the tracer for run and step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithScreenshotDir sets where screenshot steps and failure captures are written.
func WithScreenshotDir(dir string) Option {
	return func(e *Executor) { e.screenshotDir = dir }
}

// WithRetryDelay sets the base backoff between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Executor) { e.retryDelay = d }
}

// WithAllocationSettle sets the wait before probing for an allocation banner.
func WithAllocationSettle(d time.Duration) Option {
	return func(e *Executor) { e.settle = d }
}

// WithSleep replaces the function used for delays, wait-after, wait-time steps and
// retry backoff.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Executor) { e.newID = newID }
}

// New creates an executor for page. locators resolves the step locator names.
func New(page browser.Page, locators locator.Set, opts ...Option) *Executor {
	e := &Executor{
		page:          page,
		locators:      locators,
		counters:      counter.NewMemory(nil),
		screenshotDir: filepath.Join(os.TempDir(), "pilot", "screenshots"),
		retryDelay:    DefaultRetryDelay,
		settle:        DefaultAllocationSettle,
		sleep:         time.Sleep,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.resolver == nil {
		e.resolver = locator.NewResolver(locator.WithLogger(e.logger))
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("pilot")
	}
	return e
}

// Cancel asks the running workflow or batch to stop at the next step or row boundary.
func (e *Executor) Cancel() {
	e.cancelled.Store(true)
}

// ResetCancel clears a previous Cancel.
func (e *Executor) ResetCancel() {
	e.cancelled.Store(false)
}

// Cancelled reports whether Cancel was called since the last reset.
func (e *Executor) Cancelled() bool {
	return e.cancelled.Load()
}

// run is the state of one execution.
type run struct {
	result *ExecutionResult
	row    workflow.Row
	rc     *workflow.RunContext
	events *emitter
}

// Execute runs wf once for row. It never returns nil and never panics; every outcome,
// including recovered panics, is reported in the result and through sink, which may be
// nil. A run-done event always closes the event stream.
func (e *Executor) Execute(ctx context.Context, wf *workflow.Workflow, row workflow.Row, sink Sink) (result *ExecutionResult) {
	result = &ExecutionResult{
		RunID:     e.newID(),
		Workflow:  wf.Name,
		Status:    StatusInit,
		StartedAt: e.now(),
	}
	if wf.KeyField != "" {
		result.RowID, _ = row.Get(wf.KeyField)
	}
	if wf.ConditionField != "" {
		raw, _ := row.Get(wf.ConditionField)
		result.Category = workflow.NormalizeCondition(raw)
	}

	r := &run{
		result: result,
		row:    row,
		rc:     workflow.NewRunContext(),
		events: &emitter{
			sink:     sink,
			now:      e.now,
			runID:    result.RunID,
			workflow: wf.Name,
			rowID:    result.RowID,
			category: result.Category,
		},
	}

	ctx, span := tracing.StartSpan(ctx, e.tracer, "pilot.run",
		attribute.String(tracing.RunIDKey, result.RunID),
		attribute.String(tracing.WorkflowNameKey, wf.Name),
		attribute.String(tracing.RowIDKey, result.RowID),
	)

	defer func() {
		if p := recover(); p != nil {
			e.logger.Errorf("run %s: recovered panic: %v", result.RunID, p)
			result.fail(&Error{Kind: KindInternal, Message: fmt.Sprintf("panic: %v", p)})
		}
		result.Context = r.rc.Snapshot()
		result.FinishedAt = e.now()

		span.SetAttributes(attribute.String(tracing.StatusKey, string(result.Status)))
		if result.Err != nil {
			tracing.SetError(span, result.Err)
		}
		span.End()

		e.saveRecord(ctx, result)
		e.logger.Infof("run %s (%s): %s %s", result.RunID, wf.Name, result.Status, result.Message)
		r.events.emit(Event{Type: EventRunDone, Success: result.Success, Status: result.Status, Message: result.Message})
	}()

	e.execute(ctx, wf, r)
	return result
}

func (e *Executor) execute(ctx context.Context, wf *workflow.Workflow, r *run) {
	result := r.result
	result.Status = StatusRunning
	r.events.emit(Event{Type: EventRunStarted, Status: StatusRunning})
	e.logger.Infof("run %s (%s): started, row=%q condition=%q", result.RunID, wf.Name, result.RowID, result.Category)

	selection := workflow.SelectSteps(wf, result.Category)
	result.Unresolved = append(result.Unresolved, selection.Unresolved...)
	for _, order := range selection.Unresolved {
		msg := fmt.Sprintf("order %d: no branch for condition %q", order, result.Category)
		e.logger.Warnf("run %s: %s", result.RunID, msg)
		r.events.emit(Event{Type: EventStepUnresolved, Order: order, Message: msg})
	}
	if wf.StrictBranches && len(selection.Unresolved) > 0 {
		result.fail(&Error{
			Kind:    KindConfiguration,
			Message: fmt.Sprintf("order %d: no branch for condition %q", selection.Unresolved[0], result.Category),
			Cause:   ErrBranchUnresolved,
		})
		return
	}

	for _, step := range selection.Steps {
		if err := e.checkCancelled(ctx); err != nil {
			result.cancel(err)
			return
		}

		r.events.emit(Event{Type: EventStepStarting, StepID: step.ID, Order: step.Order})
		sr := e.runStep(ctx, r, step)
		result.Steps = append(result.Steps, sr)

		if sr.Success {
			result.StepsCompleted++
			r.events.emit(Event{Type: EventStepComplete, StepID: step.ID, Order: step.Order, Success: true, Message: sr.Message})
			continue
		}

		result.StepsFailed++
		r.events.emit(Event{Type: EventStepError, StepID: step.ID, Order: step.Order, Message: sr.Message})

		if KindOf(sr.Err) == KindCancelled {
			result.cancel(sr.Err)
			return
		}
		if step.ContinueOnError {
			e.logger.Warnf("run %s: step %s failed, continuing: %v", result.RunID, step.ID, sr.Err)
			continue
		}
		if step.OnError != nil {
			e.runHandler(ctx, r, step)
		}
		result.fail(sr.Err)
		return
	}

	result.Status = StatusSuccess
	result.Success = true
	if result.StepsFailed > 0 {
		result.Message = fmt.Sprintf("completed with %d non-fatal step error(s)", result.StepsFailed)
	} else {
		result.Message = fmt.Sprintf("completed %d step(s)", result.StepsCompleted)
	}
	if n := len(result.Unresolved); n > 0 {
		result.Message += fmt.Sprintf(", %d branch slot(s) skipped for condition %q", n, result.Category)
	}
}

// runHandler runs a failed step's error handler once. Its outcome is recorded but never
// changes the run's status.
func (e *Executor) runHandler(ctx context.Context, r *run, failed *workflow.Step) {
	e.attempt("error handler for step "+failed.ID, func() error {
		sr := e.runStep(ctx, r, failed.OnError)
		r.result.Steps = append(r.result.Steps, sr)
		if !sr.Success {
			return sr.Err
		}
		return nil
	})
}

func (e *Executor) checkCancelled(ctx context.Context) error {
	if e.cancelled.Load() {
		return &Error{Kind: KindCancelled, Message: "cancelled", Cause: ErrCancelled}
	}
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindCancelled, Message: "cancelled", Cause: fmt.Errorf("%w: %w", ErrCancelled, err)}
	}
	return nil
}

// attempt runs best-effort work. Failures and panics are logged and suppressed.
func (e *Executor) attempt(name string, op func() error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warnf("%s: suppressed panic: %v", name, p)
		}
	}()
	if err := op(); err != nil {
		e.logger.Warnf("%s: suppressed error: %v", name, err)
	}
}

func (e *Executor) saveRecord(ctx context.Context, result *ExecutionResult) {
	if e.records == nil {
		return
	}
	e.attempt("save execution record", func() error {
		return e.records.Save(context.WithoutCancel(ctx), result.Record())
	})
}
