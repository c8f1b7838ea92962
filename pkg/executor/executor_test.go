package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/browser/browsertest"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/record"
	"github.com/entrhq/pilot/pkg/workflow"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
}

func (s *sleepLog) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func css(name, selector string) *locator.Locator {
	return &locator.Locator{
		Name:       name,
		Strategies: []locator.Strategy{{Kind: locator.KindCSS, Value: selector, Priority: 1}},
	}
}

func locators(names ...string) locator.Set {
	set := make(locator.Set, len(names))
	for _, name := range names {
		set[name] = css(name, "#"+name)
	}
	return set
}

func newTestExecutor(t *testing.T, page *browsertest.Page, locs locator.Set, opts ...Option) *Executor {
	t.Helper()
	base := []Option{
		WithResolver(locator.NewResolver(
			locator.WithPollInterval(time.Millisecond),
			locator.WithDefaultTimeout(5*time.Millisecond),
		)),
		WithSleep(func(time.Duration) {}),
		WithScreenshotDir(t.TempDir()),
		WithAllocationSettle(0),
	}
	return New(page, locs, append(base, opts...)...)
}

func clickStep(id string, order int) *workflow.Step {
	return &workflow.Step{ID: id, Order: order, Action: workflow.ActionClick, Locator: id, MaxRetries: 3}
}

// abcWorkflow clicks #a, #b and #c in order.
func abcWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		Name:  "abc",
		Steps: []*workflow.Step{clickStep("a", 1), clickStep("b", 2), clickStep("c", 3)},
	}
}

func TestExecuteSuccess(t *testing.T) {
	page := browsertest.NewPage()
	a, b, c := &browsertest.Element{}, &browsertest.Element{}, &browsertest.Element{}
	page.Set("#a", a)
	page.Set("#b", b)
	page.Set("#c", c)

	exec := newTestExecutor(t, page, locators("a", "b", "c"), WithIDGenerator(func() string { return "run-1" }))
	events := &eventLog{}
	result := exec.Execute(context.Background(), abcWorkflow(), workflow.Row{}, events)

	require.True(t, result.Success, result.Message)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 3, result.StepsCompleted)
	assert.Zero(t, result.StepsFailed)
	assert.Equal(t, 1, a.ClickCount())
	assert.Equal(t, 1, b.ClickCount())
	assert.Equal(t, 1, c.ClickCount())
	assert.Equal(t, []EventType{
		EventRunStarted,
		EventStepStarting, EventStepComplete,
		EventStepStarting, EventStepComplete,
		EventStepStarting, EventStepComplete,
		EventRunDone,
	}, events.types())
	assert.Equal(t, "run-1", events.last().RunID)
	assert.Equal(t, StatusSuccess, events.last().Status)
	assert.Equal(t, `css="#a"`, result.Steps[0].Strategy)
}

func TestExecuteStopsAtFirstFatalFailure(t *testing.T) {
	page := browsertest.NewPage()
	a, c := &browsertest.Element{}, &browsertest.Element{}
	page.Set("#a", a)
	page.Set("#c", c)

	exec := newTestExecutor(t, page, locators("a", "b", "c"))
	events := &eventLog{}
	result := exec.Execute(context.Background(), abcWorkflow(), workflow.Row{}, events)

	assert.False(t, result.Success)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 1, result.StepsCompleted)
	assert.Equal(t, 1, result.StepsFailed)
	assert.Equal(t, KindElementNotFound, result.Kind())
	assert.Zero(t, c.ClickCount(), "steps after a fatal failure never run")
	assert.Zero(t, page.QueryCount("#c"))

	require.Len(t, result.Steps, 2)
	failed := result.Steps[1]
	assert.Equal(t, "b", failed.StepID)
	assert.Equal(t, 3, failed.Attempts)
	assert.NotEmpty(t, failed.Screenshot)
	assert.Contains(t, page.Screenshots(), failed.Screenshot)

	assert.Equal(t, EventStepError, events.types()[len(events.types())-2])
	assert.Equal(t, EventRunDone, events.last().Type)
	assert.False(t, events.last().Success)
}

func TestExecuteContinueOnError(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#a", &browsertest.Element{})
	page.Set("#c", &browsertest.Element{})

	wf := abcWorkflow()
	wf.Steps[1].ContinueOnError = true

	exec := newTestExecutor(t, page, locators("a", "b", "c"))
	result := exec.Execute(context.Background(), wf, workflow.Row{}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, result.StepsCompleted)
	assert.Equal(t, 1, result.StepsFailed)
	assert.Contains(t, result.Message, "1 non-fatal")
	assert.NoError(t, result.Err)
}

func TestExecuteRunsErrorHandlerOnce(t *testing.T) {
	page := browsertest.NewPage()
	closeButton := &browsertest.Element{}
	page.Set("#a", &browsertest.Element{})
	page.Set("#close", closeButton)

	wf := abcWorkflow()
	wf.Steps[1].OnError = &workflow.Step{ID: "close", Action: workflow.ActionClick, Locator: "close", MaxRetries: 3}

	exec := newTestExecutor(t, page, locators("a", "b", "c", "close"))
	result := exec.Execute(context.Background(), wf, workflow.Row{}, nil)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 1, closeButton.ClickCount())
	assert.Equal(t, KindElementNotFound, result.Kind(), "handler success never changes the outcome")
	require.Len(t, result.Steps, 3)
	assert.Equal(t, "close", result.Steps[2].StepID)
	assert.True(t, result.Steps[2].Success)
}

func TestExecuteFailingErrorHandlerIsSuppressed(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#a", &browsertest.Element{})

	wf := abcWorkflow()
	wf.Steps[1].OnError = &workflow.Step{ID: "close", Action: workflow.ActionClick, Locator: "missing"}

	exec := newTestExecutor(t, page, locators("a", "b", "c"))
	result := exec.Execute(context.Background(), wf, workflow.Row{}, nil)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "b", result.Err.(*Error).StepID)
}

func TestExecuteConfigurationErrorIsNotRetried(t *testing.T) {
	page := browsertest.NewPage()
	wf := &workflow.Workflow{Name: "cfg", Steps: []*workflow.Step{clickStep("a", 1)}}
	wf.Steps[0].Locator = "does_not_exist"

	exec := newTestExecutor(t, page, locators("a"))
	result := exec.Execute(context.Background(), wf, workflow.Row{}, nil)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, KindConfiguration, result.Kind())
	assert.ErrorIs(t, result.Err, locator.ErrUnknownLocator)
	assert.Contains(t, result.Err.Error(), "does_not_exist")
	require.Len(t, result.Steps, 1)
	assert.Equal(t, 1, result.Steps[0].Attempts)
	assert.Empty(t, page.Queries())
}

func TestExecuteMalformedTemplateIsConfigurationError(t *testing.T) {
	page := browsertest.NewPage()
	field := &browsertest.Element{}
	page.Set("#a", field)

	wf := &workflow.Workflow{Name: "tpl", Steps: []*workflow.Step{{
		ID: "a", Order: 1, Action: workflow.ActionFill, Locator: "a",
		Value: workflow.Template("{{SERIAL"), MaxRetries: 3,
	}}}

	exec := newTestExecutor(t, page, locators("a"))
	result := exec.Execute(context.Background(), wf, workflow.Row{"SERIAL": "1"}, nil)

	assert.Equal(t, KindConfiguration, result.Kind())
	assert.ErrorIs(t, result.Err, workflow.ErrConfiguration)
	assert.Empty(t, field.FillValues())
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	page := browsertest.NewPage()
	calls := 0
	flaky := &browsertest.Element{OnClick: func() error {
		calls++
		if calls < 3 {
			return errors.New("element detached")
		}
		return nil
	}}
	page.Set("#a", flaky)
	sleeps := &sleepLog{}

	wf := &workflow.Workflow{Name: "retry", Steps: []*workflow.Step{clickStep("a", 1)}}
	exec := newTestExecutor(t, page, locators("a"), WithSleep(sleeps.sleep), WithRetryDelay(10*time.Millisecond))
	result := exec.Execute(context.Background(), wf, workflow.Row{}, nil)

	require.True(t, result.Success, result.Message)
	assert.Equal(t, 3, result.Steps[0].Attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeps.all())
	assert.Contains(t, result.Steps[0].Message, "after 3 attempts")
}

func TestExecuteRetryExhaustion(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "action failure", err: errors.New("boom"), kind: KindActionFailed},
		{name: "browser timeout", err: fmt.Errorf("click: %w", browser.ErrTimeout), kind: KindActionTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.NewPage()
			el := &browsertest.Element{Err: tt.err}
			page.Set("#a", el)

			wf := &workflow.Workflow{Name: "x", Steps: []*workflow.Step{clickStep("a", 1)}}
			exec := newTestExecutor(t, page, locators("a"))
			result := exec.Execute(context.Background(), wf, workflow.Row{}, nil)

			assert.Equal(t, tt.kind, result.Kind())
			assert.ErrorIs(t, result.Err, tt.err)
			assert.Equal(t, 3, el.ClickCount())
		})
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#a", &browsertest.Element{OnClick: func() error { panic("driver exploded") }})

	wf := &workflow.Workflow{Name: "panic", Steps: []*workflow.Step{clickStep("a", 1)}}
	exec := newTestExecutor(t, page, locators("a"))
	events := &eventLog{}

	var result *ExecutionResult
	require.NotPanics(t, func() {
		result = exec.Execute(context.Background(), wf, workflow.Row{}, events)
	})
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, KindInternal, result.Kind())
	assert.Contains(t, result.Message, "driver exploded")
	assert.Equal(t, EventRunDone, events.last().Type)
}

func TestExecutePrecheck(t *testing.T) {
	page := browsertest.NewPage()
	submit := &browsertest.Element{}
	page.Set("#submit", submit)

	wf := &workflow.Workflow{Name: "pre", Steps: []*workflow.Step{{
		ID: "submit", Order: 1, Action: workflow.ActionClick, Locator: "submit", Precheck: "form_ready", MaxRetries: 2,
	}}}
	exec := newTestExecutor(t, page, locators("submit", "form_ready"))

	result := exec.Execute(context.Background(), wf, workflow.Row{}, nil)
	assert.Equal(t, KindElementNotFound, result.Kind())
	assert.Contains(t, result.Message, "form_ready")
	assert.Zero(t, submit.ClickCount())

	page.Set("#form_ready", &browsertest.Element{})
	result = exec.Execute(context.Background(), wf, workflow.Row{}, nil)
	assert.True(t, result.Success, result.Message)
	assert.Equal(t, 1, submit.ClickCount())
}

func TestExecuteBindsValuesAndSavesContext(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#title", &browsertest.Element{TextValue: "  Order\n 123 "})
	note := &browsertest.Element{}
	page.Set("#note", note)
	serial := &browsertest.Element{}
	page.Set("#serial", serial)

	wf := &workflow.Workflow{Name: "bind", Steps: []*workflow.Step{
		{ID: "title", Order: 1, Action: workflow.ActionAssertText, Locator: "title", Value: workflow.Static("Order"), SaveAs: "title"},
		{ID: "note", Order: 2, Action: workflow.ActionFill, Locator: "note", Value: workflow.Template("{{title}}/{{SERIAL}}/{{missing}}")},
		{ID: "serial", Order: 3, Action: workflow.ActionFill, Locator: "serial", Value: workflow.Field("SERIAL"), ClearBeforeFill: true, SaveAs: "serial"},
	}}
	exec := newTestExecutor(t, page, locators("title", "note", "serial"))
	result := exec.Execute(context.Background(), wf, workflow.Row{"SERIAL": 9001}, nil)

	require.True(t, result.Success, result.Message)
	assert.Equal(t, []string{"Order 123/9001/"}, note.FillValues())
	assert.Equal(t, []string{"9001"}, serial.FillValues())
	assert.Equal(t, 1, serial.Clears)
	assert.Equal(t, map[string]string{"title": "Order 123", "serial": "9001"}, result.Context)
}

func TestExecuteAssertions(t *testing.T) {
	tests := []struct {
		name    string
		step    *workflow.Step
		el      *browsertest.Element
		success bool
	}{
		{
			name:    "text matches",
			step:    &workflow.Step{Action: workflow.ActionAssertText, Value: workflow.Static("Saved")},
			el:      &browsertest.Element{TextValue: "Record Saved!"},
			success: true,
		},
		{
			name: "text mismatch",
			step: &workflow.Step{Action: workflow.ActionAssertText, Value: workflow.Static("Saved")},
			el:   &browsertest.Element{TextValue: "Error"},
		},
		{
			name:    "visible",
			step:    &workflow.Step{Action: workflow.ActionAssertVisible},
			el:      &browsertest.Element{},
			success: true,
		},
		{
			name: "hidden",
			step: &workflow.Step{Action: workflow.ActionAssertVisible},
			el:   &browsertest.Element{Hidden: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.NewPage()
			page.Set("#target", tt.el)
			tt.step.ID, tt.step.Order, tt.step.Locator = "check", 1, "target"

			exec := newTestExecutor(t, page, locators("target"))
			result := exec.Execute(context.Background(), &workflow.Workflow{Name: "assert", Steps: []*workflow.Step{tt.step}}, workflow.Row{}, nil)
			assert.Equal(t, tt.success, result.Success, result.Message)
		})
	}
}

func TestExecuteCheckValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"yes", true},
		{"true", true},
		{"false", false},
		{"0", false},
		{"Off", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			page := browsertest.NewPage()
			box := &browsertest.Element{Checked: !tt.want}
			page.Set("#box", box)
			wf := &workflow.Workflow{Name: "check", Steps: []*workflow.Step{
				{ID: "box", Order: 1, Action: workflow.ActionCheck, Locator: "box", Value: workflow.Static(tt.value)},
			}}
			result := newTestExecutor(t, page, locators("box")).Execute(context.Background(), wf, workflow.Row{}, nil)
			require.True(t, result.Success, result.Message)
			assert.Equal(t, tt.want, box.Checked)
		})
	}
}

func TestExecuteDirectActions(t *testing.T) {
	page := browsertest.NewPage()
	sleeps := &sleepLog{}
	dir := t.TempDir()

	wf := &workflow.Workflow{Name: "direct", Steps: []*workflow.Step{
		{ID: "pause", Order: 1, Action: workflow.ActionWaitTime, Value: workflow.Static("1.5")},
		{ID: "pause2", Order: 2, Action: workflow.ActionWaitTime, Value: workflow.Static("250ms")},
		{ID: "enter", Order: 3, Action: workflow.ActionPressKey, Value: workflow.Static("Enter")},
		{ID: "shot", Order: 4, Action: workflow.ActionScreenshot, SaveAs: "shot"},
	}}
	exec := newTestExecutor(t, page, locator.Set{}, WithSleep(sleeps.sleep), WithScreenshotDir(dir))
	result := exec.Execute(context.Background(), wf, workflow.Row{}, nil)

	require.True(t, result.Success, result.Message)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 250 * time.Millisecond}, sleeps.all())
	assert.Equal(t, []string{"Enter"}, page.Keys())
	require.Len(t, page.Screenshots(), 1)
	assert.True(t, strings.HasPrefix(page.Screenshots()[0], dir))
	assert.Equal(t, page.Screenshots()[0], result.Context["shot"])
}

func TestExecuteInvalidWaitTime(t *testing.T) {
	wf := &workflow.Workflow{Name: "wait", Steps: []*workflow.Step{
		{ID: "pause", Order: 1, Action: workflow.ActionWaitTime, Value: workflow.Static("soon"), MaxRetries: 3},
	}}
	result := newTestExecutor(t, browsertest.NewPage(), locator.Set{}).Execute(context.Background(), wf, workflow.Row{}, nil)
	assert.Equal(t, KindConfiguration, result.Kind())
	assert.Equal(t, 1, result.Steps[0].Attempts)
}

func TestExecuteDelayWaitAfterAndPressKey(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#field", &browsertest.Element{})
	sleeps := &sleepLog{}

	wf := &workflow.Workflow{Name: "keys", Steps: []*workflow.Step{{
		ID: "field", Order: 1, Action: workflow.ActionFill, Locator: "field", Value: workflow.Static("x"),
		Delay: 100 * time.Millisecond, WaitAfter: 300 * time.Millisecond, PressKey: "Tab",
	}}}
	result := newTestExecutor(t, page, locators("field"), WithSleep(sleeps.sleep)).Execute(context.Background(), wf, workflow.Row{}, nil)

	require.True(t, result.Success, result.Message)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}, sleeps.all())
	assert.Equal(t, []string{"Tab"}, page.Keys())
}

func branchWorkflow(strict bool) *workflow.Workflow {
	return &workflow.Workflow{
		Name:           "branch",
		ConditionField: "CATEGORY",
		KeyField:       "SERIAL",
		StrictBranches: strict,
		Steps: []*workflow.Step{
			clickStep("open", 1),
			{ID: "cat_a", Order: 2, Action: workflow.ActionClick, Locator: "cat_a", Condition: "CAT-A"},
			clickStep("save", 3),
		},
	}
}

func TestExecuteBranchSelection(t *testing.T) {
	page := browsertest.NewPage()
	catA := &browsertest.Element{}
	page.Set("#open", &browsertest.Element{})
	page.Set("#cat_a", catA)
	page.Set("#save", &browsertest.Element{})

	exec := newTestExecutor(t, page, locators("open", "cat_a", "save"))
	events := &eventLog{}
	result := exec.Execute(context.Background(), branchWorkflow(false), workflow.Row{"CATEGORY": " cat  a ", "SERIAL": "SN-1"}, events)

	require.True(t, result.Success, result.Message)
	assert.Equal(t, 3, result.StepsCompleted)
	assert.Equal(t, 1, catA.ClickCount())
	assert.Equal(t, "CAT-A", result.Category)
	assert.Equal(t, "SN-1", result.RowID)
	assert.Equal(t, "SN-1", events.last().RowID)
	assert.Equal(t, "CAT-A", events.last().Category)
}

func TestExecuteUnresolvedBranch(t *testing.T) {
	page := browsertest.NewPage()
	open := &browsertest.Element{}
	page.Set("#open", open)
	page.Set("#cat_a", &browsertest.Element{})
	page.Set("#save", &browsertest.Element{})
	row := workflow.Row{"CATEGORY": "cat-b"}

	t.Run("lenient skips the slot", func(t *testing.T) {
		events := &eventLog{}
		result := newTestExecutor(t, page, locators("open", "cat_a", "save")).Execute(context.Background(), branchWorkflow(false), row, events)

		require.True(t, result.Success, result.Message)
		assert.Equal(t, 2, result.StepsCompleted)
		assert.Equal(t, []int{2}, result.Unresolved)
		assert.Contains(t, result.Message, "1 branch slot(s) skipped")
		assert.Equal(t, []int{2}, result.Record().Unresolved)
		assert.Contains(t, events.types(), EventStepUnresolved)
		for _, ev := range events.events {
			if ev.Type == EventStepUnresolved {
				assert.Equal(t, 2, ev.Order)
			}
		}
	})

	t.Run("strict fails before any step", func(t *testing.T) {
		before := open.ClickCount()
		result := newTestExecutor(t, page, locators("open", "cat_a", "save")).Execute(context.Background(), branchWorkflow(true), row, nil)

		assert.Equal(t, StatusFailed, result.Status)
		assert.ErrorIs(t, result.Err, ErrBranchUnresolved)
		assert.Equal(t, []int{2}, result.Unresolved)
		assert.Zero(t, result.StepsCompleted)
		assert.Equal(t, before, open.ClickCount())
	})
}

func TestExecuteCancelBetweenSteps(t *testing.T) {
	page := browsertest.NewPage()
	b := &browsertest.Element{}
	page.Set("#a", &browsertest.Element{})
	page.Set("#b", b)
	page.Set("#c", &browsertest.Element{})

	exec := newTestExecutor(t, page, locators("a", "b", "c"))
	sink := SinkFunc(func(ev Event) {
		if ev.Type == EventStepComplete && ev.StepID == "a" {
			exec.Cancel()
		}
	})
	result := exec.Execute(context.Background(), abcWorkflow(), workflow.Row{}, sink)

	assert.Equal(t, StatusCancelled, result.Status)
	assert.ErrorIs(t, result.Err, ErrCancelled)
	assert.Equal(t, 1, result.StepsCompleted)
	assert.Zero(t, b.ClickCount())

	exec.ResetCancel()
	assert.False(t, exec.Cancelled())
	assert.True(t, exec.Execute(context.Background(), abcWorkflow(), workflow.Row{}, nil).Success)
}

func TestExecuteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestExecutor(t, browsertest.NewPage(), locators("a", "b", "c")).Execute(ctx, abcWorkflow(), workflow.Row{}, nil)
	assert.Equal(t, StatusCancelled, result.Status)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Empty(t, result.Steps)
}

func TestExecuteSavesRecord(t *testing.T) {
	page := browsertest.NewPage()
	page.Set("#a", &browsertest.Element{})

	var saved *record.Record
	sink := record.SinkFunc(func(_ context.Context, rec *record.Record) error {
		saved = rec
		return errors.New("disk full")
	})
	wf := &workflow.Workflow{Name: "rec", Steps: []*workflow.Step{clickStep("a", 1)}}
	result := newTestExecutor(t, page, locators("a"), WithRecordSink(sink)).Execute(context.Background(), wf, workflow.Row{}, nil)

	assert.True(t, result.Success, "record sink errors are suppressed")
	require.NotNil(t, saved)
	assert.Equal(t, result.RunID, saved.RunID)
	assert.Equal(t, record.StatusSuccess, saved.Status)
	require.Len(t, saved.Steps, 1)
	assert.Equal(t, "a", saved.Steps[0].StepID)
}

func TestExecuteSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	page := browsertest.NewPage()
	page.Set("#a", &browsertest.Element{})
	wf := &workflow.Workflow{Name: "span", Steps: []*workflow.Step{clickStep("a", 1), clickStep("b", 2)}}
	newTestExecutor(t, page, locators("a", "b"), WithTracer(provider.Tracer("test"))).Execute(context.Background(), wf, workflow.Row{}, nil)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"pilot.step", "pilot.step", "pilot.run"}, names)
	assert.Equal(t, "Error", recorder.Ended()[2].Status().Code.String())
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindActionFailed, StepID: "save", Message: "click", Cause: errors.New("detached")}
	assert.Equal(t, "step save: click: detached", err.Error())
	assert.Equal(t, "action_rejected", (&Error{Kind: KindActionRejected}).Error())
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, KindActionTimeout.Retryable())
	assert.False(t, KindConfiguration.Retryable())
}
