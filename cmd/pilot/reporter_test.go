package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/pilot/pkg/executor"
)

func runEvents() []executor.Event {
	return []executor.Event{
		{Type: executor.EventRunStarted, Workflow: "create_item", RowID: "SN-1", Category: "CAT-A"},
		{Type: executor.EventStepStarting, StepID: "open_form", Order: 1},
		{Type: executor.EventStepComplete, StepID: "open_form", Order: 1, Success: true, Message: "click ok"},
		{Type: executor.EventStepUnresolved, Order: 2, Category: "CAT-A"},
		{Type: executor.EventStepStarting, StepID: "fill_item", Order: 3},
		{Type: executor.EventStepError, StepID: "fill_item", Order: 3, Message: "element item_input not found"},
		{Type: executor.EventRunDone, Status: executor.StatusFailed, Message: "step fill_item failed"},
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := map[string]Verbosity{
		"quiet":   VerbosityQuiet,
		"normal":  VerbosityNormal,
		"Verbose": VerbosityVerbose,
		" debug ": VerbosityDebug,
		"":        VerbosityNormal,
		"loud":    VerbosityNormal,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseVerbosity(input), input)
	}
}

func TestReporterEmitByVerbosity(t *testing.T) {
	tests := []struct {
		name    string
		level   Verbosity
		want    []string
		notWant []string
	}{
		{
			name:    "quiet",
			level:   VerbosityQuiet,
			want:    []string{`⚠ Warning: no branch for "CAT-A" at order 2`, "✗ Error: step fill_item failed"},
			notWant: []string{"create_item", "open_form", "[DEBUG]"},
		},
		{
			name:    "normal",
			level:   VerbosityNormal,
			want:    []string{"▶ create_item · row SN-1 · CAT-A", "✓ open_form", "✗ fill_item", "element item_input not found"},
			notWant: []string{"→ [1] open_form", "click ok", "[DEBUG]"},
		},
		{
			name:    "verbose",
			level:   VerbosityVerbose,
			want:    []string{"→ [1] open_form", "→ click ok", "→ [3] fill_item"},
			notWant: []string{"[DEBUG]"},
		},
		{
			name:  "debug",
			level: VerbosityDebug,
			want:  []string{"[DEBUG] step-error", "step=fill_item order=3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := NewReporter(&buf, tt.level)
			for _, ev := range runEvents() {
				r.Emit(ev)
			}

			out := buf.String()
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestReporterRunDoneStatus(t *testing.T) {
	tests := []struct {
		status executor.Status
		want   string
	}{
		{executor.StatusSuccess, "✓ completed 3 step(s)"},
		{executor.StatusCancelled, "⚠ Cancelled: completed 3 step(s)"},
		{executor.StatusFailed, "✗ Error: completed 3 step(s)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			NewReporter(&buf, VerbosityNormal).Emit(executor.Event{
				Type:    executor.EventRunDone,
				Status:  tt.status,
				Message: "completed 3 step(s)",
			})
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestReporterSummary(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	result := &executor.ExecutionResult{
		RunID:          "run-1",
		Workflow:       "create_item",
		Status:         executor.StatusFailed,
		StepsCompleted: 2,
		StepsFailed:    1,
		Context:        map[string]string{"serial": "SN-1", "item": "IT-000041"},
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
		Err:            errors.New("step fill_item: element not found"),
	}

	var quiet bytes.Buffer
	NewReporter(&quiet, VerbosityQuiet).Summary(result)
	out := quiet.String()
	assert.Contains(t, out, "EXECUTION SUMMARY")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.Contains(t, out, "Steps: 2 completed, 1 failed")
	assert.Contains(t, out, "step fill_item: element not found")
	assert.NotContains(t, out, "Context:")
	assert.NotContains(t, out, "Unresolved")

	result.Unresolved = []int{2, 5}
	var skipped bytes.Buffer
	NewReporter(&skipped, VerbosityQuiet).Summary(result)
	assert.Contains(t, skipped.String(), "Unresolved branches at order: 2, 5")
	result.Unresolved = nil

	var verbose bytes.Buffer
	NewReporter(&verbose, VerbosityVerbose).Summary(result)
	assert.Regexp(t, `(?s)Context:.*item = IT-000041.*serial = SN-1`, verbose.String())
}

func TestReporterBatchSummary(t *testing.T) {
	batch := &executor.BatchResult{
		Total:        4,
		SuccessCount: 1,
		FailureCount: 1,
		Cancelled:    true,
		Results: []*executor.ExecutionResult{
			{RowID: "SN-1", Success: true},
			{RowID: "SN-2", Message: "step fill_serial failed"},
		},
	}

	var buf bytes.Buffer
	NewReporter(&buf, VerbosityVerbose).BatchSummary(batch)
	out := buf.String()
	assert.Contains(t, out, "Rows: 4")
	assert.Contains(t, out, "Attempted: 2")
	assert.Contains(t, out, "Succeeded: 1")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Cancelled before completion")
	assert.Contains(t, out, "row SN-2: step fill_serial failed")
	assert.NotContains(t, out, "row SN-1")
}
