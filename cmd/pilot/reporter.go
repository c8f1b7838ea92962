package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/pilot/pkg/executor"
)

// Verbosity is the console output level.
type Verbosity int

const (
	// VerbosityQuiet shows warnings, errors and the final summary.
	VerbosityQuiet Verbosity = iota
	// VerbosityNormal shows run and step outcomes.
	VerbosityNormal
	// VerbosityVerbose adds step starts and navigation.
	VerbosityVerbose
	// VerbosityDebug adds every event.
	VerbosityDebug
)

// ParseVerbosity maps a verbosity name to its level; unknown names mean normal.
func ParseVerbosity(s string) Verbosity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quiet":
		return VerbosityQuiet
	case "verbose":
		return VerbosityVerbose
	case "debug":
		return VerbosityDebug
	}
	return VerbosityNormal
}

const ruleWidth = 70

// Reporter renders progress events and summaries on the console. It is an
// executor.Sink.
type Reporter struct {
	mu    sync.Mutex
	level Verbosity
	w     io.Writer

	header  lipgloss.Style
	section lipgloss.Style
	success lipgloss.Style
	info    lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

var _ executor.Sink = (*Reporter)(nil)

// NewReporter creates a reporter writing to w. Colors follow w's terminal profile.
func NewReporter(w io.Writer, level Verbosity) *Reporter {
	r := lipgloss.NewRenderer(w)
	return &Reporter{
		level:   level,
		w:       w,
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
		section: r.NewStyle().Foreground(lipgloss.Color("6")),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		info:    r.NewStyle().Foreground(lipgloss.Color("#FFB3BA")),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (r *Reporter) println(at Verbosity, style lipgloss.Style, text string) {
	if r.level < at {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, style.Render(text))
}

// Header prints a prominent banner.
func (r *Reporter) Header(message string) {
	rule := strings.Repeat("=", ruleWidth)
	r.println(VerbosityNormal, r.header, rule+"\n  "+message+"\n"+rule)
}

// Section prints a section title.
func (r *Reporter) Section(title string) {
	r.println(VerbosityNormal, r.section, "\n▶ "+title)
	r.println(VerbosityNormal, r.muted, strings.Repeat("─", 50))
}

func (r *Reporter) Successf(format string, args ...any) {
	r.println(VerbosityNormal, r.success, "✓ "+fmt.Sprintf(format, args...))
}

func (r *Reporter) Infof(format string, args ...any) {
	r.println(VerbosityNormal, r.info, fmt.Sprintf(format, args...))
}

func (r *Reporter) Warningf(format string, args ...any) {
	r.println(VerbosityQuiet, r.warning, "⚠ Warning: "+fmt.Sprintf(format, args...))
}

func (r *Reporter) Errorf(format string, args ...any) {
	r.println(VerbosityQuiet, r.failure, "✗ Error: "+fmt.Sprintf(format, args...))
}

// Verbosef prints detail shown only in verbose mode.
func (r *Reporter) Verbosef(format string, args ...any) {
	r.println(VerbosityVerbose, r.muted, "→ "+fmt.Sprintf(format, args...))
}

// Debugf prints detail shown only in debug mode.
func (r *Reporter) Debugf(format string, args ...any) {
	r.println(VerbosityDebug, r.muted, "[DEBUG] "+fmt.Sprintf(format, args...))
}

// Emit renders one progress event.
func (r *Reporter) Emit(ev executor.Event) {
	r.Debugf("%s run=%s step=%s order=%d", ev.Type, ev.RunID, ev.StepID, ev.Order)

	switch ev.Type {
	case executor.EventRunStarted:
		title := ev.Workflow
		if ev.RowID != "" {
			title += " · row " + ev.RowID
		}
		if ev.Category != "" {
			title += " · " + ev.Category
		}
		r.Section(title)
	case executor.EventStepStarting:
		r.Verbosef("[%d] %s", ev.Order, ev.StepID)
	case executor.EventStepComplete:
		r.println(VerbosityNormal, r.success, fmt.Sprintf("  ✓ %s", ev.StepID))
		r.Verbosef("%s", ev.Message)
	case executor.EventStepError:
		r.println(VerbosityNormal, r.failure, fmt.Sprintf("  ✗ %s", ev.StepID))
		r.println(VerbosityNormal, r.muted, "    "+ev.Message)
	case executor.EventStepUnresolved:
		r.Warningf("no branch for %q at order %d", ev.Category, ev.Order)
	case executor.EventRunDone:
		r.status(ev.Status, ev.Message)
	}
}

func (r *Reporter) status(status executor.Status, message string) {
	switch status {
	case executor.StatusSuccess:
		r.Successf("%s", message)
	case executor.StatusCancelled:
		r.println(VerbosityQuiet, r.warning, "⚠ Cancelled: "+message)
	default:
		r.Errorf("%s", message)
	}
}

// Summary prints the outcome of a single run.
func (r *Reporter) Summary(result *executor.ExecutionResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "  Status: %s\n", result.Status)
	fmt.Fprintf(&b, "  Workflow: %s\n", result.Workflow)
	fmt.Fprintf(&b, "  Run: %s\n", result.RunID)
	fmt.Fprintf(&b, "  Duration: %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "  Steps: %d completed, %d failed", result.StepsCompleted, result.StepsFailed)
	if len(result.Unresolved) > 0 {
		fmt.Fprintf(&b, "\n  Unresolved branches at order: %s", joinInts(result.Unresolved))
	}
	if len(result.Context) > 0 && r.level >= VerbosityVerbose {
		b.WriteString("\n  Context:")
		for _, k := range sortedKeys(result.Context) {
			fmt.Fprintf(&b, "\n    %s = %s", k, result.Context[k])
		}
	}
	r.summary(b.String(), result.Success)
	if result.Err != nil {
		r.println(VerbosityQuiet, r.failure, "  Error Details:\n    "+result.Err.Error())
	}
}

// BatchSummary prints the totals of a batch.
func (r *Reporter) BatchSummary(batch *executor.BatchResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "  Rows: %d\n", batch.Total)
	fmt.Fprintf(&b, "  Attempted: %d\n", batch.Attempted())
	fmt.Fprintf(&b, "  Succeeded: %d\n", batch.SuccessCount)
	fmt.Fprintf(&b, "  Failed: %d", batch.FailureCount)
	if batch.Cancelled {
		b.WriteString("\n  Cancelled before completion")
	}
	for _, res := range batch.Results {
		if !res.Success && r.level >= VerbosityVerbose {
			fmt.Fprintf(&b, "\n    row %s: %s", res.RowID, res.Message)
		}
	}
	r.summary(b.String(), batch.FailureCount == 0 && !batch.Cancelled)
}

func (r *Reporter) summary(body string, ok bool) {
	rule := strings.Repeat("=", ruleWidth)
	r.println(VerbosityQuiet, r.header, "\n"+rule+"\n  EXECUTION SUMMARY\n"+rule)
	style := r.failure
	if ok {
		style = r.success
	}
	r.println(VerbosityQuiet, style, body)
	r.println(VerbosityQuiet, r.header, rule)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
