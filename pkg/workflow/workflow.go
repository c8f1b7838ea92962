// Package workflow defines the data model the executor runs: workflows, steps, rows and
// the per-run context, plus the value binder, branch selection and the YAML definition
// format.
package workflow

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrConfiguration marks definition-time defects: unknown references, malformed
// templates and invalid definitions. Steps failing with it are never retried.
var ErrConfiguration = errors.New("configuration error")

// DefaultMaxRetries is the attempt count used when a definition leaves it unset.
const DefaultMaxRetries = 3

// Action is the closed set of things a step can do.
type Action string

const (
	ActionClick         Action = "click"
	ActionFill          Action = "fill"
	ActionSelect        Action = "select"
	ActionCheck         Action = "check"
	ActionHover         Action = "hover"
	ActionScroll        Action = "scroll"
	ActionWait          Action = "wait"
	ActionWaitTime      Action = "wait-time"
	ActionPressKey      Action = "press-key"
	ActionScreenshot    Action = "screenshot"
	ActionAssertText    Action = "assert-text"
	ActionAssertVisible Action = "assert-visible"
)

// Actions lists every action.
var Actions = []Action{
	ActionClick, ActionFill, ActionSelect, ActionCheck, ActionHover, ActionScroll,
	ActionWait, ActionWaitTime, ActionPressKey, ActionScreenshot, ActionAssertText,
	ActionAssertVisible,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// NeedsElement reports whether the action operates on a resolved element.
func (a Action) NeedsElement() bool {
	switch a {
	case ActionWaitTime, ActionPressKey, ActionScreenshot:
		return false
	}
	return true
}

// ValueKind says where a step's value comes from.
type ValueKind int

const (
	// ValueStatic is literal text. Placeholders in it are still substituted.
	ValueStatic ValueKind = iota
	// ValueField reads one row field.
	ValueField
	// ValueTemplate substitutes {{name}} placeholders.
	ValueTemplate
)

func (k ValueKind) String() string {
	switch k {
	case ValueField:
		return "field"
	case ValueTemplate:
		return "template"
	}
	return "static"
}

// Value is a step's value source.
type Value struct {
	Kind ValueKind
	Text string
}

// Static returns a literal value.
func Static(text string) Value { return Value{Kind: ValueStatic, Text: text} }

// Field returns a value read from a row field.
func Field(name string) Value { return Value{Kind: ValueField, Text: name} }

// Template returns a placeholder template value.
func Template(text string) Value { return Value{Kind: ValueTemplate, Text: text} }

// Allocation configures duplicate-safe identifier allocation for a fill step.
type Allocation struct {
	// Category keys the persisted counter.
	Category string
	// Prefix precedes the zero-padded number. Empty uses the step's bound value.
	Prefix string
	// Width zero-pads the number; zero means no padding.
	Width int
	// Start is the first candidate when the counter has never been committed.
	Start int64
	// MaxAttempts bounds the candidates tried.
	MaxAttempts int
	// BannerLocator or BannerText detect the "already assigned" rejection.
	BannerLocator string
	BannerText    string
	// DismissLocator closes the banner; without it Escape is pressed.
	DismissLocator string
}

// DefaultAllocationAttempts bounds allocation when MaxAttempts is unset.
const DefaultAllocationAttempts = 10

// Attempts returns MaxAttempts or the default.
func (a *Allocation) Attempts() int {
	if a.MaxAttempts < 1 {
		return DefaultAllocationAttempts
	}
	return a.MaxAttempts
}

// Format renders a candidate identifier.
func (a *Allocation) Format(prefix string, n int64) string {
	if a.Width > 0 {
		return fmt.Sprintf("%s%0*d", prefix, a.Width, n)
	}
	return fmt.Sprintf("%s%d", prefix, n)
}

// Step is one unit of a workflow.
type Step struct {
	ID     string
	Order  int
	Action Action
	// Locator names the target element for element actions.
	Locator string
	Value   Value
	// Delay runs before the action, WaitAfter after it succeeds.
	Delay     time.Duration
	WaitAfter time.Duration
	// MaxRetries is the total number of attempts; values below 1 mean one.
	MaxRetries      int
	Timeout         time.Duration
	ClearBeforeFill bool
	// Condition is the normalized branch value this step belongs to; empty means
	// unconditioned, DefaultBranch marks the fallback branch.
	Condition       string
	ContinueOnError bool
	// OnError runs once, best effort, when this step fails fatally.
	OnError *Step
	SaveAs  string
	// PressKey is pressed on the page after the action succeeds.
	PressKey string
	// Precheck names a locator that must resolve before the action.
	Precheck string
	Allocate *Allocation
}

// Attempts returns the bounded number of attempts for the step.
func (s *Step) Attempts() int {
	if s.MaxRetries < 1 {
		return 1
	}
	return s.MaxRetries
}

// Workflow is an ordered, optionally branching sequence of steps.
type Workflow struct {
	Name string
	// ConditionField names the row field selecting branches.
	ConditionField string
	// KeyField names the row field used as the row id in progress events.
	KeyField string
	// StrictBranches fails the run when a conditioned slot has no matching branch and
	// no default, instead of skipping the slot.
	StrictBranches bool
	Steps          []*Step
}

// Sorted returns the steps ordered by Order, keeping declaration order for ties.
func (w *Workflow) Sorted() []*Step {
	steps := append([]*Step(nil), w.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

// Row is one unit of external data.
type Row map[string]any

// Get returns the field as a string. Missing and nil fields report false.
func (r Row) Get(field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// RunContext is the mutable variable map of one execution. It is not safe for
// concurrent use and is never shared between runs.
type RunContext struct {
	vars map[string]string
}

// NewRunContext returns an empty context.
func NewRunContext() *RunContext {
	return &RunContext{vars: make(map[string]string)}
}

// Get returns a variable.
func (c *RunContext) Get(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.vars[name]
	return v, ok
}

// Set stores a variable.
func (c *RunContext) Set(name, value string) {
	c.vars[name] = value
}

// Snapshot returns a copy of all variables.
func (c *RunContext) Snapshot() map[string]string {
	out := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}
