package workflow

import (
	"errors"
	"strings"
	"unicode"
)

// DefaultBranch is the condition value of fallback branches.
const DefaultBranch = "DEFAULT"

// ErrBranchUnresolved reports a conditioned slot with no matching branch and no default.
var ErrBranchUnresolved = errors.New("no branch matches the condition value and no default is defined")

// NormalizeCondition upper-cases v and collapses every run of whitespace or
// punctuation into a single hyphen, trimming hyphens at either end.
func NormalizeCondition(v string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(v) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// Selection is the step sub-sequence applicable to one condition value.
type Selection struct {
	Steps []*Step
	// Unresolved holds the orders of conditioned slots that matched nothing.
	Unresolved []int
}

// SelectSteps picks the steps that apply to conditionValue. Unconditioned steps are
// always kept. Within each order slot, conditioned steps are kept when their condition
// matches, else the slot's default branch is kept, else the slot is unresolved.
func SelectSteps(wf *Workflow, conditionValue string) Selection {
	want := NormalizeCondition(conditionValue)

	var sel Selection
	steps := wf.Sorted()
	for start := 0; start < len(steps); {
		end := start
		for end < len(steps) && steps[end].Order == steps[start].Order {
			end++
		}
		sel.add(steps[start:end], want)
		start = end
	}
	return sel
}

func (sel *Selection) add(slot []*Step, want string) {
	var matched, defaults []*Step
	conditioned := false
	for _, s := range slot {
		switch {
		case s.Condition == "":
			sel.Steps = append(sel.Steps, s)
		case strings.EqualFold(s.Condition, DefaultBranch):
			conditioned = true
			defaults = append(defaults, s)
		default:
			conditioned = true
			if want != "" && NormalizeCondition(s.Condition) == want {
				matched = append(matched, s)
			}
		}
	}
	if !conditioned {
		return
	}
	switch {
	case len(matched) > 0:
		sel.Steps = append(sel.Steps, matched...)
	case len(defaults) > 0:
		sel.Steps = append(sel.Steps, defaults...)
	default:
		sel.Unresolved = append(sel.Unresolved, slot[0].Order)
	}
}
