package recorder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/workflow"
)

var (
	codePattern    = regexp.MustCompile(`^[A-Za-z0-9]{1,10}([-_/.][A-Za-z0-9]{1,10})+$`)
	digitsPattern  = regexp.MustCompile(`^\d{6,}$`)
	hasDigit       = regexp.MustCompile(`\d`)
	nonIdentifiers = regexp.MustCompile(`[^a-z0-9]+`)
)

// fieldVocabulary maps element hint keywords to row field names, checked in order.
var fieldVocabulary = []struct {
	keywords []string
	field    string
}{
	{[]string{"serial"}, "SERIAL"},
	{[]string{"product", "prod"}, "PRODUCT"},
	{[]string{"item", "part"}, "ITEM"},
	{[]string{"desc"}, "DESCRIPTION"},
	{[]string{"account", "acct"}, "ACCOUNT"},
}

// LooksLikeData reports whether a captured value looks like external data rather than
// a constant: a short alphanumeric code with separators containing a digit, or a long
// digit run.
func LooksLikeData(value string) bool {
	value = strings.TrimSpace(value)
	if digitsPattern.MatchString(value) {
		return true
	}
	return codePattern.MatchString(value) && hasDigit.MatchString(value)
}

// GuessField guesses the row field an element is bound to from its name, label,
// placeholder and id. It returns "" when no vocabulary keyword matches.
func GuessField(info locator.ElementInfo) string {
	hints := strings.ToLower(strings.Join([]string{info.Name, info.Label, info.Placeholder, info.ID}, " "))
	for _, entry := range fieldVocabulary {
		for _, kw := range entry.keywords {
			if strings.Contains(hints, kw) {
				return entry.field
			}
		}
	}
	return ""
}

// ExportToWorkflow turns the recorded actions into a workflow named name and the
// locators its steps reference. Values that look like external data and have a
// guessable field become row field references; everything else stays static.
func (r *Recorder) ExportToWorkflow(name string) (*workflow.Workflow, locator.Set) {
	actions := r.Actions()

	wf := &workflow.Workflow{Name: name}
	locators := make(locator.Set)
	byElement := make(map[string]string)
	stepIDs := make(map[string]bool)

	for i := range actions {
		a := &actions[i]
		step := &workflow.Step{
			Order:      i + 1,
			Action:     a.Action,
			MaxRetries: workflow.DefaultMaxRetries,
			PressKey:   a.PressKey,
		}

		if a.Action.NeedsElement() {
			if len(a.Strategies) == 0 {
				r.logger.Warnf("export: action %d has no usable strategies, skipping", a.Seq)
				continue
			}
			key := a.key()
			locName, ok := byElement[key]
			if !ok {
				locName = uniqueName(locators, locatorName(a))
				locators[locName] = &locator.Locator{Name: locName, Strategies: a.Strategies}
				byElement[key] = locName
			}
			step.Locator = locName
		}

		switch a.Action {
		case workflow.ActionFill, workflow.ActionSelect:
			step.Value = workflow.Static(a.Value)
			if LooksLikeData(a.Value) {
				if field := GuessField(a.Element); field != "" {
					step.Value = workflow.Field(field)
				}
			}
			if a.Action == workflow.ActionFill {
				step.ClearBeforeFill = true
			}
		case workflow.ActionCheck, workflow.ActionPressKey:
			step.Value = workflow.Static(a.Value)
		}

		base := string(a.Action)
		if step.Locator != "" {
			base += "_" + step.Locator
		} else if a.Action == workflow.ActionPressKey {
			base += "_" + identifier(a.Value)
		}
		step.ID = nextFree(base, func(id string) bool { return stepIDs[id] })
		stepIDs[step.ID] = true
		wf.Steps = append(wf.Steps, step)
	}
	return wf, locators
}

// locatorName derives a readable locator name from the most meaningful hint.
func locatorName(a *ProcessedAction) string {
	info := a.Element
	for _, hint := range []string{info.TestID, info.Name, info.Label, info.AriaLabel, info.Placeholder, info.ID, info.Text} {
		if !locator.IsDynamicID(hint) {
			if id := identifier(hint); id != "" {
				return id
			}
		}
	}
	if info.Tag != "" {
		return info.Tag
	}
	return "element"
}

// identifier lowercases s and joins its alphanumeric runs with underscores, keeping at
// most five words.
func identifier(s string) string {
	words := strings.Fields(nonIdentifiers.ReplaceAllString(strings.ToLower(s), " "))
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, "_")
}

func uniqueName(set locator.Set, name string) string {
	return nextFree(name, func(candidate string) bool {
		_, ok := set[candidate]
		return ok
	})
}

// nextFree returns name, or the first of name_2, name_3, ... that is not taken.
func nextFree(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	for n := 2; ; n++ {
		if candidate := fmt.Sprintf("%s_%d", name, n); !taken(candidate) {
			return candidate
		}
	}
}
