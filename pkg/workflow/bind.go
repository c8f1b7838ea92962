package workflow

import (
	"fmt"
	"strings"
)

// Bind computes the concrete value of step for row and rc.
//
// A field value yields the row field as a string. Static and template text has each
// {{name}} placeholder replaced from row, else rc, else the empty string; text without
// placeholders passes through unchanged. Missing values are not errors. An unclosed or
// empty placeholder is a configuration error.
func Bind(step *Step, row Row, rc *RunContext) (string, error) {
	switch step.Value.Kind {
	case ValueField:
		v, _ := row.Get(step.Value.Text)
		return v, nil
	case ValueStatic, ValueTemplate:
		return Render(step.Value.Text, row, rc)
	}
	return "", fmt.Errorf("%w: step %s has unknown value kind %d", ErrConfiguration, step.ID, step.Value.Kind)
}

// Render substitutes placeholders in text.
func Render(text string, row Row, rc *RunContext) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	var b strings.Builder
	rest := text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:open])

		closing := strings.Index(rest[open+2:], "}}")
		if closing < 0 {
			return "", fmt.Errorf("%w: unclosed placeholder in %q", ErrConfiguration, text)
		}
		name := strings.TrimSpace(rest[open+2 : open+2+closing])
		if name == "" {
			return "", fmt.Errorf("%w: empty placeholder in %q", ErrConfiguration, text)
		}
		b.WriteString(lookup(name, row, rc))
		rest = rest[open+2+closing+2:]
	}
}

// Placeholders returns the names referenced by text, in order of appearance.
func Placeholders(text string) []string {
	var names []string
	rest := text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			return names
		}
		closing := strings.Index(rest[open+2:], "}}")
		if closing < 0 {
			return names
		}
		if name := strings.TrimSpace(rest[open+2 : open+2+closing]); name != "" {
			names = append(names, name)
		}
		rest = rest[open+2+closing+2:]
	}
}

func lookup(name string, row Row, rc *RunContext) string {
	if v, ok := row.Get(name); ok {
		return v
	}
	if v, ok := rc.Get(name); ok {
		return v
	}
	return ""
}
