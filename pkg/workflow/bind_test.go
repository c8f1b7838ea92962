package workflow

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	rc := NewRunContext()
	rc.Set("ITEM_NO", "IT-000042")
	rc.Set("SERIAL", "from-context")

	row := Row{"SERIAL": "SN-1001", "QTY": 4, "NOTE": nil}

	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"static passthrough", Static("Create item"), "Create item"},
		{"field", Field("SERIAL"), "SN-1001"},
		{"numeric field stringified", Field("QTY"), "4"},
		{"missing field", Field("ACCOUNT"), ""},
		{"row wins over context", Template("{{SERIAL}}"), "SN-1001"},
		{"context fallback", Template("item {{ITEM_NO}}"), "item IT-000042"},
		{"missing placeholder empty", Template("[{{ACCOUNT}}]"), "[]"},
		{"nil row value falls through", Template("{{NOTE}}"), ""},
		{"spaces trimmed", Template("{{ SERIAL }}/{{QTY}}"), "SN-1001/4"},
		{"static with placeholder", Static("S:{{SERIAL}}"), "S:SN-1001"},
		{"stray closing braces kept", Static("a }} b"), "a }} b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bind(&Step{ID: "s", Value: tt.value}, row, rc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindAllPresentLeavesNoPlaceholders(t *testing.T) {
	row := Row{"A": "1", "B": "two", "C": "3"}
	step := &Step{Value: Template("{{A}}-{{B}}-{{ C }}")}

	first, err := Bind(step, row, NewRunContext())
	require.NoError(t, err)
	assert.NotContains(t, first, "{{")
	assert.NotContains(t, first, "}}")

	second, err := Bind(step, row, NewRunContext())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBindMalformed(t *testing.T) {
	for _, text := range []string{"{{SERIAL", "x {{ }} y", "{{}}"} {
		t.Run(text, func(t *testing.T) {
			_, err := Bind(&Step{Value: Template(text)}, Row{}, NewRunContext())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
		})
	}
}

func TestBindNilContext(t *testing.T) {
	got, err := Render("{{X}}", Row{}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Placeholders("{{A}} and {{ B }} and {{"))
	assert.Empty(t, Placeholders(strings.Repeat("x", 10)))
}
