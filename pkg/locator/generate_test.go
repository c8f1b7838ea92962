package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/browser/browsertest"
)

func TestIsDynamicID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"serial-number", false},
		{"customerName", false},
		{"", false},
		{"a1b2c3d4-e5f6-7890-abcd-ef0123456789", true},
		{"field_a1b2c3d4e5f67890abcdef0123456789", true},
		{"input-48213", true},
		{"row_2024", true},
		{"ember123", true},
		{":r1:", true},
		{"mui-42", true},
		{"ext-gen1043", true},
		{"j_idt17:name", true},
		{"radix-:R1:", true},
		{"__BVID__12", true},
		{"deadbeefdeadbeef", true},
		{"12", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDynamicID(tt.id))
		})
	}
}

func TestGenerateStrategiesOrder(t *testing.T) {
	info := ElementInfo{
		Tag:       "button",
		ID:        "save",
		Name:      "saveBtn",
		TestID:    "save-button",
		AriaLabel: "Save item",
		Text:      "  Save\n item ",
		CSSPath:   "form > button:nth-of-type(2)",
		XPath:     "/html[1]/body[1]/form[1]/button[2]",
	}

	got := GenerateStrategies(info)
	want := []Strategy{
		{Kind: KindTestID, Value: "save-button", Priority: 1},
		{Kind: KindAriaLabel, Value: "Save item", Priority: 2},
		{Kind: KindName, Value: "saveBtn", Priority: 3},
		{Kind: KindID, Value: "save", Priority: 4},
		{Kind: KindCSS, Value: "form > button:nth-of-type(2)", Priority: 5},
		{Kind: KindXPath, Value: "/html[1]/body[1]/form[1]/button[2]", Priority: 6},
		{Kind: KindText, Value: "Save item", Priority: 7},
	}
	assert.Equal(t, want, got)
}

func TestGenerateStrategiesNeverPrefersDynamicIDOverName(t *testing.T) {
	info := ElementInfo{
		Tag:  "input",
		ID:   "3f2b8c1e-9a4d-4f6b-8e2a-1c5d7e9f0a3b",
		Name: "serialNo",
	}

	got := GenerateStrategies(info)
	nameAt, idAt := -1, -1
	for i, s := range got {
		switch s.Kind {
		case KindName:
			nameAt = i
		case KindID:
			idAt = i
		}
	}
	require.NotEqual(t, -1, nameAt)
	if idAt != -1 {
		assert.Less(t, nameAt, idAt)
	}
	assert.Equal(t, -1, idAt)
}

func TestGenerateStrategiesTextOnlyForClickables(t *testing.T) {
	tests := []struct {
		tag      string
		text     string
		wantText bool
	}{
		{"button", "Save", true},
		{"a", "Open order", true},
		{"span", "Close", true},
		{"div", "Save", false},
		{"input", "", false},
		{"button", "This button text is far too long to be a sensible selector for anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.text, func(t *testing.T) {
			got := GenerateStrategies(ElementInfo{Tag: tt.tag, Text: tt.text, CSSPath: tt.tag})
			hasText := false
			for _, s := range got {
				if s.Kind == KindText {
					hasText = true
				}
			}
			assert.Equal(t, tt.wantText, hasText)
		})
	}
}

func TestGenerateStrategiesFromElement(t *testing.T) {
	el := &browsertest.Element{
		HTML: `<input type="text" name="serialNo" id="input-99812" placeholder="Serial">`,
		EvalFunc: func(script string, _ any) (any, error) {
			if script == cssPathScript {
				return "form > input", nil
			}
			return "/html[1]/body[1]/form[1]/input[1]", nil
		},
	}

	got, err := GenerateStrategiesFromElement(el)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Strategy{Kind: KindName, Value: "serialNo", Priority: 1}, got[0])
	assert.Equal(t, KindCSS, got[1].Kind)
	assert.Equal(t, KindXPath, got[2].Kind)
}

func TestDescribeElementRequiresHTML(t *testing.T) {
	_, err := DescribeElement(&browsertest.Element{})
	assert.Error(t, err)
}
