package recorder

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/browser/browsertest"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/workflow"
)

func payload(t *testing.T, ev event) string {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return string(data)
}

func serialInput() *eventElement {
	return &eventElement{
		Tag:       "input",
		Name:      "serialNo",
		Type:      "text",
		Label:     "Serial number",
		OuterHTML: `<input name="serialNo" type="text" data-testid="serial">`,
		CSSPath:   "form > input:nth-of-type(1)",
		XPath:     "/html[1]/body[1]/form[1]/input[1]",
	}
}

func saveButton() *eventElement {
	return &eventElement{
		Tag:       "button",
		ID:        "save",
		Text:      "Save",
		OuterHTML: `<button id="save">Save</button>`,
		CSSPath:   "button#save",
		XPath:     "/html[1]/body[1]/form[1]/button[1]",
	}
}

func startRecording(t *testing.T, opts Options) (*Recorder, *browsertest.Page) {
	t.Helper()
	page := browsertest.NewPage()
	rec := New(page, nil)
	ok, err := rec.Start(context.Background(), "https://app.example.com/items/new", "rec-1", opts)
	require.NoError(t, err)
	require.True(t, ok)
	return rec, page
}

func emit(t *testing.T, page *browsertest.Page, ev event) {
	t.Helper()
	require.NoError(t, page.Emit(bindingName, payload(t, ev)))
}

func TestStartInstallsCaptureScript(t *testing.T) {
	rec, page := startRecording(t, Options{})

	assert.True(t, rec.Recording())
	assert.Equal(t, "rec-1", rec.SessionID())
	assert.Equal(t, []string{"https://app.example.com/items/new"}, page.Navigations())
	require.Len(t, page.InitScripts(), 1)
	assert.Contains(t, page.InitScripts()[0], bindingName)

	ok, err := rec.Start(context.Background(), "https://other", "rec-2", Options{})
	require.NoError(t, err)
	assert.False(t, ok, "a second Start while recording is refused")

	rec.Stop()
	ok, err = rec.Start(context.Background(), "", "", Options{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, page.InitScripts(), 1, "the script is installed once per page")
	assert.NotEmpty(t, rec.SessionID())
}

func TestStartRejectsBadIgnorePattern(t *testing.T) {
	rec := New(browsertest.NewPage(), nil)
	_, err := rec.Start(context.Background(), "", "x", Options{Ignore: []string{"[unclosed"}})
	assert.Error(t, err)
	assert.False(t, rec.Recording())
}

func TestRecordCoalescesInput(t *testing.T) {
	rec, page := startRecording(t, Options{})

	emit(t, page, event{Type: "click", Element: serialInput()})
	emit(t, page, event{Type: "input", Value: "SN", Element: serialInput()})
	emit(t, page, event{Type: "input", Value: "SN-1001", Element: serialInput()})
	emit(t, page, event{Type: "change", Value: "SN-1001", Element: serialInput()})
	emit(t, page, event{Type: "keydown", Key: "Tab", Element: serialInput()})
	emit(t, page, event{Type: "click", Element: saveButton()})
	emit(t, page, event{Type: "submit", Element: saveButton()})

	actions := rec.Stop()
	require.Len(t, actions, 2)

	fill := actions[0]
	assert.Equal(t, 1, fill.Seq)
	assert.Equal(t, workflow.ActionFill, fill.Action)
	assert.Equal(t, "SN-1001", fill.Value)
	assert.Equal(t, "Tab", fill.PressKey)
	require.NotEmpty(t, fill.Strategies)
	assert.Equal(t, locator.Strategy{Kind: locator.KindTestID, Value: "serial", Priority: 1}, fill.Strategies[0])

	click := actions[1]
	assert.Equal(t, 2, click.Seq)
	assert.Equal(t, workflow.ActionClick, click.Action)
}

func TestRecordKeysAndToggles(t *testing.T) {
	rec, page := startRecording(t, Options{})
	box := &eventElement{Tag: "input", Type: "checkbox", Name: "active", CSSPath: "input[name=active]", XPath: "/input[1]"}
	country := &eventElement{Tag: "select", Name: "country", CSSPath: "select", XPath: "/select[1]"}

	emit(t, page, event{Type: "click", Checked: true, Element: box})
	emit(t, page, event{Type: "change", Checked: true, Element: box})
	emit(t, page, event{Type: "input", Value: "NZ", Element: country})
	emit(t, page, event{Type: "change", Value: "NZ", Element: country})
	emit(t, page, event{Type: "keydown", Key: "Escape"})

	actions := rec.Stop()
	require.Len(t, actions, 3)
	assert.Equal(t, workflow.ActionCheck, actions[0].Action)
	assert.Equal(t, "true", actions[0].Value)
	assert.Equal(t, workflow.ActionSelect, actions[1].Action)
	assert.Equal(t, "NZ", actions[1].Value)
	assert.Equal(t, workflow.ActionPressKey, actions[2].Action)
	assert.Equal(t, "Escape", actions[2].Value)
	assert.Equal(t, []int{1, 2, 3}, []int{actions[0].Seq, actions[1].Seq, actions[2].Seq})
}

func TestRecordIgnorePatterns(t *testing.T) {
	rec, page := startRecording(t, Options{Ignore: []string{"#chat-*", "*.cookie-banner*"}})

	emit(t, page, event{Type: "click", Element: &eventElement{Tag: "button", ID: "chat-open", CSSPath: "button#chat-open"}})
	emit(t, page, event{Type: "click", Element: &eventElement{Tag: "a", CSSPath: "div.cookie-banner > a", Text: "Accept"}})
	emit(t, page, event{Type: "click", Element: saveButton()})

	actions := rec.Stop()
	require.Len(t, actions, 1)
	assert.Equal(t, "save", actions[0].Element.ID)
}

func TestRecordDropsEventsWhenStopped(t *testing.T) {
	rec, page := startRecording(t, Options{})
	rec.Stop()

	emit(t, page, event{Type: "click", Element: saveButton()})
	require.NoError(t, page.Emit(bindingName, "{not json"))
	assert.Empty(t, rec.Actions())
}

func TestPoll(t *testing.T) {
	dir := t.TempDir()
	rec, page := startRecording(t, Options{ScreenshotDir: dir})

	emit(t, page, event{Type: "click", Element: saveButton()})
	first := rec.Poll()
	require.Len(t, first, 1)
	assert.NotEmpty(t, first[0].Screenshot)
	assert.Equal(t, page.Screenshots(), []string{first[0].Screenshot})

	assert.Empty(t, rec.Poll())

	emit(t, page, event{Type: "input", Value: "x", Element: serialInput()})
	second := rec.Poll()
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].Seq)
}

func TestStopCapturesUnpolledActions(t *testing.T) {
	rec, page := startRecording(t, Options{ScreenshotDir: t.TempDir()})

	emit(t, page, event{Type: "click", Element: saveButton()})
	require.Len(t, rec.Poll(), 1)
	emit(t, page, event{Type: "input", Value: "x", Element: serialInput()})

	actions := rec.Stop()
	require.Len(t, actions, 2)
	assert.NotEmpty(t, actions[0].Screenshot)
	assert.NotEmpty(t, actions[1].Screenshot)
	assert.Len(t, page.Screenshots(), 2, "each action is captured once")
}

func TestPollScreenshotFailureIsIgnored(t *testing.T) {
	rec, page := startRecording(t, Options{ScreenshotDir: t.TempDir()})
	page.ScreenshotErr = assert.AnError

	emit(t, page, event{Type: "click", Element: saveButton()})
	actions := rec.Poll()
	require.Len(t, actions, 1)
	assert.Empty(t, actions[0].Screenshot)
}

func TestLooksLikeData(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"SN-1001", true},
		{"AB/12/C", true},
		{"1234567", true},
		{"12345", false},
		{"hello-world", false},
		{"Widget", false},
		{"a very long description 1", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeData(tt.value))
		})
	}
}

func TestGuessField(t *testing.T) {
	tests := []struct {
		name string
		info locator.ElementInfo
		want string
	}{
		{"name", locator.ElementInfo{Name: "serialNo"}, "SERIAL"},
		{"label", locator.ElementInfo{Label: "Product code"}, "PRODUCT"},
		{"placeholder", locator.ElementInfo{Placeholder: "Part number"}, "ITEM"},
		{"id", locator.ElementInfo{ID: "acct-number"}, "ACCOUNT"},
		{"description", locator.ElementInfo{Name: "desc"}, "DESCRIPTION"},
		{"no match", locator.ElementInfo{Name: "email"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GuessField(tt.info))
		})
	}
}

func TestExportToWorkflow(t *testing.T) {
	rec, page := startRecording(t, Options{})
	notes := &eventElement{Tag: "textarea", Name: "notes", CSSPath: "textarea", XPath: "/textarea[1]"}

	emit(t, page, event{Type: "input", Value: "SN-1001", Element: serialInput()})
	emit(t, page, event{Type: "input", Value: "fragile", Element: notes})
	emit(t, page, event{Type: "click", Element: saveButton()})
	emit(t, page, event{Type: "click", Element: saveButton()})
	emit(t, page, event{Type: "keydown", Key: "Escape"})
	rec.Stop()

	wf, locators := rec.ExportToWorkflow("create_item")
	assert.Equal(t, "create_item", wf.Name)
	require.Len(t, wf.Steps, 5)

	serial := wf.Steps[0]
	assert.Equal(t, "fill_serial", serial.ID)
	assert.Equal(t, workflow.Field("SERIAL"), serial.Value)
	assert.True(t, serial.ClearBeforeFill)
	assert.Equal(t, 1, serial.Order)

	assert.Equal(t, workflow.Static("fragile"), wf.Steps[1].Value)
	assert.Equal(t, "click_save", wf.Steps[2].ID)
	assert.Equal(t, "click_save_2", wf.Steps[3].ID)
	assert.Equal(t, wf.Steps[2].Locator, wf.Steps[3].Locator, "one locator per element")
	assert.Equal(t, "press-key_escape", wf.Steps[4].ID)
	assert.Empty(t, wf.Steps[4].Locator)

	assert.ElementsMatch(t, []string{"serial", "notes", "save"}, locators.Names())
	for _, step := range wf.Steps {
		if step.Locator != "" {
			_, err := locators.Lookup(step.Locator)
			assert.NoError(t, err)
		}
	}

	def := workflow.NewDefinition(wf, locators)
	require.NoError(t, def.Validate())
	assert.Empty(t, def.Problems())
}

func TestExportStepIDsAreUnique(t *testing.T) {
	rec, page := startRecording(t, Options{})
	other := serialInput()
	other.XPath = "/html[1]/body[1]/form[2]/input[1]"
	other.CSSPath = "form:nth-of-type(2) > input"

	emit(t, page, event{Type: "input", Value: "first", Element: serialInput()})
	emit(t, page, event{Type: "click", Element: saveButton()})
	emit(t, page, event{Type: "input", Value: "second", Element: serialInput()})
	emit(t, page, event{Type: "input", Value: "third", Element: other})
	rec.Stop()

	wf, locators := rec.ExportToWorkflow("twice")
	require.Len(t, wf.Steps, 4)
	assert.Equal(t, "fill_serial", wf.Steps[0].ID)
	assert.Equal(t, "fill_serial_2", wf.Steps[2].ID)
	assert.Equal(t, "fill_serial_2_2", wf.Steps[3].ID)
	assert.Equal(t, "serial", wf.Steps[2].Locator)
	assert.Equal(t, "serial_2", wf.Steps[3].Locator)

	data, err := workflow.NewDefinition(wf, locators).Marshal()
	require.NoError(t, err)
	def, err := workflow.Parse(data)
	require.NoError(t, err)
	loaded, err := def.Workflow("twice")
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 4)
	for i, step := range loaded.Steps {
		assert.Equal(t, wf.Steps[i].Locator, step.Locator, "step %s", step.ID)
		assert.Equal(t, wf.Steps[i].Value, step.Value, "step %s", step.ID)
	}
}
