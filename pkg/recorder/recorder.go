// Package recorder captures user interaction on a live page and turns it into workflow
// steps and locators.
//
// A capture script installed on the page reports clicks, changes, debounced input,
// submits and Enter/Tab/Escape key presses. Each report becomes a ProcessedAction with a
// monotonic sequence number and locator strategies synthesized from the element. Poll
// drains new actions while recording; Stop ends the recording; ExportToWorkflow turns
// the actions into a workflow and its locator set.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/workflow"
)

// Options configures a recording.
type Options struct {
	// Ignore holds glob patterns matched against an element's CSS path and id, with and
	// without a leading '#'. Matching interactions are dropped.
	Ignore []string
	// ScreenshotDir enables a best-effort screenshot per action, taken when the action
	// is first polled.
	ScreenshotDir string
}

// ProcessedAction is one recorded interaction.
type ProcessedAction struct {
	Seq    int
	Action workflow.Action
	// Value is the filled or selected value, the key of a press-key action, or
	// "true"/"false" for check actions.
	Value string
	// PressKey is a key pressed on the element right after a fill.
	PressKey   string
	URL        string
	Timestamp  time.Time
	Element    locator.ElementInfo
	Strategies []locator.Strategy
	Screenshot string
}

// key identifies the element an action targets.
func (a *ProcessedAction) key() string {
	if a.Element.XPath != "" {
		return a.Element.XPath
	}
	return a.Element.CSSPath
}

// Recorder records interaction on one page. A Recorder is safe for concurrent use; the
// page reports events from its own goroutine.
type Recorder struct {
	page   browser.Page
	logger *logging.Logger
	now    func() time.Time

	mu        sync.Mutex
	installed bool
	recording bool
	ctx       context.Context
	sessionID string
	opts      Options
	ignore    []glob.Glob
	seq       int
	actions   []*ProcessedAction
	polled    int
}

// New returns a recorder for page.
func New(page browser.Page, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{page: page, logger: logger, now: time.Now}
}

// Start installs the capture script, navigates to url and begins recording. It returns
// false without error when a recording is already in progress. An empty sessionID gets
// a generated one.
func (r *Recorder) Start(ctx context.Context, url, sessionID string, opts Options) (bool, error) {
	ignore := make([]glob.Glob, 0, len(opts.Ignore))
	for _, pattern := range opts.Ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		ignore = append(ignore, g)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return false, nil
	}
	needsInstall := !r.installed
	r.recording = true
	r.ctx = ctx
	r.sessionID = sessionID
	r.opts = opts
	r.ignore = ignore
	r.seq = 0
	r.actions = nil
	r.polled = 0
	r.mu.Unlock()

	if needsInstall {
		if err := r.install(); err != nil {
			r.abort()
			return false, err
		}
	}
	if url != "" {
		if err := r.page.Navigate(ctx, url); err != nil {
			r.abort()
			return false, fmt.Errorf("failed to open %s: %w", url, err)
		}
	}
	r.logger.Infof("recording %s started at %s", sessionID, url)
	return true, nil
}

func (r *Recorder) install() error {
	if err := r.page.Expose(bindingName, r.handle); err != nil {
		return fmt.Errorf("failed to expose recorder binding: %w", err)
	}
	if err := r.page.AddInitScript(captureScript); err != nil {
		return fmt.Errorf("failed to install capture script: %w", err)
	}
	r.mu.Lock()
	r.installed = true
	r.mu.Unlock()
	return nil
}

func (r *Recorder) abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// SessionID returns the id of the current or last recording.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Poll returns the actions recorded since the previous Poll. Input arriving later for
// an already polled fill updates that action in place; Stop and Actions report it.
func (r *Recorder) Poll() []ProcessedAction {
	r.mu.Lock()
	fresh := r.actions[r.polled:]
	r.polled = len(r.actions)
	ctx, dir := r.ctx, r.opts.ScreenshotDir
	r.mu.Unlock()

	if dir != "" {
		for _, a := range fresh {
			r.capture(ctx, dir, a)
		}
	}
	return r.copyActions(fresh)
}

// Stop ends the recording and returns every recorded action. Actions no Poll has
// returned yet get their screenshots here.
func (r *Recorder) Stop() []ProcessedAction {
	r.mu.Lock()
	r.recording = false
	all := r.actions
	fresh := r.actions[r.polled:]
	r.polled = len(r.actions)
	ctx, dir := r.ctx, r.opts.ScreenshotDir
	r.mu.Unlock()

	if dir != "" {
		for _, a := range fresh {
			r.capture(ctx, dir, a)
		}
	}
	r.logger.Infof("recording %s stopped with %d action(s)", r.SessionID(), len(all))
	return r.copyActions(all)
}

// Actions returns every recorded action so far.
func (r *Recorder) Actions() []ProcessedAction {
	r.mu.Lock()
	all := r.actions
	r.mu.Unlock()
	return r.copyActions(all)
}

func (r *Recorder) copyActions(actions []*ProcessedAction) []ProcessedAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProcessedAction, 0, len(actions))
	for _, a := range actions {
		c := *a
		c.Strategies = append([]locator.Strategy(nil), a.Strategies...)
		out = append(out, c)
	}
	return out
}

// capture takes the best-effort screenshot of an action.
func (r *Recorder) capture(ctx context.Context, dir string, a *ProcessedAction) {
	r.mu.Lock()
	done := a.Screenshot != ""
	sessionID := r.sessionID
	r.mu.Unlock()
	if done || ctx == nil {
		return
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		r.logger.Warnf("recorder screenshot: %v", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%04d.png", sessionID, a.Seq))
	if err := r.page.Screenshot(ctx, path); err != nil {
		r.logger.Warnf("recorder screenshot for action %d: %v", a.Seq, err)
		return
	}
	r.mu.Lock()
	a.Screenshot = path
	r.mu.Unlock()
}

// event is the payload reported by the capture script.
type event struct {
	Type    string        `json:"type"`
	Key     string        `json:"key"`
	Value   string        `json:"value"`
	Checked bool          `json:"checked"`
	URL     string        `json:"url"`
	TS      int64         `json:"ts"`
	Element *eventElement `json:"element"`
}

type eventElement struct {
	Tag         string `json:"tag"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	TestID      string `json:"testId"`
	AriaLabel   string `json:"ariaLabel"`
	Role        string `json:"role"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder"`
	Label       string `json:"label"`
	Text        string `json:"text"`
	OuterHTML   string `json:"outerHTML"`
	CSSPath     string `json:"cssPath"`
	XPath       string `json:"xpath"`
}

// handle receives one payload from the page.
func (r *Recorder) handle(payload string) {
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.Warnf("recorder: dropping malformed event: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	if ev.Element != nil && r.ignored(ev.Element) {
		r.logger.Debugf("recorder: ignoring %s on %s", ev.Type, ev.Element.CSSPath)
		return
	}
	r.process(ev)
}

func (r *Recorder) ignored(el *eventElement) bool {
	candidates := []string{el.CSSPath}
	if el.ID != "" {
		candidates = append(candidates, el.ID, "#"+el.ID)
	}
	for _, g := range r.ignore {
		for _, c := range candidates {
			if c != "" && g.Match(c) {
				return true
			}
		}
	}
	return false
}

// process maps an event onto the action list. Caller holds r.mu.
func (r *Recorder) process(ev event) {
	at := r.now()
	if ev.TS > 0 {
		at = time.UnixMilli(ev.TS)
	}
	action := &ProcessedAction{URL: ev.URL, Timestamp: at}
	if ev.Element != nil {
		action.Element = describe(ev.Element)
		action.Strategies = locator.GenerateStrategies(action.Element)
	}
	last := r.last()

	switch ev.Type {
	case "click":
		if ev.Element == nil {
			return
		}
		switch {
		case isToggle(ev.Element):
			action.Action = workflow.ActionCheck
			action.Value = fmt.Sprint(ev.Checked)
		case isTextEntry(ev.Element):
			// Focus clicks on text fields are implied by the fill that follows.
			return
		default:
			action.Action = workflow.ActionClick
		}

	case "input", "change":
		if ev.Element == nil {
			return
		}
		switch {
		case isToggle(ev.Element):
			// The click already produced the check action; keep its final state.
			if last != nil && last.Action == workflow.ActionCheck && last.key() == action.key() {
				last.Value = fmt.Sprint(ev.Checked)
				return
			}
			action.Action = workflow.ActionCheck
			action.Value = fmt.Sprint(ev.Checked)
		case ev.Element.Tag == "select":
			if last != nil && last.Action == workflow.ActionSelect && last.key() == action.key() {
				last.Value = ev.Value
				return
			}
			action.Action = workflow.ActionSelect
			action.Value = ev.Value
		default:
			if last != nil && last.Action == workflow.ActionFill && last.key() == action.key() && last.PressKey == "" {
				last.Value = ev.Value
				return
			}
			action.Action = workflow.ActionFill
			action.Value = ev.Value
		}

	case "submit":
		if ev.Element == nil {
			return
		}
		if last != nil && ((last.Action == workflow.ActionClick && last.key() == action.key()) || last.PressKey == "Enter" || (last.Action == workflow.ActionPressKey && last.Value == "Enter")) {
			return
		}
		action.Action = workflow.ActionClick

	case "keydown":
		if ev.Key == "" {
			return
		}
		if last != nil && last.Action == workflow.ActionFill && ev.Key != "Escape" && last.PressKey == "" &&
			(ev.Element == nil || last.key() == action.key()) {
			last.PressKey = ev.Key
			return
		}
		action = &ProcessedAction{Action: workflow.ActionPressKey, Value: ev.Key, URL: ev.URL, Timestamp: at}

	default:
		r.logger.Debugf("recorder: unknown event type %q", ev.Type)
		return
	}

	r.seq++
	action.Seq = r.seq
	r.actions = append(r.actions, action)
}

func (r *Recorder) last() *ProcessedAction {
	if len(r.actions) == 0 {
		return nil
	}
	return r.actions[len(r.actions)-1]
}

// describe merges the reported element with the attributes parsed from its outerHTML.
func describe(el *eventElement) locator.ElementInfo {
	info := locator.ElementInfo{}
	if el.OuterHTML != "" {
		if snapshot, err := browser.ParseElement(el.OuterHTML); err == nil {
			info = locator.InfoFromSnapshot(snapshot)
		}
	}
	fill := func(dst *string, src string) {
		if src = strings.TrimSpace(src); src != "" {
			*dst = src
		}
	}
	fill(&info.Tag, strings.ToLower(el.Tag))
	fill(&info.ID, el.ID)
	fill(&info.Name, el.Name)
	fill(&info.TestID, el.TestID)
	fill(&info.AriaLabel, el.AriaLabel)
	fill(&info.Role, el.Role)
	fill(&info.Type, el.Type)
	fill(&info.Placeholder, el.Placeholder)
	fill(&info.Label, el.Label)
	fill(&info.Text, el.Text)
	fill(&info.CSSPath, el.CSSPath)
	fill(&info.XPath, el.XPath)
	return info
}

func isToggle(el *eventElement) bool {
	t := strings.ToLower(el.Type)
	return el.Tag == "input" && (t == "checkbox" || t == "radio")
}

func isTextEntry(el *eventElement) bool {
	if el.Tag == "textarea" {
		return true
	}
	if el.Tag != "input" {
		return false
	}
	switch strings.ToLower(el.Type) {
	case "", "text", "email", "number", "password", "search", "tel", "url", "date":
		return true
	}
	return false
}
