// Package browsertest provides in-memory browser.Page and browser.Element fakes for
// exercising the engine without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/pilot/pkg/browser"
)

// Element is a scriptable browser.Element. Zero values describe a visible, enabled
// element with no attributes.
type Element struct {
	mu sync.Mutex

	ID         string
	Hidden     bool
	Disabled   bool
	TextValue  string
	Attrs      map[string]string
	HTML       string
	EvalResult any
	// EvalFunc, when set, answers Evaluate instead of EvalResult.
	EvalFunc func(script string, arg any) (any, error)

	// OnFill runs for every Fill call; a non-nil error fails the fill.
	OnFill func(value string) error
	// OnClick runs for every Click call; a non-nil error fails the click.
	OnClick func() error
	// Err, when set, fails every action with this error.
	Err error

	Value    string
	Checked  bool
	Clicks   int
	Fills    []string
	Clears   int
	Hovers   int
	Scrolls  int
	Selected []string
	Presses  []string
	Shots    []string
}

var _ browser.Element = (*Element)(nil)

// SetHidden toggles visibility.
func (e *Element) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Hidden = hidden
}

// ClickCount returns the number of clicks so far.
func (e *Element) ClickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Clicks
}

// FillValues returns a copy of every value passed to Fill.
func (e *Element) FillValues() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Fills...)
}

func (e *Element) IsVisible() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Hidden, nil
}

func (e *Element) IsEnabled() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Disabled, nil
}

func (e *Element) ScrollIntoView(time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Scrolls++
	return e.Err
}

func (e *Element) Click(time.Duration) error {
	e.mu.Lock()
	e.Clicks++
	hook, err := e.OnClick, e.Err
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		return hook()
	}
	return nil
}

func (e *Element) Fill(value string, _ time.Duration) error {
	e.mu.Lock()
	e.Fills = append(e.Fills, value)
	hook, err := e.OnFill, e.Err
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		if err := hook(value); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.Value = value
	e.mu.Unlock()
	return nil
}

func (e *Element) Clear(time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clears++
	e.Value = ""
	return e.Err
}

func (e *Element) SelectOption(value string, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Selected = append(e.Selected, value)
	return nil
}

func (e *Element) SetChecked(checked bool, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Checked = checked
	return nil
}

func (e *Element) Hover(time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Hovers++
	return e.Err
}

func (e *Element) Press(key string, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Presses = append(e.Presses, key)
	return e.Err
}

func (e *Element) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.TextValue, nil
}

func (e *Element) Attribute(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Attrs[name], nil
}

func (e *Element) OuterHTML() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.HTML == "" {
		return "", fmt.Errorf("no HTML configured for element %q", e.ID)
	}
	return e.HTML, nil
}

func (e *Element) Evaluate(script string, arg any) (any, error) {
	e.mu.Lock()
	fn, result := e.EvalFunc, e.EvalResult
	e.mu.Unlock()
	if fn != nil {
		return fn(script, arg)
	}
	return result, nil
}

func (e *Element) Screenshot(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Shots = append(e.Shots, path)
	return nil
}

// Page is a scriptable browser.Page. Elements are registered per selector string; a
// selector with no registration matches nothing.
type Page struct {
	mu sync.Mutex

	CurrentURL  string
	HTMLContent string

	elements    map[string][]*Element
	queries     []string
	keys        []string
	screenshots []string
	navigations []string
	initScripts []string
	exposed     map[string]func(string)

	// EvalFunc answers Evaluate calls; nil returns (nil, nil).
	EvalFunc func(script string, arg any) (any, error)
	// ScreenshotErr fails every page screenshot.
	ScreenshotErr error
	// QueryErr fails every query.
	QueryErr error
}

var _ browser.Page = (*Page)(nil)

// NewPage returns an empty fake page.
func NewPage() *Page {
	return &Page{
		elements: make(map[string][]*Element),
		exposed:  make(map[string]func(string)),
	}
}

// Set registers the elements matched by selector, replacing earlier registrations.
func (p *Page) Set(selector string, elements ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = elements
}

// Queries returns every selector queried so far, in order.
func (p *Page) Queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.queries...)
}

// QueryCount returns how many times selector was queried.
func (p *Page) QueryCount(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, q := range p.queries {
		if q == selector {
			n++
		}
	}
	return n
}

// Keys returns every key pressed through PressKey.
func (p *Page) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Screenshots returns every screenshot path written.
func (p *Page) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.screenshots...)
}

// Navigations returns every URL navigated to.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// InitScripts returns every installed init script.
func (p *Page) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.initScripts...)
}

// Emit invokes the exposed binding name with payload, as the page would.
func (p *Page) Emit(name, payload string) error {
	p.mu.Lock()
	fn, ok := p.exposed[name]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("binding %q not exposed", name)
	}
	fn(payload)
	return nil
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	p.CurrentURL = url
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL
}

func (p *Page) Query(_ context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, selector)
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	matches := p.elements[selector]
	elements := make([]browser.Element, 0, len(matches))
	for _, m := range matches {
		elements = append(elements, m)
	}
	return elements, nil
}

func (p *Page) PressKey(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *Page) Screenshot(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return p.ScreenshotErr
	}
	p.screenshots = append(p.screenshots, path)
	return nil
}

func (p *Page) Content(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTMLContent, nil
}

func (p *Page) Evaluate(_ context.Context, script string, arg any) (any, error) {
	p.mu.Lock()
	fn := p.EvalFunc
	p.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(script, arg)
}

func (p *Page) Expose(name string, fn func(payload string)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.exposed[name]; exists {
		return fmt.Errorf("function %q already exposed", name)
	}
	p.exposed[name] = fn
	return nil
}

func (p *Page) AddInitScript(script string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initScripts = append(p.initScripts, script)
	return nil
}
