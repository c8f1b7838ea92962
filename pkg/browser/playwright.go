package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// pwPage adapts a playwright.Page to Page.
type pwPage struct {
	page playwright.Page
}

// pwElement adapts a playwright.Locator narrowed to a single match to Element.
type pwElement struct {
	loc playwright.Locator
}

// millis converts a duration to the float milliseconds Playwright expects.
// A zero duration returns nil so the page default applies.
func millis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

// wrapErr marks Playwright timeouts with ErrTimeout.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func (p *pwPage) Navigate(ctx context.Context, url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return wrapErr("navigation", err)
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Query(ctx context.Context, selector string) ([]Element, error) {
	matches, err := p.page.Locator(selector).All()
	if err != nil {
		return nil, wrapErr("query", err)
	}
	elements := make([]Element, 0, len(matches))
	for _, m := range matches {
		elements = append(elements, &pwElement{loc: m})
	}
	return elements, nil
}

func (p *pwPage) PressKey(ctx context.Context, key string) error {
	return wrapErr("key press", p.page.Keyboard().Press(key))
}

func (p *pwPage) Screenshot(ctx context.Context, path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return wrapErr("screenshot", err)
}

func (p *pwPage) Content(ctx context.Context) (string, error) {
	content, err := p.page.Content()
	if err != nil {
		return "", wrapErr("content", err)
	}
	return content, nil
}

func (p *pwPage) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	var (
		result any
		err    error
	)
	if arg == nil {
		result, err = p.page.Evaluate(script)
	} else {
		result, err = p.page.Evaluate(script, arg)
	}
	if err != nil {
		return nil, wrapErr("evaluate", err)
	}
	return result, nil
}

func (p *pwPage) Expose(name string, fn func(payload string)) error {
	err := p.page.ExposeFunction(name, func(args ...interface{}) interface{} {
		if len(args) == 0 {
			return nil
		}
		if payload, ok := args[0].(string); ok {
			fn(payload)
		}
		return nil
	})
	return wrapErr("expose function", err)
}

func (p *pwPage) AddInitScript(script string) error {
	return wrapErr("init script", p.page.AddInitScript(playwright.Script{
		Content: playwright.String(script),
	}))
}

func (e *pwElement) IsVisible() (bool, error) {
	visible, err := e.loc.IsVisible()
	return visible, wrapErr("visibility check", err)
}

func (e *pwElement) IsEnabled() (bool, error) {
	enabled, err := e.loc.IsEnabled()
	return enabled, wrapErr("enabled check", err)
}

func (e *pwElement) ScrollIntoView(timeout time.Duration) error {
	return wrapErr("scroll", e.loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: millis(timeout),
	}))
}

func (e *pwElement) Click(timeout time.Duration) error {
	return wrapErr("click", e.loc.Click(playwright.LocatorClickOptions{Timeout: millis(timeout)}))
}

func (e *pwElement) Fill(value string, timeout time.Duration) error {
	return wrapErr("fill", e.loc.Fill(value, playwright.LocatorFillOptions{Timeout: millis(timeout)}))
}

func (e *pwElement) Clear(timeout time.Duration) error {
	return wrapErr("clear", e.loc.Clear(playwright.LocatorClearOptions{Timeout: millis(timeout)}))
}

// SelectOption selects by option value first and falls back to the visible label.
func (e *pwElement) SelectOption(value string, timeout time.Duration) error {
	opts := playwright.LocatorSelectOptionOptions{Timeout: millis(timeout)}
	_, err := e.loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}}, opts)
	if err == nil {
		return nil
	}
	if _, labelErr := e.loc.SelectOption(playwright.SelectOptionValues{Labels: &[]string{value}}, opts); labelErr != nil {
		return wrapErr("select", err)
	}
	return nil
}

func (e *pwElement) SetChecked(checked bool, timeout time.Duration) error {
	return wrapErr("set checked", e.loc.SetChecked(checked, playwright.LocatorSetCheckedOptions{Timeout: millis(timeout)}))
}

func (e *pwElement) Hover(timeout time.Duration) error {
	return wrapErr("hover", e.loc.Hover(playwright.LocatorHoverOptions{Timeout: millis(timeout)}))
}

func (e *pwElement) Press(key string, timeout time.Duration) error {
	return wrapErr("press", e.loc.Press(key, playwright.LocatorPressOptions{Timeout: millis(timeout)}))
}

func (e *pwElement) Text() (string, error) {
	text, err := e.loc.InnerText()
	return text, wrapErr("text extraction", err)
}

func (e *pwElement) Attribute(name string) (string, error) {
	value, err := e.loc.GetAttribute(name)
	return value, wrapErr("attribute read", err)
}

func (e *pwElement) OuterHTML() (string, error) {
	result, err := e.loc.Evaluate("el => el.outerHTML", nil)
	if err != nil {
		return "", wrapErr("outerHTML", err)
	}
	html, _ := result.(string)
	return html, nil
}

func (e *pwElement) Evaluate(script string, arg any) (any, error) {
	result, err := e.loc.Evaluate(script, arg)
	if err != nil {
		return nil, wrapErr("element evaluate", err)
	}
	return result, nil
}

func (e *pwElement) Screenshot(path string) error {
	_, err := e.loc.Screenshot(playwright.LocatorScreenshotOptions{Path: playwright.String(path)})
	return wrapErr("element screenshot", err)
}
