package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrTimeout is returned (wrapped) when a page or element operation did not complete
// within its timeout.
var ErrTimeout = errors.New("browser operation timed out")

// Page is the live page surface the engine drives. Implementations are not safe for
// concurrent use; a page is owned by one run at a time.
type Page interface {
	// Navigate loads url and waits for the DOM to be ready.
	Navigate(ctx context.Context, url string) error

	// URL returns the current page URL.
	URL() string

	// Query returns every element currently matching selector without waiting.
	Query(ctx context.Context, selector string) ([]Element, error)

	// PressKey presses a key (or chord such as "Control+A") on the focused element.
	PressKey(ctx context.Context, key string) error

	// Screenshot writes a full-page PNG to path.
	Screenshot(ctx context.Context, path string) error

	// Content returns the serialized DOM.
	Content(ctx context.Context) (string, error)

	// Evaluate runs a JavaScript expression in the page and returns its JSON result.
	Evaluate(ctx context.Context, script string, arg any) (any, error)

	// Expose registers a page-global function that forwards a string payload to fn.
	Expose(name string, fn func(payload string)) error

	// AddInitScript installs a script that runs on every document load.
	AddInitScript(script string) error
}

// Element is a handle to a single live element.
type Element interface {
	IsVisible() (bool, error)
	IsEnabled() (bool, error)
	ScrollIntoView(timeout time.Duration) error
	Click(timeout time.Duration) error
	Fill(value string, timeout time.Duration) error
	Clear(timeout time.Duration) error
	SelectOption(value string, timeout time.Duration) error
	SetChecked(checked bool, timeout time.Duration) error
	Hover(timeout time.Duration) error
	Press(key string, timeout time.Duration) error
	Text() (string, error)
	Attribute(name string) (string, error)
	OuterHTML() (string, error)
	Evaluate(script string, arg any) (any, error)
	Screenshot(path string) error
}

// IsTimeout reports whether err represents an operation that ran out of time.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Playwright reports driver-side timeouts as plain errors.
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
