package browser

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

// Engine names a Playwright browser engine.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// Session is one launched browser with an isolated context and the single page a run
// drives.
type Session struct {
	Name     string
	Engine   Engine
	Headless bool
	// StartedAt is when the browser was launched.
	StartedAt time.Time

	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Engine selects the browser; empty means Chromium.
	Engine Engine

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for page operations
	Timeout time.Duration

	// SlowMo slows every Playwright operation, useful when watching a headed run
	SlowMo time.Duration
}

// withDefaults fills unset options.
func (o SessionOptions) withDefaults() SessionOptions {
	if o.Engine == "" {
		o.Engine = EngineChromium
	}
	if o.Viewport == nil || o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Default values for sessions and page operations
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 5
)
