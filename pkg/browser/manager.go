package browser

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pilot/pkg/logging"
)

// SessionManager launches and tracks browser sessions. Sessions are handed to callers
// explicitly; there is no process-wide current session.
type SessionManager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	maxSessions int
	skipInstall bool
	engine      Engine
	logger      *logging.Logger
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithMaxSessions bounds the number of concurrently open sessions.
func WithMaxSessions(n int) ManagerOption {
	return func(m *SessionManager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// WithEngine selects the browser installed by Initialize.
func WithEngine(engine Engine) ManagerOption {
	return func(m *SessionManager) {
		if engine != "" {
			m.engine = engine
		}
	}
}

// WithSkipInstall starts the driver without downloading it or the browsers first.
func WithSkipInstall(skip bool) ManagerOption {
	return func(m *SessionManager) { m.skipInstall = skip }
}

// WithManagerLogger sets the logger for session lifecycle entries.
func WithManagerLogger(logger *logging.Logger) ManagerOption {
	return func(m *SessionManager) { m.logger = logger }
}

// NewSessionManager creates a new session manager.
func NewSessionManager(opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		sessions:    make(map[string]*Session),
		maxSessions: DefaultMaxSessions,
		engine:      EngineChromium,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize installs (unless skipped) and starts the Playwright driver. It is a no-op
// once the driver runs.
func (m *SessionManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playwright != nil {
		return nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{string(m.engine)},
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if !m.skipInstall {
		started := time.Now()
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
		m.logger.Debugf("playwright driver ready in %s", time.Since(started).Round(time.Millisecond))
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	m.playwright = pw
	return nil
}

func (m *SessionManager) browserType(engine Engine) (playwright.BrowserType, error) {
	switch engine {
	case EngineChromium:
		return m.playwright.Chromium, nil
	case EngineFirefox:
		return m.playwright.Firefox, nil
	case EngineWebKit:
		return m.playwright.WebKit, nil
	}
	return nil, fmt.Errorf("unknown browser engine %q", engine)
}

// StartSession launches a browser under name and opens its page.
func (m *SessionManager) StartSession(name string, opts SessionOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playwright == nil {
		return nil, fmt.Errorf("session manager not initialized")
	}
	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.maxSessions)
	}

	if opts.Engine == "" {
		opts.Engine = m.engine
	}
	opts = opts.withDefaults()
	session, err := m.launch(name, opts)
	if err != nil {
		return nil, err
	}
	m.sessions[name] = session
	m.logger.Infof("session %s: %s started (headless=%t, viewport %dx%d)",
		name, opts.Engine, opts.Headless, opts.Viewport.Width, opts.Viewport.Height)
	return session, nil
}

// launch starts the browser, its context and page, unwinding on failure.
func (m *SessionManager) launch(name string, opts SessionOptions) (*Session, error) {
	bt, err := m.browserType(opts.Engine)
	if err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	b, err := bt.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", opts.Engine, err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height},
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return &Session{
		Name:      name,
		Engine:    opts.Engine,
		Headless:  opts.Headless,
		StartedAt: time.Now(),
		browser:   b,
		context:   bctx,
		page:      page,
	}, nil
}

func (m *SessionManager) closeSession(s *Session) error {
	err := s.close()
	m.logger.Infof("session %s: closed after %s", s.Name, time.Since(s.StartedAt).Round(time.Second))
	if err != nil {
		return fmt.Errorf("failed to close session %q: %w", s.Name, err)
	}
	return nil
}

// Shutdown closes every session, in name order, then stops Playwright. Closing
// continues past errors; the first one is returned.
func (m *SessionManager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	var first error
	for _, name := range names {
		if err := m.closeSession(m.sessions[name]); err != nil && first == nil {
			first = err
		}
		delete(m.sessions, name)
	}

	if m.playwright != nil {
		if err := m.playwright.Stop(); err != nil && first == nil {
			first = fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.playwright = nil
	}
	return first
}
