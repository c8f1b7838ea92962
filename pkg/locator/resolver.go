package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/logging"
)

const (
	// DefaultTimeout is the per-strategy wait when neither caller nor locator set one.
	DefaultTimeout = 2 * time.Second
	// DefaultPollInterval is the delay between queries while waiting for a match.
	DefaultPollInterval = 100 * time.Millisecond
)

// Outcome classifies a resolution.
type Outcome int

const (
	// NotFound means every strategy was tried and none produced exactly one visible match.
	NotFound Outcome = iota
	// Found means Element holds the match of Strategy.
	Found
	// Timeout means the context ended before every strategy could be tried.
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Timeout:
		return "timeout"
	}
	return "not-found"
}

// Resolution is the result of resolving a locator. NotFound is an expected value, not
// an error.
type Resolution struct {
	Outcome  Outcome
	Element  browser.Element
	Strategy Strategy
	// Attempted counts the strategies tried, including the successful one.
	Attempted int
	// Err carries the last query error seen, if any, for diagnostics.
	Err error
}

// OK reports whether the element was found.
func (r Resolution) OK() bool {
	return r.Outcome == Found
}

// Resolver resolves locators against a page.
type Resolver struct {
	stats          StatsStore
	logger         *logging.Logger
	pollInterval   time.Duration
	defaultTimeout time.Duration
	now            func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStats routes strategy outcomes to store.
func WithStats(store StatsStore) Option {
	return func(r *Resolver) { r.stats = store }
}

// WithLogger sets the logger used for strategy diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithPollInterval sets the delay between queries while waiting for a match.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithDefaultTimeout sets the per-strategy wait used when no other timeout applies.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// NewResolver creates a resolver. Without WithStats outcomes are kept in memory.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		stats:          NewMemoryStats(),
		pollInterval:   DefaultPollInterval,
		defaultTimeout: DefaultTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the resolver's stats store.
func (r *Resolver) Stats() StatsStore {
	return r.stats
}

// Resolve tries the locator's strategies in priority order. timeout bounds each
// strategy's wait; zero falls back to the locator's Timeout, then the resolver default.
//
// The first strategy with exactly one visible match wins and records a success; each
// strategy tried before it records a failure. Strategies after the winner are never
// queried.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, loc *Locator, timeout time.Duration) Resolution {
	if timeout <= 0 {
		timeout = loc.Timeout
	}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	var res Resolution
	for _, i := range loc.ordered() {
		if ctx.Err() != nil {
			res.Outcome = Timeout
			res.Err = ctx.Err()
			return res
		}

		strategy := loc.Strategies[i]
		res.Attempted++

		el, err := r.tryStrategy(ctx, page, strategy, timeout)
		if err != nil {
			res.Err = err
		}
		if el == nil {
			r.recordOutcome(loc, i, false)
			r.logger.Debugf("locator %s: strategy %s did not match", loc.Name, strategy)
			continue
		}

		if loc.RequiresScroll {
			if err := el.ScrollIntoView(timeout); err != nil {
				r.logger.Warnf("locator %s: scroll into view failed: %v", loc.Name, err)
			}
		}
		r.recordOutcome(loc, i, true)
		r.logger.Debugf("locator %s: resolved with strategy %s", loc.Name, strategy)

		res.Outcome = Found
		res.Element = el
		res.Strategy = loc.Strategies[i]
		res.Err = nil
		return res
	}

	res.Outcome = NotFound
	return res
}

// FindNear locates a form control by its relation to a visible label: the label's for
// attribute, then a control nested in the label, then the nearest control in direction
// (right, left, above, below or near).
func (r *Resolver) FindNear(ctx context.Context, page browser.Page, labelText, direction string) Resolution {
	el, err := r.findNear(ctx, page, labelText, direction)
	if el == nil {
		return Resolution{Outcome: NotFound, Attempted: 1, Err: err}
	}
	return Resolution{
		Outcome:   Found,
		Element:   el,
		Strategy:  Strategy{Kind: KindTextNearby, Value: labelText + "|" + direction},
		Attempted: 1,
	}
}

// tryStrategy polls until the strategy yields exactly one visible match or timeout
// elapses. It always queries at least once.
func (r *Resolver) tryStrategy(ctx context.Context, page browser.Page, s Strategy, timeout time.Duration) (browser.Element, error) {
	var query func() (browser.Element, error)
	if s.Kind == KindTextNearby {
		label, direction, _ := strings.Cut(s.Value, "|")
		query = func() (browser.Element, error) {
			return r.findNear(ctx, page, strings.TrimSpace(label), strings.TrimSpace(direction))
		}
	} else {
		selector, err := Selector(s)
		if err != nil {
			return nil, err
		}
		query = func() (browser.Element, error) {
			return singleVisible(ctx, page, selector)
		}
	}

	deadline := r.now().Add(timeout)
	var lastErr error
	for {
		el, err := query()
		if el != nil {
			return el, nil
		}
		if err != nil {
			lastErr = err
		}
		if !r.now().Before(deadline) {
			return nil, lastErr
		}
		if !sleepCtx(ctx, r.pollInterval) {
			return nil, ctx.Err()
		}
	}
}

func (r *Resolver) findNear(ctx context.Context, page browser.Page, labelText, direction string) (browser.Element, error) {
	if labelText == "" {
		return nil, fmt.Errorf("text-nearby strategy needs a label")
	}
	labelSelector := "label:has-text(" + quote(labelText) + ")"

	labels, err := page.Query(ctx, labelSelector)
	if err != nil {
		return nil, err
	}
	for _, label := range labels {
		if visible, _ := label.IsVisible(); !visible {
			continue
		}
		if target, _ := label.Attribute("for"); target != "" {
			if el, _ := singleVisible(ctx, page, attributeSelector("id", target)); el != nil {
				return el, nil
			}
		}
	}

	nested := labelSelector + " >> " + controls
	if el, _ := singleVisible(ctx, page, nested); el != nil {
		return el, nil
	}

	spatial := fmt.Sprintf("%s:%s(:text(%s))", controls, layoutPseudo(direction), quote(labelText))
	matches, err := page.Query(ctx, spatial)
	if err != nil {
		return nil, err
	}
	// Layout selectors return matches ordered by distance.
	for _, m := range matches {
		if visible, _ := m.IsVisible(); visible {
			return m, nil
		}
	}
	return nil, nil
}

const controls = ":is(input, select, textarea)"

func layoutPseudo(direction string) string {
	switch strings.ToLower(direction) {
	case "right", "right-of":
		return "right-of"
	case "left", "left-of":
		return "left-of"
	case "above":
		return "above"
	case "below":
		return "below"
	}
	return "near"
}

// singleVisible returns the only visible match of selector, or nil when there are none
// or several.
func singleVisible(ctx context.Context, page browser.Page, selector string) (browser.Element, error) {
	matches, err := page.Query(ctx, selector)
	if err != nil {
		return nil, err
	}
	var found browser.Element
	for _, m := range matches {
		visible, err := m.IsVisible()
		if err != nil || !visible {
			continue
		}
		if found != nil {
			return nil, nil
		}
		found = m
	}
	return found, nil
}

func (r *Resolver) recordOutcome(loc *Locator, i int, success bool) {
	at := r.now()
	s := &loc.Strategies[i]
	if success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	s.LastUsedAt = at

	if r.stats == nil {
		return
	}
	if err := r.stats.RecordOutcome(loc.Name, *s, success, at); err != nil {
		r.logger.Warnf("locator %s: failed to record strategy outcome: %v", loc.Name, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
