// Package locator resolves logical element references against a live page.
//
// A Locator names an element and carries an ordered list of Strategies, each one
// concrete way of querying the page for it. The Resolver tries strategies strictly in
// priority order and accepts the first one that yields exactly one visible match.
// Per-strategy outcomes are recorded through a StatsStore for offline re-prioritization;
// they never reorder strategies during a run.
//
// GenerateStrategies does the reverse: given a captured element it synthesizes a
// candidate strategy list, preferring semantic attributes over structural paths.
package locator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownLocator is returned by Set.Lookup for a name with no definition.
var ErrUnknownLocator = errors.New("unknown locator")

// Kind identifies how a strategy queries the page.
type Kind string

const (
	KindCSS        Kind = "css"
	KindXPath      Kind = "xpath"
	KindID         Kind = "id"
	KindName       Kind = "name"
	KindTestID     Kind = "data-testid"
	KindAriaLabel  Kind = "aria-label"
	KindText       Kind = "text"
	KindTextNearby Kind = "text-nearby"
	KindRole       Kind = "role"
)

// Kinds lists every supported strategy kind.
var Kinds = []Kind{KindCSS, KindXPath, KindID, KindName, KindTestID, KindAriaLabel, KindText, KindTextNearby, KindRole}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Strategy is one way to find an element. The counters are a snapshot of observed
// history and are updated by the Resolver as it runs.
type Strategy struct {
	Kind         Kind      `json:"type" yaml:"type"`
	Value        string    `json:"value" yaml:"value"`
	Priority     int       `json:"priority,omitempty" yaml:"priority,omitempty"`
	SuccessCount int       `json:"success_count,omitempty" yaml:"-"`
	FailureCount int       `json:"failure_count,omitempty" yaml:"-"`
	LastUsedAt   time.Time `json:"last_used_at,omitempty" yaml:"-"`
}

// Key identifies a strategy within its locator for statistics.
func (s Strategy) Key() string {
	return string(s.Kind) + ":" + s.Value
}

func (s Strategy) String() string {
	return fmt.Sprintf("%s=%q", s.Kind, s.Value)
}

// Locator is a logical element reference.
type Locator struct {
	Name           string
	Strategies     []Strategy
	RequiresScroll bool
	// Timeout is the per-strategy wait used when the caller passes none.
	Timeout time.Duration
}

// ordered returns strategy indexes sorted by ascending priority. Equal priorities keep
// declaration order.
func (l *Locator) ordered() []int {
	idx := make([]int, len(l.Strategies))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return l.Strategies[idx[a]].Priority < l.Strategies[idx[b]].Priority
	})
	return idx
}

// Ordered returns a copy of the strategies in the order the resolver tries them.
func (l *Locator) Ordered() []Strategy {
	out := make([]Strategy, 0, len(l.Strategies))
	for _, i := range l.ordered() {
		out = append(out, l.Strategies[i])
	}
	return out
}

// Clone returns a deep copy.
func (l *Locator) Clone() *Locator {
	c := *l
	c.Strategies = append([]Strategy(nil), l.Strategies...)
	return &c
}

// Set is a registry of locators by name.
type Set map[string]*Locator

// Lookup returns the named locator, or an error wrapping ErrUnknownLocator.
func (s Set) Lookup(name string) (*Locator, error) {
	loc, ok := s[name]
	if !ok || loc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocator, name)
	}
	return loc, nil
}

// Names returns the registered names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Selector compiles a strategy into a Playwright selector. Text-nearby strategies have
// no single selector and return an error; the resolver handles them with FindNear.
func Selector(s Strategy) (string, error) {
	if strings.TrimSpace(s.Value) == "" {
		return "", fmt.Errorf("strategy %s has an empty value", s.Kind)
	}
	switch s.Kind {
	case KindCSS:
		return s.Value, nil
	case KindXPath:
		if strings.HasPrefix(s.Value, "xpath=") {
			return s.Value, nil
		}
		return "xpath=" + s.Value, nil
	case KindID:
		return attributeSelector("id", s.Value), nil
	case KindName:
		return attributeSelector("name", s.Value), nil
	case KindTestID:
		return attributeSelector("data-testid", s.Value), nil
	case KindAriaLabel:
		return attributeSelector("aria-label", s.Value), nil
	case KindText:
		return "text=" + quote(s.Value), nil
	case KindRole:
		role, name, _ := strings.Cut(s.Value, "|")
		role = strings.TrimSpace(role)
		if name = strings.TrimSpace(name); name == "" {
			return "role=" + role, nil
		}
		return fmt.Sprintf("role=%s[name=%s]", role, quote(name)), nil
	case KindTextNearby:
		return "", fmt.Errorf("text-nearby strategies are resolved spatially")
	}
	return "", fmt.Errorf("unsupported strategy kind %q", s.Kind)
}

func attributeSelector(attr, value string) string {
	return fmt.Sprintf("[%s=%s]", attr, quote(value))
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
