package locator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/pilot/pkg/browser"
)

// maxTextLength bounds the visible text used for a text strategy.
const maxTextLength = 50

// ElementInfo describes a captured element.
type ElementInfo struct {
	Tag         string            `json:"tag"`
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	TestID      string            `json:"testId,omitempty"`
	AriaLabel   string            `json:"ariaLabel,omitempty"`
	Role        string            `json:"role,omitempty"`
	Type        string            `json:"type,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Label       string            `json:"label,omitempty"`
	Text        string            `json:"text,omitempty"`
	CSSPath     string            `json:"cssPath,omitempty"`
	XPath       string            `json:"xpath,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// InfoFromSnapshot fills an ElementInfo from a parsed element.
func InfoFromSnapshot(s *browser.ElementSnapshot) ElementInfo {
	return ElementInfo{
		Tag:         s.Tag,
		ID:          s.Attributes["id"],
		Name:        s.Attributes["name"],
		TestID:      s.Attributes["data-testid"],
		AriaLabel:   s.Attributes["aria-label"],
		Role:        s.Attributes["role"],
		Type:        s.Attributes["type"],
		Placeholder: s.Attributes["placeholder"],
		Text:        s.Text,
		Attributes:  s.Attributes,
	}
}

var (
	uuidPattern         = regexp.MustCompile(`(?i)[0-9a-f]{8}-?[0-9a-f]{4}-?[0-9a-f]{4}-?[0-9a-f]{4}-?[0-9a-f]{12}`)
	numericSuffix       = regexp.MustCompile(`[-_:.]?\d{4,}$`)
	longHex             = regexp.MustCompile(`(?i)^[0-9a-f]{16,}$`)
	frameworkPrefixes   = []string{"ember", "react-", ":r", "mui-", "ext-gen", "j_idt", "gwt-", "yui_", "ng-", "radix-", "headlessui-", "__bvid__"}
	numericOnlyFragment = regexp.MustCompile(`^\d+$`)
)

// IsDynamicID reports whether id looks generated at render time: UUID-like, ending in a
// long numeric run, using a known framework prefix, or a long hex string.
func IsDynamicID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if uuidPattern.MatchString(id) || longHex.MatchString(id) || numericOnlyFragment.MatchString(id) {
		return true
	}
	if numericSuffix.MatchString(id) {
		return true
	}
	lower := strings.ToLower(id)
	for _, prefix := range frameworkPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// GenerateStrategies synthesizes strategies for a captured element in fixed preference
// order: data-testid, aria-label, name, id (unless dynamic), css path, xpath, then
// visible text for buttons, links and spans. Priorities run from 1 in that order.
func GenerateStrategies(info ElementInfo) []Strategy {
	var out []Strategy
	add := func(kind Kind, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		out = append(out, Strategy{Kind: kind, Value: value, Priority: len(out) + 1})
	}

	add(KindTestID, info.TestID)
	add(KindAriaLabel, info.AriaLabel)
	add(KindName, info.Name)
	if !IsDynamicID(info.ID) {
		add(KindID, info.ID)
	}
	add(KindCSS, info.CSSPath)
	add(KindXPath, info.XPath)

	switch strings.ToLower(info.Tag) {
	case "button", "a", "span":
		if text := strings.Join(strings.Fields(info.Text), " "); len(text) <= maxTextLength {
			add(KindText, text)
		}
	}
	return out
}

// cssPathScript and xpathScript compute structural paths for a live element.
const (
	cssPathScript = `el => {
  const parts = [];
  while (el && el.nodeType === 1 && el !== document.body) {
    let part = el.tagName.toLowerCase();
    if (el.id && !/\d{4,}/.test(el.id)) { parts.unshift(part + '#' + CSS.escape(el.id)); break; }
    const parent = el.parentElement;
    if (parent) {
      const same = Array.from(parent.children).filter(c => c.tagName === el.tagName);
      if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(el) + 1) + ')';
    }
    parts.unshift(part);
    el = parent;
  }
  return parts.join(' > ');
}`
	xpathScript = `el => {
  const parts = [];
  while (el && el.nodeType === 1) {
    let index = 1;
    for (let s = el.previousElementSibling; s; s = s.previousElementSibling) {
      if (s.tagName === el.tagName) index++;
    }
    parts.unshift(el.tagName.toLowerCase() + '[' + index + ']');
    el = el.parentElement;
  }
  return '/' + parts.join('/');
}`
)

// DescribeElement reads a live element's attributes and structural paths.
func DescribeElement(el browser.Element) (ElementInfo, error) {
	outer, err := el.OuterHTML()
	if err != nil {
		return ElementInfo{}, fmt.Errorf("failed to read element: %w", err)
	}
	snapshot, err := browser.ParseElement(outer)
	if err != nil {
		return ElementInfo{}, err
	}
	info := InfoFromSnapshot(snapshot)

	// Paths are optional; a failed evaluation leaves them empty.
	if v, err := el.Evaluate(cssPathScript, nil); err == nil {
		info.CSSPath, _ = v.(string)
	}
	if v, err := el.Evaluate(xpathScript, nil); err == nil {
		info.XPath, _ = v.(string)
	}
	return info, nil
}

// GenerateStrategiesFromElement describes a live element and synthesizes its strategies.
func GenerateStrategiesFromElement(el browser.Element) ([]Strategy, error) {
	info, err := DescribeElement(el)
	if err != nil {
		return nil, err
	}
	return GenerateStrategies(info), nil
}
