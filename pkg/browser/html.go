package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ElementSnapshot is the static description of one element parsed from its outerHTML.
type ElementSnapshot struct {
	Tag        string
	Attributes map[string]string
	Text       string
}

// ParseElement parses an element's outerHTML and returns its tag, attributes and
// whitespace-collapsed text content.
func ParseElement(outerHTML string) (*ElementSnapshot, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(outerHTML), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse element HTML: %w", err)
	}

	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		snapshot := &ElementSnapshot{
			Tag:        strings.ToLower(n.Data),
			Attributes: make(map[string]string, len(n.Attr)),
		}
		for _, attr := range n.Attr {
			snapshot.Attributes[strings.ToLower(attr.Key)] = attr.Val
		}
		var text strings.Builder
		collectText(n, &text)
		snapshot.Text = strings.Join(strings.Fields(text.String()), " ")
		return snapshot, nil
	}

	return nil, fmt.Errorf("no element found in HTML fragment")
}

func collectText(n *html.Node, builder *strings.Builder) {
	if n.Type == html.TextNode {
		builder.WriteString(n.Data)
		builder.WriteString(" ")
		return
	}
	if n.Type == html.ElementNode && skipped(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, builder)
	}
}

// CleanedHTML is a page dump reduced to its structure and locator attributes.
type CleanedHTML struct {
	HTML      string
	Title     string
	Truncated bool
}

// CleanHTML strips scripts, styles and noise attributes from a page dump, keeping the
// structure and the attributes locators are built from. Output stops after roughly
// limit bytes of text and markup. Used for failure snapshots.
func CleanHTML(rawHTML string, limit int) (*CleanedHTML, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &snapshotWriter{limit: limit}
	w.children(doc, 0)
	return &CleanedHTML{
		HTML:      w.out.String(),
		Title:     findTitle(doc),
		Truncated: w.full,
	}, nil
}

// snapshotWriter accumulates cleaned markup until its budget is spent.
type snapshotWriter struct {
	out   strings.Builder
	limit int
	used  int
	full  bool
}

func (w *snapshotWriter) node(n *html.Node, depth int) {
	if w.full {
		return
	}
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
	case html.ElementNode:
		if !skipped(n) {
			w.element(n, depth)
		}
	case html.DocumentNode:
		w.children(n, depth)
	}
}

func (w *snapshotWriter) children(n *html.Node, depth int) {
	for c := n.FirstChild; c != nil && !w.full; c = c.NextSibling {
		w.node(c, depth)
	}
}

func (w *snapshotWriter) text(data string) {
	data = strings.TrimSpace(data)
	if data == "" {
		return
	}
	if room := w.limit - w.used; len(data) > room {
		w.out.WriteString(data[:max(room, 0)])
		w.out.WriteString("...")
		w.used, w.full = w.limit, true
		return
	}
	w.out.WriteString(data)
	w.used += len(data)
}

func (w *snapshotWriter) element(n *html.Node, depth int) {
	tag := strings.ToLower(n.Data)
	if depth > 0 && blockAtoms[n.DataAtom] {
		w.out.WriteByte('\n')
		w.out.WriteString(strings.Repeat("  ", depth))
	}

	w.out.WriteByte('<')
	w.out.WriteString(tag)
	for _, attr := range n.Attr {
		if locatorAttribute(attr.Key) {
			fmt.Fprintf(&w.out, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	w.out.WriteByte('>')
	w.used += len(tag) + 2

	w.children(n, depth+1)

	if !voidAtoms[n.DataAtom] {
		fmt.Fprintf(&w.out, "</%s>", tag)
		w.used += len(tag) + 3
	}
}

func skipped(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Svg, atom.Template:
		return true
	}
	return false
}

var blockAtoms = map[atom.Atom]bool{
	atom.Div: true, atom.P: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Nav: true, atom.Main: true,
	atom.Aside: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.Table: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Form: true, atom.Fieldset: true, atom.Dialog: true,
}

var voidAtoms = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Wbr: true,
}

// locatorAttribute reports whether an attribute can feed a locator strategy.
func locatorAttribute(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "data-") || strings.HasPrefix(name, "aria-") {
		return true
	}
	switch name {
	case "id", "name", "class", "role", "type", "placeholder", "value", "for", "href", "title":
		return true
	}
	return false
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if c := n.FirstChild; c != nil && c.Type == html.TextNode {
			return strings.TrimSpace(c.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}
