package dom

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML builds a snapshot from a full HTML document using the
// golang.org/x/net/html tokenizer and tree builder. Addressing rules match
// ParseText.
func ParseHTML(r io.Reader) (*Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read DOM snapshot: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOM snapshot: %w", err)
	}

	w := &htmlWalker{}
	w.walk(root, "")
	return w.b.snapshot(string(raw)), nil
}

// Parse picks the HTML parser for full documents and the regex extractor for
// anything else. It never returns nil.
func Parse(snapshot string) *Snapshot {
	if looksLikeDocument(snapshot) {
		if s, err := ParseHTML(strings.NewReader(snapshot)); err == nil {
			return s
		}
	}
	return ParseText(snapshot)
}

func looksLikeDocument(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.HasPrefix(head, "<!doctype") || strings.Contains(head, "<html")
}

type htmlWalker struct {
	b     builder
	pos   int
	forms int
}

func (w *htmlWalker) walk(n *html.Node, formID string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.pos++
		if c.Type != html.ElementNode {
			w.walk(c, formID)
			continue
		}

		attrs := nodeAttrs(c)
		switch c.DataAtom {
		case atom.Form:
			w.forms++
			w.walk(c, formIdentifier(attrs, w.forms))
			continue
		case atom.Label:
			l := labelSpan{start: w.pos, forID: attrs["for"], text: labelText(c)}
			w.walk(c, formID)
			l.end = w.pos + 1
			w.b.labels = append(w.b.labels, l)
			continue
		}

		if id, ok := elementHandle(attrs, precedingMarker(c)); ok {
			e := newElement(id, strings.ToLower(c.Data), attrs, formID, w.pos)
			idx := w.b.add(e)
			if text := cleanText(textContent(c)); text != "" {
				w.b.appendText(idx, text)
			}
		}
		w.walk(c, formID)
	}
}

func nodeAttrs(n *html.Node) map[string]string {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if _, exists := attrs[key]; !exists {
			attrs[key] = a.Val
		}
	}
	return attrs
}

// precedingMarker looks for an [N] marker at the end of the text node just
// before n.
func precedingMarker(n *html.Node) int {
	prev := n.PrevSibling
	if prev == nil || prev.Type != html.TextNode {
		return -1
	}
	m := markerRegex.FindStringSubmatch(prev.Data)
	if m == nil {
		return -1
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return id
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(markerStrip.ReplaceAllString(n.Data, " "))
			sb.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

// labelText is the label's text without the text of nested form controls.
func labelText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.Select, atom.Textarea, atom.Button:
				continue
			}
		}
		sb.WriteString(textContent(c))
	}
	return cleanText(sb.String())
}
