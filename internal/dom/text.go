package dom

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const maxElementText = 200

var (
	tagRegex    = regexp.MustCompile(`<(/?)([A-Za-z][A-Za-z0-9-]*)((?:[^>"']|"[^"]*"|'[^']*')*)>`)
	attrRegex   = regexp.MustCompile(`([A-Za-z_:@][-A-Za-z0-9_:.@]*)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>=]+)))?`)
	markerRegex = regexp.MustCompile(`\[(\d+)\]\s*$`)
	markerStrip = regexp.MustCompile(`\[\d+\]`)
)

// ParseText extracts elements from the simplified textual DOM serialization
// with regular expressions. It never fails: anything it cannot make sense of
// is skipped.
//
// An element is addressable when it carries a numeric data-id or id
// attribute, or when it is immediately preceded by an [N] marker.
func ParseText(snapshot string) *Snapshot {
	var (
		b         builder
		formStack []string
		forms     int
		label     *labelSpan
		owner     *textOwner
		prevEnd   int
	)

	consume := func(segment string) int {
		marker := -1
		if m := markerRegex.FindStringSubmatch(segment); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				marker = n
			}
		}
		text := cleanText(html.UnescapeString(markerStrip.ReplaceAllString(segment, " ")))
		if text != "" {
			if label != nil {
				label.appendText(text)
			}
			if owner != nil {
				b.appendText(owner.index, text)
			}
		}
		return marker
	}

	for _, m := range tagRegex.FindAllStringSubmatchIndex(snapshot, -1) {
		start, end := m[0], m[1]
		marker := consume(snapshot[prevEnd:start])
		prevEnd = end

		closing := m[3] > m[2]
		tag := strings.ToLower(snapshot[m[4]:m[5]])
		rawAttrs := snapshot[m[6]:m[7]]

		if closing {
			switch tag {
			case "form":
				if len(formStack) > 0 {
					formStack = formStack[:len(formStack)-1]
				}
			case "label":
				if label != nil {
					label.end = start
					b.labels = append(b.labels, *label)
					label = nil
				}
			}
			if owner != nil && owner.tag == tag {
				owner = nil
			}
			continue
		}

		attrs := parseAttrs(rawAttrs)
		switch tag {
		case "form":
			forms++
			formStack = append(formStack, formIdentifier(attrs, forms))
			continue
		case "label":
			if label != nil {
				label.end = start
				b.labels = append(b.labels, *label)
			}
			label = &labelSpan{start: start, forID: attrs["for"]}
			continue
		}

		id, ok := elementHandle(attrs, marker)
		if !ok {
			continue
		}
		formID := ""
		if len(formStack) > 0 {
			formID = formStack[len(formStack)-1]
		}
		idx := b.add(newElement(id, tag, attrs, formID, start))

		selfClosing := strings.HasSuffix(strings.TrimSpace(rawAttrs), "/")
		if !voidElement(tag) && !selfClosing {
			owner = &textOwner{index: idx, tag: tag}
		}
	}
	consume(snapshot[prevEnd:])
	if label != nil {
		label.end = len(snapshot)
		b.labels = append(b.labels, *label)
	}

	return b.snapshot(snapshot)
}

type textOwner struct {
	index int
	tag   string
}

func parseAttrs(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRegex.FindAllStringSubmatch(raw, -1) {
		key := strings.ToLower(m[1])
		if _, exists := attrs[key]; exists {
			continue
		}
		value := m[2]
		if value == "" {
			value = m[3]
		}
		if value == "" {
			value = m[4]
		}
		attrs[key] = html.UnescapeString(value)
	}
	return attrs
}

// elementHandle picks the numeric handle of an element: data-id first, then
// an [N] marker, then a numeric id attribute.
func elementHandle(attrs map[string]string, marker int) (int, bool) {
	if n, err := strconv.Atoi(strings.TrimSpace(attrs["data-id"])); err == nil {
		return n, true
	}
	if marker >= 0 {
		return marker, true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(attrs["id"])); err == nil {
		return n, true
	}
	return 0, false
}

func formIdentifier(attrs map[string]string, ordinal int) string {
	if id := strings.TrimSpace(attrs["id"]); id != "" {
		return id
	}
	if name := strings.TrimSpace(attrs["name"]); name != "" {
		return name
	}
	return fmt.Sprintf("form-%d", ordinal)
}

func newElement(id int, tag string, attrs map[string]string, formID string, pos int) Element {
	e := Element{
		ID:          id,
		Tag:         tag,
		Type:        strings.ToLower(strings.TrimSpace(attrs["type"])),
		Name:        attrs["name"],
		FormID:      formID,
		Placeholder: attrs["placeholder"],
		Role:        strings.ToLower(attrs["role"]),
		Label:       cleanText(attrs["aria-label"]),
		Attrs:       attrs,
		pos:         pos,
	}
	if f := strings.TrimSpace(attrs["form"]); f != "" {
		e.FormID = f
	}
	if tag == "input" && e.Type == "" {
		e.Type = "text"
	}
	return e
}

func voidElement(tag string) bool {
	switch tag {
	case "input", "img", "br", "hr", "meta", "link", "area", "base", "col", "embed", "source", "track", "wbr":
		return true
	}
	return false
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

var scriptRegex = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(?:script|style)>`)

// VisibleText strips tags, scripts and styles from a snapshot and collapses
// whitespace.
func VisibleText(snapshot string) string {
	s := scriptRegex.ReplaceAllString(snapshot, " ")
	s = tagRegex.ReplaceAllString(s, " ")
	return cleanText(html.UnescapeString(s))
}

// Locate returns the byte offset in snapshot where element id is declared,
// using the same handle conventions as ParseText.
func Locate(snapshot string, id int) (int, bool) {
	n := strconv.Itoa(id)
	for _, needle := range []string{
		`data-id="` + n + `"`, `data-id='` + n + `'`, `data-id=` + n + ` `,
		"[" + n + "]",
		`id="` + n + `"`, `id='` + n + `'`,
	} {
		if i := strings.Index(snapshot, needle); i >= 0 {
			if start := strings.LastIndex(snapshot[:i], "<"); start >= 0 && !strings.HasPrefix(needle, "[") {
				return start, true
			}
			return i, true
		}
	}
	return 0, false
}
