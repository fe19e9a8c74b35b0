// Package dom is a best-effort adapter over the textual DOM snapshots the
// browser client sends. Chaining and recovery code only sees the Resolver
// interface, so the regex extractor can be replaced by a parsed-DOM lookup
// without touching either.
package dom

import (
	"fmt"
	"sort"
	"strings"
)

// Element is the subset of a DOM node the chaining core reasons about.
type Element struct {
	ID          int               `json:"id"`
	Tag         string            `json:"tag"`
	Type        string            `json:"type,omitempty"`
	Name        string            `json:"name,omitempty"`
	FormID      string            `json:"formId,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Role        string            `json:"role,omitempty"`
	Label       string            `json:"label,omitempty"`       // Explicit label (for=, aria-label, wrapping label).
	LabelBefore string            `json:"labelBefore,omitempty"` // Nearest label text preceding the element.
	LabelAfter  string            `json:"labelAfter,omitempty"`  // Nearest label text following the element.
	Text        string            `json:"text,omitempty"`
	Attrs       map[string]string `json:"attrs,omitempty"`

	// pos orders elements and labels in document order.
	pos int
}

// Resolver looks up elements of one snapshot by their numeric handle.
type Resolver interface {
	Resolve(id int) (Element, bool)
	// Elements returns every addressable element in document order.
	Elements() []Element
}

// InputLike reports whether the element accepts user input directly.
func (e Element) InputLike() bool {
	switch e.Tag {
	case "input", "textarea", "select":
		return true
	}
	return false
}

// Fillable reports whether a value could be typed or selected into the
// element. Hidden fields and button-like inputs are excluded.
func (e Element) Fillable() bool {
	if !e.InputLike() {
		return false
	}
	if e.Tag != "input" {
		return true
	}
	switch e.Type {
	case "hidden", "submit", "button", "reset", "image":
		return false
	}
	return true
}

// TextEntry reports whether setValue can target the element.
func (e Element) TextEntry() bool {
	if e.Tag == "textarea" {
		return true
	}
	if e.Tag != "input" {
		return false
	}
	switch e.Type {
	case "hidden", "submit", "button", "reset", "image", "checkbox", "radio", "file":
		return false
	}
	return true
}

// Checkbox reports whether check/uncheck can target the element.
func (e Element) Checkbox() bool {
	return e.Tag == "input" && (e.Type == "checkbox" || e.Type == "radio")
}

// Clickable reports whether the element looks like a button or a link.
func (e Element) Clickable() bool {
	switch e.Tag {
	case "button", "a":
		return true
	case "input":
		return e.Type == "submit" || e.Type == "button" || e.Type == "reset" || e.Type == "image"
	}
	return e.Role == "button" || e.Role == "link"
}

// TagPattern selects the elements an action of a given name can target.
type TagPattern func(Element) bool

// TagPatternFor returns the tag pattern required by an action name.
func TagPatternFor(actionName string) (TagPattern, bool) {
	switch actionName {
	case "setValue":
		return Element.TextEntry, true
	case "select":
		return func(e Element) bool { return e.Tag == "select" }, true
	case "check", "uncheck":
		return Element.Checkbox, true
	case "click":
		return Element.Clickable, true
	}
	return nil, false
}

// CandidatesFor returns the elements of r matching pattern, in document order.
func CandidatesFor(r Resolver, pattern TagPattern) []Element {
	var out []Element
	for _, e := range r.Elements() {
		if pattern(e) {
			out = append(out, e)
		}
	}
	return out
}

// Nearest returns the element matching pattern whose id is closest to
// originalID, excluding originalID itself. Ties go to the higher id, since
// content inserted above an element shifts its handle upwards. Candidates
// farther than maxDistance are rejected.
func Nearest(r Resolver, pattern TagPattern, originalID, maxDistance int) (Element, bool) {
	var (
		best     Element
		bestDist = -1
	)
	for _, e := range CandidatesFor(r, pattern) {
		if e.ID == originalID {
			continue
		}
		d := e.ID - originalID
		if d < 0 {
			d = -d
		}
		if d > maxDistance {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && e.ID > best.ID) {
			best, bestDist = e, d
		}
	}
	return best, bestDist >= 0
}

// FillableFields returns every fillable element of r.
func FillableFields(r Resolver) []Element {
	return CandidatesFor(r, Element.Fillable)
}

// GroupByForm buckets elements by FormID. Elements outside any form share the
// "" bucket. Keys are returned in order of first appearance.
func GroupByForm(elements []Element) (map[string][]Element, []string) {
	groups := make(map[string][]Element)
	var keys []string
	for _, e := range elements {
		if _, seen := groups[e.FormID]; !seen {
			keys = append(keys, e.FormID)
		}
		groups[e.FormID] = append(groups[e.FormID], e)
	}
	return groups, keys
}

// FormSelector renders a CSS selector for a FormID produced by the parsers.
// Anonymous forms are addressed by position.
func FormSelector(formID string) string {
	if formID == "" {
		return ""
	}
	var n int
	if _, err := fmt.Sscanf(formID, "form-%d", &n); err == nil && fmt.Sprintf("form-%d", n) == formID {
		return fmt.Sprintf("form:nth-of-type(%d)", n)
	}
	return fmt.Sprintf("form#%s", formID)
}

// Snapshot is an indexed, immutable set of elements extracted from one DOM
// serialization.
type Snapshot struct {
	raw      string
	elements []Element
	byID     map[int]int
}

func newSnapshot(raw string, elements []Element) *Snapshot {
	sort.SliceStable(elements, func(i, j int) bool { return elements[i].pos < elements[j].pos })
	s := &Snapshot{raw: raw, elements: elements, byID: make(map[int]int, len(elements))}
	for i, e := range elements {
		// First occurrence wins when a handle is duplicated.
		if _, exists := s.byID[e.ID]; !exists {
			s.byID[e.ID] = i
		}
	}
	return s
}

// Resolve implements Resolver.
func (s *Snapshot) Resolve(id int) (Element, bool) {
	if s == nil {
		return Element{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Element{}, false
	}
	return s.elements[i], true
}

// Elements implements Resolver.
func (s *Snapshot) Elements() []Element {
	if s == nil {
		return nil
	}
	out := make([]Element, len(s.elements))
	copy(out, s.elements)
	return out
}

// Len returns the number of addressable elements.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.elements)
}

// Raw returns the serialization the snapshot was built from.
func (s *Snapshot) Raw() string {
	if s == nil {
		return ""
	}
	return s.raw
}

// ContainsText reports whether text occurs in the raw snapshot, ignoring case.
func (s *Snapshot) ContainsText(text string) bool {
	if s == nil || strings.TrimSpace(text) == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s.raw), strings.ToLower(strings.TrimSpace(text)))
}

var _ Resolver = (*Snapshot)(nil)
