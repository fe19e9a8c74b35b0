package dom

import (
	"strconv"
	"strings"
)

// labelSpan is a <label> region in document order. Both parsers record
// positions in their own unit (byte offset or node counter); only the
// ordering matters.
type labelSpan struct {
	start, end int
	forID      string
	text       string
}

func (l *labelSpan) appendText(text string) {
	if l.text == "" {
		l.text = text
		return
	}
	l.text += " " + text
}

// builder accumulates elements and labels for either parser and resolves
// label associations once the whole document has been seen.
type builder struct {
	elements []Element
	labels   []labelSpan
}

func (b *builder) add(e Element) int {
	b.elements = append(b.elements, e)
	return len(b.elements) - 1
}

func (b *builder) appendText(index int, text string) {
	e := &b.elements[index]
	if len(e.Text) >= maxElementText {
		return
	}
	if e.Text != "" {
		text = e.Text + " " + text
	}
	e.Text = truncate(text, maxElementText)
}

func (b *builder) snapshot(raw string) *Snapshot {
	b.assignLabels()
	return newSnapshot(raw, b.elements)
}

// assignLabels fills Label, LabelBefore and LabelAfter for input-like
// elements. A label for= wins over a wrapping label; aria-label, set by the
// parser, wins over both. LabelBefore is the closest label that ends before
// the element with no other input-like element in between; LabelAfter is the
// mirror image.
func (b *builder) assignLabels() {
	var inputs []int
	for i := range b.elements {
		if b.elements[i].InputLike() {
			inputs = append(inputs, i)
		}
	}

	for k, i := range inputs {
		e := &b.elements[i]

		lowerBound := -1
		if k > 0 {
			lowerBound = b.elements[inputs[k-1]].pos
		}
		upperBound := int(^uint(0) >> 1)
		if k+1 < len(inputs) {
			upperBound = b.elements[inputs[k+1]].pos
		}

		for _, l := range b.labels {
			if l.text == "" {
				continue
			}
			switch {
			case l.forID != "" && labelTargets(l.forID, *e):
				if e.Label == "" {
					e.Label = l.text
				}
			case l.start < e.pos && e.pos < l.end:
				if e.Label == "" {
					e.Label = l.text
				}
			case l.end <= e.pos && l.end > lowerBound:
				// Later labels overwrite earlier ones: the closest wins.
				e.LabelBefore = l.text
			case l.start > e.pos && l.start < upperBound && e.LabelAfter == "":
				e.LabelAfter = l.text
			}
		}
	}
}

func labelTargets(forID string, e Element) bool {
	forID = strings.TrimSpace(forID)
	if forID == strconv.Itoa(e.ID) {
		return true
	}
	return e.Attrs != nil && forID == e.Attrs["id"]
}
