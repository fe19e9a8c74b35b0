package verification

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/tandem/internal/dom"
)

const (
	// minStructuralChange is the floor on added plus removed elements that
	// counts as a meaningful DOM change.
	minStructuralChange = 2
	// structuralChangeRatio is the share of the before-page's elements that
	// must appear or disappear on larger pages.
	structuralChangeRatio = 0.1
	// minTextChange is the visible text delta, in runes, that counts as a
	// meaningful change on its own.
	minTextChange = 80
)

// PageState is one side of an observation.
type PageState struct {
	URL string
	DOM string
}

// PageChange summarizes what an action did to the page.
type PageChange struct {
	// URLChanged is any difference in the URL, fragment included.
	URLChanged bool `json:"urlChanged"`
	// SignificantURLChange ignores fragment and trailing slash differences.
	SignificantURLChange bool `json:"significantUrlChange"`
	// CrossDomain compares registrable domains (eTLD+1).
	CrossDomain bool `json:"crossDomain"`
	// ContentChanged is a meaningful DOM change.
	ContentChanged  bool `json:"contentChanged"`
	AddedElements   int  `json:"addedElements"`
	RemovedElements int  `json:"removedElements"`
	TextDelta       int  `json:"textDelta"`
}

// ObservePageChange compares the page before and after an action.
func ObservePageChange(before, after PageState) PageChange {
	var pc PageChange
	if before.URL != "" && after.URL != "" {
		pc.URLChanged = before.URL != after.URL
		pc.SignificantURLChange = significantURLChange(before.URL, after.URL)
		pc.CrossDomain = crossDomain(before.URL, after.URL)
	}
	if before.DOM != "" && after.DOM != "" {
		bs, as := dom.Parse(before.DOM), dom.Parse(after.DOM)
		pc.AddedElements, pc.RemovedElements = elementDelta(bs, as)
		pc.TextDelta = textDelta(dom.VisibleText(before.DOM), dom.VisibleText(after.DOM))
		pc.ContentChanged = meaningfulChange(bs.Len(), pc.AddedElements+pc.RemovedElements, pc.TextDelta)
	}
	return pc
}

func significantURLChange(before, after string) bool {
	b, errB := url.Parse(before)
	a, errA := url.Parse(after)
	if errB != nil || errA != nil {
		return before != after
	}
	if !strings.EqualFold(b.Scheme, a.Scheme) || !strings.EqualFold(b.Host, a.Host) {
		return true
	}
	if strings.TrimSuffix(b.Path, "/") != strings.TrimSuffix(a.Path, "/") {
		return true
	}
	return b.Query().Encode() != a.Query().Encode()
}

// crossDomain compares registrable domains, falling back to the hostname for
// hosts publicsuffix cannot place (IP addresses, localhost).
func crossDomain(before, after string) bool {
	b, errB := url.Parse(before)
	a, errA := url.Parse(after)
	if errB != nil || errA != nil || b.Hostname() == "" || a.Hostname() == "" {
		return false
	}
	return registrableDomain(b.Hostname()) != registrableDomain(a.Hostname())
}

func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

type elementKey struct {
	id   int
	tag  string
	typ  string
	name string
}

func elementDelta(before, after *dom.Snapshot) (added, removed int) {
	seen := make(map[elementKey]int, before.Len())
	for _, e := range before.Elements() {
		seen[elementKey{e.ID, e.Tag, e.Type, e.Name}]++
	}
	for _, e := range after.Elements() {
		k := elementKey{e.ID, e.Tag, e.Type, e.Name}
		if seen[k] > 0 {
			seen[k]--
			continue
		}
		added++
	}
	for _, n := range seen {
		removed += n
	}
	return added, removed
}

// textDelta approximates how much visible text changed: the rune length of
// what remains after removing the common prefix and suffix, on the longer
// side.
func textDelta(before, after string) int {
	b, a := []rune(before), []rune(after)
	prefix := 0
	for prefix < len(b) && prefix < len(a) && b[prefix] == a[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(b)-prefix && suffix < len(a)-prefix && b[len(b)-1-suffix] == a[len(a)-1-suffix] {
		suffix++
	}
	db, da := len(b)-prefix-suffix, len(a)-prefix-suffix
	if db > da {
		return db
	}
	return da
}

func meaningfulChange(beforeElements, structural, text int) bool {
	threshold := minStructuralChange
	if ratio := int(float64(beforeElements) * structuralChangeRatio); ratio > threshold {
		threshold = ratio
	}
	return structural >= threshold || text >= minTextChange
}
