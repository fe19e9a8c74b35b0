package verification

import (
	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/dom"
)

// facts are the observations Tier 1 reasons over. Caller-supplied overrides
// on the request win over values derived from the URLs and DOMs.
type facts struct {
	urlChanged     bool
	significantURL bool
	crossDomain    bool
	contentChanged bool
	// nextGoalPresent is nil when presence could not be determined.
	nextGoalPresent *bool
}

func deriveFacts(req schemas.VerificationRequest) facts {
	pc := ObservePageChange(
		PageState{URL: req.URLBefore, DOM: req.DOMBefore},
		PageState{URL: req.URLAfter, DOM: req.DOMAfter},
	)
	f := facts{
		urlChanged:     pc.URLChanged,
		significantURL: pc.SignificantURLChange,
		crossDomain:    pc.CrossDomain,
		contentChanged: pc.ContentChanged,
	}
	if req.URLChanged != nil {
		f.urlChanged = *req.URLChanged
		switch {
		case !f.urlChanged:
			f.significantURL = false
		case req.URLBefore == "" || req.URLAfter == "":
			// Without both URLs the caller's word is all there is.
			f.significantURL = true
		}
	}
	if req.CrossDomain != nil {
		f.crossDomain = *req.CrossDomain
	}
	if req.ContentChanged != nil {
		f.contentChanged = *req.ContentChanged
	}
	f.nextGoalPresent = nextGoalPresence(req)
	return f
}

func nextGoalPresence(req schemas.VerificationRequest) *bool {
	g := req.NextGoal
	if g == nil {
		return nil
	}
	if g.Present != nil {
		p := *g.Present
		return &p
	}
	if req.DOMAfter == "" {
		return nil
	}
	if g.ElementID != nil {
		_, ok := dom.Parse(req.DOMAfter).Resolve(*g.ElementID)
		return &ok
	}
	if g.Text != "" {
		ok := dom.Parse(req.DOMAfter).ContainsText(g.Text)
		return &ok
	}
	return nil
}

func deterministic(succeeded, completed bool, confidence float64, reason string) Outcome {
	return Verdict(schemas.VerificationResult{
		Tier:            schemas.TierDeterministic,
		ActionSucceeded: succeeded,
		TaskCompleted:   completed,
		Confidence:      confidence,
		Reason:          reason,
	})
}

// TryDeterministicVerification applies the Tier 1 rules in order; the first
// match wins. Intermediate steps can be confirmed from page signals alone,
// but only a SIMPLE navigation is ever declared complete here.
func TryDeterministicVerification(req schemas.VerificationRequest) Outcome {
	req, err := prepare(req)
	if err != nil {
		return Failed(schemas.TierDeterministic, err)
	}
	f := deriveFacts(req)
	navigation := req.ActionType == schemas.VerifyActionNavigation

	switch {
	case navigation && f.significantURL && !req.IsLastStep:
		return deterministic(true, false, 1.0, "navigation changed the URL")
	case f.contentChanged && !req.IsLastStep:
		return deterministic(true, false, 0.95, "the page content changed meaningfully")
	case f.crossDomain && !req.IsLastStep:
		return deterministic(true, false, 1.0, "the action moved to another site")
	case req.NextGoal != nil && req.NextGoal.Required && f.nextGoalPresent != nil && !*f.nextGoalPresent:
		out := deterministic(false, false, 0.8, "the element the next step needs is missing: "+nextGoalLabel(req.NextGoal))
		out.Result.RouteToCorrection = true
		return out
	case f.nextGoalPresent != nil && *f.nextGoalPresent && !req.IsLastStep:
		return deterministic(true, false, 0.95, "the element the next step needs is present")
	case req.Complexity == schemas.ComplexitySimple && navigation && f.urlChanged:
		return deterministic(true, true, 1.0, "simple navigation task reached a new URL")
	}
	return Escalate(schemas.TierDeterministic, "no deterministic rule matched")
}

func nextGoalLabel(g *schemas.NextGoalCheck) string {
	switch {
	case g.Description != "":
		return g.Description
	case g.Text != "":
		return g.Text
	default:
		return "next goal"
	}
}
