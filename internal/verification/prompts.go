package verification

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/dom"
)

const verdictFormat = `Respond with a single JSON object and nothing else:
{"action_succeeded": <bool>, "task_completed": <bool>, "sub_task_completed": <bool>, "confidence": <0.0-1.0>, "reason": "<one sentence>"}
action_succeeded and task_completed are independent: an action can succeed while the task is still unfinished.`

const lightweightSystemPrompt = `You verify the final step of a browser automation task.
Judge only from the facts given. If the facts do not clearly show the goal is met, set task_completed to false and lower your confidence.
` + verdictFormat

const semanticDOMSystemPrompt = `You are the final judge of a browser automation step.
You receive the user's goal, the action that ran, URL facts and an excerpt of the page after the action.
Decide whether the action did what it was meant to do and whether the user's whole goal is now complete.
Never assume success the page does not show.
` + verdictFormat

const semanticObservationSystemPrompt = `You are the final judge of a browser automation step.
No page source is available; you receive discrete observations about what changed.
Decide whether the action did what it was meant to do and whether the user's whole goal is now complete.
Never assume success the observations do not show.
` + verdictFormat

func writeFacts(b *strings.Builder, req schemas.VerificationRequest, f facts) {
	fmt.Fprintf(b, "User goal: %s\n", orNone(req.UserGoal))
	fmt.Fprintf(b, "Task complexity: %s\n", orNone(string(req.Complexity)))
	fmt.Fprintf(b, "Action: %s (%s)\n", orNone(req.Action), orNone(string(req.ActionType)))
	if req.ExpectedOutcome != "" {
		fmt.Fprintf(b, "Expected outcome: %s\n", req.ExpectedOutcome)
	}
	fmt.Fprintf(b, "Last step of the plan: %t\n", req.IsLastStep)
	if req.URLBefore != "" || req.URLAfter != "" {
		fmt.Fprintf(b, "URL before: %s\nURL after: %s\n", orNone(req.URLBefore), orNone(req.URLAfter))
	}
	fmt.Fprintf(b, "URL changed: %t\nCross-domain: %t\nPage content changed: %t\n", f.urlChanged, f.crossDomain, f.contentChanged)
	if req.NetworkActivity {
		b.WriteString("Network activity followed the action.\n")
	}
	if f.nextGoalPresent != nil {
		fmt.Fprintf(b, "Next step's target (%s) present: %t\n", nextGoalLabel(req.NextGoal), *f.nextGoalPresent)
	}
}

func lightweightPrompt(req schemas.VerificationRequest, f facts) string {
	var b strings.Builder
	writeFacts(&b, req, f)
	if len(req.Observations) > 0 {
		b.WriteString("Observations:\n")
		for _, o := range req.Observations {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	return b.String()
}

func semanticDOMPrompt(req schemas.VerificationRequest, f facts, excerptChars int) string {
	var b strings.Builder
	writeFacts(&b, req, f)
	if req.TargetElementID != nil {
		fmt.Fprintf(&b, "Target element: %d\n", *req.TargetElementID)
	}
	b.WriteString("\nPage after the action (excerpt):\n")
	b.WriteString(domExcerpt(req.DOMAfter, req.TargetElementID, excerptChars))
	b.WriteString("\n")
	return b.String()
}

func semanticObservationPrompt(req schemas.VerificationRequest, f facts) string {
	var b strings.Builder
	writeFacts(&b, req, f)
	b.WriteString("\nObservations:\n")
	if len(req.Observations) == 0 {
		b.WriteString("- none reported\n")
	}
	for _, o := range req.Observations {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	return b.String()
}

// domExcerpt returns at most maxChars runes of snapshot, centred on the
// target element when it can be located and taken from the top otherwise.
func domExcerpt(snapshot string, target *int, maxChars int) string {
	r := []rune(snapshot)
	if maxChars <= 0 || len(r) <= maxChars {
		return snapshot
	}
	start := 0
	if target != nil {
		if at, ok := dom.Locate(snapshot, *target); ok {
			centre := len([]rune(snapshot[:at]))
			start = centre - maxChars/2
		}
	}
	if start < 0 {
		start = 0
	}
	if start > len(r)-maxChars {
		start = len(r) - maxChars
	}
	out := string(r[start : start+maxChars])
	if start > 0 {
		out = "…" + out
	}
	if start+maxChars < len(r) {
		out += "…"
	}
	return out
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
