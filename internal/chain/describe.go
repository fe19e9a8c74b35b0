package chain

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/actions"
	"github.com/xkilldash9x/tandem/internal/dom"
)

// Per-action cost model in milliseconds. Advisory only.
const (
	valueOpCost   = 100
	clickOpCost   = 50
	scrollOpCost  = 150
	defaultWaitMs = 1000
)

// EstimateDuration sums the per-action cost model over acts.
func EstimateDuration(acts []actions.Action) int {
	total := 0
	for _, act := range acts {
		total += actionCost(act)
	}
	return total
}

func actionCost(act actions.Action) int {
	switch act.Name {
	case "setValue", "select", "check", "uncheck":
		return valueOpCost
	case "click", "focus", "blur", "hover":
		return clickOpCost
	case "scroll":
		return scrollOpCost
	case "wait":
		if len(act.Args) > 0 {
			if ms, ok := act.Args[0].Int(); ok && ms >= 0 {
				return ms
			}
		}
		return defaultWaitMs
	}
	return clickOpCost
}

// ClassifyReason picks the chain reason from the action-type composition.
func ClassifyReason(grammar *actions.Grammar, acts []actions.Action) schemas.ChainReason {
	var (
		setValues, selects, toggles, otherInputs, nonInputs int
	)
	for _, act := range acts {
		switch {
		case act.Name == "setValue":
			setValues++
		case act.Name == "select":
			selects++
		case act.Name == "check" || act.Name == "uncheck":
			toggles++
		case grammar.CategoryOf(act.Name) == actions.CategoryInput:
			otherInputs++
		default:
			nonInputs++
		}
	}

	switch {
	case len(acts) == 0 || nonInputs > 0:
		return schemas.ReasonSequentialSteps
	case setValues > 0 && toggles == 0 && otherInputs == 0:
		// All setValue, or setValue mixed with select.
		return schemas.ReasonFormFill
	case toggles == len(acts):
		return schemas.ReasonBulkSelection
	default:
		return schemas.ReasonRelatedInputs
	}
}

// Describe renders a human readable description of an action. When the
// element can be resolved its label, name or text is used instead of the
// bare id.
func Describe(act actions.Action, r dom.Resolver) string {
	target := describeTarget(act, r)
	value, _ := act.TextArg(1)

	switch act.Name {
	case "setValue":
		return fmt.Sprintf("Enter %q into %s", value, target)
	case "select":
		return fmt.Sprintf("Select %q in %s", value, target)
	case "check":
		return fmt.Sprintf("Check %s", target)
	case "uncheck":
		return fmt.Sprintf("Uncheck %s", target)
	case "click":
		return fmt.Sprintf("Click %s", target)
	case "focus":
		return fmt.Sprintf("Focus %s", target)
	case "blur":
		return fmt.Sprintf("Leave %s", target)
	case "hover":
		return fmt.Sprintf("Hover over %s", target)
	case "scroll":
		if _, ok := act.ElementID(); ok {
			return fmt.Sprintf("Scroll to %s", target)
		}
		if dir, ok := act.TextArg(0); ok {
			return fmt.Sprintf("Scroll %s", dir)
		}
		return "Scroll the page"
	case "wait":
		return fmt.Sprintf("Wait %d ms", actionCost(act))
	}
	return act.String()
}

func describeTarget(act actions.Action, r dom.Resolver) string {
	id, ok := act.ElementID()
	if !ok {
		return "the page"
	}
	if r != nil {
		if el, found := r.Resolve(id); found {
			for _, candidate := range []string{el.Label, el.LabelBefore, el.Placeholder, el.Name, el.Text} {
				if c := strings.TrimSpace(candidate); c != "" {
					return fmt.Sprintf("%q (element %d)", c, id)
				}
			}
		}
	}
	return fmt.Sprintf("element %d", id)
}

func expectedOutcome(act actions.Action) string {
	id, _ := act.ElementID()
	switch act.Name {
	case "setValue":
		value, _ := act.TextArg(1)
		return fmt.Sprintf("element %d contains %q", id, value)
	case "select":
		value, _ := act.TextArg(1)
		return fmt.Sprintf("element %d shows %q", id, value)
	case "check":
		return fmt.Sprintf("element %d is checked", id)
	case "uncheck":
		return fmt.Sprintf("element %d is unchecked", id)
	}
	return ""
}
