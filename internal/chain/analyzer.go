// internal/chain/analyzer.go
package chain

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/actions"
	"github.com/xkilldash9x/tandem/internal/dom"
)

// Analyzer decides whether a candidate list of actions may be executed as a
// single chain.
type Analyzer struct {
	grammar *actions.Grammar
	opts    Options
	logger  *zap.Logger
}

// NewAnalyzer creates an analyzer over the given grammar.
func NewAnalyzer(grammar *actions.Grammar, opts Options, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		grammar: grammar,
		opts:    opts,
		logger:  logger.Named("chain_analyzer"),
	}
}

// Grammar returns the action table the analyzer validates against.
func (a *Analyzer) Grammar() *actions.Grammar { return a.grammar }

// Options returns the thresholds in use.
func (a *Analyzer) Options() Options { return a.opts }

// AnalyzeChainSafety is the string-level entry point: it parses the actions
// and the DOM snapshot and runs every check.
func (a *Analyzer) AnalyzeChainSafety(actionStrs []string, domSnapshot string) schemas.ChainSafetyAnalysis {
	if verdict, ok := a.precheck(actionStrs); ok {
		return verdict
	}

	parsed := make([]actions.Action, 0, len(actionStrs))
	for _, s := range actionStrs {
		act, err := actions.Parse(s)
		if err != nil {
			return refuse(1.0, fmt.Sprintf("action %q cannot be parsed", s), schemas.BlockerNonChainableAction)
		}
		parsed = append(parsed, act)
	}
	return a.Analyze(parsed, dom.Parse(domSnapshot))
}

// Analyze runs the checks on already parsed actions. A nil resolver skips the
// checks that need element identities (element extraction and the container
// relationship); everything else still applies.
func (a *Analyzer) Analyze(acts []actions.Action, r dom.Resolver) schemas.ChainSafetyAnalysis {
	names := make([]string, len(acts))
	for i, act := range acts {
		names[i] = act.Name
	}
	if verdict, ok := a.precheck(names); ok {
		return verdict
	}

	for _, act := range acts {
		if !a.grammar.IsChainable(act.Name) {
			return refuse(1.0, fmt.Sprintf("action %q is not in the chainable grammar", act.Name), schemas.BlockerNonChainableAction)
		}
	}

	var (
		blockers []schemas.Blocker
		problems []string
	)

	containerOK := true
	if r != nil {
		ids := a.elementIDs(acts)
		if len(ids) == 0 {
			return refuse(0.8, "cannot validate without element identities", schemas.BlockerUnresolvedElements)
		}
		ok, blocker, problem := containerRelationship(ids, r)
		containerOK = ok
		if blocker != "" {
			blockers = append(blockers, blocker)
		}
		if problem != "" {
			problems = append(problems, problem)
		}
	}

	typeOK, blocker, problem := a.typeConsistency(acts)
	if blocker != "" {
		blockers = append(blockers, blocker)
	}
	if problem != "" {
		problems = append(problems, problem)
	}

	confidence := 1.0
	if !containerOK {
		confidence *= 0.3
	}
	if !typeOK {
		confidence *= 0.4
	}
	if len(acts) > 5 {
		confidence *= 0.9
	}
	if len(acts) > 8 {
		confidence *= 0.85
	}

	canChain := confidence >= a.opts.ConfidenceThreshold && len(blockers) == 0
	reason := fmt.Sprintf("%d actions share one container and interaction type", len(acts))
	if len(problems) > 0 {
		reason = strings.Join(problems, "; ")
	} else if !canChain {
		reason = fmt.Sprintf("confidence %.2f is below threshold %.2f", confidence, a.opts.ConfidenceThreshold)
	}

	a.logger.Debug("Chain safety analyzed",
		zap.Int("actions", len(acts)),
		zap.Bool("can_chain", canChain),
		zap.Float64("confidence", confidence),
		zap.Any("blockers", blockers))

	return schemas.ChainSafetyAnalysis{
		CanChain:   canChain,
		Confidence: confidence,
		Reason:     reason,
		Blockers:   blockers,
	}
}

// precheck covers the size rule and the high-risk denylist, both of which
// only need action names.
func (a *Analyzer) precheck(names []string) (schemas.ChainSafetyAnalysis, bool) {
	if len(names) < a.opts.MinChainSize {
		return refuse(1.0, fmt.Sprintf("a chain needs at least %d actions, got %d", a.opts.MinChainSize, len(names))), true
	}
	for _, n := range names {
		if actions.IsHighRisk(n) || actions.IsHighRiskAction(n) {
			return refuse(1.0, fmt.Sprintf("high-risk action %q cannot be chained", actionName(n)), schemas.BlockerHighRiskAction), true
		}
	}
	return schemas.ChainSafetyAnalysis{}, false
}

func actionName(s string) string {
	if n := actions.Name(s); n != "" {
		return n
	}
	return s
}

func refuse(confidence float64, reason string, blockers ...schemas.Blocker) schemas.ChainSafetyAnalysis {
	return schemas.ChainSafetyAnalysis{CanChain: false, Confidence: confidence, Reason: reason, Blockers: blockers}
}

func (a *Analyzer) elementIDs(acts []actions.Action) []int {
	var ids []int
	for _, act := range acts {
		if id, ok := a.grammar.ElementID(act); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// containerRelationship checks that every referenced element lives in the
// same form, or, when no form is known at all, that every element is
// input-like.
func containerRelationship(ids []int, r dom.Resolver) (bool, schemas.Blocker, string) {
	var (
		resolved []dom.Element
		missing  []int
	)
	for _, id := range ids {
		el, ok := r.Resolve(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		resolved = append(resolved, el)
	}
	if len(missing) > 0 {
		return false, "", fmt.Sprintf("elements %v not found in the DOM", missing)
	}

	forms := make(map[string]struct{})
	for _, el := range resolved {
		forms[el.FormID] = struct{}{}
	}
	_, anyOutside := forms[""]

	switch {
	case len(forms) == 1 && !anyOutside:
		return true, "", ""
	case len(forms) == 1 && anyOutside:
		for _, el := range resolved {
			if !el.InputLike() {
				return false, "", fmt.Sprintf("element %d is not input-like and no form context is available", el.ID)
			}
		}
		return true, "", ""
	default:
		return false, schemas.BlockerCrossContainer, "elements span more than one container"
	}
}

// typeConsistency applies the interaction-type rules. Input actions mix
// freely and neutral actions go with anything. A click is only tolerated as
// the final action, and only when AllowTrailingClick is set.
func (a *Analyzer) typeConsistency(acts []actions.Action) (bool, schemas.Blocker, string) {
	var (
		inputs         int
		clicks         int
		nonTrailingHit bool
	)
	for i, act := range acts {
		switch a.grammar.CategoryOf(act.Name) {
		case actions.CategoryInput:
			inputs++
		case actions.CategoryClick:
			clicks++
			if i != len(acts)-1 {
				nonTrailingHit = true
			}
		}
	}

	switch {
	case clicks == 0:
		return true, "", ""
	case inputs == 0:
		return false, "", "click-only sequences are not a single interaction"
	case nonTrailingHit:
		return false, schemas.BlockerDifferentInteractionType, "clicks are interleaved with input actions"
	case a.opts.AllowTrailingClick:
		return true, "", ""
	default:
		return false, "", "a trailing click may change the page before the chain completes"
	}
}

var fillIntentPattern = regexp.MustCompile(`(?i)\b(fill(ing)?|enter|type|input|complete|populate|register|sign[- ]?up|log[- ]?in|checkout|form)\b`)

// ChainableGroup is a proactive chaining suggestion: fillable elements that
// share a container.
type ChainableGroup struct {
	FormID            string        `json:"formId,omitempty"`
	ContainerSelector string        `json:"containerSelector,omitempty"`
	Elements          []dom.Element `json:"elements"`
}

// ElementIDs returns the ids of the group's elements in document order.
func (g *ChainableGroup) ElementIDs() []int {
	if g == nil {
		return nil
	}
	ids := make([]int, len(g.Elements))
	for i, el := range g.Elements {
		ids[i] = el.ID
	}
	return ids
}

// IdentifyChainableGroups looks for fill intent in the plan step or the user
// query and, when present, proposes the largest group of fillable fields that
// share a form. It returns nil when there is no intent or no qualifying
// group.
func (a *Analyzer) IdentifyChainableGroups(planStep, domSnapshot, query string) *ChainableGroup {
	return a.IdentifyGroups(planStep, dom.Parse(domSnapshot), query)
}

// IdentifyGroups is IdentifyChainableGroups over a resolved snapshot.
func (a *Analyzer) IdentifyGroups(planStep string, r dom.Resolver, query string) *ChainableGroup {
	if r == nil || !(fillIntentPattern.MatchString(planStep) || fillIntentPattern.MatchString(query)) {
		return nil
	}

	groups, keys := dom.GroupByForm(dom.FillableFields(r))
	var best string
	found := false
	for _, k := range keys {
		if len(groups[k]) < a.opts.MinChainSize {
			continue
		}
		if !found || len(groups[k]) > len(groups[best]) {
			best, found = k, true
		}
	}
	if !found {
		return nil
	}

	elements := groups[best]
	if len(elements) > a.opts.MaxChainSize {
		elements = elements[:a.opts.MaxChainSize]
	}
	a.logger.Debug("Chainable group identified",
		zap.String("form_id", best),
		zap.Int("fields", len(elements)))

	return &ChainableGroup{
		FormID:            best,
		ContainerSelector: dom.FormSelector(best),
		Elements:          elements,
	}
}
