// internal/chain/generator.go
package chain

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/actions"
	"github.com/xkilldash9x/tandem/internal/dom"
)

const tracerName = "github.com/xkilldash9x/tandem/internal/chain"

// Generator builds action chains. Every path runs the Analyzer before a
// chain is returned; a nil chain means "send a single action instead".
type Generator struct {
	analyzer *Analyzer
	grammar  *actions.Grammar
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
	newID    func() string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTracer overrides the tracer used for extraction failures.
func WithTracer(t trace.Tracer) GeneratorOption {
	return func(g *Generator) { g.tracer = t }
}

// WithIDSource overrides chain id generation, mostly for tests.
func WithIDSource(f func() string) GeneratorOption {
	return func(g *Generator) { g.newID = f }
}

// NewGenerator creates a generator that validates through analyzer.
func NewGenerator(analyzer *Analyzer, logger *zap.Logger, opts ...GeneratorOption) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		analyzer: analyzer,
		grammar:  analyzer.Grammar(),
		opts:     analyzer.Options(),
		logger:   logger.Named("chain_generator"),
		tracer:   otel.Tracer(tracerName),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// -- Form fill from structured data --

// GenerateFormFillChain resolves each field name to an element of the DOM
// snapshot and emits one value-setting action per resolved field.
func (g *Generator) GenerateFormFillChain(fields map[string]string, domSnapshot string) *schemas.ActionChain {
	return g.FormFill(fields, dom.Parse(domSnapshot))
}

// FormFill is GenerateFormFillChain over a resolved snapshot.
func (g *Generator) FormFill(fields map[string]string, r dom.Resolver) *schemas.ActionChain {
	if r == nil {
		return nil
	}
	acts := g.fieldActions(fields, dom.CandidatesFor(r, fillTarget))
	if len(acts) < g.opts.MinChainSize {
		g.logger.Debug("Form fill resolved too few fields",
			zap.Int("fields", len(fields)),
			zap.Int("resolved", len(acts)))
		return nil
	}
	return g.validated(acts, r, schemas.ReasonFormFill)
}

// GenerateChainFromGroup fills fields using only the elements of a group
// suggested by IdentifyChainableGroups.
func (g *Generator) GenerateChainFromGroup(group *ChainableGroup, fields map[string]string, r dom.Resolver) *schemas.ActionChain {
	if group == nil || r == nil {
		return nil
	}
	var scope []dom.Element
	for _, el := range group.Elements {
		if fillTarget(el) {
			scope = append(scope, el)
		}
	}
	acts := g.fieldActions(fields, scope)
	if len(acts) < g.opts.MinChainSize {
		return nil
	}
	reason := schemas.ReasonFormFill
	if group.FormID != "" {
		reason = schemas.ReasonOptimizedPath
	}
	return g.validated(acts, r, reason)
}

func fillTarget(el dom.Element) bool {
	return el.TextEntry() || el.Tag == "select"
}

// fieldActions matches field names to candidates and returns the actions in
// document order. Each element is claimed by at most one field.
func (g *Generator) fieldActions(fields map[string]string, candidates []dom.Element) []actions.Action {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	position := make(map[int]int, len(candidates))
	for i, el := range candidates {
		if _, seen := position[el.ID]; !seen {
			position[el.ID] = i
		}
	}

	claimed := make(map[int]bool)
	type match struct {
		el    dom.Element
		value string
	}
	var matches []match
	for _, name := range names {
		el, ok := matchField(name, candidates, claimed)
		if !ok {
			g.logger.Debug("Form field not found in DOM", zap.String("field", name))
			continue
		}
		claimed[el.ID] = true
		matches = append(matches, match{el: el, value: fields[name]})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return position[matches[i].el.ID] < position[matches[j].el.ID]
	})

	acts := make([]actions.Action, 0, len(matches))
	for _, m := range matches {
		verb := "setValue"
		if m.el.Tag == "select" {
			verb = "select"
		}
		acts = append(acts, actions.New(verb, actions.Number(m.el.ID), actions.String(m.value)))
	}
	if len(acts) > g.opts.MaxChainSize {
		acts = acts[:g.opts.MaxChainSize]
	}
	return acts
}

// matchField applies the layered lookup: exact name attribute, then
// placeholder substring, then label text before the input, then label text
// after it.
func matchField(field string, candidates []dom.Element, claimed map[int]bool) (dom.Element, bool) {
	needle := normalize(field)
	if needle == "" {
		return dom.Element{}, false
	}
	layers := []func(dom.Element) bool{
		func(el dom.Element) bool { return strings.EqualFold(el.Name, field) },
		func(el dom.Element) bool { return contains(el.Placeholder, needle) },
		func(el dom.Element) bool { return contains(el.Label, needle) || contains(el.LabelBefore, needle) },
		func(el dom.Element) bool { return contains(el.LabelAfter, needle) },
	}
	for _, layer := range layers {
		for _, el := range candidates {
			if !claimed[el.ID] && layer(el) {
				return el, true
			}
		}
	}
	return dom.Element{}, false
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func normalize(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

func contains(haystack, normalizedNeedle string) bool {
	h := normalize(haystack)
	return h != "" && strings.Contains(h, normalizedNeedle)
}

// -- From a list of action strings --

// GenerateChainFromActions filters, truncates and validates a list of
// planner actions. An empty domSnapshot runs only the checks that do not
// need element identities.
func (g *Generator) GenerateChainFromActions(actionStrs []string, domSnapshot string) *schemas.ActionChain {
	var r dom.Resolver
	if strings.TrimSpace(domSnapshot) != "" {
		r = dom.Parse(domSnapshot)
	}
	return g.FromActions(actionStrs, r)
}

// FromActions is GenerateChainFromActions over a resolved snapshot. A nil
// resolver means no DOM was supplied.
func (g *Generator) FromActions(actionStrs []string, r dom.Resolver) *schemas.ActionChain {
	acts := g.chainable(actionStrs)
	if len(acts) > g.opts.MaxChainSize {
		acts = acts[:g.opts.MaxChainSize]
	}
	if len(acts) < g.opts.MinChainSize {
		return nil
	}
	return g.validated(acts, r, ClassifyReason(g.grammar, acts))
}

// chainable drops everything that may not appear in a chain: unparseable
// strings, high-risk names, non-chainable names and arity mismatches.
func (g *Generator) chainable(actionStrs []string) []actions.Action {
	out := make([]actions.Action, 0, len(actionStrs))
	for _, s := range actionStrs {
		if actions.IsHighRiskAction(s) {
			continue
		}
		act, err := actions.Parse(s)
		if err != nil {
			g.logger.Debug("Dropping unparseable action", zap.String("action", s), zap.Error(err))
			continue
		}
		if !g.grammar.IsChainable(act.Name) {
			continue
		}
		if err := g.grammar.Validate(act); err != nil {
			g.logger.Debug("Dropping invalid action", zap.String("action", s), zap.Error(err))
			continue
		}
		out = append(out, act)
	}
	return out
}

// -- From free-form planner text --

var (
	chainMarkerRegex  = regexp.MustCompile(`(?im)^\s*CHAIN:\s*(.+?)\s*$`)
	numberedItemRegex = regexp.MustCompile(`^\s*\d+[.)]\s*` + "`?" + `([A-Za-z_][A-Za-z0-9_]*\()`)
	actionLineRegex   = regexp.MustCompile(`^\s*[-*]?\s*` + "`?" + `([A-Za-z_][A-Za-z0-9_]*\(\s*\d)`)
)

// GenerateChainFromText recognizes a batch declared in planner output. It
// never panics; failures are logged, recorded on the span and yield nil.
func (g *Generator) GenerateChainFromText(ctx context.Context, text, domSnapshot string) (result *schemas.ActionChain) {
	_, span := g.tracer.Start(ctx, "chain.GenerateChainFromText")
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic extracting chain from text: %v", rec)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			g.logger.Error("Chain extraction panicked", zap.Any("panic", rec), zap.Stack("stack"))
			result = nil
		}
	}()

	convention, items := ExtractActionList(text)
	span.SetAttributes(
		attribute.String("chain.convention", convention),
		attribute.Int("chain.candidates", len(items)),
	)
	if len(items) == 0 {
		return nil
	}

	var r dom.Resolver
	if strings.TrimSpace(domSnapshot) != "" {
		r = dom.Parse(domSnapshot)
	}
	result = g.FromActions(items, r)
	if result == nil {
		g.logger.Debug("Planner batch rejected",
			zap.String("convention", convention),
			zap.Strings("actions", items))
	}
	return result
}

// ExtractActionList returns the first batch convention found in text: a
// CHAIN: marker, a numbered list, or consecutive action lines. The
// convention name is "" when nothing matched.
func ExtractActionList(text string) (string, []string) {
	if m := chainMarkerRegex.FindStringSubmatch(text); m != nil {
		if items := actions.SplitTopLevel(m[1], '|'); len(items) > 0 {
			return "marker", items
		}
	}

	lines := strings.Split(text, "\n")

	var numbered []string
	for _, line := range lines {
		if call, ok := callAfter(numberedItemRegex, line); ok {
			numbered = append(numbered, call)
		}
	}
	if len(numbered) >= MinChainSize {
		return "numbered", numbered
	}

	var run []string
	for _, line := range lines {
		if call, ok := callAfter(actionLineRegex, line); ok {
			run = append(run, call)
			continue
		}
		if len(run) >= MinChainSize {
			break
		}
		run = nil
	}
	if len(run) >= MinChainSize {
		return "lines", run
	}
	return "", nil
}

// callAfter cuts the action call whose start re locates in line. Trailing
// commentary after the call is ignored.
func callAfter(re *regexp.Regexp, line string) (string, bool) {
	loc := re.FindStringSubmatchIndex(line)
	if loc == nil {
		return "", false
	}
	return actions.LeadingCall(line[loc[2]:])
}

// -- Assembly --

// validated runs the analyzer and assembles the chain when it passes.
func (g *Generator) validated(acts []actions.Action, r dom.Resolver, reason schemas.ChainReason) *schemas.ActionChain {
	analysis := g.analyzer.Analyze(acts, r)
	if !analysis.CanChain {
		g.logger.Debug("Chain rejected by analyzer",
			zap.String("reason", analysis.Reason),
			zap.Float64("confidence", analysis.Confidence),
			zap.Any("blockers", analysis.Blockers))
		return nil
	}
	return g.Assemble(acts, r, reason)
}

// Assemble builds the wire chain for acts without re-running the analyzer.
func (g *Generator) Assemble(acts []actions.Action, r dom.Resolver, reason schemas.ChainReason) *schemas.ActionChain {
	chained := make([]schemas.ChainedAction, len(acts))
	for i, act := range acts {
		chained[i] = NewChainedAction(g.grammar, act, i, r)
	}
	return &schemas.ActionChain{
		ID:      g.newID(),
		Actions: chained,
		Metadata: schemas.ChainMetadata{
			TotalActions:      len(chained),
			EstimatedDuration: EstimateDuration(acts),
			SafeToChain:       true,
			ChainReason:       reason,
			ContainerSelector: containerSelector(g.grammar, acts, r),
		},
	}
}

// NewChainedAction converts a typed action into its wire form at index.
func NewChainedAction(grammar *actions.Grammar, act actions.Action, index int, r dom.Resolver) schemas.ChainedAction {
	ca := schemas.ChainedAction{
		Action:          act.String(),
		Description:     Describe(act, r),
		Index:           index,
		ActionType:      schemas.ChainableActionType(act.Name),
		ExpectedOutcome: expectedOutcome(act),
	}
	if id, ok := grammar.ElementID(act); ok {
		ca.TargetElementID = &id
	}
	return ca
}

func containerSelector(grammar *actions.Grammar, acts []actions.Action, r dom.Resolver) string {
	if r == nil {
		return ""
	}
	form := ""
	for _, act := range acts {
		id, ok := grammar.ElementID(act)
		if !ok {
			continue
		}
		el, found := r.Resolve(id)
		if !found || el.FormID == "" {
			return ""
		}
		if form != "" && form != el.FormID {
			return ""
		}
		form = el.FormID
	}
	return dom.FormSelector(form)
}
