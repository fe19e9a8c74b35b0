// Package engine ties chaining, recovery and verification together into the
// per-step calls an orchestrator makes, and replays recorded calls through a
// worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/actions"
	"github.com/xkilldash9x/tandem/internal/chain"
	"github.com/xkilldash9x/tandem/internal/config"
	"github.com/xkilldash9x/tandem/internal/dom"
	"github.com/xkilldash9x/tandem/internal/observability"
	"github.com/xkilldash9x/tandem/internal/verification"
)

// ErrNothingToPlan is returned when the planner output holds no action at all.
var ErrNothingToPlan = errors.New("planner output contains no usable action")

// Coordinator is stateless between calls; every request carries the chain it
// is about, so one Coordinator serves any number of concurrent sessions.
type Coordinator struct {
	grammar   *actions.Grammar
	analyzer  *chain.Analyzer
	generator *chain.Generator
	recovery  *chain.Recovery
	tiered    *verification.Tiered
	semantic  *verification.Semantic

	maxRetryAttempts int
	metrics          *observability.Metrics
	logger           *zap.Logger
	tracer           trace.Tracer
}

// NewCoordinator wires the components from cfg. client may be nil, in which
// case Tier 2 is skipped and Tier 3 fails closed. metrics may be nil.
func NewCoordinator(
	cfg *config.Config,
	client schemas.LLMClient,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...Option,
) (*Coordinator, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	chainOpts := ChainOptions(cfg.Chain)
	if err := chainOpts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chain configuration: %w", err)
	}
	s := applyOptions(opts)

	genOpts := []chain.GeneratorOption{chain.WithTracer(s.tracer)}
	recOpts := []chain.RecoveryOption{chain.WithMismatchHook(func(expected, reported int) {
		metrics.ObserveLengthMismatch()
	})}
	if s.newID != nil {
		genOpts = append(genOpts, chain.WithIDSource(s.newID))
		recOpts = append(recOpts, chain.WithRecoveryIDSource(s.newID))
	}

	grammar := actions.DefaultGrammar()
	recOpts = append(recOpts, chain.WithRecoveryGrammar(grammar))
	analyzer := chain.NewAnalyzer(grammar, chainOpts, logger)
	vopts := VerificationOptions(cfg.Verification)

	var lightweight *verification.Lightweight
	if client != nil {
		lightweight = verification.NewLightweight(client, vopts, logger, verification.WithTracer(s.tracer))
	}

	return &Coordinator{
		grammar:          grammar,
		analyzer:         analyzer,
		generator:        chain.NewGenerator(analyzer, logger, genOpts...),
		recovery:         chain.NewRecovery(chainOpts, logger, recOpts...),
		tiered:           verification.NewTiered(lightweight, logger),
		semantic:         verification.NewSemantic(client, vopts, logger, verification.WithTracer(s.tracer)),
		maxRetryAttempts: cfg.Chain.MaxRetryAttempts,
		metrics:          metrics,
		logger:           logger.Named("coordinator"),
		tracer:           s.tracer,
	}, nil
}

// AnalyzeChain judges a candidate list of actions against a DOM snapshot.
func (c *Coordinator) AnalyzeChain(actionStrs []string, domSnapshot string) schemas.ChainSafetyAnalysis {
	return c.analyzer.AnalyzeChainSafety(actionStrs, domSnapshot)
}

// -- Planning --

// PlanStep turns planner output into what the client executes next. Sources
// are tried in order: structured form data, the proposed action list, chain
// declarations in free text. When none yields a safe chain the first usable
// action is sent alone.
func (c *Coordinator) PlanStep(ctx context.Context, in schemas.PlanInput) (schemas.StepPlan, error) {
	ctx, span := c.tracer.Start(ctx, "engine.PlanStep")
	defer span.End()

	var r dom.Resolver
	if strings.TrimSpace(in.DOM) != "" {
		r = dom.Parse(in.DOM)
	}

	plan := c.plan(ctx, in, r)
	if plan.Chain == nil && plan.SingleAction == nil {
		span.SetStatus(codes.Error, ErrNothingToPlan.Error())
		return plan, ErrNothingToPlan
	}

	length := plan.Chain.Len()
	if plan.SingleAction != nil {
		length = 1
	}
	span.SetAttributes(
		attribute.String("plan.source", string(plan.Source)),
		attribute.Int("plan.length", length),
	)
	c.metrics.ObservePlan(string(plan.Source), length)
	c.logger.Debug("Step planned", zap.String("source", string(plan.Source)), zap.Int("length", length))
	return plan, nil
}

func (c *Coordinator) plan(ctx context.Context, in schemas.PlanInput, r dom.Resolver) schemas.StepPlan {
	if len(in.FormData) > 0 {
		if ch := c.generator.FormFill(in.FormData, r); ch != nil {
			return schemas.StepPlan{Source: schemas.PlanSourceFormData, Chain: ch}
		}
	}

	var analysis *schemas.ChainSafetyAnalysis
	if len(in.ProposedActions) > 1 {
		if ch := c.generator.FromActions(in.ProposedActions, r); ch != nil {
			return schemas.StepPlan{Source: schemas.PlanSourceActionList, Chain: ch}
		}
		a := c.judge(in.ProposedActions, in.DOM, r)
		analysis = &a
	}

	if in.PlannerText != "" {
		if ch := c.generator.GenerateChainFromText(ctx, in.PlannerText, in.DOM); ch != nil {
			return schemas.StepPlan{Source: schemas.PlanSourceText, Chain: ch}
		}
	}

	plan := schemas.StepPlan{Source: schemas.PlanSourceSingle, Analysis: analysis}
	act, ok := firstAction(in)
	if !ok {
		return plan
	}
	single := chain.NewChainedAction(c.grammar, act, 0, r)
	plan.SingleAction = &single

	if r != nil && c.grammar.CategoryOf(act.Name) == actions.CategoryInput {
		if group := c.analyzer.IdentifyGroups(in.PlanStep, r, in.Query); group != nil {
			plan.GroupHint = &schemas.GroupHint{
				FormID:            group.FormID,
				ContainerSelector: group.ContainerSelector,
				ElementIDs:        group.ElementIDs(),
			}
		}
	}
	return plan
}

// judge reports why a proposed list was not chained. Without a DOM only the
// checks that need no element identities run.
func (c *Coordinator) judge(actionStrs []string, domSnapshot string, r dom.Resolver) schemas.ChainSafetyAnalysis {
	if r != nil {
		return c.analyzer.AnalyzeChainSafety(actionStrs, domSnapshot)
	}
	parsed := make([]actions.Action, 0, len(actionStrs))
	for _, s := range actionStrs {
		act, err := actions.Parse(s)
		if err != nil {
			// The analyzer refuses unparseable input before it looks at the DOM.
			return c.analyzer.AnalyzeChainSafety(actionStrs, "")
		}
		parsed = append(parsed, act)
	}
	return c.analyzer.Analyze(parsed, nil)
}

// firstAction returns the first parseable action from the proposed list, or
// failing that from the lines of the planner text.
func firstAction(in schemas.PlanInput) (actions.Action, bool) {
	for _, s := range in.ProposedActions {
		if act, err := actions.Parse(s); err == nil {
			return act, true
		}
	}
	for _, line := range strings.Split(in.PlannerText, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "-*` ")
		if line == "" {
			continue
		}
		if act, err := actions.Parse(line); err == nil {
			return act, true
		}
	}
	return actions.Action{}, false
}

// -- Recovery --

// Recover decides how to continue a chain the client stopped early. A retry
// beyond the configured budget for the failed action becomes a regeneration.
// Validation failures wrap chain.ErrPartialStateMismatch or
// chain.ErrEmptyChain.
func (c *Coordinator) Recover(ctx context.Context, req schemas.RecoveryRequest) (schemas.ChainRecoveryResult, error) {
	ctx, span := c.tracer.Start(ctx, "engine.Recover")
	defer span.End()

	result, err := c.recovery.HandleChainPartialFailure(ctx, req.OriginalChain, req.LastExecutedIndex, req.PartialState, req.DOM, req.Error)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return schemas.ChainRecoveryResult{}, err
	}

	if result.Strategy == schemas.StrategyRetryFailed && req.RetryAttempts >= c.maxRetryAttempts {
		c.logger.Info("Retry budget exhausted, regenerating",
			zap.Int("attempts", req.RetryAttempts),
			zap.Int("max_attempts", c.maxRetryAttempts))
		result = schemas.ChainRecoveryResult{
			Strategy: schemas.StrategyRegenerateChain,
			Reason:   fmt.Sprintf("retry budget of %d exhausted: %s", c.maxRetryAttempts, result.Reason),
		}
	}

	code := ""
	if req.Error != nil {
		code = string(req.Error.Code)
	}
	span.SetAttributes(attribute.String("recovery.strategy", string(result.Strategy)))
	c.metrics.ObserveRecovery(string(result.Strategy), code)
	return result, nil
}

// -- Verification --

// VerifyStep returns a verdict for one executed action. Tier 1 and Tier 2
// run first; an escalation goes to Tier 3, in DOM mode when an after-DOM is
// available and observation mode otherwise. Token counts on the result cover
// every tier that ran.
func (c *Coordinator) VerifyStep(ctx context.Context, opts schemas.VerificationOptions) (schemas.VerificationResult, error) {
	ctx, span := c.tracer.Start(ctx, "engine.VerifyStep")
	defer span.End()

	start := time.Now()
	out := c.tiered.RunTieredVerification(ctx, opts)
	c.metrics.ObserveTierDuration(string(out.Tier), time.Since(start))
	c.metrics.ObserveTokens(string(out.Tier), out.PromptTokens, out.CompletionTokens)

	switch {
	case out.IsError():
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
		return schemas.VerificationResult{}, out.Err
	case out.IsVerdict():
		return c.verdict(span, *out.Result), nil
	}

	c.metrics.ObserveEscalation(string(out.Tier))
	c.logger.Debug("Escalating to semantic verification",
		zap.String("from_tier", string(out.Tier)),
		zap.String("reason", out.Reason))

	start = time.Now()
	var result schemas.VerificationResult
	if strings.TrimSpace(opts.DOMAfter) != "" {
		result = c.semantic.VerifyWithDOM(ctx, opts)
	} else {
		result = c.semantic.VerifyWithObservations(ctx, opts)
	}
	c.metrics.ObserveTierDuration(string(schemas.TierFull), time.Since(start))
	c.metrics.ObserveTokens(string(schemas.TierFull), result.PromptTokens, result.CompletionTokens)

	result.PromptTokens += out.PromptTokens
	result.CompletionTokens += out.CompletionTokens
	return c.verdict(span, result), nil
}

func (c *Coordinator) verdict(span trace.Span, r schemas.VerificationResult) schemas.VerificationResult {
	span.SetAttributes(
		attribute.String("verification.tier", string(r.Tier)),
		attribute.Bool("verification.action_succeeded", r.ActionSucceeded),
		attribute.Bool("verification.task_completed", r.TaskCompleted),
	)
	c.metrics.ObserveVerdict(string(r.Tier), r.ActionSucceeded, r.TaskCompleted)
	return r
}
