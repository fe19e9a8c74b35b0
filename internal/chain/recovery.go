// internal/chain/recovery.go
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/actions"
	"github.com/xkilldash9x/tandem/internal/dom"
)

var (
	// ErrPartialStateMismatch is returned when the client reports executed
	// actions that are not a prefix of the chain it was sent.
	ErrPartialStateMismatch = errors.New("partial state does not match the original chain")
	// ErrEmptyChain is returned when recovery is asked about a chain with no
	// actions.
	ErrEmptyChain = errors.New("original chain has no actions")
)

// PartialStateValidation is the result of ValidateChainPartialState.
type PartialStateValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateChainPartialState checks the client's report against the chain it
// was sent: the reported length must match, and every executed action must
// equal the action at the same position.
func ValidateChainPartialState(original *schemas.ActionChain, partial schemas.ChainPartialState) PartialStateValidation {
	var errs []string
	if partial.TotalActionsInChain != original.Len() {
		errs = append(errs, fmt.Sprintf("totalActionsInChain is %d but the chain has %d actions", partial.TotalActionsInChain, original.Len()))
	}
	errs = append(errs, prefixErrors(original, partial.ExecutedActions)...)
	return PartialStateValidation{Valid: len(errs) == 0, Errors: errs}
}

func prefixErrors(original *schemas.ActionChain, executed []string) []string {
	var errs []string
	if len(executed) > original.Len() {
		errs = append(errs, fmt.Sprintf("%d actions reported as executed but the chain has %d", len(executed), original.Len()))
	}
	for i, got := range executed {
		if i >= original.Len() {
			break
		}
		if want := original.Actions[i].Action; got != want {
			errs = append(errs, fmt.Sprintf("executedActions[%d] is %q, expected %q", i, got, want))
		}
	}
	return errs
}

// MismatchHook receives the soft length mismatch warning.
type MismatchHook func(expected, reported int)

// Recovery chooses how to continue after a chain stops part way through. It
// produces a decision only; asking the planner for new actions after
// REGENERATE_CHAIN is the caller's responsibility.
type Recovery struct {
	grammar    *actions.Grammar
	opts       Options
	logger     *zap.Logger
	onMismatch MismatchHook
	newID      func() string
}

// RecoveryOption configures a Recovery.
type RecoveryOption func(*Recovery)

// WithMismatchHook registers a callback for totalActionsInChain mismatches.
func WithMismatchHook(h MismatchHook) RecoveryOption {
	return func(r *Recovery) { r.onMismatch = h }
}

// WithRecoveryGrammar sets the action table used to locate element ids.
func WithRecoveryGrammar(g *actions.Grammar) RecoveryOption {
	return func(r *Recovery) { r.grammar = g }
}

// WithRecoveryIDSource overrides the id given to a rebuilt chain.
func WithRecoveryIDSource(f func() string) RecoveryOption {
	return func(r *Recovery) { r.newID = f }
}

// NewRecovery creates a recovery decision maker.
func NewRecovery(opts Options, logger *zap.Logger, options ...RecoveryOption) *Recovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recovery{
		grammar: actions.DefaultGrammar(),
		opts:    opts,
		logger:  logger.Named("chain_recovery"),
		newID:   uuid.NewString,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// HandleChainPartialFailure decides the next step after the client reported
// that original stopped after lastExecutedIndex. domSnapshot is the current
// page; when empty the partial state's DOM is used. chainErr may be nil.
func (rc *Recovery) HandleChainPartialFailure(
	ctx context.Context,
	original *schemas.ActionChain,
	lastExecutedIndex int,
	partial schemas.ChainPartialState,
	domSnapshot string,
	chainErr *schemas.ChainActionError,
) (schemas.ChainRecoveryResult, error) {
	if original.Len() == 0 {
		return schemas.ChainRecoveryResult{}, ErrEmptyChain
	}
	if errs := prefixErrors(original, partial.ExecutedActions); len(errs) > 0 {
		return schemas.ChainRecoveryResult{}, fmt.Errorf("%w: %s", ErrPartialStateMismatch, strings.Join(errs, "; "))
	}

	logger := rc.logger.With(zap.String("chain_id", original.ID))
	if partial.TotalActionsInChain != original.Len() {
		logger.Warn("Chain length reported by client does not match",
			zap.Int("expected", original.Len()),
			zap.Int("reported", partial.TotalActionsInChain))
		if rc.onMismatch != nil {
			rc.onMismatch(original.Len(), partial.TotalActionsInChain)
		}
	}

	failedIndex := lastExecutedIndex + 1
	if failedIndex < 0 || failedIndex >= original.Len() {
		return rc.decided(logger, schemas.ChainRecoveryResult{
			Strategy: schemas.StrategyRegenerateChain,
			Reason:   fmt.Sprintf("no action at index %d of a %d action chain", failedIndex, original.Len()),
		}), nil
	}
	failed := original.Actions[failedIndex]

	if failed.CanFail {
		return rc.decided(logger, rc.skip(original, failedIndex, "failed action is optional")), nil
	}
	if chainErr == nil {
		return rc.decided(logger, schemas.ChainRecoveryResult{
			Strategy: schemas.StrategyRegenerateChain,
			Reason:   "no error details reported",
		}), nil
	}

	if strings.TrimSpace(domSnapshot) == "" {
		domSnapshot = partial.DOMAfterLastSuccess
	}
	d := rc.decide(failed, chainErr, dom.Parse(domSnapshot))

	var result schemas.ChainRecoveryResult
	switch d.strategy {
	case schemas.StrategySkipFailed:
		result = rc.skip(original, failedIndex, d.reason)
	case schemas.StrategyRetryFailed:
		corrected := d.corrected
		result = schemas.ChainRecoveryResult{Strategy: d.strategy, Reason: d.reason, CorrectedAction: &corrected}
	case schemas.StrategySingleAction:
		single := failed
		single.Index = 0
		result = schemas.ChainRecoveryResult{Strategy: d.strategy, Reason: d.reason, SingleAction: &single}
	default:
		result = schemas.ChainRecoveryResult{Strategy: d.strategy, Reason: d.reason}
	}
	return rc.decided(logger, result), nil
}

func (rc *Recovery) decided(logger *zap.Logger, result schemas.ChainRecoveryResult) schemas.ChainRecoveryResult {
	logger.Info("Chain recovery decided",
		zap.String("strategy", string(result.Strategy)),
		zap.String("reason", result.Reason))
	return result
}

// DetermineRecoveryStrategy exposes the per-error-code decision table. The
// failed action's canFail flag only matters for ELEMENT_DISABLED here;
// HandleChainPartialFailure checks it before consulting the table.
func (rc *Recovery) DetermineRecoveryStrategy(failed schemas.ChainedAction, chainErr *schemas.ChainActionError, r dom.Resolver) schemas.RecoveryStrategy {
	if chainErr == nil {
		return schemas.StrategyRegenerateChain
	}
	return rc.decide(failed, chainErr, r).strategy
}

type decision struct {
	strategy  schemas.RecoveryStrategy
	reason    string
	corrected schemas.ChainedAction
}

func (rc *Recovery) decide(failed schemas.ChainedAction, chainErr *schemas.ChainActionError, r dom.Resolver) decision {
	switch chainErr.Code {
	case schemas.ChainErrElementNotFound:
		if corrected, ok := rc.alternative(failed, chainErr, r); ok {
			return decision{
				strategy:  schemas.StrategyRetryFailed,
				reason:    fmt.Sprintf("element not found, retrying on nearby element %d", *corrected.TargetElementID),
				corrected: corrected,
			}
		}
		return decision{strategy: schemas.StrategyRegenerateChain, reason: "element not found and no nearby alternative"}
	case schemas.ChainErrTimeout:
		return decision{strategy: schemas.StrategyRetryFailed, reason: "timeout is assumed transient", corrected: failed}
	case schemas.ChainErrElementNotVisible, schemas.ChainErrElementObscured:
		return decision{strategy: schemas.StrategyRegenerateChain, reason: fmt.Sprintf("%s: the page likely shifted", chainErr.Code)}
	case schemas.ChainErrElementDisabled:
		if failed.CanFail {
			return decision{strategy: schemas.StrategySkipFailed, reason: "disabled element on an optional action"}
		}
		return decision{strategy: schemas.StrategyRegenerateChain, reason: "required element is disabled"}
	case schemas.ChainErrInvalidState:
		return decision{strategy: schemas.StrategySingleAction, reason: "invalid state, falling back to one action at a time"}
	case schemas.ChainErrNetworkError:
		return decision{strategy: schemas.StrategyAbort, reason: "network error"}
	default:
		return decision{strategy: schemas.StrategyRegenerateChain, reason: fmt.Sprintf("unrecognized error code %q", chainErr.Code)}
	}
}

// alternative searches the DOM for an element of the same tag pattern close
// to the original id and rewrites the failed action to target it.
func (rc *Recovery) alternative(failed schemas.ChainedAction, chainErr *schemas.ChainActionError, r dom.Resolver) (schemas.ChainedAction, bool) {
	if r == nil {
		return schemas.ChainedAction{}, false
	}
	act, err := actions.Parse(failed.Action)
	if err != nil {
		return schemas.ChainedAction{}, false
	}
	pattern, ok := dom.TagPatternFor(act.Name)
	if !ok {
		return schemas.ChainedAction{}, false
	}

	originalID, ok := rc.grammar.ElementID(act)
	switch {
	case ok:
	case failed.TargetElementID != nil:
		originalID = *failed.TargetElementID
	case chainErr.ElementID != nil:
		originalID = *chainErr.ElementID
	default:
		return schemas.ChainedAction{}, false
	}

	el, found := dom.Nearest(r, pattern, originalID, rc.opts.AlternativeRadius)
	if !found {
		return schemas.ChainedAction{}, false
	}
	corrected := NewChainedAction(rc.grammar, act.WithElementID(el.ID), failed.Index, r)
	corrected.CanFail = failed.CanFail
	if failed.ExpectedOutcome != "" && corrected.ExpectedOutcome == "" {
		corrected.ExpectedOutcome = failed.ExpectedOutcome
	}
	return corrected, true
}

// skip drops the failed action and keeps the remainder, degrading to a
// single action or an abort when too little is left.
func (rc *Recovery) skip(original *schemas.ActionChain, failedIndex int, reason string) schemas.ChainRecoveryResult {
	remaining := original.Actions[failedIndex+1:]
	switch {
	case len(remaining) == 0:
		return schemas.ChainRecoveryResult{
			Strategy: schemas.StrategyAbort,
			Reason:   reason + "; no actions remain after the failed one",
		}
	case len(remaining) < rc.opts.MinRemainingForChain:
		single := remaining[0]
		single.Index = 0
		return schemas.ChainRecoveryResult{
			Strategy:     schemas.StrategySingleAction,
			Reason:       reason + "; one action remains",
			SingleAction: &single,
		}
	}
	return schemas.ChainRecoveryResult{
		Strategy: schemas.StrategySkipFailed,
		Reason:   reason,
		NewChain: rc.rebuild(original, remaining),
	}
}

// rebuild makes a reindexed chain from a slice of an existing one.
func (rc *Recovery) rebuild(original *schemas.ActionChain, remaining []schemas.ChainedAction) *schemas.ActionChain {
	out := make([]schemas.ChainedAction, len(remaining))
	duration := 0
	for i, ca := range remaining {
		ca.Index = i
		out[i] = ca
		if act, err := actions.Parse(ca.Action); err == nil {
			duration += actionCost(act)
		} else {
			duration += clickOpCost
		}
	}
	meta := original.Metadata
	meta.TotalActions = len(out)
	meta.EstimatedDuration = duration
	return &schemas.ActionChain{ID: rc.newID(), Actions: out, Metadata: meta}
}
