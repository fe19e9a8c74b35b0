// Package verification decides, as cheaply as possible, whether an executed
// browser action succeeded and whether the user's goal is complete.
//
// Tier 1 is deterministic and free. Tier 2 asks a fast model, and only for
// the last step of a plan. Tier 3 asks the powerful model and always returns
// a verdict, failing closed when the model cannot be trusted. Lower tiers
// never guess: when they cannot decide they return an escalation.
package verification

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/actions"
)

// ErrInvalidRequest is wrapped by Error outcomes for requests that cannot be
// verified at all.
var ErrInvalidRequest = errors.New("invalid verification request")

// OutcomeKind discriminates Outcome.
type OutcomeKind int

const (
	// KindVerdict carries a trustworthy result.
	KindVerdict OutcomeKind = iota
	// KindNeedsEscalation means the tier could not decide.
	KindNeedsEscalation
	// KindError means the request itself is unusable.
	KindError
)

func (k OutcomeKind) String() string {
	switch k {
	case KindVerdict:
		return "verdict"
	case KindNeedsEscalation:
		return "needs_escalation"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the three-way result of a tier.
type Outcome struct {
	Kind OutcomeKind
	// Result is set for KindVerdict only.
	Result *schemas.VerificationResult
	// Reason explains an escalation.
	Reason string
	// Tier is the tier that produced the outcome.
	Tier schemas.VerificationTier
	// Err is set for KindError only.
	Err error
	// PromptTokens and CompletionTokens count model usage spent reaching this
	// outcome, including escalations.
	PromptTokens     int
	CompletionTokens int
}

// Verdict wraps a decided result.
func Verdict(r schemas.VerificationResult) Outcome {
	return Outcome{
		Kind:             KindVerdict,
		Result:           &r,
		Tier:             r.Tier,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
	}
}

// Escalate reports that tier could not decide.
func Escalate(tier schemas.VerificationTier, format string, args ...interface{}) Outcome {
	return Outcome{Kind: KindNeedsEscalation, Tier: tier, Reason: fmt.Sprintf(format, args...)}
}

// Failed wraps err as an Error outcome.
func Failed(tier schemas.VerificationTier, err error) Outcome {
	return Outcome{Kind: KindError, Tier: tier, Err: err, Reason: err.Error()}
}

// IsVerdict reports whether o carries a result.
func (o Outcome) IsVerdict() bool { return o.Kind == KindVerdict }

// NeedsEscalation reports whether the next tier must decide.
func (o Outcome) NeedsEscalation() bool { return o.Kind == KindNeedsEscalation }

// IsError reports whether the request was unusable.
func (o Outcome) IsError() bool { return o.Kind == KindError }

func (o Outcome) withTokens(p, c int) Outcome {
	o.PromptTokens, o.CompletionTokens = p, c
	return o
}

// verbs maps action names onto verification action types. Grammar is
// immutable, so one table serves every request.
var verbs = actions.DefaultGrammar()

// prepare validates req and, when the caller sent only the action string,
// derives ActionType from the action name.
func prepare(req schemas.VerificationRequest) (schemas.VerificationRequest, error) {
	if err := validate(req); err != nil {
		return req, err
	}
	return withActionType(req), nil
}

func withActionType(req schemas.VerificationRequest) schemas.VerificationRequest {
	if req.ActionType == "" && req.Action != "" {
		req.ActionType = verbs.VerificationType(actions.Name(req.Action))
	}
	return req
}

// validate rejects requests no tier can reason about.
func validate(req schemas.VerificationRequest) error {
	if req.Action == "" && req.ActionType == "" {
		return fmt.Errorf("%w: action or actionType is required", ErrInvalidRequest)
	}
	switch req.Complexity {
	case "", schemas.ComplexitySimple, schemas.ComplexityMedium, schemas.ComplexityComplex:
	default:
		return fmt.Errorf("%w: unknown complexity %q", ErrInvalidRequest, req.Complexity)
	}
	return nil
}
