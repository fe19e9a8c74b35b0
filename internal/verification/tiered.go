package verification

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
)

// Tiered runs Tier 1 and, for the last step, Tier 2. Invoking Tier 3 on an
// escalation is the caller's decision.
type Tiered struct {
	lightweight *Lightweight
	logger      *zap.Logger
}

// NewTiered creates the Tier 1 to Tier 2 pipeline. A nil lightweight
// verifier makes every Tier 1 escalation final.
func NewTiered(lightweight *Lightweight, logger *zap.Logger) *Tiered {
	return &Tiered{lightweight: lightweight, logger: namedLogger(logger, "verification")}
}

// RunTieredVerification returns a verdict from the cheapest tier that can
// give one, or an escalation.
func (t *Tiered) RunTieredVerification(ctx context.Context, req schemas.VerificationRequest) Outcome {
	out := TryDeterministicVerification(req)
	if !out.NeedsEscalation() {
		return out
	}
	if !req.IsLastStep || t.lightweight == nil {
		t.logger.Debug("Deterministic verification escalated", zap.String("reason", out.Reason))
		return out
	}
	out = t.lightweight.TryLightweightVerification(ctx, req)
	if out.NeedsEscalation() {
		t.logger.Debug("Lightweight verification escalated", zap.String("reason", out.Reason))
	}
	return out
}
