package verification

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/llmutil"
)

// Lightweight is Tier 2: one fast-model call for the last step of a plan.
type Lightweight struct {
	client schemas.LLMClient
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
}

// NewLightweight creates the Tier 2 verifier.
func NewLightweight(client schemas.LLMClient, opts Options, logger *zap.Logger, options ...Option) *Lightweight {
	s := applyOptions(options)
	return &Lightweight{
		client: client,
		opts:   opts,
		logger: namedLogger(logger, "verification.lightweight"),
		tracer: s.tracer,
	}
}

// TryLightweightVerification asks the fast model for a verdict on the last
// step. Anything short of a confident answer inside the safety gate is an
// escalation, never a guess.
func (l *Lightweight) TryLightweightVerification(ctx context.Context, req schemas.VerificationRequest) Outcome {
	req, err := prepare(req)
	if err != nil {
		return Failed(schemas.TierLightweight, err)
	}
	if !req.IsLastStep {
		return Escalate(schemas.TierLightweight, "lightweight verification only runs on the last step")
	}
	if l.client == nil {
		return Escalate(schemas.TierLightweight, "no model configured")
	}

	ctx, span := l.tracer.Start(ctx, "verification.TryLightweightVerification")
	defer span.End()

	f := deriveFacts(req)
	callCtx, cancel := context.WithTimeout(ctx, l.opts.Tier2Timeout)
	defer cancel()

	resp, err := l.client.Generate(callCtx, schemas.GenerationRequest{
		SystemPrompt: lightweightSystemPrompt,
		UserPrompt:   lightweightPrompt(req, f),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0,
			ForceJSONFormat: true,
			MaxOutputTokens: l.opts.Tier2MaxOutputTokens,
			ResponseSchema:  schemas.VerdictResponseSchema(),
		},
	})
	if err != nil {
		recordError(span, err)
		l.logger.Warn("Lightweight verification model call failed, escalating", zap.Error(err))
		return Escalate(schemas.TierLightweight, "model call failed: %v", err)
	}
	p, c := resp.PromptTokens, resp.CompletionTokens
	span.SetAttributes(attribute.Int("llm.prompt_tokens", p), attribute.Int("llm.completion_tokens", c))

	v, err := parseVerdict(resp.Content)
	if err != nil {
		recordError(span, err)
		l.logger.Warn("Lightweight verification returned malformed output, escalating", zap.Error(err))
		return Escalate(schemas.TierLightweight, "malformed model output: %v", err).withTokens(p, c)
	}
	if v.Confidence < l.opts.Tier2MinConfidence {
		return Escalate(schemas.TierLightweight, "confidence %.2f below %.2f", v.Confidence, l.opts.Tier2MinConfidence).withTokens(p, c)
	}
	if *v.TaskCompleted && !completionGate(req) {
		l.logger.Info("Lightweight completion claim outside the safety gate, escalating",
			zap.String("complexity", string(req.Complexity)),
			zap.String("action_type", string(req.ActionType)))
		return Escalate(schemas.TierLightweight, "completion claimed for a %s task without an expected navigation", orNone(string(req.Complexity))).withTokens(p, c)
	}

	span.SetAttributes(
		attribute.Bool("verification.action_succeeded", *v.ActionSucceeded),
		attribute.Bool("verification.task_completed", *v.TaskCompleted),
	)
	return Verdict(schemas.VerificationResult{
		Tier:             schemas.TierLightweight,
		ActionSucceeded:  *v.ActionSucceeded,
		TaskCompleted:    *v.TaskCompleted,
		SubTaskCompleted: v.SubTaskCompleted,
		Confidence:       v.Confidence,
		Reason:           v.Reason,
		PromptTokens:     p,
		CompletionTokens: c,
	})
}

// completionGate is the only situation in which the fast model may declare
// the task complete: a SIMPLE task, or a navigation that was expected to
// change the URL.
func completionGate(req schemas.VerificationRequest) bool {
	if req.Complexity == schemas.ComplexitySimple {
		return true
	}
	return req.ActionType == schemas.VerifyActionNavigation && req.ExpectURLChange
}

// parseVerdict extracts a complete verdict from model output. Both booleans
// must be present and the confidence must lie in [0, 1].
func parseVerdict(content string) (schemas.ModelVerdict, error) {
	v, err := llmutil.ParseJSONResponse[schemas.ModelVerdict](content)
	if err != nil {
		return schemas.ModelVerdict{}, err
	}
	if v.ActionSucceeded == nil || v.TaskCompleted == nil {
		return schemas.ModelVerdict{}, fmt.Errorf("verdict is missing action_succeeded or task_completed")
	}
	if math.IsNaN(v.Confidence) || v.Confidence < 0 || v.Confidence > 1 {
		return schemas.ModelVerdict{}, fmt.Errorf("confidence %v is outside [0, 1]", v.Confidence)
	}
	return *v, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
