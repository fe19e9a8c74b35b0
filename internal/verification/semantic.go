package verification

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
)

// Semantic is Tier 3. It always returns a verdict; when the model fails or
// its output cannot be trusted the verdict fails closed.
type Semantic struct {
	client schemas.LLMClient
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
}

// NewSemantic creates the Tier 3 verifier.
func NewSemantic(client schemas.LLMClient, opts Options, logger *zap.Logger, options ...Option) *Semantic {
	s := applyOptions(options)
	return &Semantic{
		client: client,
		opts:   opts,
		logger: namedLogger(logger, "verification.semantic"),
		tracer: s.tracer,
	}
}

// VerifyWithDOM judges the step from URL facts and a window of the
// after-DOM around the target element.
func (s *Semantic) VerifyWithDOM(ctx context.Context, req schemas.VerificationRequest) schemas.VerificationResult {
	req = withActionType(req)
	f := deriveFacts(req)
	return s.verify(ctx, "verification.VerifyWithDOM", semanticDOMSystemPrompt, semanticDOMPrompt(req, f, s.opts.DOMExcerptChars), req)
}

// VerifyWithObservations judges the step from discrete facts when no DOM is
// available.
func (s *Semantic) VerifyWithObservations(ctx context.Context, req schemas.VerificationRequest) schemas.VerificationResult {
	req = withActionType(req)
	f := deriveFacts(req)
	return s.verify(ctx, "verification.VerifyWithObservations", semanticObservationSystemPrompt, semanticObservationPrompt(req, f), req)
}

func (s *Semantic) verify(ctx context.Context, spanName, system, user string, req schemas.VerificationRequest) schemas.VerificationResult {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()

	logger := s.logger.With(zap.String("mode", spanName))
	if err := validate(req); err != nil {
		recordError(span, err)
		logger.Error("Semantic verification rejected the request", zap.Error(err))
		return failClosed(err, 0, 0)
	}
	if s.client == nil {
		err := fmt.Errorf("no model configured")
		recordError(span, err)
		return failClosed(err, 0, 0)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Tier3Timeout)
	defer cancel()

	resp, err := s.client.Generate(callCtx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0,
			ForceJSONFormat: true,
			MaxOutputTokens: s.opts.Tier3MaxOutputTokens,
			ResponseSchema:  schemas.VerdictResponseSchema(),
		},
	})
	if err != nil {
		recordError(span, err)
		logger.Error("Semantic verification model call failed", zap.Error(err))
		return failClosed(fmt.Errorf("model call failed: %w", err), 0, 0)
	}
	p, c := resp.PromptTokens, resp.CompletionTokens
	span.SetAttributes(attribute.Int("llm.prompt_tokens", p), attribute.Int("llm.completion_tokens", c))

	v, err := parseVerdict(resp.Content)
	if err != nil {
		recordError(span, err)
		logger.Error("Semantic verification returned malformed output", zap.Error(err))
		return failClosed(fmt.Errorf("malformed model output: %w", err), p, c)
	}

	span.SetAttributes(
		attribute.Bool("verification.action_succeeded", *v.ActionSucceeded),
		attribute.Bool("verification.task_completed", *v.TaskCompleted),
	)
	return schemas.VerificationResult{
		Tier:             schemas.TierFull,
		ActionSucceeded:  *v.ActionSucceeded,
		TaskCompleted:    *v.TaskCompleted,
		SubTaskCompleted: v.SubTaskCompleted,
		Confidence:       v.Confidence,
		Reason:           v.Reason,
		PromptTokens:     p,
		CompletionTokens: c,
	}
}

func failClosed(err error, promptTokens, completionTokens int) schemas.VerificationResult {
	return schemas.VerificationResult{
		Tier:             schemas.TierFull,
		ActionSucceeded:  false,
		TaskCompleted:    false,
		Confidence:       0,
		Reason:           "verification failed: " + err.Error(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}
}
