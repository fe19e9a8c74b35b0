package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/mocks"
)

func TestTryLightweightVerification_Verdict(t *testing.T) {
	t.Parallel()
	client := new(mocks.MockLLMClient)
	recorder, withTracer := newRecorder(t)
	opts := testOptions()

	client.On("Generate", mock.Anything, mocks.ForTier(schemas.TierFast)).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "the call is bounded by the tier timeout")

			req := args.Get(1).(schemas.GenerationRequest)
			assert.Zero(t, req.Options.Temperature)
			assert.True(t, req.Options.ForceJSONFormat)
			assert.Equal(t, opts.Tier2MaxOutputTokens, req.Options.MaxOutputTokens)
			assert.NotNil(t, req.Options.ResponseSchema)
			assert.Contains(t, req.UserPrompt, "create an account")
			assert.Contains(t, req.UserPrompt, "Last step of the plan: true")
		}).
		Return(mocks.Respond(verdictJSON(true, true, 0.9), 120, 18), nil).Once()

	l := NewLightweight(client, opts, zaptest.NewLogger(t), withTracer)
	out := l.TryLightweightVerification(context.Background(), lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick))

	require.True(t, out.IsVerdict(), out.Reason)
	assert.Equal(t, schemas.TierLightweight, out.Tier)
	assert.True(t, out.Result.ActionSucceeded)
	assert.True(t, out.Result.TaskCompleted)
	assert.InDelta(t, 0.9, out.Result.Confidence, 1e-9)
	assert.Equal(t, 120, out.PromptTokens)
	assert.Equal(t, 18, out.Result.CompletionTokens)
	client.AssertExpectations(t)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "verification.TryLightweightVerification", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestTryLightweightVerification_Escalations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		req         schemas.VerificationRequest
		content     string
		err         error
		wantTokens  bool
		wantErrSpan bool
	}{
		{
			name:       "completion outside the gate",
			req:        lastStep(schemas.ComplexityMedium, schemas.VerifyActionClick),
			content:    verdictJSON(true, true, 0.97),
			wantTokens: true,
		},
		{
			name:       "navigation without an expected URL change",
			req:        lastStep(schemas.ComplexityComplex, schemas.VerifyActionNavigation),
			content:    verdictJSON(true, true, 0.97),
			wantTokens: true,
		},
		{
			name:       "low confidence",
			req:        lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick),
			content:    verdictJSON(true, false, 0.5),
			wantTokens: true,
		},
		{
			name:        "missing boolean",
			req:         lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick),
			content:     `{"action_succeeded": true, "confidence": 0.9, "reason": "ok"}`,
			wantTokens:  true,
			wantErrSpan: true,
		},
		{
			name:        "confidence out of range",
			req:         lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick),
			content:     verdictJSON(true, true, 1.5),
			wantTokens:  true,
			wantErrSpan: true,
		},
		{
			name:        "prose",
			req:         lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick),
			content:     "It looks like it worked.",
			wantTokens:  true,
			wantErrSpan: true,
		},
		{
			name:        "model error",
			req:         lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick),
			err:         errors.New("503 from upstream"),
			wantErrSpan: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := new(mocks.MockLLMClient)
			recorder, withTracer := newRecorder(t)
			if tt.err != nil {
				client.On("Generate", mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			} else {
				client.On("Generate", mock.Anything, mock.Anything).Return(mocks.Respond(tt.content, 40, 7), nil).Once()
			}

			l := NewLightweight(client, testOptions(), zaptest.NewLogger(t), withTracer)
			out := l.TryLightweightVerification(context.Background(), tt.req)

			require.True(t, out.NeedsEscalation(), "got %s", out.Kind)
			assert.Nil(t, out.Result)
			assert.Equal(t, schemas.TierLightweight, out.Tier)
			assert.NotEmpty(t, out.Reason)
			if tt.wantTokens {
				assert.Equal(t, 40, out.PromptTokens)
				assert.Equal(t, 7, out.CompletionTokens)
			} else {
				assert.Zero(t, out.PromptTokens)
			}

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			if tt.wantErrSpan {
				assert.Equal(t, codes.Error, spans[0].Status().Code)
			} else {
				assert.NotEqual(t, codes.Error, spans[0].Status().Code)
			}
			client.AssertExpectations(t)
		})
	}
}

func TestTryLightweightVerification_GateAllowsExpectedNavigation(t *testing.T) {
	t.Parallel()
	client := new(mocks.MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(mocks.Respond(verdictJSON(true, true, 0.85), 1, 1), nil)

	req := lastStep(schemas.ComplexityComplex, schemas.VerifyActionNavigation)
	req.ExpectURLChange = true

	out := NewLightweight(client, testOptions(), zaptest.NewLogger(t)).TryLightweightVerification(context.Background(), req)
	require.True(t, out.IsVerdict(), out.Reason)
	assert.True(t, out.Result.TaskCompleted)
}

func TestTryLightweightVerification_GateDerivesActionType(t *testing.T) {
	t.Parallel()
	client := new(mocks.MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(mocks.Respond(verdictJSON(true, true, 0.85), 1, 1), nil)

	req := lastStep(schemas.ComplexityComplex, "")
	req.Action = `navigate("https://example.com/checkout")`
	req.ExpectURLChange = true

	out := NewLightweight(client, testOptions(), zaptest.NewLogger(t)).TryLightweightVerification(context.Background(), req)
	require.True(t, out.IsVerdict(), out.Reason)
	assert.True(t, out.Result.TaskCompleted, "navigate(...) passes the gate without an explicit actionType")
}

func TestTryLightweightVerification_ActionFailedVerdict(t *testing.T) {
	t.Parallel()
	client := new(mocks.MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(mocks.Respond(verdictJSON(false, false, 0.9), 1, 1), nil)

	out := NewLightweight(client, testOptions(), zaptest.NewLogger(t)).
		TryLightweightVerification(context.Background(), lastStep(schemas.ComplexityComplex, schemas.VerifyActionClick))
	require.True(t, out.IsVerdict(), "a confident negative verdict needs no gate")
	assert.False(t, out.Result.ActionSucceeded)
	assert.False(t, out.Result.TaskCompleted)
}

func TestTryLightweightVerification_SkipsModel(t *testing.T) {
	t.Parallel()
	client := new(mocks.MockLLMClient)
	l := NewLightweight(client, testOptions(), zaptest.NewLogger(t))

	notLast := lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick)
	notLast.IsLastStep = false
	assert.True(t, l.TryLightweightVerification(context.Background(), notLast).NeedsEscalation())

	invalid := l.TryLightweightVerification(context.Background(), schemas.VerificationRequest{IsLastStep: true})
	assert.True(t, invalid.IsError())
	assert.ErrorIs(t, invalid.Err, ErrInvalidRequest)

	unconfigured := NewLightweight(nil, testOptions(), nil)
	assert.True(t, unconfigured.TryLightweightVerification(context.Background(), lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick)).NeedsEscalation())

	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestTryLightweightVerification_Timeout(t *testing.T) {
	t.Parallel()
	client := new(mocks.MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded)

	opts := testOptions()
	opts.Tier2Timeout = 20 * time.Millisecond
	core, logs := observer.New(zap.WarnLevel)

	start := time.Now()
	out := NewLightweight(client, opts, zap.New(core)).
		TryLightweightVerification(context.Background(), lastStep(schemas.ComplexitySimple, schemas.VerifyActionClick))

	assert.True(t, out.NeedsEscalation())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, logs.FilterMessage("Lightweight verification model call failed, escalating").Len())
}

func TestCompletionGate(t *testing.T) {
	t.Parallel()
	nav := lastStep(schemas.ComplexityMedium, schemas.VerifyActionNavigation)
	assert.False(t, completionGate(nav))
	nav.ExpectURLChange = true
	assert.True(t, completionGate(nav))
	assert.True(t, completionGate(lastStep(schemas.ComplexitySimple, schemas.VerifyActionInput)))
	assert.False(t, completionGate(lastStep(schemas.ComplexityComplex, schemas.VerifyActionClick)))
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	v, err := parseVerdict("```json\n" + verdictJSON(true, false, 0.75) + "\n```")
	require.NoError(t, err)
	assert.True(t, *v.ActionSucceeded)
	assert.False(t, *v.TaskCompleted)
	assert.Equal(t, "model says so", v.Reason)

	for _, bad := range []string{
		"",
		`{"task_completed": false, "confidence": 0.5}`,
		`{"action_succeeded": true, "task_completed": false, "confidence": -0.1}`,
		`[true, false]`,
	} {
		_, err := parseVerdict(bad)
		assert.Error(t, err, bad)
	}
}
