package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/chain"
	"github.com/xkilldash9x/tandem/internal/config"
	"github.com/xkilldash9x/tandem/internal/mocks"
	"github.com/xkilldash9x/tandem/internal/verification"
)

func TestNewCoordinator_Validation(t *testing.T) {
	_, err := NewCoordinator(nil, nil, nil, zap.NewNop())
	assert.ErrorContains(t, err, "config cannot be nil")

	_, err = NewCoordinator(config.NewDefaultConfig(), nil, nil, nil)
	assert.ErrorContains(t, err, "logger cannot be nil")

	bad := config.NewDefaultConfig()
	bad.Chain.MinChainSize = 1
	_, err = NewCoordinator(bad, nil, nil, zap.NewNop())
	assert.ErrorContains(t, err, "invalid chain configuration")
}

func TestPlanStep(t *testing.T) {
	tests := []struct {
		name       string
		in         schemas.PlanInput
		wantSource schemas.PlanSource
		wantLen    int
		wantSingle string
		wantHint   []int
	}{
		{
			name:       "form data",
			in:         schemas.PlanInput{DOM: signupDOM, FormData: map[string]string{"first": "Jane", "last": "Doe"}},
			wantSource: schemas.PlanSourceFormData,
			wantLen:    2,
		},
		{
			name:       "action list",
			in:         schemas.PlanInput{DOM: signupDOM, ProposedActions: []string{`setValue(3,"Jane")`, `setValue(4,"Doe")`}},
			wantSource: schemas.PlanSourceActionList,
			wantLen:    2,
		},
		{
			name: "unresolvable form data falls through to the action list",
			in: schemas.PlanInput{
				DOM:             signupDOM,
				FormData:        map[string]string{"pet": "cat"},
				ProposedActions: []string{`setValue(3,"Jane")`, `setValue(4,"Doe")`},
			},
			wantSource: schemas.PlanSourceActionList,
			wantLen:    2,
		},
		{
			name:       "planner text",
			in:         schemas.PlanInput{DOM: signupDOM, PlannerText: "Filling both names.\nCHAIN: setValue(3,\"Jane\") | setValue(4,\"Doe\")"},
			wantSource: schemas.PlanSourceText,
			wantLen:    2,
		},
		{
			name: "rejected list falls back to one action with a group hint",
			in: schemas.PlanInput{
				PlanStep:        "Fill in the signup form",
				DOM:             signupDOM,
				ProposedActions: []string{`setValue(3,"Jane")`, `goBack()`},
			},
			wantSource: schemas.PlanSourceSingle,
			wantSingle: `setValue(3,"Jane")`,
			wantHint:   []int{3, 4},
		},
		{
			name:       "single navigation from text",
			in:         schemas.PlanInput{PlannerText: "- `navigate(\"https://example.com\")`"},
			wantSource: schemas.PlanSourceSingle,
			wantSingle: `navigate("https://example.com")`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCoordinator(t, nil)
			plan, err := c.PlanStep(context.Background(), tt.in)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSource, plan.Source)
			assert.Equal(t, tt.wantLen, plan.Chain.Len())
			if tt.wantSingle != "" {
				require.NotNil(t, plan.SingleAction)
				assert.Nil(t, plan.Chain)
				assert.Equal(t, tt.wantSingle, plan.SingleAction.Action)
				assert.Zero(t, plan.SingleAction.Index)
			} else {
				assert.Nil(t, plan.SingleAction)
				assert.True(t, plan.Chain.Metadata.SafeToChain)
			}
			if tt.wantHint != nil {
				require.NotNil(t, plan.GroupHint)
				assert.Equal(t, tt.wantHint, plan.GroupHint.ElementIDs)
				assert.Equal(t, "form#signup", plan.GroupHint.ContainerSelector)
			} else {
				assert.Nil(t, plan.GroupHint)
			}
		})
	}
}

func TestPlanStep_ExplainsRejectedList(t *testing.T) {
	c, _ := newCoordinator(t, nil)

	plan, err := c.PlanStep(context.Background(), schemas.PlanInput{
		ProposedActions: []string{`setValue(3,"Jane")`, `click(9)`, `setValue(4,"Doe")`},
	})
	require.NoError(t, err)
	require.NotNil(t, plan.Analysis)
	assert.False(t, plan.Analysis.CanChain)
	assert.True(t, plan.Analysis.HasBlocker(schemas.BlockerDifferentInteractionType))
	assert.Equal(t, `setValue(3,"Jane")`, plan.SingleAction.Action)
}

func TestPlanStep_NothingToPlan(t *testing.T) {
	c, reg := newCoordinator(t, nil)

	_, err := c.PlanStep(context.Background(), schemas.PlanInput{PlannerText: "I am not sure what to do next."})
	assert.ErrorIs(t, err, ErrNothingToPlan)

	_, err = c.PlanStep(context.Background(), schemas.PlanInput{DOM: signupDOM, FormData: map[string]string{"first": "Jane", "last": "Doe"}})
	require.NoError(t, err)
	assertMetric(t, reg, "tandem_chain_plans_total", "Planning steps by generation path.", "counter",
		`tandem_chain_plans_total{path="form_data"} 1`)
}

func threeStepChain() *schemas.ActionChain {
	return &schemas.ActionChain{
		ID: "original",
		Actions: []schemas.ChainedAction{
			{Action: `setValue(3,"Jane")`, Index: 0, TargetElementID: intPtr(3), ActionType: schemas.ChainActionSetValue},
			{Action: `setValue(4,"Doe")`, Index: 1, TargetElementID: intPtr(4), ActionType: schemas.ChainActionSetValue},
			{Action: `click(9)`, Index: 2, TargetElementID: intPtr(9), ActionType: schemas.ChainActionClick},
		},
		Metadata: schemas.ChainMetadata{TotalActions: 3, SafeToChain: true, ChainReason: schemas.ReasonFormFill},
	}
}

func timeoutAtSecond(attempts, total int) schemas.RecoveryRequest {
	return schemas.RecoveryRequest{
		OriginalChain:     threeStepChain(),
		LastExecutedIndex: 0,
		PartialState: schemas.ChainPartialState{
			ExecutedActions:     []string{`setValue(3,"Jane")`},
			TotalActionsInChain: total,
		},
		Error:         &schemas.ChainActionError{Action: `setValue(4,"Doe")`, Code: schemas.ChainErrTimeout, FailedIndex: 1},
		RetryAttempts: attempts,
	}
}

func TestRecover_RetryBudget(t *testing.T) {
	c, reg := newCoordinator(t, nil)

	first, err := c.Recover(context.Background(), timeoutAtSecond(0, 3))
	require.NoError(t, err)
	assert.Equal(t, schemas.StrategyRetryFailed, first.Strategy)
	require.NotNil(t, first.CorrectedAction)
	assert.Equal(t, `setValue(4,"Doe")`, first.CorrectedAction.Action)

	second, err := c.Recover(context.Background(), timeoutAtSecond(1, 3))
	require.NoError(t, err)
	assert.Equal(t, schemas.StrategyRetryFailed, second.Strategy)

	exhausted, err := c.Recover(context.Background(), timeoutAtSecond(2, 3))
	require.NoError(t, err)
	assert.Equal(t, schemas.StrategyRegenerateChain, exhausted.Strategy)
	assert.Nil(t, exhausted.CorrectedAction, "a regeneration carries no payload")
	assert.Contains(t, exhausted.Reason, "retry budget of 2 exhausted")

	assertMetric(t, reg, "tandem_chain_recovery_total", "Recovery decisions by strategy and reported error code.", "counter",
		`tandem_chain_recovery_total{code="TIMEOUT",strategy="REGENERATE_CHAIN"} 1`,
		`tandem_chain_recovery_total{code="TIMEOUT",strategy="RETRY_FAILED"} 2`)
}

func TestRecover_NoRetriesAllowed(t *testing.T) {
	c, _ := newCoordinator(t, nil, func(cfg *config.Config) { cfg.Chain.MaxRetryAttempts = 0 })

	got, err := c.Recover(context.Background(), timeoutAtSecond(0, 3))
	require.NoError(t, err)
	assert.Equal(t, schemas.StrategyRegenerateChain, got.Strategy)
}

func TestRecover_LengthMismatchIsCounted(t *testing.T) {
	c, reg := newCoordinator(t, nil)

	got, err := c.Recover(context.Background(), timeoutAtSecond(0, 5))
	require.NoError(t, err)
	assert.Equal(t, schemas.StrategyRetryFailed, got.Strategy, "a length mismatch only warns")

	assertMetric(t, reg, "tandem_chain_length_mismatch_total",
		"Partial failure reports whose chain length disagreed with the original chain.", "counter",
		"tandem_chain_length_mismatch_total 1")
}

func TestRecover_ValidationErrors(t *testing.T) {
	c, _ := newCoordinator(t, nil)

	req := timeoutAtSecond(0, 3)
	req.PartialState.ExecutedActions = []string{`setValue(3,"John")`}
	_, err := c.Recover(context.Background(), req)
	assert.ErrorIs(t, err, chain.ErrPartialStateMismatch)

	_, err = c.Recover(context.Background(), schemas.RecoveryRequest{OriginalChain: &schemas.ActionChain{}})
	assert.ErrorIs(t, err, chain.ErrEmptyChain)
}

func TestVerifyStep_DeterministicVerdict(t *testing.T) {
	client := new(mocks.MockLLMClient)
	c, reg := newCoordinator(t, client)

	got, err := c.VerifyStep(context.Background(), schemas.VerificationOptions{
		Action: `navigate("https://example.com/pricing")`, ActionType: schemas.VerifyActionNavigation,
		Complexity: schemas.ComplexitySimple, IsLastStep: true,
		URLBefore: "https://example.com/", URLAfter: "https://example.com/pricing",
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.TierDeterministic, got.Tier)
	assert.True(t, got.TaskCompleted)
	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)

	assertMetric(t, reg, "tandem_verification_verdicts_total", "Verification verdicts by tier and outcome.", "counter",
		`tandem_verification_verdicts_total{action_succeeded="true",task_completed="true",tier="deterministic"} 1`)
}

func TestVerifyStep_EscalatesThroughAllTiers(t *testing.T) {
	client := new(mocks.MockLLMClient)
	c, reg := newCoordinator(t, client)

	client.On("Generate", mock.Anything, mocks.ForTier(schemas.TierFast)).
		Return(mocks.Respond(`{"action_succeeded": true, "task_completed": true, "confidence": 0.4, "reason": "unsure"}`, 10, 2), nil).Once()
	client.On("Generate", mock.Anything, mocks.ForTier(schemas.TierPowerful)).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(schemas.GenerationRequest)
			assert.Contains(t, req.UserPrompt, "Page after the action", "a DOM selects DOM mode")
		}).
		Return(mocks.Respond(`{"action_succeeded": true, "task_completed": true, "confidence": 0.9, "reason": "account page shown"}`, 100, 20), nil).Once()

	got, err := c.VerifyStep(context.Background(), schemas.VerificationOptions{
		Action: "click(9)", ActionType: schemas.VerifyActionClick, Complexity: schemas.ComplexityMedium,
		UserGoal: "create an account", IsLastStep: true,
		DOMAfter: `<h1>Welcome, Jane</h1>`,
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.TierFull, got.Tier)
	assert.True(t, got.TaskCompleted)
	assert.Equal(t, 110, got.PromptTokens, "tokens cover every tier that ran")
	assert.Equal(t, 22, got.CompletionTokens)
	client.AssertExpectations(t)

	assertMetric(t, reg, "tandem_verification_escalations_total", "Escalations out of a tier.", "counter",
		`tandem_verification_escalations_total{tier="lightweight"} 1`)
	assertMetric(t, reg, "tandem_llm_tokens_total", "Tokens consumed by verification model calls.", "counter",
		`tandem_llm_tokens_total{tier="full",type="completion"} 20`,
		`tandem_llm_tokens_total{tier="full",type="prompt"} 100`,
		`tandem_llm_tokens_total{tier="lightweight",type="completion"} 2`,
		`tandem_llm_tokens_total{tier="lightweight",type="prompt"} 10`)
}

func TestVerifyStep_ObservationModeForIntermediateStep(t *testing.T) {
	client := new(mocks.MockLLMClient)
	c, _ := newCoordinator(t, client)

	client.On("Generate", mock.Anything, mocks.ForTier(schemas.TierPowerful)).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(schemas.GenerationRequest)
			assert.Contains(t, req.UserPrompt, "- a spinner appeared")
		}).
		Return(mocks.Respond(`{"action_succeeded": true, "task_completed": false, "confidence": 0.7, "reason": "loading"}`, 1, 1), nil).Once()

	got, err := c.VerifyStep(context.Background(), schemas.VerificationOptions{
		Action: "click(4)", ActionType: schemas.VerifyActionClick, Complexity: schemas.ComplexityComplex,
		Observations: []string{"a spinner appeared"},
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.TierFull, got.Tier)
	assert.True(t, got.ActionSucceeded)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "Generate", mock.Anything, mocks.ForTier(schemas.TierFast))
}

func TestVerifyStep_WithoutModel(t *testing.T) {
	c, _ := newCoordinator(t, nil)

	got, err := c.VerifyStep(context.Background(), schemas.VerificationOptions{
		Action: "click(4)", ActionType: schemas.VerifyActionClick, Complexity: schemas.ComplexityMedium, IsLastStep: true,
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.TierFull, got.Tier)
	assert.False(t, got.ActionSucceeded, "no model means the verdict fails closed")
	assert.Contains(t, got.Reason, "verification failed")

	_, err = c.VerifyStep(context.Background(), schemas.VerificationOptions{})
	assert.ErrorIs(t, err, verification.ErrInvalidRequest)
}

func TestAnalyzeChain(t *testing.T) {
	c, _ := newCoordinator(t, nil)
	got := c.AnalyzeChain([]string{`setValue(3,"Jane")`, `setValue(4,"Doe")`}, signupDOM)
	assert.True(t, got.CanChain, got.Reason)
}
