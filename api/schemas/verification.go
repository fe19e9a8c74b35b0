package schemas

// -- Verification Schemas --

// VerificationTier identifies which stage of the pipeline produced a verdict.
type VerificationTier string

const (
	TierDeterministic VerificationTier = "deterministic"
	TierLightweight   VerificationTier = "lightweight"
	TierFull          VerificationTier = "full"
)

// TaskComplexity is the planner's classification of the user's goal.
type TaskComplexity string

const (
	ComplexitySimple  TaskComplexity = "SIMPLE"
	ComplexityMedium  TaskComplexity = "MEDIUM"
	ComplexityComplex TaskComplexity = "COMPLEX"
)

// VerificationActionType is the coarse kind of the action being verified.
type VerificationActionType string

const (
	VerifyActionNavigation VerificationActionType = "navigation"
	VerifyActionClick      VerificationActionType = "click"
	VerifyActionInput      VerificationActionType = "input"
	VerifyActionSelection  VerificationActionType = "selection"
	VerifyActionScroll     VerificationActionType = "scroll"
	VerifyActionWait       VerificationActionType = "wait"
	VerifyActionOther      VerificationActionType = "other"
)

// NextGoalCheck is the look-ahead requirement for the next planning step,
// evaluated against the current DOM.
type NextGoalCheck struct {
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	// ElementID, when set, is looked up in the after-DOM to decide Present.
	ElementID *int `json:"elementId,omitempty"`
	// Text, when set, is searched for in the after-DOM to decide Present.
	Text string `json:"text,omitempty"`
	// Present may be supplied by the caller directly; it overrides the lookup.
	Present *bool `json:"present,omitempty"`
}

// VerificationRequest carries the before/after facts of one executed action.
// Pointer booleans are caller overrides; when nil the value is derived from
// the URL and DOM fields.
type VerificationRequest struct {
	Action          string                 `json:"action"`
	ActionType      VerificationActionType `json:"actionType"`
	UserGoal        string                 `json:"userGoal,omitempty"`
	ExpectedOutcome string                 `json:"expectedOutcome,omitempty"`
	Complexity      TaskComplexity         `json:"complexity"`
	IsLastStep      bool                   `json:"isLastStep"`
	ExpectURLChange bool                   `json:"expectUrlChange,omitempty"`

	URLBefore string `json:"urlBefore,omitempty"`
	URLAfter  string `json:"urlAfter,omitempty"`
	DOMBefore string `json:"domBefore,omitempty"`
	DOMAfter  string `json:"domAfter,omitempty"`

	URLChanged      *bool `json:"urlChanged,omitempty"`
	ContentChanged  *bool `json:"contentChanged,omitempty"`
	CrossDomain     *bool `json:"crossDomain,omitempty"`
	NetworkActivity bool  `json:"networkActivity,omitempty"`

	TargetElementID *int           `json:"targetElementId,omitempty"`
	NextGoal        *NextGoalCheck `json:"nextGoal,omitempty"`
	// Observations are extra discrete facts for observation-only verification.
	Observations []string `json:"observations,omitempty"`
}

// VerificationResult is the verdict of any tier. ActionSucceeded and
// TaskCompleted are independent: a form becoming visible is a successful
// action but not a completed task.
type VerificationResult struct {
	Tier              VerificationTier `json:"tier"`
	ActionSucceeded   bool             `json:"action_succeeded"`
	TaskCompleted     bool             `json:"task_completed"`
	SubTaskCompleted  *bool            `json:"sub_task_completed,omitempty"`
	Confidence        float64          `json:"confidence"`
	Reason            string           `json:"reason"`
	RouteToCorrection bool             `json:"routeToCorrection,omitempty"`
	PromptTokens      int              `json:"promptTokens,omitempty"`
	CompletionTokens  int              `json:"completionTokens,omitempty"`
}

// ModelVerdict is the JSON document the verification prompts ask the model to
// return.
type ModelVerdict struct {
	ActionSucceeded  *bool   `json:"action_succeeded"`
	TaskCompleted    *bool   `json:"task_completed"`
	SubTaskCompleted *bool   `json:"sub_task_completed,omitempty"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
}

// VerdictResponseSchema is the response schema handed to providers that
// support constrained output.
func VerdictResponseSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action_succeeded":   map[string]interface{}{"type": "boolean"},
			"task_completed":     map[string]interface{}{"type": "boolean"},
			"sub_task_completed": map[string]interface{}{"type": "boolean"},
			"confidence":         map[string]interface{}{"type": "number"},
			"reason":             map[string]interface{}{"type": "string"},
		},
		"required": []string{"action_succeeded", "task_completed", "confidence", "reason"},
	}
}
