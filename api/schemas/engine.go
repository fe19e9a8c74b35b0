package schemas

import "time"

// -- Coordinator Schemas --

// PlanSource records which planner output a StepPlan was built from.
type PlanSource string

const (
	PlanSourceFormData   PlanSource = "form_data"
	PlanSourceActionList PlanSource = "action_list"
	PlanSourceText       PlanSource = "planner_text"
	PlanSourceSingle     PlanSource = "single_action"
)

// PlanInput is everything the planner produced for one step.
type PlanInput struct {
	Query    string `json:"query,omitempty"`
	PlanStep string `json:"planStep,omitempty"`
	DOM      string `json:"dom,omitempty"`
	// FormData maps field names to values when the planner returned structured data.
	FormData map[string]string `json:"formData,omitempty"`
	// ProposedActions is the planner's action list, in order.
	ProposedActions []string `json:"proposedActions,omitempty"`
	// PlannerText is the planner's raw reply.
	PlannerText string `json:"plannerText,omitempty"`
}

// GroupHint suggests a batch of fields on the page the planner could fill in
// one step.
type GroupHint struct {
	FormID            string `json:"formId,omitempty"`
	ContainerSelector string `json:"containerSelector,omitempty"`
	ElementIDs        []int  `json:"elementIds"`
}

// StepPlan is what gets sent to the client for one step: a chain, or a
// single action when chaining is not safe.
type StepPlan struct {
	Source       PlanSource     `json:"source"`
	Chain        *ActionChain   `json:"chain,omitempty"`
	SingleAction *ChainedAction `json:"singleAction,omitempty"`
	// Analysis is the analyzer verdict on the proposed list, when one was judged.
	Analysis  *ChainSafetyAnalysis `json:"analysis,omitempty"`
	GroupHint *GroupHint           `json:"groupHint,omitempty"`
}

// RecoveryRequest is the client's report of a chain that stopped early.
type RecoveryRequest struct {
	OriginalChain     *ActionChain      `json:"originalChain"`
	LastExecutedIndex int               `json:"lastExecutedIndex"`
	PartialState      ChainPartialState `json:"partialState"`
	Error             *ChainActionError `json:"error,omitempty"`
	DOM               string            `json:"dom,omitempty"`
	// RetryAttempts is how many times the failed action has already been retried.
	RetryAttempts int `json:"retryAttempts,omitempty"`
}

// VerificationOptions is the request body of a step verification.
type VerificationOptions = VerificationRequest

// -- Replay Schemas --

// ReplayKind selects which coordinator operation a replay case exercises.
type ReplayKind string

const (
	ReplayPlan    ReplayKind = "plan"
	ReplayRecover ReplayKind = "recover"
	ReplayVerify  ReplayKind = "verify"
)

// ReplayCase is one recorded coordinator call.
type ReplayCase struct {
	ID       string               `json:"id"`
	Kind     ReplayKind           `json:"kind"`
	Plan     *PlanInput           `json:"plan,omitempty"`
	Recovery *RecoveryRequest     `json:"recovery,omitempty"`
	Verify   *VerificationOptions `json:"verify,omitempty"`
}

// ReplayResult is the coordinator's answer to a ReplayCase.
type ReplayResult struct {
	ID           string               `json:"id"`
	Kind         ReplayKind           `json:"kind"`
	Plan         *StepPlan            `json:"plan,omitempty"`
	Recovery     *ChainRecoveryResult `json:"recovery,omitempty"`
	Verification *VerificationResult  `json:"verification,omitempty"`
	Error        string               `json:"error,omitempty"`
	Duration     time.Duration        `json:"durationNs"`
	Timestamp    time.Time            `json:"timestamp"`
}
