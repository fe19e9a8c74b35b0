package schemas

// -- Action Chain Wire Contract --
//
// These types travel between the orchestration core and the remote action
// executor (the browser client). Field names are part of the client contract.

// ChainableActionType is the closed set of action names that may appear inside
// an ActionChain.
type ChainableActionType string

const (
	ChainActionClick    ChainableActionType = "click"
	ChainActionSetValue ChainableActionType = "setValue"
	ChainActionCheck    ChainableActionType = "check"
	ChainActionUncheck  ChainableActionType = "uncheck"
	ChainActionSelect   ChainableActionType = "select"
	ChainActionFocus    ChainableActionType = "focus"
	ChainActionBlur     ChainableActionType = "blur"
	ChainActionHover    ChainableActionType = "hover"
	ChainActionScroll   ChainableActionType = "scroll"
	ChainActionWait     ChainableActionType = "wait"
)

// ChainReason classifies why a set of actions was bundled.
type ChainReason string

const (
	ReasonFormFill        ChainReason = "FORM_FILL"
	ReasonRelatedInputs   ChainReason = "RELATED_INPUTS"
	ReasonBulkSelection   ChainReason = "BULK_SELECTION"
	ReasonSequentialSteps ChainReason = "SEQUENTIAL_STEPS"
	ReasonOptimizedPath   ChainReason = "OPTIMIZED_PATH"
)

// ChainedAction is one step of an ActionChain.
type ChainedAction struct {
	Action          string              `json:"action"`      // Canonical string form, e.g. setValue(42,"Jane").
	Description     string              `json:"description"` // Human readable.
	Index           int                 `json:"index"`       // Dense, zero based position within the chain.
	CanFail         bool                `json:"canFail"`     // A failure here does not abort the chain.
	TargetElementID *int                `json:"targetElementId,omitempty"`
	ActionType      ChainableActionType `json:"actionType"`
	ExpectedOutcome string              `json:"expectedOutcome,omitempty"`
}

// ChainMetadata summarizes a chain for the client.
type ChainMetadata struct {
	TotalActions      int         `json:"totalActions"`
	EstimatedDuration int         `json:"estimatedDuration"` // Milliseconds. Advisory only.
	SafeToChain       bool        `json:"safeToChain"`
	ChainReason       ChainReason `json:"chainReason"`
	ContainerSelector string      `json:"containerSelector,omitempty"`
}

// ActionChain is an ordered batch of actions executed by the client as a unit.
type ActionChain struct {
	ID       string          `json:"id,omitempty"`
	Actions  []ChainedAction `json:"actions"`
	Metadata ChainMetadata   `json:"metadata"`
}

// Len returns the number of actions in the chain, tolerating nil.
func (c *ActionChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Actions)
}

// ChainPartialState is reported by the client when a chain stops early.
type ChainPartialState struct {
	ExecutedActions     []string `json:"executedActions"`
	DOMAfterLastSuccess string   `json:"domAfterLastSuccess,omitempty"`
	TotalActionsInChain int      `json:"totalActionsInChain"`
}

// ChainErrorCode is the closed failure taxonomy reported by the client.
// Codes outside the declared constants are accepted and treated as unknown.
type ChainErrorCode string

const (
	ChainErrElementNotFound   ChainErrorCode = "ELEMENT_NOT_FOUND"
	ChainErrTimeout           ChainErrorCode = "TIMEOUT"
	ChainErrElementNotVisible ChainErrorCode = "ELEMENT_NOT_VISIBLE"
	ChainErrElementObscured   ChainErrorCode = "ELEMENT_OBSCURED"
	ChainErrElementDisabled   ChainErrorCode = "ELEMENT_DISABLED"
	ChainErrInvalidState      ChainErrorCode = "INVALID_STATE"
	ChainErrNetworkError      ChainErrorCode = "NETWORK_ERROR"
)

// ChainActionError describes the action that stopped a chain.
type ChainActionError struct {
	Action      string         `json:"action"`
	Message     string         `json:"message"`
	Code        ChainErrorCode `json:"code"`
	ElementID   *int           `json:"elementId,omitempty"`
	FailedIndex int            `json:"failedIndex"`
}

// RecoveryStrategy is the next step chosen after a partial chain failure.
type RecoveryStrategy string

const (
	StrategyRetryFailed     RecoveryStrategy = "RETRY_FAILED"
	StrategySkipFailed      RecoveryStrategy = "SKIP_FAILED"
	StrategyRegenerateChain RecoveryStrategy = "REGENERATE_CHAIN"
	StrategySingleAction    RecoveryStrategy = "SINGLE_ACTION"
	StrategyAbort           RecoveryStrategy = "ABORT"
)

// ChainRecoveryResult is sent back to the client after a partial failure.
// At most one payload field is set and it always matches Strategy:
// RETRY_FAILED carries CorrectedAction, SKIP_FAILED carries NewChain and
// SINGLE_ACTION carries SingleAction. REGENERATE_CHAIN and ABORT carry none.
type ChainRecoveryResult struct {
	Strategy        RecoveryStrategy `json:"strategy"`
	Reason          string           `json:"reason"`
	CorrectedAction *ChainedAction   `json:"correctedAction,omitempty"`
	NewChain        *ActionChain     `json:"newChain,omitempty"`
	SingleAction    *ChainedAction   `json:"singleAction,omitempty"`
}

// Blocker names a hard reason that prevents chaining.
type Blocker string

const (
	BlockerHighRiskAction           Blocker = "HIGH_RISK_ACTION"
	BlockerNonChainableAction       Blocker = "NON_CHAINABLE_ACTION"
	BlockerUnresolvedElements       Blocker = "UNRESOLVED_ELEMENTS"
	BlockerCrossContainer           Blocker = "CROSS_CONTAINER"
	BlockerDifferentInteractionType Blocker = "DIFFERENT_INTERACTION_TYPE"
)

// ChainSafetyAnalysis is the analyzer verdict for a candidate chain.
type ChainSafetyAnalysis struct {
	CanChain   bool      `json:"canChain"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Blockers   []Blocker `json:"blockers,omitempty"`
}

// HasBlocker reports whether b is among the analysis blockers.
func (a ChainSafetyAnalysis) HasBlocker(b Blocker) bool {
	for _, existing := range a.Blockers {
		if existing == b {
			return true
		}
	}
	return false
}
