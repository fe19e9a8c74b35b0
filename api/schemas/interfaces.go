package schemas

import (
	"context"
)

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Lightweight verification (Tier 2).
	TierPowerful ModelTier = "powerful" // Full semantic verification (Tier 3).
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`                 // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"`           // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p,omitempty"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k,omitempty"`             // Top-k sampling parameter.
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"` // Hard cap on completion size. Zero uses the model default.
	// ResponseSchema constrains the structured output when the provider supports it.
	ResponseSchema map[string]interface{} `json:"response_schema,omitempty"`
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`   // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`     // The specific query or input from the user.
	Tier         ModelTier         `json:"tier"`            // The desired model tier (fast or powerful).
	Model        string            `json:"model,omitempty"` // Overrides the tier's configured model when set.
	Options      GenerationOptions `json:"options"`         // Advanced generation parameters.
}

// GenerationResponse is the raw model output plus the token accounting the
// caller needs for cost tracking. Token counts are zero when the provider does
// not report them.
type GenerationResponse struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Model            string `json:"model,omitempty"`
}

// TotalTokens is the sum of prompt and completion tokens.
func (r *GenerationResponse) TotalTokens() int {
	if r == nil {
		return 0
	}
	return r.PromptTokens + r.CompletionTokens
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
// Implementations may fail or return malformed content; callers own the
// interpretation of both.
type LLMClient interface {
	// Generate produces a completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)
	// Close cleans up any resources held by the client.
	Close() error
}
