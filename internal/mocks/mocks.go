// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/tandem/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls. A cancelled context
// returns its error without consulting the expectations.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (*schemas.GenerationResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	var resp *schemas.GenerationResponse
	if v := args.Get(0); v != nil {
		resp = v.(*schemas.GenerationResponse)
	}
	return resp, args.Error(1)
}

// Close mocks the Close method. It succeeds unless an expectation is set.
func (m *MockLLMClient) Close() error {
	for _, c := range m.ExpectedCalls {
		if c.Method == "Close" {
			return m.Called().Error(0)
		}
	}
	return nil
}

// Respond builds a response with content and token counts.
func Respond(content string, promptTokens, completionTokens int) *schemas.GenerationResponse {
	return &schemas.GenerationResponse{Content: content, PromptTokens: promptTokens, CompletionTokens: completionTokens}
}

// ForTier matches a request routed to tier.
func ForTier(tier schemas.ModelTier) interface{} {
	return mock.MatchedBy(func(req schemas.GenerationRequest) bool { return req.Tier == tier })
}
