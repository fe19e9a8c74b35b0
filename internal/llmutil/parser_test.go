package llmutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	ActionSucceeded *bool   `json:"action_succeeded"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
}

func TestParseJSONResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		reason   string
	}{
		{"bare", `{"action_succeeded":true,"confidence":0.9,"reason":"ok"}`, "ok"},
		{"json fence", "```json\n{\"action_succeeded\":true,\"confidence\":0.9,\"reason\":\"fenced\"}\n```", "fenced"},
		{"untagged fence", "```\n{\"reason\":\"plain\"}\n```", "plain"},
		{"prose around", "Sure! Here it is: {\"reason\":\"embedded {braces}\"} Hope that helps.", "embedded {braces}"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseJSONResponse[verdict](tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestParseJSONResponse_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseJSONResponse[verdict]("")
	assert.ErrorContains(t, err, "empty response")

	_, err = ParseJSONResponse[verdict]("I cannot decide.")
	assert.ErrorContains(t, err, "failed to unmarshal LLM JSON response")

	_, err = ParseJSONResponse[verdict](`{"confidence": "high"}`)
	assert.Error(t, err)
}

func TestParseJSONResponse_Array(t *testing.T) {
	t.Parallel()
	got, err := ParseJSONResponse[[]string]("The actions are [\"click(1)\", \"wait(2)\"].")
	require.NoError(t, err)
	assert.Equal(t, []string{"click(1)", "wait(2)"}, *got)
}

func TestStripFences(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "click(3)", StripFences("```\nclick(3)\n```"))
	assert.Equal(t, "no fence", StripFences("  no fence \n"))
}

func TestTruncateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ab...", truncateString("abcdef", 2))
	assert.Equal(t, "", truncateString("abc", 0))

	got := truncateString("aé", 2) // é is two bytes starting at index 1
	assert.Equal(t, "a...", got)
	assert.False(t, strings.ContainsRune(got, '�'))
}
