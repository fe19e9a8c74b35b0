// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fenceRegex extracts the body of a markdown code fence with an optional
// language tag. \x60 is a backtick.
var fenceRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")

// StripFences returns the body of the first markdown code fence in content,
// or content trimmed when there is none.
func StripFences(content string) string {
	content = strings.TrimSpace(content)
	if m := fenceRegex.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return content
}

// ExtractJSON locates the JSON value in a model response: a fenced block, a
// bare document, or an object/array embedded in conversational text.
func ExtractJSON(response string) string {
	s := StripFences(response)
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	if fb, lb := strings.Index(s, "{"), strings.LastIndex(s, "}"); fb != -1 && lb > fb {
		return s[fb : lb+1]
	}
	if fb, lb := strings.Index(s, "["), strings.LastIndex(s, "]"); fb != -1 && lb > fb {
		return s[fb : lb+1]
	}
	return s
}

// ParseJSONResponse parses a model response into T, tolerating markdown
// wrapping and surrounding prose.
func ParseJSONResponse[T any](response string) (*T, error) {
	extracted := ExtractJSON(response)
	if extracted == "" {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: empty response")
	}
	var result T
	if err := json.Unmarshal([]byte(extracted), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(extracted, 500))
	}
	return &result, nil
}

// truncateString truncates s to at most maxLen bytes, backing off to a rune
// boundary.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	cut := maxLen
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
