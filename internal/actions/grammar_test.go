package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tandem/api/schemas"
)

func TestDefaultGrammar_ChainableSet(t *testing.T) {
	t.Parallel()
	g := DefaultGrammar()

	chainable := []string{"click", "setValue", "check", "uncheck", "select", "focus", "blur", "hover", "scroll", "wait"}
	for _, name := range chainable {
		assert.True(t, g.IsChainable(name), "%s should be chainable", name)
	}

	for _, name := range []string{"finish", "fail", "navigate", "submit", "googleSearch", "goBack", "deleteRow", "unknown"} {
		assert.False(t, g.IsChainable(name), "%s should not be chainable", name)
	}
	assert.Equal(t, DefaultGrammarVersion, g.Version())
}

func TestNewGrammar_ForcesHighRiskUnchainable(t *testing.T) {
	t.Parallel()

	g, err := NewGrammar("test", Definition{Name: "deleteAll", Category: CategoryInput, Chainable: true})
	require.NoError(t, err)
	assert.False(t, g.IsChainable("deleteAll"))
}

func TestNewGrammar_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewGrammar("test", Definition{Name: "click"}, Definition{Name: "click"})
	assert.ErrorContains(t, err, "duplicate")
}

func TestGrammar_Validate(t *testing.T) {
	t.Parallel()
	g := DefaultGrammar()

	assert.NoError(t, g.Validate(MustParse(`setValue(1,"x")`)))
	assert.NoError(t, g.Validate(MustParse(`scroll()`)))
	assert.NoError(t, g.Validate(MustParse(`scroll(down)`)))
	assert.NoError(t, g.Validate(MustParse(`wait(500)`)))

	assert.ErrorContains(t, g.Validate(MustParse(`setValue(1)`)), "expects setValue(elementId, value)")
	assert.ErrorContains(t, g.Validate(MustParse(`click("abc")`)), "wrong form")
	assert.ErrorContains(t, g.Validate(MustParse(`teleport(1)`)), "unknown action")
}

func TestIsHighRisk(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"finish", "fail", "navigate", "submit", "googleSearch", "deleteItem", "removeRow", "DELETE"} {
		assert.True(t, IsHighRisk(name), name)
	}
	for _, name := range []string{"click", "setValue", "select", "wait"} {
		assert.False(t, IsHighRisk(name), name)
	}
	assert.True(t, IsHighRiskAction(`finish("done")`))
	assert.False(t, IsHighRiskAction("garbage"))
}

func TestGrammar_VerificationType(t *testing.T) {
	t.Parallel()
	g := DefaultGrammar()

	assert.Equal(t, schemas.VerifyActionNavigation, g.VerificationType("navigate"))
	assert.Equal(t, schemas.VerifyActionClick, g.VerificationType("click"))
	assert.Equal(t, schemas.VerifyActionInput, g.VerificationType("setValue"))
	assert.Equal(t, schemas.VerifyActionSelection, g.VerificationType("check"))
	assert.Equal(t, schemas.VerifyActionOther, g.VerificationType("hover"))
	assert.Equal(t, "setValue(elementId, value)", mustLookup(t, g, "setValue").Signature())
	assert.Equal(t, "scroll(target?)", mustLookup(t, g, "scroll").Signature())
}

func TestGrammar_ElementID(t *testing.T) {
	t.Parallel()
	g := DefaultGrammar()

	tests := []struct {
		action string
		wantID int
		wantOK bool
	}{
		{action: `setValue(42,"x")`, wantID: 42, wantOK: true},
		{action: `click(7)`, wantID: 7, wantOK: true},
		{action: `scroll(12)`, wantID: 12, wantOK: true},
		{action: `scroll(down)`},
		{action: `wait(500)`},
		{action: `navigate("https://example.com")`},
		{action: `teleport(3)`},
	}
	for _, tt := range tests {
		id, ok := g.ElementID(MustParse(tt.action))
		assert.Equal(t, tt.wantOK, ok, tt.action)
		assert.Equal(t, tt.wantID, id, tt.action)
	}
}

func mustLookup(t *testing.T, g *Grammar, name string) Definition {
	t.Helper()
	d, ok := g.Lookup(name)
	require.True(t, ok)
	return d
}
