package chain

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/actions"
	"github.com/xkilldash9x/tandem/internal/dom"
)

const signupDOM = `
<form id="signup">
  <label for="first">First name</label>
  <input id="first" data-id="3" name="firstName" placeholder="Jane">
  <label>Last name</label>
  <input data-id="4" name="lastName">
  <input data-id="5" type="email" name="contact" placeholder="Work email">
  <input data-id="6" type="checkbox" name="news"><label>Send me the newsletter</label>
  <select data-id="7" name="country"><option>France</option></select>
  <button data-id="9" type="submit">Create account</button>
</form>
<input data-id="12" name="search" form="header-search">
<a data-id="20" href="/help">Help</a>
`

// wideForm returns a single form with n text inputs numbered 1..n.
func wideForm(n int) string {
	var b strings.Builder
	b.WriteString(`<form id="wide">`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<input data-id="%d" name="field%d">`, i, i)
	}
	b.WriteString(`</form>`)
	return b.String()
}

type fixture struct {
	grammar   *actions.Grammar
	analyzer  *Analyzer
	generator *Generator
	recovery  *Recovery
}

func newFixture(t *testing.T, mutate ...func(*Options)) fixture {
	t.Helper()
	return newFixtureWithLogger(zaptest.NewLogger(t), mutate...)
}

func newFixtureWithLogger(logger *zap.Logger, mutate ...func(*Options)) fixture {
	opts := DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	g := actions.DefaultGrammar()
	analyzer := NewAnalyzer(g, opts, logger)
	ids := 0
	nextID := func() string {
		ids++
		return fmt.Sprintf("chain-%d", ids)
	}
	return fixture{
		grammar:   g,
		analyzer:  analyzer,
		generator: NewGenerator(analyzer, logger, WithIDSource(nextID)),
		recovery:  NewRecovery(opts, logger, WithRecoveryGrammar(g), WithRecoveryIDSource(nextID)),
	}
}

// chainOf assembles a chain directly, bypassing the analyzer.
func (f fixture) chainOf(t *testing.T, actionStrs ...string) *schemas.ActionChain {
	t.Helper()
	acts := make([]actions.Action, len(actionStrs))
	for i, s := range actionStrs {
		acts[i] = actions.MustParse(s)
	}
	return f.generator.Assemble(acts, nil, ClassifyReason(f.grammar, acts))
}

func executed(c *schemas.ActionChain, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.Actions[i].Action)
	}
	return out
}

func intPtr(i int) *int { return &i }

func parseAll(t *testing.T, actionStrs ...string) []actions.Action {
	t.Helper()
	out := make([]actions.Action, len(actionStrs))
	for i, s := range actionStrs {
		out[i] = actions.MustParse(s)
	}
	return out
}

func parseSnapshot(s string) *dom.Snapshot { return dom.Parse(s) }
