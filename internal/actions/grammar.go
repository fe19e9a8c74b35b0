// internal/actions/grammar.go
package actions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/tandem/api/schemas"
)

// Category groups actions by how they interact with the page. Chain safety
// analysis reasons about categories, not individual names.
type Category string

const (
	CategoryInput      Category = "input"      // setValue, select, check, uncheck
	CategoryClick      Category = "click"      // click
	CategoryNeutral    Category = "neutral"    // focus, blur, hover, scroll, wait
	CategoryNavigation Category = "navigation" // navigate, goBack, googleSearch
	CategoryTerminal   Category = "terminal"   // finish, fail, submit
)

// ParamKind is the expected lexical form of a parameter.
type ParamKind int

const (
	ParamElementID ParamKind = iota + 1
	ParamText
	ParamNumber
	// ParamTarget accepts an element id or a direction word (scroll).
	ParamTarget
)

// Param describes one positional parameter of an action.
type Param struct {
	Name     string
	Kind     ParamKind
	Optional bool
}

// Definition is one entry of the action grammar.
type Definition struct {
	Name        string
	Params      []Param
	Category    Category
	Chainable   bool
	Description string
}

// Signature renders the definition as name(param, param?).
func (d Definition) Signature() string {
	names := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		if p.Optional {
			names = append(names, p.Name+"?")
			continue
		}
		names = append(names, p.Name)
	}
	return fmt.Sprintf("%s(%s)", d.Name, strings.Join(names, ", "))
}

func (d Definition) requiredParams() int {
	n := 0
	for _, p := range d.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// Grammar is an immutable, versioned action table. It is built once at
// startup and passed to every component that needs to validate actions.
type Grammar struct {
	version string
	defs    map[string]Definition
	order   []string
}

// NewGrammar builds a grammar from its definitions. Duplicate names are an
// error.
func NewGrammar(version string, defs ...Definition) (*Grammar, error) {
	g := &Grammar{
		version: version,
		defs:    make(map[string]Definition, len(defs)),
		order:   make([]string, 0, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("grammar %s: definition with empty name", version)
		}
		if _, exists := g.defs[d.Name]; exists {
			return nil, fmt.Errorf("grammar %s: duplicate definition for %q", version, d.Name)
		}
		// High-risk names can never be marked chainable, whatever the table says.
		if IsHighRisk(d.Name) {
			d.Chainable = false
		}
		g.defs[d.Name] = d
		g.order = append(g.order, d.Name)
	}
	return g, nil
}

// DefaultGrammarVersion identifies the built-in action table.
const DefaultGrammarVersion = "2024.2"

var (
	elementParam = Param{Name: "elementId", Kind: ParamElementID}
	valueParam   = Param{Name: "value", Kind: ParamText}
)

// DefaultGrammar returns the built-in action table. Each call returns a fresh
// value; callers share it by passing the pointer along.
func DefaultGrammar() *Grammar {
	g, err := NewGrammar(DefaultGrammarVersion,
		Definition{Name: "click", Params: []Param{elementParam}, Category: CategoryClick, Chainable: true, Description: "Click an element"},
		Definition{Name: "setValue", Params: []Param{elementParam, valueParam}, Category: CategoryInput, Chainable: true, Description: "Set the value of an input or textarea"},
		Definition{Name: "check", Params: []Param{elementParam}, Category: CategoryInput, Chainable: true, Description: "Check a checkbox"},
		Definition{Name: "uncheck", Params: []Param{elementParam}, Category: CategoryInput, Chainable: true, Description: "Uncheck a checkbox"},
		Definition{Name: "select", Params: []Param{elementParam, {Name: "option", Kind: ParamText}}, Category: CategoryInput, Chainable: true, Description: "Select an option in a dropdown"},
		Definition{Name: "focus", Params: []Param{elementParam}, Category: CategoryNeutral, Chainable: true, Description: "Focus an element"},
		Definition{Name: "blur", Params: []Param{elementParam}, Category: CategoryNeutral, Chainable: true, Description: "Remove focus from an element"},
		Definition{Name: "hover", Params: []Param{elementParam}, Category: CategoryNeutral, Chainable: true, Description: "Hover over an element"},
		Definition{Name: "scroll", Params: []Param{{Name: "target", Kind: ParamTarget, Optional: true}}, Category: CategoryNeutral, Chainable: true, Description: "Scroll the page or an element into view"},
		Definition{Name: "wait", Params: []Param{{Name: "ms", Kind: ParamNumber, Optional: true}}, Category: CategoryNeutral, Chainable: true, Description: "Wait for the page to settle"},
		Definition{Name: "navigate", Params: []Param{{Name: "url", Kind: ParamText}}, Category: CategoryNavigation, Description: "Navigate to a URL"},
		Definition{Name: "goBack", Category: CategoryNavigation, Description: "Go back in history"},
		Definition{Name: "googleSearch", Params: []Param{{Name: "query", Kind: ParamText}}, Category: CategoryNavigation, Description: "Search the web"},
		Definition{Name: "submit", Params: []Param{elementParam}, Category: CategoryTerminal, Description: "Submit a form"},
		Definition{Name: "finish", Params: []Param{{Name: "message", Kind: ParamText}}, Category: CategoryTerminal, Description: "Declare the task complete"},
		Definition{Name: "fail", Params: []Param{{Name: "reason", Kind: ParamText}}, Category: CategoryTerminal, Description: "Declare the task impossible"},
	)
	if err != nil {
		// The built-in table is static; an error here is a programming mistake.
		panic(err)
	}
	return g
}

// Version returns the grammar version string.
func (g *Grammar) Version() string { return g.version }

// Lookup returns the definition for name.
func (g *Grammar) Lookup(name string) (Definition, bool) {
	d, ok := g.defs[name]
	return d, ok
}

// Definitions returns all definitions in declaration order.
func (g *Grammar) Definitions() []Definition {
	out := make([]Definition, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.defs[name])
	}
	return out
}

// IsChainable reports whether name may appear inside a chain.
func (g *Grammar) IsChainable(name string) bool {
	d, ok := g.defs[name]
	return ok && d.Chainable
}

// CategoryOf returns the category of name, or "" when unknown.
func (g *Grammar) CategoryOf(name string) Category {
	return g.defs[name].Category
}

// Validate checks that a parsed action names a known definition and that its
// arguments match the declared parameters.
func (g *Grammar) Validate(a Action) error {
	d, ok := g.defs[a.Name]
	if !ok {
		return fmt.Errorf("unknown action %q (grammar %s)", a.Name, g.version)
	}
	if len(a.Args) < d.requiredParams() || len(a.Args) > len(d.Params) {
		return fmt.Errorf("action %s expects %s, got %d argument(s)", a.Name, d.Signature(), len(a.Args))
	}
	for i, arg := range a.Args {
		p := d.Params[i]
		if !argMatches(p.Kind, arg) {
			return fmt.Errorf("action %s: argument %d (%s) has the wrong form", a.Name, i, p.Name)
		}
	}
	return nil
}

// ElementID returns the element the action targets. Only a first parameter
// declared as an element id or scroll target counts, so wait(500) has none.
func (g *Grammar) ElementID(a Action) (int, bool) {
	d, ok := g.defs[a.Name]
	if !ok || len(d.Params) == 0 {
		return 0, false
	}
	switch d.Params[0].Kind {
	case ParamElementID, ParamTarget:
		return a.ElementID()
	}
	return 0, false
}

func argMatches(kind ParamKind, arg Arg) bool {
	switch kind {
	case ParamElementID:
		_, ok := arg.Int()
		return ok
	case ParamNumber:
		return arg.Kind == ArgNumber
	case ParamText:
		return arg.Kind == ArgString || arg.Kind == ArgIdent || arg.Kind == ArgNumber
	case ParamTarget:
		return true
	}
	return false
}

// VerificationType maps an action name onto the coarse kind used by the
// verification pipeline.
func (g *Grammar) VerificationType(name string) schemas.VerificationActionType {
	switch name {
	case "navigate", "goBack", "googleSearch":
		return schemas.VerifyActionNavigation
	case "click", "submit":
		return schemas.VerifyActionClick
	case "setValue":
		return schemas.VerifyActionInput
	case "select", "check", "uncheck":
		return schemas.VerifyActionSelection
	case "scroll":
		return schemas.VerifyActionScroll
	case "wait":
		return schemas.VerifyActionWait
	}
	return schemas.VerifyActionOther
}

// highRiskPattern is the fixed denylist of destructive or terminal action
// name prefixes.
var highRiskPattern = regexp.MustCompile(`(?i)^(finish|fail|navigate|submit|googleSearch|delete|remove)`)

// IsHighRisk reports whether an action name is on the denylist.
func IsHighRisk(name string) bool {
	return highRiskPattern.MatchString(strings.TrimSpace(name))
}

// IsHighRiskAction applies IsHighRisk to the name of a raw action string.
// Malformed strings whose name cannot be extracted are not high risk by this
// test; they fail grammar validation instead.
func IsHighRiskAction(s string) bool {
	name := Name(s)
	return name != "" && IsHighRisk(name)
}
