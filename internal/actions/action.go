// internal/actions/action.go
package actions

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrSyntax is returned (wrapped) for any action string that cannot be parsed.
var ErrSyntax = errors.New("action syntax error")

// ArgKind distinguishes the lexical forms an argument can take.
type ArgKind int

const (
	ArgNumber ArgKind = iota + 1 // 42, -1, 3.5
	ArgString                    // "Jane" or 'Jane'
	ArgIdent                     // bare words such as down or true
)

// Arg is a single positional argument. Value holds the decoded form: digits
// for numbers, the unescaped text for strings.
type Arg struct {
	Kind  ArgKind
	Value string
}

// Number builds a numeric argument.
func Number(n int) Arg { return Arg{Kind: ArgNumber, Value: strconv.Itoa(n)} }

// String builds a quoted string argument.
func String(s string) Arg { return Arg{Kind: ArgString, Value: s} }

// Ident builds a bare identifier argument.
func Ident(s string) Arg { return Arg{Kind: ArgIdent, Value: s} }

// Int returns the argument as an integer when it is a whole number.
func (a Arg) Int() (int, bool) {
	if a.Kind != ArgNumber {
		return 0, false
	}
	n, err := strconv.Atoi(a.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (a Arg) encode() string {
	switch a.Kind {
	case ArgString:
		return quote(a.Value)
	default:
		return a.Value
	}
}

// Action is the typed form of an action string. All chaining, recovery and
// extraction logic works on this form; strings only exist at the edges.
type Action struct {
	Name string
	Args []Arg
}

// New builds an action from a name and its arguments.
func New(name string, args ...Arg) Action {
	return Action{Name: name, Args: args}
}

// String re-serializes the action canonically: no whitespace between
// arguments and double quoted strings, e.g. setValue(42,"Jane").
func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Name)
	b.WriteByte('(')
	for i, arg := range a.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(arg.encode())
	}
	b.WriteByte(')')
	return b.String()
}

// ElementID returns the first positional numeric argument.
func (a Action) ElementID() (int, bool) {
	if len(a.Args) == 0 {
		return 0, false
	}
	return a.Args[0].Int()
}

// WithElementID returns a copy of the action with its element id argument
// replaced. Actions without an element id are returned unchanged.
func (a Action) WithElementID(id int) Action {
	if _, ok := a.ElementID(); !ok {
		return a
	}
	args := make([]Arg, len(a.Args))
	copy(args, a.Args)
	args[0] = Number(id)
	return Action{Name: a.Name, Args: args}
}

// TextArg returns the decoded value of argument i when it is a string or a
// bare identifier.
func (a Action) TextArg(i int) (string, bool) {
	if i < 0 || i >= len(a.Args) {
		return "", false
	}
	arg := a.Args[i]
	if arg.Kind == ArgString || arg.Kind == ArgIdent {
		return arg.Value, true
	}
	return "", false
}

var (
	nameRegex   = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	numberRegex = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// Name extracts the action name from a possibly malformed action string.
// It returns "" when the input does not start with name(.
func Name(s string) string {
	m := nameRegex.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Parse converts an action string such as setValue(42, "Jane") into its typed
// form.
func Parse(s string) (Action, error) {
	trimmed := strings.TrimSpace(s)
	loc := nameRegex.FindStringSubmatchIndex(trimmed)
	if loc == nil {
		return Action{}, fmt.Errorf("%w: missing action name in %q", ErrSyntax, s)
	}
	if !strings.HasSuffix(trimmed, ")") {
		return Action{}, fmt.Errorf("%w: unterminated argument list in %q", ErrSyntax, s)
	}
	name := trimmed[loc[2]:loc[3]]
	inner := trimmed[loc[1] : len(trimmed)-1]

	args, err := parseArgs(inner)
	if err != nil {
		return Action{}, fmt.Errorf("%w in %q", err, s)
	}
	return Action{Name: name, Args: args}, nil
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(s string) Action {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func parseArgs(inner string) ([]Arg, error) {
	var args []Arg
	i := 0
	n := len(inner)

	skipSpace := func() {
		for i < n && isSpace(inner[i]) {
			i++
		}
	}

	skipSpace()
	if i == n {
		return nil, nil
	}

	for {
		skipSpace()
		if i == n {
			return nil, fmt.Errorf("%w: trailing comma", ErrSyntax)
		}

		switch c := inner[i]; c {
		case '"', '\'':
			value, next, err := unquote(inner, i)
			if err != nil {
				return nil, err
			}
			args = append(args, String(value))
			i = next
		default:
			start := i
			for i < n && inner[i] != ',' {
				if inner[i] == '"' || inner[i] == '\'' {
					return nil, fmt.Errorf("%w: unexpected quote at offset %d", ErrSyntax, i)
				}
				i++
			}
			raw := strings.TrimSpace(inner[start:i])
			if raw == "" {
				return nil, fmt.Errorf("%w: empty argument", ErrSyntax)
			}
			if strings.IndexFunc(raw, func(r rune) bool { return r < 128 && isSpace(byte(r)) }) >= 0 {
				return nil, fmt.Errorf("%w: unquoted argument %q contains whitespace", ErrSyntax, raw)
			}
			if numberRegex.MatchString(raw) {
				args = append(args, Arg{Kind: ArgNumber, Value: raw})
			} else {
				args = append(args, Ident(raw))
			}
		}

		skipSpace()
		if i == n {
			return args, nil
		}
		if inner[i] != ',' {
			return nil, fmt.Errorf("%w: expected ',' at offset %d", ErrSyntax, i)
		}
		i++
	}
}

// unquote decodes the quoted string starting at s[start] and returns the
// decoded value plus the index just past the closing quote.
func unquote(s string, start int) (string, int, error) {
	q := s[start]
	var b strings.Builder
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("%w: dangling escape", ErrSyntax)
			}
			i++
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
		case c == q:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string", ErrSyntax)
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// SplitTopLevel splits s on sep, ignoring separators inside quotes or
// parentheses. Empty pieces are dropped and the rest are trimmed.
func SplitTopLevel(s string, sep byte) []string {
	var (
		parts   []string
		depth   int
		inQuote byte
		start   int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = appendTrimmed(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return appendTrimmed(parts, s[start:])
}

// LeadingCall returns the name(...) call at the start of s, up to its
// matching close paren, ignoring parens inside quotes. Whatever follows the
// call is dropped.
func LeadingCall(s string) (string, bool) {
	s = strings.TrimLeft(s, " \t")
	loc := nameRegex.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	var (
		depth   = 1
		inQuote byte
	)
	for i := loc[1]; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

func appendTrimmed(parts []string, piece string) []string {
	piece = strings.TrimSpace(piece)
	if piece == "" {
		return parts
	}
	return append(parts, piece)
}
