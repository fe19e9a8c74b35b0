package actions

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Canonical(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantName  string
		wantArgs  []Arg
		canonical string
	}{
		{"click", "click(12)", "click", []Arg{Number(12)}, "click(12)"},
		{"setValue with spaces", `  setValue( 42 , "Jane" ) `, "setValue", []Arg{Number(42), String("Jane")}, `setValue(42,"Jane")`},
		{"single quotes", `select(7, 'Blue')`, "select", []Arg{Number(7), String("Blue")}, `select(7,"Blue")`},
		{"no args", "goBack()", "goBack", nil, "goBack()"},
		{"bare identifier", "scroll(down)", "scroll", []Arg{Ident("down")}, "scroll(down)"},
		{"escaped quote", `finish("He said \"hi\"")`, "finish", []Arg{String(`He said "hi"`)}, `finish("He said \"hi\"")`},
		{"comma inside string", `setValue(3, "a, b")`, "setValue", []Arg{Number(3), String("a, b")}, `setValue(3,"a, b")`},
		{"newline escape", `setValue(3, "line1\nline2")`, "setValue", []Arg{Number(3), String("line1\nline2")}, `setValue(3,"line1\nline2")`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, a.Name)
			assert.Equal(t, tt.wantArgs, a.Args)
			assert.Equal(t, tt.canonical, a.String())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"click",
		"click(12",
		`setValue(1, "unterminated)`,
		"setValue(1,)",
		"setValue(1 2)",
		"(12)",
		`setValue(1, a"b)`,
	}
	for _, in := range inputs {
		_, err := Parse(in)
		assert.Error(t, err, "input %q should not parse", in)
		assert.True(t, errors.Is(err, ErrSyntax), "input %q should wrap ErrSyntax", in)
	}
}

func TestAction_ElementID(t *testing.T) {
	t.Parallel()

	id, ok := MustParse(`setValue(42,"x")`).ElementID()
	assert.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = MustParse(`scroll(down)`).ElementID()
	assert.False(t, ok)

	_, ok = MustParse(`wait()`).ElementID()
	assert.False(t, ok)

	_, ok = MustParse(`wait(2.5)`).ElementID()
	assert.False(t, ok, "fractional numbers are not element ids")
}

func TestAction_WithElementID(t *testing.T) {
	t.Parallel()

	original := MustParse(`setValue(42,"Jane")`)
	corrected := original.WithElementID(45)

	assert.Equal(t, `setValue(45,"Jane")`, corrected.String())
	assert.Equal(t, `setValue(42,"Jane")`, original.String(), "original must not be mutated")

	noID := MustParse("scroll(down)")
	assert.Equal(t, noID, noID.WithElementID(9))
}

func TestName_Lenient(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "deleteAccount", Name(`deleteAccount(1, "broken`))
	assert.Equal(t, "", Name("not an action"))
}

func TestSplitTopLevel(t *testing.T) {
	t.Parallel()

	got := SplitTopLevel(`setValue(1,"a|b") | click(2) || check(3)`, '|')
	assert.Equal(t, []string{`setValue(1,"a|b")`, "click(2)", "check(3)"}, got)
}

func TestLeadingCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: `click(5) - submit`, want: `click(5)`, wantOK: true},
		{in: `setValue(1, "a) b") and more`, want: `setValue(1, "a) b")`, wantOK: true},
		{in: `setValue(1, "say \"hi)\"")`, want: `setValue(1, "say \"hi)\"")`, wantOK: true},
		{in: `setValue(1, "open`},
		{in: `no call here`},
	}
	for _, tt := range tests {
		got, ok := LeadingCall(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFinishRoundTrip(t *testing.T) {
	t.Parallel()

	built := BuildFinishAction(`He said "hi"`)
	assert.Equal(t, `finish("He said \"hi\"")`, built)

	msg, err := ParseFinishMessage(built)
	require.NoError(t, err)
	assert.Equal(t, `He said "hi"`, msg)

	_, err = ParseFinishMessage(BuildFailAction("nope"))
	assert.Error(t, err)

	reason, err := ParseFailReason(BuildFailAction(`path C:\tmp`))
	require.NoError(t, err)
	assert.Equal(t, `path C:\tmp`, reason)
}

func TestProperty_FinishMessageRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("finish message survives build and parse", prop.ForAll(
		func(msg string) bool {
			parsed, err := ParseFinishMessage(BuildFinishAction(msg))
			return err == nil && parsed == msg
		},
		gen.AnyString(),
	))

	properties.Property("setValue text survives canonical serialization", prop.ForAll(
		func(id int, value string) bool {
			a := New("setValue", Number(id), String(value))
			reparsed, err := Parse(a.String())
			return err == nil && reparsed.String() == a.String()
		},
		gen.IntRange(0, 100000),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
