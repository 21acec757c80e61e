package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// evalFormula builds a one-field table around the formula and runs it
// against the given raw fields and row.
func evalFormula(t *testing.T, src string, resultType rulebook.FieldType,
	raw []rulebook.FieldDefinition, row rulebook.Row) (rulebook.Value, map[string]error) {
	t.Helper()

	fields := append([]rulebook.FieldDefinition{}, raw...)
	fields = append(fields, rulebook.FieldDefinition{
		Name: "Out", Type: resultType, Origin: rulebook.OriginDerived, Formula: src,
	})
	p, err := plan.Build(&rulebook.Table{Name: "T", Fields: fields})
	require.NoError(t, err, src)

	res := New(p).Row(row)
	return res.Values["Out"], res.Errors
}

var stringFields = []rulebook.FieldDefinition{
	{Name: "A", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
	{Name: "B", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
}

var intFields = []rulebook.FieldDefinition{
	{Name: "N", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
	{Name: "M", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
}

func TestNullComparisonsAreFalse(t *testing.T) {
	// every operator, including <>, is false against a null side
	for _, src := range []string{
		`{{N}} = 1`, `{{N}} <> 1`, `{{N}} < 1`, `{{N}} <= 1`, `{{N}} > 1`, `{{N}} >= 1`,
	} {
		v, errs := evalFormula(t, src, rulebook.TypeBool, intFields, rulebook.Row{})
		require.Empty(t, errs, src)
		assert.Equal(t, rulebook.BoolValue(false), v, src)
	}
}

func TestComparisonSemantics(t *testing.T) {
	tests := []struct {
		src  string
		row  rulebook.Row
		want bool
	}{
		{`{{N}} >= 10`, rulebook.Row{"N": rulebook.IntValue(12)}, true},
		{`{{N}} >= 10`, rulebook.Row{"N": rulebook.IntValue(9)}, false},
		{`{{N}} <> {{M}}`, rulebook.Row{"N": rulebook.IntValue(1), "M": rulebook.IntValue(2)}, true},
		// strings compare ordinally
		{`{{A}} < {{B}}`, rulebook.Row{"A": rulebook.StringValue("apple"), "B": rulebook.StringValue("banana")}, true},
		{`{{A}} = {{B}}`, rulebook.Row{"A": rulebook.StringValue("x"), "B": rulebook.StringValue("x")}, true},
	}
	for _, tt := range tests {
		fields := append(append([]rulebook.FieldDefinition{}, intFields...), stringFields...)
		v, errs := evalFormula(t, tt.src, rulebook.TypeBool, fields, tt.row)
		require.Empty(t, errs, tt.src)
		assert.Equal(t, rulebook.BoolValue(tt.want), v, tt.src)
	}
}

func TestCrossKindComparisonIsFalse(t *testing.T) {
	fields := append(append([]rulebook.FieldDefinition{}, intFields...), stringFields...)
	row := rulebook.Row{"N": rulebook.IntValue(1), "A": rulebook.StringValue("1")}
	v, errs := evalFormula(t, `{{N}} = {{A}}`, rulebook.TypeBool, fields, row)
	require.Empty(t, errs)
	assert.Equal(t, rulebook.BoolValue(false), v)
}

func TestOnlyTrueBooleanIsTruthy(t *testing.T) {
	fields := []rulebook.FieldDefinition{
		{Name: "Flag", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
		{Name: "N", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
	}
	tests := []struct {
		src  string
		row  rulebook.Row
		want bool
	}{
		{`NOT({{Flag}})`, rulebook.Row{"Flag": rulebook.BoolValue(true)}, false},
		{`NOT({{Flag}})`, rulebook.Row{"Flag": rulebook.BoolValue(false)}, true},
		// null is not truthy, so NOT of an absent flag is true
		{`NOT({{Flag}})`, rulebook.Row{}, true},
		// a bare int is never truthy
		{`IF({{N}}, TRUE(), FALSE())`, rulebook.Row{"N": rulebook.IntValue(7)}, false},
		{`AND(TRUE(), {{Flag}})`, rulebook.Row{}, false},
		{`OR(FALSE(), {{Flag}})`, rulebook.Row{"Flag": rulebook.BoolValue(true)}, true},
	}
	for _, tt := range tests {
		v, errs := evalFormula(t, tt.src, rulebook.TypeBool, fields, tt.row)
		require.Empty(t, errs, tt.src)
		assert.Equal(t, rulebook.BoolValue(tt.want), v, "%s %v", tt.src, tt.row)
	}
}

func TestIfMissingElseYieldsTypedZero(t *testing.T) {
	tests := []struct {
		src        string
		resultType rulebook.FieldType
		want       rulebook.Value
	}{
		{`IF(FALSE(), "yes")`, rulebook.TypeString, rulebook.StringValue("")},
		{`IF(FALSE(), 7)`, rulebook.TypeInt, rulebook.IntValue(0)},
		{`IF(FALSE(), TRUE())`, rulebook.TypeBool, rulebook.BoolValue(false)},
	}
	for _, tt := range tests {
		v, errs := evalFormula(t, tt.src, tt.resultType, nil, rulebook.Row{})
		require.Empty(t, errs, tt.src)
		assert.Equal(t, tt.want, v, tt.src)
	}
}

func TestConcatCoercion(t *testing.T) {
	fields := []rulebook.FieldDefinition{
		{Name: "Flag", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
		{Name: "N", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
		{Name: "S", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
	}
	row := rulebook.Row{
		"Flag": rulebook.BoolValue(true),
		"N":    rulebook.IntValue(42),
	}
	v, errs := evalFormula(t, `{{Flag}} & "-" & {{N}} & "-" & {{S}}`,
		rulebook.TypeString, fields, row)
	require.Empty(t, errs)
	assert.Equal(t, rulebook.StringValue("true-42-"), v)
}

func TestConcatNullLeavesDoubleSpace(t *testing.T) {
	// "Is " & {{Adjective}} & " a language?" with a null adjective keeps
	// both spaces; the null side contributes nothing at all.
	fields := []rulebook.FieldDefinition{
		{Name: "Adjective", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
	}
	v, errs := evalFormula(t, `="Is " & {{Adjective}} & " a language?"`,
		rulebook.TypeString, fields, rulebook.Row{})
	require.Empty(t, errs)
	assert.Equal(t, rulebook.StringValue("Is  a language?"), v)
}

func TestStringBuiltins(t *testing.T) {
	fields := []rulebook.FieldDefinition{
		{Name: "S", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
		{Name: "N", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
	}
	tests := []struct {
		src        string
		resultType rulebook.FieldType
		row        rulebook.Row
		want       rulebook.Value
	}{
		{`LOWER({{S}})`, rulebook.TypeString, rulebook.Row{"S": rulebook.StringValue("MiXeD")}, rulebook.StringValue("mixed")},
		{`UPPER({{S}})`, rulebook.TypeString, rulebook.Row{"S": rulebook.StringValue("go")}, rulebook.StringValue("GO")},
		{`LOWER({{S}})`, rulebook.TypeString, rulebook.Row{}, rulebook.StringValue("")},
		{`TEXT({{N}})`, rulebook.TypeString, rulebook.Row{"N": rulebook.IntValue(-5)}, rulebook.StringValue("-5")},
		{`FIND("an", {{S}})`, rulebook.TypeInt, rulebook.Row{"S": rulebook.StringValue("banana")}, rulebook.IntValue(2)},
		{`FIND("xyz", {{S}})`, rulebook.TypeInt, rulebook.Row{"S": rulebook.StringValue("banana")}, rulebook.IntValue(0)},
		{`ISBLANK({{S}})`, rulebook.TypeBool, rulebook.Row{}, rulebook.BoolValue(true)},
		{`ISBLANK({{S}})`, rulebook.TypeBool, rulebook.Row{"S": rulebook.StringValue("")}, rulebook.BoolValue(true)},
		{`ISBLANK({{S}})`, rulebook.TypeBool, rulebook.Row{"S": rulebook.StringValue("x")}, rulebook.BoolValue(false)},
		{`ISBLANK({{N}})`, rulebook.TypeBool, rulebook.Row{}, rulebook.BoolValue(true)},
		{`ISBLANK({{N}})`, rulebook.TypeBool, rulebook.Row{"N": rulebook.IntValue(0)}, rulebook.BoolValue(false)},
	}
	for _, tt := range tests {
		v, errs := evalFormula(t, tt.src, tt.resultType, fields, tt.row)
		require.Empty(t, errs, tt.src)
		assert.Equal(t, tt.want, v, "%s %v", tt.src, tt.row)
	}
}

func TestUnknownFunctionFailsOnlyThatField(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "N", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "Broken", Type: rulebook.TypeString, Origin: rulebook.OriginDerived, Formula: `MYSTERY({{N}})`},
			{Name: "Fine", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived, Formula: `{{N}} > 0`},
		},
	}
	p, err := plan.Build(table)
	require.NoError(t, err)

	res := New(p).Row(rulebook.Row{"N": rulebook.IntValue(3)})

	require.Contains(t, res.Errors, "Broken")
	var unknown *UnknownFunctionError
	require.ErrorAs(t, res.Errors["Broken"], &unknown)
	assert.Equal(t, "MYSTERY", unknown.Name)

	// the failed field stays uncomputed, the sibling still runs
	_, computed := res.Values["Broken"]
	assert.False(t, computed)
	assert.Equal(t, rulebook.BoolValue(true), res.Values["Fine"])
}

func TestDerivedNullBoolCollapsesToFalse(t *testing.T) {
	// IF without an else whose then-branch is a field read can produce
	// null; a boolean field collapses that to false.
	fields := []rulebook.FieldDefinition{
		{Name: "Flag", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
	}
	v, errs := evalFormula(t, `IF(TRUE(), {{Flag}})`, rulebook.TypeBool, fields, rulebook.Row{})
	require.Empty(t, errs)
	assert.Equal(t, rulebook.BoolValue(false), v)
}

func TestDeclaredTypeMismatchIsFieldError(t *testing.T) {
	_, errs := evalFormula(t, `"text"`, rulebook.TypeInt, nil, rulebook.Row{})
	require.Contains(t, errs, "Out")
	assert.ErrorContains(t, errs["Out"], "declared int")
}

func TestTopAnswerChain(t *testing.T) {
	table := &rulebook.Table{
		Name: "Answers",
		Fields: []rulebook.FieldDefinition{
			{Name: "Text", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
			{Name: "Votes", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "Accepted", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
			{Name: "HasText", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `=NOT(ISBLANK({{Text}}))`},
			{Name: "Popular", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `={{Votes}} >= 10`},
			{Name: "TopAnswer", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `=AND({{HasText}}, {{Popular}}, {{Accepted}})`},
		},
	}
	p, err := plan.Build(table)
	require.NoError(t, err)
	ev := New(p)

	full := ev.Row(rulebook.Row{
		"Text":     rulebook.StringValue("use a map"),
		"Votes":    rulebook.IntValue(25),
		"Accepted": rulebook.BoolValue(true),
	})
	require.Empty(t, full.Errors)
	assert.Equal(t, rulebook.BoolValue(true), full.Values["TopAnswer"])

	// a null link anywhere in the chain drags the conjunction to false
	missingVotes := ev.Row(rulebook.Row{
		"Text":     rulebook.StringValue("use a map"),
		"Accepted": rulebook.BoolValue(true),
	})
	require.Empty(t, missingVotes.Errors)
	assert.Equal(t, rulebook.BoolValue(false), missingVotes.Values["Popular"])
	assert.Equal(t, rulebook.BoolValue(false), missingVotes.Values["TopAnswer"])

	notAccepted := ev.Row(rulebook.Row{
		"Text":  rulebook.StringValue("use a map"),
		"Votes": rulebook.IntValue(25),
	})
	require.Empty(t, notAccepted.Errors)
	assert.Equal(t, rulebook.BoolValue(false), notAccepted.Values["TopAnswer"])
}
