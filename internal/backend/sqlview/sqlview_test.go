package sqlview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook-labs/fieldbook/internal/eval"
	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

func answersTable() *rulebook.Table {
	return &rulebook.Table{
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
			{Name: "Summary", Type: rulebook.TypeString, Origin: rulebook.OriginDerived,
				Formula: `=LOWER({{Text}}) & " (" & {{Votes}} & ")"`},
		},
		Rows: []rulebook.Row{
			{
				"Text":     rulebook.StringValue("Use A Map"),
				"Votes":    rulebook.IntValue(25),
				"Accepted": rulebook.BoolValue(true),
			},
			{
				"Text":     rulebook.StringValue("try linear scan"),
				"Votes":    rulebook.IntValue(3),
				"Accepted": rulebook.BoolValue(false),
			},
			{
				// all nulls
			},
			{
				"Text":  rulebook.StringValue("accepted missing"),
				"Votes": rulebook.IntValue(50),
			},
		},
	}
}

func compileView(t *testing.T, table *rulebook.Table) (*plan.Plan, string) {
	t.Helper()
	p, err := plan.Build(table)
	require.NoError(t, err)

	res, err := New().Compile(p)
	require.NoError(t, err)
	require.Empty(t, res.Unsupported)
	require.Len(t, res.Artifacts, 1)
	return p, string(res.Artifacts[0].Contents)
}

func TestCompileLayersTiers(t *testing.T) {
	_, sql := compileView(t, answersTable())

	assert.Contains(t, sql, `CREATE VIEW "answers_derived" AS`)
	assert.Contains(t, sql, "tier0 AS (")
	assert.Contains(t, sql, "tier1 AS (")
	assert.Contains(t, sql, `AS "TopAnswer"`)
	// the second tier builds on the first, not on the base table
	assert.Contains(t, sql, "FROM tier0")
}

func TestCompileIsIdempotent(t *testing.T) {
	table := answersTable()
	_, sql1 := compileView(t, table)
	_, sql2 := compileView(t, table)
	assert.Equal(t, sql1, sql2)
}

func TestViewMatchesOracle(t *testing.T) {
	table := answersTable()
	p, sql := compileView(t, table)

	got, err := Execute(p, sql)
	require.NoError(t, err)
	require.Len(t, got, len(table.Rows))

	ev := eval.New(p)
	for i, raw := range table.Rows {
		want := ev.Row(raw)
		require.Empty(t, want.Errors, "row %d", i)
		for _, field := range p.Order {
			assert.True(t, want.Values[field].Equal(got[i][field]),
				"row %d field %s: oracle %v, view %v", i, field, want.Values[field], got[i][field])
		}
	}
}

func TestViewNullConcatKeepsDoubleSpace(t *testing.T) {
	table := &rulebook.Table{
		Name: "Questions",
		Fields: []rulebook.FieldDefinition{
			{Name: "Adjective", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
			{Name: "Title", Type: rulebook.TypeString, Origin: rulebook.OriginDerived,
				Formula: `="Is " & {{Adjective}} & " a language?"`},
		},
		Rows: []rulebook.Row{{}},
	}
	p, sql := compileView(t, table)

	got, err := Execute(p, sql)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rulebook.StringValue("Is  a language?"), got[0]["Title"])
}

func TestViewNullComparisonsAndBlankTests(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "N", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "NotEqual", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `{{N}} <> 5`},
			{Name: "Blank", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `ISBLANK({{N}})`},
			{Name: "Position", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived,
				Formula: `FIND("an", "banana")`},
		},
		Rows: []rulebook.Row{
			{},
			{"N": rulebook.IntValue(7)},
		},
	}
	p, sql := compileView(t, table)

	got, err := Execute(p, sql)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// null <> 5 is still false; ISBLANK sees the absence
	assert.Equal(t, rulebook.BoolValue(false), got[0]["NotEqual"])
	assert.Equal(t, rulebook.BoolValue(true), got[0]["Blank"])
	assert.Equal(t, rulebook.BoolValue(true), got[1]["NotEqual"])
	assert.Equal(t, rulebook.BoolValue(false), got[1]["Blank"])
	assert.Equal(t, rulebook.IntValue(2), got[0]["Position"])
}

func TestCompileSkipsUnknownFunctions(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "A", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "Weird", Type: rulebook.TypeString, Origin: rulebook.OriginDerived,
				Formula: `MYSTERY({{A}})`},
			{Name: "Fine", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `{{A}} > 0`},
		},
	}
	p, err := plan.Build(table)
	require.NoError(t, err)

	res, err := New().Compile(p)
	require.NoError(t, err)
	require.Contains(t, res.Unsupported, "Weird")
	assert.NotContains(t, res.Unsupported, "Fine")

	sql := string(res.Artifacts[0].Contents)
	assert.NotContains(t, sql, "Weird")
	assert.Contains(t, sql, `"Fine"`)
}
