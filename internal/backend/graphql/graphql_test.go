package graphql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

func compile(t *testing.T, table *rulebook.Table) (schema, resolvers string) {
	t.Helper()
	p, err := plan.Build(table)
	require.NoError(t, err)

	res, err := New().Compile(p)
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 2)
	return string(res.Artifacts[0].Contents), string(res.Artifacts[1].Contents)
}

func answersTable() *rulebook.Table {
	return &rulebook.Table{
		Name: "Answers",
		Fields: []rulebook.FieldDefinition{
			{Name: "Text", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
			{Name: "Votes", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "Accepted", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
			{Name: "HasText", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `=NOT(ISBLANK({{Text}}))`},
			{Name: "TopAnswer", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `=AND({{HasText}}, {{Votes}} >= 10, {{Accepted}})`},
		},
	}
}

func TestCompileEmitsSchema(t *testing.T) {
	schema, _ := compile(t, answersTable())

	assert.Contains(t, schema, "type Answers {")
	// raw fields stay nullable
	assert.Contains(t, schema, "text: String\n")
	assert.Contains(t, schema, "votes: Int\n")
	assert.Contains(t, schema, "accepted: Boolean\n")
	// a derived boolean can never be null
	assert.Contains(t, schema, "hasText: Boolean!")
	assert.Contains(t, schema, "topAnswer: Boolean!")
}

func TestCompileEmitsResolvers(t *testing.T) {
	_, resolvers := compile(t, answersTable())

	assert.Contains(t, resolvers, "const calcHasText = (record) =>")
	assert.Contains(t, resolvers, "const calcTopAnswer = (record) =>")
	// raw boolean reads carry the `=== true` discipline
	assert.Contains(t, resolvers, `(record["Accepted"] === true)`)
	// null comparison guard
	assert.Contains(t, resolvers, `(record["Votes"] ?? null) != null`)
	// derived reference calls the sibling function
	assert.Contains(t, resolvers, "calcHasText(record)")
	// resolver map wires every derived field
	assert.Contains(t, resolvers, "const resolvers = {")
	assert.Contains(t, resolvers, "hasText: (record) => calcHasText(record),")
	assert.Contains(t, resolvers, "module.exports = resolvers;")
}

func TestCompileConcatUsesTextCoercion(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "Adjective", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
			{Name: "Title", Type: rulebook.TypeString, Origin: rulebook.OriginDerived,
				Formula: `="Is " & {{Adjective}} & " a language?"`},
		},
	}
	_, resolvers := compile(t, table)

	assert.Contains(t, resolvers, "const text = (v) =>")
	assert.Contains(t, resolvers, `("Is " + text((record["Adjective"] ?? null)) + " a language?")`)
}

func TestCompileIfAndBuiltins(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "S", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
			{Name: "Ok", Type: rulebook.TypeBool, Origin: rulebook.OriginRaw},
			{Name: "Label", Type: rulebook.TypeString, Origin: rulebook.OriginDerived,
				Formula: `IF({{Ok}}, LOWER({{S}}))`},
			{Name: "Pos", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived,
				Formula: `FIND("x", {{S}})`},
		},
	}
	_, resolvers := compile(t, table)

	// the missing else falls back to the typed zero
	assert.Contains(t, resolvers, `((record["Ok"] === true) ?`)
	assert.Contains(t, resolvers, `: "")`)
	assert.Contains(t, resolvers, ".toLowerCase()")
	assert.Contains(t, resolvers, ".indexOf(")
	assert.Contains(t, resolvers, "+ 1)")
}

func TestCompileSkipsUnknownCalls(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "A", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "Weird", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived,
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
	schema := string(res.Artifacts[0].Contents)
	resolvers := string(res.Artifacts[1].Contents)
	assert.NotContains(t, schema, "weird:")
	assert.NotContains(t, resolvers, "calcWeird")
	assert.Contains(t, resolvers, "calcFine")
}

func TestCompileIsIdempotent(t *testing.T) {
	s1, r1 := compile(t, answersTable())
	s2, r2 := compile(t, answersTable())
	assert.Equal(t, s1, s2)
	assert.Equal(t, r1, r2)
}
