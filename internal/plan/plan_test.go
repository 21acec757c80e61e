package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

func answerTable() *rulebook.Table {
	return &rulebook.Table{
		Name: "Answers",
		Fields: []rulebook.FieldDefinition{
			{Name: "Text", Type: rulebook.TypeString, Origin: rulebook.OriginRaw},
			{Name: "Votes", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{
				Name: "HasText", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `=NOT(ISBLANK({{Text}}))`,
			},
			{
				Name: "Popular", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `={{Votes}} >= 10`,
			},
			{
				Name: "TopAnswer", Type: rulebook.TypeBool, Origin: rulebook.OriginDerived,
				Formula: `=AND({{HasText}}, {{Popular}})`,
			},
		},
	}
}

func TestBuildOrdersDependenciesFirst(t *testing.T) {
	p, err := Build(answerTable())
	require.NoError(t, err)

	assert.Equal(t, []string{"HasText", "Popular", "TopAnswer"}, p.Order)
	assert.Equal(t, []string{"HasText", "Popular"}, p.Dependencies("TopAnswer"))
	require.Contains(t, p.ASTs, "TopAnswer")
}

func TestBuildTieBreaksBySchemaOrder(t *testing.T) {
	// Zed and Alpha are independent; Zed is declared first and must
	// stay first in the evaluation order.
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "X", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
			{Name: "Zed", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived, Formula: `{{X}}`},
			{Name: "Alpha", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived, Formula: `{{X}}`},
		},
	}
	p, err := Build(table)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zed", "Alpha"}, p.Order)
}

func TestBuildUnknownField(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "A", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived, Formula: `{{Nope}}`},
		},
	}
	_, err := Build(table)
	require.Error(t, err)

	var unknown *UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Nope", unknown.Name)
	assert.Equal(t, "A", unknown.ReferencingField)
}

func TestBuildCycleNamesEveryMember(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "A", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived, Formula: `{{C}}`},
			{Name: "B", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived, Formula: `{{A}}`},
			{Name: "C", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived, Formula: `{{B}}`},
		},
	}
	_, err := Build(table)
	require.Error(t, err)

	var cyclic *CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, cyclic.Members)
}

func TestBuildSelfReferenceIsACycle(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "A", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived, Formula: `{{A}}`},
		},
	}
	_, err := Build(table)
	var cyclic *CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
	assert.Equal(t, []string{"A"}, cyclic.Members)
}

func TestBuildSyntaxErrorNamesField(t *testing.T) {
	table := &rulebook.Table{
		Name: "T",
		Fields: []rulebook.FieldDefinition{
			{Name: "Bad", Type: rulebook.TypeInt, Origin: rulebook.OriginDerived, Formula: `{{X}} +`},
			{Name: "X", Type: rulebook.TypeInt, Origin: rulebook.OriginRaw},
		},
	}
	_, err := Build(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Bad"`)

	var syn *formula.SyntaxError
	assert.ErrorAs(t, err, &syn)
}

func TestLevels(t *testing.T) {
	p, err := Build(answerTable())
	require.NoError(t, err)

	levels, err := p.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"HasText", "Popular"}, {"TopAnswer"}}, levels)
}

func TestTypeOf(t *testing.T) {
	p, err := Build(answerTable())
	require.NoError(t, err)

	tests := []struct {
		src  string
		want rulebook.FieldType
	}{
		{`{{Votes}}`, rulebook.TypeInt},
		{`{{Text}}`, rulebook.TypeString},
		{`{{Votes}} > 3`, rulebook.TypeBool},
		{`{{Text}} & "!"`, rulebook.TypeString},
		{`IF({{HasText}}, 1)`, rulebook.TypeInt},
		{`IF({{HasText}}, {{Text}})`, rulebook.TypeString},
		{`ISBLANK({{Text}})`, rulebook.TypeBool},
		{`FIND("a", {{Text}})`, rulebook.TypeInt},
		{`LOWER({{Text}})`, rulebook.TypeString},
	}
	for _, tt := range tests {
		ast, err := formula.Parse(tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, p.TypeOf(ast), tt.src)
	}
}
