// Package plan turns a table's derived-field formulas into a compilation
// plan: parsed ASTs, the field dependency graph, and the evaluation
// order every backend shares.
package plan

import (
	"fmt"

	"github.com/fieldbook-labs/fieldbook/internal/dag"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// Plan is the compiled form of one table. It is read-only after Build
// and safe to hand to backends running concurrently.
type Plan struct {
	Table *rulebook.Table
	// ASTs holds the parsed formula for each derived field.
	ASTs map[string]formula.Node
	// Graph has a node per field; edges run referenced -> referencing.
	Graph *dag.Graph
	// Order lists the derived fields in evaluation order: dependencies
	// first, schema order breaking ties.
	Order []string
}

// Build parses every derived formula in the table, resolves references,
// and schedules computation. Any syntax error, unknown reference, or
// dependency cycle fails the whole table.
func Build(table *rulebook.Table) (*Plan, error) {
	p := &Plan{
		Table: table,
		ASTs:  make(map[string]formula.Node),
		Graph: dag.New(),
	}

	for rank, f := range table.Fields {
		p.Graph.AddNode(f.Name, rank)
	}

	for _, f := range table.DerivedFields() {
		ast, err := formula.Parse(f.Formula)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		p.ASTs[f.Name] = ast

		for _, ref := range formula.FieldReferences(ast) {
			if !p.Graph.Has(ref) {
				return nil, &UnknownFieldError{Name: ref, ReferencingField: f.Name}
			}
			if err := p.Graph.AddEdge(ref, f.Name); err != nil {
				return nil, err
			}
		}
	}

	if members := p.Graph.CycleMembers(); len(members) > 0 {
		return nil, &CyclicDependencyError{Members: members}
	}

	order, err := p.Graph.TopologicalSort()
	if err != nil {
		return nil, err
	}
	for _, name := range order {
		if _, derived := p.ASTs[name]; derived {
			p.Order = append(p.Order, name)
		}
	}
	return p, nil
}

// Dependencies returns the fields a derived field's formula reads.
func (p *Plan) Dependencies(field string) []string {
	ast, ok := p.ASTs[field]
	if !ok {
		return nil
	}
	return formula.FieldReferences(ast)
}

// Levels groups the derived fields by dependency depth relative to each
// other: level 0 reads only raw fields, level N reads levels below it.
func (p *Plan) Levels() ([][]string, error) {
	all, err := p.Graph.Levels()
	if err != nil {
		return nil, err
	}
	var levels [][]string
	for _, level := range all {
		var derived []string
		for _, name := range level {
			if _, ok := p.ASTs[name]; ok {
				derived = append(derived, name)
			}
		}
		if len(derived) > 0 {
			levels = append(levels, derived)
		}
	}
	return levels, nil
}
