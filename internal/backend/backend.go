// Package backend defines the code-generation framework: the Backend
// interface every emitter implements, the artifact and result types,
// and the shared construct-support check.
package backend

import (
	"fmt"

	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
)

// Backend compiles a table plan into generated source for one target
// style. Implementations must be safe for concurrent Compile calls on
// distinct plans; a plan is read-only.
type Backend interface {
	// Name is the registry key, e.g. "golang" or "sqlview".
	Name() string

	// Supports reports whether the backend can emit the construct.
	Supports(kind formula.NodeKind) bool

	// Compile generates the backend's artifact for the plan. Fields
	// using unsupported constructs are skipped and reported in the
	// result; they never fail the other fields.
	Compile(p *plan.Plan) (*Result, error)
}

// Artifact is one generated output file.
type Artifact struct {
	// Name is the suggested file name, e.g. "answers_view.sql".
	Name     string
	Contents []byte
}

// Result is the outcome of compiling one plan with one backend.
type Result struct {
	Backend   string
	Artifacts []Artifact
	// Unsupported maps skipped derived fields to the reason.
	Unsupported map[string]*UnsupportedConstructError
}

// UnsupportedConstructError reports a formula construct a backend
// cannot express. It fails only the one field on the one backend.
type UnsupportedConstructError struct {
	Backend string
	Field   string
	Kind    formula.NodeKind
}

func (e *UnsupportedConstructError) Error() string {
	return fmt.Sprintf("backend %s: field %q uses unsupported construct: %s",
		e.Backend, e.Field, e.Kind)
}

// CheckSupport walks every derived field's AST and returns the fields
// the backend must skip, keyed by field name. Emitters call this first
// and generate code only for the remaining fields.
func CheckSupport(b Backend, p *plan.Plan) map[string]*UnsupportedConstructError {
	unsupported := make(map[string]*UnsupportedConstructError)
	for _, field := range p.Order {
		ast := p.ASTs[field]
		formula.Walk(ast, func(n formula.Node) {
			if _, seen := unsupported[field]; seen {
				return
			}
			if !b.Supports(n.Kind()) {
				unsupported[field] = &UnsupportedConstructError{
					Backend: b.Name(),
					Field:   field,
					Kind:    n.Kind(),
				}
			}
		})
	}
	return unsupported
}

// MarkUnknownCalls adds fields whose formulas call functions outside a
// backend's known set. Call nodes parse freely, so rejection happens
// here, per backend and per field.
func MarkUnknownCalls(name string, p *plan.Plan, known map[string]bool,
	unsupported map[string]*UnsupportedConstructError) {
	for _, field := range p.Order {
		if _, done := unsupported[field]; done {
			continue
		}
		formula.Walk(p.ASTs[field], func(n formula.Node) {
			if _, done := unsupported[field]; done {
				return
			}
			if call, ok := n.(*formula.Call); ok && !known[call.Name] {
				unsupported[field] = &UnsupportedConstructError{
					Backend: name, Field: field, Kind: formula.KindCall,
				}
			}
		})
	}
}

// EmittedFields returns the derived fields the backend will actually
// generate, in evaluation order: a field is dropped if it is itself
// unsupported or depends on a dropped field.
func EmittedFields(p *plan.Plan, unsupported map[string]*UnsupportedConstructError) []string {
	dropped := make(map[string]bool, len(unsupported))
	for field := range unsupported {
		dropped[field] = true
	}

	var fields []string
	for _, field := range p.Order {
		if dropped[field] {
			continue
		}
		usable := true
		for _, dep := range p.Dependencies(field) {
			if dropped[dep] {
				usable = false
				break
			}
		}
		if !usable {
			dropped[field] = true
			continue
		}
		fields = append(fields, field)
	}
	return fields
}
