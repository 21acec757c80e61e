// Package eval is the canonical evaluator for derived fields. Every
// backend's generated code is graded against what this package computes.
package eval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// UnknownFunctionError reports a call to a function the evaluator does
// not implement. Only the field whose formula makes the call fails.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %s", e.Name)
}

// Result holds one row's computed values. Errors maps a derived field
// name to why it stayed uncomputed; dependents of a failed field read
// it as null.
type Result struct {
	Values rulebook.Row
	Errors map[string]error
}

// Evaluator computes derived fields for a single plan.
type Evaluator struct {
	plan *plan.Plan
}

// New creates an evaluator for the plan.
func New(p *plan.Plan) *Evaluator {
	return &Evaluator{plan: p}
}

// Row computes every derived field for one row of raw values, walking
// the evaluation order so each formula sees its dependencies already
// computed.
func (e *Evaluator) Row(raw rulebook.Row) Result {
	values := make(rulebook.Row, len(raw)+len(e.plan.Order))
	for k, v := range raw {
		values[k] = v
	}
	errs := make(map[string]error)

	for _, name := range e.plan.Order {
		v, err := e.eval(values, e.plan.ASTs[name])
		if err != nil {
			errs[name] = err
			continue
		}

		f, _ := e.plan.Table.Field(name)
		v, err = produce(f, v)
		if err != nil {
			errs[name] = err
			continue
		}
		values[name] = v
	}
	return Result{Values: values, Errors: errs}
}

// Table computes every row of the plan's table.
func (e *Evaluator) Table() []Result {
	results := make([]Result, len(e.plan.Table.Rows))
	for i, row := range e.plan.Table.Rows {
		results[i] = e.Row(row)
	}
	return results
}

// produce finalizes a derived value against its field definition: a
// null boolean collapses to false, and a non-null value must match the
// declared type.
func produce(f rulebook.FieldDefinition, v rulebook.Value) (rulebook.Value, error) {
	if v.IsNull() {
		if f.Type == rulebook.TypeBool {
			return rulebook.BoolValue(false), nil
		}
		return v, nil
	}
	if v.Kind != f.Type.ValueKind() {
		return v, fmt.Errorf("formula produced %s, field declared %s", v.Kind, f.Type)
	}
	return v, nil
}

func (e *Evaluator) eval(values rulebook.Row, n formula.Node) (rulebook.Value, error) {
	switch node := n.(type) {
	case *formula.LiteralBool:
		return rulebook.BoolValue(node.Value), nil
	case *formula.LiteralInt:
		return rulebook.IntValue(node.Value), nil
	case *formula.LiteralFloat:
		return rulebook.Null(), fmt.Errorf("float literals are not evaluable")
	case *formula.LiteralString:
		return rulebook.StringValue(node.Value), nil

	case *formula.FieldRef:
		// absent key and explicit null read the same
		return values[node.Name], nil

	case *formula.Compare:
		return e.evalCompare(values, node)
	case *formula.Logical:
		return e.evalLogical(values, node)
	case *formula.If:
		return e.evalIf(values, node)
	case *formula.Concat:
		return e.evalConcat(values, node)
	case *formula.Call:
		return e.evalCall(values, node)
	}
	return rulebook.Null(), fmt.Errorf("unexpected node %s", n.Kind())
}

// evalCompare applies the null rules first: a null on either side makes
// every comparison false, including <>. Then mismatched kinds are
// false, strings compare ordinally, ints numerically.
func (e *Evaluator) evalCompare(values rulebook.Row, node *formula.Compare) (rulebook.Value, error) {
	left, err := e.eval(values, node.Left)
	if err != nil {
		return rulebook.Null(), err
	}
	right, err := e.eval(values, node.Right)
	if err != nil {
		return rulebook.Null(), err
	}

	if left.IsNull() || right.IsNull() {
		return rulebook.BoolValue(false), nil
	}
	if left.Kind != right.Kind {
		return rulebook.BoolValue(false), nil
	}

	switch node.Op {
	case formula.OpEq:
		return rulebook.BoolValue(left.Equal(right)), nil
	case formula.OpNe:
		return rulebook.BoolValue(!left.Equal(right)), nil
	}

	var cmp int
	switch left.Kind {
	case rulebook.KindInt:
		switch {
		case left.Int < right.Int:
			cmp = -1
		case left.Int > right.Int:
			cmp = 1
		}
	case rulebook.KindString:
		cmp = strings.Compare(left.Str, right.Str)
	case rulebook.KindBool:
		// ordering booleans has no meaning
		return rulebook.BoolValue(false), nil
	}

	switch node.Op {
	case formula.OpLt:
		return rulebook.BoolValue(cmp < 0), nil
	case formula.OpLe:
		return rulebook.BoolValue(cmp <= 0), nil
	case formula.OpGt:
		return rulebook.BoolValue(cmp > 0), nil
	case formula.OpGe:
		return rulebook.BoolValue(cmp >= 0), nil
	}
	return rulebook.Null(), fmt.Errorf("unexpected comparison %q", node.Op)
}

// evalLogical folds truthiness: only a true boolean counts. All
// operands are evaluated; errors surface even past a decided result.
func (e *Evaluator) evalLogical(values rulebook.Row, node *formula.Logical) (rulebook.Value, error) {
	truths := make([]bool, len(node.Operands))
	for i, op := range node.Operands {
		v, err := e.eval(values, op)
		if err != nil {
			return rulebook.Null(), err
		}
		truths[i] = truthy(v)
	}

	switch node.Op {
	case formula.OpNot:
		return rulebook.BoolValue(!truths[0]), nil
	case formula.OpAnd:
		for _, t := range truths {
			if !t {
				return rulebook.BoolValue(false), nil
			}
		}
		return rulebook.BoolValue(true), nil
	case formula.OpOr:
		for _, t := range truths {
			if t {
				return rulebook.BoolValue(true), nil
			}
		}
		return rulebook.BoolValue(false), nil
	}
	return rulebook.Null(), fmt.Errorf("unexpected combinator %q", node.Op)
}

// evalIf takes the then branch when the condition is a true boolean.
// A missing else yields the zero of the then branch's inferred type.
func (e *Evaluator) evalIf(values rulebook.Row, node *formula.If) (rulebook.Value, error) {
	cond, err := e.eval(values, node.Cond)
	if err != nil {
		return rulebook.Null(), err
	}
	if truthy(cond) {
		return e.eval(values, node.Then)
	}
	if node.Else != nil {
		return e.eval(values, node.Else)
	}
	return plan.ZeroValue(e.plan.TypeOf(node.Then)), nil
}

// evalConcat coerces each part to text and joins left to right.
func (e *Evaluator) evalConcat(values rulebook.Row, node *formula.Concat) (rulebook.Value, error) {
	var out strings.Builder
	for _, part := range node.Parts {
		v, err := e.eval(values, part)
		if err != nil {
			return rulebook.Null(), err
		}
		out.WriteString(text(v))
	}
	return rulebook.StringValue(out.String()), nil
}

func (e *Evaluator) evalCall(values rulebook.Row, node *formula.Call) (rulebook.Value, error) {
	args := make([]rulebook.Value, len(node.Args))
	for i, a := range node.Args {
		v, err := e.eval(values, a)
		if err != nil {
			return rulebook.Null(), err
		}
		args[i] = v
	}

	argc := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d arguments, got %d", node.Name, n, len(args))
		}
		return nil
	}

	switch node.Name {
	case "LOWER":
		if err := argc(1); err != nil {
			return rulebook.Null(), err
		}
		return rulebook.StringValue(strings.ToLower(text(args[0]))), nil
	case "UPPER":
		if err := argc(1); err != nil {
			return rulebook.Null(), err
		}
		return rulebook.StringValue(strings.ToUpper(text(args[0]))), nil
	case "TEXT":
		if err := argc(1); err != nil {
			return rulebook.Null(), err
		}
		return rulebook.StringValue(text(args[0])), nil
	case "FIND":
		if err := argc(2); err != nil {
			return rulebook.Null(), err
		}
		// 1-based position, 0 when absent
		idx := strings.Index(text(args[1]), text(args[0]))
		return rulebook.IntValue(int64(idx + 1)), nil
	case "ISBLANK":
		if err := argc(1); err != nil {
			return rulebook.Null(), err
		}
		blank := args[0].IsNull() ||
			(args[0].Kind == rulebook.KindString && args[0].Str == "")
		return rulebook.BoolValue(blank), nil
	}
	return rulebook.Null(), &UnknownFunctionError{Name: node.Name}
}

// truthy reports whether a value is a true boolean. Everything else,
// null included, is false.
func truthy(v rulebook.Value) bool {
	return v.Kind == rulebook.KindBool && v.Bool
}

// text coerces a value for concatenation and string builtins: null
// becomes empty, booleans become "true"/"false", ints their decimal
// form.
func text(v rulebook.Value) string {
	switch v.Kind {
	case rulebook.KindNull:
		return ""
	case rulebook.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case rulebook.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case rulebook.KindString:
		return v.Str
	}
	return ""
}
