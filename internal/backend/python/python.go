// Package python emits dynamic Python source for a table plan: one
// function per derived field over a dict record, plus a compute_all
// walking the evaluation order. Null handling follows the `is True`
// discipline so None never leaks into a boolean result.
package python

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldbook-labs/fieldbook/internal/backend"
	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

var knownCalls = map[string]bool{
	"LOWER": true, "UPPER": true, "TEXT": true, "FIND": true, "ISBLANK": true,
}

// Backend emits Python source.
type Backend struct{}

// New creates the Python source backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the registry key.
func (b *Backend) Name() string { return "python" }

// Supports reports the constructs the emitter translates.
func (b *Backend) Supports(kind formula.NodeKind) bool {
	return kind != formula.KindLiteralFloat
}

// Compile generates one Python source artifact for the plan.
func (b *Backend) Compile(p *plan.Plan) (*backend.Result, error) {
	unsupported := backend.CheckSupport(b, p)
	backend.MarkUnknownCalls(b.Name(), p, knownCalls, unsupported)
	fields := backend.EmittedFields(p, unsupported)

	g := &generator{plan: p}
	src := g.generate(fields)

	return &backend.Result{
		Backend: b.Name(),
		Artifacts: []backend.Artifact{{
			Name:     snake(p.Table.Name) + "_calc.py",
			Contents: []byte(src),
		}},
		Unsupported: unsupported,
	}, nil
}

type generator struct {
	plan *plan.Plan
}

func (g *generator) generate(fields []string) string {
	var out strings.Builder
	out.WriteString("# Code generated by fieldbook. Do not edit.\n\n\n")

	out.WriteString("def _text(v):\n")
	out.WriteString("    if v is None:\n        return \"\"\n")
	out.WriteString("    if v is True:\n        return \"true\"\n")
	out.WriteString("    if v is False:\n        return \"false\"\n")
	out.WriteString("    return str(v)\n\n\n")

	for _, field := range fields {
		f, _ := g.plan.Table.Field(field)
		fmt.Fprintf(&out, "def calc_%s(record):\n", snake(field))
		fmt.Fprintf(&out, "    \"\"\"Compute the %s field.\"\"\"\n", field)
		fmt.Fprintf(&out, "    return %s\n\n\n", g.expr(g.plan.ASTs[field], f.Type))
	}

	out.WriteString("COMPUTE_ORDER = [\n")
	for _, field := range fields {
		fmt.Fprintf(&out, "    %s,\n", pyStr(field))
	}
	out.WriteString("]\n\n\n")

	out.WriteString("def compute_all(record):\n")
	out.WriteString("    \"\"\"Compute every derived field, dependencies first.\"\"\"\n")
	for _, field := range fields {
		fmt.Fprintf(&out, "    record[%s] = calc_%s(record)\n", pyStr(field), snake(field))
	}
	if len(fields) == 0 {
		out.WriteString("    pass\n")
	} else {
		out.WriteString("    return record\n")
	}
	return out.String()
}

func (g *generator) expr(n formula.Node, t rulebook.FieldType) string {
	if t == rulebook.TypeBool {
		return g.boolExpr(n)
	}
	return g.valueExpr(n)
}

// boolExpr renders an expression that is always a Python bool; a None
// in boolean position reads as False.
func (g *generator) boolExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralBool:
		if e.Value {
			return "True"
		}
		return "False"
	case *formula.FieldRef:
		f, _ := g.plan.Table.Field(e.Name)
		if f.Origin == rulebook.OriginDerived {
			return fmt.Sprintf("calc_%s(record)", snake(e.Name))
		}
		return fmt.Sprintf("(record.get(%s) is True)", pyStr(e.Name))
	case *formula.Compare:
		return g.compareExpr(e)
	case *formula.Logical:
		return g.logicalExpr(e)
	case *formula.If:
		els := "False"
		if e.Else != nil {
			els = g.boolExpr(e.Else)
		}
		return fmt.Sprintf("(%s if %s else %s)", g.boolExpr(e.Then), g.boolExpr(e.Cond), els)
	case *formula.Call:
		if e.Name == "ISBLANK" {
			return g.isBlankExpr(e.Args[0])
		}
	}
	// non-boolean values are never truthy
	return "False"
}

func (g *generator) compareExpr(e *formula.Compare) string {
	lt := g.plan.TypeOf(e.Left)
	rt := g.plan.TypeOf(e.Right)
	if lt != rt {
		return "False"
	}
	if lt == rulebook.TypeBool {
		// a None side makes the comparison false, so compare the raw
		// values rather than collapsed booleans
		op := "=="
		if e.Op == formula.OpNe {
			op = "!="
		} else if e.Op != formula.OpEq {
			return "False"
		}
		left := g.nullableBoolExpr(e.Left)
		right := g.nullableBoolExpr(e.Right)
		var guards []string
		if nullable(e.Left) {
			guards = append(guards, left+" is not None")
		}
		if nullable(e.Right) {
			guards = append(guards, right+" is not None")
		}
		guards = append(guards, fmt.Sprintf("%s %s %s", left, op, right))
		return "(" + strings.Join(guards, " and ") + ")"
	}

	op := map[formula.CompareOp]string{
		formula.OpEq: "==", formula.OpNe: "!=",
		formula.OpLt: "<", formula.OpLe: "<=",
		formula.OpGt: ">", formula.OpGe: ">=",
	}[e.Op]
	left := g.valueExpr(e.Left)
	right := g.valueExpr(e.Right)

	var guards []string
	if nullable(e.Left) {
		guards = append(guards, left+" is not None")
	}
	if nullable(e.Right) {
		guards = append(guards, right+" is not None")
	}
	guards = append(guards, fmt.Sprintf("%s %s %s", left, op, right))
	return "(" + strings.Join(guards, " and ") + ")"
}

// nullable reports whether an expression can produce None: field reads
// and conditionals can, everything else always yields a value.
func nullable(n formula.Node) bool {
	switch n.Kind() {
	case formula.KindFieldRef, formula.KindIf:
		return true
	}
	return false
}

func (g *generator) logicalExpr(e *formula.Logical) string {
	if e.Op == formula.OpNot {
		return fmt.Sprintf("(not %s)", g.boolExpr(e.Operands[0]))
	}
	op := " and "
	if e.Op == formula.OpOr {
		op = " or "
	}
	parts := make([]string, len(e.Operands))
	for i, operand := range e.Operands {
		parts[i] = g.boolExpr(operand)
	}
	return "(" + strings.Join(parts, op) + ")"
}

// nullableBoolExpr keeps None visible for raw boolean reads.
func (g *generator) nullableBoolExpr(n formula.Node) string {
	if ref, ok := n.(*formula.FieldRef); ok {
		if f, found := g.plan.Table.Field(ref.Name); found && f.Origin == rulebook.OriginRaw {
			return fmt.Sprintf("record.get(%s)", pyStr(ref.Name))
		}
	}
	return g.boolExpr(n)
}

func (g *generator) isBlankExpr(arg formula.Node) string {
	v := g.valueExpr(arg)
	switch g.plan.TypeOf(arg) {
	case rulebook.TypeInt:
		return fmt.Sprintf("(%s is None)", v)
	case rulebook.TypeString:
		return fmt.Sprintf("(%s is None or %s == \"\")", v, v)
	default:
		return "False"
	}
}

// valueExpr renders an expression that may be None.
func (g *generator) valueExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralBool:
		return g.boolExpr(n)
	case *formula.LiteralInt:
		return strconv.FormatInt(e.Value, 10)
	case *formula.LiteralString:
		return pyStr(e.Value)
	case *formula.FieldRef:
		f, _ := g.plan.Table.Field(e.Name)
		if f.Origin == rulebook.OriginDerived {
			return fmt.Sprintf("calc_%s(record)", snake(e.Name))
		}
		if f.Type == rulebook.TypeBool {
			return g.boolExpr(n)
		}
		return fmt.Sprintf("record.get(%s)", pyStr(e.Name))
	case *formula.Compare, *formula.Logical:
		return g.boolExpr(n)
	case *formula.If:
		t := g.plan.TypeOf(e.Then)
		els := pyZero(t)
		if e.Else != nil {
			els = g.expr(e.Else, t)
		}
		return fmt.Sprintf("(%s if %s else %s)", g.expr(e.Then, t), g.boolExpr(e.Cond), els)
	case *formula.Concat:
		parts := make([]string, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = g.textExpr(p)
		}
		return "(" + strings.Join(parts, " + ") + ")"
	case *formula.Call:
		switch e.Name {
		case "LOWER":
			return fmt.Sprintf("%s.lower()", g.textExpr(e.Args[0]))
		case "UPPER":
			return fmt.Sprintf("%s.upper()", g.textExpr(e.Args[0]))
		case "TEXT":
			return g.textExpr(e.Args[0])
		case "FIND":
			return fmt.Sprintf("(%s.find(%s) + 1)", g.textExpr(e.Args[1]), g.textExpr(e.Args[0]))
		case "ISBLANK":
			return g.isBlankExpr(e.Args[0])
		}
	}
	return "None"
}

// textExpr coerces to text the way concatenation does.
func (g *generator) textExpr(n formula.Node) string {
	if lit, ok := n.(*formula.LiteralString); ok {
		return pyStr(lit.Value)
	}
	// a None boolean must coerce to "", not "false"
	if g.plan.TypeOf(n) == rulebook.TypeBool {
		return fmt.Sprintf("_text(%s)", g.nullableBoolExpr(n))
	}
	return fmt.Sprintf("_text(%s)", g.valueExpr(n))
}

// pyZero is the typed zero an IF without an else falls back to.
func pyZero(t rulebook.FieldType) string {
	switch t {
	case rulebook.TypeBool:
		return "False"
	case rulebook.TypeInt:
		return "0"
	default:
		return `""`
	}
}

// pyStr renders a Python double-quoted string literal.
func pyStr(s string) string {
	return strconv.Quote(s)
}

// snake converts a field name to snake_case: "TopAnswer" -> "top_answer".
func snake(name string) string {
	var out strings.Builder
	prevLower := false
	for _, r := range name {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if out.Len() > 0 && !strings.HasSuffix(out.String(), "_") {
				out.WriteByte('_')
			}
			prevLower = false
		case r >= 'A' && r <= 'Z':
			if prevLower {
				out.WriteByte('_')
			}
			out.WriteRune(r - 'A' + 'a')
			prevLower = false
		default:
			out.WriteRune(r)
			prevLower = r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		}
	}
	if out.Len() == 0 {
		return "field"
	}
	return out.String()
}
