// Package graphql emits a graph-resolver rendition of a table plan:
// an SDL type whose derived fields are non-null where the semantics
// guarantee a value, plus a JavaScript resolver per derived field with
// the `=== true` null discipline.
package graphql

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

// Backend emits GraphQL SDL and JS resolvers.
type Backend struct{}

// New creates the GraphQL backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the registry key.
func (b *Backend) Name() string { return "graphql" }

// Supports reports the constructs the emitter translates.
func (b *Backend) Supports(kind formula.NodeKind) bool {
	return kind != formula.KindLiteralFloat
}

// Compile generates the schema and resolver artifacts for the plan.
func (b *Backend) Compile(p *plan.Plan) (*backend.Result, error) {
	unsupported := backend.CheckSupport(b, p)
	backend.MarkUnknownCalls(b.Name(), p, knownCalls, unsupported)
	fields := backend.EmittedFields(p, unsupported)

	g := &generator{plan: p}
	base := strings.ToLower(strings.ReplaceAll(p.Table.Name, " ", "_"))

	return &backend.Result{
		Backend: b.Name(),
		Artifacts: []backend.Artifact{
			{Name: base + ".graphql", Contents: []byte(g.schema(fields))},
			{Name: base + "_resolvers.js", Contents: []byte(g.resolvers(fields))},
		},
		Unsupported: unsupported,
	}, nil
}

type generator struct {
	plan *plan.Plan
}

func (g *generator) schema(fields []string) string {
	emitted := make(map[string]bool, len(fields))
	for _, f := range fields {
		emitted[f] = true
	}

	var out strings.Builder
	out.WriteString("# Code generated by fieldbook. Do not edit.\n")
	fmt.Fprintf(&out, "type %s {\n", typeName(g.plan.Table.Name))
	for _, f := range g.plan.Table.Fields {
		if f.Origin == rulebook.OriginDerived && !emitted[f.Name] {
			continue
		}
		fmt.Fprintf(&out, "  %s: %s\n", fieldName(f.Name), g.sdlType(f))
	}
	out.WriteString("}\n")
	return out.String()
}

// sdlType picks the SDL scalar. Raw fields are nullable; a derived
// boolean or string can never be null, a derived int still can.
func (g *generator) sdlType(f rulebook.FieldDefinition) string {
	scalar := map[rulebook.FieldType]string{
		rulebook.TypeBool:   "Boolean",
		rulebook.TypeInt:    "Int",
		rulebook.TypeString: "String",
	}[f.Type]

	if f.Origin == rulebook.OriginDerived && f.Type != rulebook.TypeInt {
		return scalar + "!"
	}
	return scalar
}

func (g *generator) resolvers(fields []string) string {
	var out strings.Builder
	out.WriteString("// Code generated by fieldbook. Do not edit.\n\n")
	out.WriteString("const text = (v) =>\n")
	out.WriteString("  v == null ? \"\" : v === true ? \"true\" : v === false ? \"false\" : String(v);\n\n")

	for _, field := range fields {
		f, _ := g.plan.Table.Field(field)
		fmt.Fprintf(&out, "const %s = (record) =>\n  %s;\n\n",
			calcName(field), g.expr(g.plan.ASTs[field], f.Type))
	}

	fmt.Fprintf(&out, "const resolvers = {\n  %s: {\n", typeName(g.plan.Table.Name))
	for _, field := range fields {
		fmt.Fprintf(&out, "    %s: (record) => %s(record),\n", fieldName(field), calcName(field))
	}
	out.WriteString("  },\n};\n\nmodule.exports = resolvers;\n")
	return out.String()
}

func (g *generator) expr(n formula.Node, t rulebook.FieldType) string {
	if t == rulebook.TypeBool {
		return g.boolExpr(n)
	}
	return g.valueExpr(n)
}

// boolExpr renders a JS expression that is always a boolean; the
// `=== true` check keeps null and undefined out.
func (g *generator) boolExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralBool:
		return strconv.FormatBool(e.Value)
	case *formula.FieldRef:
		f, _ := g.plan.Table.Field(e.Name)
		if f.Origin == rulebook.OriginDerived {
			return fmt.Sprintf("%s(record)", calcName(e.Name))
		}
		return fmt.Sprintf("(record[%q] === true)", e.Name)
	case *formula.Compare:
		return g.compareExpr(e)
	case *formula.Logical:
		return g.logicalExpr(e)
	case *formula.If:
		els := "false"
		if e.Else != nil {
			els = g.boolExpr(e.Else)
		}
		return fmt.Sprintf("(%s ? %s : %s)", g.boolExpr(e.Cond), g.boolExpr(e.Then), els)
	case *formula.Call:
		if e.Name == "ISBLANK" {
			return g.isBlankExpr(e.Args[0])
		}
	}
	return "false"
}

func (g *generator) compareExpr(e *formula.Compare) string {
	lt := g.plan.TypeOf(e.Left)
	rt := g.plan.TypeOf(e.Right)
	if lt != rt {
		return "false"
	}

	op := map[formula.CompareOp]string{
		formula.OpEq: "===", formula.OpNe: "!==",
		formula.OpLt: "<", formula.OpLe: "<=",
		formula.OpGt: ">", formula.OpGe: ">=",
	}[e.Op]

	var left, right string
	if lt == rulebook.TypeBool {
		if e.Op != formula.OpEq && e.Op != formula.OpNe {
			return "false"
		}
		left, right = g.nullableBoolExpr(e.Left), g.nullableBoolExpr(e.Right)
	} else {
		left, right = g.valueExpr(e.Left), g.valueExpr(e.Right)
	}

	var guards []string
	if nullable(e.Left) {
		guards = append(guards, left+" != null")
	}
	if nullable(e.Right) {
		guards = append(guards, right+" != null")
	}
	guards = append(guards, fmt.Sprintf("%s %s %s", left, op, right))
	return "(" + strings.Join(guards, " && ") + ")"
}

func (g *generator) logicalExpr(e *formula.Logical) string {
	if e.Op == formula.OpNot {
		return fmt.Sprintf("!(%s)", g.boolExpr(e.Operands[0]))
	}
	op := " && "
	if e.Op == formula.OpOr {
		op = " || "
	}
	parts := make([]string, len(e.Operands))
	for i, operand := range e.Operands {
		parts[i] = g.boolExpr(operand)
	}
	return "(" + strings.Join(parts, op) + ")"
}

func (g *generator) isBlankExpr(arg formula.Node) string {
	v := g.valueExpr(arg)
	switch g.plan.TypeOf(arg) {
	case rulebook.TypeInt:
		return fmt.Sprintf("(%s == null)", v)
	case rulebook.TypeString:
		return fmt.Sprintf("(%s == null || %s === \"\")", v, v)
	default:
		return "false"
	}
}

func (g *generator) nullableBoolExpr(n formula.Node) string {
	if ref, ok := n.(*formula.FieldRef); ok {
		if f, found := g.plan.Table.Field(ref.Name); found && f.Origin == rulebook.OriginRaw {
			return fmt.Sprintf("(record[%q] ?? null)", ref.Name)
		}
	}
	return g.boolExpr(n)
}

func (g *generator) valueExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralBool, *formula.Compare, *formula.Logical:
		return g.boolExpr(n)
	case *formula.LiteralInt:
		return strconv.FormatInt(e.Value, 10)
	case *formula.LiteralString:
		return strconv.Quote(e.Value)
	case *formula.FieldRef:
		f, _ := g.plan.Table.Field(e.Name)
		if f.Origin == rulebook.OriginDerived {
			return fmt.Sprintf("%s(record)", calcName(e.Name))
		}
		if f.Type == rulebook.TypeBool {
			return g.nullableBoolExpr(n)
		}
		return fmt.Sprintf("(record[%q] ?? null)", e.Name)
	case *formula.If:
		t := g.plan.TypeOf(e.Then)
		els := jsZero(t)
		if e.Else != nil {
			els = g.expr(e.Else, t)
		}
		return fmt.Sprintf("(%s ? %s : %s)", g.boolExpr(e.Cond), g.expr(e.Then, t), els)
	case *formula.Concat:
		parts := make([]string, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = g.textExpr(p)
		}
		return "(" + strings.Join(parts, " + ") + ")"
	case *formula.Call:
		switch e.Name {
		case "LOWER":
			return fmt.Sprintf("%s.toLowerCase()", g.textExpr(e.Args[0]))
		case "UPPER":
			return fmt.Sprintf("%s.toUpperCase()", g.textExpr(e.Args[0]))
		case "TEXT":
			return g.textExpr(e.Args[0])
		case "FIND":
			return fmt.Sprintf("(%s.indexOf(%s) + 1)", g.textExpr(e.Args[1]), g.textExpr(e.Args[0]))
		case "ISBLANK":
			return g.isBlankExpr(e.Args[0])
		}
	}
	return "null"
}

func (g *generator) textExpr(n formula.Node) string {
	if lit, ok := n.(*formula.LiteralString); ok {
		return strconv.Quote(lit.Value)
	}
	if g.plan.TypeOf(n) == rulebook.TypeBool {
		return fmt.Sprintf("text(%s)", g.nullableBoolExpr(n))
	}
	return fmt.Sprintf("text(%s)", g.valueExpr(n))
}

func nullable(n formula.Node) bool {
	switch n.Kind() {
	case formula.KindFieldRef, formula.KindIf:
		return true
	}
	return false
}

func jsZero(t rulebook.FieldType) string {
	switch t {
	case rulebook.TypeBool:
		return "false"
	case rulebook.TypeInt:
		return "0"
	default:
		return `""`
	}
}

// typeName renders a table name as a GraphQL type name.
func typeName(name string) string {
	var out strings.Builder
	upper := true
	for _, r := range name {
		if r == ' ' || r == '-' || r == '_' {
			upper = true
			continue
		}
		if upper {
			out.WriteString(strings.ToUpper(string(r)))
			upper = false
		} else {
			out.WriteRune(r)
		}
	}
	if out.Len() == 0 {
		return "Record"
	}
	return out.String()
}

// fieldName renders a field name as an SDL field: leading lowercase,
// spaces folded away.
func fieldName(name string) string {
	t := typeName(name)
	return strings.ToLower(t[:1]) + t[1:]
}

// calcName is the resolver helper name for a derived field.
func calcName(name string) string {
	return "calc" + typeName(name)
}
