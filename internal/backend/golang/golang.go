// Package golang emits imperative Go source for a table plan: a struct
// with pointerized raw fields and one Calc method per derived field.
// Derived references call the sibling Calc method; null handling runs
// through small nil-safe helpers emitted into the artifact.
package golang

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldbook-labs/fieldbook/internal/backend"
	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// knownCalls are the builtins this backend can translate.
var knownCalls = map[string]bool{
	"LOWER": true, "UPPER": true, "TEXT": true, "FIND": true, "ISBLANK": true,
}

// Backend emits Go source.
type Backend struct{}

// New creates the Go source backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the registry key.
func (b *Backend) Name() string { return "golang" }

// Supports reports the constructs the emitter translates. Float
// literals have no surface syntax yet and are rejected.
func (b *Backend) Supports(kind formula.NodeKind) bool {
	return kind != formula.KindLiteralFloat
}

// Compile generates one Go source artifact for the plan.
func (b *Backend) Compile(p *plan.Plan) (*backend.Result, error) {
	unsupported := backend.CheckSupport(b, p)
	backend.MarkUnknownCalls(b.Name(), p, knownCalls, unsupported)
	fields := backend.EmittedFields(p, unsupported)

	g := &generator{plan: p}
	src := g.generate(fields)

	return &backend.Result{
		Backend: b.Name(),
		Artifacts: []backend.Artifact{{
			Name:     strings.ToLower(identifier(p.Table.Name)) + "_calc.go",
			Contents: []byte(src),
		}},
		Unsupported: unsupported,
	}, nil
}


type generator struct {
	plan        *plan.Plan
	useStrings  bool
	useStrconv  bool
	useHelpers  map[string]bool
}

func (g *generator) generate(fields []string) string {
	g.useHelpers = make(map[string]bool)

	structName := identifier(g.plan.Table.Name)

	var methods strings.Builder
	for _, field := range fields {
		f, _ := g.plan.Table.Field(field)
		body := g.expr(g.plan.ASTs[field], f.Type)
		fmt.Fprintf(&methods, "\n// Calc%s computes the %s field.\nfunc (r *%s) Calc%s() %s {\n\treturn %s\n}\n",
			identifier(field), field, structName, identifier(field), goType(f.Type), body)
	}

	var out strings.Builder
	out.WriteString("// Code generated by fieldbook. DO NOT EDIT.\n\n")
	fmt.Fprintf(&out, "package %s\n\n", strings.ToLower(structName))
	g.writeImports(&out)

	fmt.Fprintf(&out, "// %s holds one record; raw fields are pointers so an\n// absent value stays distinguishable from a zero.\ntype %s struct {\n", structName, structName)
	for _, f := range g.plan.Table.RawFields() {
		fmt.Fprintf(&out, "\t%s *%s\n", identifier(f.Name), rawGoType(f.Type))
	}
	out.WriteString("}\n")

	out.WriteString(methods.String())
	g.writeHelpers(&out)
	return out.String()
}

func (g *generator) writeImports(out *strings.Builder) {
	var imports []string
	if g.useStrconv {
		imports = append(imports, "strconv")
	}
	if g.useStrings {
		imports = append(imports, "strings")
	}
	switch len(imports) {
	case 0:
	case 1:
		fmt.Fprintf(out, "import %q\n\n", imports[0])
	default:
		out.WriteString("import (\n")
		for _, imp := range imports {
			fmt.Fprintf(out, "\t%q\n", imp)
		}
		out.WriteString(")\n\n")
	}
}

// expr renders a node as a Go expression of the field type's shape:
// bool results are plain bools, int and string results stay pointers.
func (g *generator) expr(n formula.Node, t rulebook.FieldType) string {
	switch t {
	case rulebook.TypeBool:
		return g.boolExpr(n)
	case rulebook.TypeInt:
		return g.intExpr(n)
	default:
		return g.strExpr(n)
	}
}

// boolExpr renders a Go bool. Null collapses to false here, matching
// the truthiness rule that only a true boolean counts.
func (g *generator) boolExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralBool:
		return strconv.FormatBool(e.Value)
	case *formula.FieldRef:
		f, _ := g.plan.Table.Field(e.Name)
		if f.Origin == rulebook.OriginDerived {
			return fmt.Sprintf("r.Calc%s()", identifier(e.Name))
		}
		g.useHelpers["boolVal"] = true
		return fmt.Sprintf("boolVal(r.%s)", identifier(e.Name))
	case *formula.Compare:
		return g.compareExpr(e)
	case *formula.Logical:
		return g.logicalExpr(e)
	case *formula.If:
		g.useHelpers["ifBool"] = true
		els := "false"
		if e.Else != nil {
			els = g.boolExpr(e.Else)
		}
		return fmt.Sprintf("ifBool(%s, %s, %s)", g.boolExpr(e.Cond), g.boolExpr(e.Then), els)
	case *formula.Call:
		if e.Name == "ISBLANK" {
			return g.isBlankExpr(e.Args[0])
		}
	}
	// a non-boolean value in boolean position is never truthy
	return "false"
}

func (g *generator) compareExpr(e *formula.Compare) string {
	lt := g.plan.TypeOf(e.Left)
	rt := g.plan.TypeOf(e.Right)
	if lt != rt {
		// differing kinds never compare equal, or at all
		return "false"
	}

	switch lt {
	case rulebook.TypeInt:
		helper := map[formula.CompareOp]string{
			formula.OpEq: "eqInt", formula.OpNe: "neInt",
			formula.OpLt: "ltInt", formula.OpLe: "leInt",
			formula.OpGt: "gtInt", formula.OpGe: "geInt",
		}[e.Op]
		g.useHelpers[helper] = true
		return fmt.Sprintf("%s(%s, %s)", helper, g.intExpr(e.Left), g.intExpr(e.Right))
	case rulebook.TypeString:
		helper := map[formula.CompareOp]string{
			formula.OpEq: "eqStr", formula.OpNe: "neStr",
			formula.OpLt: "ltStr", formula.OpLe: "leStr",
			formula.OpGt: "gtStr", formula.OpGe: "geStr",
		}[e.Op]
		g.useHelpers[helper] = true
		return fmt.Sprintf("%s(%s, %s)", helper, g.strExpr(e.Left), g.strExpr(e.Right))
	default:
		// booleans only support equality; ordering them is meaningless.
		// A null side makes the comparison false, so compare through
		// pointers instead of collapsed values.
		var helper string
		switch e.Op {
		case formula.OpEq:
			helper = "eqBool"
		case formula.OpNe:
			helper = "neBool"
		default:
			return "false"
		}
		g.useHelpers[helper] = true
		return fmt.Sprintf("%s(%s, %s)", helper, g.boolPtrExpr(e.Left), g.boolPtrExpr(e.Right))
	}
}

// boolPtrExpr renders a *bool expression: raw field reads keep their
// nil, everything else is definite and gets wrapped.
func (g *generator) boolPtrExpr(n formula.Node) string {
	if ref, ok := n.(*formula.FieldRef); ok {
		if f, found := g.plan.Table.Field(ref.Name); found && f.Origin == rulebook.OriginRaw {
			return "r." + identifier(ref.Name)
		}
	}
	g.useHelpers["boolp"] = true
	return fmt.Sprintf("boolp(%s)", g.boolExpr(n))
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
	switch g.plan.TypeOf(arg) {
	case rulebook.TypeInt:
		return fmt.Sprintf("(%s == nil)", g.intExpr(arg))
	case rulebook.TypeString:
		g.useHelpers["isBlankStr"] = true
		return fmt.Sprintf("isBlankStr(%s)", g.strExpr(arg))
	default:
		// a boolean is never blank once read
		return "false"
	}
}

// intExpr renders a *int64 expression; nil carries null through.
func (g *generator) intExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralInt:
		g.useHelpers["int64p"] = true
		return fmt.Sprintf("int64p(%d)", e.Value)
	case *formula.FieldRef:
		f, _ := g.plan.Table.Field(e.Name)
		if f.Origin == rulebook.OriginDerived {
			return fmt.Sprintf("r.Calc%s()", identifier(e.Name))
		}
		return "r." + identifier(e.Name)
	case *formula.If:
		g.useHelpers["ifInt"] = true
		g.useHelpers["int64p"] = true
		els := "int64p(0)"
		if e.Else != nil {
			els = g.intExpr(e.Else)
		}
		return fmt.Sprintf("ifInt(%s, %s, %s)", g.boolExpr(e.Cond), g.intExpr(e.Then), els)
	case *formula.Call:
		if e.Name == "FIND" {
			g.useStrings = true
			g.useHelpers["int64p"] = true
			return fmt.Sprintf("int64p(int64(strings.Index(%s, %s) + 1))",
				g.textExpr(e.Args[1]), g.textExpr(e.Args[0]))
		}
	}
	return "nil"
}

// strExpr renders a *string expression; nil carries null through.
func (g *generator) strExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralString:
		g.useHelpers["strp"] = true
		return fmt.Sprintf("strp(%s)", strconv.Quote(e.Value))
	case *formula.FieldRef:
		f, _ := g.plan.Table.Field(e.Name)
		if f.Origin == rulebook.OriginDerived {
			return fmt.Sprintf("r.Calc%s()", identifier(e.Name))
		}
		return "r." + identifier(e.Name)
	case *formula.If:
		g.useHelpers["ifStr"] = true
		g.useHelpers["strp"] = true
		els := `strp("")`
		if e.Else != nil {
			els = g.strExpr(e.Else)
		}
		return fmt.Sprintf("ifStr(%s, %s, %s)", g.boolExpr(e.Cond), g.strExpr(e.Then), els)
	case *formula.Concat:
		g.useHelpers["strp"] = true
		parts := make([]string, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = g.textExpr(p)
		}
		return "strp(" + strings.Join(parts, " + ") + ")"
	case *formula.Call:
		g.useHelpers["strp"] = true
		switch e.Name {
		case "LOWER":
			g.useStrings = true
			return fmt.Sprintf("strp(strings.ToLower(%s))", g.textExpr(e.Args[0]))
		case "UPPER":
			g.useStrings = true
			return fmt.Sprintf("strp(strings.ToUpper(%s))", g.textExpr(e.Args[0]))
		case "TEXT":
			return fmt.Sprintf("strp(%s)", g.textExpr(e.Args[0]))
		}
	}
	return "nil"
}

// textExpr renders a plain Go string with concatenation coercion: null
// becomes empty, booleans "true"/"false", ints their decimal form.
func (g *generator) textExpr(n formula.Node) string {
	switch g.plan.TypeOf(n) {
	case rulebook.TypeBool:
		// a nil boolean coerces to "", not "false"
		g.useHelpers["boolText"] = true
		return fmt.Sprintf("boolText(%s)", g.boolPtrExpr(n))
	case rulebook.TypeInt:
		g.useHelpers["intText"] = true
		g.useStrconv = true
		return fmt.Sprintf("intText(%s)", g.intExpr(n))
	default:
		g.useHelpers["textVal"] = true
		return fmt.Sprintf("textVal(%s)", g.strExpr(n))
	}
}

// helperBodies holds the nil-safe helpers in stable emit order.
var helperOrder = []string{
	"boolVal", "textVal", "int64p", "strp",
	"eqInt", "neInt", "ltInt", "leInt", "gtInt", "geInt",
	"eqStr", "neStr", "ltStr", "leStr", "gtStr", "geStr",
	"boolp", "eqBool", "neBool",
	"ifBool", "ifInt", "ifStr", "isBlankStr", "boolText", "intText",
}

var helperBodies = map[string]string{
	"boolVal": `func boolVal(v *bool) bool {
	if v == nil {
		return false
	}
	return *v
}`,
	"textVal": `func textVal(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}`,
	"int64p": `func int64p(v int64) *int64 {
	return &v
}`,
	"strp": `func strp(v string) *string {
	return &v
}`,
	"eqInt": `func eqInt(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}`,
	"neInt": `func neInt(a, b *int64) bool {
	return a != nil && b != nil && *a != *b
}`,
	"ltInt": `func ltInt(a, b *int64) bool {
	return a != nil && b != nil && *a < *b
}`,
	"leInt": `func leInt(a, b *int64) bool {
	return a != nil && b != nil && *a <= *b
}`,
	"gtInt": `func gtInt(a, b *int64) bool {
	return a != nil && b != nil && *a > *b
}`,
	"geInt": `func geInt(a, b *int64) bool {
	return a != nil && b != nil && *a >= *b
}`,
	"eqStr": `func eqStr(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}`,
	"neStr": `func neStr(a, b *string) bool {
	return a != nil && b != nil && *a != *b
}`,
	"ltStr": `func ltStr(a, b *string) bool {
	return a != nil && b != nil && *a < *b
}`,
	"leStr": `func leStr(a, b *string) bool {
	return a != nil && b != nil && *a <= *b
}`,
	"gtStr": `func gtStr(a, b *string) bool {
	return a != nil && b != nil && *a > *b
}`,
	"geStr": `func geStr(a, b *string) bool {
	return a != nil && b != nil && *a >= *b
}`,
	"boolp": `func boolp(v bool) *bool {
	return &v
}`,
	"eqBool": `func eqBool(a, b *bool) bool {
	return a != nil && b != nil && *a == *b
}`,
	"neBool": `func neBool(a, b *bool) bool {
	return a != nil && b != nil && *a != *b
}`,
	"ifBool": `func ifBool(cond, then, els bool) bool {
	if cond {
		return then
	}
	return els
}`,
	"ifInt": `func ifInt(cond bool, then, els *int64) *int64 {
	if cond {
		return then
	}
	return els
}`,
	"ifStr": `func ifStr(cond bool, then, els *string) *string {
	if cond {
		return then
	}
	return els
}`,
	"isBlankStr": `func isBlankStr(v *string) bool {
	return v == nil || *v == ""
}`,
	"boolText": `func boolText(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "true"
	}
	return "false"
}`,
	"intText": `func intText(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}`,
}

func (g *generator) writeHelpers(out *strings.Builder) {
	for _, name := range helperOrder {
		if g.useHelpers[name] {
			out.WriteString("\n" + helperBodies[name] + "\n")
		}
	}
}

// goType maps a declared type to the Calc method return type: booleans
// come back plain because a derived null boolean collapses to false.
func goType(t rulebook.FieldType) string {
	switch t {
	case rulebook.TypeBool:
		return "bool"
	case rulebook.TypeInt:
		return "*int64"
	default:
		return "*string"
	}
}

func rawGoType(t rulebook.FieldType) string {
	switch t {
	case rulebook.TypeBool:
		return "bool"
	case rulebook.TypeInt:
		return "int64"
	default:
		return "string"
	}
}

// identifier turns a field or table name into an exported Go
// identifier: "first name" -> "FirstName".
func identifier(name string) string {
	var out strings.Builder
	upper := true
	for _, r := range name {
		switch {
		case r == ' ' || r == '_' || r == '-':
			upper = true
		case upper:
			out.WriteString(strings.ToUpper(string(r)))
			upper = false
		default:
			out.WriteRune(r)
		}
	}
	if out.Len() == 0 {
		return "Field"
	}
	return out.String()
}
