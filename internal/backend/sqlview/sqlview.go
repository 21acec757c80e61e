// Package sqlview emits a declarative SQLite view for a table plan:
// one CTE tier per dependency level, each layering its derived columns
// onto the tier below, closed by a CREATE VIEW over the last tier.
// Booleans are 0/1 and never NULL; CASE and IS NULL guards keep the
// null rules intact inside the database.
package sqlview

import (
	"fmt"
	"strings"

	"github.com/fieldbook-labs/fieldbook/internal/backend"
	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

var knownCalls = map[string]bool{
	"LOWER": true, "UPPER": true, "TEXT": true, "FIND": true, "ISBLANK": true,
}

// Backend emits SQLite view definitions.
type Backend struct{}

// New creates the SQL view backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the registry key.
func (b *Backend) Name() string { return "sqlview" }

// Supports reports the constructs the emitter translates.
func (b *Backend) Supports(kind formula.NodeKind) bool {
	return kind != formula.KindLiteralFloat
}

// Compile generates the view artifact for the plan.
func (b *Backend) Compile(p *plan.Plan) (*backend.Result, error) {
	unsupported := backend.CheckSupport(b, p)
	backend.MarkUnknownCalls(b.Name(), p, knownCalls, unsupported)
	fields := backend.EmittedFields(p, unsupported)

	sql, err := (&generator{plan: p}).generate(fields)
	if err != nil {
		return nil, err
	}

	return &backend.Result{
		Backend: b.Name(),
		Artifacts: []backend.Artifact{{
			Name:     strings.ToLower(strings.ReplaceAll(p.Table.Name, " ", "_")) + "_view.sql",
			Contents: []byte(sql),
		}},
		Unsupported: unsupported,
	}, nil
}

// ViewName returns the name of the generated view for a table.
func ViewName(table string) string {
	return strings.ToLower(strings.ReplaceAll(table, " ", "_")) + "_derived"
}

type generator struct {
	plan *plan.Plan
}

func (g *generator) generate(fields []string) (string, error) {
	emitted := make(map[string]bool, len(fields))
	for _, f := range fields {
		emitted[f] = true
	}

	levels, err := g.plan.Levels()
	if err != nil {
		return "", err
	}

	var tiers [][]string
	for _, level := range levels {
		var tier []string
		for _, field := range level {
			if emitted[field] {
				tier = append(tier, field)
			}
		}
		if len(tier) > 0 {
			tiers = append(tiers, tier)
		}
	}

	var out strings.Builder
	out.WriteString("-- Code generated by fieldbook. Do not edit.\n")
	fmt.Fprintf(&out, "CREATE VIEW %s AS\n", quoteIdent(ViewName(g.plan.Table.Name)))

	source := quoteIdent(g.plan.Table.Name)
	if len(tiers) > 0 {
		out.WriteString("WITH\n")
		for i, tier := range tiers {
			fmt.Fprintf(&out, "tier%d AS (\n  SELECT\n    *", i)
			for _, field := range tier {
				f, _ := g.plan.Table.Field(field)
				fmt.Fprintf(&out, ",\n    %s AS %s",
					g.expr(g.plan.ASTs[field], f.Type), quoteIdent(field))
			}
			fmt.Fprintf(&out, "\n  FROM %s\n)", source)
			if i < len(tiers)-1 {
				out.WriteString(",")
			}
			out.WriteString("\n")
			source = fmt.Sprintf("tier%d", i)
		}
	}
	fmt.Fprintf(&out, "SELECT * FROM %s;\n", source)
	return out.String(), nil
}

func (g *generator) expr(n formula.Node, t rulebook.FieldType) string {
	if t == rulebook.TypeBool {
		return g.boolExpr(n)
	}
	return g.valueExpr(n)
}

// boolExpr renders a SQL expression that is always 0 or 1.
func (g *generator) boolExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralBool:
		if e.Value {
			return "1"
		}
		return "0"
	case *formula.FieldRef:
		// IS TRUE folds NULL to 0, so an absent flag reads false
		return fmt.Sprintf("(%s IS TRUE)", quoteIdent(e.Name))
	case *formula.Compare:
		return g.compareExpr(e)
	case *formula.Logical:
		return g.logicalExpr(e)
	case *formula.If:
		els := "0"
		if e.Else != nil {
			els = g.boolExpr(e.Else)
		}
		return fmt.Sprintf("(CASE WHEN %s THEN %s ELSE %s END)",
			g.boolExpr(e.Cond), g.boolExpr(e.Then), els)
	case *formula.Call:
		if e.Name == "ISBLANK" {
			return g.isBlankExpr(e.Args[0])
		}
	}
	return "0"
}

func (g *generator) compareExpr(e *formula.Compare) string {
	lt := g.plan.TypeOf(e.Left)
	rt := g.plan.TypeOf(e.Right)
	if lt != rt {
		return "0"
	}

	op := map[formula.CompareOp]string{
		formula.OpEq: "=", formula.OpNe: "<>",
		formula.OpLt: "<", formula.OpLe: "<=",
		formula.OpGt: ">", formula.OpGe: ">=",
	}[e.Op]

	var left, right string
	switch lt {
	case rulebook.TypeBool:
		if e.Op != formula.OpEq && e.Op != formula.OpNe {
			return "0"
		}
		left, right = g.nullableBoolExpr(e.Left), g.nullableBoolExpr(e.Right)
	default:
		left, right = g.valueExpr(e.Left), g.valueExpr(e.Right)
	}

	return fmt.Sprintf("(CASE WHEN %s IS NULL OR %s IS NULL THEN 0 WHEN %s %s %s THEN 1 ELSE 0 END)",
		left, right, left, op, right)
}

func (g *generator) logicalExpr(e *formula.Logical) string {
	if e.Op == formula.OpNot {
		return fmt.Sprintf("(NOT %s)", g.boolExpr(e.Operands[0]))
	}
	op := " AND "
	if e.Op == formula.OpOr {
		op = " OR "
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
		return fmt.Sprintf("(%s IS NULL)", g.valueExpr(arg))
	case rulebook.TypeString:
		v := g.valueExpr(arg)
		return fmt.Sprintf("(CASE WHEN %s IS NULL OR %s = '' THEN 1 ELSE 0 END)", v, v)
	default:
		return "0"
	}
}

// nullableBoolExpr keeps NULL visible for raw boolean columns; every
// other boolean expression is already definite.
func (g *generator) nullableBoolExpr(n formula.Node) string {
	if ref, ok := n.(*formula.FieldRef); ok {
		if f, found := g.plan.Table.Field(ref.Name); found && f.Origin == rulebook.OriginRaw {
			return quoteIdent(ref.Name)
		}
	}
	return g.boolExpr(n)
}

// valueExpr renders a possibly-NULL int or string expression.
func (g *generator) valueExpr(n formula.Node) string {
	switch e := n.(type) {
	case *formula.LiteralBool, *formula.Compare, *formula.Logical:
		return g.boolExpr(n)
	case *formula.LiteralInt:
		return fmt.Sprintf("%d", e.Value)
	case *formula.LiteralString:
		return quoteString(e.Value)
	case *formula.FieldRef:
		return quoteIdent(e.Name)
	case *formula.If:
		t := g.plan.TypeOf(e.Then)
		els := sqlZero(t)
		if e.Else != nil {
			els = g.expr(e.Else, t)
		}
		return fmt.Sprintf("(CASE WHEN %s THEN %s ELSE %s END)",
			g.boolExpr(e.Cond), g.expr(e.Then, t), els)
	case *formula.Concat:
		parts := make([]string, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = g.textExpr(p)
		}
		return "(" + strings.Join(parts, " || ") + ")"
	case *formula.Call:
		switch e.Name {
		case "LOWER":
			return fmt.Sprintf("lower(%s)", g.textExpr(e.Args[0]))
		case "UPPER":
			return fmt.Sprintf("upper(%s)", g.textExpr(e.Args[0]))
		case "TEXT":
			return g.textExpr(e.Args[0])
		case "FIND":
			// instr is 1-based and returns 0 when absent
			return fmt.Sprintf("instr(%s, %s)", g.textExpr(e.Args[1]), g.textExpr(e.Args[0]))
		case "ISBLANK":
			return g.isBlankExpr(e.Args[0])
		}
	}
	return "NULL"
}

// textExpr coerces to text with the concatenation rules: NULL becomes
// empty, booleans 'true'/'false', ints their decimal form.
func (g *generator) textExpr(n formula.Node) string {
	if lit, ok := n.(*formula.LiteralString); ok {
		return quoteString(lit.Value)
	}
	switch g.plan.TypeOf(n) {
	case rulebook.TypeBool:
		v := g.nullableBoolExpr(n)
		return fmt.Sprintf("(CASE WHEN %s IS NULL THEN '' WHEN %s IS TRUE THEN 'true' ELSE 'false' END)", v, v)
	case rulebook.TypeInt:
		return fmt.Sprintf("COALESCE(CAST(%s AS TEXT), '')", g.valueExpr(n))
	default:
		return fmt.Sprintf("COALESCE(%s, '')", g.valueExpr(n))
	}
}

func sqlZero(t rulebook.FieldType) string {
	switch t {
	case rulebook.TypeBool, rulebook.TypeInt:
		return "0"
	default:
		return "''"
	}
}

// quoteIdent double-quotes an identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteString single-quotes a SQL string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
