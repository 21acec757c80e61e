package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Node represents a node in a parsed formula's expression tree.
// The set of kinds is closed: every consumer switches exhaustively
// over NodeKind so that adding a kind breaks the build everywhere
// a case is missing.
type Node interface {
	Kind() NodeKind
	exprNode()
}

// NodeKind identifies the concrete type of a Node.
type NodeKind int

// NodeKind constants for the closed set of formula AST nodes.
const (
	KindLiteralBool NodeKind = iota
	KindLiteralInt
	KindLiteralFloat // reserved by the grammar for forward compatibility
	KindLiteralString
	KindFieldRef
	KindCompare
	KindLogical
	KindIf
	KindConcat
	KindCall
)

// kindNames maps node kinds to the names used in error messages.
var kindNames = map[NodeKind]string{
	KindLiteralBool:   "boolean literal",
	KindLiteralInt:    "integer literal",
	KindLiteralFloat:  "float literal",
	KindLiteralString: "string literal",
	KindFieldRef:      "field reference",
	KindCompare:       "comparison",
	KindLogical:       "boolean combinator",
	KindIf:            "conditional",
	KindConcat:        "concatenation",
	KindCall:          "function call",
}

// String returns the human-readable name of the node kind.
func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// AllKinds returns every node kind, for backends that precompute
// support tables.
func AllKinds() []NodeKind {
	return []NodeKind{
		KindLiteralBool, KindLiteralInt, KindLiteralFloat, KindLiteralString,
		KindFieldRef, KindCompare, KindLogical, KindIf, KindConcat, KindCall,
	}
}

// ---------- Literal nodes ----------

// LiteralBool represents TRUE or FALSE.
type LiteralBool struct {
	Value bool
}

// LiteralInt represents an integer literal.
type LiteralInt struct {
	Value int64
}

// LiteralFloat represents a float literal. The grammar never produces
// one today; the kind exists so backends stay exhaustive when it lands.
type LiteralFloat struct {
	Value float64
}

// LiteralString represents a double-quoted string literal.
type LiteralString struct {
	Value string
}

// FieldRef represents a {{Name}} field reference.
type FieldRef struct {
	Name string
}

// ---------- Compound nodes ----------

// CompareOp is a comparison operator as written in formula text.
type CompareOp string

// Comparison operators.
const (
	OpEq CompareOp = "="
	OpNe CompareOp = "<>"
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Compare represents a binary comparison.
type Compare struct {
	Op    CompareOp
	Left  Node
	Right Node
}

// LogicalOp is a boolean combinator operator.
type LogicalOp string

// Boolean combinators. NOT takes exactly one operand.
const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
	OpNot LogicalOp = "NOT"
)

// Logical represents AND/OR over an ordered operand list, or NOT over
// a single operand. Both the infix form (a AND b) and the call form
// (AND(a, b, c)) parse to this node.
type Logical struct {
	Op       LogicalOp
	Operands []Node
}

// If represents IF(condition, then[, else]). Else is nil when the
// formula omits it; consumers substitute the zero value of the then
// branch's inferred type.
type If struct {
	Cond Node
	Then Node
	Else Node
}

// Concat represents one or more values joined with '&'.
type Concat struct {
	Parts []Node
}

// Call represents a built-in or unknown function call. Unknown names
// parse successfully and are rejected per backend at compile time.
type Call struct {
	Name string
	Args []Node
}

func (*LiteralBool) Kind() NodeKind   { return KindLiteralBool }
func (*LiteralInt) Kind() NodeKind    { return KindLiteralInt }
func (*LiteralFloat) Kind() NodeKind  { return KindLiteralFloat }
func (*LiteralString) Kind() NodeKind { return KindLiteralString }
func (*FieldRef) Kind() NodeKind      { return KindFieldRef }
func (*Compare) Kind() NodeKind       { return KindCompare }
func (*Logical) Kind() NodeKind       { return KindLogical }
func (*If) Kind() NodeKind            { return KindIf }
func (*Concat) Kind() NodeKind        { return KindConcat }
func (*Call) Kind() NodeKind          { return KindCall }

func (*LiteralBool) exprNode()   {}
func (*LiteralInt) exprNode()    {}
func (*LiteralFloat) exprNode()  {}
func (*LiteralString) exprNode() {}
func (*FieldRef) exprNode()      {}
func (*Compare) exprNode()       {}
func (*Logical) exprNode()       {}
func (*If) exprNode()            {}
func (*Concat) exprNode()        {}
func (*Call) exprNode()          {}

// Format renders a node back to canonical formula text. Round-tripping
// through Format normalizes whitespace but preserves structure.
func Format(n Node) string {
	switch e := n.(type) {
	case *LiteralBool:
		if e.Value {
			return "TRUE()"
		}
		return "FALSE()"
	case *LiteralInt:
		return strconv.FormatInt(e.Value, 10)
	case *LiteralFloat:
		return strconv.FormatFloat(e.Value, 'g', -1, 64)
	case *LiteralString:
		return strconv.Quote(e.Value)
	case *FieldRef:
		return "{{" + e.Name + "}}"
	case *Compare:
		return fmt.Sprintf("%s %s %s", Format(e.Left), e.Op, Format(e.Right))
	case *Logical:
		parts := make([]string, len(e.Operands))
		for i, op := range e.Operands {
			parts[i] = Format(op)
		}
		return string(e.Op) + "(" + strings.Join(parts, ", ") + ")"
	case *If:
		if e.Else == nil {
			return fmt.Sprintf("IF(%s, %s)", Format(e.Cond), Format(e.Then))
		}
		return fmt.Sprintf("IF(%s, %s, %s)", Format(e.Cond), Format(e.Then), Format(e.Else))
	case *Concat:
		parts := make([]string, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = Format(p)
		}
		return strings.Join(parts, " & ")
	case *Call:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = Format(a)
		}
		return e.Name + "(" + strings.Join(parts, ", ") + ")"
	}
	return ""
}

// Walk calls fn for n and every descendant in pre-order. Walk never
// mutates the tree.
func Walk(n Node, fn func(Node)) {
	fn(n)
	switch e := n.(type) {
	case *Compare:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case *Logical:
		for _, op := range e.Operands {
			Walk(op, fn)
		}
	case *If:
		Walk(e.Cond, fn)
		Walk(e.Then, fn)
		if e.Else != nil {
			Walk(e.Else, fn)
		}
	case *Concat:
		for _, p := range e.Parts {
			Walk(p, fn)
		}
	case *Call:
		for _, a := range e.Args {
			Walk(a, fn)
		}
	case *LiteralBool, *LiteralInt, *LiteralFloat, *LiteralString, *FieldRef:
		// leaves
	}
}
