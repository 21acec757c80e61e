package plan

import (
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// TypeOf statically infers the type an expression produces. Backends
// use it to pick the zero value for a conditional's missing else branch
// and to check generated routines against declared field types.
func (p *Plan) TypeOf(n formula.Node) rulebook.FieldType {
	switch e := n.(type) {
	case *formula.LiteralBool:
		return rulebook.TypeBool
	case *formula.LiteralInt, *formula.LiteralFloat:
		return rulebook.TypeInt
	case *formula.LiteralString:
		return rulebook.TypeString
	case *formula.FieldRef:
		if f, ok := p.Table.Field(e.Name); ok {
			return f.Type
		}
		return rulebook.TypeString
	case *formula.Compare, *formula.Logical:
		return rulebook.TypeBool
	case *formula.If:
		return p.TypeOf(e.Then)
	case *formula.Concat:
		return rulebook.TypeString
	case *formula.Call:
		switch e.Name {
		case "ISBLANK":
			return rulebook.TypeBool
		case "FIND":
			return rulebook.TypeInt
		default:
			return rulebook.TypeString
		}
	}
	return rulebook.TypeString
}

// ZeroValue returns the zero of a field type: "" / false / 0.
func ZeroValue(t rulebook.FieldType) rulebook.Value {
	switch t {
	case rulebook.TypeBool:
		return rulebook.BoolValue(false)
	case rulebook.TypeInt:
		return rulebook.IntValue(0)
	default:
		return rulebook.StringValue("")
	}
}
