package rulebook

import (
	"fmt"
	"strconv"
)

// Kind identifies which scalar a Value holds. The zero Kind is Null.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a nullable scalar. The zero Value is null.
type Value struct {
	Kind Kind
	Bool bool
	Int  int64
	Str  string
}

// Null returns the null value.
func Null() Value {
	return Value{Kind: KindNull}
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// IntValue returns an integer value.
func IntValue(i int64) Value {
	return Value{Kind: KindInt, Int: i}
}

// StringValue returns a string value.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// IsNull returns true for the null value.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Equal compares two values for identity. Null equals only null.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindString:
		return v.Str == o.Str
	}
	return false
}

// Display renders a value for human output. Null renders as empty.
func (v Value) Display() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindString:
		return v.Str
	}
	return ""
}
