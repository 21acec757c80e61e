// Package native compiles derived-field formulas to machine code for a
// small register ISA, links the routines into a loadable module, and
// runs them through a bounds-checked VM. A loader packs each row into a
// fixed byte layout, invokes the per-field entry points in evaluation
// order, and writes every result back into the record buffer before a
// dependent routine runs.
package native

import "fmt"

// Tag discriminates a TaggedValue's payload.
type Tag byte

// Value tags. Every generated routine returns exactly one of these.
const (
	TagNull Tag = iota
	TagBool
	TagInt
	TagFloat
	TagString
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null"
	case TagBool:
		return "bool"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagString:
		return "string"
	}
	return fmt.Sprintf("tag(%d)", byte(t))
}

// TaggedValue is the uniform return structure of every generated
// routine: one tag byte plus a payload wide enough for the largest
// member. Strings are carried as an (address, length) view into VM
// memory, never as copied bytes.
type TaggedValue struct {
	Tag  Tag
	Bits uint64 // bool 0/1, int two's complement, float IEEE-754 bits
	Addr uint32
	Len  uint32
}

// NullTagged returns the null value.
func NullTagged() TaggedValue { return TaggedValue{Tag: TagNull} }

// BoolTagged wraps a boolean.
func BoolTagged(b bool) TaggedValue {
	v := TaggedValue{Tag: TagBool}
	if b {
		v.Bits = 1
	}
	return v
}

// IntTagged wraps an integer.
func IntTagged(i int64) TaggedValue {
	return TaggedValue{Tag: TagInt, Bits: uint64(i)}
}

// StringTagged wraps a string view. The empty string is always
// (addr 0, len 0).
func StringTagged(addr, length uint32) TaggedValue {
	if length == 0 {
		addr = 0
	}
	return TaggedValue{Tag: TagString, Addr: addr, Len: length}
}

// AsBool reads a TagBool payload.
func (v TaggedValue) AsBool() bool { return v.Bits != 0 }

// AsInt reads a TagInt payload.
func (v TaggedValue) AsInt() int64 { return int64(v.Bits) }

// AbiError is a native-backend runtime fault: a wrong return tag, a
// malformed string view, a memory bounds violation, or a runaway
// routine. It is fatal for the one record being evaluated and is
// reported, never raised as a panic.
type AbiError struct {
	Field  string // derived field being computed, if known
	Reason string
}

func (e *AbiError) Error() string {
	if e.Field == "" {
		return "abi fault: " + e.Reason
	}
	return fmt.Sprintf("abi fault computing %q: %s", e.Field, e.Reason)
}

func abiFault(format string, args ...any) *AbiError {
	return &AbiError{Reason: fmt.Sprintf(format, args...)}
}
