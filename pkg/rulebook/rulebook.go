// Package rulebook defines the input data model: tables of typed fields
// where derived fields carry formulas over sibling fields, plus rows of
// raw values. A Rulebook is immutable once loaded; transformations such
// as Rename return a new Rulebook.
package rulebook

import "fmt"

// FieldType is a field's declared scalar type.
type FieldType string

// Field types.
const (
	TypeBool   FieldType = "bool"
	TypeInt    FieldType = "int"
	TypeString FieldType = "string"
)

// ValidFieldType reports whether t is a declared type the model knows.
func ValidFieldType(t FieldType) bool {
	switch t {
	case TypeBool, TypeInt, TypeString:
		return true
	}
	return false
}

// ValueKind returns the Value kind a non-null value of this type has.
func (t FieldType) ValueKind() Kind {
	switch t {
	case TypeBool:
		return KindBool
	case TypeInt:
		return KindInt
	case TypeString:
		return KindString
	}
	return KindNull
}

// Origin distinguishes stored fields from computed ones.
type Origin string

// Field origins.
const (
	OriginRaw     Origin = "raw"
	OriginDerived Origin = "derived"
)

// FieldDefinition describes one column of a table.
type FieldDefinition struct {
	Name    string
	Type    FieldType
	Origin  Origin
	Formula string // derived fields only
}

// Row maps field names to raw values. Absent keys read as null.
type Row map[string]Value

// Table is an ordered field schema plus its rows. Field order is the
// schema order and breaks scheduling ties deterministically.
type Table struct {
	Name   string
	Fields []FieldDefinition
	Rows   []Row
}

// Field returns the definition for name.
func (t *Table) Field(name string) (FieldDefinition, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// FieldRank returns a field's position in schema order, or -1.
func (t *Table) FieldRank(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// DerivedFields returns the derived fields in schema order.
func (t *Table) DerivedFields() []FieldDefinition {
	var out []FieldDefinition
	for _, f := range t.Fields {
		if f.Origin == OriginDerived {
			out = append(out, f)
		}
	}
	return out
}

// RawFields returns the raw fields in schema order.
func (t *Table) RawFields() []FieldDefinition {
	var out []FieldDefinition
	for _, f := range t.Fields {
		if f.Origin == OriginRaw {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the table's internal consistency: known types, unique
// names, formulas present exactly on derived fields, and row values
// matching their declared types. Rows never reach consumers half-checked.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table with empty name")
	}

	seen := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("table %q: field with empty name", t.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("table %q: duplicate field %q", t.Name, f.Name)
		}
		seen[f.Name] = struct{}{}

		if !ValidFieldType(f.Type) {
			return fmt.Errorf("table %q: field %q has unknown type %q", t.Name, f.Name, f.Type)
		}
		switch f.Origin {
		case OriginRaw:
			if f.Formula != "" {
				return fmt.Errorf("table %q: raw field %q carries a formula", t.Name, f.Name)
			}
		case OriginDerived:
			if f.Formula == "" {
				return fmt.Errorf("table %q: derived field %q has no formula", t.Name, f.Name)
			}
		default:
			return fmt.Errorf("table %q: field %q has unknown origin %q", t.Name, f.Name, f.Origin)
		}
	}

	for i, row := range t.Rows {
		for name, v := range row {
			f, ok := t.Field(name)
			if !ok {
				return fmt.Errorf("table %q row %d: value for unknown field %q", t.Name, i, name)
			}
			if f.Origin == OriginDerived {
				return fmt.Errorf("table %q row %d: value supplied for derived field %q", t.Name, i, name)
			}
			if !v.IsNull() && v.Kind != f.Type.ValueKind() {
				return fmt.Errorf("table %q row %d: field %q declared %s, got %s",
					t.Name, i, name, f.Type, v.Kind)
			}
		}
	}
	return nil
}

// Rulebook is an ordered collection of tables.
type Rulebook struct {
	Tables []*Table
}

// Table returns the table with the given name.
func (rb *Rulebook) Table(name string) (*Table, bool) {
	for _, t := range rb.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Validate checks every table and rejects duplicate table names.
func (rb *Rulebook) Validate() error {
	seen := make(map[string]struct{}, len(rb.Tables))
	for _, t := range rb.Tables {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate table %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
