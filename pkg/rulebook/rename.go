package rulebook

import (
	"fmt"
	"strings"

	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/token"
)

// Rename returns a copy of rb in which the field oldName of tableName
// is renamed to newName: the schema entry, every row key, and every
// {{oldName}} token in the table's formulas. The input rulebook is not
// modified.
func Rename(rb *Rulebook, tableName, oldName, newName string) (*Rulebook, error) {
	if newName == "" {
		return nil, fmt.Errorf("rename: new name is empty")
	}
	src, ok := rb.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("rename: no table %q", tableName)
	}
	if _, ok := src.Field(oldName); !ok {
		return nil, fmt.Errorf("rename: table %q has no field %q", tableName, oldName)
	}
	if _, ok := src.Field(newName); ok {
		return nil, fmt.Errorf("rename: table %q already has a field %q", tableName, newName)
	}

	out := &Rulebook{Tables: make([]*Table, len(rb.Tables))}
	for i, t := range rb.Tables {
		if t.Name != tableName {
			out.Tables[i] = t.clone()
			continue
		}
		out.Tables[i] = t.renameField(oldName, newName)
	}
	return out, nil
}

// clone deep-copies a table.
func (t *Table) clone() *Table {
	c := &Table{
		Name:   t.Name,
		Fields: make([]FieldDefinition, len(t.Fields)),
		Rows:   make([]Row, len(t.Rows)),
	}
	copy(c.Fields, t.Fields)
	for i, row := range t.Rows {
		nr := make(Row, len(row))
		for k, v := range row {
			nr[k] = v
		}
		c.Rows[i] = nr
	}
	return c
}

// renameField returns a copy of the table with old renamed to new
// everywhere it appears.
func (t *Table) renameField(old, new string) *Table {
	c := t.clone()

	for i := range c.Fields {
		if c.Fields[i].Name == old {
			c.Fields[i].Name = new
		}
		if c.Fields[i].Formula != "" {
			c.Fields[i].Formula = renameFieldRefs(c.Fields[i].Formula, old, new)
		}
	}

	for i, row := range c.Rows {
		if v, ok := row[old]; ok {
			nr := make(Row, len(row))
			for k, val := range row {
				if k == old {
					continue
				}
				nr[k] = val
			}
			nr[new] = v
			c.Rows[i] = nr
		}
	}
	return c
}

// renameFieldRefs rewrites {{old}} tokens in formula text to {{new}},
// splicing at token offsets so all other formatting survives untouched.
func renameFieldRefs(src, old, new string) string {
	var out strings.Builder
	last := 0
	for _, tok := range formula.Tokenize(src) {
		if tok.Type != token.FIELDREF || tok.Literal != old {
			continue
		}
		end := strings.Index(src[tok.Pos.Offset:], "}}")
		if end < 0 {
			continue
		}
		end += tok.Pos.Offset + len("}}")
		out.WriteString(src[last:tok.Pos.Offset])
		out.WriteString("{{" + new + "}}")
		last = end
	}
	out.WriteString(src[last:])
	return out.String()
}
