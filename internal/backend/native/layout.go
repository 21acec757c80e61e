package native

import (
	"math"

	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// Null encodings inside the packed record. The fixed widths leave no
// room for a validity bitmap, so each type reserves a sentinel: a
// boolean byte outside 0/1, the most negative integer, and a string
// view addressing the reserved word at the bottom of the data segment.
// The null view always carries length zero, so the sentinel address is
// never dereferenced; the empty string keeps the canonical (0, 0) view.
const (
	nullBoolByte = 0xFF
	nullInt      = math.MinInt64
	nullStrAddr  = 1
)

// nullIntWord is the integer sentinel's bit pattern, loadable as an
// immediate.
const nullIntWord uint64 = 1 << 63

// Slot widths and alignment.
const (
	boolSlotSize   = 1
	intSlotSize    = 8
	stringSlotSize = 16 // two LE uint64 slots: address, then length
	slotAlign      = 8
)

// Slot is one field's location inside the packed record.
type Slot struct {
	Name   string
	Type   rulebook.FieldType
	Offset uint32
	Size   uint32
}

// Layout assigns every field of a table, raw and derived, a byte offset
// in the packed record. It is computed once per table and is stable for
// the lifetime of a generation run. String payload bytes live in a
// growable string table that starts at StringTable.
type Layout struct {
	Slots []Slot
	// StringTable is the 8-aligned offset where string payload bytes
	// begin; the fixed region ends there.
	StringTable uint32

	byName map[string]Slot
}

// ComputeLayout builds the record layout for a table. Fields are placed
// in schema order; integers and string views are 8-aligned.
func ComputeLayout(table *rulebook.Table) *Layout {
	l := &Layout{byName: make(map[string]Slot, len(table.Fields))}

	var off uint32
	for _, f := range table.Fields {
		var size uint32
		switch f.Type {
		case rulebook.TypeBool:
			size = boolSlotSize
		case rulebook.TypeInt:
			size = intSlotSize
			off = align(off, slotAlign)
		case rulebook.TypeString:
			size = stringSlotSize
			off = align(off, slotAlign)
		}
		slot := Slot{Name: f.Name, Type: f.Type, Offset: off, Size: size}
		l.Slots = append(l.Slots, slot)
		l.byName[f.Name] = slot
		off += size
	}
	l.StringTable = align(off, slotAlign)
	return l
}

// Slot looks up a field's slot by name.
func (l *Layout) Slot(name string) (Slot, bool) {
	s, ok := l.byName[name]
	return s, ok
}

func align(off, to uint32) uint32 {
	if rem := off % to; rem != 0 {
		return off + to - rem
	}
	return off
}
