package native

import (
	"encoding/binary"

	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// Record is one row packed into the fixed byte layout plus a growable
// string table. A record is exclusively owned by one evaluation; it is
// never shared across concurrent invocations.
type Record struct {
	layout *Layout
	buf    []byte
}

// PackRecord lays out a row's raw values. Derived slots start null and
// are filled by write-back as routines complete.
func PackRecord(l *Layout, row rulebook.Row) (*Record, error) {
	rec := &Record{layout: l, buf: make([]byte, l.StringTable)}
	for _, slot := range l.Slots {
		if err := rec.store(slot, row[slot.Name]); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (r *Record) store(slot Slot, v rulebook.Value) error {
	switch slot.Type {
	case rulebook.TypeBool:
		b := byte(nullBoolByte)
		if !v.IsNull() {
			b = 0
			if v.Bool {
				b = 1
			}
		}
		r.buf[slot.Offset] = b

	case rulebook.TypeInt:
		n := int64(nullInt)
		if !v.IsNull() {
			n = v.Int
		}
		binary.LittleEndian.PutUint64(r.buf[slot.Offset:], uint64(n))

	case rulebook.TypeString:
		// null gets the sentinel address, empty the canonical (0, 0) view
		var addr, length uint32
		switch {
		case v.IsNull():
			addr = nullStrAddr
		case v.Str != "":
			var err error
			if addr, length, err = r.appendString(v.Str); err != nil {
				return err
			}
		}
		r.storeView(slot, addr, length)
	}
	return nil
}

// appendString copies payload bytes into the record's string table and
// returns their record-segment view.
func (r *Record) appendString(s string) (addr, length uint32, err error) {
	if len(r.buf)+len(s) > recordSegmentCap {
		return 0, 0, abiFault("record segment overflow")
	}
	addr = recordBase + uint32(len(r.buf))
	r.buf = append(r.buf, s...)
	return addr, uint32(len(s)), nil
}

func (r *Record) storeView(slot Slot, addr, length uint32) {
	binary.LittleEndian.PutUint64(r.buf[slot.Offset:], uint64(addr))
	binary.LittleEndian.PutUint64(r.buf[slot.Offset+intSlotSize:], uint64(length))
}

// WriteBack stores a computed value at a derived field's slot so later
// routines read it as an input. Strings are re-copied into the record's
// own string table; a view into scratch would dangle across the next
// invocation.
func (r *Record) WriteBack(field string, v rulebook.Value) error {
	slot, ok := r.layout.Slot(field)
	if !ok {
		return abiFault("write-back to unknown field %q", field)
	}
	return r.store(slot, v)
}

// Loader drives a module against rows: pack, invoke each entry in
// evaluation order, check the returned tag, write the value back, and
// unpack scalar results.
type Loader struct {
	plan   *plan.Plan
	layout *Layout
	module *Module
	vm     *VM
}

// NewLoader binds a linked module to its plan.
func NewLoader(p *plan.Plan, m *Module) *Loader {
	return &Loader{
		plan:   p,
		layout: ComputeLayout(p.Table),
		module: m,
		vm:     NewVM(m),
	}
}

// Row evaluates every emitted derived field for one row of raw values.
// The first ABI fault is terminal for the whole record.
func (l *Loader) Row(raw rulebook.Row) (rulebook.Row, error) {
	rec, err := PackRecord(l.layout, raw)
	if err != nil {
		return nil, err
	}

	out := make(rulebook.Row, len(raw)+len(l.module.Fields))
	for k, v := range raw {
		out[k] = v
	}

	for _, field := range l.module.Fields {
		v, err := l.invoke(field, rec)
		if err != nil {
			if fault, ok := err.(*AbiError); ok {
				fault.Field = field
			}
			return nil, err
		}
		if err := rec.WriteBack(field, v); err != nil {
			return nil, err
		}
		if !v.IsNull() {
			out[field] = v
		}
	}
	return out, nil
}

// invoke runs one field's routine and unpacks the tagged result,
// checking the tag against the field's declared type.
func (l *Loader) invoke(field string, rec *Record) (rulebook.Value, error) {
	f, _ := l.plan.Table.Field(field)

	tv, err := l.vm.Invoke(l.module.Entries[field], rec)
	if err != nil {
		return rulebook.Null(), err
	}

	switch f.Type {
	case rulebook.TypeBool:
		if tv.Tag != TagBool {
			return rulebook.Null(), abiFault("routine returned %s, field declared bool", tv.Tag)
		}
		return rulebook.BoolValue(tv.AsBool()), nil

	case rulebook.TypeInt:
		switch tv.Tag {
		case TagInt:
			return rulebook.IntValue(tv.AsInt()), nil
		case TagNull:
			return rulebook.Null(), nil
		}
		return rulebook.Null(), abiFault("routine returned %s, field declared int", tv.Tag)

	default:
		switch tv.Tag {
		case TagString:
			// materialize before the next Invoke discards scratch
			s, err := l.vm.StringValue(tv, rec)
			if err != nil {
				return rulebook.Null(), err
			}
			return rulebook.StringValue(s), nil
		case TagNull:
			return rulebook.Null(), nil
		}
		return rulebook.Null(), abiFault("routine returned %s, field declared string", tv.Tag)
	}
}

// Table evaluates every row of the plan's table. Per-record faults are
// reported in the errs slot for that row; other rows still compute.
func (l *Loader) Table() (rows []rulebook.Row, errs []error) {
	rows = make([]rulebook.Row, len(l.plan.Table.Rows))
	errs = make([]error, len(l.plan.Table.Rows))
	for i, raw := range l.plan.Table.Rows {
		rows[i], errs[i] = l.Row(raw)
	}
	return rows, errs
}
