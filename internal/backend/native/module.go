package native

import (
	"encoding/binary"
	"fmt"
)

// Module is a linked, loadable unit: the concatenated routine code, a
// read-only data segment holding interned string literals, and one
// entry point per emitted derived field. A module is immutable after
// linking and may be shared across concurrent loaders.
type Module struct {
	// Fields lists the emitted derived fields in evaluation order.
	Fields []string
	// Entries maps a field to its routine's code offset.
	Entries map[string]uint32
	Code    []byte
	Data    []byte
}

// linker accumulates routines and interns literals while compiling a
// plan. The data segment's first word stays unmapped so neither the
// empty string view at address 0 nor the null sentinel address aliases
// a literal.
type linker struct {
	code     []byte
	data     []byte
	interned map[string]uint32
	fields   []string
	entries  map[string]uint32
}

func newLinker() *linker {
	return &linker{
		data:     make([]byte, slotAlign), // reserve the zero address
		interned: make(map[string]uint32),
		entries:  make(map[string]uint32),
	}
}

// intern places a literal in the data segment once and returns its
// view. The empty literal is the canonical (0, 0) view.
func (l *linker) intern(s string) (addr, length uint32) {
	if s == "" {
		return 0, 0
	}
	if a, ok := l.interned[s]; ok {
		return a, uint32(len(s))
	}
	a := uint32(len(l.data))
	l.data = append(l.data, s...)
	l.interned[s] = a
	return a, uint32(len(s))
}

// add appends one routine and records its entry point.
func (l *linker) add(field string, code []byte) {
	l.entries[field] = uint32(len(l.code))
	l.code = append(l.code, code...)
	l.fields = append(l.fields, field)
}

func (l *linker) seal() *Module {
	return &Module{
		Fields:  l.fields,
		Entries: l.entries,
		Code:    l.code,
		Data:    l.data,
	}
}

// moduleMagic starts every encoded module.
var moduleMagic = [4]byte{'F', 'B', 'N', 'M'}

const moduleVersion = 1

// Encode serializes the module into a deterministic byte form, the
// backend's on-disk artifact.
func (m *Module) Encode() []byte {
	var out []byte
	out = append(out, moduleMagic[:]...)
	out = append(out, moduleVersion)
	out = appendBytes(out, m.Data)
	out = appendBytes(out, m.Code)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(m.Fields)))
	for _, f := range m.Fields {
		out = appendBytes(out, []byte(f))
		out = binary.LittleEndian.AppendUint32(out, m.Entries[f])
	}
	return out
}

// DecodeModule reads an encoded module back into loadable form.
func DecodeModule(raw []byte) (*Module, error) {
	r := &byteReader{buf: raw}
	magic := r.take(4)
	if r.err != nil || string(magic) != string(moduleMagic[:]) {
		return nil, fmt.Errorf("not a native module")
	}
	if v := r.take(1); r.err != nil || v[0] != moduleVersion {
		return nil, fmt.Errorf("unsupported module version")
	}

	m := &Module{Entries: make(map[string]uint32)}
	m.Data = append([]byte(nil), r.bytes()...)
	m.Code = append([]byte(nil), r.bytes()...)
	n := r.uint32()
	for i := uint32(0); i < n && r.err == nil; i++ {
		name := string(r.bytes())
		m.Fields = append(m.Fields, name)
		m.Entries[name] = r.uint32()
	}
	if r.err != nil {
		return nil, fmt.Errorf("truncated native module")
	}
	return m, nil
}

func appendBytes(out, b []byte) []byte {
	out = binary.LittleEndian.AppendUint32(out, uint32(len(b)))
	return append(out, b...)
}

type byteReader struct {
	buf []byte
	err error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil || len(r.buf) < n {
		r.err = fmt.Errorf("short read")
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *byteReader) uint32() uint32 {
	b := r.take(4)
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *byteReader) bytes() []byte {
	return r.take(int(r.uint32()))
}
