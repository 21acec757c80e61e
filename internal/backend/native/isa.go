package native

import "encoding/binary"

// Register names r0..r7. Routine entry convention: r0 = record segment
// base, r1 = candidate-id address, r2 = candidate-id length. Runtime
// helpers take arguments in r0..r3 and return in r0/r1, clobbering
// r0..r3 only; r4..r7 survive a CALL.
type reg byte

const (
	r0 reg = iota
	r1
	r2
	r3
	r4
	r5
	r6
	r7
	numRegs = 8
)

// Memory segment bases. An address resolves to the segment whose base
// it falls above: literals below the record base, the packed record in
// the middle, per-invocation scratch on top. Address 0 is never mapped;
// it is the canonical empty string.
const (
	dataBase    uint32 = 0
	recordBase  uint32 = 0x10000
	scratchBase uint32 = 0x20000
)

// Opcode is the first byte of every instruction; operands follow at
// fixed widths per opcode. All multi-byte operands are little-endian.
type Opcode byte

const (
	OpNop      Opcode = iota
	OpLoadImm         // dst(1) imm(8): dst = imm
	OpMov             // dst(1) src(1)
	OpLoadByte        // dst(1) base(1) off(4): dst = mem8[base+off]
	OpLoadWord        // dst(1) base(1) off(4): dst = mem64[base+off]
	OpEq              // dst(1) a(1) b(1): dst = a == b
	OpNe              // dst(1) a(1) b(1)
	OpLtS             // dst(1) a(1) b(1): signed a < b
	OpLeS             // dst(1) a(1) b(1): signed a <= b
	OpNot             // dst(1) src(1): dst = src == 0
	OpJmp             // rel(4, signed, from next instruction)
	OpJz              // cond(1) rel(4): jump when cond == 0
	OpJnz             // cond(1) rel(4)
	OpCall            // helper(1)
	OpRet             // tag(1): return TaggedValue per the tag
)

// operandBytes gives each opcode's operand width for the decoder.
var operandBytes = [...]int{
	OpNop:      0,
	OpLoadImm:  9,
	OpMov:      2,
	OpLoadByte: 6,
	OpLoadWord: 6,
	OpEq:       3,
	OpNe:       3,
	OpLtS:      3,
	OpLeS:      3,
	OpNot:      2,
	OpJmp:      4,
	OpJz:       5,
	OpJnz:      5,
	OpCall:     1,
	OpRet:      1,
}

// Helper identifies a runtime routine reachable through CALL. Helpers
// run inside the VM; generated code never implements string handling
// itself.
type Helper byte

const (
	// HelperStrCmp: (r0 addrA, r1 lenA, r2 addrB, r3 lenB) -> r0 in
	// {-1, 0, 1} as byte-wise ordinal comparison.
	HelperStrCmp Helper = iota
	// HelperStrConcat: (r0 addrA, r1 lenA, r2 addrB, r3 lenB) ->
	// r0 addr, r1 len of A+B appended to scratch.
	HelperStrConcat
	// HelperIntText: (r0 int) -> r0 addr, r1 len of the decimal text.
	HelperIntText
	// HelperBoolText: (r0 bool byte) -> r0 addr, r1 len: "true",
	// "false", or the empty view for the null byte.
	HelperBoolText
	numHelpers
)

// asm builds routine code. Forward branches are emitted with a zero
// displacement and patched once the target is known.
type asm struct {
	code []byte
}

func (a *asm) op(op Opcode, operands ...byte) {
	a.code = append(a.code, byte(op))
	a.code = append(a.code, operands...)
}

func (a *asm) loadImm(dst reg, v uint64) {
	var imm [8]byte
	binary.LittleEndian.PutUint64(imm[:], v)
	a.op(OpLoadImm, append([]byte{byte(dst)}, imm[:]...)...)
}

func (a *asm) mov(dst, src reg) { a.op(OpMov, byte(dst), byte(src)) }

func (a *asm) loadByte(dst, base reg, off uint32) {
	var o [4]byte
	binary.LittleEndian.PutUint32(o[:], off)
	a.op(OpLoadByte, append([]byte{byte(dst), byte(base)}, o[:]...)...)
}

func (a *asm) loadWord(dst, base reg, off uint32) {
	var o [4]byte
	binary.LittleEndian.PutUint32(o[:], off)
	a.op(OpLoadWord, append([]byte{byte(dst), byte(base)}, o[:]...)...)
}

func (a *asm) cmp(op Opcode, dst, x, y reg) { a.op(op, byte(dst), byte(x), byte(y)) }

func (a *asm) not(dst, src reg) { a.op(OpNot, byte(dst), byte(src)) }

func (a *asm) call(h Helper) { a.op(OpCall, byte(h)) }

func (a *asm) ret(tag Tag) { a.op(OpRet, byte(tag)) }

// jmp emits an unconditional branch and returns its patch site.
func (a *asm) jmp() int {
	a.op(OpJmp, 0, 0, 0, 0)
	return len(a.code) - 4
}

// jz emits a branch taken when cond is zero; returns its patch site.
func (a *asm) jz(cond reg) int {
	a.op(OpJz, byte(cond), 0, 0, 0, 0)
	return len(a.code) - 4
}

// jnz emits a branch taken when cond is nonzero; returns its patch site.
func (a *asm) jnz(cond reg) int {
	a.op(OpJnz, byte(cond), 0, 0, 0, 0)
	return len(a.code) - 4
}

// patch points a branch site at the current end of code. The
// displacement is relative to the first byte after the branch.
func (a *asm) patch(site int) {
	rel := int32(len(a.code) - (site + 4))
	binary.LittleEndian.PutUint32(a.code[site:], uint32(rel))
}
