package native

import (
	"bytes"
	"encoding/binary"
	"strconv"
)

// Memory limits. The record segment spans recordBase..scratchBase, so
// a packed record can never exceed 64 KiB; scratch gets the same cap.
const (
	recordSegmentCap  = int(scratchBase - recordBase)
	scratchSegmentCap = recordSegmentCap
)

// defaultStepLimit bounds one routine invocation. Generated routines
// are branch-forward and terminate in far fewer steps; hitting the
// limit means corrupted code.
const defaultStepLimit = 100_000

// VM executes module routines. The module is read-only and shared; the
// VM itself holds per-invocation state (scratch) and must not be used
// from more than one goroutine at a time.
type VM struct {
	module  *Module
	scratch []byte

	// StepLimit overrides the default runaway bound when positive.
	StepLimit int
}

// NewVM creates an execution context for a linked module.
func NewVM(m *Module) *VM {
	return &VM{module: m}
}

// Invoke runs the routine at a code offset against a packed record and
// returns its tagged result. Scratch from the previous invocation is
// discarded, so string views into scratch must be materialized before
// the next Invoke.
func (vm *VM) Invoke(entry uint32, rec *Record) (TaggedValue, error) {
	vm.scratch = vm.scratch[:0]
	code := vm.module.Code
	if int(entry) >= len(code) {
		return TaggedValue{}, abiFault("entry offset %d outside code segment", entry)
	}

	var regs [numRegs]uint64
	regs[r0] = uint64(recordBase)

	limit := vm.StepLimit
	if limit <= 0 {
		limit = defaultStepLimit
	}

	pc := int(entry)
	for steps := 0; ; steps++ {
		if steps >= limit {
			return TaggedValue{}, abiFault("step limit exceeded")
		}
		if pc < 0 || pc >= len(code) {
			return TaggedValue{}, abiFault("execution left the code segment at %d", pc)
		}

		op := Opcode(code[pc])
		if int(op) >= len(operandBytes) {
			return TaggedValue{}, abiFault("illegal opcode %d at %d", op, pc)
		}
		width := operandBytes[op]
		if pc+1+width > len(code) {
			return TaggedValue{}, abiFault("truncated instruction at %d", pc)
		}
		args := code[pc+1 : pc+1+width]
		pc += 1 + width

		switch op {
		case OpNop:

		case OpLoadImm:
			regs[args[0]&7] = binary.LittleEndian.Uint64(args[1:])

		case OpMov:
			regs[args[0]&7] = regs[args[1]&7]

		case OpLoadByte:
			addr := uint32(regs[args[1]&7]) + binary.LittleEndian.Uint32(args[2:])
			mem, err := vm.view(rec, addr, 1)
			if err != nil {
				return TaggedValue{}, err
			}
			regs[args[0]&7] = uint64(mem[0])

		case OpLoadWord:
			addr := uint32(regs[args[1]&7]) + binary.LittleEndian.Uint32(args[2:])
			mem, err := vm.view(rec, addr, 8)
			if err != nil {
				return TaggedValue{}, err
			}
			regs[args[0]&7] = binary.LittleEndian.Uint64(mem)

		case OpEq:
			regs[args[0]&7] = boolBits(regs[args[1]&7] == regs[args[2]&7])
		case OpNe:
			regs[args[0]&7] = boolBits(regs[args[1]&7] != regs[args[2]&7])
		case OpLtS:
			regs[args[0]&7] = boolBits(int64(regs[args[1]&7]) < int64(regs[args[2]&7]))
		case OpLeS:
			regs[args[0]&7] = boolBits(int64(regs[args[1]&7]) <= int64(regs[args[2]&7]))
		case OpNot:
			regs[args[0]&7] = boolBits(regs[args[1]&7] == 0)

		case OpJmp:
			pc += int(int32(binary.LittleEndian.Uint32(args)))
		case OpJz:
			if regs[args[0]&7] == 0 {
				pc += int(int32(binary.LittleEndian.Uint32(args[1:])))
			}
		case OpJnz:
			if regs[args[0]&7] != 0 {
				pc += int(int32(binary.LittleEndian.Uint32(args[1:])))
			}

		case OpCall:
			if err := vm.helper(Helper(args[0]), &regs, rec); err != nil {
				return TaggedValue{}, err
			}

		case OpRet:
			return vm.buildReturn(Tag(args[0]), &regs, rec)
		}
	}
}

func (vm *VM) buildReturn(tag Tag, regs *[numRegs]uint64, rec *Record) (TaggedValue, error) {
	switch tag {
	case TagNull:
		return NullTagged(), nil
	case TagBool:
		return BoolTagged(regs[r0] != 0), nil
	case TagInt:
		return IntTagged(int64(regs[r0])), nil
	case TagFloat:
		return TaggedValue{Tag: TagFloat, Bits: regs[r0]}, nil
	case TagString:
		addr, length := uint32(regs[r0]), uint32(regs[r1])
		if length == 0 && addr != 0 {
			return TaggedValue{}, abiFault("zero-length string with address %#x", addr)
		}
		// validate the view before it crosses the call boundary
		if length > 0 {
			if _, err := vm.view(rec, addr, int(length)); err != nil {
				return TaggedValue{}, err
			}
		}
		return StringTagged(addr, length), nil
	}
	return TaggedValue{}, abiFault("illegal return tag %d", tag)
}

// view resolves an address range to one memory segment with bounds
// checking. Record addresses fault when no record is bound.
func (vm *VM) view(rec *Record, addr uint32, n int) ([]byte, *AbiError) {
	var seg []byte
	var off int
	switch {
	case addr >= scratchBase:
		seg, off = vm.scratch, int(addr-scratchBase)
	case addr >= recordBase:
		if rec == nil {
			return nil, abiFault("record address %#x outside an invocation", addr)
		}
		seg, off = rec.buf, int(addr-recordBase)
	default:
		seg, off = vm.module.Data, int(addr)
	}
	if off < 0 || n < 0 || off+n > len(seg) {
		return nil, abiFault("memory access %#x+%d out of bounds", addr, n)
	}
	return seg[off : off+n], nil
}

// StringValue materializes a string view produced by the last Invoke.
func (vm *VM) StringValue(v TaggedValue, rec *Record) (string, error) {
	if v.Tag != TagString {
		return "", abiFault("value tagged %s is not a string", v.Tag)
	}
	if v.Len == 0 {
		return "", nil
	}
	mem, err := vm.view(rec, v.Addr, int(v.Len))
	if err != nil {
		return "", err
	}
	return string(mem), nil
}

func (vm *VM) helper(h Helper, regs *[numRegs]uint64, rec *Record) *AbiError {
	switch h {
	case HelperStrCmp:
		a, err := vm.view(rec, uint32(regs[r0]), int(uint32(regs[r1])))
		if err != nil && regs[r1] != 0 {
			return err
		}
		b, err := vm.view(rec, uint32(regs[r2]), int(uint32(regs[r3])))
		if err != nil && regs[r3] != 0 {
			return err
		}
		regs[r0] = uint64(int64(bytes.Compare(a, b)))
		return nil

	case HelperStrConcat:
		a, err := vm.view(rec, uint32(regs[r0]), int(uint32(regs[r1])))
		if err != nil && regs[r1] != 0 {
			return err
		}
		b, err := vm.view(rec, uint32(regs[r2]), int(uint32(regs[r3])))
		if err != nil && regs[r3] != 0 {
			return err
		}
		// copy before appending: an operand may already live in scratch,
		// and growing scratch must not alias it mid-copy
		joined := make([]byte, 0, len(a)+len(b))
		joined = append(joined, a...)
		joined = append(joined, b...)
		return vm.scratchString(joined, regs)

	case HelperIntText:
		return vm.scratchString(strconv.AppendInt(nil, int64(regs[r0]), 10), regs)

	case HelperBoolText:
		switch byte(regs[r0]) {
		case nullBoolByte:
			regs[r0], regs[r1] = 0, 0
			return nil
		case 0:
			return vm.scratchString([]byte("false"), regs)
		default:
			return vm.scratchString([]byte("true"), regs)
		}
	}
	return abiFault("illegal helper %d", h)
}

// scratchString appends bytes to scratch and leaves the view in r0/r1.
// The empty result is always the canonical (0, 0) view.
func (vm *VM) scratchString(b []byte, regs *[numRegs]uint64) *AbiError {
	if len(b) == 0 {
		regs[r0], regs[r1] = 0, 0
		return nil
	}
	if len(vm.scratch)+len(b) > scratchSegmentCap {
		return abiFault("scratch segment overflow")
	}
	addr := scratchBase + uint32(len(vm.scratch))
	vm.scratch = append(vm.scratch, b...)
	regs[r0], regs[r1] = uint64(addr), uint64(len(b))
	return nil
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
