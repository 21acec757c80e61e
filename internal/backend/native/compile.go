package native

import (
	"fmt"

	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/pkg/formula"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// compiler translates one derived field's AST into a self-contained
// routine. Routines never call each other; a reference to another
// derived field is a plain record load, which is why the loader must
// write each result back before dependents run.
//
// Register discipline: r3 is transient scratch (clobbered freely, like
// r0..r2 across helper calls), r4..r7 hold live values. A string value
// occupies two adjacent allocations, address then length.
//
// TODO: spill live registers to scratch once the ISA grows a store
// instruction; until then deeply nested string expressions exhaust the
// pool and fail to compile.
type compiler struct {
	plan   *plan.Plan
	layout *Layout
	lk     *linker
	asm    *asm
	next   reg
}

func compileField(p *plan.Plan, layout *Layout, lk *linker, field string) ([]byte, error) {
	c := &compiler{plan: p, layout: layout, lk: lk, asm: &asm{}, next: r4}
	f, _ := p.Table.Field(field)

	if err := c.routine(p.ASTs[field], f.Type); err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	return c.asm.code, nil
}

func (c *compiler) routine(n formula.Node, t rulebook.FieldType) error {
	switch t {
	case rulebook.TypeBool:
		dst, err := c.alloc()
		if err != nil {
			return err
		}
		if err := c.boolExpr(dst, n); err != nil {
			return err
		}
		c.asm.mov(r0, dst)
		c.asm.ret(TagBool)

	case rulebook.TypeInt:
		dst, err := c.alloc()
		if err != nil {
			return err
		}
		if err := c.intExpr(dst, n); err != nil {
			return err
		}
		// the integer null sentinel returns as a tagged null
		c.asm.loadImm(r3, nullIntWord)
		c.asm.cmp(OpEq, r3, dst, r3)
		isNull := c.asm.jnz(r3)
		c.asm.mov(r0, dst)
		c.asm.ret(TagInt)
		c.asm.patch(isNull)
		c.asm.ret(TagNull)

	case rulebook.TypeString:
		addr, length, err := c.allocPair()
		if err != nil {
			return err
		}
		if err := c.strExpr(addr, length, n); err != nil {
			return err
		}
		// the string null sentinel address returns as a tagged null
		c.asm.mov(r0, addr)
		c.asm.mov(r1, length)
		c.asm.loadImm(r3, nullStrAddr)
		c.asm.cmp(OpEq, r3, r0, r3)
		isNull := c.asm.jnz(r3)
		c.asm.ret(TagString)
		c.asm.patch(isNull)
		c.asm.ret(TagNull)
	}
	return nil
}

func (c *compiler) alloc() (reg, error) {
	if c.next > r7 {
		return 0, fmt.Errorf("expression too deep for the register pool")
	}
	r := c.next
	c.next++
	return r, nil
}

func (c *compiler) allocPair() (reg, reg, error) {
	a, err := c.alloc()
	if err != nil {
		return 0, 0, err
	}
	b, err := c.alloc()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// release frees the most recent allocations; lifetimes nest.
func (c *compiler) release(n int) {
	c.next -= reg(n)
}

// boolExpr emits code leaving 0 or 1 in dst. A null in boolean
// position reads as 0.
func (c *compiler) boolExpr(dst reg, n formula.Node) error {
	switch e := n.(type) {
	case *formula.LiteralBool:
		var v uint64
		if e.Value {
			v = 1
		}
		c.asm.loadImm(dst, v)

	case *formula.FieldRef:
		slot, ok := c.layout.Slot(e.Name)
		if !ok || slot.Type != rulebook.TypeBool {
			c.asm.loadImm(dst, 0)
			return nil
		}
		// only the exact true byte is truthy; 0 and the null byte read false
		c.asm.loadImm(r3, uint64(recordBase))
		c.asm.loadByte(dst, r3, slot.Offset)
		c.asm.loadImm(r3, 1)
		c.asm.cmp(OpEq, dst, dst, r3)

	case *formula.Compare:
		return c.compareExpr(dst, e)

	case *formula.Logical:
		return c.logicalExpr(dst, e)

	case *formula.If:
		// dst holds no live value yet, so it carries the condition
		if err := c.boolExpr(dst, e.Cond); err != nil {
			return err
		}
		toElse := c.asm.jz(dst)
		if err := c.boolExpr(dst, e.Then); err != nil {
			return err
		}
		done := c.asm.jmp()
		c.asm.patch(toElse)
		if e.Else != nil {
			if err := c.boolExpr(dst, e.Else); err != nil {
				return err
			}
		} else {
			c.asm.loadImm(dst, 0)
		}
		c.asm.patch(done)

	case *formula.Call:
		return fmt.Errorf("function calls cannot be compiled to native code")

	default:
		// non-boolean values are never truthy
		c.asm.loadImm(dst, 0)
	}
	return nil
}

func (c *compiler) logicalExpr(dst reg, e *formula.Logical) error {
	if e.Op == formula.OpNot {
		if err := c.boolExpr(dst, e.Operands[0]); err != nil {
			return err
		}
		c.asm.not(dst, dst)
		return nil
	}

	// short-circuit: AND bails to false on the first zero operand, OR
	// bails to true on the first nonzero one
	var bails []int
	shortVal := uint64(0)
	for _, operand := range e.Operands {
		if err := c.boolExpr(dst, operand); err != nil {
			return err
		}
		if e.Op == formula.OpAnd {
			bails = append(bails, c.asm.jz(dst))
		} else {
			bails = append(bails, c.asm.jnz(dst))
			shortVal = 1
		}
	}
	// falling through leaves the last operand's 0/1 in dst, which is
	// already the combined result
	done := c.asm.jmp()
	for _, site := range bails {
		c.asm.patch(site)
	}
	c.asm.loadImm(dst, shortVal)
	c.asm.patch(done)
	return nil
}

func (c *compiler) compareExpr(dst reg, e *formula.Compare) error {
	lt := c.plan.TypeOf(e.Left)
	rt := c.plan.TypeOf(e.Right)
	if lt != rt {
		c.asm.loadImm(dst, 0)
		return nil
	}

	switch lt {
	case rulebook.TypeBool:
		return c.boolCompare(dst, e)
	case rulebook.TypeInt:
		return c.intCompare(dst, e)
	default:
		return c.strCompare(dst, e)
	}
}

// boolCompare compares raw boolean bytes so a null side is visible:
// any comparison against null is false, including inequality.
func (c *compiler) boolCompare(dst reg, e *formula.Compare) error {
	if e.Op != formula.OpEq && e.Op != formula.OpNe {
		c.asm.loadImm(dst, 0)
		return nil
	}

	// dst holds no live value yet, so it doubles as the left operand;
	// r2 is a transient flag between a cmp and its branch
	if err := c.boolByteExpr(dst, e.Left); err != nil {
		return err
	}
	b, err := c.alloc()
	if err != nil {
		return err
	}
	if err := c.boolByteExpr(b, e.Right); err != nil {
		return err
	}

	c.asm.loadImm(r3, nullBoolByte)
	c.asm.cmp(OpEq, r2, dst, r3)
	leftNull := c.asm.jnz(r2)
	c.asm.cmp(OpEq, r2, b, r3)
	rightNull := c.asm.jnz(r2)
	op := OpEq
	if e.Op == formula.OpNe {
		op = OpNe
	}
	c.asm.cmp(op, dst, dst, b)
	done := c.asm.jmp()
	c.asm.patch(leftNull)
	c.asm.patch(rightNull)
	c.asm.loadImm(dst, 0)
	c.asm.patch(done)
	c.release(1)
	return nil
}

// boolByteExpr leaves a boolean byte in dst: 0, 1, or the null byte
// for a raw field read. Computed booleans are never null.
func (c *compiler) boolByteExpr(dst reg, n formula.Node) error {
	if ref, ok := n.(*formula.FieldRef); ok {
		if slot, found := c.layout.Slot(ref.Name); found && slot.Type == rulebook.TypeBool {
			c.asm.loadImm(r3, uint64(recordBase))
			c.asm.loadByte(dst, r3, slot.Offset)
			return nil
		}
	}
	return c.boolExpr(dst, n)
}

func (c *compiler) intCompare(dst reg, e *formula.Compare) error {
	if err := c.intExpr(dst, e.Left); err != nil {
		return err
	}
	b, err := c.alloc()
	if err != nil {
		return err
	}
	if err := c.intExpr(b, e.Right); err != nil {
		return err
	}

	var nullSites []int
	c.asm.loadImm(r3, nullIntWord)
	if nullable(e.Left) {
		c.asm.cmp(OpEq, r2, dst, r3)
		nullSites = append(nullSites, c.asm.jnz(r2))
	}
	if nullable(e.Right) {
		c.asm.cmp(OpEq, r2, b, r3)
		nullSites = append(nullSites, c.asm.jnz(r2))
	}

	switch e.Op {
	case formula.OpEq:
		c.asm.cmp(OpEq, dst, dst, b)
	case formula.OpNe:
		c.asm.cmp(OpNe, dst, dst, b)
	case formula.OpLt:
		c.asm.cmp(OpLtS, dst, dst, b)
	case formula.OpLe:
		c.asm.cmp(OpLeS, dst, dst, b)
	case formula.OpGt:
		c.asm.cmp(OpLtS, dst, b, dst)
	case formula.OpGe:
		c.asm.cmp(OpLeS, dst, b, dst)
	}

	if len(nullSites) > 0 {
		done := c.asm.jmp()
		for _, site := range nullSites {
			c.asm.patch(site)
		}
		c.asm.loadImm(dst, 0)
		c.asm.patch(done)
	}
	c.release(1)
	return nil
}

// strCompare orders byte-wise through the compare helper. Plain
// operands evaluate straight into the helper's argument registers;
// concatenations and conditionals stage through the pool first. A null
// sentinel on either side makes the comparison false before the helper
// runs.
func (c *compiler) strCompare(dst reg, e *formula.Compare) error {
	lPlain, rPlain := plainStr(e.Left), plainStr(e.Right)
	switch {
	case lPlain && rPlain:
		if err := c.strExpr(r0, r1, e.Left); err != nil {
			return err
		}
		if err := c.strExpr(r2, r3, e.Right); err != nil {
			return err
		}

	case rPlain:
		ll, err := c.alloc()
		if err != nil {
			return err
		}
		if err := c.strExpr(dst, ll, e.Left); err != nil {
			return err
		}
		if err := c.strExpr(r2, r3, e.Right); err != nil {
			return err
		}
		c.asm.mov(r0, dst)
		c.asm.mov(r1, ll)
		c.release(1)

	case lPlain:
		rl, err := c.alloc()
		if err != nil {
			return err
		}
		if err := c.strExpr(dst, rl, e.Right); err != nil {
			return err
		}
		if err := c.strExpr(r0, r1, e.Left); err != nil {
			return err
		}
		c.asm.mov(r2, dst)
		c.asm.mov(r3, rl)
		c.release(1)

	default:
		ll, err := c.alloc()
		if err != nil {
			return err
		}
		if err := c.strExpr(dst, ll, e.Left); err != nil {
			return err
		}
		ra, rl, err := c.allocPair()
		if err != nil {
			return err
		}
		if err := c.strExpr(ra, rl, e.Right); err != nil {
			return err
		}
		c.asm.mov(r0, dst)
		c.asm.mov(r1, ll)
		c.asm.mov(r2, ra)
		c.asm.mov(r3, rl)
		c.release(3)
	}

	// dst is free again once the views sit in r0..r3; it doubles as the
	// sentinel constant and the guard flag
	var nullSites []int
	if nullable(e.Left) {
		c.asm.loadImm(dst, nullStrAddr)
		c.asm.cmp(OpEq, dst, r0, dst)
		nullSites = append(nullSites, c.asm.jnz(dst))
	}
	if nullable(e.Right) {
		c.asm.loadImm(dst, nullStrAddr)
		c.asm.cmp(OpEq, dst, r2, dst)
		nullSites = append(nullSites, c.asm.jnz(dst))
	}

	c.asm.call(HelperStrCmp)

	// helper leaves -1/0/1 in r0; fold against zero
	c.asm.loadImm(r1, 0)
	switch e.Op {
	case formula.OpEq:
		c.asm.cmp(OpEq, dst, r0, r1)
	case formula.OpNe:
		c.asm.cmp(OpNe, dst, r0, r1)
	case formula.OpLt:
		c.asm.cmp(OpLtS, dst, r0, r1)
	case formula.OpLe:
		c.asm.cmp(OpLeS, dst, r0, r1)
	case formula.OpGt:
		c.asm.cmp(OpLtS, dst, r1, r0)
	case formula.OpGe:
		c.asm.cmp(OpLeS, dst, r1, r0)
	}

	if len(nullSites) > 0 {
		done := c.asm.jmp()
		for _, site := range nullSites {
			c.asm.patch(site)
		}
		c.asm.loadImm(dst, 0)
		c.asm.patch(done)
	}
	return nil
}

// plainStr reports whether a string expression evaluates with no helper
// calls and no registers beyond its own pair and r3, so it can target
// the helper argument registers directly.
func plainStr(n formula.Node) bool {
	switch n.Kind() {
	case formula.KindConcat, formula.KindIf, formula.KindCall:
		return false
	}
	return true
}

// intExpr leaves an integer in dst; a null reads as the sentinel.
func (c *compiler) intExpr(dst reg, n formula.Node) error {
	switch e := n.(type) {
	case *formula.LiteralInt:
		c.asm.loadImm(dst, uint64(e.Value))

	case *formula.FieldRef:
		slot, ok := c.layout.Slot(e.Name)
		if !ok || slot.Type != rulebook.TypeInt {
			c.asm.loadImm(dst, nullIntWord)
			return nil
		}
		c.asm.loadImm(r3, uint64(recordBase))
		c.asm.loadWord(dst, r3, slot.Offset)

	case *formula.If:
		// the condition borrows dst before the branches fill it
		if err := c.boolExpr(dst, e.Cond); err != nil {
			return err
		}
		toElse := c.asm.jz(dst)
		if err := c.intExpr(dst, e.Then); err != nil {
			return err
		}
		done := c.asm.jmp()
		c.asm.patch(toElse)
		if e.Else != nil {
			if err := c.intExpr(dst, e.Else); err != nil {
				return err
			}
		} else {
			c.asm.loadImm(dst, 0)
		}
		c.asm.patch(done)

	case *formula.Call:
		return fmt.Errorf("function calls cannot be compiled to native code")

	default:
		c.asm.loadImm(dst, nullIntWord)
	}
	return nil
}

// strExpr leaves a string view in the (addr, length) register pair.
func (c *compiler) strExpr(addr, length reg, n formula.Node) error {
	switch e := n.(type) {
	case *formula.LiteralString:
		a, l := c.lk.intern(e.Value)
		c.asm.loadImm(addr, uint64(a))
		c.asm.loadImm(length, uint64(l))

	case *formula.FieldRef:
		slot, ok := c.layout.Slot(e.Name)
		if !ok || slot.Type != rulebook.TypeString {
			c.asm.loadImm(addr, 0)
			c.asm.loadImm(length, 0)
			return nil
		}
		c.asm.loadImm(r3, uint64(recordBase))
		c.asm.loadWord(addr, r3, slot.Offset)
		c.asm.loadWord(length, r3, slot.Offset+intSlotSize)

	case *formula.Concat:
		if err := c.textExpr(addr, length, e.Parts[0]); err != nil {
			return err
		}
		for _, part := range e.Parts[1:] {
			pa, pl, err := c.allocPair()
			if err != nil {
				return err
			}
			if err := c.textExpr(pa, pl, part); err != nil {
				return err
			}
			c.asm.mov(r0, addr)
			c.asm.mov(r1, length)
			c.asm.mov(r2, pa)
			c.asm.mov(r3, pl)
			c.asm.call(HelperStrConcat)
			c.asm.mov(addr, r0)
			c.asm.mov(length, r1)
			c.release(2)
		}

	case *formula.If:
		// the condition borrows the addr register before the branches
		// fill the pair
		if err := c.boolExpr(addr, e.Cond); err != nil {
			return err
		}
		toElse := c.asm.jz(addr)
		if err := c.strExpr(addr, length, e.Then); err != nil {
			return err
		}
		done := c.asm.jmp()
		c.asm.patch(toElse)
		if e.Else != nil {
			if err := c.strExpr(addr, length, e.Else); err != nil {
				return err
			}
		} else {
			c.asm.loadImm(addr, 0)
			c.asm.loadImm(length, 0)
		}
		c.asm.patch(done)

	case *formula.Call:
		return fmt.Errorf("function calls cannot be compiled to native code")

	default:
		c.asm.loadImm(addr, 0)
		c.asm.loadImm(length, 0)
	}
	return nil
}

// textExpr coerces any value to a string view the way concatenation
// does: null becomes empty, booleans become "true"/"false", integers
// render in decimal.
func (c *compiler) textExpr(addr, length reg, n formula.Node) error {
	switch c.plan.TypeOf(n) {
	case rulebook.TypeBool:
		if err := c.boolByteExpr(addr, n); err != nil {
			return err
		}
		c.asm.mov(r0, addr)
		c.asm.call(HelperBoolText)
		c.asm.mov(addr, r0)
		c.asm.mov(length, r1)
		return nil

	case rulebook.TypeInt:
		if err := c.intExpr(addr, n); err != nil {
			return err
		}
		c.asm.loadImm(r3, nullIntWord)
		c.asm.cmp(OpEq, length, addr, r3)
		isNull := c.asm.jnz(length)
		c.asm.mov(r0, addr)
		c.asm.call(HelperIntText)
		c.asm.mov(addr, r0)
		c.asm.mov(length, r1)
		done := c.asm.jmp()
		c.asm.patch(isNull)
		c.asm.loadImm(addr, 0)
		c.asm.loadImm(length, 0)
		c.asm.patch(done)
		return nil

	default:
		return c.strExpr(addr, length, n)
	}
}

// nullable reports whether an expression can read a null: field loads
// and conditionals can, everything else always yields a value.
func nullable(n formula.Node) bool {
	switch n.Kind() {
	case formula.KindFieldRef, formula.KindIf:
		return true
	}
	return false
}
