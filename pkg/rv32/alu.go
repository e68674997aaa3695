package rv32

// aluCompare holds the comparison outputs shared by the ALU and the
// branch predicate. All three derive from a single 33-bit subtract,
// the trick borrowed from swapforth/J1: {1,~in2} + {0,in1} + 1.
type aluCompare struct {
	minus uint32 // in1 - in2
	eq    bool
	lt    bool // signed
	ltu   bool // unsigned
}

func compare(in1, in2 uint32) aluCompare {
	minus := (uint64(1)<<32 | uint64(^in2)) + uint64(in1) + 1
	ltu := minus&(1<<32) != 0
	lt := ltu
	if in1>>31 != in2>>31 {
		lt = in1>>31 != 0
	}
	return aluCompare{
		minus: uint32(minus),
		eq:    uint32(minus) == 0,
		lt:    lt,
		ltu:   ltu,
	}
}

// aluOut selects the combinational ALU result for funct3. Shift
// results come from the iterative shifter's accumulator, which the
// caller passes in; for SUB the caller reports whether bit 30 applies
// (register form only, never ADDI).
func aluOut(instr Instruction, cls Class, in1, in2, shiftAcc uint32, cmp aluCompare) uint32 {
	switch instr.Funct3() {
	case funct3AddSub:
		if instr.Bit30() && cls == ClassALUReg {
			return cmp.minus
		}
		return in1 + in2
	case funct3Slt:
		if cmp.lt {
			return 1
		}
		return 0
	case funct3Sltu:
		if cmp.ltu {
			return 1
		}
		return 0
	case funct3Xor:
		return in1 ^ in2
	case funct3Or:
		return in1 | in2
	case funct3And:
		return in1 & in2
	default: // funct3Sll, funct3SrlSra
		return shiftAcc
	}
}

// funct3IsShift reports whether funct3 selects SLL or SRL/SRA.
func funct3IsShift(funct3 uint32) bool {
	return funct3 == funct3Sll || funct3 == funct3SrlSra
}

// shifterStep advances the iterative shifter by one clock. It runs
// every cycle independent of the control state: on the EXECUTE edge of
// a shift instruction (latch true) it captures the operand and the
// shift amount; on any other cycle with a nonzero remaining count it
// moves the accumulator one bit (or four, in two-level mode) toward
// completion.
func (c *Core) shifterStep(latch bool, in1, in2 uint32) {
	if latch {
		c.aluReg = in1
		c.aluShamt = in2 & 0x1F
		return
	}
	if c.aluShamt == 0 {
		return
	}

	step := uint32(1)
	if c.cfg.TwoLevelShifter && c.aluShamt >= 4 {
		step = 4
	}
	c.aluShamt -= step

	switch c.instr.Funct3() {
	case funct3Sll:
		c.aluReg <<= step
	case funct3SrlSra:
		if c.instr.Bit30() {
			c.aluReg = uint32(int32(c.aluReg) >> step) // SRA
		} else {
			c.aluReg >>= step // SRL
		}
	}
}
