// Package rv32 implements a cycle-level functional model of a
// single-issue, multi-cycle RV32I processor in the style of the
// FemtoRV32 "Quark".
//
// All architectural state lives in a Core, and the only mutation path
// is Step, called once per clock:
//
//	core, _ := rv32.New(rv32.Config{})
//	out := core.Step(rv32.BusIn{})           // drives the memory bus
//	in := memory.Tick(out)                    // collaborator's reply
//	out = core.Step(in)                       // next clock
//
// Within one Step, every combinational signal is consistent with the
// pre-edge architectural state and the bus inputs; the clocked update
// then applies atomically and the returned BusOut reflects the new
// cycle. The core never blocks: backpressure on the bus simply keeps
// the state machine in place for another clock.
package rv32

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrAddrWidth = errors.New("address width out of range")
)

// Default construction parameters.
const (
	DefaultResetAddr = 0x00000000
	DefaultAddrWidth = 24
)

// State is the control FSM state.
type State uint8

const (
	StateFetchInstr State = iota
	StateWaitInstr
	StateExecute
	StateWaitALUOrMem
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFetchInstr:
		return "FETCH_INSTR"
	case StateWaitInstr:
		return "WAIT_INSTR"
	case StateExecute:
		return "EXECUTE"
	default:
		return "WAIT_ALU_OR_MEM"
	}
}

// BusIn carries the memory collaborator's signals sampled on a clock
// edge. RData must be held stable for at least one clock after RBusy
// deasserts.
type BusIn struct {
	RData uint32 // read data, valid when RBusy has fallen
	RBusy bool   // read not complete
	WBusy bool   // write not complete
}

// BusOut is the core's bus drive for the upcoming cycle.
type BusOut struct {
	Addr  uint32 // byte address, truncated to AddrWidth bits
	WData uint32 // store data
	WMask uint8  // per-byte write enable; nonzero means write cycle
	RStrb bool   // read request
}

// Config holds the construction-time parameters. The zero value gives
// reset address 0, a 24-bit address bus, and the one-bit-per-cycle
// shifter.
type Config struct {
	ResetAddr       uint32
	AddrWidth       int  // number of low-order address bits used, in [12,32]
	TwoLevelShifter bool // shift 4 bits per cycle while shamt >= 4

	// IOAddr, when non-nil, identifies IO addresses whose stores must
	// be waited on. With a nil hook every store waits.
	IOAddr func(addr uint32) bool
}

// Core models the processor. Not goroutine safe; a single goroutine
// should clock it.
type Core struct {
	cfg      Config
	addrMask uint32

	// Architectural state, mutated only by Step's clocked update.
	pc       uint32
	regs     [32]uint32
	state    State
	cycles   uint64
	aluReg   uint32 // shift accumulator
	aluShamt uint32 // remaining shift count; nonzero = shifter busy
	instr    Instruction
	rs1, rs2 uint32 // operand values latched with instr

	// Retirement record of the most recent Step, for harness use.
	retired     bool
	retiredPC   uint32
	retiredWord Instruction
}

// New creates a core and applies the reset state.
func New(cfg Config) (*Core, error) {
	if cfg.AddrWidth == 0 {
		cfg.AddrWidth = DefaultAddrWidth
	}
	if cfg.AddrWidth < 12 || cfg.AddrWidth > 32 {
		return nil, fmt.Errorf("%w: %d", ErrAddrWidth, cfg.AddrWidth)
	}
	c := &Core{
		cfg:      cfg,
		addrMask: uint32(1)<<cfg.AddrWidth - 1,
	}
	if cfg.AddrWidth == 32 {
		c.addrMask = 0xFFFFFFFF
	}
	c.Reset()
	return c, nil
}

// Reset places the core in its power-on state: WAIT_ALU_OR_MEM, so the
// first clock out of reset flows into FETCH_INSTR. Registers are
// zeroed for determinism.
func (c *Core) Reset() {
	c.pc = c.cfg.ResetAddr
	c.state = StateWaitALUOrMem
	c.cycles = 0
	c.aluReg = 0
	c.aluShamt = 0
	c.instr = 0
	c.rs1, c.rs2 = 0, 0
	c.regs = [32]uint32{}
	c.retired = false
}

// comb carries one clock's combinational evaluation.
type comb struct {
	cls        Class
	aluIn1     uint32
	aluIn2     uint32
	aluResult  uint32
	cmp        aluCompare
	shiftOp    bool
	aluWr      bool // EXECUTE edge of an ALU instruction
	lsAddr     uint32
	needToWait bool
	writeBack  bool
	wbData     uint32
	jumpRel    bool // JAL, or branch with predicate true
}

// evaluate derives every combinational signal from the pre-edge state
// and the bus inputs.
func (c *Core) evaluate(in BusIn) comb {
	var s comb
	s.cls = c.instr.Class()
	funct3 := c.instr.Funct3()

	s.aluIn1 = c.rs1
	if s.cls == ClassALUReg || s.cls == ClassBranch {
		s.aluIn2 = c.rs2
	} else {
		s.aluIn2 = c.instr.ImmI()
	}
	s.cmp = compare(s.aluIn1, s.aluIn2)
	s.shiftOp = funct3IsShift(funct3)
	s.aluWr = c.state == StateExecute && s.cls.IsALU()

	shiftAcc := c.aluReg
	if s.aluWr && s.shiftOp && s.aluIn2&0x1F == 0 {
		// A zero-count shift completes on its EXECUTE edge; the result
		// is the operand being latched this very clock.
		shiftAcc = s.aluIn1
	}
	s.aluResult = aluOut(c.instr, s.cls, s.aluIn1, s.aluIn2, shiftAcc, s.cmp)

	imm := c.instr.ImmI()
	if s.cls == ClassStore {
		imm = c.instr.ImmS()
	}
	s.lsAddr = c.rs1 + imm

	shiftBusy := s.cls.IsALU() && s.shiftOp && s.aluIn2&0x1F != 0
	storeWait := s.cls == ClassStore
	if c.cfg.IOAddr != nil {
		storeWait = storeWait && c.cfg.IOAddr(s.lsAddr&c.addrMask)
	}
	s.needToWait = s.cls == ClassLoad || storeWait || shiftBusy

	s.jumpRel = s.cls == ClassJAL || (s.cls == ClassBranch && c.predicate(s.cmp))

	s.writeBack = (c.state == StateExecute || c.state == StateWaitALUOrMem) &&
		s.cls != ClassBranch && s.cls != ClassStore && s.cls != ClassIllegal
	s.wbData = c.writeBackData(in, s)
	return s
}

// predicate evaluates the branch condition from the shared comparator.
func (c *Core) predicate(cmp aluCompare) bool {
	switch c.instr.Funct3() {
	case funct3Beq:
		return cmp.eq
	case funct3Bne:
		return !cmp.eq
	case funct3Blt:
		return cmp.lt
	case funct3Bge:
		return !cmp.lt
	case funct3Bltu:
		return cmp.ltu
	case funct3Bgeu:
		return !cmp.ltu
	default:
		return false
	}
}

// writeBackData selects the value headed for rd.
func (c *Core) writeBackData(in BusIn, s comb) uint32 {
	switch s.cls {
	case ClassLUI:
		return c.instr.ImmU()
	case ClassAUIPC:
		return c.pc + c.instr.ImmU()
	case ClassJAL, ClassJALR:
		return c.pc + 4
	case ClassLoad:
		return loadAlign(in.RData, s.lsAddr, c.instr.Funct3())
	case ClassALUImm, ClassALUReg:
		return s.aluResult
	case ClassSystem:
		if c.instr.Funct3() != 0 {
			return c.csrRead(c.instr.CSR())
		}
		return 0
	default:
		return 0
	}
}

// Step applies one clock edge: combinational evaluation against the
// pre-edge state, then the atomic clocked update, then the bus drive
// for the new cycle.
func (c *Core) Step(in BusIn) BusOut {
	s := c.evaluate(in)
	c.clockEdge(in, s)
	return c.busDrive()
}

func (c *Core) clockEdge(in BusIn, s comb) {
	c.cycles++
	c.retired = false

	aluBusy := c.aluShamt != 0

	// Register writeback uses pre-edge signals; x0 silently drops.
	if s.writeBack {
		if rd := c.instr.Rd(); rd != 0 {
			c.regs[rd] = s.wbData
		}
	}

	// The shifter advances every clock regardless of state.
	c.shifterStep(s.aluWr && s.shiftOp, s.aluIn1, s.aluIn2)

	switch c.state {
	case StateWaitALUOrMem:
		if !aluBusy && !in.RBusy && !in.WBusy {
			c.state = StateFetchInstr
		}
	case StateFetchInstr:
		c.state = StateWaitInstr
	case StateWaitInstr:
		if !in.RBusy {
			c.instr = Instruction(in.RData)
			c.rs1 = c.regs[c.instr.Rs1()]
			c.rs2 = c.regs[c.instr.Rs2()]
			c.state = StateExecute
		}
	case StateExecute:
		c.retired = true
		c.retiredPC = c.pc
		c.retiredWord = c.instr

		switch {
		case s.cls == ClassJALR:
			c.pc = (c.rs1 + c.instr.ImmI()) &^ 1
		case s.jumpRel && s.cls == ClassJAL:
			c.pc += c.instr.ImmJ()
		case s.jumpRel:
			c.pc += c.instr.ImmB()
		default:
			c.pc += 4
		}

		if s.needToWait {
			c.state = StateWaitALUOrMem
		} else {
			c.state = StateFetchInstr
		}
	}
}

// busDrive computes the bus outputs from the post-edge state.
func (c *Core) busDrive() BusOut {
	out := BusOut{WData: c.rs2, Addr: c.pc & c.addrMask}
	cls := c.instr.Class()

	switch c.state {
	case StateFetchInstr:
		out.RStrb = true
	case StateExecute:
		if cls == ClassLoad || cls == ClassStore {
			imm := c.instr.ImmI()
			if cls == ClassStore {
				imm = c.instr.ImmS()
			}
			out.Addr = (c.rs1 + imm) & c.addrMask
			if cls == ClassLoad {
				out.RStrb = true
			} else {
				out.WData = storeData(c.rs2, c.rs1+imm)
				out.WMask = storeMask(c.instr.Funct3(), c.rs1+imm)
			}
		}
	}
	return out
}

// PC returns the current program counter.
func (c *Core) PC() uint32 { return c.pc }

// Reg returns register x[i]; x0 always reads zero.
func (c *Core) Reg(i int) uint32 {
	if i == 0 {
		return 0
	}
	return c.regs[i&31]
}

// State returns the control FSM state.
func (c *Core) State() State { return c.state }

// Cycles returns the free-running cycle counter.
func (c *Core) Cycles() uint64 { return c.cycles }

// Retired reports whether the most recent Step retired an instruction,
// and if so its fetch address and word.
func (c *Core) Retired() (pc uint32, word Instruction, ok bool) {
	return c.retiredPC, c.retiredWord, c.retired
}
