package rv32

import (
	"errors"
	"testing"

	"github.com/quarksim/quark/internal/testutil"
)

// testMem is a single-master word memory with configurable read and
// write latency, mirroring the bus contract the core expects.
type testMem struct {
	words        map[uint32]uint32
	readLatency  int
	writeLatency int

	rdata   uint32
	pending uint32
	reading bool
	rleft   int
	wleft   int
}

func newTestMem(program []uint32) *testMem {
	m := &testMem{words: make(map[uint32]uint32)}
	for i, w := range program {
		m.words[uint32(i*4)] = w
	}
	return m
}

func (m *testMem) tick(out BusOut) BusIn {
	if out.RStrb {
		m.reading = true
		m.pending = out.Addr
		m.rleft = m.readLatency
	}
	if out.WMask != 0 {
		word := m.words[out.Addr&^3]
		for i := 0; i < 4; i++ {
			if out.WMask&(1<<i) != 0 {
				shift := uint(i) * 8
				word = word&^(0xFF<<shift) | out.WData&(0xFF<<shift)
			}
		}
		m.words[out.Addr&^3] = word
		m.wleft = m.writeLatency
	}

	if m.reading && m.rleft == 0 {
		m.rdata = m.words[m.pending&^3]
		m.reading = false
	}

	in := BusIn{RData: m.rdata}
	if m.reading {
		in.RBusy = true
		m.rleft--
	}
	if m.wleft > 0 {
		in.WBusy = true
		m.wleft--
	}
	return in
}

func newCore(t *testing.T, cfg Config) *Core {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// runUntilEBreak clocks core and memory together until an EBREAK
// retires, checking the per-cycle invariants along the way, and
// returns the cycle count at retirement.
func runUntilEBreak(t *testing.T, c *Core, m *testMem, maxSteps int) uint64 {
	t.Helper()
	var in BusIn
	prev := c.Cycles()
	for i := 0; i < maxSteps; i++ {
		out := c.Step(in)
		in = m.tick(out)

		if c.Reg(0) != 0 {
			t.Fatal("x0 must stay zero")
		}
		if c.PC()&3 != 0 {
			t.Fatalf("pc must stay word aligned, got 0x%08x", c.PC())
		}
		if c.Cycles() != prev+1 {
			t.Fatalf("cycle counter must advance by one, got %d then %d", prev, c.Cycles())
		}
		prev = c.Cycles()

		if _, word, ok := c.Retired(); ok && word.IsEBreak() {
			return c.Cycles()
		}
	}
	t.Fatalf("program did not reach ebreak within %d cycles", maxSteps)
	return 0
}

// runProgram runs words from address 0 on a zero-latency memory.
func runProgram(t *testing.T, cfg Config, program []uint32) (*Core, *testMem, uint64) {
	t.Helper()
	c := newCore(t, cfg)
	m := newTestMem(program)
	cycles := runUntilEBreak(t, c, m, 10000)
	return c, m, cycles
}

func TestResetState(t *testing.T) {
	c := newCore(t, Config{ResetAddr: 0x80})
	if c.State() != StateWaitALUOrMem {
		t.Errorf("reset state = %v, want WAIT_ALU_OR_MEM", c.State())
	}
	if c.PC() != 0x80 {
		t.Errorf("reset pc = 0x%x, want 0x80", c.PC())
	}
	if c.Cycles() != 0 {
		t.Errorf("reset cycles = %d, want 0", c.Cycles())
	}
}

func TestAddrWidthValidation(t *testing.T) {
	for _, w := range []int{11, 33, -1} {
		if _, err := New(Config{AddrWidth: w}); !errors.Is(err, ErrAddrWidth) {
			t.Errorf("AddrWidth %d: expected ErrAddrWidth, got %v", w, err)
		}
	}
	for _, w := range []int{12, 24, 32} {
		if _, err := New(Config{AddrWidth: w}); err != nil {
			t.Errorf("AddrWidth %d: unexpected error %v", w, err)
		}
	}
}

func TestFetchTiming(t *testing.T) {
	c := newCore(t, Config{})
	m := newTestMem([]uint32{testutil.Addi(1, 0, 5)})

	var in BusIn
	// Out of reset: one cycle in WAIT_ALU_OR_MEM, then the fetch
	// sequence. The first instruction reaches EXECUTE on cycle 3.
	states := []State{StateFetchInstr, StateWaitInstr, StateExecute}
	for _, want := range states {
		out := c.Step(in)
		in = m.tick(out)
		if c.State() != want {
			t.Fatalf("cycle %d: state = %v, want %v", c.Cycles(), c.State(), want)
		}
	}

	c.Step(in)
	if _, word, ok := c.Retired(); !ok || uint32(word) != testutil.Addi(1, 0, 5) {
		t.Fatal("expected addi to retire on cycle 4")
	}
	if c.Reg(1) != 5 {
		t.Errorf("x1 = %d, want 5", c.Reg(1))
	}
	if c.PC() != 4 {
		t.Errorf("pc = %d, want 4", c.PC())
	}
}

func TestALUProgram(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, 7),
		testutil.Addi(2, 0, -3),
		testutil.Add(3, 1, 2),
		testutil.Sub(4, 1, 2),
		testutil.Xor(5, 1, 2),
		testutil.Or(6, 1, 2),
		testutil.And(7, 1, 2),
		testutil.Slt(8, 2, 1),
		testutil.Sltu(9, 2, 1),
		testutil.Sltiu(10, 1, -1),
		testutil.EBreak(),
	})

	want := map[int]uint32{
		1:  7,
		2:  0xFFFFFFFD,
		3:  4,
		4:  10,
		5:  0xFFFFFFFA,
		6:  0xFFFFFFFF,
		7:  5,
		8:  1, // -3 < 7 signed
		9:  0, // 0xFFFFFFFD < 7 unsigned is false
		10: 1, // 7 < 0xFFFFFFFF unsigned
	}
	for reg, v := range want {
		if got := c.Reg(reg); got != v {
			t.Errorf("x%d = 0x%08x, want 0x%08x", reg, got, v)
		}
	}
}

func TestShiftProgram(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, 1),
		testutil.Slli(2, 1, 31),
		testutil.Srai(3, 2, 1),
		testutil.Srli(4, 2, 4),
		testutil.Addi(5, 0, -8),
		testutil.Addi(6, 0, 2),
		testutil.Sra(7, 5, 6),
		testutil.Srl(8, 5, 6),
		testutil.Sll(9, 1, 6),
		testutil.EBreak(),
	})

	want := map[int]uint32{
		2: 0x80000000,
		3: 0xC0000000,
		4: 0x08000000,
		7: 0xFFFFFFFE, // -8 >> 2 arithmetic
		8: 0x3FFFFFFE, // -8 >> 2 logical
		9: 4,
	}
	for reg, v := range want {
		if got := c.Reg(reg); got != v {
			t.Errorf("x%d = 0x%08x, want 0x%08x", reg, got, v)
		}
	}
}

// A register shift uses only the low 5 bits of rs2.
func TestShiftAmountMasked(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, 1),
		testutil.Addi(2, 0, 33), // effective shamt 1
		testutil.Sll(3, 1, 2),
		testutil.EBreak(),
	})
	if got := c.Reg(3); got != 2 {
		t.Errorf("sll by 33 = %d, want 2", got)
	}
}

func TestShiftByZeroTakesNoExtraCycles(t *testing.T) {
	_, _, base := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 1, 0),
		testutil.EBreak(),
	})
	c, _, shifted := runProgram(t, Config{}, []uint32{
		testutil.Slli(1, 1, 0),
		testutil.EBreak(),
	})
	if shifted != base {
		t.Errorf("shift by zero took %d cycles, addi took %d", shifted, base)
	}
	if c.Reg(1) != 0 {
		t.Errorf("shift by zero must be identity, got 0x%08x", c.Reg(1))
	}
}

func TestShiftCycleCost(t *testing.T) {
	_, _, base := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, 1),
		testutil.Addi(2, 2, 0),
		testutil.EBreak(),
	})

	_, _, oneLevel := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, 1),
		testutil.Slli(2, 1, 8),
		testutil.EBreak(),
	})
	if oneLevel != base+9 {
		t.Errorf("one-level shift by 8: %d cycles over base, want 9", oneLevel-base)
	}

	_, _, twoLevel := runProgram(t, Config{TwoLevelShifter: true}, []uint32{
		testutil.Addi(1, 0, 1),
		testutil.Slli(2, 1, 8),
		testutil.EBreak(),
	})
	if twoLevel != base+3 {
		t.Errorf("two-level shift by 8: %d cycles over base, want 3", twoLevel-base)
	}
}

func TestTwoLevelShifterResults(t *testing.T) {
	for _, shamt := range []uint32{0, 1, 3, 4, 5, 8, 17, 31} {
		c, _, _ := runProgram(t, Config{TwoLevelShifter: true}, []uint32{
			testutil.Addi(1, 0, 1),
			testutil.Slli(2, 1, shamt),
			testutil.EBreak(),
		})
		if got := c.Reg(2); got != 1<<shamt {
			t.Errorf("slli by %d = 0x%08x, want 0x%08x", shamt, got, uint32(1)<<shamt)
		}
	}
}

func TestLoadStoreProgram(t *testing.T) {
	prog := []uint32{
		testutil.Addi(1, 0, 0x100),
		testutil.Lw(2, 1, 0),
		testutil.Lb(3, 1, 1),
		testutil.Lbu(4, 1, 3),
		testutil.Lh(5, 1, 2),
		testutil.Lhu(6, 1, 0),
		testutil.Sb(1, 2, 4),
		testutil.Sb(1, 3, 5),
		testutil.Sh(1, 2, 8),
		testutil.Sw(1, 2, 12),
		testutil.EBreak(),
	}
	c := newCore(t, Config{})
	m := newTestMem(prog)
	m.words[0x100] = 0x8899AABB
	runUntilEBreak(t, c, m, 10000)

	regs := map[int]uint32{
		2: 0x8899AABB,
		3: 0xFFFFFFAA,
		4: 0x88,
		5: 0xFFFF8899,
		6: 0xAABB,
	}
	for reg, v := range regs {
		if got := c.Reg(reg); got != v {
			t.Errorf("x%d = 0x%08x, want 0x%08x", reg, got, v)
		}
	}

	// sb wrote x2's low byte to 0x104, then x3's low byte to 0x105.
	if got := m.words[0x104]; got != 0x0000AABB {
		t.Errorf("word at 0x104 = 0x%08x, want 0x0000AABB", got)
	}
	if got := m.words[0x108]; got != 0x0000AABB {
		t.Errorf("word at 0x108 = 0x%08x, want 0x0000AABB", got)
	}
	if got := m.words[0x10C]; got != 0x8899AABB {
		t.Errorf("word at 0x10C = 0x%08x, want 0x8899AABB", got)
	}
}

// Results are latency independent: the same program on a slow memory
// takes longer but computes the same state.
func TestBusyStall(t *testing.T) {
	prog := []uint32{
		testutil.Addi(1, 0, 0x100),
		testutil.Lw(2, 1, 0),
		testutil.Sw(1, 2, 4),
		testutil.Lw(3, 1, 4),
		testutil.EBreak(),
	}

	fast := newCore(t, Config{})
	fm := newTestMem(prog)
	fm.words[0x100] = 0xDEADBEEF
	fastCycles := runUntilEBreak(t, fast, fm, 10000)

	slow := newCore(t, Config{})
	sm := newTestMem(prog)
	sm.words[0x100] = 0xDEADBEEF
	sm.readLatency = 3
	sm.writeLatency = 2
	slowCycles := runUntilEBreak(t, slow, sm, 10000)

	if slowCycles <= fastCycles {
		t.Errorf("slow memory should cost cycles: %d vs %d", slowCycles, fastCycles)
	}
	for _, c := range []*Core{fast, slow} {
		if got := c.Reg(2); got != 0xDEADBEEF {
			t.Errorf("x2 = 0x%08x, want 0xDEADBEEF", got)
		}
		if got := c.Reg(3); got != 0xDEADBEEF {
			t.Errorf("x3 = 0x%08x, want 0xDEADBEEF", got)
		}
	}
	if fast.PC() != slow.PC() {
		t.Errorf("pc diverged: 0x%x vs 0x%x", fast.PC(), slow.PC())
	}
}

func TestBranches(t *testing.T) {
	// Count down from 5, accumulating into x2.
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, 5),
		testutil.Add(2, 2, 1), // loop:
		testutil.Addi(1, 1, -1),
		testutil.Bne(1, 0, -8), // to loop
		testutil.Beq(0, 0, 8),  // skip the poison addi
		testutil.Addi(2, 0, 99),
		testutil.EBreak(),
	})
	if got := c.Reg(2); got != 15 {
		t.Errorf("x2 = %d, want 15", got)
	}
}

func TestBranchConditions(t *testing.T) {
	tests := []struct {
		name  string
		word  uint32
		taken bool
	}{
		{"beq taken", testutil.Beq(1, 2, 8), true},
		{"bne not taken", testutil.Bne(1, 2, 8), false},
		{"blt taken signed", testutil.Blt(3, 1, 8), true},
		{"bge not taken signed", testutil.Bge(3, 1, 8), false},
		{"bltu not taken", testutil.Bltu(3, 1, 8), false},
		{"bgeu taken", testutil.Bgeu(3, 1, 8), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// x1 = x2 = 7, x3 = -1.
			prog := []uint32{
				testutil.Addi(1, 0, 7),
				testutil.Addi(2, 0, 7),
				testutil.Addi(3, 0, -1),
				tt.word,
				testutil.Addi(4, 0, 1), // skipped when taken
				testutil.EBreak(),      // branch target
			}
			c, _, _ := runProgram(t, Config{}, prog)
			got := c.Reg(4) == 0
			if got != tt.taken {
				t.Errorf("taken = %v, want %v", got, tt.taken)
			}
		})
	}
}

func TestJalLinksAndJumps(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Jal(1, 12),     // to 12, x1 = 4
		testutil.Addi(2, 0, 99), // skipped
		testutil.Addi(2, 0, 98), // skipped
		testutil.EBreak(),       // at 12
	})
	if got := c.Reg(1); got != 4 {
		t.Errorf("link = %d, want 4", got)
	}
	if got := c.Reg(2); got != 0 {
		t.Errorf("jump target missed, x2 = %d", got)
	}
}

func TestJalrClearsBitZero(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, 13), // odd target
		testutil.Jalr(2, 1, 0),  // lands at 12
		testutil.Addi(3, 0, 99), // skipped
		testutil.EBreak(),       // at 12
	})
	if got := c.Reg(2); got != 8 {
		t.Errorf("link = %d, want 8", got)
	}
	if got := c.Reg(3); got != 0 {
		t.Errorf("jalr should land on the even address, x3 = %d", got)
	}
}

func TestLuiAuipc(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 1, 0), // filler so auipc sits at pc 4
		testutil.Auipc(2, 0x2), // 4 + 0x2000
		testutil.Lui(3, 0x12345),
		testutil.EBreak(),
	})
	if got := c.Reg(2); got != 0x2004 {
		t.Errorf("auipc = 0x%08x, want 0x2004", got)
	}
	if got := c.Reg(3); got != 0x12345000 {
		t.Errorf("lui = 0x%08x, want 0x12345000", got)
	}
}

func TestX0WriteDropped(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(0, 0, 99),
		testutil.Lui(0, 0xFFFFF),
		testutil.Add(1, 0, 0),
		testutil.EBreak(),
	})
	if got := c.Reg(1); got != 0 {
		t.Errorf("x0 leaked a value: x1 = %d", got)
	}
}

func TestIllegalRetiresAsNop(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, 7),
		0xFFFFFFFF,
		testutil.Addi(2, 0, 9),
		testutil.EBreak(),
	})
	if got := c.Reg(1); got != 7 {
		t.Errorf("x1 = %d, want 7", got)
	}
	if got := c.Reg(2); got != 9 {
		t.Errorf("execution did not continue past the illegal word, x2 = %d", got)
	}
	if c.PC() != 16 {
		t.Errorf("pc = %d, want 16", c.PC())
	}
}

func TestRDCYCLE(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.CSRRead(5, CsrCycle),
		testutil.CSRRead(6, CsrCycle),
		testutil.CSRRead(7, CsrCycleH),
		testutil.EBreak(),
	})
	first, second := c.Reg(5), c.Reg(6)
	if first < 1 {
		t.Errorf("first rdcycle = %d, want >= 1", first)
	}
	if second <= first {
		t.Errorf("rdcycle must be monotonic: %d then %d", first, second)
	}
	if got := c.Reg(7); got != 0 {
		t.Errorf("rdcycleh = %d, want 0 this early", got)
	}
}

func TestUnknownCSRReadsZero(t *testing.T) {
	c, _, _ := runProgram(t, Config{}, []uint32{
		testutil.Addi(1, 0, -1),
		testutil.CSRRead(1, 0x300), // mstatus is not served
		testutil.EBreak(),
	})
	if got := c.Reg(1); got != 0 {
		t.Errorf("unknown csr = 0x%08x, want 0", got)
	}
}

// A store to a plain RAM address skips the wait state when the IO hook
// says it is not an IO address.
func TestIOAddrHook(t *testing.T) {
	prog := []uint32{
		testutil.Addi(1, 0, 0x100),
		testutil.Sw(1, 1, 0),
		testutil.EBreak(),
	}

	_, _, always := runProgram(t, Config{}, prog)
	_, _, ram := runProgram(t, Config{
		IOAddr: func(addr uint32) bool { return addr >= 0x400000 },
	}, prog)

	if ram >= always {
		t.Errorf("RAM store with IO hook should be faster: %d vs %d", ram, always)
	}
}

func TestAddressTruncation(t *testing.T) {
	c := newCore(t, Config{AddrWidth: 16})
	m := newTestMem([]uint32{
		testutil.Lui(1, 0x10),      // x1 = 0x10000, above the 16-bit bus
		testutil.Addi(1, 1, 0x100), // x1 = 0x10100
		testutil.Lw(2, 1, 0),       // fetches the word at 0x100 after truncation
		testutil.EBreak(),
	})
	m.words[0x100] = 0x12345678
	runUntilEBreak(t, c, m, 10000)

	if got := c.Reg(2); got != 0x12345678 {
		t.Errorf("x2 = 0x%08x, want 0x12345678", got)
	}
}

func TestRegOutOfRangeMasked(t *testing.T) {
	c := newCore(t, Config{})
	if c.Reg(32) != 0 {
		t.Error("Reg(32) should wrap to x0 and read zero")
	}
}
