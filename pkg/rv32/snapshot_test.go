package rv32

import (
	"errors"
	"testing"

	"github.com/quarksim/quark/internal/testutil"
)

func TestSnapshotRoundTrip(t *testing.T) {
	c := newCore(t, Config{})
	m := newTestMem([]uint32{
		testutil.Addi(1, 0, 42),
		testutil.Addi(2, 0, 7),
		testutil.EBreak(),
	})
	runUntilEBreak(t, c, m, 10000)

	data, err := c.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := newCore(t, Config{})
	if err := restored.LoadState(data); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	if restored.PC() != c.PC() {
		t.Errorf("pc = 0x%x, want 0x%x", restored.PC(), c.PC())
	}
	if restored.State() != c.State() {
		t.Errorf("state = %v, want %v", restored.State(), c.State())
	}
	if restored.Cycles() != c.Cycles() {
		t.Errorf("cycles = %d, want %d", restored.Cycles(), c.Cycles())
	}
	for i := 0; i < 32; i++ {
		if restored.Reg(i) != c.Reg(i) {
			t.Errorf("x%d = 0x%08x, want 0x%08x", i, restored.Reg(i), c.Reg(i))
		}
	}
}

// A snapshot taken mid-program resumes cycle-exact: both cores see the
// same memory and must finish in identical state.
func TestSnapshotResume(t *testing.T) {
	prog := []uint32{
		testutil.Addi(1, 0, 1),
		testutil.Slli(2, 1, 9), // snapshot lands mid-shift
		testutil.Add(3, 2, 1),
		testutil.EBreak(),
	}

	reference := newCore(t, Config{})
	rm := newTestMem(prog)
	runUntilEBreak(t, reference, rm, 10000)

	// Run a second core halfway, snapshot, restore into a third, and
	// let it finish against the same memory image.
	half := newCore(t, Config{})
	hm := newTestMem(prog)
	var in BusIn
	for i := 0; i < 12; i++ {
		in = hm.tick(half.Step(in))
	}
	data, err := half.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	resumed := newCore(t, Config{})
	if err := resumed.LoadState(data); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	// The restored core re-drives the bus from its state; keep feeding
	// it the same memory.
	for {
		in = hm.tick(resumed.Step(in))
		if _, word, ok := resumed.Retired(); ok && word.IsEBreak() {
			break
		}
		if resumed.Cycles() > 10000 {
			t.Fatal("resumed core did not finish")
		}
	}

	if resumed.PC() != reference.PC() {
		t.Errorf("pc = 0x%x, want 0x%x", resumed.PC(), reference.PC())
	}
	if resumed.Cycles() != reference.Cycles() {
		t.Errorf("cycles = %d, want %d", resumed.Cycles(), reference.Cycles())
	}
	for i := 0; i < 32; i++ {
		if resumed.Reg(i) != reference.Reg(i) {
			t.Errorf("x%d = 0x%08x, want 0x%08x", i, resumed.Reg(i), reference.Reg(i))
		}
	}
}

func TestSnapshotBadMagic(t *testing.T) {
	c := newCore(t, Config{})
	data, err := c.SaveState()
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	if err := c.LoadState(data); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestSnapshotBadVersion(t *testing.T) {
	c := newCore(t, Config{})
	data, err := c.SaveState()
	if err != nil {
		t.Fatal(err)
	}
	data[4] = 0xFF
	if err := c.LoadState(data); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestSnapshotTruncated(t *testing.T) {
	c := newCore(t, Config{})
	data, err := c.SaveState()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.LoadState(data[:10]); err == nil {
		t.Error("expected error for truncated snapshot")
	}
	if err := c.LoadState(nil); err == nil {
		t.Error("expected error for empty snapshot")
	}
}

func TestSnapshotForcesX0Zero(t *testing.T) {
	c := newCore(t, Config{})
	data, err := c.SaveState()
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the stored x0 slot; offset: magic 4 + version 2 + pc 4 +
	// state 1 + cycles 8 + aluReg 4 + aluShamt 4 + instr 4 + rs1 4 +
	// rs2 4 = 39.
	data[39] = 0x55
	if err := c.LoadState(data); err != nil {
		t.Fatal(err)
	}
	if c.Reg(0) != 0 {
		t.Errorf("x0 = 0x%08x after restore, want 0", c.Reg(0))
	}
}
