package repl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/quarksim/quark/internal/testutil"
	"github.com/quarksim/quark/pkg/rv32"
	"github.com/quarksim/quark/pkg/soc"
)

func newREPL(t *testing.T) *REPL {
	t.Helper()
	r, err := New(rv32.Config{}, soc.MemConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// session feeds commands to the monitor and returns its output.
func session(t *testing.T, r *REPL, commands ...string) string {
	t.Helper()
	var out bytes.Buffer
	r.Start(strings.NewReader(strings.Join(commands, "\n")+"\n"), &out)
	return out.String()
}

func TestQuit(t *testing.T) {
	r := newREPL(t)
	out := session(t, r, "quit")
	if !strings.Contains(out, "Goodbye!") {
		t.Errorf("expected goodbye, got: %s", out)
	}
}

func TestHelp(t *testing.T) {
	r := newREPL(t)
	out := session(t, r, "help", "quit")
	for _, cmd := range []string{"load", "step", "regs", "disasm"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help should mention %s", cmd)
		}
	}
}

func TestRunProgram(t *testing.T) {
	r := newREPL(t)
	r.SoC().Mem.LoadWords(0, []uint32{
		testutil.Addi(1, 0, 42),
		testutil.EBreak(),
	})

	out := session(t, r, "run", "regs", "quit")
	if !strings.Contains(out, "x1  0000002a") {
		t.Errorf("register dump should show x1 = 0x2a, got: %s", out)
	}
}

func TestStep(t *testing.T) {
	r := newREPL(t)
	r.SoC().Mem.LoadWords(0, []uint32{
		testutil.Addi(1, 0, 1),
		testutil.EBreak(),
	})

	out := session(t, r, "step 4", "quit")
	if !strings.Contains(out, "retired addi x1, x0, 1") {
		t.Errorf("step should report the retirement, got: %s", out)
	}
	if r.SoC().Core.Reg(1) != 1 {
		t.Errorf("x1 = %d, want 1", r.SoC().Core.Reg(1))
	}
}

func TestMemAndDisasm(t *testing.T) {
	r := newREPL(t)
	r.SoC().Mem.LoadWords(0, []uint32{0x00500093})

	out := session(t, r, "mem 0 1", "disasm 0 1", "quit")
	if !strings.Contains(out, "00000000: 00500093") {
		t.Errorf("mem dump missing, got: %s", out)
	}
	if !strings.Contains(out, "addi x1, x0, 5") {
		t.Errorf("disasm missing, got: %s", out)
	}
}

func TestAsmCommand(t *testing.T) {
	r := newREPL(t)
	out := session(t, r, "asm addi x2, x0, 9", "quit")
	if strings.Contains(out, "error") {
		t.Fatalf("asm failed: %s", out)
	}
	if got := r.SoC().Mem.ReadWord(0); got != testutil.Addi(2, 0, 9) {
		t.Errorf("word at pc = 0x%08x, want addi x2, x0, 9", got)
	}
}

func TestButtonsAndLed(t *testing.T) {
	r := newREPL(t)
	out := session(t, r, "buttons 0x5", "led", "quit")
	if r.SoC().Mem == nil {
		t.Fatal("no memory")
	}
	if !strings.Contains(out, "LED: 0x00000000") {
		t.Errorf("led readout missing, got: %s", out)
	}
	in := r.SoC().Mem.Tick(rv32.BusOut{Addr: soc.IOButtons, RStrb: true})
	if in.RData != 0x5 {
		t.Errorf("buttons = 0x%x, want 0x5", in.RData)
	}
}

func TestUnknownCommand(t *testing.T) {
	r := newREPL(t)
	out := session(t, r, "frobnicate", "quit")
	if !strings.Contains(out, "Unknown command") {
		t.Errorf("expected unknown command message, got: %s", out)
	}
}

func TestReset(t *testing.T) {
	r := newREPL(t)
	r.SoC().Mem.LoadWords(0, []uint32{
		testutil.Addi(1, 0, 3),
		testutil.EBreak(),
	})
	out := session(t, r, "run", "reset", "quit")
	if !strings.Contains(out, "Core reset") {
		t.Errorf("reset message missing, got: %s", out)
	}
	if r.SoC().Core.PC() != 0 {
		t.Errorf("pc after reset = 0x%x, want 0", r.SoC().Core.PC())
	}
	// Memory survives a core reset.
	if r.SoC().Mem.ReadWord(0) != testutil.Addi(1, 0, 3) {
		t.Error("memory should be preserved across reset")
	}
}
