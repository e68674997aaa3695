// Package repl provides an interactive monitor for inspecting and
// single-stepping a quark system.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/quarksim/quark/pkg/asm"
	"github.com/quarksim/quark/pkg/loader"
	"github.com/quarksim/quark/pkg/rv32"
	"github.com/quarksim/quark/pkg/soc"
)

const prompt = "quark> "

// REPL drives one SoC from an interactive command stream.
type REPL struct {
	soc     *soc.SoC
	coreCfg rv32.Config
	memCfg  soc.MemConfig
	history []string
}

// New creates a monitor around a fresh system.
func New(coreCfg rv32.Config, memCfg soc.MemConfig) (*REPL, error) {
	s, err := soc.New(coreCfg, memCfg)
	if err != nil {
		return nil, err
	}
	return &REPL{soc: s, coreCfg: coreCfg, memCfg: memCfg}, nil
}

// SoC exposes the monitored system, mainly for tests.
func (r *REPL) SoC() *soc.SoC { return r.soc }

// Start runs the monitor loop until quit or EOF.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "quark monitor - RV32I system inspector")
	fmt.Fprintln(out, "Type 'help' for available commands, 'quit' to exit")
	fmt.Fprintln(out)

	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			r.history = append(r.history, line)
		}
		if quit := r.handleCommand(line, out); quit {
			break
		}
	}
}

// handleCommand executes one monitor command and reports whether the
// loop should exit.
func (r *REPL) handleCommand(line string, out io.Writer) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "quit", "exit", "q":
		fmt.Fprintln(out, "Goodbye!")
		return true

	case "help", "h", "?":
		r.printHelp(out)

	case "load":
		if len(parts) != 2 {
			fmt.Fprintln(out, "usage: load <image>")
			break
		}
		img, err := loader.Load(parts[1])
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			break
		}
		img.Apply(r.soc.Mem)
		fmt.Fprintf(out, "Loaded %d words\n", len(img.Entries))

	case "asm":
		// Assemble one instruction and place it at the current pc.
		src := strings.TrimSpace(strings.TrimPrefix(line, "asm"))
		img, err := asm.Assemble(src + "\n")
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			break
		}
		for i, e := range img.Entries {
			r.soc.Mem.WriteWord(r.soc.Core.PC()+uint32(4*i), e.Word)
		}
		fmt.Fprintf(out, "%08x: %s\n", r.soc.Core.PC(), src)

	case "step", "s":
		n := 1
		if len(parts) > 1 {
			v, err := strconv.Atoi(parts[1])
			if err != nil || v < 1 {
				fmt.Fprintln(out, "usage: step [n]")
				break
			}
			n = v
		}
		for i := 0; i < n; i++ {
			if word, ok := r.soc.Tick(); ok {
				fmt.Fprintf(out, "cycle %d: retired %s\n", r.soc.Core.Cycles(), word)
			}
		}
		r.printStatus(out)

	case "run":
		limit := uint64(1_000_000)
		if len(parts) > 1 {
			v, err := strconv.ParseUint(parts[1], 0, 64)
			if err != nil {
				fmt.Fprintln(out, "usage: run [cycles]")
				break
			}
			limit = v
		}
		if err := r.soc.Run(context.Background(), limit); err != nil {
			fmt.Fprintf(out, "stopped: %v\n", err)
		}
		r.printStatus(out)

	case "regs":
		r.printRegs(out)

	case "mem":
		if len(parts) < 2 {
			fmt.Fprintln(out, "usage: mem <addr> [words]")
			break
		}
		addr, err := strconv.ParseUint(parts[1], 0, 32)
		if err != nil {
			fmt.Fprintln(out, "usage: mem <addr> [words]")
			break
		}
		n := 4
		if len(parts) > 2 {
			if v, err := strconv.Atoi(parts[2]); err == nil && v > 0 {
				n = v
			}
		}
		for i := 0; i < n; i++ {
			a := uint32(addr) + uint32(4*i)
			fmt.Fprintf(out, "%08x: %08x\n", a, r.soc.Mem.ReadWord(a))
		}

	case "disasm", "d":
		addr := uint64(r.soc.Core.PC())
		if len(parts) > 1 {
			v, err := strconv.ParseUint(parts[1], 0, 32)
			if err != nil {
				fmt.Fprintln(out, "usage: disasm [addr] [words]")
				break
			}
			addr = v
		}
		n := 8
		if len(parts) > 2 {
			if v, err := strconv.Atoi(parts[2]); err == nil && v > 0 {
				n = v
			}
		}
		for i := 0; i < n; i++ {
			a := uint32(addr) + uint32(4*i)
			word := r.soc.Mem.ReadWord(a)
			fmt.Fprintf(out, "%08x: %08x  %s\n", a, word, rv32.Instruction(word))
		}

	case "reset":
		r.soc.Core.Reset()
		fmt.Fprintln(out, "Core reset")
		r.printStatus(out)

	case "led":
		fmt.Fprintf(out, "LED: 0x%08x\n", r.soc.Mem.LED())

	case "buttons":
		if len(parts) != 2 {
			fmt.Fprintln(out, "usage: buttons <value>")
			break
		}
		v, err := strconv.ParseUint(parts[1], 0, 32)
		if err != nil {
			fmt.Fprintln(out, "usage: buttons <value>")
			break
		}
		r.soc.Mem.SetButtons(uint32(v))

	case "stats":
		stats := r.soc.Stats()
		fmt.Fprintf(out, "Cycles:  %d\n", stats.Cycles)
		fmt.Fprintf(out, "Retired: %d\n", stats.Retired)
		for cls, n := range stats.ClassCounts {
			fmt.Fprintf(out, "  %-8s %d\n", cls, n)
		}

	case "history":
		for i, h := range r.history {
			fmt.Fprintf(out, "%3d  %s\n", i+1, h)
		}

	default:
		fmt.Fprintf(out, "Unknown command: %s (try 'help')\n", parts[0])
	}
	return false
}

func (r *REPL) printStatus(out io.Writer) {
	c := r.soc.Core
	fmt.Fprintf(out, "pc=%08x state=%s cycles=%d\n", c.PC(), c.State(), c.Cycles())
}

func (r *REPL) printRegs(out io.Writer) {
	for i := 0; i < 32; i += 4 {
		for j := i; j < i+4; j++ {
			fmt.Fprintf(out, "  x%-2d %08x", j, r.soc.Core.Reg(j))
		}
		fmt.Fprintln(out)
	}
	r.printStatus(out)
}

func (r *REPL) printHelp(out io.Writer) {
	fmt.Fprintln(out, `Commands:
  load <image>          Load a .hex/.csv/.json/.parquet image
  asm <instruction>     Assemble one instruction at the current pc
  step [n]              Clock the system n cycles (default 1)
  run [cycles]          Run until ebreak or the cycle limit
  regs                  Dump the register file
  mem <addr> [words]    Dump memory words
  disasm [addr] [words] Disassemble memory (default: at pc)
  reset                 Reset the core (memory is preserved)
  led                   Show the LED register
  buttons <value>       Set the button inputs
  stats                 Show run statistics
  history               Show command history
  quit                  Exit the monitor`)
}
