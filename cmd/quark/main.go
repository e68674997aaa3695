// Package main provides the CLI entry point for the quark RV32I
// simulator.
//
// Usage:
//
//	quark run program.hex          # Run an image until ebreak
//	quark run program.s -v         # Assemble and run with stats
//	quark asm program.s            # Assemble to a hex image
//	quark disasm program.hex       # Disassemble an image
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rocketlaunchr/dataframe-go/exports"

	"github.com/quarksim/quark/pkg/asm"
	"github.com/quarksim/quark/pkg/loader"
	"github.com/quarksim/quark/pkg/repl"
	"github.com/quarksim/quark/pkg/rv32"
	"github.com/quarksim/quark/pkg/soc"
)

// Version info set by GoReleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		return runCommand(os.Args[2:])
	case "asm":
		return asmCommand(os.Args[2:])
	case "disasm":
		return disasmCommand(os.Args[2:])
	case "repl":
		return replCommand(os.Args[2:])
	case "version":
		fmt.Printf("quark version %s\n", version)
		if commit != "none" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Printf("  built:  %s\n", date)
		}
		return nil
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	verbose := fs.Bool("v", false, "verbose output (stats and register dump)")
	cycles := fs.Uint64("cycles", 10_000_000, "cycle limit (0 = unlimited)")
	memSize := fs.Uint("mem", soc.DefaultMemSize, "memory size in bytes")
	rlat := fs.Uint("rlat", 0, "memory read latency in cycles")
	wlat := fs.Uint("wlat", 0, "memory write latency in cycles")
	twoLevel := fs.Bool("two-level-shifter", false, "shift 4 bits per cycle when possible")
	tracePath := fs.String("trace", "", "write retirement trace CSV to file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: quark run <image>")
	}

	img, err := loadOrAssemble(fs.Arg(0))
	if err != nil {
		return err
	}

	s, err := soc.New(
		rv32.Config{TwoLevelShifter: *twoLevel},
		soc.MemConfig{
			Size:         int(*memSize),
			ReadLatency:  int(*rlat),
			WriteLatency: int(*wlat),
			UART:         os.Stdout,
		},
	)
	if err != nil {
		return err
	}

	img.Apply(s.Mem)
	if *tracePath != "" {
		s.EnableTrace()
	}

	runErr := s.Run(context.Background(), *cycles)
	if runErr != nil && !errors.Is(runErr, soc.ErrCycleLimit) {
		return runErr
	}

	if *verbose {
		printStats(s)
	}
	if errors.Is(runErr, soc.ErrCycleLimit) {
		return runErr
	}

	if *tracePath != "" {
		if err := writeTrace(s, *tracePath); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
		if *verbose {
			fmt.Printf("Trace: %s\n", *tracePath)
		}
	}

	return nil
}

func asmCommand(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	output := fs.String("o", "", "output file (default: input with .hex extension)")
	verbose := fs.Bool("v", false, "verbose output")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: quark asm <file.s> [-o output.hex]")
	}

	inputPath := fs.Arg(0)
	outputPath := *output

	if outputPath == "" {
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + ".hex"
	}

	source, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	img, err := asm.Assemble(string(source))
	if err != nil {
		return fmt.Errorf("assembling: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	defer f.Close()

	if err := loader.WriteHex(f, img); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}

	if *verbose {
		fmt.Printf("Assembled %d words\n", len(img.Entries))
	}
	fmt.Printf("Output: %s\n", outputPath)
	return nil
}

func disasmCommand(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	output := fs.String("o", "", "output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: quark disasm <image> [-o output.s]")
	}

	img, err := loader.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, e := range img.Entries {
		fmt.Fprintf(&sb, "%08x: %08x  %s\n", e.Addr, e.Word, rv32.Instruction(e.Word))
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(sb.String()), 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Printf("Disassembled to: %s\n", *output)
	} else {
		fmt.Print(sb.String())
	}

	return nil
}

func replCommand(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	memSize := fs.Uint("mem", soc.DefaultMemSize, "memory size in bytes")
	twoLevel := fs.Bool("two-level-shifter", false, "shift 4 bits per cycle when possible")

	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := repl.New(
		rv32.Config{TwoLevelShifter: *twoLevel},
		soc.MemConfig{Size: int(*memSize), UART: os.Stdout},
	)
	if err != nil {
		return err
	}

	// Preload an image when one is named.
	if fs.NArg() > 0 {
		img, err := loadOrAssemble(fs.Arg(0))
		if err != nil {
			return err
		}
		img.Apply(r.SoC().Mem)
	}

	r.Start(os.Stdin, os.Stdout)
	return nil
}

// loadOrAssemble treats .s and .asm inputs as assembly source and
// everything else as a memory image.
func loadOrAssemble(path string) (*loader.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".s", ".asm":
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return asm.Assemble(string(source))
	default:
		return loader.Load(path)
	}
}

func printStats(s *soc.SoC) {
	stats := s.Stats()
	fmt.Printf("Cycles:  %d\n", stats.Cycles)
	fmt.Printf("Retired: %d\n", stats.Retired)
	if len(stats.ClassCounts) > 0 {
		fmt.Println("Classes:")
		for _, cls := range []rv32.Class{
			rv32.ClassALUReg, rv32.ClassALUImm, rv32.ClassLoad,
			rv32.ClassStore, rv32.ClassBranch, rv32.ClassJAL,
			rv32.ClassJALR, rv32.ClassLUI, rv32.ClassAUIPC,
			rv32.ClassSystem, rv32.ClassIllegal,
		} {
			if n, ok := stats.ClassCounts[cls.String()]; ok {
				fmt.Printf("  %-8s %d\n", cls, n)
			}
		}
	}
	fmt.Println("Registers:")
	for i := 0; i < 32; i += 4 {
		for j := i; j < i+4; j++ {
			fmt.Printf("  x%-2d %08x", j, s.Core.Reg(j))
		}
		fmt.Println()
	}
	fmt.Printf("PC: %08x\n", s.Core.PC())
}

func writeTrace(s *soc.SoC, path string) error {
	df := s.TraceFrame()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return exports.ExportToCSV(context.Background(), f, df)
}

func printUsage() error {
	fmt.Println(`quark - cycle-level RV32I simulator

Usage:
  quark <command> [arguments]

Commands:
  run <image>           Run an image (or .s source) until ebreak
  asm <file.s>          Assemble RV32I source to a hex image
  disasm <image>        Disassemble an image
  repl [image]          Start the interactive monitor
  version               Print version information
  help                  Show this help message

Run Options:
  -v                    Verbose output (stats and register dump)
  -cycles <n>           Cycle limit, 0 = unlimited (default 10000000)
  -mem <bytes>          Memory size (default 65536)
  -rlat <n>             Memory read latency in cycles
  -wlat <n>             Memory write latency in cycles
  -two-level-shifter    Shift 4 bits per cycle when possible
  -trace <file>         Write retirement trace CSV

Asm Options:
  -o <file>             Output file (default: input with .hex extension)
  -v                    Verbose output

Disasm Options:
  -o <file>             Output file (default: stdout)

Repl Options:
  -mem <bytes>          Memory size (default 65536)
  -two-level-shifter    Shift 4 bits per cycle when possible

Images may be .hex, .csv, .json or .parquet with addr and word columns.

Examples:
  quark run program.hex
  quark run -v -trace trace.csv program.s
  quark asm program.s -o program.hex
  quark disasm program.hex`)
	return nil
}
