package soc

import (
	"context"
	"errors"
	"fmt"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/quarksim/quark/pkg/rv32"
)

// Error definitions
var (
	ErrCycleLimit = errors.New("cycle limit exceeded")
)

// Stats contains metrics about a run for observability.
type Stats struct {
	Cycles      uint64            // clock cycles stepped
	Retired     uint64            // instructions retired
	ClassCounts map[string]uint64 // retirement count per instruction class
}

// Retirement is one row of the instruction trace.
type Retirement struct {
	Cycle uint64
	PC    uint32
	Word  rv32.Instruction
}

// SoC ties one core to one memory fabric and clocks them together.
//
// Basic usage:
//
//	s, _ := soc.New(rv32.Config{}, soc.MemConfig{})
//	s.Mem.LoadWords(0, program)
//	err := s.Run(ctx, 100000)
type SoC struct {
	Core *rv32.Core
	Mem  *Memory

	in           rv32.BusIn
	stats        Stats
	trace        []Retirement
	traceEnabled bool
	stopOnEBreak bool
}

// New creates a system with the given core and memory configurations.
// Runs stop when an EBREAK retires; SetStopOnEBreak disables that.
// An unset core AddrWidth defaults to the full 32 bits here so the IO
// region stays reachable.
func New(coreCfg rv32.Config, memCfg MemConfig) (*SoC, error) {
	if coreCfg.AddrWidth == 0 {
		coreCfg.AddrWidth = 32
	}
	core, err := rv32.New(coreCfg)
	if err != nil {
		return nil, fmt.Errorf("creating core: %w", err)
	}
	return &SoC{
		Core:         core,
		Mem:          NewMemory(memCfg),
		stats:        Stats{ClassCounts: make(map[string]uint64)},
		stopOnEBreak: true,
	}, nil
}

// EnableTrace starts recording every retirement.
func (s *SoC) EnableTrace() { s.traceEnabled = true }

// SetStopOnEBreak controls whether Run treats a retired EBREAK as
// normal completion.
func (s *SoC) SetStopOnEBreak(stop bool) { s.stopOnEBreak = stop }

// Tick advances the system one clock and reports whether an
// instruction retired on that edge.
func (s *SoC) Tick() (rv32.Instruction, bool) {
	out := s.Core.Step(s.in)
	s.in = s.Mem.Tick(out)
	s.stats.Cycles++

	pc, word, ok := s.Core.Retired()
	if !ok {
		return 0, false
	}
	s.stats.Retired++
	s.stats.ClassCounts[word.Class().String()]++
	if s.traceEnabled {
		s.trace = append(s.trace, Retirement{Cycle: s.Core.Cycles(), PC: pc, Word: word})
	}
	return word, true
}

// Run clocks the system until an EBREAK retires, the cycle limit is
// reached, or the context is cancelled. A zero maxCycles means no
// limit.
func (s *SoC) Run(ctx context.Context, maxCycles uint64) error {
	for n := uint64(0); maxCycles == 0 || n < maxCycles; n++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if word, ok := s.Tick(); ok && s.stopOnEBreak && word.IsEBreak() {
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrCycleLimit, maxCycles)
}

// Stats returns the run metrics accumulated so far.
func (s *SoC) Stats() Stats { return s.stats }

// Trace returns the recorded retirements.
func (s *SoC) Trace() []Retirement { return s.trace }

// TraceFrame renders the recorded retirements as a DataFrame with one
// row per retired instruction.
func (s *SoC) TraceFrame() *dataframe.DataFrame {
	n := len(s.trace)
	cycles := make([]int64, n)
	pcs := make([]int64, n)
	words := make([]string, n)
	classes := make([]string, n)
	asm := make([]string, n)
	for i, r := range s.trace {
		cycles[i] = int64(r.Cycle)
		pcs[i] = int64(r.PC)
		words[i] = fmt.Sprintf("0x%08x", uint32(r.Word))
		classes[i] = r.Word.Class().String()
		asm[i] = r.Word.String()
	}
	return dataframe.NewDataFrame(
		int64Series("cycle", cycles),
		int64Series("pc", pcs),
		dataframe.NewSeriesString("word", nil, toAny(words)...),
		dataframe.NewSeriesString("class", nil, toAny(classes)...),
		dataframe.NewSeriesString("asm", nil, toAny(asm)...),
	)
}

func int64Series(name string, vals []int64) dataframe.Series {
	return dataframe.NewSeriesInt64(name, nil, toAny(vals)...)
}

func toAny[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
