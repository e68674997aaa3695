// Package embed provides the Go embedding API for quark.
//
// Quark is embeddable in Go applications. Pass assembly source, get
// the final machine state:
//
//	s, err := embed.Execute(`
//	    addi a0, x0, 42
//	    ebreak
//	`)
//	fmt.Println(s.Core.Reg(10))
//
// ExecuteWithOptions adds cycle limits, timeouts and IO wiring:
//
//	var uart bytes.Buffer
//	s, err := embed.ExecuteWithOptions(source,
//	    embed.WithTimeout(5*time.Second),
//	    embed.WithCycleLimit(100_000),
//	    embed.WithUART(&uart),
//	)
package embed

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/quarksim/quark/pkg/asm"
	"github.com/quarksim/quark/pkg/loader"
	"github.com/quarksim/quark/pkg/rv32"
	"github.com/quarksim/quark/pkg/soc"
)

// Common errors
var (
	ErrTimeout    = errors.New("execution timeout exceeded")
	ErrCycleLimit = errors.New("cycle limit exceeded")
)

// DefaultCycleLimit bounds Execute runs that never reach an ebreak.
const DefaultCycleLimit = 10_000_000

// Execute assembles and runs source until an ebreak retires, then
// returns the halted system for inspection.
func Execute(source string) (*soc.SoC, error) {
	return ExecuteWithOptions(source)
}

// ExecuteFile runs a file. Files ending in .s or .asm are assembled;
// anything else is loaded as a memory image.
func ExecuteFile(path string, opts ...Option) (*soc.SoC, error) {
	if isSource(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ExecuteWithOptions(string(data), opts...)
	}
	img, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return ExecuteImage(img, opts...)
}

func isSource(path string) bool {
	for _, ext := range []string{".s", ".S", ".asm"} {
		if len(path) > len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// Options configures execution behavior for ExecuteWithOptions.
type Options struct {
	// Core configures the processor (shifter variant, address width).
	Core rv32.Config

	// Mem configures the memory fabric (size, latencies, UART sink).
	Mem soc.MemConfig

	// CycleLimit bounds the run. Zero means DefaultCycleLimit.
	CycleLimit uint64

	// Timeout sets maximum wall-clock execution time. Zero means no
	// timeout.
	Timeout time.Duration

	// Trace records every retirement, readable via SoC.Trace.
	Trace bool

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context
}

// Option is a functional option for configuring execution.
type Option func(*Options)

// WithCoreConfig sets the full processor configuration.
func WithCoreConfig(cfg rv32.Config) Option {
	return func(o *Options) {
		o.Core = cfg
	}
}

// WithTwoLevelShifter selects the faster shifter variant.
func WithTwoLevelShifter() Option {
	return func(o *Options) {
		o.Core.TwoLevelShifter = true
	}
}

// WithMemory sets the RAM size in bytes.
func WithMemory(bytes int) Option {
	return func(o *Options) {
		o.Mem.Size = bytes
	}
}

// WithLatency sets memory read and write latencies in cycles.
func WithLatency(read, write int) Option {
	return func(o *Options) {
		o.Mem.ReadLatency = read
		o.Mem.WriteLatency = write
	}
}

// WithUART directs UART output to w.
func WithUART(w io.Writer) Option {
	return func(o *Options) {
		o.Mem.UART = w
	}
}

// WithCycleLimit sets the cycle limit. Zero restores the default.
func WithCycleLimit(n uint64) Option {
	return func(o *Options) {
		o.CycleLimit = n
	}
}

// WithTimeout sets execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithTrace enables retirement tracing.
func WithTrace() Option {
	return func(o *Options) {
		o.Trace = true
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

// ExecuteWithOptions assembles and runs source with advanced
// configuration.
func ExecuteWithOptions(source string, opts ...Option) (*soc.SoC, error) {
	img, err := asm.Assemble(source)
	if err != nil {
		return nil, err
	}
	return ExecuteImage(img, opts...)
}

// ExecuteImage runs a pre-built memory image.
func ExecuteImage(img *loader.Image, opts ...Option) (*soc.SoC, error) {
	options := &Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(options)
	}

	s, err := soc.New(options.Core, options.Mem)
	if err != nil {
		return nil, err
	}
	img.Apply(s.Mem)
	if options.Trace {
		s.EnableTrace()
	}

	limit := options.CycleLimit
	if limit == 0 {
		limit = DefaultCycleLimit
	}

	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	if err := s.Run(ctx, limit); err != nil {
		switch {
		case errors.Is(err, soc.ErrCycleLimit):
			return s, ErrCycleLimit
		case errors.Is(err, context.DeadlineExceeded):
			return s, ErrTimeout
		}
		return s, err
	}
	return s, nil
}
