// Package soc couples the rv32 core to a flat word-addressed memory
// fabric with a small memory-mapped IO region, and provides the run
// harness used by the CLI and the tests.
package soc

import (
	"io"

	"github.com/quarksim/quark/pkg/rv32"
)

// IO region layout. Addresses at IOBase and above never touch RAM.
const (
	IOBase     = 0x40000000
	IOLed      = IOBase + 0x0 // write: latch LEDs; read: last value
	IOButtons  = IOBase + 0x4 // read-only, test-settable
	IOUartStat = IOBase + 0x8 // read: bit 0 set, transmitter always ready
	IOUartData = IOBase + 0xC // write: low byte appended to the UART writer
)

// MemConfig configures the fabric. The zero value gives a 64 KiB RAM
// that completes every transaction in the same cycle.
type MemConfig struct {
	Size         int // RAM size in bytes, rounded up to a word
	ReadLatency  int // busy cycles before read data is valid
	WriteLatency int // busy cycles before a write completes
	UART         io.Writer
}

// DefaultMemSize is the RAM size used when MemConfig.Size is zero.
const DefaultMemSize = 64 * 1024

// Memory is the bus collaborator: single master, per-byte write
// enables, and busy backpressure per the configured latencies. Read
// data is held stable after RBusy falls until the next strobe.
type Memory struct {
	cfg   MemConfig
	words []uint32

	led     uint32
	buttons uint32

	rdata     uint32
	rbusyLeft int
	wbusyLeft int
	pending   uint32 // address of the in-flight read
	reading   bool
}

// NewMemory creates the fabric.
func NewMemory(cfg MemConfig) *Memory {
	if cfg.Size <= 0 {
		cfg.Size = DefaultMemSize
	}
	return &Memory{
		cfg:   cfg,
		words: make([]uint32, (cfg.Size+3)/4),
	}
}

// Tick advances the fabric one clock against the core's bus drive and
// returns the signals the core will sample on its next edge.
func (m *Memory) Tick(out rv32.BusOut) rv32.BusIn {
	if out.RStrb {
		m.reading = true
		m.pending = out.Addr
		m.rbusyLeft = m.cfg.ReadLatency
	}
	if out.WMask != 0 {
		m.write(out.Addr, out.WData, out.WMask)
		m.wbusyLeft = m.cfg.WriteLatency
	}

	if m.reading && m.rbusyLeft == 0 {
		m.rdata = m.read(m.pending)
		m.reading = false
	}

	in := rv32.BusIn{RData: m.rdata}
	if m.reading {
		in.RBusy = true
		m.rbusyLeft--
	}
	if m.wbusyLeft > 0 {
		in.WBusy = true
		m.wbusyLeft--
	}
	return in
}

func (m *Memory) read(addr uint32) uint32 {
	if addr >= IOBase {
		return m.readIO(addr)
	}
	idx := addr >> 2
	if int(idx) >= len(m.words) {
		return 0
	}
	return m.words[idx]
}

func (m *Memory) write(addr, data uint32, mask uint8) {
	if addr >= IOBase {
		m.writeIO(addr, data)
		return
	}
	idx := addr >> 2
	if int(idx) >= len(m.words) {
		return
	}
	word := m.words[idx]
	for i := 0; i < 4; i++ {
		if mask&(1<<i) != 0 {
			shift := uint(i) * 8
			word = word&^(0xFF<<shift) | data&(0xFF<<shift)
		}
	}
	m.words[idx] = word
}

func (m *Memory) readIO(addr uint32) uint32 {
	switch addr &^ 3 {
	case IOLed:
		return m.led
	case IOButtons:
		return m.buttons
	case IOUartStat:
		return 1
	default:
		return 0
	}
}

func (m *Memory) writeIO(addr, data uint32) {
	switch addr &^ 3 {
	case IOLed:
		m.led = data
	case IOUartData:
		if m.cfg.UART != nil {
			m.cfg.UART.Write([]byte{byte(data)})
		}
	}
}

// WriteWord stores a full word directly, bypassing the bus. Used for
// image loading and tests.
func (m *Memory) WriteWord(addr, word uint32) {
	m.write(addr&^3, word, 0xF)
}

// ReadWord loads a full word directly, bypassing the bus.
func (m *Memory) ReadWord(addr uint32) uint32 {
	return m.read(addr &^ 3)
}

// LoadWords stores consecutive words starting at the given byte
// address, the shape a program image arrives in.
func (m *Memory) LoadWords(base uint32, words []uint32) {
	for i, w := range words {
		m.WriteWord(base+uint32(i)*4, w)
	}
}

// LED returns the last value stored to the LED register.
func (m *Memory) LED() uint32 { return m.led }

// SetButtons sets the value read back from the button register.
func (m *Memory) SetButtons(v uint32) { m.buttons = v }
