package rv32

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Snapshot file format:
// - Magic: "QRKS" (4 bytes)
// - Version: uint16
// - PC: uint32
// - State: uint8
// - Cycles: uint64
// - AluReg: uint32
// - AluShamt: uint32
// - Instr: uint32
// - Rs1, Rs2: uint32
// - Registers: 32 × uint32

const (
	snapshotMagic   = "QRKS"
	snapshotVersion = 1
)

var (
	ErrInvalidMagic   = errors.New("invalid snapshot magic")
	ErrInvalidVersion = errors.New("unsupported snapshot version")
	ErrInvalidState   = errors.New("snapshot state out of range")
)

// SaveState serializes the architectural state. A core restored from
// the result resumes cycle-exact, provided it was constructed with the
// same Config.
func (c *Core) SaveState() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(snapshotMagic)

	fields := []any{
		uint16(snapshotVersion),
		c.pc,
		uint8(c.state),
		c.cycles,
		c.aluReg,
		c.aluShamt,
		uint32(c.instr),
		c.rs1,
		c.rs2,
		c.regs,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("writing snapshot: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// LoadState restores architectural state from a SaveState image.
func (c *Core) LoadState(data []byte) error {
	buf := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(buf, magic); err != nil {
		return fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return ErrInvalidMagic
	}

	var version uint16
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	if version != snapshotVersion {
		return ErrInvalidVersion
	}

	var (
		state uint8
		instr uint32
	)
	fields := []any{&c.pc, &state, &c.cycles, &c.aluReg, &c.aluShamt,
		&instr, &c.rs1, &c.rs2, &c.regs}
	for _, f := range fields {
		if err := binary.Read(buf, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
	}
	if state > uint8(StateWaitALUOrMem) {
		return fmt.Errorf("%w: %d", ErrInvalidState, state)
	}
	c.state = State(state)
	c.instr = Instruction(instr)
	c.regs[0] = 0
	c.retired = false
	return nil
}
