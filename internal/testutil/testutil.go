// Package testutil provides shared test helpers: RV32I instruction
// encoders for building fetch streams by hand, and temp file helpers
// for loader tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ===== Instruction encoders =====

// EncodeR encodes an R-type instruction.
func EncodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return opcode | rd<<7 | funct3<<12 | rs1<<15 | rs2<<20 | funct7<<25
}

// EncodeI encodes an I-type instruction. The immediate is masked to
// 12 bits, so negative values work.
func EncodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return opcode | rd<<7 | funct3<<12 | rs1<<15 | (uint32(imm)&0xFFF)<<20
}

// EncodeS encodes an S-type instruction.
func EncodeS(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm) & 0xFFF
	return opcode | (u&0x1F)<<7 | funct3<<12 | rs1<<15 | rs2<<20 | (u>>5)<<25
}

// EncodeB encodes a B-type instruction. The offset must be even.
func EncodeB(funct3, rs1, rs2 uint32, offset int32) uint32 {
	u := uint32(offset) & 0x1FFF
	return 0x63 | (u>>11&1)<<7 | (u>>1&0xF)<<8 | funct3<<12 |
		rs1<<15 | rs2<<20 | (u>>5&0x3F)<<25 | (u>>12&1)<<31
}

// EncodeU encodes a U-type instruction from the 20-bit immediate.
func EncodeU(opcode, rd, imm20 uint32) uint32 {
	return opcode | rd<<7 | imm20<<12
}

// EncodeJ encodes a J-type instruction. The offset must be even.
func EncodeJ(rd uint32, offset int32) uint32 {
	u := uint32(offset) & 0x1FFFFF
	return 0x6F | rd<<7 | (u>>12&0xFF)<<12 | (u>>11&1)<<20 |
		(u>>1&0x3FF)<<21 | (u>>20&1)<<31
}

// Shorthand encoders for the instructions tests reach for most.

func Addi(rd, rs1 uint32, imm int32) uint32  { return EncodeI(0x13, rd, 0, rs1, imm) }
func Xori(rd, rs1 uint32, imm int32) uint32  { return EncodeI(0x13, rd, 4, rs1, imm) }
func Ori(rd, rs1 uint32, imm int32) uint32   { return EncodeI(0x13, rd, 6, rs1, imm) }
func Andi(rd, rs1 uint32, imm int32) uint32  { return EncodeI(0x13, rd, 7, rs1, imm) }
func Slti(rd, rs1 uint32, imm int32) uint32  { return EncodeI(0x13, rd, 2, rs1, imm) }
func Sltiu(rd, rs1 uint32, imm int32) uint32 { return EncodeI(0x13, rd, 3, rs1, imm) }
func Slli(rd, rs1, shamt uint32) uint32      { return EncodeR(0x13, rd, 1, rs1, shamt, 0) }
func Srli(rd, rs1, shamt uint32) uint32      { return EncodeR(0x13, rd, 5, rs1, shamt, 0) }
func Srai(rd, rs1, shamt uint32) uint32      { return EncodeR(0x13, rd, 5, rs1, shamt, 0x20) }

func Add(rd, rs1, rs2 uint32) uint32  { return EncodeR(0x33, rd, 0, rs1, rs2, 0) }
func Sub(rd, rs1, rs2 uint32) uint32  { return EncodeR(0x33, rd, 0, rs1, rs2, 0x20) }
func Sll(rd, rs1, rs2 uint32) uint32  { return EncodeR(0x33, rd, 1, rs1, rs2, 0) }
func Slt(rd, rs1, rs2 uint32) uint32  { return EncodeR(0x33, rd, 2, rs1, rs2, 0) }
func Sltu(rd, rs1, rs2 uint32) uint32 { return EncodeR(0x33, rd, 3, rs1, rs2, 0) }
func Xor(rd, rs1, rs2 uint32) uint32  { return EncodeR(0x33, rd, 4, rs1, rs2, 0) }
func Srl(rd, rs1, rs2 uint32) uint32  { return EncodeR(0x33, rd, 5, rs1, rs2, 0) }
func Sra(rd, rs1, rs2 uint32) uint32  { return EncodeR(0x33, rd, 5, rs1, rs2, 0x20) }
func Or(rd, rs1, rs2 uint32) uint32   { return EncodeR(0x33, rd, 6, rs1, rs2, 0) }
func And(rd, rs1, rs2 uint32) uint32  { return EncodeR(0x33, rd, 7, rs1, rs2, 0) }

func Lb(rd, rs1 uint32, off int32) uint32  { return EncodeI(0x03, rd, 0, rs1, off) }
func Lh(rd, rs1 uint32, off int32) uint32  { return EncodeI(0x03, rd, 1, rs1, off) }
func Lw(rd, rs1 uint32, off int32) uint32  { return EncodeI(0x03, rd, 2, rs1, off) }
func Lbu(rd, rs1 uint32, off int32) uint32 { return EncodeI(0x03, rd, 4, rs1, off) }
func Lhu(rd, rs1 uint32, off int32) uint32 { return EncodeI(0x03, rd, 5, rs1, off) }

func Sb(rs1, rs2 uint32, off int32) uint32 { return EncodeS(0x23, 0, rs1, rs2, off) }
func Sh(rs1, rs2 uint32, off int32) uint32 { return EncodeS(0x23, 1, rs1, rs2, off) }
func Sw(rs1, rs2 uint32, off int32) uint32 { return EncodeS(0x23, 2, rs1, rs2, off) }

func Beq(rs1, rs2 uint32, off int32) uint32  { return EncodeB(0, rs1, rs2, off) }
func Bne(rs1, rs2 uint32, off int32) uint32  { return EncodeB(1, rs1, rs2, off) }
func Blt(rs1, rs2 uint32, off int32) uint32  { return EncodeB(4, rs1, rs2, off) }
func Bge(rs1, rs2 uint32, off int32) uint32  { return EncodeB(5, rs1, rs2, off) }
func Bltu(rs1, rs2 uint32, off int32) uint32 { return EncodeB(6, rs1, rs2, off) }
func Bgeu(rs1, rs2 uint32, off int32) uint32 { return EncodeB(7, rs1, rs2, off) }

func Lui(rd, imm20 uint32) uint32   { return EncodeU(0x37, rd, imm20) }
func Auipc(rd, imm20 uint32) uint32 { return EncodeU(0x17, rd, imm20) }

func Jal(rd uint32, off int32) uint32       { return EncodeJ(rd, off) }
func Jalr(rd, rs1 uint32, off int32) uint32 { return EncodeI(0x67, rd, 0, rs1, off) }
func CSRRead(rd, csr uint32) uint32         { return 0x73 | rd<<7 | 2<<12 | csr<<20 }

// Nop is addi x0, x0, 0.
func Nop() uint32 { return 0x00000013 }

// EBreak halts the SoC run loop.
func EBreak() uint32 { return 0x00100073 }

// ===== File helpers =====

// WriteTempFile writes content to a file in t.TempDir() and returns
// its path. The file is cleaned up automatically.
func WriteTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteTempFile(%s): %v", name, err)
	}
	return path
}
