package rv32

import "fmt"

// Instruction represents a 32-bit RV32I instruction word.
//
// Field layout (base encoding):
//
//	┌─────────┬───────┬───────┬────────┬──────┬─────────┐
//	│ funct7  │  rs2  │  rs1  │ funct3 │  rd  │ opcode  │
//	│ 31..25  │ 24..20│ 19..15│ 14..12 │ 11..7│  6..0   │
//	└─────────┴───────┴───────┴────────┴──────┴─────────┘
//
// The five immediate forms (I/S/B/U/J) scatter their bits across the
// word; the Imm* accessors reassemble and sign-extend them.
type Instruction uint32

// Class identifies the instruction group selected by bits 6..2.
type Class uint8

const (
	ClassIllegal Class = iota
	ClassLoad          // LB, LH, LW, LBU, LHU
	ClassALUImm        // ADDI, SLTI, SLTIU, XORI, ORI, ANDI, SLLI, SRLI, SRAI
	ClassAUIPC
	ClassStore  // SB, SH, SW
	ClassALUReg // ADD, SUB, SLL, SLT, SLTU, XOR, SRL, SRA, OR, AND
	ClassLUI
	ClassBranch // BEQ, BNE, BLT, BGE, BLTU, BGEU
	ClassJALR
	ClassJAL
	ClassSystem // EBREAK, ECALL, CSRR*
)

// funct3 codes shared by the ALU instructions.
const (
	funct3AddSub = 0
	funct3Sll    = 1
	funct3Slt    = 2
	funct3Sltu   = 3
	funct3Xor    = 4
	funct3SrlSra = 5
	funct3Or     = 6
	funct3And    = 7
)

// funct3 codes of the branch instructions.
const (
	funct3Beq  = 0
	funct3Bne  = 1
	funct3Blt  = 4
	funct3Bge  = 5
	funct3Bltu = 6
	funct3Bgeu = 7
)

// funct3 codes of the load/store width field.
const (
	funct3Byte = 0
	funct3Half = 1
	funct3Word = 2
)

// Opcode returns bits 6..0.
func (i Instruction) Opcode() uint32 { return uint32(i) & 0x7F }

// Rd returns the destination register field (bits 11..7).
func (i Instruction) Rd() uint32 { return (uint32(i) >> 7) & 0x1F }

// Funct3 returns the 3-bit function selector (bits 14..12).
func (i Instruction) Funct3() uint32 { return (uint32(i) >> 12) & 0x7 }

// Rs1 returns the first source register field (bits 19..15).
func (i Instruction) Rs1() uint32 { return (uint32(i) >> 15) & 0x1F }

// Rs2 returns the second source register field (bits 24..20).
func (i Instruction) Rs2() uint32 { return (uint32(i) >> 20) & 0x1F }

// Funct7 returns the 7-bit function selector (bits 31..25).
func (i Instruction) Funct7() uint32 { return (uint32(i) >> 25) & 0x7F }

// Bit30 reports instruction bit 30, which distinguishes SUB from ADD
// and SRA from SRL.
func (i Instruction) Bit30() bool { return uint32(i)&(1<<30) != 0 }

// ImmI returns the sign-extended I-type immediate (bits 31..20).
func (i Instruction) ImmI() uint32 {
	return uint32(int32(i) >> 20)
}

// ImmS returns the sign-extended S-type immediate (bits 31..25 ∥ 11..7).
func (i Instruction) ImmS() uint32 {
	return uint32(int32(i)>>25)<<5 | (uint32(i)>>7)&0x1F
}

// ImmB returns the sign-extended B-type immediate, a 13-bit even offset.
func (i Instruction) ImmB() uint32 {
	return uint32(int32(i)>>31)<<12 |
		(uint32(i)>>7&1)<<11 |
		(uint32(i)>>25&0x3F)<<5 |
		(uint32(i)>>8&0xF)<<1
}

// ImmU returns the U-type immediate: bits 31..12 with 12 zero LSBs.
func (i Instruction) ImmU() uint32 {
	return uint32(i) & 0xFFFFF000
}

// ImmJ returns the sign-extended J-type immediate, a 21-bit even offset.
func (i Instruction) ImmJ() uint32 {
	return uint32(int32(i)>>31)<<20 |
		uint32(i)&0xFF000 |
		(uint32(i)>>20&1)<<11 |
		(uint32(i)>>21&0x3FF)<<1
}

// CSR returns the 12-bit CSR address of a SYSTEM instruction.
func (i Instruction) CSR() uint32 { return uint32(i) >> 20 }

// Class classifies the instruction by bits 6..2. Words matching none
// of the ten RV32I groups classify as ClassIllegal; the core retires
// them as NOPs.
func (i Instruction) Class() Class {
	switch (uint32(i) >> 2) & 0x1F {
	case 0x00:
		return ClassLoad
	case 0x04:
		return ClassALUImm
	case 0x05:
		return ClassAUIPC
	case 0x08:
		return ClassStore
	case 0x0C:
		return ClassALUReg
	case 0x0D:
		return ClassLUI
	case 0x18:
		return ClassBranch
	case 0x19:
		return ClassJALR
	case 0x1B:
		return ClassJAL
	case 0x1C:
		return ClassSystem
	default:
		return ClassIllegal
	}
}

// IsALU reports whether the instruction is ALUImm or ALUReg.
func (c Class) IsALU() bool { return c == ClassALUImm || c == ClassALUReg }

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassLoad:
		return "LOAD"
	case ClassALUImm:
		return "ALU_IMM"
	case ClassAUIPC:
		return "AUIPC"
	case ClassStore:
		return "STORE"
	case ClassALUReg:
		return "ALU_REG"
	case ClassLUI:
		return "LUI"
	case ClassBranch:
		return "BRANCH"
	case ClassJALR:
		return "JALR"
	case ClassJAL:
		return "JAL"
	case ClassSystem:
		return "SYSTEM"
	default:
		return "ILLEGAL"
	}
}

// IsEBreak reports whether the instruction is EBREAK (0x00100073).
func (i Instruction) IsEBreak() bool { return uint32(i) == 0x00100073 }

// String disassembles a single instruction and returns valid assembly
// implementing it. Unrecognized words render as .word literals.
func (i Instruction) String() string {
	rd, rs1, rs2 := i.Rd(), i.Rs1(), i.Rs2()

	switch i.Class() {
	case ClassLoad:
		mnemonics := [8]string{"lb", "lh", "lw", "", "lbu", "lhu"}
		if m := mnemonics[i.Funct3()]; m != "" {
			return fmt.Sprintf("%s x%d, %d(x%d)", m, rd, int32(i.ImmI()), rs1)
		}
	case ClassStore:
		mnemonics := [8]string{"sb", "sh", "sw"}
		if f := i.Funct3(); f <= funct3Word {
			return fmt.Sprintf("%s x%d, %d(x%d)", mnemonics[f], rs2, int32(i.ImmS()), rs1)
		}
	case ClassALUImm:
		switch i.Funct3() {
		case funct3AddSub:
			return fmt.Sprintf("addi x%d, x%d, %d", rd, rs1, int32(i.ImmI()))
		case funct3Slt:
			return fmt.Sprintf("slti x%d, x%d, %d", rd, rs1, int32(i.ImmI()))
		case funct3Sltu:
			return fmt.Sprintf("sltiu x%d, x%d, %d", rd, rs1, int32(i.ImmI()))
		case funct3Xor:
			return fmt.Sprintf("xori x%d, x%d, %d", rd, rs1, int32(i.ImmI()))
		case funct3Or:
			return fmt.Sprintf("ori x%d, x%d, %d", rd, rs1, int32(i.ImmI()))
		case funct3And:
			return fmt.Sprintf("andi x%d, x%d, %d", rd, rs1, int32(i.ImmI()))
		case funct3Sll:
			return fmt.Sprintf("slli x%d, x%d, %d", rd, rs1, rs2)
		case funct3SrlSra:
			if i.Bit30() {
				return fmt.Sprintf("srai x%d, x%d, %d", rd, rs1, rs2)
			}
			return fmt.Sprintf("srli x%d, x%d, %d", rd, rs1, rs2)
		}
	case ClassALUReg:
		var m string
		switch i.Funct3() {
		case funct3AddSub:
			m = "add"
			if i.Bit30() {
				m = "sub"
			}
		case funct3Sll:
			m = "sll"
		case funct3Slt:
			m = "slt"
		case funct3Sltu:
			m = "sltu"
		case funct3Xor:
			m = "xor"
		case funct3SrlSra:
			m = "srl"
			if i.Bit30() {
				m = "sra"
			}
		case funct3Or:
			m = "or"
		case funct3And:
			m = "and"
		}
		return fmt.Sprintf("%s x%d, x%d, x%d", m, rd, rs1, rs2)
	case ClassLUI:
		return fmt.Sprintf("lui x%d, 0x%x", rd, i.ImmU()>>12)
	case ClassAUIPC:
		return fmt.Sprintf("auipc x%d, 0x%x", rd, i.ImmU()>>12)
	case ClassJAL:
		return fmt.Sprintf("jal x%d, %d", rd, int32(i.ImmJ()))
	case ClassJALR:
		return fmt.Sprintf("jalr x%d, %d(x%d)", rd, int32(i.ImmI()), rs1)
	case ClassBranch:
		var m string
		switch i.Funct3() {
		case funct3Beq:
			m = "beq"
		case funct3Bne:
			m = "bne"
		case funct3Blt:
			m = "blt"
		case funct3Bge:
			m = "bge"
		case funct3Bltu:
			m = "bltu"
		case funct3Bgeu:
			m = "bgeu"
		default:
			return fmt.Sprintf(".word 0x%08x", uint32(i))
		}
		return fmt.Sprintf("%s x%d, x%d, %d", m, rs1, rs2, int32(i.ImmB()))
	case ClassSystem:
		switch {
		case uint32(i) == 0x00000073:
			return "ecall"
		case i.IsEBreak():
			return "ebreak"
		case i.Funct3() != 0:
			return fmt.Sprintf("csrrs x%d, 0x%x, x%d", rd, i.CSR(), rs1)
		}
	}
	return fmt.Sprintf(".word 0x%08x", uint32(i))
}
