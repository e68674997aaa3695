package asm

import (
	"errors"
	"fmt"

	"github.com/quarksim/quark/pkg/loader"
)

// Assembler errors
var (
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrBadOperands     = errors.New("bad operands")
	ErrImmRange        = errors.New("immediate out of range")
	ErrUndefinedLabel  = errors.New("undefined label")
	ErrMisaligned      = errors.New("misaligned target")
)

// form identifies how an instruction's operands map to encoding fields.
type form uint8

const (
	formR    form = iota // rd, rs1, rs2
	formI                // rd, rs1, imm12
	formIMem             // rd, offset(rs1) (loads)
	formS                // rs2, offset(rs1) (stores)
	formB                // rs1, rs2, target
	formU                // rd, imm20
	formJ                // rd, target
	formSh               // rd, rs1, shamt
)

type instrDesc struct {
	form   form
	opcode uint32
	funct3 uint32
	funct7 uint32
}

var instrTable = map[string]instrDesc{
	// R-type
	"add":  {formR, 0x33, 0, 0x00},
	"sub":  {formR, 0x33, 0, 0x20},
	"sll":  {formR, 0x33, 1, 0x00},
	"slt":  {formR, 0x33, 2, 0x00},
	"sltu": {formR, 0x33, 3, 0x00},
	"xor":  {formR, 0x33, 4, 0x00},
	"srl":  {formR, 0x33, 5, 0x00},
	"sra":  {formR, 0x33, 5, 0x20},
	"or":   {formR, 0x33, 6, 0x00},
	"and":  {formR, 0x33, 7, 0x00},

	// I-type ALU
	"addi":  {formI, 0x13, 0, 0},
	"slti":  {formI, 0x13, 2, 0},
	"sltiu": {formI, 0x13, 3, 0},
	"xori":  {formI, 0x13, 4, 0},
	"ori":   {formI, 0x13, 6, 0},
	"andi":  {formI, 0x13, 7, 0},
	"slli":  {formSh, 0x13, 1, 0x00},
	"srli":  {formSh, 0x13, 5, 0x00},
	"srai":  {formSh, 0x13, 5, 0x20},

	// Loads
	"lb":  {formIMem, 0x03, 0, 0},
	"lh":  {formIMem, 0x03, 1, 0},
	"lw":  {formIMem, 0x03, 2, 0},
	"lbu": {formIMem, 0x03, 4, 0},
	"lhu": {formIMem, 0x03, 5, 0},

	// Stores
	"sb": {formS, 0x23, 0, 0},
	"sh": {formS, 0x23, 1, 0},
	"sw": {formS, 0x23, 2, 0},

	// Branches
	"beq":  {formB, 0x63, 0, 0},
	"bne":  {formB, 0x63, 1, 0},
	"blt":  {formB, 0x63, 4, 0},
	"bge":  {formB, 0x63, 5, 0},
	"bltu": {formB, 0x63, 6, 0},
	"bgeu": {formB, 0x63, 7, 0},

	// Upper immediates
	"lui":   {formU, 0x37, 0, 0},
	"auipc": {formU, 0x17, 0, 0},

	// Jumps
	"jal": {formJ, 0x6F, 0, 0},
}

// Assemble assembles RV32I source text into a memory image starting at
// address 0 (or wherever a leading .org directive places it).
func Assemble(source string) (*loader.Image, error) {
	tokens := NewLexer(source).Tokenize()
	prog, err := NewParser(tokens).Parse()
	if err != nil {
		return nil, err
	}
	return assembleProgram(prog)
}

func assembleProgram(prog *Program) (*loader.Image, error) {
	// Pass 1: layout. Assign an address to each statement so label
	// references can resolve to addresses in pass 2.
	addrs := make([]uint32, len(prog.Statements))
	addr := uint32(0)
	for i, stmt := range prog.Statements {
		addrs[i] = addr
		size, err := statementSize(stmt)
		if err != nil {
			return nil, err
		}
		if stmt.Mnemonic == ".org" {
			base, err := orgAddress(stmt)
			if err != nil {
				return nil, err
			}
			addr = base
			addrs[i] = addr
			continue
		}
		addr += size
	}

	labels := make(map[string]uint32, len(prog.Labels))
	for name, idx := range prog.Labels {
		if idx < len(addrs) {
			labels[name] = addrs[idx]
		} else {
			labels[name] = addr // label at end of program
		}
	}

	// Pass 2: encode.
	img := &loader.Image{}
	for i, stmt := range prog.Statements {
		if stmt.Mnemonic == ".org" {
			continue
		}
		words, err := encodeStatement(stmt, addrs[i], labels)
		if err != nil {
			return nil, err
		}
		for j, w := range words {
			img.Entries = append(img.Entries, loader.Entry{Addr: addrs[i] + uint32(4*j), Word: w})
		}
	}
	if len(img.Entries) == 0 {
		return nil, loader.ErrEmptyImage
	}
	return img, nil
}

func statementSize(stmt Statement) (uint32, error) {
	switch stmt.Mnemonic {
	case ".org":
		return 0, nil
	case ".word":
		if len(stmt.Operands) == 0 {
			return 0, opErr(stmt, "expected at least one value")
		}
		return uint32(4 * len(stmt.Operands)), nil
	case "li":
		// li expands to lui+addi when the value does not fit in a
		// 12-bit signed immediate.
		if len(stmt.Operands) != 2 {
			return 0, opErr(stmt, "expected rd, imm")
		}
		if fitsImm12(stmt.Operands[1].Value) {
			return 4, nil
		}
		return 8, nil
	default:
		return 4, nil
	}
}

func orgAddress(stmt Statement) (uint32, error) {
	if len(stmt.Operands) != 1 || stmt.Operands[0].Type != OperandInt {
		return 0, opErr(stmt, "expected address")
	}
	v := stmt.Operands[0].Value
	if v < 0 || v > 0xFFFFFFFF {
		return 0, fmt.Errorf("line %d: %w: %d", stmt.Line, ErrImmRange, v)
	}
	if v&3 != 0 {
		return 0, fmt.Errorf("line %d: %w: 0x%x", stmt.Line, ErrMisaligned, v)
	}
	return uint32(v), nil
}

func encodeStatement(stmt Statement, pc uint32, labels map[string]uint32) ([]uint32, error) {
	switch stmt.Mnemonic {
	case ".word":
		words := make([]uint32, 0, len(stmt.Operands))
		for _, op := range stmt.Operands {
			if op.Type != OperandInt {
				return nil, opErr(stmt, "expected integer value")
			}
			if op.Value < -0x80000000 || op.Value > 0xFFFFFFFF {
				return nil, fmt.Errorf("line %d: %w: %d", stmt.Line, ErrImmRange, op.Value)
			}
			words = append(words, uint32(op.Value))
		}
		return words, nil

	// Pseudo-instructions
	case "nop":
		return []uint32{encI(0x13, 0, 0, 0, 0)}, nil
	case "mv":
		rd, rs, err := twoRegs(stmt)
		if err != nil {
			return nil, err
		}
		return []uint32{encI(0x13, 0, rd, rs, 0)}, nil
	case "not":
		rd, rs, err := twoRegs(stmt)
		if err != nil {
			return nil, err
		}
		return []uint32{encI(0x13, 4, rd, rs, -1)}, nil
	case "li":
		return encodeLi(stmt)
	case "j":
		if len(stmt.Operands) != 1 {
			return nil, opErr(stmt, "expected target")
		}
		off, err := branchOffset(stmt, stmt.Operands[0], pc, labels)
		if err != nil {
			return nil, err
		}
		return encJ(stmt, 0x6F, 0, off)
	case "ret":
		if len(stmt.Operands) != 0 {
			return nil, opErr(stmt, "expected no operands")
		}
		return []uint32{encI(0x67, 0, 0, 1, 0)}, nil
	case "rdcycle":
		return encodeCsrRead(stmt, 0xC00)
	case "rdcycleh":
		return encodeCsrRead(stmt, 0xC80)

	// System
	case "ecall":
		return []uint32{0x00000073}, nil
	case "ebreak":
		return []uint32{0x00100073}, nil
	case "csrrs":
		if len(stmt.Operands) != 3 || stmt.Operands[0].Type != OperandReg ||
			stmt.Operands[1].Type != OperandInt || stmt.Operands[2].Type != OperandReg {
			return nil, opErr(stmt, "expected rd, csr, rs1")
		}
		csr := stmt.Operands[1].Value
		if csr < 0 || csr > 0xFFF {
			return nil, fmt.Errorf("line %d: %w: csr %d", stmt.Line, ErrImmRange, csr)
		}
		return []uint32{0x73 | stmt.Operands[0].Reg<<7 | 2<<12 |
			stmt.Operands[2].Reg<<15 | uint32(csr)<<20}, nil

	case "jalr":
		return encodeJalr(stmt)
	}

	desc, ok := instrTable[stmt.Mnemonic]
	if !ok {
		return nil, fmt.Errorf("line %d: %w: %q", stmt.Line, ErrUnknownMnemonic, stmt.Mnemonic)
	}

	switch desc.form {
	case formR:
		if len(stmt.Operands) != 3 || !allRegs(stmt.Operands) {
			return nil, opErr(stmt, "expected rd, rs1, rs2")
		}
		return []uint32{desc.opcode | stmt.Operands[0].Reg<<7 | desc.funct3<<12 |
			stmt.Operands[1].Reg<<15 | stmt.Operands[2].Reg<<20 | desc.funct7<<25}, nil

	case formI:
		if len(stmt.Operands) != 3 || stmt.Operands[0].Type != OperandReg ||
			stmt.Operands[1].Type != OperandReg || stmt.Operands[2].Type != OperandInt {
			return nil, opErr(stmt, "expected rd, rs1, imm")
		}
		imm := stmt.Operands[2].Value
		if !fitsImm12(imm) {
			return nil, fmt.Errorf("line %d: %w: %d", stmt.Line, ErrImmRange, imm)
		}
		return []uint32{encI(desc.opcode, desc.funct3, stmt.Operands[0].Reg,
			stmt.Operands[1].Reg, imm)}, nil

	case formSh:
		if len(stmt.Operands) != 3 || stmt.Operands[0].Type != OperandReg ||
			stmt.Operands[1].Type != OperandReg || stmt.Operands[2].Type != OperandInt {
			return nil, opErr(stmt, "expected rd, rs1, shamt")
		}
		sh := stmt.Operands[2].Value
		if sh < 0 || sh > 31 {
			return nil, fmt.Errorf("line %d: %w: shamt %d", stmt.Line, ErrImmRange, sh)
		}
		return []uint32{desc.opcode | stmt.Operands[0].Reg<<7 | desc.funct3<<12 |
			stmt.Operands[1].Reg<<15 | uint32(sh)<<20 | desc.funct7<<25}, nil

	case formIMem:
		if len(stmt.Operands) != 2 || stmt.Operands[0].Type != OperandReg ||
			stmt.Operands[1].Type != OperandMem {
			return nil, opErr(stmt, "expected rd, offset(rs1)")
		}
		off := stmt.Operands[1].Value
		if !fitsImm12(off) {
			return nil, fmt.Errorf("line %d: %w: %d", stmt.Line, ErrImmRange, off)
		}
		return []uint32{encI(desc.opcode, desc.funct3, stmt.Operands[0].Reg,
			stmt.Operands[1].Reg, off)}, nil

	case formS:
		if len(stmt.Operands) != 2 || stmt.Operands[0].Type != OperandReg ||
			stmt.Operands[1].Type != OperandMem {
			return nil, opErr(stmt, "expected rs2, offset(rs1)")
		}
		off := stmt.Operands[1].Value
		if !fitsImm12(off) {
			return nil, fmt.Errorf("line %d: %w: %d", stmt.Line, ErrImmRange, off)
		}
		imm := uint32(off) & 0xFFF
		return []uint32{desc.opcode | (imm&0x1F)<<7 | desc.funct3<<12 |
			stmt.Operands[1].Reg<<15 | stmt.Operands[0].Reg<<20 | (imm>>5)<<25}, nil

	case formB:
		if len(stmt.Operands) != 3 || stmt.Operands[0].Type != OperandReg ||
			stmt.Operands[1].Type != OperandReg {
			return nil, opErr(stmt, "expected rs1, rs2, target")
		}
		off, err := branchOffset(stmt, stmt.Operands[2], pc, labels)
		if err != nil {
			return nil, err
		}
		if off < -4096 || off > 4094 {
			return nil, fmt.Errorf("line %d: %w: branch offset %d", stmt.Line, ErrImmRange, off)
		}
		imm := uint32(off) & 0x1FFF
		return []uint32{desc.opcode | (imm>>11&1)<<7 | (imm>>1&0xF)<<8 |
			desc.funct3<<12 | stmt.Operands[0].Reg<<15 | stmt.Operands[1].Reg<<20 |
			(imm>>5&0x3F)<<25 | (imm>>12&1)<<31}, nil

	case formU:
		if len(stmt.Operands) != 2 || stmt.Operands[0].Type != OperandReg ||
			stmt.Operands[1].Type != OperandInt {
			return nil, opErr(stmt, "expected rd, imm20")
		}
		imm := stmt.Operands[1].Value
		if imm < 0 || imm > 0xFFFFF {
			return nil, fmt.Errorf("line %d: %w: %d", stmt.Line, ErrImmRange, imm)
		}
		return []uint32{desc.opcode | stmt.Operands[0].Reg<<7 | uint32(imm)<<12}, nil

	case formJ:
		if len(stmt.Operands) != 2 || stmt.Operands[0].Type != OperandReg {
			return nil, opErr(stmt, "expected rd, target")
		}
		off, err := branchOffset(stmt, stmt.Operands[1], pc, labels)
		if err != nil {
			return nil, err
		}
		return encJ(stmt, desc.opcode, stmt.Operands[0].Reg, off)
	}

	return nil, fmt.Errorf("line %d: %w: %q", stmt.Line, ErrUnknownMnemonic, stmt.Mnemonic)
}

func encodeLi(stmt Statement) ([]uint32, error) {
	if len(stmt.Operands) != 2 || stmt.Operands[0].Type != OperandReg ||
		stmt.Operands[1].Type != OperandInt {
		return nil, opErr(stmt, "expected rd, imm")
	}
	rd := stmt.Operands[0].Reg
	v := stmt.Operands[1].Value
	if v < -0x80000000 || v > 0xFFFFFFFF {
		return nil, fmt.Errorf("line %d: %w: %d", stmt.Line, ErrImmRange, v)
	}
	if fitsImm12(v) {
		return []uint32{encI(0x13, 0, rd, 0, v)}, nil
	}
	// lui loads the upper 20 bits, addi adds the sign-extended low 12.
	// Bump the upper part by one when the low half is negative.
	w := uint32(v)
	low := int64(int32(w<<20) >> 20)
	upper := (w - uint32(low)) >> 12
	words := []uint32{0x37 | rd<<7 | upper<<12}
	if low != 0 {
		words = append(words, encI(0x13, 0, rd, rd, low))
	} else {
		words = append(words, encI(0x13, 0, rd, rd, 0))
	}
	return words, nil
}

func encodeJalr(stmt Statement) ([]uint32, error) {
	// Accept both `jalr rd, offset(rs1)` and `jalr rd, rs1, imm`.
	var rd, rs1 uint32
	var off int64
	switch {
	case len(stmt.Operands) == 2 && stmt.Operands[0].Type == OperandReg &&
		stmt.Operands[1].Type == OperandMem:
		rd = stmt.Operands[0].Reg
		rs1 = stmt.Operands[1].Reg
		off = stmt.Operands[1].Value
	case len(stmt.Operands) == 3 && stmt.Operands[0].Type == OperandReg &&
		stmt.Operands[1].Type == OperandReg && stmt.Operands[2].Type == OperandInt:
		rd = stmt.Operands[0].Reg
		rs1 = stmt.Operands[1].Reg
		off = stmt.Operands[2].Value
	case len(stmt.Operands) == 1 && stmt.Operands[0].Type == OperandReg:
		rd = 1
		rs1 = stmt.Operands[0].Reg
	default:
		return nil, opErr(stmt, "expected rd, offset(rs1)")
	}
	if !fitsImm12(off) {
		return nil, fmt.Errorf("line %d: %w: %d", stmt.Line, ErrImmRange, off)
	}
	return []uint32{encI(0x67, 0, rd, rs1, off)}, nil
}

func encodeCsrRead(stmt Statement, csr uint32) ([]uint32, error) {
	if len(stmt.Operands) != 1 || stmt.Operands[0].Type != OperandReg {
		return nil, opErr(stmt, "expected rd")
	}
	return []uint32{0x73 | stmt.Operands[0].Reg<<7 | 2<<12 | csr<<20}, nil
}

func encJ(stmt Statement, opcode, rd uint32, off int64) ([]uint32, error) {
	if off < -(1<<20) || off > (1<<20)-2 {
		return nil, fmt.Errorf("line %d: %w: jump offset %d", stmt.Line, ErrImmRange, off)
	}
	imm := uint32(off) & 0x1FFFFF
	return []uint32{opcode | rd<<7 | (imm>>12&0xFF)<<12 |
		(imm>>11&1)<<20 | (imm>>1&0x3FF)<<21 | (imm>>20&1)<<31}, nil
}

func encI(opcode, funct3, rd, rs1 uint32, imm int64) uint32 {
	return opcode | rd<<7 | funct3<<12 | rs1<<15 | (uint32(imm)&0xFFF)<<20
}

func branchOffset(stmt Statement, op Operand, pc uint32, labels map[string]uint32) (int64, error) {
	switch op.Type {
	case OperandSymbol:
		target, ok := labels[op.Symbol]
		if !ok {
			return 0, fmt.Errorf("line %d: %w: %q", stmt.Line, ErrUndefinedLabel, op.Symbol)
		}
		return int64(int32(target - pc)), nil
	case OperandInt:
		if op.Value&1 != 0 {
			return 0, fmt.Errorf("line %d: %w: offset %d", stmt.Line, ErrMisaligned, op.Value)
		}
		return op.Value, nil
	default:
		return 0, opErr(stmt, "expected branch target")
	}
}

func twoRegs(stmt Statement) (uint32, uint32, error) {
	if len(stmt.Operands) != 2 || stmt.Operands[0].Type != OperandReg ||
		stmt.Operands[1].Type != OperandReg {
		return 0, 0, opErr(stmt, "expected rd, rs")
	}
	return stmt.Operands[0].Reg, stmt.Operands[1].Reg, nil
}

func allRegs(ops []Operand) bool {
	for _, op := range ops {
		if op.Type != OperandReg {
			return false
		}
	}
	return true
}

func fitsImm12(v int64) bool {
	return v >= -2048 && v <= 2047
}

func opErr(stmt Statement, msg string) error {
	return fmt.Errorf("line %d: %w: %s %s", stmt.Line, ErrBadOperands, stmt.Mnemonic, msg)
}
