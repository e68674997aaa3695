package asm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parser errors
var (
	ErrSyntax         = errors.New("syntax error")
	ErrDuplicateLabel = errors.New("duplicate label")
)

// OperandType identifies the kind of an instruction operand.
type OperandType uint8

const (
	OperandReg    OperandType = iota // register (x5, a0, sp)
	OperandInt                       // integer literal
	OperandSymbol                    // label reference
	OperandMem                       // offset(reg) addressing
)

// Operand is a parsed instruction operand.
type Operand struct {
	Type   OperandType
	Reg    uint32
	Value  int64
	Symbol string
}

// Statement is a parsed assembly line: either an instruction, a
// directive, or nothing (labels attach to the statement list directly).
type Statement struct {
	Mnemonic string
	Operands []Operand
	Line     int
}

// Program holds the parsed statement list and label table. Label
// addresses are resolved during assembly, the parser only records the
// statement index each label points at.
type Program struct {
	Statements []Statement
	Labels     map[string]int // label name -> statement index
}

// Parser turns a token stream into a Program.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a parser for the given token stream.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses the full token stream.
func (p *Parser) Parse() (*Program, error) {
	prog := &Program{Labels: make(map[string]int)}

	for !p.atEOF() {
		p.skipNewlines()
		if p.atEOF() {
			break
		}

		tok := p.current()
		if tok.Type != TokenIdent {
			return nil, fmt.Errorf("line %d: %w: unexpected token %q", tok.Line, ErrSyntax, tok.Value)
		}

		// Label definition: ident followed by colon
		if p.peek().Type == TokenColon {
			name := tok.Value
			if _, ok := prog.Labels[name]; ok {
				return nil, fmt.Errorf("line %d: %w: %q", tok.Line, ErrDuplicateLabel, name)
			}
			prog.Labels[name] = len(prog.Statements)
			p.pos += 2
			continue
		}

		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}

	return prog, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	tok := p.current()
	stmt := Statement{Mnemonic: strings.ToLower(tok.Value), Line: tok.Line}
	p.pos++

	for {
		cur := p.current()
		if cur.Type == TokenNewline || cur.Type == TokenEOF {
			break
		}

		op, err := p.parseOperand()
		if err != nil {
			return Statement{}, err
		}
		stmt.Operands = append(stmt.Operands, op)

		if p.current().Type == TokenComma {
			p.pos++
			continue
		}
		break
	}

	cur := p.current()
	if cur.Type != TokenNewline && cur.Type != TokenEOF {
		return Statement{}, fmt.Errorf("line %d: %w: trailing token %q", cur.Line, ErrSyntax, cur.Value)
	}
	return stmt, nil
}

func (p *Parser) parseOperand() (Operand, error) {
	tok := p.current()

	switch tok.Type {
	case TokenIdent:
		p.pos++
		if reg, ok := registerNumber(tok.Value); ok {
			return Operand{Type: OperandReg, Reg: reg}, nil
		}
		return Operand{Type: OperandSymbol, Symbol: tok.Value}, nil

	case TokenInt:
		v, err := parseInt(tok.Value)
		if err != nil {
			return Operand{}, fmt.Errorf("line %d: %w: bad integer %q", tok.Line, ErrSyntax, tok.Value)
		}
		p.pos++

		// offset(reg) memory operand
		if p.current().Type == TokenLParen {
			p.pos++
			rt := p.current()
			reg, ok := registerNumber(rt.Value)
			if rt.Type != TokenIdent || !ok {
				return Operand{}, fmt.Errorf("line %d: %w: expected register in memory operand", rt.Line, ErrSyntax)
			}
			p.pos++
			if p.current().Type != TokenRParen {
				return Operand{}, fmt.Errorf("line %d: %w: expected ')'", p.current().Line, ErrSyntax)
			}
			p.pos++
			return Operand{Type: OperandMem, Reg: reg, Value: v}, nil
		}
		return Operand{Type: OperandInt, Value: v}, nil

	default:
		return Operand{}, fmt.Errorf("line %d: %w: unexpected token %q", tok.Line, ErrSyntax, tok.Value)
	}
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) atEOF() bool {
	return p.current().Type == TokenEOF
}

func (p *Parser) skipNewlines() {
	for p.current().Type == TokenNewline {
		p.pos++
	}
}

func parseInt(s string) (int64, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(v), nil
	}
	return int64(v), nil
}

// registerNumber resolves xN and ABI register names.
func registerNumber(name string) (uint32, bool) {
	n, ok := registerNames[strings.ToLower(name)]
	return n, ok
}

var registerNames = map[string]uint32{
	"zero": 0, "ra": 1, "sp": 2, "gp": 3, "tp": 4,
	"t0": 5, "t1": 6, "t2": 7,
	"s0": 8, "fp": 8, "s1": 9,
	"a0": 10, "a1": 11, "a2": 12, "a3": 13,
	"a4": 14, "a5": 15, "a6": 16, "a7": 17,
	"s2": 18, "s3": 19, "s4": 20, "s5": 21, "s6": 22,
	"s7": 23, "s8": 24, "s9": 25, "s10": 26, "s11": 27,
	"t3": 28, "t4": 29, "t5": 30, "t6": 31,
	"x0": 0, "x1": 1, "x2": 2, "x3": 3, "x4": 4, "x5": 5, "x6": 6, "x7": 7,
	"x8": 8, "x9": 9, "x10": 10, "x11": 11, "x12": 12, "x13": 13, "x14": 14,
	"x15": 15, "x16": 16, "x17": 17, "x18": 18, "x19": 19, "x20": 20,
	"x21": 21, "x22": 22, "x23": 23, "x24": 24, "x25": 25, "x26": 26,
	"x27": 27, "x28": 28, "x29": 29, "x30": 30, "x31": 31,
}
