// Package asm is a minimal textual bytecode assembler, standing in for the
// out-of-scope source compiler so test programs and the eval CLI subcommand
// can hand the dispatch loop a bytecode.Chunk without writing Go literals by
// hand. Grounded on the teacher's cmd/vm manual-chunk-building style
// (bytecode.NewChunk/AddConstant/Emit), but driven from a text format.
//
// Syntax, one instruction or directive per line:
//
//	.const int 42          ; appends an integer constant, referenced by its
//	                        ; position among .const directives (0-based)
//	.const float 3.5
//	.const str "hello"
//	label:                  ; defines a jump target
//	ConstOp R0, c0          ; operands: Rn (register), cN (const index),
//	AddInt R0, R1, R2       ;           #n (byte/imm8), ->label (jump offset)
//	Jump ->label
//	Ret1 R2
//
// Comments start with ';' and run to end of line. Blank lines are ignored.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"vela/pkg/bytecode"
	"vela/pkg/value"
)

// Assemble parses src and returns a fully-linked Chunk, or the first syntax
// or undefined-label error encountered.
func Assemble(name, src string) (*bytecode.Chunk, error) {
	p := &parser{chunk: bytecode.NewChunk(name), labels: map[string]int{}}
	if err := p.run(src); err != nil {
		return nil, err
	}
	if err := p.backpatch(); err != nil {
		return nil, err
	}
	return p.chunk, nil
}

type pendingJump struct {
	instrOffset int // offset of the opcode byte
	operandOff  int // offset of the 2-byte field to patch
	label       string
	fieldLen    int // bytes consumed before the jump field, for relative base
}

type parser struct {
	chunk    *bytecode.Chunk
	labels   map[string]int
	pending  []pendingJump
	lineNo   int
}

func (p *parser) run(src string) error {
	for _, raw := range strings.Split(src, "\n") {
		p.lineNo++
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			label := strings.TrimSuffix(line, ":")
			p.labels[label] = len(p.chunk.Code)
			continue
		}
		if strings.HasPrefix(line, ".const") {
			if err := p.directive(line); err != nil {
				return fmt.Errorf("line %d: %w", p.lineNo, err)
			}
			continue
		}
		if err := p.instruction(line); err != nil {
			return fmt.Errorf("line %d: %w", p.lineNo, err)
		}
	}
	return nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return s[:i]
	}
	return s
}

func (p *parser) directive(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return fmt.Errorf(".const needs a kind and a value: %q", line)
	}
	kind := fields[1]
	rest := strings.TrimSpace(strings.Join(fields[2:], " "))
	switch kind {
	case "int":
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return err
		}
		p.chunk.AddConstant(value.IntTruncating(n))
	case "float":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return err
		}
		p.chunk.AddConstant(value.Float(f))
	case "str":
		unquoted, err := strconv.Unquote(rest)
		if err != nil {
			return err
		}
		// The string's backing heap object is allocated by the runtime
		// when the chunk is loaded (pkg/vm); the constant pool entry here
		// is a placeholder None the loader recognizes positionally. To
		// keep the assembler free of a memory.Manager dependency, the
		// literal text travels via StringConstants instead.
		p.chunk.StringConstants = append(p.chunk.StringConstants, unquoted)
		p.chunk.AddConstant(value.None())
	default:
		return fmt.Errorf("unknown .const kind %q", kind)
	}
	return nil
}

func (p *parser) instruction(line string) error {
	mnemonic, operandStr, _ := strings.Cut(line, " ")
	op, ok := mnemonicToOp[mnemonic]
	if !ok {
		return fmt.Errorf("unknown mnemonic %q", mnemonic)
	}
	var operands []string
	if strings.TrimSpace(operandStr) != "" {
		for _, o := range strings.Split(operandStr, ",") {
			operands = append(operands, strings.TrimSpace(o))
		}
	}
	schema := bytecode.Schema(op)
	if len(operands) != len(schema) {
		return fmt.Errorf("%s expects %d operand(s), got %d", mnemonic, len(schema), len(operands))
	}

	instrOffset := len(p.chunk.Code)
	bytesOut := []byte{byte(op)}
	for i, kind := range schema {
		tok := operands[i]
		switch kind {
		case bytecode.FieldReg:
			n, err := parseReg(tok)
			if err != nil {
				return err
			}
			bytesOut = append(bytesOut, byte(n))
		case bytecode.FieldImm8:
			n, err := strconv.ParseInt(strings.TrimPrefix(tok, "#"), 10, 16)
			if err != nil {
				return fmt.Errorf("bad immediate %q: %w", tok, err)
			}
			bytesOut = append(bytesOut, byte(int8(n)))
		case bytecode.FieldByte:
			n, err := strconv.ParseUint(strings.TrimPrefix(tok, "#"), 10, 8)
			if err != nil {
				return fmt.Errorf("bad byte operand %q: %w", tok, err)
			}
			bytesOut = append(bytesOut, byte(n))
		case bytecode.FieldConstIdx, bytecode.FieldSymID:
			n, err := parseIndexed(tok)
			if err != nil {
				return err
			}
			bytesOut = append(bytesOut, byte(n), byte(n>>8))
		case bytecode.FieldJumpOff:
			label := strings.TrimPrefix(tok, "->")
			if label == tok {
				return fmt.Errorf("jump operand %q must be of the form ->label", tok)
			}
			p.pending = append(p.pending, pendingJump{
				instrOffset: instrOffset,
				operandOff:  instrOffset + len(bytesOut),
				label:       label,
			})
			bytesOut = append(bytesOut, 0, 0)
		}
	}
	p.chunk.Code = append(p.chunk.Code, bytesOut...)
	p.chunk.Lines[instrOffset] = p.lineNo
	return nil
}

func (p *parser) backpatch() error {
	for _, pj := range p.pending {
		target, ok := p.labels[pj.label]
		if !ok {
			return fmt.Errorf("undefined label %q", pj.label)
		}
		rel := target - (pj.operandOff + 2)
		p.chunk.PatchU16(pj.operandOff, uint16(int16(rel)))
	}
	return nil
}

func parseReg(tok string) (int, error) {
	if !strings.HasPrefix(tok, "R") {
		return 0, fmt.Errorf("expected register operand like R3, got %q", tok)
	}
	return strconv.Atoi(tok[1:])
}

func parseIndexed(tok string) (int, error) {
	if len(tok) < 2 {
		return 0, fmt.Errorf("expected indexed operand like c0 or s0, got %q", tok)
	}
	return strconv.Atoi(tok[1:])
}

var mnemonicToOp = buildMnemonicTable()

func buildMnemonicTable() map[string]bytecode.OpCode {
	t := make(map[string]bytecode.OpCode)
	for i := 0; i < 256; i++ {
		op := bytecode.OpCode(i)
		name := op.String()
		if strings.HasPrefix(name, "UnknownOpcode") {
			continue
		}
		t[name] = op
	}
	return t
}
