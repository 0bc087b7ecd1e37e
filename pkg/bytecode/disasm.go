package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the chunk, in the
// teacher's "== name ==" / per-instruction-row style.
func (c *Chunk) Disassemble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", c.Name)
	offset := 0
	for offset < len(c.Code) {
		offset = c.disassembleInstruction(&b, offset)
	}
	return b.String()
}

func (c *Chunk) disassembleInstruction(b *strings.Builder, offset int) int {
	op := OpCode(c.Code[offset])
	operands := OperandBytes(op)
	fmt.Fprintf(b, "%04d ", offset)
	if line, ok := c.Lines[offset]; ok {
		fmt.Fprintf(b, "%4d ", line)
	} else {
		b.WriteString("   | ")
	}

	end := offset + 1 + operands
	if end > len(c.Code) {
		fmt.Fprintf(b, "%-18s (truncated)\n", op.String())
		return len(c.Code)
	}

	switch op {
	case ConstOp:
		dst := c.Code[offset+1]
		idx := c.ReadU16(offset + 2)
		fmt.Fprintf(b, "%-18s R%d, const[%d]", op.String(), dst, idx)
		if int(idx) < len(c.Constants) {
			fmt.Fprintf(b, " ; %v", c.Constants[idx])
		}
		b.WriteString("\n")
	case ConstI8Int:
		dst := c.Code[offset+1]
		imm := int8(c.Code[offset+2])
		fmt.Fprintf(b, "%-18s R%d, #%d\n", op.String(), dst, imm)
	case ConstI8:
		dst := c.Code[offset+1]
		imm := int8(c.Code[offset+2])
		fmt.Fprintf(b, "%-18s R%d, #%d\n", op.String(), dst, imm)
	case Jump:
		target := offset + 1 + 2 + int(int16(c.ReadU16(offset+1)))
		fmt.Fprintf(b, "%-18s -> %04d\n", op.String(), target)
	case JumpCond, JumpNotCond, JumpNotNone:
		cond := c.Code[offset+1]
		target := offset + 1 + 3 + int(int16(c.ReadU16(offset+2)))
		fmt.Fprintf(b, "%-18s R%d, -> %04d\n", op.String(), cond, target)
	default:
		fmt.Fprintf(b, "%-18s", op.String())
		for i := 0; i < operands; i++ {
			fmt.Fprintf(b, " %d", c.Code[offset+1+i])
		}
		b.WriteString("\n")
	}
	return end
}
