package bytecode

import (
	"strings"
	"testing"

	"vela/pkg/value"
)

func TestEmitAndReadBack(t *testing.T) {
	c := NewChunk("test")
	idx := c.AddConstant(value.Int(7))
	c.Emit(ConstOp, 1, 0, byte(idx), byte(idx>>8))
	c.Emit(Ret1, 2, 0)

	if len(c.Code) != 6 {
		t.Fatalf("expected 6 bytes of code, got %d", len(c.Code))
	}
	if OpCode(c.Code[0]) != ConstOp {
		t.Fatalf("expected first opcode ConstOp, got %v", OpCode(c.Code[0]))
	}
	if c.GetLine(0) != 1 || c.GetLine(4) != 2 {
		t.Fatalf("unexpected line table: %v", c.Lines)
	}
}

func TestPatchU16Jump(t *testing.T) {
	c := NewChunk("test")
	jumpOff := c.Emit(Jump, 1, 0, 0)
	c.Emit(True, 2, 0)
	target := len(c.Code)
	c.PatchU16(jumpOff+1, uint16(target-(jumpOff+3)))
	if got := c.ReadU16(jumpOff + 1); got != uint16(target-(jumpOff+3)) {
		t.Fatalf("expected patched offset %d, got %d", target-(jumpOff+3), got)
	}
}

func TestInstructionLenMatchesOperandBytes(t *testing.T) {
	c := NewChunk("test")
	c.Emit(AddInt, 1, 0, 1, 2)
	if got := c.InstructionLen(0); got != 4 {
		t.Fatalf("expected AddInt instruction length 4, got %d", got)
	}
}

func TestDisassembleRendersConstantAndJump(t *testing.T) {
	c := NewChunk("demo")
	idx := c.AddConstant(value.Int(42))
	c.Emit(ConstOp, 1, 0, byte(idx), byte(idx>>8))
	jumpOff := c.Emit(Jump, 2, 0, 0)
	c.Emit(End, 3)
	c.PatchU16(jumpOff+1, uint16(len(c.Code)-(jumpOff+3)))

	out := c.Disassemble()
	if !strings.Contains(out, "== demo ==") {
		t.Fatalf("expected header in disassembly, got %q", out)
	}
	if !strings.Contains(out, "ConstOp") || !strings.Contains(out, "const[0]") {
		t.Fatalf("expected ConstOp line with constant index, got %q", out)
	}
	if !strings.Contains(out, "Jump") || !strings.Contains(out, "->") {
		t.Fatalf("expected jump target arrow, got %q", out)
	}
}
