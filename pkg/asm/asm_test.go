package asm

import (
	"testing"

	"vela/pkg/bytecode"
)

func TestAssembleSimpleArithmetic(t *testing.T) {
	src := `
ConstI8Int R0, #2
ConstI8Int R1, #3
AddInt R0, R1, R2
Ret1 R2
`
	chunk, err := Assemble("add", src)
	if err != nil {
		t.Fatalf("unexpected assemble error: %v", err)
	}
	if bytecode.OpCode(chunk.Code[0]) != bytecode.ConstI8Int {
		t.Fatalf("expected first opcode ConstI8Int, got %v", bytecode.OpCode(chunk.Code[0]))
	}
}

func TestAssembleJumpBackpatch(t *testing.T) {
	src := `
loop:
Jump ->done
Retain R0
done:
End
`
	chunk, err := Assemble("jmp", src)
	if err != nil {
		t.Fatalf("unexpected assemble error: %v", err)
	}
	// Jump opcode(1) + offset(2) = 3 bytes, then Retain (1+1=2 bytes) then End.
	off := chunk.ReadU16(1)
	target := 3 + int(int16(off))
	if bytecode.OpCode(chunk.Code[target]) != bytecode.End {
		t.Fatalf("expected jump to land on End, landed on %v", bytecode.OpCode(chunk.Code[target]))
	}
}

func TestAssembleUndefinedLabelErrors(t *testing.T) {
	_, err := Assemble("bad", "Jump ->nowhere\n")
	if err == nil {
		t.Fatalf("expected an error for an undefined label")
	}
}

func TestAssembleWrongOperandCountErrors(t *testing.T) {
	_, err := Assemble("bad", "AddInt R0, R1\n")
	if err == nil {
		t.Fatalf("expected an error for a missing operand")
	}
}

func TestAssembleStringConstant(t *testing.T) {
	chunk, err := Assemble("str", ".const str \"hi\"\n")
	if err != nil {
		t.Fatalf("unexpected assemble error: %v", err)
	}
	if len(chunk.StringConstants) != 1 || chunk.StringConstants[0] != "hi" {
		t.Fatalf("expected string constant %q, got %v", "hi", chunk.StringConstants)
	}
}
