// Package bytecode defines the instruction set, constant pool, and
// disassembler for the register-based dispatch loop (C7). Instructions are
// variable-length and byte-aligned; multi-byte immediates are little-endian,
// matching spec.md §6's bytecode format.
package bytecode

import (
	"fmt"

	"vela/pkg/value"
)

// OpCode is a single dispatch-loop instruction tag.
type OpCode uint8

// The opcode set, grouped as in spec.md §4.5 plus the opcodes the
// SUPPLEMENTED FEATURES section in SPEC_FULL.md folds back in from
// original_source/src/vm.c's jump table.
const (
	// Constants & literals.
	ConstOp OpCode = iota
	ConstI8
	ConstI8Int
	True
	False
	None

	// Copy/move with RC.
	Copy
	CopyReleaseDst
	CopyRetainSrc
	CopyRetainRelease

	// Arithmetic.
	Add
	Sub
	Mul
	Div
	Mod
	Pow
	Neg
	AddInt
	SubInt
	LessInt

	// Comparisons.
	Compare
	CompareNot
	Less
	Greater
	LessEqual
	GreaterEqual

	// Control flow.
	Jump
	JumpCond
	JumpNotCond
	JumpNotNone
	ForRangeInit
	ForRange
	ForRangeReverse
	Match
	End

	// Aggregate construction.
	List
	Map
	MapEmpty
	ObjectSmall
	Object
	ClosureOp
	Lambda
	Box
	StringTemplate
	SetInitN

	// Field access.
	Field
	FieldIC
	FieldRetain
	FieldRetainIC
	FieldRelease
	SetField
	SetFieldRelease
	SetFieldReleaseIC

	// Indexing.
	Index
	ReverseIndex
	SetIndex
	SetIndexRelease
	Slice

	// Calls.
	Call0
	Call1
	CallSym
	CallFuncIC
	CallNativeFuncIC
	CallObjSym
	CallObjFuncIC
	CallObjNativeFuncIC
	Ret0
	Ret1

	// Fibers (C9).
	Coinit
	Coyield
	Coresume
	Coreturn

	// RC primitives.
	Retain
	Release
	ReleaseN

	// Boxes.
	BoxValue
	BoxValueRetain
	SetBoxValue
	SetBoxValueRelease

	// Bitwise (integer-only).
	BitwiseAnd
	BitwiseOr
	BitwiseXor
	BitwiseNot
	BitwiseLeftShift
	BitwiseRightShift

	// Interned symbols/tags/exceptions (supplemented from original_source).
	Tag
	TagLiteral
	TryValue
	Sym
	StaticFunc
	StaticVar
	SetStaticVar
	SetStaticFunc
)

var opNames = map[OpCode]string{
	ConstOp: "ConstOp", ConstI8: "ConstI8", ConstI8Int: "ConstI8Int",
	True: "True", False: "False", None: "None",
	Copy: "Copy", CopyReleaseDst: "CopyReleaseDst", CopyRetainSrc: "CopyRetainSrc", CopyRetainRelease: "CopyRetainRelease",
	Add: "Add", Sub: "Sub", Mul: "Mul", Div: "Div", Mod: "Mod", Pow: "Pow", Neg: "Neg",
	AddInt: "AddInt", SubInt: "SubInt", LessInt: "LessInt",
	Compare: "Compare", CompareNot: "CompareNot", Less: "Less", Greater: "Greater",
	LessEqual: "LessEqual", GreaterEqual: "GreaterEqual",
	Jump: "Jump", JumpCond: "JumpCond", JumpNotCond: "JumpNotCond", JumpNotNone: "JumpNotNone",
	ForRangeInit: "ForRangeInit", ForRange: "ForRange", ForRangeReverse: "ForRangeReverse",
	Match: "Match", End: "End",
	List: "List", Map: "Map", MapEmpty: "MapEmpty", ObjectSmall: "ObjectSmall", Object: "Object",
	ClosureOp: "Closure", Lambda: "Lambda", Box: "Box", StringTemplate: "StringTemplate", SetInitN: "SetInitN",
	Field: "Field", FieldIC: "FieldIC", FieldRetain: "FieldRetain", FieldRetainIC: "FieldRetainIC",
	FieldRelease: "FieldRelease", SetField: "SetField", SetFieldRelease: "SetFieldRelease", SetFieldReleaseIC: "SetFieldReleaseIC",
	Index: "Index", ReverseIndex: "ReverseIndex", SetIndex: "SetIndex", SetIndexRelease: "SetIndexRelease", Slice: "Slice",
	Call0: "Call0", Call1: "Call1", CallSym: "CallSym", CallFuncIC: "CallFuncIC", CallNativeFuncIC: "CallNativeFuncIC",
	CallObjSym: "CallObjSym", CallObjFuncIC: "CallObjFuncIC", CallObjNativeFuncIC: "CallObjNativeFuncIC",
	Ret0: "Ret0", Ret1: "Ret1",
	Coinit: "Coinit", Coyield: "Coyield", Coresume: "Coresume", Coreturn: "Coreturn",
	Retain: "Retain", Release: "Release", ReleaseN: "ReleaseN",
	BoxValue: "BoxValue", BoxValueRetain: "BoxValueRetain", SetBoxValue: "SetBoxValue", SetBoxValueRelease: "SetBoxValueRelease",
	BitwiseAnd: "BitwiseAnd", BitwiseOr: "BitwiseOr", BitwiseXor: "BitwiseXor", BitwiseNot: "BitwiseNot",
	BitwiseLeftShift: "BitwiseLeftShift", BitwiseRightShift: "BitwiseRightShift",
	Tag: "Tag", TagLiteral: "TagLiteral", TryValue: "TryValue", Sym: "Sym",
	StaticFunc: "StaticFunc", StaticVar: "StaticVar", SetStaticVar: "SetStaticVar", SetStaticFunc: "SetStaticFunc",
}

func (op OpCode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("UnknownOpcode(%d)", uint8(op))
}

// OperandBytes reports how many operand bytes (excluding the opcode byte
// itself) follow op in the instruction stream. Jump offsets, constant
// indices and symIds are 2 bytes (little-endian); registers, byte counts
// and 8-bit immediates are 1 byte.
func OperandBytes(op OpCode) int {
	switch op {
	case True, False, None, End, Coyield, Coreturn, Ret0:
		return 0
	case Neg, Retain, Release, ClosureOp, Lambda, Ret1:
		return 1
	case ConstI8, ConstI8Int, Copy, CopyReleaseDst, CopyRetainSrc, CopyRetainRelease,
		SetBoxValue, SetBoxValueRelease, BitwiseNot, ReleaseN, Coresume, TryValue:
		return 2
	case Jump:
		return 2
	case ConstOp:
		return 3
	case JumpCond, JumpNotCond, JumpNotNone,
		Add, Sub, Mul, Div, Mod, Pow, AddInt, SubInt, LessInt,
		Compare, CompareNot, Less, Greater, LessEqual, GreaterEqual,
		BitwiseAnd, BitwiseOr, BitwiseXor, BitwiseLeftShift, BitwiseRightShift,
		Index, ReverseIndex, SetIndex, SetIndexRelease, Box, BoxValue, BoxValueRetain,
		List, Map, MapEmpty, ObjectSmall, Object, StringTemplate, SetInitN, Slice,
		Field, FieldRetain, FieldRelease, SetField, SetFieldRelease,
		Call0, Call1, Tag, TagLiteral, Sym, StaticFunc, StaticVar, SetStaticVar, SetStaticFunc:
		return 3
	case ForRangeInit:
		return 4
	case ForRange, ForRangeReverse:
		return 5
	case FieldIC, FieldRetainIC, SetFieldReleaseIC:
		return 4
	case CallSym, CallFuncIC, CallNativeFuncIC:
		return 5
	case CallObjSym, CallObjFuncIC, CallObjNativeFuncIC:
		return 6
	case Coinit:
		return 4
	default:
		return 0
	}
}

// Chunk is one compiled bytecode unit: the instruction stream, its constant
// pool, and a parallel pc-to-line table used for error reports.
type Chunk struct {
	Name      string
	Code      []byte
	Constants []value.Value
	// Lines[pc] holds the source line for the instruction whose opcode
	// byte starts at byte offset pc. Only opcode-byte offsets are keyed;
	// operand bytes have no entry.
	Lines map[int]int
	// StringConstants holds the literal text for constant-pool entries
	// that are static strings; index i corresponds to the i-th .const str
	// directive an assembler source emitted, in declaration order. The
	// loader (pkg/vm) allocates the backing Astring heap objects and
	// overwrites the matching Constants[] slot once a memory.Manager is
	// available — bytecode itself has no allocator to call.
	StringConstants []string
}

// NewChunk constructs an empty chunk.
func NewChunk(name string) *Chunk {
	return &Chunk{Name: name, Lines: make(map[int]int)}
}

// Emit appends op and its raw operand bytes, returning the byte offset the
// opcode was written at (useful for later jump patching).
func (c *Chunk) Emit(op OpCode, line int, operands ...byte) int {
	offset := len(c.Code)
	c.Lines[offset] = line
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// PatchU16 overwrites the little-endian 16-bit value at byte offset off.
func (c *Chunk) PatchU16(off int, v uint16) {
	c.Code[off] = byte(v)
	c.Code[off+1] = byte(v >> 8)
}

// ReadU16 reads a little-endian 16-bit value at byte offset off.
func (c *Chunk) ReadU16(off int) uint16 {
	return uint16(c.Code[off]) | uint16(c.Code[off+1])<<8
}

// AddConstant appends v to the constant pool and returns its index. Unlike
// a dedup-by-default pool, equal Values are not merged here: mutable heap
// constants (closures, templates) must stay distinct entries.
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// GetLine returns the source line recorded for the instruction starting at
// byte offset pc, or 0 if pc does not begin an instruction.
func (c *Chunk) GetLine(pc int) int { return c.Lines[pc] }

// InstructionLen returns 1 (the opcode byte) plus OperandBytes(op) for the
// instruction whose opcode byte is at offset pc.
func (c *Chunk) InstructionLen(pc int) int {
	return 1 + OperandBytes(OpCode(c.Code[pc]))
}
