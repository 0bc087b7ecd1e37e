package bytecode

// FieldKind classifies one operand field within an instruction, so the
// assembler (pkg/asm) and disassembler can agree on how to read/write it
// without duplicating per-opcode knowledge.
type FieldKind uint8

const (
	FieldReg       FieldKind = iota // one register number, 1 byte
	FieldImm8                       // one signed 8-bit immediate
	FieldByte                       // one raw unsigned byte (counts, flags)
	FieldConstIdx                   // 2-byte little-endian constant pool index
	FieldSymID                      // 2-byte little-endian symbol id
	FieldJumpOff                    // 2-byte little-endian signed jump offset
)

func (k FieldKind) width() int {
	switch k {
	case FieldConstIdx, FieldSymID, FieldJumpOff:
		return 2
	default:
		return 1
	}
}

// Schema returns the ordered operand fields for op, consistent with
// OperandBytes(op) (the two must describe the same total byte count).
func Schema(op OpCode) []FieldKind {
	switch op {
	case True, False, None, End, Coyield, Coreturn, Ret0:
		return nil
	case Neg, Retain, Release, ClosureOp, Lambda, Ret1:
		return []FieldKind{FieldReg}
	case ConstI8, ConstI8Int:
		return []FieldKind{FieldReg, FieldImm8}
	case ConstOp:
		return []FieldKind{FieldReg, FieldConstIdx}
	case Jump:
		return []FieldKind{FieldJumpOff}
	case JumpCond, JumpNotCond, JumpNotNone:
		return []FieldKind{FieldReg, FieldJumpOff}
	case Copy, CopyReleaseDst, CopyRetainSrc, CopyRetainRelease, SetBoxValue, SetBoxValueRelease, ReleaseN:
		return []FieldKind{FieldReg, FieldReg}
	case BitwiseNot:
		return []FieldKind{FieldReg, FieldReg}
	case Coresume:
		return []FieldKind{FieldReg, FieldReg}
	case TryValue:
		return []FieldKind{FieldReg, FieldReg}
	case Add, Sub, Mul, Div, Mod, Pow, AddInt, SubInt, LessInt,
		Compare, CompareNot, Less, Greater, LessEqual, GreaterEqual,
		BitwiseAnd, BitwiseOr, BitwiseXor, BitwiseLeftShift, BitwiseRightShift,
		Index, ReverseIndex, SetIndex, SetIndexRelease, Box, BoxValue, BoxValueRetain:
		return []FieldKind{FieldReg, FieldReg, FieldReg}
	case List, Map, MapEmpty, ObjectSmall, Object, StringTemplate, SetInitN, Slice:
		return []FieldKind{FieldReg, FieldReg, FieldByte}
	case Field, FieldRetain, FieldRelease, SetField, SetFieldRelease:
		return []FieldKind{FieldReg, FieldReg, FieldByte}
	case FieldIC, FieldRetainIC, SetFieldReleaseIC:
		return []FieldKind{FieldReg, FieldReg, FieldByte, FieldByte}
	case Call0, Call1:
		return []FieldKind{FieldReg, FieldReg, FieldByte}
	case CallSym, CallFuncIC, CallNativeFuncIC:
		return []FieldKind{FieldReg, FieldSymID, FieldByte, FieldByte}
	case CallObjSym, CallObjFuncIC, CallObjNativeFuncIC:
		return []FieldKind{FieldReg, FieldReg, FieldSymID, FieldByte, FieldByte}
	case Tag, TagLiteral, Sym, StaticFunc, StaticVar, SetStaticVar, SetStaticFunc:
		return []FieldKind{FieldReg, FieldSymID}
	case ForRangeInit:
		return []FieldKind{FieldReg, FieldReg, FieldReg, FieldByte}
	case ForRange, ForRangeReverse:
		return []FieldKind{FieldReg, FieldReg, FieldReg, FieldReg, FieldByte}
	case Coinit:
		return []FieldKind{FieldReg, FieldReg, FieldByte, FieldByte}
	default:
		return nil
	}
}
