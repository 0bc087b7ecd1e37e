package vm

import (
	"math"

	"vela/pkg/errors"
	"vela/pkg/object"
	"vela/pkg/value"
)

// binOp is the generic (non-fast-path) handler every arithmetic/comparison
// opcode falls back to once it discovers its operands are not the native
// double/double or int/int case its fast path was compiled for. Per
// spec.md §4.7 the fallback: (1) promotes int<->double when both operands
// are numeric; (2) dispatches to a type-specific operator (string
// concatenation for Add); (3) otherwise raises a TypeError.
func (vm *VM) binOp(op arithOp, a, b value.Value, pc int) (value.Value, errors.VelaError) {
	// Integer division/modulo by zero is a hard error (unlike the IEEE
	// double path below, which yields +/-Inf or NaN); checked before the
	// numeric-promotion fast path so int/int keeps its own semantics.
	if (op == opDiv || op == opMod) && value.IsInteger(a) && value.IsInteger(b) && value.AsInteger(b) == 0 {
		return value.None(), errors.New(errors.DivByZero, errors.Position{PC: pc}, "integer division by zero")
	}
	if value.IsDouble(a) && value.IsDouble(b) {
		return vm.numericBinOp(op, value.AsDouble(a), value.AsDouble(b), pc)
	}
	if isNumeric(a) && isNumeric(b) {
		return vm.numericBinOp(op, value.ToFloat64(a), value.ToFloat64(b), pc)
	}
	if op == opAdd && isString(vm, a) && isString(vm, b) {
		return vm.concatStrings(a, b), nil
	}
	return value.None(), vm.typeError(pc, "unsupported operand types for %s", op)
}

type arithOp uint8

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opMod
	opPow
)

func (op arithOp) String() string {
	switch op {
	case opAdd:
		return "+"
	case opSub:
		return "-"
	case opMul:
		return "*"
	case opDiv:
		return "/"
	case opMod:
		return "%"
	case opPow:
		return "**"
	default:
		return "?"
	}
}

func isNumeric(v value.Value) bool { return value.IsDouble(v) || value.IsInteger(v) }

func isString(vm *VM, v value.Value) bool {
	if value.IsStaticString(v) {
		return true
	}
	if !value.IsPointer(v) {
		return false
	}
	id := object.HeaderOf(v).TypeID
	return id == object.TypeAstring || id == object.TypeUstring || id == object.TypeStringSlice
}

// numericBinOp implements the both-numeric fast/promoted path. When both
// original operands were integers, the int/int opcode variants (AddInt,
// SubInt) are expected to have already been taken by the dispatch loop;
// this path always computes in float64 and — for Add/Sub/Mul/Mod when both
// inputs are exactly representable integral doubles — narrows back to an
// integer Value, matching the "integer arithmetic stays integer" testable
// property (scenario 1) while still handling the promoted-from-mixed case
// (scenario 2).
func (vm *VM) numericBinOp(op arithOp, a, b float64, pc int) (value.Value, errors.VelaError) {
	var r float64
	switch op {
	case opAdd:
		r = a + b
	case opSub:
		r = a - b
	case opMul:
		r = a * b
	case opDiv:
		r = a / b // IEEE: division by zero yields ±Inf/NaN, never an error
	case opMod:
		r = math.Mod(a, b)
	case opPow:
		r = math.Pow(a, b)
	}
	if op != opDiv && op != opPow && isIntegral(a) && isIntegral(b) && isIntegral(r) && withinInt32(r) {
		return value.Int(int32(r)), nil
	}
	return value.Float(r), nil
}

func isIntegral(f float64) bool { return f == math.Trunc(f) }
func withinInt32(f float64) bool {
	return f >= math.MinInt32 && f <= math.MaxInt32
}

func (vm *VM) concatStrings(a, b value.Value) value.Value {
	s := vm.stringText(a) + vm.stringText(b)
	astr := vm.Manager.NewAstring(s)
	return object.ValueOf(&astr.Header)
}

func (vm *VM) typeError(pc int, format string, args ...any) errors.VelaError {
	return errors.New(errors.TypeError, errors.Position{PC: pc}, format, args...)
}

// --- integer-only fast paths (AddInt/SubInt/LessInt) ---
//
// Emitted by the (out-of-scope) compiler only when it has proven both
// operands are integers; grounded on original_source/src/vm.c's AddInt/
// SubInt/LessInt opcode bodies, which do plain wraparound int32 math with
// no promotion or overflow check.

func addIntFast(a, b value.Value) value.Value {
	return value.Int(value.AsInteger(a) + value.AsInteger(b))
}

func subIntFast(a, b value.Value) value.Value {
	return value.Int(value.AsInteger(a) - value.AsInteger(b))
}

func lessIntFast(a, b value.Value) value.Value {
	return value.Bool(value.AsInteger(a) < value.AsInteger(b))
}

// --- comparisons ---

// compareOrdered implements Less/Greater/LessEqual/GreaterEqual. Per
// spec.md §4.5: numeric widening between int and double; string
// comparisons are lexicographic over code units; ordered comparison across
// any other kind raises TypeError.
func (vm *VM) compareOrdered(a, b value.Value, pc int) (order int, err errors.VelaError) {
	if isNumeric(a) && isNumeric(b) {
		fa, fb := value.ToFloat64(a), value.ToFloat64(b)
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if isString(vm, a) && isString(vm, b) {
		sa, sb := vm.stringText(a), vm.stringText(b)
		switch {
		case sa < sb:
			return -1, nil
		case sa > sb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, vm.typeError(pc, "unorderable types in comparison")
}

// compareEqual implements Compare/CompareNot: numeric/string value
// equality where applicable, identity (raw bit pattern) for everything
// else. Unlike ordered comparison, this never raises TypeError.
func (vm *VM) compareEqual(a, b value.Value) bool {
	if isNumeric(a) && isNumeric(b) {
		return value.ToFloat64(a) == value.ToFloat64(b)
	}
	if isString(vm, a) && isString(vm, b) {
		return vm.stringText(a) == vm.stringText(b)
	}
	return value.Is(a, b)
}

// --- bitwise (integer-only) ---

func bitwiseBinOp(op func(a, b int32) int32, a, b value.Value) value.Value {
	return value.Int(op(value.AsInteger(a), value.AsInteger(b)))
}
