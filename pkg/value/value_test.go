package value

import (
	"math"
	"testing"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want func(Value) bool
	}{
		{"none", None(), IsNone},
		{"true", Bool(true), IsBool},
		{"false", Bool(false), IsBool},
		{"zero", Int(0), IsInteger},
		{"negative", Int(-128), IsInteger},
		{"maxint32", Int(math.MaxInt32), IsInteger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.want(tt.v) {
				t.Fatalf("predicate failed for %s", tt.name)
			}
		})
	}
}

func TestIntRoundTrip(t *testing.T) {
	for _, n := range []int32{0, 1, -1, 127, -128, math.MaxInt32, math.MinInt32} {
		v := Int(n)
		if !IsInteger(v) {
			t.Fatalf("Int(%d) not tagged as integer", n)
		}
		if got := AsInteger(v); got != n {
			t.Fatalf("AsInteger(Int(%d)) = %d", n, got)
		}
	}
}

// P8: ConstI8Int with operand 0x80 loads the integer value -128.
func TestConstI8IntBoundary(t *testing.T) {
	raw := byte(0x80)
	imm := int8(raw) // -128 as a signed 8-bit immediate
	v := Int(int32(imm))
	if AsInteger(v) != -128 {
		t.Fatalf("expected -128, got %d", AsInteger(v))
	}
}

func TestFloatRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1.5, -1.5, math.Inf(1), math.Inf(-1)} {
		v := Float(f)
		if !IsDouble(v) {
			t.Fatalf("Float(%v) not recognized as double", f)
		}
		if got := AsDouble(v); got != f {
			t.Fatalf("AsDouble(Float(%v)) = %v", f, got)
		}
	}
}

func TestFloatCanonicalizesNaN(t *testing.T) {
	// A signalling NaN whose raw bits happen to collide with the tagged
	// sentinel must be canonicalised, never stored verbatim.
	raw := math.Float64frombits(nanSentinel | 0x1)
	v := Float(raw)
	if !IsDouble(v) {
		t.Fatalf("canonicalised NaN must still read back as a double")
	}
	if !math.IsNaN(AsDouble(v)) {
		t.Fatalf("expected NaN after canonicalisation")
	}
}

func TestPointerRoundTrip(t *testing.T) {
	addr := uint64(0x1234_5678_9ABC)
	v := Pointer(addr)
	if !IsPointer(v) {
		t.Fatalf("Pointer(%x) not recognized as pointer", addr)
	}
	if got := PointerAddr(v); got != addr {
		t.Fatalf("PointerAddr = %x, want %x", got, addr)
	}
}

func TestExactlyOnePredicateHolds(t *testing.T) {
	values := []Value{
		None(), Bool(true), Bool(false), Int(0), Int(-5),
		Error(3), Symbol(1), TagLiteralValue(2), StaticString(4),
		Pointer(0x10), Float(1.25), Float(0),
	}
	for _, v := range values {
		count := 0
		for _, pred := range []func(Value) bool{
			IsDouble, IsNone, IsBool, IsInteger, IsError, IsPointer, IsOtherPrimitive,
		} {
			if pred(v) {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("value %#x satisfies %d predicates, want exactly 1", uint64(v), count)
		}
	}
}

func TestTruthiness(t *testing.T) {
	falsy := []Value{None(), Bool(false)}
	truthy := []Value{Bool(true), Int(0), Float(0), Pointer(0x8)}
	for _, v := range falsy {
		if IsTruthy(v) {
			t.Fatalf("expected %#x to be falsy", uint64(v))
		}
	}
	for _, v := range truthy {
		if !IsTruthy(v) {
			t.Fatalf("expected %#x to be truthy", uint64(v))
		}
	}
}
