package vela

import (
	"testing"

	"vela/pkg/object"
	"vela/pkg/value"
)

func TestEvalSuccessReturnsValueAndSuccessCode(t *testing.T) {
	v := New()
	defer v.Deinit()

	result, code := v.Eval(`
ConstI8Int R0, #3
ConstI8Int R1, #4
Add R0, R1, R2
Ret1 R2
`)
	if code != Success {
		t.Fatalf("expected Success, got %v (%s)", code, v.AllocLastErrorReport())
	}
	if !value.IsInteger(result) || value.AsInteger(result) != 7 {
		t.Fatalf("expected integer 7, got %#v", result)
	}
}

func TestSetPrintCapturesBuiltinPrintOutput(t *testing.T) {
	v := New()
	defer v.Deinit()

	var captured string
	v.SetPrint(func(s string) { captured += s })

	// Symbol id 0 is always the built-in print(), installed before any
	// host registration runs.
	_, code := v.Eval(`
ConstI8Int R0, #42
CallSym R1, s0, #0, #1
Ret1 R1
`)
	if code != Success {
		t.Fatalf("expected Success, got %v (%s)", code, v.AllocLastErrorReport())
	}
	if captured != "42\n" {
		t.Fatalf("expected print to capture %q, got %q", "42\n", captured)
	}
}

func TestEvalAssembleFailureReturnsResultToken(t *testing.T) {
	v := New()
	defer v.Deinit()

	_, code := v.Eval("NotAnOpcode R0, R1")
	if code != ResultToken {
		t.Fatalf("expected ResultToken, got %v", code)
	}
	if v.AllocLastErrorReport() == "" {
		t.Fatalf("expected a non-empty error report after a failed assemble")
	}
}

func TestEvalRuntimeFaultReturnsResultPanic(t *testing.T) {
	v := New()
	defer v.Deinit()

	_, code := v.Eval(`
ConstI8Int R0, #5
ConstI8Int R1, #0
Div R0, R1, R2
Ret1 R2
`)
	if code != ResultPanic {
		t.Fatalf("expected ResultPanic for a DivByZero fault, got %v", code)
	}
}

func TestRegisterHostFuncIsCallableThroughCallNativeFuncIC(t *testing.T) {
	v := New()
	defer v.Deinit()

	symID := v.RegisterHostFunc("double", 1, func(args []value.Value) value.Value {
		return value.Int(value.AsInteger(args[0]) * 2)
	})
	// Symbol id 0 is always the built-in print() installed at construction.
	if symID != 1 {
		t.Fatalf("expected the first host-registered func to get symID 1, got %d", symID)
	}

	result, code := v.Eval(`
ConstI8Int R0, #21
CallNativeFuncIC R1, s1, #0, #1
Ret1 R1
`)
	if code != Success {
		t.Fatalf("expected Success, got %v (%s)", code, v.AllocLastErrorReport())
	}
	if !value.IsInteger(result) || value.AsInteger(result) != 42 {
		t.Fatalf("expected integer 42, got %#v", result)
	}
}

func TestRegisterHostTypeAllocatesDistinctIDsPastBuiltins(t *testing.T) {
	v := New()
	defer v.Deinit()

	first := v.RegisterHostType()
	second := v.RegisterHostType()
	if first == second {
		t.Fatalf("expected two distinct host type ids, got %d twice", first)
	}
	if first <= object.TypeInstance {
		t.Fatalf("expected a host type id past the builtin range, got %d", first)
	}
}

func TestRetainReleaseAndPerformGCBalanceGlobalRC(t *testing.T) {
	v := New()
	defer v.Deinit()

	result, code := v.Eval(`
ConstI8Int R0, #10
ConstI8Int R1, #20
ConstI8Int R2, #30
List R3, R0, #3
Ret1 R3
`)
	if code != Success {
		t.Fatalf("expected Success, got %v (%s)", code, v.AllocLastErrorReport())
	}

	// Eval hands the caller an owned reference (RC == 1); Retain/Release
	// round-trip it before the single Release that drops it to zero and
	// frees it immediately (it's acyclic, so the trial-deletion pass has
	// nothing left to do).
	v.Retain(result)
	v.Release(result)
	v.Release(result)
	v.PerformGC()
	if rc := v.GetGlobalRC(); rc != 0 {
		t.Fatalf("expected global RC 0 after release+gc, got %d", rc)
	}
}
