package symbols

import (
	"testing"

	"vela/pkg/object"
)

func TestFuncTableRoundTrip(t *testing.T) {
	ft := NewFuncTable()
	id := ft.Add(FuncEntry{Kind: FuncBytecode, Arity: 2, EntryPC: 40, Name: "add"})
	got := ft.Get(id)
	if got.Name != "add" || got.EntryPC != 40 {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestMethodTableLookupMiss(t *testing.T) {
	mt := NewMethodTable()
	if _, ok := mt.Lookup(object.TypeAstring, 0); ok {
		t.Fatalf("expected miss on empty table")
	}
	mt.Register(object.TypeAstring, 0, FuncEntry{Kind: FuncNative, Name: "size"})
	e, ok := mt.Lookup(object.TypeAstring, 0)
	if !ok || e.Name != "size" {
		t.Fatalf("expected hit after register, got %+v ok=%v", e, ok)
	}
}

// P3/P4: monomorphic IC hit/miss/deopt behavior.
func TestInlineCacheMonomorphicDeopt(t *testing.T) {
	var ic ICState
	if _, ok := ic.Lookup(object.TypeAstring); ok {
		t.Fatalf("unpopulated cache must miss")
	}
	entry := FuncEntry{Kind: FuncNative, Name: "size"}
	ic.Populate(object.TypeAstring, entry)

	got, ok := ic.Lookup(object.TypeAstring)
	if !ok || got.Name != "size" {
		t.Fatalf("expected cache hit for matching type")
	}

	if _, ok := ic.Lookup(object.TypeUstring); ok {
		t.Fatalf("expected miss for a different receiver type (P4)")
	}
	ic.Deoptimize()
	if ic.Populated {
		t.Fatalf("expected cache to be cleared after deoptimization")
	}
}

func TestInterner(t *testing.T) {
	in := NewInterner()
	a := in.Intern("Red")
	b := in.Intern("Blue")
	again := in.Intern("Red")
	if a != again {
		t.Fatalf("expected repeated intern of the same name to share an id")
	}
	if a == b {
		t.Fatalf("expected distinct names to get distinct ids")
	}
	if in.Name(a) != "Red" {
		t.Fatalf("expected Name to round-trip, got %q", in.Name(a))
	}
}
