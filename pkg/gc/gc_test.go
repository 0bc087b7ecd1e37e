package gc

import (
	"testing"

	"vela/pkg/memory"
	"vela/pkg/object"
	"vela/pkg/value"
)

// Scenario 6: a.next = b; b.next = a; a = none; b = none; performGC reports
// two objects freed that were unreachable except through each other.
func TestPerformGCReclaimsSimpleCycle(t *testing.T) {
	m := memory.NewManager(true, nil)
	a := m.NewInstance(object.TypeInstance, 1)
	b := m.NewInstance(object.TypeInstance, 1)
	aVal := object.ValueOf(&a.Header)
	bVal := object.ValueOf(&b.Header)

	a.Fields[0] = bVal
	m.Retain(bVal)
	b.Fields[0] = aVal
	m.Retain(aVal)

	// The script then drops its own (only external) references.
	m.Release(aVal)
	m.Release(bVal)

	if a.Header.Freed() || b.Header.Freed() {
		t.Fatalf("objects must still be alive — only the cycle references remain")
	}

	result := New(nil).PerformGC(m)
	if result.NumCycFreed != 2 {
		t.Fatalf("expected numCycFreed == 2, got %d", result.NumCycFreed)
	}
	if !a.Header.Freed() || !b.Header.Freed() {
		t.Fatalf("expected both cycle members to be freed")
	}
	if m.GlobalRC() != 0 {
		t.Fatalf("expected global RC 0 after GC, got %d", m.GlobalRC())
	}
}

func TestPerformGCLeavesExternallyReachableObjectsAlone(t *testing.T) {
	m := memory.NewManager(true, nil)
	a := m.NewInstance(object.TypeInstance, 1)
	b := m.NewInstance(object.TypeInstance, 1)
	aVal := object.ValueOf(&a.Header)
	bVal := object.ValueOf(&b.Header)

	a.Fields[0] = bVal
	m.Retain(bVal)
	b.Fields[0] = aVal
	m.Retain(aVal)

	// Keep an external reference to a (simulates a live stack slot).
	m.Retain(aVal)
	m.Release(bVal)

	result := New(nil).PerformGC(m)
	if result.NumCycFreed != 0 {
		t.Fatalf("expected nothing freed while an external root exists, got %d", result.NumCycFreed)
	}
	if a.Header.Freed() || b.Header.Freed() {
		t.Fatalf("objects reachable from an external root must survive GC")
	}

	// Drop both the script's own reference to a and the extra external
	// retain, so the only remaining edges are the cycle's own a<->b links.
	m.Release(aVal)
	m.Release(aVal)
	result = New(nil).PerformGC(m)
	if result.NumCycFreed != 2 {
		t.Fatalf("expected the cycle to be collected once its last root drops, got %d", result.NumCycFreed)
	}
}

func TestPerformGCOnEmptyHeapIsNoop(t *testing.T) {
	m := memory.NewManager(true, nil)
	result := New(nil).PerformGC(m)
	if result.NumCycFreed != 0 || result.NumObjFreed != 0 {
		t.Fatalf("expected zero result on an empty heap, got %+v", result)
	}
}

func TestPerformGCDoesNotTouchAcyclicGarbage(t *testing.T) {
	// Ordinary (non-cyclic) garbage is already reclaimed by Release; GC
	// should not double-free or otherwise disturb live, acyclic objects.
	m := memory.NewManager(true, nil)
	box := m.NewBox(value.Int(1))
	boxVal := object.ValueOf(&box.Header)

	result := New(nil).PerformGC(m)
	if result.NumObjFreed != 0 {
		t.Fatalf("expected the live, externally-rooted box to survive GC")
	}
	m.Release(boxVal)
	if m.GlobalRC() != 0 {
		t.Fatalf("expected ordinary release to reclaim acyclic garbage without GC")
	}
}
