package memory

import (
	"testing"

	"vela/pkg/object"
	"vela/pkg/value"
)

func TestRetainReleaseBalance(t *testing.T) {
	m := NewManager(true, nil)
	l := m.NewList([]value.Value{value.Int(1), value.Int(2)})
	v := object.ValueOf(&l.Header)

	if m.GlobalRC() != 1 {
		t.Fatalf("expected global RC 1 after alloc, got %d", m.GlobalRC())
	}
	m.Retain(v)
	if m.GlobalRC() != 2 {
		t.Fatalf("expected global RC 2 after retain, got %d", m.GlobalRC())
	}
	m.Release(v)
	if m.GlobalRC() != 1 {
		t.Fatalf("expected global RC 1 after one release, got %d", m.GlobalRC())
	}
	m.Release(v)
	if m.GlobalRC() != 0 {
		t.Fatalf("expected global RC 0 after final release, got %d", m.GlobalRC())
	}
	if !l.Header.Freed() {
		t.Fatalf("expected header to be poisoned after rc hit zero")
	}
}

func TestReleaseCascadesToChildren(t *testing.T) {
	m := NewManager(true, nil)
	inner := m.NewBox(value.Int(42))
	innerVal := object.ValueOf(&inner.Header)
	outer := m.NewList([]value.Value{innerVal})
	outerVal := object.ValueOf(&outer.Header)

	if m.GlobalRC() != 2 {
		t.Fatalf("expected 2 live objects, got rc=%d", m.GlobalRC())
	}
	m.Release(outerVal)
	if m.GlobalRC() != 0 {
		t.Fatalf("expected cascade to free child box too, rc=%d", m.GlobalRC())
	}
	if !inner.Header.Freed() {
		t.Fatalf("expected inner box to be freed by cascade")
	}
}

func TestRetainReleaseNonPointerNoOp(t *testing.T) {
	m := NewManager(true, nil)
	v := value.Int(7)
	m.Retain(v)
	m.Release(v)
	if m.GlobalRC() != 0 {
		t.Fatalf("retain/release of a non-pointer must not touch global RC")
	}
}

func TestPoolAllocationReused(t *testing.T) {
	m := NewManager(false, nil)
	b1 := m.NewBox(value.None())
	v1 := object.ValueOf(&b1.Header)
	m.Release(v1)
	b2 := m.NewBox(value.Int(1))
	if b1 != b2 {
		// Not guaranteed by sync.Pool, but typically true under no GC
		// pressure in a single-goroutine test; skip strict assertion,
		// just confirm the second box is valid and independently counted.
		t.Logf("pool did not reuse the freed box (acceptable)")
	}
	stats := m.Stats()
	if stats.Frees == 0 {
		t.Fatalf("expected at least one free to be recorded")
	}
}
