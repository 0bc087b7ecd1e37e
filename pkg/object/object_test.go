package object

import (
	"testing"

	"vela/pkg/value"
)

func TestTypeIDOfPrimitives(t *testing.T) {
	tests := []struct {
		name string
		v    value.Value
		want TypeID
	}{
		{"none", value.None(), TypeNone},
		{"bool", value.Bool(true), TypeBoolean},
		{"integer", value.Int(5), TypeInteger},
		{"float", value.Float(1.5), TypeFloat},
		{"error", value.Error(1), TypeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeIDOf(tt.v); got != tt.want {
				t.Fatalf("TypeIDOf(%v) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestTypeIDOfPointer(t *testing.T) {
	l := &List{Header: Header{TypeID: TypeList, RC: 1}}
	v := ValueOf(&l.Header)
	if !value.IsPointer(v) {
		t.Fatalf("ValueOf did not produce a pointer Value")
	}
	if got := TypeIDOf(v); got != TypeList {
		t.Fatalf("TypeIDOf(list) = %v, want TypeList", got)
	}
	if HeaderOf(v) != &l.Header {
		t.Fatalf("HeaderOf did not recover the original header")
	}
}

func TestListTrace(t *testing.T) {
	inner := &List{Header: Header{TypeID: TypeList, RC: 1}}
	outer := &List{Header: Header{TypeID: TypeList, RC: 1}, Items: []value.Value{
		value.Int(1), ValueOf(&inner.Header),
	}}
	var seen []value.Value
	outer.Trace(func(v value.Value) { seen = append(seen, v) })
	if len(seen) != 2 {
		t.Fatalf("expected 2 traced values, got %d", len(seen))
	}
}

func TestHeaderPoison(t *testing.T) {
	h := &Header{TypeID: TypeList, RC: 1}
	if h.Freed() {
		t.Fatalf("fresh header reports freed")
	}
	h.Poison()
	if !h.Freed() {
		t.Fatalf("poisoned header does not report freed")
	}
}
