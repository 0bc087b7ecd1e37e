package errors

import (
	"strings"
	"testing"
)

func TestNewFormatsMessage(t *testing.T) {
	err := New(TypeError, Position{Line: 3, PC: 12}, "expected %s, got %s", "int", "string")
	if err.Kind() != TypeError {
		t.Fatalf("expected Kind TypeError, got %v", err.Kind())
	}
	if err.Message() != "expected int, got string" {
		t.Fatalf("unexpected message: %q", err.Message())
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected position in Error() string, got %q", err.Error())
	}
}

func TestNewWithZeroPositionOmitsLocation(t *testing.T) {
	err := New(OutOfMemory, Position{}, "heap exhausted")
	if strings.Contains(err.Error(), "line 0") {
		t.Fatalf("did not expect a zero line number rendered, got %q", err.Error())
	}
}

func TestRaisedIsPanicKind(t *testing.T) {
	err := Raised(Position{Line: 1}, "boom")
	if err.Kind() != Panic {
		t.Fatalf("expected Kind Panic, got %v", err.Kind())
	}
}

func TestKindStringCoversAllValues(t *testing.T) {
	for _, k := range []Kind{Token, Parse, Compile, Panic, TypeError, DivByZero, OutOfMemory, StackOverflow, NotFound} {
		if k.String() == "Unknown" {
			t.Fatalf("kind %d missing from String()", k)
		}
	}
}
