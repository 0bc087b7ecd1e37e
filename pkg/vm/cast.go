package vm

import (
	"unsafe"

	"vela/pkg/object"
)

// These helpers recover a concrete heap-variant pointer from the *Header a
// Value carries, mirroring object.HeaderOf's own unsafe.Pointer
// reinterpretation: every variant embeds Header as its first field, so the
// cast is valid once TypeID confirms the variant. Kept in pkg/vm (rather
// than pkg/object) since only the dispatch loop needs to reach back into
// live field/element storage; GC and refcounting only ever need the
// Header + Tracer interface.

func asList(h *object.Header) *object.List   { return (*object.List)(unsafe.Pointer(h)) }
func asMap(h *object.Header) *object.Map     { return (*object.Map)(unsafe.Pointer(h)) }
func asBox(h *object.Header) *object.Box     { return (*object.Box)(unsafe.Pointer(h)) }
func asLambda(h *object.Header) *object.Lambda {
	return (*object.Lambda)(unsafe.Pointer(h))
}
func asClosure(h *object.Header) *object.Closure {
	return (*object.Closure)(unsafe.Pointer(h))
}
func asAstring(h *object.Header) *object.Astring {
	return (*object.Astring)(unsafe.Pointer(h))
}
func asUstring(h *object.Header) *object.Ustring {
	return (*object.Ustring)(unsafe.Pointer(h))
}
func asStringSlice(h *object.Header) *object.StringSlice {
	return (*object.StringSlice)(unsafe.Pointer(h))
}
func asInstance(h *object.Header) *object.Instance {
	return (*object.Instance)(unsafe.Pointer(h))
}
func asFiber(h *object.Header) *object.Fiber { return (*object.Fiber)(unsafe.Pointer(h)) }
func asNativeFunc1(h *object.Header) *object.NativeFunc1 {
	return (*object.NativeFunc1)(unsafe.Pointer(h))
}
