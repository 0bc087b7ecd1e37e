// Package object defines the heap object model: the common header every
// heap allocation carries, the full variant list, and the runtime type ids
// used by Value.GetTypeId. Layouts mirror the "Header, Variant" embedding
// style the engine's teacher VM uses for its own runtime values.
package object

import (
	"unsafe"

	"vela/pkg/value"
)

// TypeID is the runtime type id stored in every object header and returned
// by GetTypeId for primitives.
type TypeID uint32

// NullID is a reserved id that is never a live type id. Freed headers are
// marked with poisonID, not NullID.
const NullID TypeID = 0xFFFF_FFFF

// poisonID overwrites a freed object's header so use-after-free and
// double-free are detectable in debug builds.
const poisonID TypeID = 0xDEAD_BEEF

// Primitive type ids, returned by GetTypeId for values that are not heap
// pointers.
const (
	TypeNone TypeID = iota
	TypeBoolean
	TypeError
	TypeStaticString
	TypeSymbol
	TypeTagLiteral
	TypeInteger
	TypeFloat
)

// Heap variant type ids, in the order named by spec.md §3's variant list.
const (
	TypeList TypeID = iota + 100
	TypeListIter
	TypeMap
	TypeMapIter
	TypeClosure
	TypeLambda
	TypeAstring
	TypeUstring
	TypeStringSlice
	TypeRawstring
	TypeRawstringSlice
	TypeFiber
	TypeBox
	TypeNativeFunc1
	TypePointer
	TypeFile
	TypeDir
	TypeDirIter
	TypeMetaType
	// TypeInstance is the type id of script-created objects; host-registered
	// types are allocated ids starting one past it.
	TypeInstance
)

// Header is the common prefix every heap object embeds. Its layout mirrors
// spec.md §3: a 32-bit runtime type id doubling as a "freed" sentinel, and
// a 32-bit strong reference count initialized to 1 on allocation.
type Header struct {
	TypeID TypeID
	RC     uint32
}

// Freed reports whether the header has been poisoned by Free.
func (h *Header) Freed() bool { return h.TypeID == poisonID }

// Poison overwrites the header so subsequent use is detectable.
func (h *Header) Poison() { h.TypeID = poisonID }

// Tracer is implemented by every heap variant so the cycle collector (C4)
// and the destructor cascade (C3) can enumerate owned children uniformly.
type Tracer interface {
	// Trace calls visit once for every Value this object strongly owns.
	Trace(visit func(value.Value))
}

// HeaderOf recovers the common header from a pointer Value. Defined only
// when value.IsPointer(v).
func HeaderOf(v value.Value) *Header {
	return (*Header)(unsafe.Pointer(uintptr(value.PointerAddr(v))))
}

// ValueOf constructs the pointer Value referring to h.
func ValueOf(h *Header) value.Value {
	return value.Pointer(uint64(uintptr(unsafe.Pointer(h))))
}

// TypeIDOf returns the runtime type id of v: for a pointer, the header's
// TypeID; for a non-pointer, the tag-derived primitive type id.
func TypeIDOf(v value.Value) TypeID {
	switch {
	case value.IsPointer(v):
		return HeaderOf(v).TypeID
	case value.IsDouble(v):
		return TypeFloat
	case value.IsNone(v):
		return TypeNone
	case value.IsBool(v):
		return TypeBoolean
	case value.IsInteger(v):
		return TypeInteger
	case value.IsError(v):
		return TypeError
	case value.IsSymbol(v):
		return TypeSymbol
	case value.IsTagLiteral(v):
		return TypeTagLiteral
	case value.IsStaticString(v):
		return TypeStaticString
	default:
		return TypeID(NullID)
	}
}

// --- heap variants ---
//
// Every variant embeds Header first so a *Header recovered via HeaderOf can
// be cast back to the concrete type once its TypeID is known.

// List is a growable, ref-counted array of Values.
type List struct {
	Header
	Items []value.Value
}

func (l *List) Trace(visit func(value.Value)) {
	for _, v := range l.Items {
		visit(v)
	}
}

// ListIter is a cursor over a List.
type ListIter struct {
	Header
	List  *List
	Index int
}

func (it *ListIter) Trace(visit func(value.Value)) {
	if it.List != nil {
		visit(ValueOf(&it.List.Header))
	}
}

// mapEntry is one key/value pair in a Map's backing slice. A plain slice
// (rather than a native Go map) keeps Trace simple and makes iteration
// order deterministic, mirroring the bytecode-level Map/MapEmpty opcodes
// which build maps from a flat key,value,key,value... run of registers.
type mapEntry struct {
	Key   value.Value
	Value value.Value
}

// Map is a ref-counted ordered mapping of Values to Values.
type Map struct {
	Header
	entries []mapEntry
	index   map[uint64]int // keyed on the bit pattern for primitive keys
}

func NewMap() *Map {
	return &Map{index: make(map[uint64]int)}
}

func (m *Map) Len() int { return len(m.entries) }

func (m *Map) Get(key value.Value) (value.Value, bool) {
	if i, ok := m.index[uint64(key)]; ok {
		return m.entries[i].Value, true
	}
	return value.None(), false
}

func (m *Map) Set(key, v value.Value) {
	if i, ok := m.index[uint64(key)]; ok {
		m.entries[i].Value = v
		return
	}
	m.index[uint64(key)] = len(m.entries)
	m.entries = append(m.entries, mapEntry{Key: key, Value: v})
}

func (m *Map) Each(fn func(k, v value.Value)) {
	for _, e := range m.entries {
		fn(e.Key, e.Value)
	}
}

func (m *Map) Trace(visit func(value.Value)) {
	for _, e := range m.entries {
		visit(e.Key)
		visit(e.Value)
	}
}

// MapIter is a cursor over a Map.
type MapIter struct {
	Header
	Map   *Map
	Index int
}

func (it *MapIter) Trace(visit func(value.Value)) {
	if it.Map != nil {
		visit(ValueOf(&it.Map.Header))
	}
}

// Lambda is a bytecode function prototype with no captured environment.
type Lambda struct {
	Header
	EntryPC  int
	NumArgs  int
	NumLocal int
	Name     string
}

func (l *Lambda) Trace(func(value.Value)) {}

// Closure is a Lambda paired with its captured Box upvalues.
type Closure struct {
	Header
	Lambda  *Lambda
	Captred []*Box // captured boxes, in upvalue-index order
}

func (c *Closure) Trace(visit func(value.Value)) {
	for _, b := range c.Captred {
		visit(ValueOf(&b.Header))
	}
}

// Astring is an ASCII string: byte length and code-unit length coincide.
type Astring struct {
	Header
	Bytes []byte
}

func (s *Astring) Trace(func(value.Value)) {}

// Ustring is a non-ASCII (UTF-8) string; rune indexing requires a scan.
type Ustring struct {
	Header
	Bytes []byte
}

func (s *Ustring) Trace(func(value.Value)) {}

// StringSlice is a zero-copy view into an owning Astring/Ustring.
type StringSlice struct {
	Header
	Owner      *Header
	Start, End int
}

func (s *StringSlice) Trace(visit func(value.Value)) {
	if s.Owner != nil {
		visit(ValueOf(s.Owner))
	}
}

// Rawstring is an untyped byte buffer (no encoding guarantees).
type Rawstring struct {
	Header
	Bytes []byte
}

func (s *Rawstring) Trace(func(value.Value)) {}

// RawstringSlice is a zero-copy view into an owning Rawstring.
type RawstringSlice struct {
	Header
	Owner      *Rawstring
	Start, End int
}

func (s *RawstringSlice) Trace(visit func(value.Value)) {
	if s.Owner != nil {
		visit(ValueOf(&s.Owner.Header))
	}
}

// FiberStatus is the lifecycle state of a Fiber.
type FiberStatus uint8

const (
	FiberSuspended FiberStatus = iota
	FiberRunning
	FiberDone
)

// Fiber is a cooperative coroutine: an independent pc/stack pair plus the
// parent fiber to resume on yield or return.
type Fiber struct {
	Header
	Status  FiberStatus
	PC      int
	Stack   []value.Value
	Parent  *Fiber
	DebugID string // set by pkg/vm's Coinit handler to a fresh UUID string
}

func (f *Fiber) Trace(visit func(value.Value)) {
	for _, v := range f.Stack {
		visit(v)
	}
	if f.Parent != nil {
		visit(ValueOf(&f.Parent.Header))
	}
}

// Box is a heap cell used by closures to capture a mutable local by
// reference instead of by value.
type Box struct {
	Header
	Value value.Value
}

func (b *Box) Trace(visit func(value.Value)) { visit(b.Value) }

// NativeFuncKind distinguishes a plain host function from one that wants
// inline-cache installation rights ("Quicken" in the embedding surface).
type NativeFuncKind uint8

const (
	NativeFuncStandard NativeFuncKind = iota
	NativeFuncQuicken
)

// NativeFunc1 wraps a host function pointer plus its declared arity.
type NativeFunc1 struct {
	Header
	Fn      func(args []value.Value) value.Value
	Kind    NativeFuncKind
	Arity   int
	Name    string
}

func (n *NativeFunc1) Trace(func(value.Value)) {}

// Pointer is an opaque host-owned pointer value exposed to scripts.
type Pointer struct {
	Header
	Ptr unsafe.Pointer
}

func (p *Pointer) Trace(func(value.Value)) {}

// File wraps a host-owned file descriptor/handle.
type File struct {
	Header
	Closed bool
	handle interface{ Close() error }
}

func (f *File) Trace(func(value.Value)) {}

// Destroy closes the underlying host handle exactly once, satisfying the
// memory manager's finalize-before-free ordering for host-bound resources.
func (f *File) Destroy() {
	if f.Closed || f.handle == nil {
		return
	}
	f.handle.Close()
	f.Closed = true
}

// SetHandle attaches the host-owned closer backing this File. Exposed so
// pkg/vm (or a host binding) can wire a real os.File/net.Conn in without
// pkg/object depending on those packages.
func (f *File) SetHandle(h interface{ Close() error }) { f.handle = h }

// Dir represents an open directory handle.
type Dir struct {
	Header
	Path string
}

func (d *Dir) Trace(func(value.Value)) {}

// DirIter is a cursor over a Dir's entries.
type DirIter struct {
	Header
	Dir     *Dir
	Entries []string
	Index   int
}

func (it *DirIter) Trace(visit func(value.Value)) {
	if it.Dir != nil {
		visit(ValueOf(&it.Dir.Header))
	}
}

// MetaType reifies a runtime TypeID as a first-class Value (the result of
// a "type of" query).
type MetaType struct {
	Header
	Of TypeID
}

func (m *MetaType) Trace(func(value.Value)) {}

// Instance is the layout for host- or script-defined object types: a
// type-specific shape reduced, for this engine, to a flat field slice
// indexed positionally (field names/offsets are resolved by the
// out-of-scope compiler and encoded as the field-index operand of the
// Field*/SetField* opcodes).
type Instance struct {
	Header
	Fields []value.Value
}

func (i *Instance) Trace(visit func(value.Value)) {
	for _, v := range i.Fields {
		visit(v)
	}
}
