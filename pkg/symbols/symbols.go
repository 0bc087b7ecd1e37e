// Package symbols implements function/method symbol resolution and the
// monomorphic inline caches the dispatch loop installs at call sites (C5).
package symbols

import (
	"vela/pkg/object"
	"vela/pkg/value"
)

// NotFound is returned by method lookup when a (typeId, symId) pair has no
// registered handler.
const NotFound = -1

// FuncKind distinguishes a bytecode target from a native host function.
type FuncKind uint8

const (
	FuncBytecode FuncKind = iota
	FuncNative
)

// NativeFn is the signature every native (host) function symbol target
// must satisfy.
type NativeFn func(args []value.Value) value.Value

// FuncEntry is one function-symbol table entry: either a bytecode entry
// point or a native function pointer, plus its declared arity.
type FuncEntry struct {
	Kind      FuncKind
	Arity     int
	EntryPC   int      // valid when Kind == FuncBytecode
	NumLocals int      // valid when Kind == FuncBytecode
	Native    NativeFn // valid when Kind == FuncNative
	Name      string
}

// FuncTable is the flat, symId-indexed function symbol table (spec.md
// §4.4 "Function symbols").
type FuncTable struct {
	entries []FuncEntry
}

// NewFuncTable constructs an empty function symbol table.
func NewFuncTable() *FuncTable { return &FuncTable{} }

// Add appends e and returns its symId.
func (t *FuncTable) Add(e FuncEntry) int {
	t.entries = append(t.entries, e)
	return len(t.entries) - 1
}

// Get resolves a symId to its entry. Panics on an out-of-range symId — the
// compiler (out of scope) is responsible for only ever emitting valid ids.
func (t *FuncTable) Get(symID int) FuncEntry { return t.entries[symID] }

// methodKey is the composite key a method table is indexed by.
type methodKey struct {
	TypeID object.TypeID
	SymID  int
}

// MethodTable holds per-(typeId, symId) method resolution (spec.md §4.4
// "Method symbols").
type MethodTable struct {
	methods map[methodKey]FuncEntry
}

// NewMethodTable constructs an empty method table.
func NewMethodTable() *MethodTable {
	return &MethodTable{methods: make(map[methodKey]FuncEntry)}
}

// Register binds (typeID, symID) to entry.
func (t *MethodTable) Register(typeID object.TypeID, symID int, entry FuncEntry) {
	t.methods[methodKey{typeID, symID}] = entry
}

// Lookup resolves (typeID, symID). ok is false (entry zero value) when the
// pair has no registered handler — the dispatch loop turns that into a
// NotFound panic.
func (t *MethodTable) Lookup(typeID object.TypeID, symID int) (FuncEntry, bool) {
	e, ok := t.methods[methodKey{typeID, symID}]
	return e, ok
}

// ICState is the monomorphic inline-cache slot embedded at a call/field
// site. It caches exactly one (typeId, handler) pair and never widens to a
// polymorphic cache. The dispatch loop in pkg/vm does not call Deoptimize:
// on a miss it resolves the method through the method table and
// repopulates the slot with the new receiver type.
type ICState struct {
	Populated bool
	TypeID    object.TypeID
	Entry     FuncEntry
	// FieldOffset is not read by the dispatch loop; the Field*/SetField*
	// IC variants cache their field index in FieldICState instead.
	FieldOffset int
}

// Lookup checks the cache against the receiver's runtime type. A hit
// returns the cached entry directly; a miss leaves the cache unchanged
// and reports ok=false.
func (ic *ICState) Lookup(typeID object.TypeID) (FuncEntry, bool) {
	if ic.Populated && ic.TypeID == typeID {
		return ic.Entry, true
	}
	return FuncEntry{}, false
}

// Populate installs (typeID, entry) into the cache, overwriting whatever
// was cached before (monomorphic: one slot, no widening to polymorphic).
func (ic *ICState) Populate(typeID object.TypeID, entry FuncEntry) {
	ic.Populated = true
	ic.TypeID = typeID
	ic.Entry = entry
}

// Deoptimize clears a populated cache, matching a type mismatch at a
// previously-cached call site.
func (ic *ICState) Deoptimize() {
	ic.Populated = false
}

// FieldICState caches a resolved (typeId, fieldOffset) pair for the
// Field/SetField IC opcode family.
type FieldICState struct {
	Populated bool
	TypeID    object.TypeID
	Offset    int
}

func (ic *FieldICState) Lookup(typeID object.TypeID) (int, bool) {
	if ic.Populated && ic.TypeID == typeID {
		return ic.Offset, true
	}
	return 0, false
}

func (ic *FieldICState) Populate(typeID object.TypeID, offset int) {
	ic.Populated = true
	ic.TypeID = typeID
	ic.Offset = offset
}

func (ic *FieldICState) Deoptimize() { ic.Populated = false }

// --- interned symbol/tag-literal table ---
//
// Backs the Sym/Tag/TagLiteral opcode family (SPEC_FULL "Supplemented
// features" item 3): small integer ids for symbols and enum/tag literals,
// interned so repeated literals of the same name share one id.

// Interner assigns small, stable integer ids to symbol/tag-literal names.
type Interner struct {
	names []string
	ids   map[string]uint32
}

// NewInterner constructs an empty interner.
func NewInterner() *Interner {
	return &Interner{ids: make(map[string]uint32)}
}

// Intern returns the id for name, allocating a new one on first use.
func (in *Interner) Intern(name string) uint32 {
	if id, ok := in.ids[name]; ok {
		return id
	}
	id := uint32(len(in.names))
	in.names = append(in.names, name)
	in.ids[name] = id
	return id
}

// Name returns the name an id was interned from.
func (in *Interner) Name(id uint32) string {
	if int(id) >= len(in.names) {
		return "<unknown>"
	}
	return in.names[id]
}
