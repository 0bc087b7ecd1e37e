// Package memory implements the engine's allocation and reference-counting
// discipline (C3): sync.Pool free lists for the Box, Fiber, ListIter and
// MapIter kinds, plain Go allocation for every other kind, and the retain/release
// primitives every opcode that touches a pointer Value must call.
package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"vela/pkg/object"
	"vela/pkg/value"

	"go.uber.org/zap"
)

// unsafePtr reinterprets a *Header as a pointer to the concrete variant it
// heads. Safe because every variant embeds Header as its first field, so
// the addresses coincide, and the TypeID in the header is the single
// source of truth for which concrete type is actually there.
func unsafePtr(h *object.Header) unsafe.Pointer {
	return unsafe.Pointer(h)
}

// PoolMax is the size, in bytes, up to which countAlloc counts an
// allocation as a pool allocation in Stats; larger ones count as general
// allocations. Which kinds are actually pooled is fixed per kind, not by
// this size. Matches spec.md §4.2's POOL_MAX = 32.
const PoolMax = 32

// Destroyer is implemented by heap variants that need custom teardown
// beyond releasing traced children (closing a file handle, for instance).
type Destroyer interface {
	Destroy()
}

// Manager owns allocation bookkeeping and the retain/release cascade for
// one VM's heap. It does not itself replace Go's garbage collector — the
// underlying storage for every object is still Go-managed — but it makes
// the reference-counting discipline real: RC transitions, pooled reuse,
// and depth-first destruction are exactly what they would be in a
// from-scratch allocator.
type Manager struct {
	log *zap.Logger

	TrackGlobalRC bool
	globalRC      int64

	poolAllocs    int64
	generalAllocs int64
	frees         int64

	boxPool   sync.Pool
	fiberPool sync.Pool
	listIter  sync.Pool
	mapIter   sync.Pool

	liveMu sync.Mutex
	live   map[*object.Header]struct{}
}

// NewManager constructs a Manager. A nil logger is replaced with a no-op
// logger, matching pkg/vm's "quiet unless asked" logging posture.
func NewManager(trackGlobalRC bool, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{log: log, TrackGlobalRC: trackGlobalRC, live: make(map[*object.Header]struct{})}
	m.boxPool.New = func() any { return new(object.Box) }
	m.fiberPool.New = func() any { return new(object.Fiber) }
	m.listIter.New = func() any { return new(object.ListIter) }
	m.mapIter.New = func() any { return new(object.MapIter) }
	return m
}

// GlobalRC returns the live count of outstanding strong references,
// meaningful only when TrackGlobalRC is enabled at construction.
func (m *Manager) GlobalRC() int64 { return atomic.LoadInt64(&m.globalRC) }

// Stats is a snapshot of allocator bookkeeping, useful for tests and the
// "rc balance" property (P2).
type Stats struct {
	PoolAllocs    int64
	GeneralAllocs int64
	Frees         int64
	GlobalRC      int64
}

func (m *Manager) Stats() Stats {
	return Stats{
		PoolAllocs:    atomic.LoadInt64(&m.poolAllocs),
		GeneralAllocs: atomic.LoadInt64(&m.generalAllocs),
		Frees:         atomic.LoadInt64(&m.frees),
		GlobalRC:      atomic.LoadInt64(&m.globalRC),
	}
}

func (m *Manager) countAlloc(size uintptr) {
	if size <= PoolMax {
		atomic.AddInt64(&m.poolAllocs, 1)
	} else {
		atomic.AddInt64(&m.generalAllocs, 1)
	}
}

func (m *Manager) initHeader(h *object.Header, typeID object.TypeID) value.Value {
	h.TypeID = typeID
	h.RC = 1
	if m.TrackGlobalRC {
		atomic.AddInt64(&m.globalRC, 1)
	}
	m.liveMu.Lock()
	m.live[h] = struct{}{}
	m.liveMu.Unlock()
	return object.ValueOf(h)
}

// LiveHeaders returns a snapshot of every currently-allocated, not-yet-freed
// object header. Used by the cycle collector (C4) to walk the full heap.
func (m *Manager) LiveHeaders() []*object.Header {
	m.liveMu.Lock()
	defer m.liveMu.Unlock()
	out := make([]*object.Header, 0, len(m.live))
	for h := range m.live {
		out = append(out, h)
	}
	return out
}

// TraceChildren calls visit once for every heap-object child h strongly
// references, resolved to their headers. Non-pointer children are skipped.
func (m *Manager) TraceChildren(h *object.Header, visit func(*object.Header)) {
	tracer, _ := m.lookupTracer(h)
	if tracer == nil {
		return
	}
	tracer.Trace(func(v value.Value) {
		if value.IsPointer(v) {
			visit(object.HeaderOf(v))
		}
	})
}

// ForceFree finalizes and frees h unconditionally, bypassing the normal RC
// check. Used by the cycle collector once trial deletion has confirmed h is
// part of a cycle unreachable from any external root.
func (m *Manager) ForceFree(h *object.Header) {
	if h.Freed() {
		return
	}
	if m.TrackGlobalRC && h.RC > 0 {
		atomic.AddInt64(&m.globalRC, -int64(h.RC))
	}
	tracer, destroyer := m.lookupTracer(h)
	if destroyer != nil {
		destroyer.Destroy()
	}
	_ = tracer
	m.freeHeader(h)
}

// NewBox allocates a Box from the small-object pool (Header + one Value is
// well under PoolMax).
func (m *Manager) NewBox(initial value.Value) *object.Box {
	m.countAlloc(16)
	b := m.boxPool.Get().(*object.Box)
	b.Value = initial
	m.initHeader(&b.Header, object.TypeBox)
	return b
}

// NewFiber allocates a Fiber with its own independent stack.
func (m *Manager) NewFiber(stackSize int) *object.Fiber {
	m.countAlloc(64) // slice header + backing array dominate; general allocator
	f := m.fiberPool.Get().(*object.Fiber)
	f.Stack = make([]value.Value, stackSize)
	f.Status = object.FiberSuspended
	m.initHeader(&f.Header, object.TypeFiber)
	return f
}

// NewList allocates a List holding items (the opcode-level move
// semantics in spec.md §4.5 are the caller's responsibility; this just
// allocates and takes ownership of the backing slice it is given).
func (m *Manager) NewList(items []value.Value) *object.List {
	m.countAlloc(uintptr(24 + 16*len(items)))
	l := &object.List{Items: items}
	m.initHeader(&l.Header, object.TypeList)
	return l
}

// NewListIter allocates a cursor over l.
func (m *Manager) NewListIter(l *object.List) *object.ListIter {
	m.countAlloc(24)
	it := m.listIter.Get().(*object.ListIter)
	it.List = l
	it.Index = 0
	m.initHeader(&it.Header, object.TypeListIter)
	return it
}

// NewMap allocates an empty Map.
func (m *Manager) NewMap() *object.Map {
	m.countAlloc(48)
	mp := object.NewMap()
	m.initHeader(&mp.Header, object.TypeMap)
	return mp
}

// NewMapIter allocates a cursor over mp.
func (m *Manager) NewMapIter(mp *object.Map) *object.MapIter {
	m.countAlloc(24)
	it := m.mapIter.Get().(*object.MapIter)
	it.Map = mp
	it.Index = 0
	m.initHeader(&it.Header, object.TypeMapIter)
	return it
}

// NewClosure allocates a Closure over a Lambda prototype and its captured
// boxes.
func (m *Manager) NewClosure(lambda *object.Lambda, captured []*object.Box) *object.Closure {
	m.countAlloc(uintptr(16 + 8*len(captured)))
	c := &object.Closure{Lambda: lambda, Captred: captured}
	m.initHeader(&c.Header, object.TypeClosure)
	return c
}

// NewLambda allocates a bare function prototype.
func (m *Manager) NewLambda(entryPC, numArgs, numLocal int, name string) *object.Lambda {
	m.countAlloc(32)
	l := &object.Lambda{EntryPC: entryPC, NumArgs: numArgs, NumLocal: numLocal, Name: name}
	m.initHeader(&l.Header, object.TypeLambda)
	return l
}

// NewAstring allocates an ASCII string.
func (m *Manager) NewAstring(s string) *object.Astring {
	m.countAlloc(uintptr(16 + len(s)))
	a := &object.Astring{Bytes: []byte(s)}
	m.initHeader(&a.Header, object.TypeAstring)
	return a
}

// NewUstring allocates a UTF-8 string containing non-ASCII runes.
func (m *Manager) NewUstring(s string) *object.Ustring {
	m.countAlloc(uintptr(16 + len(s)))
	u := &object.Ustring{Bytes: []byte(s)}
	m.initHeader(&u.Header, object.TypeUstring)
	return u
}

// NewRawstring allocates a byte buffer with no encoding guarantees.
func (m *Manager) NewRawstring(b []byte) *object.Rawstring {
	m.countAlloc(uintptr(16 + len(b)))
	r := &object.Rawstring{Bytes: b}
	m.initHeader(&r.Header, object.TypeRawstring)
	return r
}

// NewInstance allocates a user-defined object instance with numFields
// slots.
func (m *Manager) NewInstance(typeID object.TypeID, numFields int) *object.Instance {
	m.countAlloc(uintptr(16 + 8*numFields))
	inst := &object.Instance{Fields: make([]value.Value, numFields)}
	m.initHeader(&inst.Header, typeID)
	return inst
}

// Retain increments the strong reference count of v if it is a pointer;
// non-pointer Values are no-ops.
func (m *Manager) Retain(v value.Value) {
	if !value.IsPointer(v) {
		return
	}
	h := object.HeaderOf(v)
	h.RC++
	if m.TrackGlobalRC {
		atomic.AddInt64(&m.globalRC, 1)
	}
}

// Release decrements the strong reference count of v if it is a pointer.
// When the count reaches zero, the variant-specific destructor runs
// (releasing owned children depth-first via an explicit work list, never
// native recursion, so long chains cannot blow the host stack) and the
// object is returned to its pool or abandoned to Go's collector.
func (m *Manager) Release(v value.Value) {
	if !value.IsPointer(v) {
		return
	}
	h := object.HeaderOf(v)
	if h.Freed() {
		// Debug-build double-release detection.
		m.log.Error("release of already-freed object", zap.Uint32("typeId", uint32(h.TypeID)))
		return
	}
	h.RC--
	if m.TrackGlobalRC {
		atomic.AddInt64(&m.globalRC, -1)
	}
	if h.RC > 0 {
		return
	}
	m.destroyCascade(h)
}

// destroyCascade finalizes h and every child it transitively owns, using an
// explicit work list rather than recursion (spec.md §4.2 ordering rule).
func (m *Manager) destroyCascade(root *object.Header) {
	pending := []*object.Header{root}
	for len(pending) > 0 {
		h := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if h.Freed() {
			continue
		}
		tracer, destroyer := m.lookupTracer(h)
		if destroyer != nil {
			destroyer.Destroy()
		}
		if tracer != nil {
			tracer.Trace(func(child value.Value) {
				if !value.IsPointer(child) {
					return
				}
				ch := object.HeaderOf(child)
				ch.RC--
				if m.TrackGlobalRC {
					atomic.AddInt64(&m.globalRC, -1)
				}
				if ch.RC <= 0 {
					pending = append(pending, ch)
				}
			})
		}
		m.freeHeader(h)
	}
}

// lookupTracer recovers the concrete variant behind h so Trace/Destroy can
// be invoked; the TypeID in the header is the single source of truth for
// which concrete Go type the memory actually holds.
func (m *Manager) lookupTracer(h *object.Header) (object.Tracer, Destroyer) {
	switch h.TypeID {
	case object.TypeList:
		v := (*object.List)(unsafePtr(h))
		return v, nil
	case object.TypeListIter:
		v := (*object.ListIter)(unsafePtr(h))
		return v, nil
	case object.TypeMap:
		v := (*object.Map)(unsafePtr(h))
		return v, nil
	case object.TypeMapIter:
		v := (*object.MapIter)(unsafePtr(h))
		return v, nil
	case object.TypeClosure:
		v := (*object.Closure)(unsafePtr(h))
		return v, nil
	case object.TypeLambda:
		v := (*object.Lambda)(unsafePtr(h))
		return v, nil
	case object.TypeAstring:
		v := (*object.Astring)(unsafePtr(h))
		return v, nil
	case object.TypeUstring:
		v := (*object.Ustring)(unsafePtr(h))
		return v, nil
	case object.TypeStringSlice:
		v := (*object.StringSlice)(unsafePtr(h))
		return v, nil
	case object.TypeRawstring:
		v := (*object.Rawstring)(unsafePtr(h))
		return v, nil
	case object.TypeRawstringSlice:
		v := (*object.RawstringSlice)(unsafePtr(h))
		return v, nil
	case object.TypeFiber:
		v := (*object.Fiber)(unsafePtr(h))
		return v, nil
	case object.TypeBox:
		v := (*object.Box)(unsafePtr(h))
		return v, nil
	case object.TypeNativeFunc1:
		v := (*object.NativeFunc1)(unsafePtr(h))
		return v, nil
	case object.TypePointer:
		v := (*object.Pointer)(unsafePtr(h))
		return v, nil
	case object.TypeFile:
		v := (*object.File)(unsafePtr(h))
		return v, v
	case object.TypeDir:
		v := (*object.Dir)(unsafePtr(h))
		return v, nil
	case object.TypeDirIter:
		v := (*object.DirIter)(unsafePtr(h))
		return v, nil
	case object.TypeMetaType:
		v := (*object.MetaType)(unsafePtr(h))
		return v, nil
	default:
		v := (*object.Instance)(unsafePtr(h))
		return v, nil
	}
}

func (m *Manager) freeHeader(h *object.Header) {
	atomic.AddInt64(&m.frees, 1)
	m.liveMu.Lock()
	delete(m.live, h)
	m.liveMu.Unlock()
	switch h.TypeID {
	case object.TypeBox:
		h.Poison()
		m.boxPool.Put((*object.Box)(unsafePtr(h)))
		return
	case object.TypeFiber:
		h.Poison()
		m.fiberPool.Put((*object.Fiber)(unsafePtr(h)))
		return
	case object.TypeListIter:
		h.Poison()
		m.listIter.Put((*object.ListIter)(unsafePtr(h)))
		return
	case object.TypeMapIter:
		h.Poison()
		m.mapIter.Put((*object.MapIter)(unsafePtr(h)))
		return
	default:
		h.Poison()
	}
}

// Free is the host-facing raw free: it drops every strong reference to a
// pointer Value at once (RC set to 0) and runs the destructor cascade,
// without going through the one-at-a-time release arithmetic.
func (m *Manager) Free(v value.Value) error {
	if !value.IsPointer(v) {
		return fmt.Errorf("memory: Free called on non-pointer value")
	}
	h := object.HeaderOf(v)
	if h.Freed() {
		return fmt.Errorf("memory: double free detected")
	}
	if m.TrackGlobalRC {
		atomic.AddInt64(&m.globalRC, -int64(h.RC))
	}
	h.RC = 0
	m.destroyCascade(h)
	return nil
}
