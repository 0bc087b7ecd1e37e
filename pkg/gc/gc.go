// Package gc implements the trial-deletion cycle collector (C4): the only
// mechanism in the engine that can reclaim reference-counted objects
// participating in a cycle, since ordinary retain/release (pkg/memory)
// never sees a cycle's count drop to zero on its own.
package gc

import (
	"vela/pkg/memory"
	"vela/pkg/object"

	"go.uber.org/zap"
)

// Result reports what one PerformGC pass reclaimed, mirroring the
// {numCycFreed, numObjFreed} pair spec.md §4.3 names.
type Result struct {
	NumCycFreed int
	NumObjFreed int
}

// Collector runs trial-deletion passes against a memory.Manager's heap.
// performGC is host-initiated only — the collector never triggers itself
// from inside the dispatch loop.
type Collector struct {
	log *zap.Logger
}

// New constructs a Collector. A nil logger is replaced with a no-op logger.
func New(log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{log: log}
}

// PerformGC runs one full trial-deletion pass over every live object in m.
//
// Phases, per spec.md §4.3:
//  1. Candidate set: every live object starts as a shadow-count copy of its
//     real rc.
//  2. Mark: for every live object, walk its children (the variant-specific
//     tracer) and decrement each child's shadow count once per internal
//     edge found.
//  3. Scan: objects whose shadow count is still positive have at least one
//     reference from outside the traced graph — they are roots. A
//     reachability walk from those roots marks everything still externally
//     reachable; survivors are restored untouched. Whatever is left
//     unmarked is reachable only through reference cycles.
//  4. Collect: finalize and free the unmarked set. A reference from a freed
//     cycle member to a surviving object is released normally so survivors'
//     real rc stays correct.
func (c *Collector) PerformGC(m *memory.Manager) Result {
	headers := m.LiveHeaders()
	if len(headers) == 0 {
		return Result{}
	}

	// Phase 1: candidate set.
	shadow := make(map[*object.Header]int64, len(headers))
	index := make(map[*object.Header]struct{}, len(headers))
	for _, h := range headers {
		shadow[h] = int64(h.RC)
		index[h] = struct{}{}
	}

	// Phase 2: mark — decrement the shadow count of every internally
	// referenced child.
	for _, h := range headers {
		m.TraceChildren(h, func(child *object.Header) {
			if _, ok := index[child]; ok {
				shadow[child]--
			}
		})
	}

	// Phase 3: scan — anything with shadow > 0 has an external root.
	// Everything reachable from such a root (even through pointers with
	// shadow == 0) survives.
	reachable := make(map[*object.Header]bool, len(headers))
	var roots []*object.Header
	for _, h := range headers {
		if shadow[h] > 0 {
			roots = append(roots, h)
		}
	}
	worklist := append([]*object.Header{}, roots...)
	for _, h := range worklist {
		reachable[h] = true
	}
	for len(worklist) > 0 {
		h := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		m.TraceChildren(h, func(child *object.Header) {
			if _, ok := index[child]; !ok {
				return // not part of this pass's candidate set
			}
			if !reachable[child] {
				reachable[child] = true
				worklist = append(worklist, child)
			}
		})
	}

	// Phase 4: collect — everything never marked reachable is cyclic
	// garbage.
	var garbage []*object.Header
	for _, h := range headers {
		if !reachable[h] {
			garbage = append(garbage, h)
		}
	}
	garbageSet := make(map[*object.Header]struct{}, len(garbage))
	for _, h := range garbage {
		garbageSet[h] = struct{}{}
	}

	for _, h := range garbage {
		// Release any edge pointing outside the garbage set the normal
		// way, so a surviving object's real rc stays correct even though
		// its cycle-mate is being torn down out of band.
		m.TraceChildren(h, func(child *object.Header) {
			if _, inGarbage := garbageSet[child]; inGarbage {
				return
			}
			m.Release(object.ValueOf(child))
		})
		m.ForceFree(h)
	}

	c.log.Debug("performGC",
		zap.Int("liveBefore", len(headers)),
		zap.Int("objFreed", len(garbage)),
	)

	return Result{NumCycFreed: len(garbage), NumObjFreed: len(garbage)}
}
