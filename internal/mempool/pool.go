// Package mempool implements the free-list allocator inside a
// pre-reserved region (spec.md §4.A): first-fit allocation, free-list
// coalescing, and a destroy that warns on leaked allocations.
//
// Grounded on original_source/dart-impl/shmem.old/dart-shmem-base/src/
// dart_mempool.c (the two position/size lists and their merge-on-free
// behavior) and, per the Design Notes' "Free-list allocator vs arena"
// guidance, implemented as a tagged-index arena of entries rather than
// an intrusive linked list of raw pointers.
package mempool

import (
	"sort"

	"github.com/dash-project/dart-go/cmn/nlog"
)

// entry is one (position, size) record in either the free or allocated
// list, spec.md §3 "Memory pool".
type entry struct {
	pos  uint64
	size uint64
}

// Pool is a contiguous byte region tracked by two position/size lists.
// The region itself is owned by the caller (it may be a Go byte slice, a
// shared-memory mapping, or an externally-registered buffer); the pool
// only tracks offsets relative to the region's base.
type Pool struct {
	base uint64 // offset of the region's first byte, for callers that need an absolute base
	size uint64
	free []entry // sorted by pos
	used []entry // sorted by pos
}

// Create returns a pool covering [base, base+size) with a single free
// entry spanning the whole region (spec.md §4.A: "create(base, size) ->
// pool with a single free entry (base,size)").
func Create(base, size uint64) *Pool {
	return &Pool{
		base: base,
		size: size,
		free: []entry{{pos: base, size: size}},
	}
}

// Alloc returns the offset of an n-byte block using first-fit search of
// the free list; it returns (0, false) on exhaustion (the NULL case of
// spec.md §4.A). Size is not rounded/aligned by the pool itself —
// alignment is the caller's responsibility.
func (p *Pool) Alloc(n uint64) (uint64, bool) {
	if n == 0 {
		return 0, false
	}
	for i := range p.free {
		if p.free[i].size >= n {
			pos := p.free[i].pos
			if p.free[i].size == n {
				p.free = append(p.free[:i], p.free[i+1:]...)
			} else {
				p.free[i].pos += n
				p.free[i].size -= n
			}
			p.insertUsed(entry{pos: pos, size: n})
			return pos, true
		}
	}
	return 0, false
}

// Free returns OK iff pos is the base of a currently allocated entry; it
// moves that entry to the free list in sorted position order and
// coalesces adjacent free neighbors (spec.md §4.A).
func (p *Pool) Free(pos uint64) bool {
	idx := sort.Search(len(p.used), func(i int) bool { return p.used[i].pos >= pos })
	if idx >= len(p.used) || p.used[idx].pos != pos {
		return false
	}
	e := p.used[idx]
	p.used = append(p.used[:idx], p.used[idx+1:]...)
	p.insertFreeCoalesce(e)
	return true
}

// Size reports the length in bytes of a live allocation at pos, used by
// dart.GetAddr to recover a local-pool allocation's byte length without
// a separate side table.
func (p *Pool) Size(pos uint64) (uint64, bool) {
	idx := sort.Search(len(p.used), func(i int) bool { return p.used[i].pos >= pos })
	if idx >= len(p.used) || p.used[idx].pos != pos {
		return 0, false
	}
	return p.used[idx].size, true
}

// Destroy releases the list nodes; it logs at WARN level if the
// allocated list is non-empty (spec.md §4.A: "logs if allocated list is
// non-empty"), mirroring the leaked-segment warning aistore emits on
// stream teardown.
func (p *Pool) Destroy() {
	if len(p.used) > 0 {
		nlog.Warnf("mempool: destroying pool with %d leaked allocation(s)", len(p.used))
	}
	p.used = nil
	p.free = nil
}

func (p *Pool) insertUsed(e entry) {
	idx := sort.Search(len(p.used), func(i int) bool { return p.used[i].pos >= e.pos })
	p.used = append(p.used, entry{})
	copy(p.used[idx+1:], p.used[idx:])
	p.used[idx] = e
}

func (p *Pool) insertFreeCoalesce(e entry) {
	idx := sort.Search(len(p.free), func(i int) bool { return p.free[i].pos >= e.pos })
	p.free = append(p.free, entry{})
	copy(p.free[idx+1:], p.free[idx:])
	p.free[idx] = e

	// coalesce with the right neighbor first so index idx stays valid
	if idx+1 < len(p.free) && p.free[idx].pos+p.free[idx].size == p.free[idx+1].pos {
		p.free[idx].size += p.free[idx+1].size
		p.free = append(p.free[:idx+1], p.free[idx+2:]...)
	}
	if idx > 0 && p.free[idx-1].pos+p.free[idx-1].size == p.free[idx].pos {
		p.free[idx-1].size += p.free[idx].size
		p.free = append(p.free[:idx], p.free[idx+1:]...)
	}
}

// Stats is a lightweight introspection snapshot, grounded on aistore's
// exposure of pool metrics to its StatsTracker (transport/collect.go
// takes a cos.StatsTracker at Init).
type Stats struct {
	FreeEntries int
	UsedEntries int
	FreeBytes   uint64
	UsedBytes   uint64
}

func (p *Pool) Stats() Stats {
	var s Stats
	s.FreeEntries, s.UsedEntries = len(p.free), len(p.used)
	for _, e := range p.free {
		s.FreeBytes += e.size
	}
	for _, e := range p.used {
		s.UsedBytes += e.size
	}
	return s
}
