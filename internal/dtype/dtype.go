// Package dtype implements the datatype registry of spec.md §4.K:
// predefined base types plus dynamically created strided/indexed derived
// types. Grounded on original_source/dart-if/include/dash/dart/if/
// dart_types.h (the DART_TYPE_* base-type enum and
// dart_type_create_strided/_indexed prototypes), translated so that
// derived types remain usable after destruction is requested (spec.md
// §3: "destruction prevents only new operations from using it").
package dtype

import (
	"sync"

	"github.com/OneOfOne/xxhash"

	"github.com/dash-project/dart-go/cmn"
)

// Datatype is an opaque handle: either a predefined base type or a
// dynamically allocated derived type.
type Datatype int64

// Predefined base types, matching DART_TYPE_* (dart_types.h) in both
// ordering and element size.
const (
	Undefined Datatype = iota
	Byte
	Short
	Int
	UInt
	Long
	ULong
	LongLong
	ULongLong
	Float
	Double
	LongDouble

	firstDerived = 1000 // derived-type handles start far past base types
)

// baseSizes gives each predefined type's element size in bytes.
var baseSizes = map[Datatype]int{
	Byte:       1,
	Short:      2,
	Int:        4,
	UInt:       4,
	Long:       8,
	ULong:      8,
	LongLong:   8,
	ULongLong:  8,
	Float:      4,
	Double:     8,
	LongDouble: 16,
}

// Kind distinguishes a derived type's layout.
type Kind int

const (
	KindBase Kind = iota
	KindStrided
	KindIndexed
)

// Layout describes a derived type: either strided (stride, blocklen,
// base) or indexed (per-block length/offset pairs, base), spec.md §3.
type Layout struct {
	Kind     Kind
	Base     Datatype
	Stride   uint64 // strided only, in base-type elements
	Blocklen uint64 // strided only, in base-type elements

	BlockLens []uint64 // indexed only
	Offsets   []uint64 // indexed only
}

type derivedEntry struct {
	layout    Layout
	destroyed bool
}

// Registry is the process-wide datatype table. It is not collective
// (each unit creates its own derived types independently, matching the
// DART interface: type_create_strided/_indexed take no team argument).
type Registry struct {
	mu      sync.RWMutex
	next    Datatype
	entries map[Datatype]*derivedEntry
}

func NewRegistry() *Registry {
	return &Registry{next: firstDerived, entries: make(map[Datatype]*derivedEntry)}
}

// SizeOf returns the base-element size of t, resolving through a derived
// type's base if necessary.
func (r *Registry) SizeOf(t Datatype) (int, error) {
	if sz, ok := baseSizes[t]; ok {
		return sz, nil
	}
	r.mu.RLock()
	e, ok := r.entries[t]
	r.mu.RUnlock()
	if !ok {
		return 0, cmn.NewErrInval("dtype.SizeOf: unknown datatype", nil)
	}
	return r.SizeOf(e.layout.Base)
}

// IsBase reports whether t is one of the eleven predefined base types.
func IsBase(t Datatype) bool {
	_, ok := baseSizes[t]
	return ok
}

// CreateStrided implements spec.md §4.K type_create_strided: a transfer
// of n elements over the resulting type touches blocks of blocklen
// base-type elements separated by stride base-type elements. Only the
// layout is recorded and blocklen is checked to be non-zero; no code
// checks that a transfer's n is a multiple of blocklen.
func (r *Registry) CreateStrided(base Datatype, stride, blocklen uint64) (Datatype, error) {
	if !IsBase(base) {
		return Undefined, cmn.NewErrInval("dtype.CreateStrided: base must be a predefined type", nil)
	}
	if blocklen == 0 {
		return Undefined, cmn.NewErrInval("dtype.CreateStrided: blocklen must be > 0", nil)
	}
	layout := Layout{Kind: KindStrided, Base: base, Stride: stride, Blocklen: blocklen}
	return r.insert(layout), nil
}

// CreateIndexed implements spec.md §4.K type_create_indexed.
func (r *Registry) CreateIndexed(base Datatype, blocklen, offset []uint64) (Datatype, error) {
	if !IsBase(base) {
		return Undefined, cmn.NewErrInval("dtype.CreateIndexed: base must be a predefined type", nil)
	}
	if len(blocklen) == 0 || len(blocklen) != len(offset) {
		return Undefined, cmn.NewErrInval("dtype.CreateIndexed: blocklen/offset length mismatch", nil)
	}
	bl := append([]uint64(nil), blocklen...)
	of := append([]uint64(nil), offset...)
	layout := Layout{Kind: KindIndexed, Base: base, BlockLens: bl, Offsets: of}
	return r.insert(layout), nil
}

func (r *Registry) insert(layout Layout) Datatype {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := digest(layout)
	for id, e := range r.entries {
		if !e.destroyed && digest(e.layout) == h {
			return id
		}
	}
	id := r.next
	r.next++
	r.entries[id] = &derivedEntry{layout: layout}
	return id
}

// Destroy marks t so that no *new* operation may start on it; operations
// already in flight are unaffected (spec.md §3, §4.K). Destroying a base
// type or an unknown handle is a no-op error.
func (r *Registry) Destroy(t Datatype) error {
	if IsBase(t) {
		return cmn.NewErrInval("dtype.Destroy: cannot destroy a predefined base type", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[t]
	if !ok {
		return cmn.NewErrNotFound("dtype.Destroy", nil)
	}
	e.destroyed = true
	return nil
}

// Resolve returns the layout for t and whether new operations may still
// use it (i.e. it has not been destroyed).
func (r *Registry) Resolve(t Datatype) (Layout, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	if !ok {
		return Layout{}, false, cmn.NewErrNotFound("dtype.Resolve", nil)
	}
	return e.layout, !e.destroyed, nil
}

// digest hashes a derived-type layout for identity deduplication, per
// SPEC_FULL.md §4.K' (grounded on aistore's xxhash-based content
// addressing).
func digest(l Layout) uint64 {
	h := xxhash.New64()
	write := func(v uint64) {
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		h.Write(b[:])
	}
	write(uint64(l.Kind))
	write(uint64(l.Base))
	write(l.Stride)
	write(l.Blocklen)
	for _, v := range l.BlockLens {
		write(v)
	}
	for _, v := range l.Offsets {
		write(v)
	}
	return h.Sum64()
}

// ElementCount returns how many base-type elements a derived type's
// single logical "unit" covers (blocklen for strided, sum of
// BlockLens for indexed). The RMA transfer path does not call it, so a
// transfer's nelem is not checked against it.
func (l Layout) ElementCount() uint64 {
	switch l.Kind {
	case KindStrided:
		return l.Blocklen
	case KindIndexed:
		var total uint64
		for _, b := range l.BlockLens {
			total += b
		}
		return total
	default:
		return 1
	}
}
