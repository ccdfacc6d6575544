// Package segreg implements the per-team segment registry of spec.md
// §4.B: a table keyed by segment id storing each segment's per-unit
// byte length, datatype, transport binding and displacement/base-address
// data. SPEC_FULL.md §4.B' asks for two interchangeable implementations
// behind one interface — a plain sorted list (grounded directly on
// dart_segment.h's "sorted list of segment entries") and a
// tidwall/buntdb-backed one for teams with large numbers of live
// segments, where range queries by first-offset benefit from an indexed
// store rather than linear scan.
package segreg

import (
	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/transport"
)

// ID is a per-team segment identifier; 0 denotes the per-unit
// non-collective local pool (spec.md §3).
type ID int16

const Local ID = 0

// Entry is a segment's registry record (spec.md §3 "Segment entry").
type Entry struct {
	ID         ID
	NBytesUnit uint64
	Type       dtype.Datatype
	Flags      uint16

	Win transport.Window

	// Disp holds, for a dynamic-window segment, the per-unit local
	// displacement array (disp[u]); nil for shared-memory segments.
	Disp []uint64
	// SharedBase holds, for a shared-memory segment, the per-rank base
	// slices returned by Window.AllocateShared; nil for dynamic-window
	// segments.
	SharedBase [][]byte

	// firstOffset orders entries for range queries; for a dynamic
	// segment this is Disp[0], for a shared segment it is always 0.
	firstOffset uint64
}

// Registry is the operation contract of spec.md §4.B, implemented by
// both sortedRegistry and buntRegistry.
type Registry interface {
	Add(e Entry) error
	Remove(id ID) error
	LookupWindow(id ID) (transport.Window, error)
	LookupDisp(id ID, localUnit int) (uint64, error)
	Get(id ID) (Entry, bool)
	Destroy()
}

func firstOffsetOf(e Entry) uint64 {
	if len(e.Disp) > 0 {
		return e.Disp[0]
	}
	return 0
}
