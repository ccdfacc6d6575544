// Package gptr implements the 128-bit DART global pointer (spec.md §3,
// §4.C): a packed record with a field-by-field pack/unpack helper rather
// than relying on platform struct layout, per the Design Notes ("Global
// pointer layout is wire-visible ... express it as a packed record").
// Grounded on original_source/dart-if/include/dash/dart/if/dart_globmem.h
// (the dart_gptr_t bitfield layout and DART_GPTR_NULL/DART_GPTR_EQUAL
// macros) translated into idiomatic Go with distinct nominal types for
// global vs. team-local unit ids, per the Design Notes on "Two id kinds
// for units".
package gptr

import "encoding/binary"

// GlobalUnit is a unit id in the 0..N-1 global numbering space.
// Distinct from TeamUnit so the two id kinds cannot be mixed without
// going through a team's l2g/g2l translation (spec.md §3).
type GlobalUnit int32

// TeamUnit is a unit id local to one team (0..|team|-1).
type TeamUnit int32

// UndefinedUnit mirrors DART_UNDEFINED_UNIT_ID.
const UndefinedUnit = -1

// TeamID identifies a team; TeamNull mirrors DART_UNDEFINED_TEAM_ID.
type TeamID int16

const TeamNull TeamID = -1

// TeamAll is the predefined team of all units (spec.md §3).
const TeamAll TeamID = 0

// SegmentID; SegmentLocal (0) denotes the per-unit non-collective pool.
type SegmentID int16

const SegmentLocal SegmentID = 0

// Flag bits occupy the 8 reserved bits of the packed layout.
type Flags uint8

const (
	FlagNone Flags = 0
	// FlagSharedWindow marks a segment addressable through the
	// intra-node shared-memory fast path (internal use by rma/segreg;
	// never user-visible per the Design Notes).
	FlagSharedWindow Flags = 1 << 0
	// FlagCollective marks a team-aligned/symmetric collective
	// allocation, as opposed to an externally-registered one.
	FlagCollective Flags = 1 << 1
)

// GPtr is the 128-bit global pointer: unit_id:24, flags:8, segment_id:16,
// team_id:16, and a 64-bit union of absolute address or byte offset
// (spec.md §3). The union is modeled as a single uint64 with accessors
// that reinterpret it, matching the C union's byte-for-byte aliasing.
type GPtr struct {
	unit    int32 // low 24 bits significant
	flags   Flags
	segment SegmentID
	team    TeamID
	union   uint64 // offset, or (on this platform) a uintptr address
}

// Null is the NULL sentinel: unit=-1, segment=0, team=NULL, offset=0
// (spec.md §3).
var Null = GPtr{unit: UndefinedUnit, flags: 0, segment: SegmentLocal, team: TeamNull, union: 0}

// New constructs a global pointer addressing (unit, team, segment,
// offset).
func New(unit GlobalUnit, team TeamID, segment SegmentID, offset uint64) GPtr {
	return GPtr{unit: int32(unit), segment: segment, team: team, union: offset}
}

// NewFromTeamUnit constructs a global pointer using a team-local unit id,
// the only way team-local ids may flow into a GPtr (callers must use
// team.UnitL2G to obtain a GlobalUnit otherwise).
func NewFromTeamUnit(u TeamUnit, team TeamID, segment SegmentID, offset uint64) GPtr {
	return GPtr{unit: int32(u), segment: segment, team: team, union: offset}
}

func (g GPtr) Unit() GlobalUnit    { return GlobalUnit(g.unit) }
func (g GPtr) TeamID() TeamID      { return g.team }
func (g GPtr) Segment() SegmentID  { return g.segment }
func (g GPtr) Offset() uint64      { return g.union }
func (g GPtr) Flags() Flags        { return g.flags }

// SetUnit rebinds the pointer to another unit within the same team,
// keeping segment/team/offset unchanged (used e.g. by collectives that
// walk every member of a team with one gptr template).
func (g GPtr) SetUnit(u GlobalUnit) GPtr {
	g.unit = int32(u)
	return g
}

func (g GPtr) SetFlags(f Flags) GPtr {
	g.flags = f
	return g
}

func (g GPtr) GetFlags() Flags { return g.flags }

// IncAddr adds a signed byte delta to the offset, modulo 2^64; no
// overflow check is performed — spec.md §4.C: "no overflow check;
// callers own bounds."
func (g GPtr) IncAddr(delta int64) GPtr {
	g.union = g.union + uint64(delta)
	return g
}

// IsNull tests for the NULL sentinel (DART_GPTR_ISNULL).
func (g GPtr) IsNull() bool {
	return g.unit < 0 && g.segment == SegmentLocal && g.team == TeamNull && g.union == 0
}

// Equal is field-wise equality (DART_GPTR_EQUAL) over unit, segment,
// team and offset/address; flags are not compared.
func (g GPtr) Equal(o GPtr) bool {
	return g.unit == o.unit && g.segment == o.segment && g.team == o.team && g.union == o.union
}

// WireSize is the packed, wire-visible size in bytes (spec.md §6).
const WireSize = 16

// Pack serializes g into the little-endian 16-byte wire layout:
//
//	byte  0   1   2    3    4 5   6 7    8..15
//	      +---unit (24)---+flg+seg (16)+team (16)+ offset/addr (64) +
func (g GPtr) Pack() [WireSize]byte {
	var b [WireSize]byte
	u := uint32(g.unit) & 0x00FFFFFF
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(g.flags)
	binary.LittleEndian.PutUint16(b[4:6], uint16(g.segment))
	binary.LittleEndian.PutUint16(b[6:8], uint16(g.team))
	binary.LittleEndian.PutUint64(b[8:16], g.union)
	return b
}

// Unpack deserializes a GPtr from its wire layout, sign-extending the
// 24-bit unit field.
func Unpack(b [WireSize]byte) GPtr {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	if u&0x00800000 != 0 { // sign bit of a 24-bit field
		u |= 0xFF000000
	}
	return GPtr{
		unit:    int32(u),
		flags:   Flags(b[3]),
		segment: SegmentID(binary.LittleEndian.Uint16(b[4:6])),
		team:    TeamID(binary.LittleEndian.Uint16(b[6:8])),
		union:   binary.LittleEndian.Uint64(b[8:16]),
	}
}
