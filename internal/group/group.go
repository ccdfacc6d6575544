// Package group implements the local, purely-in-memory group algebra of
// spec.md §4.D: an ordered set of global unit ids, kept strictly
// increasing, with union/intersect/split/membership operations.
//
// Grounded on original_source/dart-shmem/dart-shmem-base/src/dart_group.c
// (an ordered-array group representation) and on aistore's group-like
// cluster.Smap membership list, translated into a Go type for a "purely
// local state" object (spec.md §3): AddMember/DelMember mutate a *Group
// in place, and Copy makes an independent copy.
package group

import (
	"sort"

	"github.com/dash-project/dart-go/internal/gptr"
)

// Group is an ordered set of global unit ids, |g| <= N. The zero value
// is the empty group.
type Group struct {
	members []gptr.GlobalUnit // strictly increasing
}

// New returns an empty group (spec.md §4.D "init").
func New() *Group { return &Group{} }

// Copy returns an independent value copy (spec.md §4.D "copy").
func (g *Group) Copy() *Group {
	cp := make([]gptr.GlobalUnit, len(g.members))
	copy(cp, g.members)
	return &Group{members: cp}
}

// Size is |g|.
func (g *Group) Size() int { return len(g.members) }

// IsMember is the boolean membership predicate.
func (g *Group) IsMember(u gptr.GlobalUnit) bool {
	return g.indexOf(u) >= 0
}

func (g *Group) indexOf(u gptr.GlobalUnit) int {
	i := sort.Search(len(g.members), func(i int) bool { return g.members[i] >= u })
	if i < len(g.members) && g.members[i] == u {
		return i
	}
	return -1
}

// AddMember inserts u, preserving order; idempotent if already present.
func (g *Group) AddMember(u gptr.GlobalUnit) {
	i := sort.Search(len(g.members), func(i int) bool { return g.members[i] >= u })
	if i < len(g.members) && g.members[i] == u {
		return
	}
	g.members = append(g.members, 0)
	copy(g.members[i+1:], g.members[i:])
	g.members[i] = u
}

// DelMember removes u; a no-op if absent.
func (g *Group) DelMember(u gptr.GlobalUnit) {
	i := g.indexOf(u)
	if i < 0 {
		return
	}
	g.members = append(g.members[:i], g.members[i+1:]...)
}

// GetMembers fills the caller-sized buffer in order and returns the
// number of members written (spec.md §4.D "getmembers(out)").
func (g *Group) GetMembers(out []gptr.GlobalUnit) int {
	n := copy(out, g.members)
	return n
}

// Members returns the ordered member slice (read-only view; callers must
// not mutate it).
func (g *Group) Members() []gptr.GlobalUnit { return g.members }

// Union returns the ordered union of a and b with no duplicates.
func Union(a, b *Group) *Group {
	out := make([]gptr.GlobalUnit, 0, len(a.members)+len(b.members))
	i, j := 0, 0
	for i < len(a.members) && j < len(b.members) {
		switch {
		case a.members[i] < b.members[j]:
			out = append(out, a.members[i])
			i++
		case a.members[i] > b.members[j]:
			out = append(out, b.members[j])
			j++
		default:
			out = append(out, a.members[i])
			i++
			j++
		}
	}
	out = append(out, a.members[i:]...)
	out = append(out, b.members[j:]...)
	return &Group{members: out}
}

// Intersect returns the ordered intersection of a and b.
func Intersect(a, b *Group) *Group {
	out := make([]gptr.GlobalUnit, 0, min(len(a.members), len(b.members)))
	i, j := 0, 0
	for i < len(a.members) && j < len(b.members) {
		switch {
		case a.members[i] < b.members[j]:
			i++
		case a.members[i] > b.members[j]:
			j++
		default:
			out = append(out, a.members[i])
			i++
			j++
		}
	}
	return &Group{members: out}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Split partitions g into at most n contiguous, near-equal-sized
// subgroups: size(split(g,n)_i) in {floor(|g|/n), ceil(|g|/n)}, and the
// union of the n subgroups equals g (spec.md §4.D, §8). The first
// |g| mod n subgroups get the larger (ceil) size, matching the
// contiguous-block layout used throughout the original DASH team
// splitting code (dart_team_group.c).
func (g *Group) Split(n int) []*Group {
	if n <= 0 {
		return nil
	}
	total := len(g.members)
	if n > total {
		n = total
	}
	if n == 0 {
		return nil
	}
	base := total / n
	rem := total % n
	out := make([]*Group, n)
	pos := 0
	for i := 0; i < n; i++ {
		sz := base
		if i < rem {
			sz++
		}
		members := make([]gptr.GlobalUnit, sz)
		copy(members, g.members[pos:pos+sz])
		out[i] = &Group{members: members}
		pos += sz
	}
	return out
}

// SizeOf is the total opaque byte size of g used for ABI sizing
// (spec.md §4.D "sizeof"): a flat encoding of the group as a 4-byte
// length header followed by 4 bytes per member.
func SizeOf(g *Group) int {
	return 4 + len(g.members)*4
}
