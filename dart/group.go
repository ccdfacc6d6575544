package dart

import (
	"github.com/dash-project/dart-go/internal/group"
	"github.com/dash-project/dart-go/internal/gptr"
)

// Group is the public handle wrapping internal/group's ordered set of
// global unit ids (spec.md §4.D).
type Group struct {
	g *group.Group
}

// GroupCreate implements dart_group_create: an empty group.
func GroupCreate() *Group { return &Group{g: group.New()} }

// Destroy releases the group's backing storage (purely local; no-op
// beyond letting the GC reclaim it, matching group's "purely local
// state" model).
func (g *Group) Destroy() { g.g = nil }

// Clone implements dart_group_clone.
func (g *Group) Clone() *Group { return &Group{g: g.g.Copy()} }

// AddMember implements dart_group_addmember.
func (g *Group) AddMember(u gptr.GlobalUnit) { g.g.AddMember(u) }

// DelMember implements dart_group_delmember.
func (g *Group) DelMember(u gptr.GlobalUnit) { g.g.DelMember(u) }

// IsMember implements dart_group_ismember.
func (g *Group) IsMember(u gptr.GlobalUnit) bool { return g.g.IsMember(u) }

// Size implements dart_group_size.
func (g *Group) Size() int { return g.g.Size() }

// GetMembers implements dart_group_getmembers.
func (g *Group) GetMembers(out []gptr.GlobalUnit) int { return g.g.GetMembers(out) }

// Union implements dart_group_union.
func GroupUnion(a, b *Group) *Group { return &Group{g: group.Union(a.g, b.g)} }

// Intersect implements dart_group_intersect.
func GroupIntersect(a, b *Group) *Group { return &Group{g: group.Intersect(a.g, b.g)} }

// Split implements dart_group_split: at most n contiguous, near-equal
// subgroups.
func (g *Group) Split(n int) []*Group {
	parts := g.g.Split(n)
	out := make([]*Group, len(parts))
	for i, p := range parts {
		out[i] = &Group{g: p}
	}
	return out
}

// SizeOf implements dart_group_sizeof: the opaque wire size of a group.
func (g *Group) SizeOf() int { return group.SizeOf(g.g) }

// WorldGroup implements dart_team_get_group for TEAM_ALL's convenience:
// returns a copy of the current runtime's world membership.
func WorldGroup() (*Group, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	return &Group{g: r.world.Group()}, nil
}
