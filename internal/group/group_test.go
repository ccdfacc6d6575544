package group

import (
	"reflect"
	"testing"

	"github.com/dash-project/dart-go/internal/gptr"
)

func fromInts(xs ...int) *Group {
	g := New()
	for _, x := range xs {
		g.AddMember(gptr.GlobalUnit(x))
	}
	return g
}

func toInts(g *Group) []int {
	out := make([]int, 0, g.Size())
	for _, m := range g.Members() {
		out = append(out, int(m))
	}
	return out
}

func TestAddMemberPreservesOrderAndIdempotent(t *testing.T) {
	g := fromInts(5, 1, 3)
	if got := toInts(g); !reflect.DeepEqual(got, []int{1, 3, 5}) {
		t.Fatalf("expected sorted order, got %v", got)
	}
	g.AddMember(3)
	if g.Size() != 3 {
		t.Fatalf("re-adding an existing member must be a no-op, size=%d", g.Size())
	}
}

func TestDelMemberNoopIfAbsent(t *testing.T) {
	g := fromInts(1, 2, 3)
	g.DelMember(42)
	if g.Size() != 3 {
		t.Fatalf("deleting an absent member must be a no-op")
	}
	g.DelMember(2)
	if got := toInts(g); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Fatalf("unexpected members after delete: %v", got)
	}
}

func TestUnionAndIntersect(t *testing.T) {
	a := fromInts(1, 2, 3)
	b := fromInts(2, 3, 4)
	if got := toInts(Union(a, b)); !reflect.DeepEqual(got, []int{1, 2, 3, 4}) {
		t.Fatalf("union mismatch: %v", got)
	}
	if got := toInts(Intersect(a, b)); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Fatalf("intersect mismatch: %v", got)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	a := fromInts(1, 2)
	b := a.Copy()
	b.AddMember(3)
	if a.Size() != 2 {
		t.Fatalf("mutating the copy must not affect the original")
	}
}

func TestSplitSizesAndUnionProperty(t *testing.T) {
	g := fromInts(0, 1, 2, 3, 4, 5, 6)
	parts := g.Split(3)
	if len(parts) != 3 {
		t.Fatalf("expected 3 subgroups, got %d", len(parts))
	}
	total := 0
	union := New()
	for _, p := range parts {
		sz := p.Size()
		if sz != 2 && sz != 3 {
			t.Fatalf("subgroup size %d not in {floor,ceil} of 7/3", sz)
		}
		total += sz
		for _, m := range p.Members() {
			union.AddMember(m)
		}
	}
	if total != 7 {
		t.Fatalf("subgroup sizes must sum to |g|, got %d", total)
	}
	if !reflect.DeepEqual(toInts(union), toInts(g)) {
		t.Fatalf("union of subgroups must equal g")
	}
}

func TestSplitMoreThanSize(t *testing.T) {
	g := fromInts(1, 2)
	parts := g.Split(5)
	if len(parts) != 2 {
		t.Fatalf("split(n) with n > |g| must cap at |g|, got %d parts", len(parts))
	}
}
