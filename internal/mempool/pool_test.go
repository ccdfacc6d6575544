package mempool

import "testing"

func TestAllocFirstFit(t *testing.T) {
	p := Create(0, 100)
	a, ok := p.Alloc(40)
	if !ok || a != 0 {
		t.Fatalf("expected first alloc at 0, got %d ok=%v", a, ok)
	}
	b, ok := p.Alloc(40)
	if !ok || b != 40 {
		t.Fatalf("expected second alloc at 40, got %d ok=%v", b, ok)
	}
	if _, ok := p.Alloc(30); ok {
		t.Fatalf("expected exhaustion (only 20 bytes left)")
	}
}

func TestFreeRejectsUnknownPointer(t *testing.T) {
	p := Create(0, 64)
	if p.Free(8) {
		t.Fatalf("freeing a pointer never allocated must fail")
	}
}

func TestFreeCoalescesNeighbors(t *testing.T) {
	p := Create(0, 30)
	a, _ := p.Alloc(10)
	b, _ := p.Alloc(10)
	c, _ := p.Alloc(10)
	if !p.Free(a) || !p.Free(c) || !p.Free(b) {
		t.Fatalf("all three frees must succeed")
	}
	if len(p.free) != 1 || p.free[0].pos != 0 || p.free[0].size != 30 {
		t.Fatalf("expected full coalescing back to one 30-byte entry, got %+v", p.free)
	}
	// pool is usable again as a single region
	whole, ok := p.Alloc(30)
	if !ok || whole != 0 {
		t.Fatalf("expected to reclaim the whole coalesced region, got %d ok=%v", whole, ok)
	}
}

func TestStatsReflectLiveState(t *testing.T) {
	p := Create(0, 64)
	p.Alloc(16)
	p.Alloc(16)
	s := p.Stats()
	if s.UsedEntries != 2 || s.UsedBytes != 32 || s.FreeBytes != 32 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}
