package dtype

import "testing"

func TestPredefinedSizes(t *testing.T) {
	r := NewRegistry()
	cases := map[Datatype]int{Byte: 1, Int: 4, Double: 8, LongDouble: 16}
	for dt, want := range cases {
		got, err := r.SizeOf(dt)
		if err != nil || got != want {
			t.Fatalf("SizeOf(%v) = %d, %v; want %d", dt, got, err, want)
		}
	}
}

func TestCreateStridedRejectsNonBase(t *testing.T) {
	r := NewRegistry()
	id, err := r.CreateStrided(Int, 4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.CreateStrided(id, 4, 2); err == nil {
		t.Fatalf("base of a strided type must itself be a predefined type")
	}
}

func TestCreateIndexedValidatesLengths(t *testing.T) {
	r := NewRegistry()
	if _, err := r.CreateIndexed(Int, []uint64{1, 2}, []uint64{0}); err == nil {
		t.Fatalf("mismatched blocklen/offset slice lengths must be rejected")
	}
	id, err := r.CreateIndexed(Int, []uint64{2, 3}, []uint64{0, 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	layout, live, err := r.Resolve(id)
	if err != nil || !live {
		t.Fatalf("expected a live layout, got live=%v err=%v", live, err)
	}
	if layout.ElementCount() != 5 {
		t.Fatalf("expected element count 5, got %d", layout.ElementCount())
	}
}

func TestDestroyDisablesFutureUseButKeepsLayoutResolvable(t *testing.T) {
	r := NewRegistry()
	id, _ := r.CreateStrided(Double, 8, 4)
	if err := r.Destroy(id); err != nil {
		t.Fatalf("unexpected error destroying: %v", err)
	}
	// spec.md §3: "a derived type may be destroyed while operations
	// using it are in flight; destruction prevents only new operations
	// from using it" — so the layout must remain resolvable, but
	// flagged non-live.
	_, live, err := r.Resolve(id)
	if err != nil {
		t.Fatalf("layout of a destroyed type must still resolve: %v", err)
	}
	if live {
		t.Fatalf("destroyed type must report live=false")
	}
}

func TestDestroyRejectsBaseType(t *testing.T) {
	r := NewRegistry()
	if err := r.Destroy(Int); err == nil {
		t.Fatalf("destroying a predefined base type must fail")
	}
}
