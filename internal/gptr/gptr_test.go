package gptr

import "testing"

func TestNullSentinel(t *testing.T) {
	if !Null.IsNull() {
		t.Fatalf("Null must be IsNull")
	}
	g := New(3, TeamAll, SegmentLocal, 0)
	if g.IsNull() {
		t.Fatalf("unit 3 must not be null")
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []GPtr{
		Null,
		New(0, TeamAll, 1, 0),
		New(4095, 7, 32767, 0xDEADBEEFCAFEBABE),
		New(-1, TeamNull, 0, 0),
	}
	for _, g := range cases {
		got := Unpack(g.Pack())
		if !got.Equal(g) {
			t.Fatalf("round-trip mismatch: %+v != %+v", got, g)
		}
	}
}

func TestWireLayoutByteOrder(t *testing.T) {
	g := New(1, 2, 3, 4)
	b := g.Pack()
	if len(b) != WireSize {
		t.Fatalf("wire size must be 16 bytes, got %d", len(b))
	}
	// unit occupies bytes 0-2 (low 24 bits), little-endian
	if b[0] != 1 || b[1] != 0 || b[2] != 0 {
		t.Fatalf("unexpected unit encoding: %v", b[:3])
	}
	// segment at bytes 4-5, team at 6-7 (little endian uint16)
	if b[4] != 3 || b[5] != 0 {
		t.Fatalf("unexpected segment encoding: %v", b[4:6])
	}
	if b[6] != 2 || b[7] != 0 {
		t.Fatalf("unexpected team encoding: %v", b[6:8])
	}
}

func TestIncAddrWrapsModulo2_64(t *testing.T) {
	g := New(0, TeamAll, 1, 0)
	g = g.IncAddr(-1)
	if g.Offset() != ^uint64(0) {
		t.Fatalf("expected wraparound to max uint64, got %d", g.Offset())
	}
}

func TestEqualityIsFieldwise(t *testing.T) {
	a := New(1, 2, 3, 4)
	b := New(1, 2, 3, 5)
	if a.Equal(b) {
		t.Fatalf("pointers differing only in offset must not be equal")
	}
	c := a.SetFlags(FlagCollective)
	if !a.Equal(c) {
		t.Fatalf("Equal must ignore flags: pointers differing only in flags must compare equal")
	}
}
