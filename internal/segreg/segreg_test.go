package segreg

import "testing"

func eachImpl(t *testing.T, fn func(t *testing.T, r Registry)) {
	t.Helper()
	t.Run("sorted", func(t *testing.T) { fn(t, NewSorted()) })
	t.Run("bunt", func(t *testing.T) { fn(t, NewBunt()) })
}

func TestAddRejectsDuplicate(t *testing.T) {
	eachImpl(t, func(t *testing.T, r Registry) {
		if err := r.Add(Entry{ID: 1, Disp: []uint64{0, 10}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := r.Add(Entry{ID: 1, Disp: []uint64{0, 10}}); err == nil {
			t.Fatalf("expected duplicate id to be rejected")
		}
	})
}

func TestRemoveThenLookupNotFound(t *testing.T) {
	eachImpl(t, func(t *testing.T, r Registry) {
		r.Add(Entry{ID: 1, Disp: []uint64{0, 10}})
		if err := r.Remove(1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := r.LookupWindow(1); err == nil {
			t.Fatalf("expected NOTFOUND after remove")
		}
		if err := r.Remove(1); err == nil {
			t.Fatalf("removing twice must fail")
		}
	})
}

func TestLookupDispRangeChecked(t *testing.T) {
	eachImpl(t, func(t *testing.T, r Registry) {
		r.Add(Entry{ID: 5, Disp: []uint64{100, 200, 300}})
		d, err := r.LookupDisp(5, 1)
		if err != nil || d != 200 {
			t.Fatalf("LookupDisp(5,1) = %d, %v; want 200, nil", d, err)
		}
		if _, err := r.LookupDisp(5, 9); err == nil {
			t.Fatalf("expected out-of-range unit to be rejected")
		}
	})
}

func TestDestroyClearsEntries(t *testing.T) {
	eachImpl(t, func(t *testing.T, r Registry) {
		r.Add(Entry{ID: 1, Disp: []uint64{0}})
		r.Destroy()
		if _, err := r.LookupWindow(1); err == nil {
			t.Fatalf("expected registry to be empty after destroy")
		}
	})
}
