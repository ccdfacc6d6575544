package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/handle"
	"github.com/dash-project/dart-go/internal/rma"
	"github.com/dash-project/dart-go/internal/segreg"
	"github.com/dash-project/dart-go/internal/transport"
)

// setupLocks wires n units' worth of engines and locks entirely over
// the loopback backend: one shared 4-byte tail at unit 0, one 4-byte
// "next" cell per unit, addressed through one team-aligned segment so
// that SetUnit(predecessor) retargets the same segment/offset at a
// different unit (spec.md's team-aligned symmetric allocation
// invariant).
func setupLocks(t *testing.T, n int) []*Lock {
	t.Helper()
	world := transport.NewLoopbackWorld(n)
	wins := make([]transport.Window, n)
	comms := make([]transport.Communicator, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, w, err := world.Port(i).Bootstrap(context.Background(), i, n)
			if err != nil {
				t.Errorf("bootstrap %d: %v", i, err)
				return
			}
			comms[i] = c
			wins[i] = w
		}()
	}
	wg.Wait()

	cells := make([][]byte, n)
	disps := make([]uint64, n)
	for i := 0; i < n; i++ {
		cells[i] = make([]byte, 4)
		storeLE32(cells[i], -1)
		d, err := wins[i].AttachDynamic(cells[i])
		if err != nil {
			t.Fatalf("attach unit %d: %v", i, err)
		}
		disps[i] = d
	}

	identityG2L := func(g gptr.GlobalUnit) (gptr.TeamUnit, error) { return gptr.TeamUnit(g), nil }

	types := dtype.NewRegistry()
	locks := make([]*Lock, n)
	for i := 0; i < n; i++ {
		segs := segreg.NewSorted()
		segs.Add(segreg.Entry{ID: 1, Disp: disps})
		eng := rma.New(int32(i), wins[i], segs, types, handle.NewStore(), identityG2L)

		tail := gptr.New(gptr.GlobalUnit(0), gptr.TeamAll, 1, 0)
		next := gptr.New(gptr.GlobalUnit(i), gptr.TeamAll, 1, 0)
		locks[i] = Init(eng, comms[i], tail, next, gptr.GlobalUnit(i), identityG2L)
	}
	return locks
}

func storeLE32(b []byte, v int32) {
	u := uint32(v)
	b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
}

func TestLockMutualExclusion(t *testing.T) {
	const n = 5
	locks := setupLocks(t, n)

	var mu sync.Mutex // guards the test's own critical-section counter
	counter := 0
	var maxConcurrent int32
	var cur int32

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			if err := locks[i].Acquire(ctx); err != nil {
				t.Errorf("unit %d acquire: %v", i, err)
				return
			}
			mu.Lock()
			cur++
			if cur > maxConcurrent {
				maxConcurrent = cur
			}
			mu.Unlock()

			counter++

			mu.Lock()
			cur--
			mu.Unlock()

			if err := locks[i].Release(ctx); err != nil {
				t.Errorf("unit %d release: %v", i, err)
			}
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("expected counter == %d, got %d (lost update under concurrent access)", n, counter)
	}
	if maxConcurrent != 1 {
		t.Fatalf("expected at most 1 unit in the critical section at a time, saw %d", maxConcurrent)
	}
}

func TestTryAcquireFailsWhenHeld(t *testing.T) {
	locks := setupLocks(t, 2)
	ctx := context.Background()
	if err := locks[0].Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	acquired, err := locks[1].TryAcquire(ctx)
	if err != nil {
		t.Fatalf("try_acquire: %v", err)
	}
	if acquired {
		t.Fatalf("try_acquire must fail while another unit holds the lock")
	}
	if err := locks[0].Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	acquired, err = locks[1].TryAcquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("try_acquire should succeed once the lock is free: acquired=%v err=%v", acquired, err)
	}
	locks[1].Release(ctx)
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	locks := setupLocks(t, 2)
	if err := locks[0].Release(context.Background()); err != nil {
		t.Fatalf("release without acquire must be a warned no-op, got error: %v", err)
	}
}
