package dart

import (
	"context"
	"testing"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/transport"
)

// withUnit brings up a single-unit runtime (the real deployment model:
// one process per unit, per spec.md §6) over a fresh one-rank
// transport.LoopbackWorld, runs fn, and tears it down. dart's runtime
// singleton cannot host more than one live unit per process, so
// multi-unit scenarios (team split, concurrent lock contention,
// cross-unit put/get) are exercised directly against internal/team,
// internal/rma, internal/collective and internal/lock instead, where
// each simulated unit owns its own *rma.Engine/*lock.Lock value rather
// than going through this package's process-wide singleton.
func withUnit(t *testing.T, fn func()) {
	t.Helper()
	world := transport.NewLoopbackWorld(1)
	if _, err := InitThreadWithPort(context.Background(), world.Port(0), 0, 1, ThreadSingle); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer Exit()
	fn()
}

func TestMyIDAndSizeAfterInit(t *testing.T) {
	withUnit(t, func() {
		got, err := MyID()
		if err != nil {
			t.Fatalf("MyID: %v", err)
		}
		if got != 0 {
			t.Fatalf("MyID() = %d, want 0", got)
		}
		n, err := Size()
		if err != nil {
			t.Fatalf("Size: %v", err)
		}
		if n != 1 {
			t.Fatalf("Size() = %d, want 1", n)
		}
	})
}

func TestInitializedReflectsLifecycle(t *testing.T) {
	if Initialized() {
		t.Fatalf("Initialized() should be false before any Init")
	}
	withUnit(t, func() {
		if !Initialized() {
			t.Fatalf("Initialized() should be true inside a live session")
		}
	})
	if Initialized() {
		t.Fatalf("Initialized() should be false after Exit")
	}
}

func TestMemallocRoundTrip(t *testing.T) {
	withUnit(t, func() {
		g, err := Memalloc(16)
		if err != nil {
			t.Fatalf("Memalloc: %v", err)
		}
		buf, err := GetAddr(g)
		if err != nil || buf == nil {
			t.Fatalf("GetAddr: buf=%v err=%v", buf, err)
		}
		copy(buf, []byte("hello, dart!!!!!"))
		buf2, _ := GetAddr(g)
		if string(buf2[:5]) != "hello" {
			t.Fatalf("expected to read back written bytes, got %q", buf2[:5])
		}
		if err := Memfree(g); err != nil {
			t.Fatalf("Memfree: %v", err)
		}
	})
}

func TestGetAddrIsNilForAnotherUnit(t *testing.T) {
	withUnit(t, func() {
		g, _ := Memalloc(8)
		foreign := SetUnit(g, gptr.GlobalUnit(7))
		buf, err := GetAddr(foreign)
		if err != nil {
			t.Fatalf("GetAddr on a foreign unit must not error: %v", err)
		}
		if buf != nil {
			t.Fatalf("GetAddr on a foreign unit must return nil, got %v", buf)
		}
	})
}

func TestTeamMemallocAlignedSelfPutGet(t *testing.T) {
	withUnit(t, func() {
		ctx := context.Background()
		g, err := TeamMemallocAligned(ctx, TeamAll, 8)
		if err != nil {
			t.Fatalf("TeamMemallocAligned: %v", err)
		}
		value := make([]byte, 8)
		value[0] = 42
		if err := PutBlocking(ctx, g, value, 1, TypeLong, TypeLong); err != nil {
			t.Fatalf("put: %v", err)
		}
		readBack := make([]byte, 8)
		if err := GetBlocking(ctx, readBack, g, 1, TypeLong, TypeLong); err != nil {
			t.Fatalf("get: %v", err)
		}
		if readBack[0] != 42 {
			t.Fatalf("expected 42, got %d", readBack[0])
		}
		if err := TeamMemfree(g); err != nil {
			t.Fatalf("TeamMemfree: %v", err)
		}
	})
}

func TestCollectiveAllreduceSumSingleUnit(t *testing.T) {
	withUnit(t, func() {
		ctx := context.Background()
		send := make([]byte, 8)
		send[0] = 7
		recv := make([]byte, 8)
		if err := Allreduce(ctx, TeamAll, send, recv, 8, OpSum, TypeLong); err != nil {
			t.Fatalf("allreduce: %v", err)
		}
		if recv[0] != 7 {
			t.Fatalf("single-unit allreduce sum should equal its own contribution, got %d", recv[0])
		}
	})
}

func TestTeamLockAcquireReleaseUncontended(t *testing.T) {
	withUnit(t, func() {
		ctx := context.Background()
		l, err := TeamLockInit(ctx, TeamAll)
		if err != nil {
			t.Fatalf("TeamLockInit: %v", err)
		}
		if err := l.LockAcquire(ctx); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if err := l.LockRelease(ctx); err != nil {
			t.Fatalf("release: %v", err)
		}
		if err := TeamLockFree(l); err != nil {
			t.Fatalf("TeamLockFree: %v", err)
		}
	})
}

func TestGroupSplitIsDisjointAndCoversWhole(t *testing.T) {
	g := GroupCreate()
	for u := gptr.GlobalUnit(0); u < 7; u++ {
		g.AddMember(u)
	}
	parts := g.Split(3)
	total := 0
	for _, p := range parts {
		total += p.Size()
	}
	if total != 7 {
		t.Fatalf("split subgroup sizes sum to %d, want 7", total)
	}
	for u := gptr.GlobalUnit(0); u < 7; u++ {
		in := 0
		for _, p := range parts {
			if p.IsMember(u) {
				in++
			}
		}
		if in != 1 {
			t.Fatalf("unit %d is in %d split subgroups, want exactly 1", u, in)
		}
	}
}

func TestTypeCreateStridedRejectsZeroBlocklen(t *testing.T) {
	withUnit(t, func() {
		if _, err := TypeCreateStrided(TypeInt, 4, 0); err == nil {
			t.Fatalf("expected an error for blocklen=0")
		}
	})
}

func TestOperationsBeforeInitReturnErrNotInit(t *testing.T) {
	if _, err := MyID(); err == nil {
		t.Fatalf("MyID before Init should fail")
	} else if cmn.CodeOf(err) != cmn.ErrNotInit {
		t.Fatalf("MyID before Init: code %v, want %v", cmn.CodeOf(err), cmn.ErrNotInit)
	}
}
