package dart

import (
	"context"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/lock"
	"github.com/dash-project/dart-go/internal/team"
)

// Lock is the public handle for a team-scoped MCS lock (spec.md §4.J).
type Lock struct {
	inner  *lock.Lock
	teamID gptr.TeamID
	tail   gptr.GPtr
	next   gptr.GPtr
	onRoot bool
}

// TeamLockInit implements dart_team_lock_init (collective): team-local
// unit 0 allocates and broadcasts the 4-byte tail, every unit
// collectively allocates its own 4-byte "next" cell, and the team's
// communicator is duplicated to carry wake-ups.
func TeamLockInit(ctx context.Context, teamID gptr.TeamID) (*Lock, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return nil, err
	}
	myLocal, err := team.UnitG2L(t, r.myGlobal)
	if err != nil {
		return nil, err
	}

	var wire [gptr.WireSize]byte
	if myLocal == 0 {
		tailG, err := Memalloc(4)
		if err != nil {
			return nil, err
		}
		buf, err := GetAddr(tailG)
		if err != nil {
			return nil, err
		}
		storeLE32Lock(buf, -1)
		wire = tailG.Pack()
	}
	if err := t.Comm.Broadcast(ctx, 0, wire[:]); err != nil {
		return nil, cmn.NewErrOther("dart.TeamLockInit: tail broadcast", err)
	}
	tail := gptr.Unpack(wire)

	nextG, err := TeamMemallocAligned(ctx, teamID, 4)
	if err != nil {
		return nil, err
	}
	engine, err := r.engineFor(teamID)
	if err != nil {
		return nil, err
	}
	initVal := []byte{0xFF, 0xFF, 0xFF, 0xFF} // -1 as little-endian int32
	if err := engine.PutBlocking(ctx, nextG, initVal, 1, TypeInt, TypeInt); err != nil {
		return nil, err
	}

	// tail's wire bytes are known identically by every team member right
	// after the broadcast above, making them a ready-made collectively
	// pre-agreed key for Dup — no extra synchronization round needed.
	var dupKey int64
	for i := 0; i < 8 && i < len(wire); i++ {
		dupKey |= int64(wire[i]) << (8 * uint(i))
	}
	wakeup, err := t.Comm.Dup(ctx, dupKey)
	if err != nil {
		return nil, cmn.NewErrOther("dart.TeamLockInit: wakeup comm dup", err)
	}

	g2l := func(g gptr.GlobalUnit) (gptr.TeamUnit, error) { return team.UnitG2L(t, g) }
	inner := lock.Init(engine, wakeup, tail, nextG, r.myGlobal, g2l)
	return &Lock{inner: inner, teamID: teamID, tail: tail, next: nextG, onRoot: myLocal == 0}, nil
}

func storeLE32Lock(b []byte, v int32) {
	u := uint32(v)
	b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
}

// LockAcquire implements dart_lock_acquire.
func (l *Lock) LockAcquire(ctx context.Context) error { return l.inner.Acquire(ctx) }

// LockTryAcquire implements dart_lock_try_acquire.
func (l *Lock) LockTryAcquire(ctx context.Context) (bool, error) { return l.inner.TryAcquire(ctx) }

// LockRelease implements dart_lock_release.
func (l *Lock) LockRelease(ctx context.Context) error { return l.inner.Release(ctx) }

// TeamLockFree implements dart_team_lock_free (collective): frees the
// next-cell attachment on every unit and the tail allocation on
// team-local unit 0.
func TeamLockFree(l *Lock) error {
	if err := TeamMemfree(l.next); err != nil {
		return err
	}
	if l.onRoot {
		if err := Memfree(l.tail); err != nil {
			return err
		}
	}
	return nil
}
