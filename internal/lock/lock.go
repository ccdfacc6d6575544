// Package lock implements the MCS-style distributed lock of spec.md
// §4.J: a tail pointer at team-local unit 0, a per-unit "next" cell
// replicated across the team, and a duplicated communicator carrying
// point-to-point wake-ups.
//
// Grounded on original_source/dart-impl/{mpi,gaspi}/dart_locks.c (the
// fetch-and-op tail swap, compare-and-swap try-acquire, and
// spin-on-next-then-send-wakeup release sequence) translated directly;
// this is one of the few components whose algorithm spec.md pins down
// exactly (§4.J gives the literal operation sequence), so little
// "Go-idiomatic" freedom is taken beyond wrapping state in a struct.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/cmn/nlog"
	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/rma"
	"github.com/dash-project/dart-go/internal/transport"
)

const wakeupTag = 0xDA30

// Lock is a team-scoped MCS lock (spec.md §3 "Lock").
type Lock struct {
	engine *rma.Engine
	wakeup transport.Communicator

	tail gptr.GPtr // team-local unit 0's 4-byte tail slot
	next gptr.GPtr // this unit's own "next" cell, team-aligned segment

	// myID is this unit's GLOBAL id: it's what gets written into the
	// tail/next cells (predecessor/successor are compared and stored as
	// global ids via gptr.SetUnit) and is never passed to wakeup.Send/
	// Recv directly — those want a rank local to the wakeup
	// communicator, reached only through g2l (spec.md §9's l2g/g2l
	// boundary: "the only way to cross" between the two id kinds).
	myID gptr.GlobalUnit
	g2l  func(gptr.GlobalUnit) (gptr.TeamUnit, error)

	mu      sync.Mutex
	held    bool
	waiting bool
}

// Init implements team_lock_init (spec.md §4.J): the caller supplies
// the already-collectively-allocated tail/next global pointers (team
// unit 0's tail, and this unit's own next cell), a communicator already
// Dup'd for wake-up traffic, and a g2l translating global unit ids to
// ranks local to that wakeup communicator.
func Init(engine *rma.Engine, wakeup transport.Communicator, tail, next gptr.GPtr, myID gptr.GlobalUnit, g2l func(gptr.GlobalUnit) (gptr.TeamUnit, error)) *Lock {
	return &Lock{engine: engine, wakeup: wakeup, tail: tail, next: next, myID: myID, g2l: g2l}
}

func int32Bytes(v int32) []byte {
	b := make([]byte, 4)
	u := uint32(v)
	b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
	return b
}

func bytesInt32(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

// Acquire implements spec.md §4.J's lock_acquire sequence.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.held {
		nlog.Warnf("lock: Acquire called while already held by this unit; ignoring")
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	myIDBytes := int32Bytes(int32(l.myID))
	result := make([]byte, 4)
	if err := l.engine.FetchAndOp(ctx, l.tail, myIDBytes, result, dtype.Int, transport.OpReplace); err != nil {
		return err
	}
	predecessor := gptr.GlobalUnit(bytesInt32(result))

	if predecessor != gptr.GlobalUnit(gptr.UndefinedUnit) {
		// register with our predecessor, then block for its wake-up.
		predNext := l.next.SetUnit(predecessor)
		discard := make([]byte, 4)
		if err := l.engine.FetchAndOp(ctx, predNext, myIDBytes, discard, dtype.Int, transport.OpReplace); err != nil {
			return err
		}
		predLocal, err := l.g2l(predecessor)
		if err != nil {
			return err
		}
		if _, err := l.wakeup.Recv(ctx, int(predLocal), wakeupTag); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.held = true
	l.mu.Unlock()
	return nil
}

// TryAcquire implements spec.md §4.J's lock_try_acquire.
func (l *Lock) TryAcquire(ctx context.Context) (acquired bool, err error) {
	l.mu.Lock()
	if l.held {
		nlog.Warnf("lock: TryAcquire called while already held by this unit; ignoring")
		l.mu.Unlock()
		return false, nil
	}
	l.mu.Unlock()

	value := int32Bytes(int32(l.myID))
	compare := int32Bytes(-1)
	result := make([]byte, 4)
	if err := l.engine.CompareAndSwap(ctx, l.tail, value, compare, result, dtype.Int); err != nil {
		return false, err
	}
	if bytesInt32(result) == -1 {
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
		return true, nil
	}
	return false, nil
}

// Release implements spec.md §4.J's lock_release sequence.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		nlog.Warnf("lock: Release called without a matching Acquire; ignoring")
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	value := int32Bytes(-1)
	compare := int32Bytes(int32(l.myID))
	result := make([]byte, 4)
	if err := l.engine.CompareAndSwap(ctx, l.tail, value, compare, result, dtype.Int); err != nil {
		return err
	}
	if bytesInt32(result) == int32(l.myID) {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
		return nil
	}

	successor, err := l.spinForSuccessor(ctx)
	if err != nil {
		return err
	}
	successorLocal, err := l.g2l(gptr.GlobalUnit(successor))
	if err != nil {
		return err
	}
	if err := l.wakeup.Send(ctx, int(successorLocal), wakeupTag, nil); err != nil {
		return err
	}
	reset := int32Bytes(-1)
	if err := l.engine.PutBlocking(ctx, l.next, reset, 1, dtype.Int, dtype.Int); err != nil {
		return err
	}

	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	return nil
}

// spinForSuccessor polls this unit's own "next" cell until a successor
// id appears (spec.md §4.J: "spin-load next[myid] until a successor id
// appears").
func (l *Lock) spinForSuccessor(ctx context.Context) (int32, error) {
	buf := make([]byte, 4)
	for {
		if err := l.engine.GetBlocking(ctx, buf, l.next, 1, dtype.Int, dtype.Int); err != nil {
			return 0, err
		}
		if v := bytesInt32(buf); v != -1 {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return 0, cmn.NewErrOther("lock.Release: context cancelled while spinning for successor", ctx.Err())
		case <-time.After(time.Microsecond):
		}
	}
}
