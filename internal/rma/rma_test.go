package rma

import (
	"context"
	"testing"

	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/handle"
	"github.com/dash-project/dart-go/internal/segreg"
	"github.com/dash-project/dart-go/internal/transport"
)

func setup(t *testing.T) (e0, e1 *Engine, seg1 segreg.ID) {
	t.Helper()
	world := transport.NewLoopbackWorld(2)
	_, win0, err := world.Port(0).Bootstrap(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("bootstrap 0: %v", err)
	}
	_, win1, err := world.Port(1).Bootstrap(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("bootstrap 1: %v", err)
	}

	remoteMem := make([]byte, 64)
	disp, err := win1.AttachDynamic(remoteMem)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	regs0 := segreg.NewSorted()
	regs1 := segreg.NewSorted()
	seg1 = segreg.ID(1)
	regs0.Add(segreg.Entry{ID: seg1, Disp: []uint64{0, disp}})
	regs1.Add(segreg.Entry{ID: seg1, Disp: []uint64{0, disp}})

	identityG2L := func(g gptr.GlobalUnit) (gptr.TeamUnit, error) { return gptr.TeamUnit(g), nil }

	types := dtype.NewRegistry()
	e0 = New(0, win0, regs0, types, handle.NewStore(), identityG2L)
	e1 = New(1, win1, regs1, types, handle.NewStore(), identityG2L)
	return e0, e1, seg1
}

func TestPutGetRoundTrip(t *testing.T) {
	e0, _, seg1 := setup(t)
	g := gptr.New(1, gptr.TeamAll, gptr.SegmentID(seg1), 0)

	if err := e0.PutBlocking(context.Background(), g, []byte{1, 2, 3, 4}, 4, dtype.Byte, dtype.Byte); err != nil {
		t.Fatalf("put: %v", err)
	}
	out := make([]byte, 4)
	if err := e0.GetBlocking(context.Background(), out, g, 4, dtype.Byte, dtype.Byte); err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(out) != "\x01\x02\x03\x04" {
		t.Fatalf("unexpected bytes: %v", out)
	}
}

func TestMismatchedTypeSizesRejected(t *testing.T) {
	e0, _, seg1 := setup(t)
	g := gptr.New(1, gptr.TeamAll, gptr.SegmentID(seg1), 0)
	if err := e0.PutBlocking(context.Background(), g, []byte{1, 2, 3, 4}, 1, dtype.Int, dtype.Short); err == nil {
		t.Fatalf("mismatched src/dst type sizes must be rejected")
	}
}

func TestCompareAndSwapRejectsNonIntegral(t *testing.T) {
	e0, _, seg1 := setup(t)
	g := gptr.New(1, gptr.TeamAll, gptr.SegmentID(seg1), 0)
	buf := make([]byte, 8)
	if err := e0.CompareAndSwap(context.Background(), g, buf, buf, buf, dtype.Double); err == nil {
		t.Fatalf("cas on a floating type must be rejected")
	}
}

func TestAccumulateRejectsBitwiseOnFloat(t *testing.T) {
	e0, _, seg1 := setup(t)
	g := gptr.New(1, gptr.TeamAll, gptr.SegmentID(seg1), 0)
	buf := make([]byte, 8)
	if err := e0.Accumulate(context.Background(), g, buf, 1, dtype.Double, transport.OpBAnd); err == nil {
		t.Fatalf("bitwise op on a float type must be rejected")
	}
}

func TestGetHandleCompletesImmediatelyOverLoopback(t *testing.T) {
	e0, _, seg1 := setup(t)
	g := gptr.New(1, gptr.TeamAll, gptr.SegmentID(seg1), 0)
	e0.PutBlocking(context.Background(), g, []byte{9, 9, 9, 9}, 4, dtype.Byte, dtype.Byte)

	out := make([]byte, 4)
	h, err := e0.GetHandle(context.Background(), out, g, 4, dtype.Byte, dtype.Byte)
	if err != nil {
		t.Fatalf("get_handle: %v", err)
	}
	store := handle.NewStore()
	_ = store // handle already completed synchronously; exercised via e0's own store below
	if done, err := e0.handles.Test(h); err != nil || !done {
		t.Fatalf("loopback handle should test done immediately: done=%v err=%v", done, err)
	}
}
