package dart

import (
	"context"

	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/handle"
	"github.com/dash-project/dart-go/internal/transport"
)

// Handle re-exports internal/handle's opaque completion token under the
// flat dart namespace (spec.md §4.G "Handle").
type Handle = handle.Handle

// Op re-exports the atomic operation enum (spec.md §4.G).
type Op = transport.Op

const (
	OpMin     = transport.OpMin
	OpMax     = transport.OpMax
	OpSum     = transport.OpSum
	OpProd    = transport.OpProd
	OpBAnd    = transport.OpBAnd
	OpLAnd    = transport.OpLAnd
	OpBOr     = transport.OpBOr
	OpLOr     = transport.OpLOr
	OpBXor    = transport.OpBXor
	OpLXor    = transport.OpLXor
	OpReplace = transport.OpReplace
	OpNoOp    = transport.OpNoOp
	OpMinMax  = transport.OpMinMax
)

// Get implements the "Regular" dart_get.
func Get(ctx context.Context, buf []byte, g gptr.GPtr, nelem uint64, srcType, dstType dtype.Datatype) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	return e.Get(ctx, buf, g, nelem, srcType, dstType)
}

// Put implements the "Regular" dart_put.
func Put(ctx context.Context, g gptr.GPtr, buf []byte, nelem uint64, srcType, dstType dtype.Datatype) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	return e.Put(ctx, g, buf, nelem, srcType, dstType)
}

// GetBlocking implements the "Blocking" dart_get_blocking.
func GetBlocking(ctx context.Context, buf []byte, g gptr.GPtr, nelem uint64, srcType, dstType dtype.Datatype) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	return e.GetBlocking(ctx, buf, g, nelem, srcType, dstType)
}

// PutBlocking implements the "Blocking" dart_put_blocking.
func PutBlocking(ctx context.Context, g gptr.GPtr, buf []byte, nelem uint64, srcType, dstType dtype.Datatype) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	return e.PutBlocking(ctx, g, buf, nelem, srcType, dstType)
}

// GetHandle implements the "Handle" dart_get_handle.
func GetHandle(ctx context.Context, buf []byte, g gptr.GPtr, nelem uint64, srcType, dstType dtype.Datatype) (*Handle, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return nil, err
	}
	return e.GetHandle(ctx, buf, g, nelem, srcType, dstType)
}

// PutHandle implements the "Handle" dart_put_handle.
func PutHandle(ctx context.Context, g gptr.GPtr, buf []byte, nelem uint64, srcType, dstType dtype.Datatype) (*Handle, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return nil, err
	}
	return e.PutHandle(ctx, g, buf, nelem, srcType, dstType)
}

// Flush implements dart_flush.
func Flush(g gptr.GPtr) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	flushOpsTotal.WithLabelValues("flush").Inc()
	return e.Flush(g)
}

// FlushLocal implements dart_flush_local.
func FlushLocal(g gptr.GPtr) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	flushOpsTotal.WithLabelValues("flush_local").Inc()
	return e.FlushLocal(g)
}

// FlushAll implements dart_flush_all.
func FlushAll(g gptr.GPtr) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	flushOpsTotal.WithLabelValues("flush_all").Inc()
	return e.FlushAll(g)
}

// FlushLocalAll implements dart_flush_local_all.
func FlushLocalAll(g gptr.GPtr) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	flushOpsTotal.WithLabelValues("flush_local_all").Inc()
	return e.FlushLocalAll(g)
}

// Accumulate implements dart_accumulate.
func Accumulate(ctx context.Context, g gptr.GPtr, values []byte, nelem uint64, t dtype.Datatype, op Op) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	return e.Accumulate(ctx, g, values, nelem, t, op)
}

// AccumulateBlockingLocal implements dart_accumulate's blocking-local
// variant.
func AccumulateBlockingLocal(ctx context.Context, g gptr.GPtr, values []byte, nelem uint64, t dtype.Datatype, op Op) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	return e.AccumulateBlockingLocal(ctx, g, values, nelem, t, op)
}

// FetchAndOp implements dart_fetch_and_op.
func FetchAndOp(ctx context.Context, g gptr.GPtr, value, result []byte, t dtype.Datatype, op Op) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	return e.FetchAndOp(ctx, g, value, result, t, op)
}

// CompareAndSwap implements dart_compare_and_swap.
func CompareAndSwap(ctx context.Context, g gptr.GPtr, value, compare, result []byte, t dtype.Datatype) error {
	r, err := current()
	if err != nil {
		return err
	}
	e, err := r.engineFor(g.TeamID())
	if err != nil {
		return err
	}
	return e.CompareAndSwap(ctx, g, value, compare, result, t)
}

// Wait implements dart_wait: consumes h exactly once.
func Wait(h *Handle) error {
	r, err := current()
	if err != nil {
		return err
	}
	return r.handles.Wait(h)
}

// WaitLocal implements dart_wait_local.
func WaitLocal(h *Handle) error {
	r, err := current()
	if err != nil {
		return err
	}
	return r.handles.WaitLocal(h)
}

// Test implements dart_test.
func Test(h *Handle) (done bool, err error) {
	r, err := current()
	if err != nil {
		return false, err
	}
	return r.handles.Test(h)
}

// TestLocal implements dart_test_local.
func TestLocal(h *Handle) (done bool, err error) {
	r, err := current()
	if err != nil {
		return false, err
	}
	return r.handles.TestLocal(h)
}

// WaitAll implements dart_waitall.
func WaitAll(hs []*Handle) error {
	r, err := current()
	if err != nil {
		return err
	}
	return r.handles.WaitAll(hs)
}

// TestAll implements dart_testall.
func TestAll(hs []*Handle) (allDone bool, err error) {
	r, err := current()
	if err != nil {
		return false, err
	}
	return r.handles.TestAll(hs)
}

// HandleFree implements dart_handle_free: abandons h without waiting.
func HandleFree(h *Handle) error {
	r, err := current()
	if err != nil {
		return err
	}
	return r.handles.Free(h)
}
