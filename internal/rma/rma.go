// Package rma implements the one-sided memory engine of spec.md §4.G:
// regular/blocking/handle put-get, flush variants, and the atomic
// accumulate/fetch_and_op/compare_and_swap family, layered entirely on
// the transport.Window abstraction so the same code runs over any
// backend (loopback, shm, net).
//
// Grounded on original_source/dart-if/include/dash/dart/if/dart_communication.h
// (the dart_get/dart_put/dart_get_handle/... family and their
// completion rules) and on aistore's transport package for the
// synchronous-vs-handle split in its object-streaming API.
package rma

import (
	"context"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/cmn/debug"
	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/handle"
	"github.com/dash-project/dart-go/internal/segreg"
	"github.com/dash-project/dart-go/internal/transport"
)

// Engine resolves global pointers against a team's segment registry and
// window, and drives transfers over it. One Engine serves one team.
type Engine struct {
	myGlobal int32 // this unit's global id; recorded by New, not read by any Engine method
	win      transport.Window
	segs     segreg.Registry
	types    *dtype.Registry
	handles  *handle.Store
	// g2l translates a gptr's global unit id to this Engine's team-local
	// rank: Disp[] is populated in team-local order (dart/memory.go's
	// gatherDisps Allgathers over the team's own communicator) and the
	// transport layer addresses targets by that same team-local rank,
	// so every resolve() must cross from global to local through here
	// rather than using g.Unit() directly (spec.md §9's l2g/g2l boundary).
	g2l func(gptr.GlobalUnit) (gptr.TeamUnit, error)
}

// New creates an RMA engine bound to one team's window, segment
// registry and datatype registry. g2l must translate a global unit id
// to its rank within the team this Engine serves (team.UnitG2L bound to
// that team, or the identity translation for TEAM_ALL).
func New(myGlobal int32, win transport.Window, segs segreg.Registry, types *dtype.Registry, handles *handle.Store, g2l func(gptr.GlobalUnit) (gptr.TeamUnit, error)) *Engine {
	return &Engine{myGlobal: myGlobal, win: win, segs: segs, types: types, handles: handles, g2l: g2l}
}

func opSizeCheck(srcType, dstType dtype.Datatype, types *dtype.Registry) (elemSize int, err error) {
	ss, err := types.SizeOf(srcType)
	if err != nil {
		return 0, err
	}
	ds, err := types.SizeOf(dstType)
	if err != nil {
		return 0, err
	}
	if ss != ds {
		return 0, cmn.NewErrInval("rma: src_type/dst_type must be base types of identical size", nil)
	}
	return ss, nil
}

func (e *Engine) resolve(g gptr.GPtr) (target int, disp uint64, err error) {
	seg, ok := e.segs.Get(segreg.ID(g.Segment()))
	if !ok {
		return 0, 0, cmn.NewErrNotFound("rma: unknown segment", nil)
	}
	localTeamUnit, err := e.g2l(g.Unit())
	if err != nil {
		return 0, 0, err
	}
	localUnit := int(localTeamUnit)
	if len(seg.Disp) > localUnit {
		return localUnit, seg.Disp[localUnit] + g.Offset(), nil
	}
	return localUnit, g.Offset(), nil
}

// Get implements the "Regular" variant of spec.md §4.G: neither local
// nor remote completion is guaranteed on return.
func (e *Engine) Get(ctx context.Context, buf []byte, g gptr.GPtr, nelem uint64, srcType, dstType dtype.Datatype) error {
	elemSize, err := opSizeCheck(srcType, dstType, e.types)
	if err != nil {
		return err
	}
	nbytes := int(nelem) * elemSize
	debug.Assert(len(buf) >= nbytes)
	target, disp, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.Get(ctx, target, disp, nbytes, buf)
}

// Put implements the "Regular" put variant.
func (e *Engine) Put(ctx context.Context, g gptr.GPtr, buf []byte, nelem uint64, srcType, dstType dtype.Datatype) error {
	elemSize, err := opSizeCheck(srcType, dstType, e.types)
	if err != nil {
		return err
	}
	nbytes := int(nelem) * elemSize
	debug.Assert(len(buf) >= nbytes)
	target, disp, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.Put(ctx, target, disp, buf[:nbytes])
}

// GetBlocking implements spec.md §4.G "Blocking": on return both local
// buffer re-usability and remote visibility hold. Every backend's
// Window.Get (loopback, shm, net) completes before it returns, so Get
// already satisfies this; the Flush that follows is the window's
// remote-completion call for the target.
func (e *Engine) GetBlocking(ctx context.Context, buf []byte, g gptr.GPtr, nelem uint64, srcType, dstType dtype.Datatype) error {
	if err := e.Get(ctx, buf, g, nelem, srcType, dstType); err != nil {
		return err
	}
	target, _, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.Flush(target)
}

// PutBlocking implements spec.md §4.G "Blocking" put.
func (e *Engine) PutBlocking(ctx context.Context, g gptr.GPtr, buf []byte, nelem uint64, srcType, dstType dtype.Datatype) error {
	if err := e.Put(ctx, g, buf, nelem, srcType, dstType); err != nil {
		return err
	}
	target, _, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.Flush(target)
}

// GetHandle implements spec.md §4.G "Handle": returns immediately; the
// returned handle resolves via the handle package's wait/test family.
func (e *Engine) GetHandle(ctx context.Context, buf []byte, g gptr.GPtr, nelem uint64, srcType, dstType dtype.Datatype) (*handle.Handle, error) {
	if err := e.Get(ctx, buf, g, nelem, srcType, dstType); err != nil {
		return nil, err
	}
	seg := segreg.ID(g.Segment())
	return e.handles.Post(seg, seg, handle.AlreadyDone), nil
}

// PutHandle implements spec.md §4.G "Handle" put.
func (e *Engine) PutHandle(ctx context.Context, g gptr.GPtr, buf []byte, nelem uint64, srcType, dstType dtype.Datatype) (*handle.Handle, error) {
	if err := e.Put(ctx, g, buf, nelem, srcType, dstType); err != nil {
		return nil, err
	}
	seg := segreg.ID(g.Segment())
	return e.handles.Post(seg, seg, handle.AlreadyDone), nil
}

// Flush implements remote completion for pending ops on the
// segment+unit denoted by g.
func (e *Engine) Flush(g gptr.GPtr) error {
	target, _, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.Flush(target)
}

// FlushLocal implements local-only completion.
func (e *Engine) FlushLocal(g gptr.GPtr) error {
	target, _, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.FlushLocal(target)
}

// FlushAll implements remote completion across all targets of g's
// segment.
func (e *Engine) FlushAll(g gptr.GPtr) error { return e.win.FlushAll() }

// FlushLocalAll implements local completion across all targets.
func (e *Engine) FlushLocalAll(g gptr.GPtr) error { return e.win.FlushLocalAll() }

// Accumulate implements the element-wise atomic update of spec.md
// §4.G; non-blocking, local buffer not guaranteed free on return.
func (e *Engine) Accumulate(ctx context.Context, g gptr.GPtr, values []byte, nelem uint64, t dtype.Datatype, op transport.Op) error {
	elemSize, err := e.types.SizeOf(t)
	if err != nil {
		return err
	}
	if err := checkOpType(op, t, e.types); err != nil {
		return err
	}
	target, disp, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.Accumulate(ctx, target, disp, values[:int(nelem)*elemSize], elemSize, op)
}

// AccumulateBlockingLocal blocks until the local buffer is free.
func (e *Engine) AccumulateBlockingLocal(ctx context.Context, g gptr.GPtr, values []byte, nelem uint64, t dtype.Datatype, op transport.Op) error {
	if err := e.Accumulate(ctx, g, values, nelem, t, op); err != nil {
		return err
	}
	target, _, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.FlushLocal(target)
}

// FetchAndOp implements the single-element fetch-and-update primitive,
// returning the pre-update value.
func (e *Engine) FetchAndOp(ctx context.Context, g gptr.GPtr, value, result []byte, t dtype.Datatype, op transport.Op) error {
	elemSize, err := e.types.SizeOf(t)
	if err != nil {
		return err
	}
	if err := checkOpType(op, t, e.types); err != nil {
		return err
	}
	target, disp, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.FetchAndOp(ctx, target, disp, value[:elemSize], result[:elemSize], elemSize, op)
}

// CompareAndSwap implements the integral-only compare-and-swap
// primitive.
func (e *Engine) CompareAndSwap(ctx context.Context, g gptr.GPtr, value, compare, result []byte, t dtype.Datatype) error {
	if !isIntegral(t) {
		return cmn.NewErrInval("rma.CompareAndSwap: integral types only", nil)
	}
	elemSize, err := e.types.SizeOf(t)
	if err != nil {
		return err
	}
	target, disp, err := e.resolve(g)
	if err != nil {
		return err
	}
	return e.win.CompareAndSwap(ctx, target, disp, value[:elemSize], compare[:elemSize], result[:elemSize], elemSize)
}

func isIntegral(t dtype.Datatype) bool {
	switch t {
	case dtype.Byte, dtype.Short, dtype.Int, dtype.UInt, dtype.Long, dtype.ULong, dtype.LongLong, dtype.ULongLong:
		return true
	default:
		return false
	}
}

func isFloating(t dtype.Datatype) bool {
	switch t {
	case dtype.Float, dtype.Double, dtype.LongDouble:
		return true
	default:
		return false
	}
}

// checkOpType enforces spec.md §4.G's "Operation x type compatibility":
// logical/bitwise ops require integer types; MIN/MAX/SUM/PROD permitted
// on floating types too; REPLACE/NO_OP on all types.
func checkOpType(op transport.Op, t dtype.Datatype, types *dtype.Registry) error {
	if !dtype.IsBase(t) {
		return cmn.NewErrInval("rma: atomics require a base (non-derived) datatype", nil)
	}
	switch op {
	case transport.OpBAnd, transport.OpLAnd, transport.OpBOr, transport.OpLOr, transport.OpBXor, transport.OpLXor:
		if !isIntegral(t) {
			return cmn.NewErrInval("rma: logical/bitwise ops require an integer type", nil)
		}
	case transport.OpMin, transport.OpMax, transport.OpSum, transport.OpProd:
		if !isIntegral(t) && !isFloating(t) {
			return cmn.NewErrInval("rma: MIN/MAX/SUM/PROD require a numeric type", nil)
		}
	case transport.OpReplace, transport.OpNoOp:
		// permitted on all types
	default:
		return cmn.NewErrInval("rma: unsupported operation", nil)
	}
	return nil
}
