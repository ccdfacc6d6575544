// Package transport is the abstract window-based RMA + collectives
// binding of spec.md §4.F: "the abstract contract every backend must
// satisfy." internal/rma, internal/collective and internal/lock depend
// only on the Port/Communicator/Window interfaces defined here, never on
// a concrete backend, per the Design Notes ("Transport as a port").
//
// Grounded on original_source/dart-impl/{mpi,gaspi,shmem} (three
// interchangeable backends behind one C interface) and on aistore's
// transport package, whose doc comment ("streaming object-based
// transport over http for intra-cluster ... communications") is the
// direct model for the "net" backend in net.go.
package transport

import "context"

// Op mirrors dart_operation_t (spec.md §4.G).
type Op int

const (
	OpUndefined Op = iota
	OpMin
	OpMax
	OpSum
	OpProd
	OpBAnd
	OpLAnd
	OpBOr
	OpLOr
	OpBXor
	OpLXor
	OpReplace
	OpNoOp
	// OpMinMax is the pair-reduction op spec.md §4.G notes as appearing
	// "in one backend only". No backend or reduction kernel here
	// implements it: operations given OpMinMax return ErrInval.
	OpMinMax
)

// Communicator is the minimal collective + point-to-point surface every
// backend must provide (spec.md §4.F).
type Communicator interface {
	Rank() int
	Size() int

	Barrier(ctx context.Context) error
	Broadcast(ctx context.Context, root int, buf []byte) error

	// SplitShared partitions the communicator by intra-node locality,
	// returning a sub-communicator plus the global ranks of its
	// members in local-rank order (spec.md §4.F: "split-by-shared-
	// memory").
	SplitShared(ctx context.Context) (sub Communicator, globalRanks []int, err error)

	// Split creates a genuinely new sub-communicator scoped to members
	// (global ranks of this communicator); the sub-communicator's local
	// ranks follow ascending global rank, whatever order members is
	// given in (every backend sorts it). Every member must call
	// Split with an identical key and an identical members slice; key
	// must already be agreed collectively before the call (e.g. a
	// max-reduction result every caller computed the same way), not a
	// value derived independently per-caller, since backends use it to
	// rendezvous on one shared sub-communicator object rather than
	// allocating an unsynchronized private one per caller. A caller
	// whose own rank is absent from members gets ErrInval; it must not
	// call Split at all (non-members never participate).
	Split(ctx context.Context, key int64, members []int) (Communicator, error)

	// Dup returns an independent communicator duplicating this one's
	// membership, used by the lock service for wake-up messages
	// (spec.md §4.J). Like Split, key must be a value every member
	// already agrees on before the call.
	Dup(ctx context.Context, key int64) (Communicator, error)

	// Send/Recv are two-sided point-to-point primitives, used by the
	// lock service's successor wake-up (spec.md §4.J), by the gather/
	// alltoall/reduce collectives and by team id allocation. A backend
	// without native send/recv (GASPI-style) returns ErrInval, per
	// spec.md §4.F: "which the core then surfaces as INVAL."
	Send(ctx context.Context, to int, tag int, data []byte) error
	Recv(ctx context.Context, from int, tag int) ([]byte, error)
}

// Window is the RMA surface of spec.md §4.F.
type Window interface {
	Comm() Communicator

	// WithComm returns a new Window over the same underlying backend
	// state (dynamic-segment storage, shared-memory syncarea, ...) but
	// bound to comm instead of Comm() — the window a freshly Split
	// sub-communicator needs, without re-deriving backend-specific
	// plumbing outside the transport package. comm must have been
	// produced by the same backend that produced the receiver.
	WithComm(comm Communicator) Window

	// AttachDynamic registers local for remote addressing and returns
	// its per-unit displacement (spec.md "create_dynamic"/"attach").
	AttachDynamic(local []byte) (disp uint64, err error)
	DetachDynamic(disp uint64) error

	// AllocateShared collectively allocates size bytes per rank and
	// returns, for every *co-resident* rank, a slice mapping its
	// portion (nil for non-coresident ranks) — the intra-node fast
	// path's base-address array (spec.md "allocate_shared").
	AllocateShared(ctx context.Context, size int) (bases [][]byte, err error)

	LockAll() error
	UnlockAll() error

	Get(ctx context.Context, target int, disp uint64, nbytes int, localBuf []byte) error
	Put(ctx context.Context, target int, disp uint64, localBuf []byte) error

	Accumulate(ctx context.Context, target int, disp uint64, localBuf []byte, elemSize int, op Op) error
	FetchAndOp(ctx context.Context, target int, disp uint64, value, result []byte, elemSize int, op Op) error
	CompareAndSwap(ctx context.Context, target int, disp uint64, value, compare, result []byte, elemSize int) error

	Flush(target int) error
	FlushLocal(target int) error
	FlushAll() error
	FlushLocalAll() error
}

// Port is what a backend publishes: a way to stand up the world
// communicator and its associated dynamic/collective window at
// dart.Init time.
type Port interface {
	Name() string
	// Bootstrap brings up the world communicator for this unit given
	// its assigned rank and the team size (normally sourced from
	// cmn.LauncherEnv), returning the world Communicator and its
	// associated collective Window.
	Bootstrap(ctx context.Context, rank, size int) (Communicator, Window, error)
	Shutdown() error
}
