package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dash-project/dart-go/cmn"
)

// LoopbackWorld is the in-process backend of SPEC_FULL.md §4.F': all
// units are goroutines inside one OS process, so they already share one
// address space. Collectives are implemented with a barrier + a shared
// staging slot rather than real network messages, and RMA degenerates to
// direct slice access — the same collapse spec.md §4.G describes for the
// "caller addresses itself" and "intra-node shared window" fast paths,
// here applying universally because every unit is intra-node.
//
// Grounded on transport/collect.go's single in-process collector
// coordinating many concurrent streams; LoopbackWorld plays the same
// role for many simulated units instead of many streams.
type LoopbackWorld struct {
	size int

	mu         sync.Mutex
	barrierCnt int
	barrierCh  chan struct{}

	inboxMu sync.Mutex
	inbox   []chan wireMsg
	pending [][]wireMsg

	winMu    sync.Mutex
	dynSegs  []map[uint64][]byte
	nextDisp []uint64

	// commsMu/comms let independently-bootstrapped rank goroutines
	// rendezvous on one shared *sharedComm per (kind, key) instead of
	// each constructing its own unsynchronized private copy: every
	// caller of Split/Dup with the same key must land on the same
	// barrier/broadcast state for collectives on the result to
	// actually synchronize across ranks.
	commsMu sync.Mutex
	comms   map[string]*sharedComm
}

// commFor returns the shared communicator state registered under
// (kind, key), creating it (seeded with members) on first call. kind
// namespaces Split's keys away from Dup's so a caller-supplied key that
// coincidentally collides between the two call sites can't alias.
func (w *LoopbackWorld) commFor(kind string, key int64, members []int) *sharedComm {
	w.commsMu.Lock()
	defer w.commsMu.Unlock()
	if w.comms == nil {
		w.comms = make(map[string]*sharedComm)
	}
	mapKey := fmt.Sprintf("%s:%d", kind, key)
	sc, ok := w.comms[mapKey]
	if !ok {
		sc = &sharedComm{world: w, globalRanks: append([]int(nil), members...)}
		w.comms[mapKey] = sc
	}
	return sc
}

type wireMsg struct {
	from, tag int
	data      []byte
}

// NewLoopbackWorld creates a fresh in-process world of size units; call
// Port(rank) once per simulated unit.
func NewLoopbackWorld(size int) *LoopbackWorld {
	w := &LoopbackWorld{
		size:      size,
		barrierCh: make(chan struct{}),
		inbox:     make([]chan wireMsg, size),
		pending:   make([][]wireMsg, size),
		dynSegs:   make([]map[uint64][]byte, size),
		nextDisp:  make([]uint64, size),
	}
	for i := range w.inbox {
		w.inbox[i] = make(chan wireMsg, size*4)
		w.dynSegs[i] = make(map[uint64][]byte)
	}
	return w
}

func (w *LoopbackWorld) Port(rank int) Port { return &loopbackPort{world: w, rank: rank} }

type loopbackPort struct {
	world *LoopbackWorld
	rank  int
}

func (p *loopbackPort) Name() string { return "loopback" }

func (p *loopbackPort) Bootstrap(ctx context.Context, rank, size int) (Communicator, Window, error) {
	if size != p.world.size {
		return nil, nil, cmn.NewErrInval("loopback.Bootstrap: size mismatch with world", nil)
	}
	ranks := make([]int, size)
	for i := range ranks {
		ranks[i] = i
	}
	shared := &sharedComm{world: p.world, globalRanks: ranks}
	comm := &boundComm{shared: shared, rank: p.rank}
	win := &boundWindow{world: p.world, comm: comm}
	return comm, win, nil
}

func (p *loopbackPort) Shutdown() error { return nil }

// sharedComm is the state shared by every rank-bound view of one
// communicator: a barrier generation and a one-slot broadcast staging
// area (valid because collectives are called in lock-step order by
// every member, per spec.md §5).
type sharedComm struct {
	world       *LoopbackWorld
	globalRanks []int

	mu        sync.Mutex
	gen       int
	waiting   int
	gate      chan struct{}
	bcastSlot []byte
	sharedBuf []byte // AllocateShared's backing buffer, set by rank 0
}

type boundComm struct {
	shared *sharedComm
	rank   int
}

func (c *boundComm) Rank() int { return c.rank }
func (c *boundComm) Size() int { return len(c.shared.globalRanks) }

func (c *boundComm) Barrier(ctx context.Context) error {
	s := c.shared
	s.mu.Lock()
	if s.gate == nil {
		s.gate = make(chan struct{})
	}
	gate := s.gate
	s.waiting++
	if s.waiting == len(s.globalRanks) {
		s.waiting = 0
		s.gen++
		s.gate = nil
		s.mu.Unlock()
		close(gate)
		return nil
	}
	s.mu.Unlock()
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return cmn.NewErrOther("loopback.Barrier", ctx.Err())
	}
}

func (c *boundComm) Broadcast(ctx context.Context, root int, buf []byte) error {
	s := c.shared
	if c.rank == root {
		s.mu.Lock()
		s.bcastSlot = append([]byte(nil), buf...)
		s.mu.Unlock()
	}
	if err := c.Barrier(ctx); err != nil {
		return err
	}
	if c.rank != root {
		s.mu.Lock()
		copy(buf, s.bcastSlot)
		s.mu.Unlock()
	}
	// second barrier: no rank may let a subsequent broadcast overwrite
	// bcastSlot before every reader has copied out of it.
	return c.Barrier(ctx)
}

func (c *boundComm) SplitShared(ctx context.Context) (Communicator, []int, error) {
	// every unit is intra-node in the loopback backend, and membership
	// doesn't change, so the existing shared state is already correct —
	// reuse it rather than handing back an unsynchronized private copy.
	ranks := append([]int(nil), c.shared.globalRanks...)
	return &boundComm{shared: c.shared, rank: c.rank}, ranks, nil
}

func (c *boundComm) Split(ctx context.Context, key int64, members []int) (Communicator, error) {
	sorted := append([]int(nil), members...)
	sort.Ints(sorted)
	myGlobal := c.shared.globalRanks[c.rank]
	localRank := -1
	for i, g := range sorted {
		if g == myGlobal {
			localRank = i
			break
		}
	}
	if localRank < 0 {
		return nil, cmn.NewErrInval("loopback.Split: caller is not a member of the requested subgroup", nil)
	}
	shared := c.shared.world.commFor("split", key, sorted)
	return &boundComm{shared: shared, rank: localRank}, nil
}

func (c *boundComm) Dup(ctx context.Context, key int64) (Communicator, error) {
	ranks := append([]int(nil), c.shared.globalRanks...)
	shared := c.shared.world.commFor("dup", key, ranks)
	return &boundComm{shared: shared, rank: c.rank}, nil
}

func (c *boundComm) Send(ctx context.Context, to, tag int, data []byte) error {
	toGlobal := c.shared.globalRanks[to]
	w := c.shared.world
	msg := wireMsg{from: c.shared.globalRanks[c.rank], tag: tag, data: append([]byte(nil), data...)}
	select {
	case w.inbox[toGlobal] <- msg:
		return nil
	case <-ctx.Done():
		return cmn.NewErrOther("loopback.Send", ctx.Err())
	}
}

func (c *boundComm) Recv(ctx context.Context, from, tag int) ([]byte, error) {
	fromGlobal := c.shared.globalRanks[from]
	toGlobal := c.shared.globalRanks[c.rank]
	w := c.shared.world

	w.inboxMu.Lock()
	for i, m := range w.pending[toGlobal] {
		if m.from == fromGlobal && m.tag == tag {
			w.pending[toGlobal] = append(w.pending[toGlobal][:i], w.pending[toGlobal][i+1:]...)
			w.inboxMu.Unlock()
			return m.data, nil
		}
	}
	w.inboxMu.Unlock()

	for {
		select {
		case m := <-w.inbox[toGlobal]:
			if m.from == fromGlobal && m.tag == tag {
				return m.data, nil
			}
			w.inboxMu.Lock()
			w.pending[toGlobal] = append(w.pending[toGlobal], m)
			w.inboxMu.Unlock()
		case <-ctx.Done():
			return nil, cmn.NewErrOther("loopback.Recv", ctx.Err())
		}
	}
}

// boundWindow is the rank-bound Window view over a LoopbackWorld: attach
// tables are keyed by the *target's own* rank, matching spec.md §3's
// "per-team array of local displacements (disp[u])" — disp is only
// meaningful relative to the unit that produced it.
type boundWindow struct {
	world *LoopbackWorld
	comm  *boundComm

	sharedMu  sync.Mutex
	sharedBuf []byte
	sharedGen int
}

func (w *boundWindow) Comm() Communicator { return w.comm }

// WithComm binds a new Window to comm, sharing this world's dynamic-
// segment storage (which is indexed by global rank and a
// never-reused per-rank counter, so distinct windows over the same
// world never collide on disp).
func (w *boundWindow) WithComm(comm Communicator) Window {
	bc, ok := comm.(*boundComm)
	if !ok {
		bc = &boundComm{shared: w.comm.shared, rank: w.comm.rank}
	}
	return &boundWindow{world: w.world, comm: bc}
}

func (w *boundWindow) AttachDynamic(local []byte) (uint64, error) {
	g := w.comm.shared.globalRanks[w.comm.rank]
	world := w.world
	world.winMu.Lock()
	defer world.winMu.Unlock()
	disp := world.nextDisp[g]
	world.nextDisp[g]++
	world.dynSegs[g][disp] = local
	return disp, nil
}

func (w *boundWindow) DetachDynamic(disp uint64) error {
	g := w.comm.shared.globalRanks[w.comm.rank]
	world := w.world
	world.winMu.Lock()
	defer world.winMu.Unlock()
	if _, ok := world.dynSegs[g][disp]; !ok {
		return cmn.NewErrNotFound("loopback.DetachDynamic", nil)
	}
	delete(world.dynSegs[g], disp)
	return nil
}

func (w *boundWindow) AllocateShared(ctx context.Context, size int) ([][]byte, error) {
	n := w.comm.Size()
	s := w.comm.shared
	if w.comm.rank == 0 {
		buf := make([]byte, size*n)
		s.mu.Lock()
		s.sharedBuf = buf
		s.mu.Unlock()
	}
	if err := w.comm.Barrier(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	buf := s.sharedBuf
	s.mu.Unlock()
	bases := make([][]byte, n)
	for i := 0; i < n; i++ {
		bases[i] = buf[i*size : (i+1)*size]
	}
	return bases, w.comm.Barrier(ctx)
}

func (w *boundWindow) LockAll() error   { return nil }
func (w *boundWindow) UnlockAll() error { return nil }

func (w *boundWindow) targetBuf(target int, disp uint64, nbytes int) ([]byte, error) {
	g := w.comm.shared.globalRanks[target]
	w.world.winMu.Lock()
	buf, ok := w.world.dynSegs[g][disp]
	w.world.winMu.Unlock()
	if !ok {
		return nil, cmn.NewErrNotFound("loopback: no such (unit,disp) attachment", nil)
	}
	if nbytes > len(buf) {
		return nil, cmn.NewErrInval("loopback: transfer exceeds attached segment length", nil)
	}
	return buf, nil
}

func (w *boundWindow) Get(ctx context.Context, target int, disp uint64, nbytes int, localBuf []byte) error {
	buf, err := w.targetBuf(target, disp, nbytes)
	if err != nil {
		return err
	}
	copy(localBuf[:nbytes], buf[:nbytes])
	return nil
}

func (w *boundWindow) Put(ctx context.Context, target int, disp uint64, localBuf []byte) error {
	buf, err := w.targetBuf(target, disp, len(localBuf))
	if err != nil {
		return err
	}
	copy(buf[:len(localBuf)], localBuf)
	return nil
}

func (w *boundWindow) Accumulate(ctx context.Context, target int, disp uint64, localBuf []byte, elemSize int, op Op) error {
	buf, err := w.targetBuf(target, disp, len(localBuf))
	if err != nil {
		return err
	}
	w.world.winMu.Lock()
	defer w.world.winMu.Unlock()
	return applyElementwise(buf[:len(localBuf)], localBuf, elemSize, op)
}

func (w *boundWindow) FetchAndOp(ctx context.Context, target int, disp uint64, value, result []byte, elemSize int, op Op) error {
	buf, err := w.targetBuf(target, disp, elemSize)
	if err != nil {
		return err
	}
	w.world.winMu.Lock()
	defer w.world.winMu.Unlock()
	copy(result[:elemSize], buf[:elemSize])
	return applyElementwise(buf[:elemSize], value[:elemSize], elemSize, op)
}

func (w *boundWindow) CompareAndSwap(ctx context.Context, target int, disp uint64, value, compare, result []byte, elemSize int) error {
	buf, err := w.targetBuf(target, disp, elemSize)
	if err != nil {
		return err
	}
	w.world.winMu.Lock()
	defer w.world.winMu.Unlock()
	copy(result[:elemSize], buf[:elemSize])
	equal := true
	for i := 0; i < elemSize; i++ {
		if buf[i] != compare[i] {
			equal = false
			break
		}
	}
	if equal {
		copy(buf[:elemSize], value[:elemSize])
	}
	return nil
}

func (w *boundWindow) Flush(target int) error         { return nil }
func (w *boundWindow) FlushLocal(target int) error    { return nil }
func (w *boundWindow) FlushAll() error                { return nil }
func (w *boundWindow) FlushLocalAll() error           { return nil }

var _ Port = (*loopbackPort)(nil)
var _ Communicator = (*boundComm)(nil)
var _ Window = (*boundWindow)(nil)
