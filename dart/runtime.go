// Package dart is the flat-namespace public surface of spec.md §6: one
// process-wide runtime (DART is inherently one-instance-per-unit-
// process), exposing init/finalize, group/team, memory, datatype, RMA,
// collective and lock operations as package-level functions, mirroring
// the C ABI's flat identifier space. Failures are returned as errors
// (cmn.CodeOf maps one to its cmn.Code); Init, InitThread and Exit
// return the cmn.Code alongside the error.
//
// Grounded on original_source/dart-if/include/dash/dart/if/dart_*.h
// (the complete function inventory) and on aistore's pattern of a
// single package-level object (the primary runner) owning every
// subsystem, constructed once at startup.
package dart

import (
	"context"
	"os"
	"sync"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/cmn/nlog"
	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/group"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/handle"
	"github.com/dash-project/dart-go/internal/mempool"
	"github.com/dash-project/dart-go/internal/rma"
	"github.com/dash-project/dart-go/internal/segreg"
	"github.com/dash-project/dart-go/internal/team"
	"github.com/dash-project/dart-go/internal/transport"
)

// ThreadSupport mirrors dart_thread_support_level_t (spec.md §5).
type ThreadSupport int

const (
	ThreadSingle ThreadSupport = iota
	ThreadMultiple
)

// LocalPoolSize bounds the per-unit non-collective pool (segment 0);
// tunable via cmn.Config in a future revision, fixed here at 64 MiB.
const localPoolSize = 64 << 20

type runtime struct {
	mu            sync.Mutex
	initialized   bool
	threadSupport ThreadSupport

	port transport.Port

	teams   *team.Registry
	world   *team.Team
	engines map[gptr.TeamID]*rma.Engine

	localPool    *mempool.Pool
	localPoolBuf []byte // the real backing storage mempool.Pool allocates offsets into
	types        *dtype.Registry
	handles      *handle.Store

	locksMu sync.Mutex
	locks   map[uintptr]interface{} // populated by package lock.go

	myGlobal gptr.GlobalUnit
}

var (
	rtMu sync.Mutex
	rt   *runtime
)

func current() (*runtime, error) {
	rtMu.Lock()
	r := rt
	rtMu.Unlock()
	if r == nil || !r.initialized {
		return nil, cmn.NewErrNotInit("dart: not initialized")
	}
	return r, nil
}

// Init implements dart_init: single-threaded initialization, equivalent
// to InitThread(ThreadSingle).
func Init() (cmn.Code, error) {
	return InitThread(ThreadSingle)
}

// InitThread implements dart_init_thread: brings up the transport
// backend selected by cmn.GCO (SPEC_FULL.md §1.3), bootstraps
// TEAM_ALL, and installs the process-wide subsystem singletons.
func InitThread(level ThreadSupport) (cmn.Code, error) {
	rtMu.Lock()
	defer rtMu.Unlock()
	if rt != nil && rt.initialized {
		return cmn.ErrInval, cmn.NewErrInval("dart.InitThread: already initialized", nil)
	}

	env, err := cmn.ReadLauncherEnv()
	if err != nil {
		return cmn.ErrOther, err
	}

	cfg := cmn.GCO.Get()
	port, err := selectPort(cfg.Transport.Backend, env)
	if err != nil {
		return cmn.ErrOther, err
	}

	ctx := context.Background()
	comm, win, err := port.Bootstrap(ctx, env.ID, env.Size)
	if err != nil {
		return cmn.ErrOther, cmn.NewErrOther("dart.InitThread: transport bootstrap", err)
	}

	members := group.New()
	for i := 0; i < env.Size; i++ {
		members.AddMember(gptr.GlobalUnit(i))
	}

	teams := team.NewRegistry()
	world := teams.Bootstrap(comm, win, members)

	r := &runtime{
		threadSupport: level,
		port:          port,
		teams:         teams,
		world:         world,
		engines:       make(map[gptr.TeamID]*rma.Engine),
		localPool:     mempool.Create(0, localPoolSize),
		localPoolBuf:  make([]byte, localPoolSize),
		types:         dtype.NewRegistry(),
		handles:       handle.NewStore(),
		locks:         make(map[uintptr]interface{}),
		myGlobal:      gptr.GlobalUnit(env.ID),
	}
	r.engines[gptr.TeamAll] = rma.New(int32(env.ID), win, world.Segments, r.types, r.handles, teamG2L(world))
	r.initialized = true
	rt = r

	nlog.Infof("dart: initialized unit %d of %d (transport=%s)", env.ID, env.Size, port.Name())
	return cmn.OK, nil
}

func selectPort(backend string, env cmn.LauncherEnv) (transport.Port, error) {
	switch backend {
	case "loopback", "":
		// The loopback backend requires every unit's goroutine to share
		// one *transport.LoopbackWorld; dart.Init alone (one process per
		// unit, per spec.md's scheduling model) cannot construct that
		// shared value, so production launches use "shm" or "net".
		// Loopback is wired here only for same-process test harnesses
		// that call dart.InitThreadWithPort directly.
		return nil, cmn.NewErrInval("dart.selectPort: loopback requires InitThreadWithPort in-process wiring", nil)
	case "shm":
		return transport.NewShmPort(env.SyncareaID, env.ID, env.Size), nil
	case "net":
		return transport.NewNetPort(env.ID, env.Size), nil
	default:
		return nil, cmn.NewErrInval("dart.selectPort: unknown transport backend "+backend, nil)
	}
}

// InitThreadWithPort is the in-process test entry point: it skips
// launcher-environment discovery and transport selection, wiring a
// caller-supplied transport.Port directly (used by the dart package
// tests, each of which brings up a single unit over a one-rank
// transport.LoopbackWorld; the runtime is a process-wide singleton).
func InitThreadWithPort(ctx context.Context, port transport.Port, myID, size int, level ThreadSupport) (cmn.Code, error) {
	rtMu.Lock()
	defer rtMu.Unlock()

	comm, win, err := port.Bootstrap(ctx, myID, size)
	if err != nil {
		return cmn.ErrOther, cmn.NewErrOther("dart.InitThreadWithPort: transport bootstrap", err)
	}
	members := group.New()
	for i := 0; i < size; i++ {
		members.AddMember(gptr.GlobalUnit(i))
	}
	teams := team.NewRegistry()
	world := teams.Bootstrap(comm, win, members)

	r := &runtime{
		threadSupport: level,
		port:          port,
		teams:         teams,
		world:         world,
		engines:       make(map[gptr.TeamID]*rma.Engine),
		localPool:     mempool.Create(0, localPoolSize),
		localPoolBuf:  make([]byte, localPoolSize),
		types:         dtype.NewRegistry(),
		handles:       handle.NewStore(),
		locks:         make(map[uintptr]interface{}),
		myGlobal:      gptr.GlobalUnit(myID),
	}
	r.engines[gptr.TeamAll] = rma.New(int32(myID), win, world.Segments, r.types, r.handles, teamG2L(world))
	r.initialized = true
	rt = r
	return cmn.OK, nil
}

// teamG2L binds rma.Engine's g2l hook to t's own unit_g2l translation.
func teamG2L(t *team.Team) func(gptr.GlobalUnit) (gptr.TeamUnit, error) {
	return func(g gptr.GlobalUnit) (gptr.TeamUnit, error) { return team.UnitG2L(t, g) }
}

// Initialized implements dart_initialized.
func Initialized() bool {
	rtMu.Lock()
	defer rtMu.Unlock()
	return rt != nil && rt.initialized
}

// Exit implements dart_exit: tears down TEAM_ALL's segment registry,
// the local pool, and the transport port. Teams created by TeamCreate
// and not destroyed with TeamDestroy are not torn down here.
func Exit() (cmn.Code, error) {
	rtMu.Lock()
	defer rtMu.Unlock()
	if rt == nil || !rt.initialized {
		return cmn.ErrNotInit, cmn.NewErrNotInit("dart.Exit")
	}
	rt.world.Segments.Destroy()
	rt.localPool.Destroy()
	if err := rt.port.Shutdown(); err != nil {
		nlog.Warnf("dart.Exit: transport shutdown: %v", err)
	}
	rt.initialized = false
	rt = nil
	return cmn.OK, nil
}

// Abort implements dart_abort: it logs code and ends the process with
// os.Exit(code), and does not return. The transport port is not called:
// no other unit is notified by this call.
func Abort(code int) {
	nlog.Errorf("dart.Abort: code=%d", code)
	os.Exit(code)
}

// MyID implements dart_myid (TEAM_ALL-relative unit id).
func MyID() (gptr.GlobalUnit, error) {
	r, err := current()
	if err != nil {
		return 0, err
	}
	return r.myGlobal, nil
}

// Size implements dart_size (TEAM_ALL size).
func Size() (int, error) {
	r, err := current()
	if err != nil {
		return 0, err
	}
	return r.world.Size(), nil
}
