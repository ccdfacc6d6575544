// Package team implements the team registry of spec.md §4.E: team
// creation is collective on the parent team, allocating a new team id as
// max(next_free_team_id)+1 over the parent to satisfy §3's uniqueness
// invariant ("for every unit u member of T1 and T2, id(T1) != id(T2)").
// Grounded on original_source/dart-if/include/dash/dart/if/dart_team_group.h
// (dart_team_create/_destroy, unit_l2g/_g2l prototypes) and, for the
// process-wide registry-of-teams shape, on aistore's cluster/map-style
// singleton tables guarded by a single mutex.
package team

import (
	"context"
	"sync"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/cmn/nlog"
	"github.com/dash-project/dart-go/internal/group"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/segreg"
	"github.com/dash-project/dart-go/internal/transport"
)

// Team is one team registry slot: a group, a communicator/window pair,
// an optional intra-node sub-context, a segment registry and a
// team-local next-free segment id (spec.md §3 "Team").
type Team struct {
	id    gptr.TeamID
	group *group.Group

	Comm transport.Communicator
	Win  transport.Window

	// NodeComm/NodeWin are the intra-node sub-context (SplitShared),
	// nil until first queried.
	NodeComm transport.Communicator
	NodeWin  transport.Window

	Segments segreg.Registry

	mu            sync.Mutex
	nextFreeSeg   segreg.ID
	nextFreeTeam  gptr.TeamID
}

func (t *Team) ID() gptr.TeamID    { return t.id }
func (t *Team) Group() *group.Group { return t.group.Copy() }
func (t *Team) Size() int          { return t.group.Size() }

// NextFreeSegment returns and reserves this team's next segment id.
func (t *Team) NextFreeSegment() segreg.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextFreeSeg++
	return t.nextFreeSeg
}

// Registry is the process-wide table of live teams (spec.md §4.E):
// a process-wide singleton, not thread-safe beyond init/finalize and
// team/segment lifecycle operations, per spec.md's concurrency model
// (§"Team registry and segment registry: process-wide singletons").
type Registry struct {
	mu    sync.Mutex
	teams map[gptr.TeamID]*Team
}

// NewRegistry creates an empty team registry; the caller installs
// TEAM_ALL separately via Bootstrap.
func NewRegistry() *Registry {
	return &Registry{teams: make(map[gptr.TeamID]*Team)}
}

// Bootstrap installs TEAM_ALL from the world communicator/window
// produced by a transport.Port at dart.Init time.
func (r *Registry) Bootstrap(comm transport.Communicator, win transport.Window, members *group.Group) *Team {
	t := &Team{
		id:           gptr.TeamAll,
		group:        members,
		Comm:         comm,
		Win:          win,
		Segments:     segreg.NewSorted(),
		nextFreeTeam: gptr.TeamAll,
	}
	r.mu.Lock()
	r.teams[gptr.TeamAll] = t
	r.mu.Unlock()
	return t
}

func (r *Registry) Get(id gptr.TeamID) (*Team, error) {
	if id == gptr.TeamNull {
		return nil, cmn.NewErrInval("team.Get: TEAM_NULL", nil)
	}
	r.mu.Lock()
	t, ok := r.teams[id]
	r.mu.Unlock()
	if !ok {
		return nil, cmn.NewErrInval("team.Get: unknown team id", nil)
	}
	return t, nil
}

// Create is collective on parent: every caller must pass an equivalent
// subgroup specification (members in identical order, spec.md §4.E).
// Non-members of subgroup get back a nil team and no error, matching
// "non-members may receive the NULL team."
func (r *Registry) Create(ctx context.Context, parent *Team, subgroup *group.Group) (*Team, error) {
	myGlobal := r.myGlobalUnit(parent)
	isMember := subgroup.IsMember(myGlobal)

	// newID is a max(next_free)+1 reduction over *every* parent member,
	// so it is already agreed identically by subgroup members and
	// non-members alike before anyone touches the communicator — the
	// natural collectively-pre-agreed key for splitting the parent's
	// communicator down to exactly subgroup's members.
	newID, err := r.allocateTeamID(ctx, parent)
	if err != nil {
		return nil, cmn.NewErrOther("team.Create", err)
	}
	if !isMember {
		return nil, nil
	}

	members := make([]int, 0, len(subgroup.Members()))
	for _, g := range subgroup.Members() {
		members = append(members, int(g))
	}
	subComm, err := parent.Comm.Split(ctx, int64(newID), members)
	if err != nil {
		return nil, cmn.NewErrOther("team.Create: communicator split", err)
	}
	subWin := parent.Win.WithComm(subComm)

	t := &Team{
		id:           newID,
		group:        subgroup.Copy(),
		Comm:         subComm,
		Win:          subWin,
		Segments:     segreg.NewSorted(),
		nextFreeTeam: newID,
	}
	r.mu.Lock()
	r.teams[newID] = t
	r.mu.Unlock()
	return t, nil
}

// Destroy destroys the team's segment registry and frees its registry
// slot (spec.md §4.E). The team's communicator and window are not torn
// down: transport.Communicator and transport.Window have no close call.
func (r *Registry) Destroy(id gptr.TeamID) error {
	if id == gptr.TeamAll {
		return cmn.NewErrInval("team.Destroy: TEAM_ALL cannot be destroyed", nil)
	}
	r.mu.Lock()
	t, ok := r.teams[id]
	if ok {
		delete(r.teams, id)
	}
	r.mu.Unlock()
	if !ok {
		return cmn.NewErrInval("team.Destroy: unknown team id", nil)
	}
	t.Segments.Destroy()
	nlog.Debugf("team.Destroy: team %d torn down", id)
	return nil
}

// UnitL2G translates a team-local unit id to its global id.
func UnitL2G(t *Team, local gptr.TeamUnit) (gptr.GlobalUnit, error) {
	members := t.group.Members()
	if int(local) < 0 || int(local) >= len(members) {
		return 0, cmn.NewErrInval("team.UnitL2G: local id out of range", nil)
	}
	return members[local], nil
}

// UnitG2L translates a global unit id to its team-local id.
func UnitG2L(t *Team, global gptr.GlobalUnit) (gptr.TeamUnit, error) {
	members := t.group.Members()
	for i, m := range members {
		if m == global {
			return gptr.TeamUnit(i), nil
		}
	}
	return 0, cmn.NewErrInval("team.UnitG2L: not a member of this team", nil)
}

func (r *Registry) myGlobalUnit(parent *Team) gptr.GlobalUnit {
	local := gptr.TeamUnit(parent.Comm.Rank())
	g, _ := UnitL2G(parent, local)
	return g
}

// allocateTeamID implements the max(next_free_team_id)+1 reduction over
// the parent team (spec.md §4.E), via an allreduce-by-broadcast: every
// rank proposes its own max, rank 0 reduces and broadcasts the result.
// This is a plain two-phase "gather to root, then broadcast" rather than
// a tree reduction since it is only on the team-creation slow path.
func (r *Registry) allocateTeamID(ctx context.Context, parent *Team) (gptr.TeamID, error) {
	comm := parent.Comm
	rank := comm.Rank()

	parent.mu.Lock()
	mine := parent.nextFreeTeam
	parent.mu.Unlock()

	buf := make([]byte, 2)
	var maxID gptr.TeamID
	if rank == 0 {
		maxID = mine
		for src := 1; src < comm.Size(); src++ {
			if err := comm.Send(ctx, src, tagTeamIDRequest, nil); err != nil {
				return 0, err
			}
			resp, err := comm.Recv(ctx, src, tagTeamIDResponse)
			if err != nil {
				return 0, err
			}
			id := gptr.TeamID(uint16(resp[0]) | uint16(resp[1])<<8)
			if id > maxID {
				maxID = id
			}
		}
		maxID++
		buf[0] = byte(maxID)
		buf[1] = byte(uint16(maxID) >> 8)
	} else {
		if _, err := comm.Recv(ctx, 0, tagTeamIDRequest); err != nil {
			return 0, err
		}
		resp := []byte{byte(mine), byte(uint16(mine) >> 8)}
		if err := comm.Send(ctx, 0, tagTeamIDResponse, resp); err != nil {
			return 0, err
		}
	}
	if err := comm.Broadcast(ctx, 0, buf); err != nil {
		return 0, err
	}
	newID := gptr.TeamID(uint16(buf[0]) | uint16(buf[1])<<8)

	parent.mu.Lock()
	if newID > parent.nextFreeTeam {
		parent.nextFreeTeam = newID
	}
	parent.mu.Unlock()
	return newID, nil
}

const (
	tagTeamIDRequest = 0xDA01
	tagTeamIDResponse = 0xDA02
)
