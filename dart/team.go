package dart

import (
	"context"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/rma"
	"github.com/dash-project/dart-go/internal/team"
)

// TeamAll is the predefined team of all units (dart_team_t
// DART_TEAM_ALL, spec.md §3).
const TeamAll = gptr.TeamAll

// TeamCreate implements dart_team_create (spec.md §4.E): collective on
// parent, returns DART_TEAM_NULL with a nil error for callers not
// present in subgroup.
func TeamCreate(ctx context.Context, parent gptr.TeamID, subgroup *Group) (gptr.TeamID, error) {
	r, err := current()
	if err != nil {
		return gptr.TeamNull, err
	}
	parentTeam, err := r.teams.Get(parent)
	if err != nil {
		return gptr.TeamNull, err
	}
	t, err := r.teams.Create(ctx, parentTeam, subgroup.g)
	if err != nil {
		return gptr.TeamNull, err
	}
	if t == nil {
		return gptr.TeamNull, nil
	}
	r.mu.Lock()
	r.engines[t.ID()] = rma.New(int32(r.myGlobal), t.Win, t.Segments, r.types, r.handles, teamG2L(t))
	r.mu.Unlock()
	return t.ID(), nil
}

// TeamDestroy implements dart_team_destroy; TEAM_ALL cannot be
// destroyed.
func TeamDestroy(id gptr.TeamID) error {
	r, err := current()
	if err != nil {
		return err
	}
	if err := r.teams.Destroy(id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.engines, id)
	r.mu.Unlock()
	return nil
}

// TeamMyID implements dart_team_myid: this unit's team-local id within
// id, or ErrInval if it is not a member.
func TeamMyID(id gptr.TeamID) (gptr.TeamUnit, error) {
	r, err := current()
	if err != nil {
		return 0, err
	}
	t, err := r.teams.Get(id)
	if err != nil {
		return 0, err
	}
	return team.UnitG2L(t, r.myGlobal)
}

// TeamSize implements dart_team_size.
func TeamSize(id gptr.TeamID) (int, error) {
	r, err := current()
	if err != nil {
		return 0, err
	}
	t, err := r.teams.Get(id)
	if err != nil {
		return 0, err
	}
	return t.Size(), nil
}

// TeamGetGroup implements dart_team_get_group.
func TeamGetGroup(id gptr.TeamID) (*Group, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	t, err := r.teams.Get(id)
	if err != nil {
		return nil, err
	}
	return &Group{g: t.Group()}, nil
}

// TeamUnitL2G implements dart_team_unit_l2g.
func TeamUnitL2G(id gptr.TeamID, local gptr.TeamUnit) (gptr.GlobalUnit, error) {
	r, err := current()
	if err != nil {
		return 0, err
	}
	t, err := r.teams.Get(id)
	if err != nil {
		return 0, err
	}
	return team.UnitL2G(t, local)
}

// TeamUnitG2L implements dart_team_unit_g2l.
func TeamUnitG2L(id gptr.TeamID, global gptr.GlobalUnit) (gptr.TeamUnit, error) {
	r, err := current()
	if err != nil {
		return 0, err
	}
	t, err := r.teams.Get(id)
	if err != nil {
		return 0, err
	}
	return team.UnitG2L(t, global)
}

func (r *runtime) engineFor(id gptr.TeamID) (*rma.Engine, error) {
	r.mu.Lock()
	e, ok := r.engines[id]
	r.mu.Unlock()
	if !ok {
		return nil, cmn.NewErrInval("dart: no RMA engine for team", nil)
	}
	return e, nil
}
