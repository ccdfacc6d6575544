package team

import (
	"context"
	"sync"
	"testing"

	"github.com/dash-project/dart-go/internal/group"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/transport"
)

func bootstrapWorld(t *testing.T, n int) (*Registry, []*Team) {
	t.Helper()
	world := transport.NewLoopbackWorld(n)
	all := group.New()
	for i := 0; i < n; i++ {
		all.AddMember(gptr.GlobalUnit(i))
	}
	registries := make([]*Registry, n)
	teams := make([]*Team, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			comm, win, err := world.Port(i).Bootstrap(context.Background(), i, n)
			if err != nil {
				t.Errorf("bootstrap %d: %v", i, err)
				return
			}
			r := NewRegistry()
			teams[i] = r.Bootstrap(comm, win, all.Copy())
			registries[i] = r
		}()
	}
	wg.Wait()
	return registries[0], teams
}

func TestUnitL2GAndG2LRoundTrip(t *testing.T) {
	_, teams := bootstrapWorld(t, 4)
	for local := 0; local < 4; local++ {
		g, err := UnitL2G(teams[0], gptr.TeamUnit(local))
		if err != nil {
			t.Fatalf("UnitL2G(%d): %v", local, err)
		}
		back, err := UnitG2L(teams[0], g)
		if err != nil || int(back) != local {
			t.Fatalf("UnitG2L(UnitL2G(%d)) = %d, %v; want %d, nil", local, back, err, local)
		}
	}
}

func TestCreateAssignsSameIDToEveryMember(t *testing.T) {
	const n = 4
	_, teams := bootstrapWorld(t, n)
	sub := group.New()
	sub.AddMember(0)
	sub.AddMember(2)

	newTeams := make([]*Team, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := NewRegistry()
			r.teams = map[gptr.TeamID]*Team{gptr.TeamAll: teams[i]}
			nt, err := r.Create(context.Background(), teams[i], sub)
			if err != nil {
				t.Errorf("rank %d create: %v", i, err)
				return
			}
			newTeams[i] = nt
		}()
	}
	wg.Wait()

	if newTeams[0] == nil || newTeams[2] == nil {
		t.Fatalf("subgroup members must receive a non-nil team")
	}
	if newTeams[1] != nil || newTeams[3] != nil {
		t.Fatalf("non-members must receive a nil team")
	}
	if newTeams[0].ID() != newTeams[2].ID() {
		t.Fatalf("every member must receive the same new team id: %d vs %d", newTeams[0].ID(), newTeams[2].ID())
	}
	if newTeams[0].ID() == gptr.TeamAll {
		t.Fatalf("new team id must differ from TEAM_ALL")
	}
}

// TestSubTeamCollectiveExcludesNonMembers exercises a real collective
// (Barrier/Broadcast) on the communicator Create hands back, with only
// the subgroup's members calling in — confirming the sub-team's
// communicator is scoped to exactly those members rather than still
// expecting the whole parent world to show up.
func TestSubTeamCollectiveExcludesNonMembers(t *testing.T) {
	const n = 4
	_, teams := bootstrapWorld(t, n)
	sub := group.New()
	sub.AddMember(0)
	sub.AddMember(2)
	members := []int{0, 2}

	newTeams := make([]*Team, n)
	var wg sync.WaitGroup
	for _, i := range members {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := NewRegistry()
			r.teams = map[gptr.TeamID]*Team{gptr.TeamAll: teams[i]}
			nt, err := r.Create(context.Background(), teams[i], sub)
			if err != nil {
				t.Errorf("rank %d create: %v", i, err)
				return
			}
			newTeams[i] = nt
		}()
	}
	wg.Wait()

	done := make(chan error, len(members))
	for _, i := range members {
		i := i
		go func() {
			buf := make([]byte, 4)
			if newTeams[i].Comm.Rank() == 0 {
				copy(buf, []byte{7, 7, 7, 7})
			}
			done <- newTeams[i].Comm.Broadcast(context.Background(), 0, buf)
		}()
	}
	for range members {
		if err := <-done; err != nil {
			t.Fatalf("sub-team broadcast: %v", err)
		}
	}
}

func TestDestroyRejectsTeamAll(t *testing.T) {
	_, teams := bootstrapWorld(t, 2)
	r := NewRegistry()
	r.teams = map[gptr.TeamID]*Team{gptr.TeamAll: teams[0]}
	if err := r.Destroy(gptr.TeamAll); err == nil {
		t.Fatalf("destroying TEAM_ALL must be rejected")
	}
}
