package dart

import (
	"context"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/internal/collective"
	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/gptr"
	"github.com/dash-project/dart-go/internal/segreg"
	"github.com/dash-project/dart-go/internal/team"
)

// Memalloc implements dart_memalloc: a non-collective allocation out of
// this unit's local pool (segment 0, spec.md §4.A).
func Memalloc(nbytes uint64) (gptr.GPtr, error) {
	r, err := current()
	if err != nil {
		return gptr.Null, err
	}
	off, ok := r.localPool.Alloc(nbytes)
	if !ok {
		return gptr.Null, cmn.NewErrOther("dart.Memalloc: local pool exhausted", nil)
	}
	return gptr.New(r.myGlobal, TeamAll, gptr.SegmentLocal, off), nil
}

// Memfree implements dart_memfree.
func Memfree(g gptr.GPtr) error {
	r, err := current()
	if err != nil {
		return err
	}
	if !r.localPool.Free(g.Offset()) {
		return cmn.NewErrInval("dart.Memfree: not the base of a live local allocation", nil)
	}
	return nil
}

func loadLE64(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func storeLE64(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}

// gatherDisps collectively exchanges every member's just-attached
// displacement into a team-wide array, giving every caller the same
// syntactic gptr for the new segment (spec.md §8's team-aligned
// invariant).
func gatherDisps(ctx context.Context, t *team.Team, myDisp uint64) ([]uint64, error) {
	mine := make([]byte, 8)
	storeLE64(mine, myDisp)
	all := make([]byte, t.Size()*8)
	if err := collective.Allgather(ctx, t.Comm, mine, all); err != nil {
		return nil, err
	}
	disps := make([]uint64, t.Size())
	for i := range disps {
		disps[i] = loadLE64(all[i*8 : i*8+8])
	}
	return disps, nil
}

// teamMemAttach is the common core of team_memalloc_aligned and
// team_memregister[_aligned]: attach buf for remote addressing, gather
// every unit's displacement, and install one segment-registry entry
// visible identically to every member.
func teamMemAttach(ctx context.Context, teamID gptr.TeamID, buf []byte) (gptr.GPtr, error) {
	r, err := current()
	if err != nil {
		return gptr.Null, err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return gptr.Null, err
	}
	disp, err := t.Win.AttachDynamic(buf)
	if err != nil {
		return gptr.Null, cmn.NewErrOther("dart.teamMemAttach: attach", err)
	}
	disps, err := gatherDisps(ctx, t, disp)
	if err != nil {
		return gptr.Null, err
	}
	segID := t.NextFreeSegment()
	entry := segreg.Entry{
		ID:         segID,
		NBytesUnit: uint64(len(buf)),
		Type:       dtype.Byte,
		Flags:      uint16(gptr.FlagCollective),
		Win:        t.Win,
		Disp:       disps,
	}
	if err := t.Segments.Add(entry); err != nil {
		return gptr.Null, err
	}
	return gptr.New(r.myGlobal, teamID, gptr.SegmentID(segID), 0).SetFlags(gptr.FlagCollective), nil
}

// TeamMemallocAligned implements dart_team_memalloc_aligned: every
// member allocates the same nbytesUnit out of a freshly attached
// buffer (spec.md §4.A, §8's team-aligned invariant).
func TeamMemallocAligned(ctx context.Context, teamID gptr.TeamID, nbytesUnit uint64) (gptr.GPtr, error) {
	return teamMemAttach(ctx, teamID, make([]byte, nbytesUnit))
}

// TeamMemregisterAligned implements dart_team_memregister_aligned:
// registers a caller-owned buffer of identical size on every unit.
func TeamMemregisterAligned(ctx context.Context, teamID gptr.TeamID, buf []byte) (gptr.GPtr, error) {
	return teamMemAttach(ctx, teamID, buf)
}

// TeamMemregister implements dart_team_memregister: the non-aligned
// variant, registering a caller-owned buffer whose size may differ
// across units. NBytesUnit in the installed entry reflects only this
// unit's own buffer; remote units resolve disp[u] without relying on a
// team-wide uniform length.
func TeamMemregister(ctx context.Context, teamID gptr.TeamID, buf []byte) (gptr.GPtr, error) {
	return teamMemAttach(ctx, teamID, buf)
}

// teamMemDetach is the common core of team_memfree and
// team_memderegister: detach this unit's own attachment and delist the
// segment everywhere. Underlying memory is never touched — only the
// window's remote-addressability registration and the segment-registry
// entry are torn down.
func teamMemDetach(g gptr.GPtr) error {
	r, err := current()
	if err != nil {
		return err
	}
	t, err := r.teams.Get(g.TeamID())
	if err != nil {
		return err
	}
	entry, ok := t.Segments.Get(segreg.ID(g.Segment()))
	if !ok {
		return cmn.NewErrNotFound("dart: unknown segment", nil)
	}
	local, err := team.UnitG2L(t, r.myGlobal)
	if err != nil {
		return err
	}
	if int(local) >= len(entry.Disp) {
		return cmn.NewErrInval("dart: caller is not a member of this team", nil)
	}
	if err := t.Win.DetachDynamic(entry.Disp[local]); err != nil {
		return err
	}
	return t.Segments.Remove(segreg.ID(g.Segment()))
}

// TeamMemfree implements dart_team_memfree.
func TeamMemfree(g gptr.GPtr) error { return teamMemDetach(g) }

// TeamMemderegister implements dart_team_memderegister.
func TeamMemderegister(g gptr.GPtr) error { return teamMemDetach(g) }

// GetAddr implements dart_gptr_getaddr (spec.md §4.C): returns a
// non-null local slice only when g addresses the calling unit and
// either (a) segment is the local non-collective pool, or (b) the
// containing team's window can resolve the caller's own displacement.
// Otherwise it returns (nil, nil) — "returns NULL successfully", not an
// error.
func GetAddr(g gptr.GPtr) ([]byte, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	if g.Unit() != r.myGlobal {
		return nil, nil
	}
	if g.Segment() == gptr.SegmentLocal {
		n, ok := r.localPool.Size(g.Offset())
		if !ok {
			return nil, nil
		}
		return r.localPoolBuf[g.Offset() : g.Offset()+n], nil
	}
	t, err := r.teams.Get(g.TeamID())
	if err != nil {
		return nil, nil
	}
	entry, ok := t.Segments.Get(segreg.ID(g.Segment()))
	if !ok {
		return nil, nil
	}
	local, err := team.UnitG2L(t, r.myGlobal)
	if err != nil || int(local) >= len(entry.Disp) {
		return nil, nil
	}
	buf := make([]byte, entry.NBytesUnit)
	if err := t.Win.Get(context.Background(), int(local), entry.Disp[local], len(buf), buf); err != nil {
		return nil, nil
	}
	return buf, nil
}

// SetAddr implements dart_gptr_setaddr: rewrites the raw offset/address
// field directly (spec.md §4.C).
func SetAddr(g gptr.GPtr, addr uint64) gptr.GPtr {
	return g.IncAddr(int64(addr) - int64(g.Offset()))
}

// IncAddr implements dart_gptr_incaddr.
func IncAddr(g gptr.GPtr, delta int64) gptr.GPtr { return g.IncAddr(delta) }

// SetUnit implements dart_gptr_setunit.
func SetUnit(g gptr.GPtr, u gptr.GlobalUnit) gptr.GPtr { return g.SetUnit(u) }

// GetFlags implements dart_gptr_getflags.
func GetFlags(g gptr.GPtr) gptr.Flags { return g.GetFlags() }

// SetFlags implements dart_gptr_setflags.
func SetFlags(g gptr.GPtr, f gptr.Flags) gptr.GPtr { return g.SetFlags(f) }
