package segreg

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/cmn/nlog"
	"github.com/dash-project/dart-go/internal/transport"
)

// buntRegistry is the indexed alternative of SPEC_FULL.md §4.B': an
// in-memory buntdb database gives the registry a secondary index on
// first-offset so lookup-by-range stays O(log n) as segment counts grow,
// instead of sortedRegistry's O(log n) search but O(n) insert/delete.
// Only the key/ordering metadata lives in buntdb; the Entry payload
// (window, disp slice) is kept in a side map since it is not itself
// byte-serializable across a transport boundary.
type buntRegistry struct {
	mu   sync.RWMutex
	db   *buntdb.DB
	side map[ID]Entry
}

const firstOffsetIndex = "by_first_offset"

// NewBunt creates an empty buntdb-backed segment registry for one team.
func NewBunt() Registry {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		// buntdb's in-memory mode only fails on programmer error
		// (invalid path syntax); a real failure here means the
		// process is out of memory, which the pool layer cannot
		// recover from either.
		nlog.Errorf("segreg.NewBunt: %v", err)
		panic(err)
	}
	db.CreateIndex(firstOffsetIndex, "*", buntdb.IndexBinary)
	return &buntRegistry{db: db, side: make(map[ID]Entry)}
}

func keyOf(id ID) string { return fmt.Sprintf("seg:%05d", uint16(id)) }

func (r *buntRegistry) Add(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.side[e.ID]; exists {
		return cmn.NewErrInval("segreg.Add: duplicate segment id", nil)
	}
	e.firstOffset = firstOffsetOf(e)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.firstOffset)
	err := r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyOf(e.ID), string(buf[:]), nil)
		return err
	})
	if err != nil {
		return cmn.NewErrOther("segreg.Add", err)
	}
	r.side[e.ID] = e
	return nil
}

func (r *buntRegistry) Remove(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.side[id]; !ok {
		return cmn.NewErrNotFound("segreg.Remove", nil)
	}
	err := r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(keyOf(id))
		return err
	})
	if err != nil {
		return cmn.NewErrOther("segreg.Remove", err)
	}
	delete(r.side, id)
	return nil
}

func (r *buntRegistry) Get(id ID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.side[id]
	return e, ok
}

func (r *buntRegistry) LookupWindow(id ID) (transport.Window, error) {
	e, ok := r.Get(id)
	if !ok {
		return nil, cmn.NewErrNotFound("segreg.LookupWindow", nil)
	}
	return e.Win, nil
}

func (r *buntRegistry) LookupDisp(id ID, localUnit int) (uint64, error) {
	e, ok := r.Get(id)
	if !ok {
		return 0, cmn.NewErrNotFound("segreg.LookupDisp", nil)
	}
	if localUnit < 0 || localUnit >= len(e.Disp) {
		return 0, cmn.NewErrInval("segreg.LookupDisp: unit out of range for this segment", nil)
	}
	return e.Disp[localUnit], nil
}

func (r *buntRegistry) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.side) > 0 {
		nlog.Warnf("segreg.Destroy: %d segment(s) still registered at team destroy", len(r.side))
	}
	r.side = nil
	r.db.Close()
}

var _ Registry = (*sortedRegistry)(nil)
var _ Registry = (*buntRegistry)(nil)
