package segreg

import (
	"sort"
	"sync"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/cmn/nlog"
	"github.com/dash-project/dart-go/internal/transport"
)

// sortedRegistry is the default Registry: a plain slice kept sorted by
// segment ID and binary-searched by ID, grounded on spec.md §4.B's
// "sorted list of segment entries" (the order here is by ID, not by
// first offset).
type sortedRegistry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewSorted creates an empty sorted-list segment registry for one team.
func NewSorted() Registry {
	return &sortedRegistry{}
}

func (r *sortedRegistry) indexOf(id ID) int {
	return sort.Search(len(r.entries), func(i int) bool { return r.entries[i].ID >= id })
}

func (r *sortedRegistry) Add(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.firstOffset = firstOffsetOf(e)
	i := r.indexOf(e.ID)
	if i < len(r.entries) && r.entries[i].ID == e.ID {
		return cmn.NewErrInval("segreg.Add: duplicate segment id", nil)
	}
	r.entries = append(r.entries, Entry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
	return nil
}

func (r *sortedRegistry) Remove(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i >= len(r.entries) || r.entries[i].ID != id {
		return cmn.NewErrNotFound("segreg.Remove", nil)
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return nil
}

func (r *sortedRegistry) Get(id ID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(id)
	if i >= len(r.entries) || r.entries[i].ID != id {
		return Entry{}, false
	}
	return r.entries[i], true
}

func (r *sortedRegistry) LookupWindow(id ID) (transport.Window, error) {
	e, ok := r.Get(id)
	if !ok {
		return nil, cmn.NewErrNotFound("segreg.LookupWindow", nil)
	}
	return e.Win, nil
}

func (r *sortedRegistry) LookupDisp(id ID, localUnit int) (uint64, error) {
	e, ok := r.Get(id)
	if !ok {
		return 0, cmn.NewErrNotFound("segreg.LookupDisp", nil)
	}
	if localUnit < 0 || localUnit >= len(e.Disp) {
		return 0, cmn.NewErrInval("segreg.LookupDisp: unit out of range for this segment", nil)
	}
	return e.Disp[localUnit], nil
}

func (r *sortedRegistry) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) > 0 {
		nlog.Warnf("segreg.Destroy: %d segment(s) still registered at team destroy", len(r.entries))
	}
	r.entries = nil
}
