// Package handle implements the opaque handle store of spec.md §4.H:
// one or more in-flight non-blocking RMA transfers, consumed exactly
// once by wait/wait_local/a successful test[_local]/handle_free.
//
// Grounded on original_source/dart-if/include/dash/dart/if/dart_communication.h
// (dart_handle_t as an opaque pointer, the wait/test/waitall/testall
// family) and on aistore's handle/completion-token style used by its
// xaction framework. Double-free/double-wait rejection is the live-id
// map alone: ids come from a monotonically-incrementing counter that is
// never reused, so "id present in live" is already a first-time-
// consumption proof, with no second membership structure needed.
package handle

import (
	"sync"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/cmn/xatomic"
	"github.com/dash-project/dart-go/internal/segreg"
)

// State is the handle lifecycle of spec.md §4.H.
type State int

const (
	StateInit State = iota
	StatePosted
	StateCompleted
	StateFreed
)

// Completer is satisfied by whatever async primitive produced the
// handle (a channel, a future); PollLocal and PollRemote report whether
// the operation has finished locally and remotely. Backends that complete
// synchronously (the loopback backend: Put/Get already return after the
// transfer lands) use an alreadyDone completer.
type Completer interface {
	// PollLocal reports whether the local buffer is safe to reuse.
	PollLocal() bool
	// PollRemote reports whether the transfer is visible at the target.
	PollRemote() bool
	// Wait blocks until PollRemote would return true.
	Wait()
	// WaitLocal blocks until PollLocal would return true.
	WaitLocal()
}

type alreadyDone struct{}

func (alreadyDone) PollLocal() bool  { return true }
func (alreadyDone) PollRemote() bool { return true }
func (alreadyDone) Wait()            {}
func (alreadyDone) WaitLocal()       {}

// AlreadyDone is the Completer for backends whose Put/Get are
// synchronous, like the loopback transport.
var AlreadyDone Completer = alreadyDone{}

// Handle is one in-flight (or completed) non-blocking request.
type Handle struct {
	id         uint64
	state      State
	localSeg   segreg.ID
	remoteSeg  segreg.ID
	completer  Completer
}

// Store is the process-wide handle table (spec.md §4.H), one per unit.
type Store struct {
	mu   sync.Mutex
	next xatomic.Int64 // allocated outside mu: ids never need to be dense
	live map[uint64]*Handle
}

// NewStore creates an empty handle store.
func NewStore() *Store {
	return &Store{live: make(map[uint64]*Handle)}
}

// Post records a freshly issued non-blocking request and returns its
// handle.
func (s *Store) Post(localSeg, remoteSeg segreg.ID, c Completer) *Handle {
	id := uint64(s.next.Add(1))
	h := &Handle{id: id, state: StatePosted, localSeg: localSeg, remoteSeg: remoteSeg, completer: c}
	s.mu.Lock()
	s.live[h.id] = h
	s.mu.Unlock()
	return h
}

// consume transitions h out of the live table exactly once; a nil
// handle is legal and treated as already complete (spec.md §4.H). Ids
// are never reused, so absence from live is already proof of a prior
// consumption (double wait/free) or an id from a different store.
func (s *Store) consume(h *Handle) error {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[h.id]; !ok {
		return cmn.NewErrInval("handle: already consumed or unknown (double wait/free)", nil)
	}
	delete(s.live, h.id)
	h.state = StateFreed
	return nil
}

// Wait blocks for remote completion, then consumes h (spec.md §4.H).
func (s *Store) Wait(h *Handle) error {
	if h == nil {
		return nil
	}
	h.completer.Wait()
	h.state = StateCompleted
	return s.consume(h)
}

// WaitLocal blocks for local completion only, then consumes h.
func (s *Store) WaitLocal(h *Handle) error {
	if h == nil {
		return nil
	}
	h.completer.WaitLocal()
	h.state = StateCompleted
	return s.consume(h)
}

// Test reports whether h has remotely completed; on success, consumes
// it. On failure (not yet complete), h is left unconsumed.
func (s *Store) Test(h *Handle) (done bool, err error) {
	if h == nil {
		return true, nil
	}
	if !h.completer.PollRemote() {
		return false, nil
	}
	h.state = StateCompleted
	return true, s.consume(h)
}

// TestLocal reports whether h has locally completed; on success,
// consumes it.
func (s *Store) TestLocal(h *Handle) (done bool, err error) {
	if h == nil {
		return true, nil
	}
	if !h.completer.PollLocal() {
		return false, nil
	}
	h.state = StateCompleted
	return true, s.consume(h)
}

// WaitAll blocks for remote completion of every handle in hs, in order.
func (s *Store) WaitAll(hs []*Handle) error {
	for _, h := range hs {
		if err := s.Wait(h); err != nil {
			return err
		}
	}
	return nil
}

// TestAll reports whether every handle in hs has remotely completed;
// iff all have, every handle is consumed. A still-pending handle
// leaves all handles unconsumed (spec.md §4.H).
func (s *Store) TestAll(hs []*Handle) (allDone bool, err error) {
	for _, h := range hs {
		if h == nil {
			continue
		}
		if !h.completer.PollRemote() {
			return false, nil
		}
	}
	for _, h := range hs {
		if err := s.consume(h); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Free abandons h without waiting (handle_free, spec.md §4.H); the
// underlying transfer completes at an unspecified later time.
func (s *Store) Free(h *Handle) error {
	return s.consume(h)
}
