package handle

import "testing"

func TestWaitConsumesHandleExactlyOnce(t *testing.T) {
	s := NewStore()
	h := s.Post(0, 1, AlreadyDone)
	if err := s.Wait(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Wait(h); err == nil {
		t.Fatalf("waiting on an already-consumed handle must fail")
	}
}

func TestNilHandleIsAlreadyComplete(t *testing.T) {
	s := NewStore()
	if err := s.Wait(nil); err != nil {
		t.Fatalf("waiting on a nil handle must succeed: %v", err)
	}
	if err := s.Free(nil); err != nil {
		t.Fatalf("freeing a nil handle must succeed: %v", err)
	}
}

type gatedCompleter struct {
	remote, local bool
}

func (g *gatedCompleter) PollLocal() bool  { return g.local }
func (g *gatedCompleter) PollRemote() bool { return g.remote }
func (g *gatedCompleter) Wait()            {}
func (g *gatedCompleter) WaitLocal()       {}

func TestTestLeavesUnconsumedHandlesUntouchedUntilAllDone(t *testing.T) {
	s := NewStore()
	c1 := &gatedCompleter{remote: true}
	c2 := &gatedCompleter{remote: false}
	h1 := s.Post(0, 1, c1)
	h2 := s.Post(0, 2, c2)

	done, err := s.TestAll([]*Handle{h1, h2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done {
		t.Fatalf("testall must report false while any handle is pending")
	}
	if _, err := s.Test(h1); err != nil {
		t.Fatalf("individually-complete handle must still be testable: %v", err)
	}

	c2.remote = true
	done, err = s.TestAll([]*Handle{h2})
	if err != nil || !done {
		t.Fatalf("testall should succeed once remaining handle completes: done=%v err=%v", done, err)
	}
}

func TestFreeAbandonsWithoutWaiting(t *testing.T) {
	s := NewStore()
	h := s.Post(0, 1, &gatedCompleter{remote: false})
	if err := s.Free(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Free(h); err == nil {
		t.Fatalf("double-free must be rejected")
	}
}
