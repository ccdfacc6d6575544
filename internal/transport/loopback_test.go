package transport

import (
	"context"
	"sync"
	"testing"
)

func bootstrapAll(t *testing.T, n int) ([]Communicator, []Window) {
	t.Helper()
	world := NewLoopbackWorld(n)
	comms := make([]Communicator, n)
	wins := make([]Window, n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, w, err := world.Port(i).Bootstrap(context.Background(), i, n)
			if err != nil {
				t.Errorf("bootstrap rank %d: %v", i, err)
				return
			}
			mu.Lock()
			comms[i], wins[i] = c, w
			mu.Unlock()
		}()
	}
	wg.Wait()
	return comms, wins
}

func TestLoopbackBarrierReleasesAllRanks(t *testing.T) {
	const n = 4
	comms, _ := bootstrapAll(t, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := comms[i].Barrier(context.Background()); err != nil {
				t.Errorf("rank %d barrier: %v", i, err)
			}
		}()
	}
	wg.Wait()
}

func TestLoopbackBroadcastDeliversRootValueToAll(t *testing.T) {
	const n = 3
	comms, _ := bootstrapAll(t, n)
	results := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 4)
			if i == 0 {
				copy(buf, []byte{1, 2, 3, 4})
			}
			if err := comms[i].Broadcast(context.Background(), 0, buf); err != nil {
				t.Errorf("rank %d broadcast: %v", i, err)
				return
			}
			results[i] = buf
		}()
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if results[i][0] != 1 || results[i][3] != 4 {
			t.Fatalf("rank %d did not receive broadcast value: %v", i, results[i])
		}
	}
}

func TestLoopbackSplitScopesCollectivesToMembers(t *testing.T) {
	const n = 4
	comms, _ := bootstrapAll(t, n)
	members := []int{1, 3}

	subs := make(map[int]Communicator)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, i := range members {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := comms[i].Split(context.Background(), 42, members)
			if err != nil {
				t.Errorf("rank %d split: %v", i, err)
				return
			}
			mu.Lock()
			subs[i] = sub
			mu.Unlock()
		}()
	}
	wg.Wait()

	// only the two split members call Barrier; if Split had handed back
	// the unfiltered parent membership this would hang waiting for
	// ranks 0/2, which never call in.
	done := make(chan error, len(members))
	for _, i := range members {
		i := i
		go func() { done <- subs[i].Barrier(context.Background()) }()
	}
	for range members {
		if err := <-done; err != nil {
			t.Fatalf("sub-communicator barrier: %v", err)
		}
	}

	if _, err := comms[0].Split(context.Background(), 42, members); err == nil {
		t.Fatalf("split must reject a caller absent from members")
	}
}

func TestLoopbackSendRecvRoundTrip(t *testing.T) {
	const n = 2
	comms, _ := bootstrapAll(t, n)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := comms[0].Send(context.Background(), 1, 7, []byte("hello")); err != nil {
			t.Errorf("send: %v", err)
		}
	}()
	var got []byte
	go func() {
		defer wg.Done()
		var err error
		got, err = comms[1].Recv(context.Background(), 0, 7)
		if err != nil {
			t.Errorf("recv: %v", err)
		}
	}()
	wg.Wait()
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestLoopbackWindowAttachPutGet(t *testing.T) {
	const n = 2
	_, wins := bootstrapAll(t, n)

	remoteMem := make([]byte, 16)
	disp, err := wins[1].AttachDynamic(remoteMem)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	if err := wins[0].Put(context.Background(), 1, disp, []byte("abcd")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if string(remoteMem[:4]) != "abcd" {
		t.Fatalf("put did not land in target's attached buffer: %q", remoteMem[:4])
	}

	out := make([]byte, 4)
	if err := wins[0].Get(context.Background(), 1, disp, 4, out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(out) != "abcd" {
		t.Fatalf("get returned %q, want %q", out, "abcd")
	}
}

func TestLoopbackAccumulateSum(t *testing.T) {
	const n = 2
	_, wins := bootstrapAll(t, n)

	remoteMem := make([]byte, 8)
	storeUint(remoteMem, 10)
	disp, err := wins[1].AttachDynamic(remoteMem)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	add := make([]byte, 8)
	storeUint(add, 5)
	if err := wins[0].Accumulate(context.Background(), 1, disp, add, 8, OpSum); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	if loadUint(remoteMem) != 15 {
		t.Fatalf("expected accumulated sum 15, got %d", loadUint(remoteMem))
	}
}

func TestLoopbackCompareAndSwap(t *testing.T) {
	const n = 2
	_, wins := bootstrapAll(t, n)

	remoteMem := make([]byte, 8)
	storeUint(remoteMem, 42)
	disp, err := wins[1].AttachDynamic(remoteMem)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	value := make([]byte, 8)
	storeUint(value, 99)
	compare := make([]byte, 8)
	storeUint(compare, 42)
	result := make([]byte, 8)

	if err := wins[0].CompareAndSwap(context.Background(), 1, disp, value, compare, result, 8); err != nil {
		t.Fatalf("cas: %v", err)
	}
	if loadUint(result) != 42 {
		t.Fatalf("cas result should be the pre-swap value 42, got %d", loadUint(result))
	}
	if loadUint(remoteMem) != 99 {
		t.Fatalf("cas should have swapped in 99, got %d", loadUint(remoteMem))
	}
}

func TestLoopbackAllocateShared(t *testing.T) {
	const n = 3
	_, wins := bootstrapAll(t, n)
	bases := make([][][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := wins[i].AllocateShared(context.Background(), 8)
			if err != nil {
				t.Errorf("rank %d allocate shared: %v", i, err)
				return
			}
			bases[i] = b
		}()
	}
	wg.Wait()
	bases[0][1][0] = 0xAB
	if bases[1][1][0] != 0xAB {
		t.Fatalf("shared allocation must alias the same backing memory across ranks")
	}
}
