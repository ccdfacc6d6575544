package collective

import (
	"context"
	"sync"
	"testing"

	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/transport"
)

func bootstrapComms(t *testing.T, n int) []transport.Communicator {
	t.Helper()
	world := transport.NewLoopbackWorld(n)
	comms := make([]transport.Communicator, n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _, err := world.Port(i).Bootstrap(context.Background(), i, n)
			if err != nil {
				t.Errorf("bootstrap %d: %v", i, err)
				return
			}
			mu.Lock()
			comms[i] = c
			mu.Unlock()
		}()
	}
	wg.Wait()
	return comms
}

func TestAllgatherCollectsEveryContribution(t *testing.T) {
	const n = 4
	comms := bootstrapComms(t, n)
	recv := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			send := []byte{byte(i)}
			out := make([]byte, n)
			if err := Allgather(context.Background(), comms[i], send, out); err != nil {
				t.Errorf("rank %d allgather: %v", i, err)
				return
			}
			recv[i] = out
		}()
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if recv[i][j] != byte(j) {
				t.Fatalf("rank %d's allgather result[%d] = %d, want %d", i, j, recv[i][j], j)
			}
		}
	}
}

func TestAllreduceSum(t *testing.T) {
	const n = 4
	comms := bootstrapComms(t, n)
	results := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			send := make([]byte, 8)
			storeLE(send, uint64(i+1))
			recv := make([]byte, 8)
			if err := Allreduce(context.Background(), comms[i], send, recv, 8, transport.OpSum, dtype.Long); err != nil {
				t.Errorf("rank %d allreduce: %v", i, err)
				return
			}
			results[i] = loadLE(recv)
		}()
	}
	wg.Wait()
	want := uint64(1 + 2 + 3 + 4)
	for i, got := range results {
		if got != want {
			t.Fatalf("rank %d allreduce sum = %d, want %d", i, got, want)
		}
	}
}

func TestScatterGatherRoundTrip(t *testing.T) {
	const n = 3
	comms := bootstrapComms(t, n)
	recv := make([]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			var send []byte
			if i == 0 {
				send = []byte{10, 20, 30}
			}
			out := make([]byte, 1)
			if err := Scatter(context.Background(), comms[i], 0, send, out); err != nil {
				t.Errorf("rank %d scatter: %v", i, err)
				return
			}
			gathered := make([]byte, n)
			if err := Gather(context.Background(), comms[i], 0, out, gathered); err != nil {
				t.Errorf("rank %d gather: %v", i, err)
				return
			}
			if i == 0 {
				copy(recv, gathered)
			}
		}()
	}
	wg.Wait()
	if recv[0] != 10 || recv[1] != 20 || recv[2] != 30 {
		t.Fatalf("scatter-then-gather round trip mismatch: %v", recv)
	}
}
