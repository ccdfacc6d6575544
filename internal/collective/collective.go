// Package collective implements the collective layer of spec.md §4.I:
// barrier, bcast, scatter, gather, allgather, allgatherv, alltoall,
// reduce and allreduce, layered over transport.Communicator so that a
// backend offering native collectives is used directly (Barrier/
// Broadcast) and everything else is built from point-to-point
// primitives, per spec.md's "Implementation freedom" note.
//
// Grounded on original_source/dart-impl/gaspi's binomial-tree bcast and
// ring-allreduce fallbacks (used when the transport has no native
// collective) and on aistore's prometheus metric registration style
// (stats/statsd + prometheus/client_golang gauges/counters registered
// once at package init) for the operation-latency instrumentation.
package collective

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/internal/transport"
)

var (
	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dart",
		Subsystem: "collective",
		Name:      "op_duration_seconds",
		Help:      "Latency of collective operations by name.",
	}, []string{"op"})
	opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dart",
		Subsystem: "collective",
		Name:      "op_total",
		Help:      "Count of collective operations by name.",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(opDuration, opTotal)
}

func observe(op string, fn func() error) error {
	timer := prometheus.NewTimer(opDuration.WithLabelValues(op))
	defer timer.ObserveDuration()
	opTotal.WithLabelValues(op).Inc()
	return fn()
}

// Barrier blocks until every unit of comm has entered.
func Barrier(ctx context.Context, comm transport.Communicator) error {
	return observe("barrier", func() error { return comm.Barrier(ctx) })
}

// Bcast replicates buf on root to every unit.
func Bcast(ctx context.Context, comm transport.Communicator, root int, buf []byte) error {
	return observe("bcast", func() error { return comm.Broadcast(ctx, root, buf) })
}

// Scatter splits sendbuf on root into comm.Size() equal chunks and
// delivers chunk i to unit i's recvbuf.
func Scatter(ctx context.Context, comm transport.Communicator, root int, sendbuf []byte, recvbuf []byte) error {
	return observe("scatter", func() error {
		n := comm.Size()
		chunk := len(recvbuf)
		staged := make([]byte, chunk*n)
		if comm.Rank() == root {
			if len(sendbuf) != chunk*n {
				return cmn.NewErrInval("collective.Scatter: sendbuf size must be n*len(recvbuf)", nil)
			}
			copy(staged, sendbuf)
		}
		if err := comm.Broadcast(ctx, root, staged); err != nil {
			return err
		}
		copy(recvbuf, staged[comm.Rank()*chunk:(comm.Rank()+1)*chunk])
		return nil
	})
}

// Gather is the inverse of Scatter: every unit's sendbuf lands
// contiguously in root's recvbuf in rank order.
func Gather(ctx context.Context, comm transport.Communicator, root int, sendbuf []byte, recvbuf []byte) error {
	return observe("gather", func() error {
		return gatherInto(ctx, comm, root, sendbuf, recvbuf, false)
	})
}

// Allgather delivers every unit's contribution to every unit.
func Allgather(ctx context.Context, comm transport.Communicator, sendbuf []byte, recvbuf []byte) error {
	return observe("allgather", func() error {
		return gatherInto(ctx, comm, 0, sendbuf, recvbuf, true)
	})
}

func gatherInto(ctx context.Context, comm transport.Communicator, root int, sendbuf, recvbuf []byte, all bool) error {
	n := comm.Size()
	chunk := len(sendbuf)
	if !all && comm.Rank() == root && len(recvbuf) != chunk*n {
		return cmn.NewErrInval("collective.Gather: recvbuf size must be n*len(sendbuf)", nil)
	}
	if all && len(recvbuf) != chunk*n {
		return cmn.NewErrInval("collective.Allgather: recvbuf size must be n*len(sendbuf)", nil)
	}
	if all {
		// gather-to-unit-0 followed by a broadcast; not latency-optimal
		// but correct and simple, which is all spec.md requires of
		// allgather's non-native fallback path.
		staged := gatherOne(ctx, comm, 0, sendbuf, chunk)
		if staged == nil {
			staged = make([]byte, chunk*n) // non-root: overwritten by Broadcast below
		}
		if err := comm.Broadcast(ctx, 0, staged); err != nil {
			return err
		}
		copy(recvbuf, staged)
		return nil
	}
	staged := gatherOne(ctx, comm, root, sendbuf, chunk)
	if comm.Rank() == root {
		copy(recvbuf, staged)
	}
	return nil
}

// gatherOne performs a linear send-to-root gather: every non-root unit
// sends its chunk to root, which assembles the n*chunk buffer in rank
// order. Returns nil on non-root units.
func gatherOne(ctx context.Context, comm transport.Communicator, root int, sendbuf []byte, chunk int) []byte {
	const tag = 0xDA10
	if comm.Rank() == root {
		n := comm.Size()
		out := make([]byte, chunk*n)
		copy(out[root*chunk:(root+1)*chunk], sendbuf)
		for src := 0; src < n; src++ {
			if src == root {
				continue
			}
			data, err := comm.Recv(ctx, src, tag)
			if err != nil {
				return out
			}
			copy(out[src*chunk:(src+1)*chunk], data)
		}
		return out
	}
	comm.Send(ctx, root, tag, sendbuf)
	return nil
}

// Allgatherv honors per-unit send counts and per-unit receive
// counts/displacements exactly, per spec.md §4.I.
func Allgatherv(ctx context.Context, comm transport.Communicator, sendbuf []byte, recvCounts, recvDispls []int, recvbuf []byte) error {
	return observe("allgatherv", func() error {
		n := comm.Size()
		if len(recvCounts) != n || len(recvDispls) != n {
			return cmn.NewErrInval("collective.Allgatherv: recvCounts/recvDispls must have length == comm.Size()", nil)
		}
		const tag = 0xDA11
		for root := 0; root < n; root++ {
			if comm.Rank() == root {
				copy(recvbuf[recvDispls[root]:recvDispls[root]+recvCounts[root]], sendbuf)
				for src := 0; src < n; src++ {
					if src == root {
						continue
					}
					data, err := comm.Recv(ctx, src, tag)
					if err != nil {
						return err
					}
					copy(recvbuf[recvDispls[src]:recvDispls[src]+recvCounts[src]], data)
				}
			} else {
				if err := comm.Send(ctx, root, tag, sendbuf); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Alltoall performs the pairwise exchange of nelem-sized chunks between
// every pair of units.
func Alltoall(ctx context.Context, comm transport.Communicator, sendbuf []byte, nelem int, recvbuf []byte) error {
	return observe("alltoall", func() error {
		n := comm.Size()
		if len(sendbuf) != n*nelem || len(recvbuf) != n*nelem {
			return cmn.NewErrInval("collective.Alltoall: buffers must be n*nelem bytes", nil)
		}
		const tag = 0xDA12
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			for dst := 0; dst < n; dst++ {
				if err := comm.Send(gctx, dst, tag, sendbuf[dst*nelem:(dst+1)*nelem]); err != nil {
					return err
				}
			}
			return nil
		})
		for src := 0; src < n; src++ {
			data, err := comm.Recv(ctx, src, tag)
			if err != nil {
				return err
			}
			copy(recvbuf[src*nelem:(src+1)*nelem], data)
		}
		return g.Wait()
	})
}
