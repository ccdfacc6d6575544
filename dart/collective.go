package dart

import (
	"context"

	"github.com/dash-project/dart-go/internal/collective"
	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/gptr"
)

// Barrier implements dart_barrier.
func Barrier(ctx context.Context, teamID gptr.TeamID) error {
	r, err := current()
	if err != nil {
		return err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("barrier").Inc()
	return collective.Barrier(ctx, t.Comm)
}

// Bcast implements dart_bcast.
func Bcast(ctx context.Context, teamID gptr.TeamID, root int, buf []byte) error {
	r, err := current()
	if err != nil {
		return err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("bcast").Inc()
	return collective.Bcast(ctx, t.Comm, root, buf)
}

// Scatter implements dart_scatter.
func Scatter(ctx context.Context, teamID gptr.TeamID, root int, sendbuf, recvbuf []byte) error {
	r, err := current()
	if err != nil {
		return err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("scatter").Inc()
	return collective.Scatter(ctx, t.Comm, root, sendbuf, recvbuf)
}

// Gather implements dart_gather.
func Gather(ctx context.Context, teamID gptr.TeamID, root int, sendbuf, recvbuf []byte) error {
	r, err := current()
	if err != nil {
		return err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("gather").Inc()
	return collective.Gather(ctx, t.Comm, root, sendbuf, recvbuf)
}

// Allgather implements dart_allgather.
func Allgather(ctx context.Context, teamID gptr.TeamID, sendbuf, recvbuf []byte) error {
	r, err := current()
	if err != nil {
		return err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("allgather").Inc()
	return collective.Allgather(ctx, t.Comm, sendbuf, recvbuf)
}

// Allgatherv implements dart_allgatherv.
func Allgatherv(ctx context.Context, teamID gptr.TeamID, sendbuf []byte, recvCounts, recvDispls []int, recvbuf []byte) error {
	r, err := current()
	if err != nil {
		return err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("allgatherv").Inc()
	return collective.Allgatherv(ctx, t.Comm, sendbuf, recvCounts, recvDispls, recvbuf)
}

// Alltoall implements dart_alltoall.
func Alltoall(ctx context.Context, teamID gptr.TeamID, sendbuf []byte, nelem int, recvbuf []byte) error {
	r, err := current()
	if err != nil {
		return err
	}
	t, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("alltoall").Inc()
	return collective.Alltoall(ctx, t.Comm, sendbuf, nelem, recvbuf)
}

// Reduce implements dart_reduce.
func Reduce(ctx context.Context, teamID gptr.TeamID, root int, sendbuf, recvbuf []byte, elemSize int, op Op, t dtype.Datatype) error {
	r, err := current()
	if err != nil {
		return err
	}
	tm, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("reduce").Inc()
	return collective.Reduce(ctx, tm.Comm, root, sendbuf, recvbuf, elemSize, op, t)
}

// Allreduce implements dart_allreduce.
func Allreduce(ctx context.Context, teamID gptr.TeamID, sendbuf, recvbuf []byte, elemSize int, op Op, t dtype.Datatype) error {
	r, err := current()
	if err != nil {
		return err
	}
	tm, err := r.teams.Get(teamID)
	if err != nil {
		return err
	}
	collectiveOpsTotal.WithLabelValues("allreduce").Inc()
	return collective.Allreduce(ctx, tm.Comm, sendbuf, recvbuf, elemSize, op, t)
}
