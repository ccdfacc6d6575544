package collective

import (
	"context"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/transport"
)

const reduceTag = 0xDA20

// applyReduce folds src into dst element-wise, elemSize bytes at a
// time, using the same Op semantics as transport.Op (spec.md §4.I:
// "reductions use natural arithmetic on the base type").
func applyReduce(dst, src []byte, elemSize int, op transport.Op) error {
	for off := 0; off < len(dst); off += elemSize {
		if err := reduceOne(dst[off:off+elemSize], src[off:off+elemSize], op); err != nil {
			return err
		}
	}
	return nil
}

func reduceOne(dst, src []byte, op transport.Op) error {
	a := loadLE(dst)
	b := loadLE(src)
	var r uint64
	switch op {
	case transport.OpSum:
		r = a + b
	case transport.OpProd:
		r = a * b
	case transport.OpMin:
		if a < b {
			r = a
		} else {
			r = b
		}
	case transport.OpMax:
		if a > b {
			r = a
		} else {
			r = b
		}
	case transport.OpBAnd, transport.OpLAnd:
		r = a & b
	case transport.OpBOr, transport.OpLOr:
		r = a | b
	case transport.OpBXor, transport.OpLXor:
		r = a ^ b
	default:
		return cmn.NewErrInval("collective.reduce: unsupported op", nil)
	}
	storeLE(dst, r)
	return nil
}

func loadLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func storeLE(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}

// Reduce implements spec.md §4.I's root-targeted reduce: a linear
// all-to-root gather of contributions, folded with op as they arrive
// (acceptable per the spec's "Implementation freedom" — reductions need
// not be bit-reproducible).
func Reduce(ctx context.Context, comm transport.Communicator, root int, sendbuf []byte, recvbuf []byte, elemSize int, op transport.Op, t dtype.Datatype) error {
	return observe("reduce", func() error {
		n := comm.Size()
		me := comm.Rank()
		if me == root {
			copy(recvbuf, sendbuf)
			for src := 0; src < n; src++ {
				if src == root {
					continue
				}
				data, err := comm.Recv(ctx, src, reduceTag)
				if err != nil {
					return err
				}
				if err := applyReduce(recvbuf, data, elemSize, op); err != nil {
					return err
				}
			}
			return nil
		}
		return comm.Send(ctx, root, reduceTag, sendbuf)
	})
}

// Allreduce implements spec.md §4.I: element-wise reduction visible to
// every unit. Built as Reduce-to-unit-0 followed by a broadcast — a
// valid recursive-doubling/ring alternative per spec.md's
// "Implementation freedom", chosen here for its small, easily-verified
// implementation over the abstract Communicator.
func Allreduce(ctx context.Context, comm transport.Communicator, sendbuf []byte, recvbuf []byte, elemSize int, op transport.Op, t dtype.Datatype) error {
	return observe("allreduce", func() error {
		if err := Reduce(ctx, comm, 0, sendbuf, recvbuf, elemSize, op, t); err != nil {
			return err
		}
		return comm.Broadcast(ctx, 0, recvbuf)
	})
}
