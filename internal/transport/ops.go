package transport

import "github.com/dash-project/dart-go/cmn"

// applyElementwise applies op to dst using src as the right-hand operand,
// elemSize bytes at a time, implementing the dart_operation_t semantics of
// spec.md §4.G for the backends (loopback, shm) that perform accumulate
// locally rather than delegating to a native RMA atomic. Only the integer
// and byte-logical ops are backend-generic; Sum/Prod/Min/Max additionally
// need an element width to interpret the bytes, so this operates on
// elemSize-wide unsigned integers, matching dart_datatype_t's base-type
// sizes (1, 2, 4 or 8 bytes).
func applyElementwise(dst, src []byte, elemSize int, op Op) error {
	if elemSize <= 0 || elemSize > 8 || len(dst)%elemSize != 0 || len(dst) != len(src) {
		return cmn.NewErrInval("transport.applyElementwise: bad element size or length", nil)
	}
	for off := 0; off < len(dst); off += elemSize {
		a := loadUint(dst[off : off+elemSize])
		b := loadUint(src[off : off+elemSize])
		r, err := applyOp(a, b, op)
		if err != nil {
			return err
		}
		storeUint(dst[off:off+elemSize], r)
	}
	return nil
}

func applyOp(a, b uint64, op Op) (uint64, error) {
	switch op {
	case OpSum:
		return a + b, nil
	case OpProd:
		return a * b, nil
	case OpMin:
		if a < b {
			return a, nil
		}
		return b, nil
	case OpMax:
		if a > b {
			return a, nil
		}
		return b, nil
	case OpBAnd, OpLAnd:
		return a & b, nil
	case OpBOr, OpLOr:
		return a | b, nil
	case OpBXor, OpLXor:
		return a ^ b, nil
	case OpReplace:
		return b, nil
	case OpNoOp:
		return a, nil
	default:
		return 0, cmn.NewErrInval("transport.applyOp: unsupported op", nil)
	}
}

func loadUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func storeUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}
