package dart

import "github.com/dash-project/dart-go/internal/dtype"

// Re-export the predefined base datatypes (spec.md §4.K) under the flat
// dart namespace.
const (
	TypeUndefined  = dtype.Undefined
	TypeByte       = dtype.Byte
	TypeShort      = dtype.Short
	TypeInt        = dtype.Int
	TypeUInt       = dtype.UInt
	TypeLong       = dtype.Long
	TypeULong      = dtype.ULong
	TypeLongLong   = dtype.LongLong
	TypeULongLong  = dtype.ULongLong
	TypeFloat      = dtype.Float
	TypeDouble     = dtype.Double
	TypeLongDouble = dtype.LongDouble
)

// TypeCreateStrided implements dart_type_create_strided.
func TypeCreateStrided(base dtype.Datatype, stride, blocklen uint64) (dtype.Datatype, error) {
	r, err := current()
	if err != nil {
		return dtype.Undefined, err
	}
	return r.types.CreateStrided(base, stride, blocklen)
}

// TypeCreateIndexed implements dart_type_create_indexed.
func TypeCreateIndexed(base dtype.Datatype, blocklen, offset []uint64) (dtype.Datatype, error) {
	r, err := current()
	if err != nil {
		return dtype.Undefined, err
	}
	return r.types.CreateIndexed(base, blocklen, offset)
}

// TypeDestroy implements dart_type_destroy.
func TypeDestroy(t dtype.Datatype) error {
	r, err := current()
	if err != nil {
		return err
	}
	return r.types.Destroy(t)
}

// TypeSize implements dart_type_size: the element size in bytes of a
// base or derived datatype, needed by callers (e.g. capi) that must
// size a raw buffer before a transfer.
func TypeSize(t dtype.Datatype) (int, error) {
	r, err := current()
	if err != nil {
		return 0, err
	}
	return r.types.SizeOf(t)
}
