package mempool

import "github.com/valyala/bytebufferpool"

// StagingPool hands out scratch byte buffers for collectives implemented
// over RMA (spec.md §4.I, Design Notes "collectives over RMA": "writing
// through temporary segments that are created on demand when the payload
// exceeds a pre-reserved staging area"). It is backed by
// github.com/valyala/bytebufferpool, the same buffer-reuse discipline
// valyala/fasthttp itself uses (SPEC_FULL.md §4.A').
type StagingPool struct {
	pool bytebufferpool.Pool
}

func NewStagingPool() *StagingPool { return &StagingPool{} }

// Get returns a buffer with at least n bytes of capacity, reset to empty.
func (s *StagingPool) Get(n int) *bytebufferpool.ByteBuffer {
	b := s.pool.Get()
	if cap(b.B) < n {
		b.B = make([]byte, 0, n)
	}
	b.B = b.B[:n]
	return b
}

func (s *StagingPool) Put(b *bytebufferpool.ByteBuffer) { s.pool.Put(b) }
