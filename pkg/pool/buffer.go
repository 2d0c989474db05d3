package pool

import (
	"sync"
)

// BufferPool manages reusable byte buffers for download copies, keeping
// allocation steady when many small objects move through the staging area.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool handing out buffers of bufferSize bytes.
func NewBufferPool(bufferSize int) *BufferPool {
	return &BufferPool{
		size: bufferSize,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// Get retrieves a buffer from the pool.
func (bp *BufferPool) Get() []byte {
	return bp.pool.Get().([]byte)[:bp.size]
}

// Put returns a buffer to the pool. Foreign-sized buffers are left to the GC.
func (bp *BufferPool) Put(buf []byte) {
	if buf == nil || cap(buf) != bp.size {
		return
	}

	bp.pool.Put(buf[:cap(buf)])
}
