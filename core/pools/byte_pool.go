package pools

import "sync"

// BytePool is a multi-tiered byte slice pool for different size classes
type BytePool struct {
	pools []*sync.Pool
	sizes []int
}

// NewBytePoolWithSizes creates a byte pool with custom size tiers
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		sz := size // Capture for closure
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a byte slice of at least the requested size
func (bp *BytePool) Get(size int) []byte {
	// Find the appropriate pool
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			bufPtr := bp.pools[i].Get().(*[]byte)
			buf := *bufPtr
			return buf[:size] // Return slice with requested length
		}
	}

	// Size too large, allocate directly
	return make([]byte, size)
}

// Put returns a byte slice to the pool
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)

	// Find matching pool by capacity
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			// Reset length to capacity
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}

	// Not from pool, let GC handle it
}
