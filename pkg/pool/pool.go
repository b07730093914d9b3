// Package pool provides reusable byte buffers for I/O heavy code paths.
//
// sync.Pool is a mechanism to cache allocated but unused objects for later
// reuse, relieving pressure on the garbage collector. Items in the pool are
// automatically removed during garbage collection, which makes it suitable
// for short-lived objects (like copy buffers) but not for persistent
// resources like network connections.
package pool

// FixedBufferPool hands out byte slices of a single fixed size. Hashing,
// transfer and export code paths all copy with buffers of one configured
// size, so a single-bucket pool is sufficient.
type FixedBufferPool struct {
	size int64
	pool chan *[]byte
}

// NewFixedBufferPool creates a pool of buffers of 'size' bytes, retaining at
// most 'capacity' idle buffers. Additional Get calls allocate fresh buffers;
// Put drops buffers beyond capacity so a burst cannot pin memory forever.
func NewFixedBufferPool(size int64, capacity int) *FixedBufferPool {
	if size <= 0 {
		size = 256 * 1024
	}
	if capacity <= 0 {
		capacity = 8
	}
	return &FixedBufferPool{
		size: size,
		pool: make(chan *[]byte, capacity),
	}
}

// Get retrieves a buffer from the pool, allocating a new one if none is idle.
func (p *FixedBufferPool) Get() *[]byte {
	select {
	case b := <-p.pool:
		return b
	default:
		b := make([]byte, p.size)
		return &b
	}
}

// Put returns a buffer to the pool. Buffers of the wrong size are discarded.
func (p *FixedBufferPool) Put(b *[]byte) {
	if b == nil || int64(len(*b)) != p.size {
		return
	}
	select {
	case p.pool <- b:
	default:
		// Pool is full, let the GC reclaim the buffer.
	}
}

// Size returns the size in bytes of buffers handed out by this pool.
func (p *FixedBufferPool) Size() int64 {
	return p.size
}
