package worker

// bufferPool is a bounded pool of datagram buffers reused across reads.
// Buffers beyond the pool size are left to the garbage collector.
type bufferPool struct {
	size int
	pool chan []byte
}

func newBufferPool(count, size int) *bufferPool {
	if count <= 0 {
		count = 1
	}
	return &bufferPool{size: size, pool: make(chan []byte, count)}
}

// get acquires a buffer from the pool, allocating one if necessary.
func (p *bufferPool) get() []byte {
	select {
	case buf := <-p.pool:
		return buf[:p.size]
	default:
		return make([]byte, p.size)
	}
}

// put returns a buffer to the pool or drops it if the pool is full.
func (p *bufferPool) put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	select {
	case p.pool <- buf[:p.size]:
	default:
	}
}
