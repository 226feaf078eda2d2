package worker

import "sync"

// ring is a frame buffer written by the UDP receiver and drained at the
// channel sample rate. Positions are running totals so the fill level never
// wraps.
type ring struct {
	mu    sync.Mutex
	buf   []complex64
	write uint64
	read  uint64

	overruns  uint64
	underruns uint64
}

func newRing(size int) *ring {
	if size < 2 {
		size = 2
	}
	return &ring{buf: make([]complex64, size)}
}

func (r *ring) size() int { return len(r.buf) }

// put appends frames, discarding the oldest when the buffer is full. It
// returns the number of frames discarded.
func (r *ring) put(frames []complex64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := uint64(len(r.buf))
	for _, f := range frames {
		r.buf[r.write%n] = f
		r.write++
	}
	dropped := 0
	if fill := r.write - r.read; fill > n {
		dropped = int(fill - n)
		r.read = r.write - n
		r.overruns++
	}
	return dropped
}

// take copies up to len(dst) frames out. A short read is an under-run.
func (r *ring) take(dst []complex64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := uint64(len(r.buf))
	avail := r.write - r.read
	count := uint64(len(dst))
	if count > avail {
		count = avail
		r.underruns++
	}
	for i := uint64(0); i < count; i++ {
		dst[i] = r.buf[(r.read+i)%n]
	}
	r.read += count
	return int(count)
}

// latest copies the most recently written frames into dst, newest last.
func (r *ring) latest(dst []complex64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := uint64(len(r.buf))
	count := uint64(len(dst))
	if count > r.write {
		count = r.write
	}
	if count > n {
		count = n
	}
	start := r.write - count
	for i := uint64(0); i < count; i++ {
		dst[i] = r.buf[(start+i)%n]
	}
	return int(count)
}

func (r *ring) fill() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.write - r.read)
}

// gauge is the fill level as a percentage offset from half full, in
// [-50, 50]. Negative means the reader is catching up with the writer.
func (r *ring) gauge() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	fill := int64(r.write - r.read)
	return int32(fill*100/int64(len(r.buf)) - 50)
}

// recenter moves the read position half a buffer behind the writer.
func (r *ring) recenter() {
	r.mu.Lock()
	defer r.mu.Unlock()
	half := uint64(len(r.buf) / 2)
	if r.write < half {
		r.read = 0
		return
	}
	r.read = r.write - half
}
