package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func frames(from, to int) []complex64 {
	out := make([]complex64, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, complex(float32(i), 0))
	}
	return out
}

func TestRingGaugeTracksFill(t *testing.T) {
	r := newRing(8)
	assert.Equal(t, int32(-50), r.gauge())

	assert.Zero(t, r.put(frames(0, 4)))
	assert.Equal(t, int32(0), r.gauge())

	assert.Equal(t, 2, r.put(frames(4, 10)))
	assert.Equal(t, 8, r.fill())
	assert.Equal(t, int32(50), r.gauge())

	dst := make([]complex64, 3)
	assert.Equal(t, 3, r.take(dst))
	assert.Equal(t, frames(2, 5), dst)
}

func TestRingUnderrunReadsWhatIsThere(t *testing.T) {
	r := newRing(8)
	r.put(frames(0, 2))
	dst := make([]complex64, 5)
	assert.Equal(t, 2, r.take(dst))
	assert.Equal(t, uint64(1), r.underruns)
	assert.Equal(t, 0, r.take(dst))
}

func TestRingRecenter(t *testing.T) {
	r := newRing(8)
	r.put(frames(0, 7))
	r.recenter()
	assert.Equal(t, 4, r.fill())
	assert.Equal(t, int32(0), r.gauge())

	small := newRing(8)
	small.put(frames(0, 2))
	small.recenter()
	assert.Equal(t, 2, small.fill())
}

func TestRingLatest(t *testing.T) {
	r := newRing(4)
	r.put(frames(0, 6))
	dst := make([]complex64, 3)
	assert.Equal(t, 3, r.latest(dst))
	assert.Equal(t, frames(3, 6), dst)

	big := make([]complex64, 10)
	assert.Equal(t, 4, r.latest(big))
}

func TestBufferPoolReuse(t *testing.T) {
	p := newBufferPool(1, 16)
	b := p.get()
	assert.Len(t, b, 16)
	p.put(b[:3])
	again := p.get()
	assert.Len(t, again, 16)
	assert.Equal(t, &b[0], &again[0])

	p.put(make([]byte, 4))
	assert.Len(t, p.get(), 16)
}
