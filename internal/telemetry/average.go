// Package telemetry turns raw worker measurements into smoothed, decimated
// snapshots and fans them out to reporters.
package telemetry

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultAverageWindow is the number of ticks a power average spans.
const DefaultAverageWindow = 4

// MovingAverage is a fixed-window running mean. Memory use is bounded by the
// window size no matter how many samples are fed.
type MovingAverage struct {
	window []float64
	next   int
	filled int
	total  uint64
}

// NewMovingAverage builds an average over size samples. A non-positive size
// selects DefaultAverageWindow.
func NewMovingAverage(size int) *MovingAverage {
	if size <= 0 {
		size = DefaultAverageWindow
	}
	return &MovingAverage{window: make([]float64, size)}
}

// Feed adds one sample. Non-finite and negative samples count as 0.
func (m *MovingAverage) Feed(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		v = 0
	}
	m.window[m.next] = v
	m.next = (m.next + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}
	m.total++
}

// Average returns the mean of the retained samples, or 0 before the first
// Feed.
func (m *MovingAverage) Average() float64 {
	if m.filled == 0 {
		return 0
	}
	return floats.Sum(m.window[:m.filled]) / float64(m.filled)
}

// Fed returns how many samples were fed in total.
func (m *MovingAverage) Fed() uint64 { return m.total }

// Size returns the window length.
func (m *MovingAverage) Size() int { return len(m.window) }
