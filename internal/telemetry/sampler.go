package telemetry

import (
	"math"
	"time"

	"github.com/rjboer/udpsource/internal/dsp"
)

// DefaultDecimation is the number of ticks between power readout refreshes.
const DefaultDecimation = 4

// Source is the read side of the worker sampled on every tick.
type Source interface {
	ChannelMagSq() float64
	InputMagSq() float64
	BufferGauge() int32
	SquelchOpen() bool
}

// Snapshot is the displayable state after one tick.
type Snapshot struct {
	Tick           uint64    `json:"tick"`
	Timestamp      time.Time `json:"timestamp"`
	ChannelPowerDB float64   `json:"channelPowerDb"`
	InputPowerDB   float64   `json:"inputPowerDb"`
	PowerRefreshed bool      `json:"powerRefreshed"`
	BufferGauge    int32     `json:"bufferGauge"`
	Underrun       int32     `json:"underrun"`
	Overrun        int32     `json:"overrun"`
	SquelchOpen    bool      `json:"squelchOpen"`
}

// SplitGauge splits a signed buffer gauge into its under-run and over-run
// magnitudes. Exactly one of them is non-zero unless g is 0.
func SplitGauge(g int32) (underrun, overrun int32) {
	if g >= 0 {
		return 0, g
	}
	if g == math.MinInt32 {
		return math.MaxInt32, 0
	}
	return -g, 0
}

// Sampler owns the averaging state and the tick counter. It is not safe for
// concurrent use; the controller serializes calls.
type Sampler struct {
	channel    *MovingAverage
	input      *MovingAverage
	decimation uint64
	tick       uint64

	channelDB float64
	inputDB   float64
}

// NewSampler builds a sampler. Non-positive arguments select the defaults.
func NewSampler(window, decimation int) *Sampler {
	if decimation <= 0 {
		decimation = DefaultDecimation
	}
	return &Sampler{
		channel:    NewMovingAverage(window),
		input:      NewMovingAverage(window),
		decimation: uint64(decimation),
		channelDB:  dsp.FloorDB,
		inputDB:    dsp.FloorDB,
	}
}

// Tick samples src once. Averages are fed on every tick; the dB readout is
// recomputed only when the tick count is a multiple of the decimation.
func (s *Sampler) Tick(src Source, now time.Time) Snapshot {
	s.channel.Feed(src.ChannelMagSq())
	s.input.Feed(src.InputMagSq())

	refreshed := s.tick%s.decimation == 0
	if refreshed {
		s.channelDB = dsp.DbPower(s.channel.Average())
		s.inputDB = dsp.DbPower(s.input.Average())
	}

	gauge := src.BufferGauge()
	under, over := SplitGauge(gauge)
	snap := Snapshot{
		Tick:           s.tick,
		Timestamp:      now,
		ChannelPowerDB: s.channelDB,
		InputPowerDB:   s.inputDB,
		PowerRefreshed: refreshed,
		BufferGauge:    gauge,
		Underrun:       under,
		Overrun:        over,
		SquelchOpen:    src.SquelchOpen(),
	}
	s.tick++
	return snap
}

// Ticks returns the number of ticks processed.
func (s *Sampler) Ticks() uint64 { return s.tick }
