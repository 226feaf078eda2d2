package worker

import (
	"sync"

	"github.com/rjboer/udpsource/internal/message"
	"github.com/rjboer/udpsource/internal/settings"
)

// Mock is a scripted worker. Measurements are set by the test and inbound
// messages are kept for inspection instead of being processed.
type Mock struct {
	mu         sync.RWMutex
	inbound    *message.Queue
	controller *message.Queue

	channelMagSq float64
	inputMagSq   float64
	gauge        int32
	squelchOpen  bool

	spectrumOn bool
	spectrum   []float64
	resets     int
	closed     bool
}

func NewMock() *Mock { return &Mock{inbound: message.NewQueue()} }

func (m *Mock) InputMessageQueue() *message.Queue { return m.inbound }

func (m *Mock) SetMessageQueueToController(q *message.Queue) {
	m.mu.Lock()
	m.controller = q
	m.mu.Unlock()
}

// SetMeasurements updates the values returned by the telemetry getters.
func (m *Mock) SetMeasurements(channelMagSq, inputMagSq float64, gauge int32, squelchOpen bool) {
	m.mu.Lock()
	m.channelMagSq, m.inputMagSq, m.gauge, m.squelchOpen = channelMagSq, inputMagSq, gauge, squelchOpen
	m.mu.Unlock()
}

func (m *Mock) ChannelMagSq() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channelMagSq
}

func (m *Mock) InputMagSq() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMagSq
}

func (m *Mock) BufferGauge() int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauge
}

func (m *Mock) SquelchOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.squelchOpen
}

func (m *Mock) ResetReadIndex() {
	m.mu.Lock()
	m.resets++
	m.mu.Unlock()
}

// Resets returns how many times ResetReadIndex was called.
func (m *Mock) Resets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resets
}

func (m *Mock) SetSpectrum(enabled bool) {
	m.mu.Lock()
	m.spectrumOn = enabled
	m.mu.Unlock()
}

// SetSpectrumBins sets what Spectrum returns while enabled.
func (m *Mock) SetSpectrumBins(bins []float64) {
	m.mu.Lock()
	m.spectrum = append([]float64(nil), bins...)
	m.mu.Unlock()
}

func (m *Mock) Spectrum() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.spectrumOn {
		return nil
	}
	return append([]float64(nil), m.spectrum...)
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Echo pushes a settings echo to the controller queue.
func (m *Mock) Echo(s settings.Settings) {
	m.Send(message.SettingsEcho{Settings: s})
}

// Send pushes any message to the controller queue.
func (m *Mock) Send(msg message.Message) {
	m.mu.RLock()
	q := m.controller
	m.mu.RUnlock()
	if q != nil {
		q.Push(msg)
	}
}

// Received pops everything the controller has sent so far.
func (m *Mock) Received() []message.Message {
	var out []message.Message
	for {
		msg, ok := m.inbound.Pop()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

var (
	_ Worker = (*Mock)(nil)
	_ Worker = (*UDPSource)(nil)
)
