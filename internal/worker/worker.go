// Package worker defines the contract between the channel controller and the
// goroutine that turns the UDP stream into channel samples, plus the UDP
// implementation and a mock.
package worker

import (
	"github.com/rjboer/udpsource/internal/message"
	"github.com/rjboer/udpsource/internal/telemetry"
)

// Worker is the signal-processing side of a channel. Measurement getters are
// safe to call from any goroutine and may be slightly stale.
type Worker interface {
	telemetry.Source

	// InputMessageQueue is where the controller pushes configuration.
	InputMessageQueue() *message.Queue
	// SetMessageQueueToController sets where settings echoes are sent.
	SetMessageQueueToController(q *message.Queue)

	ResetReadIndex()
	SetSpectrum(enabled bool)
	// Spectrum returns the latest power spectrum in dBFS, DC centered, or
	// nil when the spectrum is disabled.
	Spectrum() []float64

	Close() error
}
