// Package controller implements the settings side of a UDP source channel:
// it owns the settings aggregate, keeps the worker in sync with it and
// samples the worker's telemetry on every clock tick.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rjboer/udpsource/internal/clock"
	"github.com/rjboer/udpsource/internal/logging"
	"github.com/rjboer/udpsource/internal/message"
	"github.com/rjboer/udpsource/internal/settings"
	"github.com/rjboer/udpsource/internal/telemetry"
	"github.com/rjboer/udpsource/internal/worker"
)

// Observer is notified of synchronization events. Calls are made with the
// controller lock held and must not call back into the controller.
type Observer interface {
	OnApply(force bool)
	OnEcho()
	OnUnhandled(kind string)
	OnDeserializeFailure()
}

type nopObserver struct{}

func (nopObserver) OnApply(bool)          {}
func (nopObserver) OnEcho()               {}
func (nopObserver) OnUnhandled(string)    {}
func (nopObserver) OnDeserializeFailure() {}

// Config captures controller level configuration.
type Config struct {
	// ID identifies the channel instance in logs and published telemetry.
	ID            string
	AverageWindow int
	Decimation    int
	Observer      Observer
}

// SchedulerState reports whether the controller receives clock ticks.
type SchedulerState int

const (
	SchedulerIdle SchedulerState = iota
	SchedulerRunning
)

func (s SchedulerState) String() string {
	if s == SchedulerRunning {
		return "running"
	}
	return "idle"
}

// Controller is the settings synchronizer and tick scheduler of one channel.
// All methods are safe for concurrent use; state changes are serialized.
type Controller struct {
	mu       sync.Mutex
	id       string
	settings settings.Settings
	pending  bool
	guard    applyGuard

	worker  worker.Worker
	inbound *message.Queue

	sampler  *telemetry.Sampler
	last     telemetry.Snapshot
	reporter telemetry.Reporter
	observer Observer
	logger   logging.Logger

	ticks       <-chan time.Time
	unsubscribe func()
	state       SchedulerState
	closeOnce   sync.Once
}

// New builds a controller around w, subscribes it to clk and pushes the
// default settings to the worker with force.
func New(w worker.Worker, clk clock.Clock, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	fields := []logging.Field{{Key: "subsystem", Value: "controller"}}
	if cfg.ID != "" {
		fields = append(fields, logging.Field{Key: "channel", Value: cfg.ID})
	}
	c := &Controller{
		id:       cfg.ID,
		settings: settings.Defaults(),
		worker:   w,
		inbound:  message.NewQueue(),
		sampler:  telemetry.NewSampler(cfg.AverageWindow, cfg.Decimation),
		reporter: reporter,
		observer: cfg.Observer,
		logger:   logger.With(fields...),
	}
	w.SetMessageQueueToController(c.inbound)
	if clk != nil {
		c.ticks, c.unsubscribe = clk.Subscribe()
		c.state = SchedulerRunning
	}

	c.mu.Lock()
	c.refreshLocked()
	c.applyLocked(true)
	c.mu.Unlock()
	return c
}

// ID returns the channel instance identifier.
func (c *Controller) ID() string { return c.id }

// InputMessageQueue is where the worker sends echoes.
func (c *Controller) InputMessageQueue() *message.Queue { return c.inbound }

// Settings returns a copy of the current settings.
func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Pending reports whether deferred edits are waiting for Commit.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// SchedulerState reports whether the controller is subscribed to the clock.
func (c *Controller) SchedulerState() SchedulerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Apply pushes the channelizer placement and then the settings to the
// worker, unless applies are currently suppressed.
func (c *Controller) Apply(force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(force)
}

// Commit applies deferred edits.
func (c *Controller) Commit() {
	c.Apply(false)
}

func (c *Controller) applyLocked(force bool) bool {
	if !c.guard.enabled() {
		return false
	}
	q := c.worker.InputMessageQueue()
	q.Push(message.ConfigureChannelizer{
		SampleRate:      c.settings.InputSampleRate,
		FrequencyOffset: c.settings.InputFrequencyOffset,
	})
	q.Push(message.ConfigureSettings{Settings: c.settings, Force: force})
	c.pending = false
	c.observer.OnApply(force)
	c.logger.Debug("settings applied", logging.Field{Key: "force", Value: force})
	return true
}

// refreshLocked re-derives dependent state after the aggregate was replaced.
// Nothing it changes is pushed to the worker.
func (c *Controller) refreshLocked() {
	defer c.guard.suppress()()
	c.settings.Normalize()
	c.pending = false
}

// ResetToDefaults restores every field and applies with force.
func (c *Controller) ResetToDefaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.settings.ResetToDefaults()
	c.refreshLocked()
	c.applyLocked(true)
}

// Serialize encodes the current settings.
func (c *Controller) Serialize() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Serialize()
}

// Deserialize replaces the settings with the decoded blob and applies with
// force. A blob that cannot be decoded resets to defaults instead and the
// decode error is returned.
func (c *Controller) Deserialize(data []byte) error {
	decoded, err := settings.Deserialize(data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.observer.OnDeserializeFailure()
		c.logger.Warn("settings blob rejected, restoring defaults", logging.Field{Key: "error", Value: err})
		c.resetLocked()
		return fmt.Errorf("deserialize settings: %w", err)
	}
	c.settings = decoded
	c.refreshLocked()
	c.applyLocked(true)
	return nil
}

// HandleMessage processes one inbound message and reports whether it was
// recognized.
func (c *Controller) HandleMessage(m message.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handleLocked(m)
}

func (c *Controller) handleLocked(m message.Message) bool {
	switch msg := m.(type) {
	case message.SettingsEcho:
		c.observer.OnEcho()
		c.settings = msg.Settings
		c.refreshLocked()
		return true
	default:
		return false
	}
}

// Drain processes every queued inbound message in arrival order and returns
// the ones that were not recognized.
func (c *Controller) Drain() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var unhandled []message.Message
	for {
		m, ok := c.inbound.Pop()
		if !ok {
			return unhandled
		}
		if !c.handleLocked(m) {
			c.observer.OnUnhandled(m.Kind())
			unhandled = append(unhandled, m)
		}
	}
}

// Tick samples the worker once and publishes the snapshot.
func (c *Controller) Tick(now time.Time) telemetry.Snapshot {
	c.mu.Lock()
	snap := c.sampler.Tick(c.worker, now)
	c.last = snap
	c.mu.Unlock()

	if c.reporter != nil {
		c.reporter.Report(snap)
	}
	return snap
}

// Telemetry returns the most recent snapshot.
func (c *Controller) Telemetry() telemetry.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// ResetReadIndex asks the worker to recenter its sample buffer.
func (c *Controller) ResetReadIndex() {
	c.worker.ResetReadIndex()
}

// SetSpectrum enables or disables the worker's spectrum.
func (c *Controller) SetSpectrum(enabled bool) {
	c.worker.SetSpectrum(enabled)
}

// Spectrum returns the worker's latest spectrum.
func (c *Controller) Spectrum() []float64 {
	return c.worker.Spectrum()
}

// Run drains inbound messages and handles clock ticks until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller running", logging.Field{Key: "scheduler", Value: c.SchedulerState().String()})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.inbound.Notify():
			for _, m := range c.Drain() {
				c.logger.Debug("unhandled message", logging.Field{Key: "kind", Value: m.Kind()})
			}
		case now, ok := <-c.ticks:
			if !ok {
				c.ticks = nil
				continue
			}
			c.Tick(now)
		}
	}
}

// Close unsubscribes from the clock and closes the worker.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.state = SchedulerIdle
		c.mu.Unlock()
		err = c.worker.Close()
		c.logger.Info("controller closed")
	})
	return err
}
