// Package clock provides the periodic timer that drives telemetry ticks.
//
// A single Ticker can be shared by many subscribers, mirroring a master
// display timer. Manual is a deterministic stand-in for tests.
package clock

import (
	"sync"
	"time"
)

// DefaultInterval is the refresh period of the master timer.
const DefaultInterval = 50 * time.Millisecond

// Clock delivers periodic ticks. The returned cancel function unsubscribes
// and is safe to call more than once.
type Clock interface {
	Subscribe() (ticks <-chan time.Time, cancel func())
}

// fanout delivers ticks to every subscriber without blocking. A subscriber
// that falls behind misses ticks instead of stalling the others.
type fanout struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan time.Time
}

func (f *fanout) subscribe(buffer int) (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]chan time.Time)
	}
	id := f.nextID
	f.nextID++
	ch := make(chan time.Time, buffer)
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

func (f *fanout) broadcast(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	delivered := 0
	for _, ch := range f.subs {
		select {
		case ch <- now:
			delivered++
		default:
		}
	}
	return delivered
}

func (f *fanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Ticker is a shared wall-clock timer. The underlying time.Ticker runs only
// while at least one subscriber is registered.
type Ticker struct {
	interval time.Duration

	fanout
	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// NewTicker builds a shared ticker. A non-positive interval selects
// DefaultInterval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{interval: interval}
}

// Interval returns the tick period.
func (t *Ticker) Interval() time.Duration { return t.interval }

// Subscribe registers a new listener and starts the timer if needed.
func (t *Ticker) Subscribe() (<-chan time.Time, func()) {
	ch, unsubscribe := t.subscribe(1)
	t.runMu.Lock()
	if t.stop == nil {
		t.stop = make(chan struct{})
		t.done = make(chan struct{})
		go t.run(t.stop, t.done)
	}
	t.runMu.Unlock()

	return ch, func() {
		unsubscribe()
		t.stopIfIdle()
	}
}

// Subscribers returns the number of active listeners.
func (t *Ticker) Subscribers() int { return t.count() }

func (t *Ticker) stopIfIdle() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.stop == nil || t.count() > 0 {
		return
	}
	close(t.stop)
	<-t.done
	t.stop, t.done = nil, nil
}

func (t *Ticker) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case now := <-tk.C:
			t.broadcast(now)
		case <-stop:
			return
		}
	}
}

// Manual only ticks when told to.
type Manual struct {
	fanout
}

// NewManual returns a clock with no subscribers.
func NewManual() *Manual { return &Manual{} }

// Subscribe registers a listener. Its channel buffers up to 64 ticks.
func (m *Manual) Subscribe() (<-chan time.Time, func()) {
	return m.subscribe(64)
}

// Tick delivers now to every subscriber and returns how many received it.
func (m *Manual) Tick(now time.Time) int {
	return m.broadcast(now)
}

// Subscribers returns the number of active listeners.
func (m *Manual) Subscribers() int { return m.count() }
