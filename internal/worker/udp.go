package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjboer/udpsource/internal/dsp"
	"github.com/rjboer/udpsource/internal/logging"
	"github.com/rjboer/udpsource/internal/message"
	"github.com/rjboer/udpsource/internal/settings"
)

const (
	defaultBufferFrames  = 1 << 15
	defaultSpectrumSize  = 64
	defaultConsumePeriod = 20 * time.Millisecond
	defaultPoolSize      = 16
	maxDatagramSize      = 65536

	// frames are nudged by at most this fraction per consume step when
	// balancing read and write rates
	maxBalanceCorrection = 0.05
)

// Config tunes a UDPSource. Zero values select defaults.
type Config struct {
	BufferFrames  int
	SpectrumSize  int
	Window        dsp.WindowFunc
	ConsumePeriod time.Duration
	PoolSize      int
	Logger        logging.Logger
}

// UDPSource receives S16LE samples on a UDP socket, buffers them and drains
// the buffer at the configured input sample rate.
type UDPSource struct {
	inbound      *message.Queue
	toController atomic.Pointer[message.Queue]

	mu           sync.Mutex
	settings     settings.Settings
	channelRate  float64
	channelShift int64
	conn         *net.UDPConn
	boundAddr    string
	aboveFrames  int
	closed       bool

	ring     *ring
	pool     *bufferPool
	analyzer *dsp.Analyzer
	period   time.Duration

	channelMagSq atomic.Uint64
	inputMagSq   atomic.Uint64
	squelchOpen  atomic.Bool
	spectrumOn   atomic.Bool
	spectrumMu   sync.RWMutex
	spectrum     []float64

	logger    logging.Logger
	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewUDPSource builds a worker. It does not open a socket until it receives
// its first settings.
func NewUDPSource(cfg Config) *UDPSource {
	if cfg.BufferFrames <= 0 {
		cfg.BufferFrames = defaultBufferFrames
	}
	if cfg.SpectrumSize <= 0 {
		cfg.SpectrumSize = defaultSpectrumSize
	}
	if cfg.ConsumePeriod <= 0 {
		cfg.ConsumePeriod = defaultConsumePeriod
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	s := settings.Defaults()
	return &UDPSource{
		inbound:     message.NewQueue(),
		settings:    s,
		channelRate: s.InputSampleRate,
		ring:        newRing(cfg.BufferFrames),
		pool:        newBufferPool(cfg.PoolSize, maxDatagramSize),
		analyzer:    dsp.NewAnalyzerWindow(cfg.SpectrumSize, cfg.Window),
		period:      cfg.ConsumePeriod,
		logger:      cfg.Logger.With(logging.Field{Key: "subsystem", Value: "udp_worker"}),
	}
}

func (u *UDPSource) InputMessageQueue() *message.Queue { return u.inbound }

func (u *UDPSource) SetMessageQueueToController(q *message.Queue) { u.toController.Store(q) }

func (u *UDPSource) ChannelMagSq() float64 { return math.Float64frombits(u.channelMagSq.Load()) }

func (u *UDPSource) InputMagSq() float64 { return math.Float64frombits(u.inputMagSq.Load()) }

func (u *UDPSource) BufferGauge() int32 { return u.ring.gauge() }

func (u *UDPSource) SquelchOpen() bool { return u.squelchOpen.Load() }

// ResetReadIndex recenters the read position half a buffer behind the
// writer.
func (u *UDPSource) ResetReadIndex() {
	u.ring.recenter()
	u.logger.Debug("read index reset", logging.Field{Key: "fill", Value: u.ring.fill()})
}

func (u *UDPSource) SetSpectrum(enabled bool) {
	u.spectrumOn.Store(enabled)
	if !enabled {
		u.spectrumMu.Lock()
		u.spectrum = nil
		u.spectrumMu.Unlock()
	}
}

func (u *UDPSource) Spectrum() []float64 {
	u.spectrumMu.RLock()
	defer u.spectrumMu.RUnlock()
	if u.spectrum == nil {
		return nil
	}
	return append([]float64(nil), u.spectrum...)
}

// LocalAddr returns the bound socket address, or nil when unbound.
func (u *UDPSource) LocalAddr() *net.UDPAddr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	addr, _ := u.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Channelizer returns the last channel sample rate and frequency offset.
func (u *UDPSource) Channelizer() (sampleRate float64, offset int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.channelRate, u.channelShift
}

// Settings returns the settings the worker is running with.
func (u *UDPSource) Settings() settings.Settings {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.settings
}

// Start launches the message loop and the consumer. It returns immediately;
// Close or cancelling ctx stops both.
func (u *UDPSource) Start(ctx context.Context) {
	u.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		u.mu.Lock()
		u.cancel = cancel
		u.mu.Unlock()
		u.wg.Add(2)
		go u.runMessages(ctx)
		go u.runConsumer(ctx)
	})
}

// Close stops the goroutines and releases the socket.
func (u *UDPSource) Close() error {
	var err error
	u.closeOnce.Do(func() {
		u.mu.Lock()
		cancel := u.cancel
		conn := u.conn
		u.conn = nil
		u.closed = true
		u.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			err = conn.Close()
		}
		u.wg.Wait()
	})
	return err
}

func (u *UDPSource) runMessages(ctx context.Context) {
	defer u.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.inbound.Notify():
			u.drain()
		}
	}
}

func (u *UDPSource) drain() {
	for {
		m, ok := u.inbound.Pop()
		if !ok {
			return
		}
		u.handle(m)
	}
}

func (u *UDPSource) handle(m message.Message) {
	switch msg := m.(type) {
	case message.ConfigureChannelizer:
		u.mu.Lock()
		u.channelRate = msg.SampleRate
		u.channelShift = msg.FrequencyOffset
		u.mu.Unlock()
		u.logger.Debug("channelizer configured",
			logging.Field{Key: "sample_rate", Value: msg.SampleRate},
			logging.Field{Key: "offset_hz", Value: msg.FrequencyOffset})
	case message.ConfigureSettings:
		u.applySettings(msg.Settings, msg.Force)
	default:
		u.logger.Debug("unhandled message", logging.Field{Key: "kind", Value: m.Kind()})
	}
}

func (u *UDPSource) applySettings(s settings.Settings, force bool) {
	adjusted := s.Normalize()

	u.mu.Lock()
	prev := u.settings
	u.settings = s
	if s.SquelchEnabled != prev.SquelchEnabled || s.Squelch != prev.Squelch {
		u.aboveFrames = 0
	}
	addr := net.JoinHostPort(s.UDPAddress, strconv.Itoa(s.UDPPort))
	rebind := !u.closed && (force || u.conn == nil || addr != u.boundAddr)
	var err error
	if rebind {
		err = u.bindLocked(s.UDPAddress, s.UDPPort)
	}
	u.mu.Unlock()

	if err != nil {
		u.logger.Warn("udp bind failed", logging.Field{Key: "addr", Value: addr}, logging.Field{Key: "error", Value: err})
	} else if rebind {
		u.logger.Info("listening", logging.Field{Key: "addr", Value: addr})
	}
	if s.StereoInput != prev.StereoInput || s.SampleFormat != prev.SampleFormat {
		u.ring.recenter()
	}

	if adjusted {
		if q := u.toController.Load(); q != nil {
			q.Push(message.SettingsEcho{Settings: s})
		}
	}
}

// bindLocked replaces the socket. The previous receiver exits when its
// socket is closed.
func (u *UDPSource) bindLocked(host string, port int) error {
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
		u.boundAddr = ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("invalid address %q", host)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return fmt.Errorf("listen udp %s:%d: %w", host, port, err)
	}
	u.conn = conn
	u.boundAddr = net.JoinHostPort(host, strconv.Itoa(port))
	u.wg.Add(1)
	go u.receive(conn)
	return nil
}

func (u *UDPSource) receive(conn *net.UDPConn) {
	defer u.wg.Done()
	for {
		buf := u.pool.get()
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			u.pool.put(buf)
			if errors.Is(err, net.ErrClosed) {
				return
			}
			u.logger.Warn("udp read failed", logging.Field{Key: "error", Value: err})
			continue
		}
		u.ingest(buf[:n])
		u.pool.put(buf)
	}
}

// ingest decodes one datagram of S16LE samples into frames and updates the
// power and squelch state.
func (u *UDPSource) ingest(payload []byte) {
	u.mu.Lock()
	s := u.settings
	u.mu.Unlock()

	channels := 1
	if s.StereoInput {
		channels = 2
	}
	frameBytes := 2 * channels
	count := len(payload) / frameBytes
	if count == 0 {
		return
	}

	raw := make([]float64, count*channels)
	for i := range raw {
		raw[i] = float64(int16(binary.LittleEndian.Uint16(payload[2*i:])))
	}
	frames := make([]complex64, count)
	for i := range frames {
		var re, im float64
		if channels == 2 {
			re, im = raw[2*i], raw[2*i+1]
		} else {
			re = raw[i]
		}
		frames[i] = complex64(complex(re*s.GainIn, im*s.GainIn))
	}

	inputMagSq := dsp.MeanMagSq(raw) * float64(channels)
	u.inputMagSq.Store(math.Float64bits(inputMagSq))

	levelMagSq := inputMagSq * s.GainIn * s.GainIn
	open := u.updateSquelch(s, levelMagSq, count)
	channelMagSq := levelMagSq * s.GainOut * s.GainOut
	if s.ChannelMute || !open {
		channelMagSq = 0
	}
	u.channelMagSq.Store(math.Float64bits(channelMagSq))

	if dropped := u.ring.put(frames); dropped > 0 {
		u.logger.Debug("buffer overrun", logging.Field{Key: "dropped_frames", Value: dropped})
	}
	if u.spectrumOn.Load() {
		u.updateSpectrum()
	}
}

// updateSquelch opens the squelch once the level has stayed at or above the
// threshold for the gate duration, counted in input frames.
func (u *UDPSource) updateSquelch(s settings.Settings, magSq float64, frames int) bool {
	if !s.SquelchEnabled {
		u.squelchOpen.Store(true)
		return true
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if dsp.DbPower(magSq) >= s.Squelch {
		u.aboveFrames += frames
	} else {
		u.aboveFrames = 0
	}
	gateFrames := int(s.SquelchGate * s.InputSampleRate)
	open := u.aboveFrames > 0 && u.aboveFrames >= gateFrames
	u.squelchOpen.Store(open)
	return open
}

func (u *UDPSource) updateSpectrum() {
	block := make([]complex64, u.analyzer.Size())
	n := u.ring.latest(block)
	if n == 0 {
		return
	}
	bins := u.analyzer.PowerDB(block[:n])
	u.spectrumMu.Lock()
	u.spectrum = bins
	u.spectrumMu.Unlock()
}

func (u *UDPSource) runConsumer(ctx context.Context) {
	defer u.wg.Done()
	ticker := time.NewTicker(u.period)
	defer ticker.Stop()
	last := time.Now()
	carry := 0.0
	var scratch []complex64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var want int
			want, carry = u.framesDue(now.Sub(last), carry)
			last = now
			if want <= 0 {
				continue
			}
			if cap(scratch) < want {
				scratch = make([]complex64, want)
			}
			u.consume(scratch[:want])
		}
	}
}

// framesDue converts elapsed time into a frame count at the input sample
// rate, carrying the fractional part over to the next step.
func (u *UDPSource) framesDue(elapsed time.Duration, carry float64) (int, float64) {
	u.mu.Lock()
	s := u.settings
	u.mu.Unlock()

	if math.IsNaN(carry) || math.IsInf(carry, 0) {
		carry = 0
	}
	due := s.InputSampleRate*elapsed.Seconds() + carry
	if s.AutoRWBalance {
		correction := float64(u.ring.gauge()) / 1000
		if correction > maxBalanceCorrection {
			correction = maxBalanceCorrection
		} else if correction < -maxBalanceCorrection {
			correction = -maxBalanceCorrection
		}
		due *= 1 + correction
	}
	if !(due >= 0) || math.IsInf(due, 0) {
		return 0, 0
	}
	whole := math.Floor(due)
	return int(whole), due - whole
}

// consume drains frames for the modulator. An empty buffer means the
// sender stopped, so the power readouts fall to silence.
func (u *UDPSource) consume(dst []complex64) int {
	got := u.ring.take(dst)
	if got == 0 {
		u.channelMagSq.Store(0)
		u.inputMagSq.Store(0)
	}
	return got
}
