package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rjboer/udpsource/internal/dsp"
	"github.com/rjboer/udpsource/internal/logging"
)

// Config represents the runtime configuration exposed by the telemetry hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
}

const (
	minHistoryLimit     = 1
	maxHistoryLimit     = 10_000
	defaultHistoryLimit = 500

	liveWriteTimeout = 5 * time.Second
	livePingInterval = 30 * time.Second
)

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 {
		base.HistoryLimit = defaultHistoryLimit
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return cfg, nil
}

// SpectrumSnapshot is the most recent spectrum published by the worker.
type SpectrumSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Bins      []float64 `json:"bins"`
	PeakBin   int       `json:"peakBin"`
	Source    string    `json:"source"`
}

// Hub collects history and fans out telemetry snapshots to subscribers.
type Hub struct {
	mu          sync.RWMutex
	history     []Snapshot
	latest      Snapshot
	hasLatest   bool
	spectrum    SpectrumSnapshot
	subscribers map[chan Snapshot]struct{}
	config      Config

	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewHub builds a telemetry hub with the provided history limit.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg, err := validateConfig(Config{HistoryLimit: historyLimit}, Config{})
	if err != nil {
		cfg = Config{HistoryLimit: defaultHistoryLimit}
	}
	return &Hub{
		subscribers: make(map[chan Snapshot]struct{}),
		config:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With(logging.Field{Key: "subsystem", Value: "telemetry_hub"}),
	}
}

// Report implements Reporter and records a new snapshot.
func (h *Hub) Report(snap Snapshot) {
	h.mu.Lock()
	h.latest = snap
	h.hasLatest = true
	h.history = append(h.history, snap)
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
	h.mu.Unlock()
}

// Latest returns the most recent snapshot and whether one exists.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.hasLatest
}

// History returns a copy of stored snapshots, oldest first.
func (h *Hub) History() []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Snapshot, len(h.history))
	copy(out, h.history)
	return out
}

// UpdateSpectrum stores the latest spectrum bins.
func (h *Hub) UpdateSpectrum(bins []float64, source string) {
	snap := SpectrumSnapshot{
		Timestamp: time.Now(),
		Bins:      append([]float64(nil), bins...),
		PeakBin:   dsp.PeakBin(bins),
		Source:    source,
	}
	h.mu.Lock()
	h.spectrum = snap
	h.mu.Unlock()
}

// SpectrumFeed returns a Reporter that copies bins from source into the hub
// on refreshed ticks. A nil result from source leaves the stored spectrum
// untouched.
func (h *Hub) SpectrumFeed(source func() []float64, name string) Reporter {
	return ReporterFunc(func(snap Snapshot) {
		if !snap.PowerRefreshed {
			return
		}
		if bins := source(); bins != nil {
			h.UpdateSpectrum(bins, name)
		}
	})
}

// Spectrum returns a copy of the latest spectrum.
func (h *Hub) Spectrum() SpectrumSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := h.spectrum
	out.Bins = append([]float64(nil), h.spectrum.Bins...)
	return out
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	if len(h.history) > cfg.HistoryLimit {
		h.history = h.history[len(h.history)-cfg.HistoryLimit:]
	}
}

// Routes mounts the telemetry endpoints on r.
func (h *Hub) Routes(r *mux.Router) {
	r.HandleFunc("/telemetry", h.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/telemetry/history", h.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/telemetry/spectrum", h.handleSpectrum).Methods(http.MethodGet)
	r.HandleFunc("/telemetry/config", h.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/telemetry/config", h.handleSetConfig).Methods(http.MethodPost)
	r.HandleFunc("/telemetry/live", h.handleLive)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) handleLatest(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.Latest()
	if !ok {
		http.Error(w, "no telemetry yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.History())
}

func (h *Hub) handleSpectrum(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.Spectrum())
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	cfg, err := validateConfig(incoming, h.config)
	if err == nil {
		h.applyConfig(cfg)
	}
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, cfg)
}

// handleLive streams snapshots over a websocket, starting with the stored
// history.
func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Field{Key: "error", Value: err})
		return
	}
	defer conn.Close()

	ch, cancel := h.Subscribe()
	defer cancel()

	// reader goroutine notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snap Snapshot) error {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		return conn.WriteJSON(snap)
	}
	for _, snap := range h.History() {
		if err := send(snap); err != nil {
			return
		}
	}

	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := send(snap); err != nil {
				h.logger.Debug("live client write failed", logging.Field{Key: "error", Value: err})
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
