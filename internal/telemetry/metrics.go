package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports snapshots and controller events to Prometheus. It
// implements Reporter and the controller's event observer.
type Metrics struct {
	channelPower prometheus.Gauge
	inputPower   prometheus.Gauge
	bufferGauge  prometheus.Gauge
	squelchOpen  prometheus.Gauge
	ticks        prometheus.Counter

	applies             *prometheus.CounterVec
	echoes              prometheus.Counter
	unhandled           *prometheus.CounterVec
	deserializeFailures prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg selects the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		channelPower: f.NewGauge(prometheus.GaugeOpts{
			Name: "udpsource_channel_power_db",
			Help: "Averaged channel power in dB, refreshed on decimated ticks",
		}),
		inputPower: f.NewGauge(prometheus.GaugeOpts{
			Name: "udpsource_input_power_db",
			Help: "Averaged UDP input power in dB, refreshed on decimated ticks",
		}),
		bufferGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "udpsource_buffer_gauge_percent",
			Help: "Signed distance of the sample buffer from its ideal fill, negative on under-run",
		}),
		squelchOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "udpsource_squelch_open",
			Help: "1 while the squelch is open",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "udpsource_ticks_total",
			Help: "Telemetry ticks processed",
		}),
		applies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "udpsource_applies_total",
			Help: "Settings pushed to the worker",
		}, []string{"force"}),
		echoes: f.NewCounter(prometheus.CounterOpts{
			Name: "udpsource_settings_echoes_total",
			Help: "Settings echoes received from the worker",
		}),
		unhandled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "udpsource_unhandled_messages_total",
			Help: "Inbound messages the controller did not recognize",
		}, []string{"kind"}),
		deserializeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "udpsource_deserialize_failures_total",
			Help: "Settings blobs rejected on load",
		}),
	}
}

// Report updates the gauges. Power gauges only move on refreshed ticks so
// they match the displayed readout.
func (m *Metrics) Report(snap Snapshot) {
	m.ticks.Inc()
	if snap.PowerRefreshed {
		m.channelPower.Set(snap.ChannelPowerDB)
		m.inputPower.Set(snap.InputPowerDB)
	}
	m.bufferGauge.Set(float64(snap.BufferGauge))
	if snap.SquelchOpen {
		m.squelchOpen.Set(1)
	} else {
		m.squelchOpen.Set(0)
	}
}

func (m *Metrics) OnApply(force bool) {
	if force {
		m.applies.WithLabelValues("true").Inc()
		return
	}
	m.applies.WithLabelValues("false").Inc()
}

func (m *Metrics) OnEcho() { m.echoes.Inc() }

func (m *Metrics) OnUnhandled(kind string) { m.unhandled.WithLabelValues(kind).Inc() }

func (m *Metrics) OnDeserializeFailure() { m.deserializeFailures.Inc() }
