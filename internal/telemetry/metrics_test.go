package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsFollowRefreshedReadout(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Report(Snapshot{ChannelPowerDB: -30, InputPowerDB: -20, PowerRefreshed: true, BufferGauge: -4, SquelchOpen: true})
	m.Report(Snapshot{ChannelPowerDB: -99, InputPowerDB: -99, BufferGauge: 7})

	assert.Equal(t, -30.0, testutil.ToFloat64(m.channelPower))
	assert.Equal(t, -20.0, testutil.ToFloat64(m.inputPower))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.bufferGauge))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.squelchOpen))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
}

func TestMetricsControllerEvents(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.OnApply(true)
	m.OnApply(false)
	m.OnApply(false)
	m.OnEcho()
	m.OnUnhandled("mystery")
	m.OnDeserializeFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.applies.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.applies.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.echoes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unhandled.WithLabelValues("mystery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deserializeFailures))
}
