package worker

import (
	"context"
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/udpsource/internal/logging"
	"github.com/rjboer/udpsource/internal/message"
	"github.com/rjboer/udpsource/internal/settings"
)

func newTestSource(t *testing.T) *UDPSource {
	t.Helper()
	u := NewUDPSource(Config{BufferFrames: 1 << 14, Logger: logging.Nop()})
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func testSettings(t *testing.T) settings.Settings {
	s := settings.Defaults()
	s.SetUDPPort(freePort(t))
	return s
}

// stereoBlock encodes n I/Q frames with a constant I value.
func stereoBlock(n int, i int16) []byte {
	buf := make([]byte, 0, 4*n)
	for k := 0; k < n; k++ {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(i))
		buf = binary.LittleEndian.AppendUint16(buf, 0)
	}
	return buf
}

func TestHandleChannelizer(t *testing.T) {
	u := newTestSource(t)
	u.handle(message.ConfigureChannelizer{SampleRate: 96000, FrequencyOffset: -1200})
	rate, offset := u.Channelizer()
	assert.Equal(t, 96000.0, rate)
	assert.Equal(t, int64(-1200), offset)
}

func TestApplySettingsEchoesOnlyWhenNormalized(t *testing.T) {
	u := newTestSource(t)
	toController := message.NewQueue()
	u.SetMessageQueueToController(toController)

	s := testSettings(t)
	u.handle(message.ConfigureSettings{Settings: s, Force: true})
	assert.Zero(t, toController.Len(), "normalized settings are not echoed")
	require.NotNil(t, u.LocalAddr())
	assert.Equal(t, s.UDPPort, u.LocalAddr().Port)

	s.StereoInput = false
	s.RFBandwidth = 1e9
	u.handle(message.ConfigureSettings{Settings: s})
	m, ok := toController.Pop()
	require.True(t, ok)
	echo, isEcho := m.(message.SettingsEcho)
	require.True(t, isEcho)
	assert.True(t, echo.Settings.StereoInput)
	assert.Equal(t, s.InputSampleRate, echo.Settings.RFBandwidth)
	assert.Equal(t, echo.Settings, u.Settings())
}

func TestIngestMeasuresPowerAndGatesSquelch(t *testing.T) {
	u := newTestSource(t)
	s := settings.Defaults()
	u.mu.Lock()
	u.settings = s
	u.mu.Unlock()

	// half scale on I only: |0.5|^2
	u.ingest(stereoBlock(100, 16384))
	assert.InDelta(t, 0.25, u.InputMagSq(), 1e-9)
	assert.False(t, u.SquelchOpen(), "gate not yet elapsed")
	assert.Zero(t, u.ChannelMagSq())

	gate := int(s.SquelchGate * s.InputSampleRate)
	u.ingest(stereoBlock(gate, 16384))
	assert.True(t, u.SquelchOpen())
	assert.InDelta(t, 0.25, u.ChannelMagSq(), 1e-9)

	u.ingest(stereoBlock(10, 10))
	assert.False(t, u.SquelchOpen(), "below threshold closes immediately")
}

func TestIngestMuteAndDisabledSquelch(t *testing.T) {
	u := newTestSource(t)
	s := settings.Defaults()
	s.SetSquelchLevel(settings.SquelchDisabledLevel)
	s.SetGainOutStep(20)
	u.mu.Lock()
	u.settings = s
	u.mu.Unlock()

	u.ingest(stereoBlock(10, 16384))
	assert.True(t, u.SquelchOpen())
	assert.InDelta(t, 1.0, u.ChannelMagSq(), 1e-9)

	s.ChannelMute = true
	u.mu.Lock()
	u.settings = s
	u.mu.Unlock()
	u.ingest(stereoBlock(10, 16384))
	assert.Zero(t, u.ChannelMagSq())
	assert.InDelta(t, 0.25, u.InputMagSq(), 1e-9)
}

func TestSpectrumFollowsToggle(t *testing.T) {
	u := newTestSource(t)
	assert.Nil(t, u.Spectrum())
	u.SetSpectrum(true)
	u.ingest(stereoBlock(128, 8000))
	assert.Len(t, u.Spectrum(), defaultSpectrumSize)
	u.SetSpectrum(false)
	assert.Nil(t, u.Spectrum())
}

func TestFramesDueBalancesReadRate(t *testing.T) {
	u := newTestSource(t)
	s := settings.Defaults()
	s.AutoRWBalance = false
	u.mu.Lock()
	u.settings = s
	u.mu.Unlock()

	n, carry := u.framesDue(20*time.Millisecond, 0)
	assert.Equal(t, 960, n)
	assert.Zero(t, carry)

	n, carry = u.framesDue(10*time.Microsecond, 0.9)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 0.38, carry, 1e-9)

	s.AutoRWBalance = true
	u.mu.Lock()
	u.settings = s
	u.mu.Unlock()
	// empty buffer reads as a -50 gauge, so the reader slows down
	n, _ = u.framesDue(20*time.Millisecond, 0)
	assert.Equal(t, 912, n)
}

func TestFramesDueRecoversFromNonFiniteRate(t *testing.T) {
	u := newTestSource(t)
	s := settings.Defaults()
	s.AutoRWBalance = false
	s.InputSampleRate = math.Inf(1)
	u.mu.Lock()
	u.settings = s
	u.mu.Unlock()

	n, carry := u.framesDue(20*time.Millisecond, 0)
	assert.Zero(t, n)
	assert.Zero(t, carry)

	s.InputSampleRate = settings.DefaultSampleRate
	u.mu.Lock()
	u.settings = s
	u.mu.Unlock()
	n, carry = u.framesDue(20*time.Millisecond, math.NaN())
	assert.Equal(t, 960, n)
	assert.Zero(t, carry)
}

func TestConsumeSilencesEmptyBuffer(t *testing.T) {
	u := newTestSource(t)
	u.inputMagSq.Store(1)
	u.channelMagSq.Store(1)
	assert.Zero(t, u.consume(make([]complex64, 8)))
	assert.Zero(t, u.InputMagSq())
	assert.Zero(t, u.ChannelMagSq())
}

func TestReceivesDatagrams(t *testing.T) {
	u := newTestSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	u.Start(ctx)

	s := testSettings(t)
	u.InputMessageQueue().Push(message.ConfigureSettings{Settings: s, Force: true})
	require.Eventually(t, func() bool { return u.LocalAddr() != nil }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.DialUDP("udp4", nil, u.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		if _, err := conn.Write(stereoBlock(4096, 16384)); err != nil {
			return false
		}
		return u.InputMagSq() > 0.2
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, u.Close())
	assert.Nil(t, u.LocalAddr())
}
