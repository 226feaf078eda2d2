package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsSatisfyInvariants(t *testing.T) {
	s := Defaults()
	assert.NoError(t, s.Validate())
	assert.False(t, s.Normalize(), "defaults must already be normalized")
}

func TestSampleRateEdits(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"44100", 44100},
		{" 96000 ", 96000},
		{"1000", 1000},
		{"999.9", DefaultSampleRate},
		{"-5", DefaultSampleRate},
		{"abc", DefaultSampleRate},
		{"", DefaultSampleRate},
		{"NaN", DefaultSampleRate},
		{"Inf", DefaultSampleRate},
	}
	for _, tc := range cases {
		s := Defaults()
		s.InputSampleRate = 12345
		s.SetSampleRateText(tc.in)
		if s.InputSampleRate != tc.want {
			t.Fatalf("sample rate %q: expected %v got %v", tc.in, tc.want, s.InputSampleRate)
		}
	}
}

func TestSampleRateDecreaseReclampsBandwidth(t *testing.T) {
	s := Defaults()
	s.SetSampleRate(96000)
	s.SetRFBandwidth(80000)
	s.SetSampleRate(8000)
	assert.Equal(t, 8000.0, s.RFBandwidth)
	assert.NoError(t, s.Validate())
}

func TestBandwidthEditsClampToSampleRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"10000", 10000},
		{"48000", 48000},
		{"48001", 48000},
		{"1e9", 48000},
		{"not-a-number", 48000},
		{"0", 48000},
		{"-5000", 48000},
		{"NaN", 48000},
	}
	for _, tc := range cases {
		s := Defaults()
		s.SetRFBandwidthText(tc.in)
		if s.RFBandwidth != tc.want {
			t.Fatalf("bandwidth %q: expected %v got %v", tc.in, tc.want, s.RFBandwidth)
		}
	}
}

func TestUDPPortEdits(t *testing.T) {
	cases := map[string]int{
		"1024":  1024,
		"9999":  9999,
		"65535": 65535,
		"1023":  DefaultUDPPort,
		"0":     DefaultUDPPort,
		"-1":    DefaultUDPPort,
		"70000": DefaultUDPPort,
		"port":  DefaultUDPPort,
	}
	for in, want := range cases {
		s := Defaults()
		s.UDPPort = 2000
		s.SetUDPPortText(in)
		assert.Equal(t, want, s.UDPPort, in)
	}
}

func TestAMModPercentEdits(t *testing.T) {
	s := Defaults()
	s.SetAMModPercentText("30")
	assert.InDelta(t, 0.30, s.AMModFactor, 1e-12)
	assert.Equal(t, 30, s.AMModPercent())

	s.SetAMModPercentText("150")
	assert.Equal(t, 0.95, s.AMModFactor)

	s.SetAMModPercentText("0")
	assert.Equal(t, 0.95, s.AMModFactor)

	s.SetAMModPercent(100)
	assert.Equal(t, 1.0, s.AMModFactor)

	s.SetAMModPercentText("x")
	assert.Equal(t, 0.95, s.AMModFactor)
}

func TestFMDeviationEdits(t *testing.T) {
	s := Defaults()
	s.SetFMDeviationText("5000")
	assert.Equal(t, 5000, s.FMDeviation)
	s.SetFMDeviationText("0")
	assert.Equal(t, DefaultFMDeviation, s.FMDeviation)
	s.SetFMDeviationText("wide")
	assert.Equal(t, DefaultFMDeviation, s.FMDeviation)
}

func TestSampleFormatForcesStereo(t *testing.T) {
	s := Defaults()
	s.SetSampleFormat(FormatNFM)
	s.SetStereoInput(false)
	assert.False(t, s.StereoInput)
	assert.True(t, s.FMDeviationActive())

	s.SetSampleFormat(FormatS16LE)
	assert.True(t, s.StereoInput)
	s.SetStereoInput(false)
	assert.True(t, s.StereoInput, "stereo is locked for s16le")

	s.SetSampleFormatText("am")
	assert.Equal(t, FormatAM, s.SampleFormat)
	assert.True(t, s.AMModActive())

	s.SetSampleFormatText("3")
	assert.Equal(t, FormatUSB, s.SampleFormat)

	s.SetStereoInput(false)
	s.SetSampleFormatText("17")
	assert.Equal(t, FormatS16LE, s.SampleFormat)
	assert.True(t, s.StereoInput)
}

func TestSquelchControls(t *testing.T) {
	s := Defaults()
	s.SetSquelchLevel(-100)
	assert.False(t, s.SquelchEnabled)
	assert.Equal(t, -100.0, s.Squelch)

	s.SetSquelchLevel(-40)
	assert.True(t, s.SquelchEnabled)
	assert.Equal(t, -40.0, s.Squelch)

	s.SetSquelchGateStep(25)
	assert.InDelta(t, 0.25, s.SquelchGate, 1e-12)
	s.SetSquelchGateStep(250)
	assert.Equal(t, 1.0, s.SquelchGate)
}

func TestGainSteps(t *testing.T) {
	s := Defaults()
	s.SetGainInStep(-15)
	s.SetGainOutStep(32)
	assert.InDelta(t, -1.5, s.GainIn, 1e-12)
	assert.InDelta(t, 3.2, s.GainOut, 1e-12)
}

func TestFrequencyOffsetClamp(t *testing.T) {
	s := Defaults()
	s.SetFrequencyOffset(12_000_000)
	assert.Equal(t, int64(MaxFrequencyOffset), s.InputFrequencyOffset)
	s.SetFrequencyOffset(-12_000_000)
	assert.Equal(t, int64(-MaxFrequencyOffset), s.InputFrequencyOffset)
	s.SetFrequencyOffset(-2500)
	assert.Equal(t, int64(-2500), s.InputFrequencyOffset)
}

func TestUDPAddressEdits(t *testing.T) {
	s := Defaults()
	s.SetUDPAddress("192.168.1.20")
	assert.Equal(t, "192.168.1.20", s.UDPAddress)
	s.SetUDPAddress("localhost")
	assert.Equal(t, DefaultUDPAddress, s.UDPAddress)
	s.SetUDPAddress("::1")
	assert.Equal(t, DefaultUDPAddress, s.UDPAddress)
}

func TestResetToDefaults(t *testing.T) {
	s := Defaults()
	s.SetSampleFormat(FormatLSB)
	s.SetUDPPort(4000)
	s.ChannelMute = true
	s.ResetToDefaults()
	assert.Equal(t, Defaults(), s)
}

func TestNormalizeRepairsDependentFields(t *testing.T) {
	s := Defaults()
	s.StereoInput = false
	s.RFBandwidth = 96000
	assert.True(t, s.Normalize())
	assert.True(t, s.StereoInput)
	assert.Equal(t, s.InputSampleRate, s.RFBandwidth)
	assert.False(t, s.Normalize())
}
