package settings

import (
	"math"
	"net"
	"strconv"
	"strings"
)

// Setters below never fail. Input that cannot be parsed or falls outside a
// field's accepted range is replaced by that field's default.

// SetFrequencyOffset sets the channel offset, clamped to the marker range.
func (s *Settings) SetFrequencyOffset(hz int64) {
	switch {
	case hz > MaxFrequencyOffset:
		hz = MaxFrequencyOffset
	case hz < -MaxFrequencyOffset:
		hz = -MaxFrequencyOffset
	}
	s.InputFrequencyOffset = hz
}

// SetSampleRate commits rate, or 48000 when rate is below 1000 Hz or not a
// number. The RF bandwidth is re-clamped against the new rate.
func (s *Settings) SetSampleRate(rate float64) {
	if !finite(rate) || rate < MinSampleRate {
		rate = DefaultSampleRate
	}
	s.InputSampleRate = rate
	if s.RFBandwidth > s.InputSampleRate {
		s.RFBandwidth = s.InputSampleRate
	}
}

// SetSampleRateText parses text as a sample rate in Hz.
func (s *Settings) SetSampleRateText(text string) {
	s.SetSampleRate(parseFloat(text))
}

// SetRFBandwidth commits min(bw, InputSampleRate). A value that is not a
// positive number commits the sample rate.
func (s *Settings) SetRFBandwidth(bw float64) {
	if !(bw > 0) || bw > s.InputSampleRate {
		bw = s.InputSampleRate
	}
	s.RFBandwidth = bw
}

// SetRFBandwidthText parses text as a bandwidth in Hz.
func (s *Settings) SetRFBandwidthText(text string) {
	s.SetRFBandwidth(parseFloat(text))
}

// SetSampleFormat selects the input format. Unknown values select S16LE,
// which forces stereo input.
func (s *Settings) SetSampleFormat(f SampleFormat) {
	if !f.Valid() {
		f = FormatS16LE
	}
	s.SampleFormat = f
	if f == FormatS16LE {
		s.StereoInput = true
	}
}

// SetSampleFormatText accepts either a format name or its index.
func (s *Settings) SetSampleFormatText(text string) {
	text = strings.ToLower(strings.TrimSpace(text))
	if f, ok := ParseSampleFormat(text); ok {
		s.SetSampleFormat(f)
		return
	}
	idx, err := strconv.Atoi(text)
	if err != nil {
		idx = int(FormatS16LE)
	}
	s.SetSampleFormat(SampleFormat(idx))
}

// SetFMDeviation commits dev Hz, or 2500 when dev < 1.
func (s *Settings) SetFMDeviation(dev int) {
	if dev < 1 {
		dev = DefaultFMDeviation
	}
	s.FMDeviation = dev
}

// SetFMDeviationText parses text as an integer deviation in Hz.
func (s *Settings) SetFMDeviationText(text string) {
	dev, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		dev = DefaultFMDeviation
	}
	s.SetFMDeviation(dev)
}

// SetAMModPercent commits percent/100, or 0.95 outside [1,100].
func (s *Settings) SetAMModPercent(percent int) {
	if percent < 1 || percent > 100 {
		s.AMModFactor = DefaultAMModFactor
		return
	}
	s.AMModFactor = float64(percent) / 100.0
}

// SetAMModPercentText parses text as an integer percentage.
func (s *Settings) SetAMModPercentText(text string) {
	p, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		p = 0
	}
	s.SetAMModPercent(p)
}

// AMModPercent is the rounded percentage shown for AMModFactor.
func (s Settings) AMModPercent() int {
	return int(math.Round(s.AMModFactor * 100))
}

// SetGainInStep sets the input gain from a slider position in tenths.
func (s *Settings) SetGainInStep(step int) {
	s.GainIn = float64(step) / 10.0
}

// SetGainOutStep sets the output gain from a slider position in tenths.
func (s *Settings) SetGainOutStep(step int) {
	s.GainOut = float64(step) / 10.0
}

// SetSquelchLevel sets the squelch threshold in dB. The bottom of the range
// disables squelch.
func (s *Settings) SetSquelchLevel(db int) {
	s.SquelchEnabled = db != SquelchDisabledLevel
	s.Squelch = float64(db)
}

// SetSquelchGateStep sets the gate from a 0-100 slider position in hundredths
// of a second.
func (s *Settings) SetSquelchGateStep(step int) {
	switch {
	case step < 0:
		step = 0
	case step > MaxSquelchGateSetting:
		step = MaxSquelchGateSetting
	}
	s.SquelchGate = float64(step) / 100.0
}

// SetStereoInput is ignored while the format forces stereo.
func (s *Settings) SetStereoInput(stereo bool) {
	if s.SampleFormat == FormatS16LE {
		s.StereoInput = true
		return
	}
	s.StereoInput = stereo
}

// SetUDPAddress commits a dotted IPv4 address, or 127.0.0.1 otherwise.
func (s *Settings) SetUDPAddress(addr string) {
	addr = strings.TrimSpace(addr)
	if !validIPv4(addr) {
		addr = DefaultUDPAddress
	}
	s.UDPAddress = addr
}

// SetUDPPort commits port, or 9998 when it is outside [1024,65535].
func (s *Settings) SetUDPPort(port int) {
	if port < MinUDPPort || port > MaxUDPPort {
		port = DefaultUDPPort
	}
	s.UDPPort = port
}

// SetUDPPortText parses text as a port number.
func (s *Settings) SetUDPPortText(text string) {
	port, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		port = DefaultUDPPort
	}
	s.SetUDPPort(port)
}

func validIPv4(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() != nil && !strings.Contains(addr, ":")
}

func parseFloat(text string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
