// Package settings holds the UDP source channel settings aggregate, its
// field-level validation rules and its persistence codec.
package settings

import (
	"fmt"
	"math"
)

// SampleFormat selects how the worker interprets incoming UDP samples.
type SampleFormat int

const (
	FormatS16LE SampleFormat = iota // raw I/Q, signed 16 bit little endian
	FormatNFM
	FormatLSB
	FormatUSB
	FormatAM
	formatCount
)

func (f SampleFormat) String() string {
	switch f {
	case FormatS16LE:
		return "s16le"
	case FormatNFM:
		return "nfm"
	case FormatLSB:
		return "lsb"
	case FormatUSB:
		return "usb"
	case FormatAM:
		return "am"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Valid reports whether f is one of the known formats.
func (f SampleFormat) Valid() bool {
	return f >= FormatS16LE && f < formatCount
}

// ParseSampleFormat maps a format name back to its value.
func ParseSampleFormat(s string) (SampleFormat, bool) {
	for f := FormatS16LE; f < formatCount; f++ {
		if f.String() == s {
			return f, true
		}
	}
	return FormatS16LE, false
}

const (
	DefaultSampleRate  = 48000.0
	DefaultRFBandwidth = 12500.0
	DefaultFMDeviation = 2500
	DefaultAMModFactor = 0.95
	DefaultSquelch     = -60.0
	DefaultSquelchGate = 0.05
	DefaultUDPAddress  = "127.0.0.1"
	DefaultUDPPort     = 9998
	DefaultColor       = uint32(0xE11963)

	MinSampleRate         = 1000.0
	MinUDPPort            = 1024
	MaxUDPPort            = 65535
	MaxFrequencyOffset    = 9_999_999
	SquelchDisabledLevel  = -100
	MaxSquelchGateSetting = 100
	MaxGainStep           = 100
)

// Settings is the complete channel configuration. It is a plain value:
// copies never share state.
type Settings struct {
	InputFrequencyOffset int64        `json:"inputFrequencyOffset"`
	InputSampleRate      float64      `json:"inputSampleRate"`
	RFBandwidth          float64      `json:"rfBandwidth"`
	SampleFormat         SampleFormat `json:"sampleFormat"`
	FMDeviation          int          `json:"fmDeviation"`
	AMModFactor          float64      `json:"amModFactor"`
	GainIn               float64      `json:"gainIn"`
	GainOut              float64      `json:"gainOut"`
	SquelchEnabled       bool         `json:"squelchEnabled"`
	Squelch              float64      `json:"squelch"`
	SquelchGate          float64      `json:"squelchGate"`
	ChannelMute          bool         `json:"channelMute"`
	AutoRWBalance        bool         `json:"autoRWBalance"`
	StereoInput          bool         `json:"stereoInput"`
	UDPAddress           string       `json:"udpAddress"`
	UDPPort              int          `json:"udpPort"`
	Color                uint32       `json:"color"`
}

// Defaults returns the construction-time settings.
func Defaults() Settings {
	return Settings{
		InputFrequencyOffset: 0,
		InputSampleRate:      DefaultSampleRate,
		RFBandwidth:          DefaultRFBandwidth,
		SampleFormat:         FormatS16LE,
		FMDeviation:          DefaultFMDeviation,
		AMModFactor:          DefaultAMModFactor,
		GainIn:               1.0,
		GainOut:              1.0,
		SquelchEnabled:       true,
		Squelch:              DefaultSquelch,
		SquelchGate:          DefaultSquelchGate,
		ChannelMute:          false,
		AutoRWBalance:        true,
		StereoInput:          true,
		UDPAddress:           DefaultUDPAddress,
		UDPPort:              DefaultUDPPort,
		Color:                DefaultColor,
	}
}

// ResetToDefaults restores every field to its construction-time value.
func (s *Settings) ResetToDefaults() {
	*s = Defaults()
}

// Normalize re-establishes the invariants between dependent fields and
// reports whether anything changed.
func (s *Settings) Normalize() bool {
	changed := false
	if !s.SampleFormat.Valid() {
		s.SampleFormat = FormatS16LE
		changed = true
	}
	if s.SampleFormat == FormatS16LE && !s.StereoInput {
		s.StereoInput = true
		changed = true
	}
	if s.RFBandwidth > s.InputSampleRate {
		s.RFBandwidth = s.InputSampleRate
		changed = true
	}
	return changed
}

// FMDeviationActive reports whether FMDeviation is meaningful for the
// current format.
func (s Settings) FMDeviationActive() bool { return s.SampleFormat == FormatNFM }

// AMModActive reports whether AMModFactor is meaningful for the current format.
func (s Settings) AMModActive() bool { return s.SampleFormat == FormatAM }

// StereoSelectable reports whether the stereo input flag may be changed.
func (s Settings) StereoSelectable() bool { return s.SampleFormat != FormatS16LE }

// Validate checks the invariants a committed aggregate must satisfy. Every
// float comparison is written so that NaN fails it.
func (s Settings) Validate() error {
	switch {
	case !s.SampleFormat.Valid():
		return fmt.Errorf("unknown sample format %d", int(s.SampleFormat))
	case !(s.InputSampleRate >= MinSampleRate) || math.IsInf(s.InputSampleRate, 0):
		return fmt.Errorf("sample rate %v not a finite value >= %.0f Hz", s.InputSampleRate, MinSampleRate)
	case !(s.RFBandwidth > 0):
		return fmt.Errorf("rf bandwidth %v must be positive", s.RFBandwidth)
	case s.RFBandwidth > s.InputSampleRate:
		return fmt.Errorf("rf bandwidth %.0f exceeds sample rate %.0f", s.RFBandwidth, s.InputSampleRate)
	case s.FMDeviation < 1:
		return fmt.Errorf("fm deviation %d below 1 Hz", s.FMDeviation)
	case !(s.AMModFactor > 0 && s.AMModFactor <= 1):
		return fmt.Errorf("am modulation factor %v outside (0,1]", s.AMModFactor)
	case !finite(s.GainIn) || !finite(s.GainOut):
		return fmt.Errorf("gains must be finite, got in=%v out=%v", s.GainIn, s.GainOut)
	case !finite(s.Squelch):
		return fmt.Errorf("squelch level %v not finite", s.Squelch)
	case !(s.SquelchGate >= 0 && s.SquelchGate <= 1):
		return fmt.Errorf("squelch gate %v outside [0,1] s", s.SquelchGate)
	case s.UDPPort < MinUDPPort || s.UDPPort > MaxUDPPort:
		return fmt.Errorf("udp port %d outside [%d,%d]", s.UDPPort, MinUDPPort, MaxUDPPort)
	case !validIPv4(s.UDPAddress):
		return fmt.Errorf("udp address %q is not a dotted IPv4 address", s.UDPAddress)
	case s.InputFrequencyOffset < -MaxFrequencyOffset || s.InputFrequencyOffset > MaxFrequencyOffset:
		return fmt.Errorf("frequency offset %d out of range", s.InputFrequencyOffset)
	case s.SampleFormat == FormatS16LE && !s.StereoInput:
		return fmt.Errorf("s16le input must be stereo")
	}
	return nil
}
