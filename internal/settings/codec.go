package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
)

// Blob layout:
//
//	magic "UDPS" | version | tag len value ... | EOL (0) | CRC-32 (IEEE, big endian)
//
// Numeric values are big endian with leading zero bytes suppressed, so a zero
// value has length 0. Unknown tags are skipped; missing tags keep defaults.
const (
	codecVersion = 1
	tagEOL       = 0
)

var codecMagic = [4]byte{'U', 'D', 'P', 'S'}

const (
	tagFrequencyOffset byte = iota + 1
	tagSampleRate
	tagRFBandwidth
	tagSampleFormat
	tagFMDeviation
	tagAMModFactor
	tagGainIn
	tagGainOut
	tagSquelchEnabled
	tagSquelch
	tagSquelchGate
	tagChannelMute
	tagAutoRWBalance
	tagStereoInput
	tagUDPAddress
	tagUDPPort
	tagColor
)

var (
	ErrBadMagic   = errors.New("settings: not a settings blob")
	ErrVersion    = errors.New("settings: unsupported blob version")
	ErrTruncated  = errors.New("settings: truncated blob")
	ErrChecksum   = errors.New("settings: checksum mismatch")
	ErrMalformed  = errors.New("settings: malformed field")
	ErrOutOfRange = errors.New("settings: decoded value violates invariants")
)

// Serialize encodes every field of s deterministically.
func (s Settings) Serialize() []byte {
	buf := make([]byte, 0, 160)
	buf = append(buf, codecMagic[:]...)
	buf = append(buf, codecVersion)

	buf = encodeUint(buf, tagFrequencyOffset, uint64(s.InputFrequencyOffset))
	buf = encodeDouble(buf, tagSampleRate, s.InputSampleRate)
	buf = encodeDouble(buf, tagRFBandwidth, s.RFBandwidth)
	buf = encodeUint(buf, tagSampleFormat, uint64(s.SampleFormat))
	buf = encodeUint(buf, tagFMDeviation, uint64(int64(s.FMDeviation)))
	buf = encodeDouble(buf, tagAMModFactor, s.AMModFactor)
	buf = encodeDouble(buf, tagGainIn, s.GainIn)
	buf = encodeDouble(buf, tagGainOut, s.GainOut)
	buf = encodeBool(buf, tagSquelchEnabled, s.SquelchEnabled)
	buf = encodeDouble(buf, tagSquelch, s.Squelch)
	buf = encodeDouble(buf, tagSquelchGate, s.SquelchGate)
	buf = encodeBool(buf, tagChannelMute, s.ChannelMute)
	buf = encodeBool(buf, tagAutoRWBalance, s.AutoRWBalance)
	buf = encodeBool(buf, tagStereoInput, s.StereoInput)
	buf = encodeString(buf, tagUDPAddress, s.UDPAddress)
	buf = encodeUint(buf, tagUDPPort, uint64(int64(s.UDPPort)))
	buf = encodeUint(buf, tagColor, uint64(s.Color))

	buf = append(buf, tagEOL)
	return binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
}

// Deserialize decodes a blob produced by Serialize. On error the returned
// Settings is the zero value and must be discarded.
func Deserialize(data []byte) (Settings, error) {
	const header = len(codecMagic) + 1
	if len(data) < header+1+crc32.Size {
		if len(data) >= len(codecMagic) && [4]byte(data[:4]) != codecMagic {
			return Settings{}, ErrBadMagic
		}
		return Settings{}, ErrTruncated
	}
	if [4]byte(data[:4]) != codecMagic {
		return Settings{}, ErrBadMagic
	}
	if data[4] != codecVersion {
		return Settings{}, fmt.Errorf("%w: %d", ErrVersion, data[4])
	}
	body, sum := data[:len(data)-crc32.Size], data[len(data)-crc32.Size:]
	if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(sum) {
		return Settings{}, ErrChecksum
	}

	out := Defaults()
	p := body[header:]
	for {
		if len(p) == 0 {
			return Settings{}, ErrTruncated
		}
		tag := p[0]
		if tag == tagEOL {
			if len(p) != 1 {
				return Settings{}, fmt.Errorf("%w: trailing bytes after end marker", ErrMalformed)
			}
			break
		}
		if len(p) < 2 {
			return Settings{}, ErrTruncated
		}
		n := int(p[1])
		if len(p) < 2+n {
			return Settings{}, ErrTruncated
		}
		value := p[2 : 2+n]
		p = p[2+n:]
		if err := out.decodeField(tag, value); err != nil {
			return Settings{}, err
		}
	}

	if err := out.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	return out, nil
}

func (s *Settings) decodeField(tag byte, value []byte) error {
	switch tag {
	case tagUDPAddress:
		s.UDPAddress = string(value)
		return nil
	case tagFrequencyOffset, tagSampleRate, tagRFBandwidth, tagSampleFormat, tagFMDeviation,
		tagAMModFactor, tagGainIn, tagGainOut, tagSquelchEnabled, tagSquelch, tagSquelchGate,
		tagChannelMute, tagAutoRWBalance, tagStereoInput, tagUDPPort, tagColor:
	default:
		// written by a newer version
		return nil
	}

	if len(value) > 8 {
		return fmt.Errorf("%w: tag %d has %d bytes", ErrMalformed, tag, len(value))
	}
	var x uint64
	for _, b := range value {
		x = x<<8 | uint64(b)
	}

	switch tag {
	case tagFrequencyOffset:
		s.InputFrequencyOffset = int64(x)
	case tagSampleRate:
		s.InputSampleRate = math.Float64frombits(x)
	case tagRFBandwidth:
		s.RFBandwidth = math.Float64frombits(x)
	case tagSampleFormat:
		s.SampleFormat = SampleFormat(int64(x))
	case tagFMDeviation:
		s.FMDeviation = int(int64(x))
	case tagAMModFactor:
		s.AMModFactor = math.Float64frombits(x)
	case tagGainIn:
		s.GainIn = math.Float64frombits(x)
	case tagGainOut:
		s.GainOut = math.Float64frombits(x)
	case tagSquelchEnabled:
		s.SquelchEnabled = x != 0
	case tagSquelch:
		s.Squelch = math.Float64frombits(x)
	case tagSquelchGate:
		s.SquelchGate = math.Float64frombits(x)
	case tagChannelMute:
		s.ChannelMute = x != 0
	case tagAutoRWBalance:
		s.AutoRWBalance = x != 0
	case tagStereoInput:
		s.StereoInput = x != 0
	case tagUDPPort:
		s.UDPPort = int(int64(x))
	case tagColor:
		if x > math.MaxUint32 {
			return fmt.Errorf("%w: color overflows 32 bits", ErrMalformed)
		}
		s.Color = uint32(x)
	}
	return nil
}

func encodeUint(buf []byte, tag byte, x uint64) []byte {
	buf = append(buf, tag)
	length := 8
	for length > 0 && x>>56 == 0 {
		x <<= 8
		length--
	}
	buf = append(buf, byte(length))
	for i := 0; i < length; i++ {
		buf = append(buf, byte(x>>56))
		x <<= 8
	}
	return buf
}

func encodeDouble(buf []byte, tag byte, v float64) []byte {
	return encodeUint(buf, tag, math.Float64bits(v))
}

func encodeBool(buf []byte, tag byte, v bool) []byte {
	if v {
		return encodeUint(buf, tag, 1)
	}
	return encodeUint(buf, tag, 0)
}

// Strings longer than 255 bytes are cut; an IPv4 address never is.
func encodeString(buf []byte, tag byte, v string) []byte {
	if len(v) > math.MaxUint8 {
		v = v[:math.MaxUint8]
	}
	buf = append(buf, tag, byte(len(v)))
	return append(buf, v...)
}
