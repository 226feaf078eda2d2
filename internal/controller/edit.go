package controller

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rjboer/udpsource/internal/settings"
)

var (
	ErrUnknownField = errors.New("unknown settings field")
	ErrInvalidValue = errors.New("invalid value")
)

// immediate edits are pushed to the worker right away.
func (c *Controller) immediate(edit func(*settings.Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	edit(&c.settings)
	c.applyLocked(false)
}

// deferred edits wait for Commit.
func (c *Controller) deferred(edit func(*settings.Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	edit(&c.settings)
	c.pending = true
}

func (c *Controller) SetFrequencyOffset(hz int64) {
	c.immediate(func(s *settings.Settings) { s.SetFrequencyOffset(hz) })
}

func (c *Controller) SetGainInStep(step int) {
	c.immediate(func(s *settings.Settings) { s.SetGainInStep(step) })
}

func (c *Controller) SetGainOutStep(step int) {
	c.immediate(func(s *settings.Settings) { s.SetGainOutStep(step) })
}

func (c *Controller) SetSquelchLevel(db int) {
	c.immediate(func(s *settings.Settings) { s.SetSquelchLevel(db) })
}

func (c *Controller) SetSquelchGateStep(step int) {
	c.immediate(func(s *settings.Settings) { s.SetSquelchGateStep(step) })
}

func (c *Controller) SetChannelMute(mute bool) {
	c.immediate(func(s *settings.Settings) { s.ChannelMute = mute })
}

func (c *Controller) SetAutoRWBalance(on bool) {
	c.immediate(func(s *settings.Settings) { s.AutoRWBalance = on })
}

func (c *Controller) SetStereoInput(stereo bool) {
	c.immediate(func(s *settings.Settings) { s.SetStereoInput(stereo) })
}

func (c *Controller) SetColor(rgb uint32) {
	c.immediate(func(s *settings.Settings) { s.Color = rgb })
}

func (c *Controller) SetSampleFormat(f settings.SampleFormat) {
	c.deferred(func(s *settings.Settings) { s.SetSampleFormat(f) })
}

func (c *Controller) SetSampleFormatText(text string) {
	c.deferred(func(s *settings.Settings) { s.SetSampleFormatText(text) })
}

func (c *Controller) SetSampleRateText(text string) {
	c.deferred(func(s *settings.Settings) { s.SetSampleRateText(text) })
}

func (c *Controller) SetRFBandwidthText(text string) {
	c.deferred(func(s *settings.Settings) { s.SetRFBandwidthText(text) })
}

func (c *Controller) SetFMDeviationText(text string) {
	c.deferred(func(s *settings.Settings) { s.SetFMDeviationText(text) })
}

func (c *Controller) SetAMModPercentText(text string) {
	c.deferred(func(s *settings.Settings) { s.SetAMModPercentText(text) })
}

func (c *Controller) SetUDPAddress(addr string) {
	c.deferred(func(s *settings.Settings) { s.SetUDPAddress(addr) })
}

func (c *Controller) SetUDPPortText(text string) {
	c.deferred(func(s *settings.Settings) { s.SetUDPPortText(text) })
}

// EditField applies a textual edit to the field with the given JSON name.
// Free-text numeric fields never fail: bad input selects the field default.
// Slider, toggle and color fields reject values they cannot parse.
func (c *Controller) EditField(name, value string) error {
	value = strings.TrimSpace(value)
	switch name {
	case "inputSampleRate":
		c.SetSampleRateText(value)
	case "rfBandwidth":
		c.SetRFBandwidthText(value)
	case "sampleFormat":
		c.SetSampleFormatText(value)
	case "fmDeviation":
		c.SetFMDeviationText(value)
	case "amModPercent":
		c.SetAMModPercentText(value)
	case "udpAddress":
		c.SetUDPAddress(value)
	case "udpPort":
		c.SetUDPPortText(value)

	case "inputFrequencyOffset":
		hz, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w for %s: %q", ErrInvalidValue, name, value)
		}
		c.SetFrequencyOffset(hz)
	case "gainIn", "gainOut":
		v, err := strconv.ParseFloat(value, 64)
		rounded := math.Round(v * 10)
		if err != nil || !(math.Abs(rounded) <= settings.MaxGainStep) {
			return fmt.Errorf("%w for %s: %q", ErrInvalidValue, name, value)
		}
		step := int(rounded)
		if name == "gainIn" {
			c.SetGainInStep(step)
		} else {
			c.SetGainOutStep(step)
		}
	case "squelch":
		db, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w for %s: %q", ErrInvalidValue, name, value)
		}
		c.SetSquelchLevel(db)
	case "squelchGate":
		v, err := strconv.ParseFloat(value, 64)
		rounded := math.Round(v * 100)
		if err != nil || !(rounded >= 0 && rounded <= settings.MaxSquelchGateSetting) {
			return fmt.Errorf("%w for %s: %q", ErrInvalidValue, name, value)
		}
		c.SetSquelchGateStep(int(rounded))
	case "channelMute", "autoRWBalance", "stereoInput":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w for %s: %q", ErrInvalidValue, name, value)
		}
		switch name {
		case "channelMute":
			c.SetChannelMute(on)
		case "autoRWBalance":
			c.SetAutoRWBalance(on)
		default:
			c.SetStereoInput(on)
		}
	case "color":
		rgb, err := parseColor(value)
		if err != nil {
			return fmt.Errorf("%w for %s: %v", ErrInvalidValue, name, err)
		}
		c.SetColor(rgb)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return nil
}

// parseColor accepts "#rrggbb", "0xrrggbb" or a decimal value.
func parseColor(v string) (uint32, error) {
	base := 10
	switch {
	case strings.HasPrefix(v, "#"):
		v, base = v[1:], 16
	case strings.HasPrefix(v, "0x"), strings.HasPrefix(v, "0X"):
		v, base = v[2:], 16
	}
	rgb, err := strconv.ParseUint(v, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(rgb), nil
}
