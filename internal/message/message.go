// Package message defines the messages exchanged between the channel
// controller and its worker, and the queues that carry them.
package message

import "github.com/rjboer/udpsource/internal/settings"

// Message is anything that travels on a Queue. Payloads are values; a
// message never shares mutable state with its sender.
type Message interface {
	Kind() string
}

// ConfigureChannelizer places the channel: the sample rate the worker must
// resample to and the offset from the device center frequency.
type ConfigureChannelizer struct {
	SampleRate      float64
	FrequencyOffset int64
}

func (ConfigureChannelizer) Kind() string { return "configure_channelizer" }

// ConfigureSettings carries a full settings snapshot. Force asks the worker
// to reapply every field even when it believes nothing changed.
type ConfigureSettings struct {
	Settings settings.Settings
	Force    bool
}

func (ConfigureSettings) Kind() string { return "configure_settings" }

// SettingsEcho is the worker's authoritative view of the settings, sent after
// it normalized or recalculated them.
type SettingsEcho struct {
	Settings settings.Settings
}

func (SettingsEcho) Kind() string { return "settings_echo" }
