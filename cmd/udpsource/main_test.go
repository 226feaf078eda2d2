package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/udpsource/internal/logging"
	"github.com/rjboer/udpsource/internal/mdns"
	"github.com/rjboer/udpsource/internal/settings"
	"github.com/rjboer/udpsource/internal/telemetry"
)

func noEnv(string) (string, bool) { return "", false }

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "udpsource.yaml")
	err := run(context.Background(), []string{"--config", path, "--log-level", "loud"}, noEnv, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRunStopsOnCancelAndSavesPreset(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "udpsource.yaml")
	preset := filepath.Join(dir, "channel.preset")

	s := settings.Defaults()
	s.SetUDPPort(45678)
	s.SetSampleFormat(settings.FormatAM)
	require.NoError(t, os.WriteFile(preset, s.Serialize(), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var logs bytes.Buffer
	err := run(ctx, []string{"--config", cfgPath, "--web-addr", "", "--preset", preset, "--metrics=false"}, noEnv, &logs)
	require.NoError(t, err)

	_, err = os.Stat(cfgPath)
	require.NoError(t, err, "config file is written on start")

	data, err := os.ReadFile(preset)
	require.NoError(t, err)
	saved, err := settings.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, 45678, saved.UDPPort)
	assert.Equal(t, settings.FormatAM, saved.SampleFormat)
}

func TestAdvertisedTXT(t *testing.T) {
	s := settings.Defaults()
	s.SetSampleFormat(settings.FormatNFM)
	s.SetStereoInput(false)
	s.SetSampleRate(96000)
	txt := advertisedTXT(s, "abc")
	assert.Equal(t, map[string]string{"id": "abc", "format": "nfm", "rate": "96000", "stereo": "false"}, txt)
}

type fakeService struct {
	port     int
	updates  []map[string]string
	shutdown bool
}

func (f *fakeService) Update(txt map[string]string) { f.updates = append(f.updates, txt) }
func (f *fakeService) Shutdown()                    { f.shutdown = true }

func newTestAdvertiser(current *settings.Settings) (*serviceAdvertiser, *[]*fakeService) {
	var registered []*fakeService
	a := newServiceAdvertiser("abc", "udpsource", func() settings.Settings { return *current }, logging.Nop())
	a.advertise = func(ad mdns.Advertisement) (mdnsService, error) {
		svc := &fakeService{port: ad.Port}
		registered = append(registered, svc)
		return svc, nil
	}
	return a, &registered
}

func TestServiceAdvertiserIgnoresReportsBeforeStart(t *testing.T) {
	s := settings.Defaults()
	a, registered := newTestAdvertiser(&s)
	a.Report(telemetry.Snapshot{})
	assert.Empty(t, *registered)
}

func TestServiceAdvertiserReRegistersOnPortChange(t *testing.T) {
	s := settings.Defaults()
	a, registered := newTestAdvertiser(&s)
	require.NoError(t, a.Start())
	require.Len(t, *registered, 1)
	first := (*registered)[0]
	assert.Equal(t, settings.DefaultUDPPort, first.port)

	a.Report(telemetry.Snapshot{})
	assert.Len(t, *registered, 1, "unchanged settings keep the registration")
	assert.Empty(t, first.updates)

	s.SetUDPPort(7000)
	a.Report(telemetry.Snapshot{})
	require.Len(t, *registered, 2)
	assert.True(t, first.shutdown)
	second := (*registered)[1]
	assert.Equal(t, 7000, second.port)
	assert.False(t, second.shutdown)

	a.Shutdown()
	assert.True(t, second.shutdown)
	s.SetUDPPort(7001)
	a.Report(telemetry.Snapshot{})
	assert.Len(t, *registered, 2, "no registration after shutdown")
}

func TestServiceAdvertiserUpdatesTXTOnFormatChange(t *testing.T) {
	s := settings.Defaults()
	a, registered := newTestAdvertiser(&s)
	require.NoError(t, a.Start())

	s.SetSampleFormat(settings.FormatAM)
	a.Report(telemetry.Snapshot{})
	a.Report(telemetry.Snapshot{})
	require.Len(t, *registered, 1)
	svc := (*registered)[0]
	require.Len(t, svc.updates, 1)
	assert.Equal(t, "am", svc.updates[0]["format"])
}

func TestDiscoverRejectsBadFlag(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, discover(context.Background(), []string{"--timeout", "soon"}, &out))
}
