package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := Parse(nil, noEnv, Default())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseConfigEnvAndFlagOverrides(t *testing.T) {
	env := map[string]string{
		"UDPSRC_WEB_ADDR":      ":9090",
		"UDPSRC_TICK_INTERVAL": "20ms",
		"UDPSRC_MDNS":          "true",
		"UDPSRC_HISTORY_LIMIT": "not-a-number",
		"UDPSRC_LOG_LEVEL":     "debug",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, err := Parse([]string{"--log-level", "warn", "--mqtt-broker=tcp://broker:1883", "--config", "other.yaml"}, lookup, Default())
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.WebAddr)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
	assert.True(t, cfg.MDNS.Enabled)
	assert.Equal(t, 500, cfg.HistoryLimit, "unparsable env keeps the default")
	assert.Equal(t, "warn", cfg.LogLevel, "flags win over env")
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	_, err := Parse([]string{"--bogus"}, noEnv, Default())
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	assert.Equal(t, DefaultPath, Path(nil, noEnv))
	assert.Equal(t, "a.yaml", Path([]string{"--web-addr", ":1", "--config", "a.yaml"}, noEnv))
	env := func(k string) (string, bool) { return "b.yaml", k == "UDPSRC_CONFIG" }
	assert.Equal(t, "b.yaml", Path(nil, env))
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.TickInterval = 0
	cfg.SpectrumSize = 100
	cfg.SpectrumWindow = "kaiser"
	cfg.LogFormat = "xml"
	cfg.MQTT.Broker = "tcp://x:1883"
	cfg.MQTT.Topic = ""
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"tick_interval", "spectrum_size", "kaiser", "xml", "mqtt.topic"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "udpsource.yaml")
	cfg, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("web_addr: \":7070\"\ntick_interval: 100ms\nmdns:\n  enabled: true\n"), 0o644))

	cfg, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.WebAddr)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval)
	assert.True(t, cfg.MDNS.Enabled)
	assert.Equal(t, "udpsource", cfg.MDNS.Instance)
	assert.Equal(t, 500, cfg.HistoryLimit)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history_limit: [oops"), 0o644))
	_, err := LoadOrCreate(path)
	assert.Error(t, err)
}

func TestMQTTTopic(t *testing.T) {
	assert.Equal(t, "udpsource/abc/telemetry", Default().MQTTTopic("abc"))
}
