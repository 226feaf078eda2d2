// Package config loads the application configuration from a YAML file,
// environment variables (UDPSRC_*) and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/rjboer/udpsource/internal/dsp"
	"github.com/rjboer/udpsource/internal/logging"
)

// DefaultPath is used when neither --config nor UDPSRC_CONFIG is given.
const DefaultPath = "udpsource.yaml"

const envPrefix = "UDPSRC_"

// Config is the persistent application configuration.
type Config struct {
	WebAddr        string        `yaml:"web_addr"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	HistoryLimit   int           `yaml:"history_limit"`
	AverageWindow  int           `yaml:"average_window"`
	Decimation     int           `yaml:"decimation"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	PresetPath     string        `yaml:"preset_path"`
	BufferFrames   int           `yaml:"buffer_frames"`
	SpectrumSize   int           `yaml:"spectrum_size"`
	SpectrumWindow string        `yaml:"spectrum_window"`
	Metrics        bool          `yaml:"metrics"`
	MDNS           MDNSConfig    `yaml:"mdns"`
	MQTT           MQTTConfig    `yaml:"mqtt"`
}

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns the configuration written on first start.
func Default() Config {
	return Config{
		WebAddr:        ":8080",
		TickInterval:   50 * time.Millisecond,
		HistoryLimit:   500,
		AverageWindow:  4,
		Decimation:     4,
		LogLevel:       "info",
		LogFormat:      "text",
		PresetPath:     "udpsource.preset",
		BufferFrames:   1 << 15,
		SpectrumSize:   64,
		SpectrumWindow: "blackman-harris",
		Metrics:        true,
		MDNS: MDNSConfig{
			Enabled:  false,
			Instance: "udpsource",
		},
		MQTT: MQTTConfig{
			Topic: "udpsource/{id}/telemetry",
		},
	}
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	var errs []error
	if c.TickInterval < time.Millisecond {
		errs = append(errs, fmt.Errorf("tick_interval %s below 1ms", c.TickInterval))
	}
	if c.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit))
	}
	if c.AverageWindow < 1 {
		errs = append(errs, fmt.Errorf("average_window must be positive, got %d", c.AverageWindow))
	}
	if c.Decimation < 1 {
		errs = append(errs, fmt.Errorf("decimation must be positive, got %d", c.Decimation))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.BufferFrames < 1024 {
		errs = append(errs, fmt.Errorf("buffer_frames must be at least 1024, got %d", c.BufferFrames))
	}
	if c.SpectrumSize < 8 || c.SpectrumSize&(c.SpectrumSize-1) != 0 {
		errs = append(errs, fmt.Errorf("spectrum_size must be a power of two >= 8, got %d", c.SpectrumSize))
	}
	if _, err := dsp.WindowByName(c.SpectrumWindow); err != nil {
		errs = append(errs, err)
	}
	if c.MDNS.Enabled && strings.TrimSpace(c.MDNS.Instance) == "" {
		errs = append(errs, errors.New("mdns.instance is required when mdns is enabled"))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic is required when a broker is set"))
	}
	return errors.Join(errs...)
}

// MQTTTopic expands the {id} placeholder of the configured topic.
func (c Config) MQTTTopic(id string) string {
	return strings.ReplaceAll(c.MQTT.Topic, "{id}", id)
}

// LoadOrCreate reads path, writing the defaults there first when it does
// not exist. Keys missing from the file keep their default values.
func LoadOrCreate(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			if saveErr := Save(path, cfg); saveErr != nil {
				return Config{}, saveErr
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Path picks the configuration file from --config or UDPSRC_CONFIG. Other
// flags are ignored here and parsed later by Parse.
func Path(args []string, lookup func(string) (string, bool)) string {
	fs := pflag.NewFlagSet("udpsource-config", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(discard{})
	fs.Usage = func() {}
	path := fs.String("config", envString(lookup, envPrefix+"CONFIG", DefaultPath), "")
	_ = fs.Parse(args)
	return *path
}

// Parse layers environment variables and flags over base.
func Parse(args []string, lookup func(string) (string, bool), base Config) (Config, error) {
	cfg := base
	fs := pflag.NewFlagSet("udpsource", pflag.ContinueOnError)
	fs.String("config", DefaultPath, "Configuration file (env UDPSRC_CONFIG)")
	fs.StringVar(&cfg.WebAddr, "web-addr", envString(lookup, envPrefix+"WEB_ADDR", base.WebAddr), "HTTP listen address, empty to disable")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", envDuration(lookup, envPrefix+"TICK_INTERVAL", base.TickInterval), "Telemetry tick period")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", envInt(lookup, envPrefix+"HISTORY_LIMIT", base.HistoryLimit), "Telemetry snapshots kept for /api/telemetry/history")
	fs.IntVar(&cfg.AverageWindow, "average-window", envInt(lookup, envPrefix+"AVERAGE_WINDOW", base.AverageWindow), "Ticks per power average")
	fs.IntVar(&cfg.Decimation, "decimation", envInt(lookup, envPrefix+"DECIMATION", base.Decimation), "Ticks between power readout refreshes")
	fs.StringVar(&cfg.LogLevel, "log-level", envString(lookup, envPrefix+"LOG_LEVEL", base.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", envString(lookup, envPrefix+"LOG_FORMAT", base.LogFormat), "Log format (text|json)")
	fs.StringVar(&cfg.PresetPath, "preset", envString(lookup, envPrefix+"PRESET", base.PresetPath), "Settings blob loaded at start and saved on exit, empty to disable")
	fs.IntVar(&cfg.BufferFrames, "buffer-frames", envInt(lookup, envPrefix+"BUFFER_FRAMES", base.BufferFrames), "UDP sample buffer size in frames")
	fs.IntVar(&cfg.SpectrumSize, "spectrum-size", envInt(lookup, envPrefix+"SPECTRUM_SIZE", base.SpectrumSize), "Spectrum FFT size")
	fs.StringVar(&cfg.SpectrumWindow, "spectrum-window", envString(lookup, envPrefix+"SPECTRUM_WINDOW", base.SpectrumWindow), "Spectrum window (blackman-harris|hamming)")
	fs.BoolVar(&cfg.Metrics, "metrics", envBool(lookup, envPrefix+"METRICS", base.Metrics), "Serve Prometheus metrics on /metrics")
	fs.BoolVar(&cfg.MDNS.Enabled, "mdns", envBool(lookup, envPrefix+"MDNS", base.MDNS.Enabled), "Advertise the UDP input over mDNS")
	fs.StringVar(&cfg.MDNS.Instance, "mdns-instance", envString(lookup, envPrefix+"MDNS_INSTANCE", base.MDNS.Instance), "mDNS instance name")
	fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", envString(lookup, envPrefix+"MQTT_BROKER", base.MQTT.Broker), "MQTT broker URL, empty to disable")
	fs.StringVar(&cfg.MQTT.Topic, "mqtt-topic", envString(lookup, envPrefix+"MQTT_TOPIC", base.MQTT.Topic), "MQTT topic, {id} expands to the instance id")
	fs.StringVar(&cfg.MQTT.Username, "mqtt-username", envString(lookup, envPrefix+"MQTT_USERNAME", base.MQTT.Username), "MQTT username")
	fs.StringVar(&cfg.MQTT.Password, "mqtt-password", envString(lookup, envPrefix+"MQTT_PASSWORD", base.MQTT.Password), "MQTT password")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envDuration(lookup func(string) (string, bool), key string, def time.Duration) time.Duration {
	if val, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
