package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/rjboer/udpsource/internal/api"
	"github.com/rjboer/udpsource/internal/clock"
	"github.com/rjboer/udpsource/internal/config"
	"github.com/rjboer/udpsource/internal/controller"
	"github.com/rjboer/udpsource/internal/dsp"
	"github.com/rjboer/udpsource/internal/logging"
	"github.com/rjboer/udpsource/internal/mdns"
	"github.com/rjboer/udpsource/internal/settings"
	"github.com/rjboer/udpsource/internal/telemetry"
	"github.com/rjboer/udpsource/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	var err error
	if len(args) > 0 && args[0] == "discover" {
		err = discover(ctx, args[1:], os.Stdout)
	} else {
		err = run(ctx, args, os.LookupEnv, os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpsource: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), logOut io.Writer) error {
	path := config.Path(args, lookup)
	persistent, err := config.LoadOrCreate(path)
	if err != nil {
		return err
	}
	cfg, err := config.Parse(args, lookup, persistent)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	id := uuid.NewString()
	logger = logger.With(logging.Field{Key: "instance", Value: id})

	window, err := dsp.WindowByName(cfg.SpectrumWindow)
	if err != nil {
		return err
	}
	source := worker.NewUDPSource(worker.Config{
		BufferFrames: cfg.BufferFrames,
		SpectrumSize: cfg.SpectrumSize,
		Window:       window,
		Logger:       logger,
	})
	source.Start(ctx)

	hub := telemetry.NewHub(cfg.HistoryLimit, logger)
	reporters := telemetry.MultiReporter{hub, telemetry.NewLogReporter(logger)}

	var (
		gatherer prometheus.Gatherer
		observer controller.Observer
	)
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := telemetry.NewMetrics(reg)
		reporters = append(reporters, metrics)
		gatherer = reg
		observer = metrics
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := telemetry.NewMQTTPublisher(telemetry.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTTTopic(id),
			ClientID: "udpsource-" + id,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger)
		if err != nil {
			logger.Warn("mqtt disabled", logging.Field{Key: "error", Value: err})
		} else {
			defer publisher.Close()
			reporters = append(reporters, publisher)
		}
	}

	reporters = append(reporters, hub.SpectrumFeed(source.Spectrum, id))

	var advertiser *serviceAdvertiser
	if cfg.MDNS.Enabled {
		advertiser = newServiceAdvertiser(id, cfg.MDNS.Instance, source.Settings, logger)
		reporters = append(reporters, advertiser)
	}

	ctrl := controller.New(source, clock.NewTicker(cfg.TickInterval), reporters, logger, controller.Config{
		ID:            id,
		AverageWindow: cfg.AverageWindow,
		Decimation:    cfg.Decimation,
		Observer:      observer,
	})
	defer ctrl.Close()

	if cfg.PresetPath != "" {
		loadPreset(ctrl, cfg.PresetPath, logger)
		defer savePreset(ctrl, cfg.PresetPath, logger)
	}

	if advertiser != nil {
		if err := advertiser.Start(); err != nil {
			logger.Warn("mdns registration failed", logging.Field{Key: "error", Value: err})
		}
		defer advertiser.Shutdown()
	}

	if cfg.WebAddr != "" {
		srv := api.NewServer(cfg.WebAddr, ctrl, hub, gatherer, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("web server stopped", logging.Field{Key: "error", Value: err})
			}
		}()
	}

	logger.Info("udp source running",
		logging.Field{Key: "config", Value: path},
		logging.Field{Key: "udp", Value: fmt.Sprintf("%s:%d", ctrl.Settings().UDPAddress, ctrl.Settings().UDPPort)})
	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(cfg config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format, out), nil
}

func loadPreset(ctrl *controller.Controller, path string, logger logging.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("read preset", logging.Field{Key: "path", Value: path}, logging.Field{Key: "error", Value: err})
		}
		return
	}
	if err := ctrl.Deserialize(data); err != nil {
		logger.Warn("preset rejected, using defaults", logging.Field{Key: "path", Value: path}, logging.Field{Key: "error", Value: err})
		return
	}
	logger.Info("preset loaded", logging.Field{Key: "path", Value: path})
}

func savePreset(ctrl *controller.Controller, path string, logger logging.Logger) {
	if err := os.WriteFile(path, ctrl.Serialize(), 0o644); err != nil {
		logger.Warn("save preset", logging.Field{Key: "path", Value: path}, logging.Field{Key: "error", Value: err})
	}
}

func advertisedTXT(s settings.Settings, id string) map[string]string {
	return map[string]string{
		"id":     id,
		"format": s.SampleFormat.String(),
		"rate":   strconv.FormatFloat(s.InputSampleRate, 'f', -1, 64),
		"stereo": strconv.FormatBool(s.StereoInput),
	}
}

type mdnsService interface {
	Update(txt map[string]string)
	Shutdown()
}

// serviceAdvertiser keeps the mDNS registration in step with the settings
// the worker runs with. A port change re-registers the service; other
// changes only refresh the TXT records.
type serviceAdvertiser struct {
	id        string
	instance  string
	current   func() settings.Settings
	advertise func(mdns.Advertisement) (mdnsService, error)
	logger    logging.Logger

	mu      sync.Mutex
	started bool
	svc     mdnsService
	port    int
	txt     map[string]string
}

func newServiceAdvertiser(id, instance string, current func() settings.Settings, logger logging.Logger) *serviceAdvertiser {
	return &serviceAdvertiser{
		id:       id,
		instance: instance,
		current:  current,
		advertise: func(ad mdns.Advertisement) (mdnsService, error) {
			adv, err := mdns.Advertise(ad)
			if err != nil {
				return nil, err
			}
			return adv, nil
		},
		logger: logger.With(logging.Field{Key: "subsystem", Value: "mdns"}),
	}
}

// Start registers the service for the current settings.
func (a *serviceAdvertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	return a.registerLocked(a.current())
}

func (a *serviceAdvertiser) registerLocked(s settings.Settings) error {
	if a.svc != nil {
		a.svc.Shutdown()
		a.svc = nil
	}
	a.port = s.UDPPort
	a.txt = advertisedTXT(s, a.id)
	svc, err := a.advertise(mdns.Advertisement{Instance: a.instance, Port: a.port, TXT: a.txt})
	if err != nil {
		return err
	}
	a.svc = svc
	return nil
}

func (a *serviceAdvertiser) Report(telemetry.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	s := a.current()
	if s.UDPPort != a.port {
		if err := a.registerLocked(s); err != nil {
			a.logger.Warn("mdns re-registration failed", logging.Field{Key: "port", Value: s.UDPPort}, logging.Field{Key: "error", Value: err})
			return
		}
		a.logger.Info("mdns port updated", logging.Field{Key: "port", Value: s.UDPPort})
		return
	}
	if a.svc == nil {
		return
	}
	txt := advertisedTXT(s, a.id)
	if maps.Equal(txt, a.txt) {
		return
	}
	a.txt = txt
	a.svc.Update(txt)
}

// Shutdown withdraws the registration. Later reports are ignored.
func (a *serviceAdvertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	if a.svc != nil {
		a.svc.Shutdown()
		a.svc = nil
	}
}

func discover(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("discover", pflag.ContinueOnError)
	timeout := fs.Duration("timeout", 3*time.Second, "Browse duration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	hosts, err := mdns.Discover(ctx, *timeout)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		fmt.Fprintln(out, "no udp sources found")
		return nil
	}
	for _, h := range hosts {
		fmt.Fprintf(out, "%s\t%s:%d\t%v\n", h.Instance, h.Hostname, h.Port, h.TXT)
	}
	return nil
}
