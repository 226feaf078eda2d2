package telemetry

import "github.com/rjboer/udpsource/internal/logging"

// Reporter receives every snapshot produced by the tick scheduler.
// Implementations must not block for long.
type Reporter interface {
	Report(snap Snapshot)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Snapshot)

func (f ReporterFunc) Report(snap Snapshot) { f(snap) }

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// Report forwards the snapshot to each configured reporter.
func (m MultiReporter) Report(snap Snapshot) {
	for _, r := range m {
		if r != nil {
			r.Report(snap)
		}
	}
}

// LogReporter writes refreshed power readouts to a logger.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter builds a log reporter with the provided logger.
func NewLogReporter(logger logging.Logger) LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return LogReporter{logger: logger.With(logging.Field{Key: "subsystem", Value: "telemetry"})}
}

// Report logs decimated ticks only; the rest would flood the output.
func (r LogReporter) Report(snap Snapshot) {
	if !snap.PowerRefreshed {
		return
	}
	fields := []logging.Field{
		{Key: "tick", Value: snap.Tick},
		{Key: "channel_power_db", Value: snap.ChannelPowerDB},
		{Key: "input_power_db", Value: snap.InputPowerDB},
		{Key: "buffer_gauge", Value: snap.BufferGauge},
		{Key: "squelch_open", Value: snap.SquelchOpen},
	}
	if snap.Underrun != 0 {
		fields = append(fields, logging.Field{Key: "underrun", Value: snap.Underrun})
	}
	if snap.Overrun != 0 {
		fields = append(fields, logging.Field{Key: "overrun", Value: snap.Overrun})
	}
	r.logger.Debug("telemetry sample", fields...)
}
