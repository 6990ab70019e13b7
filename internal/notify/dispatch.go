package notify

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink is an alert transport (log, MQTT, ...).
type Sink interface {
	Deliver(n Notification) error
}

type route struct {
	name string
	sink Sink
	min  Severity
}

// Dispatcher fans delivered notifications out to every sink whose threshold
// the severity meets. Sink failures are logged and dropped.
type Dispatcher struct {
	logger *zap.Logger

	mu     sync.RWMutex
	routes []route
}

// NewDispatcher creates a dispatcher with no sinks.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// Add registers a sink receiving notifications at or above min.
func (d *Dispatcher) Add(name string, s Sink, min Severity) {
	d.mu.Lock()
	d.routes = append(d.routes, route{name: name, sink: s, min: min})
	d.mu.Unlock()
}

// Deliver implements Deliverer.
func (d *Dispatcher) Deliver(n Notification) {
	d.mu.RLock()
	routes := d.routes
	d.mu.RUnlock()

	for _, r := range routes {
		if n.Severity < r.min {
			continue
		}
		if err := r.sink.Deliver(n); err != nil {
			d.logger.Warn("alert delivery failed",
				zap.String("sink", r.name),
				zap.String("device", n.Device),
				zap.String("kind", n.Kind),
				zap.Error(err))
		}
	}
}

// LogSink writes notifications to a zap logger at a level matching their
// severity.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver logs n.
func (s *LogSink) Deliver(n Notification) error {
	lvl := zapcore.InfoLevel
	switch n.Severity {
	case Warn:
		lvl = zapcore.WarnLevel
	case Error:
		lvl = zapcore.ErrorLevel
	}
	s.logger.Check(lvl, n.Message).Write(
		zap.String("device", n.Device),
		zap.String("kind", n.Kind),
		zap.Stringer("severity", n.Severity),
		zap.String("id", n.ID),
	)
	return nil
}
