// Command coopd runs the coop controller: it polls the sensors, drives the
// door, heaters and light, and serves the status and control surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/config"
	"github.com/nunofsantos/coop-controller/internal/coop"
	"github.com/nunofsantos/coop-controller/internal/envlog"
	"github.com/nunofsantos/coop-controller/internal/gpio"
	"github.com/nunofsantos/coop-controller/internal/i2c"
	"github.com/nunofsantos/coop-controller/internal/logging"
	"github.com/nunofsantos/coop-controller/internal/mqtt"
	"github.com/nunofsantos/coop-controller/internal/notify"
	"github.com/nunofsantos/coop-controller/internal/sensor"
	"github.com/nunofsantos/coop-controller/internal/status"
	"github.com/nunofsantos/coop-controller/internal/sun"
	"github.com/nunofsantos/coop-controller/internal/web"
)

const (
	sunTimeout = 10 * time.Second

	// alertQueueSize bounds notifications waiting for a slow sink.
	alertQueueSize = 64
)

func main() {
	configPath := flag.String("config", "/etc/coop/config.yaml", "Path to configuration file")
	printState := flag.Bool("print-state", false, "Print float and door switch levels and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, *printState, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func run(cfg *config.Config, printState bool, logger *zap.Logger) error {
	port, err := gpio.NewRealPort(cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer port.Close()

	if printState {
		return printSwitches(port, cfg)
	}

	// Alert sinks. MQTT is optional; without a broker alerts only reach the log.
	dispatcher := notify.NewDispatcher(logger)
	dispatcher.Add("log", notify.NewLogSink(logger.Named("alerts")), severityOr(cfg.Notify.LogLevel, notify.Info, logger))

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(cfg.MQTT, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		publisher, mqttStatus = rp, rp
		dispatcher.Add("mqtt", mqtt.NewAlertSink(rp), severityOr(cfg.Notify.MQTTLevel, notify.Warn, logger))
	} else {
		logger.Info("mqtt disabled: no broker configured")
	}
	// Devices raise alerts while holding their locks; delivery happens off them.
	alerts := notify.NewQueue(dispatcher, alertQueueSize, logger.Named("alerts"))
	defer alerts.Close()

	// Sensors behind the I2C bus and the 1-Wire sysfs tree.
	var climate sensor.ClimateReader
	if cfg.Ambient.Enabled {
		bus, err := i2c.Open(cfg.Ambient.Bus)
		if err != nil {
			return fmt.Errorf("init ambient sensor: %w", err)
		}
		defer bus.Close()
		climate = sensor.NewAHT20(bus, cfg.Ambient.Address)
	}
	waterTemp := sensor.NewDS18B20(cfg.Water.W1Dir, cfg.Water.SensorID)

	// Environmental log.
	var stores envlog.MultiStore
	var history web.History
	if cfg.EnvLog.SQLite.Enabled {
		db, err := envlog.OpenSQLite(cfg.EnvLog.SQLite)
		if err != nil {
			return fmt.Errorf("init sqlite: %w", err)
		}
		stores = append(stores, db)
		history = db
	}
	if cfg.EnvLog.InfluxDB.Enabled {
		influx, err := envlog.ConnectInflux(cfg.EnvLog.InfluxDB, cfg.Site.Name, logger)
		if err != nil {
			logger.Warn("influxdb unavailable, continuing without it", zap.Error(err))
		} else {
			stores = append(stores, influx)
		}
	}
	var recorder *envlog.Recorder
	if len(stores) > 0 {
		recorder = envlog.NewRecorder(stores, cfg.EnvLog.Interval, logger.Named("envlog"), nil)
		defer recorder.Close()
	}

	c, err := coop.New(cfg, coop.Deps{
		Port:      port,
		Twilight:  sun.New(cfg.Notify.SunURL, sunTimeout),
		Climate:   climate,
		WaterTemp: waterTemp,
		Recorder:  recorder,
		Deliverer: alerts,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("init coop: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Site:        cfg.Site.Name,
		PollMs:      cfg.Main.PollInterval.Milliseconds(),
		HeartbeatMs: cfg.Main.Heartbeat.Milliseconds(),
		Units:       cfg.Main.Units,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	}, nil)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, tracker, c, history, logger.Named("http"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	logger.Info("started",
		zap.String("site", cfg.Site.Name),
		zap.Duration("poll", cfg.Main.PollInterval),
		zap.Duration("heartbeat", cfg.Main.Heartbeat),
		zap.String("broker", cfg.MQTT.Broker),
	)

	ticker := time.NewTicker(cfg.Main.PollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var bc broadcaster
	if srv != nil {
		bc = srv
	}
	return runLoop(loopDeps{
		coop:       c,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		web:        bc,
		heartbeat:  cfg.Main.Heartbeat,
		now:        time.Now,
		logger:     logger,
	}, ticker.C, sigCh)
}

// severityOr parses a configured sink threshold, falling back to def.
func severityOr(s string, def notify.Severity, logger *zap.Logger) notify.Severity {
	if s == "" {
		return def
	}
	sev, err := notify.ParseSeverity(s)
	if err != nil {
		logger.Warn("invalid alert level, using default", zap.String("level", s), zap.Stringer("default", def))
		return def
	}
	return sev
}

// cycler is the part of the controller the loop drives.
type cycler interface {
	Cycle(ctx context.Context) status.Coop
	Status() status.Coop
	Shutdown() error
}

// broadcaster pushes snapshots to live dashboard clients.
type broadcaster interface {
	Broadcast(snap status.Snapshot)
}

type loopDeps struct {
	coop       cycler
	publisher  mqtt.Publisher        // nil when MQTT is disabled
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is disabled
	tracker    *status.Tracker
	web        broadcaster // nil when HTTP is disabled
	heartbeat  time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func runLoop(d loopDeps, tick <-chan time.Time, sig <-chan os.Signal) error {
	logger := d.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publishSystem := func(event, reason string, retained bool) {
		if d.publisher == nil {
			return
		}
		d.refreshMQTT()
		snap := d.tracker.Snapshot()
		ev := mqtt.SystemEvent{
			Timestamp:  d.now(),
			Event:      event,
			Reason:     reason,
			Retained:   retained,
			RawPayload: status.FormatStatusEvent(snap, event, reason),
		}
		if err := d.publisher.PublishSystem(ev); err != nil {
			logger.Warn("failed to publish system event", zap.String("event", event), zap.Error(err))
		} else {
			logger.Info("published system event", zap.String("event", event))
		}
	}

	publishSystem("STARTUP", "", true)
	lastHeartbeat := d.now()

	cycle := func() {
		d.coop.Cycle(ctx)
		// Re-read: an operator command may have landed after the cycle.
		st := d.coop.Status()
		d.tracker.Update(st)
		d.refreshMQTT()
		snap := d.tracker.Snapshot()

		if d.publisher != nil {
			if err := d.publisher.PublishStatus(status.FormatCompact(snap)); err != nil {
				logger.Warn("status publish error", zap.Error(err))
			}
		}
		if d.web != nil {
			d.web.Broadcast(snap)
		}

		t := d.now()
		if d.heartbeat > 0 && t.Sub(lastHeartbeat) >= d.heartbeat {
			lastHeartbeat = t
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			logger.Info("heartbeat",
				zap.Duration("uptime", snap.Uptime()),
				zap.Stringer("severity", st.Severity),
				zap.Int("active", len(st.Notifications)),
			)
			publishSystem("HEARTBEAT", "", false)
		}
	}

	// The first cycle does not wait for a tick.
	cycle()

	for {
		select {
		case s := <-sig:
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			logger.Info("shutting down", zap.String("signal", signalName))
			cancel()

			err := d.coop.Shutdown()
			if err != nil {
				logger.Error("shutdown reset failed", zap.Error(err))
			}
			publishSystem("SHUTDOWN", signalName, true)
			return err

		case <-tick:
			cycle()
		}
	}
}

func (d loopDeps) refreshMQTT() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// printSwitches reads the float and door switches without driving any output.
func printSwitches(port gpio.Port, cfg *config.Config) error {
	pins := []struct {
		name string
		pin  int
	}{
		{"water half", cfg.Water.LevelHalfPin},
		{"water empty", cfg.Water.LevelEmptyPin},
		{"door top", cfg.Door.TopSensorPin},
		{"door bottom", cfg.Door.BottomSensorPin},
	}
	for _, p := range pins {
		if err := port.SetupInput(p.pin, gpio.InputOptions{Pull: gpio.PullDown}); err != nil {
			return fmt.Errorf("setup %s: %w", p.name, err)
		}
		lvl, err := port.Read(p.pin)
		if err != nil {
			return fmt.Errorf("read %s: %w", p.name, err)
		}
		fmt.Printf("%s (pin %d): %s\n", p.name, p.pin, lvl)
	}
	return nil
}
