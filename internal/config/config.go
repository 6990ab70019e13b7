// Package config loads the coop controller configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Main      MainConfig      `yaml:"main"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Ambient   AmbientConfig   `yaml:"ambient"`
	Water     WaterConfig     `yaml:"water"`
	Door      DoorConfig      `yaml:"door"`
	Light     LightConfig     `yaml:"light"`
	Heater    RelayDevice     `yaml:"heater"`
	Fan       RelayDevice     `yaml:"fan"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Notify    NotifyConfig    `yaml:"notify"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	EnvLog    EnvLogConfig    `yaml:"envlog"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig holds the installation's identity and location.
type SiteConfig struct {
	Name      string  `yaml:"name"`
	Timezone  string  `yaml:"timezone"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// MainConfig holds the polling loop settings.
type MainConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
	// RelayActiveLow is true for relay boards that energize on a low output.
	RelayActiveLow bool `yaml:"relay_active_low"`
	// Units is "F" or "C" for every temperature threshold and reading.
	Units string `yaml:"units"`
}

// GPIOConfig names the character device chip the pins live on.
type GPIOConfig struct {
	Chip string `yaml:"chip"`
}

// Range is a closed [Min, Max] interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Bands are the four temperature thresholds, ordered
// ErrorLow < Low < High < ErrorHigh.
type Bands struct {
	ErrorLow  float64 `yaml:"error_low"`
	Low       float64 `yaml:"low"`
	High      float64 `yaml:"high"`
	ErrorHigh float64 `yaml:"error_high"`
}

func (b Bands) ordered() bool {
	return b.ErrorLow < b.Low && b.Low < b.High && b.High < b.ErrorHigh
}

// AmbientConfig configures the I2C temperature/humidity sensor.
type AmbientConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Bus      string        `yaml:"bus"`
	Address  uint16        `yaml:"address"`
	Cache    time.Duration `yaml:"cache"`
	Temp     Bands         `yaml:"temp"`
	Humidity Range         `yaml:"humidity"`
}

// WaterConfig configures the water heater, its temperature probe and the
// two float switches.
type WaterConfig struct {
	HeaterPin     int           `yaml:"heater_pin"`
	HeaterRange   Range         `yaml:"heater_range"`
	Manual        bool          `yaml:"manual"`
	SensorID      string        `yaml:"sensor_id"`
	W1Dir         string        `yaml:"w1_dir"`
	Cache         time.Duration `yaml:"cache"`
	Temp          Bands         `yaml:"temp"`
	LevelHalfPin  int           `yaml:"level_half_pin"`
	LevelEmptyPin int           `yaml:"level_empty_pin"`
}

// DoorConfig configures the door motor relays, position switches and
// sunrise/sunset offsets.
type DoorConfig struct {
	OpenPin         int           `yaml:"open_pin"`
	ClosePin        int           `yaml:"close_pin"`
	TopSensorPin    int           `yaml:"top_sensor_pin"`
	BottomSensorPin int           `yaml:"bottom_sensor_pin"`
	NormallyClosed  bool          `yaml:"normally_closed"`
	SensorTimeout   time.Duration `yaml:"sensor_timeout"`
	Debounce        time.Duration `yaml:"debounce"`
	ExtraSunrise    time.Duration `yaml:"extra_sunrise"`
	ExtraSunset     time.Duration `yaml:"extra_sunset"`
	Manual          bool          `yaml:"manual"`
}

// LightConfig configures the coop light.
type LightConfig struct {
	Pin     int  `yaml:"pin"`
	Manual  bool `yaml:"manual"`
	OnAtDay bool `yaml:"on_at_day"`
}

// RelayDevice configures an optional temperature-driven relay (heater, fan).
type RelayDevice struct {
	Enabled bool  `yaml:"enabled"`
	Pin     int   `yaml:"pin"`
	Manual  bool  `yaml:"manual"`
	Range   Range `yaml:"range"`
}

// IndicatorConfig configures the RGB status LED.
type IndicatorConfig struct {
	Enabled   bool `yaml:"enabled"`
	RedPin    int  `yaml:"red_pin"`
	GreenPin  int  `yaml:"green_pin"`
	BluePin   int  `yaml:"blue_pin"`
	ActiveLow bool `yaml:"active_low"`
}

// NotifyConfig sets the minimum severity each alert sink receives.
type NotifyConfig struct {
	LogLevel  string        `yaml:"log_level"`
	MQTTLevel string        `yaml:"mqtt_level"`
	SunURL    string        `yaml:"sun_url"`
	SunRetry  time.Duration `yaml:"sun_retry"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	BufferSize  int    `yaml:"buffer_size"`
}

// HTTPConfig contains the control surface listen address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// EnvLogConfig configures the environmental reading log.
type EnvLogConfig struct {
	Interval time.Duration  `yaml:"interval"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the wiring of the reference coop build.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Name:      "Coop",
			Timezone:  "Local",
			Latitude:  42.36,
			Longitude: -71.06,
		},
		Main: MainConfig{
			PollInterval:   30 * time.Second,
			Heartbeat:      15 * time.Minute,
			RelayActiveLow: true,
			Units:          "F",
		},
		GPIO: GPIOConfig{Chip: "gpiochip0"},
		Ambient: AmbientConfig{
			Enabled:  true,
			Bus:      "/dev/i2c-1",
			Address:  0x38,
			Cache:    5 * time.Minute,
			Temp:     Bands{ErrorLow: 10, Low: 25, High: 90, ErrorHigh: 100},
			Humidity: Range{Min: 20, Max: 80},
		},
		Water: WaterConfig{
			HeaterPin:     17,
			HeaterRange:   Range{Min: 68, Max: 75},
			W1Dir:         "/sys/bus/w1/devices",
			Cache:         5 * time.Minute,
			Temp:          Bands{ErrorLow: 34, Low: 40, High: 80, ErrorHigh: 90},
			LevelHalfPin:  23,
			LevelEmptyPin: 24,
		},
		Door: DoorConfig{
			OpenPin:         22,
			ClosePin:        27,
			TopSensorPin:    5,
			BottomSensorPin: 6,
			NormallyClosed:  true,
			SensorTimeout:   30 * time.Second,
			Debounce:        50 * time.Millisecond,
			ExtraSunrise:    30 * time.Minute,
			ExtraSunset:     30 * time.Minute,
		},
		Light: LightConfig{Pin: 18},
		Heater: RelayDevice{
			Pin:   25,
			Range: Range{Min: 30, Max: 40},
		},
		Fan: RelayDevice{
			Pin:   12,
			Range: Range{Min: 75, Max: 85},
		},
		Indicator: IndicatorConfig{
			Enabled:  true,
			RedPin:   13,
			GreenPin: 19,
			BluePin:  26,
		},
		Notify: NotifyConfig{
			LogLevel:  "INFO",
			MQTTLevel: "WARN",
			SunURL:    "https://api.sunrise-sunset.org/json",
			SunRetry:  15 * time.Minute,
		},
		MQTT: MQTTConfig{
			ClientID:    "coop-controller",
			TopicPrefix: "coop",
			BufferSize:  100,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		EnvLog: EnvLogConfig{
			Interval: 15 * time.Minute,
			SQLite: SQLiteConfig{
				Enabled:     true,
				Path:        "./data/coop.db",
				BusyTimeout: 5,
			},
			InfluxDB: InfluxDBConfig{
				Bucket:        "coop",
				BatchSize:     100,
				FlushInterval: 10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides applies COOP_* environment variables for secrets and
// deployment-specific endpoints.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COOP_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("COOP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("COOP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("COOP_INFLUXDB_TOKEN"); v != "" {
		cfg.EnvLog.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Main.PollInterval <= 0 {
		errs = append(errs, "main.poll_interval must be positive")
	}
	if c.Main.Units != "F" && c.Main.Units != "C" {
		errs = append(errs, `main.units must be "F" or "C"`)
	}
	if c.Site.Latitude < -90 || c.Site.Latitude > 90 {
		errs = append(errs, "site.latitude must be between -90 and 90")
	}
	if c.Site.Longitude < -180 || c.Site.Longitude > 180 {
		errs = append(errs, "site.longitude must be between -180 and 180")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone: %v", err))
	}

	if c.Ambient.Enabled && !c.Ambient.Temp.ordered() {
		errs = append(errs, "ambient.temp thresholds must satisfy error_low < low < high < error_high")
	}
	if c.Ambient.Enabled && c.Ambient.Humidity.Min >= c.Ambient.Humidity.Max {
		errs = append(errs, "ambient.humidity.min must be below max")
	}
	if !c.Water.Temp.ordered() {
		errs = append(errs, "water.temp thresholds must satisfy error_low < low < high < error_high")
	}
	if c.Water.HeaterRange.Min >= c.Water.HeaterRange.Max {
		errs = append(errs, "water.heater_range.min must be below max")
	}
	if c.Heater.Enabled && c.Heater.Range.Min >= c.Heater.Range.Max {
		errs = append(errs, "heater.range.min must be below max")
	}
	if c.Fan.Enabled && c.Fan.Range.Min >= c.Fan.Range.Max {
		errs = append(errs, "fan.range.min must be below max")
	}
	if c.Door.SensorTimeout <= 0 {
		errs = append(errs, "door.sensor_timeout must be positive")
	}
	if c.Door.OpenPin == c.Door.ClosePin {
		errs = append(errs, "door.open_pin and door.close_pin must differ")
	}

	if dup := c.duplicatePins(); len(dup) > 0 {
		errs = append(errs, fmt.Sprintf("gpio pins assigned more than once: %v", dup))
	}

	if c.EnvLog.InfluxDB.Enabled && c.EnvLog.InfluxDB.URL == "" {
		errs = append(errs, "envlog.influxdb.url is required when enabled")
	}
	if c.EnvLog.SQLite.Enabled && c.EnvLog.SQLite.Path == "" {
		errs = append(errs, "envlog.sqlite.path is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the site's time zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Site.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Site.Timezone)
}

func (c *Config) duplicatePins() []int {
	pins := []int{
		c.Water.HeaterPin, c.Water.LevelHalfPin, c.Water.LevelEmptyPin,
		c.Door.OpenPin, c.Door.ClosePin, c.Door.TopSensorPin, c.Door.BottomSensorPin,
		c.Light.Pin,
	}
	if c.Heater.Enabled {
		pins = append(pins, c.Heater.Pin)
	}
	if c.Fan.Enabled {
		pins = append(pins, c.Fan.Pin)
	}
	if c.Indicator.Enabled {
		pins = append(pins, c.Indicator.RedPin, c.Indicator.GreenPin, c.Indicator.BluePin)
	}

	seen := make(map[int]bool, len(pins))
	var dup []int
	for _, p := range pins {
		if seen[p] {
			dup = append(dup, p)
		}
		seen[p] = true
	}
	return dup
}
