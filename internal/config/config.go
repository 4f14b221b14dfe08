// Package config loads the virtual device configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and environment variables. Command line flags are
// applied on top by the caller.
//
// Usage:
//
//	cfg, err := config.Load("virtual-device.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Category)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Settings backends.
const (
	SettingsBus    = "bus"
	SettingsSQLite = "sqlite"
)

// Config is the complete configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Bus         BusConfig         `yaml:"bus"`
	Settings    SettingsConfig    `yaml:"settings"`
	Logging     LoggingConfig     `yaml:"logging"`
	ProtocolLog ProtocolLogConfig `yaml:"protocol_log"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Simulation  SimulationConfig  `yaml:"simulation"`
}

// DeviceConfig identifies the device.
type DeviceConfig struct {
	Category    string `yaml:"category"`
	ID          string `yaml:"id"`
	Vendor      string `yaml:"vendor"`
	CustomName  string `yaml:"custom_name"`
	Serial      string `yaml:"serial"`
	DefaultSlot int32  `yaml:"default_slot"`
	SchemaFile  string `yaml:"schema_file"`
}

// BusConfig selects the bus transport.
type BusConfig struct {
	// Address is host:port or a D-Bus address. Empty uses a local bus.
	Address string `yaml:"address"`

	// Session selects the session bus instead of the system bus.
	Session bool `yaml:"session"`

	// ConnectTimeout in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// SettingsConfig selects where device instances are claimed.
type SettingsConfig struct {
	// Backend is "bus" (the settings service) or "sqlite" (a local file).
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// BusyTimeout in seconds.
	BusyTimeout int `yaml:"busy_timeout"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ProtocolLogConfig configures the protocol event capture.
type ProtocolLogConfig struct {
	// Path of the CBOR capture file. Empty disables the file.
	Path string `yaml:"path"`

	// MaxBytes rotates the file when exceeded. Zero disables rotation.
	MaxBytes int64 `yaml:"max_bytes"`

	// Slog also writes events to the operational logger at debug level.
	Slog bool `yaml:"slog"`
}

// MQTTConfig configures the change mirror.
type MQTTConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Broker   MQTTBrokerConfig `yaml:"broker"`
	Auth     MQTTAuthConfig   `yaml:"auth"`
	QoS      int              `yaml:"qos"`
	Retain   bool             `yaml:"retain"`
	PortalID string           `yaml:"portal_id"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SimulationConfig configures periodic random updates.
type SimulationConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between updates in seconds.
	Interval int `yaml:"interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:          "dev1",
			Vendor:      "victronenergy",
			DefaultSlot: 100,
		},
		Bus: BusConfig{
			ConnectTimeout: 30,
		},
		Settings: SettingsConfig{
			Backend:     SettingsBus,
			Path:        "./data/settings.db",
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "virtual-device",
			},
			QoS:      0,
			PortalID: "virtual",
		},
		Simulation: SimulationConfig{
			Interval: 5,
		},
	}
}

// Load reads a YAML file over the defaults, then applies the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides.
//
//	DBUS_ADDRESS          host:port of a remote bus
//	BUS_ADDRESS           any non-empty value selects the session bus
//	VIRTUAL_DEVICE_MQTT_PASSWORD
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DBUS_ADDRESS"); v != "" {
		c.Bus.Address = v
	}
	if v := os.Getenv("BUS_ADDRESS"); v != "" {
		c.Bus.Session = true
	}
	if v := os.Getenv("VIRTUAL_DEVICE_MQTT_PASSWORD"); v != "" {
		c.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Unknown categories are accepted; the device reports them when it
	// projects an empty schema.
	if c.Device.Category == "" {
		errs = append(errs, "device.category is required")
	}
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}
	if c.Device.DefaultSlot <= 0 {
		errs = append(errs, "device.default_slot must be positive")
	}

	switch c.Settings.Backend {
	case SettingsBus:
	case SettingsSQLite:
		if c.Settings.Path == "" {
			errs = append(errs, "settings.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("settings.backend must be %q or %q", SettingsBus, SettingsSQLite))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.Simulation.Enabled && c.Simulation.Interval <= 0 {
		errs = append(errs, "simulation.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// ConnectTimeout returns the bus connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Bus.ConnectTimeout) * time.Second
}

// BusyTimeout returns the SQLite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Settings.BusyTimeout) * time.Second
}

// SimulationInterval returns the simulation tick.
func (c *Config) SimulationInterval() time.Duration {
	return time.Duration(c.Simulation.Interval) * time.Second
}

// BrokerURL returns the MQTT broker URL.
func (c *Config) BrokerURL() string {
	scheme := "tcp"
	if c.MQTT.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.Broker.Host, c.MQTT.Broker.Port)
}
