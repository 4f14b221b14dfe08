// Command virtual-device publishes a virtual energy device on the D-Bus.
//
// The device registers as com.victronenergy.<category>.virtual_<id>, claims
// a device instance from the settings service and serves its properties
// until terminated.
//
// Usage:
//
//	virtual-device [flags]
//
// Flags:
//
//	-device, -d string    Device category (required): battery, temperature,
//	                      grid, pvinverter, meteo, tank
//	-id, -i string        Device identifier (default "dev1")
//	-config string        YAML configuration file
//	-schema string        YAML property table replacing the built-in one
//	-dump-schema          Print the device's property table as YAML and exit
//	-settings-db string   Claim instances from a local SQLite file instead
//	                      of the settings service
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-simulate             Write random values periodically
//	-interactive          Start the interactive console
//	-protocol-log string  Capture protocol events to a CBOR file
//
// Environment:
//
//	DBUS_ADDRESS=host:port  connect to a remote bus
//	BUS_ADDRESS=<any>       use the session bus
//
// Examples:
//
//	# Battery on the system bus
//	virtual-device -d battery -i batt1
//
//	# Tank on a GX device over TCP, with simulated levels
//	DBUS_ADDRESS=192.168.1.10:78 virtual-device -d tank -i fresh1 -simulate
//
//	# Development without a settings service
//	BUS_ADDRESS=1 virtual-device -d grid -settings-db ./data/settings.db -interactive
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/victron-virtual/dbus-virtual-go/cmd/virtual-device/interactive"
	"github.com/victron-virtual/dbus-virtual-go/internal/config"
	"github.com/victron-virtual/dbus-virtual-go/internal/logging"
	"github.com/victron-virtual/dbus-virtual-go/pkg/bus"
	"github.com/victron-virtual/dbus-virtual-go/pkg/device"
	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
	"github.com/victron-virtual/dbus-virtual-go/pkg/mqttmirror"
	"github.com/victron-virtual/dbus-virtual-go/pkg/schemas"
	"github.com/victron-virtual/dbus-virtual-go/pkg/settings"
)

// Flags holds the command line overrides.
type Flags struct {
	ConfigFile  string
	SchemaFile  string
	DumpSchema  bool
	Category    string
	ID          string
	SettingsDB  string
	LogLevel    string
	Simulate    bool
	Interactive bool
	ProtocolLog string
}

var flags Flags

func init() {
	flag.StringVar(&flags.Category, "device", "", "Device category (required): battery, temperature, grid, pvinverter, meteo, tank")
	flag.StringVar(&flags.Category, "d", "", "Device category (shorthand)")
	flag.StringVar(&flags.ID, "id", "dev1", "Device identifier")
	flag.StringVar(&flags.ID, "i", "dev1", "Device identifier (shorthand)")
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.SchemaFile, "schema", "", "YAML property table replacing the built-in one")
	flag.BoolVar(&flags.DumpSchema, "dump-schema", false, "Print the device's property table as YAML and exit")
	flag.StringVar(&flags.SettingsDB, "settings-db", "", "Local SQLite settings file (instead of the settings service)")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.Simulate, "simulate", false, "Enable simulation mode with random values")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive console")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Capture protocol events to this CBOR file")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fatal(logging.Default(), "failed to load configuration", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fatal(logging.Default(), "invalid configuration", err)
	}

	// An unknown category is not fatal here; the device reports it and
	// serves an empty table.
	var schema model.Schema
	if cfg.Device.SchemaFile != "" || flags.DumpSchema {
		schema, err = loadSchema(cfg.Device)
		if err != nil {
			fatal(logging.Default(), "failed to load schema", err)
		}
	}
	if flags.DumpSchema {
		data, err := schemas.Export(schema)
		if err != nil {
			fatal(logging.Default(), "failed to encode schema", err)
		}
		_, _ = os.Stdout.Write(data)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The console owns the terminal, so logs go through it.
	var console *interactive.Device
	var logOut io.Writer
	if flags.Interactive {
		console, err = interactive.New()
		if err != nil {
			fatal(logging.Default(), "failed to start console", err)
		}
		logOut = console.Stdout()
	}

	devCfg := device.Config{
		Category:    cfg.Device.Category,
		ID:          cfg.Device.ID,
		Vendor:      cfg.Device.Vendor,
		CustomName:  cfg.Device.CustomName,
		Serial:      cfg.Device.Serial,
		DefaultSlot: cfg.Device.DefaultSlot,
	}
	if cfg.Device.SchemaFile != "" {
		devCfg.Schema = &schema
	}
	service := devCfg.Identity().ServiceName()
	logger := newLogger(cfg.Logging, service, logOut)

	plog, closeLog, err := protocolLogger(cfg.ProtocolLog, logger)
	if err != nil {
		fatal(logger, "failed to open protocol log", err)
	}
	defer closeLog()

	var store *settings.SQLiteStore
	deps := device.Deps{
		Connector: device.BusConnector(bus.Config{
			Address:        cfg.Bus.Address,
			Session:        cfg.Bus.Session,
			ConnectTimeout: cfg.ConnectTimeout(),
		}),
		Logger:         logger,
		ProtocolLogger: plog,
	}
	if cfg.Settings.Backend == config.SettingsSQLite {
		store, err = settings.OpenStore(settings.StoreConfig{
			Path:        cfg.Settings.Path,
			BusyTimeout: cfg.BusyTimeout(),
		})
		if err != nil {
			fatal(logger, "failed to open settings database", err)
		}
		defer store.Close() //nolint:errcheck // Best effort on shutdown
		deps.Settings = store
	}

	logger.Info("starting virtual device",
		"category", cfg.Device.Category,
		"id", cfg.Device.ID,
		"transport", bus.Config{Address: cfg.Bus.Address, Session: cfg.Bus.Session}.Transport(),
		"settings", cfg.Settings.Backend)

	dev := device.New(devCfg, deps)
	if err := dev.Start(ctx); err != nil {
		fatal(logger, "failed to start device", err)
	}
	srv := dev.Server()

	instance, ok := dev.Instance()
	if ok {
		logger.Info("device running", "instance", instance, "session", dev.SessionID())
	} else {
		logger.Warn("device running without instance", "session", dev.SessionID())
	}

	if cfg.MQTT.Enabled {
		mirror, err := startMirror(ctx, cfg, srv, instanceLabel(instance, ok, cfg.Device.ID), logger)
		if err != nil {
			logger.Warn("mqtt mirror disabled", "error", err)
		} else {
			defer mirror.Close()
		}
	}

	sim := newSimulator(srv, cfg.SimulationInterval(), logger)
	if cfg.Simulation.Enabled {
		sim.Start()
	}
	defer sim.Stop()

	if console != nil {
		console.Attach(srv, sim)
		go console.Run(ctx, cancel)
	}

	// Wait for shutdown signal or console exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sim.Stop()
	if err := dev.Close(); err != nil {
		logger.Warn("error stopping device", "error", err)
	}
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device", "d":
			cfg.Device.Category = flags.Category
		case "id", "i":
			cfg.Device.ID = flags.ID
		case "schema":
			cfg.Device.SchemaFile = flags.SchemaFile
		case "settings-db":
			cfg.Settings.Backend = config.SettingsSQLite
			cfg.Settings.Path = flags.SettingsDB
		case "log-level":
			cfg.Logging.Level = flags.LogLevel
		case "simulate":
			cfg.Simulation.Enabled = flags.Simulate
		case "protocol-log":
			cfg.ProtocolLog.Path = flags.ProtocolLog
		}
	})
}

// loadSchema returns the property table from the configured file, or the
// built-in table of the category.
func loadSchema(cfg config.DeviceConfig) (model.Schema, error) {
	if cfg.SchemaFile != "" {
		return schemas.LoadFile(cfg.SchemaFile)
	}
	return schemas.Lookup(schemas.Category(cfg.Category))
}

func newLogger(cfg config.LoggingConfig, service string, out io.Writer) *slog.Logger {
	if out != nil {
		return logging.NewWriter(out, cfg, service)
	}
	return logging.New(cfg, service)
}

// protocolLogger combines the configured event sinks. The returned func
// closes the capture file.
func protocolLogger(cfg config.ProtocolLogConfig, logger *slog.Logger) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if cfg.Path != "" {
		var opts []log.FileOption
		if cfg.MaxBytes > 0 {
			opts = append(opts, log.WithMaxBytes(cfg.MaxBytes))
		}
		fl, err := log.NewFileLogger(cfg.Path, opts...)
		if err != nil {
			return nil, closeFn, err
		}
		sinks = append(sinks, fl)
		closeFn = func() { _ = fl.Close() }
		logger.Info("protocol capture enabled", "path", fl.Path())
	}
	if cfg.Slog {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	if len(sinks) == 0 {
		return log.NoopLogger{}, closeFn, nil
	}
	return log.NewMultiLogger(sinks...), closeFn, nil
}

func startMirror(ctx context.Context, cfg *config.Config, srv *interaction.Server, instance string, logger *slog.Logger) (*mqttmirror.Mirror, error) {
	mirror, err := mqttmirror.Connect(mqttmirror.Config{
		BrokerURL: cfg.BrokerURL(),
		ClientID:  cfg.MQTT.Broker.ClientID,
		Username:  cfg.MQTT.Auth.Username,
		Password:  cfg.MQTT.Auth.Password,
		QoS:       byte(cfg.MQTT.QoS),
		Retain:    cfg.MQTT.Retain,
		TLS:       cfg.MQTT.Broker.TLS,
	}, mqttmirror.Topics{
		PortalID: cfg.MQTT.PortalID,
		Category: cfg.Device.Category,
		Instance: instance,
	}, logger)
	if err != nil {
		return nil, err
	}

	srv.Subscribe(mirror)
	mirror.PublishAll(srv.Items(ctx))
	logger.Info("mqtt mirror connected", "broker", cfg.BrokerURL(), "topic", mirror.Topics().Value("#"))
	return mirror, nil
}

// instanceLabel names the device in MQTT topics: its instance when claimed,
// otherwise its identifier.
func instanceLabel(instance int32, ok bool, id string) string {
	if ok {
		return strconv.Itoa(int(instance))
	}
	return id
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
