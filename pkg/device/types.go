package device

import (
	"context"
	"errors"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/victron-virtual/dbus-virtual-go/pkg/bus"
	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
	"github.com/victron-virtual/dbus-virtual-go/pkg/settings"
)

// Device errors.
var (
	ErrNotStarted     = errors.New("device not started")
	ErrAlreadyStarted = errors.New("device already started")
	ErrNoConnector    = errors.New("no bus connector configured")
)

// Default identity values.
const (
	DefaultID     = "dev1"
	DefaultSerial = "1234567890"
	propStatus    = "Status"
)

// State is the device lifecycle state.
type State uint8

const (
	// StateIdle - created but not started.
	StateIdle State = iota

	// StateStarting - connecting, claiming and exporting.
	StateStarting

	// StateRunning - exported and serving calls.
	StateRunning

	// StateStopping - releasing the name.
	StateStopping

	// StateStopped - connection closed.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config identifies the device.
type Config struct {
	// Category is the device type, e.g. "battery".
	Category string

	// ID distinguishes devices of the same category (default: "dev1").
	ID string

	// Vendor is the service name vendor (default: "victronenergy").
	Vendor string

	// CustomName is the initial display name (default: "Virtual <category>").
	CustomName string

	// Serial is the reported serial number (default: "1234567890").
	Serial string

	// DefaultSlot is the instance requested on first claim (default: 100).
	DefaultSlot int32

	// Schema replaces the built-in property table of Category when set.
	Schema *model.Schema
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = DefaultID
	}
	if c.Vendor == "" {
		c.Vendor = bus.DefaultVendor
	}
	if c.CustomName == "" {
		c.CustomName = "Virtual " + c.Category
	}
	if c.Serial == "" {
		c.Serial = DefaultSerial
	}
	if c.DefaultSlot == 0 {
		c.DefaultSlot = settings.DefaultSlot
	}
	return c
}

// Identity returns the bus identity the config derives.
func (c Config) Identity() bus.Identity {
	c = c.withDefaults()
	return bus.Identity{Vendor: c.Vendor, DeviceType: c.Category, ID: c.ID}
}

// Bus is the connection a device runs on. *bus.Conn satisfies it.
type Bus interface {
	Claim(ctx context.Context, name string) error
	Release(name string) error
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Close() error
}

// Connector opens the device's bus connection.
type Connector interface {
	Connect(ctx context.Context) (Bus, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Bus, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Bus, error) {
	return f(ctx)
}

// BusConnector connects with bus.Connect.
func BusConnector(cfg bus.Config) Connector {
	return ConnectorFunc(func(ctx context.Context) (Bus, error) {
		conn, err := bus.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// Deps are the collaborators of a device.
type Deps struct {
	// Connector opens the bus connection. Required.
	Connector Connector

	// Settings claims the device instance. Nil uses the settings service
	// on the device's own connection.
	Settings settings.Collaborator

	// Logger is the operational logger. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger records calls, notifications and lifecycle events.
	ProtocolLogger log.Logger

	// Notifiers receive every change batch after the bus signal.
	Notifiers []interaction.Notifier
}

var _ Bus = (*bus.Conn)(nil)
