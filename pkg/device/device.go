package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/victron-virtual/dbus-virtual-go/pkg/bus"
	"github.com/victron-virtual/dbus-virtual-go/pkg/busitem"
	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
	"github.com/victron-virtual/dbus-virtual-go/pkg/schemas"
	"github.com/victron-virtual/dbus-virtual-go/pkg/settings"
)

// Device is one virtual device on the bus.
type Device struct {
	mu    sync.RWMutex
	state State

	config    Config
	id        bus.Identity
	deps      Deps
	sessionID string
	plog      log.Logger

	conn     Bus
	server   *interaction.Server
	service  *busitem.Service
	subIDs   []uint64
	instance int32
	claimed  bool
}

// New creates a device. Nothing touches the bus until Start.
func New(cfg Config, deps Deps) *Device {
	cfg = cfg.withDefaults()
	plog := deps.ProtocolLogger
	if plog == nil {
		plog = log.NoopLogger{}
	}
	return &Device{
		state:     StateIdle,
		config:    cfg,
		id:        cfg.Identity(),
		deps:      deps,
		sessionID: log.NewSessionID(),
		plog:      plog,
	}
}

// Identity returns the bus identity.
func (d *Device) Identity() bus.Identity {
	return d.id
}

// SessionID returns the protocol log session of this process run.
func (d *Device) SessionID() string {
	return d.sessionID
}

// State returns the lifecycle state.
func (d *Device) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Server returns the protocol engine, nil before Start.
func (d *Device) Server() *interaction.Server {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.server
}

// Instance returns the claimed device instance. ok is false when the claim
// failed to produce one.
func (d *Device) Instance() (instance int32, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.instance, d.claimed
}

// Start brings the device onto the bus. Connection, name and settings
// failures are returned and leave nothing exported.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateIdle && d.state != StateStopped {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.state = StateStarting
	d.mu.Unlock()

	if err := d.start(ctx); err != nil {
		d.setState(StateIdle)
		return err
	}
	d.setState(StateRunning)
	d.info("device ready",
		"service", d.id.ServiceName(),
		"path", string(d.id.ObjectPath()))
	return nil
}

func (d *Device) start(ctx context.Context) error {
	if d.deps.Connector == nil {
		return ErrNoConnector
	}
	if err := d.id.Validate(); err != nil {
		return err
	}
	name := d.id.ServiceName()

	conn, err := d.deps.Connector.Connect(ctx)
	if err != nil {
		d.stateEvent(log.StateEntityConnection, "", "FAILED", err.Error())
		return err
	}
	d.stateEvent(log.StateEntityConnection, "", "CONNECTED", "")

	if err := conn.Claim(ctx, name); err != nil {
		d.stateEvent(log.StateEntityName, "", "CONFLICT", err.Error())
		_ = conn.Close()
		return err
	}
	d.stateEvent(log.StateEntityName, "", "OWNED", name)
	d.debug("service name acquired", "name", name)

	desc, props := d.project()
	srv := interaction.NewServer(desc, props,
		interaction.WithLogger(d.plog),
		interaction.WithSessionID(d.sessionID),
		interaction.WithService(name))

	// The instance claim is the only network round trip after the name;
	// it runs while the bus objects are prepared.
	type claimResult struct {
		instance int32
		ok       bool
		err      error
	}
	claimed := make(chan claimResult, 1)
	go func() {
		instance, ok, err := d.negotiator(conn).Claim(ctx, d.id, d.config.DefaultSlot)
		claimed <- claimResult{instance, ok, err}
	}()

	svc := busitem.NewService(conn, srv, d.id.ObjectPath(), d.id.InterfaceName())
	svc.SetLogger(d.deps.Logger)

	var res claimResult
	select {
	case res = <-claimed:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		d.stateEvent(log.StateEntityInstance, "", "FAILED", res.err.Error())
		d.abort(conn, name)
		return fmt.Errorf("claim device instance: %w", res.err)
	}

	d.seed(srv, res.instance, res.ok)

	if err := svc.Export(); err != nil {
		d.abort(conn, name)
		return err
	}
	d.stateEvent(log.StateEntityExport, "", "EXPORTED", string(d.id.ObjectPath()))

	srv.Properties().Seal()

	subIDs := make([]uint64, 0, len(d.deps.Notifiers))
	for _, n := range d.deps.Notifiers {
		subIDs = append(subIDs, srv.Subscribe(n))
	}

	d.mu.Lock()
	d.conn = conn
	d.server = srv
	d.service = svc
	d.subIDs = subIDs
	d.instance = res.instance
	d.claimed = res.ok
	d.mu.Unlock()
	return nil
}

// project builds the property table from the configured schema or the
// category's built-in one. An unknown category yields an empty table so the
// device still comes up, but is reported as an error.
func (d *Device) project() (*model.Descriptor, *model.Properties) {
	if d.config.Schema != nil {
		return model.Project(*d.config.Schema)
	}
	schema, err := schemas.Lookup(schemas.Category(d.config.Category))
	if err != nil {
		d.logError("unknown device category, exporting empty schema",
			"category", d.config.Category, "error", err)
	}
	return model.Project(schema)
}

func (d *Device) negotiator(conn Bus) *settings.Negotiator {
	collab := d.deps.Settings
	if collab == nil {
		collab = settings.NewBusClient(conn)
	}
	return settings.NewNegotiator(collab,
		settings.WithLogger(d.deps.Logger),
		settings.WithProtocolLogger(d.plog, d.sessionID))
}

// seed writes the identity values. Properties the schema lacks are skipped.
func (d *Device) seed(srv *interaction.Server, instance int32, ok bool) {
	props := srv.Properties()
	set := func(name string, v any) {
		if _, err := props.Get(name); err != nil {
			return
		}
		if err := props.SetValueInternal(name, v); err != nil {
			d.warn("failed to seed property", "property", name, "error", err)
		}
	}

	if ok {
		set(model.PropDeviceInstance, instance)
		d.stateEvent(log.StateEntityInstance, "", fmt.Sprintf("%d", instance), d.id.SettingsPath())
	} else {
		d.warn("running without device instance", "path", d.id.SettingsPath())
		d.stateEvent(log.StateEntityInstance, "", "UNSET", d.id.SettingsPath())
	}
	set(propStatus, int32(0))
	set(model.PropCustomName, d.config.CustomName)
	set(model.PropSerial, d.config.Serial)

	// Seeded values are part of the exported state, not a change.
	props.ClearDirty()
}

func (d *Device) abort(conn Bus, name string) {
	if err := conn.Release(name); err != nil {
		d.warn("failed to release service name", "name", name, "error", err)
	}
	_ = conn.Close()
}

// Run starts the device if needed and serves until ctx is done.
func (d *Device) Run(ctx context.Context) error {
	if d.State() != StateRunning {
		if err := d.Start(ctx); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return d.Close()
}

// Close withdraws the device: notifiers are dropped, the name released and
// the connection closed.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return ErrNotStarted
	}
	d.state = StateStopping
	conn, srv, svc, subIDs := d.conn, d.server, d.service, d.subIDs
	d.subIDs = nil
	d.mu.Unlock()

	for _, id := range subIDs {
		srv.Unsubscribe(id)
	}
	svc.Close()

	name := d.id.ServiceName()
	var errs []error
	if err := conn.Release(name); err != nil {
		errs = append(errs, fmt.Errorf("release %s: %w", name, err))
	}
	d.stateEvent(log.StateEntityName, "OWNED", "RELEASED", name)
	if err := conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	d.stateEvent(log.StateEntityConnection, "CONNECTED", "CLOSED", "")

	d.setState(StateStopped)
	d.info("device stopped", "service", name)
	return errors.Join(errs...)
}

func (d *Device) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Device) stateEvent(entity log.StateEntity, oldState, newState, reason string) {
	d.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: d.sessionID,
		Direction: log.DirectionOut,
		Category:  log.CategoryState,
		Service:   d.id.ServiceName(),
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (d *Device) logger() *slog.Logger {
	return d.deps.Logger
}

func (d *Device) debug(msg string, args ...any) {
	if l := d.logger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (d *Device) info(msg string, args ...any) {
	if l := d.logger(); l != nil {
		l.Info(msg, args...)
	}
}

func (d *Device) warn(msg string, args ...any) {
	if l := d.logger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (d *Device) logError(msg string, args ...any) {
	if l := d.logger(); l != nil {
		l.Error(msg, args...)
	}
}
