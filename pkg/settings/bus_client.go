package settings

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Settings service coordinates on the bus.
const (
	ServiceName      = "com.victronenergy.settings"
	ServicePath      = dbus.ObjectPath("/")
	AddSettingsCall  = "com.victronenergy.Settings.AddSettings"
	defaultValueType = "s"
)

// ObjectProvider returns remote bus objects. *dbus.Conn satisfies it.
type ObjectProvider interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// BusClient talks to the settings service over the bus.
type BusClient struct {
	conn ObjectProvider
}

// NewBusClient creates a settings client on a bus connection.
func NewBusClient(conn ObjectProvider) *BusClient {
	return &BusClient{conn: conn}
}

// AddSetting calls AddSettings with a single {path, default, type} entry.
func (c *BusClient) AddSetting(ctx context.Context, req Request) ([]any, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	typ := req.Type
	if typ == "" {
		typ = defaultValueType
	}

	entry := map[string]dbus.Variant{
		"path":    dbus.MakeVariant("/" + normalizePath(req.Path)),
		"default": dbus.MakeVariant(req.Default),
		"type":    dbus.MakeVariant(typ),
	}

	call := c.conn.Object(ServiceName, ServicePath).
		CallWithContext(ctx, AddSettingsCall, 0, []map[string]dbus.Variant{entry})
	if call.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCollaborator, AddSettingsCall, call.Err)
	}
	return call.Body, nil
}

var _ Collaborator = (*BusClient)(nil)
