package busitem

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
)

// Device implements the device interface on the device object path.
// Every exported method is a bus method.
type Device struct {
	srv  *interaction.Server
	path dbus.ObjectPath
}

// NewDevice binds a server to the device object at path.
func NewDevice(srv *interaction.Server, path dbus.ObjectPath) *Device {
	return &Device{srv: srv, path: path}
}

func (d *Device) ctx(sender dbus.Sender) context.Context {
	return interaction.ContextWithPeer(context.Background(), interaction.Peer{
		Sender: string(sender),
		Path:   string(d.path),
	})
}

// GetValue returns the current value of a property.
func (d *Device) GetValue(sender dbus.Sender, name string) (dbus.Variant, *dbus.Error) {
	v, err := d.srv.GetValue(d.ctx(sender), name)
	if err != nil {
		return dbus.Variant{}, ToError(err)
	}
	return ToVariant(v), nil
}

// GetText returns the formatted value of a property.
func (d *Device) GetText(sender dbus.Sender, name string) (string, *dbus.Error) {
	text, err := d.srv.GetText(d.ctx(sender), name)
	if err != nil {
		return "", ToError(err)
	}
	return text, nil
}

// SetValue writes a property and returns 0 on success.
func (d *Device) SetValue(sender dbus.Sender, name string, value dbus.Variant) (int32, *dbus.Error) {
	err := d.srv.SetValue(d.ctx(sender), interaction.CallerRemote, name, FromVariant(value))
	if err != nil {
		return 1, ToError(err)
	}
	return 0, nil
}

// GetDescriptor describes every property: type, writability, bounds, format.
func (d *Device) GetDescriptor(sender dbus.Sender) (map[string]map[string]dbus.Variant, *dbus.Error) {
	return descriptorDict(d.srv.GetDescriptor(d.ctx(sender))), nil
}

// GetItems returns value and text of every property.
func (d *Device) GetItems(sender dbus.Sender) (map[string]map[string]dbus.Variant, *dbus.Error) {
	return itemsDict(d.srv.Items(d.ctx(sender))), nil
}
