package bus

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// DefaultVendor is the vendor segment used by Victron consumers.
const DefaultVendor = "victronenergy"

// Identity is the bus identity of one virtual device.
type Identity struct {
	Vendor     string
	DeviceType string
	ID         string
}

// ServiceName returns com.<vendor>.<deviceType>.virtual_<id>.
func (i Identity) ServiceName() string {
	return fmt.Sprintf("com.%s.%s.virtual_%s", i.vendor(), i.DeviceType, i.ID)
}

// ObjectPath returns the service name as an object path.
func (i Identity) ObjectPath() dbus.ObjectPath {
	return dbus.ObjectPath("/" + strings.ReplaceAll(i.ServiceName(), ".", "/"))
}

// InterfaceName returns the interface the device object is exported under.
func (i Identity) InterfaceName() string {
	return i.ServiceName()
}

// SettingsPath returns the settings key holding the device instance.
func (i Identity) SettingsPath() string {
	return fmt.Sprintf("Settings/Devices/virtual_%s/ClassAndVrmInstance", i.ID)
}

// DefaultInstance returns the default-if-absent settings value <type>:<slot>.
func (i Identity) DefaultInstance(slot int32) string {
	return fmt.Sprintf("%s:%d", i.DeviceType, slot)
}

// Validate checks that the identity yields a legal bus name.
func (i Identity) Validate() error {
	if i.DeviceType == "" {
		return fmt.Errorf("%w: empty device type", ErrInvalidIdentity)
	}
	if i.ID == "" {
		return fmt.Errorf("%w: empty device id", ErrInvalidIdentity)
	}
	for _, part := range []string{i.vendor(), i.DeviceType, "virtual_" + i.ID} {
		if !validElement(part) {
			return fmt.Errorf("%w: %q is not a valid bus name element", ErrInvalidIdentity, part)
		}
	}
	return nil
}

func (i Identity) vendor() string {
	if i.Vendor == "" {
		return DefaultVendor
	}
	return i.Vendor
}

// validElement reports whether s is usable both as a bus name element and
// as an object path element.
func validElement(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
