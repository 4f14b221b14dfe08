package busitem

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
)

// D-Bus error names reported to peers.
const (
	ErrNameUnknownProperty = "com.victronenergy.BusItem.UnknownProperty"
	ErrNameTypeMismatch    = "com.victronenergy.BusItem.TypeMismatch"
	ErrNameOutOfRange      = "com.victronenergy.BusItem.OutOfRange"
	ErrNameNotWritable     = "com.victronenergy.BusItem.NotWritable"
)

// invalid is the wire encoding of an unset value.
var invalid = dbus.MakeVariant([]int32{})

// ToVariant encodes a normalized property value.
func ToVariant(v any) dbus.Variant {
	if v == nil {
		return invalid
	}
	return dbus.MakeVariant(v)
}

// FromVariant decodes a value received from a peer. An empty array is the
// unset sentinel.
func FromVariant(v dbus.Variant) any {
	value := v.Value()
	switch x := value.(type) {
	case []int32:
		if len(x) == 0 {
			return nil
		}
	case []interface{}:
		if len(x) == 0 {
			return nil
		}
	case dbus.Variant:
		return FromVariant(x)
	}
	return value
}

// ToError maps a property error onto a named D-Bus error.
func ToError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	name := ""
	switch {
	case errors.Is(err, model.ErrUnknownProperty):
		name = ErrNameUnknownProperty
	case errors.Is(err, model.ErrTypeMismatch):
		name = ErrNameTypeMismatch
	case errors.Is(err, model.ErrOutOfRange):
		name = ErrNameOutOfRange
	case errors.Is(err, model.ErrNotWritable):
		name = ErrNameNotWritable
	default:
		return dbus.MakeFailedError(err)
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}

// itemsDict encodes changes as a{sa{sv}} keyed by object path.
func itemsDict(changes []model.Change) map[string]map[string]dbus.Variant {
	out := make(map[string]map[string]dbus.Variant, len(changes))
	for _, ch := range changes {
		out["/"+ch.Name] = map[string]dbus.Variant{
			"Value": ToVariant(ch.Value),
			"Text":  dbus.MakeVariant(ch.Text),
		}
	}
	return out
}

// descriptorDict encodes the descriptor as a{sa{sv}} keyed by property name.
func descriptorDict(desc *model.Descriptor) map[string]map[string]dbus.Variant {
	out := make(map[string]map[string]dbus.Variant, desc.Len())
	for _, pd := range desc.Properties {
		entry := map[string]dbus.Variant{
			"Type":     dbus.MakeVariant(pd.Type.Signature()),
			"Writable": dbus.MakeVariant(pd.Writable),
			"Fixed":    dbus.MakeVariant(pd.Fixed),
		}
		if pd.Min != nil {
			entry["Min"] = dbus.MakeVariant(*pd.Min)
		}
		if pd.Max != nil {
			entry["Max"] = dbus.MakeVariant(*pd.Max)
		}
		if pd.Formatter != "" {
			entry["Format"] = dbus.MakeVariant(pd.Formatter)
		}
		out[pd.Name] = entry
	}
	return out
}
