package model

import (
	"fmt"
	"strings"
)

// Identity property names, present on every projected device.
const (
	PropDeviceInstance = "DeviceInstance"
	PropCustomName     = "CustomName"
	PropSerial         = "Serial"
)

func isIdentity(name string) bool {
	return name == PropDeviceInstance || name == PropCustomName || name == PropSerial
}

// PropertySpec describes one exposed attribute of a device category.
type PropertySpec struct {
	// Name is the bus path below the device root, e.g. "Ac/L1/Power".
	Name string

	// Type is the wire type of the value.
	Type WireType

	// Fixed is the seeded value. Nil means the property starts unset.
	Fixed any

	// Min and Max bound accepted values, inclusive, when set.
	Min *float64
	Max *float64

	// Formatter renders GetText output. Nil uses DefaultText.
	Formatter Formatter
}

// Bounds returns a copy of s with inclusive bounds set.
func (s PropertySpec) Bounds(min, max float64) PropertySpec {
	s.Min = &min
	s.Max = &max
	return s
}

// WithFixed returns a copy of s seeded with v.
func (s PropertySpec) WithFixed(v any) PropertySpec {
	s.Fixed = v
	return s
}

// Format returns a copy of s using f for text rendering.
func (s PropertySpec) Format(f Formatter) PropertySpec {
	s.Formatter = f
	return s
}

// Double declares a double property.
func Double(name string) PropertySpec { return PropertySpec{Name: name, Type: WireDouble} }

// Int declares an int32 property.
func Int(name string) PropertySpec { return PropertySpec{Name: name, Type: WireInt32} }

// String declares a string property.
func String(name string) PropertySpec { return PropertySpec{Name: name, Type: WireString} }

// clone copies the spec so no pointer is shared with the source.
func (s PropertySpec) clone() PropertySpec {
	c := s
	if s.Min != nil {
		v := *s.Min
		c.Min = &v
	}
	if s.Max != nil {
		v := *s.Max
		c.Max = &v
	}
	return c
}

// Validate checks the name, the type and that a fixed value fits the spec.
func (s PropertySpec) Validate() error {
	if !ValidName(s.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, s.Name)
	}
	if s.Type.Signature() == "" {
		return fmt.Errorf("property %s: %w", s.Name, ErrTypeMismatch)
	}
	if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
		return fmt.Errorf("property %s: min %v > max %v", s.Name, *s.Min, *s.Max)
	}
	if s.Fixed != nil {
		v, err := Coerce(s.Type, s.Fixed)
		if err != nil {
			return fmt.Errorf("property %s: fixed value: %w", s.Name, err)
		}
		if err := checkRange(s, v); err != nil {
			return fmt.Errorf("property %s: fixed value: %w", s.Name, err)
		}
	}
	return nil
}

// ValidName reports whether name is a usable bus path: one or more segments
// of [A-Za-z0-9_] separated by '/'.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			default:
				return false
			}
		}
	}
	return true
}

// Schema is the ordered, immutable set of properties of one device category.
type Schema struct {
	category string
	specs    []PropertySpec
	index    map[string]int
}

// NewSchema validates specs and returns a Schema preserving their order.
// Identity names are reserved; Project appends them itself.
func NewSchema(category string, specs ...PropertySpec) (Schema, error) {
	s := Schema{
		category: category,
		specs:    make([]PropertySpec, 0, len(specs)),
		index:    make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return Schema{}, err
		}
		if isIdentity(spec.Name) {
			return Schema{}, fmt.Errorf("%w: %s", ErrReservedName, spec.Name)
		}
		if _, dup := s.index[spec.Name]; dup {
			return Schema{}, fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
		}
		s.index[spec.Name] = len(s.specs)
		s.specs = append(s.specs, spec.clone())
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for static tables.
func MustSchema(category string, specs ...PropertySpec) Schema {
	s, err := NewSchema(category, specs...)
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", category, err))
	}
	return s
}

// Category returns the device category the schema belongs to.
func (s Schema) Category() string { return s.category }

// Len returns the number of properties.
func (s Schema) Len() int { return len(s.specs) }

// Specs returns a copy of the property specs in order.
func (s Schema) Specs() []PropertySpec {
	out := make([]PropertySpec, len(s.specs))
	for i, spec := range s.specs {
		out[i] = spec.clone()
	}
	return out
}

// Lookup returns the spec with the given name.
func (s Schema) Lookup(name string) (PropertySpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return PropertySpec{}, false
	}
	return s.specs[i].clone(), true
}

// Names returns the property names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.specs))
	for i, spec := range s.specs {
		names[i] = spec.Name
	}
	return names
}
