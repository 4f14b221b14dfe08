package model

// PropertyDescriptor is the introspection record of one property.
type PropertyDescriptor struct {
	Name      string
	Type      WireType
	Writable  bool
	Min       *float64
	Max       *float64
	Formatter string
	Fixed     bool
}

// Descriptor lists every property a device exposes, in order.
type Descriptor struct {
	Category   string
	Properties []PropertyDescriptor
}

// Len returns the number of described properties.
func (d *Descriptor) Len() int {
	return len(d.Properties)
}

// Lookup returns the descriptor of a property.
func (d *Descriptor) Lookup(name string) (PropertyDescriptor, bool) {
	for _, pd := range d.Properties {
		if pd.Name == name {
			return pd, true
		}
	}
	return PropertyDescriptor{}, false
}

// identitySpecs are appended to every non-empty schema.
func identitySpecs() []PropertySpec {
	return []PropertySpec{
		Int(PropDeviceInstance),
		String(PropCustomName),
		String(PropSerial),
	}
}

// Project builds the introspection descriptor and the seeded live table for
// a schema. An empty schema (unknown category) projects to an empty
// descriptor and an empty table.
func Project(schema Schema) (*Descriptor, *Properties) {
	desc := &Descriptor{Category: schema.Category()}
	props := newProperties()

	if schema.Len() == 0 {
		return desc, props
	}

	for _, spec := range schema.Specs() {
		props.add(NewProperty(spec))
		desc.Properties = append(desc.Properties, describe(spec, true))
	}

	for _, spec := range identitySpecs() {
		prop := NewProperty(spec)
		prop.identity = true
		props.add(prop)
		desc.Properties = append(desc.Properties, describe(spec, false))
	}

	return desc, props
}

func describe(spec PropertySpec, writable bool) PropertyDescriptor {
	pd := PropertyDescriptor{
		Name:     spec.Name,
		Type:     spec.Type,
		Writable: writable,
		Min:      spec.Min,
		Max:      spec.Max,
		Fixed:    spec.Fixed != nil,
	}
	if spec.Formatter != nil {
		pd.Formatter = spec.Formatter.ID()
	}
	return pd
}
