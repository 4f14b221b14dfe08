package model

import (
	"fmt"
	"sync"
)

// Change is one property change collected by TakeDirty.
type Change struct {
	Name  string
	Value any
	Text  string
}

// Properties is the live property table of one device.
type Properties struct {
	mu sync.RWMutex

	order  []string
	props  map[string]*Property
	sealed bool
}

func newProperties() *Properties {
	return &Properties{props: make(map[string]*Property)}
}

func (p *Properties) add(prop *Property) {
	p.order = append(p.order, prop.Name())
	p.props[prop.Name()] = prop
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Names returns the property names in schema order, identity properties last.
func (p *Properties) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Get returns a property by name.
func (p *Properties) Get(name string) (*Property, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	prop, exists := p.props[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	return prop, nil
}

// Value returns the current value of a property.
func (p *Properties) Value(name string) (any, error) {
	prop, err := p.Get(name)
	if err != nil {
		return nil, err
	}
	return prop.Value(), nil
}

// Text returns the formatted current value of a property.
func (p *Properties) Text(name string) (string, error) {
	prop, err := p.Get(name)
	if err != nil {
		return "", err
	}
	return prop.Text(), nil
}

// SetValue writes on behalf of a remote peer. Identity properties are
// rejected once the table is sealed.
func (p *Properties) SetValue(name string, value any) error {
	prop, err := p.Get(name)
	if err != nil {
		return err
	}

	p.mu.RLock()
	sealed := p.sealed
	p.mu.RUnlock()
	if sealed && prop.Identity() {
		return fmt.Errorf("%w: %s", ErrNotWritable, name)
	}

	_, err = prop.set(value)
	return err
}

// SetValueInternal writes on behalf of the device itself.
func (p *Properties) SetValueInternal(name string, value any) error {
	prop, err := p.Get(name)
	if err != nil {
		return err
	}
	_, err = prop.set(value)
	return err
}

// Seal closes identity properties to remote writers.
func (p *Properties) Seal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sealed = true
}

// Sealed reports whether Seal has been called.
func (p *Properties) Sealed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sealed
}

// Snapshot returns every property with its current value and text, in order.
func (p *Properties) Snapshot() []Change {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Change, 0, len(p.order))
	for _, name := range p.order {
		prop := p.props[name]
		out = append(out, Change{Name: name, Value: prop.Value(), Text: prop.Text()})
	}
	return out
}

// TakeDirty returns the properties changed since the previous call, in
// order, and clears their dirty flags.
func (p *Properties) TakeDirty() []Change {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Change
	for _, name := range p.order {
		prop := p.props[name]
		v, dirty := prop.takeDirty()
		if !dirty {
			continue
		}
		text := DefaultText(v)
		if prop.spec.Formatter != nil {
			text = prop.spec.Formatter.Format(v)
		}
		out = append(out, Change{Name: name, Value: v, Text: text})
	}
	return out
}

// ClearDirty clears the dirty flag on all properties.
func (p *Properties) ClearDirty() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, prop := range p.props {
		prop.ClearDirty()
	}
}
