package model

import (
	"fmt"
	"math"
	"sync"
)

// Property is a live property with its current value.
type Property struct {
	mu       sync.RWMutex
	spec     PropertySpec
	identity bool
	value    any
	dirty    bool // True if value changed since last TakeDirty
}

// NewProperty creates a property seeded from spec: the fixed value if any,
// "" for strings, unset for numbers.
func NewProperty(spec PropertySpec) *Property {
	p := &Property{spec: spec.clone()}
	if spec.Fixed != nil {
		if v, err := Coerce(spec.Type, spec.Fixed); err == nil {
			p.value = v
		}
	} else if spec.Type == WireString {
		p.value = ""
	}
	return p
}

// Name returns the property name.
func (p *Property) Name() string {
	return p.spec.Name
}

// Spec returns a copy of the property spec.
func (p *Property) Spec() PropertySpec {
	return p.spec.clone()
}

// Identity reports whether this is one of the injected identity properties.
func (p *Property) Identity() bool {
	return p.identity
}

// Value returns the current value. Nil means unset.
func (p *Property) Value() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Text returns the formatted current value.
func (p *Property) Text() string {
	v := p.Value()
	if p.spec.Formatter != nil {
		return p.spec.Formatter.Format(v)
	}
	return DefaultText(v)
}

// set validates and stores value. It reports whether the value changed.
func (p *Property) set(value any) (bool, error) {
	v, err := Coerce(p.spec.Type, value)
	if err != nil {
		return false, err
	}
	if v != nil {
		if err := checkRange(p.spec, v); err != nil {
			return false, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.value == v {
		return false, nil
	}
	p.value = v
	p.dirty = true
	return true, nil
}

// IsDirty returns true if the value changed since the last ClearDirty call.
func (p *Property) IsDirty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirty
}

// ClearDirty clears the dirty flag.
func (p *Property) ClearDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = false
}

// takeDirty returns the value and clears the flag if the property is dirty.
func (p *Property) takeDirty() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return nil, false
	}
	p.dirty = false
	return p.value, true
}

// checkRange validates numeric bounds. NaN never satisfies a bound.
func checkRange(spec PropertySpec, value any) error {
	if spec.Min == nil && spec.Max == nil {
		return nil
	}
	v, ok := toFloat64(value)
	if !ok {
		return nil
	}
	if math.IsNaN(v) {
		return fmt.Errorf("%w: NaN", ErrOutOfRange)
	}
	if spec.Min != nil && v < *spec.Min {
		return fmt.Errorf("%w: %v < %v", ErrOutOfRange, value, *spec.Min)
	}
	if spec.Max != nil && v > *spec.Max {
		return fmt.Errorf("%w: %v > %v", ErrOutOfRange, value, *spec.Max)
	}
	return nil
}
