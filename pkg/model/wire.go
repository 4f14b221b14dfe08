package model

import (
	"errors"
	"fmt"
	"math"
)

// Property errors.
var (
	ErrUnknownProperty = errors.New("unknown property")
	ErrTypeMismatch    = errors.New("value does not match wire type")
	ErrOutOfRange      = errors.New("value out of range")
	ErrNotWritable     = errors.New("property is not writable")
	ErrInvalidName     = errors.New("invalid property name")
	ErrDuplicateName   = errors.New("duplicate property name")
	ErrReservedName    = errors.New("reserved property name")
)

// WireType is the bus type of a property value.
type WireType uint8

const (
	WireInt32 WireType = iota + 1
	WireDouble
	WireString
)

// Signature returns the D-Bus type code for the wire type.
func (w WireType) Signature() string {
	switch w {
	case WireInt32:
		return "i"
	case WireDouble:
		return "d"
	case WireString:
		return "s"
	default:
		return ""
	}
}

// String returns the wire type name.
func (w WireType) String() string {
	switch w {
	case WireInt32:
		return "int32"
	case WireDouble:
		return "double"
	case WireString:
		return "string"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether values of this type are numbers.
func (w WireType) IsNumeric() bool {
	return w == WireInt32 || w == WireDouble
}

// ParseWireType accepts a D-Bus type code ("i", "d", "s") or a type name.
func ParseWireType(s string) (WireType, error) {
	switch s {
	case "i", "int32", "int":
		return WireInt32, nil
	case "d", "double", "float64":
		return WireDouble, nil
	case "s", "string":
		return WireString, nil
	default:
		return 0, fmt.Errorf("unknown wire type %q", s)
	}
}

// Coerce converts v into the normalized representation of the wire type.
// A nil v is accepted for numeric types and yields the unset sentinel.
func Coerce(w WireType, v any) (any, error) {
	if v == nil {
		if w.IsNumeric() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s does not accept null", ErrTypeMismatch, w)
	}

	switch w {
	case WireInt32:
		if n, ok := toInt64(v); ok {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("%w: %d does not fit int32", ErrTypeMismatch, n)
			}
			return int32(n), nil
		}
		if f, ok := toFloat64(v); ok && f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
			return int32(f), nil
		}
		return nil, fmt.Errorf("%w: expected int32, got %T", ErrTypeMismatch, v)

	case WireDouble:
		if f, ok := toFloat64(v); ok {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: %v is not a finite double", ErrTypeMismatch, f)
			}
			return f, nil
		}
		return nil, fmt.Errorf("%w: expected double, got %T", ErrTypeMismatch, v)

	case WireString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: expected string, got %T", ErrTypeMismatch, v)
	}

	return nil, fmt.Errorf("%w: unsupported wire type %d", ErrTypeMismatch, w)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
