package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Formatter renders a property value as human-readable text.
// Implementations must be pure: the same value always yields the same text.
type Formatter interface {
	// Format returns the text for v. v is nil when the property is unset.
	Format(v any) string

	// ID returns the identifier ParseFormatter resolves back to this formatter.
	ID() string
}

// UnitFormatter prints a number with a fixed number of decimals and a unit
// suffix, e.g. "12.50V". Unset values render as the empty string.
type UnitFormatter struct {
	Decimals int
	Suffix   string
}

// Unit returns a UnitFormatter.
func Unit(decimals int, suffix string) UnitFormatter {
	return UnitFormatter{Decimals: decimals, Suffix: suffix}
}

// Format implements Formatter.
func (u UnitFormatter) Format(v any) string {
	f, ok := toFloat64(v)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'f', u.Decimals, 64) + u.Suffix
}

// ID implements Formatter.
func (u UnitFormatter) ID() string {
	return fmt.Sprintf("unit:%d:%s", u.Decimals, u.Suffix)
}

// EnumFormatter maps integer codes to labels. Codes without a label, and
// unset values, render as "unknown".
type EnumFormatter struct {
	Name   string
	labels map[int32]string
}

// Enum returns an EnumFormatter over a private copy of labels.
func Enum(name string, labels map[int32]string) EnumFormatter {
	cp := make(map[int32]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	return EnumFormatter{Name: name, labels: cp}
}

// Format implements Formatter.
func (e EnumFormatter) Format(v any) string {
	f, ok := toFloat64(v)
	if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return "unknown"
	}
	if label, ok := e.labels[int32(f)]; ok && label != "" {
		return label
	}
	return "unknown"
}

// ID implements Formatter.
func (e EnumFormatter) ID() string {
	return "enum:" + e.Name
}

// Label returns the label for code, if any.
func (e EnumFormatter) Label(code int32) (string, bool) {
	l, ok := e.labels[code]
	return l, ok
}

// PassthroughFormatter prints the value itself; unset renders as "".
type PassthroughFormatter struct{}

// Format implements Formatter.
func (PassthroughFormatter) Format(v any) string {
	return DefaultText(v)
}

// ID implements Formatter.
func (PassthroughFormatter) ID() string {
	return "passthrough"
}

// DefaultText stringifies a normalized value when no formatter is registered.
func DefaultText(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

var (
	enumsMu sync.RWMutex
	enums   = make(map[string]EnumFormatter)
)

// RegisterEnum makes an enum table resolvable as "enum:<name>".
func RegisterEnum(e EnumFormatter) {
	enumsMu.Lock()
	defer enumsMu.Unlock()
	enums[e.Name] = e
}

// ParseFormatter resolves a formatter identifier:
//
//	unit:<decimals>:<suffix>   e.g. unit:2:kWh
//	enum:<table>               a table added with RegisterEnum
//	passthrough
//
// The empty identifier yields a nil Formatter.
func ParseFormatter(id string) (Formatter, error) {
	if id == "" {
		return nil, nil
	}
	if id == "passthrough" {
		return PassthroughFormatter{}, nil
	}

	kind, rest, _ := strings.Cut(id, ":")
	switch kind {
	case "unit":
		dec, suffix, _ := strings.Cut(rest, ":")
		n, err := strconv.Atoi(dec)
		if err != nil || n < 0 || n > 10 {
			return nil, fmt.Errorf("formatter %q: invalid decimals", id)
		}
		return Unit(n, suffix), nil
	case "enum":
		enumsMu.RLock()
		e, ok := enums[rest]
		enumsMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("formatter %q: unknown enum table", id)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown formatter %q", id)
}
