package schemas

import (
	"errors"
	"fmt"
	"strings"

	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
)

// ErrUnknownCategory is returned for a device category without a table.
var ErrUnknownCategory = errors.New("unknown device category")

// Category is a virtual device category. It doubles as the service class in
// bus names and instance settings.
type Category string

const (
	Battery     Category = "battery"
	Temperature Category = "temperature"
	Grid        Category = "grid"
	PVInverter  Category = "pvinverter"
	Meteo       Category = "meteo"
	Tank        Category = "tank"
)

var tables = map[Category]model.Schema{
	Battery:     battery,
	Temperature: temperature,
	Grid:        grid,
	PVInverter:  pvinverter,
	Meteo:       meteo,
	Tank:        tank,
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{Battery, Temperature, Grid, PVInverter, Meteo, Tank}
}

// Valid reports whether c has a property table.
func (c Category) Valid() bool {
	_, ok := tables[c]
	return ok
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return c, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownCategory, s, categoryList())
	}
	return c, nil
}

// Lookup returns the schema of a category. For unknown categories it
// returns an empty schema and ErrUnknownCategory.
func Lookup(c Category) (model.Schema, error) {
	s, ok := tables[c]
	if !ok {
		return model.Schema{}, fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}
	return s, nil
}

func categoryList() string {
	names := make([]string, 0, len(tables))
	for _, c := range Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
