package schemas

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
)

// File is the YAML form of a property table.
//
//	category: battery
//	properties:
//	  - name: Soc
//	    type: d
//	    min: 0
//	    max: 100
//	    format: "unit:0:%"
type File struct {
	Category   string         `yaml:"category"`
	Properties []PropertyFile `yaml:"properties"`
}

// PropertyFile is the YAML form of one PropertySpec.
type PropertyFile struct {
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	Value  any      `yaml:"value,omitempty"`
	Min    *float64 `yaml:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty"`
	Format string   `yaml:"format,omitempty"`
}

// Parse decodes a YAML property table.
func Parse(data []byte) (model.Schema, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return model.Schema{}, fmt.Errorf("parsing schema: %w", err)
	}
	if f.Category == "" {
		return model.Schema{}, fmt.Errorf("parsing schema: category is required")
	}

	specs := make([]model.PropertySpec, 0, len(f.Properties))
	for _, p := range f.Properties {
		wt, err := model.ParseWireType(p.Type)
		if err != nil {
			return model.Schema{}, fmt.Errorf("property %s: %w", p.Name, err)
		}
		formatter, err := model.ParseFormatter(p.Format)
		if err != nil {
			return model.Schema{}, fmt.Errorf("property %s: %w", p.Name, err)
		}
		specs = append(specs, model.PropertySpec{
			Name:      p.Name,
			Type:      wt,
			Fixed:     p.Value,
			Min:       p.Min,
			Max:       p.Max,
			Formatter: formatter,
		})
	}

	return model.NewSchema(f.Category, specs...)
}

// LoadFile reads and parses a YAML property table.
func LoadFile(path string) (model.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Schema{}, fmt.Errorf("reading schema: %w", err)
	}
	return Parse(data)
}

// Export renders a schema in the YAML form accepted by Parse.
func Export(s model.Schema) ([]byte, error) {
	f := File{Category: s.Category()}
	for _, spec := range s.Specs() {
		p := PropertyFile{
			Name:  spec.Name,
			Type:  spec.Type.Signature(),
			Value: spec.Fixed,
			Min:   spec.Min,
			Max:   spec.Max,
		}
		if spec.Formatter != nil {
			p.Format = spec.Formatter.ID()
		}
		f.Properties = append(f.Properties, p)
	}
	return yaml.Marshal(f)
}
