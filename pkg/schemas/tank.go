package schemas

import "github.com/victron-virtual/dbus-virtual-go/pkg/model"

var tank = model.MustSchema(string(Tank), tankSpecs()...)

func tankSpecs() []model.PropertySpec {
	var specs []model.PropertySpec
	for _, level := range []string{"High", "Low"} {
		for _, field := range []string{"Active", "Delay", "Enable", "Restore", "State"} {
			specs = append(specs, model.Double("Alarms/"+level+"/"+field))
		}
	}
	return append(specs,
		model.Double("Capacity"),
		model.Int("FluidType").WithFixed(0).Format(FluidType),
		model.Double("Level"),
		model.String("RawUnit"),
		model.Double("RawValue"),
		model.Double("RawValueEmpty"),
		model.Double("RawValueFull"),
		model.Double("Remaining"),
		model.String("Shape"),
		model.Double("Temperature").Format(model.Unit(1, "C")),
		model.Double("BatteryVoltage").WithFixed(3.3).Format(model.Unit(2, "V")),
		model.Int("Status"),
	)
}
