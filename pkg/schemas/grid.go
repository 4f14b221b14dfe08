package schemas

import "github.com/victron-virtual/dbus-virtual-go/pkg/model"

var grid = model.MustSchema(string(Grid),
	model.Double("Ac/Energy/Forward").WithFixed(0).Format(model.Unit(2, "kWh")),
	model.Double("Ac/Energy/Reverse").WithFixed(0).Format(model.Unit(2, "kWh")),
	model.Double("Ac/Frequency").Format(model.Unit(2, "Hz")),
	model.Double("Ac/N/Current").Format(model.Unit(2, "A")),
	model.Double("Ac/Power").Format(model.Unit(2, "W")),
	model.Double("Ac/PENVoltage").Format(model.Unit(2, "V")),
	model.Double("NrOfPhases").WithFixed(1).Format(model.PassthroughFormatter{}),
	model.Double("ErrorCode").WithFixed(0).Format(model.PassthroughFormatter{}),
	model.Double("Connected").WithFixed(1).Format(model.PassthroughFormatter{}),
	model.Double("Position").WithFixed(0).Format(model.PassthroughFormatter{}),
)
