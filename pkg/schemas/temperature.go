package schemas

import "github.com/victron-virtual/dbus-virtual-go/pkg/model"

var temperature = model.MustSchema(string(Temperature),
	model.Double("Temperature").Format(model.Unit(1, "C")),
	model.Int("TemperatureType").WithFixed(2).Bounds(0, 2).Format(TemperatureType),
	model.Double("Pressure").Format(model.Unit(0, "hPa")),
	model.Double("Humidity").Format(model.Unit(1, "%")),
	model.Double("BatteryVoltage").WithFixed(3.3).Format(model.Unit(2, "V")),
	model.Int("Status"),
)
