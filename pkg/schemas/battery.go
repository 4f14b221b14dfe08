package schemas

import "github.com/victron-virtual/dbus-virtual-go/pkg/model"

var battery = model.MustSchema(string(Battery),
	model.Double("Capacity").Format(model.Unit(0, "Ah")),
	model.Double("Dc/0/Current").Format(model.Unit(2, "A")),
	model.Double("Dc/0/Power").Format(model.Unit(2, "W")),
	model.Double("Dc/0/Voltage").Format(model.Unit(2, "V")),
	model.Double("Dc/0/Temperature").Format(model.Unit(1, "C")),
	model.Double("Soc").Bounds(0, 100).Format(model.Unit(0, "%")),
)
