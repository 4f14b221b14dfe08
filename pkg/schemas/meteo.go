package schemas

import "github.com/victron-virtual/dbus-virtual-go/pkg/model"

var meteo = model.MustSchema(string(Meteo),
	model.Double("Irradiance").Format(model.Unit(1, "W/m2")),
	model.Double("WindSpeed").Format(model.Unit(1, "m/s")),
	model.Double("WindDirection"),
)
