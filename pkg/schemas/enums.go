package schemas

import "github.com/victron-virtual/dbus-virtual-go/pkg/model"

// Enum tables referenced by the category schemas.
var (
	TemperatureType = model.Enum("temperatureType", map[int32]string{
		0: "Battery",
		1: "Fridge",
		2: "Generic",
	})

	PVErrorCode = model.Enum("pvErrorCode", map[int32]string{
		0: "No error",
	})

	PVPosition = model.Enum("pvPosition", map[int32]string{
		0: "AC input 1",
		1: "AC output",
		2: "AC input 2",
	})

	PVStatusCode = model.Enum("pvStatusCode", map[int32]string{
		0:  "Startup 0",
		1:  "Startup 1",
		2:  "Startup 2",
		3:  "Startup 3",
		4:  "Startup 4",
		5:  "Startup 5",
		6:  "Startup 6",
		7:  "Running",
		8:  "Standby",
		9:  "Boot loading",
		10: "Error",
	})

	FluidType = model.Enum("fluidType", map[int32]string{
		0:  "Fuel",
		1:  "Fresh water",
		2:  "Waste water",
		3:  "Live well",
		4:  "Oil",
		5:  "Black water (sewage)",
		6:  "Gasoline",
		7:  "Diesel",
		8:  "LPG",
		9:  "LNG",
		10: "Hydraulic oil",
		11: "Raw water",
	})
)

func init() {
	for _, e := range []model.EnumFormatter{TemperatureType, PVErrorCode, PVPosition, PVStatusCode, FluidType} {
		model.RegisterEnum(e)
	}
}
