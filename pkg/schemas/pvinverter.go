package schemas

import "github.com/victron-virtual/dbus-virtual-go/pkg/model"

var pvinverter = model.MustSchema(string(PVInverter), pvinverterSpecs()...)

func pvinverterSpecs() []model.PropertySpec {
	specs := []model.PropertySpec{
		model.Double("Ac/Energy/Forward").Format(model.Unit(2, "kWh")),
		model.Double("Ac/Power").Format(model.Unit(2, "W")),
	}
	for _, phase := range []string{"L1", "L2", "L3"} {
		specs = append(specs,
			model.Double("Ac/"+phase+"/Current").Format(model.Unit(2, "A")),
			model.Double("Ac/"+phase+"/Energy/Forward").Format(model.Unit(2, "kWh")),
			model.Double("Ac/"+phase+"/Power").Format(model.Unit(2, "W")),
			model.Double("Ac/"+phase+"/Voltage").Format(model.Unit(2, "V")),
		)
	}
	return append(specs,
		model.Double("Ac/MaxPower").Format(model.Unit(2, "W")),
		model.Double("Ac/PowerLimit").Format(model.Unit(2, "W")),
		model.Int("ErrorCode").WithFixed(0).Format(PVErrorCode),
		model.Int("Position").Format(PVPosition),
		model.Int("StatusCode").Format(PVStatusCode),
	)
}
