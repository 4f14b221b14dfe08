// Package device runs one virtual device on the bus.
//
// A Device ties the other packages together in a fixed startup order:
//
//  1. connect to the bus
//  2. acquire the service name (fails if another process holds it)
//  3. project the category schema into a live property table
//  4. claim the device instance from the settings service while the bus
//     objects are prepared
//  5. seed the identity properties and export the objects
//
// After Start returns the device serves property calls until Close.
//
// Example:
//
//	dev := device.New(device.Config{Category: "battery", ID: "batt1"}, device.Deps{
//		Connector: device.BusConnector(bus.Config{}),
//		Logger:    slog.Default(),
//	})
//	if err := dev.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package device
