// Package schemas provides the property tables of the virtual device
// categories.
//
// # Categories
//
//   - battery: DC telemetry and state of charge
//   - temperature: temperature, humidity and pressure sensor
//   - grid: AC grid meter
//   - pvinverter: three-phase PV inverter
//   - meteo: irradiance and wind
//   - tank: fluid level sensor with alarms
//
// # Usage
//
//	schema, err := schemas.Lookup(schemas.Battery)
//	desc, props := model.Project(schema)
//
// Lookup of an unknown category returns an empty schema together with
// ErrUnknownCategory, so callers can surface the misconfiguration while still
// projecting a harmless, empty device.
//
// Tables can also be loaded from YAML with Parse; formatters are referenced by
// identifier (see model.ParseFormatter).
package schemas
