// Package model implements the property model of a virtual bus device.
//
// # Schema and Live Table
//
// A device category is described by a Schema, an ordered list of
// PropertySpecs. Each spec names one bus path (e.g. "Dc/0/Voltage"), its
// wire type, an optional fixed value, optional inclusive bounds and an
// optional Formatter:
//
//	Schema (battery)
//	├── Capacity          d  unit:0:Ah
//	├── Dc/0/Voltage      d  unit:2:V
//	└── Soc               d  [0,100] unit:0:%
//
// Project turns a Schema into a Descriptor (what remote peers see) and a
// Properties table (the live values). Three identity properties are always
// appended: DeviceInstance, CustomName and Serial.
//
// # Values
//
// Live values are normalized to one of int32, float64 or string. A nil value
// is the unset sentinel: numeric properties start unset unless the spec has a
// fixed value, so peers can tell "never reported" from "reported as zero".
//
// # Writers
//
// Properties distinguishes two writers:
//   - SetValue: remote peers. Identity properties refuse these writes once
//     the table is sealed.
//   - SetValueInternal: the device itself (instance negotiation, simulation).
//
// Every accepted change marks the property dirty until TakeDirty collects it.
package model
