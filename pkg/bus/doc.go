// Package bus connects a virtual device to the D-Bus and derives its bus
// identity.
//
// A device is addressed by its Identity:
//
//	id := bus.Identity{Vendor: "victronenergy", DeviceType: "battery", ID: "batt1"}
//	id.ServiceName()   // com.victronenergy.battery.virtual_batt1
//	id.ObjectPath()    // /com/victronenergy/battery/virtual_batt1
//	id.SettingsPath()  // Settings/Devices/virtual_batt1/ClassAndVrmInstance
//
// Connect selects the transport: an explicit host:port address is dialed
// over TCP with ANONYMOUS authentication, otherwise the session or system
// bus is used. Conn.Claim requests the service name without queueing; any
// outcome other than primary ownership is a name conflict.
package bus
