// Package busitem publishes a property exchange server on the D-Bus.
//
// Two surfaces are exported on the connection:
//
//   - the device object at the identity's object path, implementing the
//     device interface (GetValue, GetText, SetValue, GetDescriptor, GetItems)
//   - the Victron BusItem tree: every property is its own object path
//     ("/Soc", "/Dc/0/Voltage") and "/" answers for all of them
//
// Change batches from the server are broadcast as one ItemsChanged signal
// on "/" per EmitChanges call.
//
// Unset numeric values travel as an empty int32 array, the invalid-value
// convention of Victron consumers. The same encoding is accepted on writes.
package busitem
