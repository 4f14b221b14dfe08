// Package interaction implements the property exchange protocol of a
// virtual bus device.
//
// The Server answers the operations every bus peer uses:
//
//   - GetValue: current value in its wire type
//   - GetText: formatted value
//   - SetValue: validated write (type, bounds, caller privilege)
//   - Descriptor: full introspection of the device's properties
//   - Items: value and text of every property
//   - EmitChanges: flush pending changes as one batched notification
//
// # Callers
//
// Writes carry a Caller. CallerRemote is used for bus peers and cannot touch
// identity properties once the device is ready; CallerDevice is used by the
// device itself.
//
// # Change Notifications
//
// Writes only mark properties dirty. Callers batch their writes and call
// EmitChanges once per update cycle; the resulting ChangeSet is delivered to
// every registered Notifier, in the order EmitChanges was invoked. An empty
// flush delivers nothing.
//
//	srv := interaction.NewServer(desc, props, interaction.WithLogger(logger))
//	srv.Subscribe(signalEmitter)
//
//	_ = srv.SetValue(ctx, interaction.CallerDevice, "Soc", 42.0)
//	_ = srv.SetValue(ctx, interaction.CallerDevice, "Dc/0/Voltage", 52.1)
//	srv.EmitChanges() // one notification with two items
package interaction
