package interaction

import "github.com/victron-virtual/dbus-virtual-go/pkg/model"

// ChangeSet is one batched change notification.
type ChangeSet struct {
	// Seq numbers delivered batches from 1, in emission order.
	Seq uint64

	// Changes lists the changed properties in schema order.
	Changes []model.Change
}

// Empty reports whether the batch carries no changes.
func (c ChangeSet) Empty() bool {
	return len(c.Changes) == 0
}

// Paths returns the changed property names.
func (c ChangeSet) Paths() []string {
	paths := make([]string, len(c.Changes))
	for i, ch := range c.Changes {
		paths[i] = ch.Name
	}
	return paths
}

// Notifier receives batched change notifications.
// Notify is called synchronously from EmitChanges and should not block.
type Notifier interface {
	Notify(batch ChangeSet)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(batch ChangeSet)

// Notify calls f(batch).
func (f NotifierFunc) Notify(batch ChangeSet) { f(batch) }
