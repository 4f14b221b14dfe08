package log

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a protocol log event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the device process run (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Service is the bus service name of the device.
	Service string `cbor:"5,keyasint,omitempty"`

	// Sender is the unique bus name of the calling peer, if known.
	Sender string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Call        *CallEvent        `cbor:"7,keyasint,omitempty"`
	Changes     *ChangesEvent     `cbor:"8,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"9,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"10,keyasint,omitempty"`
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a call from a peer.
	DirectionIn Direction = 0
	// DirectionOut indicates a signal or call made by the device.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryCall indicates a method call.
	CategoryCall Category = 0
	// CategoryNotification indicates a change notification.
	CategoryNotification Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryCall:
		return "CALL"
	case CategoryNotification:
		return "NOTIFICATION"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Operation is the bus operation of a call.
type Operation uint8

const (
	OpGetValue Operation = iota
	OpGetText
	OpSetValue
	OpGetDescriptor
	OpGetItems
	OpAddSetting
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpGetValue:
		return "GetValue"
	case OpGetText:
		return "GetText"
	case OpSetValue:
		return "SetValue"
	case OpGetDescriptor:
		return "GetDescriptor"
	case OpGetItems:
		return "GetItems"
	case OpAddSetting:
		return "AddSetting"
	default:
		return "Unknown"
	}
}

// Status is the outcome of a call.
type Status uint8

const (
	StatusOK Status = iota
	StatusUnknownProperty
	StatusTypeMismatch
	StatusOutOfRange
	StatusNotWritable
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusUnknownProperty:
		return "UNKNOWN_PROPERTY"
	case StatusTypeMismatch:
		return "TYPE_MISMATCH"
	case StatusOutOfRange:
		return "OUT_OF_RANGE"
	case StatusNotWritable:
		return "NOT_WRITABLE"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// CallEvent captures one call served by the device.
type CallEvent struct {
	// Operation is the bus method.
	Operation Operation `cbor:"1,keyasint"`

	// Path is the object path the call was addressed to.
	Path string `cbor:"2,keyasint,omitempty"`

	// Property is the property name, empty for whole-device calls.
	Property string `cbor:"3,keyasint,omitempty"`

	// Value is the written value (SetValue) or the returned value (GetValue).
	Value any `cbor:"4,keyasint,omitempty"`

	// Status is the call outcome.
	Status Status `cbor:"5,keyasint"`

	// ProcessingTime is the duration from receipt to reply.
	ProcessingTime *time.Duration `cbor:"6,keyasint,omitempty"`
}

// ChangesEvent captures one batched change notification.
type ChangesEvent struct {
	// Paths lists the changed properties in batch order.
	Paths []string `cbor:"1,keyasint"`
}

// StateChangeEvent captures bus session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a bus connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityName indicates a service name state change.
	StateEntityName StateEntity = 1
	// StateEntityInstance indicates a device instance claim.
	StateEntityInstance StateEntity = 2
	// StateEntityExport indicates the device object was (un)exported.
	StateEntityExport StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityName:
		return "NAME"
	case StateEntityInstance:
		return "INSTANCE"
	case StateEntityExport:
		return "EXPORT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors outside of a call.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
