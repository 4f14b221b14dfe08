// Package log provides structured protocol logging for virtual bus devices.
//
// This package defines the Logger interface and Event types for capturing
// every bus call served by a device, every batched change notification and
// the lifecycle of the bus session. It is separate from operational logging
// (slog): protocol capture is a complete machine-readable trace for
// debugging what a peer asked and what the device answered.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	logger, _ := log.NewFileLogger("/var/log/virtual/battery.vlog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Call: one GetValue/GetText/SetValue/GetDescriptor/GetItems call
//   - Changes: one ItemsChanged batch
//   - StateChange: connection, name, instance and export state
//   - Error: failures outside a call
//
// # File Format
//
// Log files hold a stream of CBOR-encoded events with integer keys. Reader
// streams them back with optional filtering.
package log
