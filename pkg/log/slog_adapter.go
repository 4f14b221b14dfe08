package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see bus traffic in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Service != "" {
		attrs = append(attrs, slog.String("service", event.Service))
	}
	if event.Sender != "" {
		attrs = append(attrs, slog.String("sender", event.Sender))
	}

	switch {
	case event.Call != nil:
		attrs = append(attrs,
			slog.String("operation", event.Call.Operation.String()),
			slog.String("status", event.Call.Status.String()),
		)
		if event.Call.Path != "" {
			attrs = append(attrs, slog.String("path", event.Call.Path))
		}
		if event.Call.Property != "" {
			attrs = append(attrs, slog.String("property", event.Call.Property))
		}
		if event.Call.Value != nil {
			attrs = append(attrs, slog.Any("value", event.Call.Value))
		}
		if event.Call.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *event.Call.ProcessingTime))
		}
	case event.Changes != nil:
		attrs = append(attrs,
			slog.Int("count", len(event.Changes.Paths)),
			slog.Any("paths", event.Changes.Paths),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
