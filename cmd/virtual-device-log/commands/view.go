// Package commands implements the virtual-device-log CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// RunView prints every matching event of path to w.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a header line and the type-specific details.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timeLayout)
	fmt.Fprintf(w, "%s [session:%s] %-3s %s %s\n",
		ts, shortenID(event.SessionID), event.Direction.String(), event.Category.String(), typeLabel(event))

	if event.Service != "" {
		fmt.Fprintf(w, "  Service: %s\n", event.Service)
	}
	if event.Sender != "" {
		fmt.Fprintf(w, "  Sender: %s\n", event.Sender)
	}

	switch {
	case event.Call != nil:
		formatCallDetails(w, event.Call)
	case event.Changes != nil:
		fmt.Fprintf(w, "  Paths: %s\n", strings.Join(event.Changes.Paths, ", "))
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		fmt.Fprintf(w, "  Message: %s\n", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	}

	fmt.Fprintln(w)
}

func typeLabel(event log.Event) string {
	switch {
	case event.Call != nil:
		return event.Call.Operation.String()
	case event.Changes != nil:
		return "ItemsChanged"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatCallDetails(w io.Writer, call *log.CallEvent) {
	if call.Property != "" {
		fmt.Fprintf(w, "  Property: %s\n", call.Property)
	}
	if call.Path != "" {
		fmt.Fprintf(w, "  Path: %s\n", call.Path)
	}
	if call.Value != nil {
		if data, err := json.Marshal(call.Value); err == nil {
			fmt.Fprintf(w, "  Value: %s\n", data)
		}
	}
	fmt.Fprintf(w, "  Status: %s\n", call.Status.String())
	if call.ProcessingTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*call.ProcessingTime))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
