package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
)

// RunExport exports the capture file in format to output, or stdout when
// output is empty.
func RunExport(path, format, output string) error {
	var export func(*log.Reader, io.Writer) error
	switch format {
	case "jsonl":
		export = exportJSONL
	case "csv":
		export = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return export(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{"timestamp", "session_id", "service", "sender", "direction", "category", "type", "property", "value", "status", "detail"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return cw.Error()
}

func csvRow(event log.Event) []string {
	var property, value, status, detail string
	switch {
	case event.Call != nil:
		property = event.Call.Property
		status = event.Call.Status.String()
		if event.Call.Value != nil {
			if data, err := json.Marshal(event.Call.Value); err == nil {
				value = string(data)
			}
		}
	case event.Changes != nil:
		detail = strings.Join(event.Changes.Paths, ";")
	case event.StateChange != nil:
		property = event.StateChange.Entity.String()
		value = event.StateChange.NewState
		detail = event.StateChange.Reason
	case event.Error != nil:
		value = event.Error.Message
		detail = event.Error.Context
	}

	return []string{
		event.Timestamp.UTC().Format(timeLayout),
		event.SessionID,
		event.Service,
		event.Sender,
		event.Direction.String(),
		event.Category.String(),
		typeLabel(event),
		property,
		value,
		status,
		detail,
	}
}
