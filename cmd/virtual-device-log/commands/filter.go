package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
)

// FilterOptions holds the event selection given on the command line.
type FilterOptions struct {
	Output    string
	SessionID string
	Property  string
	Operation string
	Direction string
	Category  string
	TimeStart string
	TimeEnd   string
}

// Filter converts the options to a reader filter.
func (o FilterOptions) Filter() (log.Filter, error) {
	filter := log.Filter{
		SessionID: o.SessionID,
		Property:  o.Property,
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if o.Operation != "" {
		op, err := parseOperation(o.Operation)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Operation = &op
	}

	if o.Direction != "" {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}

	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}

	return filter, nil
}

// RunFilter copies the matching events of path to opts.Output and returns
// how many were written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := opts.Filter()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		out.Log(event)
		count++
	}
	return count, nil
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "call":
		return log.CategoryCall, nil
	case "notification", "changes":
		return log.CategoryNotification, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be call, notification, state or error)", s)
	}
}

var operations = []log.Operation{
	log.OpGetValue,
	log.OpGetText,
	log.OpSetValue,
	log.OpGetDescriptor,
	log.OpGetItems,
	log.OpAddSetting,
}

func parseOperation(s string) (log.Operation, error) {
	for _, op := range operations {
		if strings.EqualFold(op.String(), s) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("invalid operation: %s", s)
}
