// Command virtual-device-log views and analyzes protocol capture files.
//
// Capture files are written by virtual-device when started with the
// -protocol-log flag.
//
// Usage:
//
//	virtual-device-log <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSON lines or CSV
//	filter   Filter capture file and write to a new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	virtual-device-log view battery.cbor
//
//	# View only writes
//	virtual-device-log view -operation setvalue battery.cbor
//
//	# View only change notifications
//	virtual-device-log view -category notification battery.cbor
//
//	# Export to CSV
//	virtual-device-log export -format csv -o battery.csv battery.cbor
//
//	# Keep one property and save to a new file
//	virtual-device-log filter -property Soc -o soc.cbor battery.cbor
//
//	# Show statistics
//	virtual-device-log stats battery.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/victron-virtual/dbus-virtual-go/cmd/virtual-device-log/commands"
)

const usage = `virtual-device-log - Protocol Capture Analyzer

Usage:
  virtual-device-log <command> [flags] <file.cbor>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSON lines or CSV
  filter   Filter capture file and write to a new file
  stats    Show statistics about the capture file

Use "virtual-device-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// selection holds the event selection flags shared by view and filter.
type selection struct {
	session   *string
	property  *string
	operation *string
	direction *string
	category  *string
	timeStart *string
	timeEnd   *string
}

func addSelectionFlags(fs *flag.FlagSet) selection {
	return selection{
		session:   fs.String("session", "", "Filter by session ID"),
		property:  fs.String("property", "", "Filter calls by property name"),
		operation: fs.String("operation", "", "Filter calls by operation (getvalue, gettext, setvalue, getdescriptor, getitems, addsetting)"),
		direction: fs.String("direction", "", "Filter by direction (in, out)"),
		category:  fs.String("category", "", "Filter by category (call, notification, state, error)"),
		timeStart: fs.String("time-start", "", "Filter by start time (RFC3339)"),
		timeEnd:   fs.String("time-end", "", "Filter by end time (RFC3339)"),
	}
}

func (s selection) options() commands.FilterOptions {
	return commands.FilterOptions{
		SessionID: *s.session,
		Property:  *s.property,
		Operation: *s.operation,
		Direction: *s.direction,
		Category:  *s.category,
		TimeStart: *s.timeStart,
		TimeEnd:   *s.timeEnd,
	}
}

func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func usageFor(fs *flag.FlagSet, header string) func() {
	return func() {
		fmt.Fprint(os.Stderr, header)
		fs.PrintDefaults()
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = usageFor(fs, `virtual-device-log view - View capture file in human-readable format

Usage:
  virtual-device-log view [flags] <file.cbor>

Flags:
`)
	sel := addSelectionFlags(fs)
	path := parseArgs(fs, args)

	filter, err := sel.options().Filter()
	if err != nil {
		exitErr(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		exitErr(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = usageFor(fs, `virtual-device-log export - Export capture file to JSON lines or CSV

Usage:
  virtual-device-log export [flags] <file.cbor>

Flags:
`)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parseArgs(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		exitErr(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = usageFor(fs, `virtual-device-log filter - Filter capture file and write to a new file

Usage:
  virtual-device-log filter [flags] <file.cbor>

Flags:
`)
	output := fs.String("o", "", "Output file (required)")
	sel := addSelectionFlags(fs)
	path := parseArgs(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := sel.options()
	opts.Output = *output
	count, err := commands.RunFilter(path, opts)
	if err != nil {
		exitErr(err)
	}
	fmt.Printf("Filtered %d events to %s\n", count, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = usageFor(fs, `virtual-device-log stats - Show statistics about the capture file

Usage:
  virtual-device-log stats <file.cbor>

`)
	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		exitErr(err)
	}
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
