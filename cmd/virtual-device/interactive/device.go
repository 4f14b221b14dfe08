// Package interactive provides the interactive command-line interface
// for the virtual device.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
)

// Simulation is the simulation control the console drives.
type Simulation interface {
	Start()
	Stop()
	Running() bool
}

// Device handles interactive mode for virtual-device.
type Device struct {
	rl  *readline.Instance
	out io.Writer

	srv *interaction.Server
	sim Simulation
}

// New creates the console. Attach must be called before Run.
func New() (*Device, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "device> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Device{rl: rl, out: rl.Stdout()}, nil
}

// newDevice creates a console without a terminal, writing to out.
func newDevice(out io.Writer) *Device {
	return &Device{out: out}
}

// Attach binds the console to a running device. sim may be nil.
func (d *Device) Attach(srv *interaction.Server, sim Simulation) {
	d.srv = srv
	d.sim = sim
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (d *Device) Stdout() io.Writer {
	return d.rl.Stdout()
}

// Close releases the terminal.
func (d *Device) Close() error {
	return d.rl.Close()
}

// Run starts the interactive command loop. cancel is called on quit.
func (d *Device) Run(ctx context.Context, cancel context.CancelFunc) {
	defer d.rl.Close()

	d.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := d.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(d.out, "Exiting...")
			cancel()
			return
		}

		if quit := d.Execute(ctx, line); quit {
			fmt.Fprintln(d.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether it asked to quit.
func (d *Device) Execute(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		d.printHelp()

	case "list", "ls", "l":
		d.cmdList(ctx)

	case "get", "g":
		d.cmdGet(ctx, args)

	case "text", "t":
		d.cmdText(ctx, args)

	case "set", "s":
		d.cmdSet(ctx, args)

	case "emit", "e":
		d.cmdEmit()

	case "descriptor", "desc", "d":
		d.cmdDescriptor(ctx)

	case "start", "sim-start":
		d.cmdSim(true)

	case "stop", "sim-stop":
		d.cmdSim(false)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(d.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (d *Device) printHelp() {
	fmt.Fprintln(d.out, `
Virtual Device Commands:
  Properties:
    list                - Show every property with value and text
    get <name>          - Read a property value
    text <name>         - Read a property's display text
    set <name> <value>  - Write a property ("null" clears it)
    emit                - Broadcast pending changes
    descriptor          - Show property types, bounds and formatters

  Simulation:
    start               - Start simulation
    stop                - Stop simulation

  General:
    help                - Show this help
    quit                - Exit device`)
}

func (d *Device) cmdList(ctx context.Context) {
	for _, item := range d.srv.Items(ctx) {
		fmt.Fprintf(d.out, "  %-28s %-14s %s\n", item.Name, formatValue(item.Value), item.Text)
	}
}

func (d *Device) cmdGet(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "Usage: get <name>")
		return
	}
	v, err := d.srv.GetValue(ctx, args[0])
	if err != nil {
		fmt.Fprintf(d.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(d.out, "%s = %s\n", args[0], formatValue(v))
}

func (d *Device) cmdText(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "Usage: text <name>")
		return
	}
	text, err := d.srv.GetText(ctx, args[0])
	if err != nil {
		fmt.Fprintf(d.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(d.out, "%s = %q\n", args[0], text)
}

func (d *Device) cmdSet(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(d.out, "Usage: set <name> <value>")
		fmt.Fprintln(d.out, "  Example: set Soc 42")
		return
	}
	name := args[0]
	pd, ok := d.srv.Descriptor().Lookup(name)
	if !ok {
		fmt.Fprintf(d.out, "Error: %v: %s\n", model.ErrUnknownProperty, name)
		return
	}

	value, err := ParseValue(pd.Type, strings.Join(args[1:], " "))
	if err != nil {
		fmt.Fprintf(d.out, "Error: %v\n", err)
		return
	}
	if err := d.srv.SetValue(ctx, interaction.CallerDevice, name, value); err != nil {
		fmt.Fprintf(d.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(d.out, "%s = %s (pending, 'emit' to broadcast)\n", name, formatValue(value))
}

func (d *Device) cmdEmit() {
	batch := d.srv.EmitChanges()
	if batch.Empty() {
		fmt.Fprintln(d.out, "No pending changes")
		return
	}
	fmt.Fprintf(d.out, "Emitted batch %d: %s\n", batch.Seq, strings.Join(batch.Paths(), ", "))
}

func (d *Device) cmdDescriptor(ctx context.Context) {
	desc := d.srv.GetDescriptor(ctx)
	if desc.Len() == 0 {
		fmt.Fprintln(d.out, "No properties (unknown category?)")
		return
	}
	for _, pd := range desc.Properties {
		access := "rw"
		if !pd.Writable {
			access = "ro"
		}
		fmt.Fprintf(d.out, "  %-28s %s %s%s %s\n",
			pd.Name, pd.Type.Signature(), access, bounds(pd), pd.Formatter)
	}
}

func (d *Device) cmdSim(start bool) {
	if d.sim == nil {
		fmt.Fprintln(d.out, "Simulation not available")
		return
	}
	if start {
		d.sim.Start()
	} else {
		d.sim.Stop()
	}
	fmt.Fprintf(d.out, "Simulation running: %v\n", d.sim.Running())
}

// ParseValue converts console input to a value of wire type w. "null"
// yields the unset value.
func ParseValue(w model.WireType, s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "null" {
		return nil, nil
	}
	switch w {
	case model.WireInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", model.ErrTypeMismatch, s)
		}
		return int32(n), nil
	case model.WireDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", model.ErrTypeMismatch, s)
		}
		return f, nil
	default:
		return strings.Trim(s, "\"'"), nil
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func bounds(pd model.PropertyDescriptor) string {
	if pd.Min == nil && pd.Max == nil {
		return ""
	}
	lo, hi := "-inf", "+inf"
	if pd.Min != nil {
		lo = strconv.FormatFloat(*pd.Min, 'g', -1, 64)
	}
	if pd.Max != nil {
		hi = strconv.FormatFloat(*pd.Max, 'g', -1, 64)
	}
	return fmt.Sprintf(" [%s..%s]", lo, hi)
}
