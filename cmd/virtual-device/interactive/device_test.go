package interactive

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
	"github.com/victron-virtual/dbus-virtual-go/pkg/schemas"
)

type fakeSim struct{ running bool }

func (f *fakeSim) Start()        { f.running = true }
func (f *fakeSim) Stop()         { f.running = false }
func (f *fakeSim) Running() bool { return f.running }

func newConsole(t *testing.T, category schemas.Category) (*Device, *interaction.Server, *bytes.Buffer) {
	t.Helper()
	schema, err := schemas.Lookup(category)
	require.NoError(t, err)
	srv := interaction.NewServer(model.Project(schema))

	var out bytes.Buffer
	d := newDevice(&out)
	d.Attach(srv, &fakeSim{})
	return d, srv, &out
}

func TestSetGetText(t *testing.T) {
	ctx := context.Background()
	d, srv, out := newConsole(t, schemas.Battery)

	assert.False(t, d.Execute(ctx, "set Soc 42"))
	assert.Contains(t, out.String(), "Soc = 42")

	v, err := srv.GetValue(ctx, "Soc")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	out.Reset()
	d.Execute(ctx, "text Soc")
	assert.Contains(t, out.String(), `Soc = "42%"`)

	out.Reset()
	d.Execute(ctx, "get Soc")
	assert.Contains(t, out.String(), "Soc = 42")
}

func TestSetErrors(t *testing.T) {
	ctx := context.Background()
	d, srv, out := newConsole(t, schemas.Battery)

	d.Execute(ctx, "set Soc 150")
	assert.Contains(t, out.String(), "Error:")
	v, _ := srv.GetValue(ctx, "Soc")
	assert.Nil(t, v)

	out.Reset()
	d.Execute(ctx, "set Soc full")
	assert.Contains(t, out.String(), "not a number")

	out.Reset()
	d.Execute(ctx, "set Nope 1")
	assert.Contains(t, out.String(), "Error:")

	out.Reset()
	d.Execute(ctx, "set Soc")
	assert.Contains(t, out.String(), "Usage: set")
}

func TestSetNullClears(t *testing.T) {
	ctx := context.Background()
	d, srv, _ := newConsole(t, schemas.Battery)

	d.Execute(ctx, "set Soc 10")
	d.Execute(ctx, "set Soc null")
	v, err := srv.GetValue(ctx, "Soc")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEmit(t *testing.T) {
	ctx := context.Background()
	d, _, out := newConsole(t, schemas.Battery)

	d.Execute(ctx, "emit")
	assert.Contains(t, out.String(), "No pending changes")

	d.Execute(ctx, "set Soc 42")
	d.Execute(ctx, "set Dc/0/Voltage 12.8")
	out.Reset()
	d.Execute(ctx, "emit")
	assert.Contains(t, out.String(), "Emitted batch 1: Dc/0/Voltage, Soc")
}

func TestListAndDescriptor(t *testing.T) {
	ctx := context.Background()
	d, _, out := newConsole(t, schemas.Temperature)

	d.Execute(ctx, "list")
	assert.Contains(t, out.String(), "TemperatureType")
	assert.Contains(t, out.String(), "Generic")

	out.Reset()
	d.Execute(ctx, "descriptor")
	assert.Contains(t, out.String(), "DeviceInstance")
	assert.Contains(t, out.String(), "i ro")
}

func TestDescriptorEmpty(t *testing.T) {
	srv := interaction.NewServer(model.Project(model.Schema{}))
	var out bytes.Buffer
	d := newDevice(&out)
	d.Attach(srv, nil)

	d.Execute(context.Background(), "descriptor")
	assert.Contains(t, out.String(), "No properties")

	out.Reset()
	d.Execute(context.Background(), "start")
	assert.Contains(t, out.String(), "Simulation not available")
}

func TestSimulationCommands(t *testing.T) {
	ctx := context.Background()
	d, _, out := newConsole(t, schemas.Battery)

	d.Execute(ctx, "start")
	assert.Contains(t, out.String(), "Simulation running: true")
	out.Reset()
	d.Execute(ctx, "stop")
	assert.Contains(t, out.String(), "Simulation running: false")
}

func TestQuitAndUnknown(t *testing.T) {
	ctx := context.Background()
	d, _, out := newConsole(t, schemas.Battery)

	assert.False(t, d.Execute(ctx, ""))
	assert.False(t, d.Execute(ctx, "frobnicate"))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")
	assert.True(t, d.Execute(ctx, "quit"))
	assert.True(t, d.Execute(ctx, "EXIT"))
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		w       model.WireType
		in      string
		want    any
		wantErr bool
	}{
		{model.WireInt32, "7", int32(7), false},
		{model.WireInt32, "7.5", nil, true},
		{model.WireInt32, "99999999999", nil, true},
		{model.WireDouble, "12.5", 12.5, false},
		{model.WireDouble, "x", nil, true},
		{model.WireString, `"Fresh water"`, "Fresh water", false},
		{model.WireDouble, "null", nil, false},
	}

	for _, tt := range tests {
		got, err := ParseValue(tt.w, tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, model.ErrTypeMismatch, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
