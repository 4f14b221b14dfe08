package interaction

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
	"github.com/victron-virtual/dbus-virtual-go/pkg/schemas"
)

// captureLogger records events for assertions.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) Events() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]log.Event, len(c.events))
	copy(out, c.events)
	return out
}

func newCategoryServer(t *testing.T, c schemas.Category, opts ...Option) *Server {
	t.Helper()
	schema, _ := schemas.Lookup(c)
	desc, props := model.Project(schema)
	return NewServer(desc, props, opts...)
}

func TestBatteryScenario(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Battery)

	v, err := srv.GetValue(ctx, "Soc")
	require.NoError(t, err)
	assert.Nil(t, v, "Soc should be unset before the first write")

	err = srv.SetValue(ctx, CallerRemote, "Soc", 150.0)
	assert.ErrorIs(t, err, model.ErrOutOfRange)

	require.NoError(t, srv.SetValue(ctx, CallerRemote, "Soc", 42.0))

	text, err := srv.GetText(ctx, "Soc")
	require.NoError(t, err)
	assert.Equal(t, "42%", text)
}

func TestTemperatureScenario(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Temperature)

	v, err := srv.GetValue(ctx, "TemperatureType")
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)

	text, err := srv.GetText(ctx, "TemperatureType")
	require.NoError(t, err)
	assert.Equal(t, "Generic", text)
}

func TestUnknownCategoryScenario(t *testing.T) {
	ctx := context.Background()
	schema, err := schemas.Lookup(schemas.Category("foo"))
	require.ErrorIs(t, err, schemas.ErrUnknownCategory)

	desc, props := model.Project(schema)
	srv := NewServer(desc, props)

	assert.Equal(t, 0, srv.Descriptor().Len())
	assert.ErrorIs(t, srv.SetValue(ctx, CallerRemote, "Soc", 1.0), model.ErrUnknownProperty)
	assert.ErrorIs(t, srv.SetValue(ctx, CallerDevice, model.PropDeviceInstance, 1), model.ErrUnknownProperty)

	_, err = srv.GetValue(ctx, "Soc")
	assert.ErrorIs(t, err, model.ErrUnknownProperty)
	assert.Empty(t, srv.Items(ctx))
	assert.True(t, srv.EmitChanges().Empty())
}

func TestOutOfRangeKeepsPriorValue(t *testing.T) {
	ctx := context.Background()

	for _, c := range schemas.Categories() {
		t.Run(string(c), func(t *testing.T) {
			srv := newCategoryServer(t, c)
			for _, pd := range srv.Descriptor().Properties {
				if pd.Min == nil || pd.Max == nil || !pd.Type.IsNumeric() {
					continue
				}
				prior := *pd.Min
				require.NoError(t, srv.SetValue(ctx, CallerRemote, pd.Name, prior), pd.Name)
				before, _ := srv.GetValue(ctx, pd.Name)

				for _, bad := range []float64{*pd.Min - 1, *pd.Max + 1} {
					err := srv.SetValue(ctx, CallerRemote, pd.Name, bad)
					assert.ErrorIs(t, err, model.ErrOutOfRange, "%s=%v", pd.Name, bad)

					after, _ := srv.GetValue(ctx, pd.Name)
					assert.Equal(t, before, after, "%s changed after rejected write", pd.Name)
				}
			}
		})
	}
}

func TestGetTextIsPure(t *testing.T) {
	ctx := context.Background()

	for _, c := range schemas.Categories() {
		srv := newCategoryServer(t, c)
		for _, pd := range srv.Descriptor().Properties {
			if pd.Formatter == "" {
				continue
			}
			first, err := srv.GetText(ctx, pd.Name)
			require.NoError(t, err)
			for i := 0; i < 3; i++ {
				again, _ := srv.GetText(ctx, pd.Name)
				assert.Equal(t, first, again, "%s/%s", c, pd.Name)
			}
		}
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Tank)

	tests := []struct {
		name  string
		value any
	}{
		{"Level", 55.5},
		{"Remaining", 0.125},
		{"FluidType", int32(5)},
		{"Status", int32(0)},
		{model.PropCustomName, "Fresh water"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, srv.SetValue(ctx, CallerRemote, tt.name, tt.value))
			got, err := srv.GetValue(ctx, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestSetValueErrors(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Battery)

	assert.ErrorIs(t, srv.SetValue(ctx, CallerRemote, "Missing", 1.0), model.ErrUnknownProperty)
	assert.ErrorIs(t, srv.SetValue(ctx, CallerRemote, "Soc", "full"), model.ErrTypeMismatch)

	_, err := srv.GetText(ctx, "Missing")
	assert.ErrorIs(t, err, model.ErrUnknownProperty)
}

func TestIdentityPrivilege(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Battery)

	// Before the device is ready both callers may write identity properties.
	require.NoError(t, srv.SetValue(ctx, CallerRemote, model.PropCustomName, "early"))

	srv.Properties().Seal()

	err := srv.SetValue(ctx, CallerRemote, model.PropDeviceInstance, 5)
	assert.ErrorIs(t, err, model.ErrNotWritable)

	require.NoError(t, srv.SetValue(ctx, CallerDevice, model.PropDeviceInstance, 5))
	v, _ := srv.GetValue(ctx, model.PropDeviceInstance)
	assert.Equal(t, int32(5), v)
}

func TestEmitChangesIdempotent(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Battery)

	var batches []ChangeSet
	srv.Subscribe(NotifierFunc(func(b ChangeSet) { batches = append(batches, b) }))

	require.NoError(t, srv.SetValue(ctx, CallerDevice, "Soc", 80.0))
	require.NoError(t, srv.SetValue(ctx, CallerDevice, "Dc/0/Voltage", 52.4))

	first := srv.EmitChanges()
	second := srv.EmitChanges()

	require.Len(t, batches, 1)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, []string{"Dc/0/Voltage", "Soc"}, first.Paths())
	assert.Equal(t, "80%", first.Changes[1].Text)
	assert.True(t, second.Empty())
}

func TestEmitChangesOrder(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Battery)

	var mu sync.Mutex
	var seqs []uint64
	srv.Subscribe(NotifierFunc(func(b ChangeSet) {
		mu.Lock()
		seqs = append(seqs, b.Seq)
		mu.Unlock()
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, srv.SetValue(ctx, CallerDevice, "Soc", float64(i*10)))
		srv.EmitChanges()
	}

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Battery)

	count := 0
	id := srv.Subscribe(NotifierFunc(func(ChangeSet) { count++ }))

	_ = srv.SetValue(ctx, CallerDevice, "Soc", 1.0)
	srv.EmitChanges()
	srv.Unsubscribe(id)
	srv.Unsubscribe(id)
	_ = srv.SetValue(ctx, CallerDevice, "Soc", 2.0)
	srv.EmitChanges()

	assert.Equal(t, 1, count)
}

func TestItems(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Temperature)

	items := srv.Items(ctx)
	require.Len(t, items, srv.Properties().Len())

	byName := make(map[string]model.Change, len(items))
	for _, it := range items {
		byName[it.Name] = it
	}
	assert.Equal(t, "Generic", byName["TemperatureType"].Text)
	assert.Nil(t, byName[model.PropDeviceInstance].Value)
}

func TestCallLogging(t *testing.T) {
	capture := &captureLogger{}
	srv := newCategoryServer(t, schemas.Battery,
		WithLogger(capture), WithService("com.victronenergy.battery.virtual_batt1"), WithSessionID("s1"))

	ctx := ContextWithPeer(context.Background(), Peer{Sender: ":1.7", Path: "/Soc"})
	_ = srv.SetValue(ctx, CallerRemote, "Soc", 150.0)
	_ = srv.SetValue(ctx, CallerRemote, "Soc", 50.0)
	srv.EmitChanges()

	events := capture.Events()
	require.Len(t, events, 3)

	rejected := events[0]
	assert.Equal(t, "s1", rejected.SessionID)
	assert.Equal(t, ":1.7", rejected.Sender)
	assert.Equal(t, log.CategoryCall, rejected.Category)
	require.NotNil(t, rejected.Call)
	assert.Equal(t, log.OpSetValue, rejected.Call.Operation)
	assert.Equal(t, log.StatusOutOfRange, rejected.Call.Status)
	assert.Equal(t, "/Soc", rejected.Call.Path)

	assert.Equal(t, log.StatusOK, events[1].Call.Status)

	notification := events[2]
	assert.Equal(t, log.CategoryNotification, notification.Category)
	assert.Equal(t, log.DirectionOut, notification.Direction)
	require.NotNil(t, notification.Changes)
	assert.Equal(t, []string{"Soc"}, notification.Changes.Paths)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, log.StatusOK, StatusOf(nil))
	assert.Equal(t, log.StatusUnknownProperty, StatusOf(model.ErrUnknownProperty))
	assert.Equal(t, log.StatusTypeMismatch, StatusOf(model.ErrTypeMismatch))
	assert.Equal(t, log.StatusOutOfRange, StatusOf(model.ErrOutOfRange))
	assert.Equal(t, log.StatusNotWritable, StatusOf(model.ErrNotWritable))
	assert.Equal(t, log.StatusFailed, StatusOf(context.Canceled))
}

func TestPeerContext(t *testing.T) {
	assert.Equal(t, Peer{}, PeerFromContext(context.Background()))

	ctx := ContextWithPeer(context.Background(), Peer{Sender: ":1.2", Path: "/"})
	assert.Equal(t, ":1.2", PeerFromContext(ctx).Sender)
}

func TestConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	srv := newCategoryServer(t, schemas.Battery)
	srv.Subscribe(NotifierFunc(func(ChangeSet) {}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = srv.SetValue(ctx, CallerRemote, "Soc", float64((i+j)%100))
				_, _ = srv.GetText(ctx, "Soc")
				_ = srv.Items(ctx)
				srv.EmitChanges()
			}
		}(i)
	}
	wg.Wait()
}
