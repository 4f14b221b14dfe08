package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victron-virtual/dbus-virtual-go/pkg/bus"
)

func batteryIdentity(id string) bus.Identity {
	return bus.Identity{DeviceType: "battery", ID: id}
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenStore(StoreConfig{Path: filepath.Join(t.TempDir(), "settings.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestExtractShapes(t *testing.T) {
	tests := []struct {
		name    string
		reply   []any
		want    int32
		wantErr bool
	}{
		{
			name:  "existing, variant dicts",
			reply: []any{[]map[string]dbus.Variant{{"path": dbus.MakeVariant("/Settings/x"), "value": dbus.MakeVariant("battery:7")}}},
			want:  7,
		},
		{
			name:  "existing, plain dicts",
			reply: []any{[]map[string]any{{"value": "battery:7"}}},
			want:  7,
		},
		{
			name:  "existing, nested variants",
			reply: []any{[]any{map[string]any{"value": dbus.MakeVariant(dbus.MakeVariant("tank:21"))}}},
			want:  21,
		},
		{
			name:  "created, bare string",
			reply: []any{"battery:100"},
			want:  100,
		},
		{
			name:  "created, variant",
			reply: []any{dbus.MakeVariant("battery:100")},
			want:  100,
		},
		{name: "empty", reply: nil, wantErr: true},
		{name: "unrecognized", reply: []any{int32(3), "x"}, wantErr: true},
		{name: "dict without value", reply: []any{[]map[string]any{{"error": int32(-1)}}}, wantErr: true},
		{name: "non-numeric suffix", reply: []any{"battery:abc"}, wantErr: true},
		{name: "no colon", reply: []any{"battery"}, wantErr: true},
		{name: "overflow", reply: []any{"battery:99999999999"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInstanceExtraction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFallsBackAfterUnparsableValue(t *testing.T) {
	// A dictionary with a bad value must not stop the shallow strategy.
	reply := []any{[]map[string]any{{"value": "battery:"}}}
	_, err := Extract(reply)
	assert.ErrorIs(t, err, ErrInstanceExtraction)
	assert.Contains(t, err.Error(), "existing")
	assert.Contains(t, err.Error(), "created")
}

func TestClaimReplyScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("AlreadyExisted", func(t *testing.T) {
		collab := CollaboratorFunc(func(context.Context, Request) ([]any, error) {
			return []any{[]map[string]dbus.Variant{{"value": dbus.MakeVariant("battery:7")}}}, nil
		})
		instance, ok, err := NewNegotiator(collab).Claim(ctx, batteryIdentity("batt1"), DefaultSlot)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(7), instance)
	})

	t.Run("FreshlyCreated", func(t *testing.T) {
		collab := CollaboratorFunc(func(context.Context, Request) ([]any, error) {
			return []any{"battery:100"}, nil
		})
		instance, ok, err := NewNegotiator(collab).Claim(ctx, batteryIdentity("batt1"), DefaultSlot)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(100), instance)
	})

	t.Run("Unrecognized", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		collab := CollaboratorFunc(func(context.Context, Request) ([]any, error) {
			return []any{map[string]int{"odd": 1}}, nil
		})
		instance, ok, err := NewNegotiator(collab, WithLogger(logger)).Claim(ctx, batteryIdentity("batt1"), DefaultSlot)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, instance)
		assert.Contains(t, buf.String(), "level=WARN")
	})

	t.Run("CollaboratorError", func(t *testing.T) {
		collab := CollaboratorFunc(func(context.Context, Request) ([]any, error) {
			return nil, fmt.Errorf("%w: no reply", ErrCollaborator)
		})
		_, ok, err := NewNegotiator(collab).Claim(ctx, batteryIdentity("batt1"), DefaultSlot)
		assert.ErrorIs(t, err, ErrCollaborator)
		assert.False(t, ok)
	})
}

func TestClaimRequest(t *testing.T) {
	var got Request
	collab := CollaboratorFunc(func(_ context.Context, req Request) ([]any, error) {
		got = req
		return []any{"temperature:100"}, nil
	})

	_, _, err := NewNegotiator(collab).Claim(context.Background(),
		bus.Identity{DeviceType: "temperature", ID: "temp1"}, DefaultSlot)
	require.NoError(t, err)

	assert.Equal(t, "Settings/Devices/virtual_temp1/ClassAndVrmInstance", got.Path)
	assert.Equal(t, "temperature:100", got.Default)
	assert.Equal(t, "s", got.Type)
}

func TestClaimIdempotentAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "settings.db")

	claim := func() int32 {
		store, err := OpenStore(StoreConfig{Path: dbPath})
		require.NoError(t, err)
		defer store.Close() //nolint:errcheck // Test cleanup

		instance, ok, err := NewNegotiator(store).Claim(ctx, batteryIdentity("batt1"), DefaultSlot)
		require.NoError(t, err)
		require.True(t, ok)
		return instance
	}

	first := claim()
	second := claim()
	assert.Equal(t, int32(100), first)
	assert.Equal(t, first, second)
}

func TestStoreReplyShapes(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	req := Request{Path: "/Settings/Devices/virtual_b/ClassAndVrmInstance", Default: "battery:100", Type: "s"}

	created, err := store.AddSetting(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []any{"battery:100"}, created)

	existing, err := store.AddSetting(ctx, req)
	require.NoError(t, err)
	_, createdOK := createdShape(existing)
	assert.False(t, createdOK, "existing setting should use the result-list shape")
	value, ok := existingShape(existing)
	require.True(t, ok)
	assert.Equal(t, "battery:100", value)
}

func TestStoreAllocatesDistinctInstances(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	neg := NewNegotiator(store)

	got := make(map[string]int32)
	for _, id := range []string{"a", "b", "c"} {
		instance, ok, err := neg.Claim(ctx, batteryIdentity(id), DefaultSlot)
		require.NoError(t, err)
		require.True(t, ok)
		got[id] = instance
	}
	assert.Equal(t, map[string]int32{"a": 100, "b": 101, "c": 102}, got)

	// Other classes have their own numbering.
	instance, _, err := neg.Claim(ctx, bus.Identity{DeviceType: "tank", ID: "a"}, DefaultSlot)
	require.NoError(t, err)
	assert.Equal(t, int32(100), instance)

	// Gaps below the default are not used.
	instance, _, err = neg.Claim(ctx, batteryIdentity("d"), 101)
	require.NoError(t, err)
	assert.Equal(t, int32(103), instance)

	instances, err := store.Instances(ctx, "battery")
	require.NoError(t, err)
	assert.Len(t, instances, 4)
}

func TestStoreFillsGaps(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, id := range []string{"a", "b"} {
		_, err := store.AddSetting(ctx, Request{
			Path:    fmt.Sprintf("Settings/Devices/virtual_%s/ClassAndVrmInstance", id),
			Default: "grid:100",
		})
		require.NoError(t, err)
	}
	reply, err := store.AddSetting(ctx, Request{
		Path:    "Settings/Devices/virtual_c/ClassAndVrmInstance",
		Default: "grid:50",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"grid:50"}, reply)
}

func TestStorePlainSetting(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	reply, err := store.AddSetting(ctx, Request{Path: "Settings/Gui/Brightness", Default: "battery:100"})
	require.NoError(t, err)
	assert.Equal(t, []any{"battery:100"}, reply, "non-instance paths store the default as-is")

	value, ok, err := store.Get(ctx, "/Settings/Gui/Brightness")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "battery:100", value)

	_, ok, err = store.Get(ctx, "Settings/Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.AddSetting(ctx, Request{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStoreConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "settings.db")

	// Separate stores on one file behave like separate processes.
	const n = 6
	results := make([]int32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := OpenStore(StoreConfig{Path: dbPath})
			if !assert.NoError(t, err) {
				return
			}
			defer store.Close() //nolint:errcheck // Test cleanup

			instance, ok, err := NewNegotiator(store).Claim(ctx, batteryIdentity(fmt.Sprintf("dev%d", i)), DefaultSlot)
			assert.NoError(t, err)
			assert.True(t, ok)
			results[i] = instance
		}(i)
	}
	wg.Wait()

	seen := make(map[int32]bool)
	for _, r := range results {
		assert.False(t, seen[r], "instance %d handed out twice", r)
		seen[r] = true
		assert.GreaterOrEqual(t, r, int32(100))
	}
}

func TestOpenStoreErrors(t *testing.T) {
	_, err := OpenStore(StoreConfig{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// objectStub is a settings service object returning a canned reply.
type objectStub struct {
	dbus.BusObject

	body   []interface{}
	err    error
	method string
	args   []interface{}
}

func (o *objectStub) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	o.method = method
	o.args = args
	return &dbus.Call{Body: o.body, Err: o.err}
}

type providerStub struct {
	obj  *objectStub
	dest string
	path dbus.ObjectPath
}

func (p *providerStub) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	p.dest = dest
	p.path = path
	return p.obj
}

func TestBusClient(t *testing.T) {
	body := []interface{}{[]map[string]dbus.Variant{{"value": dbus.MakeVariant("battery:3"), "error": dbus.MakeVariant(int32(0))}}}
	provider := &providerStub{obj: &objectStub{body: body}}
	client := NewBusClient(provider)

	reply, err := client.AddSetting(context.Background(), Request{
		Path:    "Settings/Devices/virtual_batt1/ClassAndVrmInstance",
		Default: "battery:100",
	})
	require.NoError(t, err)

	assert.Equal(t, ServiceName, provider.dest)
	assert.Equal(t, ServicePath, provider.path)
	assert.Equal(t, AddSettingsCall, provider.obj.method)

	require.Len(t, provider.obj.args, 1)
	entries, ok := provider.obj.args[0].([]map[string]dbus.Variant)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "/Settings/Devices/virtual_batt1/ClassAndVrmInstance", entries[0]["path"].Value())
	assert.Equal(t, "battery:100", entries[0]["default"].Value())
	assert.Equal(t, "s", entries[0]["type"].Value())

	instance, err := Extract(reply)
	require.NoError(t, err)
	assert.Equal(t, int32(3), instance)
}

func TestBusClientError(t *testing.T) {
	provider := &providerStub{obj: &objectStub{err: errors.New("service unknown")}}
	_, err := NewBusClient(provider).AddSetting(context.Background(), Request{Path: "Settings/x"})
	assert.ErrorIs(t, err, ErrCollaborator)

	_, err = NewBusClient(provider).AddSetting(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
