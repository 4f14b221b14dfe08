package busitem

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
)

// Interface is the Victron item interface exported on the tree.
const Interface = "com.victronenergy.BusItem"

// Tree implements the BusItem interface for "/" and every property path
// below it. Every exported method is a bus method.
type Tree struct {
	srv *interaction.Server
}

// NewTree binds a server to the BusItem tree.
func NewTree(srv *interaction.Server) *Tree {
	return &Tree{srv: srv}
}

func (t *Tree) resolve(msg dbus.Message) (context.Context, string) {
	path, _ := msg.Headers[dbus.FieldPath].Value().(dbus.ObjectPath)
	sender, _ := msg.Headers[dbus.FieldSender].Value().(string)
	ctx := interaction.ContextWithPeer(context.Background(), interaction.Peer{
		Sender: sender,
		Path:   string(path),
	})
	return ctx, strings.TrimPrefix(string(path), "/")
}

// GetItems returns value and text of every property keyed by path.
func (t *Tree) GetItems(msg dbus.Message) (map[string]map[string]dbus.Variant, *dbus.Error) {
	ctx, _ := t.resolve(msg)
	return itemsDict(t.srv.Items(ctx)), nil
}

// GetValue returns the value at the path, or on "/" a dictionary of all
// values keyed by property name.
func (t *Tree) GetValue(msg dbus.Message) (dbus.Variant, *dbus.Error) {
	ctx, name := t.resolve(msg)
	if name == "" {
		values := make(map[string]dbus.Variant)
		for _, it := range t.srv.Items(ctx) {
			values[it.Name] = ToVariant(it.Value)
		}
		return dbus.MakeVariant(values), nil
	}

	v, err := t.srv.GetValue(ctx, name)
	if err != nil {
		return dbus.Variant{}, ToError(err)
	}
	return ToVariant(v), nil
}

// GetText returns the text at the path, or on "/" a dictionary of all texts.
func (t *Tree) GetText(msg dbus.Message) (dbus.Variant, *dbus.Error) {
	ctx, name := t.resolve(msg)
	if name == "" {
		texts := make(map[string]string)
		for _, it := range t.srv.Items(ctx) {
			texts[it.Name] = it.Text
		}
		return dbus.MakeVariant(texts), nil
	}

	text, err := t.srv.GetText(ctx, name)
	if err != nil {
		return dbus.Variant{}, ToError(err)
	}
	return dbus.MakeVariant(text), nil
}

// SetValue writes the property at the path and returns 0 on success.
func (t *Tree) SetValue(msg dbus.Message, value dbus.Variant) (int32, *dbus.Error) {
	ctx, name := t.resolve(msg)
	if name == "" {
		return 1, ToError(fmt.Errorf("%w: /", model.ErrNotWritable))
	}
	if err := t.srv.SetValue(ctx, interaction.CallerRemote, name, FromVariant(value)); err != nil {
		return 1, ToError(err)
	}
	return 0, nil
}
