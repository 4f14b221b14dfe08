package settings

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/victron-virtual/dbus-virtual-go/pkg/bus"
	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
)

// DefaultSlot is the instance requested for a device seen for the first time.
const DefaultSlot int32 = 100

// strategy extracts the instance setting value from one reply shape.
type strategy struct {
	name    string
	extract func(reply []any) (string, bool)
}

// strategies are tried in order; the first that yields a parsable value wins.
var strategies = []strategy{
	{"existing", existingShape},
	{"created", createdShape},
}

// Negotiator claims device instances through a Collaborator.
type Negotiator struct {
	collab    Collaborator
	logger    *slog.Logger
	plog      log.Logger
	sessionID string
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Negotiator) { n.logger = l }
}

// WithProtocolLogger records each settings call as a protocol event.
func WithProtocolLogger(l log.Logger, sessionID string) Option {
	return func(n *Negotiator) {
		if l != nil {
			n.plog = l
			n.sessionID = sessionID
		}
	}
}

// NewNegotiator creates a negotiator using collab.
func NewNegotiator(collab Collaborator, opts ...Option) *Negotiator {
	n := &Negotiator{collab: collab, plog: log.NoopLogger{}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Claim ensures the identity's instance setting exists with default
// "<type>:<slot>" and returns the instance it holds. ok is false when the
// reply matched no known shape; the device then runs without an instance.
// Collaborator failures are returned as errors.
func (n *Negotiator) Claim(ctx context.Context, id bus.Identity, slot int32) (instance int32, ok bool, err error) {
	req := Request{
		Path:    id.SettingsPath(),
		Default: id.DefaultInstance(slot),
		Type:    defaultValueType,
	}

	start := time.Now()
	reply, err := n.collab.AddSetting(ctx, req)
	n.record(start, id, req, reply, err)
	if err != nil {
		return 0, false, err
	}

	instance, err = Extract(reply)
	if err != nil {
		n.warn("failed to extract device instance from settings reply",
			"path", req.Path, "reply", fmt.Sprintf("%v", reply), "error", err)
		return 0, false, nil
	}

	n.info("device instance claimed", "path", req.Path, "instance", instance)
	return instance, true, nil
}

// Extract tries every known reply shape in order and parses the instance
// number after the ':' of the first value found.
func Extract(reply []any) (int32, error) {
	var tried []string
	for _, s := range strategies {
		value, ok := s.extract(reply)
		if !ok {
			tried = append(tried, s.name+": shape mismatch")
			continue
		}
		instance, ok := parseInstance(value)
		if !ok {
			tried = append(tried, fmt.Sprintf("%s: unparsable value %q", s.name, value))
			continue
		}
		return instance, nil
	}
	return 0, fmt.Errorf("%w (%s)", ErrInstanceExtraction, strings.Join(tried, "; "))
}

// existingShape reads reply[0][0]["value"]: the AddSettings result list
// with one dictionary per requested setting.
func existingShape(reply []any) (string, bool) {
	if len(reply) == 0 {
		return "", false
	}
	first, ok := index(reply[0], 0)
	if !ok {
		return "", false
	}
	value, ok := lookup(first, "value")
	if !ok {
		return "", false
	}
	return asString(value)
}

// createdShape reads reply[0] as the bare value.
func createdShape(reply []any) (string, bool) {
	if len(reply) == 0 {
		return "", false
	}
	return asString(reply[0])
}

func parseInstance(value string) (int32, bool) {
	_, suffix, ok := strings.Cut(value, ":")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(suffix), 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

func unwrap(v any) any {
	for {
		variant, ok := v.(dbus.Variant)
		if !ok {
			return v
		}
		v = variant.Value()
	}
}

func asString(v any) (string, bool) {
	s, ok := unwrap(v).(string)
	return s, ok
}

// index returns element i of any slice value.
func index(v any, i int) (any, bool) {
	rv := reflect.ValueOf(unwrap(v))
	if rv.Kind() != reflect.Slice || rv.Len() <= i {
		return nil, false
	}
	return rv.Index(i).Interface(), true
}

// lookup returns key from any string-keyed map value.
func lookup(v any, key string) (any, bool) {
	rv := reflect.ValueOf(unwrap(v))
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	e := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !e.IsValid() {
		return nil, false
	}
	return e.Interface(), true
}

func (n *Negotiator) record(start time.Time, id bus.Identity, req Request, reply []any, err error) {
	elapsed := time.Since(start)
	status := log.StatusOK
	if err != nil {
		status = log.StatusFailed
	}
	n.plog.Log(log.Event{
		Timestamp: start,
		SessionID: n.sessionID,
		Direction: log.DirectionOut,
		Category:  log.CategoryCall,
		Service:   id.ServiceName(),
		Call: &log.CallEvent{
			Operation:      log.OpAddSetting,
			Path:           req.Path,
			Value:          fmt.Sprintf("%v", reply),
			Status:         status,
			ProcessingTime: &elapsed,
		},
	})
}

func (n *Negotiator) info(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Info(msg, args...)
	}
}

func (n *Negotiator) warn(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Warn(msg, args...)
	}
}
