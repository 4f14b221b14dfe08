package interaction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/victron-virtual/dbus-virtual-go/pkg/log"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
)

// Caller distinguishes who performs a write.
type Caller uint8

const (
	// CallerRemote is a peer on the bus.
	CallerRemote Caller = iota
	// CallerDevice is the device itself.
	CallerDevice
)

// String returns the caller name.
func (c Caller) String() string {
	if c == CallerDevice {
		return "device"
	}
	return "remote"
}

// Server answers property exchange calls against a live property table.
// It is safe for concurrent use.
type Server struct {
	desc  *model.Descriptor
	props *model.Properties

	// emitMu serializes EmitChanges so batches reach notifiers in call order.
	emitMu sync.Mutex
	seq    uint64

	notifyMu  sync.RWMutex
	notifiers map[uint64]Notifier
	order     []uint64
	nextSubID uint64

	logger    log.Logger
	sessionID string
	service   string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger records every call on the given protocol logger.
func WithLogger(l log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionID sets the session identifier stamped on log events.
func WithSessionID(id string) Option {
	return func(s *Server) { s.sessionID = id }
}

// WithService sets the bus service name stamped on log events.
func WithService(name string) Option {
	return func(s *Server) { s.service = name }
}

// NewServer creates a server over a projected descriptor and property table.
func NewServer(desc *model.Descriptor, props *model.Properties, opts ...Option) *Server {
	s := &Server{
		desc:      desc,
		props:     props,
		notifiers: make(map[uint64]Notifier),
		logger:    log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessionID == "" {
		s.sessionID = log.NewSessionID()
	}
	return s
}

// Properties returns the live property table.
func (s *Server) Properties() *model.Properties {
	return s.props
}

// SessionID returns the session identifier used in log events.
func (s *Server) SessionID() string {
	return s.sessionID
}

// Descriptor returns the introspection descriptor.
func (s *Server) Descriptor() *model.Descriptor {
	return s.desc
}

// GetValue returns the current value of a property. Nil means unset.
func (s *Server) GetValue(ctx context.Context, name string) (any, error) {
	start := time.Now()
	v, err := s.props.Value(name)
	s.logCall(ctx, start, log.OpGetValue, name, v, err)
	return v, err
}

// GetText returns the formatted value of a property.
func (s *Server) GetText(ctx context.Context, name string) (string, error) {
	start := time.Now()
	text, err := s.props.Text(name)
	s.logCall(ctx, start, log.OpGetText, name, nil, err)
	return text, err
}

// SetValue validates and stores a value. Out-of-range and mistyped values
// are rejected and leave the previous value in place.
func (s *Server) SetValue(ctx context.Context, caller Caller, name string, value any) error {
	start := time.Now()

	var err error
	if caller == CallerDevice {
		err = s.props.SetValueInternal(name, value)
	} else {
		err = s.props.SetValue(name, value)
	}

	s.logCall(ctx, start, log.OpSetValue, name, value, err)
	return err
}

// Items returns value and text of every property, in order.
func (s *Server) Items(ctx context.Context) []model.Change {
	start := time.Now()
	items := s.props.Snapshot()
	s.logCall(ctx, start, log.OpGetItems, "", nil, nil)
	return items
}

// GetDescriptor returns the descriptor and records the call.
func (s *Server) GetDescriptor(ctx context.Context) *model.Descriptor {
	s.logCall(ctx, time.Now(), log.OpGetDescriptor, "", nil, nil)
	return s.desc
}

// Subscribe registers a notifier for change batches and returns its
// subscription ID. Notifiers are called in subscription order.
func (s *Server) Subscribe(n Notifier) uint64 {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.notifiers[id] = n
	s.order = append(s.order, id)
	return id
}

// Unsubscribe removes a notifier. Unknown IDs are ignored.
func (s *Server) Unsubscribe(id uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if _, exists := s.notifiers[id]; !exists {
		return
	}
	delete(s.notifiers, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// EmitChanges collects every property changed since the previous call into
// one ChangeSet and delivers it to all notifiers. An empty batch is returned
// without notifying anyone.
func (s *Server) EmitChanges() ChangeSet {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	changes := s.props.TakeDirty()
	if len(changes) == 0 {
		return ChangeSet{}
	}

	s.seq++
	batch := ChangeSet{Seq: s.seq, Changes: changes}

	s.notifyMu.RLock()
	notifiers := make([]Notifier, 0, len(s.order))
	for _, id := range s.order {
		notifiers = append(notifiers, s.notifiers[id])
	}
	s.notifyMu.RUnlock()

	for _, n := range notifiers {
		n.Notify(batch)
	}

	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.sessionID,
		Direction: log.DirectionOut,
		Category:  log.CategoryNotification,
		Service:   s.service,
		Changes:   &log.ChangesEvent{Paths: batch.Paths()},
	})

	return batch
}

func (s *Server) logCall(ctx context.Context, start time.Time, op log.Operation, name string, value any, err error) {
	peer := PeerFromContext(ctx)
	elapsed := time.Since(start)
	s.logger.Log(log.Event{
		Timestamp: start,
		SessionID: s.sessionID,
		Direction: log.DirectionIn,
		Category:  log.CategoryCall,
		Service:   s.service,
		Sender:    peer.Sender,
		Call: &log.CallEvent{
			Operation:      op,
			Path:           peer.Path,
			Property:       name,
			Value:          value,
			Status:         StatusOf(err),
			ProcessingTime: &elapsed,
		},
	})
}

// StatusOf maps a property error to its protocol status.
func StatusOf(err error) log.Status {
	switch {
	case err == nil:
		return log.StatusOK
	case errors.Is(err, model.ErrUnknownProperty):
		return log.StatusUnknownProperty
	case errors.Is(err, model.ErrTypeMismatch):
		return log.StatusTypeMismatch
	case errors.Is(err, model.ErrOutOfRange):
		return log.StatusOutOfRange
	case errors.Is(err, model.ErrNotWritable):
		return log.StatusNotWritable
	default:
		return log.StatusFailed
	}
}
