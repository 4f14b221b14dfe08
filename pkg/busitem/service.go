package busitem

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
)

const (
	introspectableInterface = "org.freedesktop.DBus.Introspectable"
	itemsChangedSignal      = Interface + ".ItemsChanged"
)

// Exporter is the part of a bus connection used to publish objects.
// *dbus.Conn satisfies it.
type Exporter interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Service publishes one server on a bus connection.
type Service struct {
	exp   Exporter
	srv   *interaction.Server
	path  dbus.ObjectPath
	iface string

	device *Device
	tree   *Tree
	subID  uint64

	logger *slog.Logger
}

// NewService prepares the bus objects for srv. Nothing is exported until
// Export is called.
func NewService(exp Exporter, srv *interaction.Server, path dbus.ObjectPath, iface string) *Service {
	return &Service{
		exp:    exp,
		srv:    srv,
		path:   path,
		iface:  iface,
		device: NewDevice(srv, path),
		tree:   NewTree(srv),
	}
}

// SetLogger sets the operational logger. Nil disables logging.
func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Export publishes the device object, the BusItem tree and their
// introspection data, then subscribes the service to change batches.
func (s *Service) Export() error {
	if err := s.exp.Export(s.device, s.path, s.iface); err != nil {
		return fmt.Errorf("export device object: %w", err)
	}
	if err := s.exp.Export(introspect.NewIntrospectable(s.deviceNode()), s.path, introspectableInterface); err != nil {
		return fmt.Errorf("export device introspection: %w", err)
	}
	if err := s.exp.Export(s.tree, "/", Interface); err != nil {
		return fmt.Errorf("export item tree: %w", err)
	}
	if err := s.exp.Export(introspect.NewIntrospectable(s.rootNode()), "/", introspectableInterface); err != nil {
		return fmt.Errorf("export item tree introspection: %w", err)
	}

	item := introspect.NewIntrospectable(s.itemNode())
	for _, path := range s.ItemPaths() {
		if err := s.exp.Export(s.tree, path, Interface); err != nil {
			return fmt.Errorf("export item %s: %w", path, err)
		}
		if err := s.exp.Export(item, path, introspectableInterface); err != nil {
			return fmt.Errorf("export item %s introspection: %w", path, err)
		}
	}

	s.subID = s.srv.Subscribe(s)
	return nil
}

// Close stops broadcasting change batches.
func (s *Service) Close() {
	if s.subID != 0 {
		s.srv.Unsubscribe(s.subID)
		s.subID = 0
	}
}

// ItemPaths returns the object path of every property item.
func (s *Service) ItemPaths() []dbus.ObjectPath {
	props := s.srv.Descriptor().Properties
	paths := make([]dbus.ObjectPath, len(props))
	for i, pd := range props {
		paths[i] = dbus.ObjectPath("/" + pd.Name)
	}
	return paths
}

// Notify broadcasts a change batch as one ItemsChanged signal on "/".
func (s *Service) Notify(batch interaction.ChangeSet) {
	if batch.Empty() {
		return
	}
	if err := s.exp.Emit("/", itemsChangedSignal, itemsDict(batch.Changes)); err != nil {
		s.warn("emit ItemsChanged failed", "seq", batch.Seq, "error", err)
		return
	}
	s.debug("emitted ItemsChanged", "seq", batch.Seq, "items", len(batch.Changes))
}

func (s *Service) deviceNode() *introspect.Node {
	iface := introspect.Interface{
		Name:    s.iface,
		Methods: introspect.Methods(s.device),
	}
	// Property names contain '/', so they are listed as annotations
	// rather than as D-Bus properties.
	for _, pd := range s.srv.Descriptor().Properties {
		access := "read"
		if pd.Writable {
			access = "readwrite"
		}
		iface.Annotations = append(iface.Annotations, introspect.Annotation{
			Name:  Interface + ".Property",
			Value: fmt.Sprintf("%s %s %s", pd.Name, pd.Type.Signature(), access),
		})
	}
	return &introspect.Node{
		Name:       string(s.path),
		Interfaces: []introspect.Interface{iface},
	}
}

func (s *Service) itemNode() *introspect.Node {
	return &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    Interface,
			Methods: introspect.Methods(s.tree),
		}},
	}
}

func (s *Service) rootNode() *introspect.Node {
	node := s.itemNode()
	node.Interfaces[0].Signals = []introspect.Signal{{
		Name: "ItemsChanged",
		Args: []introspect.Arg{{Name: "changes", Type: "a{sa{sv}}"}},
	}}

	seen := make(map[string]bool)
	var children []string
	for _, pd := range s.srv.Descriptor().Properties {
		top, _, _ := strings.Cut(pd.Name, "/")
		if !seen[top] {
			seen[top] = true
			children = append(children, top)
		}
	}
	// The device object lives under "/com".
	if top := strings.SplitN(strings.TrimPrefix(string(s.path), "/"), "/", 2)[0]; top != "" && !seen[top] {
		children = append(children, top)
	}
	sort.Strings(children)
	for _, c := range children {
		node.Children = append(node.Children, introspect.Node{Name: c})
	}
	return node
}

func (s *Service) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Service) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

var _ interaction.Notifier = (*Service)(nil)
