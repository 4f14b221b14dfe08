package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// Errors returned by the connector.
var (
	ErrConnection      = errors.New("bus connection failed")
	ErrNameConflict    = errors.New("service name not acquired")
	ErrInvalidIdentity = errors.New("invalid bus identity")
	ErrInvalidAddress  = errors.New("invalid bus address")
)

// DefaultConnectTimeout bounds connection setup when the context has no deadline.
const DefaultConnectTimeout = 30 * time.Second

// Config selects the bus transport.
type Config struct {
	// Address is an explicit host:port, or a full D-Bus address such as
	// "unix:path=/run/dbus/system_bus_socket". Empty selects a local bus.
	Address string

	// Session selects the session bus instead of the system bus when no
	// Address is given.
	Session bool

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration
}

// Transport describes the transport the config selects.
func (c Config) Transport() string {
	switch {
	case c.Address != "":
		return "address"
	case c.Session:
		return "session"
	default:
		return "system"
	}
}

// Conn is a bus connection owned by one device.
type Conn struct {
	*dbus.Conn
}

// Connect opens the process's bus connection.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	dial, err := dialer(cfg)
	if err != nil {
		return nil, err
	}

	type result struct {
		conn *dbus.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := dial()
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %s bus: %v", ErrConnection, cfg.Transport(), r.err)
		}
		return &Conn{Conn: r.conn}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %s bus: %v", ErrConnection, cfg.Transport(), ctx.Err())
	}
}

func dialer(cfg Config) (func() (*dbus.Conn, error), error) {
	if cfg.Address != "" {
		addr, err := ParseAddress(cfg.Address)
		if err != nil {
			return nil, err
		}
		return func() (*dbus.Conn, error) {
			return dbus.Connect(addr, dbus.WithAuth(dbus.AuthAnonymous()))
		}, nil
	}
	if cfg.Session {
		return func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() }, nil
	}
	return func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() }, nil
}

// ParseAddress converts host:port into a D-Bus TCP address. Strings that
// already are D-Bus addresses are returned unchanged.
func ParseAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "=") {
		return s, nil
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if host == "" || port == "" {
		return "", fmt.Errorf("%w: %q: host and port required", ErrInvalidAddress, s)
	}
	return fmt.Sprintf("tcp:host=%s,port=%s", host, port), nil
}

// Claim requests exclusive ownership of a service name.
func (c *Conn) Claim(ctx context.Context, name string) error {
	return RequestName(ctx, c.BusObject(), name)
}

// Release gives up a previously claimed service name.
func (c *Conn) Release(name string) error {
	_, err := c.ReleaseName(name)
	return err
}

// RequestName asks the bus daemon for name without queueing. Only primary
// ownership counts as success.
func RequestName(ctx context.Context, daemon dbus.BusObject, name string) error {
	var reply uint32
	call := daemon.CallWithContext(ctx, "org.freedesktop.DBus.RequestName", 0, name, uint32(dbus.NameFlagDoNotQueue))
	if err := call.Store(&reply); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNameConflict, name, err)
	}
	if dbus.RequestNameReply(reply) != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s: reply %d", ErrNameConflict, name, reply)
	}
	return nil
}
