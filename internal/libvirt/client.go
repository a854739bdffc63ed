package libvirt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jbweber/virtloop/internal/callback"
	"github.com/jbweber/virtloop/internal/event"
	"github.com/jbweber/virtloop/internal/hypervisor"
)

// EventFunc receives events for a registration made with
// RegisterEventCallback.
type EventFunc func(c *Client, ev hypervisor.Event, opaque any)

// CloseFunc is called once when the connection closes.
type CloseFunc func(c *Client, reason hypervisor.CloseReason, opaque any)

// Registry is the token registry shared by clients.
type Registry = callback.Registry[EventFunc]

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...callback.Option) *Registry {
	return callback.New[EventFunc](opts...)
}

// nativeConn is the subset of *hypervisor.Conn the client uses.
type nativeConn interface {
	ID() uint64
	IsAlive() bool
	Done() <-chan struct{}
	EventRegisterAny(kind hypervisor.EventKind, resource *uuid.UUID, cb hypervisor.EventCallback, opaque any, free event.FreeCallback) (int, error)
	EventDeregisterAny(id int) error
	RegisterCloseCallback(cb hypervisor.CloseCallback, opaque any, free event.FreeCallback) error
	UnregisterCloseCallback() error
	SetKeepAlive(interval time.Duration, count int) error
	Close() error

	LibVersion() (uint64, error)
	Hostname() (string, error)
	URI() (string, error)
	ListAllDomains() ([]hypervisor.Domain, error)
	LookupDomain(name string) (hypervisor.Domain, error)
	DomainState(d hypervisor.Domain) (int32, int32, error)
	DomainInfo(d hypervisor.Domain) (hypervisor.DomainInfo, error)
	DomainAutostart(d hypervisor.Domain) (bool, error)
	DomainXML(d hypervisor.Domain, secure bool) (string, error)
}

// Client is a libvirt connection with Go-level event callbacks.
type Client struct {
	conn     nativeConn
	registry *Registry
	log      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// Connect opens a connection through lib and wraps it in a Client.
//
// If socketPath is empty, hypervisor.DefaultSocket is used. If timeout is
// zero, hypervisor.DefaultTimeout is used.
func Connect(ctx context.Context, lib *hypervisor.Library, registry *Registry, socketPath string, timeout time.Duration, opts ...Option) (*Client, error) {
	conn, err := lib.Open(ctx, socketPath, timeout)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, registry, opts...), nil
}

// NewClient wraps an open connection. A nil registry gets a private one.
func NewClient(conn nativeConn, registry *Registry, opts ...Option) *Client {
	if registry == nil {
		registry = NewRegistry()
	}
	c := &Client{
		conn:     conn,
		registry: registry,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Uint64("conn", conn.ID()).Logger()
	return c
}

// ID returns the connection id.
func (c *Client) ID() uint64 {
	return c.conn.ID()
}

// IsAlive reports whether the connection is open.
func (c *Client) IsAlive() bool {
	return c.conn.IsAlive()
}

// Done is closed when the connection closes, for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Close closes the connection. Every registration is freed. It is safe to
// call Close multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Registrations returns the number of live event registrations on this
// connection.
func (c *Client) Registrations() int {
	return c.registry.Count(c.conn.ID())
}

// RegisterEventCallback registers fn for events of kind. If resource is not
// nil only events about that object are delivered. It returns the
// callback id used to deregister.
func (c *Client) RegisterEventCallback(kind hypervisor.EventKind, resource *uuid.UUID, opaque any, fn EventFunc) (int, error) {
	if fn == nil {
		return -1, errors.New("event callback must not be nil")
	}

	tok, free := c.registry.Allocate()
	id, err := c.conn.EventRegisterAny(kind, resource, c.dispatch, tok, free)
	if err != nil {
		c.registry.Discard(tok)
		return -1, fmt.Errorf("failed to register %s callback: %w", kind, err)
	}

	if err := c.registry.Store(tok, c.conn.ID(), id, fn, opaque, nil); err != nil {
		_ = c.conn.EventDeregisterAny(id)
		return -1, fmt.Errorf("failed to store %s callback: %w", kind, err)
	}

	c.log.Debug().Stringer("kind", kind).Int("callback_id", id).Msg("registered event callback")
	return id, nil
}

// DeregisterEventCallback removes a registration. Its token is freed by
// the connection once no further dispatch can reach it.
func (c *Client) DeregisterEventCallback(id int) error {
	if err := c.conn.EventDeregisterAny(id); err != nil {
		return fmt.Errorf("failed to deregister callback %d: %w", id, err)
	}
	c.log.Debug().Int("callback_id", id).Msg("deregistered event callback")
	return nil
}

// dispatch is the native event callback. Its opaque is the registry token.
func (c *Client) dispatch(_ *hypervisor.Conn, ev hypervisor.Event, opaque any) {
	tok, ok := opaque.(callback.Token)
	if !ok {
		c.log.Error().Err(callback.ErrInvalidOpaque).Type("opaque", opaque).Msg("event dispatch")
		return
	}
	entry, err := c.registry.Retrieve(tok)
	if errors.Is(err, callback.ErrNotBound) {
		// Delivered before RegisterEventCallback bound the token.
		c.log.Debug().Uint64("token", uint64(tok)).Stringer("kind", ev.Kind()).Msg("event for callback not yet bound, dropped")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Stringer("kind", ev.Kind()).Msg("event dispatch")
		return
	}
	entry.Callback(c, ev, entry.Opaque)
}

// RegisterCloseCallback sets fn to run when the connection closes.
func (c *Client) RegisterCloseCallback(opaque any, fn CloseFunc) error {
	if fn == nil {
		return errors.New("close callback must not be nil")
	}
	trampoline := func(_ *hypervisor.Conn, reason hypervisor.CloseReason, opaque any) {
		fn(c, reason, opaque)
	}
	if err := c.conn.RegisterCloseCallback(trampoline, opaque, nil); err != nil {
		return fmt.Errorf("failed to register close callback: %w", err)
	}
	return nil
}

// UnregisterCloseCallback removes the close callback.
func (c *Client) UnregisterCloseCallback() error {
	if err := c.conn.UnregisterCloseCallback(); err != nil {
		return fmt.Errorf("failed to unregister close callback: %w", err)
	}
	return nil
}

// SetKeepAlive probes the daemon every interval and closes the connection
// after more than count missed probes.
func (c *Client) SetKeepAlive(interval time.Duration, count int) error {
	if err := c.conn.SetKeepAlive(interval, count); err != nil {
		return fmt.Errorf("failed to set keepalive: %w", err)
	}
	return nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping() error {
	if _, err := c.conn.LibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}
	return nil
}

// Version is a libvirt library version.
type Version struct {
	Major uint64
	Minor uint64
	Micro uint64
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// ParseVersion splits libvirt's major*1,000,000 + minor*1,000 + micro
// encoding.
func ParseVersion(v uint64) Version {
	return Version{
		Major: v / 1_000_000,
		Minor: (v / 1_000) % 1_000,
		Micro: v % 1_000,
	}
}

// LibVersion returns the daemon's libvirt version.
func (c *Client) LibVersion() (Version, error) {
	v, err := c.conn.LibVersion()
	if err != nil {
		return Version{}, fmt.Errorf("failed to get libvirt version: %w", err)
	}
	return ParseVersion(v), nil
}

// Hostname returns the hypervisor host name.
func (c *Client) Hostname() (string, error) {
	return c.conn.Hostname()
}

// URI returns the connection URI.
func (c *Client) URI() (string, error) {
	return c.conn.URI()
}
