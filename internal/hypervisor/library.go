package hypervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/rs/zerolog"

	"github.com/jbweber/virtloop/internal/event"
)

const (
	// DefaultSocket is the system libvirtd socket (qemu:///system).
	DefaultSocket = "/var/run/libvirt/libvirt-sock"

	// DefaultTimeout bounds dialing the socket.
	DefaultTimeout = 5 * time.Second
)

// Library is the root object connections are opened from. It holds the event
// implementation those connections use.
type Library struct {
	mu       sync.Mutex
	impl     event.Impl
	lastConn uint64
	conns    map[uint64]*Conn
	log      zerolog.Logger
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger for the library and its connections.
func WithLogger(l zerolog.Logger) Option {
	return func(lib *Library) {
		lib.log = l
	}
}

// New returns a Library with no event implementation registered.
func New(opts ...Option) *Library {
	lib := &Library{
		conns: make(map[uint64]*Conn),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(lib)
	}
	return lib
}

// RegisterEventImpl installs impl as the event implementation. nil removes
// the current one; connections then stop receiving events until another is
// installed. Open connections re-add their delivery watch and keepalive
// timer on the new implementation, so existing registrations keep working.
func (l *Library) RegisterEventImpl(impl event.Impl) {
	l.mu.Lock()
	l.impl = impl
	conns := make([]*Conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	l.log.Debug().Bool("registered", impl != nil).Int("connections", len(conns)).Msg("event implementation changed")
	if impl == nil {
		return
	}
	for _, c := range conns {
		c.rearm()
	}
}

// EventImpl returns the current event implementation, or nil.
func (l *Library) EventImpl() event.Impl {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.impl
}

// Open connects to the libvirt daemon listening on socketPath.
//
// If socketPath is empty, DefaultSocket is used. If timeout is zero,
// DefaultTimeout is used.
func (l *Library) Open(ctx context.Context, socketPath string, timeout time.Duration) (*Conn, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)
	lv := libvirt.NewWithDialer(dialer)

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- lv.Connect()
	}()

	select {
	case <-ctx.Done():
		// Don't leak a connection that completes after we gave up on it.
		go func() {
			if err := <-resultCh; err == nil {
				_ = lv.Disconnect()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case err := <-resultCh:
		if err != nil {
			return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
		}
	}

	return l.NewConn(lv, rpcEventSource{lv: lv}), nil
}

// NewConn wraps an established RPC connection. If src is nil and r can
// stream lifecycle events, r is used as the event source.
func (l *Library) NewConn(r RPC, src EventSource) *Conn {
	if src == nil {
		if sub, ok := r.(lifecycleSubscriber); ok {
			src = rpcEventSource{lv: sub}
		} else {
			src = noEventSource{}
		}
	}

	l.mu.Lock()
	l.lastConn++
	id := l.lastConn

	c := newConn(id, l, r, src)
	l.conns[id] = c
	l.mu.Unlock()

	if n, ok := r.(disconnectNotifier); ok {
		go c.watchDisconnect(n.Disconnected())
	}
	return c
}

func (l *Library) forget(c *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, c.id)
}
