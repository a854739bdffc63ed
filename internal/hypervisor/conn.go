package hypervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/jbweber/virtloop/internal/event"
)

// CloseReason says why a connection closed.
type CloseReason int

const (
	CloseReasonError CloseReason = iota
	CloseReasonEOF
	CloseReasonKeepalive
	CloseReasonClient
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonError:
		return "error"
	case CloseReasonEOF:
		return "eof"
	case CloseReasonKeepalive:
		return "keepalive"
	case CloseReasonClient:
		return "client"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// EventCallback receives events for one registration.
type EventCallback func(c *Conn, ev Event, opaque any)

// CloseCallback is called once when the connection closes.
type CloseCallback func(c *Conn, reason CloseReason, opaque any)

type registration struct {
	id       int
	kind     EventKind
	resource *uuid.UUID
	cb       EventCallback
	opaque   any
	free     event.FreeCallback
}

func (r *registration) matches(ev Event) bool {
	if ev.Kind() != r.kind {
		return false
	}
	return r.resource == nil || *r.resource == ev.Resource()
}

func (r *registration) release() {
	if r.free != nil {
		r.free(r.opaque)
	}
}

type subscription struct {
	cancel context.CancelFunc
	refs   int
}

type closeCallback struct {
	cb     CloseCallback
	opaque any
	free   event.FreeCallback
}

// Conn is a connection to a libvirt daemon.
type Conn struct {
	id     uint64
	lib    *Library
	rpc    RPC
	source EventSource
	log    zerolog.Logger
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	regs    map[int]*registration
	lastReg int
	subs    map[EventKind]*subscription
	pending []Event
	closeCb *closeCallback
	ka      *keepalive

	// Delivery pipe and the watch the event implementation holds on it.
	pipeR, pipeW int
	watch        int
	watchImpl    event.Impl
}

func newConn(id uint64, lib *Library, r RPC, src EventSource) *Conn {
	return &Conn{
		id:     id,
		lib:    lib,
		rpc:    r,
		source: src,
		log:    lib.log.With().Uint64("conn", id).Logger(),
		done:   make(chan struct{}),
		regs:   make(map[int]*registration),
		subs:   make(map[EventKind]*subscription),
		pipeR:  -1,
		pipeW:  -1,
	}
}

// ID returns the connection's identity, unique within its Library.
func (c *Conn) ID() uint64 {
	return c.id
}

// IsAlive reports whether the connection is open.
func (c *Conn) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// EventRegisterAny registers cb for events of kind. If resource is not nil,
// only events about that object are delivered. free, if not nil, is called
// with opaque exactly once, when the registration is removed.
//
// It returns the registration id, unique within the connection.
func (c *Conn) EventRegisterAny(kind EventKind, resource *uuid.UUID, cb EventCallback, opaque any, free event.FreeCallback) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedEventKind, kind)
	}
	if cb == nil {
		return 0, errors.New("hypervisor: nil event callback")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrConnClosed
	}
	if err := c.ensureDeliveryLocked(); err != nil {
		return 0, err
	}

	sub := c.subs[kind]
	if sub == nil {
		ctx, cancel := context.WithCancel(context.Background())
		events, err := c.source.Subscribe(ctx, kind)
		if err != nil {
			cancel()
			return 0, fmt.Errorf("failed to register %s callback: %w", kind, err)
		}
		sub = &subscription{cancel: cancel}
		c.subs[kind] = sub
		go c.pump(events)
	}
	sub.refs++

	c.lastReg++
	reg := &registration{
		id:       c.lastReg,
		kind:     kind,
		resource: resource,
		cb:       cb,
		opaque:   opaque,
		free:     free,
	}
	c.regs[reg.id] = reg

	c.log.Debug().Int("callback_id", reg.id).Stringer("kind", kind).Msg("event callback registered")
	return reg.id, nil
}

// EventDeregisterAny removes a registration and calls its free callback.
// No event is delivered to it after this returns.
func (c *Conn) EventDeregisterAny(id int) error {
	c.mu.Lock()
	reg, ok := c.regs[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownCallback, id)
	}
	delete(c.regs, id)
	if sub := c.subs[reg.kind]; sub != nil {
		sub.refs--
		if sub.refs == 0 {
			sub.cancel()
			delete(c.subs, reg.kind)
		}
	}
	c.mu.Unlock()

	c.log.Debug().Int("callback_id", id).Stringer("kind", reg.kind).Msg("event callback deregistered")
	reg.release()
	return nil
}

// RegisterCloseCallback sets the function called when the connection closes.
// free, if not nil, is called with opaque when the callback is unregistered
// or after it has run.
func (c *Conn) RegisterCloseCallback(cb CloseCallback, opaque any, free event.FreeCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	if c.closeCb != nil {
		return ErrCloseCallbackExists
	}
	c.closeCb = &closeCallback{cb: cb, opaque: opaque, free: free}
	return nil
}

// UnregisterCloseCallback removes the close callback and frees its opaque.
func (c *Conn) UnregisterCloseCallback() error {
	c.mu.Lock()
	cc := c.closeCb
	c.closeCb = nil
	c.mu.Unlock()

	if cc == nil {
		return ErrNoCloseCallback
	}
	if cc.free != nil {
		cc.free(cc.opaque)
	}
	return nil
}

// Close closes the connection. Every event registration is removed and its
// free callback called, the close callback runs with CloseReasonClient, and
// the RPC connection is torn down. It is safe to call Close multiple times.
func (c *Conn) Close() error {
	return c.closeWithReason(CloseReasonClient)
}

func (c *Conn) closeWithReason(reason CloseReason) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)

	regs := c.regs
	c.regs = make(map[int]*registration)
	subs := c.subs
	c.subs = make(map[EventKind]*subscription)
	ka := c.ka
	c.ka = nil
	cc := c.closeCb
	c.closeCb = nil
	c.pending = nil
	watch, watchImpl := c.watch, c.watchImpl
	c.watch, c.watchImpl = 0, nil
	pipeR, pipeW := c.pipeR, c.pipeW
	c.pipeR, c.pipeW = -1, -1
	c.mu.Unlock()

	c.lib.forget(c)
	c.log.Debug().Stringer("reason", reason).Msg("closing connection")

	for _, sub := range subs {
		sub.cancel()
	}

	impl := c.lib.EventImpl()
	if ka != nil && impl != nil && impl == ka.impl {
		impl.RemoveTimeout(ka.timer)
	}
	if watch > 0 && impl != nil && impl == watchImpl {
		// RemoveHandle returns once the callback is neither running nor
		// queued, so the pipe can be closed right after.
		impl.RemoveHandle(watch)
	}
	if pipeR >= 0 {
		_ = unix.Close(pipeR)
		_ = unix.Close(pipeW)
	}

	ids := make([]int, 0, len(regs))
	for id := range regs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		regs[id].release()
	}

	var err error
	if derr := c.rpc.Disconnect(); derr != nil && reason == CloseReasonClient {
		err = fmt.Errorf("failed to disconnect from libvirt: %w", derr)
	}

	if cc != nil {
		if cc.cb != nil {
			cc.cb(c, reason, cc.opaque)
		}
		if cc.free != nil {
			cc.free(cc.opaque)
		}
	}
	return err
}

func (c *Conn) watchDisconnect(disconnected <-chan struct{}) {
	select {
	case <-disconnected:
		c.log.Warn().Msg("connection dropped by daemon")
		_ = c.closeWithReason(CloseReasonEOF)
	case <-c.done:
	}
}

// ensureDeliveryLocked creates the delivery pipe and registers it with the
// event implementation, once per connection.
func (c *Conn) ensureDeliveryLocked() error {
	impl := c.lib.EventImpl()
	if impl == nil {
		return ErrNoEventImpl
	}
	if c.watch > 0 && c.watchImpl == impl {
		return nil
	}

	if c.pipeR < 0 {
		p := make([]int, 2)
		if err := unix.Pipe(p); err != nil {
			return fmt.Errorf("failed to create event pipe: %w", err)
		}
		for _, fd := range p {
			unix.CloseOnExec(fd)
			_ = unix.SetNonblock(fd, true)
		}
		c.pipeR, c.pipeW = p[0], p[1]
	}

	watch := impl.AddHandle(c.pipeR, event.Readable, &event.HandleCallbackInfo{
		Callback: c.handleReadable,
		Opaque:   c,
	})
	if watch < 0 {
		return fmt.Errorf("%w: add handle for fd %d", ErrEventImplFailed, c.pipeR)
	}
	c.watch, c.watchImpl = watch, impl

	// Events queued while no implementation was watching still need a wakeup.
	if len(c.pending) > 0 {
		_, _ = unix.Write(c.pipeW, []byte{1})
	}
	return nil
}

// rearm re-adds the delivery watch and keepalive timer after the event
// implementation changed.
func (c *Conn) rearm() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.pipeR >= 0 {
		if err := c.ensureDeliveryLocked(); err != nil {
			c.log.Error().Err(err).Msg("failed to re-add event delivery watch")
		}
	}
	if c.ka != nil {
		if err := c.armKeepaliveLocked(c.ka); err != nil {
			c.log.Error().Err(err).Msg("failed to re-arm keepalive")
		}
	}
}

// pump moves events from a source subscription into the delivery queue.
func (c *Conn) pump(events <-chan Event) {
	for ev := range events {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.pending = append(c.pending, ev)
		// A full pipe already has a wakeup pending.
		_, _ = unix.Write(c.pipeW, []byte{1})
		c.mu.Unlock()
	}
}

// handleReadable runs on the event loop when the delivery pipe is readable.
func (c *Conn) handleReadable(_, _ int, _ event.HandleType, _ any) {
	c.mu.Lock()
	if c.closed || c.pipeR < 0 {
		c.mu.Unlock()
		return
	}
	buf := make([]byte, 64)
	for {
		if n, err := unix.Read(c.pipeR, buf); n <= 0 || err != nil {
			break
		}
	}
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ev := range batch {
		c.deliver(ev)
	}
}

func (c *Conn) deliver(ev Event) {
	c.mu.Lock()
	var ids []int
	for id, reg := range c.regs {
		if reg.matches(ev) {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		// Callbacks may deregister others, so look each one up again.
		c.mu.Lock()
		reg, ok := c.regs[id]
		c.mu.Unlock()
		if !ok {
			continue
		}
		reg.cb(c, ev, reg.opaque)
	}
}
