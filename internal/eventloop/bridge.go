package eventloop

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/jbweber/virtloop/internal/event"
)

// Bridge registers a Loop with a library as its event implementation.
//
// A Bridge is either unregistered or registered with exactly one Registrar.
// Each registration hands the library a fresh set of entry points; once
// unregistered, the old entry points refuse every call so late calls from
// the library can not reach the loop.
type Bridge struct {
	mu        sync.Mutex
	loop      *Loop
	registrar event.Registrar
	slots     *slots
	log       zerolog.Logger
}

// NewBridge returns an unregistered Bridge for loop.
func NewBridge(loop *Loop, opts ...Option) *Bridge {
	o := resolveOptions(opts)
	return &Bridge{loop: loop, log: o.log}
}

// Register installs the loop as r's event implementation.
func (b *Bridge) Register(r event.Registrar) error {
	if r == nil {
		return ErrNilRegistrar
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.slots != nil {
		return ErrAlreadyRegistered
	}

	b.slots = &slots{loop: b.loop, log: b.log}
	b.registrar = r
	r.RegisterEventImpl(b.slots)

	b.log.Debug().Msg("event implementation registered")
	return nil
}

// Unregister detaches the loop from its registrar and drops every handle and
// timer the library had added.
func (b *Bridge) Unregister() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.slots == nil {
		return ErrNotRegistered
	}

	b.slots.detached.Store(true)
	b.registrar.RegisterEventImpl(nil)
	b.slots = nil
	b.registrar = nil
	b.loop.Reset()

	b.log.Debug().Msg("event implementation unregistered")
	return nil
}

// Registered reports whether the bridge is currently registered.
func (b *Bridge) Registered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slots != nil
}

// Impl returns the entry points of the current registration, or nil.
func (b *Bridge) Impl() event.Impl {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slots == nil {
		return nil
	}
	return b.slots
}

// slots implements event.Impl for one registration. Failures are reported to
// the library as -1 and logged, since the native signatures carry no error.
type slots struct {
	loop     *Loop
	log      zerolog.Logger
	detached atomic.Bool
}

var _ event.Impl = (*slots)(nil)

func (s *slots) refuse(op string) bool {
	if s.detached.Load() {
		s.log.Warn().Str("op", op).Msg("call on unregistered event implementation")
		return true
	}
	return false
}

func (s *slots) AddHandle(fd int, events event.HandleType, cb *event.HandleCallbackInfo) int {
	if s.refuse("add_handle") {
		return -1
	}
	id, err := s.loop.AddHandle(fd, events, cb)
	if err != nil {
		s.log.Error().Err(err).Int("fd", fd).Msg("add handle failed")
		return -1
	}
	return id
}

func (s *slots) UpdateHandle(watch int, events event.HandleType) {
	if s.refuse("update_handle") {
		return
	}
	if err := s.loop.UpdateHandle(watch, events); err != nil {
		s.log.Warn().Err(err).Int("watch", watch).Msg("update handle failed")
	}
}

func (s *slots) RemoveHandle(watch int) int {
	if s.refuse("remove_handle") {
		return -1
	}
	info, err := s.loop.RemoveHandle(watch)
	if err != nil {
		s.log.Warn().Err(err).Int("watch", watch).Msg("remove handle failed")
		return -1
	}
	info.ReleaseOpaque()
	return 0
}

func (s *slots) AddTimeout(intervalMs int, cb *event.TimeoutCallbackInfo) int {
	if s.refuse("add_timeout") {
		return -1
	}
	id, err := s.loop.AddTimer(intervalMs, cb)
	if err != nil {
		s.log.Error().Err(err).Int("interval", intervalMs).Msg("add timeout failed")
		return -1
	}
	return id
}

func (s *slots) UpdateTimeout(timer int, intervalMs int) {
	if s.refuse("update_timeout") {
		return
	}
	if err := s.loop.UpdateTimer(timer, intervalMs); err != nil {
		s.log.Warn().Err(err).Int("timer", timer).Msg("update timeout failed")
	}
}

func (s *slots) RemoveTimeout(timer int) int {
	if s.refuse("remove_timeout") {
		return -1
	}
	info, err := s.loop.RemoveTimer(timer)
	if err != nil {
		s.log.Warn().Err(err).Int("timer", timer).Msg("remove timeout failed")
		return -1
	}
	info.ReleaseOpaque()
	return 0
}
