// Package callback keeps Go callbacks reachable while the hypervisor library
// holds an opaque reference to them.
//
// The library only ever sees a Token. Allocate reserves one together with the
// free callback the library must invoke when it drops the reference; Store
// binds the reserved token to a callback once the native registration has
// returned its id. The free callback is the only path that evicts a bound
// entry.
package callback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jbweber/virtloop/internal/event"
)

var (
	// ErrUnknownToken is returned for tokens that were never allocated or
	// that have been released.
	ErrUnknownToken = errors.New("callback: unknown token")

	// ErrNotBound is returned by Retrieve for a token that is reserved but
	// not yet bound. The native side may deliver through a registration
	// before its id has been returned, so this is not a contract violation.
	ErrNotBound = errors.New("callback: token not yet bound")

	// ErrDoubleRelease is returned when a token is released a second time.
	ErrDoubleRelease = errors.New("callback: token already released")

	// ErrDuplicateRegistration is returned when a (connection, id) pair or a
	// token is bound twice.
	ErrDuplicateRegistration = errors.New("callback: duplicate registration")

	// ErrInvalidOpaque is returned when the free callback receives something
	// other than a Token.
	ErrInvalidOpaque = errors.New("callback: opaque is not a token")
)

// IsContractViolation reports whether err means the native side broke the
// opaque/free contract.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrUnknownToken) ||
		errors.Is(err, ErrDoubleRelease) ||
		errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrInvalidOpaque)
}

// Token is the opaque value handed to the native library.
type Token uint64

// Entry is a bound registration.
type Entry[C any] struct {
	ConnID   uint64
	ID       int
	Callback C
	Opaque   any
}

type key struct {
	conn uint64
	id   int
}

type slot[C any] struct {
	entry   Entry[C]
	bound   bool
	release func(opaque any)
}

// Registry maps tokens to callbacks of type C.
type Registry[C any] struct {
	mu    sync.Mutex
	last  Token
	slots map[Token]*slot[C]
	byKey map[key]Token
	log   zerolog.Logger
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	log zerolog.Logger
}

// WithLogger sets the logger used to report contract violations seen by the
// free callback.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// New returns an empty Registry.
func New[C any](opts ...Option) *Registry[C] {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[C]{
		slots: make(map[Token]*slot[C]),
		byKey: make(map[key]Token),
		log:   o.log,
	}
}

// Allocate reserves a fresh token and returns it with the free callback the
// native library must call, with the token as its argument, exactly once.
func (r *Registry[C]) Allocate() (Token, event.FreeCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last++
	tok := r.last
	r.slots[tok] = &slot[C]{}
	return tok, r.free
}

// Store binds a reserved token to its native registration. release, if not
// nil, is called with opaque after the entry is evicted by the free callback.
func (r *Registry[C]) Store(tok Token, connID uint64, id int, cb C, opaque any, release func(opaque any)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[tok]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownToken, tok)
	}
	if s.bound {
		return fmt.Errorf("%w: token %d", ErrDuplicateRegistration, tok)
	}
	k := key{conn: connID, id: id}
	if _, exists := r.byKey[k]; exists {
		return fmt.Errorf("%w: connection %d callback %d", ErrDuplicateRegistration, connID, id)
	}

	s.entry = Entry[C]{ConnID: connID, ID: id, Callback: cb, Opaque: opaque}
	s.bound = true
	s.release = release
	r.byKey[k] = tok
	return nil
}

// Retrieve returns the entry bound to tok.
func (r *Registry[C]) Retrieve(tok Token) (Entry[C], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[tok]
	if !ok {
		return Entry[C]{}, fmt.Errorf("%w: %d", ErrUnknownToken, tok)
	}
	if !s.bound {
		return Entry[C]{}, fmt.Errorf("%w: %d", ErrNotBound, tok)
	}
	return s.entry, nil
}

// Release evicts tok and returns its user opaque. Releasing a reserved but
// unbound token drops the reservation and returns nil.
func (r *Registry[C]) Release(tok Token) (any, error) {
	s, err := r.evict(tok)
	if err != nil {
		return nil, err
	}
	return s.entry.Opaque, nil
}

// Discard drops a reservation whose native registration failed. The native
// side never calls free for those.
func (r *Registry[C]) Discard(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.slots[tok]; ok && !s.bound {
		delete(r.slots, tok)
	}
}

// Lookup returns the token bound to a native registration.
func (r *Registry[C]) Lookup(connID uint64, id int) (Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.byKey[key{conn: connID, id: id}]
	return tok, ok
}

// Len returns the number of live tokens, reserved or bound.
func (r *Registry[C]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Count returns the number of bound entries for a connection.
func (r *Registry[C]) Count(connID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k := range r.byKey {
		if k.conn == connID {
			n++
		}
	}
	return n
}

func (r *Registry[C]) evict(tok Token) (*slot[C], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[tok]
	if !ok {
		if tok == 0 || tok > r.last {
			return nil, fmt.Errorf("%w: %d", ErrUnknownToken, tok)
		}
		return nil, fmt.Errorf("%w: %d", ErrDoubleRelease, tok)
	}
	delete(r.slots, tok)
	if s.bound {
		delete(r.byKey, key{conn: s.entry.ConnID, id: s.entry.ID})
	}
	return s, nil
}

// free is the FreeCallback handed to the native library.
func (r *Registry[C]) free(opaque any) {
	tok, ok := opaque.(Token)
	if !ok {
		r.log.Error().Err(ErrInvalidOpaque).Type("opaque", opaque).Msg("free callback")
		return
	}

	s, err := r.evict(tok)
	if err != nil {
		r.log.Error().Err(err).Uint64("token", uint64(tok)).Msg("free callback")
		return
	}
	r.log.Debug().
		Uint64("token", uint64(tok)).
		Uint64("conn", s.entry.ConnID).
		Int("callback_id", s.entry.ID).
		Msg("callback released")

	if s.release != nil {
		s.release(s.entry.Opaque)
	}
}
