package libvirt

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jbweber/virtloop/internal/event"
	"github.com/jbweber/virtloop/internal/hypervisor"
)

type mockRegistration struct {
	kind     hypervisor.EventKind
	resource *uuid.UUID
	cb       hypervisor.EventCallback
	opaque   any
	free     event.FreeCallback
}

// mockConn is a mock implementation of nativeConn for testing. Registered
// callbacks are invoked by emit, and their free callbacks run on
// deregister and close, the way the native side does.
type mockConn struct {
	mu sync.Mutex

	id      uint64
	closed  bool
	done    chan struct{}
	lastReg int
	regs    map[int]*mockRegistration
	closeCb hypervisor.CloseCallback
	closeOp any

	// Configurable behavior
	registerErr        error
	libVersionFunc     func() (uint64, error)
	listAllDomainsFunc func() ([]hypervisor.Domain, error)
	lookupDomainFunc   func(name string) (hypervisor.Domain, error)
	domainStateFunc    func(d hypervisor.Domain) (int32, int32, error)
	domainInfoFunc     func(d hypervisor.Domain) (hypervisor.DomainInfo, error)
	autostartFunc      func(d hypervisor.Domain) (bool, error)
	domainXMLFunc      func(d hypervisor.Domain, secure bool) (string, error)

	// If set, delivered to a new registration before EventRegisterAny
	// returns its id.
	earlyEvent hypervisor.Event

	// Call tracking
	closeCalls     int
	keepaliveCalls []time.Duration
}

func newMockConn(id uint64) *mockConn {
	return &mockConn{
		id:   id,
		done: make(chan struct{}),
		regs: make(map[int]*mockRegistration),
		libVersionFunc: func() (uint64, error) {
			return 10_001_002, nil
		},
		listAllDomainsFunc: func() ([]hypervisor.Domain, error) { return nil, nil },
		lookupDomainFunc: func(name string) (hypervisor.Domain, error) {
			return hypervisor.Domain{}, errors.New("domain not found")
		},
		domainStateFunc: func(hypervisor.Domain) (int32, int32, error) { return 1, 1, nil },
		domainInfoFunc: func(hypervisor.Domain) (hypervisor.DomainInfo, error) {
			return hypervisor.DomainInfo{State: 1, MaxMemKiB: 2097152, MemoryKiB: 2097152, VCPUs: 2}, nil
		},
		autostartFunc: func(hypervisor.Domain) (bool, error) { return false, nil },
		domainXMLFunc: func(hypervisor.Domain, bool) (string, error) { return "<domain/>", nil },
	}
}

func (m *mockConn) ID() uint64 { return m.id }

func (m *mockConn) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *mockConn) Done() <-chan struct{} { return m.done }

func (m *mockConn) EventRegisterAny(kind hypervisor.EventKind, resource *uuid.UUID, cb hypervisor.EventCallback, opaque any, free event.FreeCallback) (int, error) {
	m.mu.Lock()
	if m.registerErr != nil {
		m.mu.Unlock()
		return -1, m.registerErr
	}
	if m.closed {
		m.mu.Unlock()
		return -1, hypervisor.ErrConnClosed
	}
	m.lastReg++
	id := m.lastReg
	m.regs[id] = &mockRegistration{kind: kind, resource: resource, cb: cb, opaque: opaque, free: free}
	early := m.earlyEvent
	m.mu.Unlock()

	if early != nil {
		cb(nil, early, opaque)
	}
	return id, nil
}

func (m *mockConn) EventDeregisterAny(id int) error {
	m.mu.Lock()
	reg, ok := m.regs[id]
	delete(m.regs, id)
	m.mu.Unlock()

	if !ok {
		return hypervisor.ErrUnknownCallback
	}
	if reg.free != nil {
		reg.free(reg.opaque)
	}
	return nil
}

func (m *mockConn) RegisterCloseCallback(cb hypervisor.CloseCallback, opaque any, _ event.FreeCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeCb != nil {
		return hypervisor.ErrCloseCallbackExists
	}
	m.closeCb, m.closeOp = cb, opaque
	return nil
}

func (m *mockConn) UnregisterCloseCallback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeCb == nil {
		return hypervisor.ErrNoCloseCallback
	}
	m.closeCb, m.closeOp = nil, nil
	return nil
}

func (m *mockConn) SetKeepAlive(interval time.Duration, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if count < 0 {
		return errors.New("bad count")
	}
	m.keepaliveCalls = append(m.keepaliveCalls, interval)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	m.closeCalls++
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	regs := m.regs
	m.regs = make(map[int]*mockRegistration)
	cb, opaque := m.closeCb, m.closeOp
	m.closeCb, m.closeOp = nil, nil
	m.mu.Unlock()

	for _, reg := range regs {
		if reg.free != nil {
			reg.free(reg.opaque)
		}
	}
	if cb != nil {
		cb(nil, hypervisor.CloseReasonClient, opaque)
	}
	return nil
}

func (m *mockConn) LibVersion() (uint64, error) { return m.libVersionFunc() }

func (m *mockConn) Hostname() (string, error) { return "hv1", nil }

func (m *mockConn) URI() (string, error) { return "qemu:///system", nil }

func (m *mockConn) ListAllDomains() ([]hypervisor.Domain, error) { return m.listAllDomainsFunc() }

func (m *mockConn) LookupDomain(name string) (hypervisor.Domain, error) {
	return m.lookupDomainFunc(name)
}

func (m *mockConn) DomainState(d hypervisor.Domain) (int32, int32, error) {
	return m.domainStateFunc(d)
}

func (m *mockConn) DomainInfo(d hypervisor.Domain) (hypervisor.DomainInfo, error) {
	return m.domainInfoFunc(d)
}

func (m *mockConn) DomainAutostart(d hypervisor.Domain) (bool, error) {
	return m.autostartFunc(d)
}

func (m *mockConn) DomainXML(d hypervisor.Domain, secure bool) (string, error) {
	return m.domainXMLFunc(d, secure)
}

// emit calls every registration that matches ev, like the native
// dispatcher. It returns the number of callbacks invoked.
func (m *mockConn) emit(ev hypervisor.Event) int {
	m.mu.Lock()
	var matched []*mockRegistration
	for _, reg := range m.regs {
		if reg.kind != ev.Kind() {
			continue
		}
		if reg.resource != nil && *reg.resource != ev.Resource() {
			continue
		}
		matched = append(matched, reg)
	}
	m.mu.Unlock()

	for _, reg := range matched {
		reg.cb(nil, ev, reg.opaque)
	}
	return len(matched)
}

func (m *mockConn) registration(id int) *mockRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[id]
}
