package hypervisor

import (
	"context"
	"errors"
	"sync"

	"github.com/digitalocean/go-libvirt"
)

// mockRPC is a mock implementation of the RPC interface for testing.
type mockRPC struct {
	mu sync.Mutex

	// Configurable behavior
	connectGetLibVersionFunc  func() (uint64, error)
	connectGetHostnameFunc    func() (string, error)
	connectGetUriFunc         func() (string, error)
	connectListAllDomainsFunc func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	domainLookupByNameFunc    func(name string) (libvirt.Domain, error)
	domainGetStateFunc        func(dom libvirt.Domain, flags uint32) (int32, int32, error)
	domainGetInfoFunc         func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	domainGetAutostartFunc    func(dom libvirt.Domain) (int32, error)
	domainGetXMLDescFunc      func(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)
	disconnectFunc            func() error

	// Call tracking
	connectGetLibVersionCalls int
	domainGetXMLDescCalls     []libvirt.DomainXMLFlags
	disconnectCalls           int
}

// newMockRPC creates a mock RPC connection where every call succeeds.
func newMockRPC() *mockRPC {
	return &mockRPC{
		connectGetLibVersionFunc: func() (uint64, error) { return 10_000_000, nil },
		connectGetHostnameFunc:   func() (string, error) { return "hv1", nil },
		connectGetUriFunc:        func() (string, error) { return "qemu:///system", nil },
		connectListAllDomainsFunc: func(int32, libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
			return nil, 0, nil
		},
		domainLookupByNameFunc: func(name string) (libvirt.Domain, error) {
			return libvirt.Domain{}, errors.New("domain not found")
		},
		domainGetStateFunc: func(libvirt.Domain, uint32) (int32, int32, error) { return 1, 1, nil },
		domainGetInfoFunc: func(libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
			return 1, 2097152, 2097152, 2, 0, nil
		},
		domainGetAutostartFunc: func(libvirt.Domain) (int32, error) { return 0, nil },
		domainGetXMLDescFunc: func(libvirt.Domain, libvirt.DomainXMLFlags) (string, error) {
			return "<domain/>", nil
		},
		disconnectFunc: func() error { return nil },
	}
}

func (m *mockRPC) ConnectGetLibVersion() (uint64, error) {
	m.mu.Lock()
	m.connectGetLibVersionCalls++
	fn := m.connectGetLibVersionFunc
	m.mu.Unlock()
	return fn()
}

func (m *mockRPC) ConnectGetHostname() (string, error) {
	return m.connectGetHostnameFunc()
}

func (m *mockRPC) ConnectGetUri() (string, error) {
	return m.connectGetUriFunc()
}

func (m *mockRPC) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	return m.connectListAllDomainsFunc(needResults, flags)
}

func (m *mockRPC) DomainLookupByName(name string) (libvirt.Domain, error) {
	return m.domainLookupByNameFunc(name)
}

func (m *mockRPC) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	return m.domainGetStateFunc(dom, flags)
}

func (m *mockRPC) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	return m.domainGetInfoFunc(dom)
}

func (m *mockRPC) DomainGetAutostart(dom libvirt.Domain) (int32, error) {
	return m.domainGetAutostartFunc(dom)
}

func (m *mockRPC) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	m.domainGetXMLDescCalls = append(m.domainGetXMLDescCalls, flags)
	m.mu.Unlock()
	return m.domainGetXMLDescFunc(dom, flags)
}

func (m *mockRPC) Disconnect() error {
	m.mu.Lock()
	m.disconnectCalls++
	m.mu.Unlock()
	return m.disconnectFunc()
}

// notifyingRPC adds a disconnect notification channel to mockRPC.
type notifyingRPC struct {
	*mockRPC
	disconnected chan struct{}
}

func (n *notifyingRPC) Disconnected() <-chan struct{} {
	return n.disconnected
}

// fakeSource hands out one channel per subscribed kind and closes it when
// the subscription is cancelled.
type fakeSource struct {
	mu           sync.Mutex
	chans        map[EventKind]chan Event
	cancelled    map[EventKind]int
	subscribeErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		chans:     make(map[EventKind]chan Event),
		cancelled: make(map[EventKind]int),
	}
}

func (f *fakeSource) Subscribe(ctx context.Context, kind EventKind) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	ch := make(chan Event, 16)
	f.chans[kind] = ch
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.chans[kind] == ch {
			delete(f.chans, kind)
		}
		f.cancelled[kind]++
		close(ch)
	}()
	return ch, nil
}

// emit sends ev to the subscriber of its kind. It reports whether anyone
// was subscribed.
func (f *fakeSource) emit(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, ok := f.chans[ev.Kind()]
	if !ok {
		return false
	}
	ch <- ev
	return true
}

func (f *fakeSource) cancelCount(kind EventKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[kind]
}
