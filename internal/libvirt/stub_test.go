package libvirt

import (
	"context"
	"errors"

	golibvirt "github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtloop/internal/hypervisor"
)

// stubRPC is a daemon that answers every call and has no domains.
type stubRPC struct{}

func (stubRPC) ConnectGetLibVersion() (uint64, error) { return 10_001_002, nil }
func (stubRPC) ConnectGetHostname() (string, error)   { return "hv1", nil }
func (stubRPC) ConnectGetUri() (string, error)        { return "qemu:///system", nil }

func (stubRPC) ConnectListAllDomains(int32, golibvirt.ConnectListAllDomainsFlags) ([]golibvirt.Domain, uint32, error) {
	return nil, 0, nil
}

func (stubRPC) DomainLookupByName(string) (golibvirt.Domain, error) {
	return golibvirt.Domain{}, errors.New("domain not found")
}

func (stubRPC) DomainGetState(golibvirt.Domain, uint32) (int32, int32, error) { return 5, 0, nil }

func (stubRPC) DomainGetInfo(golibvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	return 5, 0, 0, 0, 0, nil
}

func (stubRPC) DomainGetAutostart(golibvirt.Domain) (int32, error) { return 0, nil }

func (stubRPC) DomainGetXMLDesc(golibvirt.Domain, golibvirt.DomainXMLFlags) (string, error) {
	return "<domain/>", nil
}

func (stubRPC) Disconnect() error { return nil }

// chanSource forwards events sent on ch to whichever kind subscribes.
type chanSource struct {
	ch chan hypervisor.Event
}

func (s *chanSource) Subscribe(ctx context.Context, _ hypervisor.EventKind) (<-chan hypervisor.Event, error) {
	out := make(chan hypervisor.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
