package hypervisor

import (
	"github.com/digitalocean/go-libvirt"
)

// RPC is the subset of *libvirt.Libvirt a Conn uses.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type RPC interface {
	ConnectGetLibVersion() (uint64, error)
	ConnectGetHostname() (string, error)
	ConnectGetUri() (string, error)
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainLookupByName(name string) (libvirt.Domain, error)
	DomainGetState(dom libvirt.Domain, flags uint32) (state int32, reason int32, err error)
	DomainGetInfo(dom libvirt.Domain) (state uint8, maxMem uint64, memory uint64, nrVirtCPU uint16, cpuTime uint64, err error)
	DomainGetAutostart(dom libvirt.Domain) (int32, error)
	DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)
	Disconnect() error
}

// disconnectNotifier is implemented by RPC backends that report when the
// daemon drops the connection.
type disconnectNotifier interface {
	Disconnected() <-chan struct{}
}
