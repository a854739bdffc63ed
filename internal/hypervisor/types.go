package hypervisor

import (
	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
)

// Domain identifies a domain on the connection.
type Domain struct {
	Name string
	UUID uuid.UUID
	ID   int32
}

func domainFromRPC(d libvirt.Domain) Domain {
	return Domain{Name: d.Name, UUID: uuid.UUID(d.UUID), ID: d.ID}
}

func (d Domain) rpc() libvirt.Domain {
	return libvirt.Domain{Name: d.Name, UUID: libvirt.UUID(d.UUID), ID: d.ID}
}

// Network identifies a virtual network.
type Network struct {
	Name string
	UUID uuid.UUID
}

// StoragePool identifies a storage pool.
type StoragePool struct {
	Name string
	UUID uuid.UUID
}

// DomainInfo is the result of DomainGetInfo.
type DomainInfo struct {
	State     uint8
	MaxMemKiB uint64
	MemoryKiB uint64
	VCPUs     uint16
	CPUTimeNs uint64
}
