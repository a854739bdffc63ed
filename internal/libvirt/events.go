package libvirt

import (
	"github.com/google/uuid"

	"github.com/jbweber/virtloop/internal/hypervisor"
)

// DomainLifecycleFunc receives domain lifecycle events.
type DomainLifecycleFunc func(c *Client, ev hypervisor.DomainLifecycleEvent, opaque any)

// DomainRebootFunc receives domain reboot events.
type DomainRebootFunc func(c *Client, ev hypervisor.DomainRebootEvent, opaque any)

// NetworkLifecycleFunc receives network lifecycle events.
type NetworkLifecycleFunc func(c *Client, ev hypervisor.NetworkLifecycleEvent, opaque any)

// StoragePoolLifecycleFunc receives storage pool lifecycle events.
type StoragePoolLifecycleFunc func(c *Client, ev hypervisor.StoragePoolLifecycleEvent, opaque any)

// RegisterDomainLifecycle registers fn for lifecycle events of dom, or of
// every domain if dom is nil.
func (c *Client) RegisterDomainLifecycle(dom *hypervisor.Domain, opaque any, fn DomainLifecycleFunc) (int, error) {
	var resource *uuid.UUID
	if dom != nil {
		resource = &dom.UUID
	}
	return c.RegisterEventCallback(hypervisor.DomainLifecycle, resource, opaque, adapt(fn))
}

// RegisterDomainReboot registers fn for reboot events of dom, or of every
// domain if dom is nil.
func (c *Client) RegisterDomainReboot(dom *hypervisor.Domain, opaque any, fn DomainRebootFunc) (int, error) {
	var resource *uuid.UUID
	if dom != nil {
		resource = &dom.UUID
	}
	return c.RegisterEventCallback(hypervisor.DomainReboot, resource, opaque, adapt(fn))
}

// RegisterNetworkLifecycle registers fn for lifecycle events of net, or of
// every network if net is nil.
func (c *Client) RegisterNetworkLifecycle(net *hypervisor.Network, opaque any, fn NetworkLifecycleFunc) (int, error) {
	var resource *uuid.UUID
	if net != nil {
		resource = &net.UUID
	}
	return c.RegisterEventCallback(hypervisor.NetworkLifecycle, resource, opaque, adapt(fn))
}

// RegisterStoragePoolLifecycle registers fn for lifecycle events of pool, or
// of every pool if pool is nil.
func (c *Client) RegisterStoragePoolLifecycle(pool *hypervisor.StoragePool, opaque any, fn StoragePoolLifecycleFunc) (int, error) {
	var resource *uuid.UUID
	if pool != nil {
		resource = &pool.UUID
	}
	return c.RegisterEventCallback(hypervisor.StoragePoolLifecycle, resource, opaque, adapt(fn))
}

// adapt turns a typed callback into an EventFunc. Events of other types are
// dropped.
func adapt[E hypervisor.Event, F ~func(*Client, E, any)](fn F) EventFunc {
	if fn == nil {
		return nil
	}
	return func(c *Client, ev hypervisor.Event, opaque any) {
		if typed, ok := ev.(E); ok {
			fn(c, typed, opaque)
		}
	}
}
