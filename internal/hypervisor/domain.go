package hypervisor

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
)

func (c *Conn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	return nil
}

// LibVersion returns the daemon's libvirt version as major*1e6+minor*1e3+micro.
func (c *Conn) LibVersion() (uint64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	v, err := c.rpc.ConnectGetLibVersion()
	if err != nil {
		return 0, fmt.Errorf("failed to get libvirt version: %w", err)
	}
	return v, nil
}

// Hostname returns the hypervisor host name.
func (c *Conn) Hostname() (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	h, err := c.rpc.ConnectGetHostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	return h, nil
}

// URI returns the canonical connection URI.
func (c *Conn) URI() (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	uri, err := c.rpc.ConnectGetUri()
	if err != nil {
		return "", fmt.Errorf("failed to get URI: %w", err)
	}
	return uri, nil
}

// ListAllDomains returns every domain, active and inactive.
func (c *Conn) ListAllDomains() ([]Domain, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	// NeedResults: 1 means populate the domains slice
	// Flags: 0 means all domains (active and inactive)
	doms, _, err := c.rpc.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	out := make([]Domain, 0, len(doms))
	for _, d := range doms {
		out = append(out, domainFromRPC(d))
	}
	return out, nil
}

// LookupDomain finds a domain by name.
func (c *Conn) LookupDomain(name string) (Domain, error) {
	if err := c.checkOpen(); err != nil {
		return Domain{}, err
	}
	d, err := c.rpc.DomainLookupByName(name)
	if err != nil {
		return Domain{}, fmt.Errorf("failed to lookup domain %s: %w", name, err)
	}
	return domainFromRPC(d), nil
}

// DomainState returns the domain's state and state reason codes.
func (c *Conn) DomainState(d Domain) (state int32, reason int32, err error) {
	if err := c.checkOpen(); err != nil {
		return 0, 0, err
	}
	state, reason, err = c.rpc.DomainGetState(d.rpc(), 0)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get state of %s: %w", d.Name, err)
	}
	return state, reason, nil
}

// DomainInfo returns resource information for a domain.
func (c *Conn) DomainInfo(d Domain) (DomainInfo, error) {
	if err := c.checkOpen(); err != nil {
		return DomainInfo{}, err
	}
	state, maxMem, memory, vcpus, cpuTime, err := c.rpc.DomainGetInfo(d.rpc())
	if err != nil {
		return DomainInfo{}, fmt.Errorf("failed to get info for %s: %w", d.Name, err)
	}
	return DomainInfo{
		State:     state,
		MaxMemKiB: maxMem,
		MemoryKiB: memory,
		VCPUs:     vcpus,
		CPUTimeNs: cpuTime,
	}, nil
}

// DomainAutostart reports whether the domain starts with the host.
func (c *Conn) DomainAutostart(d Domain) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	v, err := c.rpc.DomainGetAutostart(d.rpc())
	if err != nil {
		return false, fmt.Errorf("failed to get autostart for %s: %w", d.Name, err)
	}
	return v != 0, nil
}

// DomainXML returns the domain's live XML description. Secure fields are
// only included when secure is set.
func (c *Conn) DomainXML(d Domain, secure bool) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	var flags libvirt.DomainXMLFlags
	if secure {
		flags |= libvirt.DomainXMLSecure
	}
	xml, err := c.rpc.DomainGetXMLDesc(d.rpc(), flags)
	if err != nil {
		return "", fmt.Errorf("failed to get XML for %s: %w", d.Name, err)
	}
	return xml, nil
}
