package libvirt

import (
	"fmt"
	"strings"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtloop/api/v1alpha1"
	"github.com/jbweber/virtloop/internal/hypervisor"
	"github.com/jbweber/virtloop/internal/status"
)

// ListDomains returns every domain, active and inactive, with its current
// state. Domains whose info can't be read are skipped.
func (c *Client) ListDomains() ([]*v1alpha1.Domain, error) {
	domains, err := c.conn.ListAllDomains()
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	out := make([]*v1alpha1.Domain, 0, len(domains))
	for _, dom := range domains {
		d, err := c.observe(dom)
		if err != nil {
			c.log.Warn().Err(err).Str("domain", dom.Name).Msg("skipping domain")
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// GetDomain returns the named domain with its current state.
func (c *Client) GetDomain(name string) (*v1alpha1.Domain, error) {
	dom, err := c.conn.LookupDomain(name)
	if err != nil {
		return nil, err
	}
	return c.observe(dom)
}

// LookupDomain resolves a domain name to its identity.
func (c *Client) LookupDomain(name string) (hypervisor.Domain, error) {
	return c.conn.LookupDomain(name)
}

// observe reads state, info and autostart for one domain.
func (c *Client) observe(dom hypervisor.Domain) (*v1alpha1.Domain, error) {
	state, _, err := c.conn.DomainState(dom)
	if err != nil {
		return nil, fmt.Errorf("failed to get domain state: %w", err)
	}

	info, err := c.conn.DomainInfo(dom)
	if err != nil {
		return nil, fmt.Errorf("failed to get domain info: %w", err)
	}

	autostart, err := c.conn.DomainAutostart(dom)
	if err != nil {
		c.log.Warn().Err(err).Str("domain", dom.Name).Msg("failed to get autostart")
		autostart = false
	}

	if int32(info.State) != state {
		c.log.Warn().
			Str("domain", dom.Name).
			Int32("get_state", state).
			Uint8("get_info", info.State).
			Msg("state mismatch")
	}

	d := v1alpha1.NewDomain(dom.Name, dom.UUID)
	d.Status.VCPUs = int(info.VCPUs)
	d.Status.MemoryMiB = info.MemoryKiB / 1024
	d.Status.Autostart = autostart
	status.ApplyState(d, state)
	return d, nil
}

// DomainDescription is the static configuration of a domain, read from its
// XML.
type DomainDescription struct {
	Name       string      `json:"name" yaml:"name"`
	UUID       string      `json:"uuid" yaml:"uuid"`
	Type       string      `json:"type,omitempty" yaml:"type,omitempty"`
	Arch       string      `json:"arch,omitempty" yaml:"arch,omitempty"`
	Machine    string      `json:"machine,omitempty" yaml:"machine,omitempty"`
	VCPUs      uint        `json:"vcpus" yaml:"vcpus"`
	MemoryKiB  uint64      `json:"memoryKiB" yaml:"memoryKiB"`
	Disks      []Disk      `json:"disks,omitempty" yaml:"disks,omitempty"`
	Interfaces []Interface `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
}

// Disk is one disk device.
type Disk struct {
	Device string `json:"device" yaml:"device"` // disk, cdrom, ...
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Bus    string `json:"bus,omitempty" yaml:"bus,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// Source is a file path, block device, or "pool/volume".
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Interface is one network interface.
type Interface struct {
	MAC     string `json:"mac,omitempty" yaml:"mac,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	Bridge  string `json:"bridge,omitempty" yaml:"bridge,omitempty"`
	Network string `json:"network,omitempty" yaml:"network,omitempty"`
	Target  string `json:"target,omitempty" yaml:"target,omitempty"`
}

// DescribeDomain reads the configuration of the named domain.
func (c *Client) DescribeDomain(name string) (*DomainDescription, error) {
	dom, err := c.conn.LookupDomain(name)
	if err != nil {
		return nil, err
	}
	xml, err := c.conn.DomainXML(dom, false)
	if err != nil {
		return nil, err
	}
	return ParseDomainXML(xml)
}

// ParseDomainXML extracts a DomainDescription from libvirt domain XML.
func ParseDomainXML(xml string) (*DomainDescription, error) {
	var dom libvirtxml.Domain
	if err := dom.Unmarshal(xml); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}

	desc := &DomainDescription{
		Name: dom.Name,
		UUID: dom.UUID,
		Type: dom.Type,
	}
	if dom.VCPU != nil {
		desc.VCPUs = dom.VCPU.Value
	}
	if dom.Memory != nil {
		kib, err := toKiB(uint64(dom.Memory.Value), dom.Memory.Unit)
		if err != nil {
			return nil, err
		}
		desc.MemoryKiB = kib
	}
	if dom.OS != nil && dom.OS.Type != nil {
		desc.Arch = dom.OS.Type.Arch
		desc.Machine = dom.OS.Type.Machine
	}
	if dom.Devices == nil {
		return desc, nil
	}

	for _, d := range dom.Devices.Disks {
		disk := Disk{Device: d.Device}
		if disk.Device == "" {
			disk.Device = "disk"
		}
		if d.Target != nil {
			disk.Target = d.Target.Dev
			disk.Bus = d.Target.Bus
		}
		if d.Driver != nil {
			disk.Format = d.Driver.Type
		}
		if src := d.Source; src != nil {
			switch {
			case src.File != nil:
				disk.Source = src.File.File
			case src.Block != nil:
				disk.Source = src.Block.Dev
			case src.Volume != nil:
				disk.Source = src.Volume.Pool + "/" + src.Volume.Volume
			}
		}
		desc.Disks = append(desc.Disks, disk)
	}

	for _, i := range dom.Devices.Interfaces {
		var iface Interface
		if i.MAC != nil {
			iface.MAC = i.MAC.Address
		}
		if i.Model != nil {
			iface.Model = i.Model.Type
		}
		if i.Target != nil {
			iface.Target = i.Target.Dev
		}
		if src := i.Source; src != nil {
			switch {
			case src.Bridge != nil:
				iface.Bridge = src.Bridge.Bridge
			case src.Network != nil:
				iface.Network = src.Network.Network
				iface.Bridge = src.Network.Bridge
			}
		}
		desc.Interfaces = append(desc.Interfaces, iface)
	}

	return desc, nil
}

// toKiB converts a libvirt memory value to KiB. An empty unit means KiB.
func toKiB(value uint64, unit string) (uint64, error) {
	switch strings.ToLower(unit) {
	case "", "k", "kib":
		return value, nil
	case "b", "bytes":
		return value / 1024, nil
	case "kb":
		return value * 1000 / 1024, nil
	case "m", "mib":
		return value * 1024, nil
	case "mb":
		return value * 1000 * 1000 / 1024, nil
	case "g", "gib":
		return value * 1024 * 1024, nil
	case "gb":
		return value * 1000 * 1000 * 1000 / 1024, nil
	case "t", "tib":
		return value * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("unknown memory unit %q", unit)
	}
}
