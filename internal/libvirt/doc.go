// Package libvirt is the binding-level client for a libvirt connection.
//
// It wraps a hypervisor.Conn and routes native event callbacks back to Go
// functions through a shared callback.Registry:
//   - Connection management (connect, close, ping, keepalive)
//   - Event callback registration by kind, with typed helpers per event
//   - Close callbacks
//   - Domain listing and description from domain XML
//
// An event implementation must be registered on the hypervisor.Library
// before events can be delivered:
//
//	loop := eventloop.New()
//	bridge := eventloop.NewBridge(loop)
//	if err := bridge.Register(lib); err != nil {
//	    return err
//	}
//
//	client, err := libvirt.Connect(ctx, lib, registry, "", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	id, err := client.RegisterDomainLifecycle(nil, nil, func(c *libvirt.Client, ev hypervisor.DomainLifecycleEvent, _ any) {
//	    fmt.Println(ev.Domain.Name, status.LifecycleEventName(ev.Event))
//	})
//
// Each registration holds a registry token. The native side owns the
// token until it calls the free callback, which happens when the
// registration is removed or the connection closes.
package libvirt
