package hypervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
)

// EventKind selects the family of events a registration receives.
type EventKind int

const (
	DomainLifecycle EventKind = iota
	DomainReboot
	NetworkLifecycle
	StoragePoolLifecycle
)

var eventKindNames = map[EventKind]string{
	DomainLifecycle:      "domain-lifecycle",
	DomainReboot:         "domain-reboot",
	NetworkLifecycle:     "network-lifecycle",
	StoragePoolLifecycle: "pool-lifecycle",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	_, ok := eventKindNames[k]
	return ok
}

// ParseEventKind converts a kind name, as printed by String, back to an
// EventKind. "lifecycle" and "reboot" are accepted for the domain kinds.
func ParseEventKind(s string) (EventKind, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "lifecycle":
		return DomainLifecycle, nil
	case "reboot":
		return DomainReboot, nil
	}
	for k, name := range eventKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedEventKind, s)
}

// Event is a payload delivered to registered callbacks.
type Event interface {
	Kind() EventKind
	// Resource is the UUID of the object the event is about.
	Resource() uuid.UUID
}

// DomainLifecycleEvent reports a domain state change. Event and Detail carry
// the libvirt virDomainEventType and per-type detail codes.
type DomainLifecycleEvent struct {
	Domain Domain
	Event  int32
	Detail int32
}

func (DomainLifecycleEvent) Kind() EventKind       { return DomainLifecycle }
func (e DomainLifecycleEvent) Resource() uuid.UUID { return e.Domain.UUID }

// DomainRebootEvent reports a guest reboot.
type DomainRebootEvent struct {
	Domain Domain
}

func (DomainRebootEvent) Kind() EventKind       { return DomainReboot }
func (e DomainRebootEvent) Resource() uuid.UUID { return e.Domain.UUID }

// NetworkLifecycleEvent reports a network state change.
type NetworkLifecycleEvent struct {
	Network Network
	Event   int32
	Detail  int32
}

func (NetworkLifecycleEvent) Kind() EventKind       { return NetworkLifecycle }
func (e NetworkLifecycleEvent) Resource() uuid.UUID { return e.Network.UUID }

// StoragePoolLifecycleEvent reports a storage pool state change.
type StoragePoolLifecycleEvent struct {
	Pool   StoragePool
	Event  int32
	Detail int32
}

func (StoragePoolLifecycleEvent) Kind() EventKind       { return StoragePoolLifecycle }
func (e StoragePoolLifecycleEvent) Resource() uuid.UUID { return e.Pool.UUID }

// EventSource produces events of one kind until ctx is cancelled, at which
// point the returned channel is closed.
type EventSource interface {
	Subscribe(ctx context.Context, kind EventKind) (<-chan Event, error)
}

// lifecycleSubscriber is the go-libvirt event stream API.
type lifecycleSubscriber interface {
	LifecycleEvents(ctx context.Context) (<-chan libvirt.DomainEventLifecycleMsg, error)
}

// rpcEventSource adapts go-libvirt's domain lifecycle stream. go-libvirt does
// not expose typed streams for the other kinds.
type rpcEventSource struct {
	lv lifecycleSubscriber
}

func (s rpcEventSource) Subscribe(ctx context.Context, kind EventKind) (<-chan Event, error) {
	if kind != DomainLifecycle {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventKind, kind)
	}

	msgs, err := s.lv.LifecycleEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range msgs {
			ev := DomainLifecycleEvent{
				Domain: domainFromRPC(msg.Dom),
				Event:  msg.Event,
				Detail: msg.Detail,
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// noEventSource is used for RPC backends without an event stream.
type noEventSource struct{}

func (noEventSource) Subscribe(_ context.Context, kind EventKind) (<-chan Event, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventKind, kind)
}
