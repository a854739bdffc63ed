package v1alpha1

import (
	"github.com/google/uuid"
)

const (
	// GroupName is the API group for virtloop resources.
	GroupName = "virtloop.cofront.xyz"

	// Version is the API version.
	Version = "v1alpha1"

	// DomainKind is the kind string for Domain resources.
	DomainKind = "Domain"

	// DomainEventKind is the kind string for DomainEvent resources.
	DomainEventKind = "DomainEvent"
)

func typeMeta(kind string) TypeMeta {
	return TypeMeta{APIVersion: GroupName + "/" + Version, Kind: kind}
}

// NewDomain returns a Domain for the given name and libvirt UUID, first
// observed now, in the Pending phase.
func NewDomain(name string, id uuid.UUID) *Domain {
	return &Domain{
		TypeMeta: typeMeta(DomainKind),
		ObjectMeta: ObjectMeta{
			Name:              name,
			UID:               id.String(),
			CreationTimestamp: Now(),
			Generation:        1,
		},
		Status: DomainStatus{
			Phase: DomainPhasePending,
		},
	}
}

// NewDomainEvent returns a DomainEvent with a random UID, timestamped now.
func NewDomainEvent(seq uint64, domain DomainReference, kind string) *DomainEvent {
	id := uuid.New()
	return &DomainEvent{
		TypeMeta: typeMeta(DomainEventKind),
		ObjectMeta: ObjectMeta{
			Name:              domain.Name + "." + id.String()[:8],
			UID:               id.String(),
			CreationTimestamp: Now(),
		},
		Spec: DomainEventSpec{
			Sequence: seq,
			Domain:   domain,
			Kind:     kind,
		},
	}
}

// SetPhase sets the domain phase in status.
func (d *Domain) SetPhase(phase DomainPhase) {
	d.Status.Phase = phase
}

// GetPhase returns the current domain phase.
func (d *Domain) GetPhase() DomainPhase {
	return d.Status.Phase
}

// Bump records an observed change.
func (d *Domain) Bump() {
	d.Generation++
	d.Status.ObservedGeneration = d.Generation
}

// SetDefaultAPIVersion fills in TypeMeta if it is empty.
func (d *Domain) SetDefaultAPIVersion() {
	if d.APIVersion == "" {
		d.APIVersion = GroupName + "/" + Version
	}
	if d.Kind == "" {
		d.Kind = DomainKind
	}
}

// SetDefaultAPIVersion fills in TypeMeta if it is empty.
func (e *DomainEvent) SetDefaultAPIVersion() {
	if e.APIVersion == "" {
		e.APIVersion = GroupName + "/" + Version
	}
	if e.Kind == "" {
		e.Kind = DomainEventKind
	}
}
