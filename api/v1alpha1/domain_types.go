package v1alpha1

// Domain is a libvirt domain as last observed by virtloop.
//
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="State",type=string,JSONPath=`.status.state`
type Domain struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// +optional
	Status DomainStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// DomainStatus is the observed state of a Domain.
type DomainStatus struct {
	// +optional
	Phase DomainPhase `json:"phase,omitempty" yaml:"phase,omitempty"`

	// State is the libvirt domain state name ("running", "shutoff", ...).
	// +optional
	State string `json:"state,omitempty" yaml:"state,omitempty"`

	// +optional
	VCPUs int `json:"vcpus,omitempty" yaml:"vcpus,omitempty"`

	// +optional
	MemoryMiB uint64 `json:"memoryMiB,omitempty" yaml:"memoryMiB,omitempty"`

	// +optional
	Autostart bool `json:"autostart,omitempty" yaml:"autostart,omitempty"`

	// +optional
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// LastEvent is the last lifecycle event seen, as "Event/Detail".
	// +optional
	LastEvent string `json:"lastEvent,omitempty" yaml:"lastEvent,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty" yaml:"observedGeneration,omitempty"`
}

// DomainPhase summarizes a domain's lifecycle.
type DomainPhase string

const (
	// DomainPhasePending means the domain is defined but has not run.
	DomainPhasePending DomainPhase = "Pending"

	DomainPhaseRunning  DomainPhase = "Running"
	DomainPhasePaused   DomainPhase = "Paused"
	DomainPhaseStopping DomainPhase = "Stopping"
	DomainPhaseStopped  DomainPhase = "Stopped"

	// DomainPhaseFailed means the guest crashed.
	DomainPhaseFailed DomainPhase = "Failed"

	// DomainPhaseDeleted means the domain was undefined.
	DomainPhaseDeleted DomainPhase = "Deleted"
)

// DomainEvent records one event delivered for a domain.
type DomainEvent struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec DomainEventSpec `json:"spec" yaml:"spec"`
}

// DomainEventSpec is the payload of a DomainEvent.
type DomainEventSpec struct {
	// Sequence orders events within one watch.
	Sequence uint64 `json:"sequence" yaml:"sequence"`

	Domain DomainReference `json:"domain" yaml:"domain"`

	// Kind is the event family, e.g. "domain-lifecycle".
	Kind string `json:"kind" yaml:"kind"`

	// +optional
	Event string `json:"event,omitempty" yaml:"event,omitempty"`

	// +optional
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`

	// Phase is the domain phase the event implies.
	// +optional
	Phase DomainPhase `json:"phase,omitempty" yaml:"phase,omitempty"`
}

// DomainReference identifies the domain an event is about.
type DomainReference struct {
	Name string `json:"name" yaml:"name"`
	UUID string `json:"uuid" yaml:"uuid"`
}
