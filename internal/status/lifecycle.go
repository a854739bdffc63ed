package status

import (
	"fmt"

	"github.com/jbweber/virtloop/api/v1alpha1"
)

// Lifecycle event codes (virDomainEventType).
const (
	EventDefined int32 = iota
	EventUndefined
	EventStarted
	EventSuspended
	EventResumed
	EventStopped
	EventShutdown
	EventPMSuspended
	EventCrashed
)

var eventNames = []string{
	"Defined", "Undefined", "Started", "Suspended", "Resumed",
	"Stopped", "Shutdown", "PMSuspended", "Crashed",
}

// Detail names per event, indexed by detail code.
var detailNames = map[int32][]string{
	EventDefined:     {"Added", "Updated", "Renamed", "FromSnapshot"},
	EventUndefined:   {"Removed", "Renamed"},
	EventStarted:     {"Booted", "Migrated", "Restored", "FromSnapshot", "Wakeup"},
	EventSuspended:   {"Paused", "Migrated", "IOError", "Watchdog", "Restored", "FromSnapshot", "APIError", "PostCopy", "PostCopyFailed"},
	EventResumed:     {"Unpaused", "Migrated", "FromSnapshot", "PostCopy", "PostCopyFailed"},
	EventStopped:     {"Shutdown", "Destroyed", "Crashed", "Migrated", "Saved", "Failed", "FromSnapshot"},
	EventShutdown:    {"Finished", "Guest", "Host"},
	EventPMSuspended: {"Memory", "Disk"},
	EventCrashed:     {"Panicked", "CrashLoaded"},
}

// LifecycleEventName returns the name of a lifecycle event code.
func LifecycleEventName(event int32) string {
	if event >= 0 && int(event) < len(eventNames) {
		return eventNames[event]
	}
	return fmt.Sprintf("Unknown(%d)", event)
}

// LifecycleDetailName returns the name of a detail code for an event.
func LifecycleDetailName(event, detail int32) string {
	names := detailNames[event]
	if detail >= 0 && int(detail) < len(names) {
		return names[detail]
	}
	return fmt.Sprintf("Unknown(%d)", detail)
}

// StateName converts a libvirt domain state to a human-readable string.
func StateName(state int32) string {
	switch state {
	case 0:
		return "no state"
	case 1:
		return "running"
	case 2:
		return "blocked"
	case 3:
		return "paused"
	case 4:
		return "shutdown"
	case 5:
		return "shutoff"
	case 6:
		return "crashed"
	case 7:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// PhaseForState maps a libvirt domain state to a phase.
func PhaseForState(state int32) v1alpha1.DomainPhase {
	switch state {
	case 1, 2:
		return v1alpha1.DomainPhaseRunning
	case 3, 7:
		return v1alpha1.DomainPhasePaused
	case 4:
		return v1alpha1.DomainPhaseStopping
	case 5:
		return v1alpha1.DomainPhaseStopped
	case 6:
		return v1alpha1.DomainPhaseFailed
	default:
		return v1alpha1.DomainPhasePending
	}
}

// PhaseForLifecycle maps a lifecycle event to the phase it leaves the domain
// in.
func PhaseForLifecycle(event int32) v1alpha1.DomainPhase {
	switch event {
	case EventStarted, EventResumed:
		return v1alpha1.DomainPhaseRunning
	case EventSuspended, EventPMSuspended:
		return v1alpha1.DomainPhasePaused
	case EventShutdown:
		return v1alpha1.DomainPhaseStopping
	case EventStopped:
		return v1alpha1.DomainPhaseStopped
	case EventCrashed:
		return v1alpha1.DomainPhaseFailed
	case EventUndefined:
		return v1alpha1.DomainPhaseDeleted
	default:
		return v1alpha1.DomainPhasePending
	}
}

// IsTerminal returns true if the domain won't change phase on its own.
func IsTerminal(phase v1alpha1.DomainPhase) bool {
	return phase == v1alpha1.DomainPhaseStopped ||
		phase == v1alpha1.DomainPhaseFailed ||
		phase == v1alpha1.DomainPhaseDeleted
}

// ApplyState records a polled libvirt state on d.
func ApplyState(d *v1alpha1.Domain, state int32) {
	d.Status.State = StateName(state)
	d.SetPhase(PhaseForState(state))
	setReady(d, "State", "domain is "+d.Status.State)
}

// ApplyLifecycleEvent records a lifecycle event on d. A Defined event only
// moves domains that are not already known to be past Pending, since
// redefining a running domain does not stop it.
func ApplyLifecycleEvent(d *v1alpha1.Domain, event, detail int32) {
	name := LifecycleEventName(event)
	detailName := LifecycleDetailName(event, detail)
	d.Status.LastEvent = name + "/" + detailName

	phase := d.GetPhase()
	if event != EventDefined || phase == "" || phase == v1alpha1.DomainPhaseDeleted {
		d.SetPhase(PhaseForLifecycle(event))
	}
	d.Bump()
	setReady(d, name, fmt.Sprintf("domain %s (%s)", name, detailName))
}

var networkEventNames = []string{"Defined", "Undefined", "Started", "Stopped"}

var poolEventNames = []string{"Defined", "Undefined", "Started", "Stopped", "Created", "Deleted"}

// NetworkEventName returns the name of a network lifecycle event code.
func NetworkEventName(event int32) string {
	if event >= 0 && int(event) < len(networkEventNames) {
		return networkEventNames[event]
	}
	return fmt.Sprintf("Unknown(%d)", event)
}

// StoragePoolEventName returns the name of a storage pool lifecycle event
// code.
func StoragePoolEventName(event int32) string {
	if event >= 0 && int(event) < len(poolEventNames) {
		return poolEventNames[event]
	}
	return fmt.Sprintf("Unknown(%d)", event)
}
