// Package status derives Domain status from libvirt states and lifecycle
// events, and manages status conditions.
package status

import (
	"github.com/jbweber/virtloop/api/v1alpha1"
)

// ConditionReady is True while the domain is running.
const ConditionReady = "Ready"

// SetCondition adds or updates a condition in the domain status.
// The LastTransitionTime is only updated if the status changes.
func SetCondition(d *v1alpha1.Domain, condType string, status v1alpha1.ConditionStatus, reason, message string) {
	now := v1alpha1.Now()

	for i := range d.Status.Conditions {
		existing := &d.Status.Conditions[i]
		if existing.Type != condType {
			continue
		}
		if existing.Status != status {
			existing.LastTransitionTime = now
		}
		existing.Status = status
		existing.Reason = reason
		existing.Message = message
		existing.ObservedGeneration = d.Generation
		return
	}

	d.Status.Conditions = append(d.Status.Conditions, v1alpha1.Condition{
		Type:               condType,
		Status:             status,
		ObservedGeneration: d.Generation,
		LastTransitionTime: now,
		Reason:             reason,
		Message:            message,
	})
}

// GetCondition returns a condition by type, or nil if not found.
func GetCondition(d *v1alpha1.Domain, condType string) *v1alpha1.Condition {
	for i := range d.Status.Conditions {
		if d.Status.Conditions[i].Type == condType {
			return &d.Status.Conditions[i]
		}
	}
	return nil
}

// IsConditionTrue returns true if the condition exists and has status True.
func IsConditionTrue(d *v1alpha1.Domain, condType string) bool {
	cond := GetCondition(d, condType)
	return cond != nil && cond.Status == v1alpha1.ConditionTrue
}

// RemoveCondition removes a condition by type.
func RemoveCondition(d *v1alpha1.Domain, condType string) {
	filtered := d.Status.Conditions[:0]
	for _, c := range d.Status.Conditions {
		if c.Type != condType {
			filtered = append(filtered, c)
		}
	}
	d.Status.Conditions = filtered
}

// setReady keeps the Ready condition in line with the phase.
func setReady(d *v1alpha1.Domain, reason, message string) {
	if d.Status.Phase == v1alpha1.DomainPhaseRunning {
		SetCondition(d, ConditionReady, v1alpha1.ConditionTrue, reason, message)
		return
	}
	SetCondition(d, ConditionReady, v1alpha1.ConditionFalse, reason, message)
}
