package v1alpha1

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

func TestNewDomain(t *testing.T) {
	id := uuid.New()
	d := NewDomain("vm1", id)

	if d.APIVersion != "virtloop.cofront.xyz/v1alpha1" {
		t.Errorf("APIVersion = %q", d.APIVersion)
	}
	if d.Kind != DomainKind {
		t.Errorf("Kind = %q", d.Kind)
	}
	if d.UID != id.String() {
		t.Errorf("UID = %q, want %q", d.UID, id.String())
	}
	if d.GetPhase() != DomainPhasePending {
		t.Errorf("Phase = %q, want Pending", d.GetPhase())
	}
	if d.CreationTimestamp.IsZero() {
		t.Error("CreationTimestamp not set")
	}

	d.Bump()
	if d.Generation != 2 || d.Status.ObservedGeneration != 2 {
		t.Errorf("after Bump generation = %d, observed = %d", d.Generation, d.Status.ObservedGeneration)
	}
}

func TestNewDomainEvent(t *testing.T) {
	ref := DomainReference{Name: "vm1", UUID: uuid.NewString()}
	a := NewDomainEvent(1, ref, "domain-lifecycle")
	b := NewDomainEvent(2, ref, "domain-lifecycle")

	if a.UID == b.UID {
		t.Error("events share a UID")
	}
	if !strings.HasPrefix(a.Name, "vm1.") {
		t.Errorf("Name = %q, want vm1.<suffix>", a.Name)
	}
	if a.Spec.Sequence != 1 || a.Spec.Domain != ref {
		t.Errorf("Spec = %+v", a.Spec)
	}
}

func TestTimeJSON(t *testing.T) {
	ts := Time{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}

	b, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `"2025-01-02T03:04:05Z"` {
		t.Errorf("Marshal = %s", b)
	}

	var back Time
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(ts.Time) {
		t.Errorf("round trip = %v, want %v", back, ts)
	}

	zero, _ := json.Marshal(Time{})
	if string(zero) != "null" {
		t.Errorf("zero Marshal = %s, want null", zero)
	}
	if err := json.Unmarshal([]byte("null"), &back); err != nil || !back.IsZero() {
		t.Errorf("Unmarshal null = %v, %v", back, err)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &back); err == nil {
		t.Error("expected error for non-RFC3339 time")
	}
}

func TestDomainEventYAML(t *testing.T) {
	ev := NewDomainEvent(7, DomainReference{Name: "vm1", UUID: "u"}, "domain-lifecycle")
	ev.Spec.Event = "Started"
	ev.Spec.Detail = "Booted"
	ev.Spec.Phase = DomainPhaseRunning

	out, err := yaml.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(out)
	for _, want := range []string{
		"kind: DomainEvent",
		"apiVersion: virtloop.cofront.xyz/v1alpha1",
		"sequence: 7",
		"event: Started",
		"phase: Running",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("YAML missing %q:\n%s", want, s)
		}
	}

	var back DomainEvent
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Spec.Detail != "Booted" || back.CreationTimestamp.IsZero() {
		t.Errorf("Unmarshal = %+v", back)
	}
}

func TestObjectMetaDeepCopy(t *testing.T) {
	in := &ObjectMeta{Name: "a", Labels: map[string]string{"k": "v"}}
	out := in.DeepCopy()
	out.Labels["k"] = "changed"

	if in.Labels["k"] != "v" {
		t.Error("DeepCopy shares the labels map")
	}
	var nilMeta *ObjectMeta
	if nilMeta.DeepCopy() != nil {
		t.Error("DeepCopy of nil should be nil")
	}
}

func TestSetDefaultAPIVersion(t *testing.T) {
	d := &Domain{}
	d.SetDefaultAPIVersion()
	if d.APIVersion != GroupName+"/"+Version || d.Kind != DomainKind {
		t.Errorf("Domain TypeMeta = %+v", d.TypeMeta)
	}

	e := &DomainEvent{TypeMeta: TypeMeta{APIVersion: "other/v1", Kind: "Custom"}}
	e.SetDefaultAPIVersion()
	if e.APIVersion != "other/v1" || e.Kind != "Custom" {
		t.Errorf("existing TypeMeta overwritten: %+v", e.TypeMeta)
	}
}
