package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jbweber/virtloop/api/v1alpha1"
	"github.com/jbweber/virtloop/internal/libvirt"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatDomain formats a single Domain as JSON.
func (f *JSONFormatter) FormatDomain(d *v1alpha1.Domain) (string, error) {
	d.SetDefaultAPIVersion()
	return marshalIndent(d, "domain")
}

// FormatDomainList formats a list of Domains as a JSON object with an items
// array, like a Kubernetes List:
//
//	{
//	  "apiVersion": "virtloop.cofront.xyz/v1alpha1",
//	  "kind": "DomainList",
//	  "items": [...]
//	}
func (f *JSONFormatter) FormatDomainList(ds []*v1alpha1.Domain) (string, error) {
	for _, d := range ds {
		d.SetDefaultAPIVersion()
	}
	if ds == nil {
		ds = []*v1alpha1.Domain{}
	}

	wrapper := map[string]interface{}{
		"apiVersion": v1alpha1.GroupName + "/" + v1alpha1.Version,
		"kind":       v1alpha1.DomainKind + "List",
		"items":      ds,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(wrapper); err != nil {
		return "", fmt.Errorf("failed to marshal domain list to JSON: %w", err)
	}
	return buf.String(), nil
}

// FormatEvent formats an event as a single line of JSON, so a stream of
// events is newline-delimited JSON.
func (f *JSONFormatter) FormatEvent(ev *v1alpha1.DomainEvent) (string, error) {
	ev.SetDefaultAPIVersion()
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatDescription formats a domain description as JSON.
func (f *JSONFormatter) FormatDescription(desc *libvirt.DomainDescription) (string, error) {
	return marshalIndent(desc, "description")
}

func marshalIndent(v any, what string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}
