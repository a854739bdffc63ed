package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/virtloop/api/v1alpha1"
	"github.com/jbweber/virtloop/internal/libvirt"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatDomain formats a single Domain as YAML.
func (f *YAMLFormatter) FormatDomain(d *v1alpha1.Domain) (string, error) {
	d.SetDefaultAPIVersion()

	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain to YAML: %w", err)
	}
	return string(data), nil
}

// FormatDomainList formats a list of Domains as a YAML stream (multiple
// documents separated by ---).
func (f *YAMLFormatter) FormatDomainList(ds []*v1alpha1.Domain) (string, error) {
	var buf bytes.Buffer

	for i, d := range ds {
		d.SetDefaultAPIVersion()

		data, err := yaml.Marshal(d)
		if err != nil {
			return "", fmt.Errorf("failed to marshal domain %s to YAML: %w", d.Name, err)
		}

		// Add document separator between domains (but not before the first one)
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}

// FormatEvent formats an event as one YAML document, preceded by a
// separator so events can be streamed.
func (f *YAMLFormatter) FormatEvent(ev *v1alpha1.DomainEvent) (string, error) {
	ev.SetDefaultAPIVersion()

	data, err := yaml.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event to YAML: %w", err)
	}
	return "---\n" + string(data), nil
}

// FormatDescription formats a domain description as YAML.
func (f *YAMLFormatter) FormatDescription(desc *libvirt.DomainDescription) (string, error) {
	data, err := yaml.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal description to YAML: %w", err)
	}
	return string(data), nil
}
