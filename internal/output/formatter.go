// Package output provides formatters for displaying virtloop resources
// in various formats (table, YAML, JSON).
package output

import (
	"fmt"
	"strings"

	"github.com/jbweber/virtloop/api/v1alpha1"
	"github.com/jbweber/virtloop/internal/libvirt"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Formatter formats virtloop resources for output.
type Formatter interface {
	// FormatDomain formats a single Domain.
	FormatDomain(d *v1alpha1.Domain) (string, error)

	// FormatDomainList formats a list of Domains.
	FormatDomainList(ds []*v1alpha1.Domain) (string, error)

	// FormatEvent formats one event of a stream. Successive calls produce
	// output that can be concatenated.
	FormatEvent(ev *v1alpha1.DomainEvent) (string, error)

	// FormatDescription formats a domain's static configuration.
	FormatDescription(desc *libvirt.DomainDescription) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(strings.ToLower(format)) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
