package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbweber/virtloop/api/v1alpha1"
	"github.com/jbweber/virtloop/internal/libvirt"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool

	eventHeaderDone bool
}

// FormatDomain formats a single Domain as a table row.
func (f *TableFormatter) FormatDomain(d *v1alpha1.Domain) (string, error) {
	return f.FormatDomainList([]*v1alpha1.Domain{d})
}

// FormatDomainList formats a list of Domains as a table.
func (f *TableFormatter) FormatDomainList(ds []*v1alpha1.Domain) (string, error) {
	if len(ds) == 0 {
		return "No domains found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tPHASE\tSTATE\tAUTOSTART\tVCPUs\tMEMORY\tAGE")
	}

	for _, d := range ds {
		autostart := "no"
		if d.Status.Autostart {
			autostart = "yes"
		}

		age := "-"
		if !d.CreationTimestamp.IsZero() {
			age = formatAge(time.Since(d.CreationTimestamp.Time))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d MiB\t%s\n",
			d.Name, orDash(string(d.Status.Phase)), orDash(d.Status.State),
			autostart, d.Status.VCPUs, d.Status.MemoryMiB, age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatEvent formats an event as one line. The header is written before
// the first event only.
func (f *TableFormatter) FormatEvent(ev *v1alpha1.DomainEvent) (string, error) {
	var buf bytes.Buffer
	if !f.NoHeaders && !f.eventHeaderDone {
		_, _ = fmt.Fprintf(&buf, "%-6s %-20s %-20s %-18s %-24s %s\n",
			"SEQ", "TIME", "DOMAIN", "KIND", "EVENT", "PHASE")
		f.eventHeaderDone = true
	}

	event := ev.Spec.Event
	if ev.Spec.Detail != "" {
		event += "/" + ev.Spec.Detail
	}
	_, _ = fmt.Fprintf(&buf, "%-6d %-20s %-20s %-18s %-24s %s\n",
		ev.Spec.Sequence,
		ev.CreationTimestamp.Format(time.RFC3339),
		ev.Spec.Domain.Name,
		ev.Spec.Kind,
		orDash(event),
		orDash(string(ev.Spec.Phase)))
	return buf.String(), nil
}

// FormatDescription formats a domain description as a key/value block
// followed by its devices.
func (f *TableFormatter) FormatDescription(desc *libvirt.DomainDescription) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Name:\t%s\n", desc.Name)
	_, _ = fmt.Fprintf(w, "UUID:\t%s\n", desc.UUID)
	_, _ = fmt.Fprintf(w, "Type:\t%s\n", orDash(desc.Type))
	_, _ = fmt.Fprintf(w, "Arch:\t%s\n", orDash(strings.TrimSpace(desc.Arch+" "+desc.Machine)))
	_, _ = fmt.Fprintf(w, "VCPUs:\t%d\n", desc.VCPUs)
	_, _ = fmt.Fprintf(w, "Memory:\t%d MiB\n", desc.MemoryKiB/1024)
	_ = w.Flush()

	if len(desc.Disks) > 0 {
		buf.WriteString("\nDisks:\n")
		w = tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		if !f.NoHeaders {
			_, _ = fmt.Fprintln(w, "  TARGET\tDEVICE\tBUS\tFORMAT\tSOURCE")
		}
		for _, d := range desc.Disks {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				orDash(d.Target), d.Device, orDash(d.Bus), orDash(d.Format), orDash(d.Source))
		}
		_ = w.Flush()
	}

	if len(desc.Interfaces) > 0 {
		buf.WriteString("\nInterfaces:\n")
		w = tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		if !f.NoHeaders {
			_, _ = fmt.Fprintln(w, "  MAC\tMODEL\tSOURCE\tTARGET")
		}
		for _, i := range desc.Interfaces {
			source := i.Bridge
			if i.Network != "" {
				source = "network:" + i.Network
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				orDash(i.MAC), orDash(i.Model), orDash(source), orDash(i.Target))
		}
		_ = w.Flush()
	}

	return buf.String(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	// Less than ~2 months (8 weeks)
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	if years := days / 365; years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
