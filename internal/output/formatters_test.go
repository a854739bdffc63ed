package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jbweber/virtloop/api/v1alpha1"
	"github.com/jbweber/virtloop/internal/libvirt"
)

// createTestDomain creates a Domain for testing.
func createTestDomain(name string, phase v1alpha1.DomainPhase, state string) *v1alpha1.Domain {
	d := v1alpha1.NewDomain(name, uuid.New())
	d.CreationTimestamp = v1alpha1.Time{Time: time.Now().Add(-5 * time.Minute)}
	d.Status.Phase = phase
	d.Status.State = state
	d.Status.VCPUs = 2
	d.Status.MemoryMiB = 4096
	return d
}

func createTestEvent(seq uint64, domain, event, detail string, phase v1alpha1.DomainPhase) *v1alpha1.DomainEvent {
	ev := v1alpha1.NewDomainEvent(seq, v1alpha1.DomainReference{Name: domain, UUID: uuid.NewString()}, "domain-lifecycle")
	ev.Spec.Event = event
	ev.Spec.Detail = detail
	ev.Spec.Phase = phase
	return ev
}

func testDescription() *libvirt.DomainDescription {
	return &libvirt.DomainDescription{
		Name:      "web",
		UUID:      "4dea22b3-1d52-d8f3-2516-782e98ab3fa0",
		Type:      "kvm",
		Arch:      "x86_64",
		VCPUs:     2,
		MemoryKiB: 4 * 1024 * 1024,
		Disks: []libvirt.Disk{
			{Device: "disk", Target: "vda", Bus: "virtio", Format: "qcow2", Source: "default/web_boot.qcow2"},
		},
		Interfaces: []libvirt.Interface{
			{MAC: "52:54:00:0a:00:05", Model: "virtio", Network: "default"},
		},
	}
}

func TestTableFormatter_FormatDomain(t *testing.T) {
	tests := []struct {
		name      string
		domain    *v1alpha1.Domain
		wantPhase string
		wantState string
	}{
		{
			name:      "running domain",
			domain:    createTestDomain("web", v1alpha1.DomainPhaseRunning, "running"),
			wantPhase: "Running",
			wantState: "running",
		},
		{
			name:      "stopped domain",
			domain:    createTestDomain("db", v1alpha1.DomainPhaseStopped, "shutoff"),
			wantPhase: "Stopped",
			wantState: "shutoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TableFormatter{}
			output, err := formatter.FormatDomain(tt.domain)
			if err != nil {
				t.Fatalf("FormatDomain() error = %v", err)
			}

			for _, want := range []string{tt.domain.Name, tt.wantPhase, tt.wantState, "4096 MiB", "5m"} {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q: %s", want, output)
				}
			}
		})
	}
}

func TestTableFormatter_FormatDomainList(t *testing.T) {
	tests := []struct {
		name       string
		domains    []*v1alpha1.Domain
		noHeaders  bool
		wantCount  int
		wantHeader bool
	}{
		{
			name:      "empty list",
			domains:   []*v1alpha1.Domain{},
			wantCount: 0,
		},
		{
			name: "multiple domains",
			domains: []*v1alpha1.Domain{
				createTestDomain("vm1", v1alpha1.DomainPhaseRunning, "running"),
				createTestDomain("vm2", v1alpha1.DomainPhaseStopped, "shutoff"),
				createTestDomain("vm3", v1alpha1.DomainPhasePaused, "paused"),
			},
			wantCount:  3,
			wantHeader: true,
		},
		{
			name: "no headers",
			domains: []*v1alpha1.Domain{
				createTestDomain("vm1", v1alpha1.DomainPhaseRunning, "running"),
			},
			noHeaders:  true,
			wantCount:  1,
			wantHeader: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TableFormatter{NoHeaders: tt.noHeaders}
			output, err := formatter.FormatDomainList(tt.domains)
			if err != nil {
				t.Fatalf("FormatDomainList() error = %v", err)
			}

			if tt.wantCount == 0 {
				if !strings.Contains(output, "No domains found") {
					t.Errorf("expected 'No domains found' message, got: %s", output)
				}
				return
			}

			hasHeader := strings.Contains(output, "NAME") && strings.Contains(output, "PHASE")
			if tt.wantHeader != hasHeader {
				t.Errorf("header present = %v, want %v: %s", hasHeader, tt.wantHeader, output)
			}

			lines := strings.Split(strings.TrimSpace(output), "\n")
			expectedLines := tt.wantCount
			if tt.wantHeader {
				expectedLines++
			}
			if len(lines) != expectedLines {
				t.Errorf("expected %d lines, got %d: %s", expectedLines, len(lines), output)
			}
		})
	}
}

func TestTableFormatter_FormatEvent(t *testing.T) {
	formatter := &TableFormatter{}

	first, err := formatter.FormatEvent(createTestEvent(1, "web", "Started", "Booted", v1alpha1.DomainPhaseRunning))
	if err != nil {
		t.Fatalf("FormatEvent() error = %v", err)
	}
	second, err := formatter.FormatEvent(createTestEvent(2, "web", "Stopped", "Destroyed", v1alpha1.DomainPhaseStopped))
	if err != nil {
		t.Fatalf("FormatEvent() error = %v", err)
	}

	if lines := strings.Split(strings.TrimSpace(first), "\n"); len(lines) != 2 || !strings.HasPrefix(lines[0], "SEQ") {
		t.Errorf("expected header and one row, got: %q", first)
	}
	if strings.Contains(second, "SEQ") {
		t.Errorf("header repeated: %q", second)
	}
	for _, want := range []string{"Stopped/Destroyed", "domain-lifecycle", "web"} {
		if !strings.Contains(second, want) {
			t.Errorf("event line missing %q: %q", want, second)
		}
	}

	quiet := &TableFormatter{NoHeaders: true}
	out, _ := quiet.FormatEvent(createTestEvent(1, "web", "", "", ""))
	if strings.Contains(out, "SEQ") || strings.Count(out, "\n") != 1 {
		t.Errorf("unexpected output with NoHeaders: %q", out)
	}
}

func TestTableFormatter_FormatDescription(t *testing.T) {
	output, err := (&TableFormatter{}).FormatDescription(testDescription())
	if err != nil {
		t.Fatalf("FormatDescription() error = %v", err)
	}

	for _, want := range []string{"web", "4096 MiB", "Disks:", "default/web_boot.qcow2", "Interfaces:", "network:default"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}

func TestYAMLFormatter_FormatDomain(t *testing.T) {
	d := createTestDomain("test-vm", v1alpha1.DomainPhaseRunning, "running")

	output, err := (&YAMLFormatter{}).FormatDomain(d)
	if err != nil {
		t.Fatalf("FormatDomain() error = %v", err)
	}

	requiredFields := []string{
		"apiVersion: virtloop.cofront.xyz/v1alpha1",
		"kind: Domain",
		"metadata:",
		"name: test-vm",
		"status:",
		"vcpus: 2",
		"memoryMiB: 4096",
		"phase: Running",
	}
	for _, field := range requiredFields {
		if !strings.Contains(output, field) {
			t.Errorf("output missing required field %q: %s", field, output)
		}
	}
}

func TestYAMLFormatter_FormatDomainList(t *testing.T) {
	formatter := &YAMLFormatter{}

	output, err := formatter.FormatDomainList(nil)
	if err != nil || output != "" {
		t.Errorf("expected empty output, got %q, %v", output, err)
	}

	domains := []*v1alpha1.Domain{
		createTestDomain("vm1", v1alpha1.DomainPhaseRunning, "running"),
		createTestDomain("vm2", v1alpha1.DomainPhaseStopped, "shutoff"),
	}
	output, err = formatter.FormatDomainList(domains)
	if err != nil {
		t.Fatalf("FormatDomainList() error = %v", err)
	}
	if strings.Count(output, "---\n") != 1 {
		t.Errorf("expected one document separator: %s", output)
	}
	for _, d := range domains {
		if !strings.Contains(output, d.Name) {
			t.Errorf("output missing domain name %q", d.Name)
		}
	}
}

func TestYAMLFormatter_FormatEvent(t *testing.T) {
	output, err := (&YAMLFormatter{}).FormatEvent(createTestEvent(7, "web", "Crashed", "Panicked", v1alpha1.DomainPhaseFailed))
	if err != nil {
		t.Fatalf("FormatEvent() error = %v", err)
	}
	if !strings.HasPrefix(output, "---\n") {
		t.Errorf("expected document separator first: %s", output)
	}
	for _, want := range []string{"kind: DomainEvent", "sequence: 7", "event: Crashed", "phase: Failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}

func TestJSONFormatter_FormatDomain(t *testing.T) {
	d := createTestDomain("test-vm", v1alpha1.DomainPhaseRunning, "running")

	output, err := (&JSONFormatter{}).FormatDomain(d)
	if err != nil {
		t.Fatalf("FormatDomain() error = %v", err)
	}

	requiredFields := []string{
		`"apiVersion": "virtloop.cofront.xyz/v1alpha1"`,
		`"kind": "Domain"`,
		`"name": "test-vm"`,
		`"vcpus": 2`,
		`"memoryMiB": 4096`,
		`"phase": "Running"`,
	}
	for _, field := range requiredFields {
		if !strings.Contains(output, field) {
			t.Errorf("output missing required field %q: %s", field, output)
		}
	}
}

func TestJSONFormatter_FormatDomainList(t *testing.T) {
	tests := []struct {
		name    string
		domains []*v1alpha1.Domain
	}{
		{name: "empty list", domains: nil},
		{
			name: "multiple domains",
			domains: []*v1alpha1.Domain{
				createTestDomain("vm1", v1alpha1.DomainPhaseRunning, "running"),
				createTestDomain("vm2", v1alpha1.DomainPhaseStopped, "shutoff"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := (&JSONFormatter{}).FormatDomainList(tt.domains)
			if err != nil {
				t.Fatalf("FormatDomainList() error = %v", err)
			}

			var list struct {
				Kind  string            `json:"kind"`
				Items []json.RawMessage `json:"items"`
			}
			if err := json.Unmarshal([]byte(output), &list); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			if list.Kind != "DomainList" {
				t.Errorf("kind = %q, want DomainList", list.Kind)
			}
			if list.Items == nil || len(list.Items) != len(tt.domains) {
				t.Errorf("expected %d items, got %v", len(tt.domains), list.Items)
			}
		})
	}
}

func TestJSONFormatter_FormatEvent(t *testing.T) {
	formatter := &JSONFormatter{}
	var stream strings.Builder
	for i, name := range []string{"Started", "Stopped"} {
		out, err := formatter.FormatEvent(createTestEvent(uint64(i+1), "web", name, "", ""))
		if err != nil {
			t.Fatalf("FormatEvent() error = %v", err)
		}
		stream.WriteString(out)
	}

	lines := strings.Split(strings.TrimSpace(stream.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines of JSON, got %d", len(lines))
	}
	var ev v1alpha1.DomainEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if ev.Spec.Sequence != 2 || ev.Spec.Event != "Stopped" || ev.Kind != v1alpha1.DomainEventKind {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestJSONFormatter_FormatDescription(t *testing.T) {
	output, err := (&JSONFormatter{}).FormatDescription(testDescription())
	if err != nil {
		t.Fatalf("FormatDescription() error = %v", err)
	}
	var desc libvirt.DomainDescription
	if err := json.Unmarshal([]byte(output), &desc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if desc.Name != "web" || len(desc.Disks) != 1 || desc.Interfaces[0].Network != "default" {
		t.Errorf("unexpected round trip %+v", desc)
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "table format", opts: Options{Format: FormatTable}},
		{name: "yaml format", opts: Options{Format: FormatYAML}},
		{name: "json format", opts: Options{Format: FormatJSON}},
		{name: "invalid format", opts: Options{Format: "invalid"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter, err := NewFormatter(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFormatter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && formatter == nil {
				t.Error("NewFormatter() returned nil formatter")
			}
		})
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{format: "table"},
		{format: "yaml"},
		{format: "JSON"},
		{format: "xml", wantErr: true},
		{format: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			err := ValidateFormat(tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"negative", -time.Second, "unknown"},
		{"5 seconds", 5 * time.Second, "5s"},
		{"90 seconds", 90 * time.Second, "1m"},
		{"90 minutes", 90 * time.Minute, "1h"},
		{"2 days", 48 * time.Hour, "2d"},
		{"2 weeks", 14 * 24 * time.Hour, "2w"},
		{"60 days", 60 * 24 * time.Hour, "60d"}, // >= 8 weeks shows as days
		{"400 days", 400 * 24 * time.Hour, "1y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAge(tt.duration); got != tt.want {
				t.Errorf("formatAge(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}
