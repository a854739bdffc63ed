// Package config loads the virtloop configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/virtloop/internal/hypervisor"
	"github.com/jbweber/virtloop/internal/logging"
	"github.com/jbweber/virtloop/internal/output"
)

// Config is the complete virtloop configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Log        LogConfig        `yaml:"log"`
	Watch      WatchConfig      `yaml:"watch"`
	Output     string           `yaml:"output,omitempty"` // table, yaml or json
}

// ConnectionConfig describes how to reach libvirtd.
type ConnectionConfig struct {
	Socket    string          `yaml:"socket,omitempty"`
	Timeout   time.Duration   `yaml:"timeout,omitempty"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
}

// KeepaliveConfig controls connection probing. An interval of zero
// disables it.
type KeepaliveConfig struct {
	Interval time.Duration `yaml:"interval"`
	Count    int           `yaml:"count"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // console or json
}

// WatchConfig selects what the watch command subscribes to.
type WatchConfig struct {
	// Domains limits events to these domain names. Empty means all.
	Domains []string `yaml:"domains,omitempty"`
	// Events are event kind names, e.g. "lifecycle" or "domain-reboot".
	Events []string `yaml:"events,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Socket:  hypervisor.DefaultSocket,
			Timeout: hypervisor.DefaultTimeout,
			Keepalive: KeepaliveConfig{
				Interval: 5 * time.Second,
				Count:    5,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Watch: WatchConfig{
			Events: []string{hypervisor.DomainLifecycle.String()},
		},
		Output: string(output.FormatTable),
	}
}

// Normalize lowercases enumerated fields and trims names.
func (c *Config) Normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Output = strings.ToLower(strings.TrimSpace(c.Output))
	for i := range c.Watch.Domains {
		c.Watch.Domains[i] = strings.TrimSpace(c.Watch.Domains[i])
	}
	for i := range c.Watch.Events {
		c.Watch.Events[i] = strings.ToLower(strings.TrimSpace(c.Watch.Events[i]))
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if c.Output != "" {
		if err := output.ValidateFormat(c.Output); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}
	return nil
}

// Validate checks connection settings.
func (c *ConnectionConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", c.Timeout)
	}
	if c.Keepalive.Interval < 0 {
		return fmt.Errorf("keepalive.interval must be >= 0, got %s", c.Keepalive.Interval)
	}
	if c.Keepalive.Interval > 0 && c.Keepalive.Interval < time.Second {
		return fmt.Errorf("keepalive.interval must be at least 1s, got %s", c.Keepalive.Interval)
	}
	if c.Keepalive.Count < 0 {
		return fmt.Errorf("keepalive.count must be >= 0, got %d", c.Keepalive.Count)
	}
	return nil
}

// Validate checks log settings.
func (l *LogConfig) Validate() error {
	if _, err := logging.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	switch l.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
		return nil
	default:
		return fmt.Errorf("format must be console or json, got %q", l.Format)
	}
}

// Validate checks watch settings.
func (w *WatchConfig) Validate() error {
	seen := make(map[string]bool)
	for i, name := range w.Domains {
		if name == "" {
			return fmt.Errorf("domains[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("domains[%d]: duplicate domain %q", i, name)
		}
		seen[name] = true
	}
	if len(w.Events) == 0 {
		return fmt.Errorf("at least one events entry is required")
	}
	if _, err := w.EventKinds(); err != nil {
		return err
	}
	return nil
}

// EventKinds parses Events, dropping duplicates.
func (w *WatchConfig) EventKinds() ([]hypervisor.EventKind, error) {
	kinds := make([]hypervisor.EventKind, 0, len(w.Events))
	seen := make(map[hypervisor.EventKind]bool)
	for i, name := range w.Events {
		kind, err := hypervisor.ParseEventKind(name)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// LoadFromFile loads a configuration from a YAML file. Fields missing from
// the file keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFromYAML(data)
}

// LoadFromYAML loads a configuration from YAML bytes.
func LoadFromYAML(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Normalize user input before validation
	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
