package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jbweber/virtloop/internal/config"
	"github.com/jbweber/virtloop/internal/logging"
	"github.com/jbweber/virtloop/internal/output"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	configPath   string
	socketPath   string
	timeout      time.Duration
	logLevel     string
	logFormat    string
	outputFormat string
	noHeaders    bool
)

// Resolved by loadConfig before any command runs.
var (
	cfg    *config.Config
	logger zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "virtloop",
	Short: "virtloop - libvirt event watcher",
	Long: `virtloop connects to libvirtd, drives its event callbacks from a Go event
loop, and reports domain lifecycle changes as they happen.

Settings are read from an optional YAML file (--config); command-line flags
take precedence.`,
	Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&socketPath, "socket", "", "libvirt socket path (default "+config.Default().Connection.Socket+")")
	flags.DurationVar(&timeout, "timeout", 0, "connection timeout")
	flags.StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (console, json)")
	flags.StringVarP(&outputFormat, "output", "o", "", "output format (table, yaml, json)")
	flags.BoolVar(&noHeaders, "no-headers", false, "omit table headers")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(domainsCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(testConnCmd)
}

// loadConfig resolves the configuration file and flag overrides, then
// builds the logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	c := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return err
		}
		c = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("socket") {
		c.Connection.Socket = socketPath
	}
	if flags.Changed("timeout") {
		c.Connection.Timeout = timeout
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = logFormat
	}
	if flags.Changed("output") {
		c.Output = outputFormat
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logging.New(c.Log.Level, c.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	cfg = c
	logger = l
	return nil
}

func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(cfg.Output),
		NoHeaders: noHeaders,
	})
}
