package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Println("Testing libvirt connection...")

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		fmt.Println("✓ Connected to libvirt daemon")

		if err := s.client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		v, err := s.client.LibVersion()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Libvirt version: %s\n", v)

		hostname, err := s.client.Hostname()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		uri, err := s.client.URI()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Connection URI: %s\n", uri)

		stats := s.loop.Stats()
		fmt.Printf("✓ Event loop: %d handles, %d timers\n", len(stats.Handles), len(stats.Timers))

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
