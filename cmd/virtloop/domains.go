package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List domains",
	Long: `List all domains, active and inactive, with their current phase and state.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   Domain resources as a YAML stream
  -o json   DomainList as JSON`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		domains, err := s.client.ListDomains()
		if err != nil {
			return err
		}

		result, err := formatter.FormatDomainList(domains)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(result)
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <domain>",
	Short: "Describe a domain's configuration",
	Long: `Show the configuration of a domain as read from its XML: type, vCPUs,
memory, disks and network interfaces.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		desc, err := s.client.DescribeDomain(args[0])
		if err != nil {
			return fmt.Errorf("failed to describe domain: %w", err)
		}

		result, err := formatter.FormatDescription(desc)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(result)
		return nil
	},
}
