// Package cmd implements the leaddesk command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "leaddesk",
	Short: "Lead console gateway for the CRM backend",
	Long: `leaddesk serves the admin console of the real-estate CRM: OTP sign-in,
session bootstrap from URL or persisted credentials, and consolidated lead
lists backed by the upstream CRM API.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
