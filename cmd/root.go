// Package cmd is the process entrypoint's command tree: serve runs the
// HTTP API, migrate applies the policy store's schema, policy-import
// bootstraps a first policy version without going through the HTTP API.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "policy-reasoner",
	Short: "Policy deliberation service for the workflow runtime",
}

// Execute runs the command tree, exiting the process with status 1 on
// error the way a standalone cobra-based CLI does.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(policyImportCmd)
}
