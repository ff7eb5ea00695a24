// Package cmd holds the activator command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "activator",
	Short: "Service health monitor and auto-restart daemon",
	Long: `activator sweeps every service in the inventory for its health status and
restarts what it finds down, once a week or on demand.

Commands:
  serve      - run the scheduler and the HTTP API
  sweep      - probe every service once and print the statuses
  remediate  - run one remediation pass now
  next       - print the next scheduled remediation time`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to configuration file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "record remote commands instead of running them")
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
