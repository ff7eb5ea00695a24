package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var jsonOutput bool

var remediateCmd = &cobra.Command{
	Use:   "remediate",
	Short: "Run one remediation pass now",
	Long: `Sweeps every service, restarts the ones found down and prints the run
report. Grouped services are restarted with the coordinated stop/start
protocol.`,
	RunE: runRemediate,
}

func init() {
	remediateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run report as JSON")
	rootCmd.AddCommand(remediateCmd)
}

func runRemediate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("load config", err)
		return err
	}
	return withApp(cfg, remediate)
}

func remediate(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := a.orchestrator.RunScheduledSweep(ctx)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Run %s\n", report.RunID)
	for _, line := range a.orchestrator.RestartLogs() {
		fmt.Println(line)
	}
	if report.Err != "" {
		fmt.Printf("Run aborted: %s\n", report.Err)
	}
	return nil
}
