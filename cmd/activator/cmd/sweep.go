package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"activator/internal/metrics"
	"activator/internal/models"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Probe every service once and print the statuses",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("load config", err)
		return err
	}
	return withApp(cfg, sweep)
}

func sweep(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.orchestrator.RefreshServiceStatuses(ctx)
	statuses := a.orchestrator.AllStatuses()

	keys := make([]models.TargetKey, 0, len(statuses))
	for k := range statuses {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		fmt.Printf("  %-8s %s\n", statuses[k], k)
	}

	s := metrics.Summarize(statuses)
	fmt.Println()
	fmt.Printf("Total: %d  up: %d  down: %d  unknown: %d  (%.2f%% up)\n", s.Total, s.Up, s.Down, s.Unknown, s.UpPercent)
	return nil
}
