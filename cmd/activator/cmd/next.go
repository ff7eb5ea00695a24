package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next scheduled remediation time",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			printError("load config", err)
			return err
		}
		rule, err := weeklyRule(cfg)
		if err != nil {
			printError("remediation schedule", err)
			return err
		}
		fmt.Println(formatTime(rule.Next(time.Now())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nextCmd)
}
