package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vnetorch/pkg/audit"
	"github.com/newtron-network/vnetorch/pkg/cli"
)

var (
	historyVNet     string
	historyPrefix   string
	historyLast     string
	historyLimit    int
	historyFailures bool
	historyLog      string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show route transitions from the journal",
	Long: `History reads the transition journal vnetorchd writes on the switch,
newest first.

Examples:
  vnetctl history --vnet Vnet_2000
  vnetctl history --prefix 100.100.1.1/32 --last 1h
  vnetctl history --failures`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			VNet:        historyVNet,
			Prefix:      historyPrefix,
			FailureOnly: historyFailures,
			Newest:      true,
			Limit:       historyLimit,
		}
		if historyLast != "" {
			d, err := time.ParseDuration(historyLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", historyLast)
			}
			filter.StartTime = time.Now().Add(-d)
		}

		path := historyLog
		if path == "" {
			path = userSettings.AuditLog
		}
		events, err := audit.Query(path, filter)
		if err != nil {
			return fmt.Errorf("querying journal: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}
		if len(events) == 0 {
			fmt.Println("No transitions found")
			return nil
		}
		t := cli.NewTable("TIME", "ROUTE", "FROM", "TO", "ACTIVE", "REASON", "STATUS")
		for _, e := range events {
			status := cli.Green("ok")
			if !e.Success {
				status = cli.Red("failed: " + e.Error)
			}
			t.Row(
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.Route(),
				e.From,
				e.To,
				cli.List(e.Active),
				e.Reason,
				status,
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyVNet, "vnet", "", "Filter by VNET")
	historyCmd.Flags().StringVar(&historyPrefix, "prefix", "", "Filter by prefix")
	historyCmd.Flags().StringVar(&historyLast, "last", "", "Only transitions within this duration (e.g. 30m, 24h)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum transitions to show")
	historyCmd.Flags().BoolVar(&historyFailures, "failures", false, "Only failed transitions")
	historyCmd.Flags().StringVar(&historyLog, "audit-log", "", "Journal file (default from settings)")
}
