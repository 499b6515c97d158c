// vnetorchd - VNET tunnel route orchestrator
//
// Watches VNET route intents in APP_DB, VXLAN/VNET configuration in
// CONFIG_DB and monitor session health in STATE_DB, and programs tunnel
// next hops, next-hop groups and route entries into ASIC_DB.
//
// Usage:
//
//	vnetorchd run [--config <file>] [-v] [--dry-run]
//	vnetorchd config [--config <file>]
//	vnetorchd version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/vnetorch/pkg/daemon"
	"github.com/newtron-network/vnetorch/pkg/settings"
	"github.com/newtron-network/vnetorch/pkg/util"
	"github.com/newtron-network/vnetorch/pkg/version"
)

var (
	configPath string
	verbose    bool
	dryRun     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "vnetorchd",
	Short:             "VNET tunnel route orchestrator",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator until interrupted",
	Long: `Run connects to the switch Redis, performs a full sync of tunnels,
VNETs and route intents, then follows keyspace notifications.

With --dry-run the ASIC is simulated in memory and nothing is written to
Redis, so the daemon can be pointed at a live switch to inspect what it
would program (see /api/state).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if err := setupLogging(s); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		util.WithFields(map[string]interface{}{
			"version": version.Version,
			"redis":   s.RedisAddr,
		}).Info("starting vnetorchd")
		return daemon.New(s, daemon.Options{DryRun: dryRun}).Run(ctx)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("vnetorchd"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default "+settings.DefaultSettingsPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate the ASIC in memory and write nothing")

	rootCmd.AddCommand(runCmd, configCmd, versionCmd)
}

func loadSettings() (*settings.Settings, error) {
	var (
		s   *settings.Settings
		err error
	)
	if configPath != "" {
		s, err = settings.LoadFrom(configPath)
	} else {
		s, err = settings.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func setupLogging(s *settings.Settings) error {
	level := s.LogLevel
	if verbose {
		level = "debug"
	}
	return util.Configure(level, s.LogJSON)
}
