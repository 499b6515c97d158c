package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vnetorch/pkg/cli"
)

var tsaCmd = &cobra.Command{
	Use:   "tsa [enable|disable]",
	Short: "Show or change traffic-shift-away",
	Long: `While TSA is enabled vnetorchd withdraws every prefix advertisement;
routes stay programmed.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"enable", "disable"},
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(false)
		if err != nil {
			return err
		}
		defer conn.Close()

		if len(args) == 0 {
			on, err := conn.Config.TSA()
			if err != nil {
				return err
			}
			if on {
				fmt.Println("TSA: " + cli.Yellow("enabled"))
			} else {
				fmt.Println("TSA: " + cli.Green("disabled"))
			}
			return nil
		}

		var on bool
		switch args[0] {
		case "enable":
			on = true
		case "disable":
		default:
			return fmt.Errorf("expected enable or disable, got %q", args[0])
		}
		if err := conn.Config.SetTSA(on); err != nil {
			return err
		}
		fmt.Printf("TSA %sd\n", args[0])
		return nil
	},
}
