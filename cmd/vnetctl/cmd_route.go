package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vnetorch/pkg/cli"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

var (
	routeEndpoints []string
	routeMonitors  []string
	routeMACs      []string
	routeVNI       uint32
	routePrimary   []string
	routeMode      string
	routeProfile   string
	routeAdvPrefix string
	routeRxTimer   int
	routeTxTimer   int
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Write or remove route intents in APP_DB",
}

var routeSetCmd = &cobra.Command{
	Use:   "set <vnet> <prefix>",
	Short: "Create or replace a route intent",
	Long: `Set writes VNET_ROUTE_TUNNEL_TABLE:<vnet>:<prefix>. The intent is
validated locally first; vnetorchd picks it up from the keyspace
notification.

Examples:
  vnetctl route set Vnet_2000 100.100.1.1/32 --endpoint 9.0.0.1
  vnetctl route set Vnet_2000 100.100.1.1/32 --endpoint 9.0.0.1,9.0.0.2 \
      --monitor 9.1.0.1,9.1.0.2 --primary 9.0.0.1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vnetName, prefix := args[0], args[1]
		fields := routeFields(cmd)
		if _, err := vnet.ParseRouteIntent(vnetName, prefix, fields); err != nil {
			return err
		}

		conn, err := connect(false)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.App.SetRouteIntent(vnetName, prefix, fields); err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n", cli.Green("set"), vnetName, prefix)
		return nil
	},
}

var routeDeleteCmd = &cobra.Command{
	Use:     "delete <vnet> <prefix>",
	Aliases: []string{"del"},
	Short:   "Remove a route intent",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(false)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.App.DeleteRouteIntent(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n", cli.Yellow("deleted"), args[0], args[1])
		return nil
	},
}

// routeFields builds intent fields from the flags that were set.
func routeFields(cmd *cobra.Command) map[string]string {
	fields := map[string]string{
		vnet.FieldEndpoint: strings.Join(routeEndpoints, ","),
	}
	optional := []struct {
		flag  string
		field string
		value string
	}{
		{"monitor", vnet.FieldEndpointMonitor, strings.Join(routeMonitors, ",")},
		{"mac", vnet.FieldMacAddress, strings.Join(routeMACs, ",")},
		{"vni", vnet.FieldVNI, strconv.FormatUint(uint64(routeVNI), 10)},
		{"primary", vnet.FieldPrimary, strings.Join(routePrimary, ",")},
		{"monitoring", vnet.FieldMonitoring, routeMode},
		{"profile", vnet.FieldProfile, routeProfile},
		{"adv-prefix", vnet.FieldAdvPrefix, routeAdvPrefix},
		{"rx-timer", vnet.FieldRxMonitorTimer, strconv.Itoa(routeRxTimer)},
		{"tx-timer", vnet.FieldTxMonitorTimer, strconv.Itoa(routeTxTimer)},
	}
	for _, o := range optional {
		if cmd.Flags().Changed(o.flag) {
			fields[o.field] = o.value
		}
	}
	return fields
}

// addRouteFlags registers the intent flags on cmd.
func addRouteFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&routeEndpoints, "endpoint", nil, "Remote VTEP addresses")
	f.StringSliceVar(&routeMonitors, "monitor", nil, "Monitor address per endpoint")
	f.StringSliceVar(&routeMACs, "mac", nil, "Inner destination MAC per endpoint")
	f.Uint32Var(&routeVNI, "vni", 0, "VNI override")
	f.StringSliceVar(&routePrimary, "primary", nil, "Primary endpoints")
	f.StringVar(&routeMode, "monitoring", "", "Monitor mode (custom)")
	f.StringVar(&routeProfile, "profile", "", "BGP advertisement profile")
	f.StringVar(&routeAdvPrefix, "adv-prefix", "", "Prefix to advertise instead of the route")
	f.IntVar(&routeRxTimer, "rx-timer", 0, "Monitor receive interval (ms)")
	f.IntVar(&routeTxTimer, "tx-timer", 0, "Monitor transmit interval (ms)")
	cmd.MarkFlagRequired("endpoint")
}

func init() {
	addRouteFlags(routeSetCmd)
	routeCmd.AddCommand(routeSetCmd, routeDeleteCmd)
}
