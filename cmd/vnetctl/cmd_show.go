package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vnetorch/pkg/cli"
	"github.com/newtron-network/vnetorch/pkg/sonic"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

var showVNet string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show route, group and session state",
}

var showRoutesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List route state published to STATE_DB",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(false)
		if err != nil {
			return err
		}
		defer conn.Close()

		routes, err := conn.State.RouteStates(showVNet)
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(routes)
		}
		if len(routes) == 0 {
			fmt.Println("No routes")
			return nil
		}
		t := cli.NewTable("VNET", "PREFIX", "STATE", "ACTIVE ENDPOINTS")
		for _, r := range routes {
			t.Row(r.VNet, r.Prefix, cli.State(r.State), cli.List(r.ActiveEndpoints))
		}
		t.Flush()
		return nil
	},
}

var showRouteCmd = &cobra.Command{
	Use:   "route <vnet> <prefix>",
	Short: "Show a route's intent and its programming in ASIC_DB",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vnetName, prefix := args[0], args[1]
		p, err := vnet.ParsePrefix(prefix)
		if err != nil {
			return err
		}
		prefix = p.String()

		conn, err := connect(true)
		if err != nil {
			return err
		}
		defer conn.Close()

		vals, err := conn.Config.Get(sonic.VNetTable, vnetName)
		if err != nil {
			return err
		}
		if vals == nil {
			return fmt.Errorf("VNET %s not configured", vnetName)
		}
		cfg, err := sonic.ParseVNet(vnetName, vals)
		if err != nil {
			return err
		}
		intent, err := conn.App.RouteIntent(vnetName, args[1])
		if err != nil {
			return err
		}

		var entry *sonic.RouteEntry
		vr, err := conn.Asic.ResolveVR(cfg.VNI)
		if err == nil {
			if entry, err = conn.Asic.GetRoute(vr, prefix); err != nil {
				return err
			}
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(struct {
				VNet   string            `json:"vnet"`
				Prefix string            `json:"prefix"`
				VNI    uint32            `json:"vni"`
				Intent map[string]string `json:"intent"`
				Asic   *sonic.RouteEntry `json:"asic"`
			}{vnetName, prefix, cfg.VNI, intent, entry})
		}

		fmt.Printf("%s %s (VNI %d)\n", cli.Bold(vnetName), cli.Bold(prefix), cfg.VNI)
		fmt.Println()
		if intent == nil {
			fmt.Println("Intent: " + cli.Dim("none"))
		} else {
			fmt.Println("Intent:")
			keys := make([]string, 0, len(intent))
			for k := range intent {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %s %s\n", cli.DotPad(k, 20), intent[k])
			}
		}
		fmt.Println()

		if entry == nil {
			fmt.Println("ASIC: " + cli.Red("not programmed"))
			return nil
		}
		if entry.Group != nil {
			fmt.Printf("ASIC: %s -> group %s (%s)\n", cli.Green("programmed"), entry.Group.OID, entry.Group.Type)
		} else {
			fmt.Printf("ASIC: %s -> next hop %s\n", cli.Green("programmed"), entry.NextHop)
		}
		printNextHops(entry.NextHops, "  ")
		return nil
	},
}

var showGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List next hop groups programmed in ASIC_DB",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(true)
		if err != nil {
			return err
		}
		defer conn.Close()

		groups, err := conn.Asic.Groups()
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(groups)
		}
		if len(groups) == 0 {
			fmt.Println("No next hop groups")
			return nil
		}
		for _, g := range groups {
			fmt.Printf("%s  %s  %d members\n", cli.Bold(string(g.OID)), g.Type, len(g.Members))
			printNextHops(g.Members, "  ")
		}
		return nil
	},
}

var showSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List monitor session state from STATE_DB",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect(false)
		if err != nil {
			return err
		}
		defer conn.Close()

		states, err := conn.State.SessionStates()
		if err != nil {
			return err
		}
		keys := make([]vnet.MonitorKey, 0, len(states))
		for k := range states {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

		if jsonOutput {
			out := make(map[string]string, len(states))
			for k, s := range states {
				out[k.String()] = s.String()
			}
			return json.NewEncoder(os.Stdout).Encode(out)
		}
		if len(keys) == 0 {
			fmt.Println("No monitor sessions")
			return nil
		}
		t := cli.NewTable("MODE", "ADDRESS", "PREFIX", "STATE")
		for _, k := range keys {
			prefix := "-"
			if k.Prefix.IsValid() {
				prefix = k.Prefix.String()
			}
			t.Row(k.Mode.String(), k.Addr.String(), prefix, cli.State(states[k].String()))
		}
		t.Flush()
		return nil
	},
}

func printNextHops(nhs []sonic.NextHopEntry, indent string) {
	t := cli.NewTable("SEQ", "ENDPOINT", "VNI", "MAC", "OID").WithPrefix(indent)
	for _, nh := range nhs {
		seq := nh.Sequence
		if seq == "" {
			seq = "-"
		}
		mac := nh.MAC
		if mac == "" {
			mac = "-"
		}
		t.Row(seq, nh.IP, nh.VNI, mac, string(nh.OID))
	}
	t.Flush()
}

func init() {
	showRoutesCmd.Flags().StringVar(&showVNet, "vnet", "", "Only routes of this VNET")
	showCmd.AddCommand(showRoutesCmd, showRouteCmd, showGroupsCmd, showSessionsCmd)
}
