package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vnetorch/pkg/cli"
	"github.com/newtron-network/vnetorch/pkg/daemon"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's in-memory state",
	Long: `Status fetches /api/state from vnetorchd: routes with their installed
target, shared next-hop groups with reference counts, and monitor sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := statusAddr
		if addr == "" {
			addr = userSettings.MetricsAddr
		}
		snap, err := fetchSnapshot(cmd.Context(), addr)
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(snap)
		}

		fmt.Printf("%s %v   %s %v   %s %d\n\n",
			cli.DotPad("ordered_ecmp", 14), snap.OrderedECMP,
			cli.DotPad("tsa", 6), snap.TSA,
			cli.DotPad("nexthops", 10), snap.NextHops)

		fmt.Println(cli.Bold("Routes"))
		rt := cli.NewTable("VNET", "PREFIX", "STATE", "TARGET", "ACTIVE", "NOTE").WithPrefix("  ")
		for _, r := range snap.Routes {
			note := ""
			switch {
			case r.Error != "":
				note = cli.Red(r.Error)
			case r.Pending:
				note = cli.Yellow("VNET pending")
			case r.Advertised != "":
				note = "advertised " + r.Advertised
			}
			rt.Row(r.VNet, r.Prefix, cli.State(r.State), r.Target, cli.List(r.Active), note)
		}
		rt.Flush()

		fmt.Println()
		fmt.Println(cli.Bold("Next hop groups"))
		gt := cli.NewTable("OID", "REFS", "ORDERED", "MEMBERS").WithPrefix("  ")
		for _, g := range snap.Groups {
			gt.Row(g.OID, fmt.Sprint(g.Refs), fmt.Sprint(g.Ordered), cli.List(g.Members))
		}
		gt.Flush()

		fmt.Println()
		fmt.Println(cli.Bold("Monitor sessions"))
		st := cli.NewTable("SESSION", "REPORTED", "STATE", "ROUTES").WithPrefix("  ")
		for _, s := range snap.Sessions {
			st.Row(s.Key, cli.State(s.Reported), cli.State(s.State), cli.List(s.Routes))
		}
		st.Flush()
		return nil
	},
}

// fetchSnapshot reads /api/state. A listen address without a host (":9112")
// is queried on localhost.
func fetchSnapshot(ctx context.Context, addr string) (*daemon.Snapshot, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("bad daemon address %q: %w", addr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := "http://" + net.JoinHostPort(host, port) + "/api/state"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting vnetorchd: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vnetorchd returned %s", resp.Status)
	}
	var snap daemon.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return &snap, nil
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Daemon HTTP address (default metrics_addr from settings)")
}
