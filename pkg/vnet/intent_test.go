package vnet

import (
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/vnetorch/pkg/util"
)

func TestParseRouteIntent(t *testing.T) {
	ri, err := ParseRouteIntent("Vnet_2000", "100.100.1.1/32", map[string]string{
		"nexthop":          "9.0.0.3, 9.0.0.1,9.0.0.2",
		"endpoint_monitor": "9.1.0.3,9.1.0.1,",
		"primary":          "9.0.0.1",
		"profile":          "from_sdn_slb_routes",
		"adv_prefix":       "100.100.1.0/24",
		"rx_monitor_timer": "300",
		"tx_monitor_timer": "300",
	})
	if err != nil {
		t.Fatalf("ParseRouteIntent: %v", err)
	}

	want := []Endpoint{
		{IP: netip.MustParseAddr("9.0.0.1"), Monitor: netip.MustParseAddr("9.1.0.1"), Primary: true, Seq: 1},
		{IP: netip.MustParseAddr("9.0.0.2"), Seq: 2},
		{IP: netip.MustParseAddr("9.0.0.3"), Monitor: netip.MustParseAddr("9.1.0.3"), Seq: 3},
	}
	if diff := cmp.Diff(want, ri.Endpoints, cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
		t.Errorf("Endpoints (-want +got):\n%s", diff)
	}
	if !ri.HasPrimary {
		t.Error("HasPrimary = false")
	}
	if ri.AdvPrefix != netip.MustParsePrefix("100.100.1.0/24") {
		t.Errorf("AdvPrefix = %s", ri.AdvPrefix)
	}
	if ri.RxTimer != 300 || ri.TxTimer != 300 {
		t.Errorf("timers = %d/%d", ri.RxTimer, ri.TxTimer)
	}
	if n := len(ri.Monitors()); n != 2 {
		t.Errorf("Monitors() = %d, want 2", n)
	}
}

func TestParseRouteIntentDefaults(t *testing.T) {
	ri, err := ParseRouteIntent("Vnet_2000", "100.100.1.1", map[string]string{"endpoint": "fd:9::1"})
	if err != nil {
		t.Fatal(err)
	}
	if ri.Key.Prefix != netip.MustParsePrefix("100.100.1.1/32") {
		t.Errorf("bare address prefix = %s, want /32", ri.Key.Prefix)
	}
	if ri.AdvPrefix != ri.Key.Prefix {
		t.Errorf("AdvPrefix = %s, want route prefix", ri.AdvPrefix)
	}
	if ri.Monitoring != MonitorBFD || ri.HasPrimary {
		t.Errorf("unexpected defaults: %+v", ri)
	}

	// Host bits are masked off.
	ri, err = ParseRouteIntent("Vnet_2000", "100.100.1.7/24", map[string]string{"endpoint": "9.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	if ri.Key.Prefix.String() != "100.100.1.0/24" {
		t.Errorf("prefix = %s", ri.Key.Prefix)
	}
}

func TestParseRouteIntentCustomMonitorKeys(t *testing.T) {
	ri, err := ParseRouteIntent("Vnet_2000", "100.100.1.1/32", map[string]string{
		"endpoint":         "9.0.0.1,9.0.0.2",
		"endpoint_monitor": "9.1.0.1,9.1.0.2",
		"monitoring":       "custom",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range ri.Monitors() {
		if k.Mode != MonitorCustom || k.Prefix != ri.Key.Prefix {
			t.Errorf("monitor key %s is not scoped to the route", k)
		}
	}
}

func TestParseRouteIntentErrors(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		fields map[string]string
		reason string
	}{
		{"missing nexthop", "10.0.0.0/24", map[string]string{}, "nexthop is required"},
		{"bad prefix", "10.0.0.0/33", map[string]string{"nexthop": "9.0.0.1"}, "invalid prefix"},
		{"bad nexthop", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.x"}, "invalid nexthop"},
		{"duplicate nexthop", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1,9.0.0.1"}, "duplicate nexthop"},
		{"monitor count", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1,9.0.0.2", "ep_monitor": "9.1.0.1"}, "ep_monitor has 1 entries"},
		{"bad monitor", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "ep_monitor": "nope"}, "invalid ep_monitor"},
		{"primary not subset", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "primary": "9.0.0.2"}, "primary 9.0.0.2 is not a nexthop"},
		{"unknown monitoring", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "monitoring": "icmp"}, "unknown monitoring mode"},
		{"custom without monitor", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "monitoring": "custom"}, "requires ep_monitor"},
		{"adv family", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "adv_prefix": "fd::/64"}, "differ in address family"},
		{"bad mac", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "mac_address": "zz"}, "invalid mac_address"},
		{"vni range", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "vni": "16777216"}, "invalid vni"},
		{"vni count", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "vni": "1,2"}, "vni has 2 entries"},
		{"timer", "10.0.0.0/24", map[string]string{"nexthop": "9.0.0.1", "rx_monitor_timer": "-5"}, "invalid rx_monitor_timer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRouteIntent("Vnet_2000", tt.prefix, tt.fields)
			if !errors.Is(err, util.ErrMalformedIntent) {
				t.Fatalf("err = %v, want ErrMalformedIntent", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q does not mention %q", err, tt.reason)
			}
		})
	}
}

func TestParseLiveness(t *testing.T) {
	tests := map[string]Liveness{
		"Up":         Up,
		"up":         Up,
		"Down":       Down,
		"down":       Down,
		"Admin_Down": Down,
		"Init":       Down,
		"":           Unknown,
	}
	for in, want := range tests {
		if got := ParseLiveness(in); got != want {
			t.Errorf("ParseLiveness(%q) = %s, want %s", in, got, want)
		}
	}
}
