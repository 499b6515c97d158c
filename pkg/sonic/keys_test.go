package sonic

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

func TestParseIntentKey(t *testing.T) {
	tests := []struct {
		key       string
		vnet, pfx string
		ok        bool
	}{
		{"VNET_ROUTE_TUNNEL_TABLE:Vnet_2000:100.100.1.1/32", "Vnet_2000", "100.100.1.1/32", true},
		{"VNET_ROUTE_TUNNEL_TABLE:Vnet_2000:fd:0:1::/64", "Vnet_2000", "fd:0:1::/64", true},
		{"VNET_ROUTE_TUNNEL_TABLE:Vnet_2000", "", "", false},
		{"VNET_ROUTE_TUNNEL_TABLE::10.0.0.0/8", "", "", false},
		{"ROUTE_TABLE:10.0.0.0/8", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, p, ok := ParseIntentKey(tt.key)
			if ok != tt.ok || v != tt.vnet || p != tt.pfx {
				t.Errorf("ParseIntentKey = (%q, %q, %v), want (%q, %q, %v)", v, p, ok, tt.vnet, tt.pfx, tt.ok)
			}
		})
	}
}

func TestSessionKeys(t *testing.T) {
	bfd := vnet.MonitorKey{Mode: vnet.MonitorBFD, Addr: netip.MustParseAddr("9.1.0.1")}
	custom := vnet.MonitorKey{
		Mode:   vnet.MonitorCustom,
		Addr:   netip.MustParseAddr("9.1.0.1"),
		Prefix: netip.MustParsePrefix("100.100.1.0/24"),
	}

	if got, want := SessionKey(bfd), "BFD_SESSION_TABLE:default:default:9.1.0.1"; got != want {
		t.Errorf("SessionKey(bfd) = %s, want %s", got, want)
	}
	if got, want := SessionKey(custom), "VNET_MONITOR_TABLE:9.1.0.1:100.100.1.0/24"; got != want {
		t.Errorf("SessionKey(custom) = %s, want %s", got, want)
	}

	for _, k := range []vnet.MonitorKey{bfd, custom} {
		got, ok := ParseStateKey(StateKey(k))
		if !ok || got != k {
			t.Errorf("ParseStateKey(StateKey(%s)) = %v, %v", k, got, ok)
		}
	}

	v6 := vnet.MonitorKey{Mode: vnet.MonitorBFD, Addr: netip.MustParseAddr("fd::1")}
	if got, ok := ParseStateKey("BFD_SESSION_TABLE|default|default|fd::1"); !ok || got != v6 {
		t.Errorf("ParseStateKey(v6) = %v, %v", got, ok)
	}
	for _, bad := range []string{
		"BFD_SESSION_TABLE|default|9.1.0.1",
		"BFD_SESSION_TABLE|default|default|nope",
		"VNET_MONITOR_TABLE|9.1.0.1|nope",
		"PORT_TABLE|Ethernet0",
	} {
		if _, ok := ParseStateKey(bad); ok {
			t.Errorf("ParseStateKey(%q) should fail", bad)
		}
	}
}

func TestSessionFields(t *testing.T) {
	local := netip.MustParseAddr("10.1.0.32")
	tests := []struct {
		name string
		cfg  vnet.SessionConfig
		want map[string]string
	}{
		{
			name: "bfd defaults",
			cfg:  vnet.SessionConfig{Key: vnet.MonitorKey{Mode: vnet.MonitorBFD}, LocalAddr: local},
			want: map[string]string{"multihop": "true", "local_addr": "10.1.0.32"},
		},
		{
			name: "bfd timers",
			cfg:  vnet.SessionConfig{Key: vnet.MonitorKey{Mode: vnet.MonitorBFD}, LocalAddr: local, RxInterval: 300, TxInterval: 200},
			want: map[string]string{"multihop": "true", "local_addr": "10.1.0.32", "rx_interval": "300", "tx_interval": "200"},
		},
		{
			name: "custom",
			cfg:  vnet.SessionConfig{Key: vnet.MonitorKey{Mode: vnet.MonitorCustom}, OverlayDMAC: "22:33:44:55:66:77", TxInterval: 100},
			want: map[string]string{"packet_type": "vxlan", "overlay_dmac": "22:33:44:55:66:77", "interval": "100"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SessionFields(tt.cfg)); diff != "" {
				t.Errorf("SessionFields (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseVNet(t *testing.T) {
	got, err := ParseVNet("Vnet_2000", map[string]string{
		"vxlan_tunnel":     "tunnel_v4",
		"vni":              "2000",
		"advertise_prefix": "true",
		"overlay_dmac":     "22:33:44:55:66:77",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := vnet.VNetConfig{
		Name:            "Vnet_2000",
		Tunnel:          "tunnel_v4",
		VNI:             2000,
		AdvertisePrefix: true,
		OverlayDMAC:     "22:33:44:55:66:77",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseVNet (-want +got):\n%s", diff)
	}

	for name, vals := range map[string]map[string]string{
		"no tunnel": {"vni": "2000"},
		"no vni":    {"vxlan_tunnel": "t"},
		"zero vni":  {"vxlan_tunnel": "t", "vni": "0"},
		"big vni":   {"vxlan_tunnel": "t", "vni": "16777216"},
	} {
		if _, err := ParseVNet("v", vals); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseTunnelAndDecap(t *testing.T) {
	tun, err := ParseTunnel("tunnel_v4", map[string]string{"src_ip": "10.1.0.32"})
	if err != nil || tun.SrcIP != netip.MustParseAddr("10.1.0.32") {
		t.Errorf("ParseTunnel = %+v, %v", tun, err)
	}
	if _, err := ParseTunnel("t", map[string]string{"src_ip": "bogus"}); err == nil {
		t.Error("expected error for bad src_ip")
	}

	if ParseSubnetDecap(nil).Enabled {
		t.Error("missing SUBNET_DECAP should be disabled")
	}
	got := ParseSubnetDecap(map[string]string{"status": "enable", "src_ip": "10.10.10.0/24", "src_ip_v6": "20c1:ba8::/64"})
	want := vnet.DecapConfig{Enabled: true, SrcIP: "10.10.10.0/24", SrcIPv6: "20c1:ba8::/64"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseSubnetDecap (-want +got):\n%s", diff)
	}
}

func TestKeyspaceChannel(t *testing.T) {
	ch := KeyspaceChannel(0, "VNET_ROUTE_TUNNEL_TABLE:*")
	if ch != "__keyspace@0__:VNET_ROUTE_TUNNEL_TABLE:*" {
		t.Fatalf("KeyspaceChannel = %s", ch)
	}
	db, key, ok := ParseKeyspaceChannel("__keyspace@6__:BFD_SESSION_TABLE|default|default|9.1.0.1")
	if !ok || db != 6 || key != "BFD_SESSION_TABLE|default|default|9.1.0.1" {
		t.Errorf("ParseKeyspaceChannel = %d, %q, %v", db, key, ok)
	}
	if _, _, ok := ParseKeyspaceChannel("__keyevent@0__:del"); ok {
		t.Error("keyevent channel should not parse")
	}

	if !(Notification{Op: "del"}).Deleted() || (Notification{Op: "hset"}).Deleted() {
		t.Error("Deleted mismatch")
	}
}

func TestObjectKey(t *testing.T) {
	rk := asic.RouteKey{Dest: "100.100.1.1/32", SwitchID: "oid:0x21000000000000", VR: "oid:0x3000000000001"}
	want := `ASIC_STATE:SAI_OBJECT_TYPE_ROUTE_ENTRY:{"dest":"100.100.1.1/32","switch_id":"oid:0x21000000000000","vr":"oid:0x3000000000001"}`
	if got := objectKey(asic.ObjectRouteEntry, rk.String()); got != want {
		t.Errorf("objectKey = %s\nwant %s", got, want)
	}
}

func TestHsetArgs(t *testing.T) {
	if diff := cmp.Diff([]interface{}{"NULL", "NULL"}, hsetArgs(nil)); diff != "" {
		t.Errorf("empty fields (-want +got):\n%s", diff)
	}
	if got := hsetArgs(map[string]string{"a": "1"}); len(got) != 2 || got[0] != "a" || got[1] != "1" {
		t.Errorf("hsetArgs = %v", got)
	}
}
