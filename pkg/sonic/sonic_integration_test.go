//go:build integration

package sonic

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/newtron-network/vnetorch/internal/testutil"
	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/util"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

func openTestConn(t *testing.T) *Conn {
	t.Helper()
	addr := testutil.Reset(t)
	conn, err := Open(Options{Addr: addr, DBs: DefaultDBNumbers()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAsicDBStore(t *testing.T) {
	conn := openTestConn(t)
	a := conn.Asic
	if a.SwitchID() == "" || a.DefaultVR() == "" {
		t.Fatal("switch not created on empty ASIC_DB")
	}

	nh, err := a.Create(asic.ObjectNextHop, asic.Attrs{asic.AttrNextHopIP: "9.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	if asic.TypeOf(nh) != asic.ObjectNextHop {
		t.Errorf("TypeOf(%s) = %s", nh, asic.TypeOf(nh))
	}
	rk := asic.RouteKey{Dest: "100.100.1.1/32", SwitchID: a.SwitchID(), VR: a.DefaultVR()}
	if err := a.SetRoute(rk, asic.Attrs{asic.AttrRouteNextHopID: string(nh)}); err != nil {
		t.Fatal(err)
	}

	got, err := a.GetRoute(a.DefaultVR(), "100.100.1.1/32")
	if err != nil || got == nil {
		t.Fatalf("GetRoute = %v, %v", got, err)
	}
	if len(got.NextHops) != 1 || got.NextHops[0].IP != "9.0.0.1" {
		t.Errorf("next hops = %+v", got.NextHops)
	}

	if err := a.RemoveRoute(rk); err != nil {
		t.Fatal(err)
	}
	if err := a.RemoveRoute(rk); err == nil {
		t.Error("removing a missing route should fail")
	}
	if err := a.Remove(asic.ObjectNextHop, nh); err != nil {
		t.Fatal(err)
	}
}

func TestReconcilerOverRedis(t *testing.T) {
	conn := openTestConn(t)
	rec := vnet.NewReconciler(vnet.Config{
		Store:    conn.Asic,
		Monitors: conn.App,
		State:    conn.State,
		Decap:    conn.App,
	})
	if err := rec.SetTunnel(vnet.TunnelConfig{Name: "tunnel_v4", SrcIP: netip.MustParseAddr("10.1.0.32")}); err != nil {
		t.Fatal(err)
	}
	if err := rec.SetVNet(vnet.VNetConfig{Name: "Vnet_2000", Tunnel: "tunnel_v4", VNI: 2000}); err != nil {
		t.Fatal(err)
	}
	ri, err := vnet.ParseRouteIntent("Vnet_2000", "100.100.1.1/32", map[string]string{
		"endpoint":         "9.0.0.1,9.0.0.2",
		"endpoint_monitor": "9.1.0.1,9.1.0.2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.SetRoute(ri); err != nil {
		t.Fatal(err)
	}

	key := vnet.MonitorKey{Mode: vnet.MonitorBFD, Addr: netip.MustParseAddr("9.1.0.1")}
	if vals, _ := conn.App.hash(SessionKey(key)); vals["local_addr"] != "10.1.0.32" {
		t.Errorf("BFD session = %v", vals)
	}
	for _, mon := range []string{"9.1.0.1", "9.1.0.2"} {
		k := vnet.MonitorKey{Mode: vnet.MonitorBFD, Addr: netip.MustParseAddr(mon)}
		if err := rec.SetHealth(k, vnet.Up); err != nil {
			t.Fatal(err)
		}
	}

	vr, err := conn.Asic.ResolveVR(2000)
	if err != nil {
		t.Fatal(err)
	}
	route, err := conn.Asic.GetRoute(vr, "100.100.1.1/32")
	if err != nil || route == nil {
		t.Fatalf("GetRoute = %v, %v", route, err)
	}
	if route.Group == nil || len(route.Group.Members) != 2 {
		t.Errorf("route group = %+v", route.Group)
	}

	states, err := conn.State.RouteStates("Vnet_2000")
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 || states[0].State != "active" || len(states[0].ActiveEndpoints) != 2 {
		t.Errorf("route states = %+v", states)
	}
}

func TestWatchDeliversNotifications(t *testing.T) {
	conn := openTestConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := conn.App.Subscribe(ctx, []string{RouteTunnelTable + ":*"})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	got := make(chan Notification, 4)
	go sub.Run(ctx, func(n Notification) { got <- n })

	if err := conn.App.SetRouteIntent("Vnet_2000", "10.0.0.0/8", map[string]string{"endpoint": "9.0.0.1"}); err != nil {
		t.Fatal(err)
	}
	for {
		select {
		case n := <-got:
			if n.Key == "VNET_ROUTE_TUNNEL_TABLE:Vnet_2000:10.0.0.0/8" && !n.Deleted() {
				return
			}
		case <-ctx.Done():
			t.Fatal("no keyspace notification received")
		}
	}
}

func TestReadSeededSwitch(t *testing.T) {
	conn := openTestConn(t)
	testutil.SeedSwitch(t, testutil.RedisAddr())

	tunnels, err := conn.Config.Tunnels()
	if err != nil || len(tunnels) != 1 || tunnels[0].SrcIP != netip.MustParseAddr("10.1.0.32") {
		t.Fatalf("Tunnels() = %+v, %v", tunnels, err)
	}
	vnets, err := conn.Config.VNets()
	if err != nil || len(vnets) != 1 || vnets[0].VNI != 2000 || !vnets[0].AdvertisePrefix {
		t.Fatalf("VNets() = %+v, %v", vnets, err)
	}
	intents, err := conn.App.RouteIntents()
	if err != nil || len(intents) != 1 {
		t.Fatalf("RouteIntents() = %+v, %v", intents, err)
	}
	if intents[0].VNet != "Vnet_2000" || intents[0].Prefix != "100.100.1.1/32" {
		t.Errorf("intent key = %s:%s", intents[0].VNet, intents[0].Prefix)
	}
	if on, err := conn.Config.TSA(); err != nil || on {
		t.Errorf("TSA() = %v, %v", on, err)
	}
	if err := conn.Config.SetTSA(true); err != nil {
		t.Fatal(err)
	}
	if on, _ := conn.Config.TSA(); !on {
		t.Error("TSA not enabled after SetTSA(true)")
	}
}

func TestInstanceLock(t *testing.T) {
	conn := openTestConn(t)
	if err := conn.State.AcquireLock("vnetorchd", "a", 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := conn.State.AcquireLock("vnetorchd", "a", 5*time.Second); err != nil {
		t.Errorf("re-acquire by holder: %v", err)
	}
	if err := conn.State.AcquireLock("vnetorchd", "b", 5*time.Second); !errors.Is(err, util.ErrLocked) {
		t.Errorf("acquire by other holder = %v, want ErrLocked", err)
	}
	if err := conn.State.ReleaseLock("vnetorchd", "a"); err != nil {
		t.Fatal(err)
	}
	if err := conn.State.AcquireLock("vnetorchd", "b", 5*time.Second); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

func TestOwnedObjectsSurviveRestart(t *testing.T) {
	addr := testutil.Reset(t)
	conn, err := Open(Options{Addr: addr, DBs: DefaultDBNumbers()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()
	s := asic.NewOwningStore(conn.Asic, conn.State)

	nh, err := s.Create(asic.ObjectNextHop, asic.Attrs{asic.AttrNextHopIP: "9.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	rk := asic.RouteKey{Dest: "100.100.1.1/32", SwitchID: conn.Asic.SwitchID(), VR: conn.Asic.DefaultVR()}
	if err := s.SetRoute(rk, asic.Attrs{asic.AttrRouteNextHopID: string(nh)}); err != nil {
		t.Fatal(err)
	}
	if ids, _ := conn.State.Owned(asic.ObjectNextHop); len(ids) != 1 || ids[0] != string(nh) {
		t.Fatalf("owned next hops = %v", ids)
	}

	// A fresh connection sees what the first one recorded.
	again, err := Open(Options{Addr: addr, DBs: DefaultDBNumbers()})
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	n, err := asic.Purge(again.Asic, again.State)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d entries, want 2", n)
	}
	if got, _ := again.Asic.GetRoute(again.Asic.DefaultVR(), "100.100.1.1/32"); got != nil {
		t.Errorf("route survived purge: %+v", got)
	}
	if ids, _ := again.State.Owned(asic.ObjectRouteEntry); len(ids) != 0 {
		t.Errorf("route still owned after purge: %v", ids)
	}
}
