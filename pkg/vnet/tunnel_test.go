package vnet

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/util"
)

func TestRegistryTunnelLifecycle(t *testing.T) {
	store := asic.NewMemStore()
	reg := NewRegistry(store)

	if _, err := reg.CreateVNet(VNetConfig{Name: "Vnet_2000", Tunnel: testTunnel, VNI: 2000}); !errors.Is(err, util.ErrDependencyMissing) {
		t.Fatalf("VNET without tunnel: err = %v, want ErrDependencyMissing", err)
	}
	if err := reg.SetTunnel(TunnelConfig{Name: testTunnel}); !errors.Is(err, util.ErrValidationFailed) {
		t.Fatalf("tunnel without src_ip: err = %v", err)
	}
	if err := reg.SetTunnel(TunnelConfig{Name: testTunnel, SrcIP: netip.MustParseAddr("10.1.0.32")}); err != nil {
		t.Fatal(err)
	}
	if store.Count(asic.ObjectTunnel) != 0 {
		t.Fatal("tunnel object created before any VNET uses it")
	}

	a, err := reg.CreateVNet(VNetConfig{Name: "Vnet_2000", Tunnel: testTunnel, VNI: 2000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.CreateVNet(VNetConfig{Name: "Vnet_3000", Tunnel: testTunnel, VNI: 3000}); err != nil {
		t.Fatal(err)
	}
	if store.Count(asic.ObjectTunnel) != 1 || store.Count(asic.ObjectTunnelMap) != 2 {
		t.Fatalf("tunnel objects: tunnels=%d maps=%d", store.Count(asic.ObjectTunnel), store.Count(asic.ObjectTunnelMap))
	}
	if store.Count(asic.ObjectVirtualRouter) != 2 || store.Count(asic.ObjectTunnelMapEntry) != 4 {
		t.Fatalf("vnet objects: vrs=%d entries=%d", store.Count(asic.ObjectVirtualRouter), store.Count(asic.ObjectTunnelMapEntry))
	}
	entry, _ := store.Get(asic.ObjectTunnelMapEntry, a.DecapEntry)
	if entry[asic.AttrMapEntryVNIKey] != "2000" || entry[asic.AttrMapEntryVRValue] != string(a.VROID) {
		t.Errorf("decap map entry = %v", entry)
	}

	if err := reg.SetTunnel(TunnelConfig{Name: testTunnel, SrcIP: netip.MustParseAddr("10.1.0.33")}); !errors.Is(err, util.ErrInUse) {
		t.Errorf("changing src_ip of a used tunnel: err = %v", err)
	}

	if err := reg.DeleteVNet("Vnet_2000"); err != nil {
		t.Fatal(err)
	}
	if store.Count(asic.ObjectTunnel) != 1 {
		t.Fatal("tunnel removed while a VNET still uses it")
	}
	if err := reg.DeleteVNet("Vnet_3000"); err != nil {
		t.Fatal(err)
	}
	for _, typ := range []asic.ObjectType{asic.ObjectTunnel, asic.ObjectTunnelMap, asic.ObjectTunnelMapEntry, asic.ObjectVirtualRouter} {
		if n := store.Count(typ); n != 0 {
			t.Errorf("%s count = %d, want 0", typ, n)
		}
	}
	if err := reg.DeleteTunnel(testTunnel); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryCreateVNetRollback(t *testing.T) {
	store := asic.NewMemStore()
	reg := NewRegistry(store)
	if err := reg.SetTunnel(TunnelConfig{Name: testTunnel, SrcIP: netip.MustParseAddr("10.1.0.32")}); err != nil {
		t.Fatal(err)
	}
	store.FailAfter(asic.OpCreate, asic.ObjectTunnelMapEntry, 1, 1, nil)
	if _, err := reg.CreateVNet(VNetConfig{Name: "Vnet_2000", Tunnel: testTunnel, VNI: 2000}); !errors.Is(err, util.ErrAllocation) {
		t.Fatalf("err = %v, want ErrAllocation", err)
	}
	for _, typ := range []asic.ObjectType{asic.ObjectTunnel, asic.ObjectTunnelMap, asic.ObjectTunnelMapEntry, asic.ObjectVirtualRouter} {
		if n := store.Count(typ); n != 0 {
			t.Errorf("%s count = %d after rollback, want 0", typ, n)
		}
	}
	if _, ok := reg.VNet("Vnet_2000"); ok {
		t.Error("failed VNET registered")
	}
}
