package vnet

import (
	"net/netip"
	"sort"
	"testing"

	"github.com/newtron-network/vnetorch/pkg/asic"
)

type routeStateEntry struct {
	Active []string
	State  string
}

// fakeSink records everything the reconciler publishes.
type fakeSink struct {
	sessions    map[MonitorKey]SessionConfig
	sessionSets int
	routeState  map[RouteKey]routeStateEntry
	adverts     map[netip.Prefix]string
	decapTerms  map[netip.Prefix]string
	caps        map[string]string
	transitions []Transition

	failSession error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		sessions:   make(map[MonitorKey]SessionConfig),
		routeState: make(map[RouteKey]routeStateEntry),
		adverts:    make(map[netip.Prefix]string),
		decapTerms: make(map[netip.Prefix]string),
		caps:       make(map[string]string),
	}
}

func (s *fakeSink) SetSession(cfg SessionConfig) error {
	if s.failSession != nil {
		return s.failSession
	}
	s.sessions[cfg.Key] = cfg
	s.sessionSets++
	return nil
}

func (s *fakeSink) RemoveSession(key MonitorKey) error {
	delete(s.sessions, key)
	return nil
}

func (s *fakeSink) SetRouteState(route RouteKey, active []string, state string) error {
	s.routeState[route] = routeStateEntry{Active: active, State: state}
	return nil
}

func (s *fakeSink) DeleteRouteState(route RouteKey) error {
	delete(s.routeState, route)
	return nil
}

func (s *fakeSink) SetAdvertisement(prefix netip.Prefix, profile string) error {
	s.adverts[prefix] = profile
	return nil
}

func (s *fakeSink) DeleteAdvertisement(prefix netip.Prefix) error {
	delete(s.adverts, prefix)
	return nil
}

func (s *fakeSink) SetSwitchCapability(fields map[string]string) error {
	for k, v := range fields {
		s.caps[k] = v
	}
	return nil
}

func (s *fakeSink) SetDecapTerm(tunnel string, prefix netip.Prefix, srcIP string) error {
	s.decapTerms[prefix] = tunnel + " " + srcIP
	return nil
}

func (s *fakeSink) DeleteDecapTerm(tunnel string, prefix netip.Prefix) error {
	delete(s.decapTerms, prefix)
	return nil
}

func (s *fakeSink) Record(t Transition) {
	s.transitions = append(s.transitions, t)
}

const (
	testVNet   = "Vnet_2000"
	testTunnel = "tunnel_v4"
)

type fixture struct {
	t     *testing.T
	store *asic.MemStore
	sink  *fakeSink
	rec   *Reconciler
	vr    asic.OID
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	store := asic.NewMemStore()
	sink := newFakeSink()
	cfg := Config{Store: store, Monitors: sink, State: sink, Decap: sink, Journal: sink}
	for _, opt := range opts {
		opt(&cfg)
	}
	f := &fixture{t: t, store: store, sink: sink, rec: NewReconciler(cfg)}
	if err := f.rec.SetTunnel(TunnelConfig{Name: testTunnel, SrcIP: netip.MustParseAddr("10.1.0.32")}); err != nil {
		t.Fatalf("SetTunnel: %v", err)
	}
	if err := f.rec.SetVNet(VNetConfig{Name: testVNet, Tunnel: testTunnel, VNI: 2000, AdvertisePrefix: true}); err != nil {
		t.Fatalf("SetVNet: %v", err)
	}
	v, _ := f.rec.Registry().VNet(testVNet)
	f.vr = v.VROID
	return f
}

func (f *fixture) setRoute(vnet, prefix string, fields map[string]string) error {
	ri, err := ParseRouteIntent(vnet, prefix, fields)
	if err != nil {
		return err
	}
	return f.rec.SetRoute(ri)
}

func (f *fixture) mustSetRoute(prefix string, fields map[string]string) {
	f.t.Helper()
	if err := f.setRoute(testVNet, prefix, fields); err != nil {
		f.t.Fatalf("SetRoute(%s): %v", prefix, err)
	}
}

func (f *fixture) mustDeleteRoute(prefix string) {
	f.t.Helper()
	if err := f.rec.DeleteRoute(routeKey(testVNet, prefix)); err != nil {
		f.t.Fatalf("DeleteRoute(%s): %v", prefix, err)
	}
}

func (f *fixture) bfd(monitor string, l Liveness) {
	f.t.Helper()
	if err := f.rec.SetHealth(bfdKey(monitor), l); err != nil {
		f.t.Fatalf("SetHealth(%s, %s): %v", monitor, l, err)
	}
}

// target returns the ROUTE_ENTRY next hop id of prefix, empty when absent.
func (f *fixture) target(prefix string) asic.OID {
	a, ok := f.store.Route(prefix, f.vr)
	if !ok {
		return ""
	}
	return asic.OID(a[asic.AttrRouteNextHopID])
}

// targetIPs resolves prefix's route entry to its sorted next-hop IPs, or nil
// when the route is not installed.
func (f *fixture) targetIPs(prefix string) []string {
	f.t.Helper()
	oid := f.target(prefix)
	if oid == "" {
		return nil
	}
	switch asic.TypeOf(oid) {
	case asic.ObjectNextHop:
		a, ok := f.store.Get(asic.ObjectNextHop, oid)
		if !ok {
			f.t.Fatalf("route %s points at missing next hop %s", prefix, oid)
		}
		return []string{a[asic.AttrNextHopIP]}
	case asic.ObjectNextHopGroup:
		return f.groupIPs(oid)
	}
	f.t.Fatalf("route %s points at %s of unexpected type", prefix, oid)
	return nil
}

func (f *fixture) groupIPs(group asic.OID) []string {
	f.t.Helper()
	if _, ok := f.store.Get(asic.ObjectNextHopGroup, group); !ok {
		f.t.Fatalf("next hop group %s missing", group)
	}
	var ips []string
	for _, m := range f.store.Members(group) {
		nh, ok := f.store.Get(asic.ObjectNextHop, asic.OID(m[asic.AttrGroupMemberNextHopID]))
		if !ok {
			f.t.Fatalf("group member references missing next hop %s", m[asic.AttrGroupMemberNextHopID])
		}
		ips = append(ips, nh[asic.AttrNextHopIP])
	}
	sort.Strings(ips)
	return ips
}

func (f *fixture) count(t asic.ObjectType) int { return f.store.Count(t) }

func routeKey(vnet, prefix string) RouteKey {
	return RouteKey{VNet: vnet, Prefix: netip.MustParsePrefix(prefix)}
}

func bfdKey(monitor string) MonitorKey {
	return MonitorKey{Mode: MonitorBFD, Addr: netip.MustParseAddr(monitor)}
}
