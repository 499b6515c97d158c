package vnet

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/util"
)

// Switch capability fields published to STATE_DB SWITCH_CAPABILITY|switch.
const (
	CapOrderedECMP     = "ORDERED_ECMP_CAPABLE"
	CapMaxNextHopGroup = "MAX_NEXTHOP_GROUP_COUNT"
)

// Config wires a Reconciler to its collaborators. Nil sinks discard.
type Config struct {
	Store            asic.Store
	Monitors         MonitorSink
	State            StateSink
	Decap            DecapSink
	Journal          Journal
	MaxNextHopGroups int
	OrderedECMP      bool
}

// Reconciler owns the route table and the shared resource pools. It is not
// safe for concurrent use; a Loop serializes all calls.
type Reconciler struct {
	store    asic.Store
	registry *Registry
	health   *HealthTracker
	nexthops *NextHopPool
	groups   *NextHopGroupPool
	routes   *RouteTable
	adv      *Advertiser
	decap    *SubnetDecap
	state    StateSink
	journal  Journal
	ordered  bool
}

// NewReconciler creates a reconciler with empty pools.
func NewReconciler(cfg Config) *Reconciler {
	if cfg.Monitors == nil {
		cfg.Monitors = Discard{}
	}
	if cfg.State == nil {
		cfg.State = Discard{}
	}
	if cfg.Decap == nil {
		cfg.Decap = Discard{}
	}
	if cfg.Journal == nil {
		cfg.Journal = Discard{}
	}
	registry := NewRegistry(cfg.Store)
	nexthops := NewNextHopPool(cfg.Store, registry.TunnelOID)
	return &Reconciler{
		store:    cfg.Store,
		registry: registry,
		health:   NewHealthTracker(cfg.Monitors),
		nexthops: nexthops,
		groups:   NewNextHopGroupPool(cfg.Store, nexthops, cfg.MaxNextHopGroups),
		routes:   NewRouteTable(),
		adv:      NewAdvertiser(cfg.State),
		decap:    NewSubnetDecap(cfg.Decap),
		state:    cfg.State,
		journal:  cfg.Journal,
		ordered:  cfg.OrderedECMP,
	}
}

// PublishCapabilities writes the switch capability entry.
func (r *Reconciler) PublishCapabilities() error {
	return r.state.SetSwitchCapability(map[string]string{
		CapOrderedECMP:     strconv.FormatBool(r.ordered),
		CapMaxNextHopGroup: strconv.Itoa(r.groups.Capacity()),
	})
}

// SetRoute applies a route intent. A route whose VNET is not configured yet
// is kept and reconciled when the VNET appears.
func (r *Reconciler) SetRoute(ri *RouteIntent) error {
	if err := r.checkProfile(ri); err != nil {
		return err
	}
	rt, exists := r.routes.get(ri.Key)
	if !exists {
		rt = &route{key: ri.Key, monitors: make(map[MonitorKey]struct{})}
		r.routes.put(rt)
		routesGauge.WithLabelValues(Uninstalled.String()).Inc()
	}
	prev := rt.intent
	rt.intent = ri

	v, ok := r.registry.VNet(ri.Key.VNet)
	if !ok {
		util.WithRoute(ri.Key.VNet, ri.Key.Prefix.String()).Infof("vnet %s not configured, route pending", ri.Key.VNet)
		return nil
	}
	if err := r.syncMonitors(rt, v); err != nil {
		if prev == nil {
			r.forget(rt)
		} else {
			rt.intent = prev
		}
		return err
	}
	return r.settle(rt, "intent")
}

// DeleteRoute withdraws and forgets a route. Monitor sessions shared with
// other routes stay.
func (r *Reconciler) DeleteRoute(key RouteKey) error {
	rt, ok := r.routes.get(key)
	if !ok {
		return nil
	}
	log := util.WithRoute(key.VNet, key.Prefix.String())

	from := rt.target.state
	if rt.target.state.Installed() {
		if err := r.store.RemoveRoute(r.asicRouteKey(rt, rt.vr)); err != nil {
			return util.NewResourceAllocationError("remove", string(asic.ObjectRouteEntry), key.String(), err)
		}
		old := rt.target
		r.setTarget(rt, target{})
		if err := r.releaseTarget(old); err != nil {
			log.Warnf("releasing %s: %v", old.id(), err)
		}
	}

	var errs []error
	if err := r.withdraw(rt); err != nil {
		errs = append(errs, err)
	}
	for k := range rt.monitors {
		if err := r.health.Unref(key, k); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(rt.monitors, k)
	}
	if err := r.state.DeleteRouteState(key); err != nil {
		errs = append(errs, fmt.Errorf("deleting route state: %w", err))
	}
	r.forget(rt)
	r.journal.Record(Transition{Route: key, From: from, To: Uninstalled, Reason: "delete"})
	log.Info("route deleted")
	return errors.Join(errs...)
}

func (r *Reconciler) forget(rt *route) {
	r.routes.delete(rt.key)
	routesGauge.WithLabelValues(rt.target.state.String()).Dec()
}

// SetHealth applies a monitor session state report.
func (r *Reconciler) SetHealth(key MonitorKey, l Liveness) error {
	affected, err := r.health.SetState(key, l)
	if err != nil {
		return err
	}
	return r.resolveAll(affected, "health "+key.String()+" "+l.String())
}

// SetTSA asserts or clears traffic-shift-away.
func (r *Reconciler) SetTSA(on bool) error {
	affected := r.health.SetTSA(on)
	util.WithComponent("health").Infof("tsa enabled=%t, %d routes affected", on, len(affected))
	return r.resolveAll(affected, "tsa")
}

// SetOrderedECMP switches group construction between unordered and ordered
// ECMP and re-keys every installed group.
func (r *Reconciler) SetOrderedECMP(on bool) error {
	if r.ordered == on {
		return nil
	}
	r.ordered = on
	var errs []error
	if err := r.PublishCapabilities(); err != nil {
		errs = append(errs, err)
	}
	keys := r.routes.keys(func(rt *route) bool { return rt.target.state == InstalledGroup })
	if err := r.resolveAll(keys, "ordered_ecmp"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SetTunnel adds or updates a VXLAN tunnel.
func (r *Reconciler) SetTunnel(cfg TunnelConfig) error {
	return r.registry.SetTunnel(cfg)
}

// DeleteTunnel removes a VXLAN tunnel no VNET uses.
func (r *Reconciler) DeleteTunnel(name string) error {
	return r.registry.DeleteTunnel(name)
}

// SetVNet creates or updates a VNET. Pending routes of a new VNET are
// reconciled. Changing the tunnel or VNI of a VNET with routes is refused.
func (r *Reconciler) SetVNet(cfg VNetConfig) error {
	v, exists := r.registry.VNet(cfg.Name)
	if exists && (v.Tunnel != cfg.Tunnel || v.VNI != cfg.VNI) {
		if users := r.vnetRoutes(cfg.Name); len(users) > 0 {
			return util.NewInUseError("VNET "+cfg.Name, users...)
		}
		if err := r.registry.DeleteVNet(cfg.Name); err != nil {
			return err
		}
		exists = false
	}

	if exists {
		if _, err := r.registry.UpdateVNet(cfg); err != nil {
			return err
		}
	} else if _, err := r.registry.CreateVNet(cfg); err != nil {
		return err
	}

	var errs []error
	r.routes.eachInVNet(cfg.Name, func(rt *route) {
		if err := r.reconcileRoute(rt, "vnet "+cfg.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.key, err))
		}
	})
	return errors.Join(errs...)
}

// DeleteVNet removes a VNET that no route uses.
func (r *Reconciler) DeleteVNet(name string) error {
	if users := r.vnetRoutes(name); len(users) > 0 {
		return util.NewInUseError("VNET "+name, users...)
	}
	return r.registry.DeleteVNet(name)
}

// SetSubnetDecap applies the SUBNET_DECAP configuration and re-derives every
// decap term.
func (r *Reconciler) SetSubnetDecap(cfg DecapConfig) error {
	if cfg == r.decap.Config() {
		return nil
	}
	var errs []error
	r.routes.each(func(rt *route) {
		if !rt.decapAt.IsValid() {
			return
		}
		if err := r.decap.Remove(rt.decapAt, rt.key); err != nil {
			errs = append(errs, err)
			return
		}
		rt.decapAt = netip.Prefix{}
	})
	r.decap.Configure(cfg)
	util.WithComponent("decap").Infof("subnet decap enabled=%t src_ip=%s src_ip_v6=%s", cfg.Enabled, cfg.SrcIP, cfg.SrcIPv6)
	if err := r.resolveAll(r.routes.keys(nil), "subnet_decap"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Sweep deletes published route states and advertisements that no route
// in the table accounts for, such as those of intents removed while the
// daemon was down. It returns how many entries were deleted.
func (r *Reconciler) Sweep(states []RouteKey, adverts []netip.Prefix) (int, error) {
	var n int
	var errs []error
	for _, k := range states {
		if _, ok := r.routes.get(k); ok {
			continue
		}
		if err := r.state.DeleteRouteState(k); err != nil {
			errs = append(errs, fmt.Errorf("deleting route state: %w", err))
			continue
		}
		n++
	}
	for _, p := range adverts {
		if _, ok := r.adv.Advertised(p); ok {
			continue
		}
		if err := r.state.DeleteAdvertisement(p); err != nil {
			errs = append(errs, fmt.Errorf("withdrawing %s: %w", p, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (r *Reconciler) vnetRoutes(name string) []string {
	var users []string
	r.routes.eachInVNet(name, func(rt *route) {
		users = append(users, rt.key.Prefix.String())
	})
	return users
}

// reconcileRoute brings monitors and target in line with the route's intent.
func (r *Reconciler) reconcileRoute(rt *route, reason string) error {
	v, ok := r.registry.VNet(rt.key.VNet)
	if !ok {
		return nil
	}
	if err := r.syncMonitors(rt, v); err != nil {
		return err
	}
	return r.settle(rt, reason)
}

// settle resolves the route, then drops the sessions its intent no longer
// uses. Sessions are pruned even when the resolve fails.
func (r *Reconciler) settle(rt *route, reason string) error {
	err := r.resolve(rt, reason)
	return errors.Join(err, r.pruneMonitors(rt))
}

func (r *Reconciler) resolveAll(keys []RouteKey, reason string) error {
	var errs []error
	for _, k := range keys {
		rt, ok := r.routes.get(k)
		if !ok {
			continue
		}
		if err := r.settle(rt, reason); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// checkProfile rejects an intent whose advertisement profile conflicts with
// another route advertising the same prefix.
func (r *Reconciler) checkProfile(ri *RouteIntent) error {
	if ri.Profile == "" {
		return nil
	}
	var err error
	r.routes.each(func(other *route) {
		if err != nil || other.key == ri.Key || other.intent == nil {
			return
		}
		if other.intent.AdvPrefix == ri.AdvPrefix && other.intent.Profile != "" && other.intent.Profile != ri.Profile {
			err = util.NewMalformedIntentError(ri.Key.String(), fmt.Sprintf(
				"profile %q for %s conflicts with profile %q of %s", ri.Profile, ri.AdvPrefix, other.intent.Profile, other.key))
		}
	})
	return err
}

func (r *Reconciler) sessionConfig(ri *RouteIntent, v *VNet, key MonitorKey) SessionConfig {
	cfg := SessionConfig{Key: key, RxInterval: ri.RxTimer, TxInterval: ri.TxTimer}
	if t, ok := r.registry.Tunnel(v.Tunnel); ok {
		cfg.LocalAddr = t.SrcIP
	}
	if key.Mode == MonitorCustom {
		cfg.OverlayDMAC = v.OverlayDMAC
	}
	return cfg
}

// syncMonitors references every session the intent needs. On failure the
// references taken by this call are dropped again.
func (r *Reconciler) syncMonitors(rt *route, v *VNet) error {
	var added []MonitorKey
	for _, k := range rt.intent.Monitors() {
		_, had := rt.monitors[k]
		if err := r.health.Ref(rt.key, r.sessionConfig(rt.intent, v, k)); err != nil {
			for _, a := range added {
				if uerr := r.health.Unref(rt.key, a); uerr != nil {
					util.Warnf("rollback: %v", uerr)
				}
				delete(rt.monitors, a)
			}
			return err
		}
		if !had {
			rt.monitors[k] = struct{}{}
			added = append(added, k)
		}
	}
	return nil
}

// pruneMonitors drops sessions the current intent no longer uses.
func (r *Reconciler) pruneMonitors(rt *route) error {
	want := make(map[MonitorKey]bool)
	for _, k := range rt.intent.Monitors() {
		want[k] = true
	}
	var errs []error
	for k := range rt.monitors {
		if want[k] {
			continue
		}
		if err := r.health.Unref(rt.key, k); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(rt.monitors, k)
	}
	return errors.Join(errs...)
}

// liveEndpoints returns the endpoints the route should forward to: the live
// primaries if any, else the live secondaries.
func (r *Reconciler) liveEndpoints(ri *RouteIntent) []Endpoint {
	var primary, secondary []Endpoint
	for _, ep := range ri.Endpoints {
		if ep.Monitored() && r.health.State(ri.monitorKey(ep)) != Up {
			continue
		}
		if ri.HasPrimary && !ep.Primary {
			secondary = append(secondary, ep)
		} else {
			primary = append(primary, ep)
		}
	}
	if len(primary) == 0 {
		return secondary
	}
	return primary
}

func nextHopKey(v *VNet, ep Endpoint) NextHopKey {
	vni := ep.VNI
	if vni == 0 {
		vni = v.VNI
	}
	return NextHopKey{Tunnel: v.Tunnel, IP: ep.IP, VNI: vni, MAC: ep.MAC}
}

func (r *Reconciler) asicRouteKey(rt *route, vr asic.OID) asic.RouteKey {
	return asic.RouteKey{Dest: rt.key.Prefix.String(), SwitchID: r.store.SwitchID(), VR: vr}
}

// resolve moves the route to the target matching its live endpoints. The new
// target is acquired and programmed before the old one is released; on
// failure the route keeps its previous target.
func (r *Reconciler) resolve(rt *route, reason string) error {
	v, ok := r.registry.VNet(rt.key.VNet)
	if !ok || rt.intent == nil {
		return nil
	}
	log := util.WithRoute(rt.key.VNet, rt.key.Prefix.String())
	live := r.liveEndpoints(rt.intent)

	var next target
	var members []Member
	switch len(live) {
	case 0:
	case 1:
		next = target{state: InstalledSingle, nexthop: nextHopKey(v, live[0])}
	default:
		for _, ep := range live {
			m := Member{NextHop: nextHopKey(v, ep)}
			if r.ordered {
				m.Seq = ep.Seq
			}
			members = append(members, m)
		}
		next = target{state: InstalledGroup, group: GroupID(members, r.ordered)}
	}

	if next.id() == rt.target.id() {
		rt.lastErr = nil
		return r.publish(rt, v, live)
	}

	switch next.state {
	case InstalledSingle:
		nh, err := r.nexthops.Acquire(next.nexthop)
		if err != nil {
			return r.failed(rt, reason, err)
		}
		next.oid = nh.OID
	case InstalledGroup:
		g, err := r.groups.Acquire(members, r.ordered)
		if err != nil {
			return r.failed(rt, reason, err)
		}
		next.oid = g.OID
	}

	rk := r.asicRouteKey(rt, v.VROID)
	if next.state.Installed() {
		if err := r.store.SetRoute(rk, asic.Attrs{asic.AttrRouteNextHopID: string(next.oid)}); err != nil {
			if rerr := r.releaseTarget(next); rerr != nil {
				log.Warnf("releasing %s after failed install: %v", next.id(), rerr)
			}
			return r.failed(rt, reason, util.NewResourceAllocationError("set", string(asic.ObjectRouteEntry), rk.Dest, err))
		}
	} else if err := r.store.RemoveRoute(r.asicRouteKey(rt, rt.vr)); err != nil {
		return r.failed(rt, reason, util.NewResourceAllocationError("remove", string(asic.ObjectRouteEntry), rk.Dest, err))
	}

	old := rt.target
	r.setTarget(rt, next)
	rt.vr = v.VROID
	rt.lastErr = nil
	if err := r.releaseTarget(old); err != nil {
		log.Warnf("releasing %s: %v", old.id(), err)
	}

	active := endpointIPs(live)
	log.WithFields(logrus.Fields{
		"from":   old.state.String(),
		"to":     next.state.String(),
		"target": string(next.oid),
	}).Infof("route %s (%s), active endpoints [%s]", next.state, reason, util.JoinSorted(active))
	r.journal.Record(Transition{
		Route:  rt.key,
		From:   old.state,
		To:     next.state,
		Active: active,
		Target: string(next.oid),
		Reason: reason,
	})
	return r.publish(rt, v, live)
}

func (r *Reconciler) failed(rt *route, reason string, err error) error {
	rt.lastErr = err
	r.journal.Record(Transition{Route: rt.key, From: rt.target.state, To: rt.target.state, Reason: reason, Err: err})
	return err
}

func (r *Reconciler) setTarget(rt *route, t target) {
	if rt.target.state != t.state {
		routesGauge.WithLabelValues(rt.target.state.String()).Dec()
		routesGauge.WithLabelValues(t.state.String()).Inc()
	}
	rt.target = t
}

func (r *Reconciler) releaseTarget(t target) error {
	switch t.state {
	case InstalledSingle:
		return r.nexthops.Release(t.nexthop)
	case InstalledGroup:
		return r.groups.Release(t.group)
	}
	return nil
}

// publish writes route state and updates the route's advertisement and
// decap contributions.
func (r *Reconciler) publish(rt *route, v *VNet, live []Endpoint) error {
	var errs []error
	installed := rt.target.state.Installed()

	state := "inactive"
	var active []string
	if installed {
		state = "active"
		active = endpointIPs(live)
	}
	rt.active = active
	if err := r.state.SetRouteState(rt.key, active, state); err != nil {
		errs = append(errs, fmt.Errorf("writing route state: %w", err))
	}

	wantAdv := installed && v.AdvertisePrefix
	if rt.advAt.IsValid() && (!wantAdv || rt.advAt != rt.intent.AdvPrefix) {
		if err := r.adv.Remove(rt.advAt, rt.key); err != nil {
			errs = append(errs, err)
		} else {
			rt.advAt = netip.Prefix{}
		}
	}
	if wantAdv {
		if err := r.adv.Add(rt.intent.AdvPrefix, rt.intent.Profile, rt.key); err != nil {
			errs = append(errs, err)
		} else {
			rt.advAt = rt.intent.AdvPrefix
		}
	}

	wantDecap := installed && r.decap.Enabled() && r.anyMonitorUp(rt.intent, live)
	if rt.decapAt.IsValid() && (!wantDecap || rt.decapAt != rt.intent.AdvPrefix) {
		if err := r.decap.Remove(rt.decapAt, rt.key); err != nil {
			errs = append(errs, err)
		} else {
			rt.decapAt = netip.Prefix{}
		}
	}
	if wantDecap {
		if err := r.decap.Add(rt.intent.AdvPrefix, rt.key); err != nil {
			errs = append(errs, err)
		} else {
			rt.decapAt = rt.intent.AdvPrefix
		}
	}
	return errors.Join(errs...)
}

// withdraw removes the route's advertisement and decap contributions.
func (r *Reconciler) withdraw(rt *route) error {
	var errs []error
	if rt.advAt.IsValid() {
		if err := r.adv.Remove(rt.advAt, rt.key); err != nil {
			errs = append(errs, err)
		} else {
			rt.advAt = netip.Prefix{}
		}
	}
	if rt.decapAt.IsValid() {
		if err := r.decap.Remove(rt.decapAt, rt.key); err != nil {
			errs = append(errs, err)
		} else {
			rt.decapAt = netip.Prefix{}
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) anyMonitorUp(ri *RouteIntent, live []Endpoint) bool {
	for _, ep := range live {
		if ep.Monitored() && r.health.State(ri.monitorKey(ep)) == Up {
			return true
		}
	}
	return false
}

func endpointIPs(eps []Endpoint) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.IP.String()
	}
	return out
}
