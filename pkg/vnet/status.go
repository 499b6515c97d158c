package vnet

// RouteStatus is a read-only view of one route.
type RouteStatus struct {
	Key        RouteKey
	State      RouteState
	Target     string
	Active     []string
	Endpoints  []string
	Advertised string // advertised prefix, empty when not contributing
	Pending    bool   // VNET not configured
	Error      string // last allocation failure
}

func (r *Reconciler) status(rt *route) RouteStatus {
	s := RouteStatus{
		Key:    rt.key,
		State:  rt.target.state,
		Target: string(rt.target.oid),
		Active: append([]string(nil), rt.active...),
	}
	if rt.intent != nil {
		s.Endpoints = endpointIPs(rt.intent.Endpoints)
	}
	if rt.advAt.IsValid() {
		s.Advertised = rt.advAt.String()
	}
	if _, ok := r.registry.VNet(rt.key.VNet); !ok {
		s.Pending = true
	}
	if rt.lastErr != nil {
		s.Error = rt.lastErr.Error()
	}
	return s
}

// Route returns the status of one route.
func (r *Reconciler) Route(key RouteKey) (RouteStatus, bool) {
	rt, ok := r.routes.get(key)
	if !ok {
		return RouteStatus{}, false
	}
	return r.status(rt), true
}

// Routes returns the status of every route in key order.
func (r *Reconciler) Routes() []RouteStatus {
	out := make([]RouteStatus, 0, r.routes.Len())
	r.routes.each(func(rt *route) {
		out = append(out, r.status(rt))
	})
	return out
}

// NextHops returns every live next hop.
func (r *Reconciler) NextHops() []NextHop { return r.nexthops.All() }

// Groups returns every live next-hop group.
func (r *Reconciler) Groups() []NextHopGroup { return r.groups.All() }

// Sessions returns every monitor session.
func (r *Reconciler) Sessions() []SessionStatus { return r.health.Sessions() }

// Registry exposes the tunnel and VNET registry.
func (r *Reconciler) Registry() *Registry { return r.registry }

// OrderedECMP reports whether groups are built in ordered mode.
func (r *Reconciler) OrderedECMP() bool { return r.ordered }

// TSA reports whether traffic-shift-away is asserted.
func (r *Reconciler) TSA() bool { return r.health.TSA() }
