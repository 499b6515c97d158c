package vnet

import "net/netip"

// SessionConfig is what a monitor session is programmed with.
type SessionConfig struct {
	Key         MonitorKey
	LocalAddr   netip.Addr // tunnel source address
	OverlayDMAC string     // custom monitors only
	RxInterval  int        // ms, 0 for default
	TxInterval  int
}

// MonitorSink programs monitor sessions (APP_DB BFD_SESSION_TABLE and
// VNET_MONITOR_TABLE).
type MonitorSink interface {
	SetSession(cfg SessionConfig) error
	RemoveSession(key MonitorKey) error
}

// StateSink publishes observable route state to STATE_DB.
type StateSink interface {
	SetRouteState(route RouteKey, active []string, state string) error
	DeleteRouteState(route RouteKey) error
	SetAdvertisement(prefix netip.Prefix, profile string) error
	DeleteAdvertisement(prefix netip.Prefix) error
	SetSwitchCapability(fields map[string]string) error
}

// DecapSink programs subnet decap terms (APP_DB TUNNEL_DECAP_TERM_TABLE).
type DecapSink interface {
	SetDecapTerm(tunnel string, prefix netip.Prefix, srcIP string) error
	DeleteDecapTerm(tunnel string, prefix netip.Prefix) error
}

// Transition is one route state change, recorded by a Journal.
type Transition struct {
	Route  RouteKey
	From   RouteState
	To     RouteState
	Active []string
	Target string // ASIC object id of the new target, empty when uninstalled
	Reason string
	Err    error
}

// Journal records route transitions.
type Journal interface {
	Record(t Transition)
}

// Discard implements every sink as a no-op.
type Discard struct{}

func (Discard) SetSession(SessionConfig) error { return nil }
func (Discard) RemoveSession(MonitorKey) error { return nil }
func (Discard) SetRouteState(RouteKey, []string, string) error { return nil }
func (Discard) DeleteRouteState(RouteKey) error { return nil }
func (Discard) SetAdvertisement(netip.Prefix, string) error { return nil }
func (Discard) DeleteAdvertisement(netip.Prefix) error { return nil }
func (Discard) SetSwitchCapability(map[string]string) error { return nil }
func (Discard) SetDecapTerm(string, netip.Prefix, string) error { return nil }
func (Discard) DeleteDecapTerm(string, netip.Prefix) error { return nil }
func (Discard) Record(Transition) {}
