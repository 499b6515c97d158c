package daemon

import (
	"sort"
	"strings"

	"github.com/newtron-network/vnetorch/pkg/sonic"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

// Keyspace patterns watched per database.
var (
	configPatterns = []string{
		sonic.VNetTable + "|*",
		sonic.VXLANTunnelTable + "|*",
		sonic.SubnetDecapTable + "|*",
		sonic.DeviceGlobalTable + "|*",
	}
	appPatterns = []string{
		sonic.RouteTunnelTable + ":*",
		sonic.SwitchTable + ":*",
	}
	statePatterns = []string{
		sonic.BFDSessionTable + "|*",
		sonic.MonitorTable + "|*",
	}
)

// translator turns keyspace notifications into reconciler events by
// re-reading the changed entry.
type translator struct {
	src            Source
	orderedDefault bool
}

// configEvent handles CONFIG_DB notifications.
func (t translator) configEvent(n sonic.Notification) (vnet.Event, error) {
	table, name, ok := strings.Cut(n.Key, "|")
	if !ok {
		return nil, nil
	}
	var vals map[string]string
	if !n.Deleted() {
		var err error
		if vals, err = t.src.ConfigEntry(table, name); err != nil {
			return nil, err
		}
	}

	switch table {
	case sonic.VNetTable:
		if vals == nil {
			return vnet.VNetEvent{Config: vnet.VNetConfig{Name: name}, Deleted: true}, nil
		}
		cfg, err := sonic.ParseVNet(name, vals)
		if err != nil {
			return nil, err
		}
		return vnet.VNetEvent{Config: cfg}, nil
	case sonic.VXLANTunnelTable:
		if vals == nil {
			return vnet.TunnelEvent{Config: vnet.TunnelConfig{Name: name}, Deleted: true}, nil
		}
		cfg, err := sonic.ParseTunnel(name, vals)
		if err != nil {
			return nil, err
		}
		return vnet.TunnelEvent{Config: cfg}, nil
	case sonic.SubnetDecapTable:
		if name != "AZURE" {
			return nil, nil
		}
		return vnet.DecapEvent{Config: sonic.ParseSubnetDecap(vals)}, nil
	case sonic.DeviceGlobalTable:
		if name != "STATE" {
			return nil, nil
		}
		return vnet.TSAEvent{Enabled: vals["tsa_enabled"] == "true"}, nil
	}
	return nil, nil
}

// appEvent handles APP_DB notifications.
func (t translator) appEvent(n sonic.Notification) (vnet.Event, error) {
	if strings.HasPrefix(n.Key, sonic.SwitchTable+":") {
		if n.Key != sonic.SwitchTable+":switch" {
			return nil, nil
		}
		enabled, ok, err := t.src.OrderedECMP()
		if err != nil {
			return nil, err
		}
		if !ok {
			enabled = t.orderedDefault
		}
		return vnet.OrderedECMPEvent{Enabled: enabled}, nil
	}

	vnetName, prefix, ok := sonic.ParseIntentKey(n.Key)
	if !ok {
		return nil, nil
	}
	ev := vnet.RouteIntentEvent{VNet: vnetName, Prefix: prefix}
	if n.Deleted() {
		return ev, nil
	}
	fields, err := t.src.RouteIntent(vnetName, prefix)
	if err != nil {
		return nil, err
	}
	ev.Fields = fields
	return ev, nil
}

// stateEvent handles STATE_DB monitor session notifications.
func (t translator) stateEvent(n sonic.Notification) (vnet.Event, error) {
	key, ok := sonic.ParseStateKey(n.Key)
	if !ok {
		return nil, nil
	}
	if n.Deleted() {
		return vnet.HealthEvent{Key: key, State: vnet.Unknown}, nil
	}
	state, err := t.src.SessionState(key)
	if err != nil {
		return nil, err
	}
	return vnet.HealthEvent{Key: key, State: state}, nil
}

// initialEvents reads the full current state in dependency order: tunnels,
// VNETs, subnet decap, TSA, ordered ECMP, route intents, then health.
func (t translator) initialEvents() ([]vnet.Event, error) {
	var events []vnet.Event

	tunnels, err := t.src.Tunnels()
	if err != nil {
		return nil, err
	}
	for _, cfg := range tunnels {
		events = append(events, vnet.TunnelEvent{Config: cfg})
	}

	vnets, err := t.src.VNets()
	if err != nil {
		return nil, err
	}
	for _, cfg := range vnets {
		events = append(events, vnet.VNetEvent{Config: cfg})
	}

	decap, err := t.src.SubnetDecap()
	if err != nil {
		return nil, err
	}
	events = append(events, vnet.DecapEvent{Config: decap})

	tsa, err := t.src.TSA()
	if err != nil {
		return nil, err
	}
	events = append(events, vnet.TSAEvent{Enabled: tsa})

	ordered, ok, err := t.src.OrderedECMP()
	if err != nil {
		return nil, err
	}
	if !ok {
		ordered = t.orderedDefault
	}
	events = append(events, vnet.OrderedECMPEvent{Enabled: ordered})

	intents, err := t.src.RouteIntents()
	if err != nil {
		return nil, err
	}
	sort.Slice(intents, func(i, j int) bool {
		if intents[i].VNet != intents[j].VNet {
			return intents[i].VNet < intents[j].VNet
		}
		return intents[i].Prefix < intents[j].Prefix
	})
	for _, in := range intents {
		events = append(events, vnet.RouteIntentEvent{VNet: in.VNet, Prefix: in.Prefix, Fields: in.Fields})
	}

	states, err := t.src.SessionStates()
	if err != nil {
		return nil, err
	}
	keys := make([]vnet.MonitorKey, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		events = append(events, vnet.HealthEvent{Key: k, State: states[k]})
	}

	return events, nil
}
