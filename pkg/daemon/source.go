package daemon

import (
	"net/netip"

	"github.com/newtron-network/vnetorch/pkg/sonic"
	"github.com/newtron-network/vnetorch/pkg/util"
	"github.com/newtron-network/vnetorch/pkg/vnet"
)

// Source is everything the daemon reads from the switch databases.
type Source interface {
	Tunnels() ([]vnet.TunnelConfig, error)
	VNets() ([]vnet.VNetConfig, error)
	SubnetDecap() (vnet.DecapConfig, error)
	TSA() (bool, error)
	ConfigEntry(table, key string) (map[string]string, error)

	RouteIntents() ([]sonic.Intent, error)
	RouteIntent(vnetName, prefix string) (map[string]string, error)
	OrderedECMP() (enabled, ok bool, err error)

	SessionStates() (map[vnet.MonitorKey]vnet.Liveness, error)
	SessionState(key vnet.MonitorKey) (vnet.Liveness, error)

	// Published lists the route states and advertisements currently in
	// STATE_DB, whoever wrote them.
	Published() ([]vnet.RouteKey, []netip.Prefix, error)
}

// connSource reads through a sonic.Conn.
type connSource struct {
	conn *sonic.Conn
}

func (s connSource) Tunnels() ([]vnet.TunnelConfig, error) { return s.conn.Config.Tunnels() }
func (s connSource) VNets() ([]vnet.VNetConfig, error) { return s.conn.Config.VNets() }
func (s connSource) SubnetDecap() (vnet.DecapConfig, error) { return s.conn.Config.SubnetDecap() }
func (s connSource) TSA() (bool, error) { return s.conn.Config.TSA() }

func (s connSource) ConfigEntry(table, key string) (map[string]string, error) {
	return s.conn.Config.Get(table, key)
}

func (s connSource) RouteIntents() ([]sonic.Intent, error) { return s.conn.App.RouteIntents() }

func (s connSource) RouteIntent(vnetName, prefix string) (map[string]string, error) {
	return s.conn.App.RouteIntent(vnetName, prefix)
}

func (s connSource) OrderedECMP() (bool, bool, error) { return s.conn.App.OrderedECMP() }

func (s connSource) SessionStates() (map[vnet.MonitorKey]vnet.Liveness, error) {
	return s.conn.State.SessionStates()
}

func (s connSource) SessionState(key vnet.MonitorKey) (vnet.Liveness, error) {
	return s.conn.State.SessionState(key)
}

func (s connSource) Published() ([]vnet.RouteKey, []netip.Prefix, error) {
	entries, err := s.conn.State.RouteStates("")
	if err != nil {
		return nil, nil, err
	}
	var keys []vnet.RouteKey
	for _, e := range entries {
		p, err := netip.ParsePrefix(e.Prefix)
		if err != nil {
			util.WithField("prefix", e.Prefix).Warnf("skipping route state: %v", err)
			continue
		}
		keys = append(keys, vnet.RouteKey{VNet: e.VNet, Prefix: p})
	}
	adverts, err := s.conn.State.Advertisements()
	if err != nil {
		return nil, nil, err
	}
	return keys, adverts, nil
}
