package vnet

import (
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"

	"github.com/newtron-network/vnetorch/pkg/util"
)

// Intent field names in APP_DB VNET_ROUTE_TUNNEL_TABLE.
const (
	FieldNexthop         = "nexthop"
	FieldEndpoint        = "endpoint"
	FieldEpMonitor       = "ep_monitor"
	FieldEndpointMonitor = "endpoint_monitor"
	FieldPrimary         = "primary"
	FieldMonitoring      = "monitoring"
	FieldProfile         = "profile"
	FieldAdvPrefix       = "adv_prefix"
	FieldMacAddress      = "mac_address"
	FieldVNI             = "vni"
	FieldRxMonitorTimer  = "rx_monitor_timer"
	FieldTxMonitorTimer  = "tx_monitor_timer"
)

const maxVNI = 1<<24 - 1

// RouteIntent is a parsed, validated route intent.
type RouteIntent struct {
	Key        RouteKey
	Endpoints  []Endpoint // sorted by IP
	Monitoring MonitorMode
	HasPrimary bool
	AdvPrefix  netip.Prefix // route prefix unless adv_prefix is set
	Profile    string
	RxTimer    int // ms, 0 when unset
	TxTimer    int
}

// Monitors returns the monitor session keys the intent needs.
func (ri *RouteIntent) Monitors() []MonitorKey {
	var keys []MonitorKey
	seen := make(map[MonitorKey]bool)
	for _, ep := range ri.Endpoints {
		if !ep.Monitored() {
			continue
		}
		k := ri.monitorKey(ep)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func (ri *RouteIntent) monitorKey(ep Endpoint) MonitorKey {
	if ri.Monitoring == MonitorCustom {
		return MonitorKey{Mode: MonitorCustom, Addr: ep.Monitor, Prefix: ri.Key.Prefix}
	}
	return MonitorKey{Mode: MonitorBFD, Addr: ep.Monitor}
}

// ParsePrefix parses a route prefix. A bare address is taken as a host
// route. The result is masked.
func ParsePrefix(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix %q", s)
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}

// ParseRouteIntent parses the APP_DB fields of a route intent. Every problem
// found is reported in a single MalformedIntentError.
func ParseRouteIntent(vnetName, prefix string, fields map[string]string) (*RouteIntent, error) {
	route := vnetName + "|" + prefix
	v := &util.ValidationBuilder{}

	if vnetName == "" {
		v.AddError("vnet name is empty")
	}
	pfx, err := ParsePrefix(prefix)
	if err != nil {
		v.AddError(err.Error())
	}

	nexthops := util.SplitAligned(field(fields, FieldNexthop, FieldEndpoint))
	monitors := util.SplitAligned(field(fields, FieldEpMonitor, FieldEndpointMonitor))
	macs := util.SplitAligned(fields[FieldMacAddress])
	vnis := util.SplitAligned(fields[FieldVNI])
	primaries := util.SplitCommaSeparated(fields[FieldPrimary])

	if len(nexthops) == 0 {
		v.AddError("nexthop is required")
	}
	aligned := func(name string, list []string) {
		if list != nil && len(list) != len(nexthops) {
			v.AddErrorf("%s has %d entries, nexthop has %d", name, len(list), len(nexthops))
		}
	}
	aligned(FieldEpMonitor, monitors)
	aligned(FieldMacAddress, macs)
	aligned(FieldVNI, vnis)

	ri := &RouteIntent{
		Key:     RouteKey{VNet: vnetName, Prefix: pfx},
		Profile: fields[FieldProfile],
	}

	seen := make(map[netip.Addr]bool)
	for i, s := range nexthops {
		ip, err := netip.ParseAddr(s)
		if err != nil {
			v.AddErrorf("invalid nexthop %q", s)
			continue
		}
		if seen[ip] {
			v.AddErrorf("duplicate nexthop %s", ip)
			continue
		}
		seen[ip] = true
		ep := Endpoint{IP: ip}
		if i < len(monitors) && len(monitors) == len(nexthops) && monitors[i] != "" {
			m, err := netip.ParseAddr(monitors[i])
			if err != nil {
				v.AddErrorf("invalid ep_monitor %q", monitors[i])
			}
			ep.Monitor = m
		}
		if len(macs) == len(nexthops) && macs[i] != "" {
			hw, err := net.ParseMAC(macs[i])
			if err != nil {
				v.AddErrorf("invalid mac_address %q", macs[i])
			} else {
				ep.MAC = hw.String()
			}
		}
		if len(vnis) == len(nexthops) && vnis[i] != "" {
			n, err := strconv.ParseUint(vnis[i], 10, 32)
			if err != nil || n == 0 || n > maxVNI {
				v.AddErrorf("invalid vni %q", vnis[i])
			}
			ep.VNI = uint32(n)
		}
		ri.Endpoints = append(ri.Endpoints, ep)
	}

	for _, s := range primaries {
		ip, err := netip.ParseAddr(s)
		if err != nil || !seen[ip] {
			v.AddErrorf("primary %s is not a nexthop", s)
			continue
		}
		for i := range ri.Endpoints {
			if ri.Endpoints[i].IP == ip {
				ri.Endpoints[i].Primary = true
			}
		}
		ri.HasPrimary = true
	}

	switch fields[FieldMonitoring] {
	case "", "bfd":
		ri.Monitoring = MonitorBFD
	case "custom":
		ri.Monitoring = MonitorCustom
		if len(monitors) == 0 {
			v.AddError("custom monitoring requires ep_monitor")
		}
	default:
		v.AddErrorf("unknown monitoring mode %q", fields[FieldMonitoring])
	}

	ri.AdvPrefix = pfx
	if s := fields[FieldAdvPrefix]; s != "" {
		adv, err := ParsePrefix(s)
		switch {
		case err != nil:
			v.AddErrorf("invalid adv_prefix %q", s)
		case pfx.IsValid() && adv.Addr().Is4() != pfx.Addr().Is4():
			v.AddErrorf("adv_prefix %s and prefix %s differ in address family", adv, pfx)
		default:
			ri.AdvPrefix = adv
		}
	}

	ri.RxTimer = timer(v, fields, FieldRxMonitorTimer)
	ri.TxTimer = timer(v, fields, FieldTxMonitorTimer)

	if err := v.BuildIntent(route); err != nil {
		return nil, err
	}

	sort.Slice(ri.Endpoints, func(i, j int) bool {
		return ri.Endpoints[i].IP.Less(ri.Endpoints[j].IP)
	})
	for i := range ri.Endpoints {
		ri.Endpoints[i].Seq = i + 1
	}
	return ri, nil
}

// field returns the first non-empty value among names.
func field(fields map[string]string, names ...string) string {
	for _, n := range names {
		if v := fields[n]; v != "" {
			return v
		}
	}
	return ""
}

func timer(v *util.ValidationBuilder, fields map[string]string, name string) int {
	s := fields[name]
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		v.AddErrorf("invalid %s %q", name, s)
		return 0
	}
	return n
}
