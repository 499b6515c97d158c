// Package vnet implements the VNET tunnel route reconciler: it maps route
// intents (prefix to remote VTEP endpoints) onto shared, reference-counted
// SAI next hops and next-hop groups, driven by endpoint health.
package vnet

import (
	"fmt"
	"net/netip"
)

// Liveness is the reported state of a monitor session.
type Liveness int

const (
	Unknown Liveness = iota
	Down
	Up
)

func (l Liveness) String() string {
	switch l {
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "Unknown"
	}
}

// ParseLiveness maps a STATE_DB session state to a Liveness. BFD reports
// Up, Down, Admin_Down or Init; custom monitors report up or down. Anything
// other than up is Down.
func ParseLiveness(s string) Liveness {
	switch s {
	case "Up", "up":
		return Up
	case "":
		return Unknown
	default:
		return Down
	}
}

// MonitorMode selects how endpoint health is monitored.
type MonitorMode int

const (
	MonitorBFD MonitorMode = iota
	MonitorCustom
)

func (m MonitorMode) String() string {
	if m == MonitorCustom {
		return "custom"
	}
	return "bfd"
}

// MonitorKey identifies a monitor session. BFD sessions are keyed by the
// monitor address alone and shared by every route that uses it; custom
// sessions also carry the route prefix and belong to one route.
type MonitorKey struct {
	Mode   MonitorMode
	Addr   netip.Addr
	Prefix netip.Prefix
}

func (k MonitorKey) String() string {
	if k.Mode == MonitorCustom {
		return fmt.Sprintf("custom:%s|%s", k.Addr, k.Prefix)
	}
	return "bfd:" + k.Addr.String()
}

// RouteKey identifies a route.
type RouteKey struct {
	VNet   string
	Prefix netip.Prefix
}

func (k RouteKey) String() string {
	return k.VNet + "|" + k.Prefix.String()
}

// Less orders route keys by VNET, then address, then prefix length.
func (k RouteKey) Less(o RouteKey) bool {
	if k.VNet != o.VNet {
		return k.VNet < o.VNet
	}
	if c := k.Prefix.Addr().Compare(o.Prefix.Addr()); c != 0 {
		return c < 0
	}
	return k.Prefix.Bits() < o.Prefix.Bits()
}

// NextHopKey is the identity of a tunnel next hop. Sequence ids are not
// part of it.
type NextHopKey struct {
	Tunnel string
	IP     netip.Addr
	VNI    uint32
	MAC    string
}

func (k NextHopKey) String() string {
	s := fmt.Sprintf("%s@%s/%d", k.IP, k.Tunnel, k.VNI)
	if k.MAC != "" {
		s += "/" + k.MAC
	}
	return s
}

func (k NextHopKey) less(o NextHopKey) bool {
	if c := k.IP.Compare(o.IP); c != 0 {
		return c < 0
	}
	if k.Tunnel != o.Tunnel {
		return k.Tunnel < o.Tunnel
	}
	if k.VNI != o.VNI {
		return k.VNI < o.VNI
	}
	return k.MAC < o.MAC
}

// Endpoint is one declared endpoint of a route intent.
type Endpoint struct {
	IP      netip.Addr
	Monitor netip.Addr // invalid when unmonitored
	MAC     string
	VNI     uint32 // 0 means the VNET's VNI
	Primary bool
	Seq     int // 1-based position in the address-sorted endpoint list
}

// Monitored reports whether the endpoint has a health monitor.
func (e Endpoint) Monitored() bool { return e.Monitor.IsValid() }

// RouteState is the installation state of a route.
type RouteState int

const (
	Uninstalled RouteState = iota
	InstalledSingle
	InstalledGroup
)

func (s RouteState) String() string {
	switch s {
	case InstalledSingle:
		return "single"
	case InstalledGroup:
		return "group"
	default:
		return "uninstalled"
	}
}

// Installed reports whether the route has a ROUTE_ENTRY.
func (s RouteState) Installed() bool { return s != Uninstalled }
