package vnet

import (
	"net/netip"

	"github.com/google/btree"

	"github.com/newtron-network/vnetorch/pkg/asic"
)

// target is what a route entry points at.
type target struct {
	state   RouteState
	nexthop NextHopKey // InstalledSingle
	group   string     // InstalledGroup
	oid     asic.OID
}

// id is the pool identity of the target, empty when uninstalled.
func (t target) id() string {
	switch t.state {
	case InstalledSingle:
		return "nh:" + t.nexthop.String()
	case InstalledGroup:
		return "nhg:" + t.group
	default:
		return ""
	}
}

// route is the reconciler's record for one route.
type route struct {
	key      RouteKey
	intent   *RouteIntent
	target   target
	vr       asic.OID // VR the ROUTE_ENTRY was written under
	monitors map[MonitorKey]struct{}
	active   []string
	advAt    netip.Prefix // prefix this route contributes to, if any
	decapAt  netip.Prefix
	lastErr  error
}

// RouteTable is the ordered set of routes.
type RouteTable struct {
	tree *btree.BTreeG[*route]
}

func lessRoute(a, b *route) bool { return a.key.Less(b.key) }

// NewRouteTable creates an empty table.
func NewRouteTable() *RouteTable {
	return &RouteTable{tree: btree.NewG[*route](16, lessRoute)}
}

func (t *RouteTable) get(key RouteKey) (*route, bool) {
	return t.tree.Get(&route{key: key})
}

func (t *RouteTable) put(r *route) {
	t.tree.ReplaceOrInsert(r)
}

func (t *RouteTable) delete(key RouteKey) {
	t.tree.Delete(&route{key: key})
}

// Len returns the number of routes.
func (t *RouteTable) Len() int { return t.tree.Len() }

// each visits every route in key order.
func (t *RouteTable) each(fn func(*route)) {
	t.tree.Ascend(func(r *route) bool {
		fn(r)
		return true
	})
}

// eachInVNet visits the routes of one VNET in prefix order.
func (t *RouteTable) eachInVNet(vnet string, fn func(*route)) {
	t.tree.AscendGreaterOrEqual(&route{key: RouteKey{VNet: vnet}}, func(r *route) bool {
		if r.key.VNet != vnet {
			return false
		}
		fn(r)
		return true
	})
}

// keys returns the keys of every route matching keep, in order.
func (t *RouteTable) keys(keep func(*route) bool) []RouteKey {
	var out []RouteKey
	t.each(func(r *route) {
		if keep == nil || keep(r) {
			out = append(out, r.key)
		}
	})
	return out
}
