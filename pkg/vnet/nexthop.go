package vnet

import (
	"sort"
	"strconv"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/util"
)

// TunnelResolver returns the ASIC TUNNEL object for a VXLAN tunnel name.
type TunnelResolver func(tunnel string) (asic.OID, error)

// NextHop is a shared tunnel next hop.
type NextHop struct {
	Key  NextHopKey
	OID  asic.OID
	Refs int
}

// NextHopPool maps next-hop identities to reference-counted NEXT_HOP objects.
type NextHopPool struct {
	store   asic.Store
	tunnels TunnelResolver
	byKey   map[NextHopKey]*NextHop
}

// NewNextHopPool creates an empty pool.
func NewNextHopPool(store asic.Store, tunnels TunnelResolver) *NextHopPool {
	return &NextHopPool{
		store:   store,
		tunnels: tunnels,
		byKey:   make(map[NextHopKey]*NextHop),
	}
}

// Acquire returns the next hop for key, creating it on first use, and takes
// one reference.
func (p *NextHopPool) Acquire(key NextHopKey) (*NextHop, error) {
	if nh, ok := p.byKey[key]; ok {
		nh.Refs++
		return nh, nil
	}

	tunnelOID, err := p.tunnels(key.Tunnel)
	if err != nil {
		return nil, util.NewResourceAllocationError("create", string(asic.ObjectNextHop), key.String(), err)
	}
	attrs := asic.Attrs{
		asic.AttrNextHopType:     asic.NextHopTypeTunnel,
		asic.AttrNextHopIP:       key.IP.String(),
		asic.AttrNextHopTunnelID: string(tunnelOID),
	}
	if key.VNI != 0 {
		attrs[asic.AttrNextHopTunnelVNI] = strconv.FormatUint(uint64(key.VNI), 10)
	}
	if key.MAC != "" {
		attrs[asic.AttrNextHopTunnelMAC] = key.MAC
	}
	oid, err := p.store.Create(asic.ObjectNextHop, attrs)
	if err != nil {
		return nil, util.NewResourceAllocationError("create", string(asic.ObjectNextHop), key.String(), err)
	}

	nh := &NextHop{Key: key, OID: oid, Refs: 1}
	p.byKey[key] = nh
	util.WithEndpoint(key.IP.String()).Debugf("next hop %s created as %s", key, oid)
	nextHopsGauge.Set(float64(len(p.byKey)))
	return nh, nil
}

// Release drops one reference to key and deletes the object at zero.
// Releasing an unknown key is a no-op.
func (p *NextHopPool) Release(key NextHopKey) error {
	nh, ok := p.byKey[key]
	if !ok {
		return nil
	}
	if nh.Refs > 1 {
		nh.Refs--
		return nil
	}
	if err := p.store.Remove(asic.ObjectNextHop, nh.OID); err != nil {
		return util.NewResourceAllocationError("remove", string(asic.ObjectNextHop), key.String(), err)
	}
	delete(p.byKey, key)
	util.WithEndpoint(key.IP.String()).Debugf("next hop %s removed", key)
	nextHopsGauge.Set(float64(len(p.byKey)))
	return nil
}

// Get returns the next hop for key without taking a reference.
func (p *NextHopPool) Get(key NextHopKey) (*NextHop, bool) {
	nh, ok := p.byKey[key]
	return nh, ok
}

// Len returns the number of live next hops.
func (p *NextHopPool) Len() int { return len(p.byKey) }

// All returns copies of every next hop ordered by key.
func (p *NextHopPool) All() []NextHop {
	out := make([]NextHop, 0, len(p.byKey))
	for _, nh := range p.byKey {
		out = append(out, *nh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.less(out[j].Key) })
	return out
}
