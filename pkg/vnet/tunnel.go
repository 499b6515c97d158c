package vnet

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/util"
)

// TunnelConfig is a CONFIG_DB VXLAN_TUNNEL entry.
type TunnelConfig struct {
	Name  string
	SrcIP netip.Addr
}

// VNetConfig is a CONFIG_DB VNET entry.
type VNetConfig struct {
	Name            string
	Tunnel          string
	VNI             uint32
	AdvertisePrefix bool
	OverlayDMAC     string
}

// Tunnel is a configured VXLAN tunnel and, while any VNET uses it, its
// ASIC objects.
type Tunnel struct {
	TunnelConfig
	OID         asic.OID
	EncapMapOID asic.OID
	DecapMapOID asic.OID
	vnets       map[string]struct{}
}

// VNet is a configured VNET with its virtual router and tunnel map entries.
type VNet struct {
	VNetConfig
	VROID      asic.OID
	EncapEntry asic.OID
	DecapEntry asic.OID
}

// Registry holds tunnels and VNETs and owns their ASIC objects.
type Registry struct {
	store   asic.Store
	tunnels map[string]*Tunnel
	vnets   map[string]*VNet
}

// NewRegistry creates an empty registry.
func NewRegistry(store asic.Store) *Registry {
	return &Registry{
		store:   store,
		tunnels: make(map[string]*Tunnel),
		vnets:   make(map[string]*VNet),
	}
}

// SetTunnel adds or updates a tunnel. Changing the source address of a
// tunnel in use is refused.
func (r *Registry) SetTunnel(cfg TunnelConfig) error {
	if !cfg.SrcIP.IsValid() {
		return util.NewValidationError(fmt.Sprintf("tunnel %s: src_ip is required", cfg.Name))
	}
	t, ok := r.tunnels[cfg.Name]
	if !ok {
		r.tunnels[cfg.Name] = &Tunnel{TunnelConfig: cfg, vnets: make(map[string]struct{})}
		return nil
	}
	if t.SrcIP != cfg.SrcIP && len(t.vnets) > 0 {
		return util.NewInUseError("VXLAN_TUNNEL "+cfg.Name, sortedNames(t.vnets)...)
	}
	t.TunnelConfig = cfg
	return nil
}

// DeleteTunnel removes an unused tunnel.
func (r *Registry) DeleteTunnel(name string) error {
	t, ok := r.tunnels[name]
	if !ok {
		return nil
	}
	if len(t.vnets) > 0 {
		return util.NewInUseError("VXLAN_TUNNEL "+name, sortedNames(t.vnets)...)
	}
	delete(r.tunnels, name)
	return nil
}

// Tunnel returns a tunnel by name.
func (r *Registry) Tunnel(name string) (*Tunnel, bool) {
	t, ok := r.tunnels[name]
	return t, ok
}

// TunnelOID returns the ASIC object of an instantiated tunnel.
func (r *Registry) TunnelOID(name string) (asic.OID, error) {
	t, ok := r.tunnels[name]
	if !ok || t.OID == "" {
		return "", fmt.Errorf("tunnel %s: %w", name, util.ErrNotFound)
	}
	return t.OID, nil
}

// VNet returns a VNET by name.
func (r *Registry) VNet(name string) (*VNet, bool) {
	v, ok := r.vnets[name]
	return v, ok
}

// VNets returns all VNET names, sorted.
func (r *Registry) VNets() []string {
	names := make([]string, 0, len(r.vnets))
	for n := range r.vnets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreateVNet instantiates a VNET: the tunnel objects on first use, then the
// virtual router and its encap and decap map entries.
func (r *Registry) CreateVNet(cfg VNetConfig) (*VNet, error) {
	if _, ok := r.vnets[cfg.Name]; ok {
		return nil, fmt.Errorf("vnet %s already exists", cfg.Name)
	}
	if cfg.VNI == 0 || cfg.VNI > maxVNI {
		return nil, util.NewValidationError(fmt.Sprintf("vnet %s: invalid vni %d", cfg.Name, cfg.VNI))
	}
	t, ok := r.tunnels[cfg.Tunnel]
	if !ok {
		return nil, util.NewDependencyError("VNET "+cfg.Name, "VXLAN_TUNNEL", cfg.Tunnel)
	}
	if err := r.ensureTunnel(t); err != nil {
		return nil, err
	}

	v := &VNet{VNetConfig: cfg}
	var created []objRef
	fail := func(obj asic.ObjectType, err error) (*VNet, error) {
		for i := len(created) - 1; i >= 0; i-- {
			if rerr := r.store.Remove(created[i].t, created[i].oid); rerr != nil {
				util.Warnf("rollback: removing %s %s: %v", created[i].t, created[i].oid, rerr)
			}
		}
		r.releaseTunnel(t)
		return nil, util.NewResourceAllocationError("create", string(obj), cfg.Name, err)
	}
	create := func(obj asic.ObjectType, attrs asic.Attrs) (asic.OID, error) {
		oid, err := r.store.Create(obj, attrs)
		if err == nil {
			created = append(created, objRef{obj, oid})
		}
		return oid, err
	}

	vni := strconv.FormatUint(uint64(cfg.VNI), 10)
	var err error
	if v.VROID, err = create(asic.ObjectVirtualRouter, asic.Attrs{}); err != nil {
		return fail(asic.ObjectVirtualRouter, err)
	}
	if v.DecapEntry, err = create(asic.ObjectTunnelMapEntry, asic.Attrs{
		asic.AttrMapEntryType:    asic.TunnelMapVNIToVR,
		asic.AttrMapEntryMap:     string(t.DecapMapOID),
		asic.AttrMapEntryVNIKey:  vni,
		asic.AttrMapEntryVRValue: string(v.VROID),
	}); err != nil {
		return fail(asic.ObjectTunnelMapEntry, err)
	}
	if v.EncapEntry, err = create(asic.ObjectTunnelMapEntry, asic.Attrs{
		asic.AttrMapEntryType:     asic.TunnelMapVRToVNI,
		asic.AttrMapEntryMap:      string(t.EncapMapOID),
		asic.AttrMapEntryVRKey:    string(v.VROID),
		asic.AttrMapEntryVNIValue: vni,
	}); err != nil {
		return fail(asic.ObjectTunnelMapEntry, err)
	}

	t.vnets[cfg.Name] = struct{}{}
	r.vnets[cfg.Name] = v
	util.WithField("vnet", cfg.Name).Infof("vnet created: tunnel %s vni %d vr %s", cfg.Tunnel, cfg.VNI, v.VROID)
	return v, nil
}

// UpdateVNet changes the attributes of a VNET that do not touch ASIC
// objects (advertise_prefix, overlay_dmac).
func (r *Registry) UpdateVNet(cfg VNetConfig) (*VNet, error) {
	v, ok := r.vnets[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("vnet %s: %w", cfg.Name, util.ErrNotFound)
	}
	if v.Tunnel != cfg.Tunnel || v.VNI != cfg.VNI {
		return nil, fmt.Errorf("vnet %s: tunnel or vni change needs a recreate", cfg.Name)
	}
	v.AdvertisePrefix = cfg.AdvertisePrefix
	v.OverlayDMAC = cfg.OverlayDMAC
	return v, nil
}

// DeleteVNet removes a VNET's objects, and the tunnel's objects with their
// last VNET. The caller ensures no route uses the VNET.
func (r *Registry) DeleteVNet(name string) error {
	v, ok := r.vnets[name]
	if !ok {
		return nil
	}
	steps := []struct {
		t   asic.ObjectType
		oid *asic.OID
	}{
		{asic.ObjectTunnelMapEntry, &v.EncapEntry},
		{asic.ObjectTunnelMapEntry, &v.DecapEntry},
		{asic.ObjectVirtualRouter, &v.VROID},
	}
	for _, s := range steps {
		if *s.oid == "" {
			continue
		}
		if err := r.store.Remove(s.t, *s.oid); err != nil {
			return util.NewResourceAllocationError("remove", string(s.t), name, err)
		}
		*s.oid = ""
	}
	delete(r.vnets, name)
	if t, ok := r.tunnels[v.Tunnel]; ok {
		delete(t.vnets, name)
		r.releaseTunnel(t)
	}
	util.WithField("vnet", name).Info("vnet removed")
	return nil
}

func (r *Registry) ensureTunnel(t *Tunnel) error {
	if t.OID != "" {
		return nil
	}
	encap, err := r.store.Create(asic.ObjectTunnelMap, asic.Attrs{asic.AttrTunnelMapType: asic.TunnelMapVRToVNI})
	if err != nil {
		return util.NewResourceAllocationError("create", string(asic.ObjectTunnelMap), t.Name, err)
	}
	decap, err := r.store.Create(asic.ObjectTunnelMap, asic.Attrs{asic.AttrTunnelMapType: asic.TunnelMapVNIToVR})
	if err != nil {
		r.removeQuietly(asic.ObjectTunnelMap, encap)
		return util.NewResourceAllocationError("create", string(asic.ObjectTunnelMap), t.Name, err)
	}
	oid, err := r.store.Create(asic.ObjectTunnel, asic.Attrs{
		asic.AttrTunnelType:         asic.TunnelTypeVXLAN,
		asic.AttrTunnelEncapSrcIP:   t.SrcIP.String(),
		asic.AttrTunnelEncapMappers: asic.ListOf(encap),
		asic.AttrTunnelDecapMappers: asic.ListOf(decap),
	})
	if err != nil {
		r.removeQuietly(asic.ObjectTunnelMap, decap)
		r.removeQuietly(asic.ObjectTunnelMap, encap)
		return util.NewResourceAllocationError("create", string(asic.ObjectTunnel), t.Name, err)
	}
	t.OID, t.EncapMapOID, t.DecapMapOID = oid, encap, decap
	util.WithField("tunnel", t.Name).Infof("tunnel created as %s (src %s)", oid, t.SrcIP)
	return nil
}

// releaseTunnel removes the tunnel's objects once no VNET uses it.
func (r *Registry) releaseTunnel(t *Tunnel) {
	if len(t.vnets) > 0 || t.OID == "" {
		return
	}
	r.removeQuietly(asic.ObjectTunnel, t.OID)
	r.removeQuietly(asic.ObjectTunnelMap, t.DecapMapOID)
	r.removeQuietly(asic.ObjectTunnelMap, t.EncapMapOID)
	t.OID, t.EncapMapOID, t.DecapMapOID = "", "", ""
	util.WithField("tunnel", t.Name).Info("tunnel objects removed")
}

func (r *Registry) removeQuietly(t asic.ObjectType, oid asic.OID) {
	if err := r.store.Remove(t, oid); err != nil {
		util.Warnf("removing %s %s: %v", t, oid, err)
	}
}

type objRef struct {
	t   asic.ObjectType
	oid asic.OID
}

func sortedNames(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
