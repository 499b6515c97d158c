// Package asic models the SAI objects the reconciler programs and the store
// they are written to. Object keys follow the ASIC_DB layout used by
// sairedis: ASIC_STATE:<object type>:<oid>, with route entries keyed by a
// canonical JSON route key instead of an OID.
package asic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ObjectType is a SAI object type name as it appears in ASIC_DB keys.
type ObjectType string

const (
	ObjectSwitch             ObjectType = "SAI_OBJECT_TYPE_SWITCH"
	ObjectVirtualRouter      ObjectType = "SAI_OBJECT_TYPE_VIRTUAL_ROUTER"
	ObjectNextHop            ObjectType = "SAI_OBJECT_TYPE_NEXT_HOP"
	ObjectNextHopGroup       ObjectType = "SAI_OBJECT_TYPE_NEXT_HOP_GROUP"
	ObjectNextHopGroupMember ObjectType = "SAI_OBJECT_TYPE_NEXT_HOP_GROUP_MEMBER"
	ObjectRouteEntry         ObjectType = "SAI_OBJECT_TYPE_ROUTE_ENTRY"
	ObjectTunnel             ObjectType = "SAI_OBJECT_TYPE_TUNNEL"
	ObjectTunnelMap          ObjectType = "SAI_OBJECT_TYPE_TUNNEL_MAP"
	ObjectTunnelMapEntry     ObjectType = "SAI_OBJECT_TYPE_TUNNEL_MAP_ENTRY"
)

// Object type indexes encoded into virtual OIDs (bits 48..55).
var typeIndex = map[ObjectType]uint64{
	ObjectVirtualRouter:      0x03,
	ObjectNextHop:            0x04,
	ObjectNextHopGroup:       0x05,
	ObjectSwitch:             0x21,
	ObjectTunnelMap:          0x29,
	ObjectTunnel:             0x2a,
	ObjectNextHopGroupMember: 0x2d,
	ObjectTunnelMapEntry:     0x3b,
}

// Attribute names and values.
const (
	AttrSwitchDefaultVR = "SAI_SWITCH_ATTR_DEFAULT_VIRTUAL_ROUTER_ID"

	AttrNextHopType      = "SAI_NEXT_HOP_ATTR_TYPE"
	AttrNextHopIP        = "SAI_NEXT_HOP_ATTR_IP"
	AttrNextHopTunnelID  = "SAI_NEXT_HOP_ATTR_TUNNEL_ID"
	AttrNextHopTunnelVNI = "SAI_NEXT_HOP_ATTR_TUNNEL_VNI"
	AttrNextHopTunnelMAC = "SAI_NEXT_HOP_ATTR_TUNNEL_MAC"
	NextHopTypeTunnel    = "SAI_NEXT_HOP_TYPE_TUNNEL_ENCAP"

	AttrNextHopGroupType      = "SAI_NEXT_HOP_GROUP_ATTR_TYPE"
	NextHopGroupTypeECMP      = "SAI_NEXT_HOP_GROUP_TYPE_ECMP"
	NextHopGroupTypeOrdered   = "SAI_NEXT_HOP_GROUP_TYPE_DYNAMIC_ORDERED_ECMP"
	AttrGroupMemberGroupID    = "SAI_NEXT_HOP_GROUP_MEMBER_ATTR_NEXT_HOP_GROUP_ID"
	AttrGroupMemberNextHopID  = "SAI_NEXT_HOP_GROUP_MEMBER_ATTR_NEXT_HOP_ID"
	AttrGroupMemberSequenceID = "SAI_NEXT_HOP_GROUP_MEMBER_ATTR_SEQUENCE_ID"

	AttrRouteNextHopID = "SAI_ROUTE_ENTRY_ATTR_NEXT_HOP_ID"

	AttrTunnelType         = "SAI_TUNNEL_ATTR_TYPE"
	AttrTunnelEncapSrcIP   = "SAI_TUNNEL_ATTR_ENCAP_SRC_IP"
	AttrTunnelEncapMappers = "SAI_TUNNEL_ATTR_ENCAP_MAPPERS"
	AttrTunnelDecapMappers = "SAI_TUNNEL_ATTR_DECAP_MAPPERS"
	TunnelTypeVXLAN        = "SAI_TUNNEL_TYPE_VXLAN"

	AttrTunnelMapType    = "SAI_TUNNEL_MAP_ATTR_TYPE"
	TunnelMapVRToVNI     = "SAI_TUNNEL_MAP_TYPE_VIRTUAL_ROUTER_ID_TO_VNI"
	TunnelMapVNIToVR     = "SAI_TUNNEL_MAP_TYPE_VNI_TO_VIRTUAL_ROUTER_ID"
	AttrMapEntryType     = "SAI_TUNNEL_MAP_ENTRY_ATTR_TUNNEL_MAP_TYPE"
	AttrMapEntryMap      = "SAI_TUNNEL_MAP_ENTRY_ATTR_TUNNEL_MAP"
	AttrMapEntryVRKey    = "SAI_TUNNEL_MAP_ENTRY_ATTR_VIRTUAL_ROUTER_ID_KEY"
	AttrMapEntryVRValue  = "SAI_TUNNEL_MAP_ENTRY_ATTR_VIRTUAL_ROUTER_ID_VALUE"
	AttrMapEntryVNIKey   = "SAI_TUNNEL_MAP_ENTRY_ATTR_VNI_ID_KEY"
	AttrMapEntryVNIValue = "SAI_TUNNEL_MAP_ENTRY_ATTR_VNI_ID_VALUE"
)

// OID is a virtual object id, e.g. "oid:0x5000000000612".
type OID string

// MakeOID builds a virtual OID for an object of type t with the given counter.
func MakeOID(t ObjectType, counter uint64) OID {
	return OID(fmt.Sprintf("oid:0x%x", typeIndex[t]<<48|counter&0xffffffffffff))
}

// TypeOf recovers the object type encoded in oid. Returns "" for OIDs
// that were not minted by MakeOID.
func TypeOf(oid OID) ObjectType {
	hex := strings.TrimPrefix(string(oid), "oid:0x")
	if hex == string(oid) {
		return ""
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return ""
	}
	idx := (v >> 48) & 0xff
	for t, i := range typeIndex {
		if i == idx {
			return t
		}
	}
	return ""
}

// ListOf formats a SAI object list attribute value ("count:oid,oid").
func ListOf(oids ...OID) string {
	parts := make([]string, len(oids))
	for i, o := range oids {
		parts[i] = string(o)
	}
	return fmt.Sprintf("%d:%s", len(oids), strings.Join(parts, ","))
}

// Attrs is a SAI attribute map.
type Attrs map[string]string

// RouteKey identifies a SAI route entry.
type RouteKey struct {
	Dest     string `json:"dest"`
	SwitchID OID    `json:"switch_id"`
	VR       OID    `json:"vr"`
}

// String returns the canonical JSON form used in ASIC_DB keys (fields in
// sorted order, no whitespace).
func (k RouteKey) String() string {
	return fmt.Sprintf(`{"dest":"%s","switch_id":"%s","vr":"%s"}`, k.Dest, k.SwitchID, k.VR)
}

// ParseRouteKey parses the JSON part of an ASIC_DB route entry key.
func ParseRouteKey(s string) (RouteKey, error) {
	var k RouteKey
	if err := json.Unmarshal([]byte(s), &k); err != nil {
		return RouteKey{}, fmt.Errorf("parsing route key %q: %w", s, err)
	}
	return k, nil
}

// Store programs SAI objects. Implementations are not required to be safe
// for concurrent use; the reconciler serializes all calls.
type Store interface {
	// SwitchID returns the switch object id route entries are scoped to.
	SwitchID() OID
	// Create allocates a new object of type t.
	Create(t ObjectType, attrs Attrs) (OID, error)
	// Remove deletes the object oid of type t.
	Remove(t ObjectType, oid OID) error
	// SetRoute creates the route entry or overwrites the given attributes.
	SetRoute(key RouteKey, attrs Attrs) error
	// RemoveRoute deletes a route entry.
	RemoveRoute(key RouteKey) error
}
