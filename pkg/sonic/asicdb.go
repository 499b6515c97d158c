package sonic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/util"
)

const (
	asicPrefix    = "ASIC_STATE"
	vidCounterKey = "VIDCOUNTER"
)

// AsicDBClient wraps Redis client for ASIC_DB access (DB 1). It implements
// asic.Store, minting virtual OIDs from VIDCOUNTER the way sairedis does,
// and resolves SAI object chains for inspection.
type AsicDBClient struct {
	dbClient
	switchOID asic.OID // discovered on Connect
	defaultVR asic.OID
}

// NewAsicDBClient creates a new ASIC_DB client.
func NewAsicDBClient(addr string, db int) *AsicDBClient {
	return &AsicDBClient{dbClient: newDBClient(addr, db, "asic_db")}
}

// Connect establishes the Redis connection and discovers the switch and
// default VR OIDs. When no switch object exists yet one is created along
// with its default VR.
func (c *AsicDBClient) Connect() error {
	if err := c.dbClient.Connect(); err != nil {
		return err
	}

	keys, err := scanKeys(c.ctx, c.client, objectKey(asic.ObjectSwitch, "*"), 100)
	if err != nil {
		return fmt.Errorf("asic_db: discovering switch OID: %w", err)
	}
	if len(keys) == 0 {
		return c.createSwitch()
	}
	// Key format: "ASIC_STATE:SAI_OBJECT_TYPE_SWITCH:oid:0x..."
	c.switchOID = asic.OID(strings.TrimPrefix(keys[0], objectKey(asic.ObjectSwitch, "")))
	vr, err := c.client.HGet(c.ctx, keys[0], asic.AttrSwitchDefaultVR).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("asic_db: reading default VR from switch: %w", err)
	}
	c.defaultVR = asic.OID(vr)
	return nil
}

func (c *AsicDBClient) createSwitch() error {
	sw, err := c.mint(asic.ObjectSwitch)
	if err != nil {
		return err
	}
	vr, err := c.mint(asic.ObjectVirtualRouter)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(c.ctx, objectKey(asic.ObjectVirtualRouter, string(vr)), hsetArgs(nil)...)
	pipe.HSet(c.ctx, objectKey(asic.ObjectSwitch, string(sw)), asic.AttrSwitchDefaultVR, string(vr))
	if _, err := pipe.Exec(c.ctx); err != nil {
		return fmt.Errorf("asic_db: creating switch: %w", err)
	}
	c.switchOID, c.defaultVR = sw, vr
	util.WithField("switch", sw).Info("asic_db: created switch object")
	return nil
}

// SwitchID returns the switch OID discovered on Connect.
func (c *AsicDBClient) SwitchID() asic.OID { return c.switchOID }

// DefaultVR returns the switch's default virtual router.
func (c *AsicDBClient) DefaultVR() asic.OID { return c.defaultVR }

func (c *AsicDBClient) mint(t asic.ObjectType) (asic.OID, error) {
	n, err := c.client.Incr(c.ctx, vidCounterKey).Result()
	if err != nil {
		return "", util.NewResourceAllocationError("create", string(t), "", err)
	}
	return asic.MakeOID(t, uint64(n)), nil
}

// Create allocates an OID and writes the object's attributes.
func (c *AsicDBClient) Create(t asic.ObjectType, attrs asic.Attrs) (asic.OID, error) {
	oid, err := c.mint(t)
	if err != nil {
		return "", err
	}
	if err := c.client.HSet(c.ctx, objectKey(t, string(oid)), hsetArgs(attrs)...).Err(); err != nil {
		return "", util.NewResourceAllocationError("create", string(t), string(oid), err)
	}
	return oid, nil
}

// Remove deletes an object. Removing a missing object is an error.
func (c *AsicDBClient) Remove(t asic.ObjectType, oid asic.OID) error {
	return c.remove(t, objectKey(t, string(oid)), string(oid))
}

// SetRoute writes a route entry.
func (c *AsicDBClient) SetRoute(key asic.RouteKey, attrs asic.Attrs) error {
	k := objectKey(asic.ObjectRouteEntry, key.String())
	if err := c.client.HSet(c.ctx, k, hsetArgs(attrs)...).Err(); err != nil {
		return util.NewResourceAllocationError("set", string(asic.ObjectRouteEntry), key.Dest, err)
	}
	return nil
}

// RemoveRoute deletes a route entry.
func (c *AsicDBClient) RemoveRoute(key asic.RouteKey) error {
	return c.remove(asic.ObjectRouteEntry, objectKey(asic.ObjectRouteEntry, key.String()), key.Dest)
}

func (c *AsicDBClient) remove(t asic.ObjectType, redisKey, name string) error {
	n, err := c.client.Del(c.ctx, redisKey).Result()
	if err != nil {
		return util.NewResourceAllocationError("remove", string(t), name, err)
	}
	if n == 0 {
		return util.NewResourceAllocationError("remove", string(t), name, util.ErrNotFound)
	}
	return nil
}

func objectKey(t asic.ObjectType, id string) string {
	return asicPrefix + appSep + string(t) + appSep + id
}

// ============================================================================
// Chain resolution
// ============================================================================

// NextHopEntry is one resolved SAI next hop.
type NextHopEntry struct {
	OID      asic.OID
	IP       string
	VNI      string
	MAC      string
	Sequence string // group members in ordered mode
}

// GroupEntry is a resolved SAI next hop group.
type GroupEntry struct {
	OID     asic.OID
	Type    string
	Members []NextHopEntry
}

// RouteEntry is a route entry resolved down to its next hops.
type RouteEntry struct {
	Prefix   string
	VR       asic.OID
	NextHop  asic.OID // SAI_ROUTE_ENTRY_ATTR_NEXT_HOP_ID
	Group    *GroupEntry
	NextHops []NextHopEntry
}

// ResolveVR returns the virtual router mapped to vni by a VR→VNI encap map
// entry.
func (c *AsicDBClient) ResolveVR(vni uint32) (asic.OID, error) {
	keys, err := scanKeys(c.ctx, c.client, objectKey(asic.ObjectTunnelMapEntry, "*"), 1000)
	if err != nil {
		return "", fmt.Errorf("scanning tunnel map entries: %w", err)
	}
	want := fmt.Sprintf("%d", vni)
	for _, key := range keys {
		vals, err := c.hash(key)
		if err != nil {
			return "", err
		}
		if vals[asic.AttrMapEntryType] == asic.TunnelMapVRToVNI && vals[asic.AttrMapEntryVNIValue] == want {
			return asic.OID(vals[asic.AttrMapEntryVRKey]), nil
		}
	}
	return "", fmt.Errorf("no virtual router mapped to VNI %d: %w", vni, util.ErrNotFound)
}

// GetRoute reads a route from ASIC_DB by resolving the SAI object chain:
// SAI_ROUTE_ENTRY -> SAI_NEXT_HOP_GROUP -> SAI_NEXT_HOP.
// Returns nil (not error) if the route is not programmed.
func (c *AsicDBClient) GetRoute(vr asic.OID, prefix string) (*RouteEntry, error) {
	key := asic.RouteKey{Dest: prefix, SwitchID: c.switchOID, VR: vr}
	vals, err := c.hash(objectKey(asic.ObjectRouteEntry, key.String()))
	if err != nil || vals == nil {
		return nil, err
	}
	entry := &RouteEntry{
		Prefix:  prefix,
		VR:      vr,
		NextHop: asic.OID(vals[asic.AttrRouteNextHopID]),
	}
	if entry.NextHop == "" {
		return entry, nil
	}

	switch asic.TypeOf(entry.NextHop) {
	case asic.ObjectNextHopGroup:
		group, err := c.GetGroup(entry.NextHop)
		if err != nil {
			return nil, err
		}
		entry.Group = group
		if group != nil {
			entry.NextHops = group.Members
		}
	default:
		nh, err := c.nextHop(entry.NextHop)
		if err != nil {
			return nil, err
		}
		if nh != nil {
			entry.NextHops = []NextHopEntry{*nh}
		}
	}
	return entry, nil
}

// GetGroup resolves a next hop group and its members. Returns nil if the
// group does not exist.
func (c *AsicDBClient) GetGroup(oid asic.OID) (*GroupEntry, error) {
	all, err := c.Groups()
	if err != nil {
		return nil, err
	}
	for _, g := range all {
		if g.OID == oid {
			return &g, nil
		}
	}
	return nil, nil
}

// Groups resolves every next hop group, sorted by OID. Members are sorted by
// sequence id then IP.
func (c *AsicDBClient) Groups() ([]GroupEntry, error) {
	groupKeys, err := scanKeys(c.ctx, c.client, objectKey(asic.ObjectNextHopGroup, "*"), 1000)
	if err != nil {
		return nil, fmt.Errorf("scanning next hop groups: %w", err)
	}
	groups := make(map[asic.OID]*GroupEntry, len(groupKeys))
	for _, key := range groupKeys {
		vals, err := c.hash(key)
		if err != nil {
			return nil, err
		}
		oid := asic.OID(strings.TrimPrefix(key, objectKey(asic.ObjectNextHopGroup, "")))
		groups[oid] = &GroupEntry{OID: oid, Type: vals[asic.AttrNextHopGroupType]}
	}

	memberKeys, err := scanKeys(c.ctx, c.client, objectKey(asic.ObjectNextHopGroupMember, "*"), 1000)
	if err != nil {
		return nil, fmt.Errorf("scanning next hop group members: %w", err)
	}
	for _, mk := range memberKeys {
		vals, err := c.hash(mk)
		if err != nil {
			return nil, err
		}
		g, ok := groups[asic.OID(vals[asic.AttrGroupMemberGroupID])]
		if !ok {
			continue
		}
		nh, err := c.nextHop(asic.OID(vals[asic.AttrGroupMemberNextHopID]))
		if err != nil {
			return nil, err
		}
		if nh == nil {
			continue
		}
		nh.Sequence = vals[asic.AttrGroupMemberSequenceID]
		g.Members = append(g.Members, *nh)
	}

	out := make([]GroupEntry, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g.Members, func(i, j int) bool {
			a, b := g.Members[i], g.Members[j]
			if len(a.Sequence) != len(b.Sequence) {
				return len(a.Sequence) < len(b.Sequence)
			}
			if a.Sequence != b.Sequence {
				return a.Sequence < b.Sequence
			}
			return a.IP < b.IP
		})
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OID < out[j].OID })
	return out, nil
}

func (c *AsicDBClient) nextHop(oid asic.OID) (*NextHopEntry, error) {
	if oid == "" {
		return nil, nil
	}
	vals, err := c.hash(objectKey(asic.ObjectNextHop, string(oid)))
	if err != nil || vals == nil {
		return nil, err
	}
	return &NextHopEntry{
		OID: oid,
		IP:  vals[asic.AttrNextHopIP],
		VNI: vals[asic.AttrNextHopTunnelVNI],
		MAC: vals[asic.AttrNextHopTunnelMAC],
	}, nil
}
