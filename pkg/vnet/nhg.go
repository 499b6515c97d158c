package vnet

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/newtron-network/vnetorch/pkg/asic"
	"github.com/newtron-network/vnetorch/pkg/util"
)

// Member is one next hop of a group. Seq is 0 in unordered groups.
type Member struct {
	NextHop NextHopKey
	Seq     int
}

// NextHopGroup is a shared ECMP group.
type NextHopGroup struct {
	ID      string // canonical member-set identity
	OID     asic.OID
	Ordered bool
	Members []Member
	Refs    int

	memberOIDs []asic.OID // parallel to Members; emptied as members are removed
}

// GroupID returns the canonical identity of a member set: members sorted
// by next hop, with sequence ids in ordered mode.
func GroupID(members []Member, ordered bool) string {
	sorted := sortMembers(members)
	parts := make([]string, len(sorted))
	for i, m := range sorted {
		parts[i] = m.NextHop.String()
		if ordered {
			parts[i] += "#" + strconv.Itoa(m.Seq)
		}
	}
	mode := "ecmp"
	if ordered {
		mode = "ordered"
	}
	return mode + "[" + strings.Join(parts, ",") + "]"
}

func sortMembers(members []Member) []Member {
	sorted := append([]Member(nil), members...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].NextHop != sorted[j].NextHop {
			return sorted[i].NextHop.less(sorted[j].NextHop)
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	return sorted
}

// NextHopGroupPool maps member sets to reference-counted NEXT_HOP_GROUP
// objects. Each group holds one next-hop reference per member.
type NextHopGroupPool struct {
	store    asic.Store
	nexthops *NextHopPool
	capacity int // 0 is unlimited
	byID     map[string]*NextHopGroup
}

// NewNextHopGroupPool creates an empty pool with room for capacity groups.
func NewNextHopGroupPool(store asic.Store, nexthops *NextHopPool, capacity int) *NextHopGroupPool {
	return &NextHopGroupPool{
		store:    store,
		nexthops: nexthops,
		capacity: capacity,
		byID:     make(map[string]*NextHopGroup),
	}
}

// Acquire returns the group for members, creating it on first use, and
// takes one reference. A failed creation leaves no objects or references
// behind.
func (p *NextHopGroupPool) Acquire(members []Member, ordered bool) (*NextHopGroup, error) {
	if len(members) < 2 {
		return nil, fmt.Errorf("next hop group needs at least 2 members, got %d", len(members))
	}
	id := GroupID(members, ordered)
	if g, ok := p.byID[id]; ok {
		g.Refs++
		return g, nil
	}
	if p.capacity > 0 && len(p.byID) >= p.capacity {
		return nil, util.NewResourceAllocationError("create", string(asic.ObjectNextHopGroup), id,
			fmt.Errorf("group table full (%d)", p.capacity))
	}

	g := &NextHopGroup{ID: id, Ordered: ordered, Members: sortMembers(members), Refs: 1}
	if err := p.create(g); err != nil {
		return nil, err
	}
	p.byID[id] = g
	util.Debugf("next hop group %s created as %s", id, g.OID)
	nextHopGroupsGauge.Set(float64(len(p.byID)))
	return g, nil
}

func (p *NextHopGroupPool) create(g *NextHopGroup) (err error) {
	var acquired []*NextHop
	defer func() {
		if err == nil {
			return
		}
		for i := len(g.memberOIDs) - 1; i >= 0; i-- {
			if rerr := p.store.Remove(asic.ObjectNextHopGroupMember, g.memberOIDs[i]); rerr != nil {
				util.Warnf("rollback: removing group member %s: %v", g.memberOIDs[i], rerr)
			}
		}
		g.memberOIDs = nil
		if g.OID != "" {
			if rerr := p.store.Remove(asic.ObjectNextHopGroup, g.OID); rerr != nil {
				util.Warnf("rollback: removing group %s: %v", g.OID, rerr)
			}
			g.OID = ""
		}
		for i := len(acquired) - 1; i >= 0; i-- {
			if rerr := p.nexthops.Release(acquired[i].Key); rerr != nil {
				util.Warnf("rollback: releasing next hop %s: %v", acquired[i].Key, rerr)
			}
		}
	}()

	for _, m := range g.Members {
		nh, err := p.nexthops.Acquire(m.NextHop)
		if err != nil {
			return err
		}
		acquired = append(acquired, nh)
	}

	groupType := asic.NextHopGroupTypeECMP
	if g.Ordered {
		groupType = asic.NextHopGroupTypeOrdered
	}
	oid, err := p.store.Create(asic.ObjectNextHopGroup, asic.Attrs{asic.AttrNextHopGroupType: groupType})
	if err != nil {
		return util.NewResourceAllocationError("create", string(asic.ObjectNextHopGroup), g.ID, err)
	}
	g.OID = oid

	for i, m := range g.Members {
		attrs := asic.Attrs{
			asic.AttrGroupMemberGroupID:   string(g.OID),
			asic.AttrGroupMemberNextHopID: string(acquired[i].OID),
		}
		if g.Ordered {
			attrs[asic.AttrGroupMemberSequenceID] = strconv.Itoa(m.Seq)
		}
		moid, err := p.store.Create(asic.ObjectNextHopGroupMember, attrs)
		if err != nil {
			return util.NewResourceAllocationError("create", string(asic.ObjectNextHopGroupMember), m.NextHop.String(), err)
		}
		g.memberOIDs = append(g.memberOIDs, moid)
	}
	return nil
}

// Release drops one reference to the group id. At zero the members are
// removed, then the group, then the member next hops are released. A failed
// removal keeps the group so the release can be retried.
func (p *NextHopGroupPool) Release(id string) error {
	g, ok := p.byID[id]
	if !ok {
		return nil
	}
	if g.Refs > 1 {
		g.Refs--
		return nil
	}

	for len(g.memberOIDs) > 0 {
		last := g.memberOIDs[len(g.memberOIDs)-1]
		if err := p.store.Remove(asic.ObjectNextHopGroupMember, last); err != nil {
			return util.NewResourceAllocationError("remove", string(asic.ObjectNextHopGroupMember), string(last), err)
		}
		g.memberOIDs = g.memberOIDs[:len(g.memberOIDs)-1]
	}
	if err := p.store.Remove(asic.ObjectNextHopGroup, g.OID); err != nil {
		return util.NewResourceAllocationError("remove", string(asic.ObjectNextHopGroup), g.ID, err)
	}
	delete(p.byID, id)
	nextHopGroupsGauge.Set(float64(len(p.byID)))
	util.Debugf("next hop group %s removed", id)

	var errs []error
	for _, m := range g.Members {
		if err := p.nexthops.Release(m.NextHop); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the group with the given id without taking a reference.
func (p *NextHopGroupPool) Get(id string) (*NextHopGroup, bool) {
	g, ok := p.byID[id]
	return g, ok
}

// Len returns the number of live groups.
func (p *NextHopGroupPool) Len() int { return len(p.byID) }

// Capacity returns the configured group limit, 0 for unlimited.
func (p *NextHopGroupPool) Capacity() int { return p.capacity }

// All returns copies of every group ordered by id.
func (p *NextHopGroupPool) All() []NextHopGroup {
	out := make([]NextHopGroup, 0, len(p.byID))
	for _, g := range p.byID {
		c := *g
		c.Members = append([]Member(nil), g.Members...)
		c.memberOIDs = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
