package asic

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/newtron-network/vnetorch/pkg/util"
)

// Ledger persists which objects were created through an OwningStore, so a
// later run can remove what an earlier one left behind. Ids are OIDs, or
// the JSON key of a route entry.
type Ledger interface {
	Own(t ObjectType, id string) error
	Disown(t ObjectType, id string) error
	Owned(t ObjectType) ([]string, error)
}

// purgeOrder lists object types dependents first.
var purgeOrder = []ObjectType{
	ObjectRouteEntry,
	ObjectNextHopGroupMember,
	ObjectNextHopGroup,
	ObjectNextHop,
	ObjectTunnelMapEntry,
	ObjectTunnel,
	ObjectTunnelMap,
	ObjectVirtualRouter,
}

// OwningStore is a Store that records every object it creates in a Ledger.
type OwningStore struct {
	Store
	ledger Ledger
}

// NewOwningStore wraps s, recording ownership in l.
func NewOwningStore(s Store, l Ledger) *OwningStore {
	return &OwningStore{Store: s, ledger: l}
}

// Create creates the object and records it. An object that cannot be
// recorded is removed again.
func (s *OwningStore) Create(t ObjectType, attrs Attrs) (OID, error) {
	oid, err := s.Store.Create(t, attrs)
	if err != nil {
		return "", err
	}
	if err := s.ledger.Own(t, string(oid)); err != nil {
		if rerr := s.Store.Remove(t, oid); rerr != nil {
			util.Warnf("removing unrecorded %s %s: %v", t, oid, rerr)
		}
		return "", util.NewResourceAllocationError("create", string(t), string(oid), err)
	}
	return oid, nil
}

// Remove removes the object and forgets it.
func (s *OwningStore) Remove(t ObjectType, oid OID) error {
	if err := s.Store.Remove(t, oid); err != nil {
		return err
	}
	if err := s.ledger.Disown(t, string(oid)); err != nil {
		util.Warnf("forgetting %s %s: %v", t, oid, err)
	}
	return nil
}

// SetRoute records the route entry before writing it.
func (s *OwningStore) SetRoute(key RouteKey, attrs Attrs) error {
	if err := s.ledger.Own(ObjectRouteEntry, key.String()); err != nil {
		return util.NewResourceAllocationError("set", string(ObjectRouteEntry), key.Dest, err)
	}
	return s.Store.SetRoute(key, attrs)
}

// RemoveRoute removes the route entry and forgets it.
func (s *OwningStore) RemoveRoute(key RouteKey) error {
	if err := s.Store.RemoveRoute(key); err != nil {
		return err
	}
	if err := s.ledger.Disown(ObjectRouteEntry, key.String()); err != nil {
		util.Warnf("forgetting route %s: %v", key, err)
	}
	return nil
}

// Purge removes every object recorded in l from s, dependents first, and
// returns how many entries were cleared. Objects already gone are only
// forgotten. Entries that fail to remove stay recorded for the next purge.
func Purge(s Store, l Ledger) (int, error) {
	var n int
	var errs []error
	for _, t := range purgeOrder {
		ids, err := l.Owned(t)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing owned %s: %w", t, err))
			continue
		}
		for _, id := range ids {
			if err := purgeOne(s, t, id); err != nil && !errors.Is(err, util.ErrNotFound) {
				errs = append(errs, err)
				continue
			}
			if err := l.Disown(t, id); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
		}
	}
	return n, errors.Join(errs...)
}

func purgeOne(s Store, t ObjectType, id string) error {
	if t != ObjectRouteEntry {
		return s.Remove(t, OID(id))
	}
	key, err := ParseRouteKey(id)
	if err != nil {
		// Unparseable entries cannot name a live route.
		return util.ErrNotFound
	}
	return s.RemoveRoute(key)
}

// MemLedger is an in-memory Ledger.
type MemLedger struct {
	mu    sync.Mutex
	owned map[ObjectType]map[string]struct{}
}

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{owned: make(map[ObjectType]map[string]struct{})}
}

// Own implements Ledger.
func (l *MemLedger) Own(t ObjectType, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owned[t] == nil {
		l.owned[t] = make(map[string]struct{})
	}
	l.owned[t][id] = struct{}{}
	return nil
}

// Disown implements Ledger.
func (l *MemLedger) Disown(t ObjectType, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.owned[t], id)
	return nil
}

// Owned implements Ledger. Ids are sorted.
func (l *MemLedger) Owned(t ObjectType) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.owned[t]))
	for id := range l.owned[t] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
