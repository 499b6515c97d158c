package asic

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newtron-network/vnetorch/pkg/util"
)

// Op names a Store operation for fault injection.
type Op string

const (
	OpCreate      Op = "create"
	OpRemove      Op = "remove"
	OpSetRoute    Op = "set_route"
	OpRemoveRoute Op = "remove_route"
)

type faultKey struct {
	op Op
	t  ObjectType
}

type fault struct {
	err   error
	after int // successful calls to let through first
	times int // failures to inject; <0 means forever
}

// MemStore is an in-memory Store. It backs dry-run mode and unit tests,
// and can be told to fail selected operations.
type MemStore struct {
	mu       sync.Mutex
	switchID OID
	counter  uint64
	objects  map[ObjectType]map[OID]Attrs
	routes   map[RouteKey]Attrs
	faults   map[faultKey]*fault
	creates  int
	removes  int
}

// NewMemStore creates an empty store holding a single switch object.
func NewMemStore() *MemStore {
	s := &MemStore{
		objects: make(map[ObjectType]map[OID]Attrs),
		routes:  make(map[RouteKey]Attrs),
		faults:  make(map[faultKey]*fault),
	}
	s.switchID = s.mint(ObjectSwitch)
	s.objects[ObjectSwitch] = map[OID]Attrs{s.switchID: {}}
	return s
}

func (s *MemStore) mint(t ObjectType) OID {
	s.counter++
	return MakeOID(t, s.counter)
}

// SwitchID implements Store.
func (s *MemStore) SwitchID() OID { return s.switchID }

// Create implements Store.
func (s *MemStore) Create(t ObjectType, attrs Attrs) (OID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.inject(OpCreate, t); err != nil {
		return "", err
	}
	oid := s.mint(t)
	if s.objects[t] == nil {
		s.objects[t] = make(map[OID]Attrs)
	}
	s.objects[t][oid] = copyAttrs(attrs)
	s.creates++
	return oid, nil
}

// Remove implements Store.
func (s *MemStore) Remove(t ObjectType, oid OID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.inject(OpRemove, t); err != nil {
		return err
	}
	if _, ok := s.objects[t][oid]; !ok {
		return fmt.Errorf("%s %s: %w", t, oid, util.ErrNotFound)
	}
	delete(s.objects[t], oid)
	s.removes++
	return nil
}

// SetRoute implements Store.
func (s *MemStore) SetRoute(key RouteKey, attrs Attrs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.inject(OpSetRoute, ObjectRouteEntry); err != nil {
		return err
	}
	cur, ok := s.routes[key]
	if !ok {
		cur = make(Attrs)
		s.routes[key] = cur
		s.creates++
	}
	for k, v := range attrs {
		cur[k] = v
	}
	return nil
}

// RemoveRoute implements Store.
func (s *MemStore) RemoveRoute(key RouteKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.inject(OpRemoveRoute, ObjectRouteEntry); err != nil {
		return err
	}
	if _, ok := s.routes[key]; !ok {
		return fmt.Errorf("route %s: %w", key, util.ErrNotFound)
	}
	delete(s.routes, key)
	s.removes++
	return nil
}

// FailNext makes the next n calls of op on type t fail with err.
// n < 0 fails every call until ClearFaults.
func (s *MemStore) FailNext(op Op, t ObjectType, n int, err error) {
	s.FailAfter(op, t, 0, n, err)
}

// FailAfter lets `after` calls of op on type t succeed, then fails the
// following n calls with err.
func (s *MemStore) FailAfter(op Op, t ObjectType, after, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("injected %s failure on %s", op, t)
	}
	s.faults[faultKey{op, t}] = &fault{err: err, after: after, times: n}
}

// ClearFaults removes all injected faults.
func (s *MemStore) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[faultKey]*fault)
}

func (s *MemStore) inject(op Op, t ObjectType) error {
	f, ok := s.faults[faultKey{op, t}]
	if !ok {
		return nil
	}
	if f.after > 0 {
		f.after--
		return nil
	}
	if f.times == 0 {
		delete(s.faults, faultKey{op, t})
		return nil
	}
	if f.times > 0 {
		f.times--
	}
	return f.err
}

// Get returns a copy of the attributes of object oid.
func (s *MemStore) Get(t ObjectType, oid OID) (Attrs, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.objects[t][oid]
	return copyAttrs(a), ok
}

// Count returns the number of live objects of type t. ObjectRouteEntry
// counts route entries.
func (s *MemStore) Count(t ObjectType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == ObjectRouteEntry {
		return len(s.routes)
	}
	return len(s.objects[t])
}

// OIDs returns the sorted ids of all objects of type t.
func (s *MemStore) OIDs(t ObjectType) []OID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OID, 0, len(s.objects[t]))
	for oid := range s.objects[t] {
		out = append(out, oid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Route returns the attributes of the route entry for dest in vr.
func (s *MemStore) Route(dest string, vr OID) (Attrs, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.routes[RouteKey{Dest: dest, SwitchID: s.switchID, VR: vr}]
	return copyAttrs(a), ok
}

// Members returns the member objects of group oid keyed by member OID.
func (s *MemStore) Members(group OID) map[OID]Attrs {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[OID]Attrs)
	for oid, a := range s.objects[ObjectNextHopGroupMember] {
		if OID(a[AttrGroupMemberGroupID]) == group {
			out[oid] = copyAttrs(a)
		}
	}
	return out
}

// Stats returns the number of successful creates and removes so far,
// route entries included.
func (s *MemStore) Stats() (creates, removes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.removes
}

func copyAttrs(a Attrs) Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
