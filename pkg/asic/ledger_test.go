package asic

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// failingLedger refuses to record anything.
type failingLedger struct{ *MemLedger }

func (l *failingLedger) Own(ObjectType, string) error { return errors.New("state_db down") }

func TestOwningStoreRecords(t *testing.T) {
	mem := NewMemStore()
	ledger := NewMemLedger()
	s := NewOwningStore(mem, ledger)

	vr, err := s.Create(ObjectVirtualRouter, nil)
	if err != nil {
		t.Fatal(err)
	}
	nh, err := s.Create(ObjectNextHop, Attrs{AttrNextHopIP: "9.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	rk := RouteKey{Dest: "100.100.1.1/32", SwitchID: mem.SwitchID(), VR: vr}
	if err := s.SetRoute(rk, Attrs{AttrRouteNextHopID: string(nh)}); err != nil {
		t.Fatal(err)
	}

	for typ, want := range map[ObjectType][]string{
		ObjectVirtualRouter: {string(vr)},
		ObjectNextHop:       {string(nh)},
		ObjectRouteEntry:    {rk.String()},
	} {
		got, _ := ledger.Owned(typ)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("owned %s (-want +got):\n%s", typ, diff)
		}
	}

	if err := s.RemoveRoute(rk); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ObjectNextHop, nh); err != nil {
		t.Fatal(err)
	}
	if got, _ := ledger.Owned(ObjectNextHop); len(got) != 0 {
		t.Errorf("removed next hop still owned: %v", got)
	}
	if got, _ := ledger.Owned(ObjectRouteEntry); len(got) != 0 {
		t.Errorf("removed route still owned: %v", got)
	}
}

func TestOwningStoreUnrecordedCreate(t *testing.T) {
	mem := NewMemStore()
	s := NewOwningStore(mem, &failingLedger{NewMemLedger()})

	if _, err := s.Create(ObjectNextHop, Attrs{AttrNextHopIP: "9.0.0.1"}); err == nil {
		t.Fatal("expected create to fail when ownership cannot be recorded")
	}
	if n := mem.Count(ObjectNextHop); n != 0 {
		t.Errorf("unrecorded next hop left in store: %d", n)
	}
	rk := RouteKey{Dest: "10.0.0.0/8", SwitchID: mem.SwitchID(), VR: "oid:0x3000000000001"}
	if err := s.SetRoute(rk, Attrs{}); err == nil {
		t.Fatal("expected route write to fail when ownership cannot be recorded")
	}
	if n := mem.Count(ObjectRouteEntry); n != 0 {
		t.Errorf("unrecorded route left in store: %d", n)
	}
}

func TestPurge(t *testing.T) {
	mem := NewMemStore()
	ledger := NewMemLedger()
	s := NewOwningStore(mem, ledger)

	vr, _ := s.Create(ObjectVirtualRouter, nil)
	nh1, _ := s.Create(ObjectNextHop, Attrs{AttrNextHopIP: "9.0.0.1"})
	nh2, _ := s.Create(ObjectNextHop, Attrs{AttrNextHopIP: "9.0.0.2"})
	g, _ := s.Create(ObjectNextHopGroup, Attrs{AttrNextHopGroupType: NextHopGroupTypeECMP})
	s.Create(ObjectNextHopGroupMember, Attrs{AttrGroupMemberGroupID: string(g), AttrGroupMemberNextHopID: string(nh1)})
	s.Create(ObjectNextHopGroupMember, Attrs{AttrGroupMemberGroupID: string(g), AttrGroupMemberNextHopID: string(nh2)})
	s.SetRoute(RouteKey{Dest: "100.100.1.1/32", SwitchID: mem.SwitchID(), VR: vr}, Attrs{AttrRouteNextHopID: string(g)})

	// Gone from the store but still recorded.
	mem.Remove(ObjectNextHop, nh2)

	n, err := Purge(mem, ledger)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 7 {
		t.Errorf("purged %d entries, want 7", n)
	}
	for _, typ := range purgeOrder {
		if c := mem.Count(typ); c != 0 {
			t.Errorf("%s left after purge: %d", typ, c)
		}
		if ids, _ := ledger.Owned(typ); len(ids) != 0 {
			t.Errorf("%s still owned after purge: %v", typ, ids)
		}
	}
	if mem.Count(ObjectSwitch) != 1 {
		t.Error("purge must not touch the switch object")
	}
}

func TestPurgeKeepsFailedEntries(t *testing.T) {
	mem := NewMemStore()
	ledger := NewMemLedger()
	s := NewOwningStore(mem, ledger)
	nh, _ := s.Create(ObjectNextHop, Attrs{AttrNextHopIP: "9.0.0.1"})

	mem.FailNext(OpRemove, ObjectNextHop, 1, nil)
	if _, err := Purge(mem, ledger); err == nil {
		t.Fatal("expected purge error")
	}
	if got, _ := ledger.Owned(ObjectNextHop); len(got) != 1 {
		t.Fatalf("failed entry should stay owned, got %v", got)
	}
	if _, err := Purge(mem, ledger); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, ok := mem.Get(ObjectNextHop, nh); ok {
		t.Error("next hop survived the retried purge")
	}
}
