package ccnsync

import "testing"

func TestExclusionListDedup(t *testing.T) {
	x := newExclusionList(1000)
	h := Digest([]byte("a"))
	x.add(h)
	x.add(h)
	if len(x.order) != 1 {
		t.Fatalf("duplicate add grew the list: %d entries", len(x.order))
	}
}

func TestExclusionListOverflowDropsOldest(t *testing.T) {
	// budget for exactly 2 hashes
	x := newExclusionList(2 * HashSize)
	h1 := Digest([]byte("a"))
	h2 := Digest([]byte("b"))
	h3 := Digest([]byte("c"))
	x.add(h1)
	x.add(h2)
	x.add(h3)

	if x.present[h1] {
		t.Fatalf("oldest entry should have been evicted")
	}
	if !x.present[h2] || !x.present[h3] {
		t.Fatalf("newer entries should survive overflow")
	}
}

func TestExclusionListRemove(t *testing.T) {
	x := newExclusionList(1000)
	h := Digest([]byte("a"))
	x.add(h)
	x.remove(h)
	if x.present[h] {
		t.Fatalf("remove did not clear membership")
	}
	if x.size != 0 {
		t.Fatalf("remove did not shrink size tracking: %d", x.size)
	}
}

func TestExclusionListSortedOrder(t *testing.T) {
	x := newExclusionList(1000)
	hs := []Hash{{0x03}, {0x01}, {0x02}}
	for _, h := range hs {
		x.add(h)
	}
	sorted := x.sorted()
	for i := 1; i < len(sorted); i++ {
		if !sorted[i-1].Less(sorted[i]) {
			t.Fatalf("sorted() not in ascending order at %d", i)
		}
	}
}

func TestProtocolNameBuilders(t *testing.T) {
	topo := Name{[]byte("local"), []byte("sync")}
	slice := Digest([]byte("slice"))
	peer := Digest([]byte("peer"))

	ra := RootAdviseName(topo, slice, &peer)
	if !ra.HasPrefix(topo) {
		t.Fatalf("RootAdviseName missing topo prefix")
	}
	if string(ra[len(topo)]) != "ra" {
		t.Fatalf("RootAdviseName missing verb component")
	}

	nf := NodeFetchName(topo, slice, peer)
	if string(nf[len(topo)]) != "nf" {
		t.Fatalf("NodeFetchName missing verb component")
	}

	rs := RootStatsName(topo, slice)
	if string(rs[len(topo)]) != "rs" {
		t.Fatalf("RootStatsName missing verb component")
	}

	// RootAdviseName must not mutate the topo slice it was built from.
	raNoPeer := RootAdviseName(topo, slice, nil)
	if len(raNoPeer) != len(topo)+2 {
		t.Fatalf("RootAdviseName without peer has wrong length: %d", len(raNoPeer))
	}
	if len(topo) != 2 {
		t.Fatalf("topo was mutated by a name builder: %v", topo)
	}
}

func TestActionMarkInactive(t *testing.T) {
	called := false
	a := &Action{cancel: func() { called = true }}
	a.markInactive()
	if a.state != actionInactive {
		t.Fatalf("state = %v, want actionInactive", a.state)
	}
	if !called {
		t.Fatalf("markInactive did not invoke cancel")
	}
}
