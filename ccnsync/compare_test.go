package ccnsync

import (
	"context"
	"testing"

	"github.com/ccnxgo/ccnsync/common/mclock"
)

// fakeTransport answers NodeFetch interests from a hash->encoding table
// and ContentFetch interests from a name->body table, synchronously and
// unconditionally (no peer selection, no signature verification) —
// enough to drive compareEngine's fetch management deterministically.
type fakeTransport struct {
	nodeEncodings map[Hash][]byte
	contentBodies map[string][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nodeEncodings: make(map[Hash][]byte),
		contentBodies: make(map[string][]byte),
	}
}

func (f *fakeTransport) ExpressInterest(name Name, tmpl InterestTemplate, onResponse OnResponseFunc) func() {
	if len(name) > 0 && len(name[len(name)-1]) == HashSize {
		var h Hash
		copy(h[:], name[len(name)-1])
		if enc, ok := f.nodeEncodings[h]; ok {
			respName := append(append(Name{}, name...))
			onResponse(ResponseEvent{Content: &ContentObject{Name: respName, Body: enc}, Final: true})
			return func() {}
		}
		onResponse(ResponseEvent{Timeout: true, Final: true})
		return func() {}
	}
	if body, ok := f.contentBodies[name.String()]; ok {
		onResponse(ResponseEvent{Content: &ContentObject{Name: name, Body: body}, Final: true})
		return func() {}
	}
	onResponse(ResponseEvent{Timeout: true, Final: true})
	return func() {}
}

func (f *fakeTransport) SetInterestFilter(prefix Name, onInterest OnInterestFunc) func() { return func() {} }
func (f *fakeTransport) Put(obj ContentObject) error                                     { return nil }

func runCompareToCompletion(t *testing.T, c *compareEngine, clock *mclock.Simulated) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if c.Run(clock.Now()) {
			return
		}
	}
	t.Fatalf("compare did not finish within the iteration budget")
}

func TestCompareEngineFindsMissingLeaf(t *testing.T) {
	clock := &mclock.Simulated{}
	cache := newCache(clock)
	cfg := DefaultConfig()
	transport := newFakeTransport()

	local := newLeafNode(leafEntries("a", "c"))
	localEnc, _ := local.Encode()
	cache.installLocal(local.Hash(), localEnc, local)

	peer := newLeafNode(leafEntries("a", "b", "c"))
	peerEnc, _ := peer.Encode()
	transport.nodeEncodings[peer.Hash()] = peerEnc
	transport.contentBodies["/b"] = []byte("b-body")

	r := newRoot(SliceConfig{})
	r.CurrentHash = local.Hash()

	var fetched []string
	c := newCompareEngine(r, peer.Hash(), cache, &cfg, clock, transport, Name{[]byte("topo")}, nopLog{})
	c.onContentFetched = func(ctx context.Context, obj ContentObject, item NameItem) {
		fetched = append(fetched, obj.Name.String())
	}
	runCompareToCompletion(t, c, clock)

	if len(fetched) != 1 || fetched[0] != "/b" {
		t.Fatalf("fetched = %v, want exactly [/b]", fetched)
	}
	if r.Stats.ComparesCompleted != 1 {
		t.Fatalf("ComparesCompleted = %d, want 1", r.Stats.ComparesCompleted)
	}
	if r.Stats.NamesFetched != 1 {
		t.Fatalf("NamesFetched = %d, want 1", r.Stats.NamesFetched)
	}
}

func TestCompareEngineMissingLeafDoesNotMarkNodeCovered(t *testing.T) {
	clock := &mclock.Simulated{}
	cache := newCache(clock)
	cfg := DefaultConfig()
	transport := newFakeTransport()

	local := newLeafNode(leafEntries("a", "c"))
	localEnc, _ := local.Encode()
	cache.installLocal(local.Hash(), localEnc, local)

	peer := newLeafNode(leafEntries("a", "b", "c"))
	peerEnc, _ := peer.Encode()
	transport.nodeEncodings[peer.Hash()] = peerEnc
	transport.contentBodies["/b"] = []byte("b-body")

	r := newRoot(SliceConfig{})
	r.CurrentHash = local.Hash()

	c := newCompareEngine(r, peer.Hash(), cache, &cfg, clock, transport, Name{[]byte("topo")}, nopLog{})
	runCompareToCompletion(t, c, clock)

	e := cache.lookup(peer.Hash())
	if e == nil {
		t.Fatalf("expected a cache entry for the peer root")
	}
	if e.State.has(StateCovered) {
		t.Fatalf("peer root was marked covered even though /b was genuinely missing from the local tree")
	}

	// A later Compare against the same peer hash (e.g. after an abort and
	// a fresh RootAdvise) must still detect and re-queue the same missing
	// name rather than short-circuiting on a stale covered mark.
	c2 := newCompareEngine(r, peer.Hash(), cache, &cfg, clock, transport, Name{[]byte("topo")}, nopLog{})
	var refetched []string
	c2.onContentFetched = func(ctx context.Context, obj ContentObject, item NameItem) {
		refetched = append(refetched, obj.Name.String())
	}
	runCompareToCompletion(t, c2, clock)

	if len(refetched) != 1 || refetched[0] != "/b" {
		t.Fatalf("second compare refetched = %v, want exactly [/b]", refetched)
	}
}

func TestCompareEngineIdenticalTreesFetchNothing(t *testing.T) {
	clock := &mclock.Simulated{}
	cache := newCache(clock)
	cfg := DefaultConfig()
	transport := newFakeTransport()

	local := newLeafNode(leafEntries("a", "b"))
	localEnc, _ := local.Encode()
	cache.installLocal(local.Hash(), localEnc, local)

	r := newRoot(SliceConfig{})
	r.CurrentHash = local.Hash()

	c := newCompareEngine(r, local.Hash(), cache, &cfg, clock, transport, Name{[]byte("topo")}, nopLog{})
	runCompareToCompletion(t, c, clock)

	if c.namesToFetch.len() != 0 {
		t.Fatalf("identical trees should produce no names to fetch")
	}
}

func TestCompareEngineNodeFetchTimeoutRecordsFailure(t *testing.T) {
	clock := &mclock.Simulated{}
	cache := newCache(clock)
	cfg := DefaultConfig()
	transport := newFakeTransport() // no encodings registered: every NodeFetch times out

	local := newLeafNode(leafEntries("a"))
	localEnc, _ := local.Encode()
	cache.installLocal(local.Hash(), localEnc, local)

	peer := newLeafNode(leafEntries("a", "z"))

	r := newRoot(SliceConfig{})
	r.CurrentHash = local.Hash()

	c := newCompareEngine(r, peer.Hash(), cache, &cfg, clock, transport, Name{[]byte("topo")}, nopLog{})
	// Drive a single preload step: the fetch times out synchronously.
	c.state = compareInit
	c.Run(clock.Now())

	if r.Stats.FetchTimeouts == 0 {
		t.Fatalf("expected a recorded fetch timeout")
	}
	if len(c.errList) == 0 {
		t.Fatalf("timed-out fetch should land in errList")
	}
}

func TestCompareEngineStalledAndAssumedBad(t *testing.T) {
	clock := &mclock.Simulated{}
	cache := newCache(clock)
	cfg := DefaultConfig()
	cfg.UpdateStallDelta = 0
	cfg.CompareAssumeBad = 0
	transport := newFakeTransport()

	r := newRoot(SliceConfig{})
	c := newCompareEngine(r, Hash{0xAA}, cache, &cfg, clock, transport, Name{[]byte("topo")}, nopLog{})

	clock.Run(1)
	if !c.stalled(clock.Now()) {
		t.Fatalf("expected stalled() to report true once UpdateStallDelta has elapsed")
	}
	if !c.assumedBad(clock.Now()) {
		t.Fatalf("expected assumedBad() to report true once CompareAssumeBad has elapsed")
	}
}

func TestCompareEngineAbortClearsInFlight(t *testing.T) {
	clock := &mclock.Simulated{}
	cache := newCache(clock)
	cfg := DefaultConfig()
	transport := newFakeTransport()

	r := newRoot(SliceConfig{})
	c := newCompareEngine(r, Hash{0xAA}, cache, &cfg, clock, transport, Name{[]byte("topo")}, nopLog{})
	c.inFlight[Hash{0x01}] = &fetchRecord{isNode: true, hash: Hash{0x01}, action: &Action{}}

	c.abort("test")

	if !c.aborted {
		t.Fatalf("abort should set aborted")
	}
	if len(c.inFlight) != 0 {
		t.Fatalf("abort should clear inFlight")
	}
	if r.Stats.ComparesAborted != 1 {
		t.Fatalf("ComparesAborted = %d, want 1", r.Stats.ComparesAborted)
	}
}
