package ccnsync

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/ccnxgo/ccnsync/common/mclock"
)

type compareState int

const (
	compareInit compareState = iota
	comparePreload
	compareBusy
	compareWaiting
	compareDone
)

// fetchRecord tracks one outstanding or failed NodeFetch/ContentFetch,
// kept in exactly one of {inFlight, errList} at a time (spec.md §9).
type fetchRecord struct {
	isNode bool
	hash   Hash // for node fetches
	name   Name // for content fetches
	item   NameItem
	action *Action
}

// compareEngine walks a local tree L against a peer's advertised tree
// R to derive missing names, then fetches them, spec.md §4.G.
type compareEngine struct {
	root      *Root
	peerHash  Hash
	cache     *Cache
	cfg       *Config
	clock     mclock.Clock
	transport Transport
	log       logIface
	topo      Name

	state compareState

	twL, twR *Walker

	sem *semaphore.Weighted

	inFlight map[Hash]*fetchRecord // node fetches
	errList  []*fetchRecord

	contentInFlight map[string]*fetchRecord
	contentErrList  []*fetchRecord

	namesToFetch *nameAccumulator

	lastFetchOK  mclock.AbsTime
	lastProgress mclock.AbsTime
	startedAt    mclock.AbsTime

	aborted bool
	kicked  bool // set by a fetch completion callback; cleared at the top of Run

	// onContentFetched, if set by the engine, hands fetched content to
	// the storage collaborator and feeds it back as a names-to-add
	// (spec.md §2 data flow).
	onContentFetched func(ctx context.Context, obj ContentObject, item NameItem)
}

func newCompareEngine(r *Root, peerHash Hash, cache *Cache, cfg *Config, clock mclock.Clock, transport Transport, topo Name, log logIface) *compareEngine {
	now := clock.Now()
	return &compareEngine{
		root: r, peerHash: peerHash, cache: cache, cfg: cfg, clock: clock,
		transport: transport, topo: topo, log: log,
		sem:             semaphore.NewWeighted(int64(cfg.MaxFetchBusy)),
		inFlight:        make(map[Hash]*fetchRecord),
		contentInFlight: make(map[string]*fetchRecord),
		namesToFetch:    newNameAccumulator(),
		lastFetchOK:     now,
		lastProgress:    now,
		startedAt:       now,
	}
}

// Run drives the state machine as far as it can go without blocking,
// returning whether the Compare has finished.
func (c *compareEngine) Run(now mclock.AbsTime) (finished bool) {
	c.kicked = false
	for {
		switch c.state {
		case compareInit:
			c.twL = newWalker(c.cache, c.root.CurrentHash, false)
			c.twR = newWalker(c.cache, c.peerHash, true)
			c.state = comparePreload
		case comparePreload:
			if c.stepPreload() {
				// R's root is not in the cache until preload has fetched
				// it, so a walker built at init may still be empty.
				if c.twR.Empty() {
					c.twR = newWalker(c.cache, c.peerHash, true)
				}
				c.state = compareBusy
				continue
			}
			return false
		case compareBusy:
			switch c.stepDualWalk() {
			case dualDone:
				c.state = compareWaiting
				continue
			case dualPending:
				return false
			case dualProgressed:
				continue
			}
		case compareWaiting:
			if c.stepWaiting() {
				c.state = compareDone
				continue
			}
			return false
		case compareDone:
			c.root.Stats.ComparesCompleted++
			return true
		}
	}
}

// stepPreload performs a DFS over R, issuing NodeFetch for every
// descendant whose cache entry is remote, not covered, not local, not
// already fetching, capped at MaxFetchBusy concurrent (spec.md §4.G
// "preload"). Returns true once every reachable R node is present (or
// pruned as covered/local) and no fetch is outstanding.
func (c *compareEngine) stepPreload() bool {
	var visit func(h Hash) bool // true if fully resolved (or pruned)
	seen := make(map[Hash]bool)
	visit = func(h Hash) bool {
		if h.IsZero() || seen[h] {
			return true
		}
		seen[h] = true
		e := c.cache.enter(h, StateRemote)
		if e.State.has(StateCovered) || e.State.has(StateLocal) {
			return true
		}
		n, _ := c.cache.fetch(e)
		if n == nil {
			if !e.State.has(StateFetching) {
				c.issueNodeFetch(h)
			}
			return false
		}
		ok := true
		for _, ent := range n.Entries {
			if ent.Kind == KindNode {
				if !visit(ent.Child) {
					ok = false
				}
			}
		}
		return ok
	}
	complete := visit(c.peerHash)
	return complete && len(c.inFlight) == 0
}

// dualStepResult reports the outcome of one iteration of the dual walk.
type dualStepResult int

const (
	dualDone dualStepResult = iota
	dualPending
	dualProgressed
)

// stepDualWalk performs one iteration of spec.md §4.G's dual walk.
func (c *compareEngine) stepDualWalk() dualStepResult {
	if c.twR.Empty() {
		return dualDone
	}
	fR, _ := c.twR.top()
	eR := c.cache.lookup(fR.entry)
	if eR != nil && eR.State.has(StateCovered) && fR.pos == 0 {
		c.twR.pop()
		return dualProgressed
	}
	nR, _ := c.cache.fetch(eR)
	if nR == nil {
		if eR != nil && !eR.State.has(StateFetching) {
			c.issueNodeFetch(fR.entry)
		}
		return dualPending
	}
	if c.twR.atEnd() {
		if c.twR.addedCount() == 0 && eR != nil {
			eR.State |= StateCovered
		}
		c.twR.pop()
		return dualProgressed
	}
	neR, _ := c.twR.currentEntry()

	if c.twL.Empty() {
		c.addFromR(neR)
		return dualProgressed
	}
	neL, _ := c.twL.currentEntry()

	switch {
	case neL.Kind == KindLeaf && neR.Kind == KindLeaf:
		return c.compareLeafLeaf(neL.Leaf, neR.Leaf)
	case neR.Kind == KindLeaf && neL.Kind == KindNode:
		return c.compareRLeafLNode(neR.Leaf, neL)
	case neL.Kind == KindLeaf && neR.Kind == KindNode:
		return c.compareLLeafRNode(neL.Leaf, neR)
	default:
		return c.compareNodeNode(neL, neR)
	}
}

func (c *compareEngine) addFromR(ent NodeEntry) {
	if ent.Kind == KindLeaf {
		c.addMissing(ent.Leaf)
		c.twR.advance()
		return
	}
	switch c.twR.push() {
	case pushPending:
		c.issueNodeFetch(ent.Child)
	case pushNoEntry:
		c.twR.advance()
	}
}

func (c *compareEngine) addMissing(n Name) {
	c.namesToFetch.append(n, nil)
	c.twR.markAdded(1)
	c.lastProgress = c.clock.Now()
}

func (c *compareEngine) compareLeafLeaf(l, r Name) dualStepResult {
	switch l.Compare(r) {
	case 0:
		c.twL.advance()
		c.twR.advance()
	case -1:
		c.twL.advance()
	default:
		c.addMissing(r)
		c.twR.advance()
	}
	return dualProgressed
}

func (c *compareEngine) compareRLeafLNode(r Name, lNode NodeEntry) dualStepResult {
	switch {
	case r.Less(lNode.ChildMin):
		c.addMissing(r)
		c.twR.advance()
	case r.Equal(lNode.ChildMin):
		c.twR.advance()
	case r.Equal(lNode.ChildMax):
		c.twL.advance()
		c.twR.advance()
	case lNode.ChildMin.Less(r) && r.Less(lNode.ChildMax):
		if c.twL.push() == pushPending {
			return dualPending
		}
	default: // r > max
		c.twL.advance()
	}
	return dualProgressed
}

func (c *compareEngine) compareLLeafRNode(l Name, rNode NodeEntry) dualStepResult {
	e := c.cache.lookup(rNode.Child)
	if e != nil && e.State.has(StateCovered) {
		c.twR.advance()
		return dualProgressed
	}
	n, _ := c.cache.fetch(e)
	if n == nil {
		c.issueNodeFetch(rNode.Child)
		return dualPending
	}
	switch {
	case l.Less(n.MinName):
		c.twL.advance()
	case l.Equal(n.MaxName):
		c.twL.advance()
		c.twR.advance()
	default:
		if c.twR.push() == pushPending {
			return dualPending
		}
	}
	return dualProgressed
}

func (c *compareEngine) compareNodeNode(lNode, rNode NodeEntry) dualStepResult {
	if rNode.ChildMin.Compare(lNode.ChildMax) > 0 {
		c.twL.advance()
		return dualProgressed
	}
	// L is always local and already decoded, so its push never
	// blocks on a fetch; push R first so an R fetch-pending never
	// leaves the walk half-descended.
	if c.twR.push() == pushPending {
		c.issueNodeFetch(rNode.Child)
		return dualPending
	}
	if c.twL.push() == pushPending {
		return dualPending
	}
	return dualProgressed
}

// issueNodeFetch starts a NodeFetch for h if not already in flight,
// respecting MaxFetchBusy via the semaphore.
func (c *compareEngine) issueNodeFetch(h Hash) {
	if _, ok := c.inFlight[h]; ok {
		return
	}
	if !c.sem.TryAcquire(1) {
		return
	}
	e := c.cache.enter(h, StateRemote)
	e.State |= StateFetching
	rec := &fetchRecord{isNode: true, hash: h}
	c.inFlight[h] = rec
	name := NodeFetchName(c.topo, c.root.SliceHash, h)
	cancel := c.transport.ExpressInterest(name, InterestTemplate{}, func(ev ResponseEvent) {
		c.onNodeFetchEvent(h, ev)
	})
	rec.action = &Action{Verb: VerbNodeFetch, SliceHash: c.root.SliceHash, Target: h, cancel: cancel, issued: c.clock.Now()}
}

func (c *compareEngine) onNodeFetchEvent(h Hash, ev ResponseEvent) {
	rec, ok := c.inFlight[h]
	if !ok {
		return
	}
	if ev.Timeout || (ev.Content == nil && ev.Final) {
		c.root.Stats.FetchTimeouts++
		delete(c.inFlight, h)
		c.sem.Release(1)
		c.errList = append(c.errList, rec)
		c.kicked = true
		return
	}
	if ev.Content == nil {
		return
	}
	n, err := DecodeNode(ev.Content.Body)
	if err != nil {
		c.root.Stats.FetchErrors++
		delete(c.inFlight, h)
		c.sem.Release(1)
		c.errList = append(c.errList, rec)
		c.kicked = true
		return
	}
	c.cache.completeFromWire(h, ev.Content.Body, n)
	delete(c.inFlight, h)
	c.sem.Release(1)
	c.root.Stats.NodesFetched++
	c.lastFetchOK = c.clock.Now()
	c.lastProgress = c.lastFetchOK
	c.kicked = true
}

// stepWaiting drives up to MaxFetchBusy concurrent ContentFetches over
// namesToFetch, restarting failed ones from errList, spec.md §4.G
// "waiting".
func (c *compareEngine) stepWaiting() bool {
	for len(c.contentErrList) > 0 {
		rec := c.contentErrList[0]
		c.contentErrList = c.contentErrList[1:]
		c.issueContentFetch(rec.name, rec.item)
	}
	for c.namesToFetch.len() > 0 {
		if !c.sem.TryAcquire(1) {
			break
		}
		e := c.namesToFetch.at(0)
		c.namesToFetch.splitOff(1)
		c.issueContentFetchLocked(e.name, e.item)
	}
	return len(c.contentInFlight) == 0 && c.namesToFetch.len() == 0 && len(c.contentErrList) == 0
}

func (c *compareEngine) issueContentFetch(n Name, item NameItem) {
	if !c.sem.TryAcquire(1) {
		c.contentErrList = append(c.contentErrList, &fetchRecord{name: n, item: item})
		return
	}
	c.issueContentFetchLocked(n, item)
}

func (c *compareEngine) issueContentFetchLocked(n Name, item NameItem) {
	key := n.String()
	rec := &fetchRecord{name: n, item: item}
	c.contentInFlight[key] = rec
	cancel := c.transport.ExpressInterest(n, InterestTemplate{}, func(ev ResponseEvent) {
		c.onContentFetchEvent(n, ev)
	})
	rec.action = &Action{Verb: VerbContentFetch, SliceHash: c.root.SliceHash, Name: n, cancel: cancel, issued: c.clock.Now()}
}

func (c *compareEngine) onContentFetchEvent(n Name, ev ResponseEvent) {
	key := n.String()
	rec, ok := c.contentInFlight[key]
	if !ok {
		return
	}
	if ev.Timeout || (ev.Content == nil && ev.Final) {
		c.root.Stats.FetchTimeouts++
		delete(c.contentInFlight, key)
		c.sem.Release(1)
		c.contentErrList = append(c.contentErrList, rec)
		c.kicked = true
		return
	}
	if ev.Content == nil {
		return
	}
	delete(c.contentInFlight, key)
	c.sem.Release(1)
	c.root.Stats.NamesFetched++
	c.lastFetchOK = c.clock.Now()
	c.lastProgress = c.lastFetchOK
	c.kicked = true
	if c.onContentFetched != nil {
		ctx := context.Background()
		c.onContentFetched(ctx, *ev.Content, rec.item)
	}
}

// stalled reports whether the Compare has made no progress (no
// successful NodeFetch/ContentFetch and no newly found missing name)
// for longer than UpdateStallDelta — the heartbeat logs a warning but lets
// the Compare continue (spec.md §4.G "waiting"/failure policy).
func (c *compareEngine) stalled(now mclock.AbsTime) bool {
	return now.Sub(c.lastProgress) > c.cfg.UpdateStallDelta
}

// assumedBad reports whether the Compare has gone long enough without
// a single successful fetch that the peer hash should be abandoned
// (spec.md §4.G failure policy, COMPARE_ASSUME_BAD).
func (c *compareEngine) assumedBad(now mclock.AbsTime) bool {
	return now.Sub(c.lastFetchOK) > c.cfg.CompareAssumeBad
}

// abort records the reason, frees pending actions, and reports the
// peer hash so the caller can drop it from remote_seen (spec.md §7
// propagation policy, §4.G failure policy).
func (c *compareEngine) abort(reason string) {
	c.aborted = true
	for _, rec := range c.inFlight {
		if rec.action != nil {
			rec.action.markInactive()
		}
	}
	for _, rec := range c.contentInFlight {
		if rec.action != nil {
			rec.action.markInactive()
		}
	}
	c.inFlight = make(map[Hash]*fetchRecord)
	c.contentInFlight = make(map[string]*fetchRecord)
	c.root.Stats.ComparesAborted++
	if c.log != nil {
		c.log.Warn("compare aborted", "reason", reason, "peer", c.peerHash.String())
	}
}
