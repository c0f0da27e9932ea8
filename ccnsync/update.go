package ccnsync

import (
	"time"

	"github.com/ccnxgo/ccnsync/common/mclock"
)

type updateState int

const (
	updateInit updateState = iota
	updateInserted
	updateBusy
	updateDone
	updateError
)

// updateEngine folds Root.namesToAdd into the tree rooted at
// Root.CurrentHash, producing a new root hash, spec.md §4.F.
type updateEngine struct {
	root  *Root
	cache *Cache
	cfg   *Config
	clock mclock.Clock
	log   logIface

	state updateState
	err   error

	// snapshot of pending names taken at init, sorted externally via
	// indexSorter so the (possibly large) name buffers never move.
	pending []nameEntry
	sorter  *indexSorter
	sorterNextLocal int // index into pending already consumed via sorter order, for resuming

	walker  *Walker
	leafAcc *nameAccumulator

	// merge-walk resumable state
	haveWalkerLeaf bool
	walkerLeaf     Name
	haveSortedNext bool
	sortedNext     nameEntry

	builtLeafNodes []*Node
	builtHashes    []Hash

	dupsDropped int
	inserted    int

	emitAdvise bool
}

func newUpdateEngine(r *Root, cache *Cache, cfg *Config, clock mclock.Clock, log logIface) *updateEngine {
	return &updateEngine{root: r, cache: cache, cfg: cfg, clock: clock, log: log}
}

// Run performs as much work as the yield contract allows and reports
// whether the Update has finished (successfully or not) along with the
// delay the heartbeat should use to reschedule it if not.
func (u *updateEngine) Run(now mclock.AbsTime) (finished bool, reschedule time.Duration) {
	deadline := now.Add(u.cfg.NamesYieldMicros)
	processed := 0

	for {
		if u.state == updateDone || u.state == updateError {
			return true, 0
		}
		if processed >= u.cfg.NamesYieldInc || u.clock.Now() >= deadline {
			return false, u.cfg.ShortDelay
		}
		switch u.state {
		case updateInit:
			u.doInit()
		case updateInserted:
			u.stepInserted()
		case updateBusy:
			u.doBusy()
		}
		processed++
	}
}

func (u *updateEngine) doInit() {
	u.pending = append([]nameEntry(nil), u.root.namesToAdd.entries...)
	u.root.namesToAdd.reset()
	u.sorter = newIndexSorter(len(u.pending), func(i, j int) bool {
		return u.pending[i].name.Less(u.pending[j].name)
	})
	u.walker = newWalker(u.cache, u.root.CurrentHash, false)
	u.leafAcc = newNameAccumulator()
	u.state = updateInserted
}

// pullWalkerLeaf / pullSortedNext lazily refill the one-ahead buffers
// the merge-walk compares, so the loop can yield mid-comparison.
func (u *updateEngine) pullWalkerLeaf() {
	if u.haveWalkerLeaf || u.walker == nil {
		return
	}
	if n, ok := u.walker.leafIterNext(); ok {
		u.walkerLeaf = n
		u.haveWalkerLeaf = true
	}
}

func (u *updateEngine) pullSortedNext() {
	if u.haveSortedNext {
		return
	}
	if idx, ok := u.sorter.best(); ok {
		u.sortedNext = u.pending[idx]
		u.haveSortedNext = true
	}
}

// stepInserted performs one step of the merge-walk described in
// spec.md §4.F "inserted": merge the current tree's leaves with the
// sorted pending names into leafAcc, dropping duplicates, splitting
// when the trigger is reached.
func (u *updateEngine) stepInserted() {
	u.pullWalkerLeaf()
	u.pullSortedNext()

	switch {
	case !u.haveWalkerLeaf && !u.haveSortedNext:
		u.finishInserted()
		return
	case u.haveWalkerLeaf && !u.haveSortedNext:
		u.emit(u.walkerLeaf, nil)
		u.haveWalkerLeaf = false
	case !u.haveWalkerLeaf && u.haveSortedNext:
		u.emit(u.sortedNext.name, u.sortedNext.item)
		u.haveSortedNext = false
	default:
		c := u.walkerLeaf.Compare(u.sortedNext.name)
		switch {
		case c == 0:
			u.dupsDropped++
			u.haveWalkerLeaf = false
			u.haveSortedNext = false
		case c < 0:
			u.emit(u.walkerLeaf, nil)
			u.haveWalkerLeaf = false
		default:
			u.emit(u.sortedNext.name, u.sortedNext.item)
			u.haveSortedNext = false
		}
	}

	if u.leafAcc.bytes >= u.cfg.NodeSplitTrigger*7/8 {
		u.trySplit()
	}
}

func (u *updateEngine) emit(n Name, item NameItem) {
	// Suppress an adjacent duplicate against the accumulator's own
	// tail too, so a name present both as a leaf (already inserted
	// earlier, revisited by an overlapping sub-walk) and as a pending
	// add never doubles up.
	if last, ok := u.leafAcc.last(); ok && last.name.Equal(n) {
		u.dupsDropped++
		return
	}
	u.leafAcc.append(n, item)
	u.inserted++
}

func (u *updateEngine) finishInserted() {
	if u.leafAcc.len() > 0 {
		u.trySplit()
		if u.leafAcc.len() > 0 {
			u.flushRemainder()
		}
	}
	u.state = updateBusy
}

// trySplit implements spec.md §4.F's try_node_split: level split, hash
// split, or a forced split at NodeSplitTrigger*7/8, whichever condition
// fires first against the entries currently buffered.
func (u *updateEngine) trySplit() {
	entries := u.leafAcc.entries
	half := u.cfg.NodeSplitTrigger / 2
	forced := u.cfg.NodeSplitTrigger * 7 / 8

	cum := 0
	boundary := -1
	for i := 1; i < len(entries); i++ {
		cum += entries[i-1].name.ByteLen()
		if cum < half {
			continue
		}
		// level split: prefix-match depth decreases at this boundary.
		if i >= 2 {
			prevDepth := entries[i-2].name.PrefixMatchDepth(entries[i-1].name)
			curDepth := entries[i-1].name.PrefixMatchDepth(entries[i].name)
			if curDepth < prevDepth {
				boundary = i
				break
			}
		}
		// hash split: a late byte of the boundary name is small.
		nm := entries[i-1].name
		if len(nm) > 0 {
			last := nm[len(nm)-1]
			if len(last) > 0 && int(last[len(last)-1]) < u.cfg.HashSplitTrigger {
				boundary = i
				break
			}
		}
		if cum >= forced {
			boundary = i
			break
		}
	}
	if boundary < 0 {
		if u.leafAcc.bytes < forced {
			return
		}
		// split at the forced point, choosing the entry index whose
		// cumulative byte length first reaches it.
		cum = 0
		for i, e := range entries {
			cum += e.name.ByteLen()
			if cum >= forced {
				boundary = i + 1
				break
			}
		}
		if boundary <= 0 {
			boundary = len(entries)
		}
	}
	prefix := u.leafAcc.splitOff(boundary)
	if len(prefix) == 0 {
		return
	}
	u.installLeafNode(prefix)
}

func (u *updateEngine) installLeafNode(entries []nameEntry) {
	n := newLeafNode(entries)
	h := n.Hash()
	if existing := u.cache.lookup(h); existing != nil && (existing.LocalNode != nil || existing.RemoteNode != nil) {
		u.builtLeafNodes = append(u.builtLeafNodes, n)
		u.builtHashes = append(u.builtHashes, h)
		return
	}
	enc, err := n.Encode()
	if err != nil {
		u.state = updateError
		u.err = err
		return
	}
	u.cache.installLocal(h, enc, n)
	u.builtLeafNodes = append(u.builtLeafNodes, n)
	u.builtHashes = append(u.builtHashes, h)
}

func (u *updateEngine) flushRemainder() {
	entries := u.leafAcc.splitOff(u.leafAcc.len())
	if len(entries) == 0 {
		return
	}
	u.installLeafNode(entries)
}

// doBusy combines the accumulated leaf nodes recursively into a single
// root node via node_from_nodes, grouping adjacent children until their
// aggregate size reaches NodeSplitTrigger, spec.md §4.F "busy".
func (u *updateEngine) doBusy() {
	if len(u.builtLeafNodes) == 0 {
		// No content at all: tree stays empty.
		u.root.CurrentHash = Hash{}
		u.finishDone()
		return
	}
	level := u.builtLeafNodes
	levelHashes := u.builtHashes
	for len(level) > 1 {
		var nextLevel []*Node
		var nextHashes []Hash
		i := 0
		for i < len(level) {
			groupBytes := 0
			j := i
			for j < len(level) {
				sz := level[j].ByteCount
				if groupBytes+sz > u.cfg.NodeSplitTrigger && j > i {
					break
				}
				groupBytes += sz
				j++
			}
			parent := nodeFromChildren(level[i:j], levelHashes[i:j])
			h := parent.Hash()
			if existing := u.cache.lookup(h); existing == nil || (existing.LocalNode == nil && existing.RemoteNode == nil) {
				enc, err := parent.Encode()
				if err != nil {
					u.state = updateError
					u.err = err
					return
				}
				u.cache.installLocal(h, enc, parent)
			}
			nextLevel = append(nextLevel, parent)
			nextHashes = append(nextHashes, h)
			i = j
		}
		level = nextLevel
		levelHashes = nextHashes
	}
	u.root.CurrentHash = levelHashes[0]
	u.finishDone()
}

func (u *updateEngine) finishDone() {
	now := u.clock.Now()
	u.root.LastHashChange = now
	u.root.LastUpdate = now
	u.root.Stats.NamesInserted += uint64(u.inserted)
	u.root.Stats.UpdatesCompleted++
	u.root.StablePoint = u.root.HighWater
	u.emitAdvise = true
	u.state = updateDone
}

// logIface is the minimal logging surface the engine's internals need,
// satisfied by log.Logger; kept as its own tiny interface here so
// package ccnsync doesn't import package log just for a type name in
// every file.
type logIface interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
}
