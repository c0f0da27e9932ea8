package ccnsync

// walkerFrame is one stack level of a Walker, spec.md §4.C: the entry
// being descended, the current position within it, and the entry count.
type walkerFrame struct {
	node  *Node
	entry Hash // cache key for this frame's node
	pos   int
	added int // leaves added to namesToFetch from this subtree so far
}

// Walker is a cursor over a rooted tree, biased toward the local or
// remote decoded node of each cache entry it visits. It never recurses:
// push/pop/advance are explicit so a Compare or Update can suspend
// mid-walk across scheduler ticks (spec.md §5, §9 design notes).
type Walker struct {
	cache  *Cache
	remote bool
	stack  []walkerFrame
}

// newWalker initializes a Walker at rootHash. If the node isn't yet
// decoded (remote subtree not fetched), the walker starts empty and the
// caller is expected to check Empty() and issue a fetch.
func newWalker(cache *Cache, rootHash Hash, remote bool) *Walker {
	w := &Walker{cache: cache, remote: remote}
	if rootHash.IsZero() {
		return w
	}
	e := cache.lookup(rootHash)
	if e == nil {
		return w
	}
	n, err := cache.fetch(e)
	if err != nil || n == nil {
		return w
	}
	w.stack = append(w.stack, walkerFrame{node: n, entry: rootHash})
	return w
}

// Empty reports whether the walker has exhausted the tree (or never
// had a root to begin with / is waiting on a fetch).
func (w *Walker) Empty() bool { return len(w.stack) == 0 }

// top returns the current frame, or ok=false if Empty.
func (w *Walker) top() (walkerFrame, bool) {
	if w.Empty() {
		return walkerFrame{}, false
	}
	return w.stack[len(w.stack)-1], true
}

// currentEntry returns the NodeEntry the walker is positioned at.
func (w *Walker) currentEntry() (NodeEntry, bool) {
	f, ok := w.top()
	if !ok || f.pos >= len(f.node.Entries) {
		return NodeEntry{}, false
	}
	return f.node.Entries[f.pos], true
}

// atEnd reports whether the top frame has been fully consumed
// (tweR.pos == refLen in spec.md §4.G step 4).
func (w *Walker) atEnd() bool {
	f, ok := w.top()
	return !ok || f.pos >= len(f.node.Entries)
}

// remaining returns how many sibling entries remain after pos at the
// top frame.
func (w *Walker) remaining() int {
	f, ok := w.top()
	if !ok {
		return 0
	}
	return len(f.node.Entries) - f.pos
}

// markAdded records that n leaves were just added to namesToFetch from
// the subtree the top frame is currently positioned in (spec.md §4.G
// step 4's `count`, the C original's `tweR->count++` in
// addNameFromCompare).
func (w *Walker) markAdded(n int) {
	if len(w.stack) == 0 {
		return
	}
	w.stack[len(w.stack)-1].added += n
}

// addedCount returns how many leaves have been added to namesToFetch
// from the top frame's subtree so far, including everything propagated
// up from already-popped child frames.
func (w *Walker) addedCount() int {
	f, ok := w.top()
	if !ok {
		return 0
	}
	return f.added
}

// advance moves the top frame's position forward by one.
func (w *Walker) advance() {
	if len(w.stack) == 0 {
		return
	}
	w.stack[len(w.stack)-1].pos++
}

// pushResult reports what push() found.
type pushResult int

const (
	pushDescended pushResult = iota
	pushPending              // child cache entry not yet present; caller should fetch
	pushNoEntry              // current position isn't a node-kind entry
)

// push descends into the child node at the walker's current position.
// It requires that child's cache entry to already be decoded; if not,
// it reports pushPending so the caller (Compare's preload/dual walk)
// can issue a NodeFetch and retry later.
func (w *Walker) push() pushResult {
	ent, ok := w.currentEntry()
	if !ok || ent.Kind != KindNode {
		return pushNoEntry
	}
	e := w.cache.lookup(ent.Child)
	if e == nil {
		w.cache.enter(ent.Child, StateRemote)
		return pushPending
	}
	n, err := w.cache.fetch(e)
	if err != nil || n == nil {
		return pushPending
	}
	w.stack = append(w.stack, walkerFrame{node: n, entry: ent.Child})
	return pushDescended
}

// pop discards the top frame, propagating both position and `added`
// count upward to the parent frame (spec.md §4.G step 2: "pop tweR
// (propagating count upward)"; the C original's `tweR->count += c`
// after SyncTreeWorkerPop).
func (w *Walker) pop() {
	if len(w.stack) == 0 {
		return
	}
	added := w.stack[len(w.stack)-1].added
	w.stack = w.stack[:len(w.stack)-1]
	if len(w.stack) > 0 {
		w.stack[len(w.stack)-1].pos++
		w.stack[len(w.stack)-1].added += added
	}
}

// rootHashOf returns the hash of the node the walker was initialized
// with (depth-0 frame), or the zero hash if never set.
func (w *Walker) rootHashOf() Hash {
	if len(w.stack) == 0 {
		return Hash{}
	}
	return w.stack[0].entry
}

// leafIterNext advances a leaf-only iteration over the walker's tree in
// name order, used by Update's merge-walk over the current tree
// (spec.md §4.F "inserted": "the current tree (via the walker, leaves
// only)"). It performs the descend-to-leftmost-leaf / pop-and-advance
// dance internally so callers see a flat leaf stream.
func (w *Walker) leafIterNext() (Name, bool) {
	for {
		ent, ok := w.currentEntry()
		if !ok {
			if len(w.stack) <= 1 {
				return Name{}, false
			}
			w.pop()
			continue
		}
		if ent.Kind == KindLeaf {
			w.advance()
			return ent.Leaf, true
		}
		switch w.push() {
		case pushDescended:
			continue
		default:
			// Child not resolvable right now; skip it rather than
			// block the merge-walk (Update only ever walks the local
			// tree, whose children are always already decoded).
			w.advance()
		}
	}
}
