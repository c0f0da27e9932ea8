package ccnsync

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ccnxgo/ccnsync/common/mclock"
)

// State is a bitmask of hash-cache entry flags, spec.md §4.A.
type State uint16

const (
	StateLocal State = 1 << iota
	StateRemote
	StateCovered
	StateFetching
	StateStoring
	StateStored
	StateMarked
)

func (s State) has(bit State) bool { return s&bit != 0 }

// Entry is one hash-cache record: a content-addressed node (local,
// remote, or both) plus its lifecycle flags.
type Entry struct {
	Hash Hash

	Encoding   []byte
	LocalNode  *Node
	RemoteNode *Node

	State State

	LastUsed        mclock.AbsTime
	LastRemoteFetch mclock.AbsTime
	StablePoint     uint64

	Busy int // refcount of active walkers/fetches pinning this entry
}

// setState ORs in extra flags, applying the "local implies covered"
// invariant from spec.md §3.
func (e *Entry) setState(extra State) {
	e.State |= extra
	if e.State.has(StateLocal) {
		e.State |= StateCovered
	}
}

// Cache is the content-addressed store of local+remote tree nodes,
// spec.md §4.A. It is engine-internal and single-goroutine; see
// DESIGN.md for the concurrency model.
type Cache struct {
	mu      sync.Mutex
	entries map[Hash]*Entry

	// decodeLRU bounds how many *extra* decoded node objects we keep
	// warm beyond the authoritative entries map, so a long-running
	// engine doesn't accumulate unbounded Go heap objects for nodes
	// that are reachable-but-cold.
	decodeLRU *lru.Cache[Hash, *Node]

	// stage holds encodings waiting on the storage collaborator to
	// durably commit them, keyed by hash, so a purge racing a pending
	// store can't drop bytes that are only staged, not yet `stored`.
	stage *fastcache.Cache

	// storeQueue is the FIFO durability queue: entries with `storing`
	// set, in the order they were enqueued.
	storeQueue []Hash

	clock mclock.Clock
}

func newCache(clock mclock.Clock) *Cache {
	decodeLRU, _ := lru.New[Hash, *Node](4096)
	return &Cache{
		entries:   make(map[Hash]*Entry),
		decodeLRU: decodeLRU,
		stage:     fastcache.New(8 * 1024 * 1024),
		clock:     clock,
	}
}

// enter is idempotent: if the entry exists, it ORs in initial into its
// state; otherwise it creates a fresh entry.
func (c *Cache) enter(h Hash, initial State) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h]
	if !ok {
		e = &Entry{Hash: h, LastUsed: c.clock.Now()}
		c.entries[h] = e
	}
	e.setState(initial)
	return e
}

// lookup returns the entry for h, or nil.
func (c *Cache) lookup(h Hash) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[h]
}

// fetch decodes e's node on demand if it has an encoding (or a staged
// copy) but no decoded node yet, and records the access time.
func (c *Cache) fetch(e *Entry) (*Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.LastUsed = c.clock.Now()

	if e.State.has(StateLocal) && e.LocalNode != nil {
		return e.LocalNode, nil
	}
	if e.State.has(StateRemote) && e.RemoteNode != nil {
		return e.RemoteNode, nil
	}
	if n, ok := c.decodeLRU.Get(e.Hash); ok {
		return n, nil
	}
	enc := e.Encoding
	if enc == nil {
		if staged := c.stage.Get(nil, e.Hash[:]); staged != nil {
			enc = staged
		}
	}
	if enc == nil {
		return nil, nil // not yet fetched: caller should issue NodeFetch
	}
	n, err := DecodeNode(enc)
	if err != nil {
		return nil, err
	}
	c.decodeLRU.Add(e.Hash, n)
	if e.State.has(StateLocal) {
		e.LocalNode = n
	}
	if e.State.has(StateRemote) {
		e.RemoteNode = n
	}
	return n, nil
}

// completeFromWire installs a decoded node fetched from a peer
// (NodeFetch response) and marks the entry remote+covered-pending.
func (c *Cache) completeFromWire(h Hash, enc []byte, n *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h]
	if !ok {
		e = &Entry{Hash: h}
		c.entries[h] = e
	}
	e.Encoding = enc
	e.RemoteNode = n
	e.State |= StateRemote
	e.State &^= StateFetching
	e.LastRemoteFetch = c.clock.Now()
	c.decodeLRU.Add(h, n)
}

// installLocal records a locally-built node and enqueues it for
// durable storage.
func (c *Cache) installLocal(h Hash, enc []byte, n *Node) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h]
	if !ok {
		e = &Entry{Hash: h}
		c.entries[h] = e
	}
	e.Encoding = enc
	e.LocalNode = n
	e.setState(StateLocal)
	if !e.State.has(StateStored) {
		e.State |= StateStoring
		c.stage.Set(h[:], enc)
		c.storeQueue = append(c.storeQueue, h)
	}
	c.decodeLRU.Add(h, n)
	return e
}

// markReachable walks the tree rooted at rootHash (DFS over decoded
// children only — undecoded subtrees are simply not marked, which is
// safe: purge only removes decode state, never the root-reachability
// guarantee for decoded nodes) setting `marked` on every entry it
// visits.
func (c *Cache) markReachable(rootHash Hash) {
	if rootHash.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markReachableLocked(rootHash, make(map[Hash]bool))
}

func (c *Cache) markReachableLocked(h Hash, seen map[Hash]bool) {
	if seen[h] {
		return
	}
	seen[h] = true
	e, ok := c.entries[h]
	if !ok {
		return
	}
	e.State |= StateMarked
	n := e.LocalNode
	if n == nil {
		n = e.RemoteNode
	}
	if n == nil {
		return
	}
	for _, ent := range n.Entries {
		if ent.Kind == KindNode {
			c.markReachableLocked(ent.Child, seen)
		}
	}
}

// clearMarks resets `marked` on every entry, in preparation for the
// next markReachable sweep.
func (c *Cache) clearMarks() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.State &^= StateMarked
	}
}

// purge removes decode state (ncL/ncR references, per spec.md §4.A) on
// entries that are stored, unmarked, and idle past threshold. The
// cache-entry record itself (hash, flags) is deleted only when it has
// neither StateLocal nor StateRemote set; otherwise it is kept, even
// when no root reaches it.
func (c *Cache) purge(now mclock.AbsTime, idleThreshold func(e *Entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	purged := 0
	for h, e := range c.entries {
		if e.State.has(StateMarked) {
			continue
		}
		if e.Busy > 0 {
			continue
		}
		if !idleThreshold(e) {
			continue
		}
		if e.State.has(StateStored) {
			e.LocalNode = nil
			e.RemoteNode = nil
			c.decodeLRU.Remove(h)
			if !e.State.has(StateLocal) && !e.State.has(StateRemote) {
				delete(c.entries, h)
			}
			purged++
		}
	}
	return purged
}

// drainStoreQueue pops up to n hashes off the durability FIFO for the
// heartbeat to hand to the storage collaborator.
func (c *Cache) drainStoreQueue(n int) []Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.storeQueue) {
		n = len(c.storeQueue)
	}
	out := append([]Hash(nil), c.storeQueue[:n]...)
	c.storeQueue = c.storeQueue[n:]
	return out
}

// markStored flips `storing` to `stored` once the storage collaborator
// acknowledges a durable write, and drops the staged byte copy.
func (c *Cache) markStored(h Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[h]; ok {
		e.State &^= StateStoring
		e.State |= StateStored
	}
	c.stage.Del(h[:])
}

// purgeRootQueue drops any queued-but-unstored entries belonging to a
// destroyed root's pending work (slice tombstone handling,
// spec.md §8 boundary behavior).
func (c *Cache) purgeRootQueue(belongsTo func(Hash) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.storeQueue[:0]
	for _, h := range c.storeQueue {
		if belongsTo(h) {
			continue
		}
		kept = append(kept, h)
	}
	c.storeQueue = kept
}
