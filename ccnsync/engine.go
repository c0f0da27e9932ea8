package ccnsync

import (
	"context"
	"sync"
	"time"

	"github.com/ccnxgo/ccnsync/common/mclock"
	"github.com/ccnxgo/ccnsync/log"
)

// Engine is the Sync engine: it owns the hash cache, every slice's
// Root, and the heartbeat that drives Update/Compare/RootAdvise.
//
// Per spec.md §5, all engine-mutable state is touched from exactly one
// goroutine — the event-loop goroutine started by Start. Every public
// method posts a closure onto evq and (if it needs a result) blocks on
// a reply channel; transport/storage callbacks do the same. This gives
// the atomicity spec.md §5 describes without a literal single
// OS-thread runtime (DESIGN.md Open Question 4).
type Engine struct {
	cfg       Config
	storage   Storage
	transport Transport
	clock     mclock.Clock
	log       log.Logger

	localhost Name // this repository's localhost marker, for SyncStable / slice announcements

	cache *Cache

	mu        sync.Mutex // protects roots map membership only; state mutation happens on evq
	roots     map[Hash]*Root
	rootOrder []Hash

	evq    chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup

	stats *engineStats

	lastStableCommitted uint64
	lastStableCommitAt  mclock.AbsTime
}

// NewEngine constructs an Engine. Start must be called before any
// slice work happens.
func NewEngine(cfg Config, storage Storage, transport Transport, clock mclock.Clock, logger log.Logger, localhost Name) *Engine {
	if logger == nil {
		logger = log.Root()
	}
	e := &Engine{
		cfg:       cfg,
		storage:   storage,
		transport: transport,
		clock:     clock,
		log:       logger,
		localhost: localhost,
		cache:     newCache(clock),
		roots:     make(map[Hash]*Root),
		evq:       make(chan func(), 256),
		stopCh:    make(chan struct{}),
	}
	e.stats = newEngineStats()
	return e
}

// Start launches the event-loop and heartbeat goroutines. Slice
// announcement content objects are a storage-observed event, not a
// protocol verb with a request/response shape (spec.md §4.H only
// defines RootAdvise/NodeFetch/ContentFetch/RootStats) — whatever
// mechanism the storage collaborator uses to notice a new
// `<localhost>/cs/<slice_hash>` object is expected to call CreateSlice
// directly; cmd/ccnsyncd wires that.
func (e *Engine) Start(ctx context.Context) error {
	e.wg.Add(2)
	go e.runEventLoop(ctx)
	go e.runHeartbeatTicker(ctx)
	return nil
}

// Stop shuts the engine down; outstanding actions are left to expire
// naturally (no forced cancellation of in-flight transport work).
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) runEventLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.evq:
			fn()
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) runHeartbeatTicker(ctx context.Context) {
	defer e.wg.Done()
	t := time.NewTicker(e.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			e.post(func() { e.heartbeat() })
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// post schedules fn to run on the event-loop goroutine.
func (e *Engine) post(fn func()) {
	select {
	case e.evq <- fn:
	case <-e.stopCh:
	}
}

// call schedules fn on the event loop and blocks for its result,
// giving synchronous public methods (CreateSlice, Stats, ...) engine-
// thread-safe access without duplicating locking inside every method.
func (e *Engine) call(fn func() error) error {
	done := make(chan error, 1)
	e.post(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-e.stopCh:
		return ErrEngineStopped
	}
}

// CreateSlice is the slice lifecycle's creation path, spec.md §3: on
// receipt of a slice announcement, the engine enumerates already-stored
// names matching the filter into names_to_add.
func (e *Engine) CreateSlice(cfg SliceConfig) (*Root, error) {
	var r *Root
	err := e.call(func() error {
		h := cfg.SliceHash()
		if _, ok := e.roots[h]; ok {
			return ErrSliceExists
		}
		r = newRoot(cfg)
		e.roots[h] = r
		e.rootOrder = append(e.rootOrder, h)
		r.cancelRA = e.transport.SetInterestFilter(ropPrefix(cfg.TopoPrefix, VerbRootAdvise, h), func(name Name, exclude []Hash) {
			e.post(func() { e.onRootAdviseInterest(r, name, exclude) })
		})
		r.cancelNF = e.transport.SetInterestFilter(ropPrefix(cfg.TopoPrefix, VerbNodeFetch, h), func(name Name, exclude []Hash) {
			e.post(func() { e.onNodeFetchInterest(r, name) })
		})
		r.cancelRS = e.transport.SetInterestFilter(ropPrefix(cfg.TopoPrefix, VerbRootStats, h), func(name Name, exclude []Hash) {
			e.post(func() { e.onRootStatsInterest(r, name) })
		})
		n, err := e.storage.Enumerate(context.Background(), cfg.NamingPrefix)
		if err != nil {
			e.log.Warn("slice enumeration failed", "slice", h.String(), "err", err)
		} else {
			e.log.Debug("slice enumeration started", "slice", h.String(), "expect", n)
		}
		r.SliceBusy = true
		return nil
	})
	return r, err
}

// DestroySlice handles the tombstone path, spec.md §3/§8: cancels a
// pending Update, removes the root's current-hash node from the
// durability queue, and aborts outstanding Compares cleanly. Other
// queued nodes of the root's tree stay queued.
func (e *Engine) DestroySlice(sliceHash Hash) error {
	return e.call(func() error {
		r, ok := e.roots[sliceHash]
		if !ok {
			return ErrSliceNotFound
		}
		r.Destroyed = true
		for _, cancel := range []func(){r.cancelRA, r.cancelNF, r.cancelRS} {
			if cancel != nil {
				cancel()
			}
		}
		if r.compare != nil {
			r.compare.abort("slice destroyed")
			r.compare = nil
		}
		r.update = nil
		e.cache.purgeRootQueue(func(h Hash) bool {
			// A node belongs to this root's pending writes if it was
			// the root's own current hash at destruction; the cache
			// is shared, so only the root hash itself is reliably
			// attributable without walking every queued node's
			// provenance, which the cache doesn't track per-root.
			return h == r.CurrentHash
		})
		delete(e.roots, sliceHash)
		for i, h := range e.rootOrder {
			if h == sliceHash {
				e.rootOrder = append(e.rootOrder[:i], e.rootOrder[i+1:]...)
				break
			}
		}
		return nil
	})
}

// AddName is the cross-slice fan-out entry point, spec.md §4.E,
// normally invoked by the storage collaborator's enumeration/notify
// callbacks rather than directly by users. It posts the fan-out onto
// the event loop and returns without waiting, so storage methods the
// engine itself runs on the event loop (Enumerate, LocalStore) can call
// it.
func (e *Engine) AddName(name Name, item NameItem) error {
	e.post(func() {
		roots := make([]*Root, 0, len(e.roots))
		for _, h := range e.rootOrder {
			roots = append(roots, e.roots[h])
		}
		engineAddName(roots, name, item)
	})
	return nil
}

// Stats returns a snapshot of a slice's RootStats, spec.md §6.
func (e *Engine) Stats(sliceHash Hash) (RootStats, error) {
	var out RootStats
	err := e.call(func() error {
		r, ok := e.roots[sliceHash]
		if !ok {
			return ErrSliceNotFound
		}
		out = snapshotStats(r)
		return nil
	})
	return out, err
}
