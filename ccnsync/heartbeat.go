package ccnsync

import (
	"context"
	"strconv"
	"time"

	"github.com/ccnxgo/ccnsync/common/mclock"
)

// stableBodyText renders the stable-point object body, spec.md §6: a
// plain decimal high-water mark, the format the original stable object
// uses so any implementation can parse it without RLP.
func stableBodyText(maxHW uint64) string {
	return "stable " + strconv.FormatUint(maxHW, 10)
}

// heartbeat fires every HeartbeatInterval and drives all engine
// progress, spec.md §4.I. It runs on the event-loop goroutine.
func (e *Engine) heartbeat() {
	now := e.clock.Now()
	for _, h := range e.rootOrder {
		r := e.roots[h]
		if r == nil || r.Destroyed {
			continue
		}
		e.heartbeatRoot(r, now)
		e.stats.publish(r)
	}

	drained := e.cache.drainStoreQueue(e.cfg.CacheCleanBatch)
	for _, h := range drained {
		entry := e.cache.lookup(h)
		if entry == nil {
			continue
		}
		node := entry.LocalNode
		if node == nil {
			continue
		}
		enc, err := node.Encode()
		if err != nil {
			continue
		}
		if err := e.storage.LocalStore(context.Background(), ContentObject{Body: enc}); err != nil {
			e.log.Warn("durability store failed", "hash", h.String(), "err", err)
			continue
		}
		e.cache.markStored(h)
	}

	e.maybeCommitStablePoint(now)
}

func (e *Engine) heartbeatRoot(r *Root, now mclock.AbsTime) {
	if r.NeedsEnum && !r.SliceBusy {
		r.SliceBusy = true
		if _, err := e.storage.Enumerate(context.Background(), r.Config.NamingPrefix); err != nil {
			e.log.Warn("enumeration failed", "slice", r.SliceHash.String(), "err", err)
		}
		r.NeedsEnum = false
	}

	if r.update != nil {
		finished, _ := r.update.Run(now) // the heartbeat ticker itself is the reschedule mechanism
		if finished {
			e.finishUpdate(r, now)
		}
		return
	}

	if r.compare == nil {
		adaptiveNeed := e.cfg.UpdateNeedDelta
		backlog := r.namesToAdd.len()
		if backlog > 0 && backlog == r.lastBacklogLen && r.LastUpdateMicros > 0 {
			doubled := time.Duration(r.LastUpdateMicros*2) * time.Microsecond
			if doubled > adaptiveNeed {
				adaptiveNeed = doubled
			}
		}
		r.lastBacklogLen = backlog

		if backlog > 0 && now.Sub(r.LastUpdate) >= adaptiveNeed {
			r.update = newUpdateEngine(r, e.cache, &e.cfg, e.clock, e.log)
			r.updateStartedAt = now
			r.Stats.UpdatesStarted++
		}

		if now.Sub(r.LastAdvise) > e.cfg.RootAdviseLifetime {
			r.AdviseNeed = e.cfg.AdviseNeedReset
		}
		if !r.CurrentHash.IsZero() && (r.AdviseNeed > 0 || r.CurrentHash != r.lastAdvisedHash) {
			e.issueRootAdvise(r)
			r.lastAdvisedHash = r.CurrentHash
			if r.AdviseNeed > 0 {
				r.AdviseNeed--
			}
		}

		if r.update == nil {
			if peer, ok := r.firstUncoveredPeer(); ok {
				cmp := newCompareEngine(r, peer, e.cache, &e.cfg, e.clock, e.transport, r.Config.TopoPrefix, e.log)
				cmp.onContentFetched = func(ctx context.Context, obj ContentObject, item NameItem) {
					e.onFetchedContent(r, obj, item)
				}
				r.compare = cmp
				r.Stats.ComparesStarted++
			}
		}
		return
	}

	// Compare is running: step it and check stall/abort thresholds.
	if r.compare.assumedBad(now) {
		bad := r.compare.peerHash
		r.compare.abort("compare_assume_bad exceeded")
		r.remoteSeen.Remove(bad)
		r.excluded.remove(bad)
		r.compare = nil
		return
	}
	if r.compare.stalled(now) {
		e.log.Warn("compare stalled", "slice", r.SliceHash.String(), "peer", r.compare.peerHash.String())
	}
	if r.compare.Run(now) {
		r.excluded.add(r.compare.peerHash)
		r.compare = nil
	}
}

func (e *Engine) finishUpdate(r *Root, now mclock.AbsTime) {
	done := r.update
	r.update = nil
	r.LastUpdateMicros = now.Sub(r.updateStartedAt).Microseconds()
	if done.emitAdvise {
		e.issueRootAdvise(r)
		r.lastAdvisedHash = r.CurrentHash
	}
}

// firstUncoveredPeer returns a peer hash in remote_seen that isn't
// already known covered (spec.md §4.I step 3). remote_seen is an
// unordered set, so which uncovered peer is returned when there are
// several is not defined.
func (r *Root) firstUncoveredPeer() (Hash, bool) {
	var found Hash
	ok := false
	r.remoteSeen.Each(func(h Hash) bool {
		if !r.excluded.present[h] {
			found = h
			ok = true
			return true
		}
		return false
	})
	return found, ok
}

// onFetchedContent hands a ContentFetch result to the storage
// collaborator and feeds it back as a name-to-add, spec.md §2's data
// flow: "fetched content is handed to external storage and fed back as
// names-to-add".
func (e *Engine) onFetchedContent(r *Root, obj ContentObject, item NameItem) {
	if err := e.storage.UpcallStore(context.Background(), "sync-fetch", obj); err != nil {
		e.log.Warn("upcall store failed", "name", obj.Name.String(), "err", err)
		return
	}
	engineAddName([]*Root{r}, obj.Name, item)
}

// maybeCommitStablePoint writes the stable-point object once every root
// reports no pending names and the stable target has advanced,
// spec.md §4.I/§6/§8 scenario E6.
func (e *Engine) maybeCommitStablePoint(now mclock.AbsTime) {
	var maxHW uint64
	for _, h := range e.rootOrder {
		r := e.roots[h]
		if r == nil || r.Destroyed {
			continue
		}
		if r.namesToAdd.len() > 0 || r.update != nil {
			return
		}
		if r.HighWater > maxHW {
			maxHW = r.HighWater
		}
	}
	if maxHW <= e.lastStableCommitted {
		return
	}
	if now.Sub(e.lastStableCommitAt) < e.cfg.StableTimeTrigger {
		return
	}
	body := []byte(stableBodyText(maxHW))
	name := StableObjectName(e.localhost)
	if err := e.storage.LocalStore(context.Background(), ContentObject{Name: name, Body: body}); err != nil {
		e.log.Warn("stable point commit failed", "err", err)
		return
	}
	e.lastStableCommitted = maxHW
	e.lastStableCommitAt = now
}
