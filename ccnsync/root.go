package ccnsync

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ccnxgo/ccnsync/common/mclock"
)

// FilterClause is one accept-clause of a slice's naming filter. An
// empty clause list accepts every name under NamingPrefix.
type FilterClause struct {
	Component []byte // component value to match at Index
	Index     int    // position within the name, relative to NamingPrefix
}

// SliceConfig is the per-slice configuration carried in a slice
// announcement content object, spec.md §3/§6.
type SliceConfig struct {
	Version      uint32
	TopoPrefix   Name
	NamingPrefix Name
	Filter       []FilterClause
}

// SliceHash digests the slice configuration, used as the protocol's
// slice_hash component.
func (c SliceConfig) SliceHash() Hash {
	var lh LongHash
	lh.FoldBytes(c.TopoPrefix.Digest().Bytes())
	lh.FoldBytes(c.NamingPrefix.Digest().Bytes())
	for _, cl := range c.Filter {
		lh.FoldBytes(cl.Component)
	}
	return lh.Sum()
}

// Bytes is a small convenience so Hash values can be folded as byte
// slices without repeated [:] conversions at call sites.
func (h Hash) Bytes() []byte { return h[:] }

// Matches reports whether name (which must already be under
// NamingPrefix) satisfies every filter clause.
func (c SliceConfig) Matches(name Name) bool {
	if !name.HasPrefix(c.NamingPrefix) {
		return false
	}
	for _, cl := range c.Filter {
		idx := len(c.NamingPrefix) + cl.Index
		if idx < 0 || idx >= len(name) {
			return false
		}
		if string(name[idx]) != string(cl.Component) {
			return false
		}
	}
	return true
}

// RootStatistics accumulates the wider counter set recovered from the
// original C implementation (SPEC_FULL.md §4.3).
type RootStatistics struct {
	NamesAdded         uint64
	NamesInserted      uint64 // after duplicate suppression
	NamesFetched       uint64
	NodesFetched       uint64
	FetchTimeouts      uint64
	FetchErrors        uint64
	ComparesStarted    uint64
	ComparesCompleted  uint64
	ComparesAborted    uint64
	UpdatesStarted     uint64
	UpdatesCompleted   uint64
}

// Root holds the mutable per-slice engine state, spec.md §4.E. All
// mutators are engine-internal; the only cross-slice operation is
// AddName (called by the engine's dispatch, not directly by users).
type Root struct {
	Config    SliceConfig
	SliceHash Hash

	CurrentHash Hash

	namesToAdd    *nameAccumulator
	namesToFetch  *nameAccumulator

	remoteSeen mapset.Set[Hash] // peer root hashes seen in RootAdvise responses; covered ones stay and are listed in excluded
	excluded   *exclusionList   // hashes to exclude from RootAdvise (covered or == current)

	update  *updateEngine
	compare *compareEngine

	StablePoint uint64
	HighWater   uint64

	LastUpdate       mclock.AbsTime
	LastUpdateMicros int64 // duration of the last completed Update, for adaptive backoff
	LastAdvise       mclock.AbsTime
	AdviseNeed       int
	LastHashChange   mclock.AbsTime
	lastAdvisedHash  Hash // hash advertised at the last RootAdvise, to detect a changed current hash

	updateStartedAt mclock.AbsTime // set when update begins, read back in finishUpdate
	lastBacklogLen  int            // namesToAdd length observed on the previous heartbeat tick, for adaptive backoff

	SliceBusy bool // gates enumeration: one enumeration in flight at a time
	NeedsEnum bool
	Destroyed bool

	Stats RootStatistics

	cancelRA, cancelNF, cancelRS func()
}

func newRoot(cfg SliceConfig) *Root {
	return &Root{
		Config:       cfg,
		SliceHash:    cfg.SliceHash(),
		namesToAdd:   newNameAccumulator(),
		namesToFetch: newNameAccumulator(),
		remoteSeen:   mapset.NewSet[Hash](),
		excluded:     newExclusionList(DefaultConfig().ExclusionLimit),
		NeedsEnum:    true,
	}
}

// addName appends name to r.namesToAdd, suppressing an adjacent
// duplicate against the previous tail (spec.md §4.E).
func (r *Root) addName(name Name, item NameItem) {
	r.Stats.NamesAdded++
	if last, ok := r.namesToAdd.last(); ok && last.name.Equal(name) {
		return
	}
	r.namesToAdd.append(name, item)
}

// engineAddName is the cross-slice fan-out operation from spec.md
// §4.E: append name to every root whose filter matches it.
func engineAddName(roots []*Root, name Name, item NameItem) {
	for _, r := range roots {
		if r.Destroyed {
			continue
		}
		if r.Config.Matches(name) {
			r.addName(name, item)
		}
	}
}
