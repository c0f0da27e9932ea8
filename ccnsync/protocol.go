package ccnsync

import (
	"sort"

	"github.com/ccnxgo/ccnsync/common/mclock"
)

// Verb identifies one of the four protocol actions, spec.md §4.H.
type Verb int

const (
	VerbRootAdvise Verb = iota
	VerbNodeFetch
	VerbContentFetch
	VerbRootStats
)

func (v Verb) String() string {
	switch v {
	case VerbRootAdvise:
		return "ra"
	case VerbNodeFetch:
		return "nf"
	case VerbContentFetch:
		return "cf"
	case VerbRootStats:
		return "rs"
	default:
		return "?"
	}
}

// actionState tags which container currently owns an Action, realizing
// spec.md §9's "owned by one container at a time" via an explicit
// discriminant rather than back-pointers.
type actionState int

const (
	actionLoose actionState = iota
	actionSent
	actionErrored
	actionInactive
)

// Action is one outstanding protocol request, keyed by a handle rather
// than tracked through back-pointers (spec.md §9 design note).
type Action struct {
	Verb      Verb
	SliceHash Hash
	Target    Hash // node_hash for NodeFetch, peer_hash for RootAdvise (may be zero)
	Name      Name // leaf name, for ContentFetch

	state   actionState
	issued  mclock.AbsTime
	retries int
	cancel  func() // unsubscribes the outstanding express_interest, if any
}

// markInactive marks a newer action superseding this one, per spec.md
// §5 cancellation model: the response, if any, is later ignored.
func (a *Action) markInactive() {
	a.state = actionInactive
	if a.cancel != nil {
		a.cancel()
	}
}

// exclusionList is the lexicographically-sorted, size-bounded set of
// hashes considered covered or equal to the sender's root hash,
// attached to a RootAdvise interest (spec.md §4.H). Overflow drops the
// oldest-inserted entries first (spec.md §9 Open Question 2: "the spec
// does not constrain which 'oldest' means beyond entries earlier in
// the list" — a FIFO-by-insertion-order queue is the simplest reading).
type exclusionList struct {
	limit   int // byte budget
	size    int
	order   []Hash // insertion order, oldest first
	present map[Hash]bool
}

func newExclusionList(byteLimit int) *exclusionList {
	return &exclusionList{limit: byteLimit, present: make(map[Hash]bool)}
}

func (x *exclusionList) add(h Hash) {
	if x.present[h] {
		return
	}
	x.order = append(x.order, h)
	x.present[h] = true
	x.size += HashSize
	for x.size > x.limit && len(x.order) > 0 {
		dropped := x.order[0]
		x.order = x.order[1:]
		delete(x.present, dropped)
		x.size -= HashSize
	}
}

func (x *exclusionList) remove(h Hash) {
	if !x.present[h] {
		return
	}
	delete(x.present, h)
	for i, o := range x.order {
		if o == h {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
	x.size -= HashSize
}

// sorted returns the exclusion set in lexicographic order, as required
// on the wire by spec.md §4.H.
func (x *exclusionList) sorted() []Hash {
	out := make([]Hash, 0, len(x.order))
	for h := range x.present {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// RootAdviseName builds the interest name `topo / ra / slice_hash /
// peer_hash?`, spec.md §6.
func RootAdviseName(topo Name, sliceHash Hash, peerHash *Hash) Name {
	n := append(append(Name{}, topo...), []byte("ra"), sliceHash.Bytes())
	if peerHash != nil {
		n = append(n, peerHash.Bytes())
	}
	return n
}

// NodeFetchName builds `topo / nf / slice_hash / node_hash`.
func NodeFetchName(topo Name, sliceHash, nodeHash Hash) Name {
	out := append(Name{}, topo...)
	return append(out, []byte("nf"), sliceHash.Bytes(), nodeHash.Bytes())
}

// RootStatsName builds `topo / rs / slice_hash`.
func RootStatsName(topo Name, sliceHash Hash) Name {
	out := append(Name{}, topo...)
	out = append(out, []byte("rs"), sliceHash.Bytes())
	return out
}

// StableObjectName builds `<localhost prefix> / SyncStable`.
func StableObjectName(localhost Name) Name {
	return append(append(Name{}, localhost...), []byte("SyncStable"))
}

// SliceAnnounceName builds `<localhost marker> / cs / <slice_hash>`.
func SliceAnnounceName(localhost Name, sliceHash Hash) Name {
	out := append(Name{}, localhost...)
	out = append(out, []byte("cs"), sliceHash.Bytes())
	return out
}
