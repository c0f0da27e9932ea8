package ccnsync

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// RootStats is the read-only snapshot of a slice's counters served by
// RootStats interests and returned by Engine.Stats, spec.md §4.H/§6.
type RootStats struct {
	SliceHash   Hash
	CurrentHash Hash
	StablePoint uint64
	HighWater   uint64
	Counters    RootStatistics
}

// engineStats holds the Prometheus collectors registered once per
// Engine. Per-slice labels keep every slice's counters addressable
// without a collector per Root. last tracks the cumulative totals
// already exported per slice, since CounterVec only supports Add and
// RootStatistics holds running totals rather than deltas.
type engineStats struct {
	registry *prometheus.Registry
	last     map[Hash]RootStatistics

	namesAdded        *prometheus.CounterVec
	namesInserted     *prometheus.CounterVec
	namesFetched      *prometheus.CounterVec
	nodesFetched      *prometheus.CounterVec
	fetchTimeouts     *prometheus.CounterVec
	fetchErrors       *prometheus.CounterVec
	comparesStarted   *prometheus.CounterVec
	comparesCompleted *prometheus.CounterVec
	comparesAborted   *prometheus.CounterVec
	updatesStarted    *prometheus.CounterVec
	updatesCompleted  *prometheus.CounterVec
}

func newEngineStats() *engineStats {
	reg := prometheus.NewRegistry()
	labels := []string{"slice"}
	mk := func(name, help string) *prometheus.CounterVec {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccnsync",
			Subsystem: "root",
			Name:      name,
			Help:      help,
		}, labels)
		reg.MustRegister(cv)
		return cv
	}
	return &engineStats{
		registry:          reg,
		last:              make(map[Hash]RootStatistics),
		namesAdded:        mk("names_added_total", "names appended to names_to_add"),
		namesInserted:     mk("names_inserted_total", "names inserted into the tree after duplicate suppression"),
		namesFetched:      mk("names_fetched_total", "content fetches completed"),
		nodesFetched:      mk("nodes_fetched_total", "node fetches completed"),
		fetchTimeouts:     mk("fetch_timeouts_total", "fetches that timed out"),
		fetchErrors:       mk("fetch_errors_total", "fetches that errored"),
		comparesStarted:   mk("compares_started_total", "compare engines started"),
		comparesCompleted: mk("compares_completed_total", "compare engines that reached done"),
		comparesAborted:   mk("compares_aborted_total", "compare engines aborted by failure policy"),
		updatesStarted:    mk("updates_started_total", "update engines started"),
		updatesCompleted:  mk("updates_completed_total", "update engines that reached done"),
	}
}

// publish adds the delta between r's current cumulative counters and
// the last published snapshot to the exported CounterVecs.
func (s *engineStats) publish(r *Root) {
	label := prometheus.Labels{"slice": r.SliceHash.String()}
	c := r.Stats
	p := s.last[r.SliceHash]
	s.namesAdded.With(label).Add(float64(c.NamesAdded - p.NamesAdded))
	s.namesInserted.With(label).Add(float64(c.NamesInserted - p.NamesInserted))
	s.namesFetched.With(label).Add(float64(c.NamesFetched - p.NamesFetched))
	s.nodesFetched.With(label).Add(float64(c.NodesFetched - p.NodesFetched))
	s.fetchTimeouts.With(label).Add(float64(c.FetchTimeouts - p.FetchTimeouts))
	s.fetchErrors.With(label).Add(float64(c.FetchErrors - p.FetchErrors))
	s.comparesStarted.With(label).Add(float64(c.ComparesStarted - p.ComparesStarted))
	s.comparesCompleted.With(label).Add(float64(c.ComparesCompleted - p.ComparesCompleted))
	s.comparesAborted.With(label).Add(float64(c.ComparesAborted - p.ComparesAborted))
	s.updatesStarted.With(label).Add(float64(c.UpdatesStarted - p.UpdatesStarted))
	s.updatesCompleted.With(label).Add(float64(c.UpdatesCompleted - p.UpdatesCompleted))
	s.last[r.SliceHash] = c
}

// snapshotStats builds the RootStats value served to callers and wire
// responders.
func snapshotStats(r *Root) RootStats {
	return RootStats{
		SliceHash:   r.SliceHash,
		CurrentHash: r.CurrentHash,
		StablePoint: r.StablePoint,
		HighWater:   r.HighWater,
		Counters:    r.Stats,
	}
}

// renderRootStatsText renders a RootStats snapshot as the plain
// key/value text body a RootStats interest response carries, spec.md
// §4.H/§6 (mirroring the original implementation's human-readable
// stats dump rather than inventing a binary encoding for it).
func renderRootStatsText(s RootStats) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "slice_hash %s\n", s.SliceHash.String())
	fmt.Fprintf(&b, "current_hash %s\n", s.CurrentHash.String())
	fmt.Fprintf(&b, "stable_point %d\n", s.StablePoint)
	fmt.Fprintf(&b, "high_water %d\n", s.HighWater)
	fmt.Fprintf(&b, "names_added %d\n", s.Counters.NamesAdded)
	fmt.Fprintf(&b, "names_inserted %d\n", s.Counters.NamesInserted)
	fmt.Fprintf(&b, "names_fetched %d\n", s.Counters.NamesFetched)
	fmt.Fprintf(&b, "nodes_fetched %d\n", s.Counters.NodesFetched)
	fmt.Fprintf(&b, "fetch_timeouts %d\n", s.Counters.FetchTimeouts)
	fmt.Fprintf(&b, "fetch_errors %d\n", s.Counters.FetchErrors)
	fmt.Fprintf(&b, "compares_started %d\n", s.Counters.ComparesStarted)
	fmt.Fprintf(&b, "compares_completed %d\n", s.Counters.ComparesCompleted)
	fmt.Fprintf(&b, "compares_aborted %d\n", s.Counters.ComparesAborted)
	fmt.Fprintf(&b, "updates_started %d\n", s.Counters.UpdatesStarted)
	fmt.Fprintf(&b, "updates_completed %d\n", s.Counters.UpdatesCompleted)
	return []byte(b.String())
}
