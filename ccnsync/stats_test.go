package ccnsync

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEngineStatsPublishTracksDeltas(t *testing.T) {
	s := newEngineStats()
	r := newRoot(SliceConfig{})

	r.Stats.NamesAdded = 5
	r.Stats.UpdatesCompleted = 1
	s.publish(r)

	if got := testutil.ToFloat64(s.namesAdded.WithLabelValues(r.SliceHash.String())); got != 5 {
		t.Fatalf("namesAdded after first publish = %v, want 5", got)
	}

	// A second publish with unchanged cumulative totals must not double-count.
	s.publish(r)
	if got := testutil.ToFloat64(s.namesAdded.WithLabelValues(r.SliceHash.String())); got != 5 {
		t.Fatalf("namesAdded after repeat publish = %v, want still 5 (no double count)", got)
	}

	r.Stats.NamesAdded = 8
	s.publish(r)
	if got := testutil.ToFloat64(s.namesAdded.WithLabelValues(r.SliceHash.String())); got != 8 {
		t.Fatalf("namesAdded after incremental publish = %v, want 8", got)
	}
}

func TestEngineStatsPublishPerSliceIsolation(t *testing.T) {
	s := newEngineStats()
	r1 := newRoot(SliceConfig{TopoPrefix: Name{[]byte("a")}})
	r2 := newRoot(SliceConfig{TopoPrefix: Name{[]byte("b")}})

	r1.Stats.NamesFetched = 3
	r2.Stats.NamesFetched = 7
	s.publish(r1)
	s.publish(r2)

	if got := testutil.ToFloat64(s.namesFetched.WithLabelValues(r1.SliceHash.String())); got != 3 {
		t.Fatalf("r1 namesFetched = %v, want 3", got)
	}
	if got := testutil.ToFloat64(s.namesFetched.WithLabelValues(r2.SliceHash.String())); got != 7 {
		t.Fatalf("r2 namesFetched = %v, want 7", got)
	}
}

func TestRenderRootStatsText(t *testing.T) {
	r := newRoot(SliceConfig{})
	r.Stats.NamesAdded = 42
	r.CurrentHash = Digest([]byte("root"))

	body := string(renderRootStatsText(snapshotStats(r)))
	if !strings.Contains(body, "names_added 42\n") {
		t.Fatalf("rendered stats missing names_added line: %q", body)
	}
	if !strings.Contains(body, "current_hash "+r.CurrentHash.String()) {
		t.Fatalf("rendered stats missing current_hash line: %q", body)
	}
}
