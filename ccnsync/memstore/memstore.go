// Package memstore is a reference Storage implementation for ccnsync,
// grounded on ethdb/memorydb's map-backed key/value store: an
// in-memory name index plus a monotonic accession counter, suitable
// for tests and single-process demos.
package memstore

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/ccnxgo/ccnsync/ccnsync"
)

type record struct {
	obj       ccnsync.ContentObject
	accession uint64
}

// Store is an in-memory Storage. The zero value is not usable; use
// New.
type Store struct {
	mu   sync.Mutex
	objs map[string]record
	next uint64

	onAdd func(name ccnsync.Name, accession ccnsync.Accession)
}

// New constructs an empty Store. onAdd is invoked for every object
// that becomes locally visible, whether via LocalStore, UpcallStore,
// or Enumerate/NotifyAfter replay; the caller is expected to feed it
// into Engine.AddName.
func New(onAdd func(name ccnsync.Name, accession ccnsync.Accession)) *Store {
	return &Store{
		objs:  make(map[string]record),
		onAdd: onAdd,
	}
}

func keyOf(name ccnsync.Name) string {
	return name.String()
}

func (s *Store) encodeAccession(n uint64) ccnsync.Accession {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return ccnsync.Accession(b)
}

// Enumerate replays every currently-stored name matching prefix
// through onAdd, in accession order, as spec.md §3 expects for slice
// creation.
func (s *Store) Enumerate(ctx context.Context, prefix ccnsync.Name) (int, error) {
	s.mu.Lock()
	matches := make([]record, 0, len(s.objs))
	for _, r := range s.objs {
		if r.obj.Name.HasPrefix(prefix) {
			matches = append(matches, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].accession < matches[j].accession })
	for _, r := range matches {
		s.onAdd(r.obj.Name, s.encodeAccession(r.accession))
	}
	return len(matches), nil
}

// Lookup performs a synchronous local lookup.
func (s *Store) Lookup(ctx context.Context, name ccnsync.Name) (ccnsync.ContentObject, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.objs[keyOf(name)]
	if !ok {
		return ccnsync.ContentObject{}, false, nil
	}
	return r.obj, true, nil
}

func (s *Store) store(obj ccnsync.ContentObject) ccnsync.Accession {
	s.mu.Lock()
	s.next++
	n := s.next
	s.objs[keyOf(obj.Name)] = record{obj: obj, accession: n}
	s.mu.Unlock()
	return s.encodeAccession(n)
}

// LocalStore commits a locally-constructed object, e.g. a newly built
// tree node.
func (s *Store) LocalStore(ctx context.Context, obj ccnsync.ContentObject) error {
	acc := s.store(obj)
	s.onAdd(obj.Name, acc)
	return nil
}

// UpcallStore commits an object fetched from a peer.
func (s *Store) UpcallStore(ctx context.Context, kind string, obj ccnsync.ContentObject) error {
	acc := s.store(obj)
	s.onAdd(obj.Name, acc)
	return nil
}

// NotifyAfter replays every object whose accession is at or above
// highWater, used to resume from a persisted stable point after a
// restart.
func (s *Store) NotifyAfter(ctx context.Context, highWater ccnsync.HighWaterMark) error {
	floor := uint64(0)
	if len(highWater) == 8 {
		floor = binary.BigEndian.Uint64(highWater)
	}
	s.mu.Lock()
	matches := make([]record, 0)
	for _, r := range s.objs {
		if r.accession >= floor {
			matches = append(matches, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].accession < matches[j].accession })
	for _, r := range matches {
		s.onAdd(r.obj.Name, s.encodeAccession(r.accession))
	}
	return nil
}

// AccessionEncode/Decode/Compare implement the engine's opaque
// accession ordering over an 8-byte big-endian counter.
func (s *Store) AccessionEncode(a ccnsync.Accession) []byte { return []byte(a) }
func (s *Store) AccessionDecode(b []byte) ccnsync.Accession { return ccnsync.Accession(b) }
func (s *Store) AccessionCompare(a, b ccnsync.Accession) int {
	return compareBigEndian(a, b)
}

// HWMEncode/Decode/Update/Merge/Compare implement the high-water-mark
// ordering over the same 8-byte counter space as Accession.
func (s *Store) HWMEncode(h ccnsync.HighWaterMark) []byte { return []byte(h) }
func (s *Store) HWMDecode(b []byte) ccnsync.HighWaterMark { return ccnsync.HighWaterMark(b) }

func (s *Store) HWMUpdate(h ccnsync.HighWaterMark, a ccnsync.Accession) ccnsync.HighWaterMark {
	if compareBigEndian(ccnsync.Accession(h), a) >= 0 {
		return h
	}
	out := make([]byte, len(a))
	copy(out, a)
	return ccnsync.HighWaterMark(out)
}

func (s *Store) HWMMerge(a, b ccnsync.HighWaterMark) ccnsync.HighWaterMark {
	if compareBigEndian(ccnsync.Accession(a), ccnsync.Accession(b)) >= 0 {
		return a
	}
	return b
}

func (s *Store) HWMCompare(a, b ccnsync.HighWaterMark) int {
	return compareBigEndian(ccnsync.Accession(a), ccnsync.Accession(b))
}

func compareBigEndian(a, b []byte) int {
	var av, bv uint64
	if len(a) == 8 {
		av = binary.BigEndian.Uint64(a)
	}
	if len(b) == 8 {
		bv = binary.BigEndian.Uint64(b)
	}
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}
