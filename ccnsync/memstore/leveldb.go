package memstore

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ccnxgo/ccnsync/ccnsync"
)

// accessionCounterKey is the single key LevelStore uses to persist its
// monotonic accession counter across restarts.
var accessionCounterKey = []byte("\x00accession")

// nameKeyPrefix namespaces content-object keys from the counter key.
var nameKeyPrefix = []byte("\x01n")

// LevelStore is a durable Storage backed by goleveldb, for deployments
// that need the stable point and stored objects to survive a restart
// (spec.md §6 NotifyAfter / §8 scenario E6).
type LevelStore struct {
	mu sync.Mutex
	db *leveldb.DB

	onAdd func(name ccnsync.Name, accession ccnsync.Accession)
}

// OpenLevelStore opens (or creates) a goleveldb database at dir.
func OpenLevelStore(dir string, onAdd func(name ccnsync.Name, accession ccnsync.Accession)) (*LevelStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db, onAdd: onAdd}, nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

func nameKey(name ccnsync.Name) []byte {
	return append(append([]byte{}, nameKeyPrefix...), []byte(name.String())...)
}

func (s *LevelStore) nextAccession() (uint64, error) {
	v, err := s.db.Get(accessionCounterKey, nil)
	var n uint64
	if err == nil {
		n = binary.BigEndian.Uint64(v)
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return 0, err
	}
	n++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	if err := s.db.Put(accessionCounterKey, buf, nil); err != nil {
		return 0, err
	}
	return n, nil
}

func encodeAccession(n uint64) ccnsync.Accession {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return ccnsync.Accession(b)
}

// storedValue is the RLP shape persisted per name: the object body
// plus the accession it was stored at, so Enumerate/NotifyAfter can
// replay in accession order without a separate index.
type storedValue struct {
	NameParts [][]byte
	Body      []byte
	Accession uint64
}

func encodeValue(obj ccnsync.ContentObject, acc uint64) ([]byte, error) {
	return rlp.EncodeToBytes(storedValue{NameParts: [][]byte(obj.Name), Body: obj.Body, Accession: acc})
}

func decodeValue(b []byte) (ccnsync.ContentObject, uint64, error) {
	var v storedValue
	if err := rlp.DecodeBytes(b, &v); err != nil {
		return ccnsync.ContentObject{}, 0, err
	}
	return ccnsync.ContentObject{Name: ccnsync.Name(v.NameParts), Body: v.Body}, v.Accession, nil
}

// Enumerate replays every stored name under prefix through onAdd.
// goleveldb's byte-lexicographic key ordering does not match Name's
// component-wise ordering, so results are collected and sorted by
// embedded accession rather than relying on iterator order.
func (s *LevelStore) Enumerate(ctx context.Context, prefix ccnsync.Name) (int, error) {
	type rec struct {
		name ccnsync.Name
		acc  uint64
	}
	var matches []rec

	iter := s.db.NewIterator(util.BytesPrefix(nameKeyPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		obj, acc, err := decodeValue(iter.Value())
		if err != nil {
			continue
		}
		if obj.Name.HasPrefix(prefix) {
			matches = append(matches, rec{name: obj.Name, acc: acc})
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].acc < matches[j].acc })
	for _, r := range matches {
		s.onAdd(r.name, encodeAccession(r.acc))
	}
	return len(matches), nil
}

func (s *LevelStore) Lookup(ctx context.Context, name ccnsync.Name) (ccnsync.ContentObject, bool, error) {
	v, err := s.db.Get(nameKey(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ccnsync.ContentObject{}, false, nil
	}
	if err != nil {
		return ccnsync.ContentObject{}, false, err
	}
	obj, _, err := decodeValue(v)
	if err != nil {
		return ccnsync.ContentObject{}, false, err
	}
	return obj, true, nil
}

func (s *LevelStore) put(obj ccnsync.ContentObject) (ccnsync.Accession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.nextAccession()
	if err != nil {
		return nil, err
	}
	v, err := encodeValue(obj, n)
	if err != nil {
		return nil, err
	}
	if err := s.db.Put(nameKey(obj.Name), v, nil); err != nil {
		return nil, err
	}
	return encodeAccession(n), nil
}

func (s *LevelStore) LocalStore(ctx context.Context, obj ccnsync.ContentObject) error {
	acc, err := s.put(obj)
	if err != nil {
		return err
	}
	s.onAdd(obj.Name, acc)
	return nil
}

func (s *LevelStore) UpcallStore(ctx context.Context, kind string, obj ccnsync.ContentObject) error {
	acc, err := s.put(obj)
	if err != nil {
		return err
	}
	s.onAdd(obj.Name, acc)
	return nil
}

func (s *LevelStore) NotifyAfter(ctx context.Context, highWater ccnsync.HighWaterMark) error {
	floor := uint64(0)
	if len(highWater) == 8 {
		floor = binary.BigEndian.Uint64(highWater)
	}
	iter := s.db.NewIterator(util.BytesPrefix(nameKeyPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		obj, acc, err := decodeValue(iter.Value())
		if err != nil {
			continue
		}
		if acc >= floor {
			s.onAdd(obj.Name, encodeAccession(acc))
		}
	}
	return iter.Error()
}

func (s *LevelStore) AccessionEncode(a ccnsync.Accession) []byte { return []byte(a) }
func (s *LevelStore) AccessionDecode(b []byte) ccnsync.Accession { return ccnsync.Accession(b) }
func (s *LevelStore) AccessionCompare(a, b ccnsync.Accession) int {
	return compareBigEndian(a, b)
}

func (s *LevelStore) HWMEncode(h ccnsync.HighWaterMark) []byte { return []byte(h) }
func (s *LevelStore) HWMDecode(b []byte) ccnsync.HighWaterMark { return ccnsync.HighWaterMark(b) }

func (s *LevelStore) HWMUpdate(h ccnsync.HighWaterMark, a ccnsync.Accession) ccnsync.HighWaterMark {
	if compareBigEndian(ccnsync.Accession(h), a) >= 0 {
		return h
	}
	out := make([]byte, len(a))
	copy(out, a)
	return ccnsync.HighWaterMark(out)
}

func (s *LevelStore) HWMMerge(a, b ccnsync.HighWaterMark) ccnsync.HighWaterMark {
	if compareBigEndian(ccnsync.Accession(a), ccnsync.Accession(b)) >= 0 {
		return a
	}
	return b
}

func (s *LevelStore) HWMCompare(a, b ccnsync.HighWaterMark) int {
	return compareBigEndian(ccnsync.Accession(a), ccnsync.Accession(b))
}
