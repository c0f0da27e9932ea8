package ccnsync

import "container/heap"

// NameItem is the opaque payload the storage collaborator attaches to a
// name (e.g. an accession number); the engine never interprets it.
type NameItem interface{}

// nameEntry pairs a name with its accumulator payload, per spec.md §4.D.
type nameEntry struct {
	name Name
	item NameItem
}

// nameAccumulator is an ordered sequence of (name, data) pairs built
// with append — the leaf-accumulator output of Update's "inserted"
// phase, and the names_to_add/names_to_fetch buffers on Root.
type nameAccumulator struct {
	entries []nameEntry
	bytes   int // cumulative ByteLen of entries, tracked incrementally
}

func newNameAccumulator() *nameAccumulator {
	return &nameAccumulator{}
}

func (a *nameAccumulator) append(n Name, item NameItem) {
	a.entries = append(a.entries, nameEntry{name: n, item: item})
	a.bytes += n.ByteLen()
}

func (a *nameAccumulator) len() int { return len(a.entries) }

func (a *nameAccumulator) at(i int) nameEntry { return a.entries[i] }

// last returns the final entry, used for adjacent-duplicate suppression.
func (a *nameAccumulator) last() (nameEntry, bool) {
	if len(a.entries) == 0 {
		return nameEntry{}, false
	}
	return a.entries[len(a.entries)-1], true
}

func (a *nameAccumulator) reset() {
	a.entries = a.entries[:0]
	a.bytes = 0
}

// splitOff removes and returns the first n entries, shifting the rest
// down; used when try_node_split carves a prefix off into a new leaf
// node and leaves the remainder in the accumulator.
func (a *nameAccumulator) splitOff(n int) []nameEntry {
	if n > len(a.entries) {
		n = len(a.entries)
	}
	out := make([]nameEntry, n)
	copy(out, a.entries[:n])
	rest := make([]nameEntry, len(a.entries)-n)
	copy(rest, a.entries[n:])
	bytes := 0
	for _, e := range rest {
		bytes += e.name.ByteLen()
	}
	a.entries = rest
	a.bytes = bytes
	return out
}

// indexSorter is an external-key sort, per spec.md §4.D: items are
// inserted by index with a caller-supplied compare function and
// extracted by best() (smallest) with removal, so the large name
// buffers never move — only a small heap of indices does.
type indexSorter struct {
	less  func(i, j int) bool
	items []int
	heap  *idxHeap
}

type idxHeap struct {
	idx  []int
	less func(i, j int) bool
}

func (h *idxHeap) Len() int            { return len(h.idx) }
func (h *idxHeap) Less(i, j int) bool  { return h.less(h.idx[i], h.idx[j]) }
func (h *idxHeap) Swap(i, j int)       { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *idxHeap) Push(x interface{})  { h.idx = append(h.idx, x.(int)) }
func (h *idxHeap) Pop() interface{} {
	old := h.idx
	n := len(old)
	v := old[n-1]
	h.idx = old[:n-1]
	return v
}

// newIndexSorter builds a sorter over count indices [0, count), ordered
// by less(i, j).
func newIndexSorter(count int, less func(i, j int) bool) *indexSorter {
	h := &idxHeap{idx: make([]int, count), less: less}
	for i := 0; i < count; i++ {
		h.idx[i] = i
	}
	heap.Init(h)
	return &indexSorter{less: less, heap: h}
}

// best pops and returns the smallest remaining index, and whether one
// was available.
func (s *indexSorter) best() (int, bool) {
	if s.heap.Len() == 0 {
		return 0, false
	}
	v := heap.Pop(s.heap).(int)
	return v, true
}

func (s *indexSorter) len() int { return s.heap.Len() }
