package ccnsync

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"
)

// EntryKind discriminates a composite node's entries, per spec.md §3.
type EntryKind uint8

const (
	KindLeaf EntryKind = iota
	KindNode
)

// NodeEntry is one entry of a composite tree node: either an inline
// leaf name, or a reference to a child node by hash. Node-kind entries
// carry a redundant copy of the child's min/max summary so a walker can
// order and range-compare against an as-yet-unfetched child — spec.md
// §3 requires entries be "ordered ... by the contained leaf name, or by
// the min-name of the referenced subtree", which only works without a
// fetch if that min-name travels with the parent.
type NodeEntry struct {
	Kind     EntryKind
	Leaf     Name // valid when Kind == KindLeaf
	Child    Hash // valid when Kind == KindNode
	ChildMin Name // valid when Kind == KindNode
	ChildMax Name // valid when Kind == KindNode
}

// key returns the name used to order this entry within its parent.
func (e NodeEntry) key() Name {
	if e.Kind == KindLeaf {
		return e.Leaf
	}
	return e.ChildMin
}

// wireNode is the RLP shape. rlp round-trips struct field order
// deterministically, which gives us spec.md §8 property 1 for free:
// decode(encode(N)) == N and encode(decode(B)) == B.
type wireNode struct {
	Entries   []NodeEntry
	MinName   Name
	MaxName   Name
	LeafCount uint64
	TreeDepth uint64
	ByteCount uint64
}

// Node is a decoded composite tree node, spec.md §3/§4.B.
type Node struct {
	Entries   []NodeEntry
	MinName   Name
	MaxName   Name
	LeafCount int
	TreeDepth int
	ByteCount int

	hash     Hash
	hashSet  bool
	encoding []byte
}

// Encode produces the canonical byte encoding, caching the result.
func (n *Node) Encode() ([]byte, error) {
	if n.encoding != nil {
		return n.encoding, nil
	}
	w := wireNode{
		Entries:   n.Entries,
		MinName:   n.MinName,
		MaxName:   n.MaxName,
		LeafCount: uint64(n.LeafCount),
		TreeDepth: uint64(n.TreeDepth),
		ByteCount: uint64(n.ByteCount),
	}
	b, err := rlp.EncodeToBytes(&w)
	if err != nil {
		return nil, newErr(ErrKindBadEncoding, "Node.Encode", err)
	}
	n.encoding = b
	return b, nil
}

// DecodeNode validates the length frame (delegated to rlp) and checks
// the ordering invariant. The long-hash is not computed here; Hash
// computes it on demand, and it is not checked against any expected
// value.
func DecodeNode(b []byte) (*Node, error) {
	var w wireNode
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return nil, newErr(ErrKindBadEncoding, "DecodeNode", err)
	}
	n := &Node{
		Entries:   w.Entries,
		MinName:   w.MinName,
		MaxName:   w.MaxName,
		LeafCount: int(w.LeafCount),
		TreeDepth: int(w.TreeDepth),
		ByteCount: int(w.ByteCount),
		encoding:  append([]byte(nil), b...),
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	return n, nil
}

var (
	errEntriesUnordered = errors.New("ccnsync: node entries not strictly ordered")
	errEmptyNode        = errors.New("ccnsync: node has no entries")
)

// validate enforces spec.md §3's node invariants: strictly ordered,
// no-duplicate entries, and adjacent-child range separation.
func (n *Node) validate() error {
	if len(n.Entries) == 0 {
		return newErr(ErrKindBadEncoding, "Node.validate", errEmptyNode)
	}
	for i := 1; i < len(n.Entries); i++ {
		prev, cur := n.Entries[i-1], n.Entries[i]
		prevMax := prev.key()
		if prev.Kind == KindNode {
			prevMax = prev.ChildMax
		}
		if !prevMax.Less(cur.key()) {
			return newErr(ErrKindBadEncoding, "Node.validate", errEntriesUnordered)
		}
	}
	return nil
}

// Hash computes (and caches) this node's content hash: the XOR-fold
// long-hash over every entry — a leaf entry folds in its name digest, a
// node entry folds in its child's hash directly (which is itself the
// fold over that child's descendants). Because XOR-fold is associative
// and commutative, the root of any tree over a given flat name set
// folds to the same value regardless of how names were grouped into
// nodes or in what order they were inserted — spec.md §8 property 2.
func (n *Node) Hash() Hash {
	if n.hashSet {
		return n.hash
	}
	var lh LongHash
	for _, e := range n.Entries {
		if e.Kind == KindLeaf {
			lh.Fold(e.Leaf.Digest())
		} else {
			lh.Fold(e.Child)
		}
	}
	n.hash = lh.Sum()
	n.hashSet = true
	return n.hash
}

// newLeafNode builds a singleton or small composite node directly out
// of a run of sorted leaf entries (used by Update's try_node_split).
func newLeafNode(entries []nameEntry) *Node {
	n := &Node{
		Entries:   make([]NodeEntry, len(entries)),
		LeafCount: len(entries),
		TreeDepth: 1,
	}
	total := 0
	for i, e := range entries {
		n.Entries[i] = NodeEntry{Kind: KindLeaf, Leaf: e.name}
		total += e.name.ByteLen()
	}
	n.MinName = entries[0].name
	n.MaxName = entries[len(entries)-1].name
	n.ByteCount = total
	return n
}

// nodeFromChildren builds a parent node out of an ordered run of child
// node references (Update's node_from_nodes, spec.md §4.F "busy").
func nodeFromChildren(children []*Node, hashes []Hash) *Node {
	n := &Node{
		Entries: make([]NodeEntry, len(children)),
	}
	total := 0
	leaves := 0
	depth := 0
	for i, c := range children {
		n.Entries[i] = NodeEntry{
			Kind:     KindNode,
			Child:    hashes[i],
			ChildMin: c.MinName,
			ChildMax: c.MaxName,
		}
		total += c.ByteCount
		leaves += c.LeafCount
		if c.TreeDepth > depth {
			depth = c.TreeDepth
		}
	}
	n.MinName = children[0].MinName
	n.MaxName = children[len(children)-1].MaxName
	n.ByteCount = total
	n.LeafCount = leaves
	n.TreeDepth = depth + 1
	return n
}
