package ccnsync

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

func leafEntries(names ...string) []nameEntry {
	out := make([]nameEntry, len(names))
	for i, n := range names {
		out[i] = nameEntry{name: Name{[]byte(n)}}
	}
	return out
}

func TestNodeEncodeDecodeRoundTrip(t *testing.T) {
	n := newLeafNode(leafEntries("alpha", "beta", "gamma"))
	enc, err := n.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodeNode(enc)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if decoded.Hash() != n.Hash() {
		t.Fatalf("round-tripped node hash mismatch: %x != %x", decoded.Hash(), n.Hash())
	}

	reenc, err := decoded.Encode()
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if string(reenc) != string(enc) {
		t.Fatalf("encode(decode(b)) != b")
	}
}

func TestNodeHashShapeIndependent(t *testing.T) {
	leaves := leafEntries("a", "b", "c", "d")

	flat := newLeafNode(leaves)

	left := newLeafNode(leaves[:2])
	right := newLeafNode(leaves[2:])
	nested := nodeFromChildren([]*Node{left, right}, []Hash{left.Hash(), right.Hash()})

	if flat.Hash() != nested.Hash() {
		t.Fatalf("Node.Hash is shape-dependent: flat %x != nested %x", flat.Hash(), nested.Hash())
	}
}

func TestNodeHashPermutationIndependent(t *testing.T) {
	names := []string{"n0", "n1", "n2", "n3", "n4", "n5"}
	base := newLeafNode(leafEntries(names...)).Hash()

	perm := append([]string(nil), names...)
	rand.New(rand.NewSource(42)).Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	// newLeafNode requires sorted input for validate(); build the
	// permuted fold directly through a LongHash instead, mirroring
	// what Node.Hash does internally.
	var lh LongHash
	for _, s := range perm {
		lh.Fold(Name{[]byte(s)}.Digest())
	}

	if base != lh.Sum() {
		t.Fatalf("fold over permuted leaves != node hash: %x != %x", lh.Sum(), base)
	}
}

func TestNodeValidateRejectsUnordered(t *testing.T) {
	n := &Node{
		Entries: []NodeEntry{
			{Kind: KindLeaf, Leaf: Name{[]byte("b")}},
			{Kind: KindLeaf, Leaf: Name{[]byte("a")}},
		},
		MinName: Name{[]byte("b")},
		MaxName: Name{[]byte("a")},
	}
	enc, err := n.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := DecodeNode(enc); err == nil {
		t.Fatalf("expected DecodeNode to reject unordered entries")
	}
}

func TestNodeValidateRejectsEmpty(t *testing.T) {
	enc, err := rlp.EncodeToBytes(&wireNode{})
	if err != nil {
		t.Fatalf("encode empty wireNode: %v", err)
	}
	if _, err := DecodeNode(enc); err == nil {
		t.Fatalf("expected DecodeNode to reject an empty node")
	}
}
