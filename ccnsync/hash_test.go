package ccnsync

import (
	"math/rand"
	"testing"
)

func TestDigestDeterministic(t *testing.T) {
	a := Digest([]byte("hello"))
	b := Digest([]byte("hello"))
	if a != b {
		t.Fatalf("Digest not deterministic: %x != %x", a, b)
	}
	if Digest([]byte("hello")) == Digest([]byte("world")) {
		t.Fatalf("distinct inputs hashed to the same digest")
	}
}

func TestLongHashOrderIndependent(t *testing.T) {
	hashes := make([]Hash, 8)
	for i := range hashes {
		hashes[i] = Digest([]byte{byte(i), byte(i * 7)})
	}

	var forward LongHash
	for _, h := range hashes {
		forward.Fold(h)
	}

	perm := append([]Hash(nil), hashes...)
	rand.New(rand.NewSource(1)).Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	var shuffled LongHash
	for _, h := range perm {
		shuffled.Fold(h)
	}

	if forward.Sum() != shuffled.Sum() {
		t.Fatalf("LongHash is order-dependent: %x != %x", forward.Sum(), shuffled.Sum())
	}
}

func TestLongHashResetAndFoldBytes(t *testing.T) {
	var lh LongHash
	lh.FoldBytes([]byte("a"))
	lh.FoldBytes([]byte("b"))
	sum1 := lh.Sum()

	lh.Reset()
	if !lh.Sum().IsZero() {
		t.Fatalf("Reset did not clear accumulator")
	}
	lh.FoldBytes([]byte("b"))
	lh.FoldBytes([]byte("a"))
	sum2 := lh.Sum()

	if sum1 != sum2 {
		t.Fatalf("FoldBytes order dependence: %x != %x", sum1, sum2)
	}
}

func TestHashLessTotalOrder(t *testing.T) {
	a := Hash{0x01}
	b := Hash{0x02}
	if !a.Less(b) || b.Less(a) {
		t.Fatalf("Less is not consistent for %x vs %x", a, b)
	}
	if a.Less(a) {
		t.Fatalf("Less must be irreflexive")
	}
}
