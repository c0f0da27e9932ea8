package ccnsync

import (
	"testing"

	"github.com/ccnxgo/ccnsync/common/mclock"
)

// buildTestTree builds a two-level tree over the given leaf names (split
// into two children of equal size) and installs every node into c,
// returning the root hash.
func buildTestTree(t *testing.T, c *Cache, names ...string) Hash {
	t.Helper()
	if len(names)%2 != 0 {
		t.Fatalf("buildTestTree requires an even number of names")
	}
	mid := len(names) / 2
	left := newLeafNode(leafEntries(names[:mid]...))
	right := newLeafNode(leafEntries(names[mid:]...))
	leftEnc, _ := left.Encode()
	rightEnc, _ := right.Encode()
	c.installLocal(left.Hash(), leftEnc, left)
	c.installLocal(right.Hash(), rightEnc, right)

	root := nodeFromChildren([]*Node{left, right}, []Hash{left.Hash(), right.Hash()})
	rootEnc, _ := root.Encode()
	c.installLocal(root.Hash(), rootEnc, root)
	return root.Hash()
}

func TestWalkerLeafIterNextFlattensTree(t *testing.T) {
	c := newCache(mclock.System{})
	root := buildTestTree(t, c, "a", "b", "c", "d")

	w := newWalker(c, root, false)
	if w.Empty() {
		t.Fatalf("walker should start non-empty for a resolvable root")
	}

	var got []string
	for {
		name, ok := w.leafIterNext()
		if !ok {
			break
		}
		got = append(got, string(name[0]))
	}

	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("leafIterNext produced %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("leafIterNext[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalkerPushPendingOnUndecodedChild(t *testing.T) {
	c := newCache(mclock.System{})
	leaf := newLeafNode(leafEntries("only"))
	leafHash := leaf.Hash() // never installed, so the cache has no entry for it

	root := nodeFromChildren([]*Node{leaf}, []Hash{leafHash})
	rootEnc, _ := root.Encode()
	c.installLocal(root.Hash(), rootEnc, root)

	w := newWalker(c, root.Hash(), false)
	if res := w.push(); res != pushPending {
		t.Fatalf("push() = %v, want pushPending for an unfetched child", res)
	}
	if e := c.lookup(leafHash); e == nil {
		t.Fatalf("push() should register a pending cache entry for the child")
	}
}

func TestWalkerEmptyForZeroRoot(t *testing.T) {
	c := newCache(mclock.System{})
	w := newWalker(c, Hash{}, false)
	if !w.Empty() {
		t.Fatalf("walker over the zero hash should start empty")
	}
	if _, ok := w.leafIterNext(); ok {
		t.Fatalf("leafIterNext over an empty walker should report false")
	}
}

func TestWalkerPopPropagatesCount(t *testing.T) {
	c := newCache(mclock.System{})
	root := buildTestTree(t, c, "a", "b", "c", "d")

	w := newWalker(c, root, false)
	if res := w.push(); res != pushDescended {
		t.Fatalf("push() = %v, want pushDescended", res)
	}
	if w.remaining() != 2 {
		t.Fatalf("remaining() = %d, want 2 at the left child's first entry", w.remaining())
	}
	w.markAdded(3)
	w.pop()
	// popping back to the root frame should have advanced its position
	// past the left child entry and folded the child's added count into
	// the parent frame.
	f, ok := w.top()
	if !ok || f.pos != 1 {
		t.Fatalf("pop did not advance parent position, frame=%+v ok=%v", f, ok)
	}
	if w.addedCount() != 3 {
		t.Fatalf("pop did not propagate added count, addedCount() = %d, want 3", w.addedCount())
	}
}
