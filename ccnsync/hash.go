package ccnsync

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// HashSize is the fixed digest length, per spec.md §3 ("fixed-size byte
// string (e.g. 32 bytes)").
const HashSize = 32

// Hash is a content digest. The zero Hash is the designated "empty"
// value used for an as-yet-unhashed root.
type Hash [HashSize]byte

// IsZero reports whether h is the empty hash.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Less gives Hash a total order, used only for the lexicographically
// sorted exclusion list (spec.md §4.H), never for set-equality checks.
func (h Hash) Less(o Hash) bool {
	for i := range h {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}

// Digest computes the content digest of b. This is the "assumed
// available" cryptographic primitive spec.md §1 excludes from engine
// scope; Keccak-256 is used because it is the teacher's pervasive hash
// primitive.
func Digest(b []byte) Hash {
	var h Hash
	d := sha3.NewLegacyKeccak256()
	d.Write(b)
	d.Sum(h[:0])
	return h
}

// LongHash is the order-independent accumulator from spec.md §3: start
// at zero, XOR-fold each component's digest into a running register.
// The result is independent of the order components are folded in. A
// digest folded an even number of times cancels out.
type LongHash struct {
	acc Hash
}

// Fold XORs h, an already computed digest, into the accumulator.
func (l *LongHash) Fold(h Hash) {
	for i := range l.acc {
		l.acc[i] ^= h[i]
	}
}

// FoldBytes digests b and folds the result in.
func (l *LongHash) FoldBytes(b []byte) {
	l.Fold(Digest(b))
}

// Sum returns the accumulated hash.
func (l *LongHash) Sum() Hash { return l.acc }

// Reset clears the accumulator back to zero.
func (l *LongHash) Reset() { l.acc = Hash{} }
