package ccnsync

import "context"

// ContentObject is the minimal shape the engine needs from a stored or
// fetched object: its name and body bytes. Indexing, verification and
// signing live entirely in the storage/transport collaborators
// (spec.md §1).
type ContentObject struct {
	Name Name
	Body []byte
}

// Accession is the opaque, totally-ordered sequence number the storage
// collaborator assigns to stored items, spec.md §6. The engine only
// ever compares, encodes and merges these — it never interprets the
// value.
type Accession []byte

// HighWaterMark is an opaque monotonic high-water value over
// Accessions, spec.md §6, with a distinguished Null value.
type HighWaterMark []byte

// Storage is the external collaborator interface spec.md §6 names:
// content storage, lookup, and the accession/high-water ordering it
// exposes. The engine treats every method as safe to call from its
// single event-loop goroutine; Storage implementations must be safe
// for concurrent use by their own async notification goroutines.
type Storage interface {
	// Enumerate initiates asynchronous enumeration of stored names
	// under prefix; the engine is notified via the AddName callback it
	// registered at construction. Returns immediately with the number
	// of items enumeration expects to report, or -1 if unknown.
	Enumerate(ctx context.Context, prefix Name) (int, error)

	// Lookup performs a synchronous local lookup; ok is false on a
	// clean miss (not an error).
	Lookup(ctx context.Context, name Name) (obj ContentObject, ok bool, err error)

	// LocalStore commits a locally-constructed object (e.g. a newly
	// built tree node) durably.
	LocalStore(ctx context.Context, obj ContentObject) error

	// UpcallStore commits an object fetched from a peer.
	UpcallStore(ctx context.Context, kind string, obj ContentObject) error

	// NotifyAfter requests AddName callbacks for every item at or
	// above highWater, used to resume after a restart from the
	// persisted stable point.
	NotifyAfter(ctx context.Context, highWater HighWaterMark) error

	// Accession ordering.
	AccessionEncode(a Accession) []byte
	AccessionDecode(b []byte) Accession
	AccessionCompare(a, b Accession) int

	// High-water-mark ordering.
	HWMEncode(h HighWaterMark) []byte
	HWMDecode(b []byte) HighWaterMark
	HWMUpdate(h HighWaterMark, a Accession) HighWaterMark
	HWMMerge(a, b HighWaterMark) HighWaterMark
	HWMCompare(a, b HighWaterMark) int
}

// AddNameFunc is the callback Storage invokes for each enumerated or
// newly-stored name, feeding Root.addName via the engine's dispatch.
type AddNameFunc func(name Name, item NameItem, accession Accession)
