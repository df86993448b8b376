package table

// HotspotBuckets describes the buckets an insertion is currently probing.
// It is handed to the eviction policy when the probed set is full so the
// policy can reclaim space before the table resorts to a segment split.
type HotspotBuckets struct {
	// KeyHash is the full hash of the key being inserted.
	KeyHash uint64

	// SegID is the segment absorbing the insert.
	SegID uint32

	// Regular holds the probed regular bucket ids (home, probe).
	Regular [2]uint8

	// Stash holds the ids of all stash buckets of the segment.
	Stash [NumStashBuckets]uint8
}

// EvictionPolicy receives bucket-level hooks from table insertions.
// The policy may mutate the table (erase slots, shift stash buckets); the
// insertion retries after every pass that reports progress.
type EvictionPolicy[V any] interface {
	// CanGrow reports whether the table may allocate another segment.
	CanGrow(t *Table[V]) bool

	// RecordSplit is called when a segment split is about to happen so the
	// policy can account the added memory.
	RecordSplit()

	// GarbageCollect scans the hotspot buckets for expired slots and erases
	// them; returns the number of reclaimed slots.
	GarbageCollect(hs HotspotBuckets, t *Table[V]) int

	// Evict frees a slot by evicting a live entry; returns the number of
	// evicted slots. Policies that cannot evict return 0.
	Evict(hs HotspotBuckets, t *Table[V]) int
}

// BumpPolicy gates entry repositioning on lookups.
type BumpPolicy interface {
	// CanBumpDown reports whether the given key may be displaced towards a
	// more evictable slot to make room for a bumped-up entry.
	CanBumpDown(key string, sticky bool) bool
}
