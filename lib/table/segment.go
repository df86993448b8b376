package table

import (
	"github.com/emberdb/ember/lib/core"
)

// --------------------------------------------------------------------------
// Geometry
// --------------------------------------------------------------------------

const (
	// BucketWidth is the number of slots per bucket.
	BucketWidth = 4

	// RegularBuckets is the number of home/probe buckets per segment.
	RegularBuckets = 60

	// NumStashBuckets is the number of overflow buckets per segment.
	NumStashBuckets = 4

	// TotalBuckets is the bucket count of one segment.
	TotalBuckets = RegularBuckets + NumStashBuckets

	// SegmentCapacity is the slot count of one segment.
	SegmentCapacity = TotalBuckets * BucketWidth

	// segBytes approximates the allocation size of one segment. The slot
	// struct is dominated by the key header and the value pointer; the
	// geometry is chosen so a segment lands near an allocator size class.
	segBytes = SegmentCapacity * 64
)

// --------------------------------------------------------------------------
// Slot and bucket
// --------------------------------------------------------------------------

type slot[V any] struct {
	hash    uint64
	version uint64
	key     core.CompactKey
	value   V
	busy    bool
}

type bucket[V any] struct {
	slots [BucketWidth]slot[V]
}

// isFull reports whether the bucket has no free slot.
func (b *bucket[V]) isFull() bool {
	for i := range b.slots {
		if !b.slots[i].busy {
			return false
		}
	}
	return true
}

// isEmpty reports whether the bucket has no busy slot.
func (b *bucket[V]) isEmpty() bool {
	for i := range b.slots {
		if b.slots[i].busy {
			return false
		}
	}
	return true
}

// freeSlot returns the index of a free slot, or -1.
func (b *bucket[V]) freeSlot() int {
	for i := range b.slots {
		if !b.slots[i].busy {
			return i
		}
	}
	return -1
}

// findSlot returns the index of the slot holding (hash, key), or -1.
func (b *bucket[V]) findSlot(hash uint64, key string) int {
	for i := range b.slots {
		s := &b.slots[i]
		if s.busy && s.hash == hash && s.key.String() == key {
			return i
		}
	}
	return -1
}

// --------------------------------------------------------------------------
// Segment
// --------------------------------------------------------------------------

type segment[V any] struct {
	buckets    [TotalBuckets]bucket[V]
	localDepth uint8
	id         uint32
	size       int
}

// find locates a key within the segment by its placement.
func (sg *segment[V]) find(p placement, key string) (uint8, int) {
	if si := sg.buckets[p.home].findSlot(p.hash, key); si >= 0 {
		return p.home, si
	}
	if si := sg.buckets[p.probe].findSlot(p.hash, key); si >= 0 {
		return p.probe, si
	}
	for bid := uint8(RegularBuckets); bid < TotalBuckets; bid++ {
		if si := sg.buckets[bid].findSlot(p.hash, key); si >= 0 {
			return bid, si
		}
	}
	return 0, -1
}

// insert places (key, value) into the first free probed slot.
// Returns the position or (0, -1) when every probed bucket is full.
func (sg *segment[V]) insert(p placement, key core.CompactKey, value V) (uint8, int) {
	candidates := [3]uint8{p.home, p.probe, p.stash}

	for _, bid := range candidates[:] {
		if si := sg.buckets[bid].freeSlot(); si >= 0 {
			sg.buckets[bid].slots[si] = slot[V]{hash: p.hash, key: key, value: value, busy: true}
			sg.size++
			return bid, si
		}
	}

	// remaining stash buckets
	for bid := uint8(RegularBuckets); bid < TotalBuckets; bid++ {
		if si := sg.buckets[bid].freeSlot(); si >= 0 {
			sg.buckets[bid].slots[si] = slot[V]{hash: p.hash, key: key, value: value, busy: true}
			sg.size++
			return bid, si
		}
	}

	return 0, -1
}

// clearSlot frees one slot.
func (sg *segment[V]) clearSlot(bid uint8, si int) {
	var zero slot[V]
	sg.buckets[bid].slots[si] = zero
	sg.size--
}
