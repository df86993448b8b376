package table

import "github.com/emberdb/ember/lib/core"

// Iterator is a borrowed position inside the table. It stays valid until the
// next mutation that can split its segment; callers that mutate the table
// must re-find afterwards. Iterators never cross shard threads.
type Iterator[V any] struct {
	t   *Table[V]
	sg  *segment[V]
	bid uint8
	sid uint8
}

// IsDone reports whether the iterator points at nothing.
func (it Iterator[V]) IsDone() bool {
	return it.t == nil
}

// Occupied reports whether the iterator's slot currently holds an entry.
func (it Iterator[V]) Occupied() bool {
	return it.t != nil && it.sg.buckets[it.bid].slots[it.sid].busy
}

// Key returns a mutable reference to the entry's key, so that callers can
// transition its sticky and has-expire flags in place.
func (it Iterator[V]) Key() *core.CompactKey {
	return &it.sg.buckets[it.bid].slots[it.sid].key
}

// Value returns the entry's value.
func (it Iterator[V]) Value() V {
	return it.sg.buckets[it.bid].slots[it.sid].value
}

// SetValue replaces the entry's value.
func (it Iterator[V]) SetValue(v V) {
	it.sg.buckets[it.bid].slots[it.sid].value = v
}

// Version returns the entry's version stamp.
func (it Iterator[V]) Version() uint64 {
	return it.sg.buckets[it.bid].slots[it.sid].version
}

// SetVersion updates the entry's version stamp.
func (it Iterator[V]) SetVersion(v uint64) {
	it.sg.buckets[it.bid].slots[it.sid].version = v
}

// KeyHash returns the entry's cached placement hash.
func (it Iterator[V]) KeyHash() uint64 {
	return it.sg.buckets[it.bid].slots[it.sid].hash
}

// SegmentID returns the id of the segment the iterator points into.
func (it Iterator[V]) SegmentID() uint32 {
	return it.sg.id
}

// BucketID returns the bucket index within the segment.
func (it Iterator[V]) BucketID() uint8 {
	return it.bid
}

// SlotID returns the slot index within the bucket.
func (it Iterator[V]) SlotID() uint8 {
	return it.sid
}

// IsStash reports whether the entry currently lives in a stash bucket.
func (it Iterator[V]) IsStash() bool {
	return it.bid >= RegularBuckets
}

// Equal reports whether two iterators reference the same slot.
func (it Iterator[V]) Equal(o Iterator[V]) bool {
	return it.sg == o.sg && it.bid == o.bid && it.sid == o.sid
}
