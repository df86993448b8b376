package table

import (
	"errors"

	"github.com/emberdb/ember/lib/core"
)

// ErrTableFull is returned when an insertion cannot reclaim space and the
// policy forbids growing another segment.
var ErrTableFull = errors.New("table: segment full and growth denied")

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// Table is a segmented extendible-hash table from CompactKey to V.
type Table[V any] struct {
	seed        uint64
	globalDepth uint8
	dir         []*segment[V] // directory, len == 1<<globalDepth
	segs        []*segment[V] // unique segments, iteration order
	size        int

	garbageCollected uint64
	stashUnloaded    uint64
}

// New creates a table with a single segment.
func New[V any]() *Table[V] {
	t := &Table[V]{seed: newSeed()}
	t.initSegments(0)
	return t
}

func (t *Table[V]) initSegments(depth uint8) {
	t.globalDepth = depth
	n := 1 << depth
	t.dir = make([]*segment[V], n)
	t.segs = t.segs[:0]
	for i := 0; i < n; i++ {
		sg := &segment[V]{localDepth: depth, id: uint32(i)}
		t.dir[i] = sg
		t.segs = append(t.segs, sg)
	}
	t.size = 0
}

// Hash returns the placement hash of a key for this table instance.
func (t *Table[V]) Hash(key string) uint64 {
	return hashKey(key, t.seed)
}

func (t *Table[V]) dirIndex(hash uint64) uint64 {
	return hash >> (64 - t.globalDepth)
}

func (t *Table[V]) segAt(hash uint64) *segment[V] {
	return t.dir[t.dirIndex(hash)]
}

// Size returns the number of entries.
func (t *Table[V]) Size() int {
	return t.size
}

// Capacity returns the total slot count.
func (t *Table[V]) Capacity() int {
	return len(t.segs) * SegmentCapacity
}

// NumSegments returns the number of allocated segments.
func (t *Table[V]) NumSegments() int {
	return len(t.segs)
}

// MemUsage estimates the heap bytes held by the table structure itself
// (excluding heap payloads of keys and values).
func (t *Table[V]) MemUsage() int64 {
	return int64(len(t.segs)) * segBytes
}

// SegBytes returns the approximate allocation size of one segment.
func SegBytes() int64 {
	return segBytes
}

// GarbageCollected returns the number of slots reclaimed by policy GC passes.
func (t *Table[V]) GarbageCollected() uint64 {
	return t.garbageCollected
}

// StashUnloaded returns the number of entries moved out of stash buckets by
// bump-ups.
func (t *Table[V]) StashUnloaded() uint64 {
	return t.stashUnloaded
}

// Clear drops all entries and shrinks back to a single segment.
func (t *Table[V]) Clear() {
	t.segs = nil
	t.initSegments(0)
}

// Reserve grows the table so that at least n slots are available.
// Only valid on an empty table.
func (t *Table[V]) Reserve(n int) {
	if t.size != 0 || n <= t.Capacity() {
		return
	}
	depth := uint8(0)
	for (1<<depth)*SegmentCapacity < n {
		depth++
	}
	t.segs = nil
	t.initSegments(depth)
}

// --------------------------------------------------------------------------
// Lookup
// --------------------------------------------------------------------------

// Find returns an iterator to the entry of key, or a done iterator.
func (t *Table[V]) Find(key string) Iterator[V] {
	p := makePlacement(key, t.seed)
	sg := t.segAt(p.hash)
	bid, si := sg.find(p, key)
	if si < 0 {
		return Iterator[V]{}
	}
	return Iterator[V]{t: t, sg: sg, bid: bid, sid: uint8(si)}
}

// GetIterator constructs an iterator for an explicit (segment, bucket, slot)
// position. The iterator is done if the slot is not busy.
func (t *Table[V]) GetIterator(segID uint32, bid uint8, sid uint8) Iterator[V] {
	if int(segID) >= len(t.segs) {
		return Iterator[V]{}
	}
	sg := t.segs[segID]
	if !sg.buckets[bid].slots[sid].busy {
		return Iterator[V]{}
	}
	return Iterator[V]{t: t, sg: sg, bid: bid, sid: sid}
}

// --------------------------------------------------------------------------
// Insert
// --------------------------------------------------------------------------

// Insert adds (key, value) or finds the existing entry.
// The policy (may be nil) is consulted when the probed buckets are full:
// first a GC pass, then an eviction pass, then a growth check. The returned
// bool is true when a new entry was inserted.
func (t *Table[V]) Insert(key core.CompactKey, value V, policy EvictionPolicy[V]) (Iterator[V], bool, error) {
	p := makePlacement(key.String(), t.seed)

	for {
		sg := t.segAt(p.hash)

		if bid, si := sg.find(p, key.String()); si >= 0 {
			return Iterator[V]{t: t, sg: sg, bid: bid, sid: uint8(si)}, false, nil
		}

		if bid, si := sg.insert(p, key, value); si >= 0 {
			t.size++
			return Iterator[V]{t: t, sg: sg, bid: bid, sid: uint8(si)}, true, nil
		}

		// The probed buckets are full. Let the policy reclaim space, and
		// retry after any pass that made progress.
		if policy != nil {
			hs := t.hotspot(sg, p)

			if gc := policy.GarbageCollect(hs, t); gc > 0 {
				t.garbageCollected += uint64(gc)
				continue
			}
			if ev := policy.Evict(hs, t); ev > 0 {
				continue
			}
			if !policy.CanGrow(t) {
				return Iterator[V]{}, false, ErrTableFull
			}
			policy.RecordSplit()
		}

		t.split(sg)
	}
}

func (t *Table[V]) hotspot(sg *segment[V], p placement) HotspotBuckets {
	hs := HotspotBuckets{
		KeyHash: p.hash,
		SegID:   sg.id,
		Regular: [2]uint8{p.home, p.probe},
	}
	for i := 0; i < NumStashBuckets; i++ {
		hs.Stash[i] = uint8(RegularBuckets + i)
	}
	return hs
}

// --------------------------------------------------------------------------
// Erase
// --------------------------------------------------------------------------

// Erase removes the entry an iterator points to.
func (t *Table[V]) Erase(it Iterator[V]) {
	if it.IsDone() {
		return
	}
	it.sg.clearSlot(it.bid, int(it.sid))
	t.size--
}

// EraseKey removes the entry of key; returns the number of removed entries.
func (t *Table[V]) EraseKey(key string) int {
	it := t.Find(key)
	if it.IsDone() {
		return 0
	}
	t.Erase(it)
	return 1
}

// --------------------------------------------------------------------------
// Segment split
// --------------------------------------------------------------------------

func (t *Table[V]) split(sg *segment[V]) {
	if sg.localDepth == t.globalDepth {
		// double the directory
		newDir := make([]*segment[V], 2*len(t.dir))
		for i, p := range t.dir {
			newDir[2*i] = p
			newDir[2*i+1] = p
		}
		t.dir = newDir
		t.globalDepth++
	}

	peer := &segment[V]{localDepth: sg.localDepth + 1, id: uint32(len(t.segs))}
	sg.localDepth++
	t.segs = append(t.segs, peer)

	// re-point the directory: among entries referencing sg, those whose
	// new depth bit is set move to peer
	bit := uint(t.globalDepth - sg.localDepth)
	for i := range t.dir {
		if t.dir[i] == sg && (uint64(i)>>bit)&1 == 1 {
			t.dir[i] = peer
		}
	}

	// rehash entries that now belong to peer
	var leftover []slot[V]
	for bid := 0; bid < TotalBuckets; bid++ {
		for si := 0; si < BucketWidth; si++ {
			s := &sg.buckets[bid].slots[si]
			if !s.busy || t.segAt(s.hash) == sg {
				continue
			}
			moved := *s
			sg.clearSlot(uint8(bid), si)
			if pb, psi := peer.insert(placementOf(moved.hash), moved.key, moved.value); psi >= 0 {
				peer.buckets[pb].slots[psi].version = moved.version
			} else {
				leftover = append(leftover, moved)
			}
		}
	}

	// extremely skewed buckets may still not fit; split further
	for _, s := range leftover {
		t.reinsert(s)
	}
}

func (t *Table[V]) reinsert(s slot[V]) {
	for {
		sg := t.segAt(s.hash)
		if bid, si := sg.insert(placementOf(s.hash), s.key, s.value); si >= 0 {
			sg.buckets[bid].slots[si].version = s.version
			return
		}
		t.split(sg)
	}
}

// --------------------------------------------------------------------------
// Bump-up
// --------------------------------------------------------------------------

// BumpUp repositions an entry within its segment so it becomes less likely
// to be evicted: stashed entries move into a regular bucket, regular entries
// rise towards slot 0. The policy can veto displacement of the victim slot.
// Returns the (possibly new) iterator of the entry.
func (t *Table[V]) BumpUp(it Iterator[V], policy BumpPolicy) Iterator[V] {
	if it.IsDone() {
		return it
	}

	self := &it.sg.buckets[it.bid].slots[it.sid]
	if !policy.CanBumpDown(self.key.String(), self.key.IsSticky()) {
		// the entry itself must not be repositioned
		return it
	}

	if it.bid >= RegularBuckets {
		// unload from stash into the home bucket
		home := placementOf(self.hash).home
		hb := &it.sg.buckets[home]

		if si := hb.freeSlot(); si >= 0 {
			hb.slots[si] = *self
			it.sg.buckets[it.bid].slots[it.sid] = slot[V]{}
			t.stashUnloaded++
			return Iterator[V]{t: t, sg: it.sg, bid: home, sid: uint8(si)}
		}

		// swap with the last slot of the home bucket
		victim := &hb.slots[BucketWidth-1]
		if !policy.CanBumpDown(victim.key.String(), victim.key.IsSticky()) {
			return it
		}
		*victim, *self = *self, *victim
		t.stashUnloaded++
		return Iterator[V]{t: t, sg: it.sg, bid: home, sid: BucketWidth - 1}
	}

	if it.sid == 0 {
		return it
	}

	// rise one slot inside the regular bucket
	b := &it.sg.buckets[it.bid]
	cur := &b.slots[it.sid]
	prev := &b.slots[it.sid-1]
	if prev.busy && !policy.CanBumpDown(prev.key.String(), prev.key.IsSticky()) {
		return it
	}
	*prev, *cur = *cur, *prev
	return Iterator[V]{t: t, sg: it.sg, bid: it.bid, sid: it.sid - 1}
}

// CVCUponBump invokes cb for every entry that a bump-up of it could displace
// and whose version is below the given one. Snapshotters use this to record
// pre-images before the entries move.
func (t *Table[V]) CVCUponBump(version uint64, it Iterator[V], cb func(Iterator[V])) {
	if it.IsDone() {
		return
	}
	self := &it.sg.buckets[it.bid].slots[it.sid]

	visit := func(bid uint8) {
		for si := 0; si < BucketWidth; si++ {
			s := &it.sg.buckets[bid].slots[si]
			if s.busy && s.version < version {
				cb(Iterator[V]{t: t, sg: it.sg, bid: bid, sid: uint8(si)})
			}
		}
	}

	visit(it.bid)
	if it.bid >= RegularBuckets {
		visit(placementOf(self.hash).home)
	}
}

// --------------------------------------------------------------------------
// Stash shifting
// --------------------------------------------------------------------------

// ShiftRight shifts the slots of a bucket one position towards the high end
// so that slot 0 becomes free. The last slot must have been cleared by the
// caller; a busy last slot is dropped, which is only legal for stash
// buckets whose tail the eviction policy has already freed.
func (t *Table[V]) ShiftRight(segID uint32, bid uint8) {
	sg := t.segs[segID]
	b := &sg.buckets[bid]

	if b.slots[BucketWidth-1].busy {
		sg.clearSlot(bid, BucketWidth-1)
		t.size--
	}
	copy(b.slots[1:], b.slots[:BucketWidth-1])
	b.slots[0] = slot[V]{}
}

// --------------------------------------------------------------------------
// Traversal
// --------------------------------------------------------------------------

// Traverse visits one bucket per call, invoking cb for every busy slot, and
// returns the cursor for the next call. A zero return means the traversal
// wrapped around. Cursors stay resumable across mutations; segments added by
// splits are appended to the segment list, so a pass in progress visits them
// before it wraps.
func (t *Table[V]) Traverse(cursor uint64, cb func(Iterator[V])) uint64 {
	segIdx := cursor / TotalBuckets
	bid := cursor % TotalBuckets

	if segIdx >= uint64(len(t.segs)) {
		return 0
	}

	sg := t.segs[segIdx]
	for si := 0; si < BucketWidth; si++ {
		if sg.buckets[bid].slots[si].busy {
			cb(Iterator[V]{t: t, sg: sg, bid: uint8(bid), sid: uint8(si)})
		}
	}

	cursor++
	if cursor >= uint64(len(t.segs))*TotalBuckets {
		return 0
	}
	return cursor
}
