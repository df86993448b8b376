package slice

import (
	"github.com/emberdb/ember/lib/core"
	"github.com/emberdb/ember/lib/table"
)

// --------------------------------------------------------------------------
// Insertion-time eviction policy
// --------------------------------------------------------------------------

// primeEvictionPolicy is handed to prime-table insertions. It garbage
// collects expired slots from the probed buckets, evicts stashed entries in
// caching mode, and gates segment growth on the memory budget.
type primeEvictionPolicy struct {
	slice *DbSlice
	db    DbIndex

	memBudget int64
	softLimit int64
	evicted   int
	checked   int

	// canEvict tells whether live entries may be evicted at runtime; it is
	// false outside caching mode.
	canEvict bool
}

// CanGrow permits a segment split while the budget is above the soft limit,
// or when the projected added memory still fits. The projection is
// deliberately conservative: it assumes the table fills to capacity at the
// current bytes-per-object even if it is sparser right now.
func (p *primeEvictionPolicy) CanGrow(t *table.Table[*core.CompactValue]) bool {
	if p.memBudget > p.softLimit {
		return true
	}

	available := int64(t.Capacity() - t.Size())
	return p.memBudget > table.SegBytes()+p.slice.BytesPerObject()*available
}

// RecordSplit accounts the segment a split is about to allocate.
func (p *primeEvictionPolicy) RecordSplit() {
	p.memBudget -= table.SegBytes()
}

// GarbageCollect erases expired slots from the regular hotspot buckets.
// Stash buckets are filled last, so the chance they hold expired items is
// much smaller and they are skipped.
func (p *primeEvictionPolicy) GarbageCollect(hs table.HotspotBuckets, t *table.Table[*core.CompactValue]) int {
	res := 0
	for _, bid := range hs.Regular {
		for sid := uint8(0); sid < table.BucketWidth; sid++ {
			it := t.GetIterator(hs.SegID, bid, sid)
			if it.IsDone() || !it.Key().HasExpire() {
				continue
			}
			p.checked++
			primeIt, _ := p.slice.ExpireIfNeeded(p.db, it)
			if primeIt.IsDone() {
				res++
			}
		}
	}
	p.slice.metrics.garbageCollected.Add(res)
	return res
}

// Evict frees the last slot of one stash bucket, chosen by the inserting
// key's hash, and shifts the bucket right so the vacated position absorbs
// the next stashed entry. Sticky entries stop the pass.
func (p *primeEvictionPolicy) Evict(hs table.HotspotBuckets, t *table.Table[*core.CompactValue]) int {
	if !p.canEvict {
		return 0
	}

	bid := hs.Stash[hs.KeyHash%uint64(table.NumStashBuckets)]

	lastIt := t.GetIterator(hs.SegID, bid, table.BucketWidth-1)
	if !lastIt.IsDone() {
		if lastIt.Key().IsSticky() {
			return 0
		}

		dbt := p.slice.GetDBTable(p.db)
		p.slice.evictItem(p.db, dbt, lastIt)
		p.evicted++
	}
	t.ShiftRight(hs.SegID, bid)

	return 1
}

// --------------------------------------------------------------------------
// Bump policy
// --------------------------------------------------------------------------

// primeBumpPolicy allows repositioning of everything except sticky keys.
type primeBumpPolicy struct{}

func (primeBumpPolicy) CanBumpDown(_ string, sticky bool) bool {
	return !sticky
}

// --------------------------------------------------------------------------
// Pressure eviction
// --------------------------------------------------------------------------

// evictItem removes one entry and its satellite state; returns the freed
// byte estimate.
func (s *DbSlice) evictItem(db DbIndex, dbt *DbTable, it PrimeIterator) int64 {
	key := it.Key().String()

	if it.Key().HasExpire() {
		if n := dbt.Expire.EraseKey(key); n != 1 {
			log.Panicf("slice: expire entry missing on eviction of %q", key)
		}
	}
	dbt.McFlag.EraseKey(key)

	freed := it.Key().MallocUsed() + it.Value().MallocUsed()
	updateStatsOnDeletion(it, &dbt.Stats)
	dbt.Prime.Erase(it)
	s.invalidateWatchedKey(db, key)

	return freed
}

// EvictObjects frees at least memoryToFree bytes from the segment that
// absorbed an insert. Stash buckets drain first from the highest slot down
// (stash slots age towards the tail), then regular buckets starting from
// the one that absorbed the insert, wrapping. The just-inserted entry and
// sticky entries are never evicted.
func (s *DbSlice) EvictObjects(db DbIndex, memoryToFree int64, it PrimeIterator, dbt *DbTable) int64 {
	segID := it.SegmentID()

	var (
		freed   int64
		evicted int
	)

	evictFrom := func(bid uint8, sid uint8) bool {
		victim := dbt.Prime.GetIterator(segID, bid, sid)
		if victim.IsDone() || victim.Equal(it) || victim.Key().IsSticky() {
			return false
		}
		freed += s.evictItem(db, dbt, victim)
		evicted++
		return freed > memoryToFree
	}

	done := false
	for bid := uint8(table.RegularBuckets); !done && bid < table.TotalBuckets; bid++ {
		for sid := int(table.BucketWidth) - 1; sid >= 0; sid-- {
			if evictFrom(bid, uint8(sid)) {
				done = true
				break
			}
		}
	}

	// regular buckets: largest slot first across the segment, starting at
	// the insert's bucket
	for sid := int(table.BucketWidth) - 1; !done && sid >= 0; sid-- {
		for i := uint8(0); i < table.RegularBuckets; i++ {
			bid := (it.BucketID() + i) % table.RegularBuckets
			if evictFrom(bid, uint8(sid)) {
				done = true
				break
			}
		}
	}

	if evicted > 0 {
		log.Debugf("evicted %d items, freed %d bytes, success: %v", evicted, freed, done)
		s.events.EvictedKeys += uint64(evicted)
		s.events.HardEvictions += uint64(evicted)
		s.metrics.evictedKeys.Add(evicted)
		s.metrics.hardEvictions.Add(evicted)
	}

	return freed
}

// --------------------------------------------------------------------------
// Background eviction
// --------------------------------------------------------------------------

// FreeMemWithEvictionStep evicts stashed entries across the database until
// the goal is met. Outside caching mode it is a no-op. The heartbeat calls
// it when the shard's free memory drops under the redline.
func (s *DbSlice) FreeMemWithEvictionStep(db DbIndex, goalBytes int64) int64 {
	if !s.cachingMode || !s.IsDbValid(db) {
		return 0
	}
	dbt := s.dbArr[db]

	var (
		freed   int64
		evicted int
	)

	for seg := 0; seg < dbt.Prime.NumSegments() && freed <= goalBytes; seg++ {
		for bid := uint8(table.RegularBuckets); bid < table.TotalBuckets && freed <= goalBytes; bid++ {
			for sid := int(table.BucketWidth) - 1; sid >= 0; sid-- {
				victim := dbt.Prime.GetIterator(uint32(seg), bid, uint8(sid))
				if victim.IsDone() || victim.Key().IsSticky() {
					continue
				}
				freed += s.evictItem(db, dbt, victim)
				evicted++
				if freed > goalBytes {
					break
				}
			}
		}
	}

	if evicted > 0 {
		s.events.EvictedKeys += uint64(evicted)
		s.metrics.evictedKeys.Add(evicted)
		s.memoryBudget += freed
	}

	return freed
}
