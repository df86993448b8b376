package slice

import (
	"github.com/lni/dragonboat/v4/logger"

	"github.com/emberdb/ember/lib/core"
	"github.com/emberdb/ember/lib/lockmgr"
	"github.com/emberdb/ember/lib/table"
	"github.com/emberdb/ember/lib/tiered"
)

var log = logger.GetLogger("slice")

// --------------------------------------------------------------------------
// DbSlice
// --------------------------------------------------------------------------

// DbSlice owns the per-database state of one shard. All methods must run on
// the owning shard's thread; the type does no locking of its own.
type DbSlice struct {
	shardID     uint32
	cachingMode bool

	dbArr []*DbTable

	// expireBase anchors the 32-bit deltas of the expire tables. Two
	// generations are budgeted for the future rebase scheme; only
	// generation 0 is active.
	expireBase [2]int64

	// nowMs is the shard-local millisecond clock all expiry comparisons
	// share. The heartbeat advances it.
	nowMs uint64

	// memoryBudget is the remaining byte allowance of this shard. Inserts
	// consume it; eviction and GC give it back.
	memoryBudget    int64
	maxMemoryShard  int64
	softBudgetLimit int64
	bytesPerObject  int64

	tieredStorage *tiered.Storage

	changeCB       []changeCBPair
	versionCounter uint64

	// uniqKeys is the scratch set used to deduplicate lock keys.
	uniqKeys map[string]struct{}

	events  SliceEvents
	metrics *eventMetrics
}

// New creates a slice for one shard. maxMemory is the per-shard byte budget.
func New(shardID uint32, cachingMode bool, maxMemory int64) *DbSlice {
	s := &DbSlice{
		shardID:         shardID,
		cachingMode:     cachingMode,
		memoryBudget:    maxMemory,
		maxMemoryShard:  maxMemory,
		softBudgetLimit: maxMemory / 10,
		uniqKeys:        make(map[string]struct{}),
		metrics:         newEventMetrics(shardID),
	}
	s.ActivateDb(0)
	return s
}

// ShardID returns the owning shard's id.
func (s *DbSlice) ShardID() uint32 {
	return s.shardID
}

// CachingMode reports whether eviction-on-pressure is enabled.
func (s *DbSlice) CachingMode() bool {
	return s.cachingMode
}

// SetTieredStorage attaches the tiered-storage backend.
func (s *DbSlice) SetTieredStorage(ts *tiered.Storage) {
	s.tieredStorage = ts
}

// TieredStorage returns the attached backend, or nil.
func (s *DbSlice) TieredStorage() *tiered.Storage {
	return s.tieredStorage
}

// --------------------------------------------------------------------------
// Clock and budget
// --------------------------------------------------------------------------

// Now returns the shard clock in milliseconds.
func (s *DbSlice) Now() uint64 {
	return s.nowMs
}

// UpdateExpireClock advances the shard clock.
func (s *DbSlice) UpdateExpireClock(nowMs uint64) {
	s.nowMs = nowMs
}

// UpdateExpireBase sets the expire base of a generation. Deltas in the
// expire tables are relative to generation 0.
func (s *DbSlice) UpdateExpireBase(baseMs int64, gen int) {
	s.expireBase[gen] = baseMs
}

// ExpireTime resolves an expire entry to an absolute wall-clock time.
func (s *DbSlice) ExpireTime(it ExpireIterator) uint64 {
	return uint64(s.expireBase[0]) + it.Value().DurationMs()
}

// MemoryBudget returns the remaining per-shard byte allowance.
func (s *DbSlice) MemoryBudget() int64 {
	return s.memoryBudget
}

// BytesPerObject returns the cached bytes-per-object estimate.
func (s *DbSlice) BytesPerObject() int64 {
	return s.bytesPerObject
}

// SetCachedParams refreshes the memory parameters computed by the heartbeat.
func (s *DbSlice) SetCachedParams(memoryBudget, bytesPerObject int64) {
	s.memoryBudget = memoryBudget
	s.bytesPerObject = bytesPerObject
}

// MaxMemoryShard returns the configured per-shard budget.
func (s *DbSlice) MaxMemoryShard() int64 {
	return s.maxMemoryShard
}

// NextVersion hands out the strictly increasing mutation version.
func (s *DbSlice) NextVersion() uint64 {
	s.versionCounter++
	return s.versionCounter
}

// --------------------------------------------------------------------------
// Database lifecycle
// --------------------------------------------------------------------------

// ActivateDb lazily creates the database of the given index.
func (s *DbSlice) ActivateDb(db DbIndex) {
	if int(db) >= len(s.dbArr) {
		grown := make([]*DbTable, int(db)+1)
		copy(grown, s.dbArr)
		s.dbArr = grown
	}
	if s.dbArr[db] == nil {
		s.dbArr[db] = newDbTable()
	}
}

// IsDbValid reports whether the database exists.
func (s *DbSlice) IsDbValid(db DbIndex) bool {
	return int(db) < len(s.dbArr) && s.dbArr[db] != nil
}

// GetDBTable returns the database, or nil.
func (s *DbSlice) GetDBTable(db DbIndex) *DbTable {
	if !s.IsDbValid(db) {
		return nil
	}
	return s.dbArr[db]
}

// GetTables returns the prime and expire tables of a database.
func (s *DbSlice) GetTables(db DbIndex) (*PrimeTable, *ExpireTable) {
	t := s.dbArr[db]
	return t.Prime, t.Expire
}

// DbArraySize returns the database array length.
func (s *DbSlice) DbArraySize() int {
	return len(s.dbArr)
}

// DbSize returns the number of live keys in a database.
func (s *DbSlice) DbSize(db DbIndex) int {
	if !s.IsDbValid(db) {
		return 0
	}
	return s.dbArr[db].Prime.Size()
}

// Reserve pre-sizes the prime table of a database.
func (s *DbSlice) Reserve(db DbIndex, keyCount int) {
	s.ActivateDb(db)
	s.dbArr[db].Prime.Reserve(keyCount)
}

// FlushDb atomically replaces a database with an empty one. Intent locks
// survive the flush; the old tables are destroyed on a background goroutine
// so shard latency stays bounded.
func (s *DbSlice) FlushDb(db DbIndex) {
	if !s.IsDbValid(db) {
		return
	}

	s.InvalidateDbWatches(db)

	old := s.dbArr[db]
	fresh := newDbTable()
	fresh.TransLocks, old.TransLocks = old.TransLocks, fresh.TransLocks
	s.dbArr[db] = fresh

	go old.Clear()
}

// FlushAll flushes every database.
func (s *DbSlice) FlushAll() {
	for i := range s.dbArr {
		if s.dbArr[i] != nil {
			s.FlushDb(DbIndex(i))
		}
	}
}

// --------------------------------------------------------------------------
// Lookup
// --------------------------------------------------------------------------

// FindExt locates a key, expiring it inline when its deadline passed. In
// caching mode a successful lookup bumps the entry up within its segment;
// registered change callbacks receive the pre-images of the entries the
// bump can displace.
func (s *DbSlice) FindExt(db DbIndex, key string) (PrimeIterator, ExpireIterator) {
	var expIt ExpireIterator

	if !s.IsDbValid(db) {
		return PrimeIterator{}, expIt
	}

	dbt := s.dbArr[db]
	it := dbt.Prime.Find(key)
	if it.IsDone() {
		return it, expIt
	}

	if it.Key().HasExpire() {
		it, expIt = s.ExpireIfNeeded(db, it)
	}

	if s.cachingMode && !it.IsDone() {
		if len(s.changeCB) > 0 {
			version := s.changeCB[len(s.changeCB)-1].version
			dbt.Prime.CVCUponBump(version, it, func(bit PrimeIterator) {
				for _, ccb := range s.changeCB {
					ccb.cb(db, PreImageReq(bit))
				}
			})
		}

		it = dbt.Prime.BumpUp(it, primeBumpPolicy{})
		s.events.Bumpups++
		s.metrics.bumpups.Inc()
	}

	return it, expIt
}

// Find locates a key and checks its logical type.
func (s *DbSlice) Find(db DbIndex, key string, reqType core.ObjType) (PrimeIterator, OpStatus) {
	it, _ := s.FindExt(db, key)
	if it.IsDone() {
		return it, StatusKeyNotFound
	}
	if it.Value().ObjType() != reqType {
		return PrimeIterator{}, StatusWrongType
	}
	return it, StatusOK
}

// FindFirst returns the first key of args that exists with the expected
// type, along with its index in args.
func (s *DbSlice) FindFirst(db DbIndex, args []string, reqType core.ObjType) (PrimeIterator, int, OpStatus) {
	for i, key := range args {
		it, status := s.Find(db, key, reqType)
		switch status {
		case StatusOK:
			return it, i, StatusOK
		case StatusKeyNotFound:
			continue
		default:
			return PrimeIterator{}, 0, status
		}
	}
	return PrimeIterator{}, 0, StatusKeyNotFound
}

// --------------------------------------------------------------------------
// Insert
// --------------------------------------------------------------------------

// AddOrFind inserts an empty entry for key or finds the existing one.
// The insertion runs the eviction policy: a GC pass over the probed buckets
// always, stash eviction and pressure eviction in caching mode. In
// non-caching mode an insert that cannot fit the budget fails with
// StatusOutOfMemory and leaves no residue.
func (s *DbSlice) AddOrFind(db DbIndex, key string) (PrimeIterator, bool, OpStatus) {
	it, _, inserted, status := s.AddOrFind2(db, key)
	return it, inserted, status
}

// AddOrFind2 is AddOrFind returning the expire iterator of an existing
// entry as well.
func (s *DbSlice) AddOrFind2(db DbIndex, key string) (PrimeIterator, ExpireIterator, bool, OpStatus) {
	s.ActivateDb(db)
	dbt := s.dbArr[db]

	// With change callbacks registered we must know in advance whether this
	// is a find or an insert, so subscribers observe the new-key callback
	// before the structural change.
	if len(s.changeCB) > 0 {
		it, expIt := s.FindExt(db, key)
		if !it.IsDone() {
			return it, expIt, false, StatusOK
		}

		for _, ccb := range s.changeCB {
			ccb.cb(db, NewKeyReq(key))
		}
	}

	evp := &primeEvictionPolicy{
		slice:     s,
		db:        db,
		canEvict:  s.cachingMode,
		memBudget: s.memoryBudget - int64(len(key)),
		softLimit: s.softBudgetLimit,
	}

	// Over limit in the non-cache scenario: be conservative and fail before
	// touching the table.
	if !s.cachingMode && evp.memBudget < 0 {
		return PrimeIterator{}, ExpireIterator{}, false, StatusOutOfMemory
	}

	it, inserted, err := dbt.Prime.Insert(core.NewKey(key), &core.CompactValue{}, evp)
	if err != nil {
		return PrimeIterator{}, ExpireIterator{}, false, StatusOutOfMemory
	}

	// Memory usage may exceed the budget even without adding segments, e.g.
	// when half-filled segments absorb growing objects. Squeeze the
	// absorbing segment then.
	var evictedBytes int64
	if evp.memBudget < 0 {
		evictedBytes = s.EvictObjects(db, -evp.memBudget, it, dbt)
	}

	if inserted {
		dbt.Stats.InlineKeys += boolToInt64(it.Key().IsInline())
		dbt.Stats.ObjMemoryUsage += it.Key().MallocUsed()

		s.events.EvictedKeys += uint64(evp.evicted)
		s.events.GarbageChecked += uint64(evp.checked)
		s.metrics.evictedKeys.Add(evp.evicted)

		it.SetVersion(s.NextVersion())
		s.memoryBudget = evp.memBudget + evictedBytes

		return it, ExpireIterator{}, true, StatusOK
	}

	s.memoryBudget += evictedBytes

	existing := it
	if existing.Key().HasExpire() {
		expIt := dbt.Expire.Find(key)
		if expIt.IsDone() {
			log.Panicf("slice: expire entry missing for key %q", key)
		}

		deltaMs := s.nowMs - uint64(s.expireBase[0])
		if expIt.Value().DurationMs() <= deltaMs {
			// Expired under us: keep the entry but reset the object.
			dbt.Expire.Erase(expIt)
			dbt.McFlag.EraseKey(key)
			existing.Key().SetHasExpire(false)

			valueHeap := existing.Value().MallocUsed()
			dbt.Stats.ObjMemoryUsage -= valueHeap
			if existing.Value().ObjType() == core.TypeString {
				dbt.Stats.StrvalMemoryUsage -= valueHeap
			}

			existing.Value().Reset()
			s.events.ExpiredKeys++
			s.metrics.expiredKeys.Inc()
			s.invalidateWatchedKey(db, key)

			return existing, ExpireIterator{}, true, StatusOK
		}

		return existing, expIt, false, StatusOK
	}

	return existing, ExpireIterator{}, false, StatusOK
}

// AddNew inserts a key known to be absent; finding it instead is an
// invariant violation.
func (s *DbSlice) AddNew(db DbIndex, key string, value *core.CompactValue, expireAtMs uint64) PrimeIterator {
	it, added, status := s.AddEntry(db, key, value, expireAtMs)
	if status != StatusOK || !added {
		log.Panicf("slice: AddNew of existing key %q (status %v)", key, status)
	}
	return it
}

// AddEntry inserts or finds key, then assigns the value and optional expiry.
func (s *DbSlice) AddEntry(db DbIndex, key string, value *core.CompactValue, expireAtMs uint64) (PrimeIterator, bool, OpStatus) {
	it, inserted, status := s.AddOrFind(db, key)
	if status != StatusOK || !inserted {
		return it, false, status
	}

	dbt := s.dbArr[db]
	it.SetValue(value)
	s.PostUpdate(db, it, key, false)

	if expireAtMs != 0 {
		delta := ExpirePeriod(expireAtMs - uint64(s.expireBase[0]))
		if _, inserted, _ := dbt.Expire.Insert(*it.Key(), delta, nil); !inserted {
			log.Panicf("slice: dangling expire entry for new key %q", key)
		}
		it.Key().SetHasExpire(true)
	}

	return it, true, StatusOK
}

// --------------------------------------------------------------------------
// Delete and expiry
// --------------------------------------------------------------------------

// Del removes an entry, its expire entry and its mcflag entry.
func (s *DbSlice) Del(db DbIndex, it PrimeIterator) bool {
	if it.IsDone() {
		return false
	}

	dbt := s.dbArr[db]
	key := it.Key().String()

	if it.Key().HasExpire() {
		if n := dbt.Expire.EraseKey(key); n != 1 {
			log.Panicf("slice: expire entry missing on delete of %q", key)
		}
	}
	dbt.McFlag.EraseKey(key)

	updateStatsOnDeletion(it, &dbt.Stats)
	dbt.Prime.Erase(it)
	s.invalidateWatchedKey(db, key)

	return true
}

// UpdateExpire sets, changes or clears the expire entry of a live entry.
// A zero at clears expiry. Returns whether the state changed.
func (s *DbSlice) UpdateExpire(db DbIndex, it PrimeIterator, atMs uint64) bool {
	dbt := s.dbArr[db]
	key := it.Key().String()

	if atMs == 0 {
		if !it.Key().HasExpire() {
			return false
		}
		if n := dbt.Expire.EraseKey(key); n != 1 {
			log.Panicf("slice: expire entry missing on clear of %q", key)
		}
		it.Key().SetHasExpire(false)
		return true
	}

	delta := ExpirePeriod(atMs - uint64(s.expireBase[0]))

	if !it.Key().HasExpire() {
		if _, inserted, _ := dbt.Expire.Insert(*it.Key(), delta, nil); !inserted {
			log.Panicf("slice: dangling expire entry for %q", key)
		}
		it.Key().SetHasExpire(true)
		return true
	}

	expIt := dbt.Expire.Find(key)
	if expIt.IsDone() {
		log.Panicf("slice: expire entry missing for %q", key)
	}
	expIt.SetValue(delta)
	return true
}

// ExpireIfNeeded checks an entry with an armed expiry against the shard
// clock and erases it when due, keeping both tables consistent.
func (s *DbSlice) ExpireIfNeeded(db DbIndex, it PrimeIterator) (PrimeIterator, ExpireIterator) {
	if !it.Key().HasExpire() {
		log.Panicf("slice: ExpireIfNeeded on entry without expiry")
	}
	dbt := s.dbArr[db]
	key := it.Key().String()

	expIt := dbt.Expire.Find(key)
	if expIt.IsDone() {
		log.Panicf("slice: expire entry missing for %q", key)
	}

	if s.nowMs < s.ExpireTime(expIt) {
		return it, expIt
	}

	dbt.Expire.Erase(expIt)
	dbt.McFlag.EraseKey(key)
	updateStatsOnDeletion(it, &dbt.Stats)
	dbt.Prime.Erase(it)

	s.events.ExpiredKeys++
	s.metrics.expiredKeys.Inc()
	s.invalidateWatchedKey(db, key)

	return PrimeIterator{}, ExpireIterator{}
}

// DeleteExpiredStats reports one reaper step.
type DeleteExpiredStats struct {
	Traversed      int
	Deleted        int
	SurvivorTTLSum int64
}

// DeleteExpiredStep advances the reaper cursor of a database. It samples
// count/3 buckets and extends to the full count when the observed delete
// ratio exceeds 25%.
func (s *DbSlice) DeleteExpiredStep(db DbIndex, count int) DeleteExpiredStats {
	dbt := s.dbArr[db]
	var result DeleteExpiredStats

	cb := func(expIt ExpireIterator) {
		result.Traversed++
		ttl := int64(s.ExpireTime(expIt)) - int64(s.nowMs)
		if ttl <= 0 {
			primeIt := dbt.Prime.Find(expIt.Key().String())
			if primeIt.IsDone() {
				log.Panicf("slice: prime entry missing for expire key %q", expIt.Key().String())
			}
			s.ExpireIfNeeded(db, primeIt)
			result.Deleted++
		} else {
			result.SurvivorTTLSum += ttl
		}
	}

	i := 0
	for ; i < count/3; i++ {
		dbt.ExpireCursor = dbt.Expire.Traverse(dbt.ExpireCursor, cb)
	}

	// continue only on a strong deletion rate in the first sample
	if result.Deleted*4 > result.Traversed {
		for ; i < count; i++ {
			dbt.ExpireCursor = dbt.Expire.Traverse(dbt.ExpireCursor, cb)
		}
	}

	return result
}

// --------------------------------------------------------------------------
// Update bracketing
// --------------------------------------------------------------------------

// PreUpdate fires the change callbacks with the entry's pre-image, deducts
// the old value footprint from the stats, and frees the tiered blob of an
// external value.
func (s *DbSlice) PreUpdate(db DbIndex, it PrimeIterator) {
	for _, ccb := range s.changeCB {
		ccb.cb(db, PreImageReq(it))
	}

	value := it.Value()
	valueHeap := value.MallocUsed()
	stats := &s.dbArr[db].Stats
	stats.ObjMemoryUsage -= valueHeap
	stats.UpdateValueAmount -= valueHeap

	if value.ObjType() == core.TypeString {
		stats.StrvalMemoryUsage -= valueHeap

		if value.IsExternal() {
			ptr := value.GetExternalPtr()
			if s.tieredStorage != nil {
				s.tieredStorage.Free(db, ptr.Offset, ptr.Size)
			}
			stats.ExternalEntries--
			stats.ExternalSize -= int64(ptr.Size)
			value.Reset()
		}
	}
}

// PostUpdate adds the new value footprint to the stats, invalidates watched
// keys, and bumps the entry version.
func (s *DbSlice) PostUpdate(db DbIndex, it PrimeIterator, key string, existing bool) {
	stats := &s.dbArr[db].Stats

	value := it.Value()
	valueHeap := value.MallocUsed()
	stats.ObjMemoryUsage += valueHeap
	if value.ObjType() == core.TypeString {
		stats.StrvalMemoryUsage += valueHeap
		if value.IsExternal() {
			ptr := value.GetExternalPtr()
			stats.ExternalEntries++
			stats.ExternalSize += int64(ptr.Size)
		}
	}
	if existing {
		stats.UpdateValueAmount += valueHeap
	}

	it.SetVersion(s.NextVersion())
	s.invalidateWatchedKey(db, key)
}

// --------------------------------------------------------------------------
// Change callbacks
// --------------------------------------------------------------------------

// RegisterOnChange appends a change callback; the returned id doubles as the
// version from which the callback observes all mutations.
func (s *DbSlice) RegisterOnChange(cb ChangeCallback) uint64 {
	version := s.NextVersion()
	s.changeCB = append(s.changeCB, changeCBPair{version: version, cb: cb})
	return version
}

// UnregisterOnChange removes a callback by its registration id.
func (s *DbSlice) UnregisterOnChange(id uint64) {
	for i := range s.changeCB {
		if s.changeCB[i].version == id {
			s.changeCB = append(s.changeCB[:i], s.changeCB[i+1:]...)
			return
		}
	}
	log.Panicf("slice: no change callback registered with id %d", id)
}

// --------------------------------------------------------------------------
// Intent locks
// --------------------------------------------------------------------------

// Acquire takes all locks of lockArgs in one call, deduplicating keys. The
// return is the logical AND of the per-key grants: a single contended key
// makes the whole call report "must wait", though every lock is held.
func (s *DbSlice) Acquire(mode lockmgr.Mode, lockArgs KeyLockArgs) bool {
	if len(lockArgs.Keys) == 0 {
		log.Panicf("slice: Acquire with no keys")
	}
	s.ActivateDb(lockArgs.Db)
	lt := s.dbArr[lockArgs.Db].TransLocks

	acquire := func(key string) bool {
		lock, ok := lt[key]
		if !ok {
			lock = &lockmgr.IntentLock{}
			lt[key] = lock
		}
		return lock.Acquire(mode)
	}

	if len(lockArgs.Keys) == 1 {
		return acquire(lockArgs.Keys[0])
	}

	clear(s.uniqKeys)
	acquired := true
	for i := 0; i < len(lockArgs.Keys); i += lockArgs.KeyStep {
		key := lockArgs.Keys[i]
		if _, seen := s.uniqKeys[key]; !seen {
			s.uniqKeys[key] = struct{}{}
			acquired = acquire(key) && acquired
		}
	}
	return acquired
}

// Release drops the locks previously taken by a matching Acquire.
func (s *DbSlice) Release(mode lockmgr.Mode, lockArgs KeyLockArgs) {
	if len(lockArgs.Keys) == 0 {
		log.Panicf("slice: Release with no keys")
	}
	dbt := s.dbArr[lockArgs.Db]

	if len(lockArgs.Keys) == 1 {
		dbt.Release(mode, lockArgs.Keys[0], 1)
		return
	}

	clear(s.uniqKeys)
	for i := 0; i < len(lockArgs.Keys); i += lockArgs.KeyStep {
		key := lockArgs.Keys[i]
		if _, seen := s.uniqKeys[key]; !seen {
			s.uniqKeys[key] = struct{}{}
			dbt.Release(mode, key, 1)
		}
	}
}

// CheckLock reports whether all locks of lockArgs could be granted now.
// It does not mutate the lock table.
func (s *DbSlice) CheckLock(mode lockmgr.Mode, lockArgs KeyLockArgs) bool {
	lt := s.dbArr[lockArgs.Db].TransLocks
	for i := 0; i < len(lockArgs.Keys); i += lockArgs.KeyStep {
		if lock, ok := lt[lockArgs.Keys[i]]; ok && !lock.Check(mode) {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Watched keys
// --------------------------------------------------------------------------

// RegisterWatchedKey stores a weak back-reference from a key to an
// optimistic exec session.
func (s *DbSlice) RegisterWatchedKey(db DbIndex, key string, exec *ExecInfo) {
	s.ActivateDb(db)
	s.dbArr[db].WatchedKeys[key] = append(s.dbArr[db].WatchedKeys[key], exec)
	exec.watched = append(exec.watched, watchedKey{db: db, key: key})
}

// UnregisterConnectionWatches removes all back-references of a session.
// It is idempotent.
func (s *DbSlice) UnregisterConnectionWatches(exec *ExecInfo) {
	for _, w := range exec.watched {
		if !s.IsDbValid(w.db) {
			continue
		}
		watched := s.dbArr[w.db].WatchedKeys
		list, ok := watched[w.key]
		if !ok {
			continue
		}
		filtered := list[:0]
		for _, e := range list {
			if e != exec {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(watched, w.key)
		} else {
			watched[w.key] = filtered
		}
	}
	exec.watched = exec.watched[:0]
}

// invalidateWatchedKey marks all sessions watching key as dirty and drops
// the back-references: no session needs to watch a touched key anymore.
func (s *DbSlice) invalidateWatchedKey(db DbIndex, key string) {
	watched := s.dbArr[db].WatchedKeys
	if len(watched) == 0 {
		return
	}
	if list, ok := watched[key]; ok {
		for _, exec := range list {
			exec.markDirty()
		}
		delete(watched, key)
	}
}

// InvalidateDbWatches marks every session with a watch in the database as
// dirty; used by flushes.
func (s *DbSlice) InvalidateDbWatches(db DbIndex) {
	for _, list := range s.dbArr[db].WatchedKeys {
		for _, exec := range list {
			exec.markDirty()
		}
	}
}

// --------------------------------------------------------------------------
// Memcached flags
// --------------------------------------------------------------------------

// SetMCFlag stores the 32-bit memcached flag of a key; zero clears it.
func (s *DbSlice) SetMCFlag(db DbIndex, key string, flag uint32) {
	dbt := s.dbArr[db]
	if flag == 0 {
		dbt.McFlag.EraseKey(key)
		return
	}
	it, inserted, _ := dbt.McFlag.Insert(core.NewKey(key), flag, nil)
	if !inserted {
		it.SetValue(flag)
	}
}

// GetMCFlag returns the memcached flag of a key, zero when unset.
func (s *DbSlice) GetMCFlag(db DbIndex, key string) uint32 {
	it := s.dbArr[db].McFlag.Find(key)
	if it.IsDone() {
		return 0
	}
	return it.Value()
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// GetStats snapshots the per-database statistics and slice events.
func (s *DbSlice) GetStats() Stats {
	st := Stats{
		DbStats: make([]DbStats, len(s.dbArr)),
		Events:  s.events,
	}

	for i, dbt := range s.dbArr {
		if dbt == nil {
			continue
		}
		ds := &st.DbStats[i]
		ds.DbTableStats = dbt.Stats
		ds.KeyCount = int64(dbt.Prime.Size())
		ds.ExpireCount = int64(dbt.Expire.Size())
		ds.BucketCount = int64(dbt.Prime.NumSegments() * table.TotalBuckets)
		ds.TableMemUsage = dbt.Prime.MemUsage() + dbt.Expire.MemUsage()

		st.Events.GarbageCollected += dbt.Prime.GarbageCollected()
		st.Events.StashUnloaded += dbt.Prime.StashUnloaded()
	}

	return st
}

// UsedMemory estimates the bytes this slice holds: table structures plus
// attributed object memory.
func (s *DbSlice) UsedMemory() int64 {
	var used int64
	for _, dbt := range s.dbArr {
		if dbt == nil {
			continue
		}
		used += dbt.Prime.MemUsage() + dbt.Expire.MemUsage() + dbt.Stats.ObjMemoryUsage
	}
	return used
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func updateStatsOnDeletion(it PrimeIterator, stats *DbTableStats) {
	valueHeap := it.Value().MallocUsed()
	stats.InlineKeys -= boolToInt64(it.Key().IsInline())
	stats.ObjMemoryUsage -= it.Key().MallocUsed() + valueHeap
	if it.Value().ObjType() == core.TypeString {
		stats.StrvalMemoryUsage -= valueHeap
		if it.Value().IsExternal() {
			ptr := it.Value().GetExternalPtr()
			stats.ExternalEntries--
			stats.ExternalSize -= int64(ptr.Size)
		}
	}
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
