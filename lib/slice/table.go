package slice

import (
	"github.com/emberdb/ember/lib/core"
	"github.com/emberdb/ember/lib/lockmgr"
	"github.com/emberdb/ember/lib/table"
)

// --------------------------------------------------------------------------
// Table aliases
// --------------------------------------------------------------------------

// ExpirePeriod is the value of an expire-table entry: milliseconds since the
// per-database expire base. The delta encoding holds TTLs of up to ~49.7
// days in 4 bytes; longer-lived servers need the multi-generation rebase of
// the expire base (see UpdateExpireBase).
type ExpirePeriod uint32

// DurationMs returns the delta in milliseconds.
func (p ExpirePeriod) DurationMs() uint64 {
	return uint64(p)
}

// PrimeIterator walks prime-table entries.
type PrimeIterator = table.Iterator[*core.CompactValue]

// ExpireIterator walks expire-table entries.
type ExpireIterator = table.Iterator[ExpirePeriod]

// PrimeTable is the primary key-to-value table of one database.
type PrimeTable = table.Table[*core.CompactValue]

// ExpireTable is the TTL-delta table of one database.
type ExpireTable = table.Table[ExpirePeriod]

// --------------------------------------------------------------------------
// DbTable
// --------------------------------------------------------------------------

// DbTable bundles the tables and registries of one database.
type DbTable struct {
	Prime  *PrimeTable
	Expire *ExpireTable
	McFlag *table.Table[uint32]

	Stats DbTableStats

	// TransLocks keys intent-lock records by key bytes.
	TransLocks map[string]*lockmgr.IntentLock

	// WatchedKeys holds weak back-references to optimistic exec sessions.
	WatchedKeys map[string][]*ExecInfo

	// ExpireCursor is the reaper's resumable traversal position.
	ExpireCursor uint64
}

func newDbTable() *DbTable {
	return &DbTable{
		Prime:       table.New[*core.CompactValue](),
		Expire:      table.New[ExpirePeriod](),
		McFlag:      table.New[uint32](),
		TransLocks:  make(map[string]*lockmgr.IntentLock),
		WatchedKeys: make(map[string][]*ExecInfo),
	}
}

// Clear drops all entries of the database.
func (t *DbTable) Clear() {
	t.Prime.Clear()
	t.Expire.Clear()
	t.McFlag.Clear()
	t.Stats = DbTableStats{}
}

// Release removes count acquisitions of a key's lock record, erasing the
// record once it is free. The record must exist.
func (t *DbTable) Release(mode lockmgr.Mode, key string, count uint32) {
	lock, ok := t.TransLocks[key]
	if !ok {
		panic("slice: releasing lock that does not exist: " + key)
	}
	lock.Release(mode, count)
	if lock.IsFree() {
		delete(t.TransLocks, key)
	}
}
