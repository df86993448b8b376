package table

import (
	"fmt"
	"testing"

	"github.com/emberdb/ember/lib/core"
)

// testPolicy is a configurable eviction policy for table tests.
type testPolicy struct {
	grow     bool
	gcFn     func(hs HotspotBuckets, t *Table[int]) int
	evictFn  func(hs HotspotBuckets, t *Table[int]) int
	splits   int
	gcCalls  int
	evCalls  int
}

func (p *testPolicy) CanGrow(*Table[int]) bool { return p.grow }
func (p *testPolicy) RecordSplit()             { p.splits++ }

func (p *testPolicy) GarbageCollect(hs HotspotBuckets, t *Table[int]) int {
	p.gcCalls++
	if p.gcFn != nil {
		return p.gcFn(hs, t)
	}
	return 0
}

func (p *testPolicy) Evict(hs HotspotBuckets, t *Table[int]) int {
	p.evCalls++
	if p.evictFn != nil {
		return p.evictFn(hs, t)
	}
	return 0
}

// TestInsertFindErase covers the basic table round trip
func TestInsertFindErase(t *testing.T) {
	tbl := New[int]()

	const n = 10_000
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		it, inserted, err := tbl.Insert(core.NewKey(key), i, nil)
		if err != nil {
			t.Fatalf("Insert(%s) failed: %v", key, err)
		}
		if !inserted {
			t.Fatalf("Insert(%s) found an existing entry", key)
		}
		if it.Value() != i {
			t.Fatalf("Insert(%s) returned value %d", key, it.Value())
		}
	}

	if tbl.Size() != n {
		t.Errorf("Expected size %d, got %d", n, tbl.Size())
	}
	if tbl.Capacity() < n {
		t.Errorf("Capacity %d below size %d", tbl.Capacity(), n)
	}

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		it := tbl.Find(key)
		if it.IsDone() {
			t.Fatalf("Find(%s) missed", key)
		}
		if it.Value() != i {
			t.Errorf("Find(%s) = %d", key, it.Value())
		}
	}

	// insert of an existing key finds it
	it, inserted, _ := tbl.Insert(core.NewKey("key-42"), -1, nil)
	if inserted || it.Value() != 42 {
		t.Error("Insert of existing key should find the old entry")
	}

	for i := 0; i < n; i += 2 {
		key := fmt.Sprintf("key-%d", i)
		if cnt := tbl.EraseKey(key); cnt != 1 {
			t.Fatalf("EraseKey(%s) = %d", key, cnt)
		}
	}

	if tbl.Size() != n/2 {
		t.Errorf("Expected size %d after erase, got %d", n/2, tbl.Size())
	}

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		found := !tbl.Find(key).IsDone()
		if i%2 == 0 && found {
			t.Errorf("Erased key %s still found", key)
		}
		if i%2 == 1 && !found {
			t.Errorf("Surviving key %s lost", key)
		}
	}
}

// TestGrowthDenied verifies a full probed set fails without growth permission
func TestGrowthDenied(t *testing.T) {
	tbl := New[int]()
	policy := &testPolicy{grow: false}

	var fullErr error
	var failedKey string
	inserted := 0
	for i := 0; i < SegmentCapacity*4; i++ {
		_, ok, err := tbl.Insert(core.NewKey(fmt.Sprintf("deny-%d", i)), i, policy)
		if err != nil {
			fullErr = err
			failedKey = fmt.Sprintf("deny-%d", i)
			break
		}
		if ok {
			inserted++
		}
	}

	if fullErr != ErrTableFull {
		t.Fatalf("Expected ErrTableFull, got %v after %d inserts", fullErr, inserted)
	}
	if policy.gcCalls == 0 {
		t.Error("GC pass should run before the failure")
	}
	if policy.evCalls == 0 {
		t.Error("Eviction pass should run before the failure")
	}
	if tbl.NumSegments() != 1 {
		t.Errorf("Table grew to %d segments despite the denial", tbl.NumSegments())
	}

	// retrying the failed key hits the same full probed set: it fails again
	// and leaves no residue
	sizeBefore := tbl.Size()
	if _, _, err := tbl.Insert(core.NewKey(failedKey), 0, policy); err == nil {
		t.Error("Insert should keep failing")
	}
	if tbl.Size() != sizeBefore {
		t.Error("Failed insert changed the table size")
	}
}

// TestGrowthAllowed verifies splits proceed when the policy permits them
func TestGrowthAllowed(t *testing.T) {
	tbl := New[int]()
	policy := &testPolicy{grow: true}

	const n = SegmentCapacity * 3
	for i := 0; i < n; i++ {
		if _, _, err := tbl.Insert(core.NewKey(fmt.Sprintf("grow-%d", i)), i, policy); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	if tbl.NumSegments() < 2 {
		t.Error("Table should have split")
	}
	if policy.splits == 0 {
		t.Error("RecordSplit should have been called")
	}
	if tbl.Size() != n {
		t.Errorf("Size %d after growth, expected %d", tbl.Size(), n)
	}

	for i := 0; i < n; i++ {
		if tbl.Find(fmt.Sprintf("grow-%d", i)).IsDone() {
			t.Fatalf("Key grow-%d lost in split", i)
		}
	}
}

// TestGCReclaimsInsteadOfSplit verifies a successful GC pass avoids the split
func TestGCReclaimsInsteadOfSplit(t *testing.T) {
	tbl := New[int]()

	policy := &testPolicy{
		grow: false,
		gcFn: func(hs HotspotBuckets, tbl *Table[int]) int {
			// reclaim one slot from the home hotspot bucket
			for sid := uint8(0); sid < BucketWidth; sid++ {
				it := tbl.GetIterator(hs.SegID, hs.Regular[0], sid)
				if !it.IsDone() {
					tbl.Erase(it)
					return 1
				}
			}
			return 0
		},
	}

	// fill one segment completely with growth denied but GC available:
	// inserts must keep succeeding without any split
	for i := 0; i < SegmentCapacity*2; i++ {
		if _, _, err := tbl.Insert(core.NewKey(fmt.Sprintf("gc-%d", i)), i, policy); err != nil {
			t.Fatalf("Insert %d failed despite GC: %v", i, err)
		}
	}

	if tbl.NumSegments() != 1 {
		t.Errorf("GC path should not split, got %d segments", tbl.NumSegments())
	}
	if tbl.GarbageCollected() == 0 {
		t.Error("GarbageCollected counter should rise")
	}
}

// TestShiftRight verifies the stash shift frees slot zero
func TestShiftRight(t *testing.T) {
	tbl := New[int]()

	// place entries directly until some land in a stash bucket
	var stashIt Iterator[int]
	for i := 0; i < SegmentCapacity; i++ {
		it, inserted, err := tbl.Insert(core.NewKey(fmt.Sprintf("shift-%d", i)), i, nil)
		if err != nil || !inserted {
			break
		}
		if it.IsStash() {
			stashIt = it
			break
		}
	}
	if stashIt.IsDone() {
		t.Skip("No stash placement reached")
	}

	segID := stashIt.SegmentID()
	bid := stashIt.BucketID()
	sizeBefore := tbl.Size()

	tbl.ShiftRight(segID, bid)

	if it := tbl.GetIterator(segID, bid, 0); !it.IsDone() {
		t.Error("Slot 0 should be free after ShiftRight")
	}
	if tbl.Size() > sizeBefore {
		t.Error("ShiftRight should not add entries")
	}
}

// TestBumpUp verifies repositioning and the sticky veto
type allowAllBump struct{}

func (allowAllBump) CanBumpDown(string, bool) bool { return true }

type stickyAwareBump struct{}

func (stickyAwareBump) CanBumpDown(_ string, sticky bool) bool { return !sticky }

func TestBumpUp(t *testing.T) {
	tbl := New[int]()

	var it Iterator[int]
	var key string
	// find an entry that does not sit in slot 0 already
	for i := 0; ; i++ {
		key = fmt.Sprintf("bump-%d", i)
		var err error
		it, _, err = tbl.Insert(core.NewKey(key), i, nil)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if it.SlotID() != 0 || it.IsStash() {
			break
		}
		if i > SegmentCapacity {
			t.Skip("No bumpable placement reached")
		}
	}

	bumped := tbl.BumpUp(it, stickyAwareBump{})
	if bumped.Key().String() != key {
		t.Error("BumpUp moved the wrong entry")
	}
	if bumped.IsStash() && it.IsStash() == bumped.IsStash() && bumped.SlotID() >= it.SlotID() && bumped.BucketID() == it.BucketID() {
		t.Error("BumpUp did not improve the entry position")
	}

	// the entry must remain findable at its new position
	if tbl.Find(key).IsDone() {
		t.Fatal("Bumped key lost")
	}

	// sticky entries stay put
	found := tbl.Find(key)
	found.Key().SetSticky(true)
	after := tbl.BumpUp(found, stickyAwareBump{})
	if !after.Equal(found) {
		t.Error("Sticky entry should not be repositioned")
	}
}

// TestTraverseCursor verifies a resumable full sweep
func TestTraverseCursor(t *testing.T) {
	tbl := New[int]()

	const n = 2000
	for i := 0; i < n; i++ {
		tbl.Insert(core.NewKey(fmt.Sprintf("trav-%d", i)), i, nil)
	}

	seen := make(map[string]bool)
	cursor := uint64(0)
	steps := 0
	for {
		cursor = tbl.Traverse(cursor, func(it Iterator[int]) {
			seen[it.Key().String()] = true
		})
		steps++
		if cursor == 0 {
			break
		}
		if steps > 1_000_000 {
			t.Fatal("Traverse cursor does not wrap")
		}
	}

	if len(seen) != n {
		t.Errorf("Traverse visited %d of %d keys", len(seen), n)
	}
}

// TestReserve verifies pre-sizing avoids growth during the fill
func TestReserve(t *testing.T) {
	tbl := New[int]()
	tbl.Reserve(SegmentCapacity * 4)

	segsAfterReserve := tbl.NumSegments()
	if segsAfterReserve*SegmentCapacity < SegmentCapacity*4 {
		t.Fatalf("Reserve allocated only %d segments", segsAfterReserve)
	}

	for i := 0; i < SegmentCapacity*2; i++ {
		if _, _, err := tbl.Insert(core.NewKey(fmt.Sprintf("res-%d", i)), i, nil); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}
}

// TestVersions verifies version stamps survive repositioning and splits
func TestVersions(t *testing.T) {
	tbl := New[int]()

	it, _, _ := tbl.Insert(core.NewKey("versioned"), 1, nil)
	it.SetVersion(77)

	for i := 0; i < SegmentCapacity*2; i++ {
		tbl.Insert(core.NewKey(fmt.Sprintf("filler-%d", i)), i, nil)
	}

	found := tbl.Find("versioned")
	if found.IsDone() {
		t.Fatal("Key lost across splits")
	}
	if found.Version() != 77 {
		t.Errorf("Version lost across splits: %d", found.Version())
	}
}

// TestClear verifies the table resets to a single empty segment
func TestClear(t *testing.T) {
	tbl := New[int]()
	for i := 0; i < SegmentCapacity*2; i++ {
		tbl.Insert(core.NewKey(fmt.Sprintf("clear-%d", i)), i, nil)
	}

	tbl.Clear()
	if tbl.Size() != 0 || tbl.NumSegments() != 1 {
		t.Errorf("Clear left size=%d segments=%d", tbl.Size(), tbl.NumSegments())
	}
	if !tbl.Find("clear-1").IsDone() {
		t.Error("Cleared key still found")
	}
}
