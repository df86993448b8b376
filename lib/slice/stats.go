package slice

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Per-table statistics
// --------------------------------------------------------------------------

// DbTableStats aggregates the exact per-entry contributions of one database.
// The counters are updated transactionally with every structural change.
type DbTableStats struct {
	InlineKeys        int64
	ObjMemoryUsage    int64
	StrvalMemoryUsage int64
	UpdateValueAmount int64
	ExternalEntries   int64
	ExternalSize      int64
}

// Add accumulates another stats block.
func (s *DbTableStats) Add(o DbTableStats) {
	s.InlineKeys += o.InlineKeys
	s.ObjMemoryUsage += o.ObjMemoryUsage
	s.StrvalMemoryUsage += o.StrvalMemoryUsage
	s.UpdateValueAmount += o.UpdateValueAmount
	s.ExternalEntries += o.ExternalEntries
	s.ExternalSize += o.ExternalSize
}

// DbStats extends the table stats with table-level counts.
type DbStats struct {
	DbTableStats

	KeyCount      int64
	ExpireCount   int64
	BucketCount   int64
	TableMemUsage int64
}

// Add accumulates another stats block.
func (s *DbStats) Add(o DbStats) {
	s.DbTableStats.Add(o.DbTableStats)
	s.KeyCount += o.KeyCount
	s.ExpireCount += o.ExpireCount
	s.BucketCount += o.BucketCount
	s.TableMemUsage += o.TableMemUsage
}

// --------------------------------------------------------------------------
// Slice events
// --------------------------------------------------------------------------

// SliceEvents counts the policy-driven events of one slice.
type SliceEvents struct {
	EvictedKeys      uint64
	HardEvictions    uint64
	ExpiredKeys      uint64
	GarbageCollected uint64
	GarbageChecked   uint64
	StashUnloaded    uint64
	Bumpups          uint64
}

// Add accumulates another event block.
func (e *SliceEvents) Add(o SliceEvents) {
	e.EvictedKeys += o.EvictedKeys
	e.HardEvictions += o.HardEvictions
	e.ExpiredKeys += o.ExpiredKeys
	e.GarbageCollected += o.GarbageCollected
	e.GarbageChecked += o.GarbageChecked
	e.StashUnloaded += o.StashUnloaded
	e.Bumpups += o.Bumpups
}

// Stats is the full statistics snapshot of a slice.
type Stats struct {
	DbStats []DbStats
	Events  SliceEvents
}

// --------------------------------------------------------------------------
// Prometheus counters
// --------------------------------------------------------------------------

// eventMetrics mirrors the eviction, expiry, garbage-collection and bump-up
// counts of SliceEvents into the process metrics registry so the serve
// command can export them. GarbageChecked and StashUnloaded are not exported.
type eventMetrics struct {
	evictedKeys      *metrics.Counter
	hardEvictions    *metrics.Counter
	expiredKeys      *metrics.Counter
	garbageCollected *metrics.Counter
	bumpups          *metrics.Counter
}

func newEventMetrics(shardID uint32) *eventMetrics {
	c := func(name string) *metrics.Counter {
		return metrics.GetOrCreateCounter(fmt.Sprintf(`ember_slice_%s_total{shard="%d"}`, name, shardID))
	}
	return &eventMetrics{
		evictedKeys:      c("evicted_keys"),
		hardEvictions:    c("hard_evictions"),
		expiredKeys:      c("expired_keys"),
		garbageCollected: c("garbage_collected"),
		bumpups:          c("bumpups"),
	}
}
