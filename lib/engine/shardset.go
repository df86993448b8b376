package engine

import (
	"hash/maphash"
	"io"
	"runtime"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/emberdb/ember/lib/slice"
)

// Options configures a shard set.
type Options struct {
	// NumShards is the number of engine shards; 0 means one per CPU.
	NumShards int

	// CacheMode enables eviction on memory pressure and disables the
	// out-of-memory failure on insert.
	CacheMode bool

	// Hz is the heartbeat frequency.
	Hz int

	// MaxMemory is the process-wide budget, divided equally across shards.
	MaxMemory int64

	// BackingPrefix enables tiered storage when non-empty.
	BackingPrefix string
}

// DefaultOptions returns the default shard-set options.
func DefaultOptions() *Options {
	return &Options{
		NumShards: runtime.NumCPU(),
		Hz:        1000,
		MaxMemory: 8 << 30,
	}
}

// EngineShardSet is the fixed set of shards of one process. Keys are
// partitioned across shards by a stable seeded hash.
type EngineShardSet struct {
	opts   *Options
	seed   maphash.Seed
	shards []*EngineShard

	// usedMemCurrent aggregates the cached used-memory of all shards; it is
	// the only read-shared value between shards and feeds policy
	// calculations exclusively.
	usedMemCurrent *xsync.Counter

	// cachedUsed keeps the last published value per shard.
	cachedUsed *xsync.MapOf[uint32, int64]
}

// NewShardSet creates and starts the shards.
func NewShardSet(opts *Options) *EngineShardSet {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	set := &EngineShardSet{
		opts:           opts,
		seed:           maphash.MakeSeed(),
		usedMemCurrent: xsync.NewCounter(),
		cachedUsed:     xsync.NewMapOf[uint32, int64](),
	}

	set.shards = make([]*EngineShard, opts.NumShards)
	for i := range set.shards {
		set.shards[i] = newEngineShard(set, uint32(i))
	}

	log.Infof("started %d shards (cache mode: %v, hz: %d)", opts.NumShards, opts.CacheMode, opts.Hz)
	return set
}

// Size returns the number of shards.
func (s *EngineShardSet) Size() int {
	return len(s.shards)
}

// Shard returns the shard of an index.
func (s *EngineShardSet) Shard(sid uint32) *EngineShard {
	return s.shards[sid]
}

// ShardOf returns the shard owning a key.
func (s *EngineShardSet) ShardOf(key string) *EngineShard {
	return s.shards[maphash.String(s.seed, key)%uint64(len(s.shards))]
}

// Shutdown stops all shards.
func (s *EngineShardSet) Shutdown() {
	var wg sync.WaitGroup
	wg.Add(len(s.shards))
	for _, es := range s.shards {
		go func(es *EngineShard) {
			defer wg.Done()
			es.Shutdown()
		}(es)
	}
	wg.Wait()
}

// RunBriefInParallel runs fn on every shard's thread and waits for all.
func (s *EngineShardSet) RunBriefInParallel(fn func(es *EngineShard)) {
	var wg sync.WaitGroup
	wg.Add(len(s.shards))
	for _, es := range s.shards {
		es := es
		es.Add(func() {
			defer wg.Done()
			fn(es)
		})
	}
	wg.Wait()
}

// --------------------------------------------------------------------------
// Cross-shard cached stats
// --------------------------------------------------------------------------

// publishUsedMemory records a shard's used-memory delta.
func (s *EngineShardSet) publishUsedMemory(sid uint32, delta int64) {
	s.usedMemCurrent.Add(delta)

	prev, _ := s.cachedUsed.LoadOrStore(sid, int64(0))
	s.cachedUsed.Store(sid, prev+delta)
}

// UsedMemoryTotal returns the aggregated cached used-memory of all shards.
func (s *EngineShardSet) UsedMemoryTotal() int64 {
	return s.usedMemCurrent.Value()
}

// CachedUsedMemory returns the last published used-memory of one shard.
func (s *EngineShardSet) CachedUsedMemory(sid uint32) int64 {
	v, _ := s.cachedUsed.Load(sid)
	return v
}

// --------------------------------------------------------------------------
// Aggregated statistics
// --------------------------------------------------------------------------

// GetStats aggregates slice statistics and shard stats across all shards.
func (s *EngineShardSet) GetStats() (slice.Stats, Stats) {
	var (
		total  slice.Stats
		shards Stats
	)

	for _, es := range s.shards {
		es := es
		st := Await(es, func() slice.Stats {
			shardStats := es.GetStats()
			shards.Add(shardStats)
			return es.DbSlice().GetStats()
		})

		total.Events.Add(st.Events)
		for i, ds := range st.DbStats {
			for len(total.DbStats) <= i {
				total.DbStats = append(total.DbStats, slice.DbStats{})
			}
			total.DbStats[i].Add(ds)
		}
	}

	return total, shards
}

// WritePrometheus renders the process metrics registry.
func (s *EngineShardSet) WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
