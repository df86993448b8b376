// Package table implements the segmented open-addressed hash table backing
// the prime, expire and mcflag tables of a shard.
//
// Layout: the table is an extendible-hash directory of fixed-size segments.
// Each segment holds 60 regular buckets plus 4 stash buckets that absorb
// overflow, 4 slots per bucket. A key probes its home bucket, the
// neighboring probe bucket and finally the stash buckets. When all probed
// buckets are full the insertion presents the probed set (the hotspot
// buckets) to an eviction policy which may garbage-collect expired slots or
// evict stashed ones; only if the policy permits growth does the segment
// split.
//
// Iterators are borrowings with shard-thread affinity: they stay valid until
// the next mutation that can split their segment, after which they must be
// re-found. Traversal returns an opaque resumable cursor and visits each
// bucket atomically with respect to the callback.
//
// The table is not thread-safe; every instance is owned by exactly one
// shard and never touched off-shard.
package table
