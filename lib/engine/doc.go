// Package engine implements the shard runtime: the fixed set of engine
// shards, the per-shard transaction queue, and the execution poll that
// orders transactions.
//
// Each shard owns exactly one goroutine locked to an OS thread. All state a
// shard holds (its DbSlice, transaction queue, blocking controller and
// tiered-storage backend) is touched only from that goroutine; cross-shard
// work is posted as tasks to the target shard's mailbox and awaited from
// the caller. The only legal suspension points inside shard work are
// explicit awaits of other shards; data-structure operations never suspend.
//
// A heartbeat tick runs on every shard at the configured frequency. It
// advances the shard's millisecond clock (the single time source all expiry
// comparisons share), periodically refreshes the cached memory statistics
// and the per-shard budget, steps the adaptive TTL reaper, and triggers
// eviction when free memory falls under the redline in caching mode.
//
// Transactions reach a shard by arming a callback and invoking
// PollExecution. The poll runs the queue head in strict txid order,
// advancing the committed txid before each run, keeps multi-hop
// transactions installed as the shard's continuation, and eagerly runs
// transactions whose keys the coordinator vouched to be lock-compatible
// with everything queued ahead (the out-of-order path).
package engine
