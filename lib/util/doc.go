// Package util provides the low-level building blocks shared by the engine
// packages:
//   - TaskQueue: a bounded multi-producer single-consumer queue used as the
//     per-shard task mailbox
//   - SizeHistogram: a power-of-two bucket histogram at the engine's
//     16-byte accounting granularity, used for the per-shard
//     bytes-per-object estimate
package util
