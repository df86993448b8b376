// Package slice implements DbSlice, the per-shard data surface of the
// engine. Every command-level read or mutation of per-database state goes
// through a DbSlice; all of its operations execute on the owning shard's
// thread and are single-threaded by contract.
//
// A DbSlice owns, per database index:
//   - the prime table (key to value)
//   - the expire table (key to millisecond delta against the expire base)
//   - the mcflag side table (32-bit memcached flags)
//   - the intent-lock table
//   - the watched-key registry used by optimistic-execution sessions
//
// and, per slice: the ordered change-callback list consumed by snapshot and
// replication producers, the shard-local memory budget, and the slice event
// counters.
//
// Eviction and TTL garbage collection live here as well: the insertion-time
// eviction policy (GC pass plus stash eviction), the pressure eviction that
// frees memory from the segment that absorbed an insert, and the clock
// driven expiry reaper stepped by the shard heartbeat.
package slice
