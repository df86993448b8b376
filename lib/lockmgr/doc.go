// Package lockmgr implements the intent locks that order transactional
// access to keys within a shard.
//
// An intent lock is associated with a key string, not with a table entry:
// a lock record can exist for a key that has no prime-table entry and vice
// versa. A record counts acquisitions per mode with the classic
// compatibility matrix: any number of SHARED holders coexist, EXCLUSIVE is
// incompatible with everything.
//
// Acquire never blocks. It registers the intent unconditionally and returns
// whether the request is immediately granted; a false return means the
// caller must suspend until the conflicting holders release. Release
// decrements the matching counter, and the owning table erases the record
// once both counters reach zero.
//
// All operations run on the owning shard's thread; the package itself does
// no synchronization.
package lockmgr
