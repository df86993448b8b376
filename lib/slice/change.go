package slice

import "sync/atomic"

// --------------------------------------------------------------------------
// Change callbacks
// --------------------------------------------------------------------------

// ChangeReq describes an upcoming mutation to change subscribers. It is
// either the name of a brand-new key or a pre-image iterator of an existing
// entry. Callbacks fire on the shard's thread, before the structural change.
type ChangeReq struct {
	key   string
	it    PrimeIterator
	hasIt bool
}

// NewKeyReq builds a request announcing a new key.
func NewKeyReq(key string) ChangeReq {
	return ChangeReq{key: key}
}

// PreImageReq builds a request carrying the pre-image of an existing entry.
func PreImageReq(it PrimeIterator) ChangeReq {
	return ChangeReq{it: it, hasIt: true}
}

// IsNewKey reports whether the request announces a new key.
func (r ChangeReq) IsNewKey() bool {
	return !r.hasIt
}

// Key returns the new key's name.
func (r ChangeReq) Key() string {
	return r.key
}

// Iterator returns the pre-image iterator of an existing entry.
func (r ChangeReq) Iterator() PrimeIterator {
	return r.it
}

// ChangeCallback observes mutations of a slice. Callbacks registered with a
// version v observe all mutations stamped with a version >= v.
type ChangeCallback func(db DbIndex, req ChangeReq)

type changeCBPair struct {
	version uint64
	cb      ChangeCallback
}

// --------------------------------------------------------------------------
// Watched keys
// --------------------------------------------------------------------------

// ExecInfo is the optimistic-execution state of one client session. The
// client owns the strong reference; slices hold weak back-references in
// their watched-key registries and only ever flip the dirty flag through
// them.
type ExecInfo struct {
	dirty atomic.Bool

	// watched remembers the registrations so UnregisterConnectionWatches
	// can remove the back-references.
	watched []watchedKey
}

type watchedKey struct {
	db  DbIndex
	key string
}

// WatchedDirty reports whether any watched key was touched.
func (e *ExecInfo) WatchedDirty() bool {
	return e.dirty.Load()
}

// markDirty flags the session; release store so the owning client observes
// the flag from its own thread.
func (e *ExecInfo) markDirty() {
	e.dirty.Store(true)
}

// ClearWatched resets the session state after an exec round.
func (e *ExecInfo) ClearWatched() {
	e.dirty.Store(false)
	e.watched = e.watched[:0]
}
