package core

import "sync"

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// inlineKeyLimit is the maximum key length that is stored inline in the
	// table slot. Inline keys contribute nothing to heap accounting.
	inlineKeyLimit = 26

	// internLimit is the maximum length of keys eligible for interning.
	internLimit = 12

	// internPoolMax bounds the interned pool size.
	internPoolMax = 4096
)

const (
	flagSticky uint8 = 1 << iota
	flagHasExpire
)

// --------------------------------------------------------------------------
// Interned pool for short strings
// --------------------------------------------------------------------------

var internPool = struct {
	sync.Mutex
	m map[string]string
}{m: make(map[string]string, 256)}

// intern returns a canonical instance of short strings so that repeated keys
// share storage. The pool is bounded; once full, strings pass through.
func intern(s string) string {
	internPool.Lock()
	defer internPool.Unlock()

	if canonical, ok := internPool.m[s]; ok {
		return canonical
	}
	if len(internPool.m) < internPoolMax {
		internPool.m[s] = s
	}
	return s
}

// --------------------------------------------------------------------------
// CompactKey
// --------------------------------------------------------------------------

// CompactKey is the key representation stored in table slots.
type CompactKey struct {
	data  string
	flags uint8
}

// NewKey creates a key from a string.
func NewKey(s string) CompactKey {
	if len(s) <= internLimit {
		s = intern(s)
	}
	return CompactKey{data: s}
}

// String returns the key bytes as a string.
func (k CompactKey) String() string {
	return k.data
}

// Len returns the key length in bytes.
func (k CompactKey) Len() int {
	return len(k.data)
}

// Equal reports whether two keys hold the same bytes.
func (k CompactKey) Equal(o CompactKey) bool {
	return k.data == o.data
}

// IsInline reports whether the key is stored inline in the slot.
func (k CompactKey) IsInline() bool {
	return len(k.data) <= inlineKeyLimit
}

// MallocUsed returns the heap bytes attributed to the key.
func (k CompactKey) MallocUsed() int64 {
	if k.IsInline() {
		return 0
	}
	return roundUp16(int64(len(k.data)))
}

// IsSticky reports whether the key is exempt from eviction.
func (k CompactKey) IsSticky() bool {
	return k.flags&flagSticky != 0
}

// SetSticky sets or clears the sticky flag.
func (k *CompactKey) SetSticky(v bool) {
	if v {
		k.flags |= flagSticky
	} else {
		k.flags &^= flagSticky
	}
}

// HasExpire reports whether an expire-table entry exists for this key.
func (k CompactKey) HasExpire() bool {
	return k.flags&flagHasExpire != 0
}

// SetHasExpire sets or clears the has-expire flag.
func (k *CompactKey) SetHasExpire(v bool) {
	if v {
		k.flags |= flagHasExpire
	} else {
		k.flags &^= flagHasExpire
	}
}

// roundUp16 rounds a byte count up to the allocator granularity.
func roundUp16(n int64) int64 {
	return (n + 15) &^ 15
}
