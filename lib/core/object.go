package core

import (
	"encoding/binary"
	"sort"
	"strconv"
)

// --------------------------------------------------------------------------
// Object types and encodings
// --------------------------------------------------------------------------

// ObjType is the logical type of a value.
type ObjType uint8

const (
	TypeString ObjType = iota
	TypeList
	TypeSet
	TypeZSet
	TypeHash
	TypeStream
)

// ObjTypeName returns the user-facing name of a type.
func ObjTypeName(t ObjType) string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeZSet:
		return "zset"
	case TypeHash:
		return "hash"
	case TypeStream:
		return "stream"
	}
	return "invalid"
}

// Encoding is the physical encoding of a value.
type Encoding uint8

const (
	EncRaw      Encoding = iota // string: raw bytes
	EncInt                      // string: 64-bit integer
	EncPacked                   // list/hash: flat packed blob
	EncUnpacked                 // list/hash/zset: unpacked container
	EncIntSet                   // set: sorted int64 slice
	EncHashSet                  // set: hash container
	EncStream                   // stream: entry slice
	EncExternal                 // string: tiered-storage reference
)

// Packed-encoding limits. A collection that exceeds either limit is
// converted to its unpacked encoding.
const (
	maxPackedElems    = 128
	maxPackedElemSize = 64
)

// --------------------------------------------------------------------------
// Auxiliary types
// --------------------------------------------------------------------------

// ExternalPtr references a blob in the tiered-storage backing file.
type ExternalPtr struct {
	Offset uint64
	Size   uint32
}

// ZSetEntry is a single member of a sorted set.
type ZSetEntry struct {
	Member string
	Score  float64
}

// StreamID identifies a stream entry.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

// Less orders stream ids lexicographically by (ms, seq).
func (id StreamID) Less(o StreamID) bool {
	if id.Ms != o.Ms {
		return id.Ms < o.Ms
	}
	return id.Seq < o.Seq
}

// StreamEntry is a single stream record: an id plus field-value pairs.
type StreamEntry struct {
	ID     StreamID
	Fields [][]byte
}

// --------------------------------------------------------------------------
// CompactValue
// --------------------------------------------------------------------------

// CompactValue is a tagged union over the six supported logical types.
// The zero value is an empty raw string.
type CompactValue struct {
	typ ObjType
	enc Encoding

	ival   int64
	raw    []byte
	packed []byte // flat blob: uvarint-length-prefixed elements
	pcount int    // element count inside packed

	list   [][]byte
	ints   []int64
	set    map[string]struct{}
	hmap   map[string][]byte
	zset   map[string]float64
	stream []StreamEntry

	external *ExternalPtr
}

// ObjType returns the logical type.
func (v *CompactValue) ObjType() ObjType {
	return v.typ
}

// Encoding returns the physical encoding.
func (v *CompactValue) Encoding() Encoding {
	return v.enc
}

// Reset clears the value back to an empty raw string, releasing payloads.
func (v *CompactValue) Reset() {
	*v = CompactValue{}
}

// IsEmpty reports whether the value holds no payload at all.
func (v *CompactValue) IsEmpty() bool {
	return v.typ == TypeString && v.enc == EncRaw && len(v.raw) == 0 && v.external == nil
}

// MallocUsed returns the heap bytes attributed to the value payload.
// External values account only for the reference itself.
func (v *CompactValue) MallocUsed() int64 {
	switch v.enc {
	case EncInt:
		return 0
	case EncExternal:
		return 16
	case EncRaw:
		return roundUp16(int64(cap(v.raw)))
	case EncPacked:
		return roundUp16(int64(cap(v.packed)))
	case EncIntSet:
		return roundUp16(int64(cap(v.ints) * 8))
	}

	var n int64
	switch v.typ {
	case TypeList:
		for _, e := range v.list {
			n += roundUp16(int64(cap(e)))
		}
		n += int64(cap(v.list)) * 24
	case TypeSet:
		for m := range v.set {
			n += roundUp16(int64(len(m))) + 48
		}
	case TypeHash:
		for f, val := range v.hmap {
			n += roundUp16(int64(len(f))) + roundUp16(int64(cap(val))) + 48
		}
	case TypeZSet:
		for m := range v.zset {
			n += roundUp16(int64(len(m))) + 56
		}
	case TypeStream:
		for _, e := range v.stream {
			n += 16
			for _, f := range e.Fields {
				n += roundUp16(int64(cap(f)))
			}
		}
	}
	return n
}

// --------------------------------------------------------------------------
// String operations
// --------------------------------------------------------------------------

// NewStringValue creates a string value, choosing the integer encoding when
// the payload is a canonical base-10 integer.
func NewStringValue(data []byte) *CompactValue {
	v := &CompactValue{typ: TypeString}
	v.SetString(data)
	return v
}

// SetString replaces the payload with a string value.
func (v *CompactValue) SetString(data []byte) {
	v.Reset()
	v.typ = TypeString

	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil && len(data) > 0 {
		// reject non-canonical forms such as "007"
		if strconv.FormatInt(n, 10) == string(data) {
			v.enc = EncInt
			v.ival = n
			return
		}
	}

	v.enc = EncRaw
	v.raw = append([]byte(nil), data...)
}

// StringData returns the string payload. Calling it on an external value or
// a non-string type returns nil.
func (v *CompactValue) StringData() []byte {
	switch v.enc {
	case EncInt:
		return strconv.AppendInt(nil, v.ival, 10)
	case EncRaw:
		return v.raw
	}
	return nil
}

// --------------------------------------------------------------------------
// External (tiered) references
// --------------------------------------------------------------------------

// IsExternal reports whether the value payload lives in tiered storage.
func (v *CompactValue) IsExternal() bool {
	return v.enc == EncExternal
}

// SetExternal replaces the payload with a tiered-storage reference.
func (v *CompactValue) SetExternal(offset uint64, size uint32) {
	v.Reset()
	v.typ = TypeString
	v.enc = EncExternal
	v.external = &ExternalPtr{Offset: offset, Size: size}
}

// GetExternalPtr returns the tiered-storage reference.
func (v *CompactValue) GetExternalPtr() ExternalPtr {
	return *v.external
}

// --------------------------------------------------------------------------
// Packed blob helpers
// --------------------------------------------------------------------------

func packAppend(blob []byte, elem []byte) []byte {
	var lenbuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenbuf[:], uint64(len(elem)))
	blob = append(blob, lenbuf[:n]...)
	return append(blob, elem...)
}

func packForEach(blob []byte, fn func(elem []byte) bool) {
	for len(blob) > 0 {
		l, n := binary.Uvarint(blob)
		blob = blob[n:]
		if !fn(blob[:l]) {
			return
		}
		blob = blob[l:]
	}
}

// --------------------------------------------------------------------------
// List operations
// --------------------------------------------------------------------------

// NewListValue creates an empty list with the packed encoding.
func NewListValue() *CompactValue {
	return &CompactValue{typ: TypeList, enc: EncPacked}
}

// ListAppend appends an element to the tail of the list.
func (v *CompactValue) ListAppend(elem []byte) {
	if v.enc == EncPacked {
		if v.pcount+1 > maxPackedElems || len(elem) > maxPackedElemSize {
			v.listUnpack()
		} else {
			v.packed = packAppend(v.packed, elem)
			v.pcount++
			return
		}
	}
	v.list = append(v.list, append([]byte(nil), elem...))
}

// listUnpack converts a packed list to the unpacked encoding.
func (v *CompactValue) listUnpack() {
	list := make([][]byte, 0, v.pcount+1)
	packForEach(v.packed, func(elem []byte) bool {
		list = append(list, append([]byte(nil), elem...))
		return true
	})
	v.packed = nil
	v.pcount = 0
	v.list = list
	v.enc = EncUnpacked
}

// ListLen returns the number of elements in the list.
func (v *CompactValue) ListLen() int {
	if v.enc == EncPacked {
		return v.pcount
	}
	return len(v.list)
}

// ListElems returns all list elements in order.
func (v *CompactValue) ListElems() [][]byte {
	if v.enc != EncPacked {
		return v.list
	}
	out := make([][]byte, 0, v.pcount)
	packForEach(v.packed, func(elem []byte) bool {
		out = append(out, append([]byte(nil), elem...))
		return true
	})
	return out
}

// --------------------------------------------------------------------------
// Set operations
// --------------------------------------------------------------------------

// NewSetValue creates an empty set with the intset encoding.
func NewSetValue() *CompactValue {
	return &CompactValue{typ: TypeSet, enc: EncIntSet}
}

// SetAdd adds a member; returns true if the member was new.
func (v *CompactValue) SetAdd(member string) bool {
	if v.enc == EncIntSet {
		if n, err := strconv.ParseInt(member, 10, 64); err == nil && len(v.ints) < maxPackedElems {
			i := sort.Search(len(v.ints), func(i int) bool { return v.ints[i] >= n })
			if i < len(v.ints) && v.ints[i] == n {
				return false
			}
			v.ints = append(v.ints, 0)
			copy(v.ints[i+1:], v.ints[i:])
			v.ints[i] = n
			return true
		}
		v.setUnpack()
	}
	if _, ok := v.set[member]; ok {
		return false
	}
	v.set[member] = struct{}{}
	return true
}

// setUnpack converts an intset to the hash-set encoding.
func (v *CompactValue) setUnpack() {
	set := make(map[string]struct{}, len(v.ints)+1)
	for _, n := range v.ints {
		set[strconv.FormatInt(n, 10)] = struct{}{}
	}
	v.ints = nil
	v.set = set
	v.enc = EncHashSet
}

// SetContains reports membership.
func (v *CompactValue) SetContains(member string) bool {
	if v.enc == EncIntSet {
		n, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return false
		}
		i := sort.Search(len(v.ints), func(i int) bool { return v.ints[i] >= n })
		return i < len(v.ints) && v.ints[i] == n
	}
	_, ok := v.set[member]
	return ok
}

// SetLen returns the set cardinality.
func (v *CompactValue) SetLen() int {
	if v.enc == EncIntSet {
		return len(v.ints)
	}
	return len(v.set)
}

// --------------------------------------------------------------------------
// Hash operations
// --------------------------------------------------------------------------

// NewHashValue creates an empty hash with the packed encoding.
func NewHashValue() *CompactValue {
	return &CompactValue{typ: TypeHash, enc: EncPacked}
}

// HashSet stores a field; returns true if the field was new.
func (v *CompactValue) HashSet(field string, val []byte) bool {
	if v.enc == EncPacked {
		if v.pcount/2+1 > maxPackedElems ||
			len(field) > maxPackedElemSize || len(val) > maxPackedElemSize {
			v.hashUnpack()
		} else {
			// packed layout alternates field, value
			if _, found := v.packedHashGet(field); found {
				v.hashUnpack()
			} else {
				v.packed = packAppend(v.packed, []byte(field))
				v.packed = packAppend(v.packed, val)
				v.pcount += 2
				return true
			}
		}
	}
	_, existed := v.hmap[field]
	v.hmap[field] = append([]byte(nil), val...)
	return !existed
}

func (v *CompactValue) packedHashGet(field string) ([]byte, bool) {
	var (
		out   []byte
		found bool
		isKey = true
		match bool
	)
	packForEach(v.packed, func(elem []byte) bool {
		if isKey {
			match = string(elem) == field
		} else if match {
			out = append([]byte(nil), elem...)
			found = true
			return false
		}
		isKey = !isKey
		return true
	})
	return out, found
}

// hashUnpack converts a packed hash to the map encoding.
func (v *CompactValue) hashUnpack() {
	hmap := make(map[string][]byte, v.pcount/2+1)
	var field string
	isKey := true
	packForEach(v.packed, func(elem []byte) bool {
		if isKey {
			field = string(elem)
		} else {
			hmap[field] = append([]byte(nil), elem...)
		}
		isKey = !isKey
		return true
	})
	v.packed = nil
	v.pcount = 0
	v.hmap = hmap
	v.enc = EncUnpacked
}

// HashGet returns the value of a field.
func (v *CompactValue) HashGet(field string) ([]byte, bool) {
	if v.enc == EncPacked {
		return v.packedHashGet(field)
	}
	val, ok := v.hmap[field]
	return val, ok
}

// HashLen returns the number of fields.
func (v *CompactValue) HashLen() int {
	if v.enc == EncPacked {
		return v.pcount / 2
	}
	return len(v.hmap)
}

// --------------------------------------------------------------------------
// Sorted-set operations
// --------------------------------------------------------------------------

// NewZSetValue creates an empty sorted set.
func NewZSetValue() *CompactValue {
	return &CompactValue{typ: TypeZSet, enc: EncUnpacked, zset: make(map[string]float64)}
}

// ZAdd stores a member with a score; returns true if the member was new.
func (v *CompactValue) ZAdd(score float64, member string) bool {
	_, existed := v.zset[member]
	v.zset[member] = score
	return !existed
}

// ZScore returns the score of a member.
func (v *CompactValue) ZScore(member string) (float64, bool) {
	s, ok := v.zset[member]
	return s, ok
}

// ZLen returns the sorted-set cardinality.
func (v *CompactValue) ZLen() int {
	return len(v.zset)
}

// ZRangeByRank returns members ordered by (score, member).
func (v *CompactValue) ZRangeByRank() []ZSetEntry {
	out := make([]ZSetEntry, 0, len(v.zset))
	for m, s := range v.zset {
		out = append(out, ZSetEntry{Member: m, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

// --------------------------------------------------------------------------
// Stream operations
// --------------------------------------------------------------------------

// NewStreamValue creates an empty stream.
func NewStreamValue() *CompactValue {
	return &CompactValue{typ: TypeStream, enc: EncStream}
}

// StreamAdd appends an entry. The id must be greater than the last id.
func (v *CompactValue) StreamAdd(id StreamID, fields [][]byte) bool {
	if n := len(v.stream); n > 0 && !v.stream[n-1].ID.Less(id) {
		return false
	}
	cp := make([][]byte, len(fields))
	for i, f := range fields {
		cp[i] = append([]byte(nil), f...)
	}
	v.stream = append(v.stream, StreamEntry{ID: id, Fields: cp})
	return true
}

// StreamLen returns the number of entries.
func (v *CompactValue) StreamLen() int {
	return len(v.stream)
}

// StreamEntries returns all entries in id order.
func (v *CompactValue) StreamEntries() []StreamEntry {
	return v.stream
}
