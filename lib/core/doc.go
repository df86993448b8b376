// Package core implements the compact key and value objects stored in the
// prime table.
//
// A CompactKey is a byte string with two attached flags: sticky (exempt from
// eviction) and has-expire (a matching entry exists in the expire table).
// Short keys are considered inline: they live inside the table slot and do
// not count towards heap accounting. A small interned pool deduplicates
// frequently used short key strings.
//
// A CompactValue is a tagged union over the six supported logical types
// (string, list, set, sorted set, hash, stream). Strings are raw or integer;
// small lists and hashes use a packed flat representation and switch to
// unpacked containers when they grow; small all-integer sets use an intset.
// Sorted sets and streams have a single encoding.
// A value may also be external, in which case it holds only an
// (offset, size) reference into the tiered-storage backing file.
package core
