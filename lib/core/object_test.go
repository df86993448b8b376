package core

import (
	"bytes"
	"fmt"
	"testing"
)

// TestKeyFlags verifies the sticky and has-expire flag transitions
func TestKeyFlags(t *testing.T) {
	k := NewKey("flag-key")

	if k.IsSticky() || k.HasExpire() {
		t.Error("New key should carry no flags")
	}

	k.SetSticky(true)
	k.SetHasExpire(true)
	if !k.IsSticky() || !k.HasExpire() {
		t.Error("Flags should be set")
	}

	k.SetSticky(false)
	if k.IsSticky() || !k.HasExpire() {
		t.Error("Clearing sticky should not touch has-expire")
	}
}

// TestKeyInline verifies inline keys are exempt from heap accounting
func TestKeyInline(t *testing.T) {
	short := NewKey("short")
	if !short.IsInline() || short.MallocUsed() != 0 {
		t.Error("Short key should be inline with zero heap usage")
	}

	long := NewKey("a-rather-long-key-that-does-not-fit-inline")
	if long.IsInline() {
		t.Error("Long key should not be inline")
	}
	if long.MallocUsed() <= 0 {
		t.Error("Long key should account heap bytes")
	}
}

// TestStringEncodings verifies the raw/int encoding selection
func TestStringEncodings(t *testing.T) {
	v := NewStringValue([]byte("12345"))
	if v.Encoding() != EncInt {
		t.Errorf("Canonical integer should use EncInt, got %v", v.Encoding())
	}
	if !bytes.Equal(v.StringData(), []byte("12345")) {
		t.Errorf("Round trip failed: %q", v.StringData())
	}
	if v.MallocUsed() != 0 {
		t.Error("Integer encoding should have no heap payload")
	}

	v = NewStringValue([]byte("007"))
	if v.Encoding() != EncRaw {
		t.Error("Non-canonical integer should stay raw")
	}

	v = NewStringValue([]byte("hello"))
	if v.Encoding() != EncRaw || !bytes.Equal(v.StringData(), []byte("hello")) {
		t.Error("Raw string round trip failed")
	}
}

// TestListPackedConversion verifies the packed list converts when limits are hit
func TestListPackedConversion(t *testing.T) {
	v := NewListValue()
	if v.Encoding() != EncPacked {
		t.Fatal("New list should start packed")
	}

	for i := 0; i < 10; i++ {
		v.ListAppend([]byte(fmt.Sprintf("elem-%d", i)))
	}
	if v.Encoding() != EncPacked {
		t.Error("Small list should stay packed")
	}
	if v.ListLen() != 10 {
		t.Errorf("Expected 10 elements, got %d", v.ListLen())
	}

	// a large element forces the unpacked encoding
	v.ListAppend(make([]byte, 100))
	if v.Encoding() != EncUnpacked {
		t.Error("Large element should unpack the list")
	}
	if v.ListLen() != 11 {
		t.Errorf("Expected 11 elements after conversion, got %d", v.ListLen())
	}

	elems := v.ListElems()
	if string(elems[3]) != "elem-3" {
		t.Errorf("Element order lost in conversion: %q", elems[3])
	}
}

// TestSetIntsetConversion verifies intset upgrade on non-integer members
func TestSetIntsetConversion(t *testing.T) {
	v := NewSetValue()

	for i := 0; i < 50; i++ {
		if !v.SetAdd(fmt.Sprintf("%d", i)) {
			t.Fatalf("Member %d should be new", i)
		}
	}
	if v.Encoding() != EncIntSet {
		t.Error("Integer members should keep the intset encoding")
	}
	if v.SetAdd("7") {
		t.Error("Duplicate member reported as new")
	}

	if !v.SetAdd("not-a-number") {
		t.Fatal("New member rejected")
	}
	if v.Encoding() != EncHashSet {
		t.Error("Non-integer member should upgrade the encoding")
	}
	if !v.SetContains("42") || !v.SetContains("not-a-number") {
		t.Error("Members lost in conversion")
	}
	if v.SetLen() != 51 {
		t.Errorf("Expected 51 members, got %d", v.SetLen())
	}
}

// TestHashOperations verifies packed hash round trips and conversion
func TestHashOperations(t *testing.T) {
	v := NewHashValue()

	if !v.HashSet("field1", []byte("a")) {
		t.Error("New field reported as existing")
	}
	v.HashSet("field2", []byte("b"))

	if val, ok := v.HashGet("field1"); !ok || string(val) != "a" {
		t.Errorf("HashGet(field1) = %q, %v", val, ok)
	}
	if v.HashLen() != 2 {
		t.Errorf("Expected 2 fields, got %d", v.HashLen())
	}

	// rewriting an existing field forces the map encoding
	v.HashSet("field1", []byte("c"))
	if v.Encoding() != EncUnpacked {
		t.Error("Field overwrite should unpack the hash")
	}
	if val, _ := v.HashGet("field1"); string(val) != "c" {
		t.Errorf("Overwrite lost: %q", val)
	}
	if v.HashLen() != 2 {
		t.Errorf("Expected 2 fields after overwrite, got %d", v.HashLen())
	}
}

// TestZSetOrdering verifies rank ordering by (score, member)
func TestZSetOrdering(t *testing.T) {
	v := NewZSetValue()
	v.ZAdd(2.0, "b")
	v.ZAdd(1.0, "c")
	v.ZAdd(2.0, "a")

	ranked := v.ZRangeByRank()
	want := []string{"c", "a", "b"}
	for i, e := range ranked {
		if e.Member != want[i] {
			t.Errorf("Rank %d: expected %s, got %s", i, want[i], e.Member)
		}
	}

	if s, ok := v.ZScore("a"); !ok || s != 2.0 {
		t.Errorf("ZScore(a) = %v, %v", s, ok)
	}
}

// TestStreamIDOrdering verifies id monotonicity of stream appends
func TestStreamIDOrdering(t *testing.T) {
	v := NewStreamValue()

	if !v.StreamAdd(StreamID{Ms: 1, Seq: 0}, [][]byte{[]byte("f"), []byte("v")}) {
		t.Fatal("First append rejected")
	}
	if v.StreamAdd(StreamID{Ms: 1, Seq: 0}, nil) {
		t.Error("Duplicate id accepted")
	}
	if !v.StreamAdd(StreamID{Ms: 1, Seq: 1}, nil) {
		t.Error("Increasing id rejected")
	}
	if v.StreamLen() != 2 {
		t.Errorf("Expected 2 entries, got %d", v.StreamLen())
	}
}

// TestExternalValue verifies the external reference footprint
func TestExternalValue(t *testing.T) {
	v := NewStringValue([]byte("payload-to-offload"))
	v.SetExternal(4096, 18)

	if !v.IsExternal() {
		t.Fatal("Value should be external")
	}
	ptr := v.GetExternalPtr()
	if ptr.Offset != 4096 || ptr.Size != 18 {
		t.Errorf("Unexpected external ptr: %+v", ptr)
	}
	if v.MallocUsed() != 16 {
		t.Errorf("External value should account only the reference, got %d", v.MallocUsed())
	}

	v.Reset()
	if v.IsExternal() || !v.IsEmpty() {
		t.Error("Reset should clear the external state")
	}
}
