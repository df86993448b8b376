package tiered

import (
	"bytes"
	"path/filepath"
	"testing"
)

// TestBlobRoundTrip verifies reserve/write/read/free on the backing file
func TestBlobRoundTrip(t *testing.T) {
	path := BackingPath(filepath.Join(t.TempDir(), "tiered"), 0)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Shutdown()

	blob := []byte("an offloaded string value")
	off, err := s.Reserve(uint32(len(blob)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := s.Write(off, blob); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Read(off, uint32(len(blob)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("Read = %q", got)
	}

	if s.Allocated() != int64(len(blob)) {
		t.Errorf("Allocated = %d", s.Allocated())
	}

	s.Free(0, off, uint32(len(blob)))
	if s.Allocated() != 0 {
		t.Errorf("Allocated after free = %d", s.Allocated())
	}
}

// TestPageReuse verifies freed single pages are reused
func TestPageReuse(t *testing.T) {
	path := BackingPath(filepath.Join(t.TempDir(), "tiered"), 1)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Shutdown()

	off1, _ := s.Reserve(100)
	s.Free(0, off1, 100)

	off2, _ := s.Reserve(50)
	if off1 != off2 {
		t.Errorf("Freed page not reused: %d vs %d", off1, off2)
	}
}

// TestBackingPathFormat verifies the path template
func TestBackingPathFormat(t *testing.T) {
	if got := BackingPath("/tmp/ember", 7); got != "/tmp/ember-0007.ssd" {
		t.Errorf("BackingPath = %s", got)
	}
}

// TestMultiPageLayout verifies multi-page blobs do not overlap
func TestMultiPageLayout(t *testing.T) {
	path := BackingPath(filepath.Join(t.TempDir(), "tiered"), 2)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Shutdown()

	off1, _ := s.Reserve(PageSize + 1) // two pages
	off2, _ := s.Reserve(10)

	if off2 < off1+2*PageSize {
		t.Errorf("Blobs overlap: %d and %d", off1, off2)
	}
}
