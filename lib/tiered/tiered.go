// Package tiered implements the per-shard tiered-storage backend. A shard
// opens one backing file (<prefix>-<shard:%04d>.ssd) and offloads large
// string values into it; the in-memory entry then holds only an
// (offset, size) reference. The slice frees the blob through Free before
// overwriting an externalized value.
//
// Promotion and demotion policy live with the command layer; this package
// only manages the backing file and its page allocator. Like every other
// shard structure, a Storage instance is owned by one shard thread.
package tiered

import (
	"fmt"
	"os"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("tiered")

// PageSize is the allocation granularity of the backing file.
const PageSize = 4096

// BackingPath renders the per-shard backing file path for a prefix.
func BackingPath(prefix string, shardID uint32) string {
	return fmt.Sprintf("%s-%04d.ssd", prefix, shardID)
}

// Storage is the backing file of one shard.
type Storage struct {
	f        *os.File
	path     string
	numPages int64

	// freePages is a simple free list of page indices; allocation grows the
	// file when the list is empty.
	freePages []int64

	allocated int64
}

// Open creates or opens the backing file.
func Open(path string) (*Storage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	log.Infof("opened backing file %s", path)
	return &Storage{f: f, path: path}, nil
}

// pagesFor returns the number of pages covering size bytes.
func pagesFor(size uint32) int64 {
	return int64((size + PageSize - 1) / PageSize)
}

// Reserve allocates room for a blob of the given size and returns its file
// offset. Multi-page blobs are laid out contiguously at the file tail;
// single pages reuse the free list.
func (s *Storage) Reserve(size uint32) (uint64, error) {
	pages := pagesFor(size)

	if pages == 1 && len(s.freePages) > 0 {
		page := s.freePages[len(s.freePages)-1]
		s.freePages = s.freePages[:len(s.freePages)-1]
		s.allocated += int64(size)
		return uint64(page * PageSize), nil
	}

	offset := s.numPages * PageSize
	s.numPages += pages
	s.allocated += int64(size)
	return uint64(offset), nil
}

// Write stores a blob at a reserved offset.
func (s *Storage) Write(offset uint64, blob []byte) error {
	_, err := s.f.WriteAt(blob, int64(offset))
	return err
}

// Read loads size bytes from offset.
func (s *Storage) Read(offset uint64, size uint32) ([]byte, error) {
	buf := make([]byte, size)
	_, err := s.f.ReadAt(buf, int64(offset))
	return buf, err
}

// Free returns the pages of a blob to the allocator. The db index is
// carried for accounting symmetry with the slice's stats.
func (s *Storage) Free(db uint16, offset uint64, size uint32) {
	pages := pagesFor(size)
	first := int64(offset) / PageSize
	for i := int64(0); i < pages; i++ {
		s.freePages = append(s.freePages, first+i)
	}
	s.allocated -= int64(size)
	if s.allocated < 0 {
		log.Panicf("tiered: double free of %d bytes at offset %d (db %d)", size, offset, db)
	}
}

// Allocated returns the bytes currently referenced by external values.
func (s *Storage) Allocated() int64 {
	return s.allocated
}

// Shutdown closes and removes the backing file.
func (s *Storage) Shutdown() error {
	if err := s.f.Close(); err != nil {
		return err
	}
	return os.Remove(s.path)
}
