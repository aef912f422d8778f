// Package cffile implements the cached, random-access file source
// component H: a façade over an *os.File that, once caching is
// enabled, routes reads through a pkg/cfblock block map instead of the
// OS page cache directly -- letting the fixed-size buffer budget (and
// therefore memory use) stay bounded regardless of how many files are
// open concurrently, which is the whole point of a streaming-media
// server having its own cache rather than trusting one shared OS page
// cache across every open stream.
//
// Grounded on original_source/CFCore/include/CF/FileSource.h's
// FileSource class: Set/Read/Advise/Seek/Close/IsValid/GetLength/
// GetModDate map directly onto this package's Set/Read/Advise/Seek/
// Close/IsValid/Length/ModTime.
package cffile

import (
	"io"
	"os"
	"time"

	"github.com/relaycore/cfcore/pkg/cfblock"
	"github.com/relaycore/cfcore/pkg/cfsync"
)

// diskFile is the subset of *os.File a Source needs. It exists so
// tests can substitute a read-counting fake to verify cache-hit/
// eviction behavior without instrumenting the real filesystem.
type diskFile interface {
	io.ReaderAt
	Close() error
}

// Source is a cached, random-access view of one on-disk file.
type Source struct {
	mu cfsync.Mutex

	file    diskFile
	path    string
	length  int64
	modTime time.Time

	position int64 // cursor used by Read

	cacheEnabled bool
	blockMap     *cfblock.Map
}

// New creates an unset Source. Call Set before using it.
func New() *Source { return &Source{} }

// Set opens path and points this Source at it, replacing anything it
// previously referenced. Any cache previously enabled is dropped; call
// EnableCache again afterward if needed.
func (s *Source) Set(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	s.setFile(f, path, info.Size(), info.ModTime())
	return nil
}

// setFile installs an already-opened diskFile, closing whatever this
// Source previously referenced. Split out of Set so tests can inject
// a fake diskFile in place of a real *os.File.
func (s *Source) setFile(f diskFile, path string, length int64, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
	}
	s.file = f
	s.path = path
	s.length = length
	s.modTime = modTime
	s.position = 0
	s.cacheEnabled = false
	s.blockMap = nil
}

// EnableCache turns on block caching for this Source with a private
// Pool, in place of the original's AllocateFileCache(unitSizeInK,
// ...). unitSize is in bytes; pass cfblock.DefaultUnitSizeBytes for
// the original's 32KiB default. Use EnableSharedCache instead when
// several Sources should draw from one buffer budget.
func (s *Source) EnableCache(unitSize int, maxBuffers, increment uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheEnabled = true
	s.blockMap = cfblock.NewMap(unitSize, s.length, maxBuffers, increment)
}

// EnableSharedCache turns on block caching for this Source against
// pool instead of a private one, so every Source sharing pool
// competes for and conserves the same buffer budget.
func (s *Source) EnableSharedCache(pool *cfblock.Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheEnabled = true
	s.blockMap = cfblock.NewMapWithPool(pool, s.length)
}

// CacheEnabled reports whether EnableCache has been called.
func (s *Source) CacheEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheEnabled
}

// IncMaxBuffers/DecMaxBuffers adjust the cache's buffer budget; no-ops
// if caching isn't enabled.
func (s *Source) IncMaxBuffers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blockMap != nil {
		s.blockMap.IncMaxBuffers()
	}
}

func (s *Source) DecMaxBuffers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blockMap != nil {
		s.blockMap.DecMaxBuffers()
	}
}

// IsValid reports whether Set has succeeded and Close has not since
// been called.
func (s *Source) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil
}

// Length returns the file's size as observed at Set time.
func (s *Source) Length() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

// ModTime returns the file's modification time as observed at Set time.
func (s *Source) ModTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modTime
}

// Seek repositions the cursor Read uses, without touching the file
// itself (no syscall -- just like the original's inline Seek).
func (s *Source) Seek(pos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = pos
}

// CurOffset returns the cursor Read uses.
func (s *Source) CurOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Close releases the underlying file descriptor. Safe to call more than
// once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Read fills buf from the current cursor, advancing it, going through
// the block cache if enabled.
func (s *Source) Read(buf []byte) (int, error) {
	s.mu.Lock()
	pos := s.position
	s.mu.Unlock()

	n, err := s.ReadAt(pos, buf)

	s.mu.Lock()
	s.position = pos + int64(n)
	s.mu.Unlock()
	return n, err
}

// ReadAt fills buf starting at pos without disturbing the cursor Read
// uses, going through the block cache if enabled. This is the entry
// point FileSource::Read(inPosition, ...) maps onto.
func (s *Source) ReadAt(pos int64, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, os.ErrClosed
	}
	if !s.cacheEnabled || s.blockMap == nil {
		return s.file.ReadAt(buf, pos)
	}
	return s.readCachedLocked(pos, buf)
}

// readCachedLocked implements the cached-read algorithm: walk block by
// block, filling any not-yet-loaded block from disk
// exactly once, then copying out of each block's buffer into the
// caller's slice until it is full or the file ends. Must be called with
// s.mu held.
func (s *Source) readCachedLocked(pos int64, out []byte) (int, error) {
	total := 0
	for total < len(out) {
		idx := s.blockMap.BlockIndex(pos)
		if idx > s.blockMap.MaxBlockIndex() {
			break
		}

		b, fresh := s.blockMap.GetBuffer(idx)
		if fresh {
			n, err := s.file.ReadAt(b.Raw(), s.blockMap.BlockOffset(idx))
			if err != nil && err != io.EOF {
				return total, err
			}
			b.SetFill(n)
		}

		offsetInBlock := int(pos - s.blockMap.BlockOffset(idx))
		if offsetInBlock >= b.Fill() {
			break
		}

		n := copy(out[total:], b.Data()[offsetInBlock:])
		total += n
		pos += int64(n)
		if n == 0 {
			break
		}
	}

	if total == 0 && len(out) > 0 {
		return 0, io.EOF
	}
	return total, nil
}
