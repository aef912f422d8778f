// Package cfblock implements the fixed-size buffer pool and per-file
// block map component G is built from: a bounded set of reusable
// byte-slice buffers, handed out to FileSource's cached reads and
// recycled least-recently-used when the pool is at capacity.
//
// It is a direct port of the original
// FileBlockBuffer/FileBlockPool/FileMap trio
// (original_source/CFCore/include/CF/FileSource.h), with the pool's
// free/used queue built on container/list the way other_examples' gaio
// watcher.go keeps its own per-descriptor read/write queues on
// container/list rather than a hand-rolled linked list.
package cfblock

// DefaultUnitSizeBytes is the default fixed buffer size: 32KiB, the
// same kBufferUnitSizeExp=15 the original hard-codes for
// FileBlockPool.
const DefaultUnitSizeBytes = 1 << 15

// Buffer is one fixed-capacity, reusable block of file data.
type Buffer struct {
	// Index is the block number (within whatever FileMap currently owns
	// it) this buffer's contents belong to, or -1 if unassigned.
	Index int64

	data []byte
	fill int
}

func newBuffer(size int) *Buffer {
	return &Buffer{Index: -1, data: make([]byte, size)}
}

// Data returns the filled portion of the buffer.
func (b *Buffer) Data() []byte { return b.data[:b.fill] }

// Raw returns the full backing slice, for callers about to fill it
// (e.g. a disk read) and then call SetFill with the actual count.
func (b *Buffer) Raw() []byte { return b.data }

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Fill returns how much of the buffer currently holds valid data.
func (b *Buffer) Fill() int { return b.fill }

// SetFill records how much of the buffer was actually filled (a read
// near end-of-file can be shorter than Cap()).
func (b *Buffer) SetFill(n int) { b.fill = n }

// Clean zeroes the buffer, matching the original's CleanBuffer.
func (b *Buffer) Clean() {
	clear(b.data)
	b.fill = 0
}
