package cfblock

import "sync"

// Map is one file's offset-to-buffer index: a dense array of *Buffer
// slots, one per fixed-size block of the file, backed by a shared Pool
// so the memory budget is bounded regardless of file size.
type Map struct {
	mu     sync.Mutex
	pool   *Pool
	blocks []*Buffer
	fileLen int64
}

// NewMap creates a Map covering a file of fileLen bytes, unitSize bytes
// per block, with a private Pool budgeted for maxBuffers (growing/
// shrinking by increment). Use NewMapWithPool instead when several
// Maps should draw from one shared buffer budget.
func NewMap(unitSize int, fileLen int64, maxBuffers, increment uint32) *Map {
	if unitSize <= 0 {
		unitSize = DefaultUnitSizeBytes
	}
	return NewMapWithPool(NewPool(unitSize, maxBuffers, increment), fileLen)
}

// NewMapWithPool creates a Map covering a file of fileLen bytes that
// acquires its buffers from pool instead of owning one privately.
// Separate FileSources passed the same pool share its buffer budget
// and its LRU rotation, so pool.CurrentBuffers sums non-empty slots
// across every Map drawing from it rather than per file.
func NewMapWithPool(pool *Pool, fileLen int64) *Map {
	unitSize := pool.UnitSize()
	numBlocks := (fileLen + int64(unitSize) - 1) / int64(unitSize)
	if numBlocks < 1 {
		numBlocks = 1
	}
	return &Map{
		pool:    pool,
		blocks:  make([]*Buffer, numBlocks),
		fileLen: fileLen,
	}
}

// UnitSize returns the fixed block size backing this map.
func (m *Map) UnitSize() int { return m.pool.UnitSize() }

// Pool returns the Pool backing this map, shared or private.
func (m *Map) Pool() *Pool { return m.pool }

// BlockIndex returns which block a byte offset falls in.
func (m *Map) BlockIndex(pos int64) int64 { return pos / int64(m.UnitSize()) }

// BlockOffset returns the file offset a block index starts at.
func (m *Map) BlockOffset(idx int64) int64 { return idx * int64(m.UnitSize()) }

// MaxBlockIndex returns the highest valid block index for this file.
func (m *Map) MaxBlockIndex() int64 { return int64(len(m.blocks)) - 1 }

// IncMaxBuffers/DecMaxBuffers forward to the underlying pool's budget
// adjustment, letting a caller (e.g. cffile reacting to changing read
// patterns) tune the cache size without reaching into the pool
// directly.
func (m *Map) IncMaxBuffers() { m.pool.IncMax() }
func (m *Map) DecMaxBuffers() { m.pool.DecMax() }

// GetBuffer returns the buffer backing block idx, allocating or
// recycling one from the pool if it is not already mapped. fresh is
// true if the caller must fill the buffer from disk (it was just
// (re)assigned to idx and holds no valid data for it yet).
func (m *Map) GetBuffer(idx int64) (buf *Buffer, fresh bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b := m.blocks[idx]; b != nil {
		m.pool.MarkUsed(b)
		return b, false
	}

	b := m.pool.Acquire()
	if b.Index >= 0 && b.Index != idx && int(b.Index) < len(m.blocks) {
		m.blocks[b.Index] = nil
	}
	b.Index = idx
	b.SetFill(0)
	m.blocks[idx] = b
	return b, true
}

// Clean releases every block mapping, without shrinking the pool's
// buffer budget, matching FileMap::Clean's "drop contents, keep
// capacity" behavior.
func (m *Map) Clean() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.blocks {
		m.blocks[i] = nil
	}
}
