package cffile

import (
	"bytes"
	"io"
	"sync"
)

// countingDisk is an in-memory diskFile that counts every ReadAt call,
// letting tests observe whether a cached re-read actually reached
// "disk" instead of being served from the block cache.
type countingDisk struct {
	mu    sync.Mutex
	data  []byte
	reads int
}

func newCountingDisk(data []byte) *countingDisk {
	return &countingDisk{data: data}
}

func (d *countingDisk) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	d.reads++
	d.mu.Unlock()
	return bytes.NewReader(d.data).ReadAt(p, off)
}

func (d *countingDisk) Close() error { return nil }

func (d *countingDisk) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

var _ io.ReaderAt = (*countingDisk)(nil)
