package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/kamau/pembe/storage/disk"
)

func newFrame(id int) *Frame {
	f := &Frame{
		id:     id,
		Data:   make([]byte, disk.PAGE_SIZE),
		pageId: disk.INVALID_PAGE_ID,
	}
	return f
}

func (f *Frame) pin() {
	f.pins.Add(1)
}

func (f *Frame) unpin() int32 {
	return f.pins.Add(-1)
}

func (f *Frame) PageId() int64 {
	return f.pageId
}

func (f *Frame) PinCount() int {
	return int(f.pins.Load())
}

func (f *Frame) reset() {
	f.dirty = false
	f.pins.Store(0)
	f.pageId = disk.INVALID_PAGE_ID
	f.Data = make([]byte, disk.PAGE_SIZE)
}

// Frame is one slot of the buffer pool: a page-sized byte buffer plus the
// metadata the pool needs to pin, evict and write it back. The latch is
// taken by read/write page guards only, never while the pool mutex is held.
type Frame struct {
	mu     sync.RWMutex
	id     int
	Data   []byte
	pins   atomic.Int32
	dirty  bool
	pageId int64
}
