package buffer

import (
	"fmt"
	"sync"

	"github.com/kamau/pembe/storage/disk"
	"github.com/kamau/pembe/util"
)

type mode = int

const (
	WRITE_MODE mode = iota
	READ_MODE
)

func NewBufferpoolManager(size int, replacer *lrukReplacer, diskScheduler *disk.DiskScheduler) *BufferpoolManager {
	frames := make([]*Frame, size)
	freeFrames := make([]int, size)

	for i := range size {
		frames[i] = newFrame(i)
		freeFrames[i] = i
	}

	return &BufferpoolManager{
		frames:        frames,
		pageTable:     make(map[int64]int),
		replacer:      replacer,
		diskScheduler: diskScheduler,
		freeFrames:    freeFrames,
	}
}

// NewPageId dispenses a page id without bringing a page into the pool.
func (b *BufferpoolManager) NewPageId() int64 {
	return b.diskScheduler.AllocatePage()
}

// NewPageGuarded allocates a fresh zeroed page, pins it and wraps it in a
// basic guard. Fails with BufferpoolExhaustedError when every frame is
// pinned.
func (b *BufferpoolManager) NewPageGuarded() (*BasicPageGuard, error) {
	b.mu.Lock()

	frame, err := b.acquireFrame()
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}

	pageId := b.diskScheduler.AllocatePage()
	b.install(frame, pageId, AccessUnknown)
	b.mu.Unlock()

	return &BasicPageGuard{PageGuard: PageGuard{frame: frame, bpm: b, pageId: pageId}}, nil
}

// ReadPage pins the page and hands back a guard holding its read latch.
func (b *BufferpoolManager) ReadPage(pageId int64) (*ReadPageGuard, error) {
	frame, err := b.fetchPage(pageId, AccessUnknown)
	if err != nil {
		return nil, err
	}

	// The latch is taken after the pool mutex is released; the pin keeps
	// the frame from being evicted in between.
	frame.mu.RLock()
	return &ReadPageGuard{PageGuard: PageGuard{frame: frame, bpm: b, pageId: pageId}}, nil
}

// WritePage pins the page and hands back a guard holding its write latch.
func (b *BufferpoolManager) WritePage(pageId int64) (*WritePageGuard, error) {
	frame, err := b.fetchPage(pageId, AccessUnknown)
	if err != nil {
		return nil, err
	}

	frame.mu.Lock()
	return &WritePageGuard{PageGuard: PageGuard{frame: frame, bpm: b, pageId: pageId}}, nil
}

// FetchPageBasic pins the page without latching it.
func (b *BufferpoolManager) FetchPageBasic(pageId int64) (*BasicPageGuard, error) {
	frame, err := b.fetchPage(pageId, AccessUnknown)
	if err != nil {
		return nil, err
	}

	return &BasicPageGuard{PageGuard: PageGuard{frame: frame, bpm: b, pageId: pageId}}, nil
}

// GetPage runs callback against a pinned, latched frame and releases
// everything afterwards.
func (b *BufferpoolManager) GetPage(pageId int64, accessMode mode, callback func(frame *Frame)) error {
	if accessMode == WRITE_MODE {
		guard, err := b.WritePage(pageId)
		if err != nil {
			return err
		}
		defer guard.Drop()

		guard.dirty = true
		callback(guard.frame)
		return nil
	}

	guard, err := b.ReadPage(pageId)
	if err != nil {
		return err
	}
	defer guard.Drop()

	callback(guard.frame)
	return nil
}

// UnpinPage drops one pin and ORs isDirty into the frame's dirty bit. The
// page stays in the pool; a frame whose pin count reaches zero merely
// becomes evictable. Returns false when the page is absent or not pinned.
func (b *BufferpoolManager) UnpinPage(pageId int64, isDirty bool, accessType AccessType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return false
	}

	frame := b.frames[frameId]
	if frame.pins.Load() <= 0 {
		return false
	}

	frame.dirty = frame.dirty || isDirty
	if frame.unpin() == 0 {
		b.replacer.setEvictable(frameId, true)
	}
	return true
}

// FlushPage writes the page out regardless of its dirty bit and clears the
// bit. Returns false when the page is not resident.
func (b *BufferpoolManager) FlushPage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return false
	}

	frame := b.frames[frameId]
	if err := b.writeToDisk(pageId, frame.Data); err != nil {
		return false
	}

	frame.dirty = false
	return true
}

func (b *BufferpoolManager) FlushAllPages() {
	b.mu.Lock()
	pageIds := make([]int64, 0, len(b.pageTable))
	for pageId := range b.pageTable {
		pageIds = append(pageIds, pageId)
	}
	b.mu.Unlock()

	for _, pageId := range pageIds {
		b.FlushPage(pageId)
	}
}

// DeletePage drops a page from the pool and gives its id back to the disk
// manager. The page's data is discarded, not written back. Idempotent for
// non-resident pages; refuses pinned pages.
func (b *BufferpoolManager) DeletePage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return true
	}

	frame := b.frames[frameId]
	if frame.pins.Load() > 0 {
		return false
	}

	delete(b.pageTable, pageId)
	b.replacer.remove(frameId)
	frame.reset()
	b.freeFrames = append(b.freeFrames, frameId)

	b.diskScheduler.DeallocatePage(pageId)
	return true
}

func (b *BufferpoolManager) fetchPage(pageId int64, accessType AccessType) (*Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameId, ok := b.pageTable[pageId]; ok {
		frame := b.frames[frameId]
		frame.pin()
		b.replacer.recordAccess(frameId, accessType)
		b.replacer.setEvictable(frameId, false)
		return frame, nil
	}

	frame, err := b.acquireFrame()
	if err != nil {
		return nil, err
	}

	resp := <-b.diskScheduler.Schedule(disk.NewRequest(pageId, nil, false))
	if !resp.Success {
		b.freeFrames = append(b.freeFrames, frame.id)
		return nil, fmt.Errorf("error reading page %d from disk", pageId)
	}
	copy(frame.Data, resp.Data)

	b.install(frame, pageId, accessType)
	return frame, nil
}

// acquireFrame hands out an unused frame: free list first, then eviction.
// The victim's dirty data is written back before the frame is recycled.
// Callers hold b.mu.
func (b *BufferpoolManager) acquireFrame() (*Frame, error) {
	if len(b.freeFrames) > 0 {
		frameId := b.freeFrames[0]
		b.freeFrames = b.freeFrames[1:]
		return b.frames[frameId], nil
	}

	frameId, ok := b.replacer.evict()
	if !ok {
		return nil, util.NewBufferpoolExhaustedError()
	}

	frame := b.frames[frameId]
	if frame.dirty {
		if err := b.writeToDisk(frame.pageId, frame.Data); err != nil {
			return nil, err
		}
	}

	delete(b.pageTable, frame.pageId)
	frame.reset()
	return frame, nil
}

// install points the page table at the frame and pins it. Callers hold b.mu.
func (b *BufferpoolManager) install(frame *Frame, pageId int64, accessType AccessType) {
	frame.pageId = pageId
	frame.pin()
	b.pageTable[pageId] = frame.id

	b.replacer.recordAccess(frame.id, accessType)
	b.replacer.setEvictable(frame.id, false)
}

func (b *BufferpoolManager) writeToDisk(pageId int64, data []byte) error {
	resp := <-b.diskScheduler.Schedule(disk.NewRequest(pageId, data, true))
	if !resp.Success {
		return fmt.Errorf("error writing page %d to disk", pageId)
	}
	return nil
}

type BufferpoolManager struct {
	mu            sync.Mutex
	frames        []*Frame
	pageTable     map[int64]int
	diskScheduler *disk.DiskScheduler
	replacer      *lrukReplacer
	freeFrames    []int
}
