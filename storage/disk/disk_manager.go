package disk

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// ErrChecksumMismatch is returned when a page read back from the db file
// does not hash to the sum recorded when it was last written.
var ErrChecksumMismatch = errors.New("page checksum mismatch")

func NewManager(file *os.File) *Manager {
	return &Manager{
		dbFile:       file,
		pageCapacity: DEFAULT_PAGE_CAPACITY,
		freeSlots:    []int64{},
		pages:        map[int64]int64{},
		checksums:    map[int64]uint64{},
		cache:        newPageCache(DEFAULT_CACHE_BUDGET),
	}
}

// AllocatePage dispenses a fresh page id. Ids are monotonic and never handed
// out twice; DeallocatePage only recycles the file slot behind an id.
func (dm *Manager) AllocatePage() int64 {
	return dm.nextPageId.Add(1) - 1
}

func (dm *Manager) DeallocatePage(pageId int64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if offset, ok := dm.pages[pageId]; ok {
		dm.freeSlots = append(dm.freeSlots, offset)
		delete(dm.pages, pageId)
		delete(dm.checksums, pageId)
		dm.cache.remove(pageId)
	}
}

func (dm *Manager) WritePage(pageId int64, data []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	offset, pageFound := dm.pages[pageId]
	if !pageFound {
		var err error
		if offset, err = dm.allocateSlot(); err != nil {
			return err
		}
		dm.pages[pageId] = offset
	}

	if _, err := dm.dbFile.WriteAt(data, offset); err != nil {
		return fmt.Errorf("error writing page %d at offset %d: %v", pageId, offset, err)
	}

	dm.checksums[pageId] = xxhash.Sum64(data)
	dm.cache.put(pageId, data)
	return nil
}

func (dm *Manager) ReadPage(pageId int64) ([]byte, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	offset, pageFound := dm.pages[pageId]
	if !pageFound {
		// First touch of this page id, hand back a zeroed slot.
		var err error
		if offset, err = dm.allocateSlot(); err != nil {
			return nil, err
		}
		dm.pages[pageId] = offset
		return make([]byte, PAGE_SIZE), nil
	}

	if buf, ok := dm.cache.get(pageId); ok {
		return buf, nil
	}

	buf := make([]byte, PAGE_SIZE)
	if _, err := dm.dbFile.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("error reading page %d from offset %d: %v", pageId, offset, err)
	}

	if sum, ok := dm.checksums[pageId]; ok && sum != xxhash.Sum64(buf) {
		return nil, fmt.Errorf("page %d: %w", pageId, ErrChecksumMismatch)
	}

	dm.cache.put(pageId, buf)
	return buf, nil
}

func (dm *Manager) allocateSlot() (int64, error) {
	if len(dm.freeSlots) > 0 {
		offset := dm.freeSlots[0]
		dm.freeSlots = dm.freeSlots[1:]

		return offset, nil
	}

	if len(dm.pages)+1 > dm.pageCapacity {
		dm.pageCapacity *= 2
		if err := os.Truncate(dm.dbFile.Name(), int64(dm.pageCapacity)*PAGE_SIZE); err != nil {
			return -1, fmt.Errorf("error resizing db file: %v", err)
		}
	}

	return dm.nextOffset(), nil
}

func (dm *Manager) nextOffset() int64 {
	return int64(len(dm.pages)) * PAGE_SIZE
}

type Manager struct {
	mu           sync.Mutex
	dbFile       *os.File
	pages        map[int64]int64
	freeSlots    []int64
	pageCapacity int
	nextPageId   atomic.Int64
	checksums    map[int64]uint64
	cache        *pageCache
}
