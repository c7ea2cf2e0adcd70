package disk

import (
	"github.com/dgraph-io/ristretto/v2"
)

// DEFAULT_CACHE_BUDGET bounds how many page bytes the block cache may hold.
const DEFAULT_CACHE_BUDGET = 256 * PAGE_SIZE

// pageCache sits between the disk manager and the db file: pages are
// admitted on write and served on re-read without touching the file.
// Entries are copies, never aliases of caller buffers, so a caller mutating
// its page image after a write cannot corrupt the cached bytes.
type pageCache struct {
	entries *ristretto.Cache[int64, []byte]
}

func newPageCache(budget int64) *pageCache {
	entries, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
		NumCounters: 10 * budget / PAGE_SIZE,
		MaxCost:     budget,
		BufferItems: 64,
	})
	if err != nil {
		// Config is hardcoded, the only failure mode is a bad constant.
		panic(err)
	}

	return &pageCache{entries: entries}
}

func (pc *pageCache) put(pageId int64, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	pc.entries.Set(pageId, buf, PAGE_SIZE)
}

func (pc *pageCache) get(pageId int64) ([]byte, bool) {
	cached, ok := pc.entries.Get(pageId)
	if !ok {
		return nil, false
	}

	buf := make([]byte, len(cached))
	copy(buf, cached)
	return buf, true
}

func (pc *pageCache) remove(pageId int64) {
	pc.entries.Del(pageId)
}

// wait blocks until buffered admissions have been applied. Only tests need
// deterministic visibility; the read path treats a miss as a file read.
func (pc *pageCache) wait() {
	pc.entries.Wait()
}
