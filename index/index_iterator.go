package index

import (
	"cmp"

	"github.com/kamau/pembe/buffer"
	"github.com/kamau/pembe/storage/disk"
	"github.com/kamau/pembe/util"
)

// indexIterator walks the leaf chain in key order. It keeps a read guard on
// the leaf it is positioned in and lets go of it once it moves past the
// last entry of the last leaf, at which point it compares equal to End.
type indexIterator[K cmp.Ordered, V any] struct {
	bpm    *buffer.BufferpoolManager
	guard  *buffer.ReadPageGuard
	page   *leafPage[K, V]
	pageId int64
	pos    int
}

func newIndexIterator[K cmp.Ordered, V any](bpm *buffer.BufferpoolManager, guard *buffer.ReadPageGuard,
	page *leafPage[K, V], pos int) *indexIterator[K, V] {
	return &indexIterator[K, V]{
		bpm:    bpm,
		guard:  guard,
		page:   page,
		pageId: guard.PageId(),
		pos:    pos,
	}
}

func endIterator[K cmp.Ordered, V any](bpm *buffer.BufferpoolManager) *indexIterator[K, V] {
	return &indexIterator[K, V]{bpm: bpm, pageId: disk.INVALID_PAGE_ID}
}

// Next returns the entry under the iterator and advances it.
func (it *indexIterator[K, V]) Next() (K, V, error) {
	var key K
	var val V

	if it.guard == nil {
		return key, val, util.NewIteratorExhaustedError()
	}

	// A previous advance may have parked the iterator one past the leaf's
	// last entry; hop to the next leaf before reading.
	if it.pos >= it.page.getSize() {
		if err := it.hop(); err != nil {
			return key, val, err
		}
	}

	key, val = it.page.keyAt(it.pos), it.page.valueAt(it.pos)
	it.pos += 1

	// Past the last entry of the last leaf: become the end sentinel.
	if it.pos >= it.page.getSize() && it.page.Next == disk.INVALID_PAGE_ID {
		it.Drop()
	}
	return key, val, nil
}

func (it *indexIterator[K, V]) IsEnd() bool {
	if it.guard == nil {
		return true
	}
	return it.pos >= it.page.getSize() && it.page.Next == disk.INVALID_PAGE_ID
}

// Equals compares positions; all end-of-tree iterators are equal.
func (it *indexIterator[K, V]) Equals(other *indexIterator[K, V]) bool {
	if it.IsEnd() || other.IsEnd() {
		return it.IsEnd() == other.IsEnd()
	}
	return it.pageId == other.pageId && it.pos == other.pos
}

// Drop releases the held leaf early; iterating to the end does it
// automatically.
func (it *indexIterator[K, V]) Drop() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
		it.page = nil
		it.pageId = disk.INVALID_PAGE_ID
	}
}

func (it *indexIterator[K, V]) hop() error {
	nextPageId := it.page.Next
	if nextPageId == disk.INVALID_PAGE_ID {
		it.Drop()
		return util.NewIteratorExhaustedError()
	}

	guard, err := it.bpm.ReadPage(nextPageId)
	if err != nil {
		return err
	}

	page, err := util.ToStruct[leafPage[K, V]](guard.GetData())
	if err != nil {
		guard.Drop()
		return err
	}

	it.guard.Drop()
	it.guard = guard
	it.page = &page
	it.pageId = nextPageId
	it.pos = 0
	return nil
}
