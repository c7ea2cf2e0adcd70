package index

import (
	"cmp"
	"slices"
)

// internalPage keeps Size (separator, child) entries. Slot 0's key is
// unused and its child is the leftmost pointer: every key below
// Children[i-1] is < Keys[i], every key below Children[i] is >= Keys[i].
// len(Keys) == len(Children) == Size at all times.
type internalPage[K cmp.Ordered] struct {
	PageType PAGE_TYPE
	Size     int32
	MaxSize  int32
	Keys     []K
	Children []int64
}

func newInternalPage[K cmp.Ordered](maxSize int, leftmostChild int64) *internalPage[K] {
	var zero K
	return &internalPage[K]{
		PageType: INTERNAL_PAGE,
		Size:     1,
		MaxSize:  int32(maxSize),
		Keys:     []K{zero},
		Children: []int64{leftmostChild},
	}
}

func (p *internalPage[K]) getSize() int {
	return int(p.Size)
}

func (p *internalPage[K]) keyAt(idx int) K {
	return p.Keys[idx]
}

func (p *internalPage[K]) childAt(idx int) int64 {
	return p.Children[idx]
}

// childIndex picks the slot to descend into: one left of the smallest
// separator strictly greater than key.
func (p *internalPage[K]) childIndex(key K, compare Comparator[K]) int {
	left := 1
	right := p.getSize()

	for left < right {
		mid := left + (right-left)/2
		if compare(key, p.Keys[mid]) < 0 {
			right = mid
		} else {
			left = mid + 1
		}
	}

	return left - 1
}

// insertIndex is the slot a fresh separator belongs at, always >= 1.
func (p *internalPage[K]) insertIndex(key K, compare Comparator[K]) int {
	left := 1
	right := p.getSize()

	for left < right {
		mid := left + (right-left)/2
		if compare(key, p.Keys[mid]) < 0 {
			right = mid
		} else {
			left = mid + 1
		}
	}

	return left
}

// findChild locates a child page id in this page. The child must be
// present; remove-side maintenance identifies siblings through it rather
// than re-deriving the slot from a key.
func (p *internalPage[K]) findChild(pageId int64) int {
	for i := range p.getSize() {
		if p.Children[i] == pageId {
			return i
		}
	}

	panic("page is not a child of this internal page")
}

func (p *internalPage[K]) insertPair(key K, child int64, compare Comparator[K]) {
	idx := p.insertIndex(key, compare)
	p.Keys = slices.Insert(p.Keys, idx, key)
	p.Children = slices.Insert(p.Children, idx, child)
	p.Size += 1
}

// removeAt splices out the separator at idx and the child it guards;
// idx 0 (the leftmost pointer) is never removed this way.
func (p *internalPage[K]) removeAt(idx int) {
	p.Keys = slices.Delete(p.Keys, idx, idx+1)
	p.Children = slices.Delete(p.Children, idx, idx+1)
	p.Size -= 1
}

// removeLast drops the last (separator, child) entry.
func (p *internalPage[K]) removeLast() {
	p.removeAt(p.getSize() - 1)
}

// removeFirst drops the leftmost child; the separator at slot 1 goes with
// it and its target child becomes the new leftmost pointer.
func (p *internalPage[K]) removeFirst() {
	p.Children = slices.Delete(p.Children, 0, 1)
	p.Keys = slices.Delete(p.Keys, 1, 2)
	p.Size -= 1
}
