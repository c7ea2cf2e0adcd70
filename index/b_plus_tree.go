package index

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/kamau/pembe/buffer"
	"github.com/kamau/pembe/storage/disk"
	"github.com/kamau/pembe/util"
)

// NewBplusTree builds an ordered unique-key index on top of the buffer
// pool. headerPageId names the page that tracks the root; it is written
// fresh, so the id must come from bpm.NewPageId(). A nil compare falls back
// to the natural key order. leafMax and internalMax bound the entry count
// of the two page layouts.
func NewBplusTree[K cmp.Ordered, V any](name string, headerPageId int64, bpm *buffer.BufferpoolManager,
	compare Comparator[K], leafMax, internalMax int) (*bplusTree[K, V], error) {
	if compare == nil {
		compare = cmp.Compare[K]
	}
	if leafMax < 2 || internalMax < 3 {
		return nil, fmt.Errorf("page capacities too small: leaf %d, internal %d", leafMax, internalMax)
	}

	guard, err := bpm.WritePage(headerPageId)
	if err != nil {
		return nil, fmt.Errorf("error fetching header page: %v", err)
	}
	defer guard.Drop()

	if err := writeHeader(guard, disk.INVALID_PAGE_ID); err != nil {
		return nil, err
	}

	return &bplusTree[K, V]{
		indexName:    name,
		headerPageId: headerPageId,
		bpm:          bpm,
		compare:      compare,
		leafMax:      leafMax,
		internalMax:  internalMax,
	}, nil
}

func (b *bplusTree[K, V]) IsEmpty() bool {
	return b.GetRootPageId() == disk.INVALID_PAGE_ID
}

func (b *bplusTree[K, V]) GetRootPageId() int64 {
	guard, err := b.bpm.ReadPage(b.headerPageId)
	if err != nil {
		return disk.INVALID_PAGE_ID
	}
	defer guard.Drop()

	header, err := util.ToStruct[headerPage](guard.GetData())
	if err != nil {
		return disk.INVALID_PAGE_ID
	}
	return header.RootPageId
}

// GetValue is the point lookup. An absent key yields an empty result and no
// error.
func (b *bplusTree[K, V]) GetValue(key K) ([]V, error) {
	res := make([]V, 0)

	headerGuard, err := b.bpm.ReadPage(b.headerPageId)
	if err != nil {
		return nil, err
	}
	defer headerGuard.Drop()

	header, err := util.ToStruct[headerPage](headerGuard.GetData())
	if err != nil {
		return nil, err
	}
	if header.RootPageId == disk.INVALID_PAGE_ID {
		return res, nil
	}

	guard, leaf, err := b.descendRead(header.RootPageId, &key)
	if err != nil {
		return nil, err
	}
	defer guard.Drop()

	if idx, found := leaf.lookup(key, b.compare); found {
		res = append(res, leaf.valueAt(idx))
	}
	return res, nil
}

// Insert adds the pair, splitting root-to-leaf as needed. A duplicate key
// is rejected with false and no mutation.
func (b *bplusTree[K, V]) Insert(key K, value V) (bool, error) {
	headerGuard, err := b.bpm.WritePage(b.headerPageId)
	if err != nil {
		return false, err
	}
	defer headerGuard.Drop()

	header, err := util.ToStruct[headerPage](headerGuard.GetData())
	if err != nil {
		return false, err
	}

	// Empty tree: the first leaf is the root.
	if header.RootPageId == disk.INVALID_PAGE_ID {
		rootGuard, err := b.bpm.NewPageGuarded()
		if err != nil {
			return false, err
		}
		defer rootGuard.Drop()

		leaf := newLeafPage[K, V](b.leafMax)
		leaf.insertAt(0, key, value)
		if err := writeBasic(rootGuard, leaf); err != nil {
			return false, err
		}

		return true, writeHeader(headerGuard, rootGuard.PageId())
	}

	stack, leafGuard, leaf, err := b.descendWrite(header.RootPageId, key)
	defer releasePath(stack)
	defer leafGuard.Drop()
	if err != nil {
		return false, err
	}

	idx, found := leaf.lookup(key, b.compare)
	if found {
		return false, nil
	}

	if leaf.getSize() < b.leafMax {
		leaf.insertAt(idx, key, value)
		return true, writeGuarded(leafGuard, leaf)
	}

	// Leaf is full: split, then push the separator up the remembered path.
	siblingGuard, err := b.bpm.NewPageGuarded()
	if err != nil {
		return false, err
	}
	defer siblingGuard.Drop()

	sibling := b.splitLeaf(leaf, idx, key, value, siblingGuard.PageId())
	if err := writeGuarded(leafGuard, leaf); err != nil {
		return false, err
	}
	if err := writeBasic(siblingGuard, sibling); err != nil {
		return false, err
	}

	separator := sibling.keyAt(0)
	childId := siblingGuard.PageId()

	for level := len(stack) - 1; level >= 0; level-- {
		parent := stack[level]

		if parent.page.getSize() < b.internalMax {
			parent.page.insertPair(separator, childId, b.compare)
			return true, writeGuarded(parent.guard, parent.page)
		}

		splitGuard, err := b.bpm.NewPageGuarded()
		if err != nil {
			return false, err
		}
		defer splitGuard.Drop()

		split, promoted := b.splitInternal(parent.page, separator, childId)
		if err := writeGuarded(parent.guard, parent.page); err != nil {
			return false, err
		}
		if err := writeBasic(splitGuard, split); err != nil {
			return false, err
		}

		separator = promoted
		childId = splitGuard.PageId()
	}

	// The separator outlived the whole path: the root itself split.
	rootGuard, err := b.bpm.NewPageGuarded()
	if err != nil {
		return false, err
	}
	defer rootGuard.Drop()

	root := newInternalPage[K](b.internalMax, header.RootPageId)
	root.insertPair(separator, childId, b.compare)
	if err := writeBasic(rootGuard, root); err != nil {
		return false, err
	}

	return true, writeHeader(headerGuard, rootGuard.PageId())
}

// Remove deletes the key if present, rebalancing leaf-to-root: borrow from
// a sibling when one can spare an entry, merge otherwise. An absent key is
// a no-op.
func (b *bplusTree[K, V]) Remove(key K) error {
	// Emptied pages are handed back once every guard is gone.
	toDelete := []int64{}
	defer func() {
		for _, pageId := range toDelete {
			b.bpm.DeletePage(pageId)
		}
	}()

	headerGuard, err := b.bpm.WritePage(b.headerPageId)
	if err != nil {
		return err
	}
	defer headerGuard.Drop()

	header, err := util.ToStruct[headerPage](headerGuard.GetData())
	if err != nil {
		return err
	}
	if header.RootPageId == disk.INVALID_PAGE_ID {
		return nil
	}

	stack, leafGuard, leaf, err := b.descendWrite(header.RootPageId, key)
	defer releasePath(stack)
	defer leafGuard.Drop()
	if err != nil {
		return err
	}

	idx, found := leaf.lookup(key, b.compare)
	if !found {
		return nil
	}
	leaf.removeAt(idx)

	leafId := leafGuard.PageId()
	if leafId == header.RootPageId {
		if leaf.getSize() == 0 {
			toDelete = append(toDelete, leafId)
			return writeHeader(headerGuard, disk.INVALID_PAGE_ID)
		}
		return writeGuarded(leafGuard, leaf)
	}

	minLeaf := (b.leafMax + 1) / 2
	if leaf.getSize() >= minLeaf {
		return writeGuarded(leafGuard, leaf)
	}

	parent := stack[len(stack)-1]
	childIdx := parent.page.findChild(leafId)

	var leftGuard, rightGuard *buffer.WritePageGuard
	var left, right *leafPage[K, V]
	if childIdx > 0 {
		if leftGuard, left, err = b.fetchLeaf(parent.page.childAt(childIdx - 1)); err != nil {
			return err
		}
		defer leftGuard.Drop()
	}

	if left != nil && left.getSize() > minLeaf {
		// Borrow the left sibling's last entry; it becomes this leaf's
		// first and the boundary key in the parent.
		last := left.getSize() - 1
		movedKey, movedVal := left.keyAt(last), left.valueAt(last)
		left.removeAt(last)
		leaf.insertAt(0, movedKey, movedVal)
		parent.page.Keys[childIdx] = movedKey

		return writeAll(
			pageWrite{leftGuard, left},
			pageWrite{leafGuard, leaf},
			pageWrite{parent.guard, parent.page},
		)
	}

	if childIdx < parent.page.getSize()-1 {
		if rightGuard, right, err = b.fetchLeaf(parent.page.childAt(childIdx + 1)); err != nil {
			return err
		}
		defer rightGuard.Drop()
	}

	if right != nil && right.getSize() > minLeaf {
		movedKey, movedVal := right.keyAt(0), right.valueAt(0)
		right.removeAt(0)
		leaf.insertAt(leaf.getSize(), movedKey, movedVal)
		parent.page.Keys[childIdx+1] = right.keyAt(0)

		return writeAll(
			pageWrite{rightGuard, right},
			pageWrite{leafGuard, leaf},
			pageWrite{parent.guard, parent.page},
		)
	}

	// Neither sibling can spare an entry: merge, preferring to fold this
	// leaf into its left sibling so the chain splice is a forward update.
	if left != nil {
		left.Keys = append(left.Keys, leaf.Keys...)
		left.Values = append(left.Values, leaf.Values...)
		left.Size += leaf.Size
		left.Next = leaf.Next
		parent.page.removeAt(childIdx)
		toDelete = append(toDelete, leafId)

		if err := writeGuarded(leftGuard, left); err != nil {
			return err
		}
	} else {
		rightId := rightGuard.PageId()
		leaf.Keys = append(leaf.Keys, right.Keys...)
		leaf.Values = append(leaf.Values, right.Values...)
		leaf.Size += right.Size
		leaf.Next = right.Next
		parent.page.removeAt(childIdx + 1)
		toDelete = append(toDelete, rightId)

		if err := writeGuarded(leafGuard, leaf); err != nil {
			return err
		}
	}

	return b.rebalanceInternals(headerGuard, header.RootPageId, stack, &toDelete)
}

// rebalanceInternals walks the remembered path upwards after a merge. The
// page at the top of the stack has just lost an entry; each round either
// proves the page healthy, borrows through the parent separator, or merges
// again and moves up one level.
func (b *bplusTree[K, V]) rebalanceInternals(headerGuard *buffer.WritePageGuard, rootPageId int64,
	stack []pathEntry[K], toDelete *[]int64) error {
	minInternal := (b.internalMax + 1) / 2

	for level := len(stack) - 1; level >= 0; level-- {
		cur := stack[level]
		curId := cur.guard.PageId()

		if curId == rootPageId {
			if cur.page.getSize() == 1 {
				// The root routes to a single child: that child is the
				// new root.
				*toDelete = append(*toDelete, curId)
				return writeHeader(headerGuard, cur.page.childAt(0))
			}
			return writeGuarded(cur.guard, cur.page)
		}

		if cur.page.getSize() >= minInternal {
			return writeGuarded(cur.guard, cur.page)
		}

		parent := stack[level-1]
		childIdx := parent.page.findChild(curId)

		var leftGuard, rightGuard *buffer.WritePageGuard
		var left, right *internalPage[K]
		var err error
		if childIdx > 0 {
			if leftGuard, left, err = b.fetchInternal(parent.page.childAt(childIdx - 1)); err != nil {
				return err
			}
			defer leftGuard.Drop()
		}

		if left != nil && left.getSize() > minInternal {
			// Rotate through the parent: its separator descends in front
			// of cur's entries, the left sibling's last child comes along,
			// and the sibling's last key ascends to the parent.
			last := left.getSize() - 1
			cur.page.Keys = slices.Insert(cur.page.Keys, 1, parent.page.keyAt(childIdx))
			cur.page.Children = slices.Insert(cur.page.Children, 0, left.childAt(last))
			cur.page.Size += 1
			parent.page.Keys[childIdx] = left.keyAt(last)
			left.removeLast()

			return writeAll(
				pageWrite{leftGuard, left},
				pageWrite{cur.guard, cur.page},
				pageWrite{parent.guard, parent.page},
			)
		}

		if childIdx < parent.page.getSize()-1 {
			if rightGuard, right, err = b.fetchInternal(parent.page.childAt(childIdx + 1)); err != nil {
				return err
			}
			defer rightGuard.Drop()
		}

		if right != nil && right.getSize() > minInternal {
			cur.page.Keys = append(cur.page.Keys, parent.page.keyAt(childIdx+1))
			cur.page.Children = append(cur.page.Children, right.childAt(0))
			cur.page.Size += 1
			parent.page.Keys[childIdx+1] = right.keyAt(1)
			right.removeFirst()

			return writeAll(
				pageWrite{rightGuard, right},
				pageWrite{cur.guard, cur.page},
				pageWrite{parent.guard, parent.page},
			)
		}

		if left != nil {
			// Fold cur into its left sibling; the parent separator
			// descends between them.
			left.Keys = append(left.Keys, parent.page.keyAt(childIdx))
			left.Keys = append(left.Keys, cur.page.Keys[1:]...)
			left.Children = append(left.Children, cur.page.Children...)
			left.Size += cur.page.Size
			parent.page.removeAt(childIdx)
			*toDelete = append(*toDelete, curId)

			if err := writeGuarded(leftGuard, left); err != nil {
				return err
			}
		} else {
			rightId := rightGuard.PageId()
			cur.page.Keys = append(cur.page.Keys, parent.page.keyAt(childIdx+1))
			cur.page.Keys = append(cur.page.Keys, right.Keys[1:]...)
			cur.page.Children = append(cur.page.Children, right.Children...)
			cur.page.Size += right.Size
			parent.page.removeAt(childIdx + 1)
			*toDelete = append(*toDelete, rightId)

			if err := writeGuarded(cur.guard, cur.page); err != nil {
				return err
			}
		}
	}

	return nil
}

// descendRead walks read-latched from rootPageId to the leaf responsible
// for key, releasing each parent once its child is held. A nil key selects
// the leftmost leaf. The caller drops the returned guard.
func (b *bplusTree[K, V]) descendRead(rootPageId int64, key *K) (*buffer.ReadPageGuard, *leafPage[K, V], error) {
	guard, err := b.bpm.ReadPage(rootPageId)
	if err != nil {
		return nil, nil, err
	}

	for {
		probe, err := util.ToStruct[pageProbe](guard.GetData())
		if err != nil {
			guard.Drop()
			return nil, nil, err
		}

		if probe.PageType == LEAF_PAGE {
			leaf, err := util.ToStruct[leafPage[K, V]](guard.GetData())
			if err != nil {
				guard.Drop()
				return nil, nil, err
			}
			return guard, &leaf, nil
		}

		internal, err := util.ToStruct[internalPage[K]](guard.GetData())
		if err != nil {
			guard.Drop()
			return nil, nil, err
		}

		childIdx := 0
		if key != nil {
			childIdx = internal.childIndex(*key, b.compare)
		}

		child, err := b.bpm.ReadPage(internal.childAt(childIdx))
		guard.Drop()
		if err != nil {
			return nil, nil, err
		}
		guard = child
	}
}

// descendWrite walks write-latched to the leaf responsible for key and
// keeps every internal page on the way as the remembered path. The caller
// releases the stack and the leaf guard.
func (b *bplusTree[K, V]) descendWrite(rootPageId int64, key K) ([]pathEntry[K], *buffer.WritePageGuard, *leafPage[K, V], error) {
	stack := []pathEntry[K]{}

	guard, err := b.bpm.WritePage(rootPageId)
	if err != nil {
		return stack, nil, nil, err
	}

	for {
		probe, err := util.ToStruct[pageProbe](guard.GetData())
		if err != nil {
			guard.Drop()
			return stack, nil, nil, err
		}

		if probe.PageType == LEAF_PAGE {
			leaf, err := util.ToStruct[leafPage[K, V]](guard.GetData())
			if err != nil {
				guard.Drop()
				return stack, nil, nil, err
			}
			return stack, guard, &leaf, nil
		}

		internal, err := util.ToStruct[internalPage[K]](guard.GetData())
		if err != nil {
			guard.Drop()
			return stack, nil, nil, err
		}
		stack = append(stack, pathEntry[K]{guard: guard, page: &internal})

		guard, err = b.bpm.WritePage(internal.childAt(internal.childIndex(key, b.compare)))
		if err != nil {
			return stack, nil, nil, err
		}
	}
}

// splitLeaf distributes the leaf's entries plus the pending (key, value)
// across the leaf and a fresh right sibling, links the sibling into the
// chain and returns it. The first right-sibling key is the separator the
// caller pushes up.
func (b *bplusTree[K, V]) splitLeaf(leaf *leafPage[K, V], idx int, key K, value V, siblingId int64) *leafPage[K, V] {
	tmpKeys := slices.Insert(slices.Clone(leaf.Keys), idx, key)
	tmpVals := slices.Insert(slices.Clone(leaf.Values), idx, value)
	leftCount := (b.leafMax + 1) / 2

	sibling := newLeafPage[K, V](b.leafMax)
	sibling.Keys = slices.Clone(tmpKeys[leftCount:])
	sibling.Values = slices.Clone(tmpVals[leftCount:])
	sibling.Size = int32(len(tmpKeys) - leftCount)
	sibling.Next = leaf.Next

	leaf.Keys = slices.Clone(tmpKeys[:leftCount])
	leaf.Values = slices.Clone(tmpVals[:leftCount])
	leaf.Size = int32(leftCount)
	leaf.Next = siblingId

	return sibling
}

// splitInternal mid-splits a full internal page that must take one more
// (separator, child) pair: the middle key is promoted, not stored.
func (b *bplusTree[K, V]) splitInternal(page *internalPage[K], separator K, childId int64) (*internalPage[K], K) {
	idx := page.insertIndex(separator, b.compare)
	tmpKeys := slices.Insert(slices.Clone(page.Keys), idx, separator)
	tmpChildren := slices.Insert(slices.Clone(page.Children), idx, childId)
	leftCount := (b.internalMax + 1) / 2
	promoted := tmpKeys[leftCount]

	var zero K
	split := &internalPage[K]{
		PageType: INTERNAL_PAGE,
		MaxSize:  int32(b.internalMax),
		Size:     int32(len(tmpKeys) - leftCount),
		Keys:     append([]K{zero}, tmpKeys[leftCount+1:]...),
		Children: slices.Clone(tmpChildren[leftCount:]),
	}

	page.Keys = slices.Clone(tmpKeys[:leftCount])
	page.Children = slices.Clone(tmpChildren[:leftCount])
	page.Size = int32(leftCount)

	return split, promoted
}

func (b *bplusTree[K, V]) fetchLeaf(pageId int64) (*buffer.WritePageGuard, *leafPage[K, V], error) {
	guard, err := b.bpm.WritePage(pageId)
	if err != nil {
		return nil, nil, err
	}

	page, err := util.ToStruct[leafPage[K, V]](guard.GetData())
	if err != nil {
		guard.Drop()
		return nil, nil, err
	}
	return guard, &page, nil
}

func (b *bplusTree[K, V]) fetchInternal(pageId int64) (*buffer.WritePageGuard, *internalPage[K], error) {
	guard, err := b.bpm.WritePage(pageId)
	if err != nil {
		return nil, nil, err
	}

	page, err := util.ToStruct[internalPage[K]](guard.GetData())
	if err != nil {
		guard.Drop()
		return nil, nil, err
	}
	return guard, &page, nil
}

func writeHeader(guard *buffer.WritePageGuard, rootPageId int64) error {
	data, err := util.ToByteSlice(headerPage{RootPageId: rootPageId})
	if err != nil {
		return err
	}

	copy(guard.GetDataMut(), data)
	return nil
}

func writeGuarded[T any](guard *buffer.WritePageGuard, page T) error {
	data, err := util.ToByteSlice(page)
	if err != nil {
		return err
	}

	copy(guard.GetDataMut(), data)
	return nil
}

func writeBasic[T any](guard *buffer.BasicPageGuard, page T) error {
	data, err := util.ToByteSlice(page)
	if err != nil {
		return err
	}

	copy(guard.GetDataMut(), data)
	return nil
}

func writeAll(writes ...pageWrite) error {
	for _, w := range writes {
		data, err := util.ToByteSlice(w.page)
		if err != nil {
			return err
		}
		copy(w.guard.GetDataMut(), data)
	}
	return nil
}

func releasePath[K cmp.Ordered](stack []pathEntry[K]) {
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].guard.Drop()
	}
}

type pathEntry[K cmp.Ordered] struct {
	guard *buffer.WritePageGuard
	page  *internalPage[K]
}

type pageWrite struct {
	guard *buffer.WritePageGuard
	page  any
}

type bplusTree[K cmp.Ordered, V any] struct {
	bpm          *buffer.BufferpoolManager
	indexName    string
	headerPageId int64
	compare      Comparator[K]
	leafMax      int
	internalMax  int
}
