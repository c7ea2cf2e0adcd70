package index

import (
	"github.com/kamau/pembe/storage/disk"
	"github.com/kamau/pembe/util"
)

// GetIterator starts at the smallest key in the tree. On an empty tree it
// is already at the end.
func (b *bplusTree[K, V]) GetIterator() (*indexIterator[K, V], error) {
	return b.beginAt(nil)
}

// GetIteratorAt starts at key, or at the smallest key greater than it when
// key is absent.
func (b *bplusTree[K, V]) GetIteratorAt(key K) (*indexIterator[K, V], error) {
	return b.beginAt(&key)
}

// End is the past-the-last sentinel every exhausted iterator equals.
func (b *bplusTree[K, V]) End() *indexIterator[K, V] {
	return endIterator[K, V](b.bpm)
}

func (b *bplusTree[K, V]) beginAt(key *K) (*indexIterator[K, V], error) {
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
		return endIterator[K, V](b.bpm), nil
	}

	guard, leaf, err := b.descendRead(header.RootPageId, key)
	if err != nil {
		return nil, err
	}

	pos := 0
	if key != nil {
		pos, _ = leaf.lookup(*key, b.compare)
	}
	return newIndexIterator(b.bpm, guard, leaf, pos), nil
}

// GetKeyRange collects the values of every key in [start, stop].
func (b *bplusTree[K, V]) GetKeyRange(start, stop K) ([]V, error) {
	indexIter, err := b.GetIteratorAt(start)
	if err != nil {
		return nil, err
	}
	defer indexIter.Drop()

	res := []V{}
	for !indexIter.IsEnd() {
		key, val, err := indexIter.Next()
		if err != nil {
			return res, err
		}

		if b.compare(key, stop) > 0 {
			break
		}
		res = append(res, val)
	}

	return res, nil
}

func (b *bplusTree[K, V]) BatchInsert(items map[K]V) error {
	for k, v := range items {
		if _, err := b.Insert(k, v); err != nil {
			return err
		}
	}

	return nil
}
