package index

import (
	"cmp"
	"slices"

	"github.com/kamau/pembe/storage/disk"
)

// leafPage keeps Size sorted key/value pairs plus the id of the next leaf
// in key order. len(Keys) == len(Values) == Size at all times.
type leafPage[K cmp.Ordered, V any] struct {
	PageType PAGE_TYPE
	Size     int32
	MaxSize  int32
	Next     int64
	Keys     []K
	Values   []V
}

func newLeafPage[K cmp.Ordered, V any](maxSize int) *leafPage[K, V] {
	return &leafPage[K, V]{
		PageType: LEAF_PAGE,
		MaxSize:  int32(maxSize),
		Next:     disk.INVALID_PAGE_ID,
		Keys:     []K{},
		Values:   []V{},
	}
}

func (p *leafPage[K, V]) getSize() int {
	return int(p.Size)
}

func (p *leafPage[K, V]) keyAt(idx int) K {
	return p.Keys[idx]
}

func (p *leafPage[K, V]) valueAt(idx int) V {
	return p.Values[idx]
}

// lookup returns the key's slot and whether it is present; an absent key's
// slot is where it would be inserted.
func (p *leafPage[K, V]) lookup(key K, compare Comparator[K]) (int, bool) {
	idx := searchKeys(p.Keys, p.getSize(), key, compare)
	return idx, idx < p.getSize() && compare(p.keyAt(idx), key) == 0
}

func (p *leafPage[K, V]) insertAt(idx int, key K, value V) {
	p.Keys = slices.Insert(p.Keys, idx, key)
	p.Values = slices.Insert(p.Values, idx, value)
	p.Size += 1
}

func (p *leafPage[K, V]) removeAt(idx int) {
	p.Keys = slices.Delete(p.Keys, idx, idx+1)
	p.Values = slices.Delete(p.Values, idx, idx+1)
	p.Size -= 1
}
