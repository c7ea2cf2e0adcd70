package index

import (
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kamau/pembe/buffer"
	"github.com/kamau/pembe/storage/disk"
	"github.com/kamau/pembe/util"
)

func TestBplusTree(t *testing.T) {
	t.Run("stored values can be retrieved", func(t *testing.T) {
		bplus := createStringTree(t)

		register := map[string]int{
			"john": 25,
			"doe":  45,
			"jane": 40,
		}

		for k, v := range register {
			inserted, err := bplus.Insert(k, v)
			assert.NoError(t, err)
			assert.True(t, inserted)
		}

		for k, v := range register {
			val, err := bplus.GetValue(k)
			assert.NoError(t, err)
			assert.Equal(t, []int{v}, val)
		}

		missing, err := bplus.GetValue("nobody")
		assert.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("keys come back in ascending order", func(t *testing.T) {
		bplus := createIntTree(t)

		for _, k := range []int{5, 3, 8, 1} {
			inserted, err := bplus.Insert(k, k*10)
			assert.NoError(t, err)
			assert.True(t, inserted)
		}

		assert.Equal(t, []int{1, 3, 5, 8}, collectKeys(t, bplus))
		checkTreeShape(t, bplus)
	})

	t.Run("a full leaf splits under a fresh root", func(t *testing.T) {
		bplus := createIntTree(t)

		for _, k := range []int{5, 3, 8, 1} {
			_, err := bplus.Insert(k, k*10)
			assert.NoError(t, err)
		}
		rootBefore := bplus.GetRootPageId()

		inserted, err := bplus.Insert(7, 70)
		assert.NoError(t, err)
		assert.True(t, inserted)

		assert.NotEqual(t, rootBefore, bplus.GetRootPageId())
		assert.Equal(t, []int{1, 3, 5, 7, 8}, collectKeys(t, bplus))

		internals, leaves := countPages(t, bplus)
		assert.Equal(t, 1, internals)
		assert.Equal(t, 2, leaves)
		checkTreeShape(t, bplus)
	})

	t.Run("an underfull leaf borrows from its right sibling", func(t *testing.T) {
		bplus := createIntTree(t)

		for _, k := range []int{5, 3, 8, 1, 7} {
			_, err := bplus.Insert(k, k*10)
			assert.NoError(t, err)
		}

		assert.NoError(t, bplus.Remove(3))
		assert.Equal(t, []int{1, 5, 7, 8}, collectKeys(t, bplus))
		checkTreeShape(t, bplus)
	})

	t.Run("leaves merge and the root collapses", func(t *testing.T) {
		bplus := createIntTree(t)

		for _, k := range []int{5, 3, 8, 1, 7} {
			_, err := bplus.Insert(k, k*10)
			assert.NoError(t, err)
		}

		assert.NoError(t, bplus.Remove(8))
		assert.NoError(t, bplus.Remove(7))

		assert.Equal(t, []int{1, 3, 5}, collectKeys(t, bplus))

		internals, leaves := countPages(t, bplus)
		assert.Equal(t, 0, internals)
		assert.Equal(t, 1, leaves)
	})

	t.Run("duplicate keys are rejected without mutation", func(t *testing.T) {
		bplus := createIntTree(t)

		inserted, err := bplus.Insert(1, 100)
		assert.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = bplus.Insert(1, 999)
		assert.NoError(t, err)
		assert.False(t, inserted)

		val, err := bplus.GetValue(1)
		assert.NoError(t, err)
		assert.Equal(t, []int{100}, val)
	})

	t.Run("removing an absent key is a no-op", func(t *testing.T) {
		bplus := createIntTree(t)

		assert.NoError(t, bplus.Remove(42))

		_, err := bplus.Insert(1, 10)
		assert.NoError(t, err)
		assert.NoError(t, bplus.Remove(42))
		assert.Equal(t, []int{1}, collectKeys(t, bplus))
	})

	t.Run("can store more items than one page holds", func(t *testing.T) {
		bplus := createIntTree(t)

		for i := 100; i >= 0; i-- {
			inserted, err := bplus.Insert(i, i)
			assert.NoError(t, err)
			assert.True(t, inserted)
		}

		for i := range 101 {
			val, err := bplus.GetValue(i)
			assert.NoError(t, err)
			assert.Equal(t, []int{i}, val)
		}

		expected := []int{}
		for i := range 101 {
			expected = append(expected, i)
		}
		assert.Equal(t, expected, collectKeys(t, bplus))
		checkTreeShape(t, bplus)
	})

	t.Run("deleting every key empties the tree", func(t *testing.T) {
		bplus := createIntTree(t)

		for i := range 20 {
			_, err := bplus.Insert(i, i)
			assert.NoError(t, err)
		}
		assert.False(t, bplus.IsEmpty())

		// evens first, then odds, to mix merge directions
		for i := 0; i < 20; i += 2 {
			assert.NoError(t, bplus.Remove(i))
			checkTreeShape(t, bplus)
		}
		for i := 19; i > 0; i -= 2 {
			assert.NoError(t, bplus.Remove(i))
			checkTreeShape(t, bplus)
		}

		assert.True(t, bplus.IsEmpty())
		assert.Equal(t, disk.INVALID_PAGE_ID, bplus.GetRootPageId())

		// the tree is usable again afterwards
		inserted, err := bplus.Insert(7, 70)
		assert.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, []int{7}, collectKeys(t, bplus))
	})

	t.Run("values in a key range", func(t *testing.T) {
		bplus := createIntTree(t)

		for i := range 30 {
			_, err := bplus.Insert(i, i*10)
			assert.NoError(t, err)
		}

		vals, err := bplus.GetKeyRange(5, 9)
		assert.NoError(t, err)
		assert.Equal(t, []int{50, 60, 70, 80, 90}, vals)
	})

	t.Run("batch insert", func(t *testing.T) {
		bplus := createIntTree(t)

		items := map[int]int{}
		for i := range 25 {
			items[i] = i + 1000
		}
		assert.NoError(t, bplus.BatchInsert(items))

		for k, v := range items {
			val, err := bplus.GetValue(k)
			assert.NoError(t, err)
			assert.Equal(t, []int{v}, val)
		}
	})
}

func TestIndexIterator(t *testing.T) {
	t.Run("an empty tree iterates nothing", func(t *testing.T) {
		bplus := createIntTree(t)

		indexIter, err := bplus.GetIterator()
		assert.NoError(t, err)
		assert.True(t, indexIter.IsEnd())
		assert.True(t, indexIter.Equals(bplus.End()))

		_, _, err = indexIter.Next()
		var exhausted *util.IteratorExhaustedError
		assert.ErrorAs(t, err, &exhausted)
	})

	t.Run("iteration crosses leaf boundaries in order", func(t *testing.T) {
		bplus := createIntTree(t)

		for i := 40; i >= 0; i-- {
			_, err := bplus.Insert(i, i*2)
			assert.NoError(t, err)
		}

		indexIter, err := bplus.GetIterator()
		assert.NoError(t, err)

		keys := []int{}
		for !indexIter.IsEnd() {
			key, val, err := indexIter.Next()
			assert.NoError(t, err)
			assert.Equal(t, key*2, val)
			keys = append(keys, key)
		}

		expected := []int{}
		for i := range 41 {
			expected = append(expected, i)
		}
		assert.Equal(t, expected, keys)
		assert.True(t, indexIter.Equals(bplus.End()))
	})

	t.Run("an iterator can start mid tree", func(t *testing.T) {
		bplus := createIntTree(t)

		for _, k := range []int{2, 4, 6, 8, 10, 12} {
			_, err := bplus.Insert(k, k)
			assert.NoError(t, err)
		}

		indexIter, err := bplus.GetIteratorAt(8)
		assert.NoError(t, err)
		key, _, err := indexIter.Next()
		assert.NoError(t, err)
		assert.Equal(t, 8, key)
		indexIter.Drop()

		// an absent start key lands on its successor
		indexIter, err = bplus.GetIteratorAt(7)
		assert.NoError(t, err)
		key, _, err = indexIter.Next()
		assert.NoError(t, err)
		assert.Equal(t, 8, key)
		indexIter.Drop()
	})
}

func collectKeys(t *testing.T, b *bplusTree[int, int]) []int {
	t.Helper()

	indexIter, err := b.GetIterator()
	assert.NoError(t, err)
	defer indexIter.Drop()

	keys := []int{}
	for !indexIter.IsEnd() {
		key, _, err := indexIter.Next()
		assert.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}

// checkTreeShape walks the whole tree and asserts the balance invariants:
// all leaves at one depth, every non-root page at least half full, keys
// strictly ascending along the leaf chain.
func checkTreeShape(t *testing.T, b *bplusTree[int, int]) {
	t.Helper()

	rootId := b.GetRootPageId()
	if rootId == disk.INVALID_PAGE_ID {
		return
	}

	leafDepths := map[int]bool{}
	var walk func(pageId int64, depth int, isRoot bool)
	walk = func(pageId int64, depth int, isRoot bool) {
		guard, err := b.bpm.FetchPageBasic(pageId)
		assert.NoError(t, err)
		defer guard.Drop()

		probe, err := util.ToStruct[pageProbe](guard.GetData())
		assert.NoError(t, err)

		if probe.PageType == LEAF_PAGE {
			leafDepths[depth] = true
			if !isRoot {
				assert.GreaterOrEqual(t, int(probe.Size), (b.leafMax+1)/2)
			}
			return
		}

		internal, err := util.ToStruct[internalPage[int]](guard.GetData())
		assert.NoError(t, err)
		if !isRoot {
			assert.GreaterOrEqual(t, internal.getSize(), (b.internalMax+1)/2)
		} else {
			assert.GreaterOrEqual(t, internal.getSize(), 2)
		}

		for i := range internal.getSize() {
			walk(internal.childAt(i), depth+1, false)
		}
	}
	walk(rootId, 0, true)
	assert.Len(t, leafDepths, 1)

	keys := collectKeys(t, b)
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

// countPages tallies internal and leaf pages reachable from the root.
func countPages(t *testing.T, b *bplusTree[int, int]) (int, int) {
	t.Helper()

	internals, leaves := 0, 0
	rootId := b.GetRootPageId()
	if rootId == disk.INVALID_PAGE_ID {
		return 0, 0
	}

	var walk func(pageId int64)
	walk = func(pageId int64) {
		guard, err := b.bpm.FetchPageBasic(pageId)
		assert.NoError(t, err)
		defer guard.Drop()

		probe, err := util.ToStruct[pageProbe](guard.GetData())
		assert.NoError(t, err)

		if probe.PageType == LEAF_PAGE {
			leaves += 1
			return
		}

		internals += 1
		internal, err := util.ToStruct[internalPage[int]](guard.GetData())
		assert.NoError(t, err)
		for i := range internal.getSize() {
			walk(internal.childAt(i))
		}
	}
	walk(rootId)
	return internals, leaves
}

func createIntTree(t *testing.T) *bplusTree[int, int] {
	t.Helper()

	bpm := createBpm(createDbFile(t))
	bplus, err := NewBplusTree[int, int]("test", bpm.NewPageId(), bpm, nil, 4, 4)
	assert.NoError(t, err)
	return bplus
}

func createStringTree(t *testing.T) *bplusTree[string, int] {
	t.Helper()

	bpm := createBpm(createDbFile(t))
	bplus, err := NewBplusTree[string, int]("test", bpm.NewPageId(), bpm, nil, 4, 4)
	assert.NoError(t, err)
	return bplus
}

func createBpm(file *os.File) *buffer.BufferpoolManager {
	replacer := buffer.NewLrukReplacer(16, 2)
	diskMgr := disk.NewManager(file)
	diskScheduler := disk.NewScheduler(diskMgr)

	return buffer.NewBufferpoolManager(16, replacer, diskScheduler)
}

func createDbFile(t *testing.T) *os.File {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")

	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file\n%v", err))
	}
	t.Cleanup(func() {
		_ = os.Remove(file.Name())
	})

	_ = os.Truncate(file.Name(), disk.PAGE_SIZE)
	return file
}
