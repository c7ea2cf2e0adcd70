package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPageGuard(t *testing.T) {
	t.Run("dropping twice unpins once", func(t *testing.T) {
		bpm := createBpm(createDbFile(t), 4)

		guard, err := bpm.NewPageGuarded()
		assert.NoError(t, err)
		frame := guard.frame

		guard.Drop()
		guard.Drop()

		assert.Equal(t, 0, frame.PinCount())
	})

	t.Run("moving empties the source", func(t *testing.T) {
		bpm := createBpm(createDbFile(t), 4)

		guard, err := bpm.NewPageGuarded()
		assert.NoError(t, err)
		frame := guard.frame

		moved := guard.Move()
		assert.Nil(t, guard.frame)

		guard.Drop()
		assert.Equal(t, 1, frame.PinCount())

		moved.Drop()
		assert.Equal(t, 0, frame.PinCount())
	})

	t.Run("a write guard reports the page dirty on drop", func(t *testing.T) {
		bpm := createBpm(createDbFile(t), 4)

		basic, err := bpm.NewPageGuarded()
		assert.NoError(t, err)
		pageId := basic.PageId()
		basic.Drop()

		guard, err := bpm.WritePage(pageId)
		assert.NoError(t, err)
		frame := guard.frame

		copy(guard.GetDataMut(), []byte("scribble"))
		guard.Drop()

		assert.True(t, frame.dirty)
		assert.Equal(t, 0, frame.PinCount())
	})

	t.Run("a read guard leaves the dirty bit alone", func(t *testing.T) {
		bpm := createBpm(createDbFile(t), 4)

		basic, err := bpm.NewPageGuarded()
		assert.NoError(t, err)
		pageId := basic.PageId()
		basic.Drop()

		guard, err := bpm.ReadPage(pageId)
		assert.NoError(t, err)
		frame := guard.frame

		_ = guard.GetData()
		guard.Drop()

		assert.False(t, frame.dirty)
	})

	t.Run("read guards share, a write guard excludes", func(t *testing.T) {
		bpm := createBpm(createDbFile(t), 4)

		basic, err := bpm.NewPageGuarded()
		assert.NoError(t, err)
		pageId := basic.PageId()
		basic.Drop()

		r1, err := bpm.ReadPage(pageId)
		assert.NoError(t, err)
		r2, err := bpm.ReadPage(pageId)
		assert.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			w, err := bpm.WritePage(pageId)
			assert.NoError(t, err)
			w.Drop()
			close(acquired)
		}()

		time.Sleep(10 * time.Millisecond)
		select {
		case <-acquired:
			t.Fatal("write latch acquired while read guards were held")
		default:
		}

		r1.Drop()
		r2.Drop()
		<-acquired
	})
}
