package buffer_pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/storage/blocks"
)

const testPageSize = 4096

func newTestPool(t *testing.T, poolSize int) (*BufferPoolManager, *blocks.BlockFile) {
	t.Helper()
	bf := blocks.NewBlockFile(t.TempDir(), "test.ibd", testPageSize)
	t.Cleanup(func() { bf.Close() })

	bpm, err := NewBufferPoolManager(poolSize, testPageSize, bf)
	require.NoError(t, err)
	return bpm, bf
}

func TestBufferPoolManagerBasic(t *testing.T) {
	bpm, _ := newTestPool(t, 10)

	page, err := bpm.NewPage()
	require.NoError(t, err)
	assert.Equal(t, common.PageNo(1), page.GetPageNo())
	assert.Equal(t, 1, page.GetPinCount())

	copy(page.Data()[common.FIL_PROLOGUE_SIZE:], []byte("Hello"))

	// Fill the rest of the pool.
	for i := 0; i < 9; i++ {
		_, err := bpm.NewPage()
		require.NoError(t, err)
	}

	// Every frame pinned: no page can be created, though a resident page can
	// still be fetched.
	_, err = bpm.NewPage()
	assert.ErrorIs(t, err, ErrBufferPoolFull)
	_, err = bpm.FetchPage(1)
	assert.NoError(t, err) // resident, pin again
	assert.True(t, bpm.UnpinPage(1, false))

	// Unpin five pages so new ones can evict them.
	for pageNo := common.PageNo(1); pageNo <= 5; pageNo++ {
		assert.True(t, bpm.UnpinPage(pageNo, true))
	}
	for i := 0; i < 5; i++ {
		_, err := bpm.NewPage()
		require.NoError(t, err)
	}

	// Page 1 was evicted dirty; fetching it again must read "Hello" back.
	_, err = bpm.FetchPage(1)
	assert.ErrorIs(t, err, ErrBufferPoolFull)

	require.True(t, bpm.UnpinPage(11, false))
	fetched, err := bpm.FetchPage(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), fetched.Data()[common.FIL_PROLOGUE_SIZE:common.FIL_PROLOGUE_SIZE+5])
}

func TestBufferPoolManagerUnpinContract(t *testing.T) {
	bpm, _ := newTestPool(t, 4)

	assert.False(t, bpm.UnpinPage(42, false), "unmapped page")

	page, err := bpm.NewPage()
	require.NoError(t, err)
	pageNo := page.GetPageNo()

	assert.True(t, bpm.UnpinPage(pageNo, false))
	assert.False(t, bpm.UnpinPage(pageNo, false), "already unpinned")

	// Dirty flag is OR-ed in, never cleared by a later clean unpin.
	_, err = bpm.FetchPage(pageNo)
	require.NoError(t, err)
	_, err = bpm.FetchPage(pageNo)
	require.NoError(t, err)
	assert.True(t, bpm.UnpinPage(pageNo, true))
	assert.True(t, bpm.UnpinPage(pageNo, false))
	frame, err := bpm.FetchPage(pageNo)
	require.NoError(t, err)
	assert.True(t, frame.IsDirty())
}

func TestBufferPoolManagerEvictionFlushesDirty(t *testing.T) {
	bpm, bf := newTestPool(t, 2)

	first, err := bpm.NewPage()
	require.NoError(t, err)
	firstNo := first.GetPageNo()
	copy(first.Data()[common.FIL_PROLOGUE_SIZE:], []byte("dirty payload"))

	_, err = bpm.NewPage()
	require.NoError(t, err)

	// Both frames pinned.
	_, err = bpm.NewPage()
	assert.ErrorIs(t, err, ErrBufferPoolFull)

	// Unpin the dirty page; the next allocation evicts and flushes it.
	require.True(t, bpm.UnpinPage(firstNo, true))
	_, err = bpm.NewPage()
	require.NoError(t, err)

	onDisk := make([]byte, testPageSize)
	require.NoError(t, bf.ReadPage(firstNo, onDisk))
	assert.Equal(t, []byte("dirty payload"),
		onDisk[common.FIL_PROLOGUE_SIZE:common.FIL_PROLOGUE_SIZE+13])
}

func TestBufferPoolManagerDeletePage(t *testing.T) {
	bpm, _ := newTestPool(t, 4)

	assert.True(t, bpm.DeletePage(99), "non-resident page deletes trivially")

	page, err := bpm.NewPage()
	require.NoError(t, err)
	pageNo := page.GetPageNo()

	assert.False(t, bpm.DeletePage(pageNo), "pinned page refuses")

	require.True(t, bpm.UnpinPage(pageNo, true))
	assert.True(t, bpm.DeletePage(pageNo))

	// The frame went back to the free list; the page is gone from the
	// table.
	assert.False(t, bpm.UnpinPage(pageNo, false))
}

func TestBufferPoolManagerFlush(t *testing.T) {
	bpm, bf := newTestPool(t, 4)

	assert.ErrorIs(t, bpm.FlushPage(common.INVALID_PAGE_NO), ErrInvalidPageNo)
	assert.ErrorIs(t, bpm.FlushPage(7), ErrPageNotFound)

	page, err := bpm.NewPage()
	require.NoError(t, err)
	pageNo := page.GetPageNo()
	copy(page.Data()[common.FIL_PROLOGUE_SIZE:], []byte("flushed"))

	require.NoError(t, bpm.FlushPage(pageNo))
	assert.False(t, page.IsDirty())

	onDisk := make([]byte, testPageSize)
	require.NoError(t, bf.ReadPage(pageNo, onDisk))
	assert.Equal(t, []byte("flushed"),
		onDisk[common.FIL_PROLOGUE_SIZE:common.FIL_PROLOGUE_SIZE+7])
}

func TestBufferPoolManagerFlushAllAndReopen(t *testing.T) {
	testDir := t.TempDir()
	bf := blocks.NewBlockFile(testDir, "test.ibd", testPageSize)

	bpm, err := NewBufferPoolManager(4, testPageSize, bf)
	require.NoError(t, err)

	var pageNos []common.PageNo
	for i := 0; i < 3; i++ {
		page, err := bpm.NewPage()
		require.NoError(t, err)
		page.Data()[common.FIL_PROLOGUE_SIZE] = byte(i + 1)
		pageNos = append(pageNos, page.GetPageNo())
		require.True(t, bpm.UnpinPage(page.GetPageNo(), true))
	}

	require.NoError(t, bpm.FlushAllPages())
	require.NoError(t, bf.Close())

	reopened := blocks.NewBlockFile(testDir, "test.ibd", testPageSize)
	defer reopened.Close()
	bpm2, err := NewBufferPoolManager(4, testPageSize, reopened)
	require.NoError(t, err)

	for i, pageNo := range pageNos {
		page, err := bpm2.FetchPage(pageNo)
		require.NoError(t, err)
		assert.Equal(t, byte(i+1), page.Data()[common.FIL_PROLOGUE_SIZE])
		require.True(t, bpm2.UnpinPage(pageNo, false))
	}

	// The allocator resumed past the persisted extent.
	fresh, err := bpm2.NewPage()
	require.NoError(t, err)
	assert.Greater(t, int64(fresh.GetPageNo()), int64(pageNos[len(pageNos)-1]))
}

func TestBufferPoolManagerStats(t *testing.T) {
	bpm, _ := newTestPool(t, 4)

	page, err := bpm.NewPage()
	require.NoError(t, err)
	pageNo := page.GetPageNo()

	_, err = bpm.FetchPage(pageNo)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bpm.GetStats().HitCount())

	require.True(t, bpm.UnpinPage(pageNo, true))
	require.True(t, bpm.UnpinPage(pageNo, false))

	// Page 42 is beyond the pool's memory of the file: a miss that reads a
	// fresh zeroed page from disk.
	_, err = bpm.FetchPage(42)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bpm.GetStats().MissCount())
	assert.InDelta(t, 0.5, bpm.GetStats().HitRatio(), 0.01)
	require.True(t, bpm.UnpinPage(42, false))
}
