package bptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/storage/blocks"
)

const testPageSize = 4096

func newTestTree(t *testing.T, poolSize, leafMax, internalMax int) (*BPlusTree, *buffer_pool.BufferPoolManager) {
	t.Helper()
	bf := blocks.NewBlockFile(t.TempDir(), "index.ibd", testPageSize)
	t.Cleanup(func() { bf.Close() })

	bpm, err := buffer_pool.NewBufferPoolManager(poolSize, testPageSize, bf)
	require.NoError(t, err)

	tree, err := NewBPlusTree(bpm, common.HEADER_PAGE_NO, leafMax, internalMax)
	require.NoError(t, err)
	return tree, bpm
}

func ridFor(key common.Key) common.RID {
	return common.RID{PageNo: common.PageNo(key), SlotNo: int32(key)}
}

func insertKey(t *testing.T, tree *BPlusTree, key common.Key) {
	t.Helper()
	ok, err := tree.Insert(key, ridFor(key), NewTransaction())
	require.NoError(t, err)
	require.True(t, ok, "insert of key %d", key)
}

func collectKeys(t *testing.T, tree *BPlusTree) []common.Key {
	t.Helper()
	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var keys []common.Key
	for !it.IsEnd() {
		key, rid := it.Item()
		assert.Equal(t, ridFor(key), rid)
		keys = append(keys, key)
		require.NoError(t, it.Next())
	}
	return keys
}

func TestBPlusTreeStartsEmpty(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	_, found, err := tree.GetValue(1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBPlusTreeSingleLeaf(t *testing.T) {
	tree, bpm := newTestTree(t, 16, 4, 4)

	insertKey(t, tree, 1)
	insertKey(t, tree, 2)
	insertKey(t, tree, 3)

	root, err := tree.GetRootPageNo()
	require.NoError(t, err)
	guard, err := bpm.FetchPageRead(root)
	require.NoError(t, err)
	assert.True(t, AsTreePage(guard.Page()).IsLeafPage(), "three keys still fit one leaf")
	guard.Drop()

	assert.Equal(t, []common.Key{1, 2, 3}, collectKeys(t, tree))
}

func TestBPlusTreeLeafSplit(t *testing.T) {
	tree, bpm := newTestTree(t, 16, 4, 4)

	for key := common.Key(1); key <= 4; key++ {
		insertKey(t, tree, key)
	}

	root, err := tree.GetRootPageNo()
	require.NoError(t, err)
	guard, err := bpm.FetchPageRead(root)
	require.NoError(t, err)
	rootNode := AsTreePage(guard.Page())
	require.False(t, rootNode.IsLeafPage(), "fourth insert split the leaf")
	assert.Equal(t, 2, rootNode.GetSize())

	// Keys below the separator stay in the left leaf.
	internal := AsInternalPage(guard.Page())
	separator := internal.KeyAt(1)
	leftGuard, err := bpm.FetchPageRead(internal.ValueAt(0))
	require.NoError(t, err)
	left := AsLeafPage(leftGuard.Page())
	for i := 0; i < left.GetSize(); i++ {
		assert.Less(t, left.KeyAt(i), separator)
	}
	leftGuard.Drop()
	guard.Drop()

	for key := common.Key(1); key <= 4; key++ {
		rid, found, err := tree.GetValue(key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, ridFor(key), rid)
	}
	_, found, err := tree.GetValue(5)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, []common.Key{1, 2, 3, 4}, collectKeys(t, tree))
}

func TestBPlusTreeDuplicateKey(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	for key := common.Key(1); key <= 4; key++ {
		insertKey(t, tree, key)
	}

	ok, err := tree.Insert(2, ridFor(2), NewTransaction())
	require.NoError(t, err)
	assert.False(t, ok, "duplicate key rejected")

	assert.Equal(t, []common.Key{1, 2, 3, 4}, collectKeys(t, tree))
}

func TestBPlusTreeSequentialInserts(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	const n = 64
	for key := common.Key(1); key <= n; key++ {
		insertKey(t, tree, key)
	}

	keys := collectKeys(t, tree)
	require.Len(t, keys, n)
	for i, key := range keys {
		assert.Equal(t, common.Key(i+1), key)
	}

	for key := common.Key(1); key <= n; key++ {
		rid, found, err := tree.GetValue(key)
		require.NoError(t, err)
		require.True(t, found, "key %d", key)
		assert.Equal(t, ridFor(key), rid)
	}
}

func TestBPlusTreeReverseInserts(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	const n = 64
	for key := common.Key(n); key >= 1; key-- {
		insertKey(t, tree, key)
	}

	keys := collectKeys(t, tree)
	require.Len(t, keys, n)
	for i, key := range keys {
		assert.Equal(t, common.Key(i+1), key)
	}
}

func TestBPlusTreeParentLinks(t *testing.T) {
	tree, bpm := newTestTree(t, 16, 4, 4)

	for key := common.Key(1); key <= 32; key++ {
		insertKey(t, tree, key)
	}

	root, err := tree.GetRootPageNo()
	require.NoError(t, err)
	verifyParentLinks(t, bpm, root, common.INVALID_PAGE_NO)
}

// verifyParentLinks walks the tree checking every child's back-reference.
func verifyParentLinks(t *testing.T, bpm *buffer_pool.BufferPoolManager, pageNo, parent common.PageNo) {
	t.Helper()
	guard, err := bpm.FetchPageRead(pageNo)
	require.NoError(t, err)
	defer guard.Drop()

	node := AsTreePage(guard.Page())
	assert.Equal(t, parent, node.GetParentPageNo(), "parent link of page %d", pageNo)
	if node.IsLeafPage() {
		return
	}

	internal := AsInternalPage(guard.Page())
	for i := 0; i < internal.GetSize(); i++ {
		verifyParentLinks(t, bpm, internal.ValueAt(i), pageNo)
	}
}

func TestBPlusTreePersistence(t *testing.T) {
	testDir := t.TempDir()
	bf := blocks.NewBlockFile(testDir, "index.ibd", testPageSize)

	bpm, err := buffer_pool.NewBufferPoolManager(16, testPageSize, bf)
	require.NoError(t, err)
	tree, err := NewBPlusTree(bpm, common.HEADER_PAGE_NO, 4, 4)
	require.NoError(t, err)

	for key := common.Key(1); key <= 32; key++ {
		ok, err := tree.Insert(key, ridFor(key), NewTransaction())
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, bpm.FlushAllPages())
	require.NoError(t, bf.Close())

	reopened := blocks.NewBlockFile(testDir, "index.ibd", testPageSize)
	defer reopened.Close()
	bpm2, err := buffer_pool.NewBufferPoolManager(16, testPageSize, reopened)
	require.NoError(t, err)

	tree2, err := NewBPlusTree(bpm2, common.HEADER_PAGE_NO, 4, 4)
	require.NoError(t, err)

	empty, err := tree2.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty, "header magic preserved the root across reopen")

	for key := common.Key(1); key <= 32; key++ {
		rid, found, err := tree2.GetValue(key)
		require.NoError(t, err)
		require.True(t, found, "key %d after reopen", key)
		assert.Equal(t, ridFor(key), rid)
	}
}
