package bptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-storage/server/common"
)

func removeKey(t *testing.T, tree *BPlusTree, key common.Key) {
	t.Helper()
	require.NoError(t, tree.Remove(key, NewTransaction()))
}

func TestBPlusTreeRemoveAbsentKey(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	removeKey(t, tree, 42) // empty tree

	for key := common.Key(1); key <= 4; key++ {
		insertKey(t, tree, key)
	}
	removeKey(t, tree, 42)

	assert.Equal(t, []common.Key{1, 2, 3, 4}, collectKeys(t, tree))
}

func TestBPlusTreeCoalesceAndRootAdjust(t *testing.T) {
	tree, bpm := newTestTree(t, 16, 4, 4)

	for key := common.Key(1); key <= 4; key++ {
		insertKey(t, tree, key)
	}

	// Removing 3 underflows the right leaf: its survivor 4 merges left and
	// the single-child root hands the tree to the merged leaf, from which 4
	// is then removed.
	removeKey(t, tree, 3)
	removeKey(t, tree, 4)

	assert.Equal(t, []common.Key{1, 2}, collectKeys(t, tree))

	root, err := tree.GetRootPageNo()
	require.NoError(t, err)
	guard, err := bpm.FetchPageRead(root)
	require.NoError(t, err)
	assert.True(t, AsTreePage(guard.Page()).IsLeafPage(), "root collapsed to a leaf")
	guard.Drop()
}

func TestBPlusTreeRedistribute(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	for key := common.Key(1); key <= 5; key++ {
		insertKey(t, tree, key)
	}

	// Leaves are [1,2] and [3,4,5]; removing 1 underflows the left leaf
	// and borrows 3 from the richer right sibling.
	removeKey(t, tree, 1)

	assert.Equal(t, []common.Key{2, 3, 4, 5}, collectKeys(t, tree))
	for key := common.Key(2); key <= 5; key++ {
		_, found, err := tree.GetValue(key)
		require.NoError(t, err)
		assert.True(t, found, "key %d", key)
	}
}

func TestBPlusTreeRemoveToEmpty(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	for key := common.Key(1); key <= 4; key++ {
		insertKey(t, tree, key)
	}
	for key := common.Key(1); key <= 4; key++ {
		removeKey(t, tree, key)
	}

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	root, err := tree.GetRootPageNo()
	require.NoError(t, err)
	assert.Equal(t, common.INVALID_PAGE_NO, root)

	it, err := tree.Begin()
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
	it.Close()

	// The tree restarts cleanly after draining.
	insertKey(t, tree, 7)
	rid, found, err := tree.GetValue(7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ridFor(7), rid)
}

func TestBPlusTreeDeleteAscending(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)

	const n = 64
	for key := common.Key(1); key <= n; key++ {
		insertKey(t, tree, key)
	}
	for key := common.Key(1); key <= n; key++ {
		removeKey(t, tree, key)

		_, found, err := tree.GetValue(key)
		require.NoError(t, err)
		require.False(t, found, "key %d still present", key)
		if key < n {
			_, found, err = tree.GetValue(key + 1)
			require.NoError(t, err)
			require.True(t, found, "key %d lost", key+1)
		}
	}

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestBPlusTreeDeleteDescending(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)

	const n = 64
	for key := common.Key(1); key <= n; key++ {
		insertKey(t, tree, key)
	}
	for key := common.Key(n); key >= 1; key-- {
		removeKey(t, tree, key)
	}

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestBPlusTreeDeleteInterleaved(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)

	const n = 64
	for key := common.Key(1); key <= n; key++ {
		insertKey(t, tree, key)
	}

	// Drop the odd keys, keep the even.
	for key := common.Key(1); key <= n; key += 2 {
		removeKey(t, tree, key)
	}

	keys := collectKeys(t, tree)
	require.Len(t, keys, n/2)
	for i, key := range keys {
		assert.Equal(t, common.Key(2*(i+1)), key)
	}
}
