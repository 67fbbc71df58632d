package bptree

import (
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/buffer_pool"
)

// IndexIterator walks the leaf chain in key order. It holds a shared latch
// and a pin on the current leaf; Close releases them. A nil guard is the
// empty iterator.
type IndexIterator struct {
	bpm   *buffer_pool.BufferPoolManager
	guard *buffer_pool.ReadPageGuard
	index int
}

// Begin positions an iterator on the first key of the tree.
func (t *BPlusTree) Begin() (*IndexIterator, error) {
	guard, err := t.findLeafRead(0, true, false)
	if err != nil {
		return nil, err
	}
	return &IndexIterator{bpm: t.bpm, guard: guard}, nil
}

// BeginAt positions an iterator on key, or on the first key after it.
func (t *BPlusTree) BeginAt(key common.Key) (*IndexIterator, error) {
	guard, err := t.findLeafRead(key, false, false)
	if err != nil {
		return nil, err
	}
	it := &IndexIterator{bpm: t.bpm, guard: guard}
	if guard != nil {
		leaf := AsLeafPage(guard.Page())
		it.index = leaf.KeyIndex(key)
		// A missing key can land one past the leaf's last entry; step over
		// to the sibling that holds the successor.
		if it.index == leaf.GetSize() && leaf.GetNextPageNo() != common.INVALID_PAGE_NO {
			nextGuard, err := t.bpm.FetchPageRead(leaf.GetNextPageNo())
			if err != nil {
				guard.Drop()
				return nil, err
			}
			guard.Drop()
			it.guard = nextGuard
			it.index = 0
		}
	}
	return it, nil
}

// End positions an iterator one past the last key of the tree.
func (t *BPlusTree) End() (*IndexIterator, error) {
	guard, err := t.findLeafRead(0, false, true)
	if err != nil {
		return nil, err
	}
	it := &IndexIterator{bpm: t.bpm, guard: guard}
	if guard != nil {
		it.index = AsLeafPage(guard.Page()).GetSize()
	}
	return it, nil
}

// IsEnd reports whether the iterator moved past the last key.
func (it *IndexIterator) IsEnd() bool {
	if it.guard == nil {
		return true
	}
	leaf := AsLeafPage(it.guard.Page())
	return leaf.GetNextPageNo() == common.INVALID_PAGE_NO && it.index >= leaf.GetSize()
}

// Item returns the (key, RID) pair under the iterator.
func (it *IndexIterator) Item() (common.Key, common.RID) {
	return AsLeafPage(it.guard.Page()).GetItem(it.index)
}

// Next advances one entry, hopping to the right sibling at a leaf boundary.
func (it *IndexIterator) Next() error {
	if it.IsEnd() {
		return nil
	}

	leaf := AsLeafPage(it.guard.Page())
	it.index++
	if it.index == leaf.GetSize() && leaf.GetNextPageNo() != common.INVALID_PAGE_NO {
		nextGuard, err := it.bpm.FetchPageRead(leaf.GetNextPageNo())
		if err != nil {
			return err
		}
		it.guard.Drop()
		it.guard = nextGuard
		it.index = 0
	}
	return nil
}

// Equal reports whether two iterators sit on the same leaf slot.
func (it *IndexIterator) Equal(other *IndexIterator) bool {
	if it.guard == nil || other.guard == nil {
		return it.guard == other.guard
	}
	return it.guard.PageNo() == other.guard.PageNo() && it.index == other.index
}

// Close releases the current leaf. The iterator is unusable afterwards.
func (it *IndexIterator) Close() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
}
